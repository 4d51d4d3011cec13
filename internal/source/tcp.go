package source

import (
	"context"
	"io"
	"net"
	"time"
)

// TCP reads from a socket address.
type TCP struct {
	Addr    string
	Timeout time.Duration
}

func (t *TCP) Kind() Kind { return KindTCP }

func (t *TCP) Identity() string { return "tcp://" + t.Addr }

func (t *TCP) Open(ctx context.Context) (io.ReadCloser, error) {
	timeout := t.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	d := net.Dialer{Timeout: timeout, KeepAlive: 30 * time.Second}
	return d.DialContext(ctx, "tcp", t.Addr)
}
