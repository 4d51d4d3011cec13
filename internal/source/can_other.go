//go:build !linux

package source

import (
	"context"
	"fmt"
	"io"
)

func openCAN(_ context.Context, iface string) (io.ReadCloser, error) {
	return nil, Permanent(fmt.Errorf("can %s: %w", iface, ErrUnsupported))
}
