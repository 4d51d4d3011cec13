package source

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Options tune how Parse maps input specs to openers.
type Options struct {
	// Follow tails a single input file instead of replaying it.
	Follow      bool
	DialTimeout time.Duration
}

// Parse maps input specs to an Opener. A single spec may be a URL
// (serial://, can://, tcp://, file://); otherwise every spec is a file
// path, a glob or "-" for stdin.
func Parse(specs []string, opts Options) (Opener, error) {
	if len(specs) == 0 {
		return nil, errors.New("no input given")
	}
	for _, spec := range specs {
		if scheme, _, ok := strings.Cut(spec, "://"); ok && scheme != "file" && len(specs) > 1 {
			return nil, fmt.Errorf("input %q: only one %s:// input is supported", spec, scheme)
		}
	}
	spec := specs[0]
	switch {
	case strings.HasPrefix(spec, "serial://"):
		return ParseSerial(spec)
	case strings.HasPrefix(spec, "can://"):
		iface := strings.TrimPrefix(spec, "can://")
		if iface == "" {
			return nil, fmt.Errorf("input %q: missing interface name", spec)
		}
		return &CAN{Interface: iface}, nil
	case strings.HasPrefix(spec, "tcp://"):
		addr := strings.TrimPrefix(spec, "tcp://")
		if !strings.Contains(addr, ":") {
			return nil, fmt.Errorf("input %q: expected host:port", spec)
		}
		return &TCP{Addr: addr, Timeout: opts.DialTimeout}, nil
	}

	paths := make([]string, len(specs))
	for i, s := range specs {
		paths[i] = strings.TrimPrefix(s, "file://")
	}
	if opts.Follow {
		if len(paths) != 1 || hasMeta(paths[0]) || paths[0] == StdinPath {
			return nil, errors.New("follow mode needs exactly one plain file path")
		}
		return &Follow{Path: paths[0]}, nil
	}
	return &File{Paths: paths}, nil
}
