package source

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
)

// Flow is a serial flow-control mode.
type Flow int

const (
	FlowNone Flow = iota
	FlowRTSCTS
	FlowXonXoff
)

func (f Flow) String() string {
	switch f {
	case FlowRTSCTS:
		return "rtscts"
	case FlowXonXoff:
		return "xonxoff"
	}
	return "none"
}

// Serial reads a tty in raw mode.
type Serial struct {
	Path     string
	Baud     int
	DataBits int
	Parity   byte
	StopBits int
	Flow     Flow
}

func (s *Serial) Kind() Kind { return KindSerial }

func (s *Serial) Identity() string { return s.Path }

func (s *Serial) Open(ctx context.Context) (io.ReadCloser, error) {
	return openSerial(ctx, s)
}

// ParseSerial accepts
//
//	serial:///dev/ttyUSB0?baud=115200&mode=8N1&flow=rtscts
//	serial://ttyUSB0@115200,8N1
//
// Paths without a directory are looked up under /dev.
func ParseSerial(spec string) (*Serial, error) {
	rest, ok := strings.CutPrefix(spec, "serial://")
	if !ok {
		return nil, fmt.Errorf("serial spec %q: missing serial:// scheme", spec)
	}
	s := &Serial{Baud: 115200, DataBits: 8, Parity: 'N', StopBits: 1}
	path, rawQuery, _ := strings.Cut(rest, "?")
	mode := ""
	if at := strings.LastIndexByte(path, '@'); at >= 0 {
		var baud string
		baud, mode, _ = strings.Cut(path[at+1:], ",")
		path = path[:at]
		n, err := strconv.Atoi(baud)
		if err != nil {
			return nil, fmt.Errorf("serial spec %q: invalid baud rate %q", spec, baud)
		}
		s.Baud = n
	}
	q, err := url.ParseQuery(rawQuery)
	if err != nil {
		return nil, fmt.Errorf("serial spec %q: %w", spec, err)
	}
	if v := q.Get("baud"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("serial spec %q: invalid baud rate %q", spec, v)
		}
		s.Baud = n
	}
	if v := q.Get("mode"); v != "" {
		mode = v
	}
	if mode != "" {
		if err := s.parseMode(mode); err != nil {
			return nil, fmt.Errorf("serial spec %q: %w", spec, err)
		}
	}
	switch strings.ToLower(q.Get("flow")) {
	case "", "none":
	case "rtscts", "hw", "hardware":
		s.Flow = FlowRTSCTS
	case "xonxoff", "sw", "software":
		s.Flow = FlowXonXoff
	default:
		return nil, fmt.Errorf("serial spec %q: invalid flow control %q", spec, q.Get("flow"))
	}
	if path == "" {
		return nil, fmt.Errorf("serial spec %q: missing device path", spec)
	}
	if !strings.Contains(path, "/") {
		path = "/dev/" + path
	}
	s.Path = path
	if s.Baud <= 0 {
		return nil, fmt.Errorf("serial spec %q: invalid baud rate %d", spec, s.Baud)
	}
	return s, nil
}

// parseMode reads the classic "8N1" notation.
func (s *Serial) parseMode(mode string) error {
	if len(mode) != 3 {
		return fmt.Errorf("invalid mode %q", mode)
	}
	bits := int(mode[0] - '0')
	if bits < 5 || bits > 8 {
		return fmt.Errorf("invalid data bits in mode %q", mode)
	}
	parity := mode[1] &^ 0x20
	if parity != 'N' && parity != 'E' && parity != 'O' {
		return fmt.Errorf("invalid parity in mode %q", mode)
	}
	stop := int(mode[2] - '0')
	if stop != 1 && stop != 2 {
		return fmt.Errorf("invalid stop bits in mode %q", mode)
	}
	s.DataBits, s.Parity, s.StopBits = bits, parity, stop
	return nil
}
