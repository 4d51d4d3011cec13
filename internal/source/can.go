package source

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/coffersTech/nanocat/internal/clock"
)

// struct can_frame layout and identifier flags from linux/can.h.
const (
	canFrameLen = 16
	canEFFFlag  = 0x80000000
	canRTRFlag  = 0x40000000
	canEFFMask  = 0x1fffffff
	canSFFMask  = 0x7ff
)

// CAN reads raw frames from a SocketCAN interface.
type CAN struct {
	Interface string
	Clock     clock.Clock
}

func (c *CAN) Kind() Kind { return KindCAN }

func (c *CAN) Identity() string { return "can:" + c.Interface }

func (c *CAN) Open(ctx context.Context) (io.ReadCloser, error) {
	rc, err := openCAN(ctx, c.Interface)
	if err != nil {
		return nil, err
	}
	clk := c.Clock
	if clk == nil {
		clk = clock.Real()
	}
	return newFrameReader(rc, c.Interface, clk), nil
}

// frameReader renders each binary frame read from the socket as one
// candump style text line.
type frameReader struct {
	rc    io.ReadCloser
	iface string
	clock clock.Clock
	frame [canFrameLen]byte
	line  []byte
	rest  []byte
}

func newFrameReader(rc io.ReadCloser, iface string, clk clock.Clock) *frameReader {
	return &frameReader{rc: rc, iface: iface, clock: clk}
}

func (f *frameReader) Read(p []byte) (int, error) {
	for len(f.rest) == 0 {
		n, err := io.ReadFull(f.rc, f.frame[:])
		if err != nil {
			if err == io.ErrUnexpectedEOF {
				err = fmt.Errorf("short CAN frame (%d bytes)", n)
			}
			return 0, err
		}
		f.line = appendFrame(f.line[:0], f.clock.Now(), f.iface, f.frame[:])
		f.rest = f.line
	}
	n := copy(p, f.rest)
	f.rest = f.rest[n:]
	return n, nil
}

func (f *frameReader) Close() error { return f.rc.Close() }

// appendFrame formats "(sec.usec) iface ID#DATA\n". Extended
// identifiers are printed with eight digits, remote requests as "R".
func appendFrame(dst []byte, at time.Time, iface string, frame []byte) []byte {
	id := binary.NativeEndian.Uint32(frame[0:4])
	dlc := int(frame[4])
	if dlc > 8 {
		dlc = 8
	}
	dst = append(dst, '(')
	dst = strconv.AppendInt(dst, at.Unix(), 10)
	dst = append(dst, '.')
	dst = appendPadded(dst, int64(at.Nanosecond()/1000), 6)
	dst = append(dst, ") "...)
	dst = append(dst, iface...)
	dst = append(dst, ' ')
	if id&canEFFFlag != 0 {
		dst = appendHex(dst, uint64(id&canEFFMask), 8)
	} else {
		dst = appendHex(dst, uint64(id&canSFFMask), 3)
	}
	dst = append(dst, '#')
	if id&canRTRFlag != 0 {
		dst = append(dst, 'R')
	} else {
		for _, b := range frame[8 : 8+dlc] {
			dst = appendHex(dst, uint64(b), 2)
		}
	}
	return append(dst, '\n')
}

const hexDigits = "0123456789ABCDEF"

func appendHex(dst []byte, v uint64, width int) []byte {
	for i := width - 1; i >= 0; i-- {
		dst = append(dst, hexDigits[(v>>(4*uint(i)))&0xf])
	}
	return dst
}

func appendPadded(dst []byte, v int64, width int) []byte {
	s := strconv.FormatInt(v, 10)
	for i := len(s); i < width; i++ {
		dst = append(dst, '0')
	}
	return append(dst, s...)
}
