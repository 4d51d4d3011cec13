// Package source abstracts the producers of raw log bytes.
//
// Every producer kind (subprocess, serial device, CAN interface, TCP
// socket, files) is an Opener. A Handle drives one Opener through the
// Connecting, Connected, Disconnected and Closed states, reconnecting
// with bounded backoff where the kind allows it.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// Kind identifies a producer family.
type Kind int

const (
	KindProcess Kind = iota
	KindSerial
	KindCAN
	KindTCP
	KindFile
)

func (k Kind) String() string {
	switch k {
	case KindProcess:
		return "process"
	case KindSerial:
		return "serial"
	case KindCAN:
		return "can"
	case KindTCP:
		return "tcp"
	case KindFile:
		return "file"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Reconnectable reports the default reconnect behavior of the kind.
// Finite files end the stream instead.
func (k Kind) Reconnectable() bool {
	return k != KindFile
}

// Opener establishes the underlying channel of one source. Open may be
// called again after the previous connection was lost.
type Opener interface {
	Kind() Kind
	Identity() string
	Open(ctx context.Context) (io.ReadCloser, error)
}

// reconnector lets an Opener override the default of its Kind.
type reconnector interface {
	Reconnectable() bool
}

// Reconnectable reports whether the Handle reopens o after a disconnect.
func Reconnectable(o Opener) bool {
	if r, ok := o.(reconnector); ok {
		return r.Reconnectable()
	}
	return o.Kind().Reconnectable()
}

// EventKind distinguishes data from connection loss.
type EventKind int

const (
	EventData EventKind = iota
	EventDisconnected
)

// Event is one step of a source stream.
type Event struct {
	Kind EventKind
	// Data is owned by the receiver.
	Data  []byte
	Cause error
}

var (
	// ErrUnsupported is returned for source kinds the platform lacks.
	ErrUnsupported = errors.New("source kind not supported on this platform")
	// ErrClosed is returned by Next after Close.
	ErrClosed = errors.New("source closed")
)

// PermanentError marks a failure that retrying cannot fix, such as an
// invalid device path or an unsupported kind.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }

func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so the Handle gives up without retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err is marked permanent.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// TerminalError ends a source for good: the retry budget ran out, the
// configuration is unusable, or a finite source failed mid-read.
type TerminalError struct {
	Identity string
	Attempts int
	Err      error
}

func (e *TerminalError) Error() string {
	if e.Attempts > 0 {
		return fmt.Sprintf("source %s: giving up after %d attempts: %v", e.Identity, e.Attempts, e.Err)
	}
	return fmt.Sprintf("source %s: %v", e.Identity, e.Err)
}

func (e *TerminalError) Unwrap() error { return e.Err }
