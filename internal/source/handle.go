package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/coffersTech/nanocat/internal/clock"
)

const defaultReadSize = 32 << 10

// HandleOption configures a Handle.
type HandleOption func(*Handle)

func WithPolicy(p Policy) HandleOption {
	return func(h *Handle) { h.policy = p }
}

func WithClock(c clock.Clock) HandleOption {
	return func(h *Handle) { h.clock = c }
}

// WithObserver adds a transition observer. Observers run in order.
func WithObserver(o Observer) HandleOption {
	return func(h *Handle) { h.observers = append(h.observers, o) }
}

func WithLogger(l *slog.Logger) HandleOption {
	return func(h *Handle) { h.logger = l }
}

// WithReadSize sets the maximum chunk size returned by Next.
func WithReadSize(n int) HandleOption {
	return func(h *Handle) {
		if n > 0 {
			h.readSize = n
		}
	}
}

// Handle is the logical connection to one producer. It is driven by a
// single goroutine calling Next; State may be read from anywhere.
type Handle struct {
	opener        Opener
	reconnectable bool
	policy        Policy
	clock         clock.Clock
	observers     []Observer
	logger        *slog.Logger
	readSize      int

	state      atomic.Int32
	conn       io.ReadCloser
	stopConn   func() bool
	attempt    int
	delivered  bool
	pendingErr error
	closedErr  error
	buf        []byte
}

// NewHandle returns a Handle in the Connecting state. Nothing is opened
// until the first call to Next.
func NewHandle(opener Opener, opts ...HandleOption) *Handle {
	h := &Handle{
		opener:        opener,
		reconnectable: Reconnectable(opener),
		policy:        DefaultPolicy(),
		clock:         clock.Real(),
		logger:        slog.Default(),
		readSize:      defaultReadSize,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.With("source", opener.Identity(), "kind", opener.Kind().String())
	h.buf = make([]byte, h.readSize)
	return h
}

func (h *Handle) Identity() string { return h.opener.Identity() }

func (h *Handle) Kind() Kind { return h.opener.Kind() }

func (h *Handle) State() State { return State(h.state.Load()) }

// Next blocks until the source yields data, loses its connection or
// ends. A clean end returns io.EOF; an unrecoverable failure returns a
// *TerminalError. Cancelling ctx interrupts reads and backoff waits;
// the connection opened during a Next call is closed when that call's
// ctx is cancelled.
func (h *Handle) Next(ctx context.Context) (Event, error) {
	for {
		switch h.State() {
		case StateConnecting:
			if err := h.connect(ctx); err != nil {
				return Event{}, err
			}
		case StateConnected:
			ev, ok, err := h.read(ctx)
			if err != nil || ok {
				return ev, err
			}
		case StateDisconnected:
			if err := h.reconnect(ctx); err != nil {
				return Event{}, err
			}
		case StateClosed:
			return Event{}, h.closedErr
		}
	}
}

// Close tears down the current connection and moves to Closed.
func (h *Handle) Close() error {
	h.dropConn()
	if h.State() != StateClosed {
		h.closedErr = ErrClosed
		h.transition(StateClosed, nil)
	}
	return nil
}

func (h *Handle) connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rc, err := h.opener.Open(ctx)
	if err == nil {
		h.conn = rc
		h.stopConn = context.AfterFunc(ctx, func() { rc.Close() })
		h.delivered = false
		h.transition(StateConnected, nil)
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	h.attempt++
	if IsPermanent(err) {
		h.terminate(&TerminalError{Identity: h.Identity(), Err: err})
		return nil
	}
	if h.policy.Exhausted(h.attempt) {
		h.terminate(&TerminalError{Identity: h.Identity(), Attempts: h.attempt, Err: err})
		return nil
	}
	delay := h.policy.Delay(h.attempt)
	h.logger.Warn("source open failed, retrying", "attempt", h.attempt, "delay", delay, "error", err)
	return h.wait(ctx, delay)
}

func (h *Handle) read(ctx context.Context) (Event, bool, error) {
	if err := h.pendingErr; err != nil {
		h.pendingErr = nil
		return h.lost(ctx, err)
	}
	n, err := h.conn.Read(h.buf)
	if n > 0 {
		data := make([]byte, n)
		copy(data, h.buf[:n])
		h.delivered = true
		h.attempt = 0
		h.pendingErr = err
		return Event{Kind: EventData, Data: data}, true, nil
	}
	if err == nil {
		return Event{}, false, nil
	}
	return h.lost(ctx, err)
}

func (h *Handle) lost(ctx context.Context, err error) (Event, bool, error) {
	h.dropConn()
	if ctx.Err() != nil {
		return Event{}, false, ctx.Err()
	}
	if !h.reconnectable {
		if errors.Is(err, io.EOF) {
			h.closedErr = io.EOF
			h.transition(StateClosed, nil)
		} else {
			h.terminate(&TerminalError{Identity: h.Identity(), Err: fmt.Errorf("read: %w", err)})
		}
		return Event{}, false, nil
	}
	if !h.delivered {
		h.attempt++
	}
	h.transition(StateDisconnected, err)
	return Event{Kind: EventDisconnected, Cause: err}, true, nil
}

func (h *Handle) reconnect(ctx context.Context) error {
	if h.attempt > 0 {
		if h.policy.Exhausted(h.attempt) {
			h.terminate(&TerminalError{Identity: h.Identity(), Attempts: h.attempt, Err: errors.New("connection keeps dropping without data")})
			return nil
		}
		if err := h.wait(ctx, h.policy.Delay(h.attempt)); err != nil {
			return err
		}
	}
	h.transition(StateConnecting, nil)
	return nil
}

func (h *Handle) wait(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-h.clock.After(d):
		return nil
	}
}

func (h *Handle) terminate(err *TerminalError) {
	h.closedErr = err
	h.transition(StateClosed, err)
}

func (h *Handle) dropConn() {
	if h.stopConn != nil {
		h.stopConn()
		h.stopConn = nil
	}
	if h.conn != nil {
		h.conn.Close()
		h.conn = nil
	}
	h.pendingErr = nil
}

func (h *Handle) transition(to State, cause error) {
	from := State(h.state.Swap(int32(to)))
	tr := Transition{
		Identity: h.Identity(),
		From:     from,
		To:       to,
		Cause:    cause,
		Attempt:  h.attempt,
		At:       h.clock.Now(),
	}
	switch {
	case to == StateDisconnected:
		h.logger.Warn("source disconnected", "error", cause)
	case to == StateClosed && cause != nil:
		h.logger.Error("source closed", "error", cause)
	case to == StateConnected:
		h.logger.Info("source connected")
	default:
		h.logger.Debug("source state", "from", from.String(), "to", to.String())
	}
	for _, o := range h.observers {
		o(tr)
	}
}
