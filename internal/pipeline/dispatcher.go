package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/coffersTech/nanocat/internal/clock"
	"github.com/coffersTech/nanocat/internal/filter"
	"github.com/coffersTech/nanocat/internal/metrics"
	"github.com/coffersTech/nanocat/internal/model"
	"github.com/coffersTech/nanocat/internal/source"
)

const (
	DefaultIdleFlush       = 250 * time.Millisecond
	DefaultShutdownTimeout = 2 * time.Second
)

// Reason tells why a session ended.
type Reason int

const (
	ReasonSourceEnded Reason = iota
	ReasonSourceFailed
	ReasonCancelled
	ReasonHead
	ReasonSinkFailed
)

func (r Reason) String() string {
	switch r {
	case ReasonSourceEnded:
		return "source ended"
	case ReasonSourceFailed:
		return "source failed"
	case ReasonCancelled:
		return "cancelled"
	case ReasonHead:
		return "head limit reached"
	case ReasonSinkFailed:
		return "sink failed"
	}
	return "unknown"
}

// SinkStats counts what happened on one sink queue.
type SinkStats struct {
	Name      string
	Delivered uint64
	Dropped   uint64
	Stalls    uint64
}

// Summary describes a finished session.
type Summary struct {
	Session     string
	Ingested    uint64
	Kept        uint64
	Highlighted uint64
	Filtered    uint64
	Reconnects  int
	Sinks       []SinkStats
	Reason      Reason
	Cause       error
	Elapsed     time.Duration
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

func WithClock(c clock.Clock) Option {
	return func(d *Dispatcher) { d.clock = c }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithIdleFlush sets how long a record held for continuation waits for
// more data before it is released. Zero disables the timer.
func WithIdleFlush(t time.Duration) Option {
	return func(d *Dispatcher) { d.idleFlush = t }
}

// WithShutdownTimeout bounds the wait for the reader goroutine after
// reading was asked to stop. Some inputs, stdin in particular, cannot
// be interrupted.
func WithShutdownTimeout(t time.Duration) Option {
	return func(d *Dispatcher) { d.shutdownTimeout = t }
}

// Dispatcher runs sessions.
type Dispatcher struct {
	logger          *slog.Logger
	clock           clock.Clock
	metrics         *metrics.Metrics
	idleFlush       time.Duration
	shutdownTimeout time.Duration
}

func NewDispatcher(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		logger:          slog.Default(),
		clock:           clock.Real(),
		idleFlush:       DefaultIdleFlush,
		shutdownTimeout: DefaultShutdownTimeout,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

var errHeadReached = errors.New("head limit reached")

type readResult struct {
	ev  source.Event
	err error
}

// run is the state of one Run call.
type run struct {
	d      *Dispatcher
	s      *Session
	logger *slog.Logger
	queues []*queue
	sum    Summary
	recs   []model.Record
	sent   int

	// In flight when a blocking push was interrupted: held still has to
	// reach queues[heldAt:], rest has not been filtered yet.
	held   *Entry
	heldAt int
	rest   []model.Record
}

// Run drives s until its source ends, ctx is cancelled, the head limit
// is reached or a sink fails. Sinks are always drained, flushed and
// closed before Run returns. Cancellation and a clean end of input are
// not errors; the Summary carries the reason either way.
func (d *Dispatcher) Run(ctx context.Context, s *Session) (Summary, error) {
	r := &run{
		d:      d,
		s:      s,
		logger: d.logger.With("session", s.ID, "source", s.source.Identity()),
		sum:    Summary{Session: s.ID},
	}
	start := d.clock.Now()
	fatal := make(chan error, len(s.sinks))
	for _, reg := range s.sinks {
		q := newQueue(reg.sink, reg.size, d.metrics, r.logger)
		r.queues = append(r.queues, q)
		go q.run(fatal)
	}

	readCtx, stopRead := context.WithCancel(ctx)
	defer stopRead()
	events := make(chan readResult)
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		for {
			ev, err := s.source.Next(readCtx)
			select {
			case events <- readResult{ev: ev, err: err}:
			case <-readCtx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	r.logger.Debug("session started", "sinks", len(r.queues), "head", s.head)
	r.loop(ctx, events, fatal)
	stopRead()

	if r.sum.Reason != ReasonHead && r.sum.Reason != ReasonSinkFailed {
		if err := r.drainInFlight(); err != nil && !errors.Is(err, errHeadReached) {
			r.fail(err)
		}
	}
	finishErr := r.finish()
	select {
	case err := <-fatal:
		if r.sum.Reason != ReasonSinkFailed {
			r.fail(err)
		}
	default:
	}

	select {
	case <-readerDone:
		if err := s.source.Close(); err != nil {
			r.logger.Warn("closing source", "error", err)
		}
	case <-d.clock.After(d.shutdownTimeout):
		r.logger.Warn("source did not stop in time, abandoning reader")
	}

	r.sum.Elapsed = d.clock.Now().Sub(start)
	for _, q := range r.queues {
		r.sum.Sinks = append(r.sum.Sinks, q.stats())
	}
	r.logger.Info("session ended",
		"reason", r.sum.Reason.String(),
		"ingested", r.sum.Ingested,
		"kept", r.sum.Kept,
		"filtered", r.sum.Filtered,
		"reconnects", r.sum.Reconnects,
	)

	var err error
	if r.sum.Reason == ReasonSourceFailed || r.sum.Reason == ReasonSinkFailed {
		err = r.sum.Cause
	}
	return r.sum, errors.Join(err, finishErr)
}

func (r *run) loop(ctx context.Context, events <-chan readResult, fatal <-chan error) {
	var idle <-chan time.Time
	for {
		if idle == nil && r.d.idleFlush > 0 && r.s.parser.Holding() {
			idle = r.d.clock.After(r.d.idleFlush)
		}
		select {
		case <-ctx.Done():
			r.end(ReasonCancelled, ctx.Err())
			return

		case err := <-fatal:
			r.fail(err)
			return

		case <-idle:
			idle = nil
			r.recs = r.s.parser.Drain(r.recs[:0])

		case res := <-events:
			if res.err != nil {
				switch {
				case errors.Is(res.err, io.EOF):
					r.end(ReasonSourceEnded, nil)
				case ctx.Err() != nil:
					r.end(ReasonCancelled, ctx.Err())
				default:
					r.end(ReasonSourceFailed, res.err)
				}
				return
			}
			switch res.ev.Kind {
			case source.EventData:
				idle = nil
				r.d.metrics.BytesRead(len(res.ev.Data))
				r.recs = r.s.parser.Feed(r.recs[:0], res.ev.Data)
			case source.EventDisconnected:
				r.sum.Reconnects++
				r.recs = r.s.parser.Flush(r.recs[:0])
			}
		}

		if err := r.dispatch(ctx, r.recs); err != nil {
			switch {
			case errors.Is(err, errHeadReached):
				r.end(ReasonHead, nil)
			case ctx.Err() != nil:
				r.end(ReasonCancelled, ctx.Err())
			default:
				r.fail(err)
			}
			return
		}
	}
}

// dispatch filters recs and pushes the kept ones to every queue. When
// ctx interrupts a push, the unsent part is kept for drainInFlight.
func (r *run) dispatch(ctx context.Context, recs []model.Record) error {
	for i := range recs {
		r.sum.Ingested++
		r.d.metrics.Ingested(1)
		decision := r.s.engine.Decide(&recs[i])
		if !decision.Kept() {
			r.sum.Filtered++
			r.d.metrics.Filtered()
			continue
		}
		e := Entry{Record: recs[i], Highlighted: decision == filter.KeepHighlighted}
		r.sum.Kept++
		if e.Highlighted {
			r.sum.Highlighted++
		}
		r.d.metrics.Kept(e.Highlighted)
		if err := r.deliver(ctx, e, 0); err != nil {
			if r.held != nil {
				r.rest = append([]model.Record(nil), recs[i+1:]...)
			}
			return err
		}
	}
	return nil
}

// deliver pushes e to queues[from:] and applies the head limit.
func (r *run) deliver(ctx context.Context, e Entry, from int) error {
	for i := from; i < len(r.queues); i++ {
		if err := r.queues[i].push(ctx, e); err != nil {
			if ctx.Err() != nil {
				r.held, r.heldAt = &e, i
			}
			return err
		}
	}
	r.sent++
	if r.s.head > 0 && r.sent >= r.s.head {
		return errHeadReached
	}
	return nil
}

// drainInFlight finishes what shutdown interrupted: the held entry, the
// records parsed with it, then whatever the parser still buffers.
func (r *run) drainInFlight() error {
	ctx := context.Background()
	if r.held != nil {
		e, from := *r.held, r.heldAt
		r.held = nil
		if err := r.deliver(ctx, e, from); err != nil {
			return err
		}
	}
	rest := r.rest
	r.rest = nil
	if err := r.dispatch(ctx, rest); err != nil {
		return err
	}
	r.recs = r.s.parser.Flush(r.recs[:0])
	return r.dispatch(ctx, r.recs)
}

func (r *run) end(reason Reason, cause error) {
	r.sum.Reason = reason
	r.sum.Cause = cause
}

func (r *run) fail(err error) {
	r.end(ReasonSinkFailed, err)
	r.logger.Error("sink failed", "error", err)
}

// finish closes every queue, waits for it to drain, then flushes and
// closes the sinks in registration order.
func (r *run) finish() error {
	for _, q := range r.queues {
		close(q.ch)
	}
	var errs []error
	for _, q := range r.queues {
		<-q.done
		if q.err != nil {
			continue
		}
		if err := q.sink.Flush(); err != nil {
			errs = append(errs, &SinkError{Sink: q.sink.Name(), Op: "flush", Err: err})
		}
	}
	for _, q := range r.queues {
		if c, ok := q.sink.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, &SinkError{Sink: q.sink.Name(), Op: "close", Err: err})
			}
		}
	}
	return errors.Join(errs...)
}
