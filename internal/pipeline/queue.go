package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/coffersTech/nanocat/internal/metrics"
)

// DefaultQueueSize is used when a sink is registered with a size < 1.
const DefaultQueueSize = 1024

// SinkError wraps a failure returned by a sink.
type SinkError struct {
	Sink string
	Op   string
	Err  error
}

func (e *SinkError) Error() string { return fmt.Sprintf("sink %s: %s: %v", e.Sink, e.Op, e.Err) }

func (e *SinkError) Unwrap() error { return e.Err }

// queue feeds one sink from its own goroutine.
type queue struct {
	sink    Sink
	policy  Policy
	ch      chan Entry
	done    chan struct{}
	failed  chan struct{}
	err     error
	metrics *metrics.Metrics
	logger  *slog.Logger
	warn    rate.Sometimes

	delivered atomic.Uint64
	dropped   atomic.Uint64
	stalls    atomic.Uint64
}

func newQueue(sink Sink, size int, m *metrics.Metrics, logger *slog.Logger) *queue {
	if size < 1 {
		size = DefaultQueueSize
	}
	return &queue{
		sink:    sink,
		policy:  sink.Policy(),
		ch:      make(chan Entry, size),
		done:    make(chan struct{}),
		failed:  make(chan struct{}),
		metrics: m,
		logger:  logger.With("sink", sink.Name()),
		warn:    rate.Sometimes{First: 1, Interval: 5 * time.Second},
	}
}

// push hands e to the queue according to the sink's policy. It fails
// only when a blocking push is aborted by ctx or by the sink failing.
func (q *queue) push(ctx context.Context, e Entry) error {
	if q.policy == DropOldest {
		q.pushDropping(e)
		return nil
	}
	select {
	case q.ch <- e:
		return nil
	default:
	}
	q.stalls.Add(1)
	q.metrics.Stalled(q.sink.Name())
	select {
	case q.ch <- e:
		return nil
	case <-q.failed:
		return q.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *queue) pushDropping(e Entry) {
	for {
		select {
		case q.ch <- e:
			return
		default:
		}
		select {
		case <-q.ch:
			n := q.dropped.Add(1)
			q.metrics.Dropped(q.sink.Name())
			q.warn.Do(func() {
				q.logger.Warn("sink queue full, dropping oldest entries", "dropped", n)
			})
		default:
		}
	}
}

// run writes queued entries until the queue is closed. After a write
// error it keeps draining without writing so producers never block.
func (q *queue) run(fatal chan<- error) {
	defer close(q.done)
	for e := range q.ch {
		if q.err != nil {
			continue
		}
		if err := q.sink.Write(e); err != nil {
			q.err = &SinkError{Sink: q.sink.Name(), Op: "write", Err: err}
			close(q.failed)
			fatal <- q.err
			continue
		}
		q.delivered.Add(1)
		q.metrics.Delivered(q.sink.Name())
		q.metrics.QueueDepth(q.sink.Name(), len(q.ch))
	}
}

func (q *queue) stats() SinkStats {
	return SinkStats{
		Name:      q.sink.Name(),
		Delivered: q.delivered.Load(),
		Dropped:   q.dropped.Load(),
		Stalls:    q.stalls.Load(),
	}
}
