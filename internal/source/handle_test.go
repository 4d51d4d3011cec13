package source

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coffersTech/nanocat/internal/clock"
)

type script struct {
	openErr error
	chunks  []string
	// end is returned once chunks are consumed; nil blocks until Close.
	end error
}

type fakeOpener struct {
	kind    Kind
	mu      sync.Mutex
	scripts []script
	opens   int
}

func (f *fakeOpener) Kind() Kind       { return f.kind }
func (f *fakeOpener) Identity() string { return "fake" }

func (f *fakeOpener) Open(context.Context) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.opens
	f.opens++
	if i >= len(f.scripts) {
		return newFakeConn(nil, nil), nil
	}
	s := f.scripts[i]
	if s.openErr != nil {
		return nil, s.openErr
	}
	return newFakeConn(s.chunks, s.end), nil
}

type fakeConn struct {
	chunks []string
	end    error
	closed chan struct{}
	once   sync.Once
}

func newFakeConn(chunks []string, end error) *fakeConn {
	return &fakeConn{chunks: chunks, end: end, closed: make(chan struct{})}
}

func (c *fakeConn) Read(p []byte) (int, error) {
	if len(c.chunks) > 0 {
		n := copy(p, c.chunks[0])
		c.chunks = c.chunks[1:]
		return n, nil
	}
	if c.end != nil {
		return 0, c.end
	}
	<-c.closed
	return 0, os.ErrClosed
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

type recorder struct {
	mu  sync.Mutex
	trs []Transition
}

func (r *recorder) observe(tr Transition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trs = append(r.trs, tr)
}

func (r *recorder) states() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]State, 0, len(r.trs))
	for _, tr := range r.trs {
		out = append(out, tr.To)
	}
	return out
}

var epoch = time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)

func noJitter() Policy {
	return Policy{InitialDelay: time.Second, MaxDelay: 8 * time.Second, Multiplier: 2}
}

func TestHandleReconnectSequence(t *testing.T) {
	for _, kind := range []Kind{KindProcess, KindSerial, KindCAN, KindTCP} {
		t.Run(kind.String(), func(t *testing.T) {
			op := &fakeOpener{kind: kind, scripts: []script{
				{chunks: []string{"I/a: x\nI/b: par"}, end: errors.New("connection reset")},
				{chunks: []string{"I/c: y\n"}},
			}}
			rec := &recorder{}
			h := NewHandle(op, WithObserver(rec.observe), WithPolicy(noJitter()))
			ctx := context.Background()

			ev, err := h.Next(ctx)
			require.NoError(t, err)
			assert.Equal(t, EventData, ev.Kind)
			assert.Equal(t, "I/a: x\nI/b: par", string(ev.Data))

			ev, err = h.Next(ctx)
			require.NoError(t, err)
			assert.Equal(t, EventDisconnected, ev.Kind)
			assert.EqualError(t, ev.Cause, "connection reset")
			assert.Equal(t, StateDisconnected, h.State())

			ev, err = h.Next(ctx)
			require.NoError(t, err)
			assert.Equal(t, "I/c: y\n", string(ev.Data))

			assert.Equal(t, []State{StateConnected, StateDisconnected, StateConnecting, StateConnected}, rec.states())
			require.NoError(t, h.Close())
		})
	}
}

func TestHandleFileEOFClosesCleanly(t *testing.T) {
	op := &fakeOpener{kind: KindFile, scripts: []script{{chunks: []string{"last line\n"}, end: io.EOF}}}
	rec := &recorder{}
	h := NewHandle(op, WithObserver(rec.observe))

	ev, err := h.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "last line\n", string(ev.Data))

	_, err = h.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, StateClosed, h.State())

	require.Len(t, rec.trs, 2)
	last := rec.trs[1]
	assert.Equal(t, StateConnected, last.From)
	assert.Equal(t, StateClosed, last.To)
	assert.NoError(t, last.Cause)

	_, err = h.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestHandleFileReadErrorIsTerminal(t *testing.T) {
	op := &fakeOpener{kind: KindFile, scripts: []script{{end: errors.New("disk on fire")}}}
	h := NewHandle(op)
	_, err := h.Next(context.Background())
	var te *TerminalError
	require.ErrorAs(t, err, &te)
	assert.ErrorContains(t, err, "disk on fire")
}

func TestHandleBackoffBetweenFailedOpens(t *testing.T) {
	fake := clock.Fake(epoch)
	boom := errors.New("no such device")
	op := &fakeOpener{kind: KindSerial, scripts: []script{
		{openErr: boom},
		{openErr: boom},
		{chunks: []string{"ok\n"}},
	}}
	h := NewHandle(op, WithClock(fake), WithPolicy(noJitter()))

	type result struct {
		ev  Event
		err error
	}
	done := make(chan result, 1)
	go func() {
		ev, err := h.Next(context.Background())
		done <- result{ev, err}
	}()

	fake.WaitForTimers(1)
	fake.Advance(time.Second)
	fake.WaitForTimers(1)
	fake.Advance(2 * time.Second)

	select {
	case r := <-done:
		require.NoError(t, r.err)
		assert.Equal(t, "ok\n", string(r.ev.Data))
	case <-time.After(5 * time.Second):
		t.Fatal("Next did not return")
	}
	assert.Equal(t, 3, op.opens)
}

func TestHandleRetryBudgetExhausted(t *testing.T) {
	fake := clock.Fake(epoch)
	boom := errors.New("refused")
	op := &fakeOpener{kind: KindTCP, scripts: []script{{openErr: boom}, {openErr: boom}}}
	p := noJitter()
	p.MaxAttempts = 2
	rec := &recorder{}
	h := NewHandle(op, WithClock(fake), WithPolicy(p), WithObserver(rec.observe))

	errc := make(chan error, 1)
	go func() {
		_, err := h.Next(context.Background())
		errc <- err
	}()
	fake.WaitForTimers(1)
	fake.Advance(time.Second)

	err := <-errc
	var te *TerminalError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, 2, te.Attempts)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []State{StateClosed}, rec.states())
}

func TestHandlePermanentErrorSkipsRetry(t *testing.T) {
	op := &fakeOpener{kind: KindCAN, scripts: []script{{openErr: Permanent(ErrUnsupported)}}}
	h := NewHandle(op)
	_, err := h.Next(context.Background())
	assert.ErrorIs(t, err, ErrUnsupported)
	assert.Equal(t, 1, op.opens)
	assert.Equal(t, StateClosed, h.State())
}

func TestHandleBackoffCancellable(t *testing.T) {
	fake := clock.Fake(epoch)
	op := &fakeOpener{kind: KindTCP, scripts: []script{{openErr: errors.New("refused")}}}
	h := NewHandle(op, WithClock(fake), WithPolicy(Policy{InitialDelay: time.Hour, MaxDelay: time.Hour}))

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := h.Next(ctx)
		errc <- err
	}()
	fake.WaitForTimers(1)
	cancel()

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("backoff wait ignored cancellation")
	}
}

func TestHandleCancelInterruptsRead(t *testing.T) {
	op := &fakeOpener{kind: KindProcess}
	h := NewHandle(op)
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := h.Next(ctx)
		errc <- err
	}()
	require.Eventually(t, func() bool { return h.State() == StateConnected }, 5*time.Second, time.Millisecond)
	cancel()
	select {
	case err := <-errc:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("read not interrupted")
	}
	require.NoError(t, h.Close())
	_, err := h.Next(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestHandleEmptyConnectionsBackOff(t *testing.T) {
	fake := clock.Fake(epoch)
	op := &fakeOpener{kind: KindProcess, scripts: []script{
		{end: io.EOF},
		{chunks: []string{"alive\n"}},
	}}
	h := NewHandle(op, WithClock(fake), WithPolicy(noJitter()))

	ev, err := h.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, EventDisconnected, ev.Kind)

	done := make(chan Event, 1)
	go func() {
		ev, _ := h.Next(context.Background())
		done <- ev
	}()
	fake.WaitForTimers(1)
	assert.Equal(t, 1, op.opens)
	fake.Advance(time.Second)
	select {
	case ev := <-done:
		assert.Equal(t, "alive\n", string(ev.Data))
	case <-time.After(5 * time.Second):
		t.Fatal("no reconnect")
	}
}
