package pipeline

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/coffersTech/nanocat/internal/source"
)

// fakeSource replays steps pushed by the test. Next blocks until a step
// is available or ctx ends.
type fakeSource struct {
	steps  chan readResult
	mu     sync.Mutex
	closed bool
}

func newFakeSource(buffer int) *fakeSource {
	return &fakeSource{steps: make(chan readResult, buffer)}
}

func (f *fakeSource) Identity() string { return "fake://test" }

func (f *fakeSource) Next(ctx context.Context) (source.Event, error) {
	select {
	case <-ctx.Done():
		return source.Event{}, ctx.Err()
	case s := <-f.steps:
		return s.ev, s.err
	}
}

func (f *fakeSource) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeSource) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeSource) data(s string) {
	f.steps <- readResult{ev: source.Event{Kind: source.EventData, Data: []byte(s)}}
}

func (f *fakeSource) disconnect() {
	f.steps <- readResult{ev: source.Event{Kind: source.EventDisconnected, Cause: errors.New("reset")}}
}

func (f *fakeSource) eof() { f.steps <- readResult{err: io.EOF} }

func (f *fakeSource) fail(err error) { f.steps <- readResult{err: err} }

// memSink collects entries. A non-nil gate makes every Write wait for a
// receive on it.
type memSink struct {
	name    string
	policy  Policy
	gate    chan struct{}
	failOn  int
	err     error
	mu      sync.Mutex
	entries []Entry
	flushes int
	closed  bool
	written chan struct{}
}

func newMemSink(name string, policy Policy) *memSink {
	return &memSink{name: name, policy: policy, written: make(chan struct{}, 1<<16)}
}

func (m *memSink) Name() string   { return m.name }
func (m *memSink) Policy() Policy { return m.policy }

func (m *memSink) Write(e Entry) error {
	if m.gate != nil {
		<-m.gate
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil && len(m.entries)+1 >= m.failOn {
		return m.err
	}
	m.entries = append(m.entries, e)
	m.written <- struct{}{}
	return nil
}

func (m *memSink) Flush() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flushes++
	return nil
}

func (m *memSink) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *memSink) messages() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.entries))
	for i, e := range m.entries {
		out[i] = e.Record.Message
	}
	return out
}
