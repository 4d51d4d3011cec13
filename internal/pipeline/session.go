package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/coffersTech/nanocat/internal/filter"
	"github.com/coffersTech/nanocat/internal/parser"
	"github.com/coffersTech/nanocat/internal/source"
)

// Source is the part of *source.Handle the dispatcher drives.
type Source interface {
	Identity() string
	Next(ctx context.Context) (source.Event, error)
	Close() error
}

type registration struct {
	sink Sink
	size int
}

// Session bundles everything one run needs. It replaces process-wide
// state: the dispatcher receives it explicitly.
type Session struct {
	ID      string
	Started time.Time

	source Source
	parser *parser.Parser
	engine *filter.Engine
	sinks  []registration
	head   int
}

// SessionOption customizes a Session.
type SessionOption func(*Session)

// WithHead stops the session after n forwarded records. Zero means
// unlimited.
func WithHead(n int) SessionOption {
	return func(s *Session) {
		if n > 0 {
			s.head = n
		}
	}
}

// WithID overrides the generated session id.
func WithID(id string) SessionOption {
	return func(s *Session) { s.ID = id }
}

// NewSession returns a Session with a fresh id. A nil engine keeps
// every record.
func NewSession(src Source, p *parser.Parser, engine *filter.Engine, opts ...SessionOption) *Session {
	s := &Session{
		ID:      uuid.NewString(),
		Started: time.Now(),
		source:  src,
		parser:  p,
		engine:  engine,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register adds a sink with its own queue of queueSize entries. Sinks
// receive records in registration order.
func (s *Session) Register(sink Sink, queueSize int) {
	s.sinks = append(s.sinks, registration{sink: sink, size: queueSize})
}

// Sinks returns the registered sinks in order.
func (s *Session) Sinks() []Sink {
	out := make([]Sink, len(s.sinks))
	for i, r := range s.sinks {
		out[i] = r.sink
	}
	return out
}

func (s *Session) Source() Source { return s.source }

func (s *Session) Head() int { return s.head }
