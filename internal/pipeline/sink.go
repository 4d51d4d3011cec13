// Package pipeline moves records from one source through the parser and
// filter engine into any number of sinks, each behind its own bounded
// queue.
package pipeline

import (
	"fmt"
	"strings"

	"github.com/coffersTech/nanocat/internal/model"
)

// Policy decides what happens when a sink's queue is full.
type Policy int

const (
	// Block makes the dispatcher wait, which in turn suspends reading.
	Block Policy = iota
	// DropOldest evicts the oldest queued entry to make room.
	DropOldest
)

func (p Policy) String() string {
	if p == DropOldest {
		return "drop-oldest"
	}
	return "block"
}

// ParsePolicy accepts "block" and "drop-oldest".
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(s) {
	case "", "block":
		return Block, nil
	case "drop-oldest", "drop_oldest", "drop":
		return DropOldest, nil
	}
	return Block, fmt.Errorf("unknown backpressure policy %q", s)
}

// Entry is what a sink receives.
type Entry struct {
	Record      model.Record
	Highlighted bool
}

// Sink consumes entries. Write and Flush are called from a single
// goroutine. A Write error stops the session. Sinks that also implement
// io.Closer are closed after the final Flush.
type Sink interface {
	Name() string
	Policy() Policy
	Write(Entry) error
	Flush() error
}
