// Package parser turns raw byte chunks into Records.
//
// A Parser owns the partial-line buffer of one source. Feeding it chunks
// split at arbitrary offsets yields the same records as feeding the
// stream in one piece. Lines that do not match the configured format
// degrade to unparsed records; parsing never fails.
package parser

import (
	"fmt"
	"strings"

	"github.com/coffersTech/nanocat/internal/model"
)

// Continuation decides which physical lines extend the previous record.
type Continuation int

const (
	// ContinueNever yields one record per physical line.
	ContinueNever Continuation = iota
	// ContinueIndented appends lines starting with a space or tab.
	ContinueIndented
	// ContinueUnmatched appends every line the format rejects.
	ContinueUnmatched
)

func (c Continuation) String() string {
	switch c {
	case ContinueIndented:
		return "indented"
	case ContinueUnmatched:
		return "unmatched"
	default:
		return "never"
	}
}

// ParseContinuation maps a policy name to a Continuation.
func ParseContinuation(s string) (Continuation, error) {
	switch strings.ToLower(s) {
	case "", "never":
		return ContinueNever, nil
	case "indented":
		return ContinueIndented, nil
	case "unmatched":
		return ContinueUnmatched, nil
	}
	return ContinueNever, fmt.Errorf("invalid continuation policy %q (valid: never, indented, unmatched)", s)
}

// Option configures a Parser.
type Option func(*Parser)

// WithContinuation sets the multi-line policy.
func WithContinuation(c Continuation) Option {
	return func(p *Parser) { p.cont = c }
}

// WithMaxLineLength bounds the partial-line buffer.
func WithMaxLineLength(n int) Option {
	return func(p *Parser) { p.lines = NewLineSplitter(n) }
}

// Parser is stateful across chunks. It is not safe for concurrent use.
type Parser struct {
	format  Format
	cont    Continuation
	lines   *LineSplitter
	pending model.Record
	held    bool
	out     []model.Record
}

func New(format Format, opts ...Option) *Parser {
	p := &Parser{
		format: format,
		lines:  NewLineSplitter(DefaultMaxLineLength),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Format returns the configured line format.
func (p *Parser) Format() Format { return p.format }

// Continuation returns the configured multi-line policy.
func (p *Parser) Continuation() Continuation { return p.cont }

// Feed appends the records completed by chunk to dst. With a
// continuation policy the last record may be held back until the next
// header line, Drain or Flush.
func (p *Parser) Feed(dst []model.Record, chunk []byte) []model.Record {
	p.out = dst
	p.lines.Split(chunk, p.line)
	dst, p.out = p.out, nil
	return dst
}

// Drain appends the held record, if any.
func (p *Parser) Drain(dst []model.Record) []model.Record {
	if p.held {
		dst = append(dst, p.pending)
		p.pending, p.held = model.Record{}, false
	}
	return dst
}

// Flush ends the current stream: the buffered partial line is parsed as
// if terminated and the held record is released. The parser is empty
// afterwards.
func (p *Parser) Flush(dst []model.Record) []model.Record {
	p.out = dst
	p.lines.Flush(p.line)
	dst, p.out = p.out, nil
	return p.Drain(dst)
}

// Reset discards buffered bytes and the held record.
func (p *Parser) Reset() {
	p.lines.Reset()
	p.pending, p.held = model.Record{}, false
}

// Buffered returns the number of bytes waiting for a line terminator.
func (p *Parser) Buffered() int {
	return p.lines.Buffered()
}

// Holding reports whether a record is held for possible continuation.
func (p *Parser) Holding() bool {
	return p.held
}

func (p *Parser) line(line string) {
	if p.cont == ContinueIndented && p.held && line != "" && isSpace(line[0]) {
		p.extend(line)
		return
	}
	rec, ok := p.format.Parse(line)
	if !ok {
		if p.cont == ContinueUnmatched && p.held {
			p.extend(line)
			return
		}
		rec = model.Unparsed(line)
	}
	p.out = p.Drain(p.out)
	if p.cont == ContinueNever {
		p.out = append(p.out, rec)
		return
	}
	p.pending, p.held = rec, true
}

func (p *Parser) extend(line string) {
	p.pending.Message += "\n" + line
	p.pending.Raw += "\n" + line
}
