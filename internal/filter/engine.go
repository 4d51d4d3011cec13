package filter

import "github.com/coffersTech/nanocat/internal/model"

// Decision is the outcome of filtering one record.
type Decision uint8

const (
	Drop Decision = iota
	Keep
	KeepHighlighted
)

func (d Decision) String() string {
	switch d {
	case Keep:
		return "keep"
	case KeepHighlighted:
		return "keep+highlight"
	}
	return "drop"
}

// Kept reports whether the record is forwarded.
func (d Decision) Kept() bool { return d != Drop }

// Engine pairs a retention expression with an independent highlight
// expression.
type Engine struct {
	retain    *Expression
	highlight *Expression
}

// NewEngine builds an Engine. Nil expressions are empty: everything is
// kept and nothing highlighted.
func NewEngine(retain, highlight *Expression) *Engine {
	return &Engine{retain: retain, highlight: highlight}
}

// Decide evaluates retention first; highlight only runs for kept
// records. An empty highlight expression highlights nothing.
func (e *Engine) Decide(r *model.Record) Decision {
	if e == nil {
		return Keep
	}
	if !e.retain.Match(r) {
		return Drop
	}
	if e.highlight.Empty() || !Eval(e.highlight.root, r) {
		return Keep
	}
	return KeepHighlighted
}

// Retain returns the retention expression.
func (e *Engine) Retain() *Expression { return e.retain }

// Highlight returns the highlight expression.
func (e *Engine) Highlight() *Expression { return e.highlight }
