// Package filter decides per record whether it is kept and whether it
// is highlighted.
//
// Expressions are compiled once, from filter text or from rule groups,
// into an immutable tree of And, Or, Not, Match and LevelCmp nodes.
// Evaluation never allocates or mutates, so an Expression is safe to
// share between goroutines.
package filter

import "github.com/coffersTech/nanocat/internal/model"

// Expression is a compiled predicate. The zero value matches everything.
type Expression struct {
	root Node
}

// NewExpression wraps a tree. A nil root matches everything.
func NewExpression(root Node) *Expression {
	return &Expression{root: root}
}

// Compile parses filter text.
func Compile(text string) (*Expression, error) {
	root, err := Parse(text)
	if err != nil {
		return nil, err
	}
	return &Expression{root: root}, nil
}

// MustCompile is like Compile but panics on error.
func MustCompile(text string) *Expression {
	e, err := Compile(text)
	if err != nil {
		panic(err)
	}
	return e
}

// Empty reports whether the expression has no rules.
func (e *Expression) Empty() bool {
	return e == nil || e.root == nil
}

// Root returns the compiled tree, nil when empty.
func (e *Expression) Root() Node {
	if e == nil {
		return nil
	}
	return e.root
}

// Match reports whether r satisfies the expression.
func (e *Expression) Match(r *model.Record) bool {
	if e.Empty() {
		return true
	}
	return Eval(e.root, r)
}

func (e *Expression) String() string {
	if e.Empty() {
		return "<all>"
	}
	return e.root.String()
}

// allOf joins nodes with AND, skipping nils.
func allOf(nodes ...Node) Node {
	var out Node
	for _, n := range nodes {
		switch {
		case n == nil:
		case out == nil:
			out = n
		default:
			out = &And{Left: out, Right: n}
		}
	}
	return out
}

// anyOf joins nodes with OR, skipping nils.
func anyOf(nodes ...Node) Node {
	var out Node
	for _, n := range nodes {
		switch {
		case n == nil:
		case out == nil:
			out = n
		default:
			out = &Or{Left: out, Right: n}
		}
	}
	return out
}
