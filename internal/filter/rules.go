package filter

import (
	"fmt"
	"strings"

	"github.com/coffersTech/nanocat/internal/model"
)

// Rules are the flag and profile style filter settings. Pattern lists
// are regexes; a leading '!' negates one. Within a group the record
// passes when no positive pattern exists or one matches, and no negative
// pattern matches. Groups and Expr are ANDed.
type Rules struct {
	// Level is the minimum level. Unknown levels fail it.
	Level             string
	Tag               []string
	TagIgnoreCase     []string
	Message           []string
	MessageIgnoreCase []string
	PID               []string
	// Regex patterns apply to tag, process, thread and message.
	Regex []string
	Expr  string

	// Highlight patterns apply to tag and message; '!' inverts.
	Highlight     []string
	HighlightExpr string
}

// Merge appends the pattern lists of o to r. Scalar settings of r win
// when set.
func (r Rules) Merge(o Rules) Rules {
	out := r
	out.Tag = append(append([]string(nil), r.Tag...), o.Tag...)
	out.TagIgnoreCase = append(append([]string(nil), r.TagIgnoreCase...), o.TagIgnoreCase...)
	out.Message = append(append([]string(nil), r.Message...), o.Message...)
	out.MessageIgnoreCase = append(append([]string(nil), r.MessageIgnoreCase...), o.MessageIgnoreCase...)
	out.PID = append(append([]string(nil), r.PID...), o.PID...)
	out.Regex = append(append([]string(nil), r.Regex...), o.Regex...)
	out.Highlight = append(append([]string(nil), r.Highlight...), o.Highlight...)
	if out.Level == "" {
		out.Level = o.Level
	}
	if out.Expr == "" {
		out.Expr = o.Expr
	}
	if out.HighlightExpr == "" {
		out.HighlightExpr = o.HighlightExpr
	}
	return out
}

// Retention compiles the retention expression.
func (r Rules) Retention() (*Expression, error) {
	var level Node
	if r.Level != "" {
		lv, ok := model.ParseLevel(r.Level)
		if !ok {
			return nil, fmt.Errorf("invalid level %q", r.Level)
		}
		level = &LevelCmp{Op: CmpGE, Level: lv}
	}
	expr, err := Parse(r.Expr)
	if err != nil {
		return nil, err
	}
	groups := []struct {
		field    Field
		patterns []string
		fold     bool
	}{
		{FieldTag, r.Tag, false},
		{FieldTag, r.TagIgnoreCase, true},
		{FieldMessage, r.Message, false},
		{FieldMessage, r.MessageIgnoreCase, true},
		{FieldProcess, r.PID, false},
		{FieldAny, r.Regex, false},
	}
	nodes := []Node{level}
	for _, g := range groups {
		n, err := group(g.field, g.patterns, g.fold)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	nodes = append(nodes, expr)
	return NewExpression(allOf(nodes...)), nil
}

// Highlighting compiles the highlight expression: any positive pattern
// matching tag or message, or the highlight expression, marks a record;
// a negated pattern marks records it does not match.
func (r Rules) Highlighting() (*Expression, error) {
	var nodes []Node
	for _, p := range dedup(r.Highlight) {
		pattern, negate := strings.CutPrefix(p, "!")
		tag, err := NewMatch(FieldTag, OpRegex, pattern, false)
		if err != nil {
			return nil, err
		}
		msg, err := NewMatch(FieldMessage, OpRegex, pattern, false)
		if err != nil {
			return nil, err
		}
		var n Node = &Or{Left: tag, Right: msg}
		if negate {
			n = &Not{Expr: n}
		}
		nodes = append(nodes, n)
	}
	expr, err := Parse(r.HighlightExpr)
	if err != nil {
		return nil, err
	}
	return NewExpression(anyOf(append(nodes, expr)...)), nil
}

// Engine compiles both expressions.
func (r Rules) Engine() (*Engine, error) {
	retain, err := r.Retention()
	if err != nil {
		return nil, err
	}
	highlight, err := r.Highlighting()
	if err != nil {
		return nil, err
	}
	return NewEngine(retain, highlight), nil
}

func group(field Field, patterns []string, fold bool) (Node, error) {
	var positive, negative []Node
	for _, p := range dedup(patterns) {
		pattern, negate := strings.CutPrefix(p, "!")
		m, err := NewMatch(field, OpRegex, pattern, fold)
		if err != nil {
			return nil, err
		}
		if negate {
			negative = append(negative, &Not{Expr: m})
		} else {
			positive = append(positive, m)
		}
	}
	return allOf(anyOf(positive...), allOf(negative...)), nil
}

func dedup(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := in[:0:0]
	for _, s := range in {
		if _, ok := seen[s]; ok || s == "" {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
