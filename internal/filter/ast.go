package filter

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/coffersTech/nanocat/internal/model"
)

// Node is a compiled predicate. The set of implementations is closed.
type Node interface {
	node()
	String() string
}

// Field selects the record field a Match inspects.
type Field int

const (
	FieldTag Field = iota
	FieldMessage
	FieldProcess
	FieldThread
	// FieldAny matches when any of tag, process, thread or message does.
	FieldAny
)

var fieldNames = map[string]Field{
	"tag":     FieldTag,
	"message": FieldMessage,
	"msg":     FieldMessage,
	"process": FieldProcess,
	"pid":     FieldProcess,
	"thread":  FieldThread,
	"tid":     FieldThread,
	"any":     FieldAny,
	"text":    FieldAny,
}

func (f Field) String() string {
	switch f {
	case FieldTag:
		return "tag"
	case FieldMessage:
		return "message"
	case FieldProcess:
		return "process"
	case FieldThread:
		return "thread"
	}
	return "any"
}

// MatchOp is the comparison a Match applies.
type MatchOp int

const (
	OpEquals MatchOp = iota
	OpRegex
	OpContains
)

// CmpOp compares levels.
type CmpOp int

const (
	CmpEQ CmpOp = iota
	CmpNE
	CmpGE
	CmpGT
	CmpLE
	CmpLT
)

var cmpSymbols = [...]string{"=", "!=", ">=", ">", "<=", "<"}

func (c CmpOp) String() string { return cmpSymbols[c] }

type And struct{ Left, Right Node }

type Or struct{ Left, Right Node }

type Not struct{ Expr Node }

// Match tests one field against a literal or a precompiled regex.
type Match struct {
	Field Field
	Op    MatchOp
	Value string
	Fold  bool
	re    *regexp.Regexp
}

// LevelCmp compares the record level against a threshold. Unknown
// levels satisfy only an explicit unknown equality, or inequality with
// a known level.
type LevelCmp struct {
	Op    CmpOp
	Level model.Level
}

func (*And) node()      {}
func (*Or) node()       {}
func (*Not) node()      {}
func (*Match) node()    {}
func (*LevelCmp) node() {}

// NewMatch builds a Match, compiling regexes up front. Fold makes the
// comparison case-insensitive.
func NewMatch(field Field, op MatchOp, value string, fold bool) (*Match, error) {
	m := &Match{Field: field, Op: op, Value: value, Fold: fold}
	pattern := ""
	switch {
	case op == OpRegex:
		pattern = value
	case op == OpContains && fold:
		pattern = regexp.QuoteMeta(value)
	default:
		return m, nil
	}
	if fold {
		pattern = "(?i)" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid regex %q: %w", value, err)
	}
	m.re = re
	return m, nil
}

func (n *And) String() string { return "(" + n.Left.String() + " AND " + n.Right.String() + ")" }

func (n *Or) String() string { return "(" + n.Left.String() + " OR " + n.Right.String() + ")" }

func (n *Not) String() string { return "NOT " + n.Expr.String() }

func (m *Match) String() string {
	op := ":"
	switch m.Op {
	case OpRegex:
		op = "~"
	case OpContains:
		op = "*="
	}
	prefix := ""
	if m.Fold {
		prefix = "i"
	}
	return fmt.Sprintf("%s%s%s%q", prefix, m.Field, op, m.Value)
}

func (l *LevelCmp) String() string {
	return "level" + l.Op.String() + strings.ToLower(l.Level.String())
}
