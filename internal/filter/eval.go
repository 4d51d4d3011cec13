package filter

import (
	"strings"

	"github.com/coffersTech/nanocat/internal/model"
)

// Eval reports whether r satisfies n. AND and OR short-circuit.
func Eval(n Node, r *model.Record) bool {
	switch n := n.(type) {
	case *And:
		return Eval(n.Left, r) && Eval(n.Right, r)
	case *Or:
		return Eval(n.Left, r) || Eval(n.Right, r)
	case *Not:
		return !Eval(n.Expr, r)
	case *Match:
		return n.match(r)
	case *LevelCmp:
		return n.match(r.Level)
	}
	return false
}

func (m *Match) match(r *model.Record) bool {
	switch m.Field {
	case FieldTag:
		return m.matchString(r.Tag)
	case FieldMessage:
		return m.matchString(r.Message)
	case FieldProcess:
		return m.matchString(r.Process)
	case FieldThread:
		return m.matchString(r.Thread)
	}
	return m.matchString(r.Tag) || m.matchString(r.Process) ||
		m.matchString(r.Thread) || m.matchString(r.Message)
}

func (m *Match) matchString(s string) bool {
	if m.re != nil {
		return m.re.MatchString(s)
	}
	switch m.Op {
	case OpEquals:
		if m.Fold {
			return strings.EqualFold(s, m.Value)
		}
		return s == m.Value
	case OpContains:
		return strings.Contains(s, m.Value)
	}
	return false
}

func (l *LevelCmp) match(lv model.Level) bool {
	if !lv.Known() || !l.Level.Known() {
		switch l.Op {
		case CmpEQ:
			return lv == l.Level
		case CmpNE:
			return lv != l.Level
		}
		return false
	}
	switch l.Op {
	case CmpEQ:
		return lv == l.Level
	case CmpNE:
		return lv != l.Level
	case CmpGE:
		return lv >= l.Level
	case CmpGT:
		return lv > l.Level
	case CmpLE:
		return lv <= l.Level
	case CmpLT:
		return lv < l.Level
	}
	return false
}
