package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coffersTech/nanocat/internal/model"
)

func TestEmptyEngineIsIdentity(t *testing.T) {
	for _, e := range []*Engine{nil, NewEngine(nil, nil), NewEngine(MustCompile(""), MustCompile(""))} {
		for _, r := range []model.Record{recVold, recCrash, recUnknown} {
			assert.Equal(t, Keep, e.Decide(&r))
		}
	}
}

func TestMinimumLevelDropsUnknown(t *testing.T) {
	e := NewEngine(MustCompile("level>=error"), nil)
	assert.Equal(t, Drop, e.Decide(&recUnknown))
	assert.Equal(t, Keep, e.Decide(&recCrash))
	assert.Equal(t, Drop, e.Decide(&recVold))
}

func TestHighlightOnlyForKept(t *testing.T) {
	e := NewEngine(MustCompile("level>=warn"), MustCompile("tag:vold OR tag:AndroidRuntime"))
	assert.Equal(t, Drop, e.Decide(&recVold))
	assert.Equal(t, KeepHighlighted, e.Decide(&recCrash))

	e = NewEngine(nil, MustCompile("tag:vold"))
	assert.Equal(t, KeepHighlighted, e.Decide(&recVold))
	assert.Equal(t, Keep, e.Decide(&recCrash))
}

func TestDecisionKept(t *testing.T) {
	assert.False(t, Drop.Kept())
	assert.True(t, Keep.Kept())
	assert.True(t, KeepHighlighted.Kept())
}

func TestRulesGroups(t *testing.T) {
	tests := []struct {
		name  string
		rules Rules
		keep  []model.Record
		drop  []model.Record
	}{
		{
			name:  "tag positives or together",
			rules: Rules{Tag: []string{"^vold$", "Runtime"}},
			keep:  []model.Record{recVold, recCrash},
			drop:  []model.Record{recUnknown},
		},
		{
			name:  "negative tag",
			rules: Rules{Tag: []string{"!vold"}},
			keep:  []model.Record{recCrash, recUnknown},
			drop:  []model.Record{recVold},
		},
		{
			name:  "ignore case message",
			rules: Rules{MessageIgnoreCase: []string{"fatal exception"}},
			keep:  []model.Record{recCrash},
			drop:  []model.Record{recVold},
		},
		{
			name:  "case sensitive message",
			rules: Rules{Message: []string{"fatal exception"}},
			drop:  []model.Record{recCrash},
		},
		{
			name:  "pid",
			rules: Rules{PID: []string{"^1$"}},
			keep:  []model.Record{recVold},
			drop:  []model.Record{recCrash},
		},
		{
			name:  "regex spans fields",
			rules: Rules{Regex: []string{"^1234$"}},
			keep:  []model.Record{recCrash},
			drop:  []model.Record{recVold},
		},
		{
			name:  "groups and together",
			rules: Rules{Level: "info", Tag: []string{"vold", "Runtime"}, Message: []string{"!FATAL"}},
			keep:  []model.Record{recVold},
			drop:  []model.Record{recCrash, recUnknown},
		},
		{
			name:  "expression joins groups",
			rules: Rules{Tag: []string{"vold", "Runtime"}, Expr: "level>=error"},
			keep:  []model.Record{recCrash},
			drop:  []model.Record{recVold},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := tt.rules.Engine()
			require.NoError(t, err)
			for _, r := range tt.keep {
				assert.True(t, e.Decide(&r).Kept(), "keep %q", r.Tag)
			}
			for _, r := range tt.drop {
				assert.False(t, e.Decide(&r).Kept(), "drop %q", r.Tag)
			}
		})
	}
}

func TestRulesHighlight(t *testing.T) {
	e, err := Rules{Highlight: []string{"EXCEPTION"}}.Engine()
	require.NoError(t, err)
	assert.Equal(t, KeepHighlighted, e.Decide(&recCrash))
	assert.Equal(t, Keep, e.Decide(&recVold))

	e, err = Rules{Highlight: []string{"!vold"}}.Engine()
	require.NoError(t, err)
	assert.Equal(t, KeepHighlighted, e.Decide(&recCrash))
	assert.Equal(t, Keep, e.Decide(&recVold))

	e, err = Rules{HighlightExpr: "level>=error"}.Engine()
	require.NoError(t, err)
	assert.Equal(t, KeepHighlighted, e.Decide(&recCrash))
}

func TestRulesErrors(t *testing.T) {
	for _, r := range []Rules{
		{Level: "loud"},
		{Tag: []string{"("}},
		{Regex: []string{"!["}},
		{Expr: "tag:"},
		{Highlight: []string{"*"}},
		{HighlightExpr: "(("},
	} {
		_, err := r.Engine()
		assert.Error(t, err, "%+v", r)
	}
}

func TestRulesMerge(t *testing.T) {
	a := Rules{Level: "warn", Tag: []string{"a"}}
	b := Rules{Level: "info", Tag: []string{"b"}, Expr: "x"}
	m := a.Merge(b)
	assert.Equal(t, "warn", m.Level)
	assert.Equal(t, []string{"a", "b"}, m.Tag)
	assert.Equal(t, "x", m.Expr)
	assert.Equal(t, []string{"a"}, a.Tag)
}

func TestRulesDedup(t *testing.T) {
	expr, err := Rules{Tag: []string{"a", "a", "b"}}.Retention()
	require.NoError(t, err)
	assert.Equal(t, `(tag~"a" OR tag~"b")`, expr.String())
}
