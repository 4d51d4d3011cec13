package parser

import "github.com/coffersTech/nanocat/internal/model"

// Auto tries a list of formats and starts with the one that matched the
// previous line.
type Auto struct {
	candidates []Format
	last       int
}

func NewAuto() *Auto {
	return &Auto{candidates: []Format{Threadtime{}, Brief{}, NewJSON(), CSV{}}}
}

func (a *Auto) Name() string { return "auto" }

func (a *Auto) Parse(line string) (model.Record, bool) {
	if rec, ok := a.candidates[a.last].Parse(line); ok {
		return rec, true
	}
	for i, f := range a.candidates {
		if i == a.last {
			continue
		}
		if rec, ok := f.Parse(line); ok {
			a.last = i
			return rec, true
		}
	}
	return model.Record{}, false
}
