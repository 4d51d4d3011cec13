package parser

import (
	"strings"

	"github.com/coffersTech/nanocat/internal/model"
)

// Brief parses logcat's brief layout, "I/ActivityManager(  585): msg",
// and the pid-less "I/tag: msg".
type Brief struct{}

func (Brief) Name() string { return "brief" }

func (Brief) Parse(line string) (model.Record, bool) {
	if len(line) < 3 || line[1] != '/' {
		return model.Record{}, false
	}
	level, ok := model.ParseLevel(line[:1])
	if !ok {
		return model.Record{}, false
	}
	head, message, found := strings.Cut(line[2:], ":")
	if !found {
		return model.Record{}, false
	}
	tag, pid := head, ""
	if open := strings.LastIndexByte(head, '('); open >= 0 && strings.HasSuffix(head, ")") {
		pid = strings.TrimSpace(head[open+1 : len(head)-1])
		if !isNumeric(pid) {
			return model.Record{}, false
		}
		tag = head[:open]
	}
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return model.Record{}, false
	}
	return model.Record{
		Level:   level,
		Tag:     tag,
		Process: pid,
		Message: strings.TrimPrefix(message, " "),
		Raw:     line,
	}, true
}
