package parser

import (
	"strings"

	"github.com/coffersTech/nanocat/internal/model"
)

// Threadtime parses logcat's default layout:
//
//	03-01 02:19:45.207     1     2 I EXT4-fs (mmcblk3p8): mounted filesystem
type Threadtime struct{}

func (Threadtime) Name() string { return "threadtime" }

func (Threadtime) Parse(line string) (model.Record, bool) {
	var cols [5]string
	rest := line
	for i := range cols {
		var ok bool
		cols[i], rest, ok = nextField(rest)
		if !ok {
			return model.Record{}, false
		}
	}
	date, hour, pid, tid, lvl := cols[0], cols[1], cols[2], cols[3], cols[4]
	if !isDate(date) || !isNumeric(pid) || !isNumeric(tid) || len(lvl) != 1 {
		return model.Record{}, false
	}
	level, ok := model.ParseLevel(lvl)
	if !ok {
		return model.Record{}, false
	}
	rest = strings.TrimLeft(rest, " \t")
	if rest == "" {
		return model.Record{}, false
	}
	tag, message := splitTag(rest)
	return model.Record{
		Time:    date + " " + hour,
		Level:   level,
		Tag:     tag,
		Process: pid,
		Thread:  tid,
		Message: message,
		Raw:     line,
	}, true
}

// splitTag cuts s at the first whitespace separated token ending in a
// colon. Without such a token the whole of s is the tag.
func splitTag(s string) (tag, message string) {
	pos := 0
	for pos < len(s) {
		for pos < len(s) && isSpace(s[pos]) {
			pos++
		}
		end := pos
		for end < len(s) && !isSpace(s[end]) {
			end++
		}
		if end > pos && s[end-1] == ':' {
			return strings.TrimSpace(s[:end-1]), strings.TrimSpace(s[end:])
		}
		pos = end
	}
	return strings.TrimSpace(s), ""
}

func nextField(s string) (field, rest string, ok bool) {
	s = strings.TrimLeft(s, " \t")
	if s == "" {
		return "", "", false
	}
	end := strings.IndexAny(s, " \t")
	if end < 0 {
		return s, "", true
	}
	return s[:end], s[end:], true
}

func isDate(s string) bool {
	return len(s) == 5 && s[2] == '-' && isNumeric(s[:2]) && isNumeric(s[3:])
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t'
}
