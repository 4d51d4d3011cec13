package model

import (
	"fmt"
	"strings"
)

// Level is the severity of a Record. Known levels are totally ordered
// from LevelTrace to LevelFatal. LevelUnknown sits outside that order.
type Level uint8

const (
	LevelTrace Level = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
	LevelUnknown Level = 0xff
)

var levelNames = [...]string{"trace", "debug", "info", "warn", "error", "fatal"}

var levelLetters = [...]byte{'T', 'D', 'I', 'W', 'E', 'F'}

// Known reports whether l takes part in the severity order.
func (l Level) Known() bool {
	return l <= LevelFatal
}

func (l Level) String() string {
	if !l.Known() {
		return "unknown"
	}
	return levelNames[l]
}

// Letter returns the single letter logcat style abbreviation.
func (l Level) Letter() string {
	if !l.Known() {
		return "?"
	}
	return string(levelLetters[l])
}

func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

func (l *Level) UnmarshalText(text []byte) error {
	lv, ok := ParseLevel(string(text))
	if !ok && !strings.EqualFold(string(text), "unknown") && len(text) > 0 {
		return fmt.Errorf("invalid level %q", text)
	}
	*l = lv
	return nil
}

// ParseLevel maps a level letter or word to a Level. Unrecognized input
// yields LevelUnknown and false.
func ParseLevel(s string) (Level, bool) {
	if len(s) == 1 {
		switch s[0] | 0x20 {
		case 'v', 't':
			return LevelTrace, true
		case 'd':
			return LevelDebug, true
		case 'i':
			return LevelInfo, true
		case 'w':
			return LevelWarn, true
		case 'e':
			return LevelError, true
		case 'f', 'a':
			return LevelFatal, true
		}
		return LevelUnknown, false
	}
	switch strings.ToLower(s) {
	case "verbose", "trace":
		return LevelTrace, true
	case "debug":
		return LevelDebug, true
	case "info", "information":
		return LevelInfo, true
	case "warn", "warning":
		return LevelWarn, true
	case "error", "err":
		return LevelError, true
	case "fatal", "assert", "crit", "critical":
		return LevelFatal, true
	}
	return LevelUnknown, false
}

// Record is one parsed log entry. Records are treated as immutable once
// they leave the parser.
type Record struct {
	// Time is the device reported timestamp text, empty when the line
	// carried none.
	Time    string `json:"time,omitempty" cbor:"time,omitempty"`
	Level   Level  `json:"level" cbor:"level"`
	Tag     string `json:"tag" cbor:"tag"`
	Process string `json:"process" cbor:"process"`
	Thread  string `json:"thread" cbor:"thread"`
	Message string `json:"message" cbor:"message"`
	// Raw is the original line, always present.
	Raw string `json:"raw" cbor:"raw"`
}

// Unparsed builds the degraded record for a line that did not match its
// format.
func Unparsed(line string) Record {
	return Record{Level: LevelUnknown, Message: line, Raw: line}
}
