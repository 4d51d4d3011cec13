package parser

import (
	"strconv"
	"strings"

	"github.com/coffersTech/nanocat/internal/model"
)

// CAN parses candump style lines as written by the CAN source:
//
//	(1700000000.123456) can0 123#DEADBEEF
//	(1700000000.123456) can0 12345678#00FF
//
// Eight digit identifiers are extended frames.
type CAN struct{}

func (CAN) Name() string { return "can" }

func (CAN) Parse(line string) (model.Record, bool) {
	if !strings.HasPrefix(line, "(") {
		return model.Record{}, false
	}
	closing := strings.IndexByte(line, ')')
	if closing < 0 {
		return model.Record{}, false
	}
	stamp := line[1:closing]
	iface, frame, ok := nextField(line[closing+1:])
	if !ok {
		return model.Record{}, false
	}
	frame = strings.TrimSpace(frame)
	id, data, found := strings.Cut(frame, "#")
	if !found || id == "" || len(data)%2 != 0 {
		return model.Record{}, false
	}
	n, err := strconv.ParseUint(id, 16, 32)
	if err != nil {
		return model.Record{}, false
	}

	var msg strings.Builder
	if len(id) == 8 {
		msg.WriteString("E")
	} else {
		msg.WriteString(" ")
	}
	for i := 0; i < len(data); i += 2 {
		if _, err := strconv.ParseUint(data[i:i+2], 16, 8); err != nil {
			return model.Record{}, false
		}
		msg.WriteByte(' ')
		msg.WriteString(strings.ToLower(data[i : i+2]))
	}
	return model.Record{
		Time:    stamp,
		Level:   model.LevelUnknown,
		Tag:     "0x" + strconv.FormatUint(n, 16),
		Process: iface,
		Message: msg.String(),
		Raw:     line,
	}, true
}
