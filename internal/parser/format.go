package parser

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/coffersTech/nanocat/internal/model"
)

// ErrUnknownFormat is returned by Lookup for unregistered format names.
var ErrUnknownFormat = errors.New("unknown input format")

// Format turns one line into a Record. ok is false when the line does
// not carry the header layout of the format.
type Format interface {
	Name() string
	Parse(line string) (model.Record, bool)
}

var formats = map[string]func() Format{
	"threadtime": func() Format { return Threadtime{} },
	"brief":      func() Format { return Brief{} },
	"raw":        func() Format { return Raw{} },
	"csv":        func() Format { return CSV{} },
	"json":       func() Format { return NewJSON() },
	"can":        func() Format { return CAN{} },
	"auto":       func() Format { return NewAuto() },
}

// Lookup returns a fresh instance of the named format.
func Lookup(name string) (Format, error) {
	mk, ok := formats[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w %q (valid: %s)", ErrUnknownFormat, name, strings.Join(Names(), ", "))
	}
	return mk(), nil
}

// Names lists the registered format names.
func Names() []string {
	names := make([]string, 0, len(formats))
	for name := range formats {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Raw treats every line as an unparsed message.
type Raw struct{}

func (Raw) Name() string { return "raw" }

func (Raw) Parse(line string) (model.Record, bool) {
	return model.Unparsed(line), true
}
