// Package sink holds the record consumers the pipeline dispatches to:
// terminal, stream and file output, a sqlite archive, a live websocket
// feed, an HTTP forwarder and a statistics collector.
package sink

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/template"

	"github.com/fxamacker/cbor/v2"

	"github.com/coffersTech/nanocat/internal/model"
	"github.com/coffersTech/nanocat/internal/pipeline"
)

// Output format names.
const (
	FormatHuman    = "human"
	FormatJSON     = "json"
	FormatCSV      = "csv"
	FormatRaw      = "raw"
	FormatTemplate = "template"
	FormatCBOR     = "cbor"
)

// ErrUnknownFormat is returned for an unsupported output format name.
var ErrUnknownFormat = errors.New("unknown output format")

// Formats lists the machine readable formats an Encoder supports.
func Formats() []string {
	return []string{FormatJSON, FormatCSV, FormatRaw, FormatTemplate, FormatCBOR}
}

// Encoder serializes entries onto a writer it was built for.
type Encoder interface {
	Encode(pipeline.Entry) error
	// Flush pushes buffered output to the underlying writer.
	Flush() error
}

// NewEncoder builds the encoder for format on w. tmpl is the template
// text for FormatTemplate and ignored otherwise.
func NewEncoder(format string, w io.Writer, tmpl string) (Encoder, error) {
	bw := bufio.NewWriter(w)
	switch format {
	case FormatJSON:
		return &jsonEncoder{w: bw, enc: json.NewEncoder(bw)}, nil
	case FormatCSV:
		return &csvEncoder{w: csv.NewWriter(bw), bw: bw}, nil
	case FormatRaw:
		return &rawEncoder{w: bw}, nil
	case FormatTemplate:
		if tmpl == "" {
			return nil, errors.New("template format needs a template")
		}
		t, err := template.New("record").Parse(tmpl)
		if err != nil {
			return nil, fmt.Errorf("parse template: %w", err)
		}
		return &templateEncoder{w: bw, t: t}, nil
	case FormatCBOR:
		return &cborEncoder{w: bw, enc: cbor.NewEncoder(bw)}, nil
	case FormatHuman:
		return nil, fmt.Errorf("%w: %s is only valid for terminal output", ErrUnknownFormat, format)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
}

type jsonEncoder struct {
	w   *bufio.Writer
	enc *json.Encoder
}

func (e *jsonEncoder) Encode(en pipeline.Entry) error { return e.enc.Encode(en.Record) }

func (e *jsonEncoder) Flush() error { return e.w.Flush() }

// csvEncoder writes the same columns the csv input format reads.
type csvEncoder struct {
	w   *csv.Writer
	bw  *bufio.Writer
	row [7]string
}

func (e *csvEncoder) Encode(en pipeline.Entry) error {
	r := en.Record
	e.row = [7]string{r.Time, r.Level.String(), r.Tag, r.Process, r.Thread, r.Message, r.Raw}
	return e.w.Write(e.row[:])
}

func (e *csvEncoder) Flush() error {
	e.w.Flush()
	if err := e.w.Error(); err != nil {
		return err
	}
	return e.bw.Flush()
}

type rawEncoder struct {
	w *bufio.Writer
}

func (e *rawEncoder) Encode(en pipeline.Entry) error {
	e.w.WriteString(en.Record.Raw)
	return e.w.WriteByte('\n')
}

func (e *rawEncoder) Flush() error { return e.w.Flush() }

// templateData is what a template sees: the record fields plus
// Highlighted and LevelLetter.
type templateData struct {
	model.Record
	Highlighted bool
	LevelLetter string
}

type templateEncoder struct {
	w *bufio.Writer
	t *template.Template
	b strings.Builder
}

func (e *templateEncoder) Encode(en pipeline.Entry) error {
	e.b.Reset()
	data := templateData{Record: en.Record, Highlighted: en.Highlighted, LevelLetter: en.Record.Level.Letter()}
	if err := e.t.Execute(&e.b, data); err != nil {
		return err
	}
	s := e.b.String()
	e.w.WriteString(s)
	if !strings.HasSuffix(s, "\n") {
		return e.w.WriteByte('\n')
	}
	return nil
}

func (e *templateEncoder) Flush() error { return e.w.Flush() }

// cborEncoder emits a CBOR sequence, one map per record.
type cborEncoder struct {
	w   *bufio.Writer
	enc *cbor.Encoder
}

func (e *cborEncoder) Encode(en pipeline.Entry) error { return e.enc.Encode(en.Record) }

func (e *cborEncoder) Flush() error { return e.w.Flush() }
