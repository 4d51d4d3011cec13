package sink

import (
	"io"

	"github.com/coffersTech/nanocat/internal/pipeline"
)

// Stream writes a machine readable format to a writer such as stdout.
// Output is flushed after every entry so downstream pipes see records
// as they arrive.
type Stream struct {
	name string
	enc  Encoder
}

func NewStream(name string, w io.Writer, format, tmpl string) (*Stream, error) {
	enc, err := NewEncoder(format, w, tmpl)
	if err != nil {
		return nil, err
	}
	return &Stream{name: name, enc: enc}, nil
}

func (s *Stream) Name() string { return s.name }

func (s *Stream) Policy() pipeline.Policy { return pipeline.Block }

func (s *Stream) Write(e pipeline.Entry) error {
	if err := s.enc.Encode(e); err != nil {
		return err
	}
	return s.enc.Flush()
}

func (s *Stream) Flush() error { return s.enc.Flush() }
