package parser

import (
	"bytes"
	"strings"
	"unicode/utf8"
)

// DefaultMaxLineLength bounds the bytes buffered for a single line.
const DefaultMaxLineLength = 1 << 20

// LineSplitter cuts a byte stream into lines. Bytes after the last
// newline stay buffered until a later chunk completes them.
type LineSplitter struct {
	buf []byte
	max int
}

// NewLineSplitter returns a splitter that force-breaks lines longer than
// max bytes. A non-positive max selects DefaultMaxLineLength.
func NewLineSplitter(max int) *LineSplitter {
	if max <= 0 {
		max = DefaultMaxLineLength
	}
	return &LineSplitter{max: max}
}

// Split appends chunk to the buffer and calls fn for every complete line.
// Lines longer than max are emitted in pieces, cut the same way whether
// the line arrived whole or across several chunks.
func (s *LineSplitter) Split(chunk []byte, fn func(line string)) {
	s.buf = append(s.buf, chunk...)
	start := 0
	for {
		i := bytes.IndexByte(s.buf[start:], '\n')
		if i < 0 {
			break
		}
		fn(decode(s.breakLong(s.buf[start:start+i], fn)))
		start += i + 1
	}
	rest := s.breakLong(s.buf[start:], fn)
	s.compact(len(s.buf) - len(rest))
}

// breakLong emits max sized pieces from the front of line, cut at a rune
// boundary, while line is longer than max. It returns the remainder.
func (s *LineSplitter) breakLong(line []byte, fn func(line string)) []byte {
	for len(line) > s.max {
		cut := s.max
		for cut > 0 && !utf8.RuneStart(line[cut]) {
			cut--
		}
		if cut == 0 {
			cut = s.max
		}
		fn(decode(line[:cut]))
		line = line[cut:]
	}
	return line
}

// Flush emits the buffered partial line, if any, and empties the buffer.
func (s *LineSplitter) Flush(fn func(line string)) {
	line := bytes.TrimRight(s.buf, "\r")
	if len(line) > 0 {
		fn(decode(line))
	}
	s.buf = s.buf[:0]
}

// Reset drops buffered bytes.
func (s *LineSplitter) Reset() {
	s.buf = s.buf[:0]
}

// Buffered returns the number of bytes waiting for a line terminator.
func (s *LineSplitter) Buffered() int {
	return len(s.buf)
}

func (s *LineSplitter) compact(start int) {
	if start == 0 {
		return
	}
	n := copy(s.buf, s.buf[start:])
	s.buf = s.buf[:n]
}

func decode(line []byte) string {
	line = bytes.TrimRight(line, "\r")
	if utf8.Valid(line) {
		return string(line)
	}
	return strings.ToValidUTF8(string(line), "�")
}
