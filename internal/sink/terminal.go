package sink

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"

	"github.com/coffersTech/nanocat/internal/model"
	"github.com/coffersTech/nanocat/internal/pipeline"
)

// ColorMode selects when the terminal sink emits escape sequences.
type ColorMode int

const (
	ColorAuto ColorMode = iota
	ColorAlways
	ColorNever
)

func ParseColorMode(s string) (ColorMode, error) {
	switch strings.ToLower(s) {
	case "", "auto":
		return ColorAuto, nil
	case "always":
		return ColorAlways, nil
	case "never":
		return ColorNever, nil
	}
	return ColorAuto, fmt.Errorf("invalid color mode %q (want auto, always or never)", s)
}

const (
	dimColor       = lipgloss.Color("243")
	highlightColor = lipgloss.Color("3")
)

// TerminalOptions tunes the human readable layout.
type TerminalOptions struct {
	Color ColorMode
	// TagWidth fixes the tag column. Zero derives it from the terminal
	// width.
	TagWidth      int
	HideTimestamp bool
	ShowDate      bool
	BrightColors  bool
	NoDimm        bool
	// Width reports the terminal width in columns, zero when unknown.
	// Defaults to querying the output when it is a terminal.
	Width func() int
}

type dateFormat int

const (
	dateHourOnly dateFormat = iota
	dateComplete
	dateOnly
	dateNothing
)

// Terminal renders entries for humans: a dimmed timestamp, a right
// aligned tag, process and thread ids in colors derived from their
// text, a level badge and the message wrapped to the terminal width.
type Terminal struct {
	w        io.Writer
	opts     TerminalOptions
	renderer *lipgloss.Renderer
	date     dateFormat
	dim      *lipgloss.Color

	processWidth int
	threadWidth  int
	buf          strings.Builder
}

// NewTerminal returns a terminal sink writing to w.
func NewTerminal(w io.Writer, opts TerminalOptions) *Terminal {
	r := lipgloss.NewRenderer(w)
	switch opts.Color {
	case ColorAlways:
		r.SetColorProfile(termenv.ANSI256)
	case ColorNever:
		r.SetColorProfile(termenv.Ascii)
	}
	if opts.Width == nil {
		opts.Width = widthOf(w)
	}
	t := &Terminal{w: w, opts: opts, renderer: r}
	switch {
	case opts.ShowDate && opts.HideTimestamp:
		t.date = dateOnly
	case opts.ShowDate:
		t.date = dateComplete
	case opts.HideTimestamp:
		t.date = dateNothing
	}
	if !opts.NoDimm {
		c := dimColor
		t.dim = &c
	}
	return t
}

func widthOf(w io.Writer) func() int {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return func() int { return 0 }
	}
	return func() int {
		cols, _, err := term.GetSize(int(f.Fd()))
		if err != nil {
			return 0
		}
		return cols
	}
}

func (t *Terminal) Name() string { return "terminal" }

func (t *Terminal) Policy() pipeline.Policy { return pipeline.DropOldest }

func (t *Terminal) Flush() error { return nil }

func (t *Terminal) Write(e pipeline.Entry) error {
	t.buf.Reset()
	t.render(&t.buf, e, t.opts.Width())
	_, err := io.WriteString(t.w, t.buf.String())
	return err
}

// tagWidth picks the tag column for a terminal of the given width.
func (t *Terminal) tagWidth(cols int) int {
	if t.opts.TagWidth > 0 {
		return t.opts.TagWidth
	}
	switch {
	case cols <= 0:
		return 35
	case cols <= 80:
		return 15
	case cols <= 90:
		return 20
	case cols <= 100:
		return 25
	case cols <= 110:
		return 30
	}
	return 35
}

func (t *Terminal) timestamp(s string) string {
	switch t.date {
	case dateComplete:
		return s
	case dateOnly:
		if len(s) >= 5 {
			return s[:5]
		}
	case dateHourOnly:
		if len(s) > 6 {
			return s[6:]
		}
	}
	return ""
}

func (t *Terminal) render(b *strings.Builder, e pipeline.Entry, cols int) {
	r := e.Record
	ts := t.timestamp(r.Time)

	tagWidth := t.tagWidth(cols)
	tag := truncate(r.Tag, tagWidth)
	tag = strings.Repeat(" ", tagWidth-utf8.RuneCountInString(tag)) + tag

	t.processWidth = max(t.processWidth, utf8.RuneCountInString(r.Process))
	pid := padRight(r.Process, t.processWidth)

	t.threadWidth = max(t.threadWidth, utf8.RuneCountInString(r.Thread))
	var tid string
	switch {
	case r.Thread != "":
		tid = " " + padLeft(r.Thread, t.threadWidth)
	case t.threadWidth != 0:
		tid = strings.Repeat(" ", t.threadWidth+1)
	}

	preamble := utf8.RuneCountInString(ts) + 1 + tagWidth + 2 +
		utf8.RuneCountInString(pid) + utf8.RuneCountInString(tid) + 2 + 3

	tsColor := t.dim
	if e.Highlighted {
		c := highlightColor
		tsColor = &c
	}
	levelColor := t.levelColor(r.Level)

	tsStyle := t.style(tsColor)
	badge := t.renderer.NewStyle()
	if levelColor != nil {
		badge = badge.Background(*levelColor).Foreground(lipgloss.Color("0"))
	}
	msgStyle := t.style(levelColor)

	writePreamble := func() {
		b.WriteString(tsStyle.Render(ts))
		b.WriteByte(' ')
		b.WriteString(t.renderer.NewStyle().Foreground(hashedColor(r.Tag)).Render(tag))
		b.WriteString(" (")
		b.WriteString(t.renderer.NewStyle().Foreground(hashedColor(pid)).Render(pid))
		if tid != "" {
			b.WriteString(t.renderer.NewStyle().Foreground(hashedColor(tid)).Render(tid))
		}
		b.WriteString(") ")
		b.WriteString(badge.Render(" " + r.Level.Letter() + " "))
	}

	payload := 0
	if cols > 0 {
		payload = cols - preamble - 3
	}
	chunks := wrap(strings.ReplaceAll(r.Message, "\t", ""), payload)
	for i, chunk := range chunks {
		writePreamble()
		switch {
		case len(chunks) == 1:
			b.WriteString("   ")
		case i == 0:
			b.WriteString(" ┌ ")
		case i == len(chunks)-1:
			b.WriteString(" └ ")
		default:
			b.WriteString(" ├ ")
		}
		b.WriteString(msgStyle.Render(chunk))
		b.WriteByte('\n')
	}
}

func (t *Terminal) style(c *lipgloss.Color) lipgloss.Style {
	s := t.renderer.NewStyle()
	if c != nil {
		s = s.Foreground(*c)
	}
	return s
}

func (t *Terminal) levelColor(l model.Level) *lipgloss.Color {
	var code int
	switch l {
	case model.LevelDebug:
		code = 6
	case model.LevelInfo:
		code = 2
	case model.LevelWarn:
		code = 3
	case model.LevelError, model.LevelFatal:
		code = 1
	default:
		return t.dim
	}
	if t.opts.BrightColors {
		code += 8
	}
	c := lipgloss.Color(strconv.Itoa(code))
	return &c
}

// hashedColor maps text to a stable 256-color code, skipping codes that
// read poorly on dark backgrounds.
func hashedColor(s string) lipgloss.Color {
	c := byte(42)
	for i := 0; i < len(s); i++ {
		c ^= s[i]
	}
	switch {
	case c <= 1:
		c += 2
	case c >= 16 && c <= 21:
		c += 6
	case c >= 52 && c <= 55, c >= 126 && c <= 129:
		c += 4
	case c >= 163 && c <= 165, c >= 200 && c <= 201:
		c += 3
	case c == 207:
		c++
	case c >= 232 && c <= 240:
		c += 9
	}
	return lipgloss.Color(strconv.Itoa(int(c)))
}

// wrap splits s into lines of at most width runes. Embedded newlines
// always break. A width < 1 disables wrapping.
func wrap(s string, width int) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if width < 1 || utf8.RuneCountInString(line) <= width {
			out = append(out, line)
			continue
		}
		runes := []rune(line)
		for len(runes) > width {
			out = append(out, string(runes[:width]))
			runes = runes[width:]
		}
		if len(runes) > 0 {
			out = append(out, string(runes))
		}
	}
	return out
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

func padRight(s string, n int) string {
	return s + strings.Repeat(" ", max(0, n-utf8.RuneCountInString(s)))
}

func padLeft(s string, n int) string {
	return strings.Repeat(" ", max(0, n-utf8.RuneCountInString(s))) + s
}
