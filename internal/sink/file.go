package sink

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/coffersTech/nanocat/internal/clock"
	"github.com/coffersTech/nanocat/internal/pipeline"
)

// FilenameFormat controls how rotated output files are named.
type FilenameFormat int

const (
	// FilenameSingle always writes the given path.
	FilenameSingle FilenameFormat = iota
	// FilenameEnumerate appends a sequence number to the file stem.
	FilenameEnumerate
	// FilenameDate prefixes the file name with the local creation time.
	FilenameDate
)

func ParseFilenameFormat(s string) (FilenameFormat, error) {
	switch s {
	case "", "single":
		return FilenameSingle, nil
	case "enumerate":
		return FilenameEnumerate, nil
	case "date":
		return FilenameDate, nil
	}
	return FilenameSingle, fmt.Errorf("invalid filename format %q (want single, enumerate or date)", s)
}

// ParseCount reads a record count with an optional k, M or G suffix.
func ParseCount(s string) (int, error) {
	mult := 1
	num := s
	switch {
	case strings.HasSuffix(s, "k"), strings.HasSuffix(s, "K"):
		mult, num = 1000, s[:len(s)-1]
	case strings.HasSuffix(s, "M"):
		mult, num = 1000*1000, s[:len(s)-1]
	case strings.HasSuffix(s, "G"):
		mult, num = 1000*1000*1000, s[:len(s)-1]
	}
	n, err := strconv.Atoi(num)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid record count %q", s)
	}
	return n * mult, nil
}

// FileOptions configures a File sink.
type FileOptions struct {
	Path     string
	Format   string
	Template string
	// RecordsPerFile starts a new file after that many records. Zero
	// never rotates. Rotation with FilenameSingle switches to
	// FilenameEnumerate.
	RecordsPerFile int
	Filename       FilenameFormat
	Overwrite      bool
	Clock          clock.Clock
}

// File writes entries to disk, optionally rotating after a fixed number
// of records. A .zst, .lz4 or .zip extension compresses the output.
type File struct {
	opts    FileOptions
	seq     int
	count   int
	current string
	out     io.WriteCloser
	enc     Encoder
	written []string
}

// NewFile opens the first output file.
func NewFile(opts FileOptions) (*File, error) {
	if opts.Path == "" {
		return nil, errors.New("file sink needs a path")
	}
	if opts.Format == "" {
		opts.Format = FormatRaw
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.RecordsPerFile > 0 && opts.Filename == FilenameSingle {
		opts.Filename = FilenameEnumerate
	}
	f := &File{opts: opts}
	if err := f.open(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *File) Name() string { return "file" }

func (f *File) Policy() pipeline.Policy { return pipeline.Block }

// Files lists every path written so far, in creation order.
func (f *File) Files() []string { return f.written }

func (f *File) Write(e pipeline.Entry) error {
	if f.opts.RecordsPerFile > 0 && f.count >= f.opts.RecordsPerFile {
		if err := f.closeCurrent(); err != nil {
			return err
		}
		if err := f.open(); err != nil {
			return err
		}
	}
	f.count++
	return f.enc.Encode(e)
}

func (f *File) Flush() error {
	if f.enc == nil {
		return nil
	}
	return f.enc.Flush()
}

func (f *File) Close() error {
	return f.closeCurrent()
}

// nextPath returns the path of the next file to create.
func (f *File) nextPath() string {
	dir, base := filepath.Split(f.opts.Path)
	switch f.opts.Filename {
	case FilenameEnumerate:
		stem, ext := splitExt(base)
		return filepath.Join(dir, fmt.Sprintf("%s-%03d%s", stem, f.seq, ext))
	case FilenameDate:
		stamp := f.opts.Clock.Now().Local().Format("2006-01-02_15-04-05")
		if f.seq > 0 {
			stamp += fmt.Sprintf(".%03d", f.seq)
		}
		return filepath.Join(dir, stamp+"_"+base)
	}
	return f.opts.Path
}

// splitExt splits name at its first dot so that "out.log.zst" keeps
// "log.zst" together.
func splitExt(name string) (string, string) {
	if i := strings.IndexByte(name, '.'); i > 0 {
		return name[:i], name[i:]
	}
	return name, ""
}

func (f *File) open() error {
	path := f.nextPath()
	f.seq++
	out, err := CreateOutput(path, f.opts.Overwrite)
	if err != nil {
		return err
	}
	enc, err := NewEncoder(f.opts.Format, out, f.opts.Template)
	if err != nil {
		out.Close()
		return err
	}
	f.out, f.enc, f.current, f.count = out, enc, path, 0
	f.written = append(f.written, path)
	return nil
}

func (f *File) closeCurrent() error {
	if f.out == nil {
		return nil
	}
	err := errors.Join(f.enc.Flush(), f.out.Close())
	f.out, f.enc = nil, nil
	if err != nil {
		return fmt.Errorf("close %s: %w", f.current, err)
	}
	return nil
}
