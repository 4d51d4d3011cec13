package sink

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// output is a created file, possibly behind a compressor.
type output struct {
	file *os.File
	w    io.Writer
	// closers finish the compressed stream, innermost first.
	closers []io.Closer
}

// CreateOutput creates path for writing, making its directory first. An
// existing file is refused unless overwrite is set. The extension picks
// the compression: .zst (zstd), .lz4, or .zip (a single entry named
// after the file without .zip). Close finishes the stream and syncs the
// file.
func CreateOutput(path string, overwrite bool) (io.WriteCloser, error) {
	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !overwrite {
		flags = os.O_WRONLY | os.O_CREATE | os.O_EXCL
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create output directory: %w", err)
		}
	}
	file, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("output file %s exists, use --overwrite to replace it", path)
		}
		return nil, fmt.Errorf("open output file: %w", err)
	}

	o := &output{file: file, w: file}
	switch {
	case strings.HasSuffix(path, ".zst"):
		zw, err := zstd.NewWriter(file)
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("zstd writer: %w", err)
		}
		o.w, o.closers = zw, []io.Closer{zw}
	case strings.HasSuffix(path, ".lz4"):
		lw := lz4.NewWriter(file)
		o.w, o.closers = lw, []io.Closer{lw}
	case strings.HasSuffix(path, ".zip"):
		zw := zip.NewWriter(file)
		entry, err := zw.Create(strings.TrimSuffix(filepath.Base(path), ".zip"))
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("zip entry: %w", err)
		}
		o.w, o.closers = entry, []io.Closer{zw}
	}
	return o, nil
}

func (o *output) Write(p []byte) (int, error) { return o.w.Write(p) }

func (o *output) Close() error {
	var errs []error
	for _, c := range o.closers {
		errs = append(errs, c.Close())
	}
	errs = append(errs, o.file.Sync(), o.file.Close())
	return errors.Join(errs...)
}
