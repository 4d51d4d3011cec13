package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// StdinPath selects standard input.
const StdinPath = "-"

// File replays one or more files in order and ends at EOF. Patterns
// may use doublestar globs. ".zst" and ".lz4" files are decompressed.
type File struct {
	Paths []string
	Stdin io.Reader
}

func (f *File) Kind() Kind { return KindFile }

func (f *File) Identity() string { return strings.Join(f.Paths, ",") }

func (f *File) Open(context.Context) (io.ReadCloser, error) {
	paths, err := expand(f.Paths)
	if err != nil {
		return nil, Permanent(err)
	}
	set := &fileSet{}
	readers := make([]io.Reader, 0, len(paths))
	for _, path := range paths {
		if path == StdinPath {
			in := f.Stdin
			if in == nil {
				in = os.Stdin
			}
			readers = append(readers, in)
			continue
		}
		fh, err := os.Open(path)
		if err != nil {
			set.Close()
			return nil, Permanent(err)
		}
		set.closers = append(set.closers, fh.Close)
		r, closeFn, err := decompress(path, fh)
		if err != nil {
			set.Close()
			return nil, Permanent(fmt.Errorf("%s: %w", path, err))
		}
		if closeFn != nil {
			set.closers = append(set.closers, closeFn)
		}
		readers = append(readers, r)
	}
	set.Reader = io.MultiReader(readers...)
	return set, nil
}

type fileSet struct {
	io.Reader
	closers []func() error
}

func (s *fileSet) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && !errors.Is(err, os.ErrClosed) {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

func expand(patterns []string) ([]string, error) {
	if len(patterns) == 0 {
		return nil, errors.New("no input files")
	}
	var paths []string
	for _, pattern := range patterns {
		if pattern == StdinPath || !hasMeta(pattern) {
			paths = append(paths, pattern)
			continue
		}
		matches, err := doublestar.FilepathGlob(pattern)
		if err != nil {
			return nil, fmt.Errorf("glob %q: %w", pattern, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("no files match %q", pattern)
		}
		sort.Strings(matches)
		paths = append(paths, matches...)
	}
	return paths, nil
}

func hasMeta(pattern string) bool {
	return strings.ContainsAny(pattern, "*?[{")
}

func decompress(path string, r io.Reader) (io.Reader, func() error, error) {
	switch {
	case strings.HasSuffix(path, ".zst"):
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, nil, err
		}
		return dec, func() error { dec.Close(); return nil }, nil
	case strings.HasSuffix(path, ".lz4"):
		return lz4.NewReader(r), nil, nil
	}
	return r, nil, nil
}
