package source

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
)

var errRotated = errors.New("file rotated")

// Follow tails a single file. Rotation is reported as a disconnect so
// the Handle reopens the new file from its start; truncation rewinds.
type Follow struct {
	Path string
}

func (f *Follow) Kind() Kind { return KindFile }

func (f *Follow) Identity() string { return f.Path }

func (f *Follow) Reconnectable() bool { return true }

func (f *Follow) Open(context.Context) (io.ReadCloser, error) {
	fh, err := os.Open(f.Path)
	if err != nil {
		return nil, err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		fh.Close()
		return nil, err
	}
	if err := w.Add(f.Path); err != nil {
		w.Close()
		fh.Close()
		return nil, err
	}
	return &followConn{f: fh, w: w, done: make(chan struct{})}, nil
}

type followConn struct {
	f    *os.File
	w    *fsnotify.Watcher
	done chan struct{}
	once sync.Once
}

func (c *followConn) Read(p []byte) (int, error) {
	for {
		n, err := c.f.Read(p)
		if n > 0 || (err != nil && err != io.EOF) {
			return n, err
		}
		select {
		case <-c.done:
			return 0, os.ErrClosed
		case err := <-c.w.Errors:
			return 0, err
		case ev, ok := <-c.w.Events:
			if !ok {
				return 0, os.ErrClosed
			}
			if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
				return 0, errRotated
			}
			if err := c.rewindIfTruncated(); err != nil {
				return 0, err
			}
		}
	}
}

func (c *followConn) rewindIfTruncated() error {
	info, err := c.f.Stat()
	if err != nil {
		return err
	}
	pos, err := c.f.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}
	if info.Size() < pos {
		_, err = c.f.Seek(0, io.SeekStart)
	}
	return err
}

func (c *followConn) Close() error {
	c.once.Do(func() {
		close(c.done)
		c.w.Close()
		c.f.Close()
	})
	return nil
}
