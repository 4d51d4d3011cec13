//go:build !linux

package source

import (
	"context"
	"fmt"
	"io"
)

func openSerial(_ context.Context, s *Serial) (io.ReadCloser, error) {
	return nil, Permanent(fmt.Errorf("serial %s: %w", s.Path, ErrUnsupported))
}
