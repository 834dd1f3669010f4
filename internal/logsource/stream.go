package logsource

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
)

// ErrAlreadyOpened is returned when a StreamSource is opened twice.
var ErrAlreadyOpened = errors.New("logsource: stream already opened")

// StreamSource wraps a live stream such as a TCP connection or a request
// body. It can be opened once.
type StreamSource struct {
	name   string
	r      io.Reader
	opened atomic.Bool
}

// NewStreamSource creates a single-use source named name.
func NewStreamSource(name string, r io.Reader) *StreamSource {
	return &StreamSource{name: name, r: r}
}

func (s *StreamSource) Open(ctx context.Context) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.opened.Swap(true) {
		return nil, ErrAlreadyOpened
	}
	return io.NopCloser(s.r), nil
}

func (s *StreamSource) Name() string { return s.name }
