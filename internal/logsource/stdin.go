package logsource

import (
	"context"
	"io"
	"os"
)

// StdinSource reads from standard input. Closing it leaves stdin open.
type StdinSource struct {
	r io.Reader
}

// NewStdinSource creates a StdinSource over os.Stdin.
func NewStdinSource() *StdinSource {
	return newStdinSourceWithReader(os.Stdin)
}

func newStdinSourceWithReader(r io.Reader) *StdinSource {
	return &StdinSource{r: r}
}

func (s *StdinSource) Open(ctx context.Context) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return io.NopCloser(s.r), nil
}

func (s *StdinSource) Name() string { return "stdin" }
