// Package logsource opens the byte streams an analysis run reads from.
package logsource

import (
	"context"
	"io"
)

// Source is one input of an analysis run (file, stdin, network stream).
type Source interface {
	// Name is the path, "stdin" or the remote address.
	Name() string
	// Open returns the stream; the caller closes it.
	Open(ctx context.Context) (io.ReadCloser, error)
}

// StdinName is the command-line spelling of standard input.
const StdinName = "-"

// ForPath returns the source for a command-line path argument.
func ForPath(path string) Source {
	if path == StdinName {
		return NewStdinSource()
	}
	return NewFileSource(path)
}
