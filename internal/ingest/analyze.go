// Package ingest drives the parse-and-fold pipeline for one input.
package ingest

import (
	"context"
	"errors"
	"io"

	"github.com/cespare/xxhash/v2"

	"github.com/tinytelemetry/logstat/internal/logparse"
	"github.com/tinytelemetry/logstat/internal/model"
)

// Analyze parses r to the end and returns the finalized statistics. Any parse
// or read error aborts the run and no Result is returned. ctx is checked
// between records.
func Analyze(ctx context.Context, r io.Reader, opts Options) (*Result, error) {
	digest := xxhash.New()
	counter := &countingWriter{w: digest}
	reader := logparse.NewReader(io.TeeReader(r, counter), logparse.ReaderConfig{
		MaxLineSize: opts.MaxLineSize,
	})

	proc := NewProcessor(opts)
	if err := fold(ctx, reader.Next, proc); err != nil {
		return nil, err
	}
	return &Result{
		Stats:   proc.Finish(),
		Digest:  digest.Sum64(),
		Bytes:   counter.n,
		Entries: proc.Entries(),
	}, nil
}

// AnalyzeBytes runs the pipeline over an in-memory buffer.
func AnalyzeBytes(data []byte, opts Options) (*Result, error) {
	proc := NewProcessor(opts)
	if err := fold(context.Background(), logparse.NewParser(data).Next, proc); err != nil {
		return nil, err
	}
	return &Result{
		Stats:   proc.Finish(),
		Digest:  xxhash.Sum64(data),
		Bytes:   int64(len(data)),
		Entries: proc.Entries(),
	}, nil
}

func fold(ctx context.Context, next func() (model.LogEntry, error), proc *Processor) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		entry, err := next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		proc.Process(entry)
	}
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
