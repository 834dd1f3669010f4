package logparse

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"github.com/tinytelemetry/logstat/internal/model"
)

const initialReadBuffer = 64 * 1024

// ReaderConfig holds tunable parameters for the streaming parser.
type ReaderConfig struct {
	MaxLineSize int
}

// Reader parses entries incrementally from a stream. Record boundaries that
// fall across read chunks are handled; only one record is held in memory.
type Reader struct {
	src          *errReader
	scanner      *bufio.Scanner
	maxLineSize  int
	consumed     int64
	recordOffset int64
	record       int
	err          error
}

// NewReader creates a streaming parser over r.
func NewReader(r io.Reader, conf ...ReaderConfig) *Reader {
	maxLineSize := model.DefaultMaxLineSize
	if len(conf) > 0 && conf[0].MaxLineSize > 0 {
		maxLineSize = conf[0].MaxLineSize
	}
	rd := &Reader{src: &errReader{r: r}, maxLineSize: maxLineSize}

	// The scanner window holds the record plus its first terminator byte.
	window := maxLineSize + 1
	initial := initialReadBuffer
	if initial > window {
		initial = window
	}
	rd.scanner = bufio.NewScanner(rd.src)
	rd.scanner.Buffer(make([]byte, initial), window)
	rd.scanner.Split(rd.split)
	return rd
}

// Next returns the next entry, io.EOF at the end of the stream, a
// *ParseError for a bad record, or a wrapped read error. Errors are sticky.
func (r *Reader) Next() (model.LogEntry, error) {
	if r.err != nil {
		return model.LogEntry{}, r.err
	}

	if !r.scanner.Scan() {
		err := r.scanner.Err()
		switch {
		case err == nil:
			r.err = io.EOF
		case errors.Is(err, bufio.ErrTooLong):
			r.err = r.tooLong(r.consumed, err)
		default:
			r.err = fmt.Errorf("logparse: read: %w", err)
		}
		return model.LogEntry{}, r.err
	}
	// The scanner hands out a trailing partial record as if the stream
	// had ended cleanly; a failed read must not be parsed as input.
	if r.src.err != nil {
		r.err = fmt.Errorf("logparse: read: %w", r.src.err)
		return model.LogEntry{}, r.err
	}
	// An unterminated final record can fill the whole window.
	if len(r.scanner.Bytes()) > r.maxLineSize {
		r.err = r.tooLong(r.recordOffset, bufio.ErrTooLong)
		return model.LogEntry{}, r.err
	}
	r.record++

	entry, perr := parseRecord(r.scanner.Bytes())
	if perr != nil {
		perr.Record = r.record
		perr.Offset = r.recordOffset
		r.err = perr
		return model.LogEntry{}, r.err
	}
	return entry, nil
}

func (r *Reader) tooLong(offset int64, err error) *ParseError {
	return &ParseError{
		Kind:   ErrMalformedRecord,
		Field:  "text",
		Detail: fmt.Sprintf("record exceeds max size (%d bytes)", r.maxLineSize),
		Record: r.record + 1,
		Offset: offset,
		Err:    err,
	}
}

// Records returns the number of records read so far.
func (r *Reader) Records() int { return r.record }

func (r *Reader) split(data []byte, atEOF bool) (int, []byte, error) {
	start, end, advance, ok := nextRecord(data, atEOF)
	if !ok {
		r.consumed += int64(advance)
		return advance, nil, nil
	}
	r.recordOffset = r.consumed + int64(start)
	r.consumed += int64(advance)
	return advance, data[start:end], nil
}

// errReader remembers the first read error other than io.EOF.
type errReader struct {
	r   io.Reader
	err error
}

func (e *errReader) Read(p []byte) (int, error) {
	n, err := e.r.Read(p)
	if err != nil && err != io.EOF && e.err == nil {
		e.err = err
	}
	return n, err
}
