// Package logparse turns classic BSD-syslog text into model.LogEntry values.
//
// Records are separated by any run of NUL (0x00) and/or LF (0x0A) bytes.
// Parsing is strict about structure: the first record that cannot be parsed
// ends the sequence with a *ParseError, so aggregate counts never silently
// drop records.
package logparse

import (
	"io"

	"github.com/tinytelemetry/logstat/internal/model"
)

// Parser yields entries from an in-memory buffer, one record per Next call.
type Parser struct {
	data     []byte
	consumed int64
	record   int
	err      error
}

// NewParser creates a parser over data. The slice is not modified.
func NewParser(data []byte) *Parser {
	return &Parser{data: data}
}

// Next returns the next entry. It returns io.EOF once the buffer is
// exhausted; any other error is a *ParseError and is returned again on
// every subsequent call.
func (p *Parser) Next() (model.LogEntry, error) {
	if p.err != nil {
		return model.LogEntry{}, p.err
	}

	start, end, advance, ok := nextRecord(p.data, true)
	if !ok {
		p.consume(advance)
		p.err = io.EOF
		return model.LogEntry{}, p.err
	}

	offset := p.consumed + int64(start)
	line := p.data[start:end]
	p.consume(advance)
	p.record++

	entry, perr := parseRecord(line)
	if perr != nil {
		perr.Record = p.record
		perr.Offset = offset
		p.err = perr
		return model.LogEntry{}, p.err
	}
	return entry, nil
}

// Records returns the number of records read so far.
func (p *Parser) Records() int { return p.record }

func (p *Parser) consume(n int) {
	p.data = p.data[n:]
	p.consumed += int64(n)
}

// nextRecord locates the next record in data. start and end bound the record
// text; advance is the number of bytes to consume, including the terminator
// run that follows the record. ok is false when data holds no complete record;
// advance then covers only the leading terminators.
func nextRecord(data []byte, atEOF bool) (start, end, advance int, ok bool) {
	for start < len(data) && isTerminator(data[start]) {
		start++
	}
	if start == len(data) {
		return start, start, start, false
	}

	end = start
	for end < len(data) && !isTerminator(data[end]) {
		end++
	}
	if end == len(data) && !atEOF {
		return start, start, start, false
	}

	advance = end
	for advance < len(data) && isTerminator(data[advance]) {
		advance++
	}
	return start, end, advance, true
}

func isTerminator(b byte) bool {
	return b == 0x00 || b == '\n'
}
