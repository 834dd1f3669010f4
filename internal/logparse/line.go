package logparse

import (
	"strconv"
	"unicode"
	"unicode/utf8"

	"github.com/tinytelemetry/logstat/internal/model"
)

// ParseLine parses a single record. line must not contain the terminator.
//
// Layout: <month> <day> <time> <hostname> <process>[<pid>]: <message>
//
// Month, time, hostname and process may be empty. The day and pid need at
// least one digit, and the "[", "]" and ":" delimiters must be present.
func ParseLine(line []byte) (model.LogEntry, error) {
	entry, perr := parseRecord(line)
	if perr != nil {
		return model.LogEntry{}, perr
	}
	return entry, nil
}

func parseRecord(line []byte) (model.LogEntry, *ParseError) {
	if !utf8.Valid(line) {
		return model.LogEntry{}, &ParseError{Kind: ErrInvalidText, Field: "text", Detail: "record is not valid UTF-8"}
	}
	c := cursor{s: string(line)}

	month := c.takeWhile(isAlphabetic)
	c.skipSpace()

	day := c.takeWhile(isDigit)
	if day == "" {
		return model.LogEntry{}, &ParseError{Kind: ErrNumber, Field: "day", Detail: "no digits"}
	}
	c.skipSpace()

	clock := c.takeWhile(isClock)
	c.skipSpace()

	hostname := c.takeWhile(isNotSpace)
	c.skipSpace()

	process := c.takeWhile(func(r rune) bool { return r != '[' })
	if !c.expect('[') {
		return model.LogEntry{}, malformed("process", `missing "["`)
	}

	digits := c.takeWhile(isDigit)
	if digits == "" {
		return model.LogEntry{}, &ParseError{Kind: ErrNumber, Field: "pid", Detail: "no digits"}
	}
	pid, err := strconv.ParseUint(digits, 10, 32)
	if err != nil {
		return model.LogEntry{}, &ParseError{Kind: ErrNumber, Field: "pid", Err: err}
	}
	if !c.expect(']') {
		return model.LogEntry{}, malformed("pid", `missing "]"`)
	}
	if !c.expect(':') {
		return model.LogEntry{}, malformed("pid", `missing ":"`)
	}
	c.skipSpace()

	return model.LogEntry{
		Timestamp:   month + " " + day + " " + clock,
		Hostname:    hostname,
		ProcessName: process,
		PID:         uint32(pid),
		Message:     c.rest(),
	}, nil
}

// cursor walks a validated UTF-8 record.
type cursor struct {
	s   string
	pos int
}

func (c *cursor) takeWhile(pred func(rune) bool) string {
	start := c.pos
	for c.pos < len(c.s) {
		r, size := utf8.DecodeRuneInString(c.s[c.pos:])
		if !pred(r) {
			break
		}
		c.pos += size
	}
	return c.s[start:c.pos]
}

func (c *cursor) skipSpace() {
	c.takeWhile(unicode.IsSpace)
}

func (c *cursor) expect(b byte) bool {
	if c.pos < len(c.s) && c.s[c.pos] == b {
		c.pos++
		return true
	}
	return false
}

func (c *cursor) rest() string {
	return c.s[c.pos:]
}

// isAlphabetic matches the Unicode Alphabetic property: letters, letter
// numbers and other alphabetic marks.
func isAlphabetic(r rune) bool {
	return unicode.IsLetter(r) || unicode.In(r, unicode.Nl, unicode.Other_Alphabetic)
}

func isDigit(r rune) bool    { return r >= '0' && r <= '9' }
func isClock(r rune) bool    { return isDigit(r) || r == ':' }
func isNotSpace(r rune) bool { return !unicode.IsSpace(r) }
