package logparse

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds. A *ParseError always unwraps to exactly one of them.
var (
	// ErrMalformedRecord reports a missing field or delimiter.
	ErrMalformedRecord = errors.New("malformed record")
	// ErrInvalidText reports a record that is not valid UTF-8.
	ErrInvalidText = errors.New("invalid text")
	// ErrNumber reports a digit field that is empty or does not fit its type.
	ErrNumber = errors.New("invalid number")
)

// ParseError describes why a record could not be parsed.
// Parsing stops at the first ParseError; records are never skipped.
type ParseError struct {
	Kind   error  // ErrMalformedRecord, ErrInvalidText or ErrNumber
	Field  string // day, process, pid or text
	Detail string
	Record int   // 1-based record index, 0 when parsing a lone line
	Offset int64 // byte offset of the record start in the input
	Err    error // underlying cause, if any
}

func (e *ParseError) Error() string {
	var b strings.Builder
	if e.Record > 0 {
		fmt.Fprintf(&b, "record %d (offset %d): ", e.Record, e.Offset)
	}
	b.WriteString(e.Kind.Error())
	if e.Field != "" {
		b.WriteString(": ")
		b.WriteString(e.Field)
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes both the error kind and the underlying cause.
func (e *ParseError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func malformed(field, detail string) *ParseError {
	return &ParseError{Kind: ErrMalformedRecord, Field: field, Detail: detail}
}
