package tplerr

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Location is a human-readable source position.
type Location struct {
	Line    int
	Column  int
	Snippet string
}

// Locate converts a byte offset into a 1-based line and column and a
// two-line snippet pointing at the column with a caret.
func Locate(source string, offset int) Location {
	if offset < 0 {
		return Location{}
	}
	if offset > len(source) {
		offset = len(source)
	}
	line := 1 + strings.Count(source[:offset], "\n")
	start := strings.LastIndexByte(source[:offset], '\n') + 1
	end := strings.IndexByte(source[offset:], '\n')
	if end < 0 {
		end = len(source)
	} else {
		end += offset
	}
	text := strings.TrimRight(source[start:end], "\r")
	col := utf8.RuneCountInString(source[start:offset]) + 1

	var pad strings.Builder
	for _, r := range source[start:offset] {
		if r == '\t' {
			pad.WriteByte('\t')
		} else {
			pad.WriteByte(' ')
		}
	}
	return Location{
		Line:    line,
		Column:  col,
		Snippet: text + "\n" + pad.String() + "^",
	}
}

// CompileError ties a compile-time failure to the template it came from.
type CompileError struct {
	Template string
	Location
	Err error
}

func (e *CompileError) Error() string {
	msg := e.Err.Error()
	var pe Error
	if errors.As(e.Err, &pe) {
		msg = pe.Message()
	}
	if e.Line == 0 {
		return fmt.Sprintf("%s: %s", e.Template, msg)
	}
	return fmt.Sprintf("%s:%d:%d: %s\n%s", e.Template, e.Line, e.Column, msg, e.Snippet)
}

func (e *CompileError) Unwrap() error { return e.Err }

// Annotate wraps err with the template name and, when err carries an
// offset, the location snippet computed against source. Resource errors and
// errors that are already annotated pass through untouched.
func Annotate(template, source string, err error) error {
	if err == nil {
		return nil
	}
	var ce *CompileError
	if errors.As(err, &ce) {
		return err
	}
	var re *ResourceError
	if errors.As(err, &re) {
		return err
	}
	out := &CompileError{Template: template, Err: err}
	if off := OffsetOf(err); off >= 0 {
		out.Location = Locate(source, off)
	}
	return out
}
