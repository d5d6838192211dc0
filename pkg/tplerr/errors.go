// Package tplerr defines the error taxonomy shared by every stage of template
// compilation and rendering.
//
// Compile-time errors carry a byte offset into the source they were raised
// against. The engine turns that offset into a line, column and caret snippet
// by wrapping the error in a CompileError.
package tplerr

import (
	"errors"
	"fmt"
)

// NoOffset marks an error that is not tied to a source position.
const NoOffset = -1

// Error is implemented by every positioned error in this package.
type Error interface {
	error
	Offset() int
	Message() string
}

// baseError provides common error functionality.
type baseError struct {
	offset int
	msg    string
}

func (e *baseError) Offset() int     { return e.offset }
func (e *baseError) Message() string { return e.msg }
func (e *baseError) Error() string {
	if e.offset >= 0 {
		return fmt.Sprintf("%s (at offset %d)", e.msg, e.offset)
	}
	return e.msg
}

func (e *baseError) shift(delta int) {
	if e.offset >= 0 {
		e.offset += delta
	}
}

// LexicalError reports an invalid character transition in the tokenizer.
type LexicalError struct {
	baseError
}

// NewLexicalError creates a new lexical error.
func NewLexicalError(offset int, format string, args ...any) *LexicalError {
	return &LexicalError{baseError{offset: offset, msg: fmt.Sprintf(format, args...)}}
}

// SyntaxError reports unbalanced brackets, missing operands, unsupported
// operators and malformed directive values.
type SyntaxError struct {
	baseError
}

// NewSyntaxError creates a new syntax error.
func NewSyntaxError(offset int, format string, args ...any) *SyntaxError {
	return &SyntaxError{baseError{offset: offset, msg: fmt.Sprintf(format, args...)}}
}

// TypeError reports unresolved variables, conflicting declarations, missing
// callables and operands of incompatible types.
type TypeError struct {
	baseError
}

// NewTypeError creates a new type error.
func NewTypeError(offset int, format string, args ...any) *TypeError {
	return &TypeError{baseError{offset: offset, msg: fmt.Sprintf(format, args...)}}
}

// ResourceError reports a missing template or an I/O failure while loading one.
type ResourceError struct {
	baseError
	Name  string
	Cause error
}

// NewResourceError creates a resource error for the named template.
func NewResourceError(name string, cause error) *ResourceError {
	msg := fmt.Sprintf("template %q not found", name)
	if cause != nil {
		msg = fmt.Sprintf("template %q: %v", name, cause)
	}
	return &ResourceError{
		baseError: baseError{offset: NoOffset, msg: msg},
		Name:      name,
		Cause:     cause,
	}
}

func (e *ResourceError) Unwrap() error { return e.Cause }

// BackendError is an opaque failure from the code-production backend,
// annotated with the template name and an excerpt of the compiled unit.
type BackendError struct {
	baseError
	Template string
	Excerpt  string
	Cause    error
}

// NewBackendError wraps a backend failure.
func NewBackendError(template, excerpt string, cause error) *BackendError {
	return &BackendError{
		baseError: baseError{offset: NoOffset, msg: fmt.Sprintf("compile %s: %v", template, cause)},
		Template:  template,
		Excerpt:   excerpt,
		Cause:     cause,
	}
}

func (e *BackendError) Error() string {
	if e.Excerpt == "" {
		return e.msg
	}
	return e.msg + "\n" + e.Excerpt
}

func (e *BackendError) Unwrap() error { return e.Cause }

// RenderError represents a failure while executing a compiled template.
// Output written before the failure is not rolled back.
type RenderError struct {
	baseError
	Cause error
}

// NewRenderErrorf creates a new render error with formatting.
func NewRenderErrorf(offset int, format string, args ...any) *RenderError {
	return &RenderError{baseError: baseError{offset: offset, msg: fmt.Sprintf(format, args...)}}
}

// WrapRenderError wraps an underlying error as a render error.
func WrapRenderError(offset int, msg string, cause error) *RenderError {
	return &RenderError{
		baseError: baseError{offset: offset, msg: msg},
		Cause:     cause,
	}
}

func (e *RenderError) Error() string {
	base := e.baseError.Error()
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", base, e.Cause)
	}
	return base
}

func (e *RenderError) Unwrap() error { return e.Cause }

// Shift moves the offset of a positioned error by delta. Errors raised
// against an expression are shifted into the coordinates of the enclosing
// template this way. Other errors are returned unchanged.
func Shift(err error, delta int) error {
	if delta == 0 || err == nil {
		return err
	}
	switch e := err.(type) {
	case *LexicalError:
		e.shift(delta)
	case *SyntaxError:
		e.shift(delta)
	case *TypeError:
		e.shift(delta)
	case *RenderError:
		e.shift(delta)
	}
	return err
}

// OffsetOf returns the source offset carried by err or any error it wraps.
func OffsetOf(err error) int {
	var pe Error
	if errors.As(err, &pe) {
		return pe.Offset()
	}
	return NoOffset
}
