// Package template turns compiled directive units into renderable
// templates.
//
// A Backend turns a Unit into a Program. The Assembler drives the
// directive compiler and the backend for a loaded resource and remembers
// what it built by fingerprint, so an unchanged resource is never compiled
// twice.
package template

import (
	"github.com/leapstack-labs/quill/pkg/directive"
)

// Program is the invokable form of a unit.
type Program interface {
	Execute(ctx *directive.Context) error
}

// Backend produces programs from units.
type Backend interface {
	Compile(unit *directive.Unit) (Program, error)
}

// BackendFunc adapts a function to Backend.
type BackendFunc func(unit *directive.Unit) (Program, error)

func (f BackendFunc) Compile(unit *directive.Unit) (Program, error) { return f(unit) }

// Interpreter executes the fragment tree directly.
type Interpreter struct{}

// NewInterpreter returns the default backend.
func NewInterpreter() Interpreter { return Interpreter{} }

func (Interpreter) Compile(unit *directive.Unit) (Program, error) {
	return &interpreted{root: unit.Root}, nil
}

type interpreted struct {
	root *directive.Sequence
}

func (p *interpreted) Execute(ctx *directive.Context) error {
	return p.root.Execute(ctx)
}
