// Package expr parses, type-checks and evaluates template expressions.
//
// An expression is parsed from tokens into a tree of Constant, Variable,
// Unary and Binary nodes. Every node's static type is computed while the
// tree is built, against the variable-type environment of the enclosing
// template, so an ill-typed expression never reaches render time.
package expr

import (
	"strings"

	"github.com/leapstack-labs/quill/pkg/funcs"
	"github.com/leapstack-labs/quill/pkg/types"
)

// Vars binds variable names to runtime values.
type Vars map[string]any

// Node is the interface for all expression nodes.
type Node interface {
	// Type is the static type computed when the node was built.
	Type() *types.Type
	// Offset is the byte offset of the node's operator or literal.
	Offset() int
	// Eval computes the node's value against a variable binding.
	Eval(vars Vars) (any, error)
	String() string
	node() // marker method to restrict implementation
}

// nodeBase provides common offset and type handling for all nodes.
type nodeBase struct {
	offset int
	typ    *types.Type
}

func (n *nodeBase) Type() *types.Type { return n.typ }
func (n *nodeBase) Offset() int       { return n.offset }
func (n *nodeBase) node()             {}

// Constant is a literal value.
type Constant struct {
	nodeBase
	Value   any
	Literal string
}

// Variable is a reference to a declared parameter or local.
type Variable struct {
	nodeBase
	Name string
}

// Unary is a prefix operator applied to one operand: negation, logical and
// bitwise not, cast, construction, array or map literal, or a call.
type Unary struct {
	nodeBase
	Op      string
	Operand Node

	kind   unaryKind
	target *types.Type     // cast and new
	fn     *funcs.Function // resolved call
	name   string          // call name
	args   []Node          // call arguments and literal elements
}

// Binary is an infix operator with two operands. Member access is a
// Binary whose operator is ".name" and whose right operand holds the
// arguments.
type Binary struct {
	nodeBase
	Op    string
	Left  Node
	Right Node

	kind   binaryKind
	member *member
	seqs   SequenceSource
}

// empty is the argument of a call written without arguments.
func newEmpty(offset int) *Constant {
	return &Constant{nodeBase: nodeBase{offset: offset, typ: types.TupleOf()}, Value: []any{}}
}

func isEmpty(n Node) bool {
	c, ok := n.(*Constant)
	return ok && c.typ.Kind == types.KindTuple
}

// arguments flattens a comma expression into its members.
func arguments(n Node) []Node {
	if isEmpty(n) {
		return nil
	}
	if b, ok := n.(*Binary); ok && b.kind == binComma {
		return append(arguments(b.Left), b.Right)
	}
	return []Node{n}
}

func argumentTypes(args []Node) []*types.Type {
	out := make([]*types.Type, len(args))
	for i, a := range args {
		out[i] = a.Type()
	}
	return out
}

func joinNodes(nodes []Node) string {
	parts := make([]string, len(nodes))
	for i, n := range nodes {
		parts[i] = n.String()
	}
	return strings.Join(parts, ", ")
}

func (c *Constant) String() string {
	if c.Literal == "" && c.typ.Kind == types.KindTypeName {
		return c.typ.Elem.String()
	}
	return c.Literal
}

func (v *Variable) String() string { return v.Name }

func (u *Unary) String() string {
	switch u.kind {
	case unCall:
		return u.name + "(" + joinNodes(u.args) + ")"
	case unCast:
		return "(" + u.target.String() + ") " + u.Operand.String()
	case unNew:
		return "new " + u.target.String() + "(" + joinNodes(u.args) + ")"
	case unArray, unMap:
		return "[" + joinNodes(u.args) + "]"
	}
	return u.Op + u.Operand.String()
}

func (b *Binary) String() string {
	switch b.kind {
	case binMember:
		if b.member.call || len(b.member.args) > 0 {
			return b.Left.String() + b.Op + "(" + joinNodes(b.member.args) + ")"
		}
		return b.Left.String() + b.Op
	case binIndex:
		return b.Left.String() + "[" + b.Right.String() + "]"
	case binComma:
		return b.Left.String() + ", " + b.Right.String()
	case binTernary:
		cond := b.Left.(*Binary)
		return "(" + cond.Left.String() + " ? " + cond.Right.String() + " : " + b.Right.String() + ")"
	}
	return "(" + b.Left.String() + " " + b.Op + " " + b.Right.String() + ")"
}

// Walk calls fn for n and each of its descendants, parents first.
func Walk(n Node, fn func(Node)) {
	if n == nil {
		return
	}
	fn(n)
	switch x := n.(type) {
	case *Unary:
		if x.Operand != nil {
			Walk(x.Operand, fn)
		}
	case *Binary:
		Walk(x.Left, fn)
		Walk(x.Right, fn)
	}
}

// Variables returns the distinct variable names referenced by n, in order
// of first appearance.
func Variables(n Node) []string {
	var out []string
	seen := map[string]bool{}
	add := func(name string) {
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	Walk(n, func(n Node) {
		switch x := n.(type) {
		case *Variable:
			add(x.Name)
		case *Unary:
			if x.kind == unTemplateCall {
				add(x.name)
			}
		}
	})
	return out
}
