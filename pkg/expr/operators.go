package expr

import (
	"strings"

	"github.com/leapstack-labs/quill/pkg/funcs"
	"github.com/leapstack-labs/quill/pkg/tplerr"
	"github.com/leapstack-labs/quill/pkg/types"
)

type unaryKind int

const (
	unPlus unaryKind = iota
	unNeg
	unNot
	unBitNot
	unCast
	unNew
	unArray
	unMap
	unCall
	unTemplateCall
)

type binaryKind int

const (
	binArith binaryKind = iota
	binConcat
	binShift
	binBitwise
	binLogic
	binCompare
	binEqual
	binRange
	binInstanceof
	binCond
	binTernary
	binEntry
	binComma
	binMember
	binIndex
)

// Operator priorities. Higher binds tighter; equal priorities reduce left
// to right.
const (
	prioNew    = 1000
	prioCall   = 999
	prioUnary  = 998
	prioComma  = 870
	prioSelect = 880
)

var binaryPriority = map[string]int{
	"*": 990, "/": 990, "%": 990,
	"+": 980, "-": 980,
	"<<": 970, ">>": 970, ">>>": 970,
	"..": 960,
	"<": 950, "<=": 950, ">": 950, ">=": 950, "instanceof": 950,
	"==": 940, "!=": 940,
	"&":  930,
	"^":  920,
	"|":  910,
	"&&": 900,
	"||": 890,
	"?":  prioSelect, ":": prioSelect,
	",": prioComma,
	"[": prioCall,
}

var unaryOperators = map[string]bool{"+": true, "-": true, "!": true, "~": true, "[": true}

func typeErrorf(offset int, format string, args ...any) error {
	return tplerr.NewTypeError(offset, format, args...)
}

func isDynamic(ts ...*types.Type) bool {
	for _, t := range ts {
		if t.Kind == types.KindAny {
			return true
		}
	}
	return false
}

func requireValue(n Node, op string) error {
	if !n.Type().IsValue() {
		return typeErrorf(n.Offset(), "operator %s cannot take %s", op, n.Type())
	}
	return nil
}

// newUnary builds a prefix operator node and computes its static type.
func newUnary(op string, offset int, operand Node) (*Unary, error) {
	u := &Unary{nodeBase: nodeBase{offset: offset}, Op: op, Operand: operand}
	t := operand.Type()
	switch op {
	case "+", "-":
		u.kind = unPlus
		if op == "-" {
			u.kind = unNeg
		}
		switch {
		case isDynamic(t):
			u.typ = types.Any
		case t.IsNumeric():
			u.typ = types.PromoteUnary(t)
		default:
			return nil, typeErrorf(offset, "operator %s cannot be applied to %s", op, t)
		}
	case "!":
		if err := requireValue(operand, op); err != nil {
			return nil, err
		}
		u.kind, u.typ = unNot, types.Bool
	case "~":
		switch {
		case isDynamic(t):
			u.typ = types.Any
		case t.IsIntegral():
			u.typ = types.PromoteUnary(t)
		default:
			return nil, typeErrorf(offset, "operator ~ cannot be applied to %s", t)
		}
		u.kind = unBitNot
	case "[":
		return newLiteral(u)
	default:
		return nil, tplerr.NewSyntaxError(offset, "unsupported unary operator %q", op)
	}
	return u, nil
}

// newLiteral builds an array from plain elements or a map from entries.
func newLiteral(u *Unary) (*Unary, error) {
	u.args = arguments(u.Operand)
	if len(u.args) == 0 {
		u.kind, u.typ = unArray, types.ArrayOf(types.Any)
		return u, nil
	}
	entries := 0
	for _, a := range u.args {
		if err := requireValue(a, "["); err != nil {
			return nil, err
		}
		if a.Type().Kind == types.KindEntry {
			entries++
		}
	}
	if entries == len(u.args) {
		key, val := u.args[0].Type().Key, u.args[0].Type().Elem
		for _, a := range u.args[1:] {
			key = types.Common(key, a.Type().Key)
			val = types.Common(val, a.Type().Elem)
		}
		u.kind, u.typ = unMap, types.MapOf(key, val)
		return u, nil
	}
	elem := u.args[0].Type()
	for _, a := range u.args[1:] {
		elem = types.Common(elem, a.Type())
	}
	u.kind, u.typ = unArray, types.ArrayOf(elem)
	return u, nil
}

// newCast builds a type coercion. Numbers convert between numeric types,
// any converts to everything, and other values only to a type they are
// already assignable to.
func newCast(target *types.Type, offset int, operand Node) (*Unary, error) {
	t := operand.Type()
	ok := types.AssignableTo(t, target) || isDynamic(t) ||
		(t.IsNumeric() && target.IsNumeric()) ||
		(target.Kind == types.KindString && t.Kind == types.KindChar) ||
		(t.IsSequence() && target.IsSequence())
	if !ok {
		return nil, typeErrorf(offset, "cannot cast %s to %s", t, target)
	}
	return &Unary{
		nodeBase: nodeBase{offset: offset, typ: target},
		Op:       "(" + target.String() + ")",
		Operand:  operand,
		kind:     unCast,
		target:   target,
	}, nil
}

// newConstruct builds "new T" or "new T(x)". Without an argument it yields
// the zero value of T, or an empty container.
func newConstruct(target *types.Type, offset int, operand Node) (*Unary, error) {
	u := &Unary{
		nodeBase: nodeBase{offset: offset, typ: target},
		Op:       "new",
		Operand:  operand,
		kind:     unNew,
		target:   target,
		args:     arguments(operand),
	}
	switch len(u.args) {
	case 0:
	case 1:
		if !types.AssignableTo(u.args[0].Type(), target) && !isDynamic(u.args[0].Type()) &&
			!(u.args[0].Type().IsNumeric() && target.IsNumeric()) {
			return nil, typeErrorf(offset, "cannot construct %s from %s", target, u.args[0].Type())
		}
	default:
		return nil, typeErrorf(offset, "new %s takes at most one argument", target)
	}
	return u, nil
}

// newCall resolves a call by name against template variables first and the
// function registry second.
func newCall(name string, offset int, operand Node, env *Env) (*Unary, error) {
	u := &Unary{nodeBase: nodeBase{offset: offset}, Op: name, Operand: operand, name: name}
	u.args = arguments(operand)
	for _, a := range u.args {
		if err := requireValue(a, name); err != nil {
			return nil, err
		}
	}
	if t, ok := env.lookup(name); ok && t.Kind == types.KindTemplate {
		u.kind, u.typ = unTemplateCall, types.String
		return u, nil
	}
	argTypes := argumentTypes(u.args)
	if env.Functions != nil {
		if fn, ok := env.Functions.Resolve(name, argTypes); ok {
			u.kind, u.fn, u.typ = unCall, fn, fn.ResultType(argTypes)
			return u, nil
		}
		if env.Functions.Has(name) {
			return nil, typeErrorf(offset, "no overload of %s accepts (%s)", name, typeList(argTypes))
		}
	}
	return nil, typeErrorf(offset, "undefined function %s(%s)", name, typeList(argTypes))
}

func typeList(ts []*types.Type) string {
	parts := make([]string, len(ts))
	for i, t := range ts {
		parts[i] = t.String()
	}
	return strings.Join(parts, ", ")
}

// newBinary builds an infix operator node and computes its static type.
func newBinary(op string, offset int, left, right Node, env *Env) (*Binary, error) {
	b := &Binary{nodeBase: nodeBase{offset: offset}, Op: op, Left: left, Right: right}
	if strings.HasPrefix(op, ".") && op != ".." {
		return newMember(b, env)
	}
	lt, rt := left.Type(), right.Type()
	switch op {
	case ",":
		elems := []*types.Type{lt, rt}
		if l, ok := left.(*Binary); ok && l.kind == binComma {
			elems = append(append([]*types.Type{}, lt.Elems...), rt)
		}
		b.kind, b.typ = binComma, types.TupleOf(elems...)
		return b, nil
	case "[":
		return newIndex(b)
	case "?":
		if err := requireValue(left, op); err != nil {
			return nil, err
		}
		if err := requireValue(right, op); err != nil {
			return nil, err
		}
		b.kind, b.typ = binCond, rt
		return b, nil
	case ":":
		if err := requireValue(right, op); err != nil {
			return nil, err
		}
		if l, ok := left.(*Binary); ok && l.kind == binCond {
			b.kind, b.typ = binTernary, types.Common(l.Right.Type(), rt)
			return b, nil
		}
		if err := requireValue(left, op); err != nil {
			return nil, err
		}
		b.kind, b.typ = binEntry, types.EntryOf(lt, rt)
		return b, nil
	case "instanceof":
		if rt.Kind != types.KindTypeName {
			return nil, typeErrorf(offset, "instanceof requires a type, got %s", rt)
		}
		if err := requireValue(left, op); err != nil {
			return nil, err
		}
		b.kind, b.typ = binInstanceof, types.Bool
		return b, nil
	}

	if err := requireValue(left, op); err != nil {
		return nil, err
	}
	if err := requireValue(right, op); err != nil {
		return nil, err
	}
	switch op {
	case "+":
		switch {
		case lt.Kind == types.KindString || rt.Kind == types.KindString:
			b.kind, b.typ = binConcat, types.String
		case isDynamic(lt, rt):
			b.kind, b.typ = binArith, types.Any
		case lt.IsNumeric() && rt.IsNumeric():
			b.kind, b.typ = binArith, types.Promote(lt, rt)
		default:
			return nil, typeErrorf(offset, "operator + cannot be applied to %s and %s", lt, rt)
		}
	case "-", "*", "/", "%":
		switch {
		case isDynamic(lt, rt):
			b.kind, b.typ = binArith, types.Any
		case lt.IsNumeric() && rt.IsNumeric():
			b.kind, b.typ = binArith, types.Promote(lt, rt)
		default:
			return nil, typeErrorf(offset, "operator %s cannot be applied to %s and %s", op, lt, rt)
		}
	case "<<", ">>", ">>>":
		switch {
		case isDynamic(lt, rt):
			b.typ = types.Any
		case lt.IsIntegral() && rt.IsIntegral():
			b.typ = types.PromoteUnary(lt)
		default:
			return nil, typeErrorf(offset, "operator %s cannot be applied to %s and %s", op, lt, rt)
		}
		b.kind = binShift
	case "&", "|", "^":
		switch {
		case lt.Kind == types.KindBool && rt.Kind == types.KindBool:
			b.typ = types.Bool
		case isDynamic(lt, rt):
			b.typ = types.Any
		case lt.IsIntegral() && rt.IsIntegral():
			b.typ = types.Promote(lt, rt)
		default:
			return nil, typeErrorf(offset, "operator %s cannot be applied to %s and %s", op, lt, rt)
		}
		b.kind = binBitwise
	case "&&", "||":
		b.kind, b.typ = binLogic, types.Bool
	case "==", "!=":
		b.kind, b.typ = binEqual, types.Bool
	case "<", "<=", ">", ">=":
		ok := isDynamic(lt, rt) ||
			(lt.IsNumeric() && rt.IsNumeric()) ||
			(lt.Kind == types.KindString && rt.Kind == types.KindString) ||
			(lt.Kind == types.KindBool && rt.Kind == types.KindBool)
		if !ok {
			return nil, typeErrorf(offset, "operator %s cannot compare %s and %s", op, lt, rt)
		}
		b.kind, b.typ = binCompare, types.Bool
	case "..":
		switch {
		case lt.Kind == types.KindChar && rt.Kind == types.KindChar:
			b.typ = types.ArrayOf(types.Char)
		case lt.IsIntegral() && rt.IsIntegral():
			b.typ = types.ArrayOf(types.Promote(lt, rt))
		case lt.Kind == types.KindString && rt.Kind == types.KindString:
			if env.Sequences == nil {
				return nil, typeErrorf(offset, "no sequences are configured for string ranges")
			}
			b.typ, b.seqs = types.ArrayOf(types.String), env.Sequences
		case isDynamic(lt, rt):
			b.typ, b.seqs = types.ArrayOf(types.Any), env.Sequences
		default:
			return nil, typeErrorf(offset, "operator .. cannot be applied to %s and %s", lt, rt)
		}
		b.kind = binRange
	default:
		return nil, tplerr.NewSyntaxError(offset, "unsupported binary operator %q", op)
	}
	return b, nil
}

func newIndex(b *Binary) (*Binary, error) {
	lt, rt := b.Left.Type(), b.Right.Type()
	if err := requireValue(b.Right, "["); err != nil {
		return nil, err
	}
	b.kind = binIndex
	switch lt.Kind {
	case types.KindArray, types.KindList:
		if !rt.IsIntegral() && !isDynamic(rt) {
			return nil, typeErrorf(b.offset, "index of %s must be integral, got %s", lt, rt)
		}
		b.typ = lt.Elem
	case types.KindString:
		if !rt.IsIntegral() && !isDynamic(rt) {
			return nil, typeErrorf(b.offset, "index of string must be integral, got %s", rt)
		}
		b.typ = types.Char
	case types.KindMap:
		if !types.AssignableTo(rt, lt.Key) {
			return nil, typeErrorf(b.offset, "key of %s cannot be %s", lt, rt)
		}
		b.typ = lt.Elem
	case types.KindAny:
		b.typ = types.Any
	default:
		return nil, typeErrorf(b.offset, "%s cannot be indexed", lt)
	}
	return b, nil
}

func resolveFunction(env *Env, name string, args []*types.Type) (*funcs.Function, bool) {
	if env.Functions == nil {
		return nil, false
	}
	return env.Functions.Resolve(name, args)
}
