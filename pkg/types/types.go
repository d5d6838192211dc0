// Package types is the static type model of the expression language.
//
// Every expression node carries a *Type computed at translation time.
// Types are compared structurally; the package-level singletons exist for
// convenience and are never mutated.
package types

import (
	"strings"
)

// Kind identifies the shape of a Type.
type Kind int

// Kind constants. The numeric kinds are ordered by widening rank.
const (
	KindInvalid Kind = iota
	KindAny
	KindNull
	KindBool
	KindByte
	KindShort
	KindInt
	KindLong
	KindFloat
	KindDouble
	KindChar
	KindString
	KindArray
	KindList
	KindMap
	KindEntry
	KindTuple
	KindTemplate
	KindStatus
	KindTypeName
)

// Type is a static type.
type Type struct {
	Kind  Kind
	Key   *Type   // map and entry keys
	Elem  *Type   // array, list and map values; the referenced type of a type name
	Elems []*Type // tuple members
}

// Singletons for the non-parameterized kinds.
var (
	Any      = &Type{Kind: KindAny}
	Null     = &Type{Kind: KindNull}
	Bool     = &Type{Kind: KindBool}
	Byte     = &Type{Kind: KindByte}
	Short    = &Type{Kind: KindShort}
	Int      = &Type{Kind: KindInt}
	Long     = &Type{Kind: KindLong}
	Float    = &Type{Kind: KindFloat}
	Double   = &Type{Kind: KindDouble}
	Char     = &Type{Kind: KindChar}
	String   = &Type{Kind: KindString}
	Template = &Type{Kind: KindTemplate}
	Status   = &Type{Kind: KindStatus}
)

// ArrayOf returns the array type with the given element type.
func ArrayOf(elem *Type) *Type { return &Type{Kind: KindArray, Elem: orAny(elem)} }

// ListOf returns the list type with the given element type.
func ListOf(elem *Type) *Type { return &Type{Kind: KindList, Elem: orAny(elem)} }

// MapOf returns the map type with the given key and value types.
func MapOf(key, elem *Type) *Type {
	return &Type{Kind: KindMap, Key: orAny(key), Elem: orAny(elem)}
}

// EntryOf returns the map entry type with the given key and value types.
func EntryOf(key, elem *Type) *Type {
	return &Type{Kind: KindEntry, Key: orAny(key), Elem: orAny(elem)}
}

// TupleOf returns the type of a comma-separated argument list.
func TupleOf(elems ...*Type) *Type { return &Type{Kind: KindTuple, Elems: elems} }

// NameOf returns the type of a type name used as an operand, as on the
// right-hand side of instanceof.
func NameOf(t *Type) *Type { return &Type{Kind: KindTypeName, Elem: t} }

func orAny(t *Type) *Type {
	if t == nil {
		return Any
	}
	return t
}

// IsNumeric reports whether values of t take part in arithmetic.
func (t *Type) IsNumeric() bool {
	return t.Kind >= KindByte && t.Kind <= KindChar
}

// IsIntegral reports whether t is a numeric type without a fraction.
func (t *Type) IsIntegral() bool {
	switch t.Kind {
	case KindByte, KindShort, KindInt, KindLong, KindChar:
		return true
	}
	return false
}

// IsPrimitive reports whether t can never hold null.
func (t *Type) IsPrimitive() bool {
	return t.Kind == KindBool || t.IsNumeric()
}

// IsNullable reports whether null is assignable to t.
func (t *Type) IsNullable() bool {
	switch t.Kind {
	case KindAny, KindNull, KindString, KindArray, KindList, KindMap, KindEntry, KindTemplate, KindStatus:
		return true
	}
	return false
}

// IsSequence reports whether t is an array or list.
func (t *Type) IsSequence() bool {
	return t.Kind == KindArray || t.Kind == KindList
}

// IsValue reports whether t can be stored in a variable. Tuples and type
// names only exist as operator operands.
func (t *Type) IsValue() bool {
	return t.Kind != KindTuple && t.Kind != KindTypeName && t.Kind != KindInvalid
}

// Equal reports whether two types are structurally identical.
func Equal(a, b *Type) bool {
	if a == b {
		return true
	}
	if a == nil || b == nil || a.Kind != b.Kind {
		return false
	}
	if !Equal(a.Key, b.Key) || !Equal(a.Elem, b.Elem) {
		return false
	}
	if len(a.Elems) != len(b.Elems) {
		return false
	}
	for i := range a.Elems {
		if !Equal(a.Elems[i], b.Elems[i]) {
			return false
		}
	}
	return true
}

func (t *Type) String() string {
	if t == nil {
		return "<nil>"
	}
	switch t.Kind {
	case KindAny:
		return "any"
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindByte:
		return "byte"
	case KindShort:
		return "short"
	case KindInt:
		return "int"
	case KindLong:
		return "long"
	case KindFloat:
		return "float"
	case KindDouble:
		return "double"
	case KindChar:
		return "char"
	case KindString:
		return "string"
	case KindArray:
		return t.Elem.String() + "[]"
	case KindList:
		return "list<" + t.Elem.String() + ">"
	case KindMap:
		return "map<" + t.Key.String() + "," + t.Elem.String() + ">"
	case KindEntry:
		return "entry<" + t.Key.String() + "," + t.Elem.String() + ">"
	case KindTuple:
		parts := make([]string, len(t.Elems))
		for i, e := range t.Elems {
			parts[i] = e.String()
		}
		return "(" + strings.Join(parts, ", ") + ")"
	case KindTemplate:
		return "template"
	case KindStatus:
		return "status"
	case KindTypeName:
		return "type " + t.Elem.String()
	default:
		return "invalid"
	}
}

// AssignableTo reports whether a value of static type src may be stored in
// a variable of static type dst. Values of type any are accepted everywhere
// and checked when the template runs.
func AssignableTo(src, dst *Type) bool {
	if !src.IsValue() || !dst.IsValue() {
		return false
	}
	if dst.Kind == KindAny || src.Kind == KindAny {
		return true
	}
	if src.Kind == KindNull {
		return dst.IsNullable()
	}
	if src.IsNumeric() && dst.IsNumeric() {
		return widens(src.Kind, dst.Kind)
	}
	switch {
	case src.Kind == KindArray && dst.Kind == KindList,
		src.Kind == KindList && dst.Kind == KindArray:
		return AssignableTo(src.Elem, dst.Elem)
	case src.Kind != dst.Kind:
		return false
	case src.Kind == KindArray, src.Kind == KindList:
		return AssignableTo(src.Elem, dst.Elem)
	case src.Kind == KindMap, src.Kind == KindEntry:
		return AssignableTo(src.Key, dst.Key) && AssignableTo(src.Elem, dst.Elem)
	}
	return true
}

// widens reports whether numeric kind from converts to kind to without loss
// of range.
func widens(from, to Kind) bool {
	if from == to {
		return true
	}
	if from == KindChar {
		return to >= KindInt && to <= KindDouble
	}
	if to == KindChar {
		return false
	}
	return from < to
}

// Promote applies binary numeric promotion: the result is at least int and
// otherwise the wider of the two operands.
func Promote(a, b *Type) *Type {
	if a.Kind == KindAny || b.Kind == KindAny {
		return Any
	}
	switch {
	case a.Kind == KindDouble || b.Kind == KindDouble:
		return Double
	case a.Kind == KindFloat || b.Kind == KindFloat:
		return Float
	case a.Kind == KindLong || b.Kind == KindLong:
		return Long
	}
	return Int
}

// PromoteUnary applies unary numeric promotion.
func PromoteUnary(a *Type) *Type {
	switch a.Kind {
	case KindByte, KindShort, KindChar:
		return Int
	}
	return a
}

// Common returns the narrowest type both a and b are assignable to.
func Common(a, b *Type) *Type {
	switch {
	case Equal(a, b):
		return a
	case a.Kind == KindNull && b.IsNullable():
		return b
	case b.Kind == KindNull && a.IsNullable():
		return a
	case a.IsNumeric() && b.IsNumeric() && a.Kind != KindChar && b.Kind != KindChar:
		if widens(a.Kind, b.Kind) {
			return b
		}
		return a
	case a.Kind == b.Kind && (a.Kind == KindArray || a.Kind == KindList):
		return &Type{Kind: a.Kind, Elem: Common(a.Elem, b.Elem)}
	case a.Kind == b.Kind && (a.Kind == KindMap || a.Kind == KindEntry):
		return &Type{Kind: a.Kind, Key: Common(a.Key, b.Key), Elem: Common(a.Elem, b.Elem)}
	}
	return Any
}

// ElementOf returns the element type produced by iterating over t, and
// false when t is not iterable.
func ElementOf(t *Type) (*Type, bool) {
	switch t.Kind {
	case KindArray, KindList:
		return t.Elem, true
	case KindMap:
		return EntryOf(t.Key, t.Elem), true
	case KindString:
		return Char, true
	case KindAny:
		return Any, true
	}
	return nil, false
}
