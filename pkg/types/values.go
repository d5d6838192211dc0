package types

import (
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"
)

// MapEntry is the runtime value of an entry: an element of an iterated map
// or the result of a "key": value expression.
type MapEntry struct {
	Key   any
	Value any
}

func (e MapEntry) String() string { return fmt.Sprintf("%v=%v", e.Key, e.Value) }

// Renderable is implemented by runtime values of template type.
type Renderable interface {
	RenderArgs(args ...any) (string, error)
}

// Zero returns the value a variable of type t holds before assignment.
func Zero(t *Type) any {
	switch t.Kind {
	case KindBool:
		return false
	case KindByte:
		return int8(0)
	case KindShort:
		return int16(0)
	case KindInt:
		return 0
	case KindLong:
		return int64(0)
	case KindFloat:
		return float32(0)
	case KindDouble:
		return float64(0)
	case KindChar:
		return rune(0)
	case KindString:
		return ""
	}
	return nil
}

// ToInt64 converts any Go integer, float or rune to int64.
func ToInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return int64(n), true
	case float32:
		return int64(n), true
	case float64:
		return int64(n), true
	}
	return 0, false
}

// ToFloat64 converts any Go number to float64.
func ToFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	i, ok := ToInt64(v)
	return float64(i), ok
}

// IsNumber reports whether v is a Go number.
func IsNumber(v any) bool {
	_, ok := ToInt64(v)
	return ok
}

func isFloat(v any) bool {
	switch v.(type) {
	case float32, float64:
		return true
	}
	return false
}

// FromInt64 boxes i as the Go representation of integral kind k.
func FromInt64(i int64, k Kind) any {
	switch k {
	case KindByte:
		return int8(i)
	case KindShort:
		return int16(i)
	case KindInt:
		return int(int32(i))
	case KindChar:
		return rune(i)
	case KindFloat:
		return float32(i)
	case KindDouble:
		return float64(i)
	}
	return i
}

// FromFloat64 boxes f as the Go representation of numeric kind k.
func FromFloat64(f float64, k Kind) any {
	switch k {
	case KindFloat:
		return float32(f)
	case KindDouble:
		return f
	}
	return FromInt64(int64(f), k)
}

// Convert coerces a runtime value to the representation of t. Numbers
// convert between numeric kinds, nil becomes the zero value of primitive
// kinds, and container values are checked for shape only.
func Convert(v any, t *Type) (any, error) {
	if t.Kind == KindAny || t.Kind == KindNull {
		return v, nil
	}
	if v == nil {
		if t.IsPrimitive() {
			return Zero(t), nil
		}
		return nil, nil
	}
	switch {
	case t.Kind == KindBool:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case t.Kind == KindChar:
		if s, ok := v.(string); ok && utf8.RuneCountInString(s) == 1 {
			r, _ := utf8.DecodeRuneInString(s)
			return r, nil
		}
		if i, ok := ToInt64(v); ok && !isFloat(v) {
			return rune(i), nil
		}
	case t.IsNumeric():
		if isFloat(v) {
			f, _ := ToFloat64(v)
			return FromFloat64(f, t.Kind), nil
		}
		if i, ok := ToInt64(v); ok {
			return FromInt64(i, t.Kind), nil
		}
	case t.Kind == KindString:
		switch s := v.(type) {
		case string:
			return s, nil
		case []byte:
			return string(s), nil
		case rune:
			return string(s), nil
		case fmt.Stringer:
			return s.String(), nil
		}
	case t.Kind == KindArray, t.Kind == KindList:
		switch reflect.ValueOf(v).Kind() {
		case reflect.Slice, reflect.Array:
			return v, nil
		}
	case t.Kind == KindMap:
		if reflect.ValueOf(v).Kind() == reflect.Map {
			return v, nil
		}
	case t.Kind == KindEntry:
		if e, ok := v.(MapEntry); ok {
			return e, nil
		}
	case t.Kind == KindTemplate:
		if r, ok := v.(Renderable); ok {
			return r, nil
		}
	default:
		return v, nil
	}
	return nil, fmt.Errorf("cannot convert %T to %s", v, t)
}

// Truthy applies conventional truthiness: nil, false, zero numbers and
// empty strings, slices and maps are false.
func Truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	}
	if f, ok := ToFloat64(v); ok {
		return f != 0
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() > 0
	case reflect.Pointer, reflect.Interface:
		return !rv.IsNil()
	}
	return true
}

// Of returns the static type that best describes a runtime value.
func Of(v any) *Type {
	switch v.(type) {
	case nil:
		return Null
	case bool:
		return Bool
	case int8:
		return Byte
	case int16:
		return Short
	case int, uint8, uint16:
		return Int
	case int32:
		return Char
	case int64, uint, uint32, uint64:
		return Long
	case float32:
		return Float
	case float64:
		return Double
	case string:
		return String
	case MapEntry:
		return EntryOf(Any, Any)
	case Renderable:
		return Template
	}
	switch reflect.ValueOf(v).Kind() {
	case reflect.Slice:
		return ListOf(Any)
	case reflect.Array:
		return ArrayOf(Any)
	case reflect.Map:
		return MapOf(Any, Any)
	}
	return Any
}

// EqualValues compares two runtime values. Numbers compare by value across Go
// representations.
func EqualValues(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if IsNumber(a) && IsNumber(b) {
		if isFloat(a) || isFloat(b) {
			fa, _ := ToFloat64(a)
			fb, _ := ToFloat64(b)
			return fa == fb
		}
		ia, _ := ToInt64(a)
		ib, _ := ToInt64(b)
		return ia == ib
	}
	if ra, ok := a.(rune); ok {
		if s, ok := b.(string); ok {
			return string(ra) == s
		}
	}
	if ta, tb := reflect.TypeOf(a), reflect.TypeOf(b); ta.Comparable() && tb.Comparable() && ta == tb {
		return a == b
	}
	return reflect.DeepEqual(a, b)
}

// Compare orders two numbers, two strings or two booleans.
func Compare(a, b any) (int, error) {
	if IsNumber(a) && IsNumber(b) {
		if isFloat(a) || isFloat(b) {
			fa, _ := ToFloat64(a)
			fb, _ := ToFloat64(b)
			return cmpFloat(fa, fb), nil
		}
		ia, _ := ToInt64(a)
		ib, _ := ToInt64(b)
		switch {
		case ia < ib:
			return -1, nil
		case ia > ib:
			return 1, nil
		}
		return 0, nil
	}
	if sa, ok := a.(string); ok {
		if sb, ok := b.(string); ok {
			switch {
			case sa < sb:
				return -1, nil
			case sa > sb:
				return 1, nil
			}
			return 0, nil
		}
	}
	if ba, ok := a.(bool); ok {
		if bb, ok := b.(bool); ok {
			switch {
			case ba == bb:
				return 0, nil
			case bb:
				return -1, nil
			}
			return 1, nil
		}
	}
	return 0, fmt.Errorf("cannot compare %T with %T", a, b)
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	case math.IsNaN(a) || math.IsNaN(b):
		return 1
	}
	return 0
}

// Len returns the length of a string (in runes), slice, array or map.
func Len(v any) (int, bool) {
	if s, ok := v.(string); ok {
		return utf8.RuneCountInString(s), true
	}
	if v == nil {
		return 0, true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len(), true
	}
	return 0, false
}

// Iterate flattens an iterable runtime value into its elements. Maps yield
// MapEntry values in sorted key order, strings yield runes, nil yields
// nothing.
func Iterate(v any) ([]any, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case []any:
		return x, nil
	case string:
		out := make([]any, 0, len(x))
		for _, r := range x {
			out = append(out, r)
		}
		return out, nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = rv.Index(i).Interface()
		}
		return out, nil
	case reflect.Map:
		keys := rv.MapKeys()
		sort.SliceStable(keys, func(i, j int) bool {
			return lessKey(keys[i].Interface(), keys[j].Interface())
		})
		out := make([]any, len(keys))
		for i, k := range keys {
			out[i] = MapEntry{Key: k.Interface(), Value: rv.MapIndex(k).Interface()}
		}
		return out, nil
	}
	return nil, fmt.Errorf("cannot iterate over %T", v)
}

func lessKey(a, b any) bool {
	if c, err := Compare(a, b); err == nil {
		return c < 0
	}
	return fmt.Sprint(a) < fmt.Sprint(b)
}

// Text is the plain string form of a runtime value used by string
// concatenation. Null is the empty string and chars are their rune.
func Text(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case rune:
		return string(x)
	case []byte:
		return string(x)
	case fmt.Stringer:
		return x.String()
	}
	return fmt.Sprint(v)
}

// ParseValue converts the text form of a value, as given on a command line
// or in a query string, to a value of type t. Only primitive types, strings
// and any have a text form.
func ParseValue(s string, t *Type) (any, error) {
	switch {
	case t.Kind == KindAny, t.Kind == KindString:
		return s, nil
	case t.Kind == KindBool:
		b, err := strconv.ParseBool(strings.TrimSpace(s))
		if err != nil {
			return nil, fmt.Errorf("%q is not a bool", s)
		}
		return b, nil
	case t.Kind == KindChar:
		if utf8.RuneCountInString(s) != 1 {
			return nil, fmt.Errorf("%q is not a single char", s)
		}
		r, _ := utf8.DecodeRuneInString(s)
		return r, nil
	case t.Kind == KindFloat, t.Kind == KindDouble:
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not a number", s)
		}
		return FromFloat64(f, t.Kind), nil
	case t.IsIntegral():
		i, err := strconv.ParseInt(strings.TrimSpace(s), 0, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not an integer", s)
		}
		v := FromInt64(i, t.Kind)
		if back, _ := ToInt64(v); back != i {
			return nil, fmt.Errorf("%q is out of range for %s", s, t)
		}
		return v, nil
	}
	return nil, fmt.Errorf("%s has no text form", t)
}
