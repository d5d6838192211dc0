// Package starlark runs Starlark callables as template functions.
//
// Template values are converted to Starlark values on the way in and back
// on the way out. Calls run on pooled threads so concurrent renders never
// share a thread.
package starlark

import (
	"fmt"
	"reflect"
	"sort"
	"time"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/leapstack-labs/quill/pkg/types"
)

// GoToStarlark converts a template value to a Starlark value. Integers of
// every width become Int, float32 and float64 become Float, slices become
// lists and string-keyed maps become dicts. Map entries become (key, value)
// tuples and times are passed as RFC 3339 strings.
func GoToStarlark(v any) (starlark.Value, error) {
	if v == nil {
		return starlark.None, nil
	}

	switch val := v.(type) {
	case starlark.Value:
		return val, nil
	case string:
		return starlark.String(val), nil
	case bool:
		return starlark.Bool(val), nil
	case int:
		return starlark.MakeInt(val), nil
	case int8:
		return starlark.MakeInt(int(val)), nil
	case int16:
		return starlark.MakeInt(int(val)), nil
	case int32:
		return starlark.MakeInt(int(val)), nil
	case int64:
		return starlark.MakeInt64(val), nil
	case uint8:
		return starlark.MakeUint(uint(val)), nil
	case uint16:
		return starlark.MakeUint(uint(val)), nil
	case uint32:
		return starlark.MakeUint(uint(val)), nil
	case uint:
		return starlark.MakeUint(val), nil
	case uint64:
		return starlark.MakeUint64(val), nil
	case float32:
		return starlark.Float(val), nil
	case float64:
		return starlark.Float(val), nil
	case time.Time:
		return starlark.String(val.Format(time.RFC3339)), nil
	case types.MapEntry:
		k, err := GoToStarlark(val.Key)
		if err != nil {
			return nil, fmt.Errorf("entry key: %w", err)
		}
		e, err := GoToStarlark(val.Value)
		if err != nil {
			return nil, fmt.Errorf("entry value: %w", err)
		}
		return starlark.Tuple{k, e}, nil
	case []string:
		list := make([]starlark.Value, len(val))
		for i, s := range val {
			list[i] = starlark.String(s)
		}
		return starlark.NewList(list), nil
	case []any:
		return listOf(len(val), func(i int) any { return val[i] })
	case map[string]any:
		dict := starlark.NewDict(len(val))
		for k, item := range val {
			sv, err := GoToStarlark(item)
			if err != nil {
				return nil, fmt.Errorf("dict key %q: %w", k, err)
			}
			if err := dict.SetKey(starlark.String(k), sv); err != nil {
				return nil, fmt.Errorf("dict setkey %q: %w", k, err)
			}
		}
		return dict, nil
	case fmt.Stringer:
		return starlark.String(val.String()), nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		return listOf(rv.Len(), func(i int) any { return rv.Index(i).Interface() })
	case reflect.Map:
		dict := starlark.NewDict(rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			k, err := GoToStarlark(iter.Key().Interface())
			if err != nil {
				return nil, fmt.Errorf("dict key: %w", err)
			}
			item, err := GoToStarlark(iter.Value().Interface())
			if err != nil {
				return nil, fmt.Errorf("dict key %s: %w", k, err)
			}
			if err := dict.SetKey(k, item); err != nil {
				return nil, fmt.Errorf("dict setkey %s: %w", k, err)
			}
		}
		return dict, nil
	}
	return nil, fmt.Errorf("unsupported type: %T", v)
}

func listOf(n int, at func(i int) any) (starlark.Value, error) {
	list := make([]starlark.Value, n)
	for i := 0; i < n; i++ {
		sv, err := GoToStarlark(at(i))
		if err != nil {
			return nil, fmt.Errorf("list index %d: %w", i, err)
		}
		list[i] = sv
	}
	return starlark.NewList(list), nil
}

// ToGo converts a Starlark value back to a template value: string, int64,
// float64, bool, []any, map[string]any or nil. Structs become maps of their
// fields.
func ToGo(v starlark.Value) (any, error) {
	switch val := v.(type) {
	case starlark.NoneType:
		return nil, nil

	case starlark.String:
		return string(val), nil

	case starlark.Int:
		i64, ok := val.Int64()
		if !ok {
			return val.String(), nil
		}
		return i64, nil

	case starlark.Float:
		return float64(val), nil

	case starlark.Bool:
		return bool(val), nil

	case *starlark.List:
		return sequence(val)

	case starlark.Tuple:
		return sequence(val)

	case *starlark.Dict:
		result := make(map[string]any, val.Len())
		for _, item := range val.Items() {
			key, ok := item[0].(starlark.String)
			if !ok {
				return nil, fmt.Errorf("dict key must be string, got %s", item[0].Type())
			}
			gv, err := ToGo(item[1])
			if err != nil {
				return nil, fmt.Errorf("dict key %q: %w", key, err)
			}
			result[string(key)] = gv
		}
		return result, nil

	case *starlarkstruct.Struct:
		names := val.AttrNames()
		sort.Strings(names)
		result := make(map[string]any, len(names))
		for _, name := range names {
			attr, err := val.Attr(name)
			if err != nil {
				return nil, err
			}
			gv, err := ToGo(attr)
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", name, err)
			}
			result[name] = gv
		}
		return result, nil

	default:
		return val.String(), nil
	}
}

func sequence(s starlark.Indexable) ([]any, error) {
	result := make([]any, s.Len())
	for i := 0; i < s.Len(); i++ {
		gv, err := ToGo(s.Index(i))
		if err != nil {
			return nil, fmt.Errorf("index %d: %w", i, err)
		}
		result[i] = gv
	}
	return result, nil
}
