package funcs

import (
	"fmt"
	"reflect"

	"github.com/leapstack-labs/quill/pkg/types"
)

var (
	errorType      = reflect.TypeOf((*error)(nil)).Elem()
	renderableType = reflect.TypeOf((*types.Renderable)(nil)).Elem()
)

// FromGo adapts a Go function to a Function. The function must return a
// single value, or a value and an error. Parameter and result types are
// mapped to static types: Go integers to int or long, floats to float or
// double, slices to lists, maps to maps, and anything else to any.
//
// Reflection happens once, here; calls only convert argument values.
func FromGo(name string, fn any) (*Function, error) {
	rv := reflect.ValueOf(fn)
	rt := rv.Type()
	if rt.Kind() != reflect.Func {
		return nil, &RegistryError{Name: name, Message: fmt.Sprintf("expected a function, got %T", fn)}
	}
	switch {
	case rt.NumOut() == 1 && rt.Out(0) != errorType:
	case rt.NumOut() == 2 && rt.Out(1) == errorType:
	default:
		return nil, &RegistryError{Name: name, Message: "function must return a value or a value and an error"}
	}

	f := &Function{Name: name, Result: staticOf(rt.Out(0))}
	in := make([]reflect.Type, rt.NumIn())
	for i := range in {
		in[i] = rt.In(i)
		if rt.IsVariadic() && i == rt.NumIn()-1 {
			f.Variadic = staticOf(in[i].Elem())
			continue
		}
		f.Params = append(f.Params, staticOf(in[i]))
	}

	f.Call = func(args []any) (any, error) {
		values := make([]reflect.Value, len(args))
		for i, arg := range args {
			target := variadicTarget(rt, in, i)
			v, err := coerce(arg, target)
			if err != nil {
				return nil, fmt.Errorf("%s: argument %d: %w", name, i+1, err)
			}
			values[i] = v
		}
		out := rv.Call(values)
		if len(out) == 2 && !out[1].IsNil() {
			return nil, out[1].Interface().(error)
		}
		return out[0].Interface(), nil
	}
	return f, nil
}

func variadicTarget(rt reflect.Type, in []reflect.Type, i int) reflect.Type {
	if rt.IsVariadic() && i >= len(in)-1 {
		return in[len(in)-1].Elem()
	}
	return in[i]
}

func staticOf(t reflect.Type) *types.Type {
	if t.Implements(renderableType) && t.Kind() == reflect.Interface {
		return types.Template
	}
	switch t.Kind() {
	case reflect.Bool:
		return types.Bool
	case reflect.Int8:
		return types.Byte
	case reflect.Int16:
		return types.Short
	case reflect.Int, reflect.Int32, reflect.Uint8, reflect.Uint16:
		return types.Int
	case reflect.Int64, reflect.Uint, reflect.Uint32, reflect.Uint64:
		return types.Long
	case reflect.Float32:
		return types.Float
	case reflect.Float64:
		return types.Double
	case reflect.String:
		return types.String
	case reflect.Slice:
		return types.ListOf(staticOf(t.Elem()))
	case reflect.Array:
		return types.ArrayOf(staticOf(t.Elem()))
	case reflect.Map:
		return types.MapOf(staticOf(t.Key()), staticOf(t.Elem()))
	}
	return types.Any
}

func isNumberKind(k reflect.Kind) bool {
	return k >= reflect.Int && k <= reflect.Float64
}

// coerce converts a runtime value to the Go type a function parameter
// expects.
func coerce(v any, t reflect.Type) (reflect.Value, error) {
	if v == nil {
		return reflect.Zero(t), nil
	}
	rv := reflect.ValueOf(v)
	switch {
	case rv.Type().AssignableTo(t):
		return rv, nil
	case isNumberKind(rv.Kind()) && isNumberKind(t.Kind()):
		return rv.Convert(t), nil
	case rv.Kind() == reflect.String && t.Kind() == reflect.String:
		return rv.Convert(t), nil
	case rv.Kind() == reflect.Int32 && t.Kind() == reflect.String:
		return reflect.ValueOf(string(rune(rv.Int()))).Convert(t), nil
	case (rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array) && t.Kind() == reflect.Slice:
		out := reflect.MakeSlice(t, rv.Len(), rv.Len())
		for i := 0; i < rv.Len(); i++ {
			elem, err := coerce(rv.Index(i).Interface(), t.Elem())
			if err != nil {
				return reflect.Value{}, fmt.Errorf("element %d: %w", i, err)
			}
			out.Index(i).Set(elem)
		}
		return out, nil
	case rv.Kind() == reflect.Map && t.Kind() == reflect.Map:
		out := reflect.MakeMapWithSize(t, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			k, err := coerce(iter.Key().Interface(), t.Key())
			if err != nil {
				return reflect.Value{}, err
			}
			val, err := coerce(iter.Value().Interface(), t.Elem())
			if err != nil {
				return reflect.Value{}, err
			}
			out.SetMapIndex(k, val)
		}
		return out, nil
	}
	return reflect.Value{}, fmt.Errorf("cannot use %T as %s", v, t)
}
