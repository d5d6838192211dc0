package expr

import (
	"reflect"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/leapstack-labs/quill/pkg/funcs"
	"github.com/leapstack-labs/quill/pkg/tplerr"
	"github.com/leapstack-labs/quill/pkg/types"
)

type memberKind int

const (
	mbLength memberKind = iota
	mbIsEmpty
	mbGet
	mbContains
	mbKeys
	mbValues
	mbContainsKey
	mbKey
	mbValue
	mbStatus
	mbMapKey
	mbFunc
	mbDynamic
)

// member is the resolved form of receiver.name(args).
type member struct {
	name string
	args []Node
	call bool
	kind memberKind
	fn   *funcs.Function
	reg  *funcs.Registry
}

// newMember resolves a member access. Built-in members of the receiver's
// static type win, then registry functions taking the receiver as their
// first argument, then map key lookup. Receivers of type any resolve when
// the template runs, against their runtime type.
func newMember(b *Binary, env *Env) (*Binary, error) {
	m := &member{name: strings.TrimPrefix(b.Op, "."), args: arguments(b.Right)}
	m.call = !isEmpty(b.Right) || b.Right.(*Constant).Literal == "()"
	b.kind, b.member = binMember, m

	rt := b.Left.Type()
	if !rt.IsValue() {
		return nil, typeErrorf(b.offset, "%s has no member %s", rt, m.name)
	}
	for _, a := range m.args {
		if err := requireValue(a, m.name); err != nil {
			return nil, err
		}
	}
	argTypes := argumentTypes(m.args)

	if t, kind, ok := builtinMember(rt, m.name, argTypes); ok {
		m.kind, b.typ = kind, t
		return b, nil
	}
	if rt.Kind == types.KindAny {
		m.kind, m.reg, b.typ = mbDynamic, env.Functions, types.Any
		return b, nil
	}
	withReceiver := append([]*types.Type{rt}, argTypes...)
	if fn, ok := resolveFunction(env, m.name, withReceiver); ok {
		m.kind, m.fn, b.typ = mbFunc, fn, fn.ResultType(withReceiver)
		return b, nil
	}
	if rt.Kind == types.KindMap && len(m.args) == 0 &&
		(rt.Key.Kind == types.KindString || rt.Key.Kind == types.KindAny) {
		m.kind, b.typ = mbMapKey, rt.Elem
		return b, nil
	}
	return nil, typeErrorf(b.offset, "%s has no member %s(%s)", rt, m.name, typeList(argTypes))
}

func builtinMember(rt *types.Type, name string, args []*types.Type) (*types.Type, memberKind, bool) {
	none := len(args) == 0
	one := len(args) == 1
	switch rt.Kind {
	case types.KindString:
		switch {
		case none && (name == "length" || name == "size"):
			return types.Int, mbLength, true
		case none && name == "isEmpty":
			return types.Bool, mbIsEmpty, true
		}
	case types.KindArray, types.KindList:
		switch {
		case none && (name == "length" || name == "size"):
			return types.Int, mbLength, true
		case none && name == "isEmpty":
			return types.Bool, mbIsEmpty, true
		case one && name == "get" && (args[0].IsIntegral() || isDynamic(args[0])):
			return rt.Elem, mbGet, true
		case one && name == "contains":
			return types.Bool, mbContains, true
		}
	case types.KindMap:
		switch {
		case none && name == "size":
			return types.Int, mbLength, true
		case none && name == "isEmpty":
			return types.Bool, mbIsEmpty, true
		case none && (name == "keys" || name == "keySet"):
			return types.ListOf(rt.Key), mbKeys, true
		case none && name == "values":
			return types.ListOf(rt.Elem), mbValues, true
		case one && name == "containsKey":
			return types.Bool, mbContainsKey, true
		case one && name == "get" && types.AssignableTo(args[0], rt.Key):
			return rt.Elem, mbGet, true
		}
	case types.KindEntry:
		switch {
		case none && (name == "key" || name == "getKey"):
			return rt.Key, mbKey, true
		case none && (name == "value" || name == "getValue"):
			return rt.Elem, mbValue, true
		}
	case types.KindStatus:
		if !none {
			return nil, 0, false
		}
		switch name {
		case "index", "count", "size":
			return types.Int, mbStatus, true
		case "first", "last", "odd", "even":
			return types.Bool, mbStatus, true
		case "parent":
			return types.Status, mbStatus, true
		}
	}
	return nil, 0, false
}

func (b *Binary) evalMember(vars Vars) (any, error) {
	m := b.member
	recv, err := b.Left.Eval(vars)
	if err != nil {
		return nil, err
	}
	args := make([]any, len(m.args))
	for i, a := range m.args {
		if args[i], err = a.Eval(vars); err != nil {
			return nil, err
		}
	}
	if m.kind == mbFunc {
		v, err := m.fn.Call(append([]any{recv}, args...))
		if err != nil {
			return nil, tplerr.WrapRenderError(b.offset, "call "+m.name, err)
		}
		return settle(v, b.typ, b.offset)
	}
	if m.kind != mbDynamic && recv == nil {
		if m.kind == mbLength || m.kind == mbIsEmpty {
			return zeroMember(m.kind), nil
		}
		return nil, tplerr.NewRenderErrorf(b.offset, "member %s of null", m.name)
	}
	var v any
	switch m.kind {
	case mbDynamic:
		v, err = dynamicMember(recv, m.name, args, m.call, m.reg)
	default:
		v, err = staticMember(recv, m.kind, m.name, args)
	}
	if err != nil {
		return nil, tplerr.WrapRenderError(b.offset, "member "+m.name, err)
	}
	return settle(v, b.typ, b.offset)
}

func zeroMember(kind memberKind) any {
	if kind == mbLength {
		return 0
	}
	return true
}

func staticMember(recv any, kind memberKind, name string, args []any) (any, error) {
	switch kind {
	case mbLength:
		n, _ := types.Len(recv)
		return n, nil
	case mbIsEmpty:
		n, _ := types.Len(recv)
		return n == 0, nil
	case mbGet:
		if reflect.ValueOf(recv).Kind() == reflect.Map {
			return mapIndex(recv, args[0])
		}
		return sliceIndex(recv, args[0])
	case mbContains:
		items, err := types.Iterate(recv)
		if err != nil {
			return nil, err
		}
		for _, item := range items {
			if types.EqualValues(item, args[0]) {
				return true, nil
			}
		}
		return false, nil
	case mbKeys, mbValues:
		entries, err := types.Iterate(recv)
		if err != nil {
			return nil, err
		}
		out := make([]any, len(entries))
		for i, e := range entries {
			if kind == mbKeys {
				out[i] = e.(types.MapEntry).Key
			} else {
				out[i] = e.(types.MapEntry).Value
			}
		}
		return out, nil
	case mbContainsKey:
		rv := reflect.ValueOf(recv)
		key, ok := mapKey(rv, args[0])
		return ok && rv.MapIndex(key).IsValid(), nil
	case mbKey:
		return recv.(types.MapEntry).Key, nil
	case mbValue:
		return recv.(types.MapEntry).Value, nil
	case mbStatus:
		return recv.(*LoopStatus).member(name)
	case mbMapKey:
		return mapIndex(recv, name)
	}
	return nil, errUnknownMember(recv, name)
}

func errUnknownMember(recv any, name string) error {
	return tplerr.NewRenderErrorf(tplerr.NoOffset, "%T has no member %s", recv, name)
}

// dynamicMember resolves name on a value whose type was unknown at compile
// time. Present map keys win, then built-in members, registry functions,
// methods and struct fields.
func dynamicMember(recv any, name string, args []any, call bool, reg *funcs.Registry) (any, error) {
	if recv == nil {
		return nil, tplerr.NewRenderErrorf(tplerr.NoOffset, "member %s of null", name)
	}
	if s, ok := recv.(*LoopStatus); ok {
		return s.member(name)
	}
	rv := reflect.ValueOf(recv)
	isMap := rv.Kind() == reflect.Map
	if isMap && len(args) == 0 && !call {
		if key, ok := mapKey(rv, name); ok {
			if v := rv.MapIndex(key); v.IsValid() {
				return v.Interface(), nil
			}
		}
	}
	argTypes := typesOf(args)
	if _, kind, ok := builtinMember(types.Of(recv), name, argTypes); ok {
		return staticMember(recv, kind, name, args)
	}
	if reg != nil {
		if fn, ok := reg.Resolve(name, append([]*types.Type{types.Of(recv)}, argTypes...)); ok {
			return fn.Call(append([]any{recv}, args...))
		}
	}
	if isMap && len(args) == 0 {
		return nil, nil
	}
	if m := findMethod(rv, name); m.IsValid() {
		return callMethod(m, args)
	}
	if len(args) == 0 {
		if f := findField(rv, name); f.IsValid() {
			return f.Interface(), nil
		}
	}
	return nil, errUnknownMember(recv, name)
}

func typesOf(args []any) []*types.Type {
	out := make([]*types.Type, len(args))
	for i, a := range args {
		out[i] = types.Of(a)
	}
	return out
}

func exported(name string) string {
	r, n := utf8.DecodeRuneInString(name)
	return string(unicode.ToUpper(r)) + name[n:]
}

func findMethod(rv reflect.Value, name string) reflect.Value {
	for _, n := range []string{name, exported(name), "Get" + exported(name), "Is" + exported(name)} {
		if m := rv.MethodByName(n); m.IsValid() {
			return m
		}
	}
	return reflect.Value{}
}

func findField(rv reflect.Value, name string) reflect.Value {
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return reflect.Value{}
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return reflect.Value{}
	}
	f := rv.FieldByName(exported(name))
	if !f.IsValid() || !f.CanInterface() {
		return reflect.Value{}
	}
	return f
}

func callMethod(m reflect.Value, args []any) (any, error) {
	mt := m.Type()
	if (!mt.IsVariadic() && mt.NumIn() != len(args)) || (mt.IsVariadic() && len(args) < mt.NumIn()-1) {
		return nil, tplerr.NewRenderErrorf(tplerr.NoOffset, "method takes %d arguments, got %d", mt.NumIn(), len(args))
	}
	in := make([]reflect.Value, len(args))
	for i, a := range args {
		pt := paramType(mt, i)
		if a == nil {
			in[i] = reflect.Zero(pt)
			continue
		}
		av := reflect.ValueOf(a)
		switch {
		case av.Type().AssignableTo(pt):
			in[i] = av
		case av.Type().ConvertibleTo(pt) && types.IsNumber(a):
			in[i] = av.Convert(pt)
		default:
			return nil, tplerr.NewRenderErrorf(tplerr.NoOffset, "argument %d: cannot use %T as %s", i+1, a, pt)
		}
	}
	out := m.Call(in)
	switch len(out) {
	case 0:
		return nil, nil
	case 1:
		if err, ok := out[0].Interface().(error); ok && mt.Out(0) == reflect.TypeFor[error]() {
			return nil, err
		}
		return out[0].Interface(), nil
	default:
		if err, ok := out[len(out)-1].Interface().(error); ok && err != nil {
			return nil, err
		}
		return out[0].Interface(), nil
	}
}

func paramType(mt reflect.Type, i int) reflect.Type {
	if mt.IsVariadic() && i >= mt.NumIn()-1 {
		return mt.In(mt.NumIn() - 1).Elem()
	}
	return mt.In(i)
}

func mapKey(rv reflect.Value, k any) (reflect.Value, bool) {
	kt := rv.Type().Key()
	if k == nil {
		return reflect.Zero(kt), kt.Kind() == reflect.Interface
	}
	kv := reflect.ValueOf(k)
	switch {
	case kv.Type().AssignableTo(kt):
		return kv, true
	case types.IsNumber(k) && kv.Type().ConvertibleTo(kt) && kt.Kind() != reflect.String:
		return kv.Convert(kt), true
	}
	return reflect.Value{}, false
}

func mapIndex(m, k any) (any, error) {
	rv := reflect.ValueOf(m)
	if rv.Kind() != reflect.Map {
		return nil, tplerr.NewRenderErrorf(tplerr.NoOffset, "%T is not a map", m)
	}
	key, ok := mapKey(rv, k)
	if !ok {
		return nil, nil
	}
	if v := rv.MapIndex(key); v.IsValid() {
		return v.Interface(), nil
	}
	return nil, nil
}

func sliceIndex(s, i any) (any, error) {
	idx, ok := types.ToInt64(i)
	if !ok {
		return nil, tplerr.NewRenderErrorf(tplerr.NoOffset, "index %v is not a number", i)
	}
	if str, isStr := s.(string); isStr {
		runes := []rune(str)
		if idx < 0 || idx >= int64(len(runes)) {
			return nil, tplerr.NewRenderErrorf(tplerr.NoOffset, "index %d out of range [0:%d]", idx, len(runes))
		}
		return runes[idx], nil
	}
	rv := reflect.ValueOf(s)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
	default:
		return nil, tplerr.NewRenderErrorf(tplerr.NoOffset, "%T cannot be indexed", s)
	}
	if idx < 0 || idx >= int64(rv.Len()) {
		return nil, tplerr.NewRenderErrorf(tplerr.NoOffset, "index %d out of range [0:%d]", idx, rv.Len())
	}
	return rv.Index(int(idx)).Interface(), nil
}
