package expr

import (
	"math"
	"reflect"

	"github.com/leapstack-labs/quill/pkg/tplerr"
	"github.com/leapstack-labs/quill/pkg/types"
)

// MaxRangeLength is the largest number of elements an integer range
// such as 1..n may hold.
const MaxRangeLength = 1 << 20

// settle converts a computed value to the node's static type.
func settle(v any, t *types.Type, offset int) (any, error) {
	out, err := types.Convert(v, t)
	if err != nil {
		return nil, tplerr.WrapRenderError(offset, "result", err)
	}
	return out, nil
}

func evalAll(nodes []Node, vars Vars) ([]any, error) {
	out := make([]any, len(nodes))
	for i, n := range nodes {
		v, err := n.Eval(vars)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (c *Constant) Eval(Vars) (any, error) { return c.Value, nil }

func (v *Variable) Eval(vars Vars) (any, error) {
	if val, ok := vars[v.Name]; ok && val != nil {
		return val, nil
	}
	return types.Zero(v.typ), nil
}

func (u *Unary) Eval(vars Vars) (any, error) {
	switch u.kind {
	case unArray:
		return evalAll(u.args, vars)
	case unMap:
		return u.evalMap(vars)
	case unCall:
		args, err := evalAll(u.args, vars)
		if err != nil {
			return nil, err
		}
		v, err := u.fn.Call(args)
		if err != nil {
			return nil, tplerr.WrapRenderError(u.offset, "call "+u.name, err)
		}
		return settle(v, u.typ, u.offset)
	case unTemplateCall:
		args, err := evalAll(u.args, vars)
		if err != nil {
			return nil, err
		}
		r, ok := vars[u.name].(types.Renderable)
		if !ok {
			return nil, tplerr.NewRenderErrorf(u.offset, "%s is not a template", u.name)
		}
		out, err := r.RenderArgs(args...)
		if err != nil {
			return nil, tplerr.WrapRenderError(u.offset, "render "+u.name, err)
		}
		return out, nil
	case unNew:
		if len(u.args) == 0 {
			return emptyOf(u.target), nil
		}
		v, err := u.args[0].Eval(vars)
		if err != nil {
			return nil, err
		}
		return settle(v, u.target, u.offset)
	}

	v, err := u.Operand.Eval(vars)
	if err != nil {
		return nil, err
	}
	switch u.kind {
	case unNot:
		return !types.Truthy(v), nil
	case unCast:
		return settle(v, u.target, u.offset)
	case unPlus:
		if !types.IsNumber(v) {
			return nil, tplerr.NewRenderErrorf(u.offset, "operator + cannot be applied to %T", v)
		}
		return settle(v, resultType(u.typ, v, v), u.offset)
	case unNeg:
		t := resultType(u.typ, v, v)
		switch {
		case !types.IsNumber(v):
			return nil, tplerr.NewRenderErrorf(u.offset, "operator - cannot be applied to %T", v)
		case t.IsIntegral():
			i, _ := types.ToInt64(v)
			return types.FromInt64(-i, t.Kind), nil
		default:
			f, _ := types.ToFloat64(v)
			return types.FromFloat64(-f, t.Kind), nil
		}
	case unBitNot:
		t := resultType(u.typ, v, v)
		i, ok := types.ToInt64(v)
		if !ok || !t.IsIntegral() {
			return nil, tplerr.NewRenderErrorf(u.offset, "operator ~ cannot be applied to %T", v)
		}
		return types.FromInt64(^i, t.Kind), nil
	}
	return nil, tplerr.NewRenderErrorf(u.offset, "cannot evaluate %s", u.Op)
}

func (u *Unary) evalMap(vars Vars) (any, error) {
	stringKeys := u.typ.Key.Kind == types.KindString
	sm := make(map[string]any, len(u.args))
	am := make(map[any]any, len(u.args))
	for _, a := range u.args {
		v, err := a.Eval(vars)
		if err != nil {
			return nil, err
		}
		e := v.(types.MapEntry)
		if stringKeys {
			sm[types.Text(e.Key)] = e.Value
			continue
		}
		if e.Key != nil && !reflect.TypeOf(e.Key).Comparable() {
			return nil, tplerr.NewRenderErrorf(a.Offset(), "map key %T is not comparable", e.Key)
		}
		am[e.Key] = e.Value
	}
	if stringKeys {
		return sm, nil
	}
	return am, nil
}

// emptyOf is the value of "new T" without an argument.
func emptyOf(t *types.Type) any {
	switch t.Kind {
	case types.KindArray, types.KindList:
		return []any{}
	case types.KindMap:
		if t.Key.Kind == types.KindString {
			return map[string]any{}
		}
		return map[any]any{}
	}
	return types.Zero(t)
}

// resultType resolves an operator's result type for operands whose static
// type was any.
func resultType(static *types.Type, l, r any) *types.Type {
	if static.Kind != types.KindAny {
		return static
	}
	return types.Promote(types.PromoteUnary(types.Of(l)), types.PromoteUnary(types.Of(r)))
}

func (b *Binary) Eval(vars Vars) (any, error) {
	switch b.kind {
	case binComma:
		return evalAll(arguments(b), vars)
	case binMember:
		return b.evalMember(vars)
	case binLogic:
		return b.evalLogic(vars)
	case binCond:
		return b.evalCond(vars)
	case binTernary:
		cond := b.Left.(*Binary)
		c, err := cond.Left.Eval(vars)
		if err != nil {
			return nil, err
		}
		branch := b.Right
		if types.Truthy(c) {
			branch = cond.Right
		}
		v, err := branch.Eval(vars)
		if err != nil {
			return nil, err
		}
		return settle(v, b.typ, b.offset)
	case binInstanceof:
		v, err := b.Left.Eval(vars)
		if err != nil {
			return nil, err
		}
		return instanceOf(v, b.Right.Type().Elem), nil
	}

	l, err := b.Left.Eval(vars)
	if err != nil {
		return nil, err
	}
	r, err := b.Right.Eval(vars)
	if err != nil {
		return nil, err
	}
	switch b.kind {
	case binConcat:
		return types.Text(l) + types.Text(r), nil
	case binArith:
		if b.Op == "+" && b.typ.Kind == types.KindAny && (isString(l) || isString(r)) {
			return types.Text(l) + types.Text(r), nil
		}
		return b.arith(l, r)
	case binShift:
		return b.shift(l, r)
	case binBitwise:
		return b.bitwise(l, r)
	case binEqual:
		eq := types.EqualValues(l, r)
		if b.Op == "!=" {
			return !eq, nil
		}
		return eq, nil
	case binCompare:
		c, err := types.Compare(l, r)
		if err != nil {
			return nil, tplerr.WrapRenderError(b.offset, "operator "+b.Op, err)
		}
		switch b.Op {
		case "<":
			return c < 0, nil
		case "<=":
			return c <= 0, nil
		case ">":
			return c > 0, nil
		}
		return c >= 0, nil
	case binRange:
		return b.rangeOf(l, r)
	case binEntry:
		return types.MapEntry{Key: l, Value: r}, nil
	case binIndex:
		return b.index(l, r)
	}
	return nil, tplerr.NewRenderErrorf(b.offset, "cannot evaluate %s", b.Op)
}

func isString(v any) bool {
	_, ok := v.(string)
	return ok
}

func (b *Binary) evalLogic(vars Vars) (any, error) {
	l, err := b.Left.Eval(vars)
	if err != nil {
		return nil, err
	}
	lt := types.Truthy(l)
	if (b.Op == "&&" && !lt) || (b.Op == "||" && lt) {
		return lt, nil
	}
	r, err := b.Right.Eval(vars)
	if err != nil {
		return nil, err
	}
	return types.Truthy(r), nil
}

func (b *Binary) evalCond(vars Vars) (any, error) {
	c, err := b.Left.Eval(vars)
	if err != nil {
		return nil, err
	}
	if !types.Truthy(c) {
		return types.Zero(b.typ), nil
	}
	return b.Right.Eval(vars)
}

func (b *Binary) arith(l, r any) (any, error) {
	if !types.IsNumber(l) || !types.IsNumber(r) {
		return nil, tplerr.NewRenderErrorf(b.offset, "operator %s cannot be applied to %T and %T", b.Op, l, r)
	}
	t := resultType(b.typ, l, r)
	if t.IsIntegral() {
		x, _ := types.ToInt64(l)
		y, _ := types.ToInt64(r)
		var z int64
		switch b.Op {
		case "+":
			z = x + y
		case "-":
			z = x - y
		case "*":
			z = x * y
		case "/", "%":
			if y == 0 {
				return nil, tplerr.NewRenderErrorf(b.offset, "division by zero")
			}
			if b.Op == "/" {
				z = x / y
			} else {
				z = x % y
			}
		}
		return types.FromInt64(z, t.Kind), nil
	}
	x, _ := types.ToFloat64(l)
	y, _ := types.ToFloat64(r)
	var z float64
	switch b.Op {
	case "+":
		z = x + y
	case "-":
		z = x - y
	case "*":
		z = x * y
	case "/":
		z = x / y
	case "%":
		z = math.Mod(x, y)
	}
	return types.FromFloat64(z, t.Kind), nil
}

func (b *Binary) shift(l, r any) (any, error) {
	x, ok1 := types.ToInt64(l)
	y, ok2 := types.ToInt64(r)
	t := b.typ
	if t.Kind == types.KindAny {
		t = types.PromoteUnary(types.Of(l))
	}
	if !ok1 || !ok2 || !t.IsIntegral() || y < 0 {
		return nil, tplerr.NewRenderErrorf(b.offset, "operator %s cannot be applied to %v and %v", b.Op, l, r)
	}
	var z int64
	switch b.Op {
	case "<<":
		z = x << uint(y)
	case ">>":
		z = x >> uint(y)
	default:
		if t.Kind == types.KindLong {
			z = int64(uint64(x) >> uint(y))
		} else {
			z = int64(uint32(int32(x)) >> uint(y))
		}
	}
	return types.FromInt64(z, t.Kind), nil
}

func (b *Binary) bitwise(l, r any) (any, error) {
	if x, ok := l.(bool); ok {
		y, ok := r.(bool)
		if !ok {
			return nil, tplerr.NewRenderErrorf(b.offset, "operator %s cannot be applied to bool and %T", b.Op, r)
		}
		switch b.Op {
		case "&":
			return x && y, nil
		case "|":
			return x || y, nil
		}
		return x != y, nil
	}
	x, ok1 := types.ToInt64(l)
	y, ok2 := types.ToInt64(r)
	t := resultType(b.typ, l, r)
	if !ok1 || !ok2 || !t.IsIntegral() {
		return nil, tplerr.NewRenderErrorf(b.offset, "operator %s cannot be applied to %T and %T", b.Op, l, r)
	}
	var z int64
	switch b.Op {
	case "&":
		z = x & y
	case "|":
		z = x | y
	default:
		z = x ^ y
	}
	return types.FromInt64(z, t.Kind), nil
}

func (b *Binary) rangeOf(l, r any) (any, error) {
	if ls, ok := l.(string); ok {
		rs, ok := r.(string)
		if !ok || b.seqs == nil {
			return nil, tplerr.NewRenderErrorf(b.offset, "cannot build a range from %T to %T", l, r)
		}
		seq, err := b.seqs.Sequence(ls, rs)
		if err != nil {
			return nil, tplerr.WrapRenderError(b.offset, "range", err)
		}
		out := make([]any, len(seq))
		for i, s := range seq {
			out[i] = s
		}
		return out, nil
	}
	x, ok1 := types.ToInt64(l)
	y, ok2 := types.ToInt64(r)
	if !ok1 || !ok2 {
		return nil, tplerr.NewRenderErrorf(b.offset, "cannot build a range from %T to %T", l, r)
	}
	kind := b.typ.Elem.Kind
	if kind == types.KindAny {
		kind = resultType(types.Any, l, r).Kind
	}
	step := int64(1)
	span := uint64(y) - uint64(x)
	if y < x {
		step = -1
		span = uint64(x) - uint64(y)
	}
	if span >= MaxRangeLength {
		return nil, tplerr.NewRenderErrorf(b.offset, "range %d..%d exceeds %d elements", x, y, MaxRangeLength)
	}
	out := make([]any, 0, span+1)
	for i := x; ; i += step {
		out = append(out, types.FromInt64(i, kind))
		if i == y {
			break
		}
	}
	return out, nil
}

func (b *Binary) index(l, r any) (any, error) {
	if l == nil {
		return nil, tplerr.NewRenderErrorf(b.offset, "index of null")
	}
	var v any
	var err error
	if reflect.ValueOf(l).Kind() == reflect.Map {
		v, err = mapIndex(l, r)
	} else {
		v, err = sliceIndex(l, r)
	}
	if err != nil {
		return nil, tplerr.WrapRenderError(b.offset, "index", err)
	}
	return settle(v, b.typ, b.offset)
}

// instanceOf reports whether a runtime value belongs to type t.
func instanceOf(v any, t *types.Type) bool {
	if v == nil {
		return false
	}
	if t.Kind == types.KindAny {
		return true
	}
	rt := types.Of(v)
	switch {
	case t.IsSequence():
		return rt.IsSequence()
	case t.Kind == types.KindStatus:
		_, ok := v.(*LoopStatus)
		return ok
	}
	return rt.Kind == t.Kind
}
