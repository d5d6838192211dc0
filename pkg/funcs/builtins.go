package funcs

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/leapstack-labs/quill/pkg/types"
	"golang.org/x/net/html"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Provider is a named group of functions registered together.
type Provider struct {
	Name      string
	Functions []*Function
}

// Builtins returns the standard providers in registration order.
func Builtins() []Provider {
	return []Provider{
		{Name: "strings", Functions: stringFunctions()},
		{Name: "numbers", Functions: numberFunctions()},
		{Name: "collections", Functions: collectionFunctions()},
		{Name: "html", Functions: htmlFunctions()},
		{Name: "time", Functions: timeFunctions()},
	}
}

// NewDefaultRegistry returns a registry populated with the builtins.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	for _, p := range Builtins() {
		// builtins are statically valid
		_ = r.Register(p.Functions...)
	}
	return r
}

func fn(name string, params []*types.Type, result *types.Type, call func(args []any) (any, error)) *Function {
	return &Function{Name: name, Params: params, Result: result, Call: call}
}

func params(ts ...*types.Type) []*types.Type { return ts }

func str(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case nil:
		return ""
	case rune:
		return string(s)
	}
	return fmt.Sprint(v)
}

func strFunc(name string, f func(string) string) *Function {
	return fn(name, params(types.String), types.String, func(args []any) (any, error) {
		return f(str(args[0])), nil
	})
}

func stringFunctions() []*Function {
	title := cases.Title(language.Und)
	return []*Function{
		strFunc("upper", strings.ToUpper),
		strFunc("lower", strings.ToLower),
		strFunc("trim", strings.TrimSpace),
		strFunc("title", func(s string) string { return title.String(s) }),
		fn("replace", params(types.String, types.String, types.String), types.String, func(args []any) (any, error) {
			return strings.ReplaceAll(str(args[0]), str(args[1]), str(args[2])), nil
		}),
		fn("contains", params(types.String, types.String), types.Bool, func(args []any) (any, error) {
			return strings.Contains(str(args[0]), str(args[1])), nil
		}),
		fn("startsWith", params(types.String, types.String), types.Bool, func(args []any) (any, error) {
			return strings.HasPrefix(str(args[0]), str(args[1])), nil
		}),
		fn("endsWith", params(types.String, types.String), types.Bool, func(args []any) (any, error) {
			return strings.HasSuffix(str(args[0]), str(args[1])), nil
		}),
		fn("split", params(types.String, types.String), types.ListOf(types.String), func(args []any) (any, error) {
			return strings.Split(str(args[0]), str(args[1])), nil
		}),
		fn("join", params(types.ListOf(types.Any), types.String), types.String, func(args []any) (any, error) {
			items, err := types.Iterate(args[0])
			if err != nil {
				return nil, err
			}
			parts := make([]string, len(items))
			for i, item := range items {
				parts[i] = str(item)
			}
			return strings.Join(parts, str(args[1])), nil
		}),
		fn("substring", params(types.String, types.Long), types.String, func(args []any) (any, error) {
			runes := []rune(str(args[0]))
			start, _ := types.ToInt64(args[1])
			return substring(runes, start, int64(len(runes)))
		}),
		fn("substring", params(types.String, types.Long, types.Long), types.String, func(args []any) (any, error) {
			start, _ := types.ToInt64(args[1])
			end, _ := types.ToInt64(args[2])
			return substring([]rune(str(args[0])), start, end)
		}),
		fn("length", params(types.String), types.Int, func(args []any) (any, error) {
			return utf8.RuneCountInString(str(args[0])), nil
		}),
		fn("repeat", params(types.String, types.Long), types.String, func(args []any) (any, error) {
			n, _ := types.ToInt64(args[1])
			if n < 0 {
				return nil, fmt.Errorf("repeat: negative count %d", n)
			}
			return strings.Repeat(str(args[0]), int(n)), nil
		}),
	}
}

func substring(runes []rune, start, end int64) (any, error) {
	if start < 0 || end > int64(len(runes)) || start > end {
		return nil, fmt.Errorf("substring: range [%d:%d] out of bounds for length %d", start, end, len(runes))
	}
	return string(runes[start:end]), nil
}

func sameAsFirst(args []*types.Type) *types.Type {
	if len(args) == 0 {
		return nil
	}
	return types.PromoteUnary(args[0])
}

func promoted(args []*types.Type) *types.Type {
	if len(args) != 2 {
		return nil
	}
	return types.Promote(args[0], args[1])
}

func numberFunctions() []*Function {
	absLong := fn("abs", params(types.Long), types.Long, func(args []any) (any, error) {
		n, _ := types.ToInt64(args[0])
		if n < 0 {
			n = -n
		}
		return n, nil
	})
	absLong.ResultOf = sameAsFirst

	minLong := fn("min", params(types.Long, types.Long), types.Long, func(args []any) (any, error) {
		a, _ := types.ToInt64(args[0])
		b, _ := types.ToInt64(args[1])
		return min(a, b), nil
	})
	minLong.ResultOf = promoted

	maxLong := fn("max", params(types.Long, types.Long), types.Long, func(args []any) (any, error) {
		a, _ := types.ToInt64(args[0])
		b, _ := types.ToInt64(args[1])
		return max(a, b), nil
	})
	maxLong.ResultOf = promoted

	return []*Function{
		absLong,
		fn("abs", params(types.Double), types.Double, func(args []any) (any, error) {
			f, _ := types.ToFloat64(args[0])
			return math.Abs(f), nil
		}),
		minLong,
		fn("min", params(types.Double, types.Double), types.Double, func(args []any) (any, error) {
			a, _ := types.ToFloat64(args[0])
			b, _ := types.ToFloat64(args[1])
			return math.Min(a, b), nil
		}),
		maxLong,
		fn("max", params(types.Double, types.Double), types.Double, func(args []any) (any, error) {
			a, _ := types.ToFloat64(args[0])
			b, _ := types.ToFloat64(args[1])
			return math.Max(a, b), nil
		}),
		fn("round", params(types.Double), types.Long, func(args []any) (any, error) {
			f, _ := types.ToFloat64(args[0])
			return int64(math.Round(f)), nil
		}),
		fn("fixed", params(types.Double, types.Int), types.String, func(args []any) (any, error) {
			f, _ := types.ToFloat64(args[0])
			digits, _ := types.ToInt64(args[1])
			return fmt.Sprintf("%.*f", int(digits), f), nil
		}),
	}
}

func elemOfFirst(args []*types.Type) *types.Type {
	if len(args) == 0 {
		return nil
	}
	if elem, ok := types.ElementOf(args[0]); ok {
		return elem
	}
	return nil
}

func listOfFirst(args []*types.Type) *types.Type {
	if elem := elemOfFirst(args); elem != nil {
		return types.ListOf(elem)
	}
	return nil
}

func collectionFunctions() []*Function {
	first := fn("first", params(types.ListOf(types.Any)), types.Any, func(args []any) (any, error) {
		items, err := types.Iterate(args[0])
		if err != nil || len(items) == 0 {
			return nil, err
		}
		return items[0], nil
	})
	first.ResultOf = elemOfFirst

	last := fn("last", params(types.ListOf(types.Any)), types.Any, func(args []any) (any, error) {
		items, err := types.Iterate(args[0])
		if err != nil || len(items) == 0 {
			return nil, err
		}
		return items[len(items)-1], nil
	})
	last.ResultOf = elemOfFirst

	sorted := fn("sort", params(types.ListOf(types.Any)), types.ListOf(types.Any), func(args []any) (any, error) {
		items, err := types.Iterate(args[0])
		if err != nil {
			return nil, err
		}
		out := append([]any(nil), items...)
		var cmpErr error
		sort.SliceStable(out, func(i, j int) bool {
			c, err := types.Compare(out[i], out[j])
			if err != nil && cmpErr == nil {
				cmpErr = err
			}
			return c < 0
		})
		return out, cmpErr
	})
	sorted.ResultOf = listOfFirst

	reversed := fn("reverse", params(types.ListOf(types.Any)), types.ListOf(types.Any), func(args []any) (any, error) {
		items, err := types.Iterate(args[0])
		if err != nil {
			return nil, err
		}
		out := make([]any, len(items))
		for i, item := range items {
			out[len(items)-1-i] = item
		}
		return out, nil
	})
	reversed.ResultOf = listOfFirst

	keys := fn("keys", params(types.MapOf(types.Any, types.Any)), types.ListOf(types.Any), func(args []any) (any, error) {
		entries, err := types.Iterate(args[0])
		if err != nil {
			return nil, err
		}
		out := make([]any, len(entries))
		for i, e := range entries {
			out[i] = e.(types.MapEntry).Key
		}
		return out, nil
	})
	keys.ResultOf = func(args []*types.Type) *types.Type { return types.ListOf(args[0].Key) }

	return []*Function{
		fn("size", params(types.Any), types.Int, func(args []any) (any, error) {
			n, ok := types.Len(args[0])
			if !ok {
				return nil, fmt.Errorf("size: %T has no length", args[0])
			}
			return n, nil
		}),
		fn("isEmpty", params(types.Any), types.Bool, func(args []any) (any, error) {
			n, ok := types.Len(args[0])
			return ok && n == 0, nil
		}),
		first,
		last,
		sorted,
		reversed,
		keys,
		fn("contains", params(types.ListOf(types.Any), types.Any), types.Bool, func(args []any) (any, error) {
			items, err := types.Iterate(args[0])
			if err != nil {
				return nil, err
			}
			for _, item := range items {
				if types.EqualValues(item, args[1]) {
					return true, nil
				}
			}
			return false, nil
		}),
	}
}

func htmlFunctions() []*Function {
	return []*Function{
		strFunc("escape", html.EscapeString),
		strFunc("unescape", html.UnescapeString),
	}
}

func timeFunctions() []*Function {
	return []*Function{
		fn("now", nil, types.Any, func([]any) (any, error) {
			return time.Now(), nil
		}),
		fn("date", params(types.Any, types.String), types.String, func(args []any) (any, error) {
			t, ok := args[0].(time.Time)
			if !ok {
				return nil, fmt.Errorf("date: expected a time, got %T", args[0])
			}
			return t.Format(str(args[1])), nil
		}),
	}
}
