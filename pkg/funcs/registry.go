// Package funcs is the registry of host callables that expressions can
// invoke by name.
//
// Functions are matched by name and by the static types of the call's
// arguments. Lookup walks the registry in registration order and returns
// the first function whose parameters accept the arguments, so registering
// a narrow overload before a wide one gives it priority.
package funcs

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/leapstack-labs/quill/pkg/types"
)

// Function is a typed host callable.
type Function struct {
	Namespace string
	Name      string
	Params    []*types.Type
	// Variadic is the element type of trailing variadic arguments, or nil.
	Variadic *types.Type
	Result   *types.Type
	// ResultOf computes the result type from the argument types for
	// functions whose result depends on their input, such as first(list).
	ResultOf func(args []*types.Type) *types.Type
	Doc      string
	Call     func(args []any) (any, error)
}

// QualifiedName is the name the function is called by in expressions.
func (f *Function) QualifiedName() string {
	if f.Namespace == "" {
		return f.Name
	}
	return f.Namespace + "." + f.Name
}

// Signature renders the function as name(T1, T2...) T.
func (f *Function) Signature() string {
	params := make([]string, 0, len(f.Params)+1)
	for _, p := range f.Params {
		params = append(params, p.String())
	}
	if f.Variadic != nil {
		params = append(params, "..."+f.Variadic.String())
	}
	return fmt.Sprintf("%s(%s) %s", f.QualifiedName(), strings.Join(params, ", "), f.Result)
}

// Accepts reports whether arguments of the given static types can be
// passed to f. Numeric widening and null for nullable parameters are
// permitted.
func (f *Function) Accepts(args []*types.Type) bool {
	if len(args) < len(f.Params) || (f.Variadic == nil && len(args) != len(f.Params)) {
		return false
	}
	for i, arg := range args {
		param := f.Variadic
		if i < len(f.Params) {
			param = f.Params[i]
		}
		if !types.AssignableTo(arg, param) {
			return false
		}
	}
	return true
}

// ResultType returns the static result type for a call with the given
// argument types.
func (f *Function) ResultType(args []*types.Type) *types.Type {
	if f.ResultOf != nil {
		if t := f.ResultOf(args); t != nil {
			return t
		}
	}
	if f.Result == nil {
		return types.Any
	}
	return f.Result
}

// Registry holds functions in registration order.
type Registry struct {
	mu         sync.RWMutex
	funcs      []*Function
	namespaces map[string]bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{namespaces: make(map[string]bool)}
}

// Register appends functions to the registry.
func (r *Registry) Register(fns ...*Function) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, fn := range fns {
		if fn.Name == "" {
			return &RegistryError{Message: "function name cannot be empty"}
		}
		if fn.Call == nil {
			return &RegistryError{Name: fn.QualifiedName(), Message: "function has no implementation"}
		}
		r.funcs = append(r.funcs, fn)
		if fn.Namespace != "" {
			r.namespaces[fn.Namespace] = true
		}
	}
	return nil
}

// RegisterFunc adapts a Go function with reflection and registers it under
// name. See FromGo for the supported signatures.
func (r *Registry) RegisterFunc(name string, fn any) error {
	f, err := FromGo(name, fn)
	if err != nil {
		return err
	}
	return r.Register(f)
}

// Resolve returns the first function named name that accepts args.
func (r *Registry) Resolve(name string, args []*types.Type) (*Function, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, fn := range r.funcs {
		if fn.QualifiedName() == name && fn.Accepts(args) {
			return fn, true
		}
	}
	return nil, false
}

// HasNamespace reports whether any function was registered under ns.
func (r *Registry) HasNamespace(ns string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.namespaces[ns]
}

// Has reports whether any function is registered under the qualified name.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, fn := range r.funcs {
		if fn.QualifiedName() == name {
			return true
		}
	}
	return false
}

// Functions returns the registered functions in registration order.
func (r *Registry) Functions() []*Function {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Function, len(r.funcs))
	copy(out, r.funcs)
	return out
}

// Namespaces returns the registered namespaces, sorted.
func (r *Registry) Namespaces() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.namespaces))
	for ns := range r.namespaces {
		out = append(out, ns)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of registered functions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.funcs)
}

// Clone returns an independent copy of the registry.
func (r *Registry) Clone() *Registry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c := NewRegistry()
	c.funcs = append(c.funcs, r.funcs...)
	for ns := range r.namespaces {
		c.namespaces[ns] = true
	}
	return c
}

// RegistryError represents an error registering a function.
type RegistryError struct {
	Name    string
	Message string
}

func (e *RegistryError) Error() string {
	if e.Name == "" {
		return "register function: " + e.Message
	}
	return fmt.Sprintf("register function %s: %s", e.Name, e.Message)
}
