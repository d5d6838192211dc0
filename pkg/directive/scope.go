package directive

import (
	"fmt"
	"sort"

	"github.com/leapstack-labs/quill/pkg/types"
)

// Variable is a named, typed template variable.
type Variable struct {
	Name string
	Type *types.Type
}

func (v Variable) String() string { return v.Type.String() + " " + v.Name }

// Macro is a sub-template extracted from a template.
type Macro struct {
	// Name is the variable the macro is bound to.
	Name string
	// Key is the template name of the sub-template: owner#name.
	Key    string
	Source string
	Offset int
}

// Scope is the static type environment of a template under compilation.
// Declarations extend it in source order.
type Scope struct {
	template string
	status   string
	vars     map[string]*types.Type
	hints    map[string]*types.Type
	globals  []Variable
	params   []Variable
	returns  []Variable
	locals   []Variable
	macros   []Macro
	loops    int
}

// NewScope creates the scope of template name. globals are visible to
// every expression; status names the loop status variable.
func NewScope(name string, globals map[string]*types.Type, status string) *Scope {
	s := &Scope{
		template: name,
		status:   status,
		vars:     make(map[string]*types.Type, len(globals)+1),
		hints:    make(map[string]*types.Type),
	}
	for n, t := range globals {
		s.vars[n] = t
		s.globals = append(s.globals, Variable{Name: n, Type: t})
	}
	sort.Slice(s.globals, func(i, j int) bool { return s.globals[i].Name < s.globals[j].Name })
	if status != "" {
		s.vars[status] = types.Status
	}
	return s
}

// Types is the current name to type mapping.
func (s *Scope) Types() map[string]*types.Type { return s.vars }

// Lookup returns the type of a visible variable.
func (s *Scope) Lookup(name string) (*types.Type, bool) {
	t, ok := s.vars[name]
	return t, ok
}

// Hint returns the generic argument i recorded for var by define.
func (s *Scope) Hint(name string, i int) (*types.Type, bool) {
	t, ok := s.hints[fmt.Sprintf("%s:%d", name, i)]
	return t, ok
}

func (s *Scope) recordHints(name string, t *types.Type) {
	var args []*types.Type
	switch t.Kind {
	case types.KindArray, types.KindList:
		args = []*types.Type{t.Elem}
	case types.KindMap, types.KindEntry:
		args = []*types.Type{t.Key, t.Elem}
	}
	for i, a := range args {
		key := fmt.Sprintf("%s:%d", name, i)
		s.hints[key] = a
		s.recordHints(key, a)
	}
}

// declareLocal adds a variable assigned inside the template. Names that
// are already parameters or globals keep their original slot.
func (s *Scope) declareLocal(name string, t *types.Type, returned bool) {
	if _, ok := s.vars[name]; !ok {
		s.locals = append(s.locals, Variable{Name: name, Type: t})
	}
	s.vars[name] = t
	if returned && !contains(s.returns, name) {
		s.returns = append(s.returns, Variable{Name: name, Type: t})
	}
}

func (s *Scope) declareParam(name string, t *types.Type) {
	s.vars[name] = t
	s.recordHints(name, t)
	for i, p := range s.params {
		if p.Name == name {
			s.params[i].Type = t
			return
		}
	}
	s.params = append(s.params, Variable{Name: name, Type: t})
}

func contains(vs []Variable, name string) bool {
	for _, v := range vs {
		if v.Name == name {
			return true
		}
	}
	return false
}
