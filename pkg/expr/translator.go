package expr

import (
	"github.com/leapstack-labs/quill/pkg/funcs"
	"github.com/leapstack-labs/quill/pkg/tplerr"
	"github.com/leapstack-labs/quill/pkg/types"
)

// Expression is a parsed and type-checked expression together with the
// variable types it was checked against.
type Expression struct {
	Source string
	// Offset is the position of Source within its template.
	Offset int
	Root   Node
	// Parameters holds the types of the variables the expression reads.
	Parameters map[string]*types.Type
}

// Type is the static result type.
func (e *Expression) Type() *types.Type { return e.Root.Type() }

// Variables lists the variables the expression reads.
func (e *Expression) Variables() []string { return Variables(e.Root) }

func (e *Expression) String() string { return e.Root.String() }

// Evaluate computes the expression. Parameters are converted to their
// declared types first; missing ones take their zero value.
func (e *Expression) Evaluate(params map[string]any) (any, error) {
	vars := make(Vars, len(e.Parameters))
	for name, t := range e.Parameters {
		v, err := types.Convert(params[name], t)
		if err != nil {
			return nil, tplerr.WrapRenderError(e.Offset, "parameter "+name, err)
		}
		vars[name] = v
	}
	return e.Root.Eval(vars)
}

// Translator compiles expression source against a variable-type map.
type Translator struct {
	Functions *funcs.Registry
	Sequences SequenceSource
}

// NewTranslator creates a translator. Either argument may be nil.
func NewTranslator(functions *funcs.Registry, sequences SequenceSource) *Translator {
	return &Translator{Functions: functions, Sequences: sequences}
}

// Translate parses source and checks it against vars. offset is the
// position of source within its template and is added to every node and
// error offset.
func (t *Translator) Translate(source string, vars map[string]*types.Type, offset int) (*Expression, error) {
	root, err := Parse(source, &Env{Variables: vars, Functions: t.Functions, Sequences: t.Sequences}, offset)
	if err != nil {
		return nil, err
	}
	params := make(map[string]*types.Type)
	for _, name := range Variables(root) {
		params[name] = vars[name]
	}
	return &Expression{Source: source, Offset: offset, Root: root, Parameters: params}, nil
}
