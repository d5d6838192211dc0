package starlark

import (
	"errors"
	"fmt"

	"go.starlark.net/starlark"

	"github.com/leapstack-labs/quill/pkg/funcs"
	"github.com/leapstack-labs/quill/pkg/types"
)

// Caller invokes Starlark callables with template values.
type Caller struct {
	pool *ThreadPool
	// maxSteps bounds the execution steps of one call. Zero is unbounded.
	maxSteps uint64
}

// NewCaller creates a caller running on threads from pool.
func NewCaller(pool *ThreadPool, maxSteps uint64) *Caller {
	if pool == nil {
		pool = NewThreadPool(0, nil)
	}
	return &Caller{pool: pool, maxSteps: maxSteps}
}

// Call converts args, calls fn and converts the result back.
func (c *Caller) Call(name string, fn starlark.Callable, args []any) (any, error) {
	sargs := make(starlark.Tuple, len(args))
	for i, a := range args {
		sv, err := GoToStarlark(a)
		if err != nil {
			return nil, &CallError{Function: name, Message: fmt.Sprintf("argument %d: %v", i+1, err)}
		}
		sargs[i] = sv
	}

	thread := c.pool.Get(name)
	defer c.pool.Put(thread)
	if c.maxSteps > 0 {
		thread.SetMaxExecutionSteps(thread.ExecutionSteps() + c.maxSteps)
	}

	result, err := starlark.Call(thread, fn, sargs, nil)
	if err != nil {
		msg := err.Error()
		var ee *starlark.EvalError
		if errors.As(err, &ee) {
			msg = ee.Backtrace()
		}
		return nil, &CallError{Function: name, Message: msg}
	}
	out, err := ToGo(result)
	if err != nil {
		return nil, &CallError{Function: name, Message: fmt.Sprintf("result: %v", err)}
	}
	return out, nil
}

// Signature describes the parameters of a Starlark function.
type Signature struct {
	// Required is the number of parameters without defaults.
	Required int
	// Optional is set when the function has defaults or *args.
	Optional bool
	Doc      string
}

// Function wraps fn as a template function callable as namespace.name.
// Parameters and result are typed any; values are checked by Starlark at
// call time.
func (c *Caller) Function(namespace, name string, fn starlark.Callable, sig Signature) *funcs.Function {
	qualified := name
	if namespace != "" {
		qualified = namespace + "." + name
	}
	params := make([]*types.Type, sig.Required)
	for i := range params {
		params[i] = types.Any
	}
	f := &funcs.Function{
		Namespace: namespace,
		Name:      name,
		Params:    params,
		Result:    types.Any,
		Doc:       sig.Doc,
		Call: func(args []any) (any, error) {
			return c.Call(qualified, fn, args)
		},
	}
	if sig.Optional {
		f.Variadic = types.Any
	}
	return f
}

// CallError is a failed Starlark call.
type CallError struct {
	Function string
	Message  string
}

func (e *CallError) Error() string {
	return fmt.Sprintf("starlark %s: %s", e.Function, e.Message)
}
