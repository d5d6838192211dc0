package starlark

import (
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// Predeclared returns the globals available to function files: struct and
// module constructors and a dict of the configured constants.
func Predeclared(constants map[string]any) (starlark.StringDict, error) {
	consts, err := GoToStarlark(constants)
	if err != nil {
		return nil, err
	}
	if constants == nil {
		consts = starlark.NewDict(0)
	}
	if d, ok := consts.(*starlark.Dict); ok {
		d.Freeze()
	}
	return starlark.StringDict{
		"struct":    starlark.NewBuiltin("struct", starlarkstruct.Make),
		"module":    starlark.NewBuiltin("module", starlarkstruct.MakeModule),
		"constants": consts,
	}, nil
}
