package macro

import (
	"path/filepath"
	"strings"

	"go.starlark.net/syntax"
)

// ParsedFunction describes a top-level def of a function file.
type ParsedFunction struct {
	Name string
	// Args renders each parameter, with defaults as "x=1" and varargs as
	// "*rest".
	Args      []string
	Docstring string
	Line      int
	// Required counts the leading parameters without defaults.
	Required int
	// Optional is set when some parameters have defaults or the function
	// takes *args.
	Optional bool
}

// ParsedNamespace is the static description of a function file.
type ParsedNamespace struct {
	Name      string
	FilePath  string
	Functions []*ParsedFunction
}

// ParseFile describes the public defs of a function file without executing
// it. Syntax errors carry the file position.
func ParseFile(filename string, content []byte) (*ParsedNamespace, error) {
	f, err := syntax.LegacyFileOptions().Parse(filename, content, 0)
	if err != nil {
		return nil, &ParseError{File: filename, Message: err.Error()}
	}

	ns := &ParsedNamespace{
		Name:     strings.TrimSuffix(filepath.Base(filename), Extension),
		FilePath: filename,
	}
	for _, stmt := range f.Stmts {
		def, ok := stmt.(*syntax.DefStmt)
		if !ok || strings.HasPrefix(def.Name.Name, "_") {
			continue
		}
		fn := &ParsedFunction{
			Name:      def.Name.Name,
			Line:      int(def.Name.NamePos.Line),
			Docstring: extractDocstring(def.Body),
		}
		fn.Args, fn.Required, fn.Optional = extractArgs(def.Params)
		ns.Functions = append(ns.Functions, fn)
	}
	return ns, nil
}

// Lookup returns the def named name.
func (ns *ParsedNamespace) Lookup(name string) (*ParsedFunction, bool) {
	for _, fn := range ns.Functions {
		if fn.Name == name {
			return fn, true
		}
	}
	return nil, false
}

func extractArgs(params []syntax.Expr) (args []string, required int, optional bool) {
	positional := true
	for _, param := range params {
		switch p := param.(type) {
		case *syntax.Ident:
			args = append(args, p.Name)
			if positional && !optional {
				required++
			}
		case *syntax.BinaryExpr:
			if ident, ok := p.X.(*syntax.Ident); ok && p.Op == syntax.EQ {
				args = append(args, ident.Name+"="+exprToString(p.Y))
				if positional {
					optional = true
				}
			}
		case *syntax.UnaryExpr:
			// A bare * starts keyword-only parameters.
			if p.X == nil {
				args = append(args, "*")
				positional = false
				continue
			}
			if ident, ok := p.X.(*syntax.Ident); ok {
				if p.Op == syntax.STAR {
					args = append(args, "*"+ident.Name)
					optional = true
					positional = false
				} else {
					args = append(args, "**"+ident.Name)
				}
			}
		}
	}
	return args, required, optional
}

func extractDocstring(body []syntax.Stmt) string {
	if len(body) == 0 {
		return ""
	}
	exprStmt, ok := body[0].(*syntax.ExprStmt)
	if !ok {
		return ""
	}
	lit, ok := exprStmt.X.(*syntax.Literal)
	if !ok || lit.Token != syntax.STRING {
		return ""
	}
	s, _ := lit.Value.(string)
	return strings.TrimSpace(s)
}

func exprToString(expr syntax.Expr) string {
	switch e := expr.(type) {
	case *syntax.Literal:
		return e.Raw
	case *syntax.Ident:
		return e.Name
	case *syntax.ListExpr:
		return "[]"
	case *syntax.DictExpr:
		return "{}"
	case *syntax.TupleExpr:
		return "()"
	case *syntax.UnaryExpr:
		if e.Op == syntax.MINUS {
			return "-" + exprToString(e.X)
		}
		return exprToString(e.X)
	default:
		return "..."
	}
}

// Signature renders the def as name(args).
func (f *ParsedFunction) Signature() string {
	return f.Name + "(" + strings.Join(f.Args, ", ") + ")"
}

// ParseError is a syntax error in a function file.
type ParseError struct {
	File    string
	Message string
}

func (e *ParseError) Error() string {
	return "parse " + filepath.Base(e.File) + ": " + e.Message
}
