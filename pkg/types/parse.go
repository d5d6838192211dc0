package types

import (
	"fmt"
	"strings"
	"unicode"
)

// names maps every accepted spelling of a simple type to its canonical
// type. Capitalized spellings keep templates written against boxed type
// names working.
var names = map[string]*Type{
	"any": Any, "object": Any, "Object": Any,
	"bool": Bool, "boolean": Bool, "Boolean": Bool,
	"byte": Byte, "Byte": Byte,
	"short": Short, "Short": Short,
	"int": Int, "integer": Int, "Integer": Int,
	"long": Long, "Long": Long,
	"float": Float, "Float": Float,
	"double": Double, "Double": Double,
	"char": Char, "Character": Char,
	"string": String, "String": String,
	"template": Template, "Template": Template,
	"status": Status, "LoopStatus": Status, "ForeachStatus": Status,
}

// generic spellings of the parameterized kinds.
var generics = map[string]Kind{
	"list": KindList, "List": KindList, "Collection": KindList, "collection": KindList, "ArrayList": KindList,
	"map": KindMap, "Map": KindMap, "HashMap": KindMap,
	"entry": KindEntry, "Entry": KindEntry,
}

// IsTypeName reports whether s names a type on its own, without generic
// parameters or array brackets.
func IsTypeName(s string) bool {
	if _, ok := names[s]; ok {
		return true
	}
	_, ok := generics[s]
	return ok
}

// Parse parses a type expression such as "int", "String[]", "[]string",
// "List<String>" or "Map<String, List<int>>".
func Parse(s string) (*Type, error) {
	p := &typeParser{src: s}
	t, err := p.parse()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return nil, fmt.Errorf("invalid type %q: unexpected %q", s, p.src[p.pos:])
	}
	return t, nil
}

// MustParse is like Parse but panics on error. It is meant for tests and
// package-level tables.
func MustParse(s string) *Type {
	t, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return t
}

type typeParser struct {
	src string
	pos int
}

func (p *typeParser) skipSpace() {
	for p.pos < len(p.src) && p.src[p.pos] == ' ' {
		p.pos++
	}
}

func (p *typeParser) accept(s string) bool {
	p.skipSpace()
	if strings.HasPrefix(p.src[p.pos:], s) {
		p.pos += len(s)
		return true
	}
	return false
}

func (p *typeParser) ident() string {
	p.skipSpace()
	start := p.pos
	for p.pos < len(p.src) {
		r := rune(p.src[p.pos])
		if r != '_' && r != '.' && !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			break
		}
		p.pos++
	}
	return p.src[start:p.pos]
}

func (p *typeParser) parse() (*Type, error) {
	if p.accept("[]") {
		elem, err := p.parse()
		if err != nil {
			return nil, err
		}
		return ArrayOf(elem), nil
	}

	name := p.ident()
	if name == "" {
		return nil, fmt.Errorf("invalid type %q: missing type name", p.src)
	}
	// java.util.List and friends
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		name = name[i+1:]
	}

	var t *Type
	if kind, ok := generics[name]; ok {
		var params []*Type
		if p.accept("<") {
			for {
				param, err := p.parse()
				if err != nil {
					return nil, err
				}
				params = append(params, param)
				if p.accept(",") {
					continue
				}
				if !p.accept(">") {
					return nil, fmt.Errorf("invalid type %q: missing '>'", p.src)
				}
				break
			}
		}
		switch {
		case kind == KindList && len(params) <= 1:
			t = ListOf(nil)
			if len(params) == 1 {
				t = ListOf(params[0])
			}
		case kind != KindList && (len(params) == 0 || len(params) == 2):
			t = &Type{Kind: kind, Key: Any, Elem: Any}
			if len(params) == 2 {
				t.Key, t.Elem = params[0], params[1]
			}
		default:
			return nil, fmt.Errorf("invalid type %q: wrong number of type parameters for %s", p.src, name)
		}
	} else if simple, ok := names[name]; ok {
		t = simple
	} else {
		return nil, fmt.Errorf("unknown type %q", name)
	}

	for p.accept("[]") {
		t = ArrayOf(t)
	}
	return t, nil
}
