package expr

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/leapstack-labs/quill/pkg/funcs"
	"github.com/leapstack-labs/quill/pkg/token"
	"github.com/leapstack-labs/quill/pkg/tplerr"
	"github.com/leapstack-labs/quill/pkg/types"
)

// Env is the static environment an expression is checked against.
type Env struct {
	// Variables maps every name visible at the expression to its type.
	Variables map[string]*types.Type
	Functions *funcs.Registry
	Sequences SequenceSource
}

func (e *Env) lookup(name string) (*types.Type, bool) {
	t, ok := e.Variables[name]
	return t, ok
}

// operator is an entry of the operator stack.
type operator struct {
	text     string
	offset   int
	priority int
	unary    bool
	bracket  byte // '(' or '[' for grouping markers

	cast      bool
	construct bool
	call      bool
	target    *types.Type
}

type parser struct {
	env      *Env
	base     int
	tokens   []token.Token
	operands []Node
	ops      []*operator
}

// Parse tokenizes source and builds a typed expression tree with
// operator-precedence parsing. Node and error offsets are source offsets
// plus base.
func Parse(source string, env *Env, base int) (Node, error) {
	toks, err := token.Scan(source)
	if err != nil {
		return nil, tplerr.Shift(err, base)
	}
	if env == nil {
		env = &Env{}
	}
	p := &parser{env: env, base: base, tokens: toks}
	return p.parse()
}

func syntaxErrorf(offset int, format string, args ...any) error {
	return tplerr.NewSyntaxError(offset, format, args...)
}

func (p *parser) offset(i int) int { return p.tokens[i].Offset + p.base }

func (p *parser) text(i int) string {
	if i < 0 || i >= len(p.tokens) {
		return ""
	}
	return p.tokens[i].Text
}

func (p *parser) push(n Node) { p.operands = append(p.operands, n) }

func (p *parser) pop() Node {
	n := p.operands[len(p.operands)-1]
	p.operands = p.operands[:len(p.operands)-1]
	return n
}

func (p *parser) parse() (Node, error) {
	before := true
	for i := 0; i < len(p.tokens); i++ {
		tok := p.tokens[i]
		text, off := tok.Text, p.offset(i)

		switch {
		case tok.Class == token.Unknown:
			return nil, syntaxErrorf(off, "unsupported operator %q", text)
		case text == "(":
			if target, ok := p.castAt(i); ok && before {
				p.ops = append(p.ops, &operator{text: "(" + target.String() + ")", offset: off,
					priority: prioUnary, unary: true, cast: true, target: target})
				i += 2
				continue
			}
			p.ops = append(p.ops, &operator{text: "(", offset: off, bracket: '('})
			before = true
			continue
		case text == ")", text == "]":
			if err := p.closeBracket(text, off); err != nil {
				return nil, err
			}
			before = false
			continue
		}

		var err error
		if before {
			i, before, err = p.prefix(i)
		} else {
			i, before, err = p.infix(i)
		}
		if err != nil {
			return nil, err
		}
	}

	for len(p.ops) > 0 {
		op := p.ops[len(p.ops)-1]
		p.ops = p.ops[:len(p.ops)-1]
		if op.bracket != 0 {
			return nil, syntaxErrorf(op.offset, "missing closing bracket for %q", string(op.bracket))
		}
		if err := p.reduce(op); err != nil {
			return nil, err
		}
	}
	switch len(p.operands) {
	case 0:
		return nil, syntaxErrorf(p.base, "empty expression")
	case 1:
		return p.operands[0], nil
	}
	return nil, syntaxErrorf(p.operands[1].Offset(), "missing operator before %s", p.operands[1])
}

// prefix handles a token where an operand or a unary operator is expected.
func (p *parser) prefix(i int) (int, bool, error) {
	tok := p.tokens[i]
	text, off := tok.Text, p.offset(i)

	switch {
	case text == "new":
		target, err := types.Parse(p.text(i + 1))
		if err != nil || i+1 >= len(p.tokens) {
			return i, true, syntaxErrorf(off, "new requires a type name")
		}
		p.ops = append(p.ops, &operator{text: "new", offset: off, priority: prioNew,
			unary: true, construct: true, target: target})
		return p.callArgs(i + 1)

	case tok.Class == token.Word && token.IsName(text) && !isKeyword(text):
		if _, isVar := p.env.lookup(text); !isVar {
			name, next := text, i
			if strings.HasPrefix(p.text(i+1), ".") && p.tokens[i+1].Class == token.Word &&
				p.env.Functions != nil && p.env.Functions.HasNamespace(text) {
				name, next = text+p.text(i+1), i+1
			}
			if p.text(next+1) == "(" || (p.env.Functions != nil && p.env.Functions.Has(name)) {
				p.ops = append(p.ops, &operator{text: name, offset: off, priority: prioCall,
					unary: true, call: true})
				return p.callArgs(next)
			}
		} else if p.text(i+1) == "(" {
			p.ops = append(p.ops, &operator{text: text, offset: off, priority: prioCall,
				unary: true, call: true})
			return p.callArgs(i)
		}

	case text == "[":
		p.ops = append(p.ops,
			&operator{text: "[", offset: off, priority: prioCall, unary: true},
			&operator{text: "[", offset: off, bracket: '['})
		if p.text(i+1) == "]" {
			p.push(newEmpty(off))
		}
		return i, true, nil

	case tok.Class == token.Operator:
		if !unaryOperators[text] {
			return i, true, syntaxErrorf(off, "unexpected operator %q", text)
		}
		p.ops = append(p.ops, &operator{text: text, offset: off, priority: prioUnary, unary: true})
		return i, true, nil
	}

	n, err := p.operand(tok)
	if err != nil {
		return i, true, err
	}
	p.push(n)
	return i, false, nil
}

// infix handles a token where a binary operator is expected.
func (p *parser) infix(i int) (int, bool, error) {
	tok := p.tokens[i]
	text, off := tok.Text, p.offset(i)

	if tok.Class == token.Word && strings.HasPrefix(text, ".") && token.IsName(text[1:]) {
		if err := p.pushBinary(&operator{text: text, offset: off, priority: prioCall}); err != nil {
			return i, true, err
		}
		return p.callArgs(i)
	}
	prio, ok := binaryPriority[text]
	if !ok || (tok.Class != token.Operator && text != "instanceof" && text != "[") {
		if tok.Class == token.Operator {
			return i, true, syntaxErrorf(off, "unsupported operator %q", text)
		}
		return i, true, syntaxErrorf(off, "unexpected %q after operand", text)
	}
	op := &operator{text: text, offset: off, priority: prio}
	if err := p.pushBinary(op); err != nil {
		return i, true, err
	}
	if text == "[" {
		p.ops = append(p.ops, &operator{text: "[", offset: off, bracket: '['})
	}
	return i, true, nil
}

// callArgs supplies the argument of a call written without parentheses or
// with empty ones. i is the index of the token naming the callee.
func (p *parser) callArgs(i int) (int, bool, error) {
	if p.text(i+1) == "(" {
		if p.text(i+2) == ")" {
			e := newEmpty(p.offset(i + 1))
			e.Literal = "()"
			p.push(e)
			return i + 2, false, nil
		}
		return i, true, nil
	}
	p.push(newEmpty(p.offset(i)))
	return i, false, nil
}

// castAt reports whether the "(" at i opens a cast such as (int) x.
func (p *parser) castAt(i int) (*types.Type, bool) {
	if i+3 >= len(p.tokens) || p.text(i+2) != ")" {
		return nil, false
	}
	name, next := p.tokens[i+1], p.tokens[i+3]
	if name.Class != token.Word || !types.IsTypeName(name.Text) {
		return nil, false
	}
	if _, isVar := p.env.lookup(name.Text); isVar {
		return nil, false
	}
	switch {
	case next.Class == token.Word && token.IsName(next.Text),
		next.Class == token.Number, next.Class == token.StringLiteral, next.Text == "(":
	default:
		return nil, false
	}
	t, err := types.Parse(name.Text)
	return t, err == nil
}

// pushBinary reduces every stacked operator that binds at least as tightly
// as op, then pushes op.
func (p *parser) pushBinary(op *operator) error {
	for len(p.ops) > 0 {
		top := p.ops[len(p.ops)-1]
		if top.bracket != 0 || top.priority < op.priority {
			break
		}
		p.ops = p.ops[:len(p.ops)-1]
		if err := p.reduce(top); err != nil {
			return err
		}
	}
	p.ops = append(p.ops, op)
	return nil
}

func (p *parser) closeBracket(text string, offset int) error {
	want := byte('(')
	if text == "]" {
		want = '['
	}
	for {
		if len(p.ops) == 0 {
			return syntaxErrorf(offset, "unmatched %q", text)
		}
		op := p.ops[len(p.ops)-1]
		p.ops = p.ops[:len(p.ops)-1]
		switch op.bracket {
		case want:
			return nil
		case '(', '[':
			return syntaxErrorf(offset, "unmatched %q", text)
		}
		if err := p.reduce(op); err != nil {
			return err
		}
	}
}

func (p *parser) reduce(op *operator) error {
	if op.unary {
		if len(p.operands) < 1 {
			return syntaxErrorf(op.offset, "operator %s is missing its operand", op.text)
		}
		operand := p.pop()
		var n Node
		var err error
		switch {
		case op.cast:
			n, err = newCast(op.target, op.offset, operand)
		case op.construct:
			n, err = newConstruct(op.target, op.offset, operand)
		case op.call:
			n, err = newCall(op.text, op.offset, operand, p.env)
		default:
			n, err = newUnary(op.text, op.offset, operand)
		}
		if err != nil {
			return err
		}
		p.push(n)
		return nil
	}
	if len(p.operands) < 2 {
		return syntaxErrorf(op.offset, "operator %s is missing an operand", op.text)
	}
	right := p.pop()
	left := p.pop()
	n, err := newBinary(op.text, op.offset, left, right, p.env)
	if err != nil {
		return err
	}
	p.push(n)
	return nil
}

func isKeyword(s string) bool {
	switch s {
	case "true", "false", "null", "instanceof", "new":
		return true
	}
	return false
}

// operand builds a literal, a type name or a variable reference.
func (p *parser) operand(tok token.Token) (Node, error) {
	text, off := tok.Text, tok.Offset+p.base
	base := nodeBase{offset: off}
	switch tok.Class {
	case token.StringLiteral:
		s, err := unquote(text)
		if err != nil {
			return nil, syntaxErrorf(off, "%v", err)
		}
		if text[0] == '\'' && utf8.RuneCountInString(s) == 1 {
			r, _ := utf8.DecodeRuneInString(s)
			base.typ = types.Char
			return &Constant{nodeBase: base, Value: r, Literal: text}, nil
		}
		base.typ = types.String
		return &Constant{nodeBase: base, Value: s, Literal: strconv.Quote(s)}, nil
	case token.Number:
		v, t, err := parseNumber(text)
		if err != nil {
			return nil, syntaxErrorf(off, "invalid number %q", text)
		}
		base.typ = t
		return &Constant{nodeBase: base, Value: v, Literal: text}, nil
	case token.Word:
		switch text {
		case "true", "false":
			base.typ = types.Bool
			return &Constant{nodeBase: base, Value: text == "true", Literal: text}, nil
		case "null":
			base.typ = types.Null
			return &Constant{nodeBase: base, Literal: text}, nil
		}
		if len(p.ops) > 0 && p.ops[len(p.ops)-1].text == "instanceof" && types.IsTypeName(text) {
			t, err := types.Parse(text)
			if err != nil {
				return nil, syntaxErrorf(off, "%v", err)
			}
			base.typ = types.NameOf(t)
			return &Constant{nodeBase: base, Literal: text}, nil
		}
		if !token.IsName(text) {
			return nil, syntaxErrorf(off, "unexpected %q", text)
		}
		t, ok := p.env.lookup(text)
		if !ok {
			return nil, typeErrorf(off, "undefined variable %q", text)
		}
		base.typ = t
		return &Variable{nodeBase: base, Name: text}, nil
	}
	return nil, syntaxErrorf(off, "unexpected %q", text)
}

// parseNumber reads a decimal literal with an optional type suffix:
// b byte, s short, i int, l long, f float, d double.
func parseNumber(text string) (any, *types.Type, error) {
	s := text
	suffix := byte(0)
	if c := s[len(s)-1]; strings.IndexByte("bBsSiIlLfFdD", c) >= 0 {
		suffix, s = c|0x20, s[:len(s)-1]
	}
	if strings.HasPrefix(s, ".") {
		s = "0" + s
	}
	switch suffix {
	case 'b':
		n, err := strconv.ParseInt(s, 10, 8)
		return int8(n), types.Byte, err
	case 's':
		n, err := strconv.ParseInt(s, 10, 16)
		return int16(n), types.Short, err
	case 'i':
		n, err := strconv.ParseInt(s, 10, 32)
		return int(n), types.Int, err
	case 'l':
		n, err := strconv.ParseInt(s, 10, 64)
		return n, types.Long, err
	case 'f':
		f, err := strconv.ParseFloat(s, 32)
		return float32(f), types.Float, err
	case 'd':
		f, err := strconv.ParseFloat(s, 64)
		return f, types.Double, err
	}
	if strings.ContainsAny(s, ".eE") {
		f, err := strconv.ParseFloat(s, 64)
		return f, types.Double, err
	}
	if n, err := strconv.ParseInt(s, 10, 32); err == nil {
		return int(n), types.Int, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	return n, types.Long, err
}

// unquote strips the quotes of a string literal and resolves backslash
// escapes. Unknown escapes stand for the escaped character itself.
func unquote(text string) (string, error) {
	body := text[1 : len(text)-1]
	if !strings.ContainsRune(body, '\\') {
		return body, nil
	}
	var sb strings.Builder
	for i := 0; i < len(body); i++ {
		c := body[i]
		if c != '\\' || i == len(body)-1 {
			sb.WriteByte(c)
			continue
		}
		i++
		switch body[i] {
		case 'n':
			sb.WriteByte('\n')
		case 't':
			sb.WriteByte('\t')
		case 'r':
			sb.WriteByte('\r')
		case 'b':
			sb.WriteByte('\b')
		case 'f':
			sb.WriteByte('\f')
		case '0':
			sb.WriteByte(0)
		case 'u':
			if i+5 > len(body) {
				return "", fmt.Errorf("invalid unicode escape in %s", text)
			}
			r, err := strconv.ParseUint(body[i+1:i+5], 16, 32)
			if err != nil {
				return "", err
			}
			sb.WriteRune(rune(r))
			i += 4
		default:
			sb.WriteByte(body[i])
		}
	}
	return sb.String(), nil
}
