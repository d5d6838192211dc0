// Package token defines the lexical tokens of the expression language and
// the table-driven scanner that produces them.
package token

import (
	"fmt"
	"unicode/utf8"
)

// Class is the lexical class of a token.
type Class int

// Class constants.
const (
	Unknown Class = iota
	Word          // identifiers, keywords and member names such as ".size"
	Number        // 12, 1.5, 10L, 2.5f
	Operator      // + - * / == && .. , ? : and friends
	StringLiteral // "x", 'x', `x`
	Bracket       // ( ) [ ]
)

func (c Class) String() string {
	switch c {
	case Word:
		return "word"
	case Number:
		return "number"
	case Operator:
		return "operator"
	case StringLiteral:
		return "string"
	case Bracket:
		return "bracket"
	default:
		return "unknown"
	}
}

// Token is a single lexical unit. Offset is the byte offset of the first
// character of Text within the scanned input.
type Token struct {
	Text   string
	Offset int
	Class  Class
}

func (t Token) String() string {
	return fmt.Sprintf("%s(%q@%d)", t.Class, t.Text, t.Offset)
}

// IsName reports whether s is a plain identifier.
func IsName(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if i == 0 && !isLetter(r) {
			return false
		}
		if !isLetter(r) && !isDigit(r) {
			return false
		}
	}
	return true
}

// operators lists every operator the parser understands, longest first so
// that greedy splitting prefers ">>>" over ">>" over ">".
var operators = []string{
	">>>",
	">>", "<<", "==", "!=", ">=", "<=", "&&", "||", "..",
	"+", "-", "*", "/", "%", ">", "<", "&", "|", "^", "!", "~", ",", "?", ":", "=",
}

// IsOperator reports whether s is a known operator lexeme.
func IsOperator(s string) bool {
	for _, op := range operators {
		if op == s {
			return true
		}
	}
	return false
}

func classify(text string) Class {
	r, size := utf8.DecodeRuneInString(text)
	switch {
	case isLetter(r):
		return Word
	case isDigit(r):
		return Number
	case r == '"' || r == '\'' || r == '`':
		return StringLiteral
	case r == '(' || r == ')' || r == '[' || r == ']':
		return Bracket
	case r == '.' && len(text) > size:
		next, _ := utf8.DecodeRuneInString(text[size:])
		if isLetter(next) {
			return Word
		}
		if isDigit(next) {
			return Number
		}
	}
	if IsOperator(text) {
		return Operator
	}
	return Unknown
}

// split breaks an operator run such as "<-" into known operators. A run
// that cannot be split entirely is returned as one Unknown token.
func split(tok Token) []Token {
	var out []Token
	rest := tok.Text
	off := tok.Offset
	for rest != "" {
		matched := ""
		for _, op := range operators {
			if len(op) <= len(rest) && rest[:len(op)] == op {
				matched = op
				break
			}
		}
		if matched == "" {
			return []Token{{Text: tok.Text, Offset: tok.Offset, Class: Unknown}}
		}
		out = append(out, Token{Text: matched, Offset: off, Class: Operator})
		rest = rest[len(matched):]
		off += len(matched)
	}
	return out
}
