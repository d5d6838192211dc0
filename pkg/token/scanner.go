package token

import (
	"unicode"
	"unicode/utf8"

	"github.com/leapstack-labs/quill/pkg/tplerr"
)

// Character classes, the columns of the transition table.
const (
	classSpace = iota
	classLetter
	classDigit
	classDot
	classDoubleQuote
	classSingleQuote
	classBackQuote
	classBackslash
	classBracket
	classOther
)

// Scanner states, the rows of the transition table.
const (
	stStart = iota
	stWord
	stNumber
	stDecimal
	stOperator
	stDot
	stBracket
	stDouble
	stDoubleEscape
	stSingle
	stSingleEscape
	stBack
	stBackEscape
	stNumberDot
)

// Terminal codes. A negative cell flushes the buffered token.
const (
	emitIncluding = -1 // flush including the current character
	emitBefore    = -2 // flush excluding the current character, which is re-scanned
	emitTrim      = -3 // flush excluding the trailing dot; the dot is re-scanned
	reject        = -99
)

const (
	inc = emitIncluding
	bef = emitBefore
	trm = emitTrim
	rej = reject
)

var transitions = [...][10]int{
	stStart:        {0, 1, 2, 5, 7, 9, 11, 4, 6, 4},
	stWord:         {bef, 1, 1, bef, rej, rej, rej, bef, bef, bef},
	stNumber:       {bef, 2, 2, 13, rej, rej, rej, bef, bef, bef},
	stDecimal:      {bef, 3, 3, bef, rej, rej, rej, bef, bef, bef},
	stOperator:     {bef, bef, bef, bef, bef, bef, bef, 4, bef, 4},
	stDot:          {bef, 1, 3, inc, bef, bef, bef, bef, bef, 4},
	stBracket:      {bef, bef, bef, bef, bef, bef, bef, bef, bef, bef},
	stDouble:       {7, 7, 7, 7, inc, 7, 7, 8, 7, 7},
	stDoubleEscape: {7, 7, 7, 7, 7, 7, 7, 7, 7, 7},
	stSingle:       {9, 9, 9, 9, 9, inc, 9, 10, 9, 9},
	stSingleEscape: {9, 9, 9, 9, 9, 9, 9, 9, 9, 9},
	stBack:         {11, 11, 11, 11, 11, 11, inc, 12, 11, 11},
	stBackEscape:   {11, 11, 11, 11, 11, 11, 11, 11, 11, 11},
	stNumberDot:    {trm, trm, 3, trm, trm, trm, trm, trm, trm, trm},
}

func isLetter(r rune) bool {
	return r == '_' || r == '$' || unicode.IsLetter(r)
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

func classOf(r rune) int {
	switch {
	case unicode.IsSpace(r):
		return classSpace
	case isLetter(r):
		return classLetter
	case isDigit(r):
		return classDigit
	}
	switch r {
	case '.':
		return classDot
	case '"':
		return classDoubleQuote
	case '\'':
		return classSingleQuote
	case '`':
		return classBackQuote
	case '\\':
		return classBackslash
	case '(', ')', '[', ']':
		return classBracket
	}
	return classOther
}

// Scan splits expression text into tokens. It is a pure function of its
// input: the same text always yields the same tokens and offsets.
func Scan(text string) ([]Token, error) {
	var tokens []Token
	emit := func(from, to int) {
		if from >= to {
			return
		}
		tok := Token{Text: text[from:to], Offset: from}
		tok.Class = classify(tok.Text)
		if tok.Class == Unknown {
			tokens = append(tokens, split(tok)...)
			return
		}
		tokens = append(tokens, tok)
	}

	state := stStart
	begin := 0
	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		class := classOf(r)
		if state == stStart && class == classSpace {
			i += size
			begin = i
			continue
		}
		switch next := transitions[state][class]; next {
		case reject:
			return nil, tplerr.NewLexicalError(i, "unexpected character %q after %q", r, text[begin:i])
		case emitIncluding:
			emit(begin, i+size)
			i += size
			begin, state = i, stStart
		case emitBefore:
			emit(begin, i)
			begin, state = i, stStart
		case emitTrim:
			dot := i - 1
			emit(begin, dot)
			i = dot
			begin, state = i, stStart
		default:
			state = next
			i += size
		}
	}

	switch state {
	case stDouble, stDoubleEscape, stSingle, stSingleEscape, stBack, stBackEscape:
		return nil, tplerr.NewLexicalError(begin, "unterminated string literal %s", text[begin:])
	}
	emit(begin, len(text))
	return tokens, nil
}
