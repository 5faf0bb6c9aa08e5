package promotion

import (
	"fmt"
	"strings"
	"unicode"

	"retailpos/backend/internal/store"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokNumber
	tokString
	tokLParen
	tokRParen
	tokComma
	tokStar
	tokOp
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

func (t token) String() string {
	if t.kind == tokEOF {
		return "end of input"
	}
	return fmt.Sprintf("%q", t.text)
}

// SyntaxError reports a malformed promotion expression. It matches
// store.ErrInvalidTransaction under errors.Is.
type SyntaxError struct {
	Pos int
	Msg string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("promotion syntax error at %d: %s", e.Pos, e.Msg)
}

func (e *SyntaxError) Unwrap() error {
	return store.ErrInvalidTransaction
}

func lex(src string) ([]token, error) {
	var tokens []token
	runes := []rune(src)
	for i := 0; i < len(runes); {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '(':
			tokens = append(tokens, token{tokLParen, "(", i})
			i++
		case r == ')':
			tokens = append(tokens, token{tokRParen, ")", i})
			i++
		case r == ',':
			tokens = append(tokens, token{tokComma, ",", i})
			i++
		case r == '*':
			tokens = append(tokens, token{tokStar, "*", i})
			i++
		case r == '>' || r == '<' || r == '=':
			start := i
			i++
			if r != '=' && i < len(runes) && runes[i] == '=' {
				i++
			}
			tokens = append(tokens, token{tokOp, string(runes[start:i]), start})
		case r == '\'':
			start := i
			i++
			for i < len(runes) && runes[i] != '\'' {
				i++
			}
			if i >= len(runes) {
				return nil, &SyntaxError{Pos: start, Msg: "unterminated string"}
			}
			tokens = append(tokens, token{tokString, string(runes[start+1 : i]), start})
			i++
		case unicode.IsDigit(r) || r == '.':
			start := i
			for i < len(runes) && (unicode.IsDigit(runes[i]) || runes[i] == '.') {
				i++
			}
			tokens = append(tokens, token{tokNumber, string(runes[start:i]), start})
		case unicode.IsLetter(r) || r == '_':
			start := i
			for i < len(runes) && (unicode.IsLetter(runes[i]) || unicode.IsDigit(runes[i]) || runes[i] == '_') {
				i++
			}
			tokens = append(tokens, token{tokIdent, strings.ToUpper(string(runes[start:i])), start})
		default:
			return nil, &SyntaxError{Pos: i, Msg: fmt.Sprintf("unexpected character %q", r)}
		}
	}
	return append(tokens, token{kind: tokEOF, pos: len(runes)}), nil
}
