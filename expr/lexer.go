package expr

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/syssam/strata"
)

type tokenKind uint8

const (
	tokEOF tokenKind = iota
	tokNumber
	tokString
	tokIdent   // bare name or keyword
	tokModel   // {name} or %m
	tokField   // [name] or %c
	tokBound   // placeholder bound to a value, tuple or expression
	tokOp      // comparison operator
	tokLParen  // (
	tokRParen  // )
	tokComma   // ,
	tokDot     // .
)

type token struct {
	kind  tokenKind
	text  string
	pos   int
	bound resolved
}

// keyword reports whether the token is the given keyword, ignoring case.
func (t token) keyword(kw string) bool {
	return t.kind == tokIdent && strings.EqualFold(t.text, kw)
}

var operators = []string{"!=", "<>", ">=", "<=", "!<", "!>", "=", "<", ">"}

// lexer splits a condition into tokens. Placeholders are bound while
// lexing, so variables are consumed in the order they appear.
type lexer struct {
	p     *Parser
	input string
	pos   int
	vars  *varReader
}

func (l *lexer) errorf(token string, pos int, reason string) error {
	return strata.NewParseError(l.input, token, pos, reason)
}

func (l *lexer) tokens() ([]token, error) {
	var toks []token
	for {
		t, err := l.next()
		if err != nil {
			return nil, err
		}
		toks = append(toks, t)
		if t.kind == tokEOF {
			break
		}
	}
	if err := l.vars.finish(); err != nil {
		return nil, err
	}
	return toks, nil
}

func (l *lexer) peekRune(off int) rune {
	if l.pos+off >= len(l.input) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.input[l.pos+off:])
	return r
}

func (l *lexer) next() (token, error) {
	for l.pos < len(l.input) {
		r, size := utf8.DecodeRuneInString(l.input[l.pos:])
		if !unicode.IsSpace(r) {
			break
		}
		l.pos += size
	}
	start := l.pos
	if start >= len(l.input) {
		return token{kind: tokEOF, pos: start}, nil
	}
	c := l.input[start]
	switch {
	case c == '(':
		l.pos++
		return token{kind: tokLParen, text: "(", pos: start}, nil
	case c == ')':
		l.pos++
		return token{kind: tokRParen, text: ")", pos: start}, nil
	case c == ',':
		l.pos++
		return token{kind: tokComma, text: ",", pos: start}, nil
	case c == '.' && !isDigit(l.peekRune(1)):
		l.pos++
		return token{kind: tokDot, text: ".", pos: start}, nil
	case c == '"':
		return l.lexString()
	case c == '{' || c == '[':
		return l.lexBracketed()
	case c == '?' || c == '%':
		return l.lexPlaceholder()
	case isDigit(rune(c)) || c == '.' || c == '-' && isDigit(l.peekRune(1)):
		return l.lexNumber()
	case isIdentStart(rune(c)):
		for l.pos < len(l.input) && isIdentPart(rune(l.input[l.pos])) {
			l.pos++
		}
		return token{kind: tokIdent, text: l.input[start:l.pos], pos: start}, nil
	}
	for _, op := range operators {
		if strings.HasPrefix(l.input[start:], op) {
			l.pos += len(op)
			return token{kind: tokOp, text: op, pos: start}, nil
		}
	}
	r, _ := utf8.DecodeRuneInString(l.input[start:])
	return token{}, l.errorf(string(r), start, "unexpected character")
}

func (l *lexer) lexString() (token, error) {
	start := l.pos
	for i := start + 1; i < len(l.input); i++ {
		switch l.input[i] {
		case '\\':
			i++
		case '"':
			l.pos = i + 1
			return token{kind: tokString, text: unescape(l.input[start+1 : i]), pos: start}, nil
		}
	}
	return token{}, l.errorf(l.input[start:], start, "unterminated string")
}

// unescape resolves the body of a "..." literal: a backslash makes the
// next character literal.
func unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func (l *lexer) lexBracketed() (token, error) {
	start := l.pos
	closing, kind := byte('}'), tokModel
	if l.input[start] == '[' {
		closing, kind = ']', tokField
	}
	end := strings.IndexByte(l.input[start+1:], closing)
	if end < 0 {
		return token{}, l.errorf(l.input[start:], start, "unterminated identifier")
	}
	name := l.input[start+1 : start+1+end]
	if name == "" || !isIdentStart(rune(name[0])) || strings.IndexFunc(name, func(r rune) bool { return !isIdentPart(r) }) >= 0 {
		return token{}, l.errorf(name, start, "invalid identifier")
	}
	l.pos = start + end + 2
	return token{kind: kind, text: name, pos: start}, nil
}

func (l *lexer) lexPlaceholder() (token, error) {
	start := l.pos
	ph := placeholder{pos: start}
	l.pos++
	if l.input[start] == '%' {
		for l.pos < len(l.input) && isIdentPart(rune(l.input[l.pos])) {
			l.pos++
		}
		ph.name = l.input[start+1 : l.pos]
		if ph.name == "" {
			return token{}, l.errorf("%", start, "malformed placeholder")
		}
	}
	if strings.HasPrefix(l.input[l.pos:], "()") {
		ph.array = true
		l.pos += 2
	}
	ph.token = l.input[start:l.pos]
	r, err := l.p.resolve(ph, l.vars)
	if err != nil {
		return token{}, err
	}
	if r.kind == resolvedModel {
		return token{kind: tokModel, text: r.name, pos: start}, nil
	}
	return token{kind: tokBound, text: ph.token, pos: start, bound: r}, nil
}

func (l *lexer) lexNumber() (token, error) {
	start := l.pos
	if l.input[l.pos] == '-' {
		l.pos++
	}
	seenDot := false
	for l.pos < len(l.input) {
		c := l.input[l.pos]
		if c == '.' && !seenDot {
			seenDot = true
		} else if !isDigit(rune(c)) {
			break
		}
		l.pos++
	}
	text := l.input[start:l.pos]
	if text == "." || text == "-." {
		return token{}, l.errorf(text, start, "malformed number")
	}
	return token{kind: tokNumber, text: text, pos: start}, nil
}

func isDigit(r rune) bool { return r >= '0' && r <= '9' }

func isIdentStart(r rune) bool {
	return r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z'
}

func isIdentPart(r rune) bool { return isIdentStart(r) || isDigit(r) }
