package expr

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/syssam/strata"
	"github.com/syssam/strata/schema"
)

// Parser turns condition strings into expression trees. The zero value
// resolves only the built in placeholder types.
//
// Grammar, loosest binding first:
//
//	or         = and { "or" and }
//	and        = not { "and" not }
//	not        = "not" not | comparison
//	comparison = atomic [ operator atomic | "is" [ "not" ] "null" ]
//	operator   = "like" | "in" | "!=" | "<>" | ">=" | "<=" | "!<" | "!>" | "=" | "<" | ">"
//	atomic     = number | "true" | "false" | "null" | string | placeholder
//	           | column | "(" or ")" | "(" atomic { "," atomic } ")"
//	column     = [ ( model | name ) "." ] ( field | name )
type Parser struct {
	enums schema.EnumRegistry
}

// NewParser returns a parser resolving enum placeholders through enums.
func NewParser(enums schema.EnumRegistry) *Parser {
	return &Parser{enums: enums}
}

var defaultParser = &Parser{}

// Parse parses format with the package level parser.
func Parse(format string, vars ...any) (Expression, error) {
	return defaultParser.Parse(format, vars...)
}

// Parse parses format, binding vars to its placeholders left to right.
func (p *Parser) Parse(format string, vars ...any) (Expression, error) {
	l := &lexer{p: p, input: format, vars: &varReader{input: format, vars: vars}}
	toks, err := l.tokens()
	if err != nil {
		return nil, err
	}
	ps := &parseState{input: format, toks: toks}
	e, err := ps.parseOr()
	if err != nil {
		return nil, err
	}
	if t := ps.peek(); t.kind != tokEOF {
		return nil, ps.unexpected(t)
	}
	return e, nil
}

// E returns a Builder for format with the package level parser.
func E(format string, vars ...any) *Builder {
	return defaultParser.E(format, vars...)
}

// E returns a Builder for format. The tree is parsed immediately; a parse
// failure is reported when the builder is evaluated.
func (p *Parser) E(format string, vars ...any) *Builder {
	b := &Builder{parser: p, format: format, vars: vars}
	b.ast, b.err = p.Parse(format, vars...)
	return b
}

type parseState struct {
	input string
	toks  []token
	pos   int
}

func (ps *parseState) peek() token { return ps.toks[ps.pos] }

func (ps *parseState) advance() token {
	t := ps.toks[ps.pos]
	if t.kind != tokEOF {
		ps.pos++
	}
	return t
}

func (ps *parseState) unexpected(t token) error {
	if t.kind == tokEOF {
		return strata.NewParseError(ps.input, "", t.pos, "unexpected end of input")
	}
	return strata.NewParseError(ps.input, t.text, t.pos, "unexpected token")
}

func (ps *parseState) parseOr() (Expression, error) {
	left, err := ps.parseAnd()
	if err != nil {
		return nil, err
	}
	for ps.peek().keyword(OpOr) {
		ps.advance()
		right, err := ps.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &Infix{Left: left, Operator: OpOr, Right: right}
	}
	return left, nil
}

func (ps *parseState) parseAnd() (Expression, error) {
	left, err := ps.parseNot()
	if err != nil {
		return nil, err
	}
	for ps.peek().keyword(OpAnd) {
		ps.advance()
		right, err := ps.parseNot()
		if err != nil {
			return nil, err
		}
		left = &Infix{Left: left, Operator: OpAnd, Right: right}
	}
	return left, nil
}

func (ps *parseState) parseNot() (Expression, error) {
	if ps.peek().keyword(OpNot) {
		ps.advance()
		operand, err := ps.parseNot()
		if err != nil {
			return nil, err
		}
		return Not(operand), nil
	}
	return ps.parseComparison()
}

func (ps *parseState) parseComparison() (Expression, error) {
	left, err := ps.parseAtomic()
	if err != nil {
		return nil, err
	}
	t := ps.peek()
	switch {
	case t.keyword("is"):
		ps.advance()
		op := OpIsNull
		if ps.peek().keyword(OpNot) {
			ps.advance()
			op = OpIsNotNull
		}
		if n := ps.advance(); !n.keyword("null") {
			return nil, ps.unexpected(n)
		}
		return &Infix{Left: left, Operator: op}, nil
	case t.kind == tokOp, t.keyword(OpLike), t.keyword(OpIn):
		ps.advance()
		op := strings.ToLower(t.text)
		right, err := ps.parseAtomic()
		if err != nil {
			return nil, err
		}
		if lit, ok := right.(*Literal); ok && op == OpIn {
			right, _ = tuple(ps.input, []Expression{lit})
		}
		return &Infix{Left: left, Operator: op, Right: right}, nil
	}
	return left, nil
}

func (ps *parseState) parseAtomic() (Expression, error) {
	t := ps.advance()
	switch t.kind {
	case tokNumber:
		return numberLiteral(ps.input, t)
	case tokString:
		return &Literal{Type: schema.Text(), Value: t.text}, nil
	case tokBound:
		return t.bound.node(), nil
	case tokLParen:
		return ps.parseParen()
	case tokModel:
		if ps.peek().kind != tokDot {
			return nil, ps.unexpected(ps.peek())
		}
		return ps.parseQualified(t.text)
	case tokField:
		return &FieldAccess{Field: t.text, QuoteField: true}, nil
	case tokIdent:
		switch strings.ToLower(t.text) {
		case "true", "false":
			return &Literal{Type: schema.Boolean(), Value: strings.EqualFold(t.text, "true")}, nil
		case "null":
			return &Literal{Type: schema.Text(schema.Nullable()), Value: nil}, nil
		case OpAnd, OpOr, OpNot, OpLike, OpIn, "is":
			return nil, ps.unexpected(t)
		}
		if ps.peek().kind == tokDot {
			return ps.parseQualified(t.text)
		}
		return &FieldAccess{Field: t.text, QuoteField: true}, nil
	}
	return nil, ps.unexpected(t)
}

func (ps *parseState) parseQualified(model string) (Expression, error) {
	ps.advance() // .
	t := ps.advance()
	switch t.kind {
	case tokField, tokIdent:
		return &FieldAccess{Field: t.text, QuoteField: true, Model: model, QuoteModel: true}, nil
	}
	return nil, ps.unexpected(t)
}

// parseParen parses a parenthesized expression or a tuple of literals.
func (ps *parseState) parseParen() (Expression, error) {
	first, err := ps.parseOr()
	if err != nil {
		return nil, err
	}
	if ps.peek().kind != tokComma {
		if t := ps.advance(); t.kind != tokRParen {
			return nil, ps.unexpected(t)
		}
		return first, nil
	}
	items := []Expression{first}
	for ps.peek().kind == tokComma {
		ps.advance()
		item, err := ps.parseAtomic()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if t := ps.advance(); t.kind != tokRParen {
		return nil, ps.unexpected(t)
	}
	return tuple(ps.input, items)
}

func tuple(input string, items []Expression) (*ArrayLiteral, error) {
	arr := &ArrayLiteral{}
	for _, item := range items {
		lit, ok := item.(*Literal)
		if !ok {
			return nil, strata.NewParseError(input, "", 0, "tuples may only contain literals")
		}
		if arr.Type == nil && lit.Value != nil {
			arr.Type = lit.Type.WithNullable(true)
		}
		arr.Values = append(arr.Values, lit.Value)
	}
	if arr.Type == nil {
		arr.Type = schema.Text(schema.Nullable())
	}
	return arr, nil
}

func numberLiteral(input string, t token) (*Literal, error) {
	if !strings.Contains(t.text, ".") {
		i, err := strconv.ParseInt(t.text, 10, 64)
		if err != nil {
			return nil, strata.NewParseError(input, t.text, t.pos, "integer out of range")
		}
		return NewLiteral(i)
	}
	f, err := strconv.ParseFloat(t.text, 64)
	if err != nil {
		return nil, strata.NewParseError(input, t.text, t.pos, "malformed number")
	}
	return &Literal{Type: schema.Float(), Value: f}, nil
}

// Builder is a condition written as a format string with positional
// variables. Evaluation and rendering use the parsed tree. A format the
// parser rejects still renders by interpolation, so any SQL the dialect
// accepts may be written, including operators the parser does not know.
type Builder struct {
	parser *Parser
	format string
	vars   []any
	ast    Expression
	err    error
}

// Format returns the format string.
func (b *Builder) Format() string { return b.format }

// Vars returns the positional variables.
func (b *Builder) Vars() []any { return b.vars }

// AST returns the parsed tree, or the parse error.
func (b *Builder) AST() (Expression, error) { return b.ast, b.err }

// Evaluate evaluates the parsed tree against r.
func (b *Builder) Evaluate(r Record) (any, error) {
	if b.err != nil {
		return nil, b.err
	}
	return b.ast.Evaluate(r)
}

// Render renders the parsed tree, so the SQL selects the rows Evaluate
// accepts. A format the parser rejects is interpolated instead, with a
// fresh variable counter on every call.
func (b *Builder) Render(q Quoter) (string, error) {
	if b.err == nil {
		return b.ast.Render(q)
	}
	return b.parser.Interpolate(b.format, b.vars, q)
}

// String returns the format string with its variables, for debugging.
func (b *Builder) String() string {
	if len(b.vars) == 0 {
		return b.format
	}
	return fmt.Sprintf("%s %v", b.format, b.vars)
}
