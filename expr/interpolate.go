package expr

import (
	"regexp"
	"strings"

	"github.com/syssam/strata/schema"
)

var (
	// Booleans are matched outside string literals only; the string
	// alternative keeps literals intact for the next pass.
	booleanRe     = regexp.MustCompile(`"(?:[^"\\]|\\.)*"|(?i)\b(true|false)\b`)
	stringRe      = regexp.MustCompile(`"((?:[^"\\]|\\.)*)"`)
	modelRe       = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)
	fieldRe       = regexp.MustCompile(`\[([A-Za-z_][A-Za-z0-9_]*)\]`)
	placeholderRe = regexp.MustCompile(`\?(\(\))?|%([A-Za-z_][A-Za-z0-9_]*)(\(\))?`)
)

// segment is a piece of the format string. Substituted text is final and
// never scanned by later passes.
type segment struct {
	text  string
	final bool
	pos   int // byte offset in the original format string
}

type segments []segment

// replace runs re over the raw segments in order, substituting matches
// with the text returned by fn. A false keep leaves the match raw.
func (ss segments) replace(re *regexp.Regexp, fn func(m []string, pos int) (out string, keep bool, err error)) (segments, error) {
	out := make(segments, 0, len(ss))
	for _, s := range ss {
		if s.final {
			out = append(out, s)
			continue
		}
		last := 0
		for _, loc := range re.FindAllStringSubmatchIndex(s.text, -1) {
			m := make([]string, len(loc)/2)
			for i := range m {
				if loc[2*i] >= 0 {
					m[i] = s.text[loc[2*i]:loc[2*i+1]]
				}
			}
			text, keep, err := fn(m, s.pos+loc[0])
			if err != nil {
				return nil, err
			}
			if !keep {
				continue
			}
			if loc[0] > last {
				out = append(out, segment{text: s.text[last:loc[0]], pos: s.pos + last})
			}
			out = append(out, segment{text: text, final: true, pos: s.pos + loc[0]})
			last = loc[1]
		}
		if last < len(s.text) {
			out = append(out, segment{text: s.text[last:], pos: s.pos + last})
		}
	}
	return out, nil
}

func (ss segments) String() string {
	var b strings.Builder
	for _, s := range ss {
		b.WriteString(s.text)
	}
	return b.String()
}

// Interpolate substitutes the placeholders of format with vars rendered by
// q and returns SQL text. Substitution runs in passes, each seeing only text
// the previous passes left untouched:
//
//  1. true and false become boolean literals
//  2. "..." becomes a string literal
//  3. {name} becomes a quoted model name
//  4. [name] becomes a quoted field name
//  5. placeholders consume vars strictly left to right
//
// Placeholders are "?" (type detected from the value), "%name" where name
// is a data type placeholder or enum name, "%_" (a type name or
// *schema.DataType, then the value), "%e" (a spliced Expression), "%m"
// (a model name) and "%c" (a column name). A trailing "()" binds a slice
// and renders a parenthesized tuple.
func Interpolate(format string, vars []any, q Quoter) (string, error) {
	return defaultParser.Interpolate(format, vars, q)
}

// Interpolate is like the package level Interpolate, resolving enum
// placeholders through the parser registry.
func (p *Parser) Interpolate(format string, vars []any, q Quoter) (string, error) {
	ss := segments{{text: format}}
	ss, err := ss.replace(booleanRe, func(m []string, _ int) (string, bool, error) {
		if m[1] == "" {
			return "", false, nil
		}
		s, err := q.QuoteLiteral(schema.Boolean(), strings.EqualFold(m[1], "true"))
		return s, true, err
	})
	if err != nil {
		return "", err
	}
	if ss, err = ss.replace(stringRe, func(m []string, _ int) (string, bool, error) {
		return q.QuoteString(unescape(m[1])), true, nil
	}); err != nil {
		return "", err
	}
	if ss, err = ss.replace(modelRe, func(m []string, _ int) (string, bool, error) {
		return q.QuoteModel(m[1]), true, nil
	}); err != nil {
		return "", err
	}
	if ss, err = ss.replace(fieldRe, func(m []string, _ int) (string, bool, error) {
		return q.QuoteField(m[1]), true, nil
	}); err != nil {
		return "", err
	}
	vr := &varReader{input: format, vars: vars}
	if ss, err = ss.replace(placeholderRe, func(m []string, pos int) (string, bool, error) {
		ph := placeholder{name: m[2], array: m[1] != "" || m[3] != "", token: m[0], pos: pos}
		r, err := p.resolve(ph, vr)
		if err != nil {
			return "", false, err
		}
		s, err := r.render(q)
		return s, true, err
	}); err != nil {
		return "", err
	}
	if err := vr.finish(); err != nil {
		return "", err
	}
	return ss.String(), nil
}

// render renders a bound placeholder. Spliced expressions render with
// their own variables and are parenthesized unless atomic.
func (r resolved) render(q Quoter) (string, error) {
	switch r.kind {
	case resolvedModel:
		return q.QuoteModel(r.name), nil
	case resolvedField:
		return quoteColumn(q, r.name), nil
	case resolvedExpr:
		return renderOperand(r.expr, q, !IsAtomic(r.expr))
	}
	return r.node().Render(q)
}
