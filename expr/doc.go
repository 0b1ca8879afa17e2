// Package expr implements conditions that run in two modes: evaluated in
// memory against a Record, or rendered to SQL through a dialect Quoter.
//
// Conditions are usually written as format strings with placeholders:
//
//	e := expr.E("age > ? and name = %s", 18, "Bob")
//	ok, err := e.Evaluate(expr.Record{"age": 20, "name": "Bob"}) // true
//	sql, err := e.Render(quoter)                                  // "age" > 18 AND "name" = 'Bob'
//
// A Builder parses its format string once into a tree of Literal,
// ArrayLiteral, FieldAccess, Infix and Prefix nodes, used both for
// evaluation and rendering. A format the parser rejects is interpolated
// when rendered, so dialect specific SQL may be written directly. Parse
// returns the tree; trees render with SQL keywords in upper case and only
// the parentheses precedence requires.
//
// Placeholders consume their variables strictly left to right:
//
//	?          type detected from the value
//	%i %s %t   integer, string(255), text
//	%f %b      float, boolean
//	%date %d   date, datetime
//	%n %o      binary, object
//	%Status    enum registered with NewParser
//	%_         a type name or *schema.DataType, then the value
//	%e         a spliced Expression
//	%m %c      a model or column name, quoted as an identifier
//	?() %i()   a slice, rendered as a tuple for in
//
// "..." is a string literal, {name} a model and [name] a field.
//
// Evaluation follows SQL NULL semantics: a comparison with NULL yields nil
// and and/or use three-valued logic, so an in-memory filter selects the
// same rows as the rendered WHERE clause.
package expr
