// Package formula parses spreadsheet formulas into expression trees.
//
// # Usage
//
//	expr, err := formula.Parse("=SUM(A1:B2)*2", origin, locale.Default())
//	if err != nil {
//	    // handle error
//	}
//
// Parsing is locale-aware: the argument separator, decimal separator
// and localized function names all come from the supplied locale, and
// the resulting tree stores canonical (en-US) function names so that
// the same tree evaluates identically regardless of the locale it was
// typed in.
//
// # Grammar Overview
//
// The parser implements a Pratt expression parser over the operator
// precedence used by spreadsheet applications, tightest first:
//
//	reference     → ':' range, ' ' intersection, ',' union (in parens)
//	unary         → -x +x
//	postfix       → x% x#
//	exponent      → x^y (left associative)
//	multiplicative→ * /
//	additive      → + -
//	concat        → &
//	comparison    → = <> < > <= >=
//
// Unary minus binds tighter than exponentiation, so -2^2 is 4.
package formula

import (
	"fmt"

	"github.com/leapstack-labs/leapcalc/pkg/locale"
	"github.com/leapstack-labs/leapcalc/pkg/ref"
)

// ParseError describes a syntax error with its source position.
type ParseError struct {
	Pos     Position
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at line %d, column %d: %s", e.Pos.Line, e.Pos.Column, e.Message)
}

// Parser parses formula text into an expression tree.
type Parser struct {
	lexer  *Lexer
	token  Token // current token
	peek   Token // lookahead token
	peek2  Token // second lookahead token
	errors []error

	loc    *locale.Locale
	origin ref.CellKey

	// groupDepth counts grouping parentheses, not function call
	// parentheses. The union operator is only recognized inside
	// grouping parentheses.
	groupDepth int
}

// NewParser creates a parser for one formula. The origin cell anchors
// relative references; loc supplies separators and localized names
// (nil means en-US).
func NewParser(input string, origin ref.CellKey, loc *locale.Locale) *Parser {
	if loc == nil {
		loc = locale.Default()
	}
	p := &Parser{
		lexer:  NewLexer(input, loc),
		loc:    loc,
		origin: origin,
	}
	// Read three tokens to initialize current, peek, and peek2
	p.nextToken()
	p.nextToken()
	p.nextToken()
	return p
}

// Parse parses formula text into an expression tree. A leading '='
// is accepted and skipped. All input must be consumed; trailing
// tokens are an error.
func Parse(input string, origin ref.CellKey, loc *locale.Locale) (Expr, error) {
	p := NewParser(input, origin, loc)
	if p.check(EQ) {
		p.nextToken()
	}
	expr := p.parseExpr(precNone)
	if !p.check(EOF) && len(p.errors) == 0 {
		p.addError(fmt.Sprintf("unexpected token %s after expression", p.token.Kind))
	}
	if len(p.errors) > 0 {
		return nil, p.errors[0]
	}
	return expr, nil
}

// ParseReference parses text that must denote a reference, as
// produced for the INDIRECT function. Operators other than the
// reference operators are rejected.
func ParseReference(input string, origin ref.CellKey, loc *locale.Locale) (Expr, error) {
	expr, err := Parse(input, origin, loc)
	if err != nil {
		return nil, err
	}
	if !isReferenceExpr(expr) {
		return nil, &ParseError{Message: fmt.Sprintf("%q does not denote a reference", input)}
	}
	return expr, nil
}

// isReferenceExpr reports whether a tree can only produce a reference.
func isReferenceExpr(e Expr) bool {
	switch n := e.(type) {
	case *CellRef, *ColRange, *RowRange, *NameRef, *StructuredRef, *SpillRange:
		return true
	case *RangeExpr:
		return isReferenceExpr(n.Left) && isReferenceExpr(n.Right)
	case *BinaryExpr:
		if n.Op == OpUnion || n.Op == OpIntersect {
			return isReferenceExpr(n.Left) && isReferenceExpr(n.Right)
		}
		return false
	case *UnaryExpr:
		return n.Op == OpImplicit && isReferenceExpr(n.Operand)
	}
	return false
}

// ---------- Token Helpers ----------

// nextToken advances to the next token.
func (p *Parser) nextToken() {
	p.token = p.peek
	p.peek = p.peek2
	p.peek2 = p.lexer.NextToken()
}

// check returns true if the current token is of the given kind.
func (p *Parser) check(k TokenKind) bool {
	return p.token.Kind == k
}

// checkPeek returns true if the peek token is of the given kind.
func (p *Parser) checkPeek(k TokenKind) bool {
	return p.peek.Kind == k
}

// checkPeek2 returns true if the peek2 token is of the given kind.
func (p *Parser) checkPeek2(k TokenKind) bool {
	return p.peek2.Kind == k
}

// match consumes the current token if it matches and returns true.
func (p *Parser) match(k TokenKind) bool {
	if p.check(k) {
		p.nextToken()
		return true
	}
	return false
}

// expect consumes the current token if it matches, otherwise adds an
// error.
func (p *Parser) expect(k TokenKind) bool {
	if p.check(k) {
		p.nextToken()
		return true
	}
	p.addError(fmt.Sprintf("expected %s, found %s", k, p.token.Kind))
	return false
}

// addError records a parse error at the current token.
func (p *Parser) addError(msg string) {
	p.errors = append(p.errors, &ParseError{
		Pos:     p.token.Pos,
		Message: msg,
	})
}
