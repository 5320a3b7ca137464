// Package formula provides formula parsing: a locale-aware lexer, a
// recursive-descent parser producing reference-resolved expression
// trees, and rendering back to formula text.
package formula

import "strconv"

// TokenKind identifies the lexical class of a token.
type TokenKind uint8

// Token kinds. Reference-looking letter runs are classified by the
// lexer: full A1 forms become CELLREF, $-prefixed column and row
// fragments become COLREF and ROWREF, everything else stays IDENT and
// the parser decides from context.
const (
	EOF TokenKind = iota
	ILLEGAL

	NUMBER     // 1.5 (decimal separator per locale)
	STRING     // "text", doubled "" escape
	CELLREF    // B3, $B$3
	COLREF     // $B (column fragment with absolute marker)
	ROWREF     // $3 (row fragment with absolute marker)
	IDENT      // function or defined name, sheet name, bare column
	QUOTESHEET // 'My Sheet', doubled '' escape
	ERRORLIT   // #DIV/0!, #N/A, #NAME?
	BRACKET    // [Book.xlsx], [Col], [[#All],[Col]] scanned whole

	PLUS    // +
	MINUS   // -
	STAR    // *
	SLASH   // /
	CARET   // ^
	PERCENT // %
	AMP     // &

	EQ // =
	NE // <>
	LT // <
	GT // >
	LE // <=
	GE // >=

	LPAREN // (
	RPAREN // )
	LBRACE // {
	RBRACE // }

	ARGSEP   // argument separator (locale: , or ;)
	ARRAYCOL // array column separator inside braces
	ARRAYROW // array row separator inside braces

	COLON // : range operator, sheet span
	BANG  // ! sheet qualifier
	AT    // @ implicit intersection
	HASH  // # spill range postfix
)

var tokenNames = [...]string{
	EOF:        "EOF",
	ILLEGAL:    "ILLEGAL",
	NUMBER:     "NUMBER",
	STRING:     "STRING",
	CELLREF:    "CELLREF",
	COLREF:     "COLREF",
	ROWREF:     "ROWREF",
	IDENT:      "IDENT",
	QUOTESHEET: "QUOTESHEET",
	ERRORLIT:   "ERRORLIT",
	BRACKET:    "BRACKET",
	PLUS:       "+",
	MINUS:      "-",
	STAR:       "*",
	SLASH:      "/",
	CARET:      "^",
	PERCENT:    "%",
	AMP:        "&",
	EQ:         "=",
	NE:         "<>",
	LT:         "<",
	GT:         ">",
	LE:         "<=",
	GE:         ">=",
	LPAREN:     "(",
	RPAREN:     ")",
	LBRACE:     "{",
	RBRACE:     "}",
	ARGSEP:     "ARGSEP",
	ARRAYCOL:   "ARRAYCOL",
	ARRAYROW:   "ARRAYROW",
	COLON:      ":",
	BANG:       "!",
	AT:         "@",
	HASH:       "#",
}

// String returns a readable name for error messages.
func (k TokenKind) String() string {
	if int(k) < len(tokenNames) && tokenNames[k] != "" {
		return tokenNames[k]
	}
	return "token(" + strconv.Itoa(int(k)) + ")"
}

// Position is a location in formula text. Line and Column are 1-based,
// Offset is the 0-based byte offset.
type Position struct {
	Line   int
	Column int
	Offset int
}

// Span is a half-open source range.
type Span struct {
	Start Position
	End   Position
}

// Token is one lexical token with its source position. SpaceBefore
// records whether whitespace preceded the token; the parser needs it
// for the range-intersection operator and to keep Table[Col] distinct
// from Table [Col].
type Token struct {
	Kind        TokenKind
	Literal     string
	Pos         Position
	SpaceBefore bool
}
