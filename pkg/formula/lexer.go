package formula

import (
	"strings"

	"github.com/leapstack-labs/leapcalc/pkg/locale"
	"github.com/leapstack-labs/leapcalc/pkg/ref"
)

// Lexer tokenizes formula text under a locale's separator rules.
type Lexer struct {
	input   string
	pos     int  // current position in input
	readPos int  // reading position (after current char)
	ch      byte // current char under examination
	line    int  // current line number (1-based)
	col     int  // current column number (1-based)

	loc *locale.Locale

	// braceDepth tracks array literal nesting: inside braces the
	// locale's array separators take over from the argument separator.
	braceDepth int

	spacePending bool
}

// NewLexer creates a Lexer for the given input and locale. A nil
// locale means canonical en-US separators.
func NewLexer(input string, loc *locale.Locale) *Lexer {
	if loc == nil {
		loc = locale.Default()
	}
	l := &Lexer{
		input: input,
		line:  1,
		col:   0,
		loc:   loc,
	}
	l.readChar()
	return l
}

// readChar advances to the next character.
func (l *Lexer) readChar() {
	if l.readPos >= len(l.input) {
		l.ch = 0 // ASCII NUL = EOF
	} else {
		l.ch = l.input[l.readPos]
	}
	l.pos = l.readPos
	l.readPos++

	if l.ch == '\n' {
		l.line++
		l.col = 0
	} else {
		l.col++
	}
}

// peekChar returns the next character without advancing.
func (l *Lexer) peekChar() byte {
	if l.readPos >= len(l.input) {
		return 0
	}
	return l.input[l.readPos]
}

// currentPos returns the current position.
func (l *Lexer) currentPos() Position {
	return Position{
		Line:   l.line,
		Column: l.col,
		Offset: l.pos,
	}
}

// NextToken returns the next token.
func (l *Lexer) NextToken() Token {
	l.skipWhitespace()

	pos := l.currentPos()
	space := l.spacePending
	l.spacePending = false

	// Locale separators take priority over fixed punctuation so a
	// semicolon argument separator wins in comma-decimal locales.
	if l.ch != 0 {
		if kind, ok := l.matchSeparator(); ok {
			lit := string(l.ch)
			l.readChar()
			return Token{Kind: kind, Literal: lit, Pos: pos, SpaceBefore: space}
		}
	}

	var tok Token
	tok.Pos = pos
	tok.SpaceBefore = space

	switch l.ch {
	case 0:
		tok.Kind = EOF
		tok.Literal = ""
		return tok
	case '+':
		tok.Kind, tok.Literal = PLUS, "+"
	case '-':
		tok.Kind, tok.Literal = MINUS, "-"
	case '*':
		tok.Kind, tok.Literal = STAR, "*"
	case '/':
		tok.Kind, tok.Literal = SLASH, "/"
	case '^':
		tok.Kind, tok.Literal = CARET, "^"
	case '%':
		tok.Kind, tok.Literal = PERCENT, "%"
	case '&':
		tok.Kind, tok.Literal = AMP, "&"
	case '=':
		tok.Kind, tok.Literal = EQ, "="
	case '<':
		switch l.peekChar() {
		case '=':
			l.readChar()
			tok.Kind, tok.Literal = LE, "<="
		case '>':
			l.readChar()
			tok.Kind, tok.Literal = NE, "<>"
		default:
			tok.Kind, tok.Literal = LT, "<"
		}
	case '>':
		if l.peekChar() == '=' {
			l.readChar()
			tok.Kind, tok.Literal = GE, ">="
		} else {
			tok.Kind, tok.Literal = GT, ">"
		}
	case '(':
		tok.Kind, tok.Literal = LPAREN, "("
	case ')':
		tok.Kind, tok.Literal = RPAREN, ")"
	case '{':
		l.braceDepth++
		tok.Kind, tok.Literal = LBRACE, "{"
	case '}':
		if l.braceDepth > 0 {
			l.braceDepth--
		}
		tok.Kind, tok.Literal = RBRACE, "}"
	case ':':
		tok.Kind, tok.Literal = COLON, ":"
	case '!':
		tok.Kind, tok.Literal = BANG, "!"
	case '@':
		tok.Kind, tok.Literal = AT, "@"
	case '"':
		lit, closed := l.readString()
		tok.Kind, tok.Literal = STRING, lit
		if !closed {
			tok.Kind = ILLEGAL
		}
		return tok
	case '\'':
		lit, closed := l.readQuotedSheet()
		tok.Kind, tok.Literal = QUOTESHEET, lit
		if !closed {
			tok.Kind = ILLEGAL
		}
		return tok
	case '[':
		lit, closed := l.readBracketed()
		tok.Kind, tok.Literal = BRACKET, lit
		if !closed {
			tok.Kind = ILLEGAL
		}
		return tok
	case '#':
		if isNameChar(l.peekChar()) {
			tok.Kind = ERRORLIT
			tok.Literal = l.readErrorLiteral()
			return tok
		}
		tok.Kind, tok.Literal = HASH, "#"
	default:
		switch {
		case isLetter(l.ch) || l.ch == '_' || l.ch == '$':
			tok.Kind, tok.Literal = l.readReferenceOrIdent()
			return tok
		case isDigit(l.ch):
			tok.Kind = NUMBER
			tok.Literal = l.readNumber()
			return tok
		case rune(l.ch) == l.loc.DecimalSep() && isDigit(l.peekChar()):
			// Bare leading separator: =.5
			tok.Kind = NUMBER
			tok.Literal = l.readNumber()
			return tok
		default:
			tok.Kind, tok.Literal = ILLEGAL, string(l.ch)
		}
	}

	l.readChar()
	return tok
}

// matchSeparator maps the locale's separator characters onto tokens.
// Inside array braces the array separators rule; outside them only the
// argument separator is live.
func (l *Lexer) matchSeparator() (TokenKind, bool) {
	c := rune(l.ch)
	if l.braceDepth > 0 {
		switch c {
		case l.loc.ArrayColSep():
			return ARRAYCOL, true
		case l.loc.ArrayRowSep():
			return ARRAYROW, true
		}
	}
	if c == l.loc.ArgSep() {
		return ARGSEP, true
	}
	return 0, false
}

// skipWhitespace skips blanks, recording that a gap was seen so the
// parser can recognize the intersection operator.
func (l *Lexer) skipWhitespace() {
	for l.ch == ' ' || l.ch == '\t' || l.ch == '\n' || l.ch == '\r' {
		l.spacePending = true
		l.readChar()
	}
}

// readString reads a double-quoted string literal. A doubled quote is
// the escape: "it""s" -> it"s. closed is false when input ends before
// the closing quote.
func (l *Lexer) readString() (lit string, closed bool) {
	l.readChar() // skip opening quote

	var result strings.Builder
	for l.ch != 0 {
		if l.ch == '"' {
			if l.peekChar() == '"' {
				result.WriteByte('"')
				l.readChar() // skip first quote
				l.readChar() // skip second quote
			} else {
				l.readChar() // skip closing quote
				return result.String(), true
			}
		} else {
			result.WriteByte(l.ch)
			l.readChar()
		}
	}
	return result.String(), false
}

// readQuotedSheet reads a single-quoted sheet name. A doubled quote
// inside the name is the escape for a literal quote.
func (l *Lexer) readQuotedSheet() (lit string, closed bool) {
	l.readChar() // skip opening quote

	var result strings.Builder
	for l.ch != 0 {
		if l.ch == '\'' {
			if l.peekChar() == '\'' {
				result.WriteByte('\'')
				l.readChar()
				l.readChar()
			} else {
				l.readChar() // skip closing quote
				return result.String(), true
			}
		} else {
			result.WriteByte(l.ch)
			l.readChar()
		}
	}
	return result.String(), false
}

// readBracketed scans a bracketed payload to its matching close
// bracket, tracking nesting for structured reference bodies like
// [[#All],[Col]]. The literal keeps its brackets.
func (l *Lexer) readBracketed() (lit string, closed bool) {
	start := l.pos
	depth := 0
	for l.ch != 0 {
		switch l.ch {
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				l.readChar() // consume final ]
				return l.input[start:l.pos], true
			}
		case '\'':
			// Quoted section inside a bracket, e.g. ['#Of Items].
			l.readChar()
		}
		l.readChar()
	}
	return l.input[start:l.pos], false
}

// readErrorLiteral scans an error literal: '#' then name characters,
// with an optional trailing '?' or '!'.
func (l *Lexer) readErrorLiteral() string {
	start := l.pos
	l.readChar() // skip '#'
	for isNameChar(l.ch) {
		l.readChar()
	}
	if l.ch == '?' || l.ch == '!' {
		l.readChar()
	}
	return l.input[start:l.pos]
}

// isNameChar matches the body characters of error literals: letters,
// digits, '/', '_' and '.'.
func isNameChar(c byte) bool {
	return isLetter(c) || isDigit(c) || c == '/' || c == '_' || c == '.'
}

// readReferenceOrIdent scans a letter run and classifies it. Full A1
// forms become CELLREF, $-prefixed fragments become COLREF or ROWREF,
// anything else is an IDENT for the parser to place.
func (l *Lexer) readReferenceOrIdent() (TokenKind, string) {
	start := l.pos
	for isLetter(l.ch) || isDigit(l.ch) || l.ch == '_' || l.ch == '$' || l.ch == '.' {
		l.readChar()
	}
	lit := l.input[start:l.pos]

	if _, ok := ref.ParseA1(lit); ok {
		return CELLREF, lit
	}
	if strings.ContainsRune(lit, '$') {
		if _, _, ok := ref.ParseCol(lit); ok {
			return COLREF, lit
		}
		if _, _, ok := ref.ParseRow(lit); ok {
			return ROWREF, lit
		}
		return ILLEGAL, lit
	}
	return IDENT, lit
}

// readNumber reads a numeric literal using the locale's decimal
// separator, with an optional exponent.
func (l *Lexer) readNumber() string {
	start := l.pos
	dec := l.loc.DecimalSep()

	for isDigit(l.ch) {
		l.readChar()
	}

	if rune(l.ch) == dec && isDigit(l.peekChar()) {
		l.readChar() // skip separator
		for isDigit(l.ch) {
			l.readChar()
		}
	}

	if l.ch == 'e' || l.ch == 'E' {
		next := l.peekChar()
		if isDigit(next) || next == '+' || next == '-' {
			l.readChar() // skip 'e' or 'E'
			if l.ch == '+' || l.ch == '-' {
				l.readChar()
			}
			for isDigit(l.ch) {
				l.readChar()
			}
		}
	}

	return l.input[start:l.pos]
}

// isLetter reports an ASCII or high-bit letter byte. Multibyte UTF-8
// continuation bytes count so localized function names scan whole.
func isLetter(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= 0x80
}

// isDigit reports an ASCII digit.
func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

// Tokenize returns all tokens from the input, ending with EOF.
func Tokenize(input string, loc *locale.Locale) []Token {
	l := NewLexer(input, loc)
	var tokens []Token
	for {
		tok := l.NextToken()
		tokens = append(tokens, tok)
		if tok.Kind == EOF {
			break
		}
	}
	return tokens
}
