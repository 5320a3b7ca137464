package formula_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapcalc/pkg/formula"
	"github.com/leapstack-labs/leapcalc/pkg/locale"
	"github.com/leapstack-labs/leapcalc/pkg/locales/dede"
	"github.com/leapstack-labs/leapcalc/pkg/locales/enus"
)

// kinds strips the token stream down to its kinds, dropping EOF.
func kinds(t *testing.T, input string, loc *locale.Locale) []formula.TokenKind {
	t.Helper()
	tokens := formula.Tokenize(input, loc)
	require.NotEmpty(t, tokens)
	out := make([]formula.TokenKind, 0, len(tokens)-1)
	for _, tok := range tokens[:len(tokens)-1] {
		out = append(out, tok.Kind)
	}
	return out
}

func literals(t *testing.T, input string, loc *locale.Locale) []string {
	t.Helper()
	tokens := formula.Tokenize(input, loc)
	out := make([]string, 0, len(tokens)-1)
	for _, tok := range tokens[:len(tokens)-1] {
		out = append(out, tok.Literal)
	}
	return out
}

func TestLexerTokenKinds(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []formula.TokenKind
	}{
		{
			name:  "arithmetic",
			input: "=1+2*3",
			want: []formula.TokenKind{
				formula.EQ, formula.NUMBER, formula.PLUS,
				formula.NUMBER, formula.STAR, formula.NUMBER,
			},
		},
		{
			name:  "cell reference and range",
			input: "A1:B2",
			want: []formula.TokenKind{
				formula.CELLREF, formula.COLON, formula.CELLREF,
			},
		},
		{
			name:  "absolute reference",
			input: "$A$1",
			want:  []formula.TokenKind{formula.CELLREF},
		},
		{
			name:  "bare column letters stay identifiers",
			input: "B:D",
			want: []formula.TokenKind{
				formula.IDENT, formula.COLON, formula.IDENT,
			},
		},
		{
			name:  "dollar column fragment",
			input: "$B:D",
			want: []formula.TokenKind{
				formula.COLREF, formula.COLON, formula.IDENT,
			},
		},
		{
			name:  "dollar row fragment",
			input: "$3:5",
			want: []formula.TokenKind{
				formula.ROWREF, formula.COLON, formula.NUMBER,
			},
		},
		{
			name:  "function call",
			input: "SUM(A1,B1)",
			want: []formula.TokenKind{
				formula.IDENT, formula.LPAREN, formula.CELLREF,
				formula.ARGSEP, formula.CELLREF, formula.RPAREN,
			},
		},
		{
			name:  "comparison operators",
			input: "A1<>B1<=C1>=D1",
			want: []formula.TokenKind{
				formula.CELLREF, formula.NE, formula.CELLREF,
				formula.LE, formula.CELLREF, formula.GE, formula.CELLREF,
			},
		},
		{
			name:  "quoted sheet",
			input: "'My Sheet'!A1",
			want: []formula.TokenKind{
				formula.QUOTESHEET, formula.BANG, formula.CELLREF,
			},
		},
		{
			name:  "error literal",
			input: "#DIV/0!+1",
			want: []formula.TokenKind{
				formula.ERRORLIT, formula.PLUS, formula.NUMBER,
			},
		},
		{
			name:  "name error literal keeps question mark",
			input: "#NAME?",
			want:  []formula.TokenKind{formula.ERRORLIT},
		},
		{
			name:  "spill postfix",
			input: "A1#",
			want:  []formula.TokenKind{formula.CELLREF, formula.HASH},
		},
		{
			name:  "structured reference bracket",
			input: "Table1[[#All],[Amount]]",
			want:  []formula.TokenKind{formula.IDENT, formula.BRACKET},
		},
		{
			name:  "external book prefix",
			input: "[Book1.xlsx]Sheet1!A1",
			want: []formula.TokenKind{
				formula.BRACKET, formula.IDENT, formula.BANG, formula.CELLREF,
			},
		},
		{
			name:  "leading decimal point",
			input: "=.5",
			want:  []formula.TokenKind{formula.EQ, formula.NUMBER},
		},
		{
			name:  "percent and power",
			input: "2^10%",
			want: []formula.TokenKind{
				formula.NUMBER, formula.CARET, formula.NUMBER, formula.PERCENT,
			},
		},
		{
			name:  "implicit intersection",
			input: "@A1:A10",
			want: []formula.TokenKind{
				formula.AT, formula.CELLREF, formula.COLON, formula.CELLREF,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, kinds(t, tt.input, enus.EnUS))
		})
	}
}

func TestLexerArraySeparators(t *testing.T) {
	// inside braces the column and row separators take over
	got := kinds(t, "{1,2;3,4}", enus.EnUS)
	want := []formula.TokenKind{
		formula.LBRACE,
		formula.NUMBER, formula.ARRAYCOL, formula.NUMBER,
		formula.ARRAYROW,
		formula.NUMBER, formula.ARRAYCOL, formula.NUMBER,
		formula.RBRACE,
	}
	assert.Equal(t, want, got)

	// outside braces the comma is the argument separator
	got = kinds(t, "SUM(1,2)", enus.EnUS)
	assert.Contains(t, got, formula.ARGSEP)
	assert.NotContains(t, got, formula.ARRAYCOL)
}

func TestLexerGermanSeparators(t *testing.T) {
	// decimal comma glues into the number, semicolon separates args
	got := kinds(t, "SUMME(1,5;2,5)", dede.DeDE)
	want := []formula.TokenKind{
		formula.IDENT, formula.LPAREN,
		formula.NUMBER, formula.ARGSEP, formula.NUMBER,
		formula.RPAREN,
	}
	assert.Equal(t, want, got)

	lits := literals(t, "SUMME(1,5;2,5)", dede.DeDE)
	assert.Equal(t, "1,5", lits[2])
	assert.Equal(t, "2,5", lits[4])

	// the same bytes under en-US are two integer arguments
	got = kinds(t, "SUM(1,5)", enus.EnUS)
	want = []formula.TokenKind{
		formula.IDENT, formula.LPAREN,
		formula.NUMBER, formula.ARGSEP, formula.NUMBER,
		formula.RPAREN,
	}
	assert.Equal(t, want, got)
}

func TestLexerGermanArrayConstant(t *testing.T) {
	got := kinds(t, "{1.2;3.4}", dede.DeDE)
	want := []formula.TokenKind{
		formula.LBRACE,
		formula.NUMBER, formula.ARRAYCOL, formula.NUMBER,
		formula.ARRAYROW,
		formula.NUMBER, formula.ARRAYCOL, formula.NUMBER,
		formula.RBRACE,
	}
	assert.Equal(t, want, got)
}

func TestLexerStringEscapes(t *testing.T) {
	lits := literals(t, `"he said ""hi"""&A1`, enus.EnUS)
	require.NotEmpty(t, lits)
	assert.Equal(t, `he said "hi"`, lits[0])

	lits = literals(t, "'It''s'!B2", enus.EnUS)
	assert.Equal(t, "It's", lits[0])
}

func TestLexerSpaceBefore(t *testing.T) {
	tokens := formula.Tokenize("A1 B2", enus.EnUS)
	require.Len(t, tokens, 3) // two refs plus EOF
	assert.False(t, tokens[0].SpaceBefore)
	assert.True(t, tokens[1].SpaceBefore)

	tokens = formula.Tokenize("A1+B2", enus.EnUS)
	assert.False(t, tokens[2].SpaceBefore)
}

func TestLexerNumbers(t *testing.T) {
	tests := []struct {
		input string
		loc   *locale.Locale
		lit   string
	}{
		{"123", enus.EnUS, "123"},
		{"1.5", enus.EnUS, "1.5"},
		{"1e3", enus.EnUS, "1e3"},
		{"2.5E-4", enus.EnUS, "2.5E-4"},
		{"1,5", dede.DeDE, "1,5"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			tokens := formula.Tokenize(tt.input, tt.loc)
			require.GreaterOrEqual(t, len(tokens), 2)
			assert.Equal(t, formula.NUMBER, tokens[0].Kind)
			assert.Equal(t, tt.lit, tokens[0].Literal)
		})
	}
}

func TestLexerPositions(t *testing.T) {
	tokens := formula.Tokenize("A1 + B2", enus.EnUS)
	require.Len(t, tokens, 4)
	assert.Equal(t, 1, tokens[0].Pos.Line)
	assert.Equal(t, 1, tokens[0].Pos.Column)
	assert.Equal(t, 4, tokens[1].Pos.Column)
	assert.Equal(t, 6, tokens[2].Pos.Column)
}

func TestLexerIllegalCharacter(t *testing.T) {
	tokens := formula.Tokenize("1?2", enus.EnUS)
	var sawIllegal bool
	for _, tok := range tokens {
		if tok.Kind == formula.ILLEGAL {
			sawIllegal = true
		}
	}
	assert.True(t, sawIllegal)
}
