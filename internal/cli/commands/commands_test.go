// Package commands_test provides tests for CLI command creation.
package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapcalc/internal/engine"
	"github.com/leapstack-labs/leapcalc/internal/fn"
	"github.com/leapstack-labs/leapcalc/pkg/locales/enus"
	"golang.org/x/text/language"
)

func TestNewCalcCommand(t *testing.T) {
	cmd := NewCalcCommand()

	assert.Equal(t, "calc <book.yaml>", cmd.Use)
	assert.NotEmpty(t, cmd.Short, "Short should not be empty")
	assert.NotEmpty(t, cmd.Example, "Example should not be empty")

	// Verify flags exist (output is a global flag on root, not local)
	flags := []string{"watch", "sheet"}
	for _, flag := range flags {
		assert.NotNil(t, cmd.Flags().Lookup(flag), "flag %q should exist", flag)
	}
}

func TestNewEvalCommand(t *testing.T) {
	cmd := NewEvalCommand()

	assert.Equal(t, "eval <formula>", cmd.Use)
	assert.NotEmpty(t, cmd.Short, "Short should not be empty")
	assert.NotEmpty(t, cmd.Example, "Example should not be empty")

	flags := []string{"book", "cell"}
	for _, flag := range flags {
		assert.NotNil(t, cmd.Flags().Lookup(flag), "flag %q should exist", flag)
	}
}

func TestNewREPLCommand(t *testing.T) {
	cmd := NewREPLCommand()

	assert.Equal(t, "repl [book.yaml]", cmd.Use)
	assert.NotEmpty(t, cmd.Short, "Short should not be empty")
}

func TestNewDepsCommand(t *testing.T) {
	cmd := NewDepsCommand()

	assert.Equal(t, "deps <book.yaml> <cell>", cmd.Use)
	assert.NotEmpty(t, cmd.Short, "Short should not be empty")
	assert.NotNil(t, cmd.Flags().Lookup("depth"), "flag depth should exist")
}

func TestNewFnsCommand(t *testing.T) {
	cmd := NewFnsCommand()

	assert.Equal(t, "fns", cmd.Use)
	assert.NotEmpty(t, cmd.Short, "Short should not be empty")
	assert.NotNil(t, cmd.Flags().Lookup("category"), "flag category should exist")
}

// testEngine builds an engine with two empty sheets for helper tests.
func testEngine(t *testing.T) *engine.Engine {
	t.Helper()
	eng, err := engine.New(engine.Config{Locale: enus.EnUS})
	require.NoError(t, err)
	eng.AddSheet("Sheet1")
	eng.AddSheet("Data")
	return eng
}

func TestSplitCell(t *testing.T) {
	eng := testEngine(t)

	tests := []struct {
		in        string
		wantSheet string
		wantA1    string
	}{
		{"", "Sheet1", "A1"},
		{"B2", "Sheet1", "B2"},
		{"Data!C3", "Data", "C3"},
		{"'Data'!C3", "Data", "C3"},
	}
	for _, tt := range tests {
		sheet, a1 := splitCell(eng, tt.in)
		assert.Equal(t, tt.wantSheet, sheet, "input %q", tt.in)
		assert.Equal(t, tt.wantA1, a1, "input %q", tt.in)
	}
}

func TestSplitAssignment(t *testing.T) {
	tests := []struct {
		line       string
		wantTarget string
		wantRest   string
		wantOK     bool
	}{
		{"B2 = 42", "B2", "42", true},
		{"B2=42", "B2", "42", true},
		{"Data!C3 = =A1*2", "Data!C3", "=A1*2", true},
		{"B4 = 'text", "B4", "'text", true},
		{"=SUM(A1:A2)", "", "", false},
		{"=IF(A1=1,2,3)", "", "", false},
		{"hello", "", "", false},
		{"A1+1=2", "", "", false},
	}
	for _, tt := range tests {
		target, rest, ok := splitAssignment(tt.line)
		assert.Equal(t, tt.wantOK, ok, "line %q", tt.line)
		assert.Equal(t, tt.wantTarget, target, "line %q", tt.line)
		assert.Equal(t, tt.wantRest, rest, "line %q", tt.line)
	}
}

func TestParseScalar(t *testing.T) {
	s := &replSession{eng: testEngine(t)}

	v := s.parseScalar("42")
	require.True(t, v.IsNumber())
	assert.Equal(t, 42.0, v.Num())

	v = s.parseScalar("TRUE")
	require.True(t, v.IsBool())
	assert.True(t, v.Bool())

	v = s.parseScalar("#DIV/0!")
	assert.True(t, v.IsError())

	v = s.parseScalar("hello")
	require.True(t, v.IsText())
	assert.Equal(t, "hello", v.Str())

	// The apostrophe escape keeps digits as text.
	v = s.parseScalar("'123")
	require.True(t, v.IsText())
	assert.Equal(t, "123", v.Str())
}

func TestResolveLocale(t *testing.T) {
	loc, err := resolveLocale(language.Und)
	require.NoError(t, err)
	assert.Equal(t, "en-US", loc.Name)

	loc, err = resolveLocale(language.AmericanEnglish)
	require.NoError(t, err)
	assert.Equal(t, "en-US", loc.Name)

	// Tags arrive canonicalized from the config decode hook, so a
	// lowercase spelling resolves the same pack.
	loc, err = resolveLocale(language.Make("en-us"))
	require.NoError(t, err)
	assert.Equal(t, "en-US", loc.Name)

	_, err = resolveLocale(language.Make("xx-XX"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown locale")
}

func TestSelectFunctions(t *testing.T) {
	tbl := fn.NewTable()

	all, err := selectFunctions(tbl, "")
	require.NoError(t, err)
	assert.Len(t, all, tbl.Len())

	lookup, err := selectFunctions(tbl, "lookup")
	require.NoError(t, err)
	assert.NotEmpty(t, lookup)
	for _, d := range lookup {
		assert.Equal(t, fn.CategoryLookup, d.Category)
	}

	// The filter is case-insensitive.
	upper, err := selectFunctions(tbl, "LOOKUP")
	require.NoError(t, err)
	assert.Len(t, upper, len(lookup))

	_, err = selectFunctions(tbl, "bogus")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown category")
}

func TestArgRange(t *testing.T) {
	assert.Equal(t, "2", argRange(2, 2))
	assert.Equal(t, "0", argRange(0, 0))
	assert.Equal(t, "2-3", argRange(2, 3))
	assert.Equal(t, "1+", argRange(1, -1))
	assert.Equal(t, "0+", argRange(0, -1))
}
