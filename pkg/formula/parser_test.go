package formula_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapcalc/pkg/formula"
	"github.com/leapstack-labs/leapcalc/pkg/locales/dede"
	"github.com/leapstack-labs/leapcalc/pkg/locales/enus"
	"github.com/leapstack-labs/leapcalc/pkg/ref"
	"github.com/leapstack-labs/leapcalc/pkg/value"
)

// originC3 anchors relative references at Sheet1!C3 for most tests.
var originC3 = ref.CellKey{Sheet: "Sheet1", Row: 2, Col: 2}

func mustParse(t *testing.T, input string) formula.Expr {
	t.Helper()
	expr, err := formula.Parse(input, originC3, enus.EnUS)
	require.NoError(t, err, "parse %q", input)
	return expr
}

// TestFormatCanonical parses and re-renders formulas, checking both
// the canonical text and that the canonical text re-parses to the
// same tree.
func TestFormatCanonical(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"=1+2*3", "1+2*3"},
		{"(1+2)*3", "(1+2)*3"},
		{"1-2-3", "1-2-3"},
		{"1-(2-3)", "1-(2-3)"},
		{"-2^2", "-2^2"},
		{"2^-3", "2^-3"},
		{"-(2^2)", "-(2^2)"},
		{"2^3^4", "2^3^4"},
		{"50%", "50%"},
		{"-5%", "-5%"},
		{"2^10%", "2^10%"},
		{`A1&" "&B1`, `A1&" "&B1`},
		{"A1>=2", "A1>=2"},
		{"1+2>3-4", "1+2>3-4"},
		{"SUM(A1:B2)*2", "SUM(A1:B2)*2"},
		{"IF(A1>2,\"big\",\"small\")", "IF(A1>2,\"big\",\"small\")"},
		{"IF(A1,,2)", "IF(A1,,2)"},
		{"SUM(B:D)", "SUM(B:D)"},
		{"SUM(3:5)", "SUM(3:5)"},
		{"SUM($B:$D)", "SUM($B:$D)"},
		{"$A$1+A1", "$A$1+A1"},
		{"Sheet2!B2", "Sheet2!B2"},
		{"'My Sheet'!A1", "'My Sheet'!A1"},
		{"Sheet1:Sheet3!B2", "Sheet1:Sheet3!B2"},
		{"[Book1.xlsx]Sheet1!A1", "[Book1.xlsx]Sheet1!A1"},
		{"{1,2;3,4}", "{1,2;3,4}"},
		{"{-1,TRUE,\"x\"}", "{-1,TRUE,\"x\"}"},
		{"(A1,B2)", "(A1,B2)"},
		{"SUM((A1,B2,C3))", "SUM((A1,B2,C3))"},
		{"A1:B3 B2:C4", "A1:B3 B2:C4"},
		{"A1#", "A1#"},
		{"@A1:A10", "@A1:A10"},
		{"TRUE", "TRUE"},
		{"#DIV/0!", "#DIV/0!"},
		{"#N/A", "#N/A"},
		{"LAMBDA(X,X+1)(5)", "LAMBDA(X,X+1)(5)"},
		{"Table1[Amount]", "Table1[Amount]"},
		{"Table1[[#All],[Amount]]", "Table1[[#All],[Amount]]"},
		{"=.5", "0.5"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			expr := mustParse(t, tt.input)
			got := formula.Format(expr, originC3, enus.EnUS)
			assert.Equal(t, tt.want, got)

			again := mustParse(t, got)
			assert.Equal(t, expr, again, "canonical text must re-parse identically")
		})
	}
}

func TestParseRelativeAndAbsolute(t *testing.T) {
	expr := mustParse(t, "A1")
	cell, ok := expr.(*formula.CellRef)
	require.True(t, ok)
	assert.False(t, cell.Row.Abs)
	assert.False(t, cell.Col.Abs)
	assert.Equal(t, -2, cell.Row.Index)
	assert.Equal(t, -2, cell.Col.Index)

	expr = mustParse(t, "$B$3")
	cell = expr.(*formula.CellRef)
	assert.True(t, cell.Row.Abs)
	assert.True(t, cell.Col.Abs)
	assert.Equal(t, 2, cell.Row.Index)
	assert.Equal(t, 1, cell.Col.Index)
}

// TestFormatRelocation re-renders a tree at a different origin, the
// way a copied formula shifts its relative references.
func TestFormatRelocation(t *testing.T) {
	expr := mustParse(t, "A1+$A$2")

	d4 := ref.CellKey{Sheet: "Sheet1", Row: 3, Col: 3}
	assert.Equal(t, "B2+$A$2", formula.Format(expr, d4, enus.EnUS))

	// shifting A1 above the first row leaves a dangling reference
	b1 := ref.CellKey{Sheet: "Sheet1", Row: 0, Col: 1}
	assert.Equal(t, "#REF!+$A$2", formula.Format(expr, b1, enus.EnUS))
}

func TestParsePrecedenceShapes(t *testing.T) {
	// unary minus binds tighter than the exponent
	expr := mustParse(t, "-2^2")
	pow, ok := expr.(*formula.BinaryExpr)
	require.True(t, ok)
	assert.Equal(t, formula.OpPow, pow.Op)
	neg, ok := pow.Left.(*formula.UnaryExpr)
	require.True(t, ok)
	assert.Equal(t, formula.OpNeg, neg.Op)

	// exponent is left associative
	expr = mustParse(t, "2^3^4")
	outer := expr.(*formula.BinaryExpr)
	require.Equal(t, formula.OpPow, outer.Op)
	inner, ok := outer.Left.(*formula.BinaryExpr)
	require.True(t, ok)
	assert.Equal(t, formula.OpPow, inner.Op)

	// concatenation binds looser than arithmetic
	expr = mustParse(t, `1+2&"x"`)
	concat := expr.(*formula.BinaryExpr)
	assert.Equal(t, formula.OpConcat, concat.Op)

	// comparison binds loosest
	expr = mustParse(t, "1+2>3-4")
	cmp := expr.(*formula.BinaryExpr)
	assert.Equal(t, formula.OpGT, cmp.Op)
}

func TestParseFunctionArguments(t *testing.T) {
	expr := mustParse(t, "IF(A1,1,2)")
	call, ok := expr.(*formula.FuncCall)
	require.True(t, ok)
	assert.Equal(t, "IF", call.Name)
	require.Len(t, call.Args, 3)

	// omitted trailing argument does not appear
	call = mustParse(t, "IF(A1,1)").(*formula.FuncCall)
	require.Len(t, call.Args, 2)

	// explicitly empty slots appear as EmptyArg
	call = mustParse(t, "IF(A1,,2)").(*formula.FuncCall)
	require.Len(t, call.Args, 3)
	assert.IsType(t, &formula.EmptyArg{}, call.Args[1])

	call = mustParse(t, "IF(A1,1,)").(*formula.FuncCall)
	require.Len(t, call.Args, 3)
	assert.IsType(t, &formula.EmptyArg{}, call.Args[2])

	call = mustParse(t, "NOW()").(*formula.FuncCall)
	assert.Empty(t, call.Args)
}

func TestParseGermanLocale(t *testing.T) {
	origin := ref.CellKey{Sheet: "Tabelle1", Row: 0, Col: 0}

	de, err := formula.Parse("SUMME(1,5;2,5)", origin, dede.DeDE)
	require.NoError(t, err)
	en, err := formula.Parse("SUM(1.5,2.5)", origin, enus.EnUS)
	require.NoError(t, err)
	assert.Equal(t, en, de, "localized and canonical spellings parse to the same tree")

	// canonical function names are accepted in any locale
	canon, err := formula.Parse("SUM(1,5;2,5)", origin, dede.DeDE)
	require.NoError(t, err)
	assert.Equal(t, en, canon)

	// rendering localizes names, separators and decimals again
	assert.Equal(t, "SUMME(1,5;2,5)", formula.Format(de, origin, dede.DeDE))
	assert.Equal(t, "SUM(1.5,2.5)", formula.Format(de, origin, enus.EnUS))

	// localized booleans and error literals
	expr, err := formula.Parse("WENN(WAHR;1;#WERT!)", origin, dede.DeDE)
	require.NoError(t, err)
	call := expr.(*formula.FuncCall)
	assert.Equal(t, "IF", call.Name)
	assert.Equal(t, &formula.BoolLit{Value: true}, call.Args[0])
	assert.Equal(t, &formula.ErrorLit{Kind: value.ErrValue}, call.Args[2])
}

func TestParseSheetQualifiers(t *testing.T) {
	cell := mustParse(t, "Sheet2!B2").(*formula.CellRef)
	assert.Equal(t, "Sheet2", cell.SheetFirst)
	assert.Empty(t, cell.SheetLast)

	cell = mustParse(t, "'P&L 2024'!A1").(*formula.CellRef)
	assert.Equal(t, "P&L 2024", cell.SheetFirst)

	cell = mustParse(t, "Sheet1:Sheet3!B2").(*formula.CellRef)
	assert.Equal(t, "Sheet1", cell.SheetFirst)
	assert.Equal(t, "Sheet3", cell.SheetLast)

	cell = mustParse(t, "'Jan:Mar'!A1").(*formula.CellRef)
	assert.Equal(t, "Jan", cell.SheetFirst)
	assert.Equal(t, "Mar", cell.SheetLast)

	// a quoted first bound joined to a plain second bound
	cell = mustParse(t, "'My Sheet':Other!A1").(*formula.CellRef)
	assert.Equal(t, "My Sheet", cell.SheetFirst)
	assert.Equal(t, "Other", cell.SheetLast)

	// a dangling reference survives parsing
	lit := mustParse(t, "Sheet1!#REF!").(*formula.ErrorLit)
	assert.Equal(t, value.ErrRef, lit.Kind)
}

func TestParseExternalReferences(t *testing.T) {
	cell := mustParse(t, "[Book1.xlsx]Sheet1!A1").(*formula.CellRef)
	assert.Equal(t, "Book1.xlsx", cell.Book)
	assert.Equal(t, "Sheet1", cell.SheetFirst)

	cell = mustParse(t, "'[Budget 2024.xlsx]Q1'!B2").(*formula.CellRef)
	assert.Equal(t, "Budget 2024.xlsx", cell.Book)
	assert.Equal(t, "Q1", cell.SheetFirst)

	cell = mustParse(t, "[Book1.xlsx]Sheet1:Sheet3!A1").(*formula.CellRef)
	assert.Equal(t, "Book1.xlsx", cell.Book)
	assert.Equal(t, "Sheet1", cell.SheetFirst)
	assert.Equal(t, "Sheet3", cell.SheetLast)
}

func TestParseRangesAndUnions(t *testing.T) {
	rng := mustParse(t, "A1:B2").(*formula.RangeExpr)
	assert.IsType(t, &formula.CellRef{}, rng.Left)
	assert.IsType(t, &formula.CellRef{}, rng.Right)

	cols := mustParse(t, "B:D").(*formula.ColRange)
	assert.False(t, cols.StartCol.Abs)

	rows := mustParse(t, "3:5").(*formula.RowRange)
	assert.False(t, rows.StartRow.Abs)

	mixed := mustParse(t, "$B:D").(*formula.ColRange)
	assert.True(t, mixed.StartCol.Abs)
	assert.False(t, mixed.EndCol.Abs)

	union := mustParse(t, "(A1,B2)").(*formula.BinaryExpr)
	assert.Equal(t, formula.OpUnion, union.Op)

	isect := mustParse(t, "A1:B3 B2:C4").(*formula.BinaryExpr)
	assert.Equal(t, formula.OpIntersect, isect.Op)
	assert.IsType(t, &formula.RangeExpr{}, isect.Left)
	assert.IsType(t, &formula.RangeExpr{}, isect.Right)

	// a range between two defined names
	names := mustParse(t, "first:last").(*formula.RangeExpr)
	assert.Equal(t, &formula.NameRef{Name: "FIRST"}, names.Left)
	assert.Equal(t, &formula.NameRef{Name: "LAST"}, names.Right)
}

func TestParseLambda(t *testing.T) {
	lam := mustParse(t, "LAMBDA(X,Y,X+Y)").(*formula.LambdaExpr)
	assert.Equal(t, []string{"X", "Y"}, lam.Params)
	assert.IsType(t, &formula.BinaryExpr{}, lam.Body)

	inv := mustParse(t, "LAMBDA(X,X*2)(21)").(*formula.Invoke)
	assert.IsType(t, &formula.LambdaExpr{}, inv.Callee)
	require.Len(t, inv.Args, 1)

	_, err := formula.Parse("LAMBDA(1,2)", originC3, enus.EnUS)
	assert.Error(t, err, "parameters must be names")
}

func TestParseStructuredReferences(t *testing.T) {
	sr := mustParse(t, "Table1[Amount]").(*formula.StructuredRef)
	assert.Equal(t, "Table1", sr.Table)
	assert.Equal(t, "Amount", sr.StartCol)
	assert.False(t, sr.ThisRow)

	sr = mustParse(t, "[@Qty]").(*formula.StructuredRef)
	assert.Empty(t, sr.Table)
	assert.True(t, sr.ThisRow)
	assert.Equal(t, "Qty", sr.StartCol)

	sr = mustParse(t, "Table1[[#All],[Amount]]").(*formula.StructuredRef)
	assert.Equal(t, "#All", sr.Section)
	assert.Equal(t, "Amount", sr.StartCol)

	sr = mustParse(t, "Table1[[Jan]:[Mar]]").(*formula.StructuredRef)
	assert.Equal(t, "Jan", sr.StartCol)
	assert.Equal(t, "Mar", sr.EndCol)
}

func TestParseFunctionNameLooksLikeCell(t *testing.T) {
	// LOG10 is a valid cell address and a function name; the paren
	// decides
	call := mustParse(t, "LOG10(8)").(*formula.FuncCall)
	assert.Equal(t, "LOG10", call.Name)

	cell := mustParse(t, "LOG10").(*formula.CellRef)
	assert.Equal(t, 9, cell.Row.Resolve(originC3.Row))

	// TRUE() is a call, bare TRUE is a literal
	assert.IsType(t, &formula.FuncCall{}, mustParse(t, "TRUE()"))
	assert.IsType(t, &formula.BoolLit{}, mustParse(t, "TRUE"))
}

func TestParseOutOfRangeBecomesName(t *testing.T) {
	// past the last row the text is no longer a cell address and
	// falls back to a defined name, matching the #NAME? behavior
	expr := mustParse(t, "A1048577")
	assert.IsType(t, &formula.NameRef{}, expr)

	expr = mustParse(t, "XFE1")
	assert.IsType(t, &formula.NameRef{}, expr)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"unbalanced paren", "SUM(A1"},
		{"trailing tokens", "1+2 3"},
		{"empty input", ""},
		{"lone operator", "*2"},
		{"double comma top level", "A1,B2"},
		{"ragged array", "{1,2;3}"},
		{"unterminated string", `"abc`},
		{"unterminated array", "{1,2"},
		{"calling a cell", "A1(5)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := formula.Parse(tt.input, originC3, enus.EnUS)
			require.Error(t, err)
			var perr *formula.ParseError
			assert.ErrorAs(t, err, &perr)
		})
	}
}

func TestParseReference(t *testing.T) {
	expr, err := formula.ParseReference("B2", originC3, enus.EnUS)
	require.NoError(t, err)
	assert.IsType(t, &formula.CellRef{}, expr)

	_, err = formula.ParseReference("A1+1", originC3, enus.EnUS)
	assert.Error(t, err)

	expr, err = formula.ParseReference("Sheet2!A1:B2", originC3, enus.EnUS)
	require.NoError(t, err)
	assert.IsType(t, &formula.RangeExpr{}, expr)
}

func TestAnalyze(t *testing.T) {
	analyze := func(t *testing.T, input string) formula.Analysis {
		t.Helper()
		expr := mustParse(t, input)
		return formula.Analyze(expr, originC3, originC3.Sheet)
	}

	t.Run("both branches of IF contribute", func(t *testing.T) {
		a := analyze(t, "IF(A1,B1,C1)")
		require.Len(t, a.Areas, 3)
		assert.False(t, a.Dynamic)
		assert.Equal(t, []string{"IF"}, a.Funcs)
	})

	t.Run("range folds to one rectangle", func(t *testing.T) {
		a := analyze(t, "SUM(A1:B10)")
		require.Len(t, a.Areas, 1)
		area := a.Areas[0]
		assert.Equal(t, "Sheet1", area.Sheets.First)
		assert.Equal(t, ref.Range{StartRow: 0, EndRow: 9, StartCol: 0, EndCol: 1}, area.Rect)
		assert.False(t, a.Dynamic)
	})

	t.Run("reversed range normalizes", func(t *testing.T) {
		a := analyze(t, "SUM(B10:A1)")
		require.Len(t, a.Areas, 1)
		assert.Equal(t, ref.Range{StartRow: 0, EndRow: 9, StartCol: 0, EndCol: 1}, a.Areas[0].Rect)
	})

	t.Run("whole column is unbounded", func(t *testing.T) {
		a := analyze(t, "SUM(B:D)")
		require.Len(t, a.Areas, 1)
		assert.False(t, a.Areas[0].Rect.Bounded())
		assert.Equal(t, 1, a.Areas[0].Rect.StartCol)
		assert.Equal(t, 3, a.Areas[0].Rect.EndCol)
	})

	t.Run("indirect is dynamic", func(t *testing.T) {
		a := analyze(t, `INDIRECT("A"&B1)`)
		assert.True(t, a.Dynamic)
		require.Len(t, a.Areas, 1) // B1 still contributes
	})

	t.Run("offset is dynamic but anchors contribute", func(t *testing.T) {
		a := analyze(t, "OFFSET(A1,1,1)")
		assert.True(t, a.Dynamic)
		require.Len(t, a.Areas, 1)
	})

	t.Run("computed range endpoint is dynamic", func(t *testing.T) {
		a := analyze(t, "SUM(INDEX(A1:A10,B1):A10)")
		assert.True(t, a.Dynamic)
	})

	t.Run("external book area", func(t *testing.T) {
		a := analyze(t, "[Book1.xlsx]Sheet1!A1+1")
		require.Len(t, a.Areas, 1)
		assert.Equal(t, "Book1.xlsx", a.Areas[0].Book)
		key, ok := a.Areas[0].ExternalKey()
		require.True(t, ok)
		assert.Equal(t, "[Book1.xlsx]Sheet1", key.String())
	})

	t.Run("let bindings shadow names", func(t *testing.T) {
		a := analyze(t, "LET(X,A1,X+B1)")
		require.Len(t, a.Areas, 2)
		assert.Empty(t, a.Names)
	})

	t.Run("lambda parameters shadow names", func(t *testing.T) {
		a := analyze(t, "LAMBDA(X,X+TAXRATE)(A1)")
		require.Len(t, a.Names, 1)
		assert.Equal(t, "TAXRATE", a.Names[0].Name)
		require.Len(t, a.Areas, 1)
	})

	t.Run("defined names are reported", func(t *testing.T) {
		a := analyze(t, "REVENUE*2")
		require.Len(t, a.Names, 1)
		assert.Equal(t, formula.NameUse{Name: "REVENUE"}, a.Names[0])
	})

	t.Run("spill reference is dynamic", func(t *testing.T) {
		a := analyze(t, "SUM(A1#)")
		assert.True(t, a.Dynamic)
		require.Len(t, a.Areas, 1)
	})

	t.Run("structured reference carries its selectors", func(t *testing.T) {
		a := analyze(t, "SUM(Sales[[Jan]:[Mar]])")
		require.Len(t, a.Tables, 1)
		assert.Equal(t, formula.TableUse{Name: "Sales", StartCol: "Jan", EndCol: "Mar"}, a.Tables[0])
		assert.False(t, a.Dynamic)
	})

	t.Run("bare this-row shorthand has no table name", func(t *testing.T) {
		a := analyze(t, "[@Qty]*2")
		require.Len(t, a.Tables, 1)
		assert.Equal(t, formula.TableUse{StartCol: "Qty", ThisRow: true}, a.Tables[0])
		assert.Empty(t, a.Areas)
	})

	t.Run("sheet span covers both sheets", func(t *testing.T) {
		a := analyze(t, "SUM(Sheet1:Sheet3!B2)")
		require.Len(t, a.Areas, 1)
		assert.Equal(t, ref.SheetSpan{First: "Sheet1", Last: "Sheet3"}, a.Areas[0].Sheets)
	})
}

func TestWalkVisitsEveryNode(t *testing.T) {
	expr := mustParse(t, "IF(A1>2,SUM(B1:B3),-C1)")
	var count int
	formula.Walk(expr, func(formula.Expr) bool {
		count++
		return true
	})
	// IF call, comparison, A1, 2, SUM call, range, B1, B3, neg, C1
	assert.Equal(t, 10, count)

	// returning false prunes the subtree
	count = 0
	formula.Walk(expr, func(e formula.Expr) bool {
		count++
		_, isCall := e.(*formula.FuncCall)
		return !isCall
	})
	assert.Equal(t, 1, count)
}
