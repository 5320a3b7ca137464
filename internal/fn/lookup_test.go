package fn

import (
	"testing"

	"github.com/leapstack-labs/leapcalc/pkg/ref"
	"github.com/leapstack-labs/leapcalc/pkg/value"
)

// lookupFixture seeds a three-row fruit table on Sheet1.
func lookupFixture() *testEnv {
	env := newTestEnv()
	env.set("A1", value.Text("apple"))
	env.set("B1", value.Number(1))
	env.set("C1", value.Text("x"))
	env.set("A2", value.Text("banana"))
	env.set("B2", value.Number(2))
	env.set("C2", value.Text("y"))
	env.set("A3", value.Text("cherry"))
	env.set("B3", value.Number(3))
	env.set("C3", value.Text("z"))
	return env
}

func wantRangeRef(t *testing.T, got value.Value, sheet, rng string) {
	t.Helper()
	if !got.IsRef() {
		t.Fatalf("expected reference to %s!%s, got %s", sheet, rng, got)
	}
	areas := got.Areas()
	if len(areas) != 1 {
		t.Fatalf("expected one area, got %d", len(areas))
	}
	if areas[0].Sheets.First != sheet {
		t.Errorf("expected sheet %s, got %s", sheet, areas[0].Sheets.First)
	}
	if s := ref.FormatA1Range(areas[0].Rect); s != rng {
		t.Errorf("expected range %s, got %s", rng, s)
	}
}

func wantDims(t *testing.T, got value.Value, rows, cols int) {
	t.Helper()
	if !got.IsArray() {
		t.Fatalf("expected a %dx%d array, got %s", rows, cols, got)
	}
	r, c := got.Dims()
	if r != rows || c != cols {
		t.Fatalf("expected %dx%d array, got %dx%d", rows, cols, r, c)
	}
}

func TestIndex_CellAddressing(t *testing.T) {
	env := lookupFixture()
	table := rangeRef("Sheet1", "A1:C3")

	wantNumber(t, call(t, env, "INDEX", table, value.Number(2), value.Number(2)), 2)
	wantText(t, call(t, env, "INDEX", table, value.Number(3), value.Number(1)), "cherry")
	wantError(t, call(t, env, "INDEX", table, value.Number(4), value.Number(1)), value.ErrRef)
	wantError(t, call(t, env, "INDEX", table, value.Number(1), value.Number(9)), value.ErrRef)
}

func TestIndex_VectorAndSliceForms(t *testing.T) {
	env := lookupFixture()

	// A single-column view takes the lone index as the row.
	wantNumber(t, call(t, env, "INDEX", rangeRef("Sheet1", "B1:B3"), value.Number(3)), 3)
	// A single-row view takes it as the column.
	wantNumber(t, call(t, env, "INDEX", rangeRef("Sheet1", "A1:C1"), value.Number(2)), 1)

	// A rectangle with one index yields the whole row.
	row := call(t, env, "INDEX", rangeRef("Sheet1", "A1:C3"), value.Number(2))
	wantDims(t, row, 1, 3)
	wantText(t, row.At(0, 0), "banana")

	// Zero slices an axis.
	col := call(t, env, "INDEX", rangeRef("Sheet1", "A1:C3"), value.Number(0), value.Number(2))
	wantDims(t, col, 3, 1)
	wantNumber(t, col.At(2, 0), 3)

	all := call(t, env, "INDEX", rangeRef("Sheet1", "A1:C3"), value.Number(0), value.Number(0))
	wantDims(t, all, 3, 3)
}

func TestMatch_ThreeModes(t *testing.T) {
	env := lookupFixture()
	names := rangeRef("Sheet1", "A1:A3")
	nums := rangeRef("Sheet1", "B1:B3")

	// Exact mode, case folded, wildcards live.
	wantNumber(t, call(t, env, "MATCH", value.Text("BANANA"), names, value.Number(0)), 2)
	wantNumber(t, call(t, env, "MATCH", value.Text("ch*"), names, value.Number(0)), 3)
	wantError(t, call(t, env, "MATCH", value.Text("mango"), names, value.Number(0)), value.ErrNA)

	// Default ascending mode takes the last element not above the target.
	wantNumber(t, call(t, env, "MATCH", value.Number(2.5), nums), 2)
	wantError(t, call(t, env, "MATCH", value.Number(0.5), nums), value.ErrNA)

	// Descending mode over descending data.
	env.set("D1", value.Number(30))
	env.set("D2", value.Number(20))
	env.set("D3", value.Number(10))
	desc := rangeRef("Sheet1", "D1:D3")
	wantNumber(t, call(t, env, "MATCH", value.Number(25), desc, value.Number(-1)), 1)
	wantNumber(t, call(t, env, "MATCH", value.Number(5), desc, value.Number(-1)), 3)
	wantError(t, call(t, env, "MATCH", value.Number(35), desc, value.Number(-1)), value.ErrNA)

	// Rectangles are not vectors.
	wantError(t, call(t, env, "MATCH", value.Number(1), rangeRef("Sheet1", "A1:C3"), value.Number(0)), value.ErrNA)
}

func TestVLookup_ExactAndApprox(t *testing.T) {
	env := lookupFixture()
	table := rangeRef("Sheet1", "A1:C3")

	wantNumber(t, call(t, env, "VLOOKUP", value.Text("banana"), table, value.Number(2), value.Bool(false)), 2)
	wantText(t, call(t, env, "VLOOKUP", value.Text("ba*"), table, value.Number(3), value.Bool(false)), "y")
	wantError(t, call(t, env, "VLOOKUP", value.Text("mango"), table, value.Number(2), value.Bool(false)), value.ErrNA)

	wantError(t, call(t, env, "VLOOKUP", value.Text("banana"), table, value.Number(0), value.Bool(false)), value.ErrValue)
	wantError(t, call(t, env, "VLOOKUP", value.Text("banana"), table, value.Number(9), value.Bool(false)), value.ErrRef)

	env.set("F1", value.Number(10))
	env.set("G1", value.Text("low"))
	env.set("F2", value.Number(20))
	env.set("G2", value.Text("mid"))
	env.set("F3", value.Number(30))
	env.set("G3", value.Text("high"))
	graded := rangeRef("Sheet1", "F1:G3")

	// The range-lookup default takes the last key not above the target.
	wantText(t, call(t, env, "VLOOKUP", value.Number(25), graded, value.Number(2)), "mid")
	wantText(t, call(t, env, "VLOOKUP", value.Number(30), graded, value.Number(2)), "high")
	wantError(t, call(t, env, "VLOOKUP", value.Number(5), graded, value.Number(2)), value.ErrNA)
}

func TestHLookup_ScansFirstRow(t *testing.T) {
	env := newTestEnv()
	env.set("A5", value.Number(1))
	env.set("B5", value.Number(2))
	env.set("C5", value.Number(3))
	env.set("A6", value.Text("one"))
	env.set("B6", value.Text("two"))
	env.set("C6", value.Text("three"))

	table := rangeRef("Sheet1", "A5:C6")
	wantText(t, call(t, env, "HLOOKUP", value.Number(2), table, value.Number(2), value.Bool(false)), "two")
	wantText(t, call(t, env, "HLOOKUP", value.Number(2.9), table, value.Number(2)), "two")
	wantError(t, call(t, env, "HLOOKUP", value.Number(2), table, value.Number(3), value.Bool(false)), value.ErrRef)
}

func TestLookup_VectorAndArrayForms(t *testing.T) {
	env := lookupFixture()

	wantNumber(t, call(t, env, "LOOKUP", value.Number(2.5), rangeRef("Sheet1", "B1:B3")), 2)
	wantText(t, call(t, env, "LOOKUP", value.Number(2), rangeRef("Sheet1", "B1:B3"), rangeRef("Sheet1", "A1:A3")), "banana")

	wide := value.NewArray([][]value.Value{
		{value.Number(1), value.Number(2), value.Number(3)},
		{value.Text("a"), value.Text("b"), value.Text("c")},
	})
	wantText(t, call(t, env, "LOOKUP", value.Number(2), wide), "b")

	tall := value.NewArray([][]value.Value{
		{value.Number(1), value.Text("a")},
		{value.Number(2), value.Text("b")},
		{value.Number(3), value.Text("c")},
	})
	wantText(t, call(t, env, "LOOKUP", value.Number(3), tall), "c")
}

func TestOffset_ShiftsAndResizes(t *testing.T) {
	env := lookupFixture()

	wantRangeRef(t, call(t, env, "OFFSET",
		rangeRef("Sheet1", "A1"), value.Number(1), value.Number(1)), "Sheet1", "B2")
	wantRangeRef(t, call(t, env, "OFFSET",
		rangeRef("Sheet1", "A1:B2"), value.Number(1), value.Number(1)), "Sheet1", "B2:C3")
	wantRangeRef(t, call(t, env, "OFFSET",
		rangeRef("Sheet1", "A1"), value.Number(2), value.Number(0), value.Number(3), value.Number(2)), "Sheet1", "A3:B5")

	wantError(t, call(t, env, "OFFSET",
		rangeRef("Sheet1", "A1"), value.Number(-1), value.Number(0)), value.ErrRef)
	wantError(t, call(t, env, "OFFSET",
		rangeRef("Sheet1", "A1"), value.Number(0), value.Number(0), value.Number(0)), value.ErrRef)
	wantError(t, call(t, env, "OFFSET",
		value.Number(5), value.Number(1), value.Number(1)), value.ErrValue)
}

func TestIndirect_BuildsLiveReferences(t *testing.T) {
	env := lookupFixture()

	wantRangeRef(t, call(t, env, "INDIRECT", value.Text("B2")), "Sheet1", "B2")
	wantRangeRef(t, call(t, env, "INDIRECT", value.Text("Sheet1!C3")), "Sheet1", "C3")
	wantRangeRef(t, call(t, env, "INDIRECT", value.Text("A1:B2")), "Sheet1", "A1:B2")

	wantError(t, call(t, env, "INDIRECT", value.Text("not a ref")), value.ErrRef)
	wantError(t, call(t, env, "INDIRECT", value.Text("1+2")), value.ErrRef)
}

func TestIndirect_ExternalTextAlwaysFails(t *testing.T) {
	env := lookupFixture()
	// Even a mapped external cell is out of reach for reference text.
	env.external["[Book.xlsx]Sheet1!A1"] = value.Number(42)

	wantError(t, call(t, env, "INDIRECT", value.Text("[Book.xlsx]Sheet1!A1")), value.ErrRef)
}

func TestIndirect_ResolvesDefinedNames(t *testing.T) {
	env := lookupFixture()
	env.names["Prices"] = rangeRef("Sheet1", "B1:B3")

	wantRangeRef(t, call(t, env, "INDIRECT", value.Text("Prices")), "Sheet1", "B1:B3")
	wantError(t, call(t, env, "INDIRECT", value.Text("Nothing")), value.ErrRef)
}

func TestIndirect_R1C1Mode(t *testing.T) {
	env := lookupFixture()

	wantRangeRef(t, call(t, env, "INDIRECT",
		value.Text("R2C2"), value.Bool(false)), "Sheet1", "B2")
	// Bracketed offsets count from the calling cell, here A1.
	wantRangeRef(t, call(t, env, "INDIRECT",
		value.Text("R[1]C[1]"), value.Bool(false)), "Sheet1", "B2")
	wantError(t, call(t, env, "INDIRECT",
		value.Text("Q5"), value.Bool(false)), value.ErrRef)
}

func TestRowColumn_OriginAndReference(t *testing.T) {
	env := lookupFixture()

	wantNumber(t, call(t, env, "ROW"), 1)
	wantNumber(t, call(t, env, "COLUMN"), 1)
	wantNumber(t, call(t, env, "ROW", rangeRef("Sheet1", "C5")), 5)
	wantNumber(t, call(t, env, "COLUMN", rangeRef("Sheet1", "C5")), 3)
	wantNumber(t, call(t, env, "ROW", rangeRef("Sheet1", "B2:D9")), 2)
	wantError(t, call(t, env, "ROW", value.Number(5)), value.ErrValue)
}

func TestRowsColumns_WrittenShape(t *testing.T) {
	env := lookupFixture()

	wantNumber(t, call(t, env, "ROWS", rangeRef("Sheet1", "A1:C3")), 3)
	wantNumber(t, call(t, env, "COLUMNS", rangeRef("Sheet1", "A1:C3")), 3)

	arr := value.NewArray([][]value.Value{
		{value.Number(1), value.Number(2), value.Number(3)},
		{value.Number(4), value.Number(5), value.Number(6)},
	})
	wantNumber(t, call(t, env, "ROWS", arr), 2)
	wantNumber(t, call(t, env, "COLUMNS", arr), 3)

	// Open bounds span the whole sheet axis.
	wantNumber(t, call(t, env, "ROWS", rangeRef("Sheet1", "B:B")), float64(ref.MaxRows))
	wantNumber(t, call(t, env, "COLUMNS", rangeRef("Sheet1", "B:B")), 1)
	wantNumber(t, call(t, env, "COLUMNS", rangeRef("Sheet1", "3:3")), float64(ref.MaxCols))
}

func TestTranspose_FlipsAxes(t *testing.T) {
	env := lookupFixture()

	got := call(t, env, "TRANSPOSE", value.NewArray([][]value.Value{
		{value.Number(1), value.Number(2), value.Number(3)},
		{value.Number(4), value.Number(5), value.Number(6)},
	}))
	wantDims(t, got, 3, 2)
	wantNumber(t, got.At(0, 1), 4)
	wantNumber(t, got.At(2, 0), 3)
	wantNumber(t, got.At(2, 1), 6)

	// A single cell collapses to its scalar.
	wantNumber(t, call(t, env, "TRANSPOSE", rangeRef("Sheet1", "B1")), 1)
}

func TestAddress_AbsoluteModes(t *testing.T) {
	env := newTestEnv()

	wantText(t, call(t, env, "ADDRESS", value.Number(3), value.Number(2)), "$B$3")
	wantText(t, call(t, env, "ADDRESS", value.Number(3), value.Number(2), value.Number(2)), "B$3")
	wantText(t, call(t, env, "ADDRESS", value.Number(3), value.Number(2), value.Number(3)), "$B3")
	wantText(t, call(t, env, "ADDRESS", value.Number(3), value.Number(2), value.Number(4)), "B3")

	wantText(t, call(t, env, "ADDRESS",
		value.Number(3), value.Number(2), value.Number(1), value.Bool(false)), "R3C2")
	wantText(t, call(t, env, "ADDRESS",
		value.Number(3), value.Number(2), value.Number(4), value.Bool(false)), "R[3]C[2]")

	wantText(t, call(t, env, "ADDRESS",
		value.Number(1), value.Number(1), value.Number(1), value.Bool(true), value.Text("Data")), "Data!$A$1")
	wantText(t, call(t, env, "ADDRESS",
		value.Number(1), value.Number(1), value.Number(1), value.Bool(true), value.Text("My Sheet")), "'My Sheet'!$A$1")

	wantError(t, call(t, env, "ADDRESS", value.Number(0), value.Number(1)), value.ErrValue)
	wantError(t, call(t, env, "ADDRESS", value.Number(1), value.Number(1), value.Number(5)), value.ErrValue)
}
