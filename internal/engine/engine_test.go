package engine

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/leapstack-labs/leapcalc/internal/fn"
	"github.com/leapstack-labs/leapcalc/pkg/value"
)

func newEngine(t *testing.T, cfg Config) *Engine {
	t.Helper()
	e, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

// set writes a plain value on Sheet1.
func set(t *testing.T, e *Engine, a1 string, v value.Value) {
	t.Helper()
	if err := e.SetCellValue("Sheet1", a1, v); err != nil {
		t.Fatalf("SetCellValue %s: %v", a1, err)
	}
}

// form stores a formula on Sheet1.
func form(t *testing.T, e *Engine, a1, src string) {
	t.Helper()
	if err := e.SetCellFormula("Sheet1", a1, src); err != nil {
		t.Fatalf("SetCellFormula %s: %v", a1, err)
	}
}

func calc(t *testing.T, e *Engine) *RecalcResult {
	t.Helper()
	res, err := e.Recalculate(context.Background())
	if err != nil {
		t.Fatalf("Recalculate: %v", err)
	}
	return res
}

func cell(e *Engine, a1 string) value.Value {
	return e.GetCellValue("Sheet1", a1)
}

func wantNumber(t *testing.T, got value.Value, want float64) {
	t.Helper()
	if !got.IsNumber() {
		t.Fatalf("expected number %v, got %s", want, got)
	}
	if got.Num() != want {
		t.Errorf("expected %v, got %v", want, got.Num())
	}
}

func wantText(t *testing.T, got value.Value, want string) {
	t.Helper()
	if !got.IsText() {
		t.Fatalf("expected text %q, got %s", want, got)
	}
	if got.Str() != want {
		t.Errorf("expected %q, got %q", want, got.Str())
	}
}

func wantError(t *testing.T, got value.Value, want value.ErrorKind) {
	t.Helper()
	if !got.IsError() {
		t.Fatalf("expected %s, got %s", want, got)
	}
	if got.Err() != want {
		t.Errorf("expected %s, got %s", want, got.Err())
	}
}

func wantEmpty(t *testing.T, got value.Value) {
	t.Helper()
	if !got.IsEmpty() {
		t.Errorf("expected empty cell, got %s", got)
	}
}

func TestEngine_New_Defaults(t *testing.T) {
	e := newEngine(t, Config{})
	if len(e.Sheets()) != 0 {
		t.Errorf("expected no sheets, got %v", e.Sheets())
	}
	if e.HasDirtyCells() {
		t.Error("expected a fresh engine to be clean")
	}
	wantEmpty(t, cell(e, "A1"))

	res := calc(t, e)
	if res.Evaluated != 0 || res.Sweeps != 0 {
		t.Errorf("expected a no-op pass, got %+v", res)
	}
	if res.Pass == "" {
		t.Error("expected a pass id")
	}
}

func TestEngine_SetCellValue_BadAddress(t *testing.T) {
	e := newEngine(t, Config{})
	if err := e.SetCellValue("Sheet1", "nope", value.Number(1)); err == nil {
		t.Error("expected an error for a malformed address")
	}
	if err := e.SetCellValue("", "A1", value.Number(1)); err == nil {
		t.Error("expected an error for an empty sheet name")
	}
	wantError(t, e.GetCellValue("Sheet1", "nope"), value.ErrRef)
}

func TestEngine_Recalculate_Chain(t *testing.T) {
	e := newEngine(t, Config{})
	set(t, e, "A1", value.Number(1))
	form(t, e, "B1", "=A1+1")
	form(t, e, "C1", "=B1*2")

	res := calc(t, e)
	wantNumber(t, cell(e, "B1"), 2)
	wantNumber(t, cell(e, "C1"), 4)
	if res.Evaluated != 2 {
		t.Errorf("expected 2 evaluated cells, got %d", res.Evaluated)
	}
	if e.HasDirtyCells() {
		t.Error("expected a clean engine after the pass")
	}

	set(t, e, "A1", value.Number(5))
	if !e.HasDirtyCells() {
		t.Error("expected dirty cells after an edit")
	}
	calc(t, e)
	wantNumber(t, cell(e, "B1"), 6)
	wantNumber(t, cell(e, "C1"), 12)
}

func TestEngine_Recalculate_UnchangedValueStopsPropagation(t *testing.T) {
	e := newEngine(t, Config{})
	set(t, e, "A1", value.Number(5))
	form(t, e, "B1", "=A1+1")
	form(t, e, "C1", "=B1*2")
	calc(t, e)

	// writing the same value re-runs the direct reader only
	set(t, e, "A1", value.Number(5))
	res := calc(t, e)
	if res.Evaluated != 1 {
		t.Errorf("expected only the direct reader to run, got %d evaluations", res.Evaluated)
	}
	wantNumber(t, cell(e, "C1"), 12)
}

func TestEngine_Recalculate_VolatileRunsEveryPass(t *testing.T) {
	now := time.Date(2024, time.March, 15, 12, 0, 0, 0, time.UTC)
	e := newEngine(t, Config{Clock: func() time.Time { return now }})
	form(t, e, "A1", "=NOW()")

	calc(t, e)
	first := cell(e, "A1")
	if !first.IsNumber() {
		t.Fatalf("expected a serial number from NOW, got %s", first)
	}

	now = now.Add(24 * time.Hour)
	res := calc(t, e)
	if res.Evaluated != 1 {
		t.Errorf("expected the volatile cell to re-run, got %d evaluations", res.Evaluated)
	}
	second := cell(e, "A1")
	if value.Equal(first, second) {
		t.Error("expected NOW to move with the clock")
	}
	if second.Num() <= first.Num() {
		t.Errorf("expected a later serial, got %v then %v", first.Num(), second.Num())
	}
}

func TestEngine_Recalculate_SeededRandIsDeterministic(t *testing.T) {
	build := func() *Engine {
		e := newEngine(t, Config{Seed: 7})
		form(t, e, "A1", "=RAND()")
		calc(t, e)
		return e
	}
	a := cell(build(), "A1")
	b := cell(build(), "A1")
	if !a.IsNumber() || a.Num() < 0 || a.Num() >= 1 {
		t.Fatalf("expected a number in [0,1), got %s", a)
	}
	if !value.Equal(a, b) {
		t.Errorf("expected identical streams for one seed, got %s and %s", a, b)
	}
}

func TestEngine_DefineName_WorkbookAndSheetScope(t *testing.T) {
	e := newEngine(t, Config{})
	if err := e.DefineName("", "RATE", "=0.2"); err != nil {
		t.Fatalf("DefineName: %v", err)
	}
	set(t, e, "A1", value.Number(100))
	form(t, e, "B1", "=A1*RATE")
	calc(t, e)
	wantNumber(t, cell(e, "B1"), 20)

	// redefinition re-dirties every user
	if err := e.DefineName("", "RATE", "=0.25"); err != nil {
		t.Fatalf("DefineName: %v", err)
	}
	calc(t, e)
	wantNumber(t, cell(e, "B1"), 25)

	// a sheet-scoped definition shadows the workbook one on its sheet
	if err := e.DefineName("Sheet2", "RATE", "=0.5"); err != nil {
		t.Fatalf("DefineName: %v", err)
	}
	if err := e.SetCellFormula("Sheet2", "B1", "=100*RATE"); err != nil {
		t.Fatalf("SetCellFormula: %v", err)
	}
	calc(t, e)
	wantNumber(t, e.GetCellValue("Sheet2", "B1"), 50)
	wantNumber(t, cell(e, "B1"), 25)
}

func TestEngine_DefineName_RelativeReference(t *testing.T) {
	e := newEngine(t, Config{})
	e.AddSheet("Sheet1")
	// parsed at A1, so NEXTCOL means "one column to my right"
	if err := e.DefineName("", "NEXTCOL", "=B1"); err != nil {
		t.Fatalf("DefineName: %v", err)
	}
	set(t, e, "D5", value.Number(7))
	form(t, e, "C5", "=NEXTCOL")
	calc(t, e)
	wantNumber(t, cell(e, "C5"), 7)

	// the name's target is a real graph edge
	set(t, e, "D5", value.Number(9))
	calc(t, e)
	wantNumber(t, cell(e, "C5"), 9)
}

func TestEngine_DefineName_BadInput(t *testing.T) {
	e := newEngine(t, Config{})
	if err := e.DefineName("", "", "=1"); err == nil {
		t.Error("expected an error for an empty name")
	}
	if err := e.DefineName("", "X", "=1+"); err == nil {
		t.Error("expected an error for an unparsable definition")
	}
}

func TestEngine_Metadata_ServesInfoAndCell(t *testing.T) {
	e := newEngine(t, Config{})
	e.SetMetadata("release", "1.0")
	e.SetMetadata("filename", "book.yaml")
	form(t, e, "A1", `=INFO("release")`)
	form(t, e, "B1", `=CELL("filename")`)
	calc(t, e)
	wantText(t, cell(e, "A1"), "1.0")
	wantText(t, cell(e, "B1"), "book.yaml")

	e.SetMetadata("release", "2.0")
	calc(t, e)
	wantText(t, cell(e, "A1"), "2.0")

	// a sheet override wins on its own sheet
	e.SetSheetMetadata("Sheet1", "release", "3.0-sheet")
	calc(t, e)
	wantText(t, cell(e, "A1"), "3.0-sheet")
}

func TestEngine_RegisterFunction_ReplacesUnknownName(t *testing.T) {
	e := newEngine(t, Config{})
	form(t, e, "A1", "=DOUBLE(21)")
	calc(t, e)
	wantError(t, cell(e, "A1"), value.ErrName)

	err := e.RegisterFunction(fn.Descriptor{
		Name:     "DOUBLE",
		Category: fn.CategoryMath,
		MinArgs:  1,
		MaxArgs:  1,
		Impl: func(c *fn.Call) value.Value {
			n, err := c.Number(0)
			if err != nil {
				return value.FromError(err)
			}
			return value.Number(2 * n)
		},
	})
	if err != nil {
		t.Fatalf("RegisterFunction: %v", err)
	}
	calc(t, e)
	wantNumber(t, cell(e, "A1"), 42)
}

func TestEngine_SetSheetOrder_ChangesSpanMembership(t *testing.T) {
	e := newEngine(t, Config{})
	set(t, e, "A1", value.Number(1))
	if err := e.SetCellValue("Sheet2", "A1", value.Number(2)); err != nil {
		t.Fatalf("SetCellValue: %v", err)
	}
	if err := e.SetCellValue("Sheet3", "A1", value.Number(3)); err != nil {
		t.Fatalf("SetCellValue: %v", err)
	}
	form(t, e, "B1", "=SUM(Sheet1:Sheet3!A1)")
	calc(t, e)
	wantNumber(t, cell(e, "B1"), 6)

	// moving Sheet2 outside the run drops it from the span
	e.SetSheetOrder([]string{"Sheet1", "Sheet3", "Sheet2"})
	calc(t, e)
	wantNumber(t, cell(e, "B1"), 4)
}

func TestEngine_PrecedentsAndDependents(t *testing.T) {
	e := newEngine(t, Config{})
	set(t, e, "A1", value.Number(1))
	set(t, e, "C1", value.Number(2))
	form(t, e, "B1", "=A1+C1")
	calc(t, e)

	pre, err := e.Precedents("Sheet1", "B1")
	if err != nil {
		t.Fatalf("Precedents: %v", err)
	}
	if len(pre) != 2 || pre[0].String() != "Sheet1!A1" || pre[1].String() != "Sheet1!C1" {
		t.Errorf("expected [Sheet1!A1 Sheet1!C1], got %v", pre)
	}

	dep, err := e.Dependents("Sheet1", "A1")
	if err != nil {
		t.Fatalf("Dependents: %v", err)
	}
	if len(dep) != 1 || dep[0].String() != "Sheet1!B1" {
		t.Errorf("expected [Sheet1!B1], got %v", dep)
	}
}

func TestEngine_SetCellFormula_ParseErrorStored(t *testing.T) {
	e := newEngine(t, Config{})
	if err := e.SetCellFormula("Sheet1", "A1", "=1+"); err == nil {
		t.Fatal("expected a parse error")
	}
	if src, ok := e.CellFormula("Sheet1", "A1"); !ok || src != "=1+" {
		t.Errorf("expected the broken source to be kept, got %q %v", src, ok)
	}
	res := calc(t, e)
	wantError(t, cell(e, "A1"), value.ErrName)
	if res.Issues == nil || !strings.Contains(res.Issues.Error(), "Sheet1!A1") {
		t.Errorf("expected the pass to report the stored failure, got %v", res.Issues)
	}
}

func TestEngine_CellFormula_Roundtrip(t *testing.T) {
	e := newEngine(t, Config{})
	form(t, e, "A1", "=1+2")
	if !e.HasFormula("Sheet1", "A1") {
		t.Error("expected HasFormula to see the cell")
	}
	if src, ok := e.CellFormula("Sheet1", "A1"); !ok || src != "=1+2" {
		t.Errorf("expected the source back, got %q %v", src, ok)
	}

	// replacing the formula with a value drops it
	set(t, e, "A1", value.Number(3))
	if e.HasFormula("Sheet1", "A1") {
		t.Error("expected the formula to be gone after a value write")
	}
	calc(t, e)
	wantNumber(t, cell(e, "A1"), 3)
}
