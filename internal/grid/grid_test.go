package grid

import (
	"reflect"
	"testing"

	"github.com/leapstack-labs/leapcalc/pkg/ref"
	"github.com/leapstack-labs/leapcalc/pkg/value"
)

func k(sheet string, row, col int) ref.CellKey {
	return ref.CellKey{Sheet: sheet, Row: row, Col: col}
}

func backends() map[string]MutableGrid {
	return map[string]MutableGrid{
		"sparse": NewSparse(),
		"dense":  NewDense(8, 8),
	}
}

func TestGrid_MissingCellIsEmpty(t *testing.T) {
	for name, g := range backends() {
		if v := g.Value(k("Sheet1", 3, 3)); !v.IsEmpty() {
			t.Errorf("%s: unwritten cell = %v, want Empty", name, v)
		}
	}
}

func TestGrid_SetAndGet(t *testing.T) {
	cases := []struct {
		name string
		val  value.Value
	}{
		{"number", value.Number(41.5)},
		{"text", value.Text("total")},
		{"bool", value.Bool(true)},
		{"error", value.Error(value.ErrDiv0)},
	}
	for name, g := range backends() {
		for i, tc := range cases {
			key := k("Sheet1", i, 0)
			g.SetValue(key, tc.val)
			if got := g.Value(key); !value.Equal(got, tc.val) {
				t.Errorf("%s/%s: got %v, want %v", name, tc.name, got, tc.val)
			}
		}
	}
}

func TestGrid_OverwriteAndClear(t *testing.T) {
	for name, g := range backends() {
		key := k("Sheet1", 0, 0)
		g.SetValue(key, value.Number(1))
		g.SetValue(key, value.Text("now text"))
		if got := g.Value(key); !value.Equal(got, value.Text("now text")) {
			t.Errorf("%s: overwrite got %v", name, got)
		}
		g.SetValue(key, value.Number(2))
		if got := g.Value(key); !value.Equal(got, value.Number(2)) {
			t.Errorf("%s: overwrite back to number got %v", name, got)
		}
		g.SetValue(key, value.Empty())
		if got := g.Value(key); !got.IsEmpty() {
			t.Errorf("%s: cleared cell got %v", name, got)
		}
	}
}

func TestGrid_DimsAndSheets(t *testing.T) {
	for name, g := range backends() {
		if rows, cols := g.Dims("Sheet1"); rows != 0 || cols != 0 {
			t.Errorf("%s: empty sheet dims = %dx%d", name, rows, cols)
		}
		g.SetValue(k("Sheet1", 2, 5), value.Number(1))
		g.SetValue(k("Sheet1", 4, 1), value.Number(2))
		g.SetValue(k("Alpha", 0, 0), value.Text("x"))

		if rows, cols := g.Dims("Sheet1"); rows != 5 || cols != 6 {
			t.Errorf("%s: dims = %dx%d, want 5x6", name, rows, cols)
		}
		if got := g.Sheets(); !reflect.DeepEqual(got, []string{"Alpha", "Sheet1"}) {
			t.Errorf("%s: sheets = %v", name, got)
		}
	}
}

func TestGrid_DenseOverflow(t *testing.T) {
	g := NewDense(4, 4)

	// Inside the block: numbers are columnar, text overflows.
	g.SetValue(k("Sheet1", 1, 1), value.Number(7))
	g.SetValue(k("Sheet1", 2, 2), value.Text("label"))
	// Outside the block entirely.
	far := k("Sheet1", 100, 50)
	g.SetValue(far, value.Number(9))

	if got := g.Value(k("Sheet1", 1, 1)); !value.Equal(got, value.Number(7)) {
		t.Errorf("in-block number = %v", got)
	}
	if got := g.Value(k("Sheet1", 2, 2)); !value.Equal(got, value.Text("label")) {
		t.Errorf("in-block text = %v", got)
	}
	if got := g.Value(far); !value.Equal(got, value.Number(9)) {
		t.Errorf("out-of-block number = %v", got)
	}
	if rows, cols := g.Dims("Sheet1"); rows != 101 || cols != 51 {
		t.Errorf("dims = %dx%d, want 101x51", rows, cols)
	}

	// A number replacing text must leave the overflow entry behind.
	g.SetValue(k("Sheet1", 2, 2), value.Number(3))
	if got := g.Value(k("Sheet1", 2, 2)); !value.Equal(got, value.Number(3)) {
		t.Errorf("text replaced by number = %v", got)
	}
	// And text replacing a number must not leave the old number visible.
	g.SetValue(k("Sheet1", 1, 1), value.Text("t"))
	if got := g.Value(k("Sheet1", 1, 1)); !value.Equal(got, value.Text("t")) {
		t.Errorf("number replaced by text = %v", got)
	}
}

func TestGrid_BackendsAgree(t *testing.T) {
	type write struct {
		key ref.CellKey
		val value.Value
	}
	writes := []write{
		{k("Sheet1", 0, 0), value.Number(1)},
		{k("Sheet1", 0, 1), value.Number(2.5)},
		{k("Sheet1", 1, 0), value.Text("x")},
		{k("Sheet1", 1, 1), value.Bool(false)},
		{k("Sheet1", 7, 7), value.Number(-3)},
		{k("Sheet1", 20, 3), value.Number(100)}, // outside the dense block
		{k("Data", 0, 0), value.Error(value.ErrNA)},
		{k("Sheet1", 0, 0), value.Number(10)}, // overwrite
		{k("Sheet1", 1, 0), value.Empty()},    // clear
	}

	sparse := NewSparse()
	dense := NewDense(8, 8)
	for _, w := range writes {
		sparse.SetValue(w.key, w.val)
		dense.SetValue(w.key, w.val)
	}

	probes := []ref.CellKey{
		k("Sheet1", 0, 0), k("Sheet1", 0, 1), k("Sheet1", 1, 0),
		k("Sheet1", 1, 1), k("Sheet1", 7, 7), k("Sheet1", 20, 3),
		k("Data", 0, 0), k("Sheet1", 5, 5), k("Nowhere", 0, 0),
	}
	for _, p := range probes {
		sv, dv := sparse.Value(p), dense.Value(p)
		if !value.Equal(sv, dv) {
			t.Errorf("backends disagree at %s: sparse=%v dense=%v", p, sv, dv)
		}
	}
	if !reflect.DeepEqual(sparse.Sheets(), dense.Sheets()) {
		t.Errorf("sheet lists disagree: %v vs %v", sparse.Sheets(), dense.Sheets())
	}
}
