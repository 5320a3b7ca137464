package engine

import (
	"context"
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/leapstack-labs/leapcalc/internal/grid"
	"github.com/leapstack-labs/leapcalc/pkg/value"
)

func TestEngine_Recalculate_CircularWithoutIteration(t *testing.T) {
	e := newEngine(t, Config{})
	form(t, e, "A1", "=B1+1")
	form(t, e, "B1", "=A1+1")
	res := calc(t, e)

	wantError(t, cell(e, "A1"), value.ErrCalc)
	wantError(t, cell(e, "B1"), value.ErrCalc)
	if res.Circular != 1 {
		t.Errorf("expected 1 circular component, got %d", res.Circular)
	}
	if res.Issues == nil || !strings.Contains(res.Issues.Error(), "circular reference") {
		t.Errorf("expected a circular reference issue, got %v", res.Issues)
	}
	if !strings.Contains(res.Issues.Error(), "Sheet1!A1, Sheet1!B1") {
		t.Errorf("expected the members listed in cell order, got %v", res.Issues)
	}
}

func TestEngine_Recalculate_SelfReference(t *testing.T) {
	e := newEngine(t, Config{})
	form(t, e, "A1", "=A1+1")
	res := calc(t, e)
	wantError(t, cell(e, "A1"), value.ErrCalc)
	if res.Circular != 1 {
		t.Errorf("expected 1 circular component, got %d", res.Circular)
	}
}

func TestEngine_Recalculate_IterativeConverges(t *testing.T) {
	e := newEngine(t, Config{Iterative: IterativeConfig{Enabled: true}})
	form(t, e, "A1", "=B1+1")
	form(t, e, "B1", "=A1/2")
	res := calc(t, e)

	// fixed point of a = b+1, b = a/2 is a=2, b=1
	a, b := cell(e, "A1"), cell(e, "B1")
	if !a.IsNumber() || math.Abs(a.Num()-2) > 0.01 {
		t.Errorf("expected A1 near 2, got %s", a)
	}
	if !b.IsNumber() || math.Abs(b.Num()-1) > 0.01 {
		t.Errorf("expected B1 near 1, got %s", b)
	}
	if res.Iterations < 2 || res.Iterations >= 100 {
		t.Errorf("expected convergence in a few iterations, got %d", res.Iterations)
	}
	if res.Issues != nil {
		t.Errorf("expected no issues, got %v", res.Issues)
	}
}

func TestEngine_Recalculate_IterativeHitsLimit(t *testing.T) {
	e := newEngine(t, Config{Iterative: IterativeConfig{Enabled: true, MaxIterations: 5}})
	form(t, e, "A1", "=A1+1")
	res := calc(t, e)

	wantError(t, cell(e, "A1"), value.ErrCalc)
	if res.Iterations != 5 {
		t.Errorf("expected the iteration cap, got %d", res.Iterations)
	}
	if res.Issues == nil || !strings.Contains(res.Issues.Error(), "did not converge") {
		t.Errorf("expected a non-convergence issue, got %v", res.Issues)
	}
}

func TestEngine_Recalculate_CanceledContext(t *testing.T) {
	e := newEngine(t, Config{})
	set(t, e, "A1", value.Number(1))
	form(t, e, "B1", "=A1+1")
	form(t, e, "C1", "=B1+1")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := e.Recalculate(ctx)
	if err == nil {
		t.Fatal("expected a cancellation error")
	}
	if !res.Aborted {
		t.Error("expected the pass to report the abort")
	}
	if !e.HasDirtyCells() {
		t.Error("expected the pending work to stay dirty")
	}

	// the next pass finishes the job
	calc(t, e)
	wantNumber(t, cell(e, "B1"), 2)
	wantNumber(t, cell(e, "C1"), 3)
	if e.HasDirtyCells() {
		t.Error("expected a clean engine after the retry")
	}
}

func TestEngine_Recalculate_ParallelMatchesSerial(t *testing.T) {
	build := func(workers int) *Engine {
		e := newEngine(t, Config{Workers: workers})
		for i := 1; i <= 40; i++ {
			set(t, e, fmt.Sprintf("A%d", i), value.Number(float64(i)))
			form(t, e, fmt.Sprintf("B%d", i), fmt.Sprintf("=A%d*2", i))
		}
		form(t, e, "C1", "=SUM(B1:B40)")
		form(t, e, "D1", `=IF(C1>1000,"big","small")`)
		calc(t, e)
		return e
	}
	serial := build(1)
	parallel := build(8)

	for i := 1; i <= 40; i++ {
		a1 := fmt.Sprintf("B%d", i)
		if !value.Equal(cell(serial, a1), cell(parallel, a1)) {
			t.Errorf("%s: expected %s, got %s", a1, cell(serial, a1), cell(parallel, a1))
		}
	}
	wantNumber(t, cell(parallel, "C1"), 1640)
	wantText(t, cell(parallel, "D1"), "big")
	if !value.Equal(cell(serial, "C1"), cell(parallel, "C1")) {
		t.Error("expected identical totals across worker counts")
	}
}

func TestEngine_Recalculate_SpillsArray(t *testing.T) {
	e := newEngine(t, Config{})
	form(t, e, "A1", "=TRANSPOSE({1,2,3})")
	form(t, e, "C1", "=SUM(A1#)")
	calc(t, e)

	wantNumber(t, cell(e, "A1"), 1)
	wantNumber(t, cell(e, "A2"), 2)
	wantNumber(t, cell(e, "A3"), 3)
	wantNumber(t, cell(e, "C1"), 6)
	if e.HasFormula("Sheet1", "A2") {
		t.Error("expected spilled cells to stay formula-free")
	}
}

func TestEngine_Recalculate_SpillBlockedAndFreed(t *testing.T) {
	e := newEngine(t, Config{})
	form(t, e, "A1", "=TRANSPOSE({1,2,3})")
	form(t, e, "C1", "=SUM(A1#)")
	calc(t, e)
	wantNumber(t, cell(e, "C1"), 6)

	// writing into the spilled range blocks the anchor
	set(t, e, "A2", value.Number(99))
	calc(t, e)
	wantError(t, cell(e, "A1"), value.ErrSpill)
	wantNumber(t, cell(e, "A2"), 99)
	wantEmpty(t, cell(e, "A3"))
	wantError(t, cell(e, "C1"), value.ErrRef)

	// clearing the obstruction lets the anchor spill again
	set(t, e, "A2", value.Empty())
	calc(t, e)
	wantNumber(t, cell(e, "A1"), 1)
	wantNumber(t, cell(e, "A2"), 2)
	wantNumber(t, cell(e, "A3"), 3)
	wantNumber(t, cell(e, "C1"), 6)
}

func TestEngine_Recalculate_SpillRetractsToScalar(t *testing.T) {
	e := newEngine(t, Config{})
	form(t, e, "A1", "=TRANSPOSE({1,2})")
	form(t, e, "B1", "=A2+1")
	calc(t, e)
	wantNumber(t, cell(e, "B1"), 3)

	form(t, e, "A1", "=5")
	calc(t, e)
	wantNumber(t, cell(e, "A1"), 5)
	wantEmpty(t, cell(e, "A2"))
	wantNumber(t, cell(e, "B1"), 1)
}

func TestEngine_Recalculate_SpillGrowthTriggersResweep(t *testing.T) {
	e := newEngine(t, Config{})
	// the dynamic read set is invisible to the graph, so A1's slot
	// comes first and changes landing behind it force another sweep
	form(t, e, "A1", `=SUM(INDIRECT("E1:E2"))`)
	form(t, e, "C1", "={1,2}")
	res := calc(t, e)
	wantNumber(t, cell(e, "A1"), 0)
	wantNumber(t, cell(e, "D1"), 2)
	if res.Sweeps != 2 {
		t.Errorf("expected a confirming second sweep, got %d", res.Sweeps)
	}

	form(t, e, "C1", "={1,2,3}")
	res = calc(t, e)
	wantNumber(t, cell(e, "E1"), 3)
	wantNumber(t, cell(e, "A1"), 3)
	if res.Sweeps != 2 {
		t.Errorf("expected a second sweep for the late change, got %d", res.Sweeps)
	}
}

func TestEngine_Recalculate_NothingToDo(t *testing.T) {
	e := newEngine(t, Config{})
	set(t, e, "A1", value.Number(1))
	form(t, e, "B1", "=A1*3")
	calc(t, e)

	res := calc(t, e)
	if res.Evaluated != 0 || res.Sweeps != 0 {
		t.Errorf("expected an idle pass, got %+v", res)
	}
}

func TestEngine_Recalculate_DenseMatchesSparse(t *testing.T) {
	build := func(g grid.MutableGrid) *Engine {
		e := newEngine(t, Config{Grid: g})
		set(t, e, "A1", value.Number(10))
		set(t, e, "A2", value.Number(20))
		form(t, e, "B1", "=SUM(A1:A2)")
		form(t, e, "B2", "=B1*2")
		calc(t, e)
		return e
	}
	sparse := build(grid.NewSparse())
	dense := build(grid.NewDense(16, 8))

	for _, a1 := range []string{"A1", "A2", "B1", "B2"} {
		if !value.Equal(cell(sparse, a1), cell(dense, a1)) {
			t.Errorf("%s: expected %s, got %s", a1, cell(sparse, a1), cell(dense, a1))
		}
	}
	wantNumber(t, cell(dense, "B2"), 60)
}

func TestEngine_RecalculateAll_ReevaluatesEverything(t *testing.T) {
	e := newEngine(t, Config{})
	set(t, e, "A1", value.Number(1))
	form(t, e, "B1", "=A1+1")
	form(t, e, "C1", "=B1+1")
	calc(t, e)

	res, err := e.RecalculateAll(context.Background())
	if err != nil {
		t.Fatalf("RecalculateAll: %v", err)
	}
	if res.Evaluated != 2 {
		t.Errorf("expected both formulas to re-run, got %d", res.Evaluated)
	}
	wantNumber(t, cell(e, "C1"), 3)
}

func TestEngine_Diagnostics_SharedProgramForFilledColumn(t *testing.T) {
	e := newEngine(t, Config{})
	for i := 1; i <= 100; i++ {
		form(t, e, fmt.Sprintf("B%d", i), fmt.Sprintf("=A%d*2", i))
	}
	calc(t, e)

	d := e.Diagnostics()
	if d.Formulas != 100 {
		t.Errorf("expected 100 formulas, got %d", d.Formulas)
	}
	if d.Cache.Programs != 1 {
		t.Errorf("expected one shared program, got %d", d.Cache.Programs)
	}
	if d.Cache.Misses != 1 || d.Cache.Hits != 99 {
		t.Errorf("expected 1 miss and 99 hits, got %d and %d", d.Cache.Misses, d.Cache.Hits)
	}
	if d.GraphNodes != 200 || d.GraphEdges != 100 {
		t.Errorf("expected 200 nodes and 100 edges, got %d and %d", d.GraphNodes, d.GraphEdges)
	}
	if d.LastPass == nil || d.LastPass.Evaluated != 100 {
		t.Errorf("expected the last pass on record, got %+v", d.LastPass)
	}
	if len(d.Shapes) != 1 {
		t.Errorf("expected one cached shape, got %d", len(d.Shapes))
	}
}
