package engine

// recalc.go - Incremental recalculation passes

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/leapcalc/internal/bytecode"
	"github.com/leapstack-labs/leapcalc/internal/graph"
	"github.com/leapstack-labs/leapcalc/pkg/formula"
	"github.com/leapstack-labs/leapcalc/pkg/ref"
	"github.com/leapstack-labs/leapcalc/pkg/value"
)

// maxSpillSweeps bounds re-sweeps caused by spill extents that moved
// under cells already evaluated this pass.
const maxSpillSweeps = 16

// RecalcResult summarizes one recalculation pass.
type RecalcResult struct {
	// Pass identifies the pass in logs.
	Pass string
	// Evaluated counts formula cells that received a value.
	Evaluated int
	// Components counts strongly connected components that ran.
	Components int
	// Circular counts components containing a reference cycle.
	Circular int
	// Iterations sums iterative passes over circular components.
	Iterations int
	// Sweeps counts full schedule walks; above one means spill
	// geometry changed mid-pass.
	Sweeps int
	// Aborted reports a pass cut short by context cancellation.
	// Pending work stays dirty and runs on the next pass.
	Aborted bool
	// Duration is wall time for the whole pass.
	Duration time.Duration
	// Issues aggregates non-fatal evaluation problems, such as
	// circular references and stored parse failures.
	Issues error
}

// passState is the evaluation state shared by the workers of one
// pass. The mutex guards the schedule maps, the grid, the spill index
// and the volatile random stream.
type passState struct {
	mu        sync.Mutex
	now       time.Time
	comp      map[int]int  // node index to component index
	needs     map[int]bool // nodes awaiting evaluation this sweep
	late      map[int]bool // nodes scheduled after their slot passed
	seen      map[int]bool // components whose slot passed this sweep
	issues    []error
	evaluated int
}

func (p *passState) addIssue(err error) {
	p.mu.Lock()
	p.issues = append(p.issues, err)
	p.mu.Unlock()
}

// Recalculate evaluates every formula affected by edits since the
// last pass, in dependency order. Unchanged results stop propagation.
// On cancellation the pass stops between components and the remaining
// work stays dirty.
func (e *Engine) Recalculate(ctx context.Context) (*RecalcResult, error) {
	res := &RecalcResult{Pass: uuid.NewString()}
	if len(e.dirty) == 0 && !e.graphStale && len(e.volatile) == 0 {
		return res, nil
	}
	start := time.Now()
	e.ensurePlan()

	pass := &passState{
		now:   e.clock(),
		comp:  make(map[int]int, e.graph.NodeCount()),
		needs: make(map[int]bool),
		seen:  make(map[int]bool),
	}
	for ci, members := range e.plan.SCCs {
		for _, m := range members {
			pass.comp[m] = ci
		}
	}
	e.seedNeeds(pass)

	e.logger.Info("recalculating",
		"pass", res.Pass, "dirty", len(e.dirty),
		"scheduled", len(pass.needs), "workers", e.workers)

	defer func() {
		res.Duration = time.Since(start)
		res.Evaluated = pass.evaluated
		res.Issues = errors.Join(pass.issues...)
		e.lastPass = res
		e.logger.Info("recalculation finished",
			"pass", res.Pass, "evaluated", res.Evaluated,
			"components", res.Components, "circular", res.Circular,
			"sweeps", res.Sweeps, "aborted", res.Aborted,
			"duration", res.Duration)
	}()

	for len(pass.needs) > 0 {
		if res.Sweeps == maxSpillSweeps {
			pass.addIssue(fmt.Errorf("spill extents did not settle after %d sweeps", res.Sweeps))
			break
		}
		res.Sweeps++
		var err error
		if e.workers <= 1 {
			err = e.runSerial(ctx, pass, res)
		} else {
			err = e.runLevels(ctx, pass, res)
		}
		if err != nil {
			res.Aborted = true
			// whatever was scheduled runs again next pass
			for n := range pass.needs {
				e.dirty[e.graph.Key(n)] = true
			}
			for n := range pass.late {
				e.dirty[e.graph.Key(n)] = true
			}
			return res, err
		}
		pass.needs = pass.late
		pass.late = nil
		pass.seen = make(map[int]bool)
	}
	clear(e.dirty)
	return res, nil
}

// RecalculateAll marks every formula dirty and runs a full pass.
func (e *Engine) RecalculateAll(ctx context.Context) (*RecalcResult, error) {
	for key := range e.cells {
		e.dirty[key] = true
	}
	e.graphStale = true
	return e.Recalculate(ctx)
}

// seedNeeds marks the formulas the pass must evaluate: edited cells,
// their direct readers, volatile formulas and dynamic references.
// Transitive readers join later, when a precedent's value changes.
func (e *Engine) seedNeeds(pass *passState) {
	add := func(n int) {
		if e.graph.IsFormula(n) {
			pass.needs[n] = true
		}
	}
	for key := range e.dirty {
		if i, ok := e.graph.Index(key); ok {
			add(i)
		}
		for _, d := range e.graph.DependentsOf(key) {
			add(d)
		}
	}
	for key := range e.volatile {
		if i, ok := e.graph.Index(key); ok {
			add(i)
		}
	}
	for _, d := range e.graph.Dynamic() {
		add(d)
	}
}

func (e *Engine) runSerial(ctx context.Context, pass *passState, res *RecalcResult) error {
	env := &evalEnv{eng: e, pass: pass}
	vm := bytecode.NewVM()
	for _, ci := range e.plan.Order {
		if err := ctx.Err(); err != nil {
			return err
		}
		e.evaluateComponent(pass, res, env, vm, ci)
	}
	return nil
}

// runLevels walks the schedule wave by wave, fanning each wave's
// components out over the worker pool. Components in one wave share
// no edges, so they evaluate in any order.
func (e *Engine) runLevels(ctx context.Context, pass *passState, res *RecalcResult) error {
	for _, level := range e.plan.Levels {
		if err := ctx.Err(); err != nil {
			return err
		}
		pass.mu.Lock()
		for _, ci := range level {
			pass.seen[ci] = true
		}
		pass.mu.Unlock()

		eg, ctx := errgroup.WithContext(ctx)
		eg.SetLimit(e.workers)
		for _, ci := range level {
			if !e.componentNeeds(pass, ci) {
				continue
			}
			eg.Go(func() error {
				if err := ctx.Err(); err != nil {
					return err
				}
				env := &evalEnv{eng: e, pass: pass}
				e.evaluateComponent(pass, res, env, bytecode.NewVM(), ci)
				return nil
			})
		}
		if err := eg.Wait(); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) componentNeeds(pass *passState, ci int) bool {
	pass.mu.Lock()
	defer pass.mu.Unlock()
	for _, m := range e.plan.SCCs[ci] {
		if pass.needs[m] {
			return true
		}
	}
	return false
}

func (e *Engine) evaluateComponent(pass *passState, res *RecalcResult, env *evalEnv, vm *bytecode.VM, ci int) {
	members := e.plan.SCCs[ci]
	pass.mu.Lock()
	pass.seen[ci] = true
	needed := false
	for _, m := range members {
		if pass.needs[m] {
			needed = true
			break
		}
	}
	if needed {
		res.Components++
	}
	pass.mu.Unlock()
	if !needed {
		return
	}

	if len(members) > 1 || e.graph.SelfLoop(members[0]) {
		e.evaluateCircular(pass, res, env, vm, ci, members)
		return
	}
	n := members[0]
	if !e.graph.IsFormula(n) {
		return
	}
	key := e.graph.Key(n)
	changed := e.writeResult(pass, key, e.evaluateCell(env, vm, key))
	pass.mu.Lock()
	pass.evaluated++
	pass.mu.Unlock()
	e.propagate(pass, ci, changed)
}

// evaluateCell runs one formula and returns its raw result. Cells
// whose text never parsed evaluate to #NAME? and report the stored
// failure as a pass issue.
func (e *Engine) evaluateCell(env *evalEnv, vm *bytecode.VM, key ref.CellKey) value.Value {
	cf := e.cells[key]
	if cf == nil {
		return value.Empty()
	}
	if cf.parseErr != nil {
		env.pass.addIssue(fmt.Errorf("%s: %w", key, cf.parseErr))
		return value.Error(value.ErrName)
	}
	env.origin = key
	env.scope = nil
	if p, err := e.cache.GetOrCompile(cf.expr); err == nil {
		return vm.Eval(p, env)
	}
	return env.evalFormula(cf.expr)
}

// evaluateCircular resolves one reference cycle. Without iterative
// calculation every member reads #CALC!; with it the members sweep
// repeatedly until the largest numeric movement drops under epsilon.
func (e *Engine) evaluateCircular(pass *passState, res *RecalcResult, env *evalEnv, vm *bytecode.VM, ci int, members []int) {
	pass.mu.Lock()
	res.Circular++
	pass.mu.Unlock()

	keys := make([]ref.CellKey, 0, len(members))
	for _, m := range members {
		if e.graph.IsFormula(m) {
			keys = append(keys, e.graph.Key(m))
		}
	}
	slices.SortFunc(keys, ref.CellKey.Compare)

	var all []ref.CellKey
	if !e.iterative.Enabled {
		for _, key := range keys {
			all = append(all, e.writeResult(pass, key, value.Error(value.ErrCalc))...)
		}
		pass.addIssue(fmt.Errorf("circular reference: %s", keyList(keys)))
		pass.mu.Lock()
		pass.evaluated += len(keys)
		pass.mu.Unlock()
		e.propagate(pass, ci, all)
		return
	}

	iters := 0
	settled := false
	for iters < e.iterative.MaxIterations {
		iters++
		delta := 0.0
		for _, key := range keys {
			before := e.readCell(pass, key)
			all = append(all, e.writeResult(pass, key, e.evaluateCell(env, vm, key))...)
			after := e.readCell(pass, key)
			if value.Equal(before, after) {
				continue
			}
			if before.IsNumber() && after.IsNumber() {
				if d := math.Abs(after.Num() - before.Num()); d > delta {
					delta = d
				}
			} else {
				delta = math.Inf(1)
			}
		}
		if delta <= e.iterative.Epsilon {
			settled = true
			break
		}
	}
	if !settled {
		for _, key := range keys {
			all = append(all, e.writeResult(pass, key, value.Error(value.ErrCalc))...)
		}
		pass.addIssue(fmt.Errorf("circular reference did not converge after %d iterations: %s", iters, keyList(keys)))
	}
	pass.mu.Lock()
	res.Iterations += iters
	pass.evaluated += len(keys)
	pass.mu.Unlock()
	e.propagate(pass, ci, all)
}

// readCell reads a cell's observable value under the pass lock.
func (e *Engine) readCell(pass *passState, key ref.CellKey) value.Value {
	pass.mu.Lock()
	defer pass.mu.Unlock()
	return e.effective(key)
}

// writeResult commits one evaluation result, spilling arrays, and
// returns the cells whose observable value changed.
func (e *Engine) writeResult(pass *passState, key ref.CellKey, v value.Value) []ref.CellKey {
	pass.mu.Lock()
	defer pass.mu.Unlock()
	return e.store(key, v)
}

// store writes a result into the grid. It snapshots every cell the
// write can touch, applies spill placement rules, then diffs the
// snapshot to find observable changes.
func (e *Engine) store(key ref.CellKey, v value.Value) []ref.CellKey {
	before := make(map[ref.CellKey]value.Value)
	record := func(k ref.CellKey) {
		if _, ok := before[k]; !ok {
			before[k] = e.effective(k)
		}
	}
	record(key)
	if ext, ok := e.spills[key]; ok {
		ext.ForEach(func(a ref.Addr) bool {
			record(ref.Key(key.Sheet, a))
			return true
		})
	}

	var target ref.Range
	spilling := false
	if v.IsArray() {
		rows, cols := v.Dims()
		target = ref.Range{
			Sheet:    key.Sheet,
			StartRow: key.Row, StartCol: key.Col,
			EndRow: key.Row + rows - 1, EndCol: key.Col + cols - 1,
		}
		spilling = true
		if rows == 1 && cols == 1 {
			v = v.At(0, 0)
		}
		target.ForEach(func(a ref.Addr) bool {
			record(ref.Key(key.Sheet, a))
			return true
		})
	}

	e.clearSpillLocked(key)
	delete(e.blocked, key)
	switch {
	case spilling && (target.EndRow >= ref.MaxRows || target.EndCol >= ref.MaxCols):
		e.grid.SetValue(key, value.Error(value.ErrSpill))
	case spilling && e.spillBlocked(key, target):
		e.grid.SetValue(key, value.Error(value.ErrSpill))
		e.blocked[key] = target
	case spilling:
		e.grid.SetValue(key, v)
		target.ForEach(func(a ref.Addr) bool {
			if k := ref.Key(key.Sheet, a); k != key {
				e.grid.SetValue(k, value.Spill(key))
			}
			return true
		})
		e.spills[key] = target
	default:
		e.grid.SetValue(key, v)
	}

	var changed []ref.CellKey
	for k, old := range before {
		if !value.Equal(e.effective(k), old) {
			changed = append(changed, k)
		}
	}
	slices.SortFunc(changed, ref.CellKey.Compare)
	return changed
}

// spillBlocked reports whether a target cell other than the anchor
// holds content a spill may not overwrite.
func (e *Engine) spillBlocked(anchor ref.CellKey, target ref.Range) bool {
	blocked := false
	target.ForEach(func(a ref.Addr) bool {
		k := ref.Key(anchor.Sheet, a)
		if k == anchor {
			return true
		}
		if _, isFormula := e.cells[k]; isFormula {
			blocked = true
			return false
		}
		if !e.grid.Value(k).IsEmpty() {
			blocked = true
			return false
		}
		return true
	})
	return blocked
}

// clearSpillLocked reverts a spill's marker cells to empty and forgets
// the extent, returning the reverted cells. The caller holds the pass
// lock during evaluation; host edits run single-threaded.
func (e *Engine) clearSpillLocked(key ref.CellKey) []ref.CellKey {
	ext, ok := e.spills[key]
	if !ok {
		return nil
	}
	delete(e.spills, key)
	var reverted []ref.CellKey
	ext.ForEach(func(a ref.Addr) bool {
		k := ref.Key(key.Sheet, a)
		if k == key {
			return true
		}
		if cur := e.grid.Value(k); cur.Kind() == value.KindSpill && cur.SpillAnchor() == key {
			e.grid.SetValue(k, value.Empty())
			reverted = append(reverted, k)
		}
		return true
	})
	return reverted
}

// propagate schedules the readers of changed cells. A reader whose
// slot already passed this sweep lands in the late set and runs next
// sweep. Dynamic references re-run whenever anything changed, since
// their read set is invisible to the graph.
func (e *Engine) propagate(pass *passState, self int, changed []ref.CellKey) {
	if len(changed) == 0 {
		return
	}
	pass.mu.Lock()
	defer pass.mu.Unlock()
	schedule := func(d int) {
		if !e.graph.IsFormula(d) {
			return
		}
		ci := pass.comp[d]
		if ci == self {
			return
		}
		if pass.seen[ci] {
			if pass.late == nil {
				pass.late = make(map[int]bool)
			}
			pass.late[d] = true
		} else {
			pass.needs[d] = true
		}
	}
	for _, k := range changed {
		for _, d := range e.graph.DependentsOf(k) {
			schedule(d)
		}
	}
	for _, d := range e.graph.Dynamic() {
		schedule(d)
	}
	// a retraction can unblock another anchor's spill mid-pass
	for anchor, want := range e.blocked {
		for _, k := range changed {
			if k.Sheet == want.Sheet && want.Contains(k.Addr()) {
				if i, ok := e.graph.Index(anchor); ok {
					schedule(i)
				}
				break
			}
		}
	}
}

// ensurePlan rebuilds the dependency graph and its schedule after a
// structural edit.
func (e *Engine) ensurePlan() {
	if !e.graphStale && e.plan != nil {
		return
	}
	g := graph.NewGraph()
	for _, key := range e.formulaKeys() {
		cf := e.cells[key]
		if cf.expr == nil {
			g.AddFormula(key, nil, false)
			continue
		}
		rects, dynamic := e.precedents(key, cf)
		g.AddFormula(key, rects, dynamic)
	}
	g.Finish()
	e.graph = g
	e.plan = g.Plan()
	e.graphStale = false
	e.logger.Debug("dependency graph rebuilt",
		"nodes", g.NodeCount(), "edges", g.EdgeCount(),
		"components", len(e.plan.SCCs))
}

// formulaKeys returns the formula cells in cell order, so graph node
// numbering does not depend on map iteration.
func (e *Engine) formulaKeys() []ref.CellKey {
	keys := make([]ref.CellKey, 0, len(e.cells))
	for key := range e.cells {
		keys = append(keys, key)
	}
	slices.SortFunc(keys, ref.CellKey.Compare)
	return keys
}

// precedents collects one formula's static read set: its own areas,
// the areas of every defined name it mentions, the geometry of the
// tables it references, and the anchors of spills its areas overlap.
func (e *Engine) precedents(key ref.CellKey, cf *cellFormula) ([]ref.Range, bool) {
	ps := &precedentSet{eng: e, origin: key, seen: make(map[string]bool)}
	ps.addAnalysis(cf.analysis)
	for anchor, ext := range e.spills {
		if anchor == key {
			continue
		}
		for _, r := range ps.rects {
			if r.Sheet == ext.Sheet && r.Intersects(ext) {
				ps.rects = append(ps.rects, ref.CellRange(anchor.Sheet, anchor.Addr()))
				break
			}
		}
	}
	return ps.rects, ps.dynamic
}

type precedentSet struct {
	eng     *Engine
	origin  ref.CellKey
	rects   []ref.Range
	dynamic bool
	seen    map[string]bool // name scopes already expanded
}

func (ps *precedentSet) addAnalysis(a formula.Analysis) {
	if a.Dynamic {
		ps.dynamic = true
	}
	for _, area := range a.Areas {
		if area.External() {
			continue
		}
		sheets, ok := ps.eng.sheetRun(area.Sheets)
		if !ok {
			continue
		}
		for _, sheet := range sheets {
			ps.rects = append(ps.rects, area.SheetRange(sheet))
		}
	}
	for _, use := range a.Tables {
		ps.addTable(use)
	}
	for _, use := range a.Names {
		ps.addName(use)
	}
}

// addTable resolves a structured reference to the rows and columns it
// actually reads, so a calculated column inside its own table does not
// look self-referential. Selectors that cannot resolve contribute
// nothing; evaluation reports the error without reading any cell.
func (ps *precedentSet) addTable(use formula.TableUse) {
	t, ok := ps.eng.lookupTable(use.Name, ps.origin)
	if !ok {
		return
	}
	r := t.Range.Normalize()
	top, bot, ok := tableRows(t, use.Section)
	if !ok {
		return
	}
	r.StartRow, r.EndRow = top, bot

	if use.StartCol != "" {
		c1, ok := ps.eng.tableColumnIndex(t, use.StartCol)
		if !ok {
			return
		}
		c2 := c1
		if use.EndCol != "" {
			if c2, ok = ps.eng.tableColumnIndex(t, use.EndCol); !ok {
				return
			}
		}
		if c1 > c2 {
			c1, c2 = c2, c1
		}
		r.StartCol, r.EndCol = c1, c2
		if t.HeaderRow {
			// header text drives the column mapping, so its cells are
			// precedents too
			h := t.Range.Normalize()
			h.EndRow = h.StartRow
			h.Sheet = t.Sheet
			ps.rects = append(ps.rects, h)
		}
	}

	if use.ThisRow {
		top, bot := dataRows(t)
		if ps.origin.Sheet != t.Sheet || ps.origin.Row < top || ps.origin.Row > bot {
			return
		}
		r.StartRow, r.EndRow = ps.origin.Row, ps.origin.Row
	}
	r.Sheet = t.Sheet
	ps.rects = append(ps.rects, r)
}

// addName expands a defined name into its definition's read set. The
// seen set stops mutually recursive definitions; evaluation reports
// those as #NAME?.
func (ps *precedentSet) addName(use formula.NameUse) {
	scope := use.Sheet
	if scope == "" {
		scope = ps.origin.Sheet
	}
	def, ok := ps.eng.lookupName(scope, use.Name)
	if !ok {
		return
	}
	mark := strings.ToUpper(scope) + "!" + use.Name
	if ps.seen[mark] {
		return
	}
	ps.seen[mark] = true
	ps.addAnalysis(formula.Analyze(def.expr, ps.origin, ps.origin.Sheet))
}

// Diagnostics is a point-in-time snapshot of engine internals for
// inspection tooling.
type Diagnostics struct {
	LastPass   *RecalcResult
	Formulas   int
	GraphNodes int
	GraphEdges int
	Cache      bytecode.Stats
	Shapes     []bytecode.ShapeReport
}

func (e *Engine) Diagnostics() Diagnostics {
	d := Diagnostics{
		LastPass: e.lastPass,
		Formulas: len(e.cells),
		Cache:    e.cache.Stats(),
		Shapes:   e.cache.Report(),
	}
	if e.graph != nil {
		d.GraphNodes = e.graph.NodeCount()
		d.GraphEdges = e.graph.EdgeCount()
	}
	return d
}

func keyList(keys []ref.CellKey) string {
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k.String()
	}
	return strings.Join(parts, ", ")
}
