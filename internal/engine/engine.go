// Package engine drives incremental recalculation of one workbook.
// It owns the cell grid, parses and stores formulas, maintains the
// dependency graph, and evaluates dirty cells through compiled
// programs with a tree-walking fallback for the dynamic constructs.
package engine

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"strings"
	"time"

	"github.com/leapstack-labs/leapcalc/internal/bytecode"
	"github.com/leapstack-labs/leapcalc/internal/fn"
	"github.com/leapstack-labs/leapcalc/internal/graph"
	"github.com/leapstack-labs/leapcalc/internal/grid"
	"github.com/leapstack-labs/leapcalc/pkg/formula"
	"github.com/leapstack-labs/leapcalc/pkg/locale"
	"github.com/leapstack-labs/leapcalc/pkg/ref"
	"github.com/leapstack-labs/leapcalc/pkg/value"
)

// ValueProvider supplies cell values from other workbooks. The key is
// the canonical bracketed qualifier as produced by
// ref.ExternalKey.String, "[Book]Sheet" or "[Book]First:Last".
type ValueProvider interface {
	Resolve(key string, a ref.Addr) (value.Value, bool)
}

// MapProvider is a ValueProvider over a fixed map keyed by
// "<external key>!<A1>", e.g. "[Data.xlsx]Prices!B2".
type MapProvider map[string]value.Value

// Resolve implements ValueProvider.
func (m MapProvider) Resolve(key string, a ref.Addr) (value.Value, bool) {
	v, ok := m[key+"!"+ref.FormatA1(a)]
	return v, ok
}

// IterativeConfig controls the fixed-point solver for circular
// reference groups.
type IterativeConfig struct {
	// Enabled turns iterative calculation on. When off, every member
	// of a circular group stores the circular-reference error.
	Enabled bool
	// MaxIterations bounds the sweeps per group (default 100).
	MaxIterations int
	// Epsilon is the convergence threshold on the largest absolute
	// change between sweeps (default 0.001).
	Epsilon float64
}

// Config holds engine configuration.
type Config struct {
	// Locale used for parsing and coercion (nil means en-US).
	Locale *locale.Locale
	// Grid is the cell store (nil means a fresh sparse grid).
	Grid grid.MutableGrid
	// Functions is the function table (nil means the full builtin set).
	Functions *fn.Table
	// Provider resolves external workbook references (optional).
	Provider ValueProvider
	// Workers bounds parallel evaluation; values below 2 run serial.
	Workers int
	// Iterative configures circular reference resolution.
	Iterative IterativeConfig
	// Logger is the structured logger (optional, uses discard if nil).
	Logger *slog.Logger
	// Clock supplies the evaluation timestamp frozen per pass (nil
	// means time.Now).
	Clock func() time.Time
	// Seed fixes the volatile random stream; 0 seeds from the clock.
	Seed uint64
}

// Engine is the calculation engine for one workbook. The host mutates
// and reads it from a single goroutine; Recalculate parallelizes
// internally when configured to.
type Engine struct {
	grid     grid.MutableGrid
	fns      *fn.Table
	cache    *bytecode.Cache
	loc      *locale.Locale
	provider ValueProvider
	logger   *slog.Logger

	clock     func() time.Time
	rng       *rand.Rand
	workers   int
	iterative IterativeConfig

	cells     map[ref.CellKey]*cellFormula
	order     []string // sheet order, as first seen or set
	known     map[string]bool
	names     map[string]*namedef
	tables    map[string]Table
	meta      map[string]string
	sheetMeta map[string]map[string]string

	graph      *graph.Graph
	plan       *graph.Schedule
	graphStale bool
	dirty      map[ref.CellKey]bool
	volatile   map[ref.CellKey]bool
	spills     map[ref.CellKey]ref.Range
	blocked    map[ref.CellKey]ref.Range // anchors in #SPILL! and the extent they want

	lastPass *RecalcResult
}

// cellFormula is one stored formula: the text as entered, the parsed
// tree and its static dependency summary. A cell whose text failed to
// parse keeps the error and evaluates to #NAME?.
type cellFormula struct {
	src      string
	expr     formula.Expr
	analysis formula.Analysis
	volatile bool
	parseErr error
}

// namedef is one defined name. The expression evaluates at the point
// of use, so relative references follow the using cell.
type namedef struct {
	src  string
	expr formula.Expr
}

// Table declares one structured-reference table: where it sits,
// whether its first row holds column headers, and how many trailing
// rows are totals.
type Table struct {
	Name       string
	Sheet      string
	Range      ref.Range
	HeaderRow  bool
	TotalsRows int
}

// New creates an engine from the configuration. Zero-value defaults
// give a sparse grid, the full builtin function table and the en-US
// locale.
func New(cfg Config) (*Engine, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	g := cfg.Grid
	if g == nil {
		g = grid.NewSparse()
	}
	fns := cfg.Functions
	if fns == nil {
		fns = fn.NewTable()
	}
	loc := cfg.Locale
	if loc == nil {
		loc = locale.Default()
	}
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	iter := cfg.Iterative
	if iter.MaxIterations <= 0 {
		iter.MaxIterations = 100
	}
	if iter.Epsilon <= 0 {
		iter.Epsilon = 0.001
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(clock().UnixNano())
	}

	logger.Debug("initializing engine",
		"locale", loc.Name, "workers", workers,
		"iterative", iter.Enabled, "functions", fns.Len())

	return &Engine{
		grid:      g,
		fns:       fns,
		cache:     bytecode.NewCache(fns),
		loc:       loc,
		provider:  cfg.Provider,
		logger:    logger,
		clock:     clock,
		rng:       rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		workers:   workers,
		iterative: iter,
		cells:     make(map[ref.CellKey]*cellFormula),
		known:     make(map[string]bool),
		names:     make(map[string]*namedef),
		tables:    make(map[string]Table),
		meta:      make(map[string]string),
		sheetMeta: make(map[string]map[string]string),
		dirty:     make(map[ref.CellKey]bool),
		volatile:  make(map[ref.CellKey]bool),
		spills:    make(map[ref.CellKey]ref.Range),
		blocked:   make(map[ref.CellKey]ref.Range),
	}, nil
}

// cellKey parses a sheet name and an A1 address into a cell key.
func (e *Engine) cellKey(sheet, a1 string) (ref.CellKey, error) {
	if sheet == "" {
		return ref.CellKey{}, fmt.Errorf("empty sheet name")
	}
	a, ok := ref.ParseA1(a1)
	if !ok {
		return ref.CellKey{}, fmt.Errorf("invalid cell address %q", a1)
	}
	return ref.Key(sheet, a.Addr), nil
}

func (e *Engine) touchSheet(name string) {
	if !e.known[name] {
		e.known[name] = true
		e.order = append(e.order, name)
	}
}

// AddSheet appends an empty sheet to the workbook order.
func (e *Engine) AddSheet(name string) {
	e.touchSheet(name)
}

// Sheets returns the sheet names in workbook order, which 3-D spans
// such as Sheet1:Sheet3!A1 resolve against.
func (e *Engine) Sheets() []string {
	return slices.Clone(e.order)
}

// SheetDims returns the used extent of a sheet as a row and column
// count. An empty sheet reads as 0, 0.
func (e *Engine) SheetDims(sheet string) (rows, cols int) {
	return e.grid.Dims(sheet)
}

// Locale returns the locale the engine parses and formats with.
func (e *Engine) Locale() *locale.Locale {
	return e.loc
}

// Functions returns the engine's function table.
func (e *Engine) Functions() *fn.Table {
	return e.fns
}

// SetSheetOrder replaces the workbook sheet order. Known sheets not
// listed keep their relative position after the listed ones; unknown
// names are added.
func (e *Engine) SetSheetOrder(names []string) {
	seen := make(map[string]bool, len(names))
	order := make([]string, 0, len(e.order)+len(names))
	for _, n := range names {
		if seen[n] {
			continue
		}
		seen[n] = true
		e.known[n] = true
		order = append(order, n)
	}
	for _, n := range e.order {
		if !seen[n] {
			order = append(order, n)
		}
	}
	e.order = order
	// span membership may have changed for any formula
	for key := range e.cells {
		e.dirty[key] = true
	}
	e.graphStale = true
}

// SetCellValue writes a plain value, replacing any formula in the
// cell. An Empty value clears the cell.
func (e *Engine) SetCellValue(sheet, a1 string, v value.Value) error {
	key, err := e.cellKey(sheet, a1)
	if err != nil {
		return err
	}
	e.touchSheet(sheet)
	if _, had := e.cells[key]; had {
		delete(e.cells, key)
		delete(e.volatile, key)
		e.graphStale = true
	}
	e.clearSpill(key)
	delete(e.blocked, key)
	if cur := e.grid.Value(key); cur.Kind() == value.KindSpill {
		// writing into a spill range blocks it; the anchor must
		// re-evaluate
		e.dirty[cur.SpillAnchor()] = true
	}
	e.grid.SetValue(key, v)
	e.dirty[key] = true
	e.dirtyBlockedAnchors(key)
	return nil
}

// SetCellFormula parses and stores a formula. A parse failure is
// reported to the caller and also stored, so the cell evaluates to
// #NAME? instead of wedging the pass.
func (e *Engine) SetCellFormula(sheet, a1, text string) error {
	key, err := e.cellKey(sheet, a1)
	if err != nil {
		return err
	}
	e.touchSheet(sheet)
	e.clearSpill(key)
	delete(e.blocked, key)
	if cur := e.grid.Value(key); cur.Kind() == value.KindSpill {
		e.dirty[cur.SpillAnchor()] = true
	}
	e.dirtyBlockedAnchors(key)

	cf := &cellFormula{src: text}
	expr, perr := formula.Parse(text, key, e.loc)
	if perr != nil {
		cf.parseErr = perr
	} else {
		cf.expr = expr
		cf.analysis = formula.Analyze(expr, key, sheet)
		cf.volatile = e.anyVolatile(cf.analysis.Funcs)
	}
	e.cells[key] = cf
	if cf.volatile {
		e.volatile[key] = true
	} else {
		delete(e.volatile, key)
	}
	e.dirty[key] = true
	e.graphStale = true
	if perr != nil {
		return fmt.Errorf("%s!%s: %w", sheet, a1, perr)
	}
	return nil
}

func (e *Engine) anyVolatile(funcs []string) bool {
	for _, name := range funcs {
		if d, ok := e.fns.Lookup(name); ok && d.Volatile {
			return true
		}
	}
	return false
}

// GetCellValue returns the current value of a cell, resolving spilled
// cells to their element. A malformed address reads as #REF!.
func (e *Engine) GetCellValue(sheet, a1 string) value.Value {
	key, err := e.cellKey(sheet, a1)
	if err != nil {
		return value.Error(value.ErrRef)
	}
	return e.effective(key)
}

// CellFormula returns the stored formula text of a cell.
func (e *Engine) CellFormula(sheet, a1 string) (string, bool) {
	key, err := e.cellKey(sheet, a1)
	if err != nil {
		return "", false
	}
	cf, ok := e.cells[key]
	if !ok {
		return "", false
	}
	return cf.src, true
}

// FormulaCells returns every formula cell in the workbook in cell
// order.
func (e *Engine) FormulaCells() []ref.CellKey {
	return e.formulaKeys()
}

// HasFormula reports whether the cell holds a formula.
func (e *Engine) HasFormula(sheet, a1 string) bool {
	key, err := e.cellKey(sheet, a1)
	if err != nil {
		return false
	}
	_, ok := e.cells[key]
	return ok
}

// HasDirtyCells reports whether edits are awaiting recalculation.
// Volatile formulas re-evaluate every pass regardless.
func (e *Engine) HasDirtyCells() bool {
	return len(e.dirty) > 0 || e.graphStale
}

// Evaluate parses and evaluates a formula at an origin cell without
// storing it. The result reads the current grid; nothing is marked
// dirty and no spill is placed. Hosts use this for one-shot queries.
func (e *Engine) Evaluate(sheet, a1, text string) (value.Value, error) {
	key, err := e.cellKey(sheet, a1)
	if err != nil {
		return value.Value{}, err
	}
	expr, perr := formula.Parse(text, key, e.loc)
	if perr != nil {
		return value.Value{}, perr
	}
	env := &evalEnv{eng: e, pass: &passState{now: e.clock()}, origin: key}
	if p, cerr := e.cache.GetOrCompile(expr); cerr == nil {
		return bytecode.NewVM().Eval(p, env), nil
	}
	return env.evalFormula(expr), nil
}

// Precedents returns the cells a formula reads directly, in cell
// order. Coarse range reads report the cells the graph knows about.
func (e *Engine) Precedents(sheet, a1 string) ([]ref.CellKey, error) {
	key, err := e.cellKey(sheet, a1)
	if err != nil {
		return nil, err
	}
	e.ensurePlan()
	i, ok := e.graph.Index(key)
	if !ok {
		return nil, nil
	}
	var out []ref.CellKey
	for _, p := range e.graph.Precedents(i) {
		out = append(out, e.graph.Key(p))
	}
	if e.graph.SelfLoop(i) {
		out = append(out, key)
	}
	slices.SortFunc(out, ref.CellKey.Compare)
	return out, nil
}

// Dependents returns the formulas that read a cell directly, in cell
// order.
func (e *Engine) Dependents(sheet, a1 string) ([]ref.CellKey, error) {
	key, err := e.cellKey(sheet, a1)
	if err != nil {
		return nil, err
	}
	e.ensurePlan()
	var out []ref.CellKey
	for _, d := range e.graph.DependentsOf(key) {
		out = append(out, e.graph.Key(d))
	}
	slices.SortFunc(out, ref.CellKey.Compare)
	return out, nil
}

// DefineName binds a defined name to a formula expression. A non-empty
// sheet scopes the name to that sheet. The definition parses at A1 of
// its scope, so relative references are relative to each using cell.
func (e *Engine) DefineName(sheet, name, src string) error {
	upper := locale.NormalizeName(name)
	if upper == "" {
		return fmt.Errorf("empty name")
	}
	scope := sheet
	if scope == "" {
		if len(e.order) > 0 {
			scope = e.order[0]
		} else {
			scope = "Sheet1"
		}
	}
	expr, err := formula.Parse(src, ref.Key(scope, ref.Addr{}), e.loc)
	if err != nil {
		return fmt.Errorf("name %s: %w", name, err)
	}
	mapKey := upper
	if sheet != "" {
		mapKey = strings.ToUpper(sheet) + "!" + upper
	}
	e.names[mapKey] = &namedef{src: src, expr: expr}
	e.dirtyNameUsers(upper)
	return nil
}

// dirtyNameUsers re-dirties every formula mentioning a name, in any
// scope. The name's precedent areas may have changed too.
func (e *Engine) dirtyNameUsers(upper string) {
	for key, cf := range e.cells {
		if cf.expr == nil {
			continue
		}
		for _, use := range cf.analysis.Names {
			if use.Name == upper {
				e.dirty[key] = true
				e.graphStale = true
				break
			}
		}
	}
}

// lookupName resolves a name visible from a sheet: the sheet-scoped
// definition wins over the workbook-scoped one.
func (e *Engine) lookupName(sheet, name string) (*namedef, bool) {
	upper := locale.NormalizeName(name)
	if sheet != "" {
		if d, ok := e.names[strings.ToUpper(sheet)+"!"+upper]; ok {
			return d, true
		}
	}
	d, ok := e.names[upper]
	return d, ok
}

// DefineTable registers a structured-reference table covering a
// bounded rectangle.
func (e *Engine) DefineTable(t Table) error {
	if t.Name == "" || t.Sheet == "" {
		return fmt.Errorf("table needs a name and a sheet")
	}
	t.Range = t.Range.Normalize()
	if !t.Range.Bounded() {
		return fmt.Errorf("table %s: extent must be bounded", t.Name)
	}
	e.touchSheet(t.Sheet)
	e.tables[strings.ToUpper(t.Name)] = t
	// table geometry feeds the dependency graph, so it must rebuild
	for key, cf := range e.cells {
		if cf.expr == nil {
			continue
		}
		if cf.analysis.Dynamic || len(cf.analysis.Tables) > 0 {
			e.dirty[key] = true
		}
	}
	e.graphStale = true
	return nil
}

// lookupTable finds a table by name; the empty name binds the [@...]
// shorthand to the table containing the formula cell.
func (e *Engine) lookupTable(name string, origin ref.CellKey) (Table, bool) {
	if name != "" {
		t, ok := e.tables[strings.ToUpper(name)]
		return t, ok
	}
	for _, t := range e.tables {
		if t.Sheet == origin.Sheet && t.Range.Contains(origin.Addr()) {
			return t, true
		}
	}
	return Table{}, false
}

// tableRows returns the row band a section selector addresses. The
// empty selector and [#Data] both address the body between header and
// totals.
func tableRows(t Table, section string) (top, bot int, ok bool) {
	full := t.Range.Normalize()
	switch strings.ToLower(section) {
	case "", "#data":
		top, bot = dataRows(t)
		return top, bot, bot >= top
	case "#all":
		return full.StartRow, full.EndRow, true
	case "#headers":
		return full.StartRow, full.StartRow, t.HeaderRow
	case "#totals":
		return full.EndRow - t.TotalsRows + 1, full.EndRow, t.TotalsRows > 0
	}
	return 0, 0, false
}

// dataRows returns the table's body rows, header and totals excluded.
func dataRows(t Table) (top, bot int) {
	full := t.Range.Normalize()
	top = full.StartRow
	if t.HeaderRow {
		top++
	}
	return top, full.EndRow - t.TotalsRows
}

// tableColumnIndex resolves a column for dependency analysis, which
// runs on the host goroutine outside any evaluation pass.
func (e *Engine) tableColumnIndex(t Table, name string) (int, bool) {
	return tableColumnAt(t, name, e.loc, e.effective)
}

// tableColumnAt finds a column by its header text, case-insensitively,
// reading header cells through the supplied accessor.
func tableColumnAt(t Table, name string, loc *locale.Locale, read func(ref.CellKey) value.Value) (int, bool) {
	if !t.HeaderRow {
		return 0, false
	}
	full := t.Range.Normalize()
	for c := full.StartCol; c <= full.EndCol; c++ {
		cell := read(ref.Key(t.Sheet, ref.Addr{Row: full.StartRow, Col: c}))
		if text, err := value.ToText(cell, loc); err == nil && strings.EqualFold(text, name) {
			return c, true
		}
	}
	return 0, false
}

// RegisterFunction adds a host function. Compiled programs hold
// resolved descriptors, so the cache drops and every formula
// re-evaluates; cells that called the name as an unknown lose their
// #NAME?.
func (e *Engine) RegisterFunction(d fn.Descriptor) error {
	if err := e.fns.Register(d); err != nil {
		return err
	}
	e.cache.Reset()
	for key, cf := range e.cells {
		if cf.expr != nil {
			cf.volatile = e.anyVolatile(cf.analysis.Funcs)
			if cf.volatile {
				e.volatile[key] = true
			}
		}
		e.dirty[key] = true
	}
	e.graphStale = true
	return nil
}

// SetMetadata sets a workbook-level property served to INFO and CELL.
func (e *Engine) SetMetadata(key, val string) {
	e.meta[key] = val
	for cell := range e.volatile {
		e.dirty[cell] = true
	}
}

// SetSheetMetadata sets a per-sheet property override.
func (e *Engine) SetSheetMetadata(sheet, key, val string) {
	e.touchSheet(sheet)
	m := e.sheetMeta[sheet]
	if m == nil {
		m = make(map[string]string)
		e.sheetMeta[sheet] = m
	}
	m[key] = val
	for cell := range e.volatile {
		e.dirty[cell] = true
	}
}

// effective resolves what a reference to the cell sees: spilled cells
// read their element out of the anchor's array, and an anchor holding
// an array reads its top-left corner.
func (e *Engine) effective(key ref.CellKey) value.Value {
	v := e.grid.Value(key)
	switch v.Kind() {
	case value.KindSpill:
		anchor := v.SpillAnchor()
		arr := e.grid.Value(anchor)
		if !arr.IsArray() {
			return value.Value{}
		}
		return arr.At(key.Row-anchor.Row, key.Col-anchor.Col)
	case value.KindArray:
		return v.At(0, 0)
	default:
		return v
	}
}

// sheetRun expands a sheet span over the workbook sheet order.
func (e *Engine) sheetRun(span ref.SheetSpan) ([]string, bool) {
	if span.Single() {
		if e.known[span.First] {
			return []string{span.First}, true
		}
		return nil, false
	}
	first, last := -1, -1
	for i, name := range e.order {
		if name == span.First {
			first = i
		}
		if name == span.Last {
			last = i
		}
	}
	if first < 0 || last < 0 {
		return nil, false
	}
	if first > last {
		first, last = last, first
	}
	return slices.Clone(e.order[first : last+1]), true
}

// clearSpill is the host-edit path for removing a spill: reverted
// cells join the dirty set so their readers re-evaluate.
func (e *Engine) clearSpill(key ref.CellKey) {
	for _, k := range e.clearSpillLocked(key) {
		e.dirty[k] = true
	}
}

// dirtyBlockedAnchors re-dirties every #SPILL! anchor whose wanted
// extent covers an edited cell. Clearing the obstruction lets the
// anchor spill on the next pass.
func (e *Engine) dirtyBlockedAnchors(key ref.CellKey) {
	for anchor, want := range e.blocked {
		if want.Sheet == key.Sheet && want.Contains(key.Addr()) {
			e.dirty[anchor] = true
		}
	}
}
