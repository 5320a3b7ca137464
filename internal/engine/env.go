package engine

import (
	"strings"
	"time"

	"github.com/leapstack-labs/leapcalc/pkg/formula"
	"github.com/leapstack-labs/leapcalc/pkg/locale"
	"github.com/leapstack-labs/leapcalc/pkg/ref"
	"github.com/leapstack-labs/leapcalc/pkg/value"
)

// evalEnv is the evaluation environment of one cell. It adapts engine
// state to the read surface functions and the VM expect, and carries
// the interpreter's lexical scope for LET bindings and lambda bodies.
//
// One evalEnv serves a whole component; origin moves from member to
// member. Shared pass state is locked, engine state is read-only
// during a pass.
type evalEnv struct {
	eng    *Engine
	pass   *passState
	origin ref.CellKey
	scope  *frame
	naming map[string]bool // defined names currently resolving
}

// frame is one lexical scope: LET bindings or lambda parameters.
type frame struct {
	parent *frame
	names  map[string]value.Value
}

func (f *frame) lookup(name string) (value.Value, bool) {
	for s := f; s != nil; s = s.parent {
		if v, ok := s.names[name]; ok {
			return v, true
		}
	}
	return value.Value{}, false
}

// boundLambda is a lambda value closed over the scope it was written
// in.
type boundLambda struct {
	params []string
	body   formula.Expr
	scope  *frame
}

// ParamCount implements value.Callable.
func (l *boundLambda) ParamCount() int { return len(l.params) }

func (ev *evalEnv) Origin() ref.CellKey { return ev.origin }

func (ev *evalEnv) Locale() *locale.Locale { return ev.eng.loc }

func (ev *evalEnv) Now() time.Time { return ev.pass.now }

func (ev *evalEnv) Rand() float64 {
	ev.pass.mu.Lock()
	defer ev.pass.mu.Unlock()
	return ev.eng.rng.Float64()
}

func (ev *evalEnv) CellValue(key ref.CellKey) value.Value {
	if ev.pass != nil {
		ev.pass.mu.Lock()
		defer ev.pass.mu.Unlock()
	}
	return ev.eng.effective(key)
}

func (ev *evalEnv) External(key ref.ExternalKey, a ref.Addr) (value.Value, bool) {
	if ev.eng.provider == nil {
		return value.Value{}, false
	}
	return ev.eng.provider.Resolve(key.String(), a)
}

func (ev *evalEnv) SpanSheets(span ref.SheetSpan) ([]string, bool) {
	return ev.eng.sheetRun(span)
}

func (ev *evalEnv) Dims(sheet string) (rows, cols int) {
	if ev.pass != nil {
		ev.pass.mu.Lock()
		defer ev.pass.mu.Unlock()
	}
	return ev.eng.grid.Dims(sheet)
}

func (ev *evalEnv) HasFormula(key ref.CellKey) bool {
	_, ok := ev.eng.cells[key]
	return ok
}

// ResolveName resolves a defined name visible from a sheet and
// evaluates its definition at the calling cell. A definition that
// reaches itself through other names resolves to #NAME?.
func (ev *evalEnv) ResolveName(sheet, name string) (value.Value, bool) {
	def, ok := ev.eng.lookupName(sheet, name)
	if !ok {
		return value.Value{}, false
	}
	mark := strings.ToUpper(sheet) + "!" + locale.NormalizeName(name)
	if ev.naming[mark] {
		return value.Error(value.ErrName), true
	}
	if ev.naming == nil {
		ev.naming = make(map[string]bool)
	}
	ev.naming[mark] = true
	v := ev.eval(def.expr)
	delete(ev.naming, mark)
	return v, true
}

func (ev *evalEnv) Meta(key string) (string, bool) {
	if m := ev.eng.sheetMeta[ev.origin.Sheet]; m != nil {
		if v, ok := m[key]; ok {
			return v, true
		}
	}
	v, ok := ev.eng.meta[key]
	return v, ok
}

func (ev *evalEnv) SpillExtent(anchor ref.CellKey) (ref.Range, bool) {
	if ev.pass != nil {
		ev.pass.mu.Lock()
		defer ev.pass.mu.Unlock()
	}
	r, ok := ev.eng.spills[anchor]
	return r, ok
}
