package fn

import (
	"math"
	"time"

	"github.com/leapstack-labs/leapcalc/pkg/locale"
	"github.com/leapstack-labs/leapcalc/pkg/ref"
	"github.com/leapstack-labs/leapcalc/pkg/value"
)

// Env is the evaluation environment the engine hands to function
// implementations. It abstracts the grid, the external value
// provider, the workbook's sheet list and the host metadata, so
// builtins stay independent of engine internals.
type Env interface {
	// Origin is the cell whose formula is being evaluated.
	Origin() ref.CellKey

	// Locale supplies number and boolean text forms for coercion.
	Locale() *locale.Locale

	// Now returns the evaluation timestamp. One recalculation pass
	// sees a single frozen instant.
	Now() time.Time

	// Rand returns the next pseudo-random float in [0, 1).
	Rand() float64

	// CellValue reads a cell of the host workbook, Empty when unset.
	CellValue(key ref.CellKey) value.Value

	// External resolves a cell of another workbook through the
	// configured provider. ok is false when no value is mapped.
	External(key ref.ExternalKey, a ref.Addr) (v value.Value, ok bool)

	// SpanSheets expands a sheet span to the workbook's sheet run in
	// order. ok is false when an endpoint does not exist.
	SpanSheets(span ref.SheetSpan) (sheets []string, ok bool)

	// Dims returns the used extent of a sheet, for clamping
	// unbounded references.
	Dims(sheet string) (rows, cols int)

	// HasFormula reports whether a cell holds a formula.
	HasFormula(key ref.CellKey) bool

	// ResolveName looks up a defined name, sheet-scoped first.
	ResolveName(sheet, name string) (value.Value, bool)

	// Meta returns host metadata for INFO and CELL, already resolved
	// for the origin sheet (per-sheet override before workbook
	// default).
	Meta(key string) (string, bool)
}

// Call carries one invocation: the environment, the canonical name
// and the evaluated arguments. An omitted trailing argument is simply
// absent; an explicitly empty slot (=IF(A1,,2)) arrives as Empty.
type Call struct {
	Env  Env
	Name string
	Args []value.Value
}

// Len returns the argument count.
func (c *Call) Len() int { return len(c.Args) }

// Arg returns the i-th argument, or Missing beyond the list.
func (c *Call) Arg(i int) value.Value {
	if i < 0 || i >= len(c.Args) {
		return value.Missing()
	}
	return c.Args[i]
}

// Scalar returns the i-th argument dereferenced to a scalar:
// single-cell references read through the grid or provider,
// multi-cell references refuse with #VALUE!.
func (c *Call) Scalar(i int) value.Value {
	return Deref(c.Env, c.Arg(i))
}

// Number coerces the i-th argument to a number under arithmetic
// rules. The error, when non-nil, is an ErrorKind.
func (c *Call) Number(i int) (float64, error) {
	return value.ToNumber(c.Scalar(i), c.Env.Locale())
}

// NumberOr is Number with a default for an omitted argument.
func (c *Call) NumberOr(i int, def float64) (float64, error) {
	v := c.Arg(i)
	if v.IsMissing() {
		return def, nil
	}
	return value.ToNumber(Deref(c.Env, v), c.Env.Locale())
}

// Int coerces the i-th argument to a number and truncates toward
// zero, as index and count arguments do.
func (c *Call) Int(i int) (int, error) {
	f, err := c.Number(i)
	if err != nil {
		return 0, err
	}
	return int(math.Trunc(f)), nil
}

// IntOr is Int with a default for an omitted argument.
func (c *Call) IntOr(i, def int) (int, error) {
	if c.Arg(i).IsMissing() {
		return def, nil
	}
	return c.Int(i)
}

// Text coerces the i-th argument to text under concatenation rules.
func (c *Call) Text(i int) (string, error) {
	return value.ToText(c.Scalar(i), c.Env.Locale())
}

// Bool coerces the i-th argument to a boolean.
func (c *Call) Bool(i int) (bool, error) {
	return value.ToBool(c.Scalar(i), c.Env.Locale())
}

// BoolOr is Bool with a default for an omitted argument.
func (c *Call) BoolOr(i int, def bool) (bool, error) {
	if c.Arg(i).IsMissing() {
		return def, nil
	}
	return c.Bool(i)
}

// Deref resolves a reference value to the scalar it names: exactly
// one cell on exactly one sheet. Multi-cell areas, sheet spans and
// reference unions have no scalar meaning and yield #VALUE!; an
// unmapped external cell yields #REF!. Non-reference values pass
// through.
func Deref(env Env, v value.Value) value.Value {
	if !v.IsRef() {
		return v
	}
	areas := v.Areas()
	if len(areas) != 1 {
		return value.Error(value.ErrValue)
	}
	a := areas[0]
	if !a.Sheets.Single() || !a.Rect.Single() {
		return value.Error(value.ErrValue)
	}
	addr := ref.Addr{Row: a.Rect.StartRow, Col: a.Rect.StartCol}
	if a.External() {
		key, _ := a.ExternalKey()
		cv, ok := env.External(key, addr)
		if !ok {
			return value.Error(value.ErrRef)
		}
		return cv
	}
	if _, ok := env.SpanSheets(a.Sheets); !ok {
		return value.Error(value.ErrRef)
	}
	return env.CellValue(ref.Key(a.Sheets.First, addr))
}
