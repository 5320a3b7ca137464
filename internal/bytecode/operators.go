package bytecode

import (
	"math"

	"github.com/leapstack-labs/leapcalc/internal/fn"
	"github.com/leapstack-labs/leapcalc/pkg/formula"
	"github.com/leapstack-labs/leapcalc/pkg/ref"
	"github.com/leapstack-labs/leapcalc/pkg/value"
)

// maxArrayCells caps how many cells a reference may materialize into
// an in-memory array before the operation reports #NUM!.
const maxArrayCells = 1 << 20

// Materialize resolves a reference operand to the value it denotes: a
// single cell reads through the grid or the external provider, a
// rectangle becomes a 2-D array, and open bounds clamp to the sheet's
// used extent first. Reference unions and 3-D spans have no value
// form and yield #VALUE!. Non-reference operands pass through.
//
// The same resolution runs on a formula's final result, which is how
// =A1 stores A1's value and =A1:B2 stores the array it spills.
func Materialize(env fn.Env, v value.Value) value.Value {
	if !v.IsRef() {
		return v
	}
	areas := v.Areas()
	if len(areas) != 1 {
		return value.Error(value.ErrValue)
	}
	a := areas[0]
	if !a.Sheets.Single() {
		return value.Error(value.ErrValue)
	}
	rect := a.Rect
	if !rect.Bounded() {
		if a.External() {
			return value.Error(value.ErrValue)
		}
		rows, cols := env.Dims(a.Sheets.First)
		rect = clampOpen(rect, rows, cols)
	}
	if rect.Single() {
		clamped := a
		clamped.Rect = rect
		return fn.Deref(env, value.Reference(clamped))
	}
	if rect.Count() > maxArrayCells {
		return value.Error(value.ErrNum)
	}
	if a.External() {
		key, _ := a.ExternalKey()
		out := make([][]value.Value, rect.Rows())
		for i := range out {
			row := make([]value.Value, rect.Cols())
			for j := range row {
				cv, ok := env.External(key, ref.Addr{Row: rect.StartRow + i, Col: rect.StartCol + j})
				if !ok {
					cv = value.Error(value.ErrRef)
				}
				row[j] = cv
			}
			out[i] = row
		}
		return value.NewArray(out)
	}
	if _, ok := env.SpanSheets(a.Sheets); !ok {
		return value.Error(value.ErrRef)
	}
	sheet := a.Sheets.First
	out := make([][]value.Value, rect.Rows())
	for i := range out {
		row := make([]value.Value, rect.Cols())
		for j := range row {
			row[j] = env.CellValue(ref.CellKey{Sheet: sheet, Row: rect.StartRow + i, Col: rect.StartCol + j})
		}
		out[i] = row
	}
	return value.NewArray(out)
}

// clampOpen closes open bounds against the used extent. An open range
// on an empty axis collapses to its first cell, reading blank.
func clampOpen(r ref.Range, rows, cols int) ref.Range {
	if r.StartRow == ref.Unbounded || r.EndRow == ref.Unbounded {
		r.StartRow = 0
		r.EndRow = rows - 1
	}
	if r.StartCol == ref.Unbounded || r.EndCol == ref.Unbounded {
		r.StartCol = 0
		r.EndCol = cols - 1
	}
	if r.EndRow < r.StartRow {
		r.EndRow = r.StartRow
	}
	if r.EndCol < r.StartCol {
		r.EndCol = r.StartCol
	}
	return r
}

// ApplyBinary evaluates one infix operator over two operands. Union
// and intersection act on raw references; every other operator
// materializes its operands and broadcasts element-wise when either
// side is an array.
func ApplyBinary(env fn.Env, op formula.Op, left, right value.Value) value.Value {
	switch op {
	case formula.OpUnion:
		return refUnion(left, right)
	case formula.OpIntersect:
		return refIntersect(left, right)
	}
	l := Materialize(env, left)
	r := Materialize(env, right)
	if l.IsArray() || r.IsArray() {
		return broadcast(env, op, l, r)
	}
	return scalarBinary(env, op, l, r)
}

func scalarBinary(env fn.Env, op formula.Op, a, b value.Value) value.Value {
	if a.IsError() {
		return a
	}
	if b.IsError() {
		return b
	}
	loc := env.Locale()
	switch op {
	case formula.OpAdd, formula.OpSub, formula.OpMul, formula.OpDiv, formula.OpPow:
		x, err := value.ToNumber(a, loc)
		if err != nil {
			return value.FromError(err)
		}
		y, err := value.ToNumber(b, loc)
		if err != nil {
			return value.FromError(err)
		}
		switch op {
		case formula.OpAdd:
			return value.Number(x + y)
		case formula.OpSub:
			return value.Number(x - y)
		case formula.OpMul:
			return value.Number(x * y)
		case formula.OpDiv:
			if y == 0 {
				return value.Error(value.ErrDiv0)
			}
			return value.Number(x / y)
		default:
			if x == 0 && y == 0 {
				return value.Error(value.ErrNum)
			}
			if x == 0 && y < 0 {
				return value.Error(value.ErrDiv0)
			}
			return value.Number(math.Pow(x, y))
		}
	case formula.OpConcat:
		sa, err := value.ToText(a, loc)
		if err != nil {
			return value.FromError(err)
		}
		sb, err := value.ToText(b, loc)
		if err != nil {
			return value.FromError(err)
		}
		return value.Text(sa + sb)
	case formula.OpEQ, formula.OpNE, formula.OpLT, formula.OpGT, formula.OpLE, formula.OpGE:
		c, err := value.Compare(a, b)
		if err != nil {
			return value.FromError(err)
		}
		switch op {
		case formula.OpEQ:
			return value.Bool(c == 0)
		case formula.OpNE:
			return value.Bool(c != 0)
		case formula.OpLT:
			return value.Bool(c < 0)
		case formula.OpGT:
			return value.Bool(c > 0)
		case formula.OpLE:
			return value.Bool(c <= 0)
		default:
			return value.Bool(c >= 0)
		}
	}
	return value.Error(value.ErrValue)
}

// broadcast applies a scalar operator over array operands. Dimensions
// of one stretch across the other side; positions a smaller array
// cannot cover read as #N/A.
func broadcast(env fn.Env, op formula.Op, a, b value.Value) value.Value {
	ra, ca := a.Dims()
	rb, cb := b.Dims()
	rows, cols := max(ra, rb), max(ca, cb)
	if rows*cols > maxArrayCells {
		return value.Error(value.ErrNum)
	}
	out := make([][]value.Value, rows)
	for i := range out {
		row := make([]value.Value, cols)
		for j := range row {
			row[j] = scalarBinary(env, op, broadcastAt(a, i, j, ra, ca), broadcastAt(b, i, j, rb, cb))
		}
		out[i] = row
	}
	return value.NewArray(out)
}

func broadcastAt(v value.Value, i, j, rows, cols int) value.Value {
	if rows == 1 {
		i = 0
	}
	if cols == 1 {
		j = 0
	}
	return v.At(i, j)
}

// ApplyUnary evaluates a prefix operator or the postfix percent.
// Unary plus is the identity, matching how spreadsheets leave +"x"
// untouched; implicit intersection picks the operand's cell in the
// origin's row or column.
func ApplyUnary(env fn.Env, op formula.Op, v value.Value) value.Value {
	if op == formula.OpImplicit {
		return implicitIntersect(env, v)
	}
	m := Materialize(env, v)
	if m.IsArray() {
		src := m.Rows()
		out := make([][]value.Value, len(src))
		for i, row := range src {
			dst := make([]value.Value, len(row))
			for j, el := range row {
				dst[j] = unaryScalar(env, op, el)
			}
			out[i] = dst
		}
		return value.NewArray(out)
	}
	return unaryScalar(env, op, m)
}

func unaryScalar(env fn.Env, op formula.Op, v value.Value) value.Value {
	if v.IsError() {
		return v
	}
	switch op {
	case formula.OpPos:
		return v
	case formula.OpNeg:
		x, err := value.ToNumber(v, env.Locale())
		if err != nil {
			return value.FromError(err)
		}
		return value.Number(-x)
	case formula.OpPercent:
		x, err := value.ToNumber(v, env.Locale())
		if err != nil {
			return value.FromError(err)
		}
		return value.Number(x / 100)
	}
	return value.Error(value.ErrValue)
}

func implicitIntersect(env fn.Env, v value.Value) value.Value {
	if v.IsError() {
		return v
	}
	if v.IsArray() {
		return v.At(0, 0)
	}
	if !v.IsRef() {
		return v
	}
	a, ok := singleArea(v)
	if !ok || a.External() || !a.Sheets.Single() {
		return value.Error(value.ErrValue)
	}
	rect := a.Rect
	if rect.Single() {
		return fn.Deref(env, v)
	}
	origin := env.Origin()
	oneCol := rect.StartCol != ref.Unbounded && rect.StartCol == rect.EndCol
	oneRow := rect.StartRow != ref.Unbounded && rect.StartRow == rect.EndRow
	switch {
	case oneCol && rowInside(rect, origin.Row):
		return env.CellValue(ref.CellKey{Sheet: a.Sheets.First, Row: origin.Row, Col: rect.StartCol})
	case oneRow && colInside(rect, origin.Col):
		return env.CellValue(ref.CellKey{Sheet: a.Sheets.First, Row: rect.StartRow, Col: origin.Col})
	}
	return value.Error(value.ErrValue)
}

func rowInside(r ref.Range, row int) bool {
	return (r.StartRow == ref.Unbounded || row >= r.StartRow) &&
		(r.EndRow == ref.Unbounded || row <= r.EndRow)
}

func colInside(r ref.Range, col int) bool {
	return (r.StartCol == ref.Unbounded || col >= r.StartCol) &&
		(r.EndCol == ref.Unbounded || col <= r.EndCol)
}

// JoinRange evaluates the ':' operator with at least one computed
// endpoint, such as OFFSET(A1,1,0):C10. Both sides must resolve to a
// single area under the same sheet qualifier; the result is their
// bounding rectangle.
func JoinRange(env fn.Env, left, right value.Value) value.Value {
	if left.IsError() {
		return left
	}
	if right.IsError() {
		return right
	}
	la, ok := singleArea(left)
	if !ok {
		return value.Error(value.ErrValue)
	}
	ra, ok := singleArea(right)
	if !ok {
		return value.Error(value.ErrValue)
	}
	if la.Book != ra.Book || la.Sheets != ra.Sheets {
		return value.Error(value.ErrValue)
	}
	joined := ref.Range{
		StartRow: openMin(la.Rect.StartRow, ra.Rect.StartRow),
		StartCol: openMin(la.Rect.StartCol, ra.Rect.StartCol),
		EndRow:   openMax(la.Rect.EndRow, ra.Rect.EndRow),
		EndCol:   openMax(la.Rect.EndCol, ra.Rect.EndCol),
	}
	return value.Reference(ref.Area{Book: la.Book, Sheets: la.Sheets, Rect: joined})
}

// SpillArea evaluates the postfix # operator: the operand must name a
// single cell that anchors a spill, and the result references the
// spilled rectangle.
func SpillArea(env Env, v value.Value) value.Value {
	if v.IsError() {
		return v
	}
	a, ok := singleArea(v)
	if !ok || a.External() || !a.Sheets.Single() || !a.Rect.Single() {
		return value.Error(value.ErrRef)
	}
	anchor := ref.CellKey{Sheet: a.Sheets.First, Row: a.Rect.StartRow, Col: a.Rect.StartCol}
	rng, ok := env.SpillExtent(anchor)
	if !ok {
		return value.Error(value.ErrRef)
	}
	return value.Reference(ref.AreaOf(anchor.Sheet, rng))
}

// Condition coerces an operand to the boolean a control-flow test
// needs, dereferencing a single-cell operand first. The error, when
// non-nil, is an ErrorKind and becomes the formula's result.
func Condition(env fn.Env, v value.Value) (bool, error) {
	return value.ToBool(fn.Deref(env, v), env.Locale())
}

// FirstError returns the leftmost error among evaluated arguments.
func FirstError(args []value.Value) (value.Value, bool) {
	for _, a := range args {
		if a.IsError() {
			return a, true
		}
	}
	return value.Value{}, false
}

// CallFunction invokes one eager builtin over evaluated arguments.
// Unless the descriptor inspects errors, an error argument becomes
// the result and the implementation never runs. Lazy descriptors
// carry no implementation; callers lower those to control flow.
func CallFunction(env fn.Env, d *fn.Descriptor, args []value.Value) value.Value {
	if !d.ErrorArgs {
		if errv, ok := FirstError(args); ok {
			return errv
		}
	}
	return d.Impl(&fn.Call{Env: env, Name: d.Name, Args: args})
}

func refUnion(left, right value.Value) value.Value {
	if left.IsError() {
		return left
	}
	if right.IsError() {
		return right
	}
	if !left.IsRef() || !right.IsRef() {
		return value.Error(value.ErrValue)
	}
	areas := make([]ref.Area, 0, len(left.Areas())+len(right.Areas()))
	areas = append(areas, left.Areas()...)
	areas = append(areas, right.Areas()...)
	return value.Reference(areas...)
}

func refIntersect(left, right value.Value) value.Value {
	if left.IsError() {
		return left
	}
	if right.IsError() {
		return right
	}
	if !left.IsRef() || !right.IsRef() {
		return value.Error(value.ErrValue)
	}
	var out []ref.Area
	for _, a := range left.Areas() {
		for _, b := range right.Areas() {
			if a.Book != b.Book || a.Sheets != b.Sheets {
				continue
			}
			if r, ok := intersectRect(a.Rect, b.Rect); ok {
				out = append(out, ref.Area{Book: a.Book, Sheets: a.Sheets, Rect: r})
			}
		}
	}
	if len(out) == 0 {
		return value.Error(value.ErrNull)
	}
	return value.Reference(out...)
}

func intersectRect(a, b ref.Range) (ref.Range, bool) {
	r := ref.Range{
		StartRow: closedMax(a.StartRow, b.StartRow),
		StartCol: closedMax(a.StartCol, b.StartCol),
		EndRow:   closedMin(a.EndRow, b.EndRow),
		EndCol:   closedMin(a.EndCol, b.EndCol),
	}
	if r.StartRow != ref.Unbounded && r.EndRow != ref.Unbounded && r.StartRow > r.EndRow {
		return ref.Range{}, false
	}
	if r.StartCol != ref.Unbounded && r.EndCol != ref.Unbounded && r.StartCol > r.EndCol {
		return ref.Range{}, false
	}
	return r, true
}

// closedMax treats Unbounded as the loosest start bound.
func closedMax(a, b int) int {
	if a == ref.Unbounded {
		return b
	}
	if b == ref.Unbounded {
		return a
	}
	return max(a, b)
}

// closedMin treats Unbounded as the loosest end bound.
func closedMin(a, b int) int {
	if a == ref.Unbounded {
		return b
	}
	if b == ref.Unbounded {
		return a
	}
	return min(a, b)
}

// openMin treats Unbounded as reaching past every finite start.
func openMin(a, b int) int {
	if a == ref.Unbounded || b == ref.Unbounded {
		return ref.Unbounded
	}
	return min(a, b)
}

// openMax treats Unbounded as reaching past every finite end.
func openMax(a, b int) int {
	if a == ref.Unbounded || b == ref.Unbounded {
		return ref.Unbounded
	}
	return max(a, b)
}

func singleArea(v value.Value) (ref.Area, bool) {
	if !v.IsRef() {
		return ref.Area{}, false
	}
	areas := v.Areas()
	if len(areas) != 1 {
		return ref.Area{}, false
	}
	return areas[0], true
}
