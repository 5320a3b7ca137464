package fn

import (
	"strconv"
	"strings"

	"github.com/leapstack-labs/leapcalc/pkg/formula"
	"github.com/leapstack-labs/leapcalc/pkg/ref"
	"github.com/leapstack-labs/leapcalc/pkg/value"
)

func lookupBuiltins() []Descriptor {
	return []Descriptor{
		// CHOOSE evaluates only the picked branch, so the evaluator
		// owns its arguments like the other control-flow forms.
		{Name: "CHOOSE", Category: CategoryLookup, MinArgs: 2, MaxArgs: -1, Lazy: true},

		{Name: "INDEX", Category: CategoryLookup, MinArgs: 2, MaxArgs: 3, Impl: fnIndex},
		{Name: "MATCH", Category: CategoryLookup, MinArgs: 2, MaxArgs: 3, Impl: fnMatch},
		{Name: "VLOOKUP", Category: CategoryLookup, MinArgs: 3, MaxArgs: 4, Impl: fnVLookup},
		{Name: "HLOOKUP", Category: CategoryLookup, MinArgs: 3, MaxArgs: 4, Impl: fnHLookup},
		{Name: "LOOKUP", Category: CategoryLookup, MinArgs: 2, MaxArgs: 3, Impl: fnLookup},
		{Name: "OFFSET", Category: CategoryLookup, MinArgs: 3, MaxArgs: 5, Volatile: true, Impl: fnOffset},
		{Name: "INDIRECT", Category: CategoryLookup, MinArgs: 1, MaxArgs: 2, Volatile: true, Impl: fnIndirect},
		{Name: "ROW", Category: CategoryLookup, MinArgs: 0, MaxArgs: 1, Impl: fnRow},
		{Name: "COLUMN", Category: CategoryLookup, MinArgs: 0, MaxArgs: 1, Impl: fnColumn},
		{Name: "ROWS", Category: CategoryLookup, MinArgs: 1, MaxArgs: 1, Impl: fnRows},
		{Name: "COLUMNS", Category: CategoryLookup, MinArgs: 1, MaxArgs: 1, Impl: fnColumns},
		{Name: "TRANSPOSE", Category: CategoryLookup, MinArgs: 1, MaxArgs: 1, Impl: fnTranspose},
		{Name: "ADDRESS", Category: CategoryLookup, MinArgs: 2, MaxArgs: 5, Impl: fnAddress},
	}
}

func fnIndex(c *Call) value.Value {
	v, errv := viewOf(c.Env, c.Arg(0))
	if errv.IsError() {
		return errv
	}
	row, err := c.Int(1)
	if err != nil {
		return value.FromError(err)
	}

	if c.Arg(2).IsMissing() {
		// Single-vector input treats the one index as position along
		// the vector; a true rectangle yields the whole indexed row.
		switch {
		case row == 0:
			return sliceArray(v, 0, 0)
		case v.rows == 1 && v.cols > 1:
			return indexAt(v, 1, row)
		case v.cols == 1:
			return indexAt(v, row, 1)
		default:
			return sliceArray(v, row, 0)
		}
	}

	col, err := c.Int(2)
	if err != nil {
		return value.FromError(err)
	}
	if row == 0 || col == 0 {
		return sliceArray(v, row, col)
	}
	return indexAt(v, row, col)
}

func indexAt(v *view, row, col int) value.Value {
	if row < 1 || row > v.rows || col < 1 || col > v.cols {
		return value.Error(value.ErrRef)
	}
	return v.at(row-1, col-1)
}

// sliceArray returns a whole row (col == 0), a whole column
// (row == 0), or the full rectangle (both zero) as an array value.
func sliceArray(v *view, row, col int) value.Value {
	if row < 0 || row > v.rows || col < 0 || col > v.cols {
		return value.Error(value.ErrRef)
	}
	r0, r1 := 0, v.rows
	if row > 0 {
		r0, r1 = row-1, row
	}
	c0, c1 := 0, v.cols
	if col > 0 {
		c0, c1 = col-1, col
	}
	rows := make([][]value.Value, 0, r1-r0)
	for r := r0; r < r1; r++ {
		line := make([]value.Value, 0, c1-c0)
		for cc := c0; cc < c1; cc++ {
			line = append(line, v.at(r, cc))
		}
		rows = append(rows, line)
	}
	if len(rows) == 1 && len(rows[0]) == 1 {
		return rows[0][0]
	}
	return value.NewArray(rows)
}

// lookupRel compares a vector element against the lookup value.
// Only like kinds compare; text is case-insensitive. ok is false for
// mixed kinds, blanks and errors, which approximate matching skips.
func lookupRel(elem, target value.Value) (int, bool) {
	switch {
	case elem.IsNumber() && target.IsNumber():
		switch {
		case elem.Num() < target.Num():
			return -1, true
		case elem.Num() > target.Num():
			return 1, true
		}
		return 0, true
	case elem.IsText() && target.IsText():
		return strings.Compare(strings.ToUpper(elem.Str()), strings.ToUpper(target.Str())), true
	case elem.IsBool() && target.IsBool():
		return boolRel(elem.Bool(), target.Bool()), true
	}
	return 0, false
}

// exactHit is lookupRel for exact mode: text targets match their
// wildcards against text elements.
func exactHit(elem, target value.Value) bool {
	if target.IsText() && elem.IsText() {
		return wildcardMatch(target.Str(), elem.Str())
	}
	rel, ok := lookupRel(elem, target)
	return ok && rel == 0
}

// vectorView flattens a 1-D view to an accessor, refusing rectangles.
func vectorView(v *view) (n int, at func(int) value.Value, ok bool) {
	switch {
	case v.rows == 1:
		return v.cols, func(i int) value.Value { return v.at(0, i) }, true
	case v.cols == 1:
		return v.rows, func(i int) value.Value { return v.at(i, 0) }, true
	}
	return 0, nil, false
}

// matchScan finds the 0-based hit position in a vector for the three
// MATCH modes: 1 takes the last element not above the target, 0 takes
// the first exact (or wildcard) hit, -1 takes the last element not
// below the target and stops once elements fall under it.
func matchScan(target value.Value, n int, at func(int) value.Value, mode int) int {
	found := -1
	for i := 0; i < n; i++ {
		elem := at(i)
		switch {
		case mode == 0:
			if exactHit(elem, target) {
				return i
			}
		case mode > 0:
			if rel, ok := lookupRel(elem, target); ok && rel <= 0 {
				found = i
			}
		default:
			rel, ok := lookupRel(elem, target)
			if ok && rel < 0 {
				return found
			}
			if ok {
				found = i
			}
		}
	}
	return found
}

func fnMatch(c *Call) value.Value {
	target := c.Scalar(0)
	if target.IsError() {
		return target
	}
	v, errv := viewOf(c.Env, c.Arg(1))
	if errv.IsError() {
		return errv
	}
	mode, err := c.IntOr(2, 1)
	if err != nil {
		return value.FromError(err)
	}
	n, at, ok := vectorView(v)
	if !ok {
		return value.Error(value.ErrNA)
	}
	found := matchScan(target, n, at, mode)
	if found < 0 {
		return value.Error(value.ErrNA)
	}
	return value.Number(float64(found + 1))
}

func fnVLookup(c *Call) value.Value {
	return tableLookup(c, false)
}

func fnHLookup(c *Call) value.Value {
	return tableLookup(c, true)
}

// tableLookup drives VLOOKUP and HLOOKUP over one view: scan the first
// column (or row), return the indexed column (or row) of the hit.
func tableLookup(c *Call, horizontal bool) value.Value {
	target := c.Scalar(0)
	if target.IsError() {
		return target
	}
	v, errv := viewOf(c.Env, c.Arg(1))
	if errv.IsError() {
		return errv
	}
	idx, err := c.Int(2)
	if err != nil {
		return value.FromError(err)
	}
	approx, err := c.BoolOr(3, true)
	if err != nil {
		return value.FromError(err)
	}

	n, depth := v.rows, v.cols
	if horizontal {
		n, depth = v.cols, v.rows
	}
	if idx < 1 {
		return value.Error(value.ErrValue)
	}
	if idx > depth {
		return value.Error(value.ErrRef)
	}

	keyAt := func(i int) value.Value {
		if horizontal {
			return v.at(0, i)
		}
		return v.at(i, 0)
	}
	mode := 0
	if approx {
		mode = 1
	}
	found := matchScan(target, n, keyAt, mode)
	if found < 0 {
		return value.Error(value.ErrNA)
	}
	if horizontal {
		return v.at(idx-1, found)
	}
	return v.at(found, idx-1)
}

func fnLookup(c *Call) value.Value {
	target := c.Scalar(0)
	if target.IsError() {
		return target
	}
	v, errv := viewOf(c.Env, c.Arg(1))
	if errv.IsError() {
		return errv
	}

	if c.Arg(2).IsMissing() {
		// Array form: a wide rectangle searches its first row and
		// answers from the last, a tall one works by columns.
		if v.rows > 1 && v.cols > 1 {
			if v.cols > v.rows {
				found := matchScan(target, v.cols, func(i int) value.Value { return v.at(0, i) }, 1)
				if found < 0 {
					return value.Error(value.ErrNA)
				}
				return v.at(v.rows-1, found)
			}
			found := matchScan(target, v.rows, func(i int) value.Value { return v.at(i, 0) }, 1)
			if found < 0 {
				return value.Error(value.ErrNA)
			}
			return v.at(found, v.cols-1)
		}
		n, at, ok := vectorView(v)
		if !ok {
			return value.Error(value.ErrNA)
		}
		found := matchScan(target, n, at, 1)
		if found < 0 {
			return value.Error(value.ErrNA)
		}
		return at(found)
	}

	result, errv := viewOf(c.Env, c.Arg(2))
	if errv.IsError() {
		return errv
	}
	n, at, ok := vectorView(v)
	if !ok {
		return value.Error(value.ErrNA)
	}
	rn, rat, ok := vectorView(result)
	if !ok {
		return value.Error(value.ErrNA)
	}
	found := matchScan(target, n, at, 1)
	if found < 0 || found >= rn {
		return value.Error(value.ErrNA)
	}
	return rat(found)
}

func fnOffset(c *Call) value.Value {
	base := c.Arg(0)
	if base.IsError() {
		return base
	}
	if !base.IsRef() || len(base.Areas()) != 1 {
		return value.Error(value.ErrValue)
	}
	rows, err := c.Int(1)
	if err != nil {
		return value.FromError(err)
	}
	cols, err := c.Int(2)
	if err != nil {
		return value.FromError(err)
	}

	a := base.Areas()[0]
	rect := a.Rect
	rect.StartRow += rows
	if rect.EndRow != ref.Unbounded {
		rect.EndRow += rows
	}
	rect.StartCol += cols
	if rect.EndCol != ref.Unbounded {
		rect.EndCol += cols
	}

	if !c.Arg(3).IsMissing() {
		h, herr := c.Int(3)
		if herr != nil {
			return value.FromError(herr)
		}
		if h < 1 {
			return value.Error(value.ErrRef)
		}
		rect.EndRow = rect.StartRow + h - 1
	}
	if !c.Arg(4).IsMissing() {
		w, werr := c.Int(4)
		if werr != nil {
			return value.FromError(werr)
		}
		if w < 1 {
			return value.Error(value.ErrRef)
		}
		rect.EndCol = rect.StartCol + w - 1
	}

	if rect.StartRow < 0 || rect.StartCol < 0 ||
		(rect.EndRow != ref.Unbounded && rect.EndRow >= ref.MaxRows) ||
		(rect.EndCol != ref.Unbounded && rect.EndCol >= ref.MaxCols) {
		return value.Error(value.ErrRef)
	}
	return value.Reference(ref.Area{Book: a.Book, Sheets: a.Sheets, Rect: rect})
}

// fnIndirect turns reference text into a live reference. External
// workbook text always fails: dynamic references stay inside the
// workbook, whatever the provider could answer.
func fnIndirect(c *Call) value.Value {
	text, err := c.Text(0)
	if err != nil {
		return value.FromError(err)
	}
	a1Mode, err := c.BoolOr(1, true)
	if err != nil {
		return value.FromError(err)
	}
	origin := c.Env.Origin()

	if !a1Mode {
		rect, ok := formula.ParseR1C1(text, origin)
		if !ok {
			return value.Error(value.ErrRef)
		}
		return value.Reference(ref.AreaOf(origin.Sheet, rect))
	}

	e, perr := formula.ParseReference(text, origin, c.Env.Locale())
	if perr != nil {
		return value.Error(value.ErrRef)
	}
	if name, ok := e.(*formula.NameRef); ok {
		v, found := c.Env.ResolveName(nameScope(name, origin.Sheet), name.Name)
		if !found {
			return value.Error(value.ErrRef)
		}
		return v
	}
	an := formula.Analyze(e, origin, origin.Sheet)
	if an.Dynamic || len(an.Areas) != 1 {
		return value.Error(value.ErrRef)
	}
	area := an.Areas[0]
	if area.External() {
		return value.Error(value.ErrRef)
	}
	return value.Reference(area)
}

func nameScope(n *formula.NameRef, origin string) string {
	if n.Sheet != "" {
		return n.Sheet
	}
	return origin
}

func fnRow(c *Call) value.Value {
	return axisOf(c, true)
}

func fnColumn(c *Call) value.Value {
	return axisOf(c, false)
}

// axisOf answers ROW and COLUMN: the origin's own coordinate without
// an argument, the top-left coordinate of the referenced area with
// one.
func axisOf(c *Call, rowAxis bool) value.Value {
	arg := c.Arg(0)
	if arg.IsMissing() {
		if rowAxis {
			return value.Number(float64(c.Env.Origin().Row + 1))
		}
		return value.Number(float64(c.Env.Origin().Col + 1))
	}
	if arg.IsError() {
		return arg
	}
	if !arg.IsRef() || len(arg.Areas()) == 0 {
		return value.Error(value.ErrValue)
	}
	tl := arg.Areas()[0].Rect.TopLeft()
	if rowAxis {
		return value.Number(float64(tl.Row + 1))
	}
	return value.Number(float64(tl.Col + 1))
}

func fnRows(c *Call) value.Value {
	return extentOf(c, true)
}

func fnColumns(c *Call) value.Value {
	return extentOf(c, false)
}

// extentOf answers ROWS and COLUMNS from the written shape of the
// argument. Open bounds span the whole sheet axis.
func extentOf(c *Call, rowAxis bool) value.Value {
	arg := c.Arg(0)
	if arg.IsError() {
		return arg
	}
	if arg.IsArray() {
		rows, cols := arg.Dims()
		if rowAxis {
			return value.Number(float64(rows))
		}
		return value.Number(float64(cols))
	}
	if !arg.IsRef() || len(arg.Areas()) != 1 {
		return value.Error(value.ErrValue)
	}
	rect := arg.Areas()[0].Rect
	if rowAxis {
		if n := rect.Rows(); n >= 0 {
			return value.Number(float64(n))
		}
		return value.Number(float64(ref.MaxRows))
	}
	if n := rect.Cols(); n >= 0 {
		return value.Number(float64(n))
	}
	return value.Number(float64(ref.MaxCols))
}

func fnTranspose(c *Call) value.Value {
	v, errv := viewOf(c.Env, c.Arg(0))
	if errv.IsError() {
		return errv
	}
	if v.rows == 1 && v.cols == 1 {
		return v.at(0, 0)
	}
	rows := make([][]value.Value, v.cols)
	for cc := 0; cc < v.cols; cc++ {
		line := make([]value.Value, v.rows)
		for r := 0; r < v.rows; r++ {
			line[r] = v.at(r, cc)
		}
		rows[cc] = line
	}
	return value.NewArray(rows)
}

func fnAddress(c *Call) value.Value {
	row, err := c.Int(0)
	if err != nil {
		return value.FromError(err)
	}
	col, err := c.Int(1)
	if err != nil {
		return value.FromError(err)
	}
	abs, err := c.IntOr(2, 1)
	if err != nil {
		return value.FromError(err)
	}
	a1Mode, err := c.BoolOr(3, true)
	if err != nil {
		return value.FromError(err)
	}
	if row < 1 || row > ref.MaxRows || col < 1 || col > ref.MaxCols || abs < 1 || abs > 4 {
		return value.Error(value.ErrValue)
	}

	absRow := abs == 1 || abs == 2
	absCol := abs == 1 || abs == 3
	var cell string
	if a1Mode {
		cell = ref.A1{
			Addr:   ref.Addr{Row: row - 1, Col: col - 1},
			AbsRow: absRow,
			AbsCol: absCol,
		}.String()
	} else {
		cell = r1c1Axis("R", row, absRow) + r1c1Axis("C", col, absCol)
	}

	if c.Arg(4).IsMissing() {
		return value.Text(cell)
	}
	sheet, err := c.Text(4)
	if err != nil {
		return value.FromError(err)
	}
	return value.Text(ref.QuoteSheet(sheet) + "!" + cell)
}

func r1c1Axis(prefix string, n int, abs bool) string {
	if abs {
		return prefix + strconv.Itoa(n)
	}
	return prefix + "[" + strconv.Itoa(n) + "]"
}
