package fn

import (
	"github.com/leapstack-labs/leapcalc/pkg/ref"
	"github.com/leapstack-labs/leapcalc/pkg/value"
)

// clampRect resolves open bounds against a sheet's used extent and
// trims bounded rectangles to it. Cells beyond the extent hold
// nothing, so value streams are unchanged; blank counting recovers
// the trimmed cells arithmetically via fullCount.
func clampRect(env Env, sheet string, r ref.Range) (ref.Range, bool) {
	rows, cols := env.Dims(sheet)
	if r.StartRow == ref.Unbounded {
		r.StartRow = 0
	}
	if r.StartCol == ref.Unbounded {
		r.StartCol = 0
	}
	if r.EndRow == ref.Unbounded || r.EndRow > rows-1 {
		r.EndRow = rows - 1
	}
	if r.EndCol == ref.Unbounded || r.EndCol > cols-1 {
		r.EndCol = cols - 1
	}
	if r.StartRow > r.EndRow || r.StartCol > r.EndCol {
		return ref.Range{}, false
	}
	return r, true
}

// fullCount returns the cell count of a rectangle with open bounds
// replaced by the sheet limits.
func fullCount(r ref.Range) int {
	sr, sc, er, ec := r.StartRow, r.StartCol, r.EndRow, r.EndCol
	if sr == ref.Unbounded {
		sr = 0
	}
	if sc == ref.Unbounded {
		sc = 0
	}
	if er == ref.Unbounded {
		er = ref.MaxRows - 1
	}
	if ec == ref.Unbounded {
		ec = ref.MaxCols - 1
	}
	if er < sr || ec < sc {
		return 0
	}
	return (er - sr + 1) * (ec - sc + 1)
}

// areaCells streams every stored cell of an area, one sheet of the
// span at a time, clamped to used extents. The returned value is an
// error value when the area cannot be resolved (unknown sheet,
// unmapped external cell), otherwise the zero Value. emit returning
// false stops the walk early without error.
func areaCells(env Env, a ref.Area, emit func(v value.Value) bool) value.Value {
	if a.External() {
		key, _ := a.ExternalKey()
		if !a.Rect.Bounded() {
			return value.Error(value.ErrRef)
		}
		for row := a.Rect.StartRow; row <= a.Rect.EndRow; row++ {
			for col := a.Rect.StartCol; col <= a.Rect.EndCol; col++ {
				cv, ok := env.External(key, ref.Addr{Row: row, Col: col})
				if !ok {
					return value.Error(value.ErrRef)
				}
				if !emit(cv) {
					return value.Value{}
				}
			}
		}
		return value.Value{}
	}

	sheets, ok := env.SpanSheets(a.Sheets)
	if !ok {
		return value.Error(value.ErrRef)
	}
	for _, sheet := range sheets {
		r, any := clampRect(env, sheet, a.Rect)
		if !any {
			continue
		}
		for row := r.StartRow; row <= r.EndRow; row++ {
			for col := r.StartCol; col <= r.EndCol; col++ {
				if !emit(env.CellValue(ref.CellKey{Sheet: sheet, Row: row, Col: col})) {
					return value.Value{}
				}
			}
		}
	}
	return value.Value{}
}

// visit streams the scalar contents of one argument. Scalars come
// through directly (fromRange false); array elements and reference
// cells stream with fromRange true, which aggregations use to decide
// whether text and logicals coerce. The returned value is an error
// value when a reference fails to resolve.
func visit(env Env, v value.Value, emit func(v value.Value, fromRange bool) bool) value.Value {
	switch {
	case v.IsArray():
		rows, cols := v.Dims()
		for r := 0; r < rows; r++ {
			for c := 0; c < cols; c++ {
				if !emit(v.At(r, c), true) {
					return value.Value{}
				}
			}
		}
		return value.Value{}
	case v.IsRef():
		for _, a := range v.Areas() {
			if errv := areaCells(env, a, func(cv value.Value) bool {
				return emit(cv, true)
			}); errv.IsError() {
				return errv
			}
		}
		return value.Value{}
	default:
		emit(v, false)
		return value.Value{}
	}
}

// numbers streams the numeric content of the arguments from index
// `from` on, under aggregation rules: direct arguments coerce text
// and logicals (a blank direct argument counts as zero), while range
// and array elements only contribute stored numbers. The first error
// aborts the stream and comes back as an error value; otherwise the
// zero Value.
func numbers(c *Call, from int, each func(float64)) value.Value {
	for i := from; i < c.Len(); i++ {
		var failed value.Value
		errv := visit(c.Env, c.Arg(i), func(v value.Value, fromRange bool) bool {
			if v.IsError() {
				failed = v
				return false
			}
			if fromRange {
				if v.IsNumber() {
					each(v.Num())
				}
				return true
			}
			f, err := value.ToNumber(v, c.Env.Locale())
			if err != nil {
				failed = value.FromError(err)
				return false
			}
			each(f)
			return true
		})
		if errv.IsError() {
			return errv
		}
		if failed.IsError() {
			return failed
		}
	}
	return value.Value{}
}

// view is a rectangular read-only window over a reference area, an
// array, or a lone scalar, giving lookup functions one shape to work
// against. trimmed counts cells cut off by extent clamping; they are
// blank by construction.
type view struct {
	rows, cols int
	trimmed    int
	at         func(r, c int) value.Value
}

// viewOf builds a view over an argument. Reference arguments must be
// a single area on a single sheet; 3-D spans and unions have no
// rectangular shape and come back as #VALUE!.
func viewOf(env Env, v value.Value) (*view, value.Value) {
	switch {
	case v.IsArray():
		rows, cols := v.Dims()
		return &view{rows: rows, cols: cols, at: func(r, c int) value.Value { return v.At(r, c) }}, value.Value{}
	case v.IsRef():
		areas := v.Areas()
		if len(areas) != 1 || !areas[0].Sheets.Single() {
			return nil, value.Error(value.ErrValue)
		}
		a := areas[0]
		if a.External() {
			if !a.Rect.Bounded() {
				return nil, value.Error(value.ErrRef)
			}
			key, _ := a.ExternalKey()
			base := ref.Addr{Row: a.Rect.StartRow, Col: a.Rect.StartCol}
			return &view{
				rows: a.Rect.Rows(),
				cols: a.Rect.Cols(),
				at: func(r, c int) value.Value {
					cv, ok := env.External(key, ref.Addr{Row: base.Row + r, Col: base.Col + c})
					if !ok {
						return value.Error(value.ErrRef)
					}
					return cv
				},
			}, value.Value{}
		}
		sheet := a.Sheets.First
		if _, ok := env.SpanSheets(a.Sheets); !ok {
			return nil, value.Error(value.ErrRef)
		}
		// Bounded dimensions stay as written so column and row
		// indexes keep their meaning; only open bounds resolve
		// against the used extent.
		r := a.Rect
		rows, cols := env.Dims(sheet)
		if r.StartRow == ref.Unbounded {
			r.StartRow = 0
		}
		if r.StartCol == ref.Unbounded {
			r.StartCol = 0
		}
		if r.EndRow == ref.Unbounded {
			r.EndRow = rows - 1
		}
		if r.EndCol == ref.Unbounded {
			r.EndCol = cols - 1
		}
		if r.EndRow < r.StartRow || r.EndCol < r.StartCol {
			// Nothing stored inside an open-bounded area; expose one
			// blank cell so lookups see an empty rectangle rather
			// than an error.
			return &view{rows: 1, cols: 1, trimmed: fullCount(a.Rect) - 1,
				at: func(int, int) value.Value { return value.Empty() }}, value.Value{}
		}
		return &view{
			rows:    r.Rows(),
			cols:    r.Cols(),
			trimmed: fullCount(a.Rect) - r.Count(),
			at: func(rr, cc int) value.Value {
				return env.CellValue(ref.CellKey{Sheet: sheet, Row: r.StartRow + rr, Col: r.StartCol + cc})
			},
		}, value.Value{}
	case v.IsError():
		return nil, v
	default:
		return &view{rows: 1, cols: 1, at: func(int, int) value.Value { return v }}, value.Value{}
	}
}
