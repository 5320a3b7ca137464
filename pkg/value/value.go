// Package value defines the calculation value model: a tagged union
// covering numbers, text, booleans, spreadsheet errors, 2-D arrays,
// reference payloads and lambdas, plus the Excel-compatible coercion
// and comparison rules the evaluator applies to them.
package value

import (
	"math"
	"strconv"
	"strings"

	"github.com/leapstack-labs/leapcalc/pkg/ref"
)

// Kind tags the variant a Value holds. The zero Value is Empty, which
// is what an untouched grid cell reads as.
type Kind uint8

const (
	KindEmpty Kind = iota
	KindMissing
	KindNumber
	KindText
	KindBool
	KindError
	KindArray
	KindRef
	KindRefUnion
	KindLambda
	KindSpill
)

var kindNames = [...]string{
	KindEmpty:    "empty",
	KindMissing:  "missing",
	KindNumber:   "number",
	KindText:     "text",
	KindBool:     "bool",
	KindError:    "error",
	KindArray:    "array",
	KindRef:      "ref",
	KindRefUnion: "ref-union",
	KindLambda:   "lambda",
	KindSpill:    "spill",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Callable is implemented by the evaluator's lambda closures. Value
// transports callables opaquely so this package stays free of AST
// types.
type Callable interface {
	// ParamCount returns the number of declared parameters.
	ParamCount() int
}

// Value is the single currency of the engine: everything a cell holds,
// a formula computes, or a function receives is a Value.
type Value struct {
	kind   Kind
	num    float64
	str    string
	b      bool
	err    ErrorKind
	arr    [][]Value
	areas  []ref.Area
	lam    Callable
	anchor ref.CellKey
}

// Empty returns the blank-cell value.
func Empty() Value { return Value{} }

// Missing returns the omitted-argument sentinel. It is distinct from
// Empty: IF(FALSE,1) sees a missing third argument and applies its
// default, while IF(FALSE,1,) sees an explicit empty one.
func Missing() Value { return Value{kind: KindMissing} }

// Number builds a numeric value. Non-finite inputs are normalized to
// #NUM! so NaN and infinities never enter the grid.
func Number(f float64) Value {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Error(ErrNum)
	}
	return Value{kind: KindNumber, num: f}
}

// Text builds a text value.
func Text(s string) Value { return Value{kind: KindText, str: s} }

// Bool builds a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Error builds an error value, mapping the invalid zero kind to
// #UNKNOWN!.
func Error(k ErrorKind) Value {
	if !k.Valid() {
		k = ErrUnknown
	}
	return Value{kind: KindError, err: k}
}

// NewArray builds a 2-D array value. Rows must be rectangular; ragged
// input is padded with Empty to the widest row.
func NewArray(rows [][]Value) Value {
	width := 0
	for _, r := range rows {
		if len(r) > width {
			width = len(r)
		}
	}
	for i, r := range rows {
		for len(r) < width {
			r = append(r, Empty())
		}
		rows[i] = r
	}
	return Value{kind: KindArray, arr: rows}
}

// Reference builds a reference value from one or more areas. A single
// area is a plain reference; several areas form a reference union.
func Reference(areas ...ref.Area) Value {
	if len(areas) == 0 {
		return Error(ErrRef)
	}
	k := KindRef
	if len(areas) > 1 {
		k = KindRefUnion
	}
	return Value{kind: k, areas: areas}
}

// Lambda wraps an evaluator closure.
func Lambda(c Callable) Value { return Value{kind: KindLambda, lam: c} }

// Spill builds the marker stored in cells covered by a spilled array,
// pointing back at the anchor cell that produced it.
func Spill(anchor ref.CellKey) Value { return Value{kind: KindSpill, anchor: anchor} }

// Kind returns the variant tag.
func (v Value) Kind() Kind { return v.kind }

// IsEmpty reports a blank cell value.
func (v Value) IsEmpty() bool { return v.kind == KindEmpty }

// IsMissing reports the omitted-argument sentinel.
func (v Value) IsMissing() bool { return v.kind == KindMissing }

// IsBlank reports either blank form, empty or missing.
func (v Value) IsBlank() bool { return v.kind == KindEmpty || v.kind == KindMissing }

// IsError reports an error value.
func (v Value) IsError() bool { return v.kind == KindError }

// IsNumber reports a numeric value.
func (v Value) IsNumber() bool { return v.kind == KindNumber }

// IsText reports a text value.
func (v Value) IsText() bool { return v.kind == KindText }

// IsBool reports a boolean value.
func (v Value) IsBool() bool { return v.kind == KindBool }

// IsArray reports a 2-D array value.
func (v Value) IsArray() bool { return v.kind == KindArray }

// IsRef reports a reference or reference-union value.
func (v Value) IsRef() bool { return v.kind == KindRef || v.kind == KindRefUnion }

// Num returns the numeric payload, zero for other kinds.
func (v Value) Num() float64 { return v.num }

// Str returns the text payload, empty for other kinds.
func (v Value) Str() string { return v.str }

// Bool returns the boolean payload, false for other kinds.
func (v Value) Bool() bool { return v.b }

// Err returns the error payload, zero for non-error values.
func (v Value) Err() ErrorKind {
	if v.kind != KindError {
		return 0
	}
	return v.err
}

// Rows returns the 2-D array payload, nil for other kinds.
func (v Value) Rows() [][]Value { return v.arr }

// Dims returns the array dimensions, treating scalars as 1x1.
func (v Value) Dims() (rows, cols int) {
	if v.kind != KindArray {
		return 1, 1
	}
	if len(v.arr) == 0 {
		return 0, 0
	}
	return len(v.arr), len(v.arr[0])
}

// At returns one array element. Scalars return themselves at (0,0) and
// out-of-bounds access yields #N/A, matching array broadcast edges.
func (v Value) At(row, col int) Value {
	if v.kind != KindArray {
		if row == 0 && col == 0 {
			return v
		}
		return Error(ErrNA)
	}
	if row < 0 || row >= len(v.arr) || col < 0 || col >= len(v.arr[row]) {
		return Error(ErrNA)
	}
	return v.arr[row][col]
}

// Areas returns the reference payload, nil for other kinds.
func (v Value) Areas() []ref.Area { return v.areas }

// Lam returns the lambda payload, nil for other kinds.
func (v Value) Lam() Callable { return v.lam }

// SpillAnchor returns the anchor of a spill marker.
func (v Value) SpillAnchor() ref.CellKey { return v.anchor }

// String renders the value the way a cell displays it under canonical
// formatting: blank as "", numbers in general format, booleans as
// TRUE/FALSE, errors by their display literal.
func (v Value) String() string {
	switch v.kind {
	case KindEmpty, KindMissing:
		return ""
	case KindNumber:
		return FormatNumber(v.num)
	case KindText:
		return v.str
	case KindBool:
		if v.b {
			return "TRUE"
		}
		return "FALSE"
	case KindError:
		return v.err.String()
	case KindArray:
		var sb strings.Builder
		sb.WriteByte('{')
		for i, row := range v.arr {
			if i > 0 {
				sb.WriteByte(';')
			}
			for j, cell := range row {
				if j > 0 {
					sb.WriteByte(',')
				}
				sb.WriteString(cell.String())
			}
		}
		sb.WriteByte('}')
		return sb.String()
	case KindRef, KindRefUnion:
		parts := make([]string, len(v.areas))
		for i, a := range v.areas {
			parts[i] = a.String()
		}
		return strings.Join(parts, ",")
	case KindLambda:
		return "#LAMBDA"
	case KindSpill:
		return "#SPILL->" + v.anchor.String()
	default:
		return ""
	}
}

// Equal reports exact structural equality. It is the identity the
// compiled-versus-interpreted parity checks and the recalc cutoff use:
// no coercion, no epsilon, text case-sensitive.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindEmpty, KindMissing:
		return true
	case KindNumber:
		return a.num == b.num
	case KindText:
		return a.str == b.str
	case KindBool:
		return a.b == b.b
	case KindError:
		return a.err == b.err
	case KindArray:
		if len(a.arr) != len(b.arr) {
			return false
		}
		for i := range a.arr {
			if len(a.arr[i]) != len(b.arr[i]) {
				return false
			}
			for j := range a.arr[i] {
				if !Equal(a.arr[i][j], b.arr[i][j]) {
					return false
				}
			}
		}
		return true
	case KindRef, KindRefUnion:
		if len(a.areas) != len(b.areas) {
			return false
		}
		for i := range a.areas {
			if a.areas[i] != b.areas[i] {
				return false
			}
		}
		return true
	case KindLambda:
		return a.lam == b.lam
	case KindSpill:
		return a.anchor == b.anchor
	default:
		return false
	}
}

// FormatNumber renders a float in canonical general format: plain
// digits for integral values within 15 significant digits, shortest
// round-trip form otherwise.
func FormatNumber(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}
