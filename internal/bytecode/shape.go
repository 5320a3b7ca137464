package bytecode

import (
	"strconv"
	"strings"

	"github.com/leapstack-labs/leapcalc/pkg/formula"
)

// Shape serializes the structural identity of an expression: literals,
// operators, call names, qualifiers and origin-relative coordinate
// deltas, but never the origin itself. Two formulas share a shape
// exactly when one compiled program can serve both, so =A1+B1 filled
// down a column maps to a single cache entry while =A1+B1 and =$A$1+B1
// stay distinct.
func Shape(e formula.Expr) string {
	var sb strings.Builder
	writeShape(&sb, e)
	return sb.String()
}

func writeShape(sb *strings.Builder, e formula.Expr) {
	switch n := e.(type) {
	case nil:
		sb.WriteByte('!')

	case *formula.NumberLit:
		sb.WriteByte('n')
		sb.WriteString(strconv.FormatFloat(n.Value, 'g', -1, 64))

	case *formula.StringLit:
		sb.WriteByte('s')
		sb.WriteString(strconv.Quote(n.Value))

	case *formula.BoolLit:
		if n.Value {
			sb.WriteString("bt")
		} else {
			sb.WriteString("bf")
		}

	case *formula.ErrorLit:
		sb.WriteByte('e')
		sb.WriteString(strconv.Itoa(int(n.Kind)))

	case *formula.EmptyArg:
		sb.WriteByte('_')

	case *formula.CellRef:
		sb.WriteByte('c')
		writeQualifier(sb, n.Book, n.SheetFirst, n.SheetLast)
		writeCoord(sb, n.Row)
		writeCoord(sb, n.Col)

	case *formula.ColRange:
		sb.WriteByte('C')
		writeQualifier(sb, n.Book, n.SheetFirst, n.SheetLast)
		writeCoord(sb, n.StartCol)
		writeCoord(sb, n.EndCol)

	case *formula.RowRange:
		sb.WriteByte('R')
		writeQualifier(sb, n.Book, n.SheetFirst, n.SheetLast)
		writeCoord(sb, n.StartRow)
		writeCoord(sb, n.EndRow)

	case *formula.RangeExpr:
		sb.WriteString(":(")
		writeShape(sb, n.Left)
		sb.WriteByte(',')
		writeShape(sb, n.Right)
		sb.WriteByte(')')

	case *formula.NameRef:
		sb.WriteByte('N')
		sb.WriteString(strconv.Quote(n.Sheet))
		sb.WriteString(strconv.Quote(n.Name))

	case *formula.StructuredRef:
		sb.WriteByte('T')
		sb.WriteString(strconv.Quote(n.Raw))

	case *formula.FuncCall:
		sb.WriteByte('f')
		sb.WriteString(n.Name)
		sb.WriteByte('(')
		for i, a := range n.Args {
			if i > 0 {
				sb.WriteByte(',')
			}
			writeShape(sb, a)
		}
		sb.WriteByte(')')

	case *formula.Invoke:
		sb.WriteString("I(")
		writeShape(sb, n.Callee)
		sb.WriteString(")(")
		for i, a := range n.Args {
			if i > 0 {
				sb.WriteByte(',')
			}
			writeShape(sb, a)
		}
		sb.WriteByte(')')

	case *formula.LambdaExpr:
		sb.WriteString("L(")
		for i, p := range n.Params {
			if i > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString(strconv.Quote(p))
		}
		sb.WriteString(")(")
		writeShape(sb, n.Body)
		sb.WriteByte(')')

	case *formula.ArrayLit:
		sb.WriteByte('{')
		for i, row := range n.Rows {
			if i > 0 {
				sb.WriteByte(';')
			}
			for j, el := range row {
				if j > 0 {
					sb.WriteByte(',')
				}
				writeShape(sb, el)
			}
		}
		sb.WriteByte('}')

	case *formula.UnaryExpr:
		sb.WriteByte('u')
		sb.WriteString(strconv.Itoa(int(n.Op)))
		sb.WriteByte('(')
		writeShape(sb, n.Operand)
		sb.WriteByte(')')

	case *formula.BinaryExpr:
		sb.WriteByte('b')
		sb.WriteString(strconv.Itoa(int(n.Op)))
		sb.WriteByte('(')
		writeShape(sb, n.Left)
		sb.WriteByte(',')
		writeShape(sb, n.Right)
		sb.WriteByte(')')

	case *formula.SpillRange:
		sb.WriteString("#(")
		writeShape(sb, n.Operand)
		sb.WriteByte(')')

	default:
		sb.WriteByte('?')
	}
}

// writeCoord encodes one axis: absolute index or origin delta. The
// two never collide, which keeps =$A$1 and =A1 in separate programs.
func writeCoord(sb *strings.Builder, c formula.Coord) {
	if c.Abs {
		sb.WriteByte('a')
	} else {
		sb.WriteByte('r')
	}
	sb.WriteString(strconv.Itoa(c.Index))
}

// writeQualifier encodes the book and sheet context. The common
// unqualified case collapses to one byte so plain =A1+B1 shapes stay
// short.
func writeQualifier(sb *strings.Builder, book, first, last string) {
	if book == "" && first == "" && last == "" {
		sb.WriteByte('~')
		return
	}
	sb.WriteByte('q')
	sb.WriteString(strconv.Quote(book))
	sb.WriteString(strconv.Quote(first))
	sb.WriteString(strconv.Quote(last))
}
