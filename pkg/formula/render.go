package formula

import (
	"strconv"
	"strings"

	"github.com/leapstack-labs/leapcalc/pkg/locale"
	"github.com/leapstack-labs/leapcalc/pkg/ref"
	"github.com/leapstack-labs/leapcalc/pkg/value"
)

// Format renders a tree back to formula text in the given locale,
// without a leading '='. Redundant grouping parentheses from the
// source are not preserved; parentheses are emitted wherever
// precedence requires them, so the output re-parses to the same tree.
//
// Relative references resolve against origin, so formatting a tree at
// a different origin than it was parsed at relocates its references
// the way a copied formula does. References pushed outside the sheet
// by relocation render as #REF!.
func Format(e Expr, origin ref.CellKey, loc *locale.Locale) string {
	if loc == nil {
		loc = locale.Default()
	}
	r := &renderer{origin: origin, loc: loc}
	r.render(e, precNone)
	return r.sb.String()
}

type renderer struct {
	sb     strings.Builder
	origin ref.CellKey
	loc    *locale.Locale
}

// precAtom marks self-delimiting nodes that never need parentheses.
const precAtom = precRange + 1

// nodePrec returns the binding strength of a node's top operator.
func nodePrec(e Expr) int {
	switch n := e.(type) {
	case *BinaryExpr:
		switch n.Op {
		case OpUnion:
			// unions render their own parentheses
			return precAtom
		case OpIntersect:
			return precIsect
		}
		_, prec := opToken(n.Op)
		return prec
	case *UnaryExpr:
		if n.Op == OpPercent {
			return precPostfix
		}
		return precUnary
	case *RangeExpr:
		return precRange
	case *SpillRange:
		return precPostfix
	}
	return precAtom
}

func opToken(op Op) (string, int) {
	switch op {
	case OpEQ, OpNE, OpLT, OpGT, OpLE, OpGE:
		return op.String(), precCompare
	case OpConcat:
		return "&", precConcat
	case OpAdd:
		return "+", precAdd
	case OpSub:
		return "-", precAdd
	case OpMul:
		return "*", precMul
	case OpDiv:
		return "/", precMul
	case OpPow:
		return "^", precExp
	}
	return op.String(), precNone
}

func (r *renderer) render(e Expr, outer int) {
	if nodePrec(e) < outer {
		r.sb.WriteByte('(')
		r.renderInner(e)
		r.sb.WriteByte(')')
		return
	}
	r.renderInner(e)
}

func (r *renderer) renderInner(e Expr) {
	switch n := e.(type) {
	case *NumberLit:
		r.sb.WriteString(r.loc.FormatNumber(n.Value))

	case *StringLit:
		r.sb.WriteByte('"')
		r.sb.WriteString(strings.ReplaceAll(n.Value, `"`, `""`))
		r.sb.WriteByte('"')

	case *BoolLit:
		if n.Value {
			r.sb.WriteString(r.loc.TrueLiteral())
		} else {
			r.sb.WriteString(r.loc.FalseLiteral())
		}

	case *ErrorLit:
		r.sb.WriteString(r.loc.DisplayError(n.Kind))

	case *EmptyArg:
		// an empty slot renders as nothing between separators

	case *CellRef:
		r.renderCellRef(n)

	case *ColRange:
		r.renderColRange(n)

	case *RowRange:
		r.renderRowRange(n)

	case *RangeExpr:
		r.render(n.Left, precRange)
		r.sb.WriteByte(':')
		r.render(n.Right, precRange+1)

	case *NameRef:
		if n.Sheet != "" {
			r.sb.WriteString(ref.QuoteSheet(n.Sheet))
			r.sb.WriteByte('!')
		}
		r.sb.WriteString(n.Name)

	case *StructuredRef:
		r.sb.WriteString(n.Table)
		r.sb.WriteString(n.Raw)

	case *FuncCall:
		r.sb.WriteString(r.loc.LocalizeFunction(n.Name))
		r.renderArgs(n.Args)

	case *Invoke:
		r.render(n.Callee, precAtom)
		r.renderArgs(n.Args)

	case *LambdaExpr:
		r.sb.WriteString(r.loc.LocalizeFunction("LAMBDA"))
		r.sb.WriteByte('(')
		for _, p := range n.Params {
			r.sb.WriteString(p)
			r.sb.WriteRune(r.loc.ArgSep())
		}
		r.render(n.Body, precNone)
		r.sb.WriteByte(')')

	case *ArrayLit:
		r.sb.WriteByte('{')
		for i, row := range n.Rows {
			if i > 0 {
				r.sb.WriteRune(r.loc.ArrayRowSep())
			}
			for j, el := range row {
				if j > 0 {
					r.sb.WriteRune(r.loc.ArrayColSep())
				}
				r.render(el, precNone)
			}
		}
		r.sb.WriteByte('}')

	case *UnaryExpr:
		switch n.Op {
		case OpPercent:
			r.render(n.Operand, precPostfix+1)
			r.sb.WriteByte('%')
		case OpImplicit:
			r.sb.WriteByte('@')
			r.render(n.Operand, precUnary+1)
		default:
			r.sb.WriteString(n.Op.String())
			r.render(n.Operand, precUnary+1)
		}

	case *BinaryExpr:
		switch n.Op {
		case OpUnion:
			r.sb.WriteByte('(')
			r.renderUnion(n)
			r.sb.WriteByte(')')
		case OpIntersect:
			r.render(n.Left, precIsect)
			r.sb.WriteByte(' ')
			r.render(n.Right, precIsect+1)
		default:
			text, prec := opToken(n.Op)
			r.render(n.Left, prec)
			r.sb.WriteString(text)
			r.render(n.Right, prec+1)
		}

	case *SpillRange:
		r.render(n.Operand, precPostfix+1)
		r.sb.WriteByte('#')
	}
}

// renderUnion flattens left-nested unions so (A1,B2,C3) does not grow
// inner parentheses.
func (r *renderer) renderUnion(n *BinaryExpr) {
	if left, ok := n.Left.(*BinaryExpr); ok && left.Op == OpUnion {
		r.renderUnion(left)
	} else {
		r.render(n.Left, precUnion)
	}
	r.sb.WriteRune(r.loc.ArgSep())
	r.render(n.Right, precUnion+1)
}

func (r *renderer) renderArgs(args []Expr) {
	r.sb.WriteByte('(')
	for i, a := range args {
		if i > 0 {
			r.sb.WriteRune(r.loc.ArgSep())
		}
		r.render(a, precNone)
	}
	r.sb.WriteByte(')')
}

func (r *renderer) renderQualifier(book, first, last string) {
	if first == "" && book == "" {
		return
	}
	r.sb.WriteString(ref.QuoteQualifier(book, first, last))
	r.sb.WriteByte('!')
}

func (r *renderer) renderCellRef(n *CellRef) {
	row := n.Row.Resolve(r.origin.Row)
	col := n.Col.Resolve(r.origin.Col)
	if row < 0 || row >= ref.MaxRows || col < 0 || col >= ref.MaxCols {
		r.sb.WriteString(r.loc.DisplayError(value.ErrRef))
		return
	}
	r.renderQualifier(n.Book, n.SheetFirst, n.SheetLast)
	if n.Col.Abs {
		r.sb.WriteByte('$')
	}
	r.sb.WriteString(ref.ColLabel(col))
	if n.Row.Abs {
		r.sb.WriteByte('$')
	}
	r.sb.WriteString(strconv.Itoa(row + 1))
}

func (r *renderer) renderColRange(n *ColRange) {
	start := n.StartCol.Resolve(r.origin.Col)
	end := n.EndCol.Resolve(r.origin.Col)
	if start < 0 || start >= ref.MaxCols || end < 0 || end >= ref.MaxCols {
		r.sb.WriteString(r.loc.DisplayError(value.ErrRef))
		return
	}
	r.renderQualifier(n.Book, n.SheetFirst, n.SheetLast)
	if n.StartCol.Abs {
		r.sb.WriteByte('$')
	}
	r.sb.WriteString(ref.ColLabel(start))
	r.sb.WriteByte(':')
	if n.EndCol.Abs {
		r.sb.WriteByte('$')
	}
	r.sb.WriteString(ref.ColLabel(end))
}

func (r *renderer) renderRowRange(n *RowRange) {
	start := n.StartRow.Resolve(r.origin.Row)
	end := n.EndRow.Resolve(r.origin.Row)
	if start < 0 || start >= ref.MaxRows || end < 0 || end >= ref.MaxRows {
		r.sb.WriteString(r.loc.DisplayError(value.ErrRef))
		return
	}
	r.renderQualifier(n.Book, n.SheetFirst, n.SheetLast)
	if n.StartRow.Abs {
		r.sb.WriteByte('$')
	}
	r.sb.WriteString(strconv.Itoa(start + 1))
	r.sb.WriteByte(':')
	if n.EndRow.Abs {
		r.sb.WriteByte('$')
	}
	r.sb.WriteString(strconv.Itoa(end + 1))
}
