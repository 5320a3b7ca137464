package formula

import (
	"github.com/leapstack-labs/leapcalc/pkg/ref"
)

// Analysis is the static dependency summary of one formula: every
// area the tree can read, the defined names and tables it mentions,
// and the canonical names of the functions it calls.
//
// Areas over-approximate. Both branches of an IF contribute, both
// operands of an intersection contribute, and a range whose endpoints
// are computed marks the analysis Dynamic instead of guessing.
type Analysis struct {
	Areas  []ref.Area
	Names  []NameUse
	Tables []TableUse
	Funcs  []string

	// Dynamic is set when some reference cannot be resolved
	// statically, such as INDIRECT, OFFSET or a computed range
	// endpoint. Such formulas must be re-evaluated whenever anything
	// they might read could have changed.
	Dynamic bool
}

// NameUse records one mention of a defined name.
type NameUse struct {
	Sheet string // scope sheet, "" for workbook scope
	Name  string
}

// TableUse records one structured table reference together with its
// selectors, so a consumer holding the table metadata can resolve it
// to concrete rows and columns.
type TableUse struct {
	Name     string // empty for the bare [@Col] shorthand
	Section  string // "#All", "#Headers", "#Totals"; empty selects data
	StartCol string
	EndCol   string
	ThisRow  bool
}

// dynamicRefFuncs compute their reference target at evaluation time,
// so no static edge can cover them.
var dynamicRefFuncs = map[string]bool{
	"INDIRECT": true,
	"OFFSET":   true,
}

// Analyze walks a parsed tree rooted at origin on the named sheet and
// collects its static dependency summary.
func Analyze(e Expr, origin ref.CellKey, sheet string) Analysis {
	a := &analyzer{origin: origin, sheet: sheet, funcs: map[string]bool{}}
	a.walk(e, map[string]bool{})
	return a.out
}

type analyzer struct {
	origin ref.CellKey
	sheet  string
	funcs  map[string]bool
	out    Analysis
}

func (a *analyzer) walk(e Expr, bound map[string]bool) {
	switch n := e.(type) {
	case *CellRef:
		a.addArea(a.cellArea(n))

	case *ColRange:
		start := n.StartCol.Resolve(a.origin.Col)
		end := n.EndCol.Resolve(a.origin.Col)
		if start > end {
			start, end = end, start
		}
		a.addArea(a.qualify(n.Book, n.SheetFirst, n.SheetLast, ref.Range{
			StartRow: ref.Unbounded, EndRow: ref.Unbounded,
			StartCol: start, EndCol: end,
		}))

	case *RowRange:
		start := n.StartRow.Resolve(a.origin.Row)
		end := n.EndRow.Resolve(a.origin.Row)
		if start > end {
			start, end = end, start
		}
		a.addArea(a.qualify(n.Book, n.SheetFirst, n.SheetLast, ref.Range{
			StartRow: start, EndRow: end,
			StartCol: ref.Unbounded, EndCol: ref.Unbounded,
		}))

	case *RangeExpr:
		if left, right, ok := FoldableRange(n); ok {
			a.addArea(a.rectArea(left, right))
			return
		}
		// computed endpoints: keep whatever the sides read and fall
		// back to dynamic recalculation
		a.out.Dynamic = true
		a.walk(n.Left, bound)
		a.walk(n.Right, bound)

	case *NameRef:
		if n.Sheet == "" && bound[n.Name] {
			return
		}
		a.out.Names = append(a.out.Names, NameUse{Sheet: n.Sheet, Name: n.Name})

	case *StructuredRef:
		a.out.Tables = append(a.out.Tables, TableUse{
			Name:     n.Table,
			Section:  n.Section,
			StartCol: n.StartCol,
			EndCol:   n.EndCol,
			ThisRow:  n.ThisRow,
		})

	case *FuncCall:
		if !a.funcs[n.Name] {
			a.funcs[n.Name] = true
			a.out.Funcs = append(a.out.Funcs, n.Name)
		}
		if dynamicRefFuncs[n.Name] {
			a.out.Dynamic = true
		}
		if n.Name == "LET" {
			a.walkLet(n.Args, bound)
			return
		}
		for _, arg := range n.Args {
			a.walk(arg, bound)
		}

	case *Invoke:
		a.walk(n.Callee, bound)
		for _, arg := range n.Args {
			a.walk(arg, bound)
		}

	case *LambdaExpr:
		inner := shadow(bound, n.Params...)
		a.walk(n.Body, inner)

	case *ArrayLit:
		for _, row := range n.Rows {
			for _, el := range row {
				a.walk(el, bound)
			}
		}

	case *UnaryExpr:
		a.walk(n.Operand, bound)

	case *BinaryExpr:
		a.walk(n.Left, bound)
		a.walk(n.Right, bound)

	case *SpillRange:
		// the spill extent is only known after its anchor evaluates
		a.out.Dynamic = true
		a.walk(n.Operand, bound)
	}
}

// walkLet handles LET(n1,v1, n2,v2, ..., body): declared names bind
// for the value expressions that follow them and for the body, and
// are not dependencies themselves.
func (a *analyzer) walkLet(args []Expr, bound map[string]bool) {
	inner := shadow(bound)
	for i := 0; i+1 < len(args); i += 2 {
		a.walk(args[i+1], inner)
		if name, ok := args[i].(*NameRef); ok && name.Sheet == "" {
			inner = shadow(inner, name.Name)
		}
	}
	if len(args) > 0 {
		a.walk(args[len(args)-1], inner)
	}
}

func shadow(bound map[string]bool, names ...string) map[string]bool {
	if len(names) == 0 && len(bound) == 0 {
		return bound
	}
	inner := make(map[string]bool, len(bound)+len(names))
	for k := range bound {
		inner[k] = true
	}
	for _, n := range names {
		inner[n] = true
	}
	return inner
}

func (a *analyzer) addArea(area ref.Area) {
	a.out.Areas = append(a.out.Areas, area)
}

// qualify attaches the book and sheet context to a rectangle,
// defaulting to the formula's own sheet.
func (a *analyzer) qualify(book, first, last string, rect ref.Range) ref.Area {
	if first == "" {
		first = a.sheet
	}
	if last == "" {
		last = first
	}
	return ref.Area{
		Book:   book,
		Sheets: ref.SheetSpan{First: first, Last: last},
		Rect:   rect.Normalize(),
	}
}

func (a *analyzer) cellArea(n *CellRef) ref.Area {
	row := n.Row.Resolve(a.origin.Row)
	col := n.Col.Resolve(a.origin.Col)
	return a.qualify(n.Book, n.SheetFirst, n.SheetLast, ref.Range{
		StartRow: row, EndRow: row,
		StartCol: col, EndCol: col,
	})
}

// rectArea folds A1:B2 into its bounding rectangle. The right side
// inherits the left side's qualifier when it has none of its own.
func (a *analyzer) rectArea(left, right *CellRef) ref.Area {
	r1 := left.Row.Resolve(a.origin.Row)
	c1 := left.Col.Resolve(a.origin.Col)
	r2 := right.Row.Resolve(a.origin.Row)
	c2 := right.Col.Resolve(a.origin.Col)
	return a.qualify(left.Book, left.SheetFirst, left.SheetLast, ref.Range{
		StartRow: r1, EndRow: r2,
		StartCol: c1, EndCol: c2,
	}.Normalize())
}

// FoldableRange reports whether a ':' expression folds into one
// static rectangle: both endpoints are plain cell references and the
// right side either repeats the left side's qualifier or leaves it
// off. The dependency analyzer and the bytecode compiler share this
// so static edges cover exactly what compiled loads read.
func FoldableRange(n *RangeExpr) (left, right *CellRef, ok bool) {
	left, lok := n.Left.(*CellRef)
	right, rok := n.Right.(*CellRef)
	if !lok || !rok {
		return nil, nil, false
	}
	if right.Book == "" && right.SheetFirst == "" {
		return left, right, true
	}
	if right.Book == left.Book &&
		right.SheetFirst == left.SheetFirst &&
		right.SheetLast == left.SheetLast {
		return left, right, true
	}
	return nil, nil, false
}
