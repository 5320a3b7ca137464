package engine

// interp.go - Tree interpretation for formulas the compiler refuses

import (
	"math"

	"github.com/leapstack-labs/leapcalc/internal/bytecode"
	"github.com/leapstack-labs/leapcalc/internal/fn"
	"github.com/leapstack-labs/leapcalc/pkg/formula"
	"github.com/leapstack-labs/leapcalc/pkg/ref"
	"github.com/leapstack-labs/leapcalc/pkg/value"
)

// evalFormula evaluates one tree and dereferences the result the same
// way a compiled program would. The interpreter carries the constructs
// the compiler refuses: structured references, external 3-D spans,
// LET, LAMBDA, SWITCH, CHOOSE, and calls resolved through defined
// names. Everything both strategies share routes through the exported
// bytecode operator helpers, so the two cannot drift apart.
func (ev *evalEnv) evalFormula(e formula.Expr) value.Value {
	return bytecode.Materialize(ev, ev.eval(e))
}

func (ev *evalEnv) eval(e formula.Expr) value.Value {
	switch n := e.(type) {
	case *formula.NumberLit:
		return value.Number(n.Value)
	case *formula.StringLit:
		return value.Text(n.Value)
	case *formula.BoolLit:
		return value.Bool(n.Value)
	case *formula.ErrorLit:
		return value.Error(n.Kind)
	case *formula.EmptyArg:
		return value.Empty()
	case *formula.CellRef:
		return ev.cellRef(n)
	case *formula.ColRange:
		return ev.colRange(n)
	case *formula.RowRange:
		return ev.rowRange(n)
	case *formula.RangeExpr:
		return ev.rangeExpr(n)
	case *formula.NameRef:
		return ev.nameRef(n)
	case *formula.StructuredRef:
		return ev.structured(n)
	case *formula.FuncCall:
		return ev.call(n)
	case *formula.Invoke:
		return ev.invoke(fn.Deref(ev, ev.eval(n.Callee)), n.Args)
	case *formula.LambdaExpr:
		return value.Lambda(&boundLambda{params: n.Params, body: n.Body, scope: ev.scope})
	case *formula.ArrayLit:
		return ev.arrayLit(n)
	case *formula.UnaryExpr:
		return bytecode.ApplyUnary(ev, n.Op, ev.eval(n.Operand))
	case *formula.BinaryExpr:
		left := ev.eval(n.Left)
		right := ev.eval(n.Right)
		return bytecode.ApplyBinary(ev, n.Op, left, right)
	case *formula.SpillRange:
		return bytecode.SpillArea(ev, ev.eval(n.Operand))
	}
	return value.Error(value.ErrUnknown)
}

// area mirrors the analyzer's qualification rule: an unqualified
// reference lives on the evaluating cell's own sheet.
func (ev *evalEnv) area(book, first, last string, r ref.Range) ref.Area {
	if book == "" && first == "" {
		return ref.AreaOf(ev.origin.Sheet, r)
	}
	if first == "" {
		first = ev.origin.Sheet
	}
	r.Sheet = ""
	return ref.Area{Book: book, Sheets: ref.Span(first, last), Rect: r}
}

func (ev *evalEnv) cellRef(n *formula.CellRef) value.Value {
	a := ref.Addr{Row: n.Row.Resolve(ev.origin.Row), Col: n.Col.Resolve(ev.origin.Col)}
	if !a.Valid() {
		return value.Error(value.ErrRef)
	}
	r := ref.Range{StartRow: a.Row, StartCol: a.Col, EndRow: a.Row, EndCol: a.Col}
	return value.Reference(ev.area(n.Book, n.SheetFirst, n.SheetLast, r))
}

func (ev *evalEnv) colRange(n *formula.ColRange) value.Value {
	r := ref.Range{
		StartRow: ref.Unbounded, EndRow: ref.Unbounded,
		StartCol: n.StartCol.Resolve(ev.origin.Col),
		EndCol:   n.EndCol.Resolve(ev.origin.Col),
	}.Normalize()
	if !bytecode.BoundsValid(r) {
		return value.Error(value.ErrRef)
	}
	return value.Reference(ev.area(n.Book, n.SheetFirst, n.SheetLast, r))
}

func (ev *evalEnv) rowRange(n *formula.RowRange) value.Value {
	r := ref.Range{
		StartCol: ref.Unbounded, EndCol: ref.Unbounded,
		StartRow: n.StartRow.Resolve(ev.origin.Row),
		EndRow:   n.EndRow.Resolve(ev.origin.Row),
	}.Normalize()
	if !bytecode.BoundsValid(r) {
		return value.Error(value.ErrRef)
	}
	return value.Reference(ev.area(n.Book, n.SheetFirst, n.SheetLast, r))
}

func (ev *evalEnv) rangeExpr(n *formula.RangeExpr) value.Value {
	if left, right, ok := formula.FoldableRange(n); ok {
		r := ref.Range{
			StartRow: left.Row.Resolve(ev.origin.Row),
			StartCol: left.Col.Resolve(ev.origin.Col),
			EndRow:   right.Row.Resolve(ev.origin.Row),
			EndCol:   right.Col.Resolve(ev.origin.Col),
		}.Normalize()
		if !bytecode.BoundsValid(r) {
			return value.Error(value.ErrRef)
		}
		return value.Reference(ev.area(left.Book, left.SheetFirst, left.SheetLast, r))
	}
	left := ev.eval(n.Left)
	right := ev.eval(n.Right)
	return bytecode.JoinRange(ev, left, right)
}

func (ev *evalEnv) nameRef(n *formula.NameRef) value.Value {
	if n.Sheet == "" && ev.scope != nil {
		if v, ok := ev.scope.lookup(n.Name); ok {
			return v
		}
	}
	sheet := n.Sheet
	if sheet == "" {
		sheet = ev.origin.Sheet
	}
	if v, ok := ev.ResolveName(sheet, n.Name); ok {
		return v
	}
	return value.Error(value.ErrName)
}

func (ev *evalEnv) arrayLit(n *formula.ArrayLit) value.Value {
	if len(n.Rows) == 0 || len(n.Rows[0]) == 0 {
		return value.Error(value.ErrValue)
	}
	out := make([][]value.Value, len(n.Rows))
	for i, row := range n.Rows {
		line := make([]value.Value, len(row))
		for j, el := range row {
			line[j] = fn.Deref(ev, ev.eval(el))
		}
		out[i] = line
	}
	return value.NewArray(out)
}

func (ev *evalEnv) call(n *formula.FuncCall) value.Value {
	d, known := ev.eng.fns.Lookup(n.Name)
	if !known {
		return ev.callNamed(n)
	}
	if !d.CheckArity(len(n.Args)) {
		return value.Error(value.ErrValue)
	}
	if d.Lazy {
		return ev.lazy(d, n)
	}
	args := make([]value.Value, len(n.Args))
	for i, arg := range n.Args {
		args[i] = ev.eval(arg)
	}
	return bytecode.CallFunction(ev, d, args)
}

// callNamed handles F(...) where F is no builtin: a LET binding or a
// defined name holding a lambda.
func (ev *evalEnv) callNamed(n *formula.FuncCall) value.Value {
	var callee value.Value
	found := false
	if ev.scope != nil {
		callee, found = ev.scope.lookup(n.Name)
	}
	if !found {
		v, ok := ev.ResolveName(ev.origin.Sheet, n.Name)
		if !ok {
			return value.Error(value.ErrName)
		}
		callee = v
	}
	return ev.invoke(fn.Deref(ev, callee), n.Args)
}

// invoke applies a lambda value to argument expressions. Arguments
// evaluate in the calling scope; the body sees only the parameters and
// the lambda's captured scope.
func (ev *evalEnv) invoke(callee value.Value, args []formula.Expr) value.Value {
	if callee.IsError() {
		return callee
	}
	lam, ok := callee.Lam().(*boundLambda)
	if callee.Kind() != value.KindLambda || !ok {
		return value.Error(value.ErrValue)
	}
	if len(args) != len(lam.params) {
		return value.Error(value.ErrValue)
	}
	vals := make(map[string]value.Value, len(args))
	for i, arg := range args {
		vals[lam.params[i]] = ev.eval(arg)
	}
	saved := ev.scope
	defer func() { ev.scope = saved }()
	ev.scope = &frame{parent: lam.scope, names: vals}
	return ev.eval(lam.body)
}

func (ev *evalEnv) lazy(d *fn.Descriptor, n *formula.FuncCall) value.Value {
	switch d.Name {
	case "IF":
		return ev.lazyIf(n.Args)
	case "IFS":
		return ev.lazyIfs(n.Args)
	case "IFERROR":
		return ev.lazyIfError(n.Args, false)
	case "IFNA":
		return ev.lazyIfError(n.Args, true)
	case "SWITCH":
		return ev.lazySwitch(n.Args)
	case "CHOOSE":
		return ev.lazyChoose(n.Args)
	case "LET":
		return ev.lazyLet(n.Args)
	}
	return value.Error(value.ErrName)
}

func (ev *evalEnv) lazyIf(args []formula.Expr) value.Value {
	cond, err := bytecode.Condition(ev, ev.eval(args[0]))
	if err != nil {
		return value.FromError(err)
	}
	if cond {
		return ev.eval(args[1])
	}
	if len(args) == 3 {
		return ev.eval(args[2])
	}
	return value.Bool(false)
}

func (ev *evalEnv) lazyIfs(args []formula.Expr) value.Value {
	for i := 0; i+1 < len(args); i += 2 {
		cond, err := bytecode.Condition(ev, ev.eval(args[i]))
		if err != nil {
			return value.FromError(err)
		}
		if cond {
			return ev.eval(args[i+1])
		}
	}
	return value.Error(value.ErrNA)
}

func (ev *evalEnv) lazyIfError(args []formula.Expr, naOnly bool) value.Value {
	first := ev.eval(args[0])
	probe := fn.Deref(ev, first)
	if probe.IsError() && (!naOnly || probe.Err() == value.ErrNA) {
		return ev.eval(args[1])
	}
	return first
}

// lazySwitch compares the subject against each candidate in turn and
// returns the matching result, the trailing default, or #N/A.
func (ev *evalEnv) lazySwitch(args []formula.Expr) value.Value {
	subject := fn.Deref(ev, ev.eval(args[0]))
	if subject.IsError() {
		return subject
	}
	rest := args[1:]
	for i := 0; i+1 < len(rest); i += 2 {
		cand := fn.Deref(ev, ev.eval(rest[i]))
		if cand.IsError() {
			return cand
		}
		if cmp, err := value.Compare(subject, cand); err == nil && cmp == 0 {
			return ev.eval(rest[i+1])
		}
	}
	if len(rest)%2 == 1 {
		return ev.eval(rest[len(rest)-1])
	}
	return value.Error(value.ErrNA)
}

// lazyChoose evaluates only the selected branch; an explicitly empty
// slot selects an empty value.
func (ev *evalEnv) lazyChoose(args []formula.Expr) value.Value {
	idx, err := value.ToNumber(fn.Deref(ev, ev.eval(args[0])), ev.eng.loc)
	if err != nil {
		return value.FromError(err)
	}
	i := int(math.Trunc(idx))
	if i < 1 || i >= len(args) {
		return value.Error(value.ErrValue)
	}
	return ev.eval(args[i])
}

// lazyLet binds name/value pairs in order, each visible to the values
// after it and to the final body expression.
func (ev *evalEnv) lazyLet(args []formula.Expr) value.Value {
	if len(args)%2 == 0 {
		return value.Error(value.ErrValue)
	}
	saved := ev.scope
	defer func() { ev.scope = saved }()
	scope := &frame{parent: saved, names: make(map[string]value.Value)}
	ev.scope = scope
	for i := 0; i+2 < len(args); i += 2 {
		name, ok := args[i].(*formula.NameRef)
		if !ok || name.Sheet != "" {
			return value.Error(value.ErrName)
		}
		scope.names[name.Name] = ev.eval(args[i+1])
	}
	return ev.eval(args[len(args)-1])
}

// structured resolves a table reference to a rectangle on the table's
// sheet.
func (ev *evalEnv) structured(n *formula.StructuredRef) value.Value {
	t, ok := ev.eng.lookupTable(n.Table, ev.origin)
	if !ok {
		return value.Error(value.ErrName)
	}
	r := t.Range.Normalize()
	top, bot, ok := tableRows(t, n.Section)
	if !ok {
		return value.Error(value.ErrRef)
	}
	r.StartRow, r.EndRow = top, bot

	if n.StartCol != "" {
		c1, ok := ev.tableColumn(t, n.StartCol)
		if !ok {
			return value.Error(value.ErrName)
		}
		c2 := c1
		if n.EndCol != "" {
			if c2, ok = ev.tableColumn(t, n.EndCol); !ok {
				return value.Error(value.ErrName)
			}
		}
		if c1 > c2 {
			c1, c2 = c2, c1
		}
		r.StartCol, r.EndCol = c1, c2
	}

	if n.ThisRow {
		top, bot := dataRows(t)
		if ev.origin.Sheet != t.Sheet || ev.origin.Row < top || ev.origin.Row > bot {
			return value.Error(value.ErrValue)
		}
		r.StartRow, r.EndRow = ev.origin.Row, ev.origin.Row
	}
	return value.Reference(ref.AreaOf(t.Sheet, r))
}

// tableColumn resolves a column by header text, reading headers the
// same way the formula reads any other cell.
func (ev *evalEnv) tableColumn(t Table, name string) (int, bool) {
	return tableColumnAt(t, name, ev.eng.loc, ev.CellValue)
}
