package formula

import (
	"github.com/leapstack-labs/leapcalc/pkg/value"
)

// Expr is the interface all expression nodes implement.
type Expr interface {
	exprNode()
}

// Op identifies a unary or binary operator.
type Op uint8

// Operators in precedence groups. Reference operators bind tightest,
// comparisons loosest.
const (
	OpNone Op = iota

	OpAdd    // +
	OpSub    // -
	OpMul    // *
	OpDiv    // /
	OpPow    // ^
	OpConcat // &

	OpEQ // =
	OpNE // <>
	OpLT // <
	OpGT // >
	OpLE // <=
	OpGE // >=

	OpNeg     // unary -
	OpPos     // unary +
	OpPercent // postfix %

	OpUnion     // reference union (A1,B2) inside grouping parens
	OpIntersect // reference intersection A1:B2 C1:D2
	OpImplicit  // @ implicit intersection
)

var opNames = [...]string{
	OpAdd: "+", OpSub: "-", OpMul: "*", OpDiv: "/", OpPow: "^",
	OpConcat: "&",
	OpEQ:     "=", OpNE: "<>", OpLT: "<", OpGT: ">", OpLE: "<=", OpGE: ">=",
	OpNeg: "-", OpPos: "+", OpPercent: "%",
	OpUnion: ",", OpIntersect: " ", OpImplicit: "@",
}

func (o Op) String() string {
	if int(o) < len(opNames) && opNames[o] != "" {
		return opNames[o]
	}
	return "?"
}

// Coord is one axis of a cell reference: an absolute zero-based index,
// or a signed delta from the formula's origin cell. Storing deltas is
// what makes one expression shape shared by a formula filled down a
// column.
type Coord struct {
	Abs   bool
	Index int
}

// Resolve maps the coordinate to an absolute index for an origin axis
// position.
func (c Coord) Resolve(origin int) int {
	if c.Abs {
		return c.Index
	}
	return origin + c.Index
}

// AbsCoord builds an absolute coordinate.
func AbsCoord(index int) Coord { return Coord{Abs: true, Index: index} }

// RelCoord builds an origin-relative coordinate from an absolute text
// index and the origin's axis position.
func RelCoord(index, origin int) Coord { return Coord{Index: index - origin} }

// NumberLit is a numeric literal.
type NumberLit struct {
	Value float64
}

func (*NumberLit) exprNode() {}

// StringLit is a text literal.
type StringLit struct {
	Value string
}

func (*StringLit) exprNode() {}

// BoolLit is a boolean literal.
type BoolLit struct {
	Value bool
}

func (*BoolLit) exprNode() {}

// ErrorLit is an error literal such as #REF!, either written in the
// source or produced by the parser for a malformed reference.
type ErrorLit struct {
	Kind value.ErrorKind
}

func (*ErrorLit) exprNode() {}

// EmptyArg marks an explicitly empty argument slot, as in IF(a,b,).
// It is distinct from an omitted trailing argument, which simply does
// not appear in Args.
type EmptyArg struct{}

func (*EmptyArg) exprNode() {}

// CellRef is a single-cell reference, possibly sheet-qualified, 3-D,
// or external. Empty SheetFirst means the formula's own sheet.
type CellRef struct {
	Book       string // external workbook, "" for the host
	SheetFirst string
	SheetLast  string // "" unless a 3-D span
	Row, Col   Coord
}

func (*CellRef) exprNode() {}

// Qualified reports whether the reference names a sheet explicitly.
func (c *CellRef) Qualified() bool { return c.SheetFirst != "" }

// ColRange is a whole-column reference such as B:D.
type ColRange struct {
	Book             string
	SheetFirst       string
	SheetLast        string
	StartCol, EndCol Coord
}

func (*ColRange) exprNode() {}

// RowRange is a whole-row reference such as 3:5.
type RowRange struct {
	Book             string
	SheetFirst       string
	SheetLast        string
	StartRow, EndRow Coord
}

func (*RowRange) exprNode() {}

// RangeExpr joins two reference-producing operands with the ':'
// operator. The usual shape is CellRef:CellRef, but either side may be
// any expression that evaluates to a reference, e.g. INDEX(...):B10.
type RangeExpr struct {
	Left  Expr
	Right Expr
}

func (*RangeExpr) exprNode() {}

// NameRef is a defined name: a named range, named formula or lambda.
// Name is stored canonically uppercased; resolution happens at
// evaluation against the workbook's name registry. Sheet is set for
// sheet-scoped names written as Sheet1!name.
type NameRef struct {
	Sheet string
	Name  string
}

func (*NameRef) exprNode() {}

// StructuredRef is a table reference like Table1[[#All],[Amount]].
// Table is empty for the this-row shorthand [@Col] inside a table.
type StructuredRef struct {
	Table    string
	Section  string // "", "#All", "#Data", "#Headers", "#Totals"
	StartCol string // "" means all columns
	EndCol   string // "" unless a column span [A]:[B]
	ThisRow  bool   // [@...] row intersection
	Raw      string // original bracket body, kept for rendering
}

func (*StructuredRef) exprNode() {}

// FuncCall is a call of a function by name. Name is canonical
// (en-US, uppercase); localized spellings are translated by the
// parser. A trailing argument that was omitted does not appear in
// Args, while an explicit empty slot appears as *EmptyArg.
type FuncCall struct {
	Name string
	Args []Expr
}

func (*FuncCall) exprNode() {}

// Invoke calls a non-name callee, e.g. LAMBDA(x,x+1)(5) or a
// parenthesized expression yielding a lambda.
type Invoke struct {
	Callee Expr
	Args   []Expr
}

func (*Invoke) exprNode() {}

// LambdaExpr is LAMBDA(p1, ..., body) folded into parameter names and
// a body at parse time.
type LambdaExpr struct {
	Params []string
	Body   Expr
}

func (*LambdaExpr) exprNode() {}

// ArrayLit is an array constant {1,2;3,4}. Rows are rectangular after
// parsing; elements are literal scalars, optionally signed.
type ArrayLit struct {
	Rows [][]Expr
}

func (*ArrayLit) exprNode() {}

// UnaryExpr applies a prefix operator, or the postfix percent.
type UnaryExpr struct {
	Op      Op
	Operand Expr
}

func (*UnaryExpr) exprNode() {}

// BinaryExpr applies an infix operator.
type BinaryExpr struct {
	Op    Op
	Left  Expr
	Right Expr
}

func (*BinaryExpr) exprNode() {}

// SpillRange is the postfix '#' operator referencing the whole spill
// area anchored at the operand, e.g. A1#.
type SpillRange struct {
	Operand Expr
}

func (*SpillRange) exprNode() {}

// Walk traverses the tree depth-first, calling fn for every node. It
// stops descending into a subtree when fn returns false.
func Walk(e Expr, fn func(Expr) bool) {
	if e == nil || !fn(e) {
		return
	}
	switch n := e.(type) {
	case *RangeExpr:
		Walk(n.Left, fn)
		Walk(n.Right, fn)
	case *FuncCall:
		for _, a := range n.Args {
			Walk(a, fn)
		}
	case *Invoke:
		Walk(n.Callee, fn)
		for _, a := range n.Args {
			Walk(a, fn)
		}
	case *LambdaExpr:
		Walk(n.Body, fn)
	case *ArrayLit:
		for _, row := range n.Rows {
			for _, el := range row {
				Walk(el, fn)
			}
		}
	case *UnaryExpr:
		Walk(n.Operand, fn)
	case *BinaryExpr:
		Walk(n.Left, fn)
		Walk(n.Right, fn)
	case *SpillRange:
		Walk(n.Operand, fn)
	}
}
