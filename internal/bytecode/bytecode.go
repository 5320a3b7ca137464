// Package bytecode compiles parsed formulas into flat instruction
// programs and runs them on a stack machine. Programs are keyed by the
// structural shape of the expression, so a formula filled down a
// column compiles once and every cell runs the shared program against
// its own origin.
//
// Not every expression compiles: structured references, external 3-D
// spans, LAMBDA and its invocations, LET, SWITCH, CHOOSE and calls to
// INDIRECT report ErrNotCompilable and the engine evaluates the tree
// directly instead. Both execution strategies route operator and call
// semantics through the helpers in this package, so a formula produces
// the same value whichever path ran it.
package bytecode

import (
	"time"

	"github.com/leapstack-labs/leapcalc/internal/fn"
	"github.com/leapstack-labs/leapcalc/pkg/formula"
	"github.com/leapstack-labs/leapcalc/pkg/ref"
	"github.com/leapstack-labs/leapcalc/pkg/value"
)

// Env is what a running program needs from the engine: everything a
// builtin function can ask for, plus the spill extent query behind the
// postfix # operator.
type Env interface {
	fn.Env

	// SpillExtent returns the rectangle spilled from an anchor cell.
	// ok is false when the cell is not a spill anchor.
	SpillExtent(anchor ref.CellKey) (ref.Range, bool)
}

// Opcode identifies one instruction.
type Opcode uint8

const (
	// OpConst pushes Consts[A].
	OpConst Opcode = iota

	// OpCell pushes a single-cell reference built from Cells[A],
	// resolved against the origin. Out-of-sheet coordinates push #REF!.
	OpCell

	// OpRange pushes a rectangle reference built from Ranges[A].
	OpRange

	// OpName pushes the value of the defined name Names[A], or #NAME?
	// when the workbook does not define it.
	OpName

	// OpSpill pops a single-cell reference and pushes the reference to
	// the spill range anchored there, or #REF! when the cell does not
	// anchor one.
	OpSpill

	// OpUnary pops one operand and applies formula.Op(A): OpNeg, OpPos
	// or OpImplicit.
	OpUnary

	// OpPercent pops one operand and divides it by 100.
	OpPercent

	// OpBinary pops right then left and applies formula.Op(A): the
	// arithmetic operators, or reference union and intersection.
	OpBinary

	// OpConcat pops right then left and concatenates their text forms.
	OpConcat

	// OpCompare pops right then left and applies the comparison
	// formula.Op(A), pushing a boolean.
	OpCompare

	// OpRangeJoin pops right then left, both references, and pushes
	// their bounding rectangle. Emitted for ':' with computed endpoints.
	OpRangeJoin

	// OpCall pops B arguments and invokes Funcs[A] with them, pushing
	// the result. Arguments that are error values short-circuit the
	// call unless the function inspects errors.
	OpCall

	// OpMakeArray pops A*B scalars pushed in row-major order and
	// builds an A-by-B array.
	OpMakeArray

	// OpJump continues at Code[A].
	OpJump

	// OpJumpIfFalse pops the condition and continues at Code[A] when
	// it coerces to false. An error condition, or one that does not
	// coerce, pushes its error and continues at Code[B], the branch
	// join point, so the error is the conditional's value and an
	// enclosing error-inspecting call still sees it.
	OpJumpIfFalse

	// OpJumpIfNoErr probes the stack top, dereferencing single-cell
	// references, and continues at Code[A] when the probe is not an
	// error the instruction handles: any error when B is 0, only #N/A
	// when B is 1. The raw operand stays on the stack.
	OpJumpIfNoErr

	// OpPop discards the stack top.
	OpPop
)

var opcodeNames = [...]string{
	OpConst:       "const",
	OpCell:        "cell",
	OpRange:       "range",
	OpName:        "name",
	OpSpill:       "spill",
	OpUnary:       "unary",
	OpPercent:     "percent",
	OpBinary:      "binary",
	OpConcat:      "concat",
	OpCompare:     "compare",
	OpRangeJoin:   "rangejoin",
	OpCall:        "call",
	OpMakeArray:   "makearray",
	OpJump:        "jump",
	OpJumpIfFalse: "jumpfalse",
	OpJumpIfNoErr: "jumpnoerr",
	OpPop:         "pop",
}

func (o Opcode) String() string {
	if int(o) < len(opcodeNames) {
		return opcodeNames[o]
	}
	return "op?"
}

// Instr is one instruction. A and B carry opcode-specific operands:
// table indexes, jump targets, argument counts or formula.Op values.
type Instr struct {
	Op Opcode
	A  int
	B  int
}

// Qualifier names the sheet context of a reference operand: a sheet or
// 3-D span, optionally in another workbook.
type Qualifier struct {
	Book  string
	First string
	Last  string
}

// Span returns the sheet span of the qualifier.
func (q Qualifier) Span() ref.SheetSpan {
	return ref.Span(q.First, q.Last)
}

// CellOperand locates one cell relative to the running origin. Qual
// indexes Quals; ownSheet means the origin's sheet.
type CellOperand struct {
	Row  formula.Coord
	Col  formula.Coord
	Qual int
}

// RangeOperand locates a rectangle relative to the running origin.
// An open axis ignores its coordinate pair and spans the whole sheet.
type RangeOperand struct {
	Row1, Col1 formula.Coord
	Row2, Col2 formula.Coord
	OpenRows   bool
	OpenCols   bool
	Qual       int
}

// NameOperand is one defined-name mention, with its scope sheet when
// written Sheet1!name.
type NameOperand struct {
	Sheet string
	Name  string
}

// ownSheet marks a reference operand with no sheet qualifier of its
// own; it resolves against the origin's sheet at run time, which is
// what lets one program serve the same formula on different sheets.
const ownSheet = -1

// Program is one compiled formula. It is immutable after compilation
// and shared by every cell whose formula has the same shape; callers
// must not modify any field.
type Program struct {
	Code   []Instr
	Consts []value.Value
	Cells  []CellOperand
	Ranges []RangeOperand
	Names  []NameOperand
	Quals  []Qualifier
	Funcs  []*fn.Descriptor

	// MaxStack bounds the operand stack depth the program can reach.
	MaxStack int

	// Shape is the structural cache key the program was compiled under.
	Shape string

	// CompiledAt records when the program was built, for cache reports.
	CompiledAt time.Time
}
