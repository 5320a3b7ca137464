package bytecode

import (
	"errors"
	"fmt"
	"time"

	"github.com/leapstack-labs/leapcalc/internal/fn"
	"github.com/leapstack-labs/leapcalc/pkg/formula"
	"github.com/leapstack-labs/leapcalc/pkg/value"
)

// ErrNotCompilable reports an expression the compiler does not lower.
// It is a routine outcome, not a failure: the engine evaluates such
// formulas on the tree, with identical results.
var ErrNotCompilable = errors.New("expression does not compile to bytecode")

// Compiler lowers parsed expressions into programs against one
// function table. Programs hold resolved descriptors, so a compiler
// is tied to the table it was built with.
type Compiler struct {
	fns *fn.Table
}

// NewCompiler builds a compiler over a function table.
func NewCompiler(fns *fn.Table) *Compiler {
	return &Compiler{fns: fns}
}

// Compile lowers one expression. The returned program is immutable
// and safe to share across goroutines and origins.
func (c *Compiler) Compile(e formula.Expr) (*Program, error) {
	b := &builder{fns: c.fns, prog: &Program{Shape: Shape(e)}}
	if err := b.compile(e); err != nil {
		return nil, err
	}
	b.prog.CompiledAt = time.Now()
	return b.prog, nil
}

// builder accumulates one program. cur tracks the simulated operand
// stack depth; MaxStack is its high-water mark and may exceed the
// true runtime depth by a slot per branch, never undershoot it.
type builder struct {
	fns  *fn.Table
	prog *Program
	cur  int
}

func (b *builder) emit(op Opcode, a, arg int) int {
	b.prog.Code = append(b.prog.Code, Instr{Op: op, A: a, B: arg})
	return len(b.prog.Code) - 1
}

// patch points a previously emitted jump at the next instruction.
func (b *builder) patch(at int) {
	b.prog.Code[at].A = len(b.prog.Code)
}

// patchErr points a conditional jump's error exit at the next
// instruction.
func (b *builder) patchErr(at int) {
	b.prog.Code[at].B = len(b.prog.Code)
}

func (b *builder) note(delta int) {
	b.cur += delta
	if b.cur > b.prog.MaxStack {
		b.prog.MaxStack = b.cur
	}
}

func (b *builder) emitConst(v value.Value) {
	b.prog.Consts = append(b.prog.Consts, v)
	b.emit(OpConst, len(b.prog.Consts)-1, 0)
	b.note(1)
}

func (b *builder) compile(e formula.Expr) error {
	switch n := e.(type) {
	case *formula.NumberLit:
		b.emitConst(value.Number(n.Value))

	case *formula.StringLit:
		b.emitConst(value.Text(n.Value))

	case *formula.BoolLit:
		b.emitConst(value.Bool(n.Value))

	case *formula.ErrorLit:
		b.emitConst(value.Error(n.Kind))

	case *formula.EmptyArg:
		b.emitConst(value.Empty())

	case *formula.CellRef:
		qi, err := b.qualifier(n.Book, n.SheetFirst, n.SheetLast)
		if err != nil {
			return err
		}
		b.prog.Cells = append(b.prog.Cells, CellOperand{Row: n.Row, Col: n.Col, Qual: qi})
		b.emit(OpCell, len(b.prog.Cells)-1, 0)
		b.note(1)

	case *formula.ColRange:
		qi, err := b.qualifier(n.Book, n.SheetFirst, n.SheetLast)
		if err != nil {
			return err
		}
		b.emitRange(RangeOperand{Col1: n.StartCol, Col2: n.EndCol, OpenRows: true, Qual: qi})

	case *formula.RowRange:
		qi, err := b.qualifier(n.Book, n.SheetFirst, n.SheetLast)
		if err != nil {
			return err
		}
		b.emitRange(RangeOperand{Row1: n.StartRow, Row2: n.EndRow, OpenCols: true, Qual: qi})

	case *formula.RangeExpr:
		left, right, ok := formula.FoldableRange(n)
		if !ok {
			if err := b.compile(n.Left); err != nil {
				return err
			}
			if err := b.compile(n.Right); err != nil {
				return err
			}
			b.emit(OpRangeJoin, 0, 0)
			b.note(-1)
			return nil
		}
		qi, err := b.qualifier(left.Book, left.SheetFirst, left.SheetLast)
		if err != nil {
			return err
		}
		b.emitRange(RangeOperand{
			Row1: left.Row, Col1: left.Col,
			Row2: right.Row, Col2: right.Col,
			Qual: qi,
		})

	case *formula.NameRef:
		b.prog.Names = append(b.prog.Names, NameOperand{Sheet: n.Sheet, Name: n.Name})
		b.emit(OpName, len(b.prog.Names)-1, 0)
		b.note(1)

	case *formula.StructuredRef:
		return fmt.Errorf("%w: structured reference", ErrNotCompilable)

	case *formula.FuncCall:
		return b.compileCall(n)

	case *formula.Invoke:
		return fmt.Errorf("%w: lambda invocation", ErrNotCompilable)

	case *formula.LambdaExpr:
		return fmt.Errorf("%w: lambda", ErrNotCompilable)

	case *formula.ArrayLit:
		rows := len(n.Rows)
		cols := 0
		if rows > 0 {
			cols = len(n.Rows[0])
		}
		if rows == 0 || cols == 0 {
			b.emitConst(value.Error(value.ErrValue))
			return nil
		}
		for _, row := range n.Rows {
			for _, el := range row {
				if err := b.compile(el); err != nil {
					return err
				}
			}
		}
		b.emit(OpMakeArray, rows, cols)
		b.note(1 - rows*cols)

	case *formula.UnaryExpr:
		if err := b.compile(n.Operand); err != nil {
			return err
		}
		if n.Op == formula.OpPercent {
			b.emit(OpPercent, int(n.Op), 0)
		} else {
			b.emit(OpUnary, int(n.Op), 0)
		}

	case *formula.BinaryExpr:
		if err := b.compile(n.Left); err != nil {
			return err
		}
		if err := b.compile(n.Right); err != nil {
			return err
		}
		switch n.Op {
		case formula.OpEQ, formula.OpNE, formula.OpLT, formula.OpGT, formula.OpLE, formula.OpGE:
			b.emit(OpCompare, int(n.Op), 0)
		case formula.OpConcat:
			b.emit(OpConcat, int(n.Op), 0)
		default:
			b.emit(OpBinary, int(n.Op), 0)
		}
		b.note(-1)

	case *formula.SpillRange:
		if err := b.compile(n.Operand); err != nil {
			return err
		}
		b.emit(OpSpill, 0, 0)

	default:
		return fmt.Errorf("%w: unsupported node %T", ErrNotCompilable, e)
	}
	return nil
}

func (b *builder) emitRange(op RangeOperand) {
	b.prog.Ranges = append(b.prog.Ranges, op)
	b.emit(OpRange, len(b.prog.Ranges)-1, 0)
	b.note(1)
}

// qualifier interns a sheet qualifier, returning ownSheet for the
// unqualified case. External 3-D spans stay interpreted because the
// provider contract resolves them as a unit, not per program load.
func (b *builder) qualifier(book, first, last string) (int, error) {
	if book == "" && first == "" {
		return ownSheet, nil
	}
	if book != "" && last != "" && last != first {
		return 0, fmt.Errorf("%w: external 3-D span", ErrNotCompilable)
	}
	if last == "" {
		last = first
	}
	q := Qualifier{Book: book, First: first, Last: last}
	for i, have := range b.prog.Quals {
		if have == q {
			return i, nil
		}
	}
	b.prog.Quals = append(b.prog.Quals, q)
	return len(b.prog.Quals) - 1, nil
}

func (b *builder) fnIndex(d *fn.Descriptor) int {
	for i, have := range b.prog.Funcs {
		if have == d {
			return i
		}
	}
	b.prog.Funcs = append(b.prog.Funcs, d)
	return len(b.prog.Funcs) - 1
}

func (b *builder) compileCall(n *formula.FuncCall) error {
	if n.Name == "INDIRECT" {
		return fmt.Errorf("%w: INDIRECT resolves its target at run time", ErrNotCompilable)
	}
	d, ok := b.fns.Lookup(n.Name)
	if !ok {
		// The name may still resolve to a defined lambda at run time.
		return fmt.Errorf("%w: call to undefined function %s", ErrNotCompilable, n.Name)
	}
	if d.Lazy {
		switch n.Name {
		case "IF", "IFS", "IFERROR", "IFNA":
		default:
			return fmt.Errorf("%w: %s evaluates its arguments lazily", ErrNotCompilable, n.Name)
		}
	}
	if !d.CheckArity(len(n.Args)) {
		b.emitConst(value.Error(value.ErrValue))
		return nil
	}
	switch {
	case !d.Lazy:
	case n.Name == "IF":
		return b.compileIf(n)
	case n.Name == "IFS":
		return b.compileIfs(n)
	case n.Name == "IFERROR":
		return b.compileIfError(n, 0)
	default:
		return b.compileIfError(n, 1)
	}
	for _, arg := range n.Args {
		if err := b.compile(arg); err != nil {
			return err
		}
	}
	b.emit(OpCall, b.fnIndex(d), len(n.Args))
	b.note(1 - len(n.Args))
	return nil
}

// compileIf lowers IF to a conditional jump. An omitted else branch
// yields FALSE; an explicitly empty one yields blank. A condition
// that errors becomes the value of the IF itself, not of the whole
// program, so error-inspecting callers can still catch it.
func (b *builder) compileIf(n *formula.FuncCall) error {
	if err := b.compile(n.Args[0]); err != nil {
		return err
	}
	jf := b.emit(OpJumpIfFalse, 0, 0)
	b.note(-1)
	depth := b.cur
	if err := b.compile(n.Args[1]); err != nil {
		return err
	}
	jend := b.emit(OpJump, 0, 0)
	b.patch(jf)
	b.cur = depth
	if len(n.Args) == 3 {
		if err := b.compile(n.Args[2]); err != nil {
			return err
		}
	} else {
		b.emitConst(value.Bool(false))
	}
	b.patch(jend)
	b.patchErr(jf)
	return nil
}

// compileIfs lowers IFS to a jump chain. Conditions after the first
// true one never run; with no true condition the result is #N/A, and
// an erroring condition is the value of the IFS. A trailing unpaired
// argument is never evaluated.
func (b *builder) compileIfs(n *formula.FuncCall) error {
	var ends, jfs []int
	for i := 0; i+1 < len(n.Args); i += 2 {
		if err := b.compile(n.Args[i]); err != nil {
			return err
		}
		jf := b.emit(OpJumpIfFalse, 0, 0)
		jfs = append(jfs, jf)
		b.note(-1)
		depth := b.cur
		if err := b.compile(n.Args[i+1]); err != nil {
			return err
		}
		ends = append(ends, b.emit(OpJump, 0, 0))
		b.patch(jf)
		b.cur = depth
	}
	b.emitConst(value.Error(value.ErrNA))
	for _, at := range ends {
		b.patch(at)
	}
	for _, at := range jfs {
		b.patchErr(at)
	}
	return nil
}

// compileIfError lowers IFERROR and IFNA. The fallback argument runs
// only when the first one produced an error the form handles: any
// error for IFERROR, #N/A alone for IFNA.
func (b *builder) compileIfError(n *formula.FuncCall, naOnly int) error {
	if err := b.compile(n.Args[0]); err != nil {
		return err
	}
	jend := b.emit(OpJumpIfNoErr, 0, naOnly)
	b.emit(OpPop, 0, 0)
	b.note(-1)
	if err := b.compile(n.Args[1]); err != nil {
		return err
	}
	b.patch(jend)
	return nil
}
