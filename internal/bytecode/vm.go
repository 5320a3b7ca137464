package bytecode

import (
	"github.com/leapstack-labs/leapcalc/internal/fn"
	"github.com/leapstack-labs/leapcalc/pkg/formula"
	"github.com/leapstack-labs/leapcalc/pkg/ref"
	"github.com/leapstack-labs/leapcalc/pkg/value"
)

// VM executes compiled programs. It reuses one operand stack across
// runs, so a VM belongs to a single goroutine; programs themselves
// are shared freely.
type VM struct {
	stack []value.Value
}

// NewVM returns a fresh virtual machine.
func NewVM() *VM { return &VM{} }

// Eval runs a program against the environment's origin cell and
// returns the final value, dereferenced the same way a tree
// evaluation of the source expression would be.
func (m *VM) Eval(p *Program, env Env) value.Value {
	stack := m.stack[:0]
	if cap(stack) < p.MaxStack {
		stack = make([]value.Value, 0, p.MaxStack)
	}
	code := p.Code
	for pc := 0; pc < len(code); pc++ {
		in := code[pc]
		switch in.Op {
		case OpConst:
			stack = append(stack, p.Consts[in.A])

		case OpCell:
			stack = append(stack, loadCell(p, env, in.A))

		case OpRange:
			stack = append(stack, loadRange(p, env, in.A))

		case OpName:
			n := p.Names[in.A]
			sheet := n.Sheet
			if sheet == "" {
				sheet = env.Origin().Sheet
			}
			v, ok := env.ResolveName(sheet, n.Name)
			if !ok {
				v = value.Error(value.ErrName)
			}
			stack = append(stack, v)

		case OpSpill:
			stack[len(stack)-1] = SpillArea(env, stack[len(stack)-1])

		case OpUnary, OpPercent:
			stack[len(stack)-1] = ApplyUnary(env, formula.Op(in.A), stack[len(stack)-1])

		case OpBinary, OpConcat, OpCompare:
			right := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			stack[len(stack)-1] = ApplyBinary(env, formula.Op(in.A), stack[len(stack)-1], right)

		case OpRangeJoin:
			right := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			stack[len(stack)-1] = JoinRange(env, stack[len(stack)-1], right)

		case OpCall:
			argc := in.B
			args := stack[len(stack)-argc:]
			res := CallFunction(env, p.Funcs[in.A], args)
			stack = append(stack[:len(stack)-argc], res)

		case OpMakeArray:
			rows, cols := in.A, in.B
			base := len(stack) - rows*cols
			cells := make([][]value.Value, rows)
			for r := 0; r < rows; r++ {
				line := make([]value.Value, cols)
				for c := 0; c < cols; c++ {
					line[c] = fn.Deref(env, stack[base+r*cols+c])
				}
				cells[r] = line
			}
			stack = append(stack[:base], value.NewArray(cells))

		case OpJump:
			pc = in.A - 1

		case OpJumpIfFalse:
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			b, err := Condition(env, top)
			if err != nil {
				stack = append(stack, value.FromError(err))
				pc = in.B - 1
				continue
			}
			if !b {
				pc = in.A - 1
			}

		case OpJumpIfNoErr:
			probe := fn.Deref(env, stack[len(stack)-1])
			handled := probe.IsError() && (in.B == 0 || probe.Err() == value.ErrNA)
			if !handled {
				pc = in.A - 1
			}

		case OpPop:
			stack = stack[:len(stack)-1]
		}
	}
	var out value.Value
	if len(stack) == 0 {
		out = value.Error(value.ErrUnknown)
	} else {
		out = Materialize(env, stack[len(stack)-1])
	}
	m.stack = stack[:0]
	return out
}

func loadCell(p *Program, env Env, i int) value.Value {
	op := p.Cells[i]
	origin := env.Origin()
	a := ref.Addr{Row: op.Row.Resolve(origin.Row), Col: op.Col.Resolve(origin.Col)}
	if !a.Valid() {
		return value.Error(value.ErrRef)
	}
	r := ref.Range{StartRow: a.Row, StartCol: a.Col, EndRow: a.Row, EndCol: a.Col}
	return value.Reference(p.area(op.Qual, origin, r))
}

func loadRange(p *Program, env Env, i int) value.Value {
	op := p.Ranges[i]
	origin := env.Origin()
	r := ref.Range{
		StartRow: ref.Unbounded, EndRow: ref.Unbounded,
		StartCol: ref.Unbounded, EndCol: ref.Unbounded,
	}
	if !op.OpenRows {
		r.StartRow = op.Row1.Resolve(origin.Row)
		r.EndRow = op.Row2.Resolve(origin.Row)
	}
	if !op.OpenCols {
		r.StartCol = op.Col1.Resolve(origin.Col)
		r.EndCol = op.Col2.Resolve(origin.Col)
	}
	r = r.Normalize()
	if !BoundsValid(r) {
		return value.Error(value.ErrRef)
	}
	return value.Reference(p.area(op.Qual, origin, r))
}

// BoundsValid checks closed bounds against the sheet limits. After
// Normalize the start of each closed axis is the smaller index.
func BoundsValid(r ref.Range) bool {
	if r.StartRow != ref.Unbounded && (r.StartRow < 0 || r.EndRow >= ref.MaxRows) {
		return false
	}
	if r.StartCol != ref.Unbounded && (r.StartCol < 0 || r.EndCol >= ref.MaxCols) {
		return false
	}
	return true
}

// area resolves an interned qualifier against the evaluation origin.
func (p *Program) area(qual int, origin ref.CellKey, r ref.Range) ref.Area {
	if qual == ownSheet {
		return ref.AreaOf(origin.Sheet, r)
	}
	q := p.Quals[qual]
	r.Sheet = ""
	return ref.Area{Book: q.Book, Sheets: q.Span(), Rect: r}
}
