package bytecode

import (
	"errors"
	"testing"

	"github.com/leapstack-labs/leapcalc/pkg/ref"
	"github.com/leapstack-labs/leapcalc/pkg/value"
)

func shapeAt(t *testing.T, src string, origin ref.CellKey) string {
	t.Helper()
	return Shape(parseAt(t, src, origin))
}

func TestShape_SharedAcrossFilledColumn(t *testing.T) {
	b1 := ref.Key("Sheet1", ref.Addr{Row: 0, Col: 1})
	b2 := ref.Key("Sheet1", ref.Addr{Row: 1, Col: 1})

	// Relative references keep the same origin deltas down a fill.
	if shapeAt(t, "=A1+1", b1) != shapeAt(t, "=A2+1", b2) {
		t.Error("expected filled-down relative formulas to share a shape")
	}
	if shapeAt(t, "=SUM(A1:C1)", b1) != shapeAt(t, "=SUM(A2:C2)", b2) {
		t.Error("expected filled-down range formulas to share a shape")
	}

	// Absolute references pin the same cell from any origin.
	if shapeAt(t, "=$A$1+1", b1) != shapeAt(t, "=$A$1+1", b2) {
		t.Error("expected absolute formulas to share a shape")
	}

	// Mixed anchoring is a different program.
	if shapeAt(t, "=A1", b1) == shapeAt(t, "=$A$1", b1) {
		t.Error("expected relative and absolute references to differ")
	}
}

func TestShape_Distinctions(t *testing.T) {
	origin := ref.Key("Sheet1", ref.Addr{Row: 0, Col: 3})
	pairs := [][2]string{
		{"=SUM(A1:A3)", "=SUM(A1:A4)"},
		{"=A1", "=Sheet2!A1"},
		{`="x"`, `="y"`},
		{"=A1+1", "=A1-1"},
		{"=IF(A1,1,2)", "=IF(A1,1)"},
	}
	for _, p := range pairs {
		if shapeAt(t, p[0], origin) == shapeAt(t, p[1], origin) {
			t.Errorf("expected distinct shapes for %q and %q", p[0], p[1])
		}
	}

	// Numeric spelling does not matter once parsed.
	if shapeAt(t, "=1+A1", origin) != shapeAt(t, "=1.0+A1", origin) {
		t.Error("expected equal-valued literals to share a shape")
	}
}

func TestCompile_NotCompilable(t *testing.T) {
	origin := ref.Key("Sheet1", ref.Addr{Row: 0, Col: 0})
	c := NewCompiler(testTable)
	for _, src := range []string{
		`=INDIRECT("A1")`,
		`=SUM(INDIRECT("A1:A3"))`,
		"=SWITCH(1,1,2)",
		"=CHOOSE(1,2,3)",
		"=LET(x,1,x+1)",
		"=LAMBDA(x,x*2)",
		"=LAMBDA(x,x*2)(21)",
		"=Table1[Amount]",
		"=[Book1.xlsx]Sheet1:Sheet3!A1",
		"=NOSUCHFUNCTION(1)",
	} {
		_, err := c.Compile(parseAt(t, src, origin))
		if !errors.Is(err, ErrNotCompilable) {
			t.Errorf("expected %q to be rejected, got %v", src, err)
		}
	}
}

func TestCompile_CommonFormsCompile(t *testing.T) {
	origin := ref.Key("Sheet1", ref.Addr{Row: 4, Col: 4})
	c := NewCompiler(testTable)
	for _, src := range []string{
		"=SUM(A1:B10)*2",
		"=IF(A1>0,A1,0)",
		"=IFS(A1>0,1,A1<0,-1)",
		"=IFERROR(A1/B1,0)",
		"=VLOOKUP(A1,B:D,2,FALSE)",
		"=OFFSET(A1,1,1)",
		"=AND(A1>0,B1>0)",
		"=A1#",
		"=@A1:A10",
		"=Sheet1:Sheet3!A1",
		"={1,2;3,4}",
		"=MyName+1",
	} {
		if _, err := c.Compile(parseAt(t, src, origin)); err != nil {
			t.Errorf("expected %q to compile, got %v", src, err)
		}
	}
}

func TestCompile_UnknownCallVersusName(t *testing.T) {
	origin := ref.Key("Sheet1", ref.Addr{Row: 0, Col: 0})
	c := NewCompiler(testTable)

	// A call to an unregistered name may be a defined lambda, so it
	// stays on the tree evaluator.
	if _, err := c.Compile(parseAt(t, "=FOO(1)", origin)); !errors.Is(err, ErrNotCompilable) {
		t.Errorf("expected unknown call to be rejected, got %v", err)
	}

	// A bare name is an ordinary runtime lookup.
	if _, err := c.Compile(parseAt(t, "=FOO", origin)); err != nil {
		t.Errorf("expected bare name to compile, got %v", err)
	}
}

func TestCompile_IfJumpLayout(t *testing.T) {
	p := compileAt(t, "=IF(A1,1,2)", ref.Key("Sheet1", ref.Addr{Row: 0, Col: 1}))

	ops := make([]Opcode, len(p.Code))
	for i, in := range p.Code {
		ops[i] = in.Op
	}
	want := []Opcode{OpCell, OpJumpIfFalse, OpConst, OpJump, OpConst}
	if len(ops) != len(want) {
		t.Fatalf("expected %d instructions, got %v", len(want), ops)
	}
	for i := range want {
		if ops[i] != want[i] {
			t.Fatalf("instruction %d: expected %s, got %s", i, want[i], ops[i])
		}
	}
	if p.Code[1].A != 4 {
		t.Errorf("expected false branch at 4, got %d", p.Code[1].A)
	}
	if p.Code[3].A != 5 {
		t.Errorf("expected join point at 5, got %d", p.Code[3].A)
	}
	if p.MaxStack != 1 {
		t.Errorf("expected max stack 1, got %d", p.MaxStack)
	}
}

func TestCompile_IfErrorLayout(t *testing.T) {
	p := compileAt(t, "=IFERROR(A1,0)", ref.Key("Sheet1", ref.Addr{Row: 0, Col: 1}))

	want := []Opcode{OpCell, OpJumpIfNoErr, OpPop, OpConst}
	if len(p.Code) != len(want) {
		t.Fatalf("expected %d instructions, got %d", len(want), len(p.Code))
	}
	for i, op := range want {
		if p.Code[i].Op != op {
			t.Fatalf("instruction %d: expected %s, got %s", i, op, p.Code[i].Op)
		}
	}
	if p.Code[1].A != 4 || p.Code[1].B != 0 {
		t.Errorf("expected jump (4, any-error), got (%d, %d)", p.Code[1].A, p.Code[1].B)
	}

	// IFNA handles only #N/A.
	p = compileAt(t, "=IFNA(A1,0)", ref.Key("Sheet1", ref.Addr{Row: 0, Col: 1}))
	if p.Code[1].B != 1 {
		t.Errorf("expected na-only flag, got %d", p.Code[1].B)
	}
}

func TestCompile_ArityViolationFoldsToError(t *testing.T) {
	p := compileAt(t, "=ABS(1,2)", ref.Key("Sheet1", ref.Addr{Row: 0, Col: 0}))
	if len(p.Code) != 1 || p.Code[0].Op != OpConst {
		t.Fatalf("expected a single constant, got %v", p.Code)
	}
	wantError(t, p.Consts[0], value.ErrValue)
}

func TestCompile_MaxStack(t *testing.T) {
	origin := ref.Key("Sheet1", ref.Addr{Row: 0, Col: 0})
	cases := []struct {
		src  string
		want int
	}{
		{"=1", 1},
		{"=1+2+3", 2},
		{"=SUM(1,2,3,4)", 4},
		{"={1,2;3,4}", 4},
		{"=(1+2)*(3+4)", 3},
	}
	for _, c := range cases {
		p := compileAt(t, c.src, origin)
		if p.MaxStack != c.want {
			t.Errorf("%s: expected max stack %d, got %d", c.src, c.want, p.MaxStack)
		}
	}
}

func TestCompile_OperandInterning(t *testing.T) {
	origin := ref.Key("Sheet1", ref.Addr{Row: 0, Col: 0})

	p := compileAt(t, "=Sheet2!A1+Sheet2!B1", origin)
	if len(p.Quals) != 1 {
		t.Errorf("expected one interned qualifier, got %d", len(p.Quals))
	}
	for i, cell := range p.Cells {
		if cell.Qual != 0 {
			t.Errorf("cell %d: expected qualifier 0, got %d", i, cell.Qual)
		}
	}

	p = compileAt(t, "=A1+B1", origin)
	if len(p.Quals) != 0 {
		t.Errorf("expected no interned qualifiers, got %d", len(p.Quals))
	}
	for i, cell := range p.Cells {
		if cell.Qual != ownSheet {
			t.Errorf("cell %d: expected own-sheet marker, got %d", i, cell.Qual)
		}
	}

	p = compileAt(t, "=SUM(1)+SUM(2)+MAX(3)", origin)
	if len(p.Funcs) != 2 {
		t.Errorf("expected two interned descriptors, got %d", len(p.Funcs))
	}
}

func TestCompile_WholeAxisOperands(t *testing.T) {
	origin := ref.Key("Sheet1", ref.Addr{Row: 0, Col: 3})

	p := compileAt(t, "=SUM(B:B)", origin)
	if len(p.Ranges) != 1 {
		t.Fatalf("expected one range operand, got %d", len(p.Ranges))
	}
	if !p.Ranges[0].OpenRows || p.Ranges[0].OpenCols {
		t.Errorf("expected open rows only, got rows=%v cols=%v",
			p.Ranges[0].OpenRows, p.Ranges[0].OpenCols)
	}

	p = compileAt(t, "=SUM(2:4)", origin)
	if !p.Ranges[0].OpenCols || p.Ranges[0].OpenRows {
		t.Errorf("expected open cols only, got rows=%v cols=%v",
			p.Ranges[0].OpenRows, p.Ranges[0].OpenCols)
	}
}
