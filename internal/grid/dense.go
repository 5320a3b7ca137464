package grid

import (
	"sort"
	"sync"

	"github.com/leapstack-labs/leapcalc/pkg/ref"
	"github.com/leapstack-labs/leapcalc/pkg/value"
)

// Dense stores numbers in per-sheet columnar arrays sized at
// construction. Cells outside the numeric block, and non-numeric
// values inside it, spill into an overflow map, so the contract stays
// identical to Sparse while numeric-heavy sheets avoid per-cell map
// entries.
type Dense struct {
	mu     sync.RWMutex
	rows   int
	cols   int
	sheets map[string]*denseSheet
}

type denseSheet struct {
	nums     []float64
	occupied []bool
	overflow map[ref.Addr]value.Value
	extent   ref.Addr
	used     bool
}

// NewDense creates a dense grid whose numeric block covers rows x
// cols per sheet.
func NewDense(rows, cols int) *Dense {
	if rows < 1 {
		rows = 1
	}
	if cols < 1 {
		cols = 1
	}
	return &Dense{rows: rows, cols: cols, sheets: make(map[string]*denseSheet)}
}

// slot returns the column-major index of an in-block address.
func (d *Dense) slot(a ref.Addr) int {
	return a.Col*d.rows + a.Row
}

func (d *Dense) inBlock(a ref.Addr) bool {
	return a.Row >= 0 && a.Row < d.rows && a.Col >= 0 && a.Col < d.cols
}

func (d *Dense) sheet(name string) *denseSheet {
	sh, ok := d.sheets[name]
	if !ok {
		sh = &denseSheet{
			nums:     make([]float64, d.rows*d.cols),
			occupied: make([]bool, d.rows*d.cols),
			overflow: make(map[ref.Addr]value.Value),
		}
		d.sheets[name] = sh
	}
	return sh
}

// Value returns the stored value of a cell, or Empty.
func (d *Dense) Value(key ref.CellKey) value.Value {
	d.mu.RLock()
	defer d.mu.RUnlock()
	sh, ok := d.sheets[key.Sheet]
	if !ok {
		return value.Empty()
	}
	a := key.Addr()
	if d.inBlock(a) {
		if i := d.slot(a); sh.occupied[i] {
			return value.Number(sh.nums[i])
		}
	}
	return sh.overflow[a]
}

// SetValue stores a value. Numbers inside the block go to the
// columnar arrays; everything else lands in the overflow map. Writing
// Empty clears the cell.
func (d *Dense) SetValue(key ref.CellKey, v value.Value) {
	d.mu.Lock()
	defer d.mu.Unlock()
	sh := d.sheet(key.Sheet)
	a := key.Addr()
	in := d.inBlock(a)

	if v.IsEmpty() {
		if in {
			i := d.slot(a)
			sh.nums[i] = 0
			sh.occupied[i] = false
		}
		delete(sh.overflow, a)
		return
	}

	if in && v.IsNumber() {
		i := d.slot(a)
		sh.nums[i] = v.Num()
		sh.occupied[i] = true
		delete(sh.overflow, a)
	} else {
		if in {
			i := d.slot(a)
			sh.nums[i] = 0
			sh.occupied[i] = false
		}
		sh.overflow[a] = v
	}

	if !sh.used {
		sh.used = true
		sh.extent = a
		return
	}
	if a.Row > sh.extent.Row {
		sh.extent.Row = a.Row
	}
	if a.Col > sh.extent.Col {
		sh.extent.Col = a.Col
	}
}

// Dims returns the used extent of a sheet.
func (d *Dense) Dims(sheet string) (rows, cols int) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	sh, ok := d.sheets[sheet]
	if !ok || !sh.used {
		return 0, 0
	}
	return sh.extent.Row + 1, sh.extent.Col + 1
}

// Sheets lists the sheets that have ever held a value, sorted.
func (d *Dense) Sheets() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, 0, len(d.sheets))
	for name, sh := range d.sheets {
		if sh.used {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
