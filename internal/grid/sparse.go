package grid

import (
	"sort"
	"sync"

	"github.com/leapstack-labs/leapcalc/pkg/ref"
	"github.com/leapstack-labs/leapcalc/pkg/value"
)

// Sparse is the default map-backed store. Suited to workbooks where
// occupied cells are scattered; memory scales with the number of
// written cells, not the addressed area.
type Sparse struct {
	mu     sync.RWMutex
	cells  map[ref.CellKey]value.Value
	extent map[string]ref.Addr // per sheet, max written row/col
}

// NewSparse creates an empty sparse grid.
func NewSparse() *Sparse {
	return &Sparse{
		cells:  make(map[ref.CellKey]value.Value),
		extent: make(map[string]ref.Addr),
	}
}

// Value returns the stored value of a cell, or Empty.
func (s *Sparse) Value(key ref.CellKey) value.Value {
	s.mu.RLock()
	v := s.cells[key]
	s.mu.RUnlock()
	return v
}

// SetValue stores a value. Writing Empty clears the cell; the sheet
// extent keeps its high-water mark.
func (s *Sparse) SetValue(key ref.CellKey, v value.Value) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v.IsEmpty() {
		delete(s.cells, key)
		return
	}
	s.cells[key] = v
	s.grow(key)
}

func (s *Sparse) grow(key ref.CellKey) {
	ext, ok := s.extent[key.Sheet]
	if !ok {
		s.extent[key.Sheet] = key.Addr()
		return
	}
	if key.Row > ext.Row {
		ext.Row = key.Row
	}
	if key.Col > ext.Col {
		ext.Col = key.Col
	}
	s.extent[key.Sheet] = ext
}

// Dims returns the used extent of a sheet.
func (s *Sparse) Dims(sheet string) (rows, cols int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ext, ok := s.extent[sheet]
	if !ok {
		return 0, 0
	}
	return ext.Row + 1, ext.Col + 1
}

// Sheets lists the sheets that have ever held a value, sorted.
func (s *Sparse) Sheets() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.extent))
	for name := range s.extent {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of occupied cells.
func (s *Sparse) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cells)
}
