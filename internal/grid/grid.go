// Package grid stores cell values for the calculation engine. Two
// backends implement the same contract: a sparse map for general
// workbooks and a dense columnar store for numeric-heavy sheets. A
// cell that was never written reads as Empty on both.
package grid

import (
	"github.com/leapstack-labs/leapcalc/pkg/ref"
	"github.com/leapstack-labs/leapcalc/pkg/value"
)

// Grid is the read side of cell storage. Implementations are safe for
// concurrent readers; during a parallel recalculation the engine's
// workers write disjoint cells while others read.
type Grid interface {
	// Value returns the stored value of a cell, or Empty when the
	// cell holds nothing.
	Value(key ref.CellKey) value.Value

	// Dims returns the used extent of a sheet as a row and column
	// count. The extent is a high-water mark: clearing cells does not
	// shrink it until the sheet is rebuilt.
	Dims(sheet string) (rows, cols int)

	// Sheets lists the sheets that have ever held a value, sorted.
	Sheets() []string
}

// MutableGrid extends Grid with the write side used by the engine.
type MutableGrid interface {
	Grid

	// SetValue stores a value. Writing Empty clears the cell.
	SetValue(key ref.CellKey, v value.Value)
}
