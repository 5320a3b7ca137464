// Package ref defines cell and range references for the calculation
// engine: zero-based coordinates, globally ordered cell keys, normalized
// ranges with open bounds, and keys for sheets in external workbooks.
package ref

import (
	"fmt"
	"strings"
)

// Sheet size limits. Parsed references beyond these bounds are invalid
// and surface as #REF! at evaluation time.
const (
	MaxRows = 1_048_576
	MaxCols = 16_384
)

// Unbounded marks a row or column bound that runs to the sheet edge,
// as produced by whole-row (3:5) and whole-column (B:D) references.
const Unbounded = -1

// Addr is a zero-based (row, column) coordinate within one sheet.
type Addr struct {
	Row int
	Col int
}

// Valid reports whether the address lies inside the sheet limits.
func (a Addr) Valid() bool {
	return a.Row >= 0 && a.Row < MaxRows && a.Col >= 0 && a.Col < MaxCols
}

// String returns the plain A1 form, e.g. "B3".
func (a Addr) String() string {
	return FormatA1(a)
}

// CellKey identifies a single cell across the whole workbook.
type CellKey struct {
	Sheet string
	Row   int
	Col   int
}

// Key builds a CellKey from a sheet name and address.
func Key(sheet string, a Addr) CellKey {
	return CellKey{Sheet: sheet, Row: a.Row, Col: a.Col}
}

// Addr returns the in-sheet coordinate of the key.
func (k CellKey) Addr() Addr {
	return Addr{Row: k.Row, Col: k.Col}
}

// Compare orders keys by sheet, then row, then column. The order is
// total and stable, which recalculation relies on for deterministic
// scheduling.
func (k CellKey) Compare(o CellKey) int {
	if c := strings.Compare(k.Sheet, o.Sheet); c != 0 {
		return c
	}
	if k.Row != o.Row {
		if k.Row < o.Row {
			return -1
		}
		return 1
	}
	if k.Col != o.Col {
		if k.Col < o.Col {
			return -1
		}
		return 1
	}
	return 0
}

// Less reports whether k orders before o.
func (k CellKey) Less(o CellKey) bool {
	return k.Compare(o) < 0
}

// String returns the qualified form, e.g. "Sheet1!B3" or "'My Sheet'!B3".
func (k CellKey) String() string {
	return QuoteSheet(k.Sheet) + "!" + FormatA1(k.Addr())
}

// Range is a rectangular block of cells on one sheet. Bounds are
// normalized so Start is the top-left corner. A row or column bound of
// Unbounded denotes a whole-row or whole-column reference.
type Range struct {
	Sheet    string
	StartRow int
	StartCol int
	EndRow   int
	EndCol   int
}

// CellRange builds a single-cell range.
func CellRange(sheet string, a Addr) Range {
	return Range{Sheet: sheet, StartRow: a.Row, StartCol: a.Col, EndRow: a.Row, EndCol: a.Col}
}

// Normalize returns the range with start and end swapped into canonical
// top-left/bottom-right order. Unbounded markers are preserved.
func (r Range) Normalize() Range {
	if r.StartRow != Unbounded && r.EndRow != Unbounded && r.StartRow > r.EndRow {
		r.StartRow, r.EndRow = r.EndRow, r.StartRow
	}
	if r.StartCol != Unbounded && r.EndCol != Unbounded && r.StartCol > r.EndCol {
		r.StartCol, r.EndCol = r.EndCol, r.StartCol
	}
	return r
}

// Bounded reports whether every bound is finite. Unbounded ranges are
// tracked coarsely by the dependency graph instead of being expanded.
func (r Range) Bounded() bool {
	return r.StartRow != Unbounded && r.StartCol != Unbounded &&
		r.EndRow != Unbounded && r.EndCol != Unbounded
}

// Single reports whether the range covers exactly one cell.
func (r Range) Single() bool {
	return r.Bounded() && r.StartRow == r.EndRow && r.StartCol == r.EndCol
}

// Count returns the number of cells covered, or -1 when unbounded.
func (r Range) Count() int {
	if !r.Bounded() {
		return -1
	}
	return (r.EndRow - r.StartRow + 1) * (r.EndCol - r.StartCol + 1)
}

// Rows returns the row extent, or -1 when the row bounds are open.
func (r Range) Rows() int {
	if r.StartRow == Unbounded || r.EndRow == Unbounded {
		return -1
	}
	return r.EndRow - r.StartRow + 1
}

// Cols returns the column extent, or -1 when the column bounds are open.
func (r Range) Cols() int {
	if r.StartCol == Unbounded || r.EndCol == Unbounded {
		return -1
	}
	return r.EndCol - r.StartCol + 1
}

// Contains reports whether the address falls inside the range,
// honoring open bounds.
func (r Range) Contains(a Addr) bool {
	if r.StartRow != Unbounded && a.Row < r.StartRow {
		return false
	}
	if r.EndRow != Unbounded && a.Row > r.EndRow {
		return false
	}
	if r.StartCol != Unbounded && a.Col < r.StartCol {
		return false
	}
	if r.EndCol != Unbounded && a.Col > r.EndCol {
		return false
	}
	return true
}

// Intersects reports whether the two ranges share at least one cell.
// Sheets are not compared; callers scope ranges per sheet.
func (r Range) Intersects(o Range) bool {
	rowsOverlap := (r.StartRow == Unbounded || o.EndRow == Unbounded || r.StartRow <= o.EndRow) &&
		(o.StartRow == Unbounded || r.EndRow == Unbounded || o.StartRow <= r.EndRow)
	colsOverlap := (r.StartCol == Unbounded || o.EndCol == Unbounded || r.StartCol <= o.EndCol) &&
		(o.StartCol == Unbounded || r.EndCol == Unbounded || o.StartCol <= r.EndCol)
	return rowsOverlap && colsOverlap
}

// ForEach visits every cell of a bounded range in row-major order and
// stops early when fn returns false. Unbounded ranges visit nothing.
func (r Range) ForEach(fn func(Addr) bool) {
	if !r.Bounded() {
		return
	}
	for row := r.StartRow; row <= r.EndRow; row++ {
		for col := r.StartCol; col <= r.EndCol; col++ {
			if !fn(Addr{Row: row, Col: col}) {
				return
			}
		}
	}
}

// TopLeft returns the smallest cell key covered by the range, clamping
// open bounds to zero. Used as the deterministic representative of a
// range in scheduling order.
func (r Range) TopLeft() CellKey {
	row, col := r.StartRow, r.StartCol
	if row == Unbounded {
		row = 0
	}
	if col == Unbounded {
		col = 0
	}
	return CellKey{Sheet: r.Sheet, Row: row, Col: col}
}

// String returns the qualified A1 form, e.g. "Sheet1!A1:D10".
func (r Range) String() string {
	return QuoteSheet(r.Sheet) + "!" + FormatA1Range(r)
}

// SheetSpan names a contiguous run of sheets for 3-D references such as
// Sheet1:Sheet3!A1. Last equals First for a single sheet.
type SheetSpan struct {
	First string
	Last  string
}

// Span builds a SheetSpan, treating an empty last name as single-sheet.
func Span(first, last string) SheetSpan {
	if last == "" {
		last = first
	}
	return SheetSpan{First: first, Last: last}
}

// Single reports whether the span names exactly one sheet.
func (s SheetSpan) Single() bool {
	return s.First == s.Last
}

// String renders the span in formula form, quoting when required.
func (s SheetSpan) String() string {
	if s.Single() {
		return QuoteSheet(s.First)
	}
	if needsQuote(s.First) || needsQuote(s.Last) {
		return quoteName(s.First + ":" + s.Last)
	}
	return s.First + ":" + s.Last
}

// ExternalKey identifies a sheet, or 3-D sheet span, in another
// workbook. Its canonical string form is "[Book]Sheet" for a single
// sheet and "[Book]First:Last" for a span, which is the key handed to
// an external value provider.
type ExternalKey struct {
	Book  string
	First string
	Last  string
}

// NewExternalKey builds an ExternalKey, treating an empty last name as
// a single-sheet reference.
func NewExternalKey(book, first, last string) ExternalKey {
	if last == "" {
		last = first
	}
	return ExternalKey{Book: book, First: first, Last: last}
}

// Single reports whether the key names exactly one sheet.
func (k ExternalKey) Single() bool {
	return k.First == k.Last
}

// String returns the canonical bracketed form.
func (k ExternalKey) String() string {
	if k.Single() {
		return "[" + k.Book + "]" + k.First
	}
	return "[" + k.Book + "]" + k.First + ":" + k.Last
}

// ParseExternalKey parses the canonical "[Book]Sheet" or
// "[Book]First:Last" form produced by String.
func ParseExternalKey(s string) (ExternalKey, error) {
	if len(s) == 0 || s[0] != '[' {
		return ExternalKey{}, fmt.Errorf("external key %q: missing [Book] prefix", s)
	}
	end := strings.IndexByte(s, ']')
	if end < 0 {
		return ExternalKey{}, fmt.Errorf("external key %q: unterminated [Book] prefix", s)
	}
	book := s[1:end]
	rest := s[end+1:]
	if book == "" || rest == "" {
		return ExternalKey{}, fmt.Errorf("external key %q: empty book or sheet name", s)
	}
	first, last, spanned := strings.Cut(rest, ":")
	if !spanned {
		last = first
	}
	if first == "" || last == "" {
		return ExternalKey{}, fmt.Errorf("external key %q: empty sheet name in span", s)
	}
	return ExternalKey{Book: book, First: first, Last: last}, nil
}

// Area is one rectangular reference area as produced by evaluating a
// reference expression: a rectangle on a sheet, a 3-D span of sheets,
// or a sheet in an external workbook. Rect carries the rectangle; its
// Sheet field is left empty because Sheets is authoritative.
type Area struct {
	Book   string
	Sheets SheetSpan
	Rect   Range
}

// AreaOf builds a single-sheet area in the host workbook.
func AreaOf(sheet string, r Range) Area {
	r.Sheet = ""
	return Area{Sheets: Span(sheet, ""), Rect: r}
}

// External reports whether the area lives in another workbook.
func (a Area) External() bool {
	return a.Book != ""
}

// ExternalKey returns the provider key for an external area. The
// second result is false for areas in the host workbook.
func (a Area) ExternalKey() (ExternalKey, bool) {
	if !a.External() {
		return ExternalKey{}, false
	}
	return ExternalKey{Book: a.Book, First: a.Sheets.First, Last: a.Sheets.Last}, true
}

// SheetRange returns the rectangle scoped to one named sheet.
func (a Area) SheetRange(sheet string) Range {
	r := a.Rect
	r.Sheet = sheet
	return r
}

// TopLeft returns the smallest cell key of the area's first sheet.
func (a Area) TopLeft() CellKey {
	r := a.Rect
	r.Sheet = a.Sheets.First
	return r.TopLeft()
}

// String renders the area in formula form, e.g. "Sheet1!A1:B2",
// "Jan:Mar!A1" or "[Book.xlsx]Sheet1!A1".
func (a Area) String() string {
	return QuoteQualifier(a.Book, a.Sheets.First, a.Sheets.Last) + "!" + FormatA1Range(a.Rect)
}

// QuoteQualifier renders the sheet qualifier that precedes '!' in a
// formula: an optional [Book] prefix and a sheet name or First:Last
// span. The whole prefix is quoted as one unit when any part requires
// it, which matches how spreadsheet applications write external
// references.
func QuoteQualifier(book, first, last string) string {
	if book == "" {
		if last == "" || last == first {
			return QuoteSheet(first)
		}
		return SheetSpan{First: first, Last: last}.String()
	}
	span := first
	if last != "" && last != first {
		span += ":" + last
	}
	composite := "[" + book + "]" + span
	if needsQuote(first) || (last != "" && last != first && needsQuote(last)) || bookNeedsQuote(book) {
		return quoteName(composite)
	}
	return composite
}

// bookNeedsQuote is looser than sheet quoting: workbook file names
// routinely contain dots, which do not force quotes.
func bookNeedsQuote(book string) bool {
	return strings.ContainsAny(book, " '!")
}

// QuoteSheet wraps a sheet name in single quotes when formula syntax
// requires it, doubling embedded quotes. Plain identifier-like names
// pass through unchanged.
func QuoteSheet(name string) string {
	if !needsQuote(name) {
		return name
	}
	return quoteName(name)
}

func quoteName(name string) string {
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}

func needsQuote(name string) bool {
	if name == "" {
		return true
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '_':
		case c >= '0' && c <= '9':
			if i == 0 {
				return true
			}
		case c >= 0x80:
			// Multibyte runes are legal unquoted in sheet names.
		default:
			return true
		}
	}
	// A bare name that parses as a cell reference must be quoted so the
	// parser does not read it as one.
	if _, ok := ParseA1(name); ok {
		return true
	}
	return false
}
