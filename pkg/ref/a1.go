package ref

import "strings"

// ColLabel converts a zero-based column index to its letter label:
// 0 -> "A", 25 -> "Z", 26 -> "AA".
func ColLabel(col int) string {
	if col < 0 {
		return ""
	}
	var buf [4]byte
	i := len(buf)
	for {
		i--
		buf[i] = byte('A' + col%26)
		col = col/26 - 1
		if col < 0 {
			break
		}
	}
	return string(buf[i:])
}

// ColIndex converts a letter label to its zero-based column index:
// "A" -> 0, "AA" -> 26. The second result is false for labels that are
// empty, contain non-letters, or exceed the column limit.
func ColIndex(label string) (int, bool) {
	if label == "" || len(label) > 3 {
		return 0, false
	}
	col := 0
	for i := 0; i < len(label); i++ {
		c := label[i]
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		if c < 'A' || c > 'Z' {
			return 0, false
		}
		col = col*26 + int(c-'A') + 1
	}
	col--
	if col >= MaxCols {
		return 0, false
	}
	return col, true
}

// A1 is a parsed A1-style cell reference with its absolute markers.
type A1 struct {
	Addr   Addr
	AbsRow bool
	AbsCol bool
}

// String renders the reference with its $ markers, e.g. "$B$3".
func (a A1) String() string {
	var sb strings.Builder
	if a.AbsCol {
		sb.WriteByte('$')
	}
	sb.WriteString(ColLabel(a.Addr.Col))
	if a.AbsRow {
		sb.WriteByte('$')
	}
	sb.WriteString(itoa(a.Addr.Row + 1))
	return sb.String()
}

// ParseA1 parses a single A1-style reference such as "B3" or "$B$3".
// The whole input must be consumed; trailing characters fail the parse.
func ParseA1(s string) (A1, bool) {
	a, n := parseA1Prefix(s)
	if n != len(s) {
		return A1{}, false
	}
	return a, n > 0
}

// FormatA1 renders an address in plain A1 form without $ markers.
func FormatA1(a Addr) string {
	return ColLabel(a.Col) + itoa(a.Row+1)
}

// ParseA1Range parses a sheetless range in A1 form. Accepted shapes are
// a single cell ("C3"), a rectangle ("A1:D10"), whole columns ("B:D"),
// and whole rows ("3:5"). $ markers are tolerated and discarded. The
// result is normalized.
func ParseA1Range(s string) (Range, bool) {
	first, rest, spanned := s, "", false
	if i := strings.IndexByte(s, ':'); i >= 0 {
		first, rest, spanned = s[:i], s[i+1:], true
	}

	if !spanned {
		a, ok := ParseA1(first)
		if !ok {
			return Range{}, false
		}
		return Range{StartRow: a.Addr.Row, StartCol: a.Addr.Col, EndRow: a.Addr.Row, EndCol: a.Addr.Col}, true
	}

	// Cell:cell rectangle.
	if a, ok := ParseA1(first); ok {
		b, ok := ParseA1(rest)
		if !ok {
			return Range{}, false
		}
		r := Range{StartRow: a.Addr.Row, StartCol: a.Addr.Col, EndRow: b.Addr.Row, EndCol: b.Addr.Col}
		return r.Normalize(), true
	}

	// Whole columns.
	if c1, ok := parseColOnly(first); ok {
		c2, ok := parseColOnly(rest)
		if !ok {
			return Range{}, false
		}
		r := Range{StartRow: Unbounded, EndRow: Unbounded, StartCol: c1, EndCol: c2}
		return r.Normalize(), true
	}

	// Whole rows.
	if r1, ok := parseRowOnly(first); ok {
		r2, ok := parseRowOnly(rest)
		if !ok {
			return Range{}, false
		}
		r := Range{StartCol: Unbounded, EndCol: Unbounded, StartRow: r1, EndRow: r2}
		return r.Normalize(), true
	}

	return Range{}, false
}

// FormatA1Range renders a range in A1 form. A single-cell range
// collapses to the bare cell, so formatting inverts ParseA1Range.
func FormatA1Range(r Range) string {
	switch {
	case r.Single():
		return FormatA1(Addr{Row: r.StartRow, Col: r.StartCol})
	case r.StartRow == Unbounded:
		return ColLabel(r.StartCol) + ":" + ColLabel(r.EndCol)
	case r.StartCol == Unbounded:
		return itoa(r.StartRow+1) + ":" + itoa(r.EndRow+1)
	default:
		return FormatA1(Addr{Row: r.StartRow, Col: r.StartCol}) + ":" + FormatA1(Addr{Row: r.EndRow, Col: r.EndCol})
	}
}

// parseA1Prefix consumes a leading A1 reference from s and returns it
// with the number of bytes read, zero when s does not start with one.
func parseA1Prefix(s string) (A1, int) {
	i := 0
	var a A1
	if i < len(s) && s[i] == '$' {
		a.AbsCol = true
		i++
	}
	colStart := i
	for i < len(s) && isLetter(s[i]) {
		i++
	}
	col, ok := ColIndex(s[colStart:i])
	if !ok {
		return A1{}, 0
	}
	if i < len(s) && s[i] == '$' {
		a.AbsRow = true
		i++
	}
	rowStart := i
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	row, ok := parseRowDigits(s[rowStart:i])
	if !ok {
		return A1{}, 0
	}
	a.Addr = Addr{Row: row, Col: col}
	return a, i
}

// ParseCol reads a column fragment such as "B" or "$B" as used in
// whole-column references.
func ParseCol(s string) (col int, abs, ok bool) {
	if len(s) > 0 && s[0] == '$' {
		abs = true
		s = s[1:]
	}
	col, ok = ColIndex(s)
	return col, abs, ok
}

// ParseRow reads a row fragment such as "3" or "$3" as used in
// whole-row references.
func ParseRow(s string) (row int, abs, ok bool) {
	if len(s) > 0 && s[0] == '$' {
		abs = true
		s = s[1:]
	}
	row, ok = parseRowDigits(s)
	return row, abs, ok
}

func parseColOnly(s string) (int, bool) {
	c, _, ok := ParseCol(s)
	return c, ok
}

func parseRowOnly(s string) (int, bool) {
	r, _, ok := ParseRow(s)
	return r, ok
}

// parseRowDigits converts one-based row digits to a zero-based row.
// Leading zeros are rejected, matching formula syntax.
func parseRowDigits(s string) (int, bool) {
	if s == "" || s[0] == '0' || len(s) > 7 {
		return 0, false
	}
	n := 0
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}
		n = n*10 + int(s[i]-'0')
	}
	if n > MaxRows {
		return 0, false
	}
	return n - 1, true
}

func isLetter(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

// itoa avoids strconv for the hot row-number path.
func itoa(n int) string {
	if n < 10 {
		return string([]byte{byte('0' + n)})
	}
	var buf [8]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}
