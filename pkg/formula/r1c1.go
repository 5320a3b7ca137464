package formula

import (
	"strconv"
	"strings"

	"github.com/leapstack-labs/leapcalc/pkg/ref"
)

// ParseR1C1 parses a reference in R1C1 notation against an origin
// cell: "R3C2" is absolute row 3 column 2, "R[1]C[-1]" is one row
// down and one column left of the origin, and a bare "R" or "C" means
// the origin's own row or column. A ':' joins two such cells into a
// rectangle.
//
// The sheet qualifier, if any, must be split off before calling; only
// the cell part is parsed here.
func ParseR1C1(input string, origin ref.CellKey) (ref.Range, bool) {
	first, second, isRange := strings.Cut(input, ":")
	r1, c1, ok := parseR1C1Cell(first, origin)
	if !ok {
		return ref.Range{}, false
	}
	if !isRange {
		return ref.Range{StartRow: r1, EndRow: r1, StartCol: c1, EndCol: c1}, true
	}
	r2, c2, ok := parseR1C1Cell(second, origin)
	if !ok {
		return ref.Range{}, false
	}
	return ref.Range{StartRow: r1, EndRow: r2, StartCol: c1, EndCol: c2}.Normalize(), true
}

// parseR1C1Cell parses one "R...C..." component to absolute zero
// based coordinates.
func parseR1C1Cell(s string, origin ref.CellKey) (row, col int, ok bool) {
	s = strings.TrimSpace(s)
	if len(s) == 0 || (s[0] != 'R' && s[0] != 'r') {
		return 0, 0, false
	}
	row, rest, ok := parseR1C1Axis(s[1:], origin.Row, ref.MaxRows)
	if !ok {
		return 0, 0, false
	}
	if len(rest) == 0 || (rest[0] != 'C' && rest[0] != 'c') {
		return 0, 0, false
	}
	col, rest, ok = parseR1C1Axis(rest[1:], origin.Col, ref.MaxCols)
	if !ok || rest != "" {
		return 0, 0, false
	}
	return row, col, true
}

// parseR1C1Axis parses the number part after an R or C: a 1-based
// absolute index, a bracketed signed offset, or nothing for the
// origin's own position.
func parseR1C1Axis(s string, originIdx, max int) (idx int, rest string, ok bool) {
	if strings.HasPrefix(s, "[") {
		end := strings.IndexByte(s, ']')
		if end < 0 {
			return 0, "", false
		}
		delta, err := strconv.Atoi(s[1:end])
		if err != nil {
			return 0, "", false
		}
		idx = originIdx + delta
		if idx < 0 || idx >= max {
			return 0, "", false
		}
		return idx, s[end+1:], true
	}

	digits := 0
	for digits < len(s) && s[digits] >= '0' && s[digits] <= '9' {
		digits++
	}
	if digits == 0 {
		return originIdx, s, true
	}
	n, err := strconv.Atoi(s[:digits])
	if err != nil || n < 1 || n > max {
		return 0, "", false
	}
	return n - 1, s[digits:], true
}

// FormatR1C1 renders an absolute cell position in R1C1 notation with
// 1-based indexes.
func FormatR1C1(addr ref.Addr) string {
	return "R" + strconv.Itoa(addr.Row+1) + "C" + strconv.Itoa(addr.Col+1)
}
