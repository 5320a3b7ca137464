package value

import (
	"strconv"
	"strings"
)

// NumberFormat supplies the locale-dependent pieces of text coercion:
// how numbers read and print, and what the boolean literals look like.
// pkg/locale's Locale satisfies it; nil falls back to canonical en-US
// behavior.
type NumberFormat interface {
	// ParseNumber reads a localized numeric literal.
	ParseNumber(s string) (float64, bool)
	// FormatNumber prints a number with the locale's separators.
	FormatNumber(f float64) string
	// TrueLiteral and FalseLiteral return the localized boolean words.
	TrueLiteral() string
	FalseLiteral() string
}

// ToNumber coerces a scalar to a number under arithmetic rules: blanks
// count as zero, booleans as 0/1, and text parses through the locale.
// The error, when non-nil, is always an ErrorKind.
func ToNumber(v Value, nf NumberFormat) (float64, error) {
	switch v.kind {
	case KindNumber:
		return v.num, nil
	case KindEmpty, KindMissing:
		return 0, nil
	case KindBool:
		if v.b {
			return 1, nil
		}
		return 0, nil
	case KindText:
		if f, ok := parseNumberWith(v.str, nf); ok {
			return f, nil
		}
		return 0, ErrValue
	case KindError:
		return 0, v.err
	default:
		return 0, ErrValue
	}
}

// ToText coerces a scalar to text under concatenation rules: blanks
// become the empty string, numbers print through the locale, booleans
// use the localized literals.
func ToText(v Value, nf NumberFormat) (string, error) {
	switch v.kind {
	case KindText:
		return v.str, nil
	case KindEmpty, KindMissing:
		return "", nil
	case KindNumber:
		if nf != nil {
			return nf.FormatNumber(v.num), nil
		}
		return FormatNumber(v.num), nil
	case KindBool:
		if nf != nil {
			if v.b {
				return nf.TrueLiteral(), nil
			}
			return nf.FalseLiteral(), nil
		}
		if v.b {
			return "TRUE", nil
		}
		return "FALSE", nil
	case KindError:
		return "", v.err
	default:
		return "", ErrValue
	}
}

// ToBool coerces a scalar to a boolean: numbers test against zero,
// text must spell a boolean literal, blanks are false.
func ToBool(v Value, nf NumberFormat) (bool, error) {
	switch v.kind {
	case KindBool:
		return v.b, nil
	case KindNumber:
		return v.num != 0, nil
	case KindEmpty, KindMissing:
		return false, nil
	case KindText:
		s := strings.ToUpper(strings.TrimSpace(v.str))
		switch {
		case s == "TRUE":
			return true, nil
		case s == "FALSE":
			return false, nil
		}
		if nf != nil {
			switch {
			case strings.EqualFold(s, nf.TrueLiteral()):
				return true, nil
			case strings.EqualFold(s, nf.FalseLiteral()):
				return false, nil
			}
		}
		return false, ErrValue
	case KindError:
		return false, v.err
	default:
		return false, ErrValue
	}
}

// Compare orders two scalars the way comparison operators do: numbers
// numerically, text case-insensitively, booleans FALSE before TRUE,
// and across types number < text < bool. A blank operand adopts the
// other side's zero value, so ="" and =0 both match a blank cell.
// Errors never compare; the error propagates.
func Compare(a, b Value) (int, error) {
	if a.kind == KindError {
		return 0, a.err
	}
	if b.kind == KindError {
		return 0, b.err
	}
	if a.IsBlank() {
		a = blankAs(b)
	}
	if b.IsBlank() {
		b = blankAs(a)
	}
	ra, rb := typeRank(a), typeRank(b)
	if ra != rb {
		if ra < rb {
			return -1, nil
		}
		return 1, nil
	}
	switch a.kind {
	case KindNumber:
		switch {
		case a.num < b.num:
			return -1, nil
		case a.num > b.num:
			return 1, nil
		}
		return 0, nil
	case KindText:
		sa, sb := strings.ToUpper(a.str), strings.ToUpper(b.str)
		return strings.Compare(sa, sb), nil
	case KindBool:
		switch {
		case !a.b && b.b:
			return -1, nil
		case a.b && !b.b:
			return 1, nil
		}
		return 0, nil
	default:
		return 0, ErrValue
	}
}

// blankAs gives a blank operand the other operand's zero value so the
// type ranks line up. Two blanks compare as numbers.
func blankAs(other Value) Value {
	switch other.kind {
	case KindText:
		return Text("")
	case KindBool:
		return Bool(false)
	default:
		return Number(0)
	}
}

func typeRank(v Value) int {
	switch v.kind {
	case KindNumber:
		return 0
	case KindText:
		return 1
	case KindBool:
		return 2
	default:
		return 3
	}
}

// parseNumberWith reads a numeric literal through the locale, falling
// back to canonical syntax when no locale is supplied.
func parseNumberWith(s string, nf NumberFormat) (float64, bool) {
	if nf != nil {
		return nf.ParseNumber(s)
	}
	return ParseCanonicalNumber(s)
}

// ParseCanonicalNumber reads a number in canonical en-US syntax:
// optional sign, '.' decimal point, optional exponent, optional
// trailing '%', and ',' group separators in the integer part.
func ParseCanonicalNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	percent := false
	if strings.HasSuffix(s, "%") {
		percent = true
		s = strings.TrimSpace(strings.TrimSuffix(s, "%"))
	}
	if strings.Contains(s, ",") {
		if !validGroups(s, ',', '.') {
			return 0, false
		}
		s = strings.ReplaceAll(s, ",", "")
	}
	// ParseFloat also accepts "inf", "nan" and hex floats, none of
	// which are numeric literals here.
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= '0' && c <= '9' || c == '+' || c == '-' || c == '.' || c == 'e' || c == 'E' {
			continue
		}
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	if percent {
		f /= 100
	}
	return f, true
}

// validGroups checks that group separators sit only in the integer
// part, in 3-digit groups after the first.
func validGroups(s string, group, dec byte) bool {
	intPart := s
	if i := strings.IndexByte(s, dec); i >= 0 {
		intPart = s[:i]
		if strings.IndexByte(s[i+1:], group) >= 0 {
			return false
		}
	}
	if i := strings.IndexAny(intPart, "eE"); i >= 0 {
		if strings.IndexByte(intPart[i:], group) >= 0 {
			return false
		}
		intPart = intPart[:i]
	}
	intPart = strings.TrimLeft(intPart, "+-")
	parts := strings.Split(intPart, string(group))
	if len(parts) < 2 {
		return true
	}
	if parts[0] == "" || len(parts[0]) > 3 {
		return false
	}
	for _, p := range parts[1:] {
		if len(p) != 3 {
			return false
		}
	}
	return true
}
