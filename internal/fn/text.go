package fn

import (
	"math"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/leapstack-labs/leapcalc/pkg/locale"
	"github.com/leapstack-labs/leapcalc/pkg/value"
)

// cellTextLimit is the longest text a cell may hold.
const cellTextLimit = 32767

func textBuiltins() []Descriptor {
	return []Descriptor{
		{Name: "CONCATENATE", Category: CategoryText, MinArgs: 1, MaxArgs: -1, Impl: fnConcatenate},
		{Name: "CONCAT", Category: CategoryText, MinArgs: 1, MaxArgs: -1, Impl: fnConcat},
		{Name: "TEXTJOIN", Category: CategoryText, MinArgs: 3, MaxArgs: -1, Impl: fnTextJoin},
		{Name: "LEFT", Category: CategoryText, MinArgs: 1, MaxArgs: 2, Impl: fnLeft},
		{Name: "RIGHT", Category: CategoryText, MinArgs: 1, MaxArgs: 2, Impl: fnRight},
		{Name: "MID", Category: CategoryText, MinArgs: 3, MaxArgs: 3, Impl: fnMid},
		{Name: "LEN", Category: CategoryText, MinArgs: 1, MaxArgs: 1, Impl: fnLen},
		{Name: "LOWER", Category: CategoryText, MinArgs: 1, MaxArgs: 1, Impl: fnLower},
		{Name: "UPPER", Category: CategoryText, MinArgs: 1, MaxArgs: 1, Impl: fnUpper},
		{Name: "PROPER", Category: CategoryText, MinArgs: 1, MaxArgs: 1, Impl: fnProper},
		{Name: "TRIM", Category: CategoryText, MinArgs: 1, MaxArgs: 1, Impl: fnTrim},
		{Name: "CLEAN", Category: CategoryText, MinArgs: 1, MaxArgs: 1, Impl: fnClean},
		{Name: "TEXT", Category: CategoryText, MinArgs: 2, MaxArgs: 2, Impl: fnText},
		{Name: "VALUE", Category: CategoryText, MinArgs: 1, MaxArgs: 1, Impl: fnValue},
		{Name: "FIND", Category: CategoryText, MinArgs: 2, MaxArgs: 3, Impl: fnFind},
		{Name: "SEARCH", Category: CategoryText, MinArgs: 2, MaxArgs: 3, Impl: fnSearch},
		{Name: "REPLACE", Category: CategoryText, MinArgs: 4, MaxArgs: 4, Impl: fnReplace},
		{Name: "SUBSTITUTE", Category: CategoryText, MinArgs: 3, MaxArgs: 4, Impl: fnSubstitute},
		{Name: "REPT", Category: CategoryText, MinArgs: 2, MaxArgs: 2, Impl: fnRept},
		{Name: "EXACT", Category: CategoryText, MinArgs: 2, MaxArgs: 2, Impl: fnExact},
		{Name: "CHAR", Category: CategoryText, MinArgs: 1, MaxArgs: 1, Impl: fnChar},
		{Name: "CODE", Category: CategoryText, MinArgs: 1, MaxArgs: 1, Impl: fnCode},
		{Name: "UNICHAR", Category: CategoryText, MinArgs: 1, MaxArgs: 1, Impl: fnUnichar},
		{Name: "UNICODE", Category: CategoryText, MinArgs: 1, MaxArgs: 1, Impl: fnUnicode},
		{Name: "T", Category: CategoryText, MinArgs: 1, MaxArgs: 1, Impl: fnT},
	}
}

func fnConcatenate(c *Call) value.Value {
	var sb strings.Builder
	for i := 0; i < c.Len(); i++ {
		if c.Arg(i).IsMissing() {
			continue
		}
		s, err := c.Text(i)
		if err != nil {
			return value.FromError(err)
		}
		sb.WriteString(s)
	}
	return value.Text(sb.String())
}

// fnConcat is CONCATENATE extended to ranges and arrays: elements are
// appended in row-major order, blanks contribute nothing.
func fnConcat(c *Call) value.Value {
	var sb strings.Builder
	for i := 0; i < c.Len(); i++ {
		var failed value.Value
		errv := visit(c.Env, c.Arg(i), func(v value.Value, _ bool) bool {
			if v.IsError() {
				failed = v
				return false
			}
			if v.IsBlank() {
				return true
			}
			s, err := value.ToText(v, c.Env.Locale())
			if err != nil {
				failed = value.FromError(err)
				return false
			}
			sb.WriteString(s)
			return true
		})
		if errv.IsError() {
			return errv
		}
		if failed.IsError() {
			return failed
		}
	}
	return value.Text(sb.String())
}

func fnTextJoin(c *Call) value.Value {
	delim, err := c.Text(0)
	if err != nil {
		return value.FromError(err)
	}
	ignoreEmpty, err := c.Bool(1)
	if err != nil {
		return value.FromError(err)
	}
	var parts []string
	for i := 2; i < c.Len(); i++ {
		var failed value.Value
		errv := visit(c.Env, c.Arg(i), func(v value.Value, _ bool) bool {
			if v.IsError() {
				failed = v
				return false
			}
			s := ""
			if !v.IsBlank() {
				t, terr := value.ToText(v, c.Env.Locale())
				if terr != nil {
					failed = value.FromError(terr)
					return false
				}
				s = t
			}
			if ignoreEmpty && s == "" {
				return true
			}
			parts = append(parts, s)
			return true
		})
		if errv.IsError() {
			return errv
		}
		if failed.IsError() {
			return failed
		}
	}
	return value.Text(strings.Join(parts, delim))
}

func fnLeft(c *Call) value.Value {
	s, err := c.Text(0)
	if err != nil {
		return value.FromError(err)
	}
	n, err := c.IntOr(1, 1)
	if err != nil {
		return value.FromError(err)
	}
	if n < 0 {
		return value.Error(value.ErrValue)
	}
	r := []rune(s)
	if n > len(r) {
		n = len(r)
	}
	return value.Text(string(r[:n]))
}

func fnRight(c *Call) value.Value {
	s, err := c.Text(0)
	if err != nil {
		return value.FromError(err)
	}
	n, err := c.IntOr(1, 1)
	if err != nil {
		return value.FromError(err)
	}
	if n < 0 {
		return value.Error(value.ErrValue)
	}
	r := []rune(s)
	if n > len(r) {
		n = len(r)
	}
	return value.Text(string(r[len(r)-n:]))
}

func fnMid(c *Call) value.Value {
	s, err := c.Text(0)
	if err != nil {
		return value.FromError(err)
	}
	start, err := c.Int(1)
	if err != nil {
		return value.FromError(err)
	}
	n, err := c.Int(2)
	if err != nil {
		return value.FromError(err)
	}
	if start < 1 || n < 0 {
		return value.Error(value.ErrValue)
	}
	r := []rune(s)
	if start > len(r) {
		return value.Text("")
	}
	end := start - 1 + n
	if end > len(r) {
		end = len(r)
	}
	return value.Text(string(r[start-1 : end]))
}

func fnLen(c *Call) value.Value {
	s, err := c.Text(0)
	if err != nil {
		return value.FromError(err)
	}
	return value.Number(float64(utf8.RuneCountInString(s)))
}

func fnLower(c *Call) value.Value {
	s, err := c.Text(0)
	if err != nil {
		return value.FromError(err)
	}
	return value.Text(strings.ToLower(s))
}

func fnUpper(c *Call) value.Value {
	s, err := c.Text(0)
	if err != nil {
		return value.FromError(err)
	}
	return value.Text(strings.ToUpper(s))
}

// fnProper uppercases every letter that follows a non-letter and
// lowercases the rest, so "2-cent's" becomes "2-Cent'S".
func fnProper(c *Call) value.Value {
	s, err := c.Text(0)
	if err != nil {
		return value.FromError(err)
	}
	var sb strings.Builder
	prevLetter := false
	for _, r := range s {
		if unicode.IsLetter(r) {
			if prevLetter {
				sb.WriteRune(unicode.ToLower(r))
			} else {
				sb.WriteRune(unicode.ToUpper(r))
			}
			prevLetter = true
		} else {
			sb.WriteRune(r)
			prevLetter = false
		}
	}
	return value.Text(sb.String())
}

// fnTrim strips leading and trailing ASCII spaces and collapses inner
// runs to a single space. Other whitespace is left alone.
func fnTrim(c *Call) value.Value {
	s, err := c.Text(0)
	if err != nil {
		return value.FromError(err)
	}
	var sb strings.Builder
	pending := false
	for _, r := range s {
		if r == ' ' {
			pending = sb.Len() > 0
			continue
		}
		if pending {
			sb.WriteByte(' ')
			pending = false
		}
		sb.WriteRune(r)
	}
	return value.Text(sb.String())
}

func fnClean(c *Call) value.Value {
	s, err := c.Text(0)
	if err != nil {
		return value.FromError(err)
	}
	var sb strings.Builder
	for _, r := range s {
		if r >= 32 {
			sb.WriteRune(r)
		}
	}
	return value.Text(sb.String())
}

// fnText renders a number under a format pattern. The supported
// patterns are General, the literal @, and numeric codes built from
// 0 # , . and a trailing run of %. Date, fraction and color codes are
// not recognized and yield #VALUE!.
func fnText(c *Call) value.Value {
	v := c.Scalar(0)
	if v.IsError() {
		return v
	}
	pattern, err := c.Text(1)
	if err != nil {
		return value.FromError(err)
	}
	if v.IsText() && !strings.EqualFold(pattern, "general") && pattern != "@" {
		// Text passes through numeric patterns untouched.
		return v
	}
	f, nerr := value.ToNumber(v, c.Env.Locale())
	if nerr != nil {
		return value.FromError(nerr)
	}
	s, ok := formatPattern(f, pattern, c.Env.Locale())
	if !ok {
		return value.Error(value.ErrValue)
	}
	return value.Text(s)
}

func formatPattern(f float64, pattern string, loc *locale.Locale) (string, bool) {
	if pattern == "@" || strings.EqualFold(pattern, "general") {
		return loc.FormatNumber(f), true
	}
	percent := 0
	for strings.HasSuffix(pattern, "%") {
		pattern = strings.TrimSuffix(pattern, "%")
		f *= 100
		percent++
	}
	intPart, fracPart := pattern, ""
	if dot := strings.IndexByte(pattern, '.'); dot >= 0 {
		intPart, fracPart = pattern[:dot], pattern[dot+1:]
	}
	for _, r := range intPart {
		if r != '0' && r != '#' && r != ',' {
			return "", false
		}
	}
	for _, r := range fracPart {
		if r != '0' && r != '#' {
			return "", false
		}
	}
	decimals := len(fracPart)
	grouped := strings.ContainsRune(intPart, ',')
	minDigits := strings.Count(intPart, "0")

	neg := math.Signbit(f) && f != 0
	text := strconv.FormatFloat(math.Abs(f), 'f', decimals, 64)
	ip, fp := text, ""
	if dot := strings.IndexByte(text, '.'); dot >= 0 {
		ip, fp = text[:dot], text[dot+1:]
	}
	for len(ip) < minDigits {
		ip = "0" + ip
	}
	if grouped {
		ip = groupDigits(ip, loc.GroupSep())
	}
	var sb strings.Builder
	if neg {
		sb.WriteByte('-')
	}
	sb.WriteString(ip)
	if decimals > 0 {
		sb.WriteRune(loc.DecimalSep())
		sb.WriteString(fp)
	}
	sb.WriteString(strings.Repeat("%", percent))
	return sb.String(), true
}

func groupDigits(digits string, sep rune) string {
	if len(digits) <= 3 {
		return digits
	}
	var sb strings.Builder
	lead := len(digits) % 3
	if lead > 0 {
		sb.WriteString(digits[:lead])
	}
	for i := lead; i < len(digits); i += 3 {
		if sb.Len() > 0 {
			sb.WriteRune(sep)
		}
		sb.WriteString(digits[i : i+3])
	}
	return sb.String()
}

func fnValue(c *Call) value.Value {
	v := c.Scalar(0)
	if v.IsError() {
		return v
	}
	if v.IsNumber() {
		return v
	}
	if !v.IsText() {
		return value.Error(value.ErrValue)
	}
	s := strings.TrimSpace(v.Str())
	scale := 1.0
	for strings.HasSuffix(s, "%") {
		s = strings.TrimSpace(strings.TrimSuffix(s, "%"))
		scale /= 100
	}
	f, ok := c.Env.Locale().ParseNumber(s)
	if !ok {
		return value.Error(value.ErrValue)
	}
	return value.Number(f * scale)
}

func fnFind(c *Call) value.Value {
	find, err := c.Text(0)
	if err != nil {
		return value.FromError(err)
	}
	within, err := c.Text(1)
	if err != nil {
		return value.FromError(err)
	}
	start, err := c.IntOr(2, 1)
	if err != nil {
		return value.FromError(err)
	}
	t := []rune(within)
	if start < 1 || start > len(t)+1 {
		return value.Error(value.ErrValue)
	}
	f := []rune(find)
	for i := start - 1; i+len(f) <= len(t); i++ {
		if string(t[i:i+len(f)]) == find {
			return value.Number(float64(i + 1))
		}
	}
	return value.Error(value.ErrValue)
}

// fnSearch is FIND without case sensitivity and with ? * ~ wildcards
// in the pattern.
func fnSearch(c *Call) value.Value {
	find, err := c.Text(0)
	if err != nil {
		return value.FromError(err)
	}
	within, err := c.Text(1)
	if err != nil {
		return value.FromError(err)
	}
	start, err := c.IntOr(2, 1)
	if err != nil {
		return value.FromError(err)
	}
	t := []rune(strings.ToUpper(within))
	if start < 1 || start > len(t)+1 {
		return value.Error(value.ErrValue)
	}
	p := []rune(strings.ToUpper(find))
	for i := start - 1; i <= len(t); i++ {
		if wildcardPrefix(p, t[i:]) {
			return value.Number(float64(i + 1))
		}
	}
	return value.Error(value.ErrValue)
}

// wildcardPrefix reports whether the pattern matches some prefix of t.
// Both slices are already case-folded.
func wildcardPrefix(p, t []rune) bool {
	if len(p) == 0 {
		return true
	}
	switch p[0] {
	case '*':
		for i := 0; i <= len(t); i++ {
			if wildcardPrefix(p[1:], t[i:]) {
				return true
			}
		}
		return false
	case '~':
		if len(p) >= 2 {
			return len(t) > 0 && t[0] == p[1] && wildcardPrefix(p[2:], t[1:])
		}
		return len(t) > 0 && t[0] == '~'
	case '?':
		return len(t) > 0 && wildcardPrefix(p[1:], t[1:])
	default:
		return len(t) > 0 && t[0] == p[0] && wildcardPrefix(p[1:], t[1:])
	}
}

func fnReplace(c *Call) value.Value {
	old, err := c.Text(0)
	if err != nil {
		return value.FromError(err)
	}
	start, err := c.Int(1)
	if err != nil {
		return value.FromError(err)
	}
	n, err := c.Int(2)
	if err != nil {
		return value.FromError(err)
	}
	repl, err := c.Text(3)
	if err != nil {
		return value.FromError(err)
	}
	if start < 1 || n < 0 {
		return value.Error(value.ErrValue)
	}
	r := []rune(old)
	if start > len(r)+1 {
		start = len(r) + 1
	}
	end := start - 1 + n
	if end > len(r) {
		end = len(r)
	}
	return value.Text(string(r[:start-1]) + repl + string(r[end:]))
}

func fnSubstitute(c *Call) value.Value {
	s, err := c.Text(0)
	if err != nil {
		return value.FromError(err)
	}
	old, err := c.Text(1)
	if err != nil {
		return value.FromError(err)
	}
	repl, err := c.Text(2)
	if err != nil {
		return value.FromError(err)
	}
	if old == "" {
		return value.Text(s)
	}
	if c.Arg(3).IsMissing() {
		return value.Text(strings.ReplaceAll(s, old, repl))
	}
	nth, err := c.Int(3)
	if err != nil {
		return value.FromError(err)
	}
	if nth < 1 {
		return value.Error(value.ErrValue)
	}
	seen := 0
	for i := 0; i+len(old) <= len(s); {
		if s[i:i+len(old)] != old {
			i++
			continue
		}
		seen++
		if seen == nth {
			return value.Text(s[:i] + repl + s[i+len(old):])
		}
		i += len(old)
	}
	return value.Text(s)
}

func fnRept(c *Call) value.Value {
	s, err := c.Text(0)
	if err != nil {
		return value.FromError(err)
	}
	n, err := c.Int(1)
	if err != nil {
		return value.FromError(err)
	}
	if n < 0 {
		return value.Error(value.ErrValue)
	}
	if n == 0 || s == "" {
		return value.Text("")
	}
	if utf8.RuneCountInString(s)*n > cellTextLimit {
		return value.Error(value.ErrValue)
	}
	return value.Text(strings.Repeat(s, n))
}

func fnExact(c *Call) value.Value {
	a, err := c.Text(0)
	if err != nil {
		return value.FromError(err)
	}
	b, err := c.Text(1)
	if err != nil {
		return value.FromError(err)
	}
	return value.Bool(a == b)
}

func fnChar(c *Call) value.Value {
	n, err := c.Int(0)
	if err != nil {
		return value.FromError(err)
	}
	if n < 1 || n > 255 {
		return value.Error(value.ErrValue)
	}
	return value.Text(string(rune(n)))
}

func fnCode(c *Call) value.Value {
	s, err := c.Text(0)
	if err != nil {
		return value.FromError(err)
	}
	if s == "" {
		return value.Error(value.ErrValue)
	}
	r, _ := utf8.DecodeRuneInString(s)
	return value.Number(float64(r))
}

func fnUnichar(c *Call) value.Value {
	n, err := c.Int(0)
	if err != nil {
		return value.FromError(err)
	}
	if n < 1 || n > utf8.MaxRune || (n >= 0xD800 && n <= 0xDFFF) {
		return value.Error(value.ErrValue)
	}
	return value.Text(string(rune(n)))
}

func fnUnicode(c *Call) value.Value {
	s, err := c.Text(0)
	if err != nil {
		return value.FromError(err)
	}
	if s == "" {
		return value.Error(value.ErrValue)
	}
	r, _ := utf8.DecodeRuneInString(s)
	return value.Number(float64(r))
}

// fnT passes text through and maps everything else to empty text.
// Errors keep their identity.
func fnT(c *Call) value.Value {
	v := c.Scalar(0)
	if v.IsError() || v.IsText() {
		return v
	}
	return value.Text("")
}
