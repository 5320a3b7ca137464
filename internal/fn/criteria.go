package fn

import (
	"strings"

	"github.com/leapstack-labs/leapcalc/pkg/locale"
	"github.com/leapstack-labs/leapcalc/pkg/value"
)

// cmpOp is a criterion comparison operator.
type cmpOp uint8

const (
	opEQ cmpOp = iota
	opNE
	opLT
	opLE
	opGT
	opGE
)

type critKind uint8

const (
	critNumber critKind = iota
	critText
	critBool
	critError
	critBlank    // "" or "=": matches empty cells and empty strings
	critNonBlank // "<>": matches any occupied cell
)

// criterion is a compiled COUNTIF/SUMIF condition. Text criteria
// carry an optional leading operator; the remainder re-types to a
// number, boolean or error literal when it parses as one, otherwise
// it stays a wildcard text pattern.
type criterion struct {
	kind critKind
	op   cmpOp
	num  float64
	text string
	b    bool
	errk value.ErrorKind
	loc  *locale.Locale
}

// parseCriterion compiles a criterion argument.
func parseCriterion(v value.Value, loc *locale.Locale) *criterion {
	cr := &criterion{op: opEQ, loc: loc}
	switch v.Kind() {
	case value.KindNumber:
		cr.kind, cr.num = critNumber, v.Num()
		return cr
	case value.KindBool:
		cr.kind, cr.b = critBool, v.Bool()
		return cr
	case value.KindError:
		cr.kind, cr.errk = critError, v.Err()
		return cr
	case value.KindEmpty, value.KindMissing:
		cr.kind = critBlank
		return cr
	}

	s := v.Str()
	switch {
	case strings.HasPrefix(s, ">="):
		cr.op, s = opGE, s[2:]
	case strings.HasPrefix(s, "<="):
		cr.op, s = opLE, s[2:]
	case strings.HasPrefix(s, "<>"):
		cr.op, s = opNE, s[2:]
	case strings.HasPrefix(s, ">"):
		cr.op, s = opGT, s[1:]
	case strings.HasPrefix(s, "<"):
		cr.op, s = opLT, s[1:]
	case strings.HasPrefix(s, "="):
		cr.op, s = opEQ, s[1:]
	}

	if s == "" {
		if cr.op == opNE {
			cr.kind = critNonBlank
		} else {
			cr.kind = critBlank
		}
		return cr
	}
	if f, ok := loc.ParseNumber(s); ok {
		cr.kind, cr.num = critNumber, f
		return cr
	}
	if b, ok := loc.ParseBool(s); ok {
		cr.kind, cr.b = critBool, b
		return cr
	}
	if k, ok := loc.ParseError(s); ok {
		cr.kind, cr.errk = critError, k
		return cr
	}
	cr.kind, cr.text = critText, s
	return cr
}

func (cr *criterion) cmp(rel int) bool {
	switch cr.op {
	case opEQ:
		return rel == 0
	case opNE:
		return rel != 0
	case opLT:
		return rel < 0
	case opLE:
		return rel <= 0
	case opGT:
		return rel > 0
	case opGE:
		return rel >= 0
	}
	return false
}

// match tests one cell value against the criterion. Blank cells only
// satisfy the blank criterion, never numeric zero; text that spells a
// number does satisfy numeric criteria.
func (cr *criterion) match(v value.Value) bool {
	switch cr.kind {
	case critBlank:
		return v.IsBlank() || (v.IsText() && v.Str() == "")
	case critNonBlank:
		return !v.IsBlank()
	case critNumber:
		var f float64
		switch {
		case v.IsNumber():
			f = v.Num()
		case v.IsText():
			parsed, ok := cr.loc.ParseNumber(v.Str())
			if !ok {
				return false
			}
			f = parsed
		default:
			return false
		}
		switch {
		case f < cr.num:
			return cr.cmp(-1)
		case f > cr.num:
			return cr.cmp(1)
		}
		return cr.cmp(0)
	case critBool:
		return v.IsBool() && cr.cmp(boolRel(v.Bool(), cr.b))
	case critError:
		return v.IsError() && cr.cmp(int(v.Err())-int(cr.errk))
	case critText:
		if !v.IsText() {
			return false
		}
		if cr.op == opEQ {
			return wildcardMatch(cr.text, v.Str())
		}
		if cr.op == opNE {
			return !wildcardMatch(cr.text, v.Str())
		}
		return cr.cmp(strings.Compare(strings.ToUpper(v.Str()), strings.ToUpper(cr.text)))
	}
	return false
}

func boolRel(a, b bool) int {
	switch {
	case a == b:
		return 0
	case !a:
		return -1
	}
	return 1
}

// wildcardMatch tests text against a pattern where '*' spans any run,
// '?' matches one character, and '~' escapes the next wildcard.
// Matching is case-insensitive and anchored at both ends.
func wildcardMatch(pattern, s string) bool {
	p := []rune(strings.ToUpper(pattern))
	t := []rune(strings.ToUpper(s))

	pi, ti := 0, 0
	star, starTi := -1, 0
	for ti < len(t) {
		if pi < len(p) {
			switch {
			case p[pi] == '~' && pi+1 < len(p):
				if p[pi+1] == t[ti] {
					pi += 2
					ti++
					continue
				}
			case p[pi] == '?' || p[pi] == t[ti]:
				pi++
				ti++
				continue
			case p[pi] == '*':
				star, starTi = pi, ti
				pi++
				continue
			}
		}
		if star >= 0 {
			starTi++
			ti = starTi
			pi = star + 1
			continue
		}
		return false
	}
	for pi < len(p) && p[pi] == '*' {
		pi++
	}
	return pi == len(p)
}

// matchCount counts the cells of one argument satisfying a criterion.
// Cells trimmed away by extent clamping are blank; when the criterion
// accepts blanks they are folded back in arithmetically.
func matchCount(c *Call, arg value.Value, cr *criterion) (int, value.Value) {
	visited, matched := 0, 0
	errv := visit(c.Env, arg, func(v value.Value, _ bool) bool {
		visited++
		if cr.match(v) {
			matched++
		}
		return true
	})
	if errv.IsError() {
		return 0, errv
	}
	if cr.match(value.Empty()) {
		matched += fullSize(arg) - visited
	}
	return matched, value.Value{}
}

// fullSize returns the unclamped cell count of an argument.
func fullSize(v value.Value) int {
	switch {
	case v.IsArray():
		rows, cols := v.Dims()
		return rows * cols
	case v.IsRef():
		// Sheet spans count one sheet wide: blank folding across 3-D
		// spans is not supported, the visited cells already are.
		n := 0
		for _, a := range v.Areas() {
			n += fullCount(a.Rect)
		}
		return n
	default:
		return 1
	}
}
