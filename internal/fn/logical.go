package fn

import (
	"github.com/leapstack-labs/leapcalc/pkg/value"
)

func logicalBuiltins() []Descriptor {
	return []Descriptor{
		{Name: "TRUE", Category: CategoryLogical, MinArgs: 0, MaxArgs: 0, Impl: fnTrue},
		{Name: "FALSE", Category: CategoryLogical, MinArgs: 0, MaxArgs: 0, Impl: fnFalse},
		{Name: "NOT", Category: CategoryLogical, MinArgs: 1, MaxArgs: 1, Impl: fnNot},
		{Name: "AND", Category: CategoryLogical, MinArgs: 1, MaxArgs: -1, Impl: fnAnd},
		{Name: "OR", Category: CategoryLogical, MinArgs: 1, MaxArgs: -1, Impl: fnOr},
		{Name: "XOR", Category: CategoryLogical, MinArgs: 1, MaxArgs: -1, Impl: fnXor},

		// Control-flow forms: the evaluator owns argument evaluation
		// so untaken branches never run. The entries contribute
		// arity and lookup only.
		{Name: "IF", Category: CategoryLogical, MinArgs: 2, MaxArgs: 3, Lazy: true},
		{Name: "IFS", Category: CategoryLogical, MinArgs: 2, MaxArgs: -1, Lazy: true},
		{Name: "SWITCH", Category: CategoryLogical, MinArgs: 3, MaxArgs: -1, Lazy: true},
		{Name: "IFERROR", Category: CategoryLogical, MinArgs: 2, MaxArgs: 2, Lazy: true},
		{Name: "IFNA", Category: CategoryLogical, MinArgs: 2, MaxArgs: 2, Lazy: true},
		{Name: "LET", Category: CategoryLogical, MinArgs: 3, MaxArgs: -1, Lazy: true},
		{Name: "LAMBDA", Category: CategoryLogical, MinArgs: 1, MaxArgs: -1, Lazy: true},
	}
}

func fnTrue(*Call) value.Value  { return value.Bool(true) }
func fnFalse(*Call) value.Value { return value.Bool(false) }

func fnNot(c *Call) value.Value {
	b, err := c.Bool(0)
	if err != nil {
		return value.FromError(err)
	}
	return value.Bool(!b)
}

// logicals streams the boolean content of all arguments: direct
// scalars coerce, range and array elements contribute stored booleans
// and numbers while text and blanks are skipped.
func logicals(c *Call, each func(bool)) value.Value {
	seen := false
	for i := 0; i < c.Len(); i++ {
		var failed value.Value
		errv := visit(c.Env, c.Arg(i), func(v value.Value, fromRange bool) bool {
			if v.IsError() {
				failed = v
				return false
			}
			if fromRange {
				switch {
				case v.IsBool():
					each(v.Bool())
					seen = true
				case v.IsNumber():
					each(v.Num() != 0)
					seen = true
				}
				return true
			}
			if v.IsMissing() {
				return true
			}
			b, err := value.ToBool(v, c.Env.Locale())
			if err != nil {
				failed = value.FromError(err)
				return false
			}
			each(b)
			seen = true
			return true
		})
		if errv.IsError() {
			return errv
		}
		if failed.IsError() {
			return failed
		}
	}
	if !seen {
		return value.Error(value.ErrValue)
	}
	return value.Value{}
}

func fnAnd(c *Call) value.Value {
	all := true
	if errv := logicals(c, func(b bool) { all = all && b }); errv.IsError() {
		return errv
	}
	return value.Bool(all)
}

func fnOr(c *Call) value.Value {
	any := false
	if errv := logicals(c, func(b bool) { any = any || b }); errv.IsError() {
		return errv
	}
	return value.Bool(any)
}

func fnXor(c *Call) value.Value {
	odd := false
	if errv := logicals(c, func(b bool) {
		if b {
			odd = !odd
		}
	}); errv.IsError() {
		return errv
	}
	return value.Bool(odd)
}
