package fn

import (
	"math"
	"sort"

	"github.com/leapstack-labs/leapcalc/pkg/value"
)

func statBuiltins() []Descriptor {
	return []Descriptor{
		{Name: "AVERAGE", Category: CategoryStats, MinArgs: 1, MaxArgs: -1, Impl: fnAverage},
		{Name: "AVERAGEIF", Category: CategoryStats, MinArgs: 2, MaxArgs: 3, Impl: fnAverageIf},
		{Name: "COUNT", Category: CategoryStats, MinArgs: 1, MaxArgs: -1, ErrorArgs: true, Impl: fnCount},
		{Name: "COUNTA", Category: CategoryStats, MinArgs: 1, MaxArgs: -1, ErrorArgs: true, Impl: fnCountA},
		{Name: "COUNTBLANK", Category: CategoryStats, MinArgs: 1, MaxArgs: 1, ErrorArgs: true, Impl: fnCountBlank},
		{Name: "COUNTIF", Category: CategoryStats, MinArgs: 2, MaxArgs: 2, ErrorArgs: true, Impl: fnCountIf},
		{Name: "COUNTIFS", Category: CategoryStats, MinArgs: 2, MaxArgs: -1, ErrorArgs: true, Impl: fnCountIfs},
		{Name: "MAX", Category: CategoryStats, MinArgs: 1, MaxArgs: -1, Impl: fnMax},
		{Name: "MIN", Category: CategoryStats, MinArgs: 1, MaxArgs: -1, Impl: fnMin},
		{Name: "MEDIAN", Category: CategoryStats, MinArgs: 1, MaxArgs: -1, Impl: fnMedian},
		{Name: "MODE.SNGL", Category: CategoryStats, MinArgs: 1, MaxArgs: -1, Impl: fnMode},
		{Name: "MODE", Category: CategoryStats, MinArgs: 1, MaxArgs: -1, Impl: fnMode},
		{Name: "STDEV.S", Category: CategoryStats, MinArgs: 1, MaxArgs: -1, Impl: fnStdevS},
		{Name: "STDEV.P", Category: CategoryStats, MinArgs: 1, MaxArgs: -1, Impl: fnStdevP},
		{Name: "STDEV", Category: CategoryStats, MinArgs: 1, MaxArgs: -1, Impl: fnStdevS},
		{Name: "STDEVP", Category: CategoryStats, MinArgs: 1, MaxArgs: -1, Impl: fnStdevP},
		{Name: "VAR.S", Category: CategoryStats, MinArgs: 1, MaxArgs: -1, Impl: fnVarS},
		{Name: "VAR.P", Category: CategoryStats, MinArgs: 1, MaxArgs: -1, Impl: fnVarP},
		{Name: "VAR", Category: CategoryStats, MinArgs: 1, MaxArgs: -1, Impl: fnVarS},
		{Name: "VARP", Category: CategoryStats, MinArgs: 1, MaxArgs: -1, Impl: fnVarP},
		{Name: "LARGE", Category: CategoryStats, MinArgs: 2, MaxArgs: 2, Impl: fnLarge},
		{Name: "SMALL", Category: CategoryStats, MinArgs: 2, MaxArgs: 2, Impl: fnSmall},
		{Name: "RANK", Category: CategoryStats, MinArgs: 2, MaxArgs: 3, Impl: fnRank},
		{Name: "RANK.EQ", Category: CategoryStats, MinArgs: 2, MaxArgs: 3, Impl: fnRank},
		{Name: "GEOMEAN", Category: CategoryStats, MinArgs: 1, MaxArgs: -1, Impl: fnGeomean},
	}
}

// collect gathers the full numeric stream of all arguments.
func collect(c *Call) ([]float64, value.Value) {
	var out []float64
	if errv := numbers(c, 0, func(f float64) { out = append(out, f) }); errv.IsError() {
		return nil, errv
	}
	return out, value.Value{}
}

// collectArg gathers the numeric stream of one argument under the
// same aggregation rules.
func collectArg(c *Call, i int) ([]float64, value.Value) {
	var out []float64
	var failed value.Value
	errv := visit(c.Env, c.Arg(i), func(v value.Value, fromRange bool) bool {
		if v.IsError() {
			failed = v
			return false
		}
		if fromRange {
			if v.IsNumber() {
				out = append(out, v.Num())
			}
			return true
		}
		f, err := value.ToNumber(v, c.Env.Locale())
		if err != nil {
			failed = value.FromError(err)
			return false
		}
		out = append(out, f)
		return true
	})
	if errv.IsError() {
		return nil, errv
	}
	if failed.IsError() {
		return nil, failed
	}
	return out, value.Value{}
}

func fnAverage(c *Call) value.Value {
	sum, n := 0.0, 0
	if errv := numbers(c, 0, func(f float64) { sum += f; n++ }); errv.IsError() {
		return errv
	}
	if n == 0 {
		return value.Error(value.ErrDiv0)
	}
	return value.Number(sum / float64(n))
}

func fnAverageIf(c *Call) value.Value {
	critView, errv := viewOf(c.Env, c.Arg(0))
	if errv.IsError() {
		return errv
	}
	cr := parseCriterion(c.Scalar(1), c.Env.Locale())
	avgArg := c.Arg(0)
	if c.Len() == 3 {
		avgArg = c.Arg(2)
	}
	avgView, errv := viewOf(c.Env, avgArg)
	if errv.IsError() {
		return errv
	}
	sum, n := 0.0, 0
	for r := 0; r < critView.rows; r++ {
		for col := 0; col < critView.cols; col++ {
			if !cr.match(critView.at(r, col)) {
				continue
			}
			av := avgView.at(r, col)
			if av.IsError() {
				return av
			}
			if av.IsNumber() {
				sum += av.Num()
				n++
			}
		}
	}
	if n == 0 {
		return value.Error(value.ErrDiv0)
	}
	return value.Number(sum / float64(n))
}

// Direct arguments count when they coerce to a number; cells and
// array elements only when they hold one. Errors are ignored, never
// propagated.
func fnCount(c *Call) value.Value {
	n := 0
	for i := 0; i < c.Len(); i++ {
		visit(c.Env, c.Arg(i), func(v value.Value, fromRange bool) bool {
			if v.IsError() {
				return true
			}
			if fromRange {
				if v.IsNumber() {
					n++
				}
				return true
			}
			if v.IsBlank() {
				return true
			}
			if _, err := value.ToNumber(v, c.Env.Locale()); err == nil {
				n++
			}
			return true
		})
	}
	return value.Number(float64(n))
}

func fnCountA(c *Call) value.Value {
	n := 0
	for i := 0; i < c.Len(); i++ {
		visit(c.Env, c.Arg(i), func(v value.Value, _ bool) bool {
			if !v.IsBlank() {
				n++
			}
			return true
		})
	}
	return value.Number(float64(n))
}

func fnCountBlank(c *Call) value.Value {
	arg := c.Arg(0)
	visited, blanks := 0, 0
	errv := visit(c.Env, arg, func(v value.Value, _ bool) bool {
		visited++
		if v.IsBlank() || (v.IsText() && v.Str() == "") {
			blanks++
		}
		return true
	})
	if errv.IsError() {
		return errv
	}
	blanks += fullSize(arg) - visited
	return value.Number(float64(blanks))
}

func fnCountIf(c *Call) value.Value {
	cr := parseCriterion(c.Scalar(1), c.Env.Locale())
	n, errv := matchCount(c, c.Arg(0), cr)
	if errv.IsError() {
		return errv
	}
	return value.Number(float64(n))
}

func fnCountIfs(c *Call) value.Value {
	if c.Len()%2 != 0 {
		return value.Error(value.ErrValue)
	}
	type pair struct {
		vw *view
		cr *criterion
	}
	var pairs []pair
	for i := 0; i < c.Len(); i += 2 {
		vw, errv := viewOf(c.Env, c.Arg(i))
		if errv.IsError() {
			return errv
		}
		if len(pairs) > 0 && (vw.rows != pairs[0].vw.rows || vw.cols != pairs[0].vw.cols) {
			return value.Error(value.ErrValue)
		}
		pairs = append(pairs, pair{vw, parseCriterion(c.Scalar(i+1), c.Env.Locale())})
	}
	n := 0
	for r := 0; r < pairs[0].vw.rows; r++ {
		for col := 0; col < pairs[0].vw.cols; col++ {
			all := true
			for _, p := range pairs {
				if !p.cr.match(p.vw.at(r, col)) {
					all = false
					break
				}
			}
			if all {
				n++
			}
		}
	}
	return value.Number(float64(n))
}

func fnMax(c *Call) value.Value {
	best, any := math.Inf(-1), false
	if errv := numbers(c, 0, func(f float64) {
		if f > best {
			best = f
		}
		any = true
	}); errv.IsError() {
		return errv
	}
	if !any {
		return value.Number(0)
	}
	return value.Number(best)
}

func fnMin(c *Call) value.Value {
	best, any := math.Inf(1), false
	if errv := numbers(c, 0, func(f float64) {
		if f < best {
			best = f
		}
		any = true
	}); errv.IsError() {
		return errv
	}
	if !any {
		return value.Number(0)
	}
	return value.Number(best)
}

func fnMedian(c *Call) value.Value {
	nums, errv := collect(c)
	if errv.IsError() {
		return errv
	}
	if len(nums) == 0 {
		return value.Error(value.ErrNum)
	}
	sort.Float64s(nums)
	mid := len(nums) / 2
	if len(nums)%2 == 1 {
		return value.Number(nums[mid])
	}
	return value.Number((nums[mid-1] + nums[mid]) / 2)
}

func fnMode(c *Call) value.Value {
	nums, errv := collect(c)
	if errv.IsError() {
		return errv
	}
	counts := make(map[float64]int)
	bestCount := 0
	best := 0.0
	for _, f := range nums {
		counts[f]++
		// First value to reach a higher count wins, so scan order
		// breaks ties.
		if counts[f] > bestCount {
			bestCount = counts[f]
			best = f
		}
	}
	if bestCount < 2 {
		return value.Error(value.ErrNA)
	}
	return value.Number(best)
}

// moments returns n, mean and the sum of squared deviations.
func moments(nums []float64) (n int, mean, ssd float64) {
	n = len(nums)
	if n == 0 {
		return 0, 0, 0
	}
	for _, f := range nums {
		mean += f
	}
	mean /= float64(n)
	for _, f := range nums {
		d := f - mean
		ssd += d * d
	}
	return n, mean, ssd
}

func fnVarS(c *Call) value.Value {
	nums, errv := collect(c)
	if errv.IsError() {
		return errv
	}
	n, _, ssd := moments(nums)
	if n < 2 {
		return value.Error(value.ErrDiv0)
	}
	return value.Number(ssd / float64(n-1))
}

func fnVarP(c *Call) value.Value {
	nums, errv := collect(c)
	if errv.IsError() {
		return errv
	}
	n, _, ssd := moments(nums)
	if n < 1 {
		return value.Error(value.ErrDiv0)
	}
	return value.Number(ssd / float64(n))
}

func fnStdevS(c *Call) value.Value {
	v := fnVarS(c)
	if v.IsError() {
		return v
	}
	return value.Number(math.Sqrt(v.Num()))
}

func fnStdevP(c *Call) value.Value {
	v := fnVarP(c)
	if v.IsError() {
		return v
	}
	return value.Number(math.Sqrt(v.Num()))
}

func kth(c *Call, largest bool) value.Value {
	nums, errv := collectArg(c, 0)
	if errv.IsError() {
		return errv
	}
	k, err := c.Int(1)
	if err != nil {
		return value.FromError(err)
	}
	if k < 1 || k > len(nums) {
		return value.Error(value.ErrNum)
	}
	sort.Float64s(nums)
	if largest {
		return value.Number(nums[len(nums)-k])
	}
	return value.Number(nums[k-1])
}

func fnLarge(c *Call) value.Value { return kth(c, true) }
func fnSmall(c *Call) value.Value { return kth(c, false) }

func fnRank(c *Call) value.Value {
	x, err := c.Number(0)
	if err != nil {
		return value.FromError(err)
	}
	var nums []float64
	errv := visit(c.Env, c.Arg(1), func(v value.Value, _ bool) bool {
		if v.IsNumber() {
			nums = append(nums, v.Num())
		}
		return true
	})
	if errv.IsError() {
		return errv
	}
	ascending, err := c.NumberOr(2, 0)
	if err != nil {
		return value.FromError(err)
	}
	present := false
	rank := 1
	for _, f := range nums {
		if f == x {
			present = true
		}
		if ascending == 0 && f > x {
			rank++
		}
		if ascending != 0 && f < x {
			rank++
		}
	}
	if !present {
		return value.Error(value.ErrNA)
	}
	return value.Number(float64(rank))
}

func fnGeomean(c *Call) value.Value {
	logSum, n := 0.0, 0
	var bad value.Value
	if errv := numbers(c, 0, func(f float64) {
		if f <= 0 {
			bad = value.Error(value.ErrNum)
			return
		}
		logSum += math.Log(f)
		n++
	}); errv.IsError() {
		return errv
	}
	if bad.IsError() {
		return bad
	}
	if n == 0 {
		return value.Error(value.ErrNum)
	}
	return value.Number(math.Exp(logSum / float64(n)))
}
