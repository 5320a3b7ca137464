package fn

import (
	"math"

	"github.com/leapstack-labs/leapcalc/pkg/value"
)

func mathBuiltins() []Descriptor {
	return []Descriptor{
		{Name: "SUM", Category: CategoryMath, MinArgs: 1, MaxArgs: -1, Impl: fnSum},
		{Name: "PRODUCT", Category: CategoryMath, MinArgs: 1, MaxArgs: -1, Impl: fnProduct},
		{Name: "SUMSQ", Category: CategoryMath, MinArgs: 1, MaxArgs: -1, Impl: fnSumSq},
		{Name: "SUMPRODUCT", Category: CategoryMath, MinArgs: 1, MaxArgs: -1, Impl: fnSumProduct},
		{Name: "SUMIF", Category: CategoryMath, MinArgs: 2, MaxArgs: 3, Impl: fnSumIf},
		{Name: "SUMIFS", Category: CategoryMath, MinArgs: 3, MaxArgs: -1, Impl: fnSumIfs},
		{Name: "ABS", Category: CategoryMath, MinArgs: 1, MaxArgs: 1, Impl: fnAbs},
		{Name: "SIGN", Category: CategoryMath, MinArgs: 1, MaxArgs: 1, Impl: fnSign},
		{Name: "INT", Category: CategoryMath, MinArgs: 1, MaxArgs: 1, Impl: fnInt},
		{Name: "TRUNC", Category: CategoryMath, MinArgs: 1, MaxArgs: 2, Impl: fnTrunc},
		{Name: "ROUND", Category: CategoryMath, MinArgs: 2, MaxArgs: 2, Impl: fnRound},
		{Name: "ROUNDUP", Category: CategoryMath, MinArgs: 2, MaxArgs: 2, Impl: fnRoundUp},
		{Name: "ROUNDDOWN", Category: CategoryMath, MinArgs: 2, MaxArgs: 2, Impl: fnRoundDown},
		{Name: "MROUND", Category: CategoryMath, MinArgs: 2, MaxArgs: 2, Impl: fnMRound},
		{Name: "MOD", Category: CategoryMath, MinArgs: 2, MaxArgs: 2, Impl: fnMod},
		{Name: "QUOTIENT", Category: CategoryMath, MinArgs: 2, MaxArgs: 2, Impl: fnQuotient},
		{Name: "POWER", Category: CategoryMath, MinArgs: 2, MaxArgs: 2, Impl: fnPower},
		{Name: "SQRT", Category: CategoryMath, MinArgs: 1, MaxArgs: 1, Impl: fnSqrt},
		{Name: "EXP", Category: CategoryMath, MinArgs: 1, MaxArgs: 1, Impl: fnExp},
		{Name: "LN", Category: CategoryMath, MinArgs: 1, MaxArgs: 1, Impl: fnLn},
		{Name: "LOG", Category: CategoryMath, MinArgs: 1, MaxArgs: 2, Impl: fnLog},
		{Name: "LOG10", Category: CategoryMath, MinArgs: 1, MaxArgs: 1, Impl: fnLog10},
		{Name: "PI", Category: CategoryMath, MinArgs: 0, MaxArgs: 0, Impl: fnPi},
		{Name: "RAND", Category: CategoryMath, MinArgs: 0, MaxArgs: 0, Volatile: true, Impl: fnRand},
		{Name: "RANDBETWEEN", Category: CategoryMath, MinArgs: 2, MaxArgs: 2, Volatile: true, Impl: fnRandBetween},
		{Name: "CEILING", Category: CategoryMath, MinArgs: 2, MaxArgs: 2, Impl: fnCeiling},
		{Name: "CEILING.MATH", Category: CategoryMath, MinArgs: 1, MaxArgs: 3, Impl: fnCeilingMath},
		{Name: "FLOOR", Category: CategoryMath, MinArgs: 2, MaxArgs: 2, Impl: fnFloor},
		{Name: "FLOOR.MATH", Category: CategoryMath, MinArgs: 1, MaxArgs: 3, Impl: fnFloorMath},
		{Name: "EVEN", Category: CategoryMath, MinArgs: 1, MaxArgs: 1, Impl: fnEven},
		{Name: "ODD", Category: CategoryMath, MinArgs: 1, MaxArgs: 1, Impl: fnOdd},
		{Name: "GCD", Category: CategoryMath, MinArgs: 1, MaxArgs: -1, Impl: fnGCD},
		{Name: "LCM", Category: CategoryMath, MinArgs: 1, MaxArgs: -1, Impl: fnLCM},
		{Name: "FACT", Category: CategoryMath, MinArgs: 1, MaxArgs: 1, Impl: fnFact},
		{Name: "COMBIN", Category: CategoryMath, MinArgs: 2, MaxArgs: 2, Impl: fnCombin},
		{Name: "DEGREES", Category: CategoryMath, MinArgs: 1, MaxArgs: 1, Impl: fnDegrees},
		{Name: "RADIANS", Category: CategoryMath, MinArgs: 1, MaxArgs: 1, Impl: fnRadians},
		{Name: "SIN", Category: CategoryMath, MinArgs: 1, MaxArgs: 1, Impl: unary(math.Sin)},
		{Name: "COS", Category: CategoryMath, MinArgs: 1, MaxArgs: 1, Impl: unary(math.Cos)},
		{Name: "TAN", Category: CategoryMath, MinArgs: 1, MaxArgs: 1, Impl: unary(math.Tan)},
		{Name: "ASIN", Category: CategoryMath, MinArgs: 1, MaxArgs: 1, Impl: unaryChecked(math.Asin)},
		{Name: "ACOS", Category: CategoryMath, MinArgs: 1, MaxArgs: 1, Impl: unaryChecked(math.Acos)},
		{Name: "ATAN", Category: CategoryMath, MinArgs: 1, MaxArgs: 1, Impl: unary(math.Atan)},
		{Name: "ATAN2", Category: CategoryMath, MinArgs: 2, MaxArgs: 2, Impl: fnAtan2},
		{Name: "SINH", Category: CategoryMath, MinArgs: 1, MaxArgs: 1, Impl: unary(math.Sinh)},
		{Name: "COSH", Category: CategoryMath, MinArgs: 1, MaxArgs: 1, Impl: unary(math.Cosh)},
		{Name: "TANH", Category: CategoryMath, MinArgs: 1, MaxArgs: 1, Impl: unary(math.Tanh)},
	}
}

// unary lifts a float function into an implementation.
func unary(f func(float64) float64) Impl {
	return func(c *Call) value.Value {
		x, err := c.Number(0)
		if err != nil {
			return value.FromError(err)
		}
		return value.Number(f(x))
	}
}

// unaryChecked is unary for functions with a restricted domain; NaN
// and infinities surface as #NUM!.
func unaryChecked(f func(float64) float64) Impl {
	return func(c *Call) value.Value {
		x, err := c.Number(0)
		if err != nil {
			return value.FromError(err)
		}
		return numResult(f(x))
	}
}

// numResult guards a computed float: NaN and infinities are #NUM!.
func numResult(f float64) value.Value {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return value.Error(value.ErrNum)
	}
	return value.Number(f)
}

func fnSum(c *Call) value.Value {
	total := 0.0
	if errv := numbers(c, 0, func(f float64) { total += f }); errv.IsError() {
		return errv
	}
	return value.Number(total)
}

func fnProduct(c *Call) value.Value {
	prod, any := 1.0, false
	if errv := numbers(c, 0, func(f float64) { prod *= f; any = true }); errv.IsError() {
		return errv
	}
	if !any {
		return value.Number(0)
	}
	return value.Number(prod)
}

func fnSumSq(c *Call) value.Value {
	total := 0.0
	if errv := numbers(c, 0, func(f float64) { total += f * f }); errv.IsError() {
		return errv
	}
	return value.Number(total)
}

func fnSumProduct(c *Call) value.Value {
	views := make([]*view, c.Len())
	for i := 0; i < c.Len(); i++ {
		vw, errv := viewOf(c.Env, c.Arg(i))
		if errv.IsError() {
			return errv
		}
		views[i] = vw
		if vw.rows != views[0].rows || vw.cols != views[0].cols {
			return value.Error(value.ErrValue)
		}
	}
	total := 0.0
	for r := 0; r < views[0].rows; r++ {
		for col := 0; col < views[0].cols; col++ {
			term := 1.0
			for _, vw := range views {
				cv := vw.at(r, col)
				if cv.IsError() {
					return cv
				}
				// Non-numeric factors count as zero.
				if cv.IsNumber() {
					term *= cv.Num()
				} else {
					term = 0
				}
			}
			total += term
		}
	}
	return value.Number(total)
}

func fnSumIf(c *Call) value.Value {
	critView, errv := viewOf(c.Env, c.Arg(0))
	if errv.IsError() {
		return errv
	}
	cr := parseCriterion(c.Scalar(1), c.Env.Locale())
	sumArg := c.Arg(0)
	if c.Len() == 3 {
		sumArg = c.Arg(2)
	}
	sumView, errv := viewOf(c.Env, sumArg)
	if errv.IsError() {
		return errv
	}
	total := 0.0
	for r := 0; r < critView.rows; r++ {
		for col := 0; col < critView.cols; col++ {
			if !cr.match(critView.at(r, col)) {
				continue
			}
			sv := sumView.at(r, col)
			if sv.IsError() {
				return sv
			}
			if sv.IsNumber() {
				total += sv.Num()
			}
		}
	}
	return value.Number(total)
}

func fnSumIfs(c *Call) value.Value {
	if (c.Len()-1)%2 != 0 {
		return value.Error(value.ErrValue)
	}
	sumView, errv := viewOf(c.Env, c.Arg(0))
	if errv.IsError() {
		return errv
	}
	type pair struct {
		vw *view
		cr *criterion
	}
	pairs := make([]pair, 0, (c.Len()-1)/2)
	for i := 1; i < c.Len(); i += 2 {
		vw, errv := viewOf(c.Env, c.Arg(i))
		if errv.IsError() {
			return errv
		}
		if vw.rows != sumView.rows || vw.cols != sumView.cols {
			return value.Error(value.ErrValue)
		}
		pairs = append(pairs, pair{vw, parseCriterion(c.Scalar(i+1), c.Env.Locale())})
	}
	total := 0.0
	for r := 0; r < sumView.rows; r++ {
		for col := 0; col < sumView.cols; col++ {
			all := true
			for _, p := range pairs {
				if !p.cr.match(p.vw.at(r, col)) {
					all = false
					break
				}
			}
			if !all {
				continue
			}
			sv := sumView.at(r, col)
			if sv.IsError() {
				return sv
			}
			if sv.IsNumber() {
				total += sv.Num()
			}
		}
	}
	return value.Number(total)
}

func fnAbs(c *Call) value.Value {
	x, err := c.Number(0)
	if err != nil {
		return value.FromError(err)
	}
	return value.Number(math.Abs(x))
}

func fnSign(c *Call) value.Value {
	x, err := c.Number(0)
	if err != nil {
		return value.FromError(err)
	}
	switch {
	case x > 0:
		return value.Number(1)
	case x < 0:
		return value.Number(-1)
	}
	return value.Number(0)
}

func fnInt(c *Call) value.Value {
	x, err := c.Number(0)
	if err != nil {
		return value.FromError(err)
	}
	return value.Number(math.Floor(x))
}

func fnTrunc(c *Call) value.Value {
	x, err := c.Number(0)
	if err != nil {
		return value.FromError(err)
	}
	d, err := c.IntOr(1, 0)
	if err != nil {
		return value.FromError(err)
	}
	p := math.Pow(10, float64(d))
	return value.Number(math.Trunc(x*p) / p)
}

// roundAway rounds half away from zero at the given decimal place.
func roundAway(x float64, digits int) float64 {
	p := math.Pow(10, float64(digits))
	if x < 0 {
		return -math.Floor(-x*p+0.5) / p
	}
	return math.Floor(x*p+0.5) / p
}

func fnRound(c *Call) value.Value {
	x, err := c.Number(0)
	if err != nil {
		return value.FromError(err)
	}
	d, err := c.Int(1)
	if err != nil {
		return value.FromError(err)
	}
	return value.Number(roundAway(x, d))
}

func fnRoundUp(c *Call) value.Value {
	x, err := c.Number(0)
	if err != nil {
		return value.FromError(err)
	}
	d, err := c.Int(1)
	if err != nil {
		return value.FromError(err)
	}
	p := math.Pow(10, float64(d))
	if x < 0 {
		return value.Number(-math.Ceil(-x*p) / p)
	}
	return value.Number(math.Ceil(x*p) / p)
}

func fnRoundDown(c *Call) value.Value {
	x, err := c.Number(0)
	if err != nil {
		return value.FromError(err)
	}
	d, err := c.Int(1)
	if err != nil {
		return value.FromError(err)
	}
	p := math.Pow(10, float64(d))
	return value.Number(math.Trunc(x*p) / p)
}

func fnMRound(c *Call) value.Value {
	x, err := c.Number(0)
	if err != nil {
		return value.FromError(err)
	}
	m, err := c.Number(1)
	if err != nil {
		return value.FromError(err)
	}
	if m == 0 {
		return value.Number(0)
	}
	if (x > 0) != (m > 0) && x != 0 {
		return value.Error(value.ErrNum)
	}
	return value.Number(math.Round(x/m) * m)
}

// Result takes the divisor's sign, as =MOD(-3,2) -> 1 shows.
func fnMod(c *Call) value.Value {
	n, err := c.Number(0)
	if err != nil {
		return value.FromError(err)
	}
	d, err := c.Number(1)
	if err != nil {
		return value.FromError(err)
	}
	if d == 0 {
		return value.Error(value.ErrDiv0)
	}
	return value.Number(n - d*math.Floor(n/d))
}

func fnQuotient(c *Call) value.Value {
	n, err := c.Number(0)
	if err != nil {
		return value.FromError(err)
	}
	d, err := c.Number(1)
	if err != nil {
		return value.FromError(err)
	}
	if d == 0 {
		return value.Error(value.ErrDiv0)
	}
	return value.Number(math.Trunc(n / d))
}

func fnPower(c *Call) value.Value {
	x, err := c.Number(0)
	if err != nil {
		return value.FromError(err)
	}
	y, err := c.Number(1)
	if err != nil {
		return value.FromError(err)
	}
	if x == 0 && y == 0 {
		return value.Error(value.ErrNum)
	}
	if x == 0 && y < 0 {
		return value.Error(value.ErrDiv0)
	}
	return numResult(math.Pow(x, y))
}

func fnSqrt(c *Call) value.Value {
	x, err := c.Number(0)
	if err != nil {
		return value.FromError(err)
	}
	if x < 0 {
		return value.Error(value.ErrNum)
	}
	return value.Number(math.Sqrt(x))
}

func fnExp(c *Call) value.Value {
	x, err := c.Number(0)
	if err != nil {
		return value.FromError(err)
	}
	return numResult(math.Exp(x))
}

func fnLn(c *Call) value.Value {
	x, err := c.Number(0)
	if err != nil {
		return value.FromError(err)
	}
	if x <= 0 {
		return value.Error(value.ErrNum)
	}
	return value.Number(math.Log(x))
}

func fnLog(c *Call) value.Value {
	x, err := c.Number(0)
	if err != nil {
		return value.FromError(err)
	}
	base, err := c.NumberOr(1, 10)
	if err != nil {
		return value.FromError(err)
	}
	if x <= 0 || base <= 0 || base == 1 {
		return value.Error(value.ErrNum)
	}
	return value.Number(math.Log(x) / math.Log(base))
}

func fnLog10(c *Call) value.Value {
	x, err := c.Number(0)
	if err != nil {
		return value.FromError(err)
	}
	if x <= 0 {
		return value.Error(value.ErrNum)
	}
	return value.Number(math.Log10(x))
}

func fnPi(c *Call) value.Value {
	return value.Number(math.Pi)
}

func fnRand(c *Call) value.Value {
	return value.Number(c.Env.Rand())
}

func fnRandBetween(c *Call) value.Value {
	lo, err := c.Number(0)
	if err != nil {
		return value.FromError(err)
	}
	hi, err := c.Number(1)
	if err != nil {
		return value.FromError(err)
	}
	bottom, top := math.Ceil(lo), math.Floor(hi)
	if bottom > top {
		return value.Error(value.ErrNum)
	}
	span := top - bottom + 1
	return value.Number(bottom + math.Floor(c.Env.Rand()*span))
}

// toMultiple rounds x to a multiple of sig, direction chosen by up
// relative to zero.
func toMultiple(x, sig float64, up bool) float64 {
	if sig == 0 {
		return 0
	}
	q := x / sig
	if up {
		return math.Ceil(q) * sig
	}
	return math.Floor(q) * sig
}

func fnCeiling(c *Call) value.Value {
	x, err := c.Number(0)
	if err != nil {
		return value.FromError(err)
	}
	sig, err := c.Number(1)
	if err != nil {
		return value.FromError(err)
	}
	if x > 0 && sig < 0 {
		return value.Error(value.ErrNum)
	}
	if sig == 0 {
		return value.Number(0)
	}
	// With both negative the magnitude rounds away from zero.
	if x < 0 && sig < 0 {
		return value.Number(-toMultiple(-x, -sig, true))
	}
	return value.Number(toMultiple(x, sig, true))
}

func fnCeilingMath(c *Call) value.Value {
	x, err := c.Number(0)
	if err != nil {
		return value.FromError(err)
	}
	sig, err := c.NumberOr(1, 1)
	if err != nil {
		return value.FromError(err)
	}
	mode, err := c.NumberOr(2, 0)
	if err != nil {
		return value.FromError(err)
	}
	sig = math.Abs(sig)
	if sig == 0 {
		return value.Number(0)
	}
	if x < 0 && mode != 0 {
		return value.Number(-toMultiple(-x, sig, true))
	}
	return value.Number(toMultiple(x, sig, true))
}

func fnFloor(c *Call) value.Value {
	x, err := c.Number(0)
	if err != nil {
		return value.FromError(err)
	}
	sig, err := c.Number(1)
	if err != nil {
		return value.FromError(err)
	}
	if x > 0 && sig < 0 {
		return value.Error(value.ErrNum)
	}
	if sig == 0 {
		return value.Error(value.ErrDiv0)
	}
	if x < 0 && sig < 0 {
		return value.Number(-toMultiple(-x, -sig, false))
	}
	return value.Number(toMultiple(x, sig, false))
}

func fnFloorMath(c *Call) value.Value {
	x, err := c.Number(0)
	if err != nil {
		return value.FromError(err)
	}
	sig, err := c.NumberOr(1, 1)
	if err != nil {
		return value.FromError(err)
	}
	mode, err := c.NumberOr(2, 0)
	if err != nil {
		return value.FromError(err)
	}
	sig = math.Abs(sig)
	if sig == 0 {
		return value.Number(0)
	}
	if x < 0 && mode != 0 {
		return value.Number(-toMultiple(-x, sig, false))
	}
	return value.Number(toMultiple(x, sig, false))
}

func fnEven(c *Call) value.Value {
	x, err := c.Number(0)
	if err != nil {
		return value.FromError(err)
	}
	r := toMultiple(math.Abs(x), 2, true)
	return value.Number(math.Copysign(r, x))
}

func fnOdd(c *Call) value.Value {
	x, err := c.Number(0)
	if err != nil {
		return value.FromError(err)
	}
	ax := math.Abs(x)
	r := math.Ceil((ax+1)/2)*2 - 1
	return value.Number(math.Copysign(r, x))
}

func fnGCD(c *Call) value.Value {
	var g int64
	var bad value.Value
	if errv := numbers(c, 0, func(f float64) {
		if f < 0 || f > 1<<53 {
			bad = value.Error(value.ErrNum)
			return
		}
		n := int64(f)
		for n != 0 {
			g, n = n, g%n
		}
	}); errv.IsError() {
		return errv
	}
	if bad.IsError() {
		return bad
	}
	return value.Number(float64(g))
}

func fnLCM(c *Call) value.Value {
	var l int64 = 1
	var bad value.Value
	if errv := numbers(c, 0, func(f float64) {
		if f < 0 || f > 1<<53 {
			bad = value.Error(value.ErrNum)
			return
		}
		n := int64(f)
		if n == 0 {
			l = 0
			return
		}
		if l == 0 {
			return
		}
		g, a := n, l
		for a != 0 {
			g, a = a, g%a
		}
		l = l / g * n
	}); errv.IsError() {
		return errv
	}
	if bad.IsError() {
		return bad
	}
	return value.Number(float64(l))
}

func fnFact(c *Call) value.Value {
	n, err := c.Int(0)
	if err != nil {
		return value.FromError(err)
	}
	if n < 0 || n > 170 {
		return value.Error(value.ErrNum)
	}
	f := 1.0
	for i := 2; i <= n; i++ {
		f *= float64(i)
	}
	return value.Number(f)
}

func fnCombin(c *Call) value.Value {
	n, err := c.Int(0)
	if err != nil {
		return value.FromError(err)
	}
	k, err := c.Int(1)
	if err != nil {
		return value.FromError(err)
	}
	if n < 0 || k < 0 || k > n {
		return value.Error(value.ErrNum)
	}
	if k > n-k {
		k = n - k
	}
	r := 1.0
	for i := 1; i <= k; i++ {
		r = r * float64(n-k+i) / float64(i)
	}
	return numResult(math.Round(r))
}

func fnDegrees(c *Call) value.Value {
	x, err := c.Number(0)
	if err != nil {
		return value.FromError(err)
	}
	return value.Number(x * 180 / math.Pi)
}

func fnRadians(c *Call) value.Value {
	x, err := c.Number(0)
	if err != nil {
		return value.FromError(err)
	}
	return value.Number(x * math.Pi / 180)
}

// Argument order is (x, y), the reverse of math.Atan2.
func fnAtan2(c *Call) value.Value {
	x, err := c.Number(0)
	if err != nil {
		return value.FromError(err)
	}
	y, err := c.Number(1)
	if err != nil {
		return value.FromError(err)
	}
	if x == 0 && y == 0 {
		return value.Error(value.ErrDiv0)
	}
	return value.Number(math.Atan2(y, x))
}
