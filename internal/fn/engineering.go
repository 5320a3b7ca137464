package fn

import (
	"math"
	"strconv"
	"strings"

	"github.com/leapstack-labs/leapcalc/pkg/value"
)

func engineeringBuiltins() []Descriptor {
	return []Descriptor{
		{Name: "DEC2BIN", Category: CategoryEngineering, MinArgs: 1, MaxArgs: 2, Impl: fnDec2Bin},
		{Name: "BIN2DEC", Category: CategoryEngineering, MinArgs: 1, MaxArgs: 1, Impl: fnBin2Dec},
		{Name: "DEC2OCT", Category: CategoryEngineering, MinArgs: 1, MaxArgs: 2, Impl: fnDec2Oct},
		{Name: "OCT2DEC", Category: CategoryEngineering, MinArgs: 1, MaxArgs: 1, Impl: fnOct2Dec},
		{Name: "DEC2HEX", Category: CategoryEngineering, MinArgs: 1, MaxArgs: 2, Impl: fnDec2Hex},
		{Name: "HEX2DEC", Category: CategoryEngineering, MinArgs: 1, MaxArgs: 1, Impl: fnHex2Dec},
		{Name: "DELTA", Category: CategoryEngineering, MinArgs: 1, MaxArgs: 2, Impl: fnDelta},
		{Name: "GESTEP", Category: CategoryEngineering, MinArgs: 1, MaxArgs: 2, Impl: fnGestep},
		{Name: "BITAND", Category: CategoryEngineering, MinArgs: 2, MaxArgs: 2, Impl: fnBitAnd},
		{Name: "BITOR", Category: CategoryEngineering, MinArgs: 2, MaxArgs: 2, Impl: fnBitOr},
		{Name: "BITXOR", Category: CategoryEngineering, MinArgs: 2, MaxArgs: 2, Impl: fnBitXor},
		{Name: "BITLSHIFT", Category: CategoryEngineering, MinArgs: 2, MaxArgs: 2, Impl: fnBitLShift},
		{Name: "BITRSHIFT", Category: CategoryEngineering, MinArgs: 2, MaxArgs: 2, Impl: fnBitRShift},
		{Name: "CONVERT", Category: CategoryEngineering, MinArgs: 3, MaxArgs: 3, Impl: fnConvert},
	}
}

// decToBase renders a decimal as base-2, -8 or -16 text. Negative
// inputs use a fixed-width two's complement of the given bit size and
// ignore the places argument.
func decToBase(c *Call, base, bits int) value.Value {
	f, err := c.Number(0)
	if err != nil {
		return value.FromError(err)
	}
	n := int64(math.Trunc(f))
	if n < -(1<<(bits-1)) || n > 1<<(bits-1)-1 {
		return value.Error(value.ErrNum)
	}
	if n < 0 {
		s := strconv.FormatInt(n+1<<bits, base)
		return value.Text(strings.ToUpper(s))
	}
	s := strings.ToUpper(strconv.FormatInt(n, base))
	if c.Arg(1).IsMissing() {
		return value.Text(s)
	}
	places, perr := c.Int(1)
	if perr != nil {
		return value.FromError(perr)
	}
	if places < len(s) || places <= 0 || places > 10 {
		return value.Error(value.ErrNum)
	}
	return value.Text(strings.Repeat("0", places-len(s)) + s)
}

// baseToDec parses base-2, -8 or -16 text of up to ten digits, reading
// a set top bit as a two's complement sign.
func baseToDec(c *Call, base, bits int) value.Value {
	arg := c.Scalar(0)
	if arg.IsError() {
		return arg
	}
	var s string
	switch {
	case arg.IsNumber():
		if arg.Num() != math.Trunc(arg.Num()) || arg.Num() < 0 {
			return value.Error(value.ErrNum)
		}
		s = strconv.FormatFloat(arg.Num(), 'f', -1, 64)
	case arg.IsText():
		s = strings.TrimSpace(arg.Str())
	case arg.IsBlank():
		return value.Number(0)
	default:
		return value.Error(value.ErrValue)
	}
	if s == "" || len(s) > 10 {
		return value.Error(value.ErrNum)
	}
	n, err := strconv.ParseInt(s, base, 64)
	if err != nil || n < 0 {
		return value.Error(value.ErrNum)
	}
	if len(s) == 10 && n >= 1<<(bits-1) {
		n -= 1 << bits
	}
	return value.Number(float64(n))
}

func fnDec2Bin(c *Call) value.Value { return decToBase(c, 2, 10) }
func fnBin2Dec(c *Call) value.Value { return baseToDec(c, 2, 10) }
func fnDec2Oct(c *Call) value.Value { return decToBase(c, 8, 30) }
func fnOct2Dec(c *Call) value.Value { return baseToDec(c, 8, 30) }
func fnDec2Hex(c *Call) value.Value { return decToBase(c, 16, 40) }
func fnHex2Dec(c *Call) value.Value { return baseToDec(c, 16, 40) }

func fnDelta(c *Call) value.Value {
	a, err := c.Number(0)
	if err != nil {
		return value.FromError(err)
	}
	b, err := c.NumberOr(1, 0)
	if err != nil {
		return value.FromError(err)
	}
	if a == b {
		return value.Number(1)
	}
	return value.Number(0)
}

func fnGestep(c *Call) value.Value {
	a, err := c.Number(0)
	if err != nil {
		return value.FromError(err)
	}
	step, err := c.NumberOr(1, 0)
	if err != nil {
		return value.FromError(err)
	}
	if a >= step {
		return value.Number(1)
	}
	return value.Number(0)
}

// maxBitOperand bounds the bitwise functions to 48-bit unsigned
// operands, keeping every result exact in a float64.
const maxBitOperand = 1 << 48

func bitOperand(c *Call, i int) (uint64, error) {
	f, err := c.Number(i)
	if err != nil {
		return 0, err
	}
	if f < 0 || f != math.Trunc(f) || f >= maxBitOperand {
		return 0, value.ErrNum
	}
	return uint64(f), nil
}

func bitPair(c *Call) (a, b uint64, err error) {
	if a, err = bitOperand(c, 0); err != nil {
		return 0, 0, err
	}
	if b, err = bitOperand(c, 1); err != nil {
		return 0, 0, err
	}
	return a, b, nil
}

func fnBitAnd(c *Call) value.Value {
	a, b, err := bitPair(c)
	if err != nil {
		return value.FromError(err)
	}
	return value.Number(float64(a & b))
}

func fnBitOr(c *Call) value.Value {
	a, b, err := bitPair(c)
	if err != nil {
		return value.FromError(err)
	}
	return value.Number(float64(a | b))
}

func fnBitXor(c *Call) value.Value {
	a, b, err := bitPair(c)
	if err != nil {
		return value.FromError(err)
	}
	return value.Number(float64(a ^ b))
}

func fnBitLShift(c *Call) value.Value { return bitShift(c, 1) }
func fnBitRShift(c *Call) value.Value { return bitShift(c, -1) }

// bitShift moves bits by a signed count, so a negative left shift is
// a right shift. Results must stay inside the 48-bit operand range.
func bitShift(c *Call, dir int) value.Value {
	a, err := bitOperand(c, 0)
	if err != nil {
		return value.FromError(err)
	}
	n, err2 := c.Int(1)
	if err2 != nil {
		return value.FromError(err2)
	}
	if n < -53 || n > 53 {
		return value.Error(value.ErrNum)
	}
	n *= dir
	var out uint64
	if n >= 0 {
		if n >= 64 {
			return value.Error(value.ErrNum)
		}
		out = a << n
	} else {
		out = a >> uint(-n)
	}
	if out >= maxBitOperand {
		return value.Error(value.ErrNum)
	}
	return value.Number(float64(out))
}

// Unit conversion. Factors reduce each unit to its category base:
// meters, grams, seconds or liters. Temperatures convert through
// kelvin with their affine offsets. Unit names are case-sensitive.
type unitDef struct {
	cat    int
	factor float64
}

const (
	unitLength = iota
	unitMass
	unitTime
	unitVolume
	unitTemp
)

var convertUnits = map[string]unitDef{
	"m":   {unitLength, 1},
	"km":  {unitLength, 1000},
	"cm":  {unitLength, 0.01},
	"mm":  {unitLength, 0.001},
	"mi":  {unitLength, 1609.344},
	"Nmi": {unitLength, 1852},
	"yd":  {unitLength, 0.9144},
	"ft":  {unitLength, 0.3048},
	"in":  {unitLength, 0.0254},

	"g":   {unitMass, 1},
	"kg":  {unitMass, 1000},
	"mg":  {unitMass, 0.001},
	"lbm": {unitMass, 453.59237},
	"ozm": {unitMass, 28.349523125},

	"sec": {unitTime, 1},
	"s":   {unitTime, 1},
	"min": {unitTime, 60},
	"mn":  {unitTime, 60},
	"hr":  {unitTime, 3600},
	"day": {unitTime, 86400},
	"d":   {unitTime, 86400},
	"yr":  {unitTime, 31557600},

	"l":   {unitVolume, 1},
	"L":   {unitVolume, 1},
	"lt":  {unitVolume, 1},
	"ml":  {unitVolume, 0.001},
	"gal": {unitVolume, 3.785411784},
	"qt":  {unitVolume, 0.946352946},
	"pt":  {unitVolume, 0.473176473},
	"cup": {unitVolume, 0.2365882365},
	"tbs": {unitVolume, 0.01478676478125},
	"tsp": {unitVolume, 0.00492892159375},

	"C":   {unitTemp, 0},
	"cel": {unitTemp, 0},
	"F":   {unitTemp, 0},
	"fah": {unitTemp, 0},
	"K":   {unitTemp, 0},
	"kel": {unitTemp, 0},
}

func toKelvin(v float64, unit string) float64 {
	switch unit[0] {
	case 'C', 'c':
		return v + 273.15
	case 'F', 'f':
		return (v-32)*5/9 + 273.15
	}
	return v
}

func fromKelvin(k float64, unit string) float64 {
	switch unit[0] {
	case 'C', 'c':
		return k - 273.15
	case 'F', 'f':
		return (k-273.15)*9/5 + 32
	}
	return k
}

func fnConvert(c *Call) value.Value {
	v, err := c.Number(0)
	if err != nil {
		return value.FromError(err)
	}
	from, err := c.Text(1)
	if err != nil {
		return value.FromError(err)
	}
	to, err := c.Text(2)
	if err != nil {
		return value.FromError(err)
	}
	fu, ok := convertUnits[from]
	if !ok {
		return value.Error(value.ErrNA)
	}
	tu, ok := convertUnits[to]
	if !ok {
		return value.Error(value.ErrNA)
	}
	if fu.cat != tu.cat {
		return value.Error(value.ErrNA)
	}
	if fu.cat == unitTemp {
		return value.Number(fromKelvin(toKelvin(v, from), to))
	}
	return value.Number(v * fu.factor / tu.factor)
}
