package fn

import (
	"testing"

	"github.com/leapstack-labs/leapcalc/pkg/value"
)

func TestDec2Bin_TwosComplement(t *testing.T) {
	env := newTestEnv()

	wantText(t, call(t, env, "DEC2BIN", value.Number(9)), "1001")
	wantText(t, call(t, env, "DEC2BIN", value.Number(0)), "0")
	wantText(t, call(t, env, "DEC2BIN", value.Number(9), value.Number(8)), "00001001")

	// Negatives render fixed-width, the places argument ignored.
	wantText(t, call(t, env, "DEC2BIN", value.Number(-1)), "1111111111")
	wantText(t, call(t, env, "DEC2BIN", value.Number(-512)), "1000000000")

	wantError(t, call(t, env, "DEC2BIN", value.Number(512)), value.ErrNum)
	wantError(t, call(t, env, "DEC2BIN", value.Number(-513)), value.ErrNum)
	wantError(t, call(t, env, "DEC2BIN", value.Number(9), value.Number(2)), value.ErrNum)
}

func TestBin2Dec_SignBit(t *testing.T) {
	env := newTestEnv()

	wantNumber(t, call(t, env, "BIN2DEC", value.Text("1001")), 9)
	wantNumber(t, call(t, env, "BIN2DEC", value.Number(1001)), 9)
	wantNumber(t, call(t, env, "BIN2DEC", value.Text("1111111111")), -1)
	wantNumber(t, call(t, env, "BIN2DEC", value.Text("1000000000")), -512)
	wantNumber(t, call(t, env, "BIN2DEC", value.Empty()), 0)

	wantError(t, call(t, env, "BIN2DEC", value.Text("102")), value.ErrNum)
	wantError(t, call(t, env, "BIN2DEC", value.Text("11111111111")), value.ErrNum)
}

func TestHexOct_RoundTrips(t *testing.T) {
	env := newTestEnv()

	wantText(t, call(t, env, "DEC2HEX", value.Number(255)), "FF")
	wantText(t, call(t, env, "DEC2HEX", value.Number(255), value.Number(4)), "00FF")
	wantText(t, call(t, env, "DEC2HEX", value.Number(-1)), "FFFFFFFFFF")
	wantNumber(t, call(t, env, "HEX2DEC", value.Text("FF")), 255)
	wantNumber(t, call(t, env, "HEX2DEC", value.Text("FFFFFFFFFF")), -1)

	wantText(t, call(t, env, "DEC2OCT", value.Number(8)), "10")
	wantText(t, call(t, env, "DEC2OCT", value.Number(-1)), "7777777777")
	wantNumber(t, call(t, env, "OCT2DEC", value.Text("10")), 8)
	wantNumber(t, call(t, env, "OCT2DEC", value.Text("7777777777")), -1)
}

func TestDeltaGestep_Thresholds(t *testing.T) {
	env := newTestEnv()

	wantNumber(t, call(t, env, "DELTA", value.Number(5), value.Number(5)), 1)
	wantNumber(t, call(t, env, "DELTA", value.Number(5), value.Number(4)), 0)
	wantNumber(t, call(t, env, "DELTA", value.Number(0)), 1)

	wantNumber(t, call(t, env, "GESTEP", value.Number(5), value.Number(4)), 1)
	wantNumber(t, call(t, env, "GESTEP", value.Number(3), value.Number(4)), 0)
	wantNumber(t, call(t, env, "GESTEP", value.Number(0)), 1)
}

func TestBitwise_IntegerDomain(t *testing.T) {
	env := newTestEnv()

	wantNumber(t, call(t, env, "BITAND", value.Number(13), value.Number(25)), 9)
	wantNumber(t, call(t, env, "BITOR", value.Number(23), value.Number(10)), 31)
	wantNumber(t, call(t, env, "BITXOR", value.Number(5), value.Number(3)), 6)

	wantError(t, call(t, env, "BITAND", value.Number(-1), value.Number(1)), value.ErrNum)
	wantError(t, call(t, env, "BITAND", value.Number(1.5), value.Number(1)), value.ErrNum)
	wantError(t, call(t, env, "BITAND", value.Number(1<<48), value.Number(1)), value.ErrNum)
}

func TestBitShifts_SignedCounts(t *testing.T) {
	env := newTestEnv()

	wantNumber(t, call(t, env, "BITLSHIFT", value.Number(4), value.Number(2)), 16)
	wantNumber(t, call(t, env, "BITLSHIFT", value.Number(4), value.Number(-2)), 1)
	wantNumber(t, call(t, env, "BITRSHIFT", value.Number(13), value.Number(2)), 3)
	wantNumber(t, call(t, env, "BITRSHIFT", value.Number(3), value.Number(-2)), 12)

	// Results may not leave the 48-bit operand range.
	wantError(t, call(t, env, "BITLSHIFT", value.Number(1), value.Number(48)), value.ErrNum)
	wantError(t, call(t, env, "BITLSHIFT", value.Number(1), value.Number(54)), value.ErrNum)
}

func TestConvert_UnitsAndCategories(t *testing.T) {
	env := newTestEnv()

	wantNumber(t, call(t, env, "CONVERT", value.Number(1), value.Text("mi"), value.Text("m")), 1609.344)
	wantNumber(t, call(t, env, "CONVERT", value.Number(1), value.Text("kg"), value.Text("g")), 1000)
	wantNumber(t, call(t, env, "CONVERT", value.Number(1), value.Text("hr"), value.Text("min")), 60)
	wantNumber(t, call(t, env, "CONVERT", value.Number(1), value.Text("gal"), value.Text("l")), 3.785411784)

	wantNumber(t, call(t, env, "CONVERT", value.Number(0), value.Text("C"), value.Text("K")), 273.15)
	wantNear(t, call(t, env, "CONVERT", value.Number(100), value.Text("C"), value.Text("F")), 212)
	wantNear(t, call(t, env, "CONVERT", value.Number(32), value.Text("F"), value.Text("cel")), 0)

	// Units are case-sensitive; categories never mix.
	wantError(t, call(t, env, "CONVERT", value.Number(1), value.Text("MI"), value.Text("m")), value.ErrNA)
	wantError(t, call(t, env, "CONVERT", value.Number(1), value.Text("m"), value.Text("g")), value.ErrNA)
}
