package fn

import (
	"testing"

	"github.com/leapstack-labs/leapcalc/pkg/value"
)

func TestDate_SerialConstruction(t *testing.T) {
	env := newTestEnv()

	wantNumber(t, call(t, env, "DATE",
		value.Number(2024), value.Number(3), value.Number(15)), 45366)
	wantNumber(t, call(t, env, "DATE",
		value.Number(1900), value.Number(1), value.Number(1)), 2)

	// Two-digit years land in the 1900s.
	wantNumber(t, call(t, env, "DATE",
		value.Number(24), value.Number(3), value.Number(15)), 8841)

	// Month and day overflow rolls over.
	wantNumber(t, call(t, env, "DATE",
		value.Number(2024), value.Number(13), value.Number(1)), 45658)
	wantNumber(t, call(t, env, "DATE",
		value.Number(2023), value.Number(2), value.Number(29)), 44986)

	wantError(t, call(t, env, "DATE",
		value.Number(-1), value.Number(1), value.Number(1)), value.ErrNum)
	wantError(t, call(t, env, "DATE",
		value.Number(10000), value.Number(1), value.Number(1)), value.ErrNum)
	// Rolling back before the epoch is out of range.
	wantError(t, call(t, env, "DATE",
		value.Number(1900), value.Number(-50), value.Number(1)), value.ErrNum)
}

func TestTime_FractionOfDay(t *testing.T) {
	env := newTestEnv()

	wantNumber(t, call(t, env, "TIME",
		value.Number(10), value.Number(30), value.Number(0)), 0.4375)
	wantNumber(t, call(t, env, "TIME",
		value.Number(0), value.Number(0), value.Number(0)), 0)
	// Hours wrap past midnight.
	wantNear(t, call(t, env, "TIME",
		value.Number(25), value.Number(0), value.Number(0)), 1.0/24)
	wantError(t, call(t, env, "TIME",
		value.Number(-1), value.Number(0), value.Number(0)), value.ErrNum)
}

func TestDateParts_RoundTrip(t *testing.T) {
	env := newTestEnv()
	serial := value.Number(45366.4375) // 2024-03-15 10:30

	wantNumber(t, call(t, env, "YEAR", serial), 2024)
	wantNumber(t, call(t, env, "MONTH", serial), 3)
	wantNumber(t, call(t, env, "DAY", serial), 15)
	wantNumber(t, call(t, env, "HOUR", serial), 10)
	wantNumber(t, call(t, env, "MINUTE", serial), 30)
	wantNumber(t, call(t, env, "SECOND", serial), 0)

	wantError(t, call(t, env, "YEAR", value.Number(-1)), value.ErrNum)
}

func TestNowToday_FrozenClock(t *testing.T) {
	env := newTestEnv() // clock pinned to 2024-03-15 10:30 UTC

	wantNumber(t, call(t, env, "NOW"), 45366.4375)
	wantNumber(t, call(t, env, "TODAY"), 45366)
}

func TestWeekday_NumberingModes(t *testing.T) {
	env := newTestEnv()
	friday := value.Number(45366)

	wantNumber(t, call(t, env, "WEEKDAY", friday), 6)
	wantNumber(t, call(t, env, "WEEKDAY", friday, value.Number(2)), 5)
	wantNumber(t, call(t, env, "WEEKDAY", friday, value.Number(3)), 4)
	wantNumber(t, call(t, env, "WEEKDAY", friday, value.Number(11)), 5)
	wantNumber(t, call(t, env, "WEEKDAY", friday, value.Number(14)), 2)
	wantError(t, call(t, env, "WEEKDAY", friday, value.Number(4)), value.ErrNum)
}

func TestDays_TruncatesTimeOfDay(t *testing.T) {
	env := newTestEnv()

	wantNumber(t, call(t, env, "DAYS", value.Number(45366.9), value.Number(45306.2)), 60)
	wantNumber(t, call(t, env, "DAYS", value.Number(45306), value.Number(45366)), -60)
}

func TestDateDif_Units(t *testing.T) {
	env := newTestEnv()
	start := value.Number(45306) // 2024-01-15
	end := value.Number(45361)   // 2024-03-10

	wantNumber(t, call(t, env, "DATEDIF", start, end, value.Text("D")), 55)
	wantNumber(t, call(t, env, "DATEDIF", start, end, value.Text("m")), 1)
	wantNumber(t, call(t, env, "DATEDIF", start, end, value.Text("Y")), 0)
	wantNumber(t, call(t, env, "DATEDIF", start, end, value.Text("YM")), 1)
	// Day shortfall borrows the month before the end date, February here.
	wantNumber(t, call(t, env, "DATEDIF", start, end, value.Text("MD")), 24)

	wantError(t, call(t, env, "DATEDIF", end, start, value.Text("D")), value.ErrNum)
	wantError(t, call(t, env, "DATEDIF", start, end, value.Text("DM")), value.ErrNum)
}

func TestEDate_ClampsToMonthEnd(t *testing.T) {
	env := newTestEnv()
	jan31 := value.Number(45322) // 2024-01-31

	wantNumber(t, call(t, env, "EDATE", jan31, value.Number(1)), 45351)                // 2024-02-29
	wantNumber(t, call(t, env, "EDATE", jan31, value.Number(-1)), 45291)               // 2023-12-31
	wantNumber(t, call(t, env, "EDATE", value.Number(45351), value.Number(12)), 45716) // 2025-02-28

	wantError(t, call(t, env, "EDATE", value.Number(2), value.Number(-12)), value.ErrNum)
}

func TestEOMonth_LastDays(t *testing.T) {
	env := newTestEnv()
	jan15 := value.Number(45306)

	wantNumber(t, call(t, env, "EOMONTH", jan15, value.Number(0)), 45322) // 2024-01-31
	wantNumber(t, call(t, env, "EOMONTH", jan15, value.Number(1)), 45351) // 2024-02-29
	wantNumber(t, call(t, env, "EOMONTH", jan15, value.Number(-1)), 45291)
}
