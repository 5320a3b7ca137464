package fn

import (
	"math"
	"strings"
	"time"

	"github.com/leapstack-labs/leapcalc/pkg/value"
)

// Dates are serial numbers counting days from 1899-12-30, the time of
// day the fractional part. Serial 2 is 1900-01-01 plus one; the
// historical leap-year quirk of that year is not reproduced.
var serialEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

func dateTimeBuiltins() []Descriptor {
	return []Descriptor{
		{Name: "NOW", Category: CategoryDateTime, MinArgs: 0, MaxArgs: 0, Volatile: true, Impl: fnNow},
		{Name: "TODAY", Category: CategoryDateTime, MinArgs: 0, MaxArgs: 0, Volatile: true, Impl: fnToday},
		{Name: "DATE", Category: CategoryDateTime, MinArgs: 3, MaxArgs: 3, Impl: fnDate},
		{Name: "TIME", Category: CategoryDateTime, MinArgs: 3, MaxArgs: 3, Impl: fnTime},
		{Name: "YEAR", Category: CategoryDateTime, MinArgs: 1, MaxArgs: 1, Impl: fnYear},
		{Name: "MONTH", Category: CategoryDateTime, MinArgs: 1, MaxArgs: 1, Impl: fnMonth},
		{Name: "DAY", Category: CategoryDateTime, MinArgs: 1, MaxArgs: 1, Impl: fnDay},
		{Name: "HOUR", Category: CategoryDateTime, MinArgs: 1, MaxArgs: 1, Impl: fnHour},
		{Name: "MINUTE", Category: CategoryDateTime, MinArgs: 1, MaxArgs: 1, Impl: fnMinute},
		{Name: "SECOND", Category: CategoryDateTime, MinArgs: 1, MaxArgs: 1, Impl: fnSecond},
		{Name: "WEEKDAY", Category: CategoryDateTime, MinArgs: 1, MaxArgs: 2, Impl: fnWeekday},
		{Name: "DAYS", Category: CategoryDateTime, MinArgs: 2, MaxArgs: 2, Impl: fnDays},
		{Name: "DATEDIF", Category: CategoryDateTime, MinArgs: 3, MaxArgs: 3, Impl: fnDateDif},
		{Name: "EDATE", Category: CategoryDateTime, MinArgs: 2, MaxArgs: 2, Impl: fnEDate},
		{Name: "EOMONTH", Category: CategoryDateTime, MinArgs: 2, MaxArgs: 2, Impl: fnEOMonth},
	}
}

// dateSerial converts a civil date to its whole-day serial. Out-of-
// range month and day values roll over, as =DATE(2024,13,1) expects.
func dateSerial(y, m, d int) float64 {
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	return float64((t.Unix() - serialEpoch.Unix()) / 86400)
}

// civil returns the date part of a serial.
func civil(serial float64) time.Time {
	return serialEpoch.AddDate(0, 0, int(math.Floor(serial)))
}

// clockSecs returns the time of day in whole seconds, rounded so that
// serials produced from h:m:s round-trip exactly.
func clockSecs(serial float64) int {
	frac := serial - math.Floor(serial)
	s := int(math.Round(frac * 86400))
	if s >= 86400 {
		s = 0
	}
	return s
}

func toSerial(t time.Time) float64 {
	y, m, d := t.Date()
	frac := float64(t.Hour()*3600+t.Minute()*60+t.Second()) / 86400
	return dateSerial(y, int(m), d) + frac
}

// dateArg reads one argument as a date serial, rejecting the negative
// range that precedes the epoch.
func dateArg(c *Call, i int) (float64, error) {
	f, err := c.Number(i)
	if err != nil {
		return 0, err
	}
	if f < 0 {
		return 0, value.ErrNum
	}
	return f, nil
}

func fnNow(c *Call) value.Value {
	return value.Number(toSerial(c.Env.Now()))
}

func fnToday(c *Call) value.Value {
	return value.Number(math.Floor(toSerial(c.Env.Now())))
}

func fnDate(c *Call) value.Value {
	y, err := c.Int(0)
	if err != nil {
		return value.FromError(err)
	}
	m, err := c.Int(1)
	if err != nil {
		return value.FromError(err)
	}
	d, err := c.Int(2)
	if err != nil {
		return value.FromError(err)
	}
	if y < 0 || y > 9999 {
		return value.Error(value.ErrNum)
	}
	if y <= 1899 {
		y += 1900
	}
	serial := dateSerial(y, m, d)
	if serial < 0 {
		return value.Error(value.ErrNum)
	}
	return value.Number(serial)
}

func fnTime(c *Call) value.Value {
	h, err := c.Int(0)
	if err != nil {
		return value.FromError(err)
	}
	m, err := c.Int(1)
	if err != nil {
		return value.FromError(err)
	}
	s, err := c.Int(2)
	if err != nil {
		return value.FromError(err)
	}
	total := h*3600 + m*60 + s
	if total < 0 {
		return value.Error(value.ErrNum)
	}
	return value.Number(float64(total%86400) / 86400)
}

func fnYear(c *Call) value.Value {
	f, err := dateArg(c, 0)
	if err != nil {
		return value.FromError(err)
	}
	return value.Number(float64(civil(f).Year()))
}

func fnMonth(c *Call) value.Value {
	f, err := dateArg(c, 0)
	if err != nil {
		return value.FromError(err)
	}
	return value.Number(float64(civil(f).Month()))
}

func fnDay(c *Call) value.Value {
	f, err := dateArg(c, 0)
	if err != nil {
		return value.FromError(err)
	}
	return value.Number(float64(civil(f).Day()))
}

func fnHour(c *Call) value.Value {
	f, err := dateArg(c, 0)
	if err != nil {
		return value.FromError(err)
	}
	return value.Number(float64(clockSecs(f) / 3600))
}

func fnMinute(c *Call) value.Value {
	f, err := dateArg(c, 0)
	if err != nil {
		return value.FromError(err)
	}
	return value.Number(float64(clockSecs(f) / 60 % 60))
}

func fnSecond(c *Call) value.Value {
	f, err := dateArg(c, 0)
	if err != nil {
		return value.FromError(err)
	}
	return value.Number(float64(clockSecs(f) % 60))
}

func fnWeekday(c *Call) value.Value {
	f, err := dateArg(c, 0)
	if err != nil {
		return value.FromError(err)
	}
	mode, err := c.IntOr(1, 1)
	if err != nil {
		return value.FromError(err)
	}
	wd := int(civil(f).Weekday()) // Sunday 0 .. Saturday 6
	switch {
	case mode == 1:
		return value.Number(float64(wd + 1))
	case mode == 2:
		return value.Number(float64((wd+6)%7 + 1))
	case mode == 3:
		return value.Number(float64((wd + 6) % 7))
	case mode >= 11 && mode <= 17:
		// 11 starts Monday, 12 Tuesday, and so on around the week.
		start := mode - 10
		return value.Number(float64((wd-start+7)%7 + 1))
	}
	return value.Error(value.ErrNum)
}

func fnDays(c *Call) value.Value {
	end, err := c.Number(0)
	if err != nil {
		return value.FromError(err)
	}
	start, err := c.Number(1)
	if err != nil {
		return value.FromError(err)
	}
	return value.Number(math.Trunc(end) - math.Trunc(start))
}

func fnDateDif(c *Call) value.Value {
	start, err := dateArg(c, 0)
	if err != nil {
		return value.FromError(err)
	}
	end, err := dateArg(c, 1)
	if err != nil {
		return value.FromError(err)
	}
	unit, err := c.Text(2)
	if err != nil {
		return value.FromError(err)
	}
	if start > end {
		return value.Error(value.ErrNum)
	}

	s, e := civil(start), civil(end)
	y1, m1, d1 := s.Date()
	y2, m2, d2 := e.Date()

	months := (y2-y1)*12 + int(m2-m1)
	if d2 < d1 {
		months--
	}

	switch strings.ToUpper(unit) {
	case "D":
		return value.Number(math.Floor(end) - math.Floor(start))
	case "M":
		return value.Number(float64(months))
	case "Y":
		return value.Number(float64(months / 12))
	case "YM":
		return value.Number(float64(months % 12))
	case "MD":
		if d2 >= d1 {
			return value.Number(float64(d2 - d1))
		}
		// Borrow the length of the month preceding the end date.
		prev := time.Date(y2, m2, 0, 0, 0, 0, 0, time.UTC).Day()
		return value.Number(float64(d2 + prev - d1))
	case "YD":
		anchor := time.Date(y2, m1, d1, 0, 0, 0, 0, time.UTC)
		if anchor.After(e) {
			anchor = time.Date(y2-1, m1, d1, 0, 0, 0, 0, time.UTC)
		}
		return value.Number(dateSerial(y2, int(m2), d2) - toSerial(anchor))
	}
	return value.Error(value.ErrNum)
}

// shiftMonths moves a date by whole months, clamping the day to the
// target month's length so January 31 plus one month is February's
// last day.
func shiftMonths(t time.Time, months int) (y, m, d int) {
	y, mm, d := t.Date()
	total := y*12 + int(mm) - 1 + months
	y, m = total/12, total%12+1
	if last := time.Date(y, time.Month(m+1), 0, 0, 0, 0, 0, time.UTC).Day(); d > last {
		d = last
	}
	return y, m, d
}

func fnEDate(c *Call) value.Value {
	start, err := dateArg(c, 0)
	if err != nil {
		return value.FromError(err)
	}
	months, err := c.Int(1)
	if err != nil {
		return value.FromError(err)
	}
	y, m, d := shiftMonths(civil(start), months)
	serial := dateSerial(y, m, d)
	if serial < 0 {
		return value.Error(value.ErrNum)
	}
	return value.Number(serial)
}

func fnEOMonth(c *Call) value.Value {
	start, err := dateArg(c, 0)
	if err != nil {
		return value.FromError(err)
	}
	months, err := c.Int(1)
	if err != nil {
		return value.FromError(err)
	}
	y, m, _ := shiftMonths(civil(start), months)
	// Day zero of the following month is this month's last day.
	serial := dateSerial(y, m+1, 0)
	if serial < 0 {
		return value.Error(value.ErrNum)
	}
	return value.Number(serial)
}
