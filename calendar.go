/*
Copyright © 2022 the um2nc authors.
This file is part of um2nc.

um2nc is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

um2nc is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with um2nc.  If not, see <http://www.gnu.org/licenses/>.
*/

package um2nc

import "math"

// Calendar names used in time coordinate metadata.
const (
	CalendarProlepticGregorian = "proleptic_gregorian"
	CalendarGregorian          = "gregorian"
	Calendar360Day             = "360_day"
	Calendar365Day             = "365_day"
)

// calendarCutoffYear is the reference year below which hours-since-1970
// time values are rewritten to days-since-0001. Generic unit arithmetic
// cannot shift epochs safely across a calendar change spanning pre-1600
// dates, so each value is round-tripped through a date instead.
const calendarCutoffYear = 1600

// epochDays0001 is the day number of 0001-01-01 relative to 1970-01-01
// in the proleptic Gregorian calendar.
var epochDays0001 = daysFromCivil(1, 1, 1)

// daysFromCivil returns the number of days between the proleptic
// Gregorian date y-m-d and 1970-01-01. Negative values are dates
// before the epoch.
func daysFromCivil(y, m, d int) int64 {
	if m <= 2 {
		y--
	}
	var era int64
	if y >= 0 {
		era = int64(y) / 400
	} else {
		era = (int64(y) - 399) / 400
	}
	yoe := int64(y) - era*400 // [0, 399]
	var mp int64
	if m > 2 {
		mp = int64(m) - 3
	} else {
		mp = int64(m) + 9
	}
	doy := (153*mp+2)/5 + int64(d) - 1      // [0, 365]
	doe := yoe*365 + yoe/4 - yoe/100 + doy  // [0, 146096]
	return era*146097 + doe - 719468
}

// civilFromDays is the inverse of daysFromCivil.
func civilFromDays(z int64) (y, m, d int) {
	z += 719468
	var era int64
	if z >= 0 {
		era = z / 146097
	} else {
		era = (z - 146096) / 146097
	}
	doe := z - era*146097                                        // [0, 146096]
	yoe := (doe - doe/1460 + doe/36524 - doe/146096) / 365       // [0, 399]
	yy := yoe + era*400
	doy := doe - (365*yoe + yoe/4 - yoe/100)                     // [0, 365]
	mp := (5*doy + 2) / 153                                      // [0, 11]
	d = int(doy - (153*mp+2)/5 + 1)
	if mp < 10 {
		m = int(mp + 3)
	} else {
		m = int(mp - 9)
	}
	if m <= 2 {
		yy++
	}
	return int(yy), m, d
}

// hoursSince1970ToDate decodes an hours-since-1970 value into a
// proleptic Gregorian date plus the fraction of the day elapsed.
func hoursSince1970ToDate(hours float64) (y, m, d int, dayFrac float64) {
	days := math.Floor(hours / 24)
	dayFrac = hours/24 - days
	y, m, d = civilFromDays(int64(days))
	return y, m, d, dayFrac
}

// ReferenceYear returns the proleptic Gregorian year of the first point
// of an hours-since-1970 time coordinate.
func ReferenceYear(c *Coordinate) int {
	if len(c.Points) == 0 {
		return 0
	}
	y, _, _, _ := hoursSince1970ToDate(c.Points[0])
	return y
}

// convertProleptic rewrites every point and bound of an hours-since-1970
// time coordinate into days-since-0001 under the proleptic Gregorian
// calendar, by decoding each value to a date and re-encoding it against
// the new epoch.
func convertProleptic(c *Coordinate) {
	reencode := func(v float64) float64 {
		y, m, d, frac := hoursSince1970ToDate(v)
		return float64(daysFromCivil(y, m, d)-epochDays0001) + frac
	}
	for i, p := range c.Points {
		c.Points[i] = reencode(p)
	}
	for i := range c.Bounds {
		c.Bounds[i][0] = reencode(c.Bounds[i][0])
		c.Bounds[i][1] = reencode(c.Bounds[i][1])
	}
	c.Units = "days since 0001-01-01 00:00"
	c.Calendar = CalendarProlepticGregorian
}

// HoursSince1970 encodes a date as hours since 1970-01-01 00:00 under
// the given calendar. The 360- and 365-day model calendars use fixed
// month lengths; anything else is treated as proleptic Gregorian.
func HoursSince1970(year, month, day, hour, minute, second int, calendar string) float64 {
	var days float64
	switch calendar {
	case Calendar360Day:
		days = float64((year-1970)*360 + (month-1)*30 + (day - 1))
	case Calendar365Day:
		days = float64((year-1970)*365 + daysBeforeMonth[month-1] + (day - 1))
	default:
		days = float64(daysFromCivil(year, month, day))
	}
	return days*24 + float64(hour) + float64(minute)/60 + float64(second)/3600
}

// daysBeforeMonth is the cumulative day count before each month in a
// 365-day (no leap) calendar.
var daysBeforeMonth = [12]int{0, 31, 59, 90, 120, 151, 181, 212, 243, 273, 304, 334}

// NormalizeTimeCalendar converts a time coordinate encoded as
// hours-since-1970 to a days-based encoding. When the calendar is
// proleptic Gregorian and the reference (forecast start) year predates
// the cutoff, the epoch moves to year 0001; otherwise the epoch stays
// at 1970, hours become days, and a "gregorian" calendar name is
// normalized to "proleptic_gregorian". The coordinate is mutated in
// place; absent bounds are valid.
func NormalizeTimeCalendar(timeCoord, refCoord *Coordinate) {
	refYear := ReferenceYear(refCoord)
	if timeCoord.Calendar == CalendarProlepticGregorian && refYear < calendarCutoffYear {
		convertProleptic(timeCoord)
		return
	}
	if timeCoord.Calendar == CalendarGregorian {
		timeCoord.Calendar = CalendarProlepticGregorian
	}
	for i := range timeCoord.Points {
		timeCoord.Points[i] /= 24
	}
	for i := range timeCoord.Bounds {
		timeCoord.Bounds[i][0] /= 24
		timeCoord.Bounds[i][1] /= 24
	}
	timeCoord.Units = "days since 1970-01-01 00:00"
}
