// Package datetime converts calendar dates and times of day to and from the
// engine's on-disk integer representation.
//
// A date is a signed day number counted from 1858-11-17 (Modified Julian Day).
// A time of day is an unsigned count of 1/10000 second ticks since midnight.
// A timestamp is a date word followed by a time word.
package datetime

import "time"

const (
	// TicksPerSecond is the resolution of the time-of-day word.
	TicksPerSecond = 10000

	nanosPerTick = int64(time.Second) / TicksPerSecond
	ticksPerDay  = 24 * 60 * 60 * TicksPerSecond
)

// EncodeDate returns the day number of the given Gregorian calendar date.
func EncodeDate(year, month, day int) int32 {
	if month > 2 {
		month -= 3
	} else {
		month += 9
		year--
	}

	c := year / 100
	ya := year - 100*c

	return int32((146097*c)/4 + (1461*ya)/4 + (153*month+2)/5 + day + 1721119 - 2400001)
}

// DecodeDate returns the Gregorian calendar date of a day number.
func DecodeDate(date int32) (year, month, day int) {
	nday := int(date) + 2400001 - 1721119
	century := (4*nday - 1) / 146097
	nday = 4*nday - 1 - 146097*century
	day = nday / 4

	nday = (4*day + 3) / 1461
	day = 4*day + 3 - 1461*nday
	day = (day + 4) / 4

	month = (5*day - 3) / 153
	day = 5*day - 3 - 153*month
	day = (day + 5) / 5

	year = 100*century + nday

	if month < 10 {
		month += 3
	} else {
		month -= 9
		year++
	}
	return year, month, day
}

// EncodeTime returns the tick count for a time of day. fractions is expressed
// in ticks (1/10000 s).
func EncodeTime(hour, minute, second, fractions int) uint32 {
	return uint32(((hour*60+minute)*60+second)*TicksPerSecond + fractions)
}

// DecodeTime splits a tick count into its time-of-day fields.
func DecodeTime(ticks uint32) (hour, minute, second, fractions int) {
	t := int(ticks % ticksPerDay)
	fractions = t % TicksPerSecond
	t /= TicksPerSecond
	second = t % 60
	t /= 60
	minute = t % 60
	hour = t / 60
	return hour, minute, second, fractions
}

// FromTime encodes the wall clock of t (in t's own location) as a date word
// and a time word. Sub-tick precision is truncated.
func FromTime(t time.Time) (date int32, ticks uint32) {
	year, month, day := t.Date()
	hour, minute, second := t.Clock()
	fractions := int(int64(t.Nanosecond()) / nanosPerTick)
	return EncodeDate(year, int(month), day), EncodeTime(hour, minute, second, fractions)
}

// ToTime builds a time.Time in loc from a date word and a time word.
func ToTime(date int32, ticks uint32, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	year, month, day := DecodeDate(date)
	hour, minute, second, fractions := DecodeTime(ticks)
	return time.Date(year, time.Month(month), day, hour, minute, second, int(int64(fractions)*nanosPerTick), loc)
}

// TimeOfDay builds a time.Time on 1970-01-01 in loc from a time word.
func TimeOfDay(ticks uint32, loc *time.Location) time.Time {
	return ToTime(EncodeDate(1970, 1, 1), ticks, loc)
}
