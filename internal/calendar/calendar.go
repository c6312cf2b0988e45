// Package calendar converts Unix time into UK civil time for the MSF
// time signal: the BST/GMT rule and the "change coming soon" flag
// that the frame encoder transmits to receivers.
package calendar

import (
	"fmt"
	"time"
)

// Calendar is a UK civil calendar instant, valid for exactly the whole
// minute starting at UTCTime.
type Calendar struct {
	// UTCTime is the Unix time of the start of the minute this
	// Calendar describes, always a multiple of 60.
	UTCTime int64

	Year    int
	Month   time.Month
	Day     int
	Weekday int // 0 = Sunday, matching the MSF day-of-week field.
	Hour    int
	Minute  int

	// Summer is true while British Summer Time is in effect.
	Summer bool

	// ChangeSoon is true iff Summer will have a different value 61
	// minutes from now, i.e. the BST/GMT transition falls within the
	// minute-boundary lookahead the scheduler uses to build frames.
	ChangeSoon bool
}

// New builds the Calendar covering the minute containing t.
func New(t time.Time) Calendar {
	base := build(t, 0)
	ahead := build(t, 61*time.Minute)

	base.ChangeSoon = ahead.Summer != base.Summer
	return base
}

// build computes civil fields for the minute containing t+lookahead,
// rounding t down to the minute first (lookahead is added in whole
// minutes on top of that, matching the C++ source's "ts/=60; ts+=61;
// ts*=60" ordering).
func build(t time.Time, lookahead time.Duration) Calendar {
	minute := t.Unix() / 60
	minute += int64(lookahead / time.Minute)
	utcTime := minute * 60

	utc := time.Unix(utcTime, 0).UTC()
	summer := isSummer(utc)

	display := utc
	if summer {
		display = utc.Add(time.Hour)
	}

	return Calendar{
		UTCTime: utcTime,
		Year:    display.Year(),
		Month:   display.Month(),
		Day:     display.Day(),
		Weekday: int(display.Weekday()),
		Hour:    display.Hour(),
		Minute:  display.Minute(),
		Summer:  summer,
	}
}

// isSummer decides, for a UTC instant rounded to the minute, whether
// British Summer Time is in effect. Jan/Feb/Nov/Dec are always GMT,
// Apr-Sep are always BST; March and October need the last-Sunday-at-
// 01:00-UTC transition rule.
func isSummer(utc time.Time) bool {
	switch utc.Month() {
	case time.January, time.February, time.November, time.December:
		return false
	case time.April, time.May, time.June, time.July, time.August, time.September:
		return true
	}

	lastSunday := lastSundayOfMonth(utc)
	atOrAfter := utc.Day() > lastSunday ||
		(utc.Day() == lastSunday && utc.Hour() >= 1)

	// October's test asks "has summer ended", the inverse of March's
	// "has summer begun" test.
	return atOrAfter != (utc.Month() == time.October)
}

// lastSundayOfMonth returns the day-of-month of the last Sunday in
// utc's month, in UTC.
func lastSundayOfMonth(utc time.Time) int {
	weekday := int(utc.Weekday())
	lastSunday := utc.Day()
	if weekday != 0 {
		lastSunday += 7 - weekday
	}
	for lastSunday <= 31 {
		lastSunday += 7
	}
	lastSunday -= 7
	return lastSunday
}

// String renders the diagnostic form used in log lines:
// "YYYY-MM-DDTHH:MM+0h:00[#]", h=1 during BST, trailing '#' iff a
// change is imminent.
func (c Calendar) String() string {
	offset := 0
	if c.Summer {
		offset = 1
	}
	marker := ""
	if c.ChangeSoon {
		marker = "#"
	}
	return fmt.Sprintf("%04d-%02d-%02dT%02d:%02d+0%d:00%s",
		c.Year, c.Month, c.Day, c.Hour, c.Minute, offset, marker)
}
