package models

import "time"

const secondsPerDay = 24 * 60 * 60

// DateOf truncates t to its calendar date in t's own location and returns it
// as midnight UTC. Loans store dates in this form so day arithmetic never
// crosses a DST boundary.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// AddDays returns the date n calendar days after date.
func AddDays(date time.Time, n int) time.Time {
	return DateOf(date).AddDate(0, 0, n)
}

// DaysBetween returns to - from in whole calendar days. It works on Unix
// seconds rather than time.Duration, which saturates near 292 years.
func DaysBetween(from, to time.Time) int {
	return int((DateOf(to).Unix() - DateOf(from).Unix()) / secondsPerDay)
}
