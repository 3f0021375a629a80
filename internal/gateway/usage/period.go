package usage

import "time"

// PeriodStart returns the first day of the billing month that contains now.
//
// Billing months start on the signup day-of-month. When that day does not
// exist in a month (signup on the 31st, checked in April) the period starts
// on the last day of the month instead. All arithmetic is in UTC and the
// result is truncated to midnight.
func PeriodStart(signup, now time.Time) time.Time {
	signup = signup.UTC()
	now = now.UTC()

	start := anchor(now.Year(), now.Month(), signup.Day())
	if start.After(now) {
		start = anchor(now.Year(), now.Month()-1, signup.Day())
	}

	// No period starts before the account existed
	if first := midnight(signup); start.Before(first) {
		return first
	}
	return start
}

// PeriodEnd returns the exclusive end of the period starting at start
func PeriodEnd(signup, start time.Time) time.Time {
	start = start.UTC()
	return anchor(start.Year(), start.Month()+1, signup.UTC().Day())
}

// anchor is day of the given month, clamped to the month's last day.
// month may be out of range; time.Date normalizes it.
func anchor(year int, month time.Month, day int) time.Time {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	if last := daysIn(first); day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, time.UTC)
}

func daysIn(firstOfMonth time.Time) int {
	return firstOfMonth.AddDate(0, 1, -1).Day()
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
