// Package util holds small formatting helpers shared by the command line tools.
package util

import "time"

// FormatElapsed renders how long a job ran. Unfinished jobs and non-positive
// durations render as "-"; sub-second durations keep millisecond precision.
func FormatElapsed(start time.Time, end *time.Time) string {
	if end == nil || start.IsZero() {
		return "-"
	}
	d := end.Sub(start)
	switch {
	case d <= 0:
		return "-"
	case d < time.Second:
		return d.Truncate(time.Millisecond).String()
	default:
		return d.Truncate(time.Second).String()
	}
}
