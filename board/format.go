package board

import (
	"fmt"
	"strconv"
	"time"
)

// Ordinal returns n with its English ordinal suffix: 1st, 2nd, 3rd, 11th, 112th.
func Ordinal(n int) string {
	s := strconv.Itoa(n)
	if (n/10)%10 == 1 {
		return s + "th"
	}
	switch n % 10 {
	case 1:
		return s + "st"
	case 2:
		return s + "nd"
	case 3:
		return s + "rd"
	}
	return s + "th"
}

// FormatTime renders t as "date" (Jan 2nd), "datetime" (Jan 2nd, 15:04) or
// "time" (15:04). Unknown formats give an empty string.
func FormatTime(t time.Time, format string) string {
	switch format {
	case "date":
		return t.Format("Jan") + " " + Ordinal(t.Day())
	case "datetime":
		return t.Format("Jan") + " " + Ordinal(t.Day()) + ", " + t.Format("15:04")
	case "time":
		return t.Format("15:04")
	}
	return ""
}

// Countdown renders the time left until d as whole days, hours and minutes.
// Negative durations are shown as zero.
func Countdown(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	days := int(d / (24 * time.Hour))
	d -= time.Duration(days) * 24 * time.Hour
	hours := int(d / time.Hour)
	d -= time.Duration(hours) * time.Hour
	minutes := int(d / time.Minute)
	return fmt.Sprintf("%d days, %d hours, %d minutes", days, hours, minutes)
}
