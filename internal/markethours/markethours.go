// Package markethours models the forex trading week: the market runs
// continuously from Sunday 22:00 UTC to Friday 22:00 UTC and is closed over
// the weekend. No holiday calendar; forex only pauses for the weekend.
package markethours

import (
	"fmt"
	"time"
)

// BoundaryHourUTC is the hour at which the week opens (Sunday) and closes
// (Friday), matching the 22:00 UTC session roll.
const BoundaryHourUTC = 22

// IsMarketOpen returns true if t falls inside the trading week.
func IsMarketOpen(t time.Time) bool {
	u := t.UTC()
	switch u.Weekday() {
	case time.Saturday:
		return false
	case time.Sunday:
		return u.Hour() >= BoundaryHourUTC
	case time.Friday:
		return u.Hour() < BoundaryHourUTC
	default:
		return true
	}
}

// NextOpen returns the next Sunday 22:00 UTC strictly after t.
func NextOpen(t time.Time) time.Time {
	u := t.UTC()
	for i := 0; i < 8; i++ {
		d := u.AddDate(0, 0, i)
		if d.Weekday() == time.Sunday {
			open := time.Date(d.Year(), d.Month(), d.Day(), BoundaryHourUTC, 0, 0, 0, time.UTC)
			if open.After(u) {
				return open
			}
		}
	}
	return u // unreachable
}

// NextClose returns the next Friday 22:00 UTC strictly after t.
func NextClose(t time.Time) time.Time {
	u := t.UTC()
	for i := 0; i < 8; i++ {
		d := u.AddDate(0, 0, i)
		if d.Weekday() == time.Friday {
			cl := time.Date(d.Year(), d.Month(), d.Day(), BoundaryHourUTC, 0, 0, 0, time.UTC)
			if cl.After(u) {
				return cl
			}
		}
	}
	return u // unreachable
}

// TimeUntilOpen returns the duration until the next open; 0 if open now.
func TimeUntilOpen(t time.Time) time.Duration {
	if IsMarketOpen(t) {
		return 0
	}
	return NextOpen(t).Sub(t.UTC())
}

// TimeUntilClose returns the duration until the weekly close; 0 if already
// closed.
func TimeUntilClose(t time.Time) time.Duration {
	if !IsMarketOpen(t) {
		return 0
	}
	return NextClose(t).Sub(t.UTC())
}

// StatusString returns a human-readable market status.
func StatusString(t time.Time) string {
	if IsMarketOpen(t) {
		return fmt.Sprintf("Market Open — closes in %s", fmtDur(TimeUntilClose(t)))
	}
	next := NextOpen(t)
	return fmt.Sprintf("Market Closed — opens %s %s UTC (%s)",
		next.Weekday().String()[:3], next.Format("15:04"), fmtDur(next.Sub(t.UTC())))
}

func fmtDur(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}
