package pending

import "time"

// notificationGrace is subtracted from the notification interval so a run
// scheduled at roughly the same time each day does not drift later and
// later before qualifying again.
const notificationGrace = 6 * time.Hour

// ShouldNotify reports whether the user is due another notification about
// pending updates. The interval is daysBetween days minus the grace; a zero
// lastNotified means the user has never been notified.
func ShouldNotify(lastNotified time.Time, daysBetween int) bool {
	if lastNotified.IsZero() {
		return true
	}
	if daysBetween < 1 {
		daysBetween = 1
	}
	interval := time.Duration(daysBetween)*24*time.Hour - notificationGrace
	return nowFunc().Sub(lastNotified) >= interval
}
