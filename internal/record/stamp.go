package record

import "time"

// StampUpdated returns the updated_at value for a mutation. The result is
// strictly after prev even when the wall clock has not advanced past it
// (coarse clocks, fast successive transactions).
func StampUpdated(prev, now time.Time) time.Time {
	now = now.UTC()
	if now.After(prev) {
		return now
	}
	return prev.Add(time.Microsecond).UTC()
}
