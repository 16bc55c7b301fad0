package silk

import "time"

// ElapsedMs returns end-start in fractional milliseconds.
// It returns nil while the interval is still open (no end) or has no start.
func ElapsedMs(start time.Time, end *time.Time) *float64 {
	if start.IsZero() || end == nil || end.IsZero() {
		return nil
	}
	ms := float64(end.Sub(start)) / float64(time.Millisecond)
	return &ms
}
