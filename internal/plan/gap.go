package plan

import "time"

// DefaultBufferMinutes is the breathing room left after every busy
// interval and after every placed session. No buffer is applied before
// the first busy interval of a window.
const DefaultBufferMinutes = 5

// FindGap scans busy intervals (pre-sorted ascending by start) for the
// earliest free slot of the requested length inside [windowStart,
// windowEnd). The search is first-fit: the first gap long enough wins,
// even when a later gap would fit more tightly. Returns ok=false when no
// slot exists in the window.
func FindGap(busy []BusyInterval, windowStart, windowEnd time.Time, minutes, bufferMinutes int) (start, end time.Time, ok bool) {
	need := time.Duration(minutes) * time.Minute
	buf := time.Duration(bufferMinutes) * time.Minute
	cursor := windowStart
	for _, b := range busy {
		// Already behind the cursor, irrelevant.
		if !b.End.After(cursor) {
			continue
		}
		if b.Start.Sub(cursor) >= need {
			return cursor, cursor.Add(need), true
		}
		if next := b.End.Add(buf); next.After(cursor) {
			cursor = next
		}
		if !cursor.Before(windowEnd) {
			return time.Time{}, time.Time{}, false
		}
	}
	if windowEnd.Sub(cursor) >= need {
		return cursor, cursor.Add(need), true
	}
	return time.Time{}, time.Time{}, false
}
