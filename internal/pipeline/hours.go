package pipeline

import "time"

// InActiveWindow reports whether now falls inside the daily posting window
// [startHour, endHour) in the given location. An endHour of 24 keeps the
// window open through midnight.
func InActiveWindow(now time.Time, startHour, endHour int, loc *time.Location) bool {
	h := now.In(loc).Hour()
	return h >= startHour && h < endHour
}
