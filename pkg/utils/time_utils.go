package utils

import "time"

// Brazzaville local time (WAT, +01:00). Policy years follow local time.
var localLoc = func() *time.Location {
	if loc, err := time.LoadLocation("Africa/Brazzaville"); err == nil {
		return loc
	}
	return time.FixedZone("WAT", 3600)
}()

func LocalTime(t time.Time) time.Time {
	return t.In(localLoc)
}

// Convert an epoch value in seconds to local time.
// Returns zero time if t<=0 to let callers decide how to render.
func FromUnixSeconds(t int64) time.Time {
	if t <= 0 {
		return time.Time{}
	}
	return time.Unix(t, 0).In(localLoc)
}

func FormatRFC3339(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.In(localLoc).Format(time.RFC3339)
}

// FormatUnix renders optional unix-second timestamps for API responses.
func FormatUnix(t *int64) string {
	if t == nil {
		return ""
	}
	return FormatRFC3339(FromUnixSeconds(*t))
}

func UnixPtr(t time.Time) *int64 {
	v := t.Unix()
	return &v
}
