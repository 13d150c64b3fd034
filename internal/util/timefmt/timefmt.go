package timefmt

import "time"

// UTCLog is the timestamp layout used in status reports and operator
// notifications.
const UTCLog = "2006-01-02 15:04:05 UTC"

// Format formats a time.Time to the standard string representation.
func Format(t time.Time) string {
	return t.UTC().Format(UTCLog)
}
