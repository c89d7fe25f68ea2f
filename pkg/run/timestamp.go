package run

import "time"

// TimestampLayout is ISO-8601 with millisecond precision and a numeric offset.
const TimestampLayout = "2006-01-02T15:04:05.000-07:00"

// CurrentTimestamp returns the current time in UTC formatted with TimestampLayout,
// e.g. 2024-05-01T12:00:00.123+00:00.
func CurrentTimestamp() string {
	return FormatTimestamp(time.Now())
}

// FormatTimestamp formats t in UTC.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}
