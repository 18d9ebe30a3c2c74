package httpapi

import "time"

const rfc3339Milli = "2006-01-02T15:04:05.000Z07:00"

// parseQueryTime accepts RFC3339 timestamps for since/until query
// parameters; an empty or unparsable value reports ok=false so the
// caller leaves that bound unset rather than erroring the whole query.
func parseQueryTime(raw string) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}
