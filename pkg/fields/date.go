package fields

import (
	"fmt"
	"strings"
	"time"
)

// DateInputLayout is the edit-surface form of a date field.
const DateInputLayout = "2006-01-02"

// storageLayouts are the accepted wire and storage forms, tried in order.
var storageLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05-07",
	"2006-01-02 15:04:05",
	DateInputLayout,
}

// ParseDate parses an ISO-8601 or backend-native date string into a UTC
// timestamp. Strings without a zone are read as UTC; a date-only string is
// midnight UTC.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range storageLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: unparseable date %q", ErrTypeMismatch, s)
}

// FormatDateInput renders a stored timestamp in the yyyy-MM-dd edit form.
func FormatDateInput(t time.Time) string {
	return t.UTC().Format(DateInputLayout)
}

// ParseDateInput converts an edit-surface date back to storage form. When
// prev is non-nil its time of day is kept; otherwise the time is midnight UTC.
func ParseDateInput(s string, prev *time.Time) (time.Time, error) {
	d, err := time.Parse(DateInputLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date input %q is not yyyy-MM-dd", ErrTypeMismatch, s)
	}
	if prev == nil {
		return d.UTC(), nil
	}
	p := prev.UTC()
	return time.Date(d.Year(), d.Month(), d.Day(),
		p.Hour(), p.Minute(), p.Second(), p.Nanosecond(), time.UTC), nil
}
