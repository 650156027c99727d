package model

import (
	"fmt"
	"time"
)

// ParseInstant parses a stats window bound. It accepts RFC 3339 timestamps
// and plain dates (YYYY-MM-DD, midnight UTC). An empty string yields the zero
// time, meaning an open bound.
func ParseInstant(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	return time.Time{}, &Error{
		Kind:    KindValidation,
		Op:      "parse",
		Message: fmt.Sprintf("invalid time %q: want RFC 3339 or YYYY-MM-DD", s),
	}
}
