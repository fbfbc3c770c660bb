package models

import "time"

// TimePtr returns a pointer to the given time.Time value
func TimePtr(t time.Time) *time.Time {
	return &t
}

// StringPtr returns a pointer to the given string value
func StringPtr(s string) *string {
	return &s
}
