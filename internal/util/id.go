package util

import "github.com/google/uuid"

// NewID returns a random UUIDv4 string used for request, appraisal and batch ids.
func NewID() string {
	return uuid.NewString()
}

// IsID reports whether s parses as a UUID.
func IsID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
