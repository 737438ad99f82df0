package uuidx

import "github.com/google/uuid"

// New generates a v7 UUID. v7 ids sort by creation time, which keeps message
// ids roughly chronological in audit logs. Panics if generation fails.
func New() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}

// NewString generates a v7 UUID and returns its string form.
func NewString() string {
	return New().String()
}
