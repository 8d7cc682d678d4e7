package uid

import "github.com/google/uuid"

// New generates a random identifier, used for request IDs and tokens.
func New() string {
	return uuid.New().String()
}

// NewOrdered generates a time-ordered identifier (UUIDv7).
// Scan records use it so ids sort roughly by creation time.
func NewOrdered() string {
	id, err := uuid.NewV7()
	if err != nil {
		return New()
	}
	return id.String()
}

// IsValid checks if a string is a valid UUID.
func IsValid(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
