package types

import "github.com/google/uuid"

// ID identifies rides, bookings and users.
type ID string

// NewID returns a fresh random identifier.
func NewID() ID {
	return ID(uuid.NewString())
}

func (id ID) String() string {
	return string(id)
}
