package core

import "github.com/google/uuid"

// ID is a UUID-backed identifier shared by every stored entity.
type ID string

// NewID generates a fresh random identifier.
func NewID() ID {
	return ID(uuid.NewString())
}

func (id ID) String() string { return string(id) }
func (id ID) IsZero() bool   { return id == "" }
