package common

import (
	"github.com/google/uuid"
)

// NewSessionID generates a unique browser session ID
// Format: sess_<uuid>
func NewSessionID() string {
	return "sess_" + uuid.New().String()
}

// NewInterventionID generates a unique intervention ID
// Format: int_<uuid>
func NewInterventionID() string {
	return "int_" + uuid.New().String()
}
