package common

import (
	"github.com/google/uuid"
)

// NewAttemptID generates a unique acquisition attempt ID with the "att_" prefix
// Format: att_<uuid>
func NewAttemptID() string {
	return "att_" + uuid.New().String()
}
