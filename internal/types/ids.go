package types

import (
	"time"

	"github.com/google/uuid"
)

// NewRunID generates a UUIDv7 identifier for a workflow execution.
// Time-ordered IDs keep run history inserts clustered by start time.
// Panics on clock regression (uuid.Must); acceptable for ID generation.
func NewRunID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// NewWorkflowID generates a UUIDv7 workflow identifier.
func NewWorkflowID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// RunIDTime extracts the timestamp embedded in a UUIDv7 run ID.
// Returns zero time for IDs that are not UUIDs; caller should check IsZero().
func RunIDTime(id string) time.Time {
	u, err := uuid.Parse(id)
	if err != nil || u.Version() != 7 {
		return time.Time{}
	}
	sec, nsec := u.Time().UnixTime()
	return time.Unix(sec, nsec)
}
