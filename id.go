package mesh

import (
	"time"

	"github.com/google/uuid"
)

// NewID generates a globally unique, time-sortable UUIDv7 (RFC 9562).
// Used for connection ids and synthesized tool-call ids.
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// NewTaskID generates a random UUIDv4 task identifier.
func NewTaskID() string {
	return uuid.NewString()
}

// NowUnix returns current time as Unix seconds.
func NowUnix() int64 {
	return time.Now().Unix()
}
