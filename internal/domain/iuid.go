package domain

import (
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// TimeLayout is the timestamp format used everywhere: UTC ISO-8601 with
// millisecond precision.
const TimeLayout = "2006-01-02T15:04:05.000Z"

// NewIUID returns a fresh IUID: a UUID4 as 32 lowercase hex characters.
func NewIUID() string {
	u := uuid.New()
	return hex.EncodeToString(u[:])
}

// Now returns the current UTC time formatted per TimeLayout.
func Now() string {
	return time.Now().UTC().Format(TimeLayout)
}
