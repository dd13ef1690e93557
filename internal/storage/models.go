package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// PastEmergency is the last known state of an emergency that left the board.
type PastEmergency struct {
	ID        string
	Status    string
	Priority  string
	Caller    string
	Nature    string
	Payload   string // full record JSON
	CreatedAt time.Time
	UpdatedAt time.Time
	RemovedAt time.Time
}

// StreamEvent is one journaled change notification.
type StreamEvent struct {
	ID         string
	Type       string
	CallSid    string
	Payload    string
	ReceivedAt time.Time
}
