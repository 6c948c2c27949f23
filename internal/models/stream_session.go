package models

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus is the lifecycle state of a stream session.
type SessionStatus string

const (
	StatusScheduled SessionStatus = "scheduled"
	StatusActive    SessionStatus = "active"
	StatusEnded     SessionStatus = "ended"
	StatusInactive  SessionStatus = "inactive"
)

// Live reports whether the status counts toward the one-live-session-per-owner rule.
func (s SessionStatus) Live() bool {
	return s == StatusScheduled || s == StatusActive
}

// StreamSession is one owner's live-broadcast lifecycle instance, identified by a secret stream key.
type StreamSession struct {
	ID            uuid.UUID     `json:"id"`
	OwnerID       uuid.UUID     `json:"owner_id"`
	StreamKey     string        `json:"stream_key,omitempty"`
	Title         string        `json:"title"`
	Status        SessionStatus `json:"status"`
	StartTime     time.Time     `json:"start_time"`
	EndTime       time.Time     `json:"end_time"`
	ListenerCount int           `json:"listener_count"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// Public returns a copy with the stream key redacted, safe to expose to non-owners.
func (s StreamSession) Public() StreamSession {
	s.StreamKey = ""
	return s
}
