package audit

import (
	"context"
	"time"
)

// Record kinds.
const (
	KindCommand = "command"
	KindSession = "session"
	KindAdmin   = "admin"
)

// Record outcomes.
const (
	OutcomeAccepted = "accepted"
	OutcomeRejected = "rejected"
)

// Record captures one operator or session decision and its outcome.
type Record struct {
	Timestamp time.Time `json:"timestamp"`
	Kind      string    `json:"kind"`
	BoothID   string    `json:"booth_id,omitempty"`
	SlotID    string    `json:"slot_id,omitempty"`
	Command   string    `json:"command,omitempty"`
	SessionID string    `json:"session_id,omitempty"`
	UserID    string    `json:"user_id,omitempty"`
	Outcome   string    `json:"outcome"`
	Detail    string    `json:"detail,omitempty"`
}

// Query defines filters for retrieving records.
type Query struct {
	Start   time.Time
	End     time.Time
	BoothID string
	SlotID  string
	Kind    string
}

func (q Query) matches(r Record) bool {
	if !q.Start.IsZero() && r.Timestamp.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && r.Timestamp.After(q.End) {
		return false
	}
	if q.BoothID != "" && r.BoothID != q.BoothID {
		return false
	}
	if q.SlotID != "" && r.SlotID != q.SlotID {
		return false
	}
	if q.Kind != "" && r.Kind != q.Kind {
		return false
	}
	return true
}

// Store persists Records and supports querying.
type Store interface {
	Append(ctx context.Context, rec Record) error
	Query(ctx context.Context, q Query) ([]Record, error)
	Close() error
}
