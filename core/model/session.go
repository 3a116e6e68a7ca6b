package model

import "time"

// SessionType distinguishes deposit from withdrawal transactions.
type SessionType int

const (
	SessionDeposit SessionType = iota
	SessionWithdrawal
)

func (t SessionType) String() string {
	switch t {
	case SessionDeposit:
		return "deposit"
	case SessionWithdrawal:
		return "withdrawal"
	default:
		return "unknown"
	}
}

// SessionStatus tracks the lifecycle of a session.
type SessionStatus int

const (
	SessionPending SessionStatus = iota
	SessionInProgress
	SessionCompleted
	SessionFailed
	SessionCancelled
)

func (s SessionStatus) String() string {
	switch s {
	case SessionPending:
		return "pending"
	case SessionInProgress:
		return "in_progress"
	case SessionCompleted:
		return "completed"
	case SessionFailed:
		return "failed"
	case SessionCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether the status is final.
func (s SessionStatus) Terminal() bool {
	return s == SessionCompleted || s == SessionFailed || s == SessionCancelled
}

// Session binds one user to one slot for a deposit or withdrawal.
type Session struct {
	ID        string        `json:"id"`
	UserID    string        `json:"user_id"`
	Slot      SlotRef       `json:"slot"`
	Type      SessionType   `json:"type"`
	Status    SessionStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
}
