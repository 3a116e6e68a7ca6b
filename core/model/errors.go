package model

import "github.com/cockroachdb/errors"

// Sentinel errors of the control plane. Handlers match them with errors.Is to
// derive machine-readable reject reasons.
var (
	ErrBoothNotFound        = errors.New("booth not found")
	ErrSlotNotFound         = errors.New("slot not found")
	ErrSlotBusy             = errors.New("command already pending for slot")
	ErrSlotDisabled         = errors.New("slot disabled")
	ErrSlotFaulty           = errors.New("slot faulty")
	ErrNoAvailableSlot      = errors.New("no available slot")
	ErrUserHasActiveSession = errors.New("user already has an active session")
	ErrNoActiveDeposit      = errors.New("no active deposit for user")
	ErrCommandTimeout       = errors.New("no confirmation received for command")
	ErrInvalidTransition    = errors.New("transition not defined for current state")
	ErrInventoryConflict    = errors.New("slot is not empty or disabled")
	ErrSessionNotFound      = errors.New("session not found")

	// ErrTransport marks hardware-call failures. They clear pending state and
	// are retryable by the caller; the core never retries on its own.
	ErrTransport = errors.New("hardware transport failure")
)
