// Package events defines the slot control events emitted on the event bus.
//
// Available event types:
//   - SlotStateEvent: state machine transition
//   - CommandEvent: command acceptance or hardware-call failure
//   - CommandConfirmedEvent: telemetry evidence matched a pending command
//   - CommandTimeoutEvent: pending command expired unconfirmed
//   - SessionEvent: session lifecycle change
package events
