package ports

import (
	"context"
	"errors"
	"time"
)

// ErrGuardHeld is returned by StartGuard.Acquire when another session is
// starting a timer for the same operator.
var ErrGuardHeld = errors.New("timer start already in progress for operator")

// PromptContext describes a liveness prompt for a running timer
type PromptContext struct {
	OperatorID  string        `json:"operator_id"`
	EntryID     string        `json:"entry_id"`
	ClientID    string        `json:"client_id"`
	Description string        `json:"description"`
	StartedAt   time.Time     `json:"started_at"`
	Elapsed     time.Duration `json:"elapsed"`
}

// ConfirmationPort asks the operator whether a running timer should continue.
//
// Ask may block until the operator answers. Callers invoke it from a
// background goroutine, so both synchronous and asynchronous hosts work.
type ConfirmationPort interface {
	Ask(ctx context.Context, prompt PromptContext) (bool, error)
}

// ConfirmFunc adapts a function to ConfirmationPort.
type ConfirmFunc func(ctx context.Context, prompt PromptContext) (bool, error)

// Ask calls f.
func (f ConfirmFunc) Ask(ctx context.Context, prompt PromptContext) (bool, error) {
	return f(ctx, prompt)
}

// StartGuard serializes timer starts for one operator across sessions.
type StartGuard interface {
	// Acquire blocks other starts for the operator until release is called.
	// It fails fast when another session holds the guard.
	Acquire(ctx context.Context, operatorID string) (release func(), err error)
}

// ReminderHandle is a scheduled recurring reminder. Cancel is safe to call
// more than once; only the first call has effect.
type ReminderHandle interface {
	Cancel()
}

// ReminderScheduler runs job at every multiple of interval after anchor.
type ReminderScheduler interface {
	Schedule(anchor time.Time, interval time.Duration, job func()) ReminderHandle
}
