package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// TimerState represents the lifecycle state of a billable timer
type TimerState string

const (
	TimerStateIdle    TimerState = "IDLE"
	TimerStateRunning TimerState = "RUNNING"
	TimerStatePaused  TimerState = "PAUSED"
	TimerStateStopped TimerState = "STOPPED"
)

// TimeEntry represents billable time an operator logs against a client
type TimeEntry struct {
	ID            string     `json:"id"`
	OperatorID    string     `json:"operator_id"`
	ClientID      string     `json:"client_id"`
	Description   string     `json:"description"`
	StartTime     time.Time  `json:"start_time"`
	EndTime       *time.Time `json:"end_time,omitempty"`
	IsPaused      bool       `json:"is_paused"`
	PausedAt      *time.Time `json:"paused_at,omitempty"`
	ResumedAt     *time.Time `json:"resumed_at,omitempty"`
	DurationHours *float64   `json:"duration_hours,omitempty"`
	Active        bool       `json:"active"`
}

// TimeEntryUpdate carries the fields a transition changes. Nil fields are
// left untouched.
type TimeEntryUpdate struct {
	EndTime       *time.Time
	IsPaused      *bool
	PausedAt      *time.Time
	ResumedAt     *time.Time
	DurationHours *float64
	Active        *bool
}

// Validation errors raised at the repository boundary
var (
	ErrEntryMissingOperator = NewDomainError("time entry operator is required")
	ErrEntryMissingClient   = NewDomainError("time entry client is required")
	ErrEntryMissingStart    = NewDomainError("time entry start time is required")
	ErrEntryActiveWithEnd   = NewDomainError("active time entry cannot have an end time")
	ErrEntryStoppedNoEnd    = NewDomainError("stopped time entry must have an end time")
)

// NewTimeEntry creates a running entry started at now.
func NewTimeEntry(operatorID, clientID, description string, now time.Time) *TimeEntry {
	return &TimeEntry{
		ID:          uuid.NewString(),
		OperatorID:  operatorID,
		ClientID:    clientID,
		Description: description,
		StartTime:   now,
		Active:      true,
	}
}

// Validate checks required fields and the end-time/active invariant.
func (e *TimeEntry) Validate() error {
	var errs []error
	if e.OperatorID == "" {
		errs = append(errs, ErrEntryMissingOperator)
	}
	if e.ClientID == "" {
		errs = append(errs, ErrEntryMissingClient)
	}
	if e.StartTime.IsZero() {
		errs = append(errs, ErrEntryMissingStart)
	}
	if e.Active && e.EndTime != nil {
		errs = append(errs, ErrEntryActiveWithEnd)
	}
	if !e.Active && e.EndTime == nil {
		errs = append(errs, ErrEntryStoppedNoEnd)
	}
	return errors.Join(errs...)
}

// State maps the persisted flags onto the timer state machine.
func (e *TimeEntry) State() TimerState {
	switch {
	case e == nil:
		return TimerStateIdle
	case !e.Active:
		return TimerStateStopped
	case e.IsPaused:
		return TimerStatePaused
	default:
		return TimerStateRunning
	}
}

// PauseUpdate builds the update for pausing a running entry.
func (e *TimeEntry) PauseUpdate(now time.Time) (TimeEntryUpdate, error) {
	if e.State() != TimerStateRunning {
		return TimeEntryUpdate{}, NewInvalidTransition(e.State(), "pause")
	}
	paused := true
	return TimeEntryUpdate{IsPaused: &paused, PausedAt: &now}, nil
}

// ResumeUpdate builds the update for resuming a paused entry.
func (e *TimeEntry) ResumeUpdate(now time.Time) (TimeEntryUpdate, error) {
	if e.State() != TimerStatePaused {
		return TimeEntryUpdate{}, NewInvalidTransition(e.State(), "resume")
	}
	paused := false
	return TimeEntryUpdate{IsPaused: &paused, ResumedAt: &now}, nil
}

// StopUpdate builds the update that finalizes the entry. Paused intervals
// are billed: the duration is plain wall-clock time since start.
func (e *TimeEntry) StopUpdate(now time.Time) (TimeEntryUpdate, error) {
	state := e.State()
	if state != TimerStateRunning && state != TimerStatePaused {
		return TimeEntryUpdate{}, NewInvalidTransition(state, "stop")
	}
	active := false
	hours := HoursBetween(e.StartTime, now)
	return TimeEntryUpdate{EndTime: &now, Active: &active, DurationHours: &hours}, nil
}

// Apply copies the non-nil fields of u onto the entry.
func (e *TimeEntry) Apply(u TimeEntryUpdate) {
	if u.EndTime != nil {
		t := *u.EndTime
		e.EndTime = &t
	}
	if u.IsPaused != nil {
		e.IsPaused = *u.IsPaused
	}
	if u.PausedAt != nil {
		t := *u.PausedAt
		e.PausedAt = &t
	}
	if u.ResumedAt != nil {
		t := *u.ResumedAt
		e.ResumedAt = &t
	}
	if u.DurationHours != nil {
		h := *u.DurationHours
		e.DurationHours = &h
	}
	if u.Active != nil {
		e.Active = *u.Active
	}
}

// Clone returns a deep copy so callers never share pointers with the
// controller's copy.
func (e *TimeEntry) Clone() *TimeEntry {
	if e == nil {
		return nil
	}
	c := *e
	c.EndTime = copyTime(e.EndTime)
	c.PausedAt = copyTime(e.PausedAt)
	c.ResumedAt = copyTime(e.ResumedAt)
	if e.DurationHours != nil {
		h := *e.DurationHours
		c.DurationHours = &h
	}
	return &c
}

// Elapsed is the live readout. It keeps counting while paused.
func (e *TimeEntry) Elapsed(now time.Time) time.Duration {
	end := now
	if e.EndTime != nil {
		end = *e.EndTime
	}
	if end.Before(e.StartTime) {
		return 0
	}
	return end.Sub(e.StartTime)
}

// HoursBetween converts a wall-clock span to decimal hours.
func HoursBetween(start, end time.Time) float64 {
	return end.Sub(start).Hours()
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
