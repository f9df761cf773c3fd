package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/complydesk/backoffice/internal/domain"
	"github.com/complydesk/backoffice/internal/logger"
	"github.com/complydesk/backoffice/internal/ports"
)

// DefaultReminderInterval is how often a running timer asks for confirmation
const DefaultReminderInterval = 30 * time.Minute

// ErrControllerClosed is returned by operations on a closed controller
var ErrControllerClosed = errors.New("timer controller is closed")

// TimerOptions configures optional collaborators of a TimerController
type TimerOptions struct {
	// Guard serializes starts across sessions. Optional.
	Guard ports.StartGuard

	// Scheduler drives liveness reminders. Reminders are off when nil.
	Scheduler ports.ReminderScheduler

	// ReminderInterval defaults to DefaultReminderInterval.
	ReminderInterval time.Duration

	// PromptTimeout bounds a single confirmation prompt. Zero waits forever.
	PromptTimeout time.Duration

	// OperationTimeout bounds repository writes made from the reminder.
	OperationTimeout time.Duration

	Now    func() time.Time
	Logger logger.Logger
}

// TimerSnapshot is a point-in-time view of the controller for display
type TimerSnapshot struct {
	OperatorID string            `json:"operator_id"`
	State      domain.TimerState `json:"state"`
	Entry      *domain.TimeEntry `json:"entry,omitempty"`
	Elapsed    time.Duration     `json:"elapsed"`
}

// TimerController owns the single active timer of one operator.
//
// Construct it with NewTimerController, which restores an in-progress timer
// from the repository, and release it with Close.
type TimerController struct {
	operatorID string
	entries    ports.TimeEntryRepository
	confirm    ports.ConfirmationPort
	guard      ports.StartGuard
	scheduler  ports.ReminderScheduler

	interval      time.Duration
	promptTimeout time.Duration
	opTimeout     time.Duration
	now           func() time.Time
	logger        logger.Logger

	// background context for reminder prompts and auto-stops
	baseCtx context.Context
	cancel  context.CancelFunc

	mu       sync.Mutex
	active   *domain.TimeEntry
	reminder ports.ReminderHandle
	prompt   *pendingPrompt
	closed   bool
}

// pendingPrompt is the confirmation question currently open for an entry
type pendingPrompt struct {
	entryID string
	cancel  context.CancelFunc
}

// NewTimerController creates a controller for operatorID and restores any
// active entry the repository holds for it.
func NewTimerController(
	ctx context.Context,
	operatorID string,
	entries ports.TimeEntryRepository,
	confirm ports.ConfirmationPort,
	opts TimerOptions,
) (*TimerController, error) {
	if operatorID == "" {
		return nil, domain.ErrEntryMissingOperator
	}
	if opts.ReminderInterval <= 0 {
		opts.ReminderInterval = DefaultReminderInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}

	baseCtx, cancel := context.WithCancel(context.Background())
	c := &TimerController{
		operatorID:    operatorID,
		entries:       entries,
		confirm:       confirm,
		guard:         opts.Guard,
		scheduler:     opts.Scheduler,
		interval:      opts.ReminderInterval,
		promptTimeout: opts.PromptTimeout,
		opTimeout:     opts.OperationTimeout,
		now:           opts.Now,
		logger:        opts.Logger.WithFields(map[string]interface{}{"operator_id": operatorID}),
		baseCtx:       baseCtx,
		cancel:        cancel,
	}

	if err := c.restore(ctx); err != nil {
		cancel()
		return nil, err
	}
	return c, nil
}

func (c *TimerController) restore(ctx context.Context) error {
	entry, err := c.entries.FindActive(ctx, c.operatorID)
	if err != nil {
		return fmt.Errorf("restore active timer: %w", err)
	}
	if entry == nil {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.active = entry.Clone()
	c.scheduleReminderLocked(c.active)

	c.logger.Info(ctx, "Active timer restored", map[string]interface{}{
		"entry_id":   entry.ID,
		"client_id":  entry.ClientID,
		"state":      entry.State(),
		"started_at": entry.StartTime,
	})
	return nil
}

// OperatorID returns the operator this controller belongs to
func (c *TimerController) OperatorID() string {
	return c.operatorID
}

// Start begins a new timer. It fails with a StartConflict error when the
// operator already has an active entry.
func (c *TimerController) Start(ctx context.Context, clientID, description string) (*domain.TimeEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrControllerClosed
	}
	if c.active != nil {
		return nil, domain.NewStartConflict(c.operatorID, c.active.ID)
	}
	if clientID == "" {
		return nil, domain.ErrEntryMissingClient
	}

	if c.guard != nil {
		release, err := c.guard.Acquire(ctx, c.operatorID)
		if err != nil {
			if errors.Is(err, ports.ErrGuardHeld) {
				return nil, domain.NewStartConflict(c.operatorID, "")
			}
			return nil, domain.NewPersistenceError("start", "", err)
		}
		defer release()
	}

	existing, err := c.entries.FindActive(ctx, c.operatorID)
	if err != nil {
		return nil, domain.NewPersistenceError("start", "", err)
	}
	if existing != nil {
		c.logger.Warn(ctx, "Timer start rejected, active entry exists", map[string]interface{}{
			"entry_id": existing.ID,
		})
		return nil, domain.NewStartConflict(c.operatorID, existing.ID)
	}

	entry := domain.NewTimeEntry(c.operatorID, clientID, description, c.now())
	if err := c.entries.Insert(ctx, entry); err != nil {
		if errors.Is(err, ports.ErrActiveEntryExists) {
			return nil, domain.NewStartConflict(c.operatorID, "")
		}
		return nil, domain.NewPersistenceError("start", entry.ID, err)
	}

	c.active = entry
	c.scheduleReminderLocked(entry)

	c.logger.Info(ctx, "Timer started", map[string]interface{}{
		"entry_id":  entry.ID,
		"client_id": clientID,
	})
	return entry.Clone(), nil
}

// Pause pauses the running timer. The entry stays active.
func (c *TimerController) Pause(ctx context.Context) (*domain.TimeEntry, error) {
	return c.transition(ctx, "pause", (*domain.TimeEntry).PauseUpdate)
}

// Resume resumes a paused timer.
func (c *TimerController) Resume(ctx context.Context) (*domain.TimeEntry, error) {
	return c.transition(ctx, "resume", (*domain.TimeEntry).ResumeUpdate)
}

func (c *TimerController) transition(
	ctx context.Context,
	op string,
	build func(*domain.TimeEntry, time.Time) (domain.TimeEntryUpdate, error),
) (*domain.TimeEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrControllerClosed
	}
	if c.active == nil {
		return nil, domain.NewInvalidTransition(domain.TimerStateIdle, op)
	}

	update, err := build(c.active, c.now())
	if err != nil {
		return nil, err
	}
	// local state changes only once the write is confirmed
	if err := c.entries.Update(ctx, c.active.ID, update); err != nil {
		if errors.Is(err, ports.ErrTimeEntryNotActive) {
			return nil, c.reconcileLocked(ctx, op)
		}
		c.logger.Error(ctx, "Timer update failed", err, map[string]interface{}{
			"entry_id":  c.active.ID,
			"operation": op,
		})
		return nil, domain.NewPersistenceError(op, c.active.ID, err)
	}
	c.active.Apply(update)

	c.logger.Info(ctx, "Timer "+op+"d", map[string]interface{}{
		"entry_id": c.active.ID,
	})
	return c.active.Clone(), nil
}

// Stop finalizes the active timer and returns it. Without an active timer it
// does nothing and returns (nil, nil).
func (c *TimerController) Stop(ctx context.Context) (*domain.TimeEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrControllerClosed
	}
	return c.stopLocked(ctx, "manual")
}

func (c *TimerController) stopLocked(ctx context.Context, reason string) (*domain.TimeEntry, error) {
	if c.active == nil {
		return nil, nil
	}

	update, err := c.active.StopUpdate(c.now())
	if err != nil {
		return nil, err
	}
	if err := c.entries.Update(ctx, c.active.ID, update); err != nil {
		if errors.Is(err, ports.ErrTimeEntryNotActive) {
			return nil, c.reconcileLocked(ctx, "stop")
		}
		c.logger.Error(ctx, "Timer stop failed", err, map[string]interface{}{
			"entry_id": c.active.ID,
			"reason":   reason,
		})
		return nil, domain.NewPersistenceError("stop", c.active.ID, err)
	}

	finished := c.active
	finished.Apply(update)
	c.active = nil
	c.cancelReminderLocked()
	c.cancelPromptLocked()

	c.logger.Info(ctx, "Timer stopped", map[string]interface{}{
		"entry_id":       finished.ID,
		"reason":         reason,
		"duration_hours": *finished.DurationHours,
	})
	return finished.Clone(), nil
}

// reconcileLocked handles a write rejected because another session already
// stopped the cached entry. The controller adopts whatever the repository now
// holds as active and reports the operation as an invalid transition.
func (c *TimerController) reconcileLocked(ctx context.Context, op string) error {
	stale := c.active
	c.logger.Warn(ctx, "Timer entry was stopped by another session", map[string]interface{}{
		"entry_id":  stale.ID,
		"operation": op,
	})
	c.active = nil
	c.cancelReminderLocked()
	c.cancelPromptLocked()

	current, err := c.entries.FindActive(ctx, c.operatorID)
	if err != nil {
		c.logger.Error(ctx, "Active timer lookup failed", err, nil)
	} else if current != nil {
		c.active = current.Clone()
		c.scheduleReminderLocked(c.active)
	}

	from := domain.TimerStateIdle
	if c.active != nil {
		from = c.active.State()
	}
	return domain.NewInvalidTransition(from, op)
}

// Refresh re-reads the operator's active entry so that changes made by other
// sessions become visible, and returns the resulting state.
func (c *TimerController) Refresh(ctx context.Context) (domain.TimerState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return domain.TimerStateIdle, ErrControllerClosed
	}
	current, err := c.entries.FindActive(ctx, c.operatorID)
	if err != nil {
		return c.stateLocked(), domain.NewPersistenceError("refresh", "", err)
	}

	switch {
	case current == nil:
		if c.active != nil {
			c.logger.Info(ctx, "Timer stopped elsewhere", map[string]interface{}{"entry_id": c.active.ID})
			c.active = nil
			c.cancelReminderLocked()
			c.cancelPromptLocked()
		}
	case c.active == nil || c.active.ID != current.ID:
		c.cancelPromptLocked()
		c.active = current.Clone()
		c.scheduleReminderLocked(c.active)
	default:
		c.active = current.Clone()
	}
	return c.stateLocked(), nil
}

// State returns the current state of the controller
func (c *TimerController) State() domain.TimerState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

func (c *TimerController) stateLocked() domain.TimerState {
	if c.active == nil {
		return domain.TimerStateIdle
	}
	return c.active.State()
}

// Elapsed is the live readout since start. It keeps counting while paused.
func (c *TimerController) Elapsed() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return 0
	}
	return c.active.Elapsed(c.now())
}

// Snapshot returns a copy of the controller state
func (c *TimerController) Snapshot() TimerSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := TimerSnapshot{OperatorID: c.operatorID, State: domain.TimerStateIdle}
	if c.active != nil {
		snap.State = c.active.State()
		snap.Entry = c.active.Clone()
		snap.Elapsed = c.active.Elapsed(c.now())
	}
	return snap
}

// Close releases the reminder. The active entry, if any, stays active in the
// repository and is restored by the next controller for the operator.
func (c *TimerController) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.cancelReminderLocked()
	c.cancelPromptLocked()
	c.cancel()
	return nil
}

func (c *TimerController) scheduleReminderLocked(entry *domain.TimeEntry) {
	if c.scheduler == nil || c.confirm == nil {
		return
	}
	c.cancelReminderLocked()
	entryID := entry.ID
	c.reminder = c.scheduler.Schedule(entry.StartTime, c.interval, func() {
		c.remind(entryID)
	})
}

func (c *TimerController) cancelReminderLocked() {
	if c.reminder != nil {
		c.reminder.Cancel()
		c.reminder = nil
	}
}

func (c *TimerController) cancelPromptLocked() {
	if c.prompt != nil {
		c.prompt.cancel()
		c.prompt = nil
	}
}

// remind asks whether the timer for entryID should keep running and stops it
// on a negative answer. Prompts never overlap; paused timers are not asked.
// Stopping or replacing the entry cancels its open prompt.
func (c *TimerController) remind(entryID string) {
	c.mu.Lock()
	if c.closed || c.active == nil || c.active.ID != entryID || c.active.IsPaused {
		c.mu.Unlock()
		return
	}
	if c.prompt != nil {
		open := c.prompt.entryID
		c.mu.Unlock()
		c.logger.Debug(c.baseCtx, "Reminder suppressed, prompt outstanding", map[string]interface{}{
			"entry_id":   entryID,
			"prompt_for": open,
		})
		return
	}
	askCtx, cancel := c.withTimeout(c.promptTimeout)
	pending := &pendingPrompt{entryID: entryID, cancel: cancel}
	c.prompt = pending
	prompt := ports.PromptContext{
		OperatorID:  c.operatorID,
		EntryID:     c.active.ID,
		ClientID:    c.active.ClientID,
		Description: c.active.Description,
		StartedAt:   c.active.StartTime,
		Elapsed:     c.active.Elapsed(c.now()),
	}
	c.mu.Unlock()

	keep, err := c.confirm.Ask(askCtx, prompt)

	c.mu.Lock()
	defer c.mu.Unlock()
	cancel()
	if c.prompt == pending {
		c.prompt = nil
	}
	if err != nil {
		// no answer is not a "no"
		c.logger.Warn(c.baseCtx, "Timer confirmation failed", map[string]interface{}{
			"entry_id": entryID,
			"error":    err.Error(),
		})
		return
	}
	if keep {
		c.logger.Debug(c.baseCtx, "Timer confirmed", map[string]interface{}{"entry_id": entryID})
		return
	}

	if c.closed || c.active == nil || c.active.ID != entryID {
		return
	}
	stopCtx, cancelStop := c.withTimeout(c.opTimeout)
	defer cancelStop()
	if _, err := c.stopLocked(stopCtx, "reminder_declined"); err != nil {
		c.logger.Error(c.baseCtx, "Auto-stop after declined reminder failed", err, map[string]interface{}{
			"entry_id": entryID,
		})
	}
}

func (c *TimerController) withTimeout(d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(c.baseCtx)
	}
	return context.WithTimeout(c.baseCtx, d)
}
