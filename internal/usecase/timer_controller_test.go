package usecase

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/complydesk/backoffice/internal/adapter/memory"
	"github.com/complydesk/backoffice/internal/domain"
	"github.com/complydesk/backoffice/internal/ports"
)

var t0 = time.Date(2024, 5, 6, 9, 0, 0, 0, time.UTC)

type timerFixture struct {
	ctrl  *TimerController
	repo  *memory.TimeEntryRepository
	sched *fakeScheduler
	clock *testClock
}

func newTimerFixture(t *testing.T, confirm ports.ConfirmationPort) *timerFixture {
	t.Helper()
	f := &timerFixture{
		repo:  memory.NewTimeEntryRepository(),
		sched: &fakeScheduler{},
		clock: newTestClock(t0),
	}
	f.ctrl = f.newController(t, confirm)
	return f
}

func (f *timerFixture) newController(t *testing.T, confirm ports.ConfirmationPort) *TimerController {
	t.Helper()
	ctrl, err := NewTimerController(context.Background(), "op-1", f.repo, confirm, TimerOptions{
		Scheduler: f.sched,
		Now:       f.clock.Now,
	})
	require.NoError(t, err)
	t.Cleanup(func() { ctrl.Close() })
	return ctrl
}

func TestNewTimerController_RequiresOperator(t *testing.T) {
	_, err := NewTimerController(context.Background(), "", memory.NewTimeEntryRepository(), nil, TimerOptions{})
	assert.ErrorIs(t, err, domain.ErrEntryMissingOperator)
}

func TestNewTimerController_RestoreFailure(t *testing.T) {
	repo := new(mockTimeEntryRepo)
	repo.On("FindActive", mock.Anything, "op-1").Return(nil, errors.New("db down"))

	_, err := NewTimerController(context.Background(), "op-1", repo, nil, TimerOptions{})
	assert.ErrorContains(t, err, "db down")
	repo.AssertExpectations(t)
}

func TestTimerController_SecondStartConflicts(t *testing.T) {
	ctx := context.Background()
	f := newTimerFixture(t, nil)

	first, err := f.ctrl.Start(ctx, "client-1", "Bookkeeping")
	require.NoError(t, err)
	assert.Equal(t, domain.TimerStateRunning, f.ctrl.State())
	assert.True(t, t0.Equal(first.StartTime))

	_, err = f.ctrl.Start(ctx, "client-2", "")
	assert.ErrorIs(t, err, domain.ErrStartConflict)

	assert.Len(t, f.repo.List("op-1"), 1)
	assert.Equal(t, domain.TimerStateRunning, f.ctrl.State())
}

func TestTimerController_StartConflictsWithOtherSession(t *testing.T) {
	ctx := context.Background()
	f := newTimerFixture(t, nil)
	other := f.newController(t, nil)

	_, err := f.ctrl.Start(ctx, "client-1", "")
	require.NoError(t, err)

	_, err = other.Start(ctx, "client-2", "")
	assert.ErrorIs(t, err, domain.ErrStartConflict)
	assert.Len(t, f.repo.List("op-1"), 1)
}

func TestTimerController_ConcurrentStartsAcrossSessions(t *testing.T) {
	ctx := context.Background()
	f := newTimerFixture(t, nil)

	sessions := make([]*TimerController, 20)
	for i := range sessions {
		sessions[i] = f.newController(t, nil)
	}

	var wg sync.WaitGroup
	var started, conflicts atomic.Int32
	for _, s := range sessions {
		wg.Add(1)
		go func(s *TimerController) {
			defer wg.Done()
			_, err := s.Start(ctx, "client-1", "")
			switch {
			case err == nil:
				started.Add(1)
			case errors.Is(err, domain.ErrStartConflict):
				conflicts.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(s)
	}
	wg.Wait()

	assert.Equal(t, int32(1), started.Load())
	assert.Equal(t, int32(len(sessions)-1), conflicts.Load())
	assert.Len(t, f.repo.List("op-1"), 1)
}

func TestTimerController_StartRequiresClient(t *testing.T) {
	f := newTimerFixture(t, nil)

	_, err := f.ctrl.Start(context.Background(), "", "")
	assert.ErrorIs(t, err, domain.ErrEntryMissingClient)
	assert.Equal(t, domain.TimerStateIdle, f.ctrl.State())
}

func TestTimerController_FullCycleBillsPausedTime(t *testing.T) {
	ctx := context.Background()
	f := newTimerFixture(t, nil)

	entry, err := f.ctrl.Start(ctx, "client-1", "Year end")
	require.NoError(t, err)

	f.clock.Advance(30 * time.Minute)
	paused, err := f.ctrl.Pause(ctx)
	require.NoError(t, err)
	assert.True(t, paused.IsPaused)
	assert.Equal(t, domain.TimerStatePaused, f.ctrl.State())

	f.clock.Advance(15 * time.Minute)
	// the readout does not freeze while paused
	assert.Equal(t, 45*time.Minute, f.ctrl.Elapsed())

	resumed, err := f.ctrl.Resume(ctx)
	require.NoError(t, err)
	assert.False(t, resumed.IsPaused)
	require.NotNil(t, resumed.ResumedAt)

	f.clock.Advance(45 * time.Minute)
	stopped, err := f.ctrl.Stop(ctx)
	require.NoError(t, err)
	require.NotNil(t, stopped.DurationHours)
	assert.InDelta(t, 1.5, *stopped.DurationHours, 1e-9)
	assert.False(t, stopped.Active)
	assert.Equal(t, domain.TimerStateIdle, f.ctrl.State())

	stored, err := f.repo.FindByID(ctx, entry.ID)
	require.NoError(t, err)
	assert.False(t, stored.Active)
	assert.InDelta(t, 1.5, *stored.DurationHours, 1e-9)
	assert.True(t, f.sched.last().cancelled.Load())
}

func TestTimerController_StopWhilePaused(t *testing.T) {
	ctx := context.Background()
	f := newTimerFixture(t, nil)

	_, err := f.ctrl.Start(ctx, "client-1", "")
	require.NoError(t, err)
	_, err = f.ctrl.Pause(ctx)
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	stopped, err := f.ctrl.Stop(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, *stopped.DurationHours, 1e-9)
}

func TestTimerController_InvalidTransitions(t *testing.T) {
	ctx := context.Background()
	f := newTimerFixture(t, nil)

	_, err := f.ctrl.Pause(ctx)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	_, err = f.ctrl.Resume(ctx)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	stopped, err := f.ctrl.Stop(ctx)
	assert.NoError(t, err)
	assert.Nil(t, stopped)

	_, err = f.ctrl.Start(ctx, "client-1", "")
	require.NoError(t, err)
	_, err = f.ctrl.Resume(ctx)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = f.ctrl.Pause(ctx)
	require.NoError(t, err)
	_, err = f.ctrl.Pause(ctx)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestTimerController_WriteFailureLeavesStateUnchanged(t *testing.T) {
	ctx := context.Background()
	repo := new(mockTimeEntryRepo)
	repo.On("FindActive", mock.Anything, "op-1").Return(nil, nil)
	repo.On("Insert", mock.Anything, mock.AnythingOfType("*domain.TimeEntry")).Return(nil)
	repo.On("Update", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("write timeout"))

	sched := &fakeScheduler{}
	ctrl, err := NewTimerController(ctx, "op-1", repo, ports.ConfirmFunc(func(context.Context, ports.PromptContext) (bool, error) {
		return true, nil
	}), TimerOptions{Scheduler: sched})
	require.NoError(t, err)
	defer ctrl.Close()

	_, err = ctrl.Start(ctx, "client-1", "")
	require.NoError(t, err)

	_, err = ctrl.Pause(ctx)
	assert.ErrorIs(t, err, domain.ErrPersistence)
	assert.Equal(t, domain.TimerStateRunning, ctrl.State())

	_, err = ctrl.Stop(ctx)
	assert.ErrorIs(t, err, domain.ErrPersistence)
	assert.Equal(t, domain.TimerStateRunning, ctrl.State())
	assert.False(t, sched.last().cancelled.Load())

	repo.AssertExpectations(t)
}

func TestTimerController_InsertFailures(t *testing.T) {
	tests := []struct {
		name      string
		insertErr error
		want      error
	}{
		{"unique violation", ports.ErrActiveEntryExists, domain.ErrStartConflict},
		{"storage error", errors.New("disk full"), domain.ErrPersistence},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(mockTimeEntryRepo)
			repo.On("FindActive", mock.Anything, "op-1").Return(nil, nil)
			repo.On("Insert", mock.Anything, mock.Anything).Return(tt.insertErr)

			ctrl, err := NewTimerController(context.Background(), "op-1", repo, nil, TimerOptions{})
			require.NoError(t, err)
			defer ctrl.Close()

			_, err = ctrl.Start(context.Background(), "client-1", "")
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, domain.TimerStateIdle, ctrl.State())
		})
	}
}

func TestTimerController_Guard(t *testing.T) {
	t.Run("held", func(t *testing.T) {
		guard := &stubGuard{err: ports.ErrGuardHeld}
		ctrl, err := NewTimerController(context.Background(), "op-1", memory.NewTimeEntryRepository(), nil, TimerOptions{Guard: guard})
		require.NoError(t, err)

		_, err = ctrl.Start(context.Background(), "client-1", "")
		assert.ErrorIs(t, err, domain.ErrStartConflict)
	})

	t.Run("unavailable", func(t *testing.T) {
		guard := &stubGuard{err: errors.New("redis down")}
		ctrl, err := NewTimerController(context.Background(), "op-1", memory.NewTimeEntryRepository(), nil, TimerOptions{Guard: guard})
		require.NoError(t, err)

		_, err = ctrl.Start(context.Background(), "client-1", "")
		assert.ErrorIs(t, err, domain.ErrPersistence)
	})

	t.Run("released after start", func(t *testing.T) {
		guard := &stubGuard{}
		ctrl, err := NewTimerController(context.Background(), "op-1", memory.NewTimeEntryRepository(), nil, TimerOptions{Guard: guard})
		require.NoError(t, err)

		_, err = ctrl.Start(context.Background(), "client-1", "")
		require.NoError(t, err)
		assert.Equal(t, int32(1), guard.released.Load())
	})
}

func TestTimerController_RestoresPausedEntry(t *testing.T) {
	ctx := context.Background()
	f := newTimerFixture(t, nil)

	entry := domain.NewTimeEntry("op-1", "client-1", "restored", t0)
	pause, err := entry.PauseUpdate(t0.Add(10 * time.Minute))
	require.NoError(t, err)
	entry.Apply(pause)
	require.NoError(t, f.repo.Insert(ctx, entry))

	confirm, _ := answer(true, nil)
	restored := f.newController(t, confirm)
	assert.Equal(t, domain.TimerStatePaused, restored.State())

	snap := restored.Snapshot()
	assert.Equal(t, "op-1", snap.OperatorID)
	require.NotNil(t, snap.Entry)
	assert.Equal(t, entry.ID, snap.Entry.ID)

	// the reminder is aligned to the original start
	require.NotNil(t, f.sched.last())
	assert.True(t, t0.Equal(f.sched.last().anchor))
	assert.Equal(t, DefaultReminderInterval, f.sched.last().interval)

	_, err = restored.Resume(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.TimerStateRunning, restored.State())

	_, err = restored.Start(ctx, "client-2", "")
	assert.ErrorIs(t, err, domain.ErrStartConflict)
}

func TestTimerController_ReminderDeclinedStopsTimer(t *testing.T) {
	ctx := context.Background()
	confirm, calls := answer(false, nil)
	f := newTimerFixture(t, confirm)

	entry, err := f.ctrl.Start(ctx, "client-1", "")
	require.NoError(t, err)

	f.clock.Advance(30 * time.Minute)
	f.sched.last().fire()

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, domain.TimerStateIdle, f.ctrl.State())
	assert.True(t, f.sched.last().cancelled.Load())

	stored, err := f.repo.FindByID(ctx, entry.ID)
	require.NoError(t, err)
	assert.False(t, stored.Active)
	assert.InDelta(t, 0.5, *stored.DurationHours, 1e-9)

	// the operator can start again afterwards
	_, err = f.ctrl.Start(ctx, "client-1", "")
	assert.NoError(t, err)
}

func TestTimerController_ReminderConfirmedKeepsRunning(t *testing.T) {
	confirm, calls := answer(true, nil)
	f := newTimerFixture(t, confirm)

	_, err := f.ctrl.Start(context.Background(), "client-1", "")
	require.NoError(t, err)

	f.sched.last().fire()
	f.sched.last().fire()

	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, domain.TimerStateRunning, f.ctrl.State())
}

func TestTimerController_ReminderErrorIsNotANo(t *testing.T) {
	confirm, calls := answer(false, context.DeadlineExceeded)
	f := newTimerFixture(t, confirm)

	_, err := f.ctrl.Start(context.Background(), "client-1", "")
	require.NoError(t, err)

	f.sched.last().fire()
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, domain.TimerStateRunning, f.ctrl.State())
}

func TestTimerController_ReminderSkippedWhilePaused(t *testing.T) {
	ctx := context.Background()
	confirm, calls := answer(false, nil)
	f := newTimerFixture(t, confirm)

	_, err := f.ctrl.Start(ctx, "client-1", "")
	require.NoError(t, err)
	_, err = f.ctrl.Pause(ctx)
	require.NoError(t, err)

	f.sched.last().fire()
	assert.Equal(t, int32(0), calls.Load())
	assert.Equal(t, domain.TimerStatePaused, f.ctrl.State())
}

func TestTimerController_OverlappingPromptsSuppressed(t *testing.T) {
	entered := make(chan ports.PromptContext, 1)
	reply := make(chan bool)
	var calls atomic.Int32
	confirm := ports.ConfirmFunc(func(ctx context.Context, p ports.PromptContext) (bool, error) {
		calls.Add(1)
		entered <- p
		return <-reply, nil
	})
	f := newTimerFixture(t, confirm)

	entry, err := f.ctrl.Start(context.Background(), "client-1", "Audit prep")
	require.NoError(t, err)
	f.clock.Advance(30 * time.Minute)

	reminder := f.sched.last()
	done := make(chan struct{})
	go func() {
		reminder.fire()
		close(done)
	}()

	prompt := <-entered
	assert.Equal(t, entry.ID, prompt.EntryID)
	assert.Equal(t, "Audit prep", prompt.Description)
	assert.Equal(t, 30*time.Minute, prompt.Elapsed)

	// a tick while the first prompt is outstanding returns immediately
	reminder.fire()
	assert.Equal(t, int32(1), calls.Load())

	// the controller stays usable while the prompt is open
	assert.Equal(t, domain.TimerStateRunning, f.ctrl.State())

	reply <- true
	<-done
	assert.Equal(t, domain.TimerStateRunning, f.ctrl.State())
}

func TestTimerController_StoppedBeforeAnswer(t *testing.T) {
	ctx := context.Background()
	entered := make(chan struct{}, 1)
	reply := make(chan bool)
	confirm := ports.ConfirmFunc(func(ctx context.Context, p ports.PromptContext) (bool, error) {
		entered <- struct{}{}
		return <-reply, nil
	})
	f := newTimerFixture(t, confirm)

	_, err := f.ctrl.Start(ctx, "client-1", "")
	require.NoError(t, err)

	reminder := f.sched.last()
	done := make(chan struct{})
	go func() {
		reminder.fire()
		close(done)
	}()
	<-entered

	_, err = f.ctrl.Stop(ctx)
	require.NoError(t, err)
	next, err := f.ctrl.Start(ctx, "client-2", "")
	require.NoError(t, err)

	// a late "no" for the old entry must not stop the new one
	reply <- false
	<-done
	assert.Equal(t, domain.TimerStateRunning, f.ctrl.State())
	assert.Equal(t, next.ID, f.ctrl.Snapshot().Entry.ID)
}

func TestTimerController_StopCancelsOpenPrompt(t *testing.T) {
	ctx := context.Background()
	entered := make(chan struct{}, 1)
	var calls atomic.Int32
	confirm := ports.ConfirmFunc(func(ctx context.Context, p ports.PromptContext) (bool, error) {
		if calls.Add(1) == 1 {
			entered <- struct{}{}
			<-ctx.Done()
			return false, ctx.Err()
		}
		return true, nil
	})
	f := newTimerFixture(t, confirm)

	_, err := f.ctrl.Start(ctx, "client-1", "")
	require.NoError(t, err)

	reminder := f.sched.last()
	done := make(chan struct{})
	go func() {
		reminder.fire()
		close(done)
	}()
	<-entered

	// nobody answers; a manual stop closes the question
	_, err = f.ctrl.Stop(ctx)
	require.NoError(t, err)
	<-done

	next, err := f.ctrl.Start(ctx, "client-2", "")
	require.NoError(t, err)
	f.sched.last().fire()

	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, next.ID, f.ctrl.Snapshot().Entry.ID)
	assert.Equal(t, domain.TimerStateRunning, f.ctrl.State())
}

func TestTimerController_EntryStoppedByOtherSessionStaysFinal(t *testing.T) {
	ctx := context.Background()
	confirm, calls := answer(false, nil)
	f := newTimerFixture(t, confirm)

	entry, err := f.ctrl.Start(ctx, "client-1", "")
	require.NoError(t, err)
	reminder := f.sched.last()

	other := f.newController(t, nil)
	f.clock.Advance(time.Hour)
	_, err = other.Stop(ctx)
	require.NoError(t, err)

	f.clock.Advance(5 * time.Hour)
	_, err = f.ctrl.Pause(ctx)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.Equal(t, domain.TimerStateIdle, f.ctrl.State())
	assert.True(t, reminder.cancelled.Load())

	stopped, err := f.ctrl.Stop(ctx)
	assert.NoError(t, err)
	assert.Nil(t, stopped)

	reminder.fire()
	assert.Equal(t, int32(0), calls.Load())

	stored, err := f.repo.FindByID(ctx, entry.ID)
	require.NoError(t, err)
	assert.False(t, stored.Active)
	assert.False(t, stored.IsPaused)
	assert.InDelta(t, 1.0, *stored.DurationHours, 1e-9)
}

func TestTimerController_DeclinedReminderAfterOtherSessionStopped(t *testing.T) {
	ctx := context.Background()
	entered := make(chan struct{}, 1)
	reply := make(chan bool)
	confirm := ports.ConfirmFunc(func(ctx context.Context, p ports.PromptContext) (bool, error) {
		entered <- struct{}{}
		return <-reply, nil
	})
	f := newTimerFixture(t, confirm)

	entry, err := f.ctrl.Start(ctx, "client-1", "")
	require.NoError(t, err)
	reminder := f.sched.last()
	done := make(chan struct{})
	go func() {
		reminder.fire()
		close(done)
	}()
	<-entered

	other := f.newController(t, nil)
	f.clock.Advance(time.Hour)
	_, err = other.Stop(ctx)
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	reply <- false
	<-done

	assert.Equal(t, domain.TimerStateIdle, f.ctrl.State())
	stored, err := f.repo.FindByID(ctx, entry.ID)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, *stored.DurationHours, 1e-9)
}

func TestTimerController_Refresh(t *testing.T) {
	ctx := context.Background()
	f := newTimerFixture(t, nil)

	_, err := f.ctrl.Start(ctx, "client-1", "")
	require.NoError(t, err)

	other := f.newController(t, nil)
	_, err = other.Pause(ctx)
	require.NoError(t, err)

	state, err := f.ctrl.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.TimerStatePaused, state)

	_, err = other.Stop(ctx)
	require.NoError(t, err)
	state, err = f.ctrl.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.TimerStateIdle, state)

	next, err := other.Start(ctx, "client-2", "")
	require.NoError(t, err)
	state, err = f.ctrl.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.TimerStateRunning, state)
	assert.Equal(t, next.ID, f.ctrl.Snapshot().Entry.ID)

	require.NoError(t, f.ctrl.Close())
	_, err = f.ctrl.Refresh(ctx)
	assert.ErrorIs(t, err, ErrControllerClosed)
}

func TestTimerController_CloseCancelsPromptAndKeepsEntry(t *testing.T) {
	ctx := context.Background()
	entered := make(chan struct{}, 1)
	confirm := ports.ConfirmFunc(func(ctx context.Context, p ports.PromptContext) (bool, error) {
		entered <- struct{}{}
		<-ctx.Done()
		return false, ctx.Err()
	})
	f := newTimerFixture(t, confirm)

	entry, err := f.ctrl.Start(ctx, "client-1", "")
	require.NoError(t, err)

	reminder := f.sched.last()
	done := make(chan struct{})
	go func() {
		reminder.fire()
		close(done)
	}()
	<-entered

	require.NoError(t, f.ctrl.Close())
	<-done

	assert.True(t, reminder.cancelled.Load())
	assert.NoError(t, f.ctrl.Close())

	_, err = f.ctrl.Start(ctx, "client-1", "")
	assert.ErrorIs(t, err, ErrControllerClosed)
	_, err = f.ctrl.Stop(ctx)
	assert.ErrorIs(t, err, ErrControllerClosed)

	stored, err := f.repo.FindActive(ctx, "op-1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, entry.ID, stored.ID)
}

func TestTimerController_NoSchedulerNoReminder(t *testing.T) {
	confirm, _ := answer(true, nil)
	ctrl, err := NewTimerController(context.Background(), "op-1", memory.NewTimeEntryRepository(), confirm, TimerOptions{})
	require.NoError(t, err)
	defer ctrl.Close()

	_, err = ctrl.Start(context.Background(), "client-1", "")
	assert.NoError(t, err)
}

func TestTimerController_ReturnsCopies(t *testing.T) {
	f := newTimerFixture(t, nil)

	entry, err := f.ctrl.Start(context.Background(), "client-1", "")
	require.NoError(t, err)
	entry.IsPaused = true

	assert.Equal(t, domain.TimerStateRunning, f.ctrl.State())
	assert.Equal(t, 1, f.sched.count())
}
