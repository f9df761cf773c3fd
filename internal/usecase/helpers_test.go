package usecase

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/complydesk/backoffice/internal/domain"
	"github.com/complydesk/backoffice/internal/ports"
)

// mockTimeEntryRepo is a testify double for ports.TimeEntryRepository
type mockTimeEntryRepo struct {
	mock.Mock
}

func (m *mockTimeEntryRepo) Insert(ctx context.Context, entry *domain.TimeEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *mockTimeEntryRepo) Update(ctx context.Context, id string, update domain.TimeEntryUpdate) error {
	args := m.Called(ctx, id, update)
	return args.Error(0)
}

func (m *mockTimeEntryRepo) FindActive(ctx context.Context, operatorID string) (*domain.TimeEntry, error) {
	args := m.Called(ctx, operatorID)
	entry, _ := args.Get(0).(*domain.TimeEntry)
	return entry, args.Error(1)
}

// mockCommitmentRepo is a testify double for ports.CommitmentRepository
type mockCommitmentRepo struct {
	mock.Mock
}

func (m *mockCommitmentRepo) FindByParticipants(ctx context.Context, ids []string) ([]*domain.Commitment, error) {
	args := m.Called(ctx, ids)
	found, _ := args.Get(0).([]*domain.Commitment)
	return found, args.Error(1)
}

// mockDirectory is a testify double for ports.CustomerDirectory
type mockDirectory struct {
	mock.Mock
}

func (m *mockDirectory) GetComplianceRecord(ctx context.Context, clientID string) (*domain.ComplianceRecord, error) {
	args := m.Called(ctx, clientID)
	record, _ := args.Get(0).(*domain.ComplianceRecord)
	return record, args.Error(1)
}

func (m *mockDirectory) ListComplianceRecords(ctx context.Context) ([]*domain.ComplianceRecord, error) {
	args := m.Called(ctx)
	records, _ := args.Get(0).([]*domain.ComplianceRecord)
	return records, args.Error(1)
}

// testClock is a manually advanced clock
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock(t time.Time) *testClock {
	return &testClock{now: t}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeScheduler records scheduled reminders; tests fire them by hand
type fakeScheduler struct {
	mu        sync.Mutex
	reminders []*fakeReminder
}

type fakeReminder struct {
	anchor    time.Time
	interval  time.Duration
	job       func()
	cancelled atomic.Bool
}

func (r *fakeReminder) Cancel() {
	r.cancelled.Store(true)
}

// fire runs the job unless the reminder was cancelled
func (r *fakeReminder) fire() {
	if !r.cancelled.Load() {
		r.job()
	}
}

func (s *fakeScheduler) Schedule(anchor time.Time, interval time.Duration, job func()) ports.ReminderHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := &fakeReminder{anchor: anchor, interval: interval, job: job}
	s.reminders = append(s.reminders, r)
	return r
}

func (s *fakeScheduler) last() *fakeReminder {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.reminders) == 0 {
		return nil
	}
	return s.reminders[len(s.reminders)-1]
}

func (s *fakeScheduler) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.reminders)
}

// stubGuard returns err from every Acquire
type stubGuard struct {
	err      error
	released atomic.Int32
}

func (g *stubGuard) Acquire(ctx context.Context, operatorID string) (func(), error) {
	if g.err != nil {
		return nil, g.err
	}
	return func() { g.released.Add(1) }, nil
}

// answer returns a confirmation port that always gives the same reply
func answer(keep bool, err error) (ports.ConfirmationPort, *atomic.Int32) {
	calls := &atomic.Int32{}
	return ports.ConfirmFunc(func(ctx context.Context, p ports.PromptContext) (bool, error) {
		calls.Add(1)
		return keep, err
	}), calls
}
