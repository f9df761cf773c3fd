package memory

import (
	"context"
	"sync"

	"github.com/complydesk/backoffice/internal/domain"
	"github.com/complydesk/backoffice/internal/ports"
)

var (
	_ ports.TimeEntryRepository  = (*TimeEntryRepository)(nil)
	_ ports.CommitmentRepository = (*CommitmentRepository)(nil)
	_ ports.CustomerDirectory    = (*CustomerDirectory)(nil)
)

// TimeEntryRepository keeps time entries in memory. It enforces the same
// one-active-entry-per-operator rule as the SQL schema.
type TimeEntryRepository struct {
	mu      sync.RWMutex
	entries map[string]*domain.TimeEntry
	active  map[string]string // operator id -> entry id
}

// NewTimeEntryRepository creates an empty repository
func NewTimeEntryRepository() *TimeEntryRepository {
	return &TimeEntryRepository{
		entries: make(map[string]*domain.TimeEntry),
		active:  make(map[string]string),
	}
}

func (r *TimeEntryRepository) Insert(ctx context.Context, entry *domain.TimeEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := entry.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if entry.Active {
		if _, exists := r.active[entry.OperatorID]; exists {
			return ports.ErrActiveEntryExists
		}
		r.active[entry.OperatorID] = entry.ID
	}
	r.entries[entry.ID] = entry.Clone()
	return nil
}

func (r *TimeEntryRepository) Update(ctx context.Context, id string, update domain.TimeEntryUpdate) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[id]
	if !ok {
		return ports.ErrTimeEntryNotFound
	}
	if !entry.Active {
		return ports.ErrTimeEntryNotActive
	}

	entry.Apply(update)
	if entry.Active {
		r.active[entry.OperatorID] = entry.ID
	} else if r.active[entry.OperatorID] == entry.ID {
		delete(r.active, entry.OperatorID)
	}
	return nil
}

func (r *TimeEntryRepository) FindActive(ctx context.Context, operatorID string) (*domain.TimeEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.active[operatorID]
	if !ok {
		return nil, nil
	}
	return r.entries[id].Clone(), nil
}

// FindByID returns a copy of the entry with the given id
func (r *TimeEntryRepository) FindByID(ctx context.Context, id string) (*domain.TimeEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[id]
	if !ok {
		return nil, ports.ErrTimeEntryNotFound
	}
	return entry.Clone(), nil
}

// List returns copies of every entry for an operator
func (r *TimeEntryRepository) List(operatorID string) []*domain.TimeEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*domain.TimeEntry
	for _, entry := range r.entries {
		if entry.OperatorID == operatorID {
			out = append(out, entry.Clone())
		}
	}
	return out
}
