package ports

import (
	"context"
	"errors"

	"github.com/complydesk/backoffice/internal/domain"
)

var (
	// ErrActiveEntryExists is returned by TimeEntryRepository.Insert when the
	// storage layer already holds an active entry for the operator.
	ErrActiveEntryExists = errors.New("active time entry already exists for operator")

	// ErrTimeEntryNotFound is returned by Update for an unknown id.
	ErrTimeEntryNotFound = errors.New("time entry not found")

	// ErrTimeEntryNotActive is returned by Update when the entry exists but
	// has already been stopped. Stopped entries are final.
	ErrTimeEntryNotActive = errors.New("time entry is no longer active")

	// ErrClientNotFound is returned by the customer directory for an unknown client.
	ErrClientNotFound = errors.New("client not found")
)

// CustomerDirectory exposes the compliance data owned by the customer directory
type CustomerDirectory interface {
	// GetComplianceRecord retrieves a client's registration and filing dates
	GetComplianceRecord(ctx context.Context, clientID string) (*domain.ComplianceRecord, error)

	// ListComplianceRecords retrieves every client's record for dashboard counts
	ListComplianceRecords(ctx context.Context) ([]*domain.ComplianceRecord, error)
}

// TimeEntryRepository defines the interface for time entry persistence
type TimeEntryRepository interface {
	// Insert saves a new entry. Implementations must reject a second active
	// entry for the same operator with ErrActiveEntryExists.
	Insert(ctx context.Context, entry *domain.TimeEntry) error

	// Update applies the non-nil fields of update to the active entry with the
	// given id. It returns ErrTimeEntryNotActive for a stopped entry.
	Update(ctx context.Context, id string, update domain.TimeEntryUpdate) error

	// FindActive returns the operator's active entry, or nil if there is none
	FindActive(ctx context.Context, operatorID string) (*domain.TimeEntry, error)
}

// CommitmentRepository defines the read-only view over tasks and events
type CommitmentRepository interface {
	// FindByParticipants returns tasks and events any of the participants own,
	// are assigned to, organize, or attend. A commitment reachable through
	// several associations may appear once per association.
	FindByParticipants(ctx context.Context, participantIDs []string) ([]*domain.Commitment, error)
}
