package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/complydesk/backoffice/internal/domain"
	"github.com/complydesk/backoffice/internal/ports"
)

const timeEntryColumns = `id, operator_id, client_id, description, start_time, end_time,
	is_paused, paused_at, resumed_at, duration_hours, active`

// SQLTimeEntryRepository implements TimeEntryRepository on PostgreSQL or SQLite
type SQLTimeEntryRepository struct {
	db *sql.DB
}

// NewTimeEntryRepository creates a new SQL time entry repository
func NewTimeEntryRepository(store *Store) *SQLTimeEntryRepository {
	return &SQLTimeEntryRepository{db: store.DB}
}

// Insert saves a new time entry
func (r *SQLTimeEntryRepository) Insert(ctx context.Context, entry *domain.TimeEntry) error {
	if err := entry.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO time_entries (` + timeEntryColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	var duration interface{}
	if entry.DurationHours != nil {
		duration = *entry.DurationHours
	}

	_, err := r.db.ExecContext(ctx, query,
		entry.ID,
		entry.OperatorID,
		entry.ClientID,
		entry.Description,
		entry.StartTime.UnixMilli(),
		toMillis(entry.EndTime),
		entry.IsPaused,
		toMillis(entry.PausedAt),
		toMillis(entry.ResumedAt),
		duration,
		entry.Active,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ports.ErrActiveEntryExists
		}
		return fmt.Errorf("failed to insert time entry: %w", err)
	}

	return nil
}

// Update applies the non-nil fields of update to the entry. Only active
// entries are written; a stopped entry yields ports.ErrTimeEntryNotActive.
func (r *SQLTimeEntryRepository) Update(ctx context.Context, id string, update domain.TimeEntryUpdate) error {
	var setParts []string
	var args []interface{}
	argIndex := 1

	set := func(column string, value interface{}) {
		setParts = append(setParts, fmt.Sprintf("%s = $%d", column, argIndex))
		args = append(args, value)
		argIndex++
	}

	if update.EndTime != nil {
		set("end_time", update.EndTime.UnixMilli())
	}
	if update.IsPaused != nil {
		set("is_paused", *update.IsPaused)
	}
	if update.PausedAt != nil {
		set("paused_at", update.PausedAt.UnixMilli())
	}
	if update.ResumedAt != nil {
		set("resumed_at", update.ResumedAt.UnixMilli())
	}
	if update.DurationHours != nil {
		set("duration_hours", *update.DurationHours)
	}
	if update.Active != nil {
		set("active", *update.Active)
	}
	if len(setParts) == 0 {
		return nil
	}

	query := fmt.Sprintf("UPDATE time_entries SET %s WHERE id = $%d AND active = $%d",
		strings.Join(setParts, ", "), argIndex, argIndex+1)
	args = append(args, id, true)

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return ports.ErrActiveEntryExists
		}
		return fmt.Errorf("failed to update time entry: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return r.missingOrStopped(ctx, id)
	}

	return nil
}

// missingOrStopped tells apart the two reasons an update matched no row
func (r *SQLTimeEntryRepository) missingOrStopped(ctx context.Context, id string) error {
	var exists int
	err := r.db.QueryRowContext(ctx, `SELECT 1 FROM time_entries WHERE id = $1`, id).Scan(&exists)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ports.ErrTimeEntryNotFound
		}
		return fmt.Errorf("failed to check time entry: %w", err)
	}
	return ports.ErrTimeEntryNotActive
}

// FindActive returns the operator's active entry, or nil when there is none
func (r *SQLTimeEntryRepository) FindActive(ctx context.Context, operatorID string) (*domain.TimeEntry, error) {
	query := `
		SELECT ` + timeEntryColumns + `
		FROM time_entries
		WHERE operator_id = $1 AND active = $2
		LIMIT 1
	`

	entry, err := scanTimeEntry(r.db.QueryRowContext(ctx, query, operatorID, true))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find active time entry: %w", err)
	}
	return entry, nil
}

// FindByID retrieves a time entry by its ID
func (r *SQLTimeEntryRepository) FindByID(ctx context.Context, id string) (*domain.TimeEntry, error) {
	query := `SELECT ` + timeEntryColumns + ` FROM time_entries WHERE id = $1`

	entry, err := scanTimeEntry(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ports.ErrTimeEntryNotFound
		}
		return nil, fmt.Errorf("failed to find time entry: %w", err)
	}
	return entry, nil
}

func scanTimeEntry(row *sql.Row) (*domain.TimeEntry, error) {
	var entry domain.TimeEntry
	var start int64
	var end, pausedAt, resumedAt sql.NullInt64
	var duration sql.NullFloat64

	err := row.Scan(
		&entry.ID,
		&entry.OperatorID,
		&entry.ClientID,
		&entry.Description,
		&start,
		&end,
		&entry.IsPaused,
		&pausedAt,
		&resumedAt,
		&duration,
		&entry.Active,
	)
	if err != nil {
		return nil, err
	}

	entry.StartTime = *fromMillis(sql.NullInt64{Int64: start, Valid: true})
	entry.EndTime = fromMillis(end)
	entry.PausedAt = fromMillis(pausedAt)
	entry.ResumedAt = fromMillis(resumedAt)
	if duration.Valid {
		h := duration.Float64
		entry.DurationHours = &h
	}
	return &entry, nil
}
