package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/complydesk/backoffice/internal/domain"
)

// SQLCommitmentRepository reads tasks and events for conflict detection
type SQLCommitmentRepository struct {
	db *sql.DB
}

// NewCommitmentRepository creates a new SQL commitment repository
func NewCommitmentRepository(store *Store) *SQLCommitmentRepository {
	return &SQLCommitmentRepository{db: store.DB}
}

// FindByParticipants returns every task and event any of ids owns, is
// assigned to, organizes or attends. A record reachable through several
// associations is returned once per association; ordering is direct
// ownership first, then membership.
func (r *SQLCommitmentRepository) FindByParticipants(ctx context.Context, ids []string) ([]*domain.Commitment, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	in := placeholders(1, len(ids))

	query := `
		SELECT src_order, kind, id, title, owner_id, start_time, end_time, source FROM (
			SELECT 1 AS src_order, 'TASK' AS kind, t.id, t.title, t.owner_id, t.start_time, t.end_time, 'TASK_OWNER' AS source
			FROM tasks t WHERE t.owner_id IN (` + in + `)
			UNION ALL
			SELECT 2, 'EVENT', e.id, e.title, e.organizer_id, e.start_time, e.end_time, 'EVENT_ORGANIZER'
			FROM events e WHERE e.organizer_id IN (` + in + `)
			UNION ALL
			SELECT 3, 'TASK', t.id, t.title, t.owner_id, t.start_time, t.end_time, 'TASK_ASSIGNEE'
			FROM tasks t JOIN task_assignees a ON a.task_id = t.id WHERE a.user_id IN (` + in + `)
			UNION ALL
			SELECT 4, 'EVENT', e.id, e.title, e.organizer_id, e.start_time, e.end_time, 'EVENT_ATTENDEE'
			FROM events e JOIN event_attendees a ON a.event_id = e.id WHERE a.user_id IN (` + in + `)
		) found
		ORDER BY src_order, start_time, id
	`

	rows, err := r.db.QueryContext(ctx, query, stringArgs(ids)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query commitments: %w", err)
	}
	defer rows.Close()

	var commitments []*domain.Commitment
	var taskIDs, eventIDs []string
	seenTask := map[string]bool{}
	seenEvent := map[string]bool{}

	for rows.Next() {
		var c domain.Commitment
		var order int
		var owner sql.NullString
		var start, end sql.NullInt64

		if err := rows.Scan(&order, &c.Kind, &c.ID, &c.Title, &owner, &start, &end, &c.Source); err != nil {
			return nil, fmt.Errorf("failed to scan commitment: %w", err)
		}
		c.StartTime = fromMillis(start)
		c.EndTime = fromMillis(end)
		if owner.Valid && owner.String != "" {
			c.Participants = []string{owner.String}
		}

		switch c.Kind {
		case domain.CommitmentKindTask:
			if !seenTask[c.ID] {
				seenTask[c.ID] = true
				taskIDs = append(taskIDs, c.ID)
			}
		case domain.CommitmentKindEvent:
			if !seenEvent[c.ID] {
				seenEvent[c.ID] = true
				eventIDs = append(eventIDs, c.ID)
			}
		}
		commitments = append(commitments, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate commitments: %w", err)
	}

	assignees, err := r.members(ctx, "SELECT task_id, user_id FROM task_assignees WHERE task_id IN (%s) ORDER BY task_id, user_id", taskIDs)
	if err != nil {
		return nil, err
	}
	attendees, err := r.members(ctx, "SELECT event_id, user_id FROM event_attendees WHERE event_id IN (%s) ORDER BY event_id, user_id", eventIDs)
	if err != nil {
		return nil, err
	}

	for _, c := range commitments {
		members := assignees
		if c.Kind == domain.CommitmentKindEvent {
			members = attendees
		}
		for _, m := range members[c.ID] {
			if len(c.Participants) > 0 && c.Participants[0] == m {
				continue
			}
			c.Participants = append(c.Participants, m)
		}
	}

	return commitments, nil
}

// members loads the participant lists for the given parent ids.
func (r *SQLCommitmentRepository) members(ctx context.Context, queryFmt string, parentIDs []string) (map[string][]string, error) {
	out := make(map[string][]string, len(parentIDs))
	if len(parentIDs) == 0 {
		return out, nil
	}

	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(queryFmt, placeholders(1, len(parentIDs))), stringArgs(parentIDs)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query participants: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var parentID, userID string
		if err := rows.Scan(&parentID, &userID); err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		out[parentID] = append(out[parentID], userID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate participants: %w", err)
	}
	return out, nil
}
