package memory

import (
	"context"
	"sync"
	"time"

	"github.com/complydesk/backoffice/internal/domain"
)

type commitmentRecord struct {
	kind    domain.CommitmentKind
	id      string
	title   string
	start   *time.Time
	end     *time.Time
	owner   string
	members []string
}

// CommitmentRepository keeps tasks and events in memory
type CommitmentRepository struct {
	mu      sync.RWMutex
	records []commitmentRecord

	// Err, when set, is returned by every lookup.
	Err error
}

// NewCommitmentRepository creates an empty repository
func NewCommitmentRepository() *CommitmentRepository {
	return &CommitmentRepository{}
}

// AddTask stores a task owned by ownerID and assigned to assigneeIDs
func (r *CommitmentRepository) AddTask(id, title string, start, end *time.Time, ownerID string, assigneeIDs ...string) {
	r.add(commitmentRecord{domain.CommitmentKindTask, id, title, start, end, ownerID, assigneeIDs})
}

// AddEvent stores an event organized by organizerID and attended by attendeeIDs
func (r *CommitmentRepository) AddEvent(id, title string, start, end *time.Time, organizerID string, attendeeIDs ...string) {
	r.add(commitmentRecord{domain.CommitmentKindEvent, id, title, start, end, organizerID, attendeeIDs})
}

func (r *CommitmentRepository) add(rec commitmentRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec.members = append([]string(nil), rec.members...)
	r.records = append(r.records, rec)
}

// FindByParticipants mirrors the SQL adapter: direct ownership rows first,
// then membership rows, one row per association.
func (r *CommitmentRepository) FindByParticipants(ctx context.Context, ids []string) ([]*domain.Commitment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.Err != nil {
		return nil, r.Err
	}

	wanted := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*domain.Commitment
	for _, rec := range r.records {
		if _, ok := wanted[rec.owner]; ok {
			out = append(out, rec.commitment(ownerSource(rec.kind)))
		}
	}
	for _, rec := range r.records {
		for _, m := range rec.members {
			if _, ok := wanted[m]; ok {
				out = append(out, rec.commitment(memberSource(rec.kind)))
			}
		}
	}
	return out, nil
}

func (rec commitmentRecord) commitment(source domain.AssociationSource) *domain.Commitment {
	c := &domain.Commitment{
		Kind:   rec.kind,
		ID:     rec.id,
		Title:  rec.title,
		Source: source,
	}
	if rec.start != nil {
		s := *rec.start
		c.StartTime = &s
	}
	if rec.end != nil {
		e := *rec.end
		c.EndTime = &e
	}
	if rec.owner != "" {
		c.Participants = append(c.Participants, rec.owner)
	}
	for _, m := range rec.members {
		if m != rec.owner {
			c.Participants = append(c.Participants, m)
		}
	}
	return c
}

func ownerSource(kind domain.CommitmentKind) domain.AssociationSource {
	if kind == domain.CommitmentKindEvent {
		return domain.SourceEventOrganizer
	}
	return domain.SourceTaskOwner
}

func memberSource(kind domain.CommitmentKind) domain.AssociationSource {
	if kind == domain.CommitmentKindEvent {
		return domain.SourceEventAttendee
	}
	return domain.SourceTaskAssignee
}
