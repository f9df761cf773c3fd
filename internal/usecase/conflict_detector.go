package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/complydesk/backoffice/internal/domain"
	"github.com/complydesk/backoffice/internal/logger"
	"github.com/complydesk/backoffice/internal/ports"
)

// ConflictQuery describes a proposed commitment to check
type ConflictQuery struct {
	ParticipantIDs []string  `json:"participant_ids"`
	Start          time.Time `json:"start"`
	End            time.Time `json:"end"`

	// ExcludeID skips the commitment being edited. ExcludeKind narrows the
	// exclusion to one kind; empty matches both.
	ExcludeID   string                `json:"exclude_id,omitempty"`
	ExcludeKind domain.CommitmentKind `json:"exclude_kind,omitempty"`
}

// ConflictDetector reports existing commitments that overlap a proposed one.
//
// It is advisory: it never blocks creation. The check and the caller's
// later insert are not atomic, so callers that need a hard guarantee must
// re-check inside their own transaction.
type ConflictDetector struct {
	commitments ports.CommitmentRepository
	logger      logger.Logger
}

// NewConflictDetector creates a new conflict detector
func NewConflictDetector(commitments ports.CommitmentRepository, log logger.Logger) *ConflictDetector {
	if log == nil {
		log = logger.Nop()
	}
	return &ConflictDetector{commitments: commitments, logger: log}
}

// FindConflicts returns the commitments sharing a participant with q whose
// interval overlaps [q.Start, q.End), in discovery order.
//
// On repository failure the report is empty with QueryFailed set and the
// error wraps domain.ErrQuery.
func (d *ConflictDetector) FindConflicts(ctx context.Context, q ConflictQuery) (domain.ConflictReport, error) {
	report := domain.ConflictReport{Conflicts: []domain.Conflict{}}

	candidate := domain.Interval{Start: q.Start, End: q.End}
	if q.Start.IsZero() || q.End.IsZero() || !candidate.Valid() {
		return report, domain.NewInvalidInterval(fmt.Sprintf("start=%s end=%s",
			q.Start.Format(time.RFC3339), q.End.Format(time.RFC3339)))
	}

	participants := normalizeIDs(q.ParticipantIDs)
	if len(participants) == 0 {
		return report, nil
	}

	found, err := d.commitments.FindByParticipants(ctx, participants)
	if err != nil {
		d.logger.Error(ctx, "Commitment lookup failed", err, map[string]interface{}{
			"participants": participants,
		})
		report.QueryFailed = true
		return report, domain.NewQueryError(err)
	}

	seen := make(map[string]struct{}, len(found))
	for _, c := range found {
		if c == nil || d.excluded(c, q) {
			continue
		}
		iv, ok := c.Interval()
		if !ok || !candidate.Overlaps(iv) {
			continue
		}
		shared := c.SharedParticipants(participants)
		if len(shared) == 0 {
			continue
		}
		// one record reached through several associations is one conflict
		if _, dup := seen[c.Key()]; dup {
			continue
		}
		seen[c.Key()] = struct{}{}

		report.Conflicts = append(report.Conflicts, domain.Conflict{
			Kind:               c.Kind,
			CommitmentID:       c.ID,
			Title:              c.Title,
			StartTime:          iv.Start,
			EndTime:            iv.End,
			SharedParticipants: shared,
			Source:             c.Source,
		})
	}

	if report.HasConflicts() {
		d.logger.Info(ctx, "Schedule conflicts detected", map[string]interface{}{
			"participants": participants,
			"conflicts":    len(report.Conflicts),
		})
	}
	return report, nil
}

func (d *ConflictDetector) excluded(c *domain.Commitment, q ConflictQuery) bool {
	if q.ExcludeID == "" || c.ID != q.ExcludeID {
		return false
	}
	return q.ExcludeKind == "" || q.ExcludeKind == c.Kind
}

// normalizeIDs trims, drops empties and removes duplicates, keeping order.
func normalizeIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
