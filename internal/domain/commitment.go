package domain

import (
	"time"
)

// CommitmentKind distinguishes the two commitment variants
type CommitmentKind string

const (
	CommitmentKindTask  CommitmentKind = "TASK"
	CommitmentKindEvent CommitmentKind = "EVENT"
)

// AssociationSource records how a participant is attached to a commitment
type AssociationSource string

const (
	SourceTaskOwner      AssociationSource = "TASK_OWNER"
	SourceTaskAssignee   AssociationSource = "TASK_ASSIGNEE"
	SourceEventOrganizer AssociationSource = "EVENT_ORGANIZER"
	SourceEventAttendee  AssociationSource = "EVENT_ATTENDEE"
)

// Commitment is a task or an event with a time interval and participants.
// Start and end are optional in stored data; a commitment missing either
// cannot overlap anything.
type Commitment struct {
	Kind         CommitmentKind    `json:"kind"`
	ID           string            `json:"id"`
	Title        string            `json:"title"`
	StartTime    *time.Time        `json:"start_time,omitempty"`
	EndTime      *time.Time        `json:"end_time,omitempty"`
	Participants []string          `json:"participants"`
	Source       AssociationSource `json:"source,omitempty"`
}

// Key identifies a commitment record across kinds.
func (c *Commitment) Key() string {
	return string(c.Kind) + ":" + c.ID
}

// Interval returns the commitment's interval, or false when either bound is
// missing or the bounds are inverted.
func (c *Commitment) Interval() (Interval, bool) {
	if c.StartTime == nil || c.EndTime == nil || c.StartTime.IsZero() || c.EndTime.IsZero() {
		return Interval{}, false
	}
	iv := Interval{Start: *c.StartTime, End: *c.EndTime}
	return iv, iv.Valid()
}

// SharedParticipants returns the members of ids that participate in c, in
// the order given by ids.
func (c *Commitment) SharedParticipants(ids []string) []string {
	members := make(map[string]struct{}, len(c.Participants))
	for _, p := range c.Participants {
		members[p] = struct{}{}
	}
	var shared []string
	for _, id := range ids {
		if _, ok := members[id]; ok {
			shared = append(shared, id)
			delete(members, id)
		}
	}
	return shared
}

// Interval is a half-open time range [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

// Valid reports whether the interval has positive length.
func (i Interval) Valid() bool {
	return i.End.After(i.Start)
}

// Overlaps reports whether two half-open intervals intersect. Intervals that
// only share a boundary do not overlap.
func (i Interval) Overlaps(other Interval) bool {
	return i.Start.Before(other.End) && other.Start.Before(i.End)
}

// Conflict is one existing commitment that overlaps a candidate interval
type Conflict struct {
	Kind               CommitmentKind    `json:"kind"`
	CommitmentID       string            `json:"commitment_id"`
	Title              string            `json:"title"`
	StartTime          time.Time         `json:"start_time"`
	EndTime            time.Time         `json:"end_time"`
	SharedParticipants []string          `json:"shared_participants"`
	Source             AssociationSource `json:"source,omitempty"`
}

// ConflictReport lists conflicts in discovery order. QueryFailed is set when
// the lookup failed; an empty list is then not evidence of "no conflicts".
type ConflictReport struct {
	Conflicts   []Conflict `json:"conflicts"`
	QueryFailed bool       `json:"query_failed"`
}

// HasConflicts reports whether any conflict was found.
func (r ConflictReport) HasConflicts() bool {
	return len(r.Conflicts) > 0
}
