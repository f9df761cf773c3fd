package domain

import (
	"strings"
	"time"
)

// FilingStatus represents the derived state of a client's filing obligation
type FilingStatus string

const (
	FilingStatusFiled   FilingStatus = "FILED"
	FilingStatusOnTime  FilingStatus = "ON_TIME"
	FilingStatusDueSoon FilingStatus = "DUE_SOON"
	FilingStatusOverdue FilingStatus = "OVERDUE"
	FilingStatusUnknown FilingStatus = "UNKNOWN"
)

// FilingStatuses lists every status in display order.
var FilingStatuses = []FilingStatus{
	FilingStatusFiled,
	FilingStatusOnTime,
	FilingStatusDueSoon,
	FilingStatusOverdue,
	FilingStatusUnknown,
}

// ObligationType represents a recurring annual filing a client owes
type ObligationType string

const (
	ObligationAnnualReturn        ObligationType = "ANNUAL_RETURN"
	ObligationTaxReturn           ObligationType = "TAX_RETURN"
	ObligationFinancialStatements ObligationType = "FINANCIAL_STATEMENTS"
)

// ObligationTypes lists the obligations tracked for every client.
var ObligationTypes = []ObligationType{
	ObligationAnnualReturn,
	ObligationTaxReturn,
	ObligationFinancialStatements,
}

const (
	// FiledWindow is the 365.25-day year a filing keeps an obligation satisfied.
	FiledWindow = time.Duration(36525) * 24 * time.Hour / 100

	// DefaultDueSoonDays is how close a due date has to be to count as due soon.
	DefaultDueSoonDays = 30

	dateLayout = "2006-01-02"
)

// ComplianceRecord is the read-only view of a client's filing history
type ComplianceRecord struct {
	ClientID         string                       `json:"client_id"`
	ClientName       string                       `json:"client_name"`
	RegistrationDate *time.Time                   `json:"registration_date,omitempty"`
	LastFiled        map[ObligationType]time.Time `json:"last_filed,omitempty"`
}

// LastFiledDate returns the last filing date for an obligation, or nil if
// the client never filed it.
func (r *ComplianceRecord) LastFiledDate(obligation ObligationType) *time.Time {
	if r == nil || r.LastFiled == nil {
		return nil
	}
	d, ok := r.LastFiled[obligation]
	if !ok || d.IsZero() {
		return nil
	}
	return &d
}

// Classifier derives filing statuses. The zero value uses DefaultDueSoonDays.
//
// Every status shown to a user, per row or aggregated, must come from here.
type Classifier struct {
	DueSoonDays int
}

var defaultClassifier = Classifier{DueSoonDays: DefaultDueSoonDays}

// Classify runs the default classifier.
func Classify(registrationDate, lastFiledDate *time.Time, referenceDate time.Time) FilingStatus {
	return defaultClassifier.Classify(registrationDate, lastFiledDate, referenceDate)
}

// Classify returns the filing status of one obligation as of referenceDate.
// Missing dates yield FilingStatusUnknown; it never panics.
func (c Classifier) Classify(registrationDate, lastFiledDate *time.Time, referenceDate time.Time) FilingStatus {
	if registrationDate == nil || registrationDate.IsZero() || referenceDate.IsZero() {
		return FilingStatusUnknown
	}
	ref := civilDate(referenceDate)

	if lastFiledDate != nil && !lastFiledDate.IsZero() {
		if ref.Sub(civilDate(*lastFiledDate)) <= FiledWindow {
			return FilingStatusFiled
		}
	}

	days := daysBetween(ref, cycleDueDate(*registrationDate, ref))
	switch {
	case days < 0:
		return FilingStatusOverdue
	case days <= c.dueSoonDays():
		return FilingStatusDueSoon
	default:
		return FilingStatusOnTime
	}
}

// ClassifyRecord classifies one obligation of a record.
func (c Classifier) ClassifyRecord(record *ComplianceRecord, obligation ObligationType, referenceDate time.Time) FilingStatus {
	if record == nil {
		return FilingStatusUnknown
	}
	return c.Classify(record.RegistrationDate, record.LastFiledDate(obligation), referenceDate)
}

// StatusCounts is a per-status tally for dashboards.
type StatusCounts map[FilingStatus]int

// Total returns the number of classified obligations.
func (s StatusCounts) Total() int {
	total := 0
	for _, n := range s {
		total += n
	}
	return total
}

// Tally classifies every record for the given obligations and counts the
// results. Every status appears in the result, zero or not.
func (c Classifier) Tally(records []*ComplianceRecord, obligations []ObligationType, referenceDate time.Time) StatusCounts {
	counts := make(StatusCounts, len(FilingStatuses))
	for _, s := range FilingStatuses {
		counts[s] = 0
	}
	for _, record := range records {
		for _, obligation := range obligations {
			counts[c.ClassifyRecord(record, obligation, referenceDate)]++
		}
	}
	return counts
}

func (c Classifier) dueSoonDays() int {
	if c.DueSoonDays <= 0 {
		return DefaultDueSoonDays
	}
	return c.DueSoonDays
}

// DueDate is the next occurrence of the registration anniversary on or after
// referenceDate.
func DueDate(registrationDate, referenceDate time.Time) time.Time {
	ref := civilDate(referenceDate)
	due := anniversary(registrationDate, ref.Year())
	if due.Before(ref) {
		due = anniversary(registrationDate, ref.Year()+1)
	}
	return due
}

// cycleDueDate is the anniversary falling in the reference year. The
// registration day itself is not a due date, so for the registration year
// (or earlier) the first anniversary after registration is used.
func cycleDueDate(registrationDate, ref time.Time) time.Time {
	reg := civilDate(registrationDate)
	due := anniversary(reg, ref.Year())
	if !due.After(reg) {
		due = anniversary(reg, reg.Year()+1)
	}
	return due
}

// anniversary places month/day of d in year. February 29 falls back to
// February 28 in common years.
func anniversary(d time.Time, year int) time.Time {
	month, day := d.Month(), d.Day()
	if month == time.February && day == 29 && !isLeapYear(year) {
		day = 28
	}
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func isLeapYear(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}

func civilDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func daysBetween(from, to time.Time) int {
	return int(to.Sub(from).Hours() / 24)
}

// ParseDate parses a stored calendar date. Anything it cannot read becomes
// nil, which classifies as unknown.
func ParseDate(value string) *time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	for _, layout := range []string{dateLayout, time.RFC3339, time.RFC3339Nano} {
		if t, err := time.Parse(layout, value); err == nil {
			d := civilDate(t)
			return &d
		}
	}
	return nil
}

// FormatDate renders a calendar date the way ParseDate reads it.
func FormatDate(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.Format(dateLayout)
}
