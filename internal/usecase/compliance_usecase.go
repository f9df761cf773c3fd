package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/complydesk/backoffice/internal/domain"
	"github.com/complydesk/backoffice/internal/logger"
	"github.com/complydesk/backoffice/internal/ports"
)

// ObligationStatus is the classified state of one filing obligation
type ObligationStatus struct {
	Obligation    domain.ObligationType `json:"obligation"`
	LastFiledDate *time.Time            `json:"last_filed_date,omitempty"`
	NextDueDate   *time.Time            `json:"next_due_date,omitempty"`
	Status        domain.FilingStatus   `json:"status"`
}

// ClientStatus is the per-client compliance view
type ClientStatus struct {
	ClientID         string             `json:"client_id"`
	ClientName       string             `json:"client_name"`
	RegistrationDate *time.Time         `json:"registration_date,omitempty"`
	ReferenceDate    time.Time          `json:"reference_date"`
	Obligations      []ObligationStatus `json:"obligations"`
}

// DashboardSummary aggregates statuses across all clients
type DashboardSummary struct {
	ReferenceDate time.Time                                     `json:"reference_date"`
	Clients       int                                           `json:"clients"`
	Counts        domain.StatusCounts                           `json:"counts"`
	ByObligation  map[domain.ObligationType]domain.StatusCounts `json:"by_obligation"`
}

// ComplianceUseCase serves filing statuses for rows and dashboards. Both
// paths classify through the same domain.Classifier.
type ComplianceUseCase struct {
	directory  ports.CustomerDirectory
	classifier domain.Classifier
	logger     logger.Logger
}

// NewComplianceUseCase creates a new compliance use case
func NewComplianceUseCase(directory ports.CustomerDirectory, classifier domain.Classifier, log logger.Logger) *ComplianceUseCase {
	if log == nil {
		log = logger.Nop()
	}
	return &ComplianceUseCase{
		directory:  directory,
		classifier: classifier,
		logger:     log,
	}
}

// ClientStatus classifies every obligation of one client as of referenceDate
func (uc *ComplianceUseCase) ClientStatus(ctx context.Context, clientID string, referenceDate time.Time) (*ClientStatus, error) {
	record, err := uc.directory.GetComplianceRecord(ctx, clientID)
	if err != nil {
		if errors.Is(err, ports.ErrClientNotFound) {
			return nil, domain.NewClientNotFound(clientID)
		}
		uc.logger.Error(ctx, "Compliance record lookup failed", err, map[string]interface{}{
			"client_id": clientID,
		})
		return nil, domain.NewDirectoryError(clientID, err)
	}
	if record == nil {
		return nil, domain.NewClientNotFound(clientID)
	}

	status := &ClientStatus{
		ClientID:         record.ClientID,
		ClientName:       record.ClientName,
		RegistrationDate: record.RegistrationDate,
		ReferenceDate:    referenceDate,
		Obligations:      make([]ObligationStatus, 0, len(domain.ObligationTypes)),
	}
	for _, obligation := range domain.ObligationTypes {
		item := ObligationStatus{
			Obligation:    obligation,
			LastFiledDate: record.LastFiledDate(obligation),
			Status:        uc.classifier.ClassifyRecord(record, obligation, referenceDate),
		}
		if record.RegistrationDate != nil && !referenceDate.IsZero() {
			due := domain.DueDate(*record.RegistrationDate, referenceDate)
			item.NextDueDate = &due
		}
		status.Obligations = append(status.Obligations, item)
	}
	return status, nil
}

// Dashboard tallies statuses across all clients as of referenceDate
func (uc *ComplianceUseCase) Dashboard(ctx context.Context, referenceDate time.Time) (*DashboardSummary, error) {
	start := time.Now()
	records, err := uc.directory.ListComplianceRecords(ctx)
	if err != nil {
		uc.logger.Error(ctx, "Compliance record listing failed", err, nil)
		return nil, domain.NewDirectoryError("*", err)
	}

	summary := &DashboardSummary{
		ReferenceDate: referenceDate,
		Clients:       len(records),
		Counts:        uc.classifier.Tally(records, domain.ObligationTypes, referenceDate),
		ByObligation:  make(map[domain.ObligationType]domain.StatusCounts, len(domain.ObligationTypes)),
	}
	for _, obligation := range domain.ObligationTypes {
		summary.ByObligation[obligation] = uc.classifier.Tally(records, []domain.ObligationType{obligation}, referenceDate)
	}

	logger.LogPerformance(ctx, uc.logger, "compliance_dashboard", time.Since(start), map[string]interface{}{
		"clients": len(records),
	})
	return summary, nil
}
