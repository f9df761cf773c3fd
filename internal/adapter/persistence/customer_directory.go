package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/complydesk/backoffice/internal/domain"
	"github.com/complydesk/backoffice/internal/ports"
)

// SQLCustomerDirectory reads client registration and filing dates.
// Stored dates are parsed at this boundary; unreadable values become nil.
type SQLCustomerDirectory struct {
	db *sql.DB
}

// NewCustomerDirectory creates a new SQL customer directory
func NewCustomerDirectory(store *Store) *SQLCustomerDirectory {
	return &SQLCustomerDirectory{db: store.DB}
}

// GetComplianceRecord loads one client and its filing history
func (d *SQLCustomerDirectory) GetComplianceRecord(ctx context.Context, clientID string) (*domain.ComplianceRecord, error) {
	var record domain.ComplianceRecord
	var registration sql.NullString

	err := d.db.QueryRowContext(ctx,
		`SELECT id, name, registration_date FROM clients WHERE id = $1`, clientID,
	).Scan(&record.ClientID, &record.ClientName, &registration)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ports.ErrClientNotFound
		}
		return nil, fmt.Errorf("failed to find client: %w", err)
	}
	record.RegistrationDate = parseNullDate(registration)
	record.LastFiled = map[domain.ObligationType]time.Time{}

	rows, err := d.db.QueryContext(ctx,
		`SELECT client_id, obligation, last_filed_date FROM compliance_filings WHERE client_id = $1`, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to query filings: %w", err)
	}
	defer rows.Close()

	if err := scanFilings(rows, func(string) *domain.ComplianceRecord { return &record }); err != nil {
		return nil, err
	}
	return &record, nil
}

// ListComplianceRecords loads every client ordered by id
func (d *SQLCustomerDirectory) ListComplianceRecords(ctx context.Context) ([]*domain.ComplianceRecord, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT id, name, registration_date FROM clients ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}

	var records []*domain.ComplianceRecord
	byID := map[string]*domain.ComplianceRecord{}
	for rows.Next() {
		var record domain.ComplianceRecord
		var registration sql.NullString
		if err := rows.Scan(&record.ClientID, &record.ClientName, &registration); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan client: %w", err)
		}
		record.RegistrationDate = parseNullDate(registration)
		record.LastFiled = map[domain.ObligationType]time.Time{}
		records = append(records, &record)
		byID[record.ClientID] = &record
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to iterate clients: %w", err)
	}

	filings, err := d.db.QueryContext(ctx, `SELECT client_id, obligation, last_filed_date FROM compliance_filings`)
	if err != nil {
		return nil, fmt.Errorf("failed to query filings: %w", err)
	}
	defer filings.Close()

	if err := scanFilings(filings, func(id string) *domain.ComplianceRecord { return byID[id] }); err != nil {
		return nil, err
	}
	return records, nil
}

func scanFilings(rows *sql.Rows, lookup func(clientID string) *domain.ComplianceRecord) error {
	for rows.Next() {
		var clientID, obligation string
		var filed sql.NullString
		if err := rows.Scan(&clientID, &obligation, &filed); err != nil {
			return fmt.Errorf("failed to scan filing: %w", err)
		}
		record := lookup(clientID)
		date := parseNullDate(filed)
		if record == nil || date == nil {
			continue
		}
		record.LastFiled[domain.ObligationType(obligation)] = *date
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate filings: %w", err)
	}
	return nil
}

func parseNullDate(v sql.NullString) *time.Time {
	if !v.Valid {
		return nil
	}
	return domain.ParseDate(v.String)
}
