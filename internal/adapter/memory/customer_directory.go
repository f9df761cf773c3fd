package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/complydesk/backoffice/internal/domain"
	"github.com/complydesk/backoffice/internal/ports"
)

// CustomerDirectory keeps compliance records in memory
type CustomerDirectory struct {
	mu      sync.RWMutex
	records map[string]*domain.ComplianceRecord
}

// NewCustomerDirectory creates an empty directory
func NewCustomerDirectory() *CustomerDirectory {
	return &CustomerDirectory{records: make(map[string]*domain.ComplianceRecord)}
}

// Put stores or replaces a client's record
func (d *CustomerDirectory) Put(record domain.ComplianceRecord) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.records[record.ClientID] = copyRecord(&record)
}

func (d *CustomerDirectory) GetComplianceRecord(ctx context.Context, clientID string) (*domain.ComplianceRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	record, ok := d.records[clientID]
	if !ok {
		return nil, ports.ErrClientNotFound
	}
	return copyRecord(record), nil
}

func (d *CustomerDirectory) ListComplianceRecords(ctx context.Context) ([]*domain.ComplianceRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]*domain.ComplianceRecord, 0, len(d.records))
	for _, record := range d.records {
		out = append(out, copyRecord(record))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClientID < out[j].ClientID })
	return out, nil
}

func copyRecord(r *domain.ComplianceRecord) *domain.ComplianceRecord {
	c := *r
	if r.RegistrationDate != nil {
		reg := *r.RegistrationDate
		c.RegistrationDate = &reg
	}
	c.LastFiled = make(map[domain.ObligationType]time.Time, len(r.LastFiled))
	for k, v := range r.LastFiled {
		c.LastFiled[k] = v
	}
	return &c
}
