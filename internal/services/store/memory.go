package store

import (
	"context"
	"strings"
	"sync"
	"time"

	"ticket-pass/internal/status"
	"ticket-pass/models"
	"ticket-pass/utils"
)

// MemoryStore is a process-local ledger for development runs and tests.
// It only serializes redemptions within one process.
type MemoryStore struct {
	mu      sync.Mutex
	tickets map[string]models.Ticket
	scans   []models.ScanRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tickets: make(map[string]models.Ticket)}
}

func (s *MemoryStore) PutTicket(_ context.Context, t *models.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *t
	if cp.Status == "" {
		cp.Status = models.TicketActive
	}
	s.tickets[cp.ID] = cp
	return nil
}

func (s *MemoryStore) FindTicket(_ context.Context, ticketID string) (*models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tickets[ticketID]
	if !ok {
		return nil, status.ErrTicketNotFound
	}
	return &t, nil
}

func (s *MemoryStore) MarkUsed(_ context.Context, ticketID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tickets[ticketID]
	if !ok {
		return status.ErrTicketNotFound
	}
	if t.Status != models.TicketActive {
		return status.ErrAlreadyUsed
	}

	at = at.UTC()
	t.Status = models.TicketUsed
	t.ScannedAt = &at
	s.tickets[ticketID] = t
	return nil
}

func (s *MemoryStore) RecordScan(_ context.Context, rec *models.ScanRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.scans = append(s.scans, *rec)
	return nil
}

func (s *MemoryStore) ListScans(_ context.Context, ticketID string, limit int) ([]models.ScanRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		limit = 50
	}

	var scans []models.ScanRecord
	for i := len(s.scans) - 1; i >= 0 && len(scans) < limit; i-- {
		if s.scans[i].TicketID == ticketID {
			scans = append(scans, s.scans[i])
		}
	}
	return scans, nil
}

// Scans returns every recorded attempt in append order.
func (s *MemoryStore) Scans() []models.ScanRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]models.ScanRecord(nil), s.scans...)
}

func (s *MemoryStore) Ping(context.Context) error {
	return nil
}

// CreateTicket stores a new active ticket, generating an id when empty.
func (s *MemoryStore) CreateTicket(ctx context.Context, t *models.Ticket) error {
	if t.ID == "" {
		code, err := utils.GenerateCode(6)
		if err != nil {
			return err
		}
		t.ID = strings.ToLower(code)
	}
	t.Status = models.TicketActive
	return s.PutTicket(ctx, t)
}
