package services

import (
	"context"
	"time"

	"ticket-pass/models"
)

type TicketStore interface {
	FindTicket(ctx context.Context, ticketID string) (*models.Ticket, error)
}

// RedemptionLedger is the authority on whether a ticket has been used.
// MarkUsed must be an atomic active->used transition at the storage level and
// returns nil, status.ErrAlreadyUsed or status.ErrTicketNotFound for the
// expected cases.
type RedemptionLedger interface {
	MarkUsed(ctx context.Context, ticketID string, at time.Time) error
	RecordScan(ctx context.Context, rec *models.ScanRecord) error
}

type ScanHistory interface {
	ListScans(ctx context.Context, ticketID string, limit int) ([]models.ScanRecord, error)
}

// Ledger is everything a backend provides to the scan and admin paths.
type Ledger interface {
	TicketStore
	RedemptionLedger
	ScanHistory
	Ping(ctx context.Context) error
}

type OwnershipOracle interface {
	OwnsToken(ctx context.Context, wallet, tokenID string, std models.TokenStandard) (bool, error)
}

type ScanNotifier interface {
	PublishScan(ctx context.Context, ev models.ScanEvent) error
}

// ScanObserver receives timing and outcome measurements.
type ScanObserver interface {
	ObserveScan(outcome string, elapsed time.Duration)
	ObserveOracle(result string, elapsed time.Duration)
	ObserveIssue(result string)
}
