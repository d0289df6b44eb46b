package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ticket-pass/internal/status"
	"ticket-pass/models"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/types"
	"github.com/shopspring/decimal"
)

const (
	TicketsCollection     = "tickets"
	ScanRecordsCollection = "scan_records"

	maxTicketIDLength = 256
)

var ErrAppendOnly = errors.New("store: scan records are append-only")

// PocketBaseStore keeps tickets and scan records in the PocketBase database.
// Redemption is a conditional UPDATE, so concurrent scanners in separate
// processes sharing the database still redeem a ticket at most once.
type PocketBaseStore struct {
	app core.App
}

func NewPocketBaseStore(app core.App) *PocketBaseStore {
	return &PocketBaseStore{app: app}
}

func (s *PocketBaseStore) FindTicket(ctx context.Context, ticketID string) (*models.Ticket, error) {
	record := &core.Record{}
	err := s.app.RecordQuery(TicketsCollection).
		WithContext(ctx).
		AndWhere(dbx.HashExp{"id": ticketID}).
		Limit(1).
		One(record)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, status.ErrTicketNotFound
		}
		return nil, fmt.Errorf("find ticket %s: %w", ticketID, err)
	}

	return ticketFromRecord(record), nil
}

func (s *PocketBaseStore) MarkUsed(ctx context.Context, ticketID string, at time.Time) error {
	scannedAt, err := types.ParseDateTime(at.UTC())
	if err != nil {
		return fmt.Errorf("mark used %s: %w", ticketID, err)
	}

	res, err := s.app.DB().NewQuery(
		"UPDATE {{tickets}} SET [[status]] = {:used}, [[scanned_at]] = {:at}, [[updated]] = {:at} " +
			"WHERE [[id]] = {:id} AND [[status]] = {:active}",
	).WithContext(ctx).Bind(dbx.Params{
		"used":   string(models.TicketUsed),
		"active": string(models.TicketActive),
		"at":     scannedAt.String(),
		"id":     ticketID,
	}).Execute()
	if err != nil {
		return fmt.Errorf("mark used %s: %w", ticketID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark used %s: rows affected: %w", ticketID, err)
	}
	if affected == 1 {
		return nil
	}

	// Lost the compare-and-set: tell a missing ticket apart from a redeemed one.
	if _, err := s.FindTicket(ctx, ticketID); err != nil {
		return err
	}
	return status.ErrAlreadyUsed
}

func (s *PocketBaseStore) RecordScan(ctx context.Context, rec *models.ScanRecord) error {
	collection, err := s.app.FindCachedCollectionByNameOrId(ScanRecordsCollection)
	if err != nil {
		return fmt.Errorf("record scan: %w", err)
	}

	record := core.NewRecord(collection)
	record.Set("attempt_id", rec.AttemptID)
	record.Set("ticket_id", clip(rec.TicketID, maxTicketIDLength))
	record.Set("outcome", string(rec.Outcome))
	record.Set("claimed_epoch", rec.ClaimedEpoch)
	record.Set("server_epoch", rec.ServerEpoch)
	record.Set("gate_id", clip(rec.GateID, 64))
	record.Set("detail", clip(rec.Detail, 512))
	record.Set("scanned_at", rec.ScannedAt.UTC())

	if err := s.app.SaveWithContext(ctx, record); err != nil {
		return fmt.Errorf("record scan %s: %w", rec.AttemptID, err)
	}
	return nil
}

// ListScans returns the newest scan records for a ticket first.
func (s *PocketBaseStore) ListScans(ctx context.Context, ticketID string, limit int) ([]models.ScanRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	records := []*core.Record{}
	err := s.app.RecordQuery(ScanRecordsCollection).
		WithContext(ctx).
		AndWhere(dbx.HashExp{"ticket_id": ticketID}).
		OrderBy("scanned_at DESC", "rowid DESC").
		Limit(int64(limit)).
		All(&records)
	if err != nil {
		return nil, fmt.Errorf("list scans %s: %w", ticketID, err)
	}

	scans := make([]models.ScanRecord, 0, len(records))
	for _, r := range records {
		scans = append(scans, models.ScanRecord{
			AttemptID:    r.GetString("attempt_id"),
			TicketID:     r.GetString("ticket_id"),
			Outcome:      status.Outcome(r.GetString("outcome")),
			ClaimedEpoch: int64(r.GetInt("claimed_epoch")),
			ServerEpoch:  int64(r.GetInt("server_epoch")),
			GateID:       r.GetString("gate_id"),
			Detail:       r.GetString("detail"),
			ScannedAt:    r.GetDateTime("scanned_at").Time(),
		})
	}
	return scans, nil
}

// CreateTicket inserts an active ticket; fulfillment normally owns this.
func (s *PocketBaseStore) CreateTicket(ctx context.Context, t *models.Ticket) error {
	collection, err := s.app.FindCachedCollectionByNameOrId(TicketsCollection)
	if err != nil {
		return fmt.Errorf("create ticket: %w", err)
	}

	record := core.NewRecord(collection)
	if t.ID != "" {
		record.Id = t.ID
	}
	applyTicket(record, t)

	if err := s.app.SaveWithContext(ctx, record); err != nil {
		return fmt.Errorf("create ticket: %w", err)
	}

	t.ID = record.Id
	return nil
}

func (s *PocketBaseStore) Ping(ctx context.Context) error {
	var n int
	return s.app.DB().NewQuery("SELECT 1").WithContext(ctx).Row(&n)
}

// BindAppendOnly rejects every update or delete of a scan record, including
// those made from the dashboard.
func BindAppendOnly(app core.App) {
	app.OnRecordUpdate(ScanRecordsCollection).BindFunc(func(e *core.RecordEvent) error {
		return ErrAppendOnly
	})
	app.OnRecordDelete(ScanRecordsCollection).BindFunc(func(e *core.RecordEvent) error {
		return ErrAppendOnly
	})
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func applyTicket(record *core.Record, t *models.Ticket) {
	if t.Status == "" {
		t.Status = models.TicketActive
	}

	record.Set("event_id", t.EventID)
	record.Set("order_id", t.OrderID)
	record.Set("owner_email", t.OwnerEmail)
	record.Set("status", string(t.Status))
	record.Set("price", t.Price.String())
	if t.Binding != nil {
		record.Set("wallet_address", t.Binding.WalletAddress)
		record.Set("token_id", t.Binding.TokenID)
		record.Set("token_standard", string(t.Binding.Standard))
	}
}

func ticketFromRecord(r *core.Record) *models.Ticket {
	price, _ := decimal.NewFromString(r.GetString("price"))

	t := &models.Ticket{
		ID:         r.Id,
		EventID:    r.GetString("event_id"),
		OrderID:    r.GetString("order_id"),
		OwnerEmail: r.GetString("owner_email"),
		Status:     models.TicketStatus(r.GetString("status")),
		Price:      price,
	}

	if wallet := r.GetString("wallet_address"); wallet != "" {
		std, _ := models.ParseTokenStandard(r.GetString("token_standard"))
		t.Binding = &models.ChainBinding{
			WalletAddress: wallet,
			TokenID:       r.GetString("token_id"),
			Standard:      std,
		}
	}

	if scanned := r.GetDateTime("scanned_at"); !scanned.IsZero() {
		ts := scanned.Time()
		t.ScannedAt = &ts
	}

	return t
}
