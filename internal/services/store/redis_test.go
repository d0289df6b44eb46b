package store

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"ticket-pass/internal/status"
	"ticket-pass/models"

	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisStore_FindTicket(t *testing.T) {
	db, mock := redismock.NewClientMock()
	s := NewRedisStore(db)
	ctx := context.Background()

	mock.ExpectHGetAll("ticket:T2").SetVal(map[string]string{
		"event_id":       "evt_1",
		"status":         "active",
		"price":          "25.50",
		"wallet_address": "0xABC",
		"token_id":       "7",
		"token_standard": "erc1155",
	})

	ticket, err := s.FindTicket(ctx, "T2")
	require.NoError(t, err)

	assert.Equal(t, "T2", ticket.ID)
	assert.Equal(t, models.TicketActive, ticket.Status)
	assert.True(t, decimal.RequireFromString("25.5").Equal(ticket.Price))
	require.NotNil(t, ticket.Binding)
	assert.Equal(t, models.StandardBalance, ticket.Binding.Standard)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStore_FindTicketMissing(t *testing.T) {
	db, mock := redismock.NewClientMock()
	s := NewRedisStore(db)

	mock.ExpectHGetAll("ticket:nope").SetVal(map[string]string{})

	_, err := s.FindTicket(context.Background(), "nope")
	assert.ErrorIs(t, err, status.ErrTicketNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStore_MarkUsed(t *testing.T) {
	db, mock := redismock.NewClientMock()
	s := NewRedisStore(db)
	at := time.Date(2025, 6, 1, 18, 30, 0, 0, time.UTC)

	mock.ExpectWatch("ticket:T1")
	mock.ExpectHGet("ticket:T1", "status").SetVal("active")
	mock.ExpectTxPipeline()
	mock.ExpectHSet("ticket:T1", "status", "used", "scanned_at", at.Format(time.RFC3339Nano)).SetVal(2)
	mock.ExpectTxPipelineExec()

	err := s.MarkUsed(context.Background(), "T1", at)

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStore_MarkUsedRejects(t *testing.T) {
	tests := []struct {
		name   string
		expect func(mock redismock.ClientMock)
		err    error
	}{
		{
			name: "already used",
			expect: func(mock redismock.ClientMock) {
				mock.ExpectHGet("ticket:T1", "status").SetVal("used")
			},
			err: status.ErrAlreadyUsed,
		},
		{
			name: "missing",
			expect: func(mock redismock.ClientMock) {
				mock.ExpectHGet("ticket:T1", "status").RedisNil()
			},
			err: status.ErrTicketNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := redismock.NewClientMock()
			s := NewRedisStore(db)

			mock.ExpectWatch("ticket:T1")
			tt.expect(mock)

			err := s.MarkUsed(context.Background(), "T1", time.Now())

			assert.ErrorIs(t, err, tt.err)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func expectContendedRedeem(mock redismock.ClientMock, at time.Time) {
	mock.ExpectWatch("ticket:T1")
	mock.ExpectHGet("ticket:T1", "status").SetVal("active")
	mock.ExpectTxPipeline()
	mock.ExpectHSet("ticket:T1", "status", "used", "scanned_at", at.Format(time.RFC3339Nano)).SetVal(2)
	mock.ExpectTxPipelineExec().SetErr(redis.TxFailedErr)
}

func TestRedisStore_MarkUsedLostRace(t *testing.T) {
	db, mock := redismock.NewClientMock()
	s := NewRedisStore(db)
	at := time.Date(2025, 6, 1, 18, 30, 0, 0, time.UTC)

	// another gate redeemed between our read and EXEC
	expectContendedRedeem(mock, at)
	mock.ExpectWatch("ticket:T1")
	mock.ExpectHGet("ticket:T1", "status").SetVal("used")

	err := s.MarkUsed(context.Background(), "T1", at)

	assert.ErrorIs(t, err, status.ErrAlreadyUsed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStore_MarkUsedContendedButActive(t *testing.T) {
	db, mock := redismock.NewClientMock()
	s := NewRedisStore(db)
	at := time.Date(2025, 6, 1, 18, 30, 0, 0, time.UTC)

	for i := 0; i < casRetries; i++ {
		expectContendedRedeem(mock, at)
	}
	mock.ExpectHGet("ticket:T1", "status").SetVal("active")

	err := s.MarkUsed(context.Background(), "T1", at)

	require.Error(t, err)
	assert.NotErrorIs(t, err, status.ErrAlreadyUsed)
	assert.ErrorIs(t, err, redis.TxFailedErr)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStore_MarkUsedContendedThenUsed(t *testing.T) {
	db, mock := redismock.NewClientMock()
	s := NewRedisStore(db)
	at := time.Date(2025, 6, 1, 18, 30, 0, 0, time.UTC)

	for i := 0; i < casRetries; i++ {
		expectContendedRedeem(mock, at)
	}
	mock.ExpectHGet("ticket:T1", "status").SetVal("used")

	err := s.MarkUsed(context.Background(), "T1", at)

	assert.ErrorIs(t, err, status.ErrAlreadyUsed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStore_MarkUsedInfraError(t *testing.T) {
	db, mock := redismock.NewClientMock()
	s := NewRedisStore(db)

	mock.ExpectWatch("ticket:T1")
	mock.ExpectHGet("ticket:T1", "status").SetErr(errors.New("connection reset"))

	err := s.MarkUsed(context.Background(), "T1", time.Now())

	require.Error(t, err)
	assert.NotErrorIs(t, err, status.ErrAlreadyUsed)
	assert.NotErrorIs(t, err, status.ErrTicketNotFound)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestRedisStore_RecordScan(t *testing.T) {
	db, mock := redismock.NewClientMock()
	s := NewRedisStore(db)

	rec := &models.ScanRecord{
		AttemptID: "scan_a",
		TicketID:  "T1",
		Outcome:   status.OutcomeAccepted,
		ScannedAt: time.Date(2025, 6, 1, 18, 0, 0, 0, time.UTC),
	}
	data, err := json.Marshal(rec)
	require.NoError(t, err)

	mock.ExpectTxPipeline()
	mock.ExpectRPush("scan:records:T1", data).SetVal(1)
	mock.ExpectRPush("scan:records", data).SetVal(1)
	mock.ExpectTxPipelineExec()

	assert.NoError(t, s.RecordScan(context.Background(), rec))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStore_RecordScanWithoutTicket(t *testing.T) {
	db, mock := redismock.NewClientMock()
	s := NewRedisStore(db)

	rec := &models.ScanRecord{AttemptID: "scan_b", Outcome: status.OutcomeMalformed}
	data, err := json.Marshal(rec)
	require.NoError(t, err)

	mock.ExpectTxPipeline()
	mock.ExpectRPush("scan:records:-", data).SetVal(1)
	mock.ExpectRPush("scan:records", data).SetVal(1)
	mock.ExpectTxPipelineExec()

	assert.NoError(t, s.RecordScan(context.Background(), rec))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStore_RecordScanClipsForgedTicketID(t *testing.T) {
	db, mock := redismock.NewClientMock()
	s := NewRedisStore(db)

	forged := strings.Repeat("x", 3000)
	rec := &models.ScanRecord{AttemptID: "scan_c", TicketID: forged, Outcome: status.OutcomeBadSignature}
	data, err := json.Marshal(rec)
	require.NoError(t, err)

	mock.ExpectTxPipeline()
	mock.ExpectRPush("scan:records:"+forged[:256], data).SetVal(1)
	mock.ExpectRPush("scan:records", data).SetVal(1)
	mock.ExpectTxPipelineExec()

	assert.NoError(t, s.RecordScan(context.Background(), rec))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStore_ListScansNewestFirst(t *testing.T) {
	db, mock := redismock.NewClientMock()
	s := NewRedisStore(db)

	older, _ := json.Marshal(models.ScanRecord{AttemptID: "scan_a", TicketID: "T1", Outcome: status.OutcomeAccepted})
	newer, _ := json.Marshal(models.ScanRecord{AttemptID: "scan_b", TicketID: "T1", Outcome: status.OutcomeDuplicate})
	mock.ExpectLRange("scan:records:T1", -20, -1).SetVal([]string{string(older), string(newer)})

	scans, err := s.ListScans(context.Background(), "T1", 20)

	require.NoError(t, err)
	require.Len(t, scans, 2)
	assert.Equal(t, "scan_b", scans[0].AttemptID)
	assert.Equal(t, status.OutcomeDuplicate, scans[0].Outcome)
	assert.Equal(t, "scan_a", scans[1].AttemptID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStore_PutTicketKeepsUsedStatus(t *testing.T) {
	db, mock := redismock.NewClientMock()
	s := NewRedisStore(db)

	ticket := &models.Ticket{ID: "T1", EventID: "evt_1", Status: models.TicketActive, Price: decimal.NewFromInt(10)}

	mock.ExpectWatch("ticket:T1")
	mock.ExpectHGet("ticket:T1", "status").SetVal("used")
	mock.ExpectTxPipeline()
	mock.ExpectHSet("ticket:T1", ticketHash(ticket, false)...).SetVal(0)
	mock.ExpectTxPipelineExec()

	assert.NoError(t, s.PutTicket(context.Background(), ticket))
	assert.NoError(t, mock.ExpectationsWereMet())
	assert.NotContains(t, ticketHash(ticket, false), "status")
}

func TestRedisStore_PutTicketNew(t *testing.T) {
	db, mock := redismock.NewClientMock()
	s := NewRedisStore(db)

	ticket := &models.Ticket{ID: "T1", EventID: "evt_1"}

	mock.ExpectWatch("ticket:T1")
	mock.ExpectHGet("ticket:T1", "status").SetErr(redis.Nil)
	mock.ExpectTxPipeline()
	mock.ExpectHSet("ticket:T1", ticketHash(ticket, true)...).SetVal(5)
	mock.ExpectTxPipelineExec()

	assert.NoError(t, s.PutTicket(context.Background(), ticket))
	assert.NoError(t, mock.ExpectationsWereMet())
	assert.Contains(t, ticketHash(ticket, true), "active")
}
