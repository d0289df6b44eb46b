package store

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"ticket-pass/internal/status"
	"ticket-pass/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_Redemption(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.PutTicket(ctx, &models.Ticket{ID: "T1"}))

	ticket, err := s.FindTicket(ctx, "T1")
	require.NoError(t, err)
	assert.Equal(t, models.TicketActive, ticket.Status)

	require.NoError(t, s.MarkUsed(ctx, "T1", time.Now()))
	assert.ErrorIs(t, s.MarkUsed(ctx, "T1", time.Now()), status.ErrAlreadyUsed)
	assert.ErrorIs(t, s.MarkUsed(ctx, "T9", time.Now()), status.ErrTicketNotFound)

	// callers get copies
	ticket.Status = models.TicketActive
	again, err := s.FindTicket(ctx, "T1")
	require.NoError(t, err)
	assert.True(t, again.IsUsed())
}

func TestMemoryStore_ConcurrentRedemption(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.PutTicket(context.Background(), &models.Ticket{ID: "T1"}))

	var wg sync.WaitGroup
	var redeemed atomic.Int32
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.MarkUsed(context.Background(), "T1", time.Now()) == nil {
				redeemed.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), redeemed.Load())
}

func TestMemoryStore_ListScans(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	for _, rec := range []models.ScanRecord{
		{AttemptID: "a", TicketID: "T1", Outcome: status.OutcomeAccepted},
		{AttemptID: "b", TicketID: "T2", Outcome: status.OutcomeExpired},
		{AttemptID: "c", TicketID: "T1", Outcome: status.OutcomeDuplicate},
	} {
		require.NoError(t, s.RecordScan(ctx, &rec))
	}

	scans, err := s.ListScans(ctx, "T1", 0)
	require.NoError(t, err)
	require.Len(t, scans, 2)
	assert.Equal(t, "c", scans[0].AttemptID)
	assert.Equal(t, "a", scans[1].AttemptID)
	assert.Len(t, s.Scans(), 3)
}
