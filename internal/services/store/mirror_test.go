package store

import (
	"context"
	"errors"
	"testing"

	"ticket-pass/models"

	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func expectPut(mock redismock.ClientMock, current string, ticket *models.Ticket) {
	key := "ticket:" + ticket.ID
	mock.ExpectWatch(key)
	if current == "" {
		mock.ExpectHGet(key, "status").RedisNil()
	} else {
		mock.ExpectHGet(key, "status").SetVal(current)
	}
	mock.ExpectTxPipeline()
	mock.ExpectHSet(key, ticketHash(ticket, current != string(models.TicketUsed))...).SetVal(1)
	mock.ExpectTxPipelineExec()
}

func TestTicketMirror_SyncAllPages(t *testing.T) {
	app := newTestApp(t)
	pb := NewPocketBaseStore(app)
	for _, id := range []string{"T3", "T1", "T2"} {
		seedTicket(t, pb, &models.Ticket{ID: id, EventID: "evt_1", Price: decimal.RequireFromString("12.5")})
	}

	db, mock := redismock.NewClientMock()
	mirror := NewTicketMirror(app, NewRedisStore(db))
	mirror.pageSize = 2

	for _, id := range []string{"T1", "T2", "T3"} {
		current := ""
		if id == "T2" {
			current = "used"
		}
		expectPut(mock, current, &models.Ticket{ID: id, EventID: "evt_1", Price: decimal.RequireFromString("12.5")})
	}

	n, err := mirror.SyncAll(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTicketMirror_SyncAllStopsOnRedisError(t *testing.T) {
	app := newTestApp(t)
	seedTicket(t, NewPocketBaseStore(app), &models.Ticket{ID: "T1", EventID: "evt_1"})

	db, mock := redismock.NewClientMock()
	mirror := NewTicketMirror(app, NewRedisStore(db))

	mock.ExpectWatch("ticket:T1")
	mock.ExpectHGet("ticket:T1", "status").SetErr(errors.New("connection refused"))

	n, err := mirror.SyncAll(context.Background())

	require.Error(t, err)
	assert.Equal(t, 0, n)
}

func TestTicketMirror_HooksFollowRecordChanges(t *testing.T) {
	app := newTestApp(t)
	pb := NewPocketBaseStore(app)
	ctx := context.Background()

	db, mock := redismock.NewClientMock()
	NewTicketMirror(app, NewRedisStore(db)).Bind()

	expectPut(mock, "", &models.Ticket{ID: "T1", EventID: "evt_1"})
	seedTicket(t, pb, &models.Ticket{ID: "T1", EventID: "evt_1"})
	require.NoError(t, mock.ExpectationsWereMet())

	// redeemed through Redis already; the edit must not reactivate it
	expectPut(mock, "used", &models.Ticket{ID: "T1", EventID: "evt_2"})
	record, err := app.FindRecordById(TicketsCollection, "T1")
	require.NoError(t, err)
	record.Set("event_id", "evt_2")
	require.NoError(t, app.SaveWithContext(ctx, record))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTicketMirror_HookErrorKeepsSave(t *testing.T) {
	app := newTestApp(t)
	pb := NewPocketBaseStore(app)

	db, mock := redismock.NewClientMock()
	NewTicketMirror(app, NewRedisStore(db)).Bind()

	mock.ExpectWatch("ticket:T1")
	mock.ExpectHGet("ticket:T1", "status").SetErr(redis.ErrClosed)

	seedTicket(t, pb, &models.Ticket{ID: "T1", EventID: "evt_1"})

	ticket, err := pb.FindTicket(context.Background(), "T1")
	require.NoError(t, err)
	assert.Equal(t, "evt_1", ticket.EventID)
}
