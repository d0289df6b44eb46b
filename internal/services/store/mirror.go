package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pocketbase/pocketbase/core"
)

const mirrorPageSize = 500

// TicketMirror copies PocketBase ticket rows into the Redis ledger so the
// Redis backend sees tickets created through fulfillment or the admin UI.
type TicketMirror struct {
	app      core.App
	redis    *RedisStore
	pageSize int
}

func NewTicketMirror(app core.App, redisStore *RedisStore) *TicketMirror {
	return &TicketMirror{app: app, redis: redisStore, pageSize: mirrorPageSize}
}

// SyncAll copies every ticket row and returns how many were written.
func (m *TicketMirror) SyncAll(ctx context.Context) (int, error) {
	synced := 0
	for offset := 0; ; offset += m.pageSize {
		records := []*core.Record{}
		err := m.app.RecordQuery(TicketsCollection).
			WithContext(ctx).
			OrderBy("id ASC").
			Limit(int64(m.pageSize)).
			Offset(int64(offset)).
			All(&records)
		if err != nil {
			return synced, fmt.Errorf("mirror tickets: %w", err)
		}

		for _, r := range records {
			if err := m.redis.PutTicket(ctx, ticketFromRecord(r)); err != nil {
				return synced, err
			}
			synced++
		}

		if len(records) < m.pageSize {
			return synced, nil
		}
	}
}

// Bind keeps Redis current as ticket records are created or updated.
func (m *TicketMirror) Bind() {
	m.app.OnRecordAfterCreateSuccess(TicketsCollection).BindFunc(func(e *core.RecordEvent) error {
		m.put(e.Context, e.Record)
		return e.Next()
	})
	m.app.OnRecordAfterUpdateSuccess(TicketsCollection).BindFunc(func(e *core.RecordEvent) error {
		m.put(e.Context, e.Record)
		return e.Next()
	})
}

func (m *TicketMirror) put(ctx context.Context, record *core.Record) {
	if err := m.redis.PutTicket(ctx, ticketFromRecord(record)); err != nil {
		slog.Error("Failed to mirror ticket to redis", "ticket_id", record.Id, "error", err)
	}
}
