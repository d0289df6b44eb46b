package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ticket-pass/internal/status"
	"ticket-pass/models"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

const (
	allScansKey   = "scan:records"
	casRetries    = 3
	unknownTicket = "-"
)

// RedisStore keeps ticket state in a Redis hash per ticket. Redemption is a
// WATCH/MULTI optimistic transaction on that hash.
type RedisStore struct {
	Redis redis.UniversalClient
}

func NewRedisStore(redisClient redis.UniversalClient) *RedisStore {
	return &RedisStore{Redis: redisClient}
}

func ticketKey(ticketID string) string {
	return fmt.Sprintf("ticket:%s", ticketID)
}

// scansKey clips the id like the SQL ledger does; unverified ids from forged
// codes can be arbitrarily long.
func scansKey(ticketID string) string {
	if ticketID == "" {
		ticketID = unknownTicket
	}
	return fmt.Sprintf("scan:records:%s", clip(ticketID, maxTicketIDLength))
}

func (s *RedisStore) FindTicket(ctx context.Context, ticketID string) (*models.Ticket, error) {
	data, err := s.Redis.HGetAll(ctx, ticketKey(ticketID)).Result()
	if err != nil {
		return nil, fmt.Errorf("find ticket %s: %w", ticketID, err)
	}
	if len(data) == 0 {
		return nil, status.ErrTicketNotFound
	}

	return ticketFromHash(ticketID, data), nil
}

func (s *RedisStore) MarkUsed(ctx context.Context, ticketID string, at time.Time) error {
	key := ticketKey(ticketID)

	var err error
	for i := 0; i < casRetries; i++ {
		err = s.Redis.Watch(ctx, func(tx *redis.Tx) error {
			current, err := tx.HGet(ctx, key, "status").Result()
			if err == redis.Nil {
				return status.ErrTicketNotFound
			}
			if err != nil {
				return err
			}
			if current != string(models.TicketActive) {
				return status.ErrAlreadyUsed
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.HSet(ctx, key,
					"status", string(models.TicketUsed),
					"scanned_at", at.UTC().Format(time.RFC3339Nano),
				)
				return nil
			})
			return err
		}, key)

		// The hash changed under us; re-read and decide again.
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}

	switch {
	case err == nil:
		return nil
	case errors.Is(err, status.ErrTicketNotFound), errors.Is(err, status.ErrAlreadyUsed):
		return err
	case errors.Is(err, redis.TxFailedErr):
		return s.afterContention(ctx, ticketID, err)
	default:
		return fmt.Errorf("mark used %s: %w", ticketID, err)
	}
}

// afterContention decides the result once every CAS attempt lost to a
// concurrent write. Only a ticket that is now used counts as a duplicate;
// contention from other writers (the mirror) is an infrastructure fault.
func (s *RedisStore) afterContention(ctx context.Context, ticketID string, txErr error) error {
	current, err := s.Redis.HGet(ctx, ticketKey(ticketID), "status").Result()
	switch {
	case err == redis.Nil:
		return status.ErrTicketNotFound
	case err != nil:
		return fmt.Errorf("mark used %s: %w", ticketID, err)
	case current == string(models.TicketUsed):
		return status.ErrAlreadyUsed
	default:
		return fmt.Errorf("mark used %s: %d attempts contended: %w", ticketID, casRetries, txErr)
	}
}

// RecordScan appends the record to the ticket's list and the global list.
// Neither list is ever trimmed.
func (s *RedisStore) RecordScan(ctx context.Context, rec *models.ScanRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("record scan %s: %w", rec.AttemptID, err)
	}

	_, err = s.Redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, scansKey(rec.TicketID), data)
		pipe.RPush(ctx, allScansKey, data)
		return nil
	})
	if err != nil {
		return fmt.Errorf("record scan %s: %w", rec.AttemptID, err)
	}
	return nil
}

// ListScans returns the newest scan records for a ticket first.
func (s *RedisStore) ListScans(ctx context.Context, ticketID string, limit int) ([]models.ScanRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	raw, err := s.Redis.LRange(ctx, scansKey(ticketID), int64(-limit), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list scans %s: %w", ticketID, err)
	}

	scans := make([]models.ScanRecord, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		var rec models.ScanRecord
		if err := json.Unmarshal([]byte(raw[i]), &rec); err != nil {
			return nil, fmt.Errorf("list scans %s: %w", ticketID, err)
		}
		scans = append(scans, rec)
	}
	return scans, nil
}

// PutTicket writes the ticket hash. A used ticket is never set back to active.
func (s *RedisStore) PutTicket(ctx context.Context, t *models.Ticket) error {
	key := ticketKey(t.ID)

	err := s.Redis.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.HGet(ctx, key, "status").Result()
		if err != nil && err != redis.Nil {
			return err
		}
		fields := ticketHash(t, current != string(models.TicketUsed))

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, fields...)
			return nil
		})
		return err
	}, key)
	if err != nil {
		return fmt.Errorf("put ticket %s: %w", t.ID, err)
	}
	return nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.Redis.Ping(ctx).Err()
}

// ticketHash flattens t into HSET field/value pairs. withStatus false leaves
// the redemption fields untouched.
func ticketHash(t *models.Ticket, withStatus bool) []any {
	fields := []any{
		"event_id", t.EventID,
		"order_id", t.OrderID,
		"owner_email", t.OwnerEmail,
		"price", t.Price.String(),
	}
	if t.Binding != nil {
		fields = append(fields,
			"wallet_address", t.Binding.WalletAddress,
			"token_id", t.Binding.TokenID,
			"token_standard", string(t.Binding.Standard),
		)
	}
	if !withStatus {
		return fields
	}

	st := t.Status
	if st == "" {
		st = models.TicketActive
	}
	fields = append(fields, "status", string(st))
	if t.ScannedAt != nil {
		fields = append(fields, "scanned_at", t.ScannedAt.UTC().Format(time.RFC3339Nano))
	}
	return fields
}

func ticketFromHash(ticketID string, data map[string]string) *models.Ticket {
	price, _ := decimal.NewFromString(data["price"])

	t := &models.Ticket{
		ID:         ticketID,
		EventID:    data["event_id"],
		OrderID:    data["order_id"],
		OwnerEmail: data["owner_email"],
		Status:     models.TicketStatus(data["status"]),
		Price:      price,
	}

	if wallet := data["wallet_address"]; wallet != "" {
		std, _ := models.ParseTokenStandard(data["token_standard"])
		t.Binding = &models.ChainBinding{
			WalletAddress: wallet,
			TokenID:       data["token_id"],
			Standard:      std,
		}
	}

	if raw := data["scanned_at"]; raw != "" {
		if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			t.ScannedAt = &ts
		}
	}

	return t
}
