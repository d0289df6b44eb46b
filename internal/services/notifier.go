package services

import (
	"context"
	"fmt"

	"ticket-pass/models"

	pubnub "github.com/pubnub/go/v7"
)

// PubNubNotifier publishes scan events to the event's channel so door staff
// dashboards update live.
type PubNubNotifier struct {
	PubNub *pubnub.PubNub
}

func NewPubNubNotifier(pn *pubnub.PubNub) *PubNubNotifier {
	return &PubNubNotifier{PubNub: pn}
}

func ScanChannel(eventID string) string {
	return fmt.Sprintf("event-%s-scans", eventID)
}

func (n *PubNubNotifier) PublishScan(ctx context.Context, ev models.ScanEvent) error {
	if ev.EventID == "" {
		return nil
	}

	_, _, err := n.PubNub.PublishWithContext(ctx).
		Channel(ScanChannel(ev.EventID)).
		Message(map[string]any{
			"type":       ev.Type,
			"ticket_id":  ev.TicketID,
			"outcome":    ev.Outcome,
			"gate_id":    ev.GateID,
			"scanned_at": ev.ScannedAt.UnixMilli(),
		}).
		Execute()
	if err != nil {
		return fmt.Errorf("publish scan event: %w", err)
	}
	return nil
}

type NoopNotifier struct{}

func (NoopNotifier) PublishScan(context.Context, models.ScanEvent) error {
	return nil
}
