package models

import (
	"time"

	"ticket-pass/internal/status"
)

// ScanRecord is one append-only audit entry per validation attempt.
type ScanRecord struct {
	AttemptID    string         `json:"attempt_id"`
	TicketID     string         `json:"ticket_id"`
	Outcome      status.Outcome `json:"outcome"`
	ClaimedEpoch int64          `json:"claimed_epoch"`
	ServerEpoch  int64          `json:"server_epoch"`
	GateID       string         `json:"gate_id,omitempty"`
	Detail       string         `json:"detail,omitempty"`
	ScannedAt    time.Time      `json:"scanned_at"`
}

type ValidateRequest struct {
	QRBlob string `json:"qrBlob"`
	// QRData is the field name older scanner builds send.
	QRData string `json:"qrData,omitempty"`
	GateID string `json:"gateId,omitempty"`
}

func (r ValidateRequest) Blob() string {
	if r.QRBlob != "" {
		return r.QRBlob
	}
	return r.QRData
}

type ValidateResponse struct {
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"`
	Message  string `json:"message,omitempty"`
	TicketID string `json:"ticketId,omitempty"`
}

// ScanEvent is published to the event's realtime channel after each attempt.
type ScanEvent struct {
	Type      string    `json:"type"`
	EventID   string    `json:"event_id"`
	TicketID  string    `json:"ticket_id"`
	Outcome   string    `json:"outcome"`
	GateID    string    `json:"gate_id,omitempty"`
	ScannedAt time.Time `json:"scanned_at"`
}
