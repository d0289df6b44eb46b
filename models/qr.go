package models

// QRPayloadVersion is the only payload version this server mints and accepts.
const QRPayloadVersion = 1

// QRPayload is the signed claim embedded in a ticket QR code. Field order is
// the canonical serialization order and must not change.
type QRPayload struct {
	Version  int    `json:"v"`
	TicketID string `json:"ticketId"`
	Epoch    int64  `json:"nonce"`
	Chain    string `json:"chain"`
	IssuedAt int64  `json:"ts"` // unix millis, diagnostic only
}

// Envelope is a payload with its detached signature, as carried in the QR code.
type Envelope struct {
	Payload   QRPayload `json:"payload"`
	Signature string    `json:"signature"` // 0x-prefixed hex
}

type IssueResponse struct {
	QRBlob           string `json:"qrBlob"`
	ExpiresInSeconds int    `json:"expiresInSeconds"`
	QRImageURL       string `json:"qrImageUrl,omitempty"`
}
