package qrcode

import (
	"time"

	"ticket-pass/models"
)

type MessageSigner interface {
	Sign(msg []byte) ([]byte, error)
}

type MessageVerifier interface {
	Verify(msg, sig []byte) bool
}

// Minter builds signed QR content for a ticket at a point in time.
type Minter struct {
	signer MessageSigner
	window Window
	chain  string
}

func NewMinter(signer MessageSigner, window Window, chainTag string) *Minter {
	return &Minter{
		signer: signer,
		window: window,
		chain:  chainTag,
	}
}

func (m *Minter) Window() Window {
	return m.window
}

func (m *Minter) Mint(ticketID string, now time.Time) (string, models.QRPayload, error) {
	payload := models.QRPayload{
		Version:  models.QRPayloadVersion,
		TicketID: ticketID,
		Epoch:    m.window.EpochOf(now),
		Chain:    m.chain,
		IssuedAt: now.UnixMilli(),
	}

	msg, err := CanonicalBytes(payload)
	if err != nil {
		return "", models.QRPayload{}, err
	}
	sig, err := m.signer.Sign(msg)
	if err != nil {
		return "", models.QRPayload{}, err
	}

	blob, err := Encode(payload, sig)
	if err != nil {
		return "", models.QRPayload{}, err
	}
	return blob, payload, nil
}

// VerifySealed checks the detached signature over the payload's canonical bytes.
func VerifySealed(v MessageVerifier, s Sealed) bool {
	msg, err := CanonicalBytes(s.Payload)
	if err != nil {
		return false
	}
	return v.Verify(msg, s.Signature)
}
