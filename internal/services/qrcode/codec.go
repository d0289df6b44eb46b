package qrcode

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"ticket-pass/internal/status"
	"ticket-pass/models"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	// MaxBlobLength bounds what Decode will attempt to parse.
	MaxBlobLength = 4096

	// MaxEpoch is the largest nonce magnitude accepted. Epochs are stored as
	// JSON/SQL numbers and must survive a float64 round trip.
	MaxEpoch = 1 << 53
)

// Sealed is a decoded envelope with its raw signature bytes.
type Sealed struct {
	Payload   models.QRPayload
	Signature []byte
}

// CanonicalBytes is the exact message that is signed: compact JSON in struct
// field order without HTML escaping.
func CanonicalBytes(p models.QRPayload) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(p); err != nil {
		return nil, fmt.Errorf("codec: encode payload: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Encode renders the transportable QR content: unpadded URL-safe base64 of
// {"payload":...,"signature":"0x..."}.
func Encode(p models.QRPayload, sig []byte) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	err := enc.Encode(models.Envelope{
		Payload:   p,
		Signature: hexutil.Encode(sig),
	})
	if err != nil {
		return "", fmt.Errorf("codec: encode envelope: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(bytes.TrimRight(buf.Bytes(), "\n")), nil
}

// wireEnvelope uses pointers so missing members can be told apart from zero values.
type wireEnvelope struct {
	Payload   *wirePayload `json:"payload"`
	Signature *string      `json:"signature"`
}

type wirePayload struct {
	Version  *int    `json:"v"`
	TicketID *string `json:"ticketId"`
	Epoch    *int64  `json:"nonce"`
	Chain    string  `json:"chain"`
	IssuedAt int64   `json:"ts"`
}

// Decode parses QR content. Any failure yields an error wrapping
// status.ErrMalformed; it never panics on arbitrary input.
func Decode(blob string) (sealed Sealed, err error) {
	defer func() {
		if r := recover(); r != nil {
			sealed, err = Sealed{}, fmt.Errorf("%w: %v", status.ErrMalformed, r)
		}
	}()

	blob = strings.TrimSpace(blob)
	if blob == "" {
		return Sealed{}, fmt.Errorf("%w: empty", status.ErrMalformed)
	}
	if len(blob) > MaxBlobLength {
		return Sealed{}, fmt.Errorf("%w: too long", status.ErrMalformed)
	}

	raw, err := decodeBase64(blob)
	if err != nil {
		return Sealed{}, fmt.Errorf("%w: base64: %v", status.ErrMalformed, err)
	}

	var w wireEnvelope
	if err := json.Unmarshal(raw, &w); err != nil {
		return Sealed{}, fmt.Errorf("%w: json: %v", status.ErrMalformed, err)
	}
	if w.Payload == nil || w.Signature == nil {
		return Sealed{}, fmt.Errorf("%w: missing payload or signature", status.ErrMalformed)
	}

	p := w.Payload
	if p.Version == nil || *p.Version != models.QRPayloadVersion {
		return Sealed{}, fmt.Errorf("%w: unsupported version", status.ErrMalformed)
	}
	if p.TicketID == nil || strings.TrimSpace(*p.TicketID) == "" {
		return Sealed{}, fmt.Errorf("%w: missing ticket id", status.ErrMalformed)
	}
	if p.Epoch == nil {
		return Sealed{}, fmt.Errorf("%w: missing nonce", status.ErrMalformed)
	}
	if *p.Epoch > MaxEpoch || *p.Epoch < -MaxEpoch {
		return Sealed{}, fmt.Errorf("%w: nonce out of range", status.ErrMalformed)
	}

	sig, err := hexutil.Decode(*w.Signature)
	if err != nil || len(sig) != crypto.SignatureLength {
		return Sealed{}, fmt.Errorf("%w: bad signature encoding", status.ErrMalformed)
	}

	return Sealed{
		Payload: models.QRPayload{
			Version:  *p.Version,
			TicketID: *p.TicketID,
			Epoch:    *p.Epoch,
			Chain:    p.Chain,
			IssuedAt: p.IssuedAt,
		},
		Signature: sig,
	}, nil
}

// decodeBase64 accepts the URL-safe form this server mints and the padded
// standard form of older issued codes.
func decodeBase64(s string) ([]byte, error) {
	encodings := []*base64.Encoding{
		base64.RawURLEncoding,
		base64.URLEncoding,
		base64.StdEncoding,
		base64.RawStdEncoding,
	}

	var lastErr error
	for _, enc := range encodings {
		b, err := enc.DecodeString(s)
		if err == nil {
			return b, nil
		}
		lastErr = err
	}
	return nil, lastErr
}
