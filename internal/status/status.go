package status

import "errors"

var (
	ErrMalformed         = errors.New("qr: malformed envelope")
	ErrTicketNotFound    = errors.New("ticket: ticket not found")
	ErrAlreadyUsed       = errors.New("ticket: ticket already used")
	ErrOracleUnavailable = errors.New("oracle: ownership lookup unavailable")
	ErrInvalidBinding    = errors.New("oracle: invalid wallet or token binding")
)

// Outcome is the terminal result of one validation attempt.
type Outcome string

const (
	OutcomeAccepted          Outcome = "accepted"
	OutcomeMalformed         Outcome = "malformed"
	OutcomeBadSignature      Outcome = "bad_sig"
	OutcomeExpired           Outcome = "expired"
	OutcomeTicketNotFound    Outcome = "ticket_not_found"
	OutcomeNotOwnerOnchain   Outcome = "not_owner_onchain"
	OutcomeOracleUnavailable Outcome = "oracle_unavailable"
	OutcomeDuplicate         Outcome = "duplicate"

	// OutcomeError marks attempts aborted by an unexpected infrastructure fault.
	OutcomeError Outcome = "error"
)

func (o Outcome) String() string {
	return string(o)
}

func (o Outcome) Accepted() bool {
	return o == OutcomeAccepted
}

// Message is the text a scanning client can show to gate staff.
func (o Outcome) Message() string {
	switch o {
	case OutcomeAccepted:
		return "Ticket accepted"
	case OutcomeMalformed:
		return "Unreadable QR code"
	case OutcomeBadSignature:
		return "Invalid signature"
	case OutcomeExpired:
		return "QR code expired, refresh the ticket"
	case OutcomeTicketNotFound:
		return "Ticket not found"
	case OutcomeNotOwnerOnchain:
		return "Not the current owner"
	case OutcomeOracleUnavailable:
		return "Ownership check unavailable"
	case OutcomeDuplicate:
		return "Already used"
	default:
		return "Validation failed"
	}
}
