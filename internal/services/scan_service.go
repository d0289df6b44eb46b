package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"ticket-pass/internal/services/qrcode"
	"ticket-pass/internal/status"
	"ticket-pass/models"
	"ticket-pass/utils"
)

const notifyTimeout = 2 * time.Second

type ScanMeta struct {
	GateID string
}

type ScanResult struct {
	Accepted bool
	Outcome  status.Outcome
	TicketID string
}

// ScanService validates a scanned QR blob and redeems the ticket it names.
type ScanService struct {
	verifier qrcode.MessageVerifier
	window   qrcode.Window
	tickets  TicketStore
	ledger   RedemptionLedger
	oracle   OwnershipOracle

	defaultStandard models.TokenStandard
	notifier        ScanNotifier
	observer        ScanObserver
	now             func() time.Time
}

// NewScanService wires the validation pipeline. A nil oracle means ownership
// can never be confirmed, so tickets bound to a token are refused.
func NewScanService(verifier qrcode.MessageVerifier, window qrcode.Window, tickets TicketStore, ledger RedemptionLedger, oracle OwnershipOracle) *ScanService {
	return &ScanService{
		verifier:        verifier,
		window:          window,
		tickets:         tickets,
		ledger:          ledger,
		oracle:          oracle,
		defaultStandard: models.StandardBalance,
		notifier:        NoopNotifier{},
		observer:        noopObserver{},
		now:             time.Now,
	}
}

func (s *ScanService) SetNotifier(n ScanNotifier) {
	if n != nil {
		s.notifier = n
	}
}

func (s *ScanService) SetObserver(o ScanObserver) {
	if o != nil {
		s.observer = o
	}
}

// SetDefaultStandard picks the token standard for bindings that do not carry one.
func (s *ScanService) SetDefaultStandard(std models.TokenStandard) {
	if std != "" {
		s.defaultStandard = std
	}
}

// Validate runs the checks in order: decode, signature, freshness, lookup,
// on-chain ownership, duplicate, redeem. Every attempt is recorded. The
// returned error is only set for infrastructure faults of the ticket store.
func (s *ScanService) Validate(ctx context.Context, blob string, meta ScanMeta) (ScanResult, error) {
	now := s.now()
	attempt := &models.ScanRecord{
		AttemptID:   utils.NewAttemptID(),
		GateID:      meta.GateID,
		ServerEpoch: s.window.EpochOf(now),
		ScannedAt:   now,
	}

	sealed, err := qrcode.Decode(blob)
	if err != nil {
		return s.finish(ctx, attempt, nil, status.OutcomeMalformed, err.Error()), nil
	}
	attempt.TicketID = sealed.Payload.TicketID
	attempt.ClaimedEpoch = sealed.Payload.Epoch

	if !qrcode.VerifySealed(s.verifier, sealed) {
		return s.finish(ctx, attempt, nil, status.OutcomeBadSignature, ""), nil
	}

	// Freshness is settled before the store is touched.
	if !s.window.IsFresh(attempt.ClaimedEpoch, attempt.ServerEpoch) {
		return s.finish(ctx, attempt, nil, status.OutcomeExpired, ""), nil
	}

	ticket, err := s.tickets.FindTicket(ctx, attempt.TicketID)
	if errors.Is(err, status.ErrTicketNotFound) {
		return s.finish(ctx, attempt, nil, status.OutcomeTicketNotFound, ""), nil
	}
	if err != nil {
		return s.finish(ctx, attempt, nil, status.OutcomeError, err.Error()), err
	}

	if ticket.OnChain() {
		if outcome, detail := s.checkOwnership(ctx, ticket); outcome != "" {
			return s.finish(ctx, attempt, ticket, outcome, detail), nil
		}
	}

	if ticket.IsUsed() {
		return s.finish(ctx, attempt, ticket, status.OutcomeDuplicate, ""), nil
	}

	err = s.ledger.MarkUsed(ctx, ticket.ID, now)
	switch {
	case err == nil:
		return s.finish(ctx, attempt, ticket, status.OutcomeAccepted, ""), nil
	case errors.Is(err, status.ErrAlreadyUsed):
		return s.finish(ctx, attempt, ticket, status.OutcomeDuplicate, "lost redemption race"), nil
	case errors.Is(err, status.ErrTicketNotFound):
		return s.finish(ctx, attempt, ticket, status.OutcomeTicketNotFound, ""), nil
	default:
		return s.finish(ctx, attempt, ticket, status.OutcomeError, err.Error()), err
	}
}

// checkOwnership returns an empty outcome when the bound wallet holds the token.
func (s *ScanService) checkOwnership(ctx context.Context, ticket *models.Ticket) (status.Outcome, string) {
	if s.oracle == nil {
		return status.OutcomeOracleUnavailable, "ownership oracle disabled"
	}

	std := ticket.Binding.Standard
	if std == "" {
		std = s.defaultStandard
	}

	start := time.Now()
	owns, err := s.oracle.OwnsToken(ctx, ticket.Binding.WalletAddress, ticket.Binding.TokenID, std)
	elapsed := time.Since(start)

	switch {
	case errors.Is(err, status.ErrInvalidBinding):
		s.observer.ObserveOracle("invalid_binding", elapsed)
		slog.Warn("Ticket has an invalid chain binding", "ticket_id", ticket.ID, "error", err)
		return status.OutcomeNotOwnerOnchain, err.Error()
	case err != nil:
		s.observer.ObserveOracle("unavailable", elapsed)
		slog.Error("Ownership oracle unavailable", "ticket_id", ticket.ID, "error", err)
		return status.OutcomeOracleUnavailable, err.Error()
	case !owns:
		s.observer.ObserveOracle("not_owner", elapsed)
		return status.OutcomeNotOwnerOnchain, ""
	default:
		s.observer.ObserveOracle("owner", elapsed)
		return "", ""
	}
}

func (s *ScanService) finish(ctx context.Context, attempt *models.ScanRecord, ticket *models.Ticket, outcome status.Outcome, detail string) ScanResult {
	attempt.Outcome = outcome
	attempt.Detail = detail

	// The attempt is recorded even if the caller has gone away.
	recordCtx := context.WithoutCancel(ctx)
	if err := s.ledger.RecordScan(recordCtx, attempt); err != nil {
		slog.Error("Failed to record scan attempt",
			"attempt_id", attempt.AttemptID,
			"ticket_id", attempt.TicketID,
			"outcome", outcome,
			"error", err,
		)
	}

	elapsed := s.now().Sub(attempt.ScannedAt)
	s.observer.ObserveScan(outcome.String(), elapsed)

	if ticket != nil {
		s.notify(recordCtx, ticket, attempt)
	}

	slog.Info("Scan validated",
		"attempt_id", attempt.AttemptID,
		"ticket_id", attempt.TicketID,
		"outcome", outcome,
		"gate_id", attempt.GateID,
		"claimed_epoch", attempt.ClaimedEpoch,
		"server_epoch", attempt.ServerEpoch,
	)

	result := ScanResult{
		Accepted: outcome.Accepted(),
		Outcome:  outcome,
	}
	if outcome != status.OutcomeMalformed {
		result.TicketID = attempt.TicketID
	}
	return result
}

func (s *ScanService) notify(ctx context.Context, ticket *models.Ticket, attempt *models.ScanRecord) {
	ctx, cancel := context.WithTimeout(ctx, notifyTimeout)
	defer cancel()

	err := s.notifier.PublishScan(ctx, models.ScanEvent{
		Type:      "ticket_scanned",
		EventID:   ticket.EventID,
		TicketID:  ticket.ID,
		Outcome:   attempt.Outcome.String(),
		GateID:    attempt.GateID,
		ScannedAt: attempt.ScannedAt,
	})
	if err != nil {
		slog.Warn("Failed to publish scan event", "ticket_id", ticket.ID, "error", err)
	}
}

type noopObserver struct{}

func (noopObserver) ObserveScan(string, time.Duration)   {}
func (noopObserver) ObserveOracle(string, time.Duration) {}
func (noopObserver) ObserveIssue(string)                 {}
