package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"ticket-pass/internal/services"
	"ticket-pass/internal/status"
	"ticket-pass/models"
	"ticket-pass/security"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

type ScanValidator interface {
	Validate(ctx context.Context, blob string, meta services.ScanMeta) (services.ScanResult, error)
}

type ScanHandler struct {
	validator ScanValidator
}

func NewScanHandler(validator ScanValidator) *ScanHandler {
	return &ScanHandler{validator: validator}
}

// Validate - redeem a scanned QR code at a gate
func (h *ScanHandler) Validate(e *core.RequestEvent) error {
	var req models.ValidateRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request body", err)
	}

	gateID := strings.TrimSpace(req.GateID)
	if gateID == "" {
		gateID, _ = e.Get(security.ScannerIDKey).(string)
	}

	result, err := h.validator.Validate(e.Request.Context(), req.Blob(), services.ScanMeta{GateID: gateID})
	if err != nil {
		slog.Error("Scan validation failed", "error", err, "gate_id", gateID)
	}

	return e.JSON(HTTPStatus(result.Outcome), models.ValidateResponse{
		Accepted: result.Accepted,
		Reason:   reason(result.Outcome),
		Message:  result.Outcome.Message(),
		TicketID: result.TicketID,
	})
}

// HTTPStatus maps a validation outcome to the response code scanners expect.
func HTTPStatus(o status.Outcome) int {
	switch o {
	case status.OutcomeAccepted:
		return http.StatusOK
	case status.OutcomeMalformed, status.OutcomeBadSignature, status.OutcomeExpired, status.OutcomeNotOwnerOnchain:
		return http.StatusBadRequest
	case status.OutcomeTicketNotFound:
		return http.StatusNotFound
	case status.OutcomeDuplicate:
		return http.StatusConflict
	case status.OutcomeOracleUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func reason(o status.Outcome) string {
	if o.Accepted() {
		return ""
	}
	return o.String()
}
