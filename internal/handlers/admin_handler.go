package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"ticket-pass/internal/services"
	"ticket-pass/internal/status"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

const maxScanPage = 200

type AdminHandler struct {
	tickets services.TicketStore
	history services.ScanHistory
}

func NewAdminHandler(tickets services.TicketStore, history services.ScanHistory) *AdminHandler {
	return &AdminHandler{
		tickets: tickets,
		history: history,
	}
}

// GetTicket - redemption state of one ticket
func (h *AdminHandler) GetTicket(e *core.RequestEvent) error {
	ticketID := e.Request.PathValue("ticketId")

	ticket, err := h.tickets.FindTicket(e.Request.Context(), ticketID)
	if err != nil {
		if errors.Is(err, status.ErrTicketNotFound) {
			return apis.NewNotFoundError("Ticket not found", nil)
		}
		return apis.NewInternalServerError("Failed to load ticket", err)
	}

	return e.JSON(http.StatusOK, ticket)
}

// ListScans - audit trail of validation attempts, newest first
func (h *AdminHandler) ListScans(e *core.RequestEvent) error {
	ticketID := e.Request.PathValue("ticketId")

	limit := 50
	if raw := e.Request.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return apis.NewBadRequestError("limit must be a positive integer", nil)
		}
		limit = min(n, maxScanPage)
	}

	scans, err := h.history.ListScans(e.Request.Context(), ticketID, limit)
	if err != nil {
		return apis.NewInternalServerError("Failed to load scans", err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"ticket_id": ticketID,
		"scans":     scans,
		"count":     len(scans),
	})
}
