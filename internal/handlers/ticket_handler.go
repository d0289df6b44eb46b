package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"ticket-pass/internal/status"
	"ticket-pass/models"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/shopspring/decimal"
)

type QRIssuer interface {
	Issue(ctx context.Context, ticketID string) (*models.IssueResponse, error)
}

// TicketWriter stands in for fulfillment in development.
type TicketWriter interface {
	CreateTicket(ctx context.Context, t *models.Ticket) error
}

type TicketHandler struct {
	issuer QRIssuer
	writer TicketWriter
}

func NewTicketHandler(issuer QRIssuer, writer TicketWriter) *TicketHandler {
	return &TicketHandler{
		issuer: issuer,
		writer: writer,
	}
}

// GetQR - current rotating QR content for a ticket
func (h *TicketHandler) GetQR(e *core.RequestEvent) error {
	query := e.Request.URL.Query()
	ticketID := strings.TrimSpace(query.Get("ticketId"))
	if ticketID == "" {
		ticketID = strings.TrimSpace(query.Get("tokenId"))
	}
	if ticketID == "" {
		return apis.NewBadRequestError("ticketId is required", nil)
	}

	resp, err := h.issuer.Issue(e.Request.Context(), ticketID)
	if err != nil {
		if errors.Is(err, status.ErrTicketNotFound) {
			return apis.NewNotFoundError("Ticket not found", nil)
		}
		return apis.NewInternalServerError("Failed to issue QR code", err)
	}

	e.Response.Header().Set("Cache-Control", "no-store")
	return e.JSON(http.StatusOK, resp)
}

type createTicketRequest struct {
	ID            string          `json:"id"`
	EventID       string          `json:"eventId"`
	OrderID       string          `json:"orderId"`
	OwnerEmail    string          `json:"ownerEmail"`
	Price         decimal.Decimal `json:"price"`
	WalletAddress string          `json:"walletAddress"`
	TokenID       string          `json:"tokenId"`
	TokenStandard string          `json:"tokenStandard"`
}

// CreateTestTicket - development only
func (h *TicketHandler) CreateTestTicket(e *core.RequestEvent) error {
	var req createTicketRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request body", err)
	}

	ticket := &models.Ticket{
		ID:         strings.TrimSpace(req.ID),
		EventID:    req.EventID,
		OrderID:    req.OrderID,
		OwnerEmail: req.OwnerEmail,
		Status:     models.TicketActive,
		Price:      req.Price,
	}

	if req.WalletAddress != "" || req.TokenID != "" {
		binding := &models.ChainBinding{
			WalletAddress: req.WalletAddress,
			TokenID:       req.TokenID,
		}
		if req.TokenStandard != "" {
			std, ok := models.ParseTokenStandard(req.TokenStandard)
			if !ok {
				return apis.NewBadRequestError("tokenStandard must be erc721 or erc1155", nil)
			}
			binding.Standard = std
		}
		ticket.Binding = binding
	}

	if err := h.writer.CreateTicket(e.Request.Context(), ticket); err != nil {
		return apis.NewBadRequestError("Failed to create ticket", err)
	}

	return e.JSON(http.StatusCreated, ticket)
}
