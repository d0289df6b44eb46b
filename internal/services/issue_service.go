package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"ticket-pass/internal/services/qrcode"
	"ticket-pass/internal/status"
	"ticket-pass/models"
)

const qrImageSize = 300

type IssueService struct {
	minter       *qrcode.Minter
	tickets      TicketStore
	imageBaseURL string
	observer     ScanObserver
	now          func() time.Time
}

func NewIssueService(minter *qrcode.Minter, tickets TicketStore, imageBaseURL string) *IssueService {
	return &IssueService{
		minter:       minter,
		tickets:      tickets,
		imageBaseURL: imageBaseURL,
		observer:     noopObserver{},
		now:          time.Now,
	}
}

func (s *IssueService) SetObserver(o ScanObserver) {
	if o != nil {
		s.observer = o
	}
}

// Issue mints the current QR content for a ticket. Used tickets still get a
// code; the gate reports them as duplicates.
func (s *IssueService) Issue(ctx context.Context, ticketID string) (*models.IssueResponse, error) {
	ticketID = strings.TrimSpace(ticketID)
	if ticketID == "" {
		s.observer.ObserveIssue("not_found")
		return nil, status.ErrTicketNotFound
	}

	ticket, err := s.tickets.FindTicket(ctx, ticketID)
	if err != nil {
		if errors.Is(err, status.ErrTicketNotFound) {
			s.observer.ObserveIssue("not_found")
		} else {
			s.observer.ObserveIssue("error")
		}
		return nil, err
	}

	now := s.now()
	blob, _, err := s.minter.Mint(ticket.ID, now)
	if err != nil {
		s.observer.ObserveIssue("error")
		return nil, fmt.Errorf("mint qr for %s: %w", ticket.ID, err)
	}

	s.observer.ObserveIssue("issued")
	return &models.IssueResponse{
		QRBlob:           blob,
		ExpiresInSeconds: s.minter.Window().RotationSeconds(),
		QRImageURL:       s.imageURL(blob),
	}, nil
}

func (s *IssueService) imageURL(blob string) string {
	if s.imageBaseURL == "" {
		return ""
	}

	q := url.Values{}
	q.Set("text", blob)
	q.Set("size", fmt.Sprint(qrImageSize))
	return s.imageBaseURL + "?" + q.Encode()
}
