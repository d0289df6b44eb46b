package services

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"ticket-pass/internal/services/qrcode"
	"ticket-pass/internal/services/store"
	"ticket-pass/internal/status"
	"ticket-pass/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type recordingObserver struct {
	issues []string
}

func (o *recordingObserver) ObserveScan(string, time.Duration)   {}
func (o *recordingObserver) ObserveOracle(string, time.Duration) {}
func (o *recordingObserver) ObserveIssue(result string)          { o.issues = append(o.issues, result) }

func newIssueFixture(t *testing.T) (*IssueService, *store.MemoryStore, *qrcode.Verifier) {
	t.Helper()

	signer, err := qrcode.NewSignerFromHex(testSignerKey)
	require.NoError(t, err)

	ledger := store.NewMemoryStore()
	minter := qrcode.NewMinter(signer, qrcode.NewWindow(300*time.Second, 1), "base-sepolia")
	svc := NewIssueService(minter, ledger, "https://quickchart.io/qr")
	svc.now = func() time.Time { return testNow }

	return svc, ledger, qrcode.NewVerifier(signer.Address())
}

func TestIssue_MintsVerifiableCode(t *testing.T) {
	svc, ledger, verifier := newIssueFixture(t)
	require.NoError(t, ledger.PutTicket(context.Background(), &models.Ticket{ID: "T1"}))

	resp, err := svc.Issue(context.Background(), "T1")
	require.NoError(t, err)

	assert.Equal(t, 300, resp.ExpiresInSeconds)

	sealed, err := qrcode.Decode(resp.QRBlob)
	require.NoError(t, err)
	assert.Equal(t, models.QRPayloadVersion, sealed.Payload.Version)
	assert.Equal(t, "T1", sealed.Payload.TicketID)
	assert.Equal(t, "base-sepolia", sealed.Payload.Chain)
	assert.Equal(t, testNow.UnixMilli(), sealed.Payload.IssuedAt)
	assert.Equal(t, qrcode.NewWindow(0, 1).EpochOf(testNow), sealed.Payload.Epoch)
	assert.True(t, qrcode.VerifySealed(verifier, sealed))

	u, err := url.Parse(resp.QRImageURL)
	require.NoError(t, err)
	assert.Equal(t, "quickchart.io", u.Host)
	assert.Equal(t, resp.QRBlob, u.Query().Get("text"))
}

func TestIssue_UsedTicketStillIssued(t *testing.T) {
	svc, ledger, _ := newIssueFixture(t)
	require.NoError(t, ledger.PutTicket(context.Background(), &models.Ticket{ID: "T1", Status: models.TicketUsed}))

	resp, err := svc.Issue(context.Background(), "T1")

	require.NoError(t, err)
	assert.NotEmpty(t, resp.QRBlob)
}

func TestIssue_NotFound(t *testing.T) {
	svc, _, _ := newIssueFixture(t)
	obs := &recordingObserver{}
	svc.SetObserver(obs)

	for _, id := range []string{"", "   ", "ghost"} {
		_, err := svc.Issue(context.Background(), id)
		assert.ErrorIs(t, err, status.ErrTicketNotFound)
	}
	assert.Equal(t, []string{"not_found", "not_found", "not_found"}, obs.issues)
}

func TestIssue_StoreError(t *testing.T) {
	svc, _, _ := newIssueFixture(t)
	tickets := &MockTicketStore{}
	tickets.On("FindTicket", mock.Anything, "T1").Return(nil, errors.New("redis: connection refused"))
	svc.tickets = tickets

	_, err := svc.Issue(context.Background(), "T1")

	require.Error(t, err)
	assert.NotErrorIs(t, err, status.ErrTicketNotFound)
}

func TestIssue_NoImageURLWithoutRenderer(t *testing.T) {
	svc, ledger, _ := newIssueFixture(t)
	svc.imageBaseURL = ""
	require.NoError(t, ledger.PutTicket(context.Background(), &models.Ticket{ID: "T1"}))

	resp, err := svc.Issue(context.Background(), "T1")

	require.NoError(t, err)
	assert.Empty(t, resp.QRImageURL)
}
