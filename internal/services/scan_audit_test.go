package services

import (
	"context"
	"math"
	"strings"
	"testing"
	"time"

	"ticket-pass/internal/services/qrcode"
	"ticket-pass/internal/services/store"
	"ticket-pass/internal/status"
	_ "ticket-pass/migrations"
	"ticket-pass/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pocketbase/pocketbase/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAuditApp(t *testing.T) core.App {
	t.Helper()

	app := core.NewBaseApp(core.BaseAppConfig{DataDir: t.TempDir()})
	require.NoError(t, app.Bootstrap())
	require.NoError(t, app.RunAllMigrations())
	t.Cleanup(func() {
		_ = app.ResetBootstrapState()
	})
	return app
}

func sealPayload(t *testing.T, signer *qrcode.Signer, p models.QRPayload) string {
	t.Helper()

	msg, err := qrcode.CanonicalBytes(p)
	require.NoError(t, err)
	sig, err := signer.Sign(msg)
	require.NoError(t, err)
	blob, err := qrcode.Encode(p, sig)
	require.NoError(t, err)
	return blob
}

func TestValidate_ExtremeNoncesAreAudited(t *testing.T) {
	app := newAuditApp(t)
	ledger := store.NewPocketBaseStore(app)
	ctx := context.Background()
	require.NoError(t, ledger.CreateTicket(ctx, &models.Ticket{ID: "T1", EventID: "evt_1"}))

	signer, err := qrcode.NewSignerFromHex(testSignerKey)
	require.NoError(t, err)
	svc := NewScanService(qrcode.NewVerifier(signer.Address()), qrcode.NewWindow(300*time.Second, 1), ledger, ledger, nil)
	svc.now = func() time.Time { return testNow }

	// forged by another key with a nonce no SQL number column can hold
	otherKey, _, err := qrcode.GenerateKey()
	require.NoError(t, err)
	other, err := qrcode.NewSignerFromHex(otherKey)
	require.NoError(t, err)
	forged := sealPayload(t, other, models.QRPayload{Version: 1, TicketID: "T1", Epoch: math.MaxInt64, Chain: "base-sepolia"})

	res, err := svc.Validate(ctx, forged, ScanMeta{GateID: "north"})
	require.NoError(t, err)
	assert.Equal(t, status.OutcomeMalformed, res.Outcome)

	// genuinely signed but far in the future
	future := sealPayload(t, signer, models.QRPayload{Version: 1, TicketID: "T1", Epoch: qrcode.MaxEpoch, Chain: "base-sepolia"})

	res, err = svc.Validate(ctx, future, ScanMeta{GateID: "north"})
	require.NoError(t, err)
	assert.Equal(t, status.OutcomeExpired, res.Outcome)

	total, err := app.CountRecords(store.ScanRecordsCollection)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)

	scans, err := ledger.ListScans(ctx, "T1", 10)
	require.NoError(t, err)
	require.Len(t, scans, 1)
	assert.Equal(t, int64(qrcode.MaxEpoch), scans[0].ClaimedEpoch)

	ticket, err := ledger.FindTicket(ctx, "T1")
	require.NoError(t, err)
	assert.Equal(t, models.TicketActive, ticket.Status)
}

func TestValidate_ForgedLongTicketIDIsAudited(t *testing.T) {
	app := newAuditApp(t)
	ledger := store.NewPocketBaseStore(app)
	ctx := context.Background()

	signer, err := qrcode.NewSignerFromHex(testSignerKey)
	require.NoError(t, err)
	svc := NewScanService(qrcode.NewVerifier(common.HexToAddress("0x0000000000000000000000000000000000000001")), qrcode.NewWindow(300*time.Second, 1), ledger, ledger, nil)
	svc.now = func() time.Time { return testNow }

	window := qrcode.NewWindow(300*time.Second, 1)
	blob := sealPayload(t, signer, models.QRPayload{Version: 1, TicketID: strings.Repeat("x", 2000), Epoch: window.EpochOf(testNow)})

	res, err := svc.Validate(ctx, blob, ScanMeta{})
	require.NoError(t, err)
	assert.Equal(t, status.OutcomeBadSignature, res.Outcome)

	scans, err := ledger.ListScans(ctx, strings.Repeat("x", 256), 10)
	require.NoError(t, err)
	assert.Len(t, scans, 1)
}
