package request

import (
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLedger(t *testing.T) (*Ledger, string) {
	t.Helper()

	dir := t.TempDir()
	ledger, err := NewLedger(NewCSVStore(dir), testLogger())
	require.NoError(t, err)
	return ledger, dir
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestSubmitCreatesPendingRequest(t *testing.T) {
	ledger, _ := newTestLedger(t)

	req, err := ledger.Submit("P1", "D1", "2024-06-10", "09:00")
	require.NoError(t, err)
	assert.NotEmpty(t, req.ID)
	assert.Equal(t, StatusPending, req.Status)

	got, err := ledger.GetByID(req.ID)
	require.NoError(t, err)
	assert.Equal(t, req, got)
}

func TestGetByIDUnknown(t *testing.T) {
	ledger, _ := newTestLedger(t)

	_, err := ledger.GetByID("nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListPendingOrderingAndWindow(t *testing.T) {
	ledger, _ := newTestLedger(t)

	r1, err := ledger.Submit("P1", "D1", "2024-06-11", "09:00")
	require.NoError(t, err)
	r2, err := ledger.Submit("P2", "D1", "2024-06-10", "14:00")
	require.NoError(t, err)
	r3, err := ledger.Submit("P3", "D1", "2024-06-10", "09:00")
	require.NoError(t, err)
	_, err = ledger.Submit("P4", "D2", "2024-06-10", "09:00")
	require.NoError(t, err)

	// Resolved requests drop out of the pending view.
	_, err = ledger.UpdateStatus(r2.ID, StatusDeclined)
	require.NoError(t, err)

	pending, err := ledger.ListPending("D1", "", "")
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, r3.ID, pending[0].ID)
	assert.Equal(t, r1.ID, pending[1].ID)

	windowed, err := ledger.ListPending("D1", "2024-06-11", "2024-06-11")
	require.NoError(t, err)
	require.Len(t, windowed, 1)
	assert.Equal(t, r1.ID, windowed[0].ID)
}

func TestUpdateStatusRejectsReResolution(t *testing.T) {
	ledger, _ := newTestLedger(t)

	req, err := ledger.Submit("P1", "D1", "2024-06-10", "09:00")
	require.NoError(t, err)

	updated, err := ledger.UpdateStatus(req.ID, StatusAccepted)
	require.NoError(t, err)
	assert.Equal(t, StatusAccepted, updated.Status)

	_, err = ledger.UpdateStatus(req.ID, StatusDeclined)
	assert.ErrorIs(t, err, ErrAlreadyResolved)

	got, err := ledger.GetByID(req.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusAccepted, got.Status, "terminal state must survive the rejected update")
}

func TestUpdateStatusRejectsNonTerminalTarget(t *testing.T) {
	ledger, _ := newTestLedger(t)

	req, err := ledger.Submit("P1", "D1", "2024-06-10", "09:00")
	require.NoError(t, err)

	_, err = ledger.UpdateStatus(req.ID, StatusPending)
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestUpdateStatusUnknownRequest(t *testing.T) {
	ledger, _ := newTestLedger(t)

	_, err := ledger.UpdateStatus("nope", StatusDeclined)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListPendingBefore(t *testing.T) {
	ledger, _ := newTestLedger(t)

	old, err := ledger.Submit("P1", "D1", "2024-06-01", "09:00")
	require.NoError(t, err)
	_, err = ledger.Submit("P2", "D2", "2024-06-10", "09:00")
	require.NoError(t, err)

	stale, err := ledger.ListPendingBefore("2024-06-05")
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, old.ID, stale[0].ID)
}

func TestLedgerReloadsFromDisk(t *testing.T) {
	ledger, dir := newTestLedger(t)

	r1, err := ledger.Submit("P1", "D1", "2024-06-10", "09:00")
	require.NoError(t, err)
	_, err = ledger.UpdateStatus(r1.ID, StatusAccepted)
	require.NoError(t, err)
	r2, err := ledger.Submit("P2", "D1", "2024-06-10", "09:30")
	require.NoError(t, err)

	reloaded, err := NewLedger(NewCSVStore(dir), testLogger())
	require.NoError(t, err)

	got1, err := reloaded.GetByID(r1.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusAccepted, got1.Status)

	got2, err := reloaded.GetByID(r2.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got2.Status)
}
