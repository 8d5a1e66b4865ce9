package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tallyflow/internal/models"
)

func syncFixture(t *testing.T) (*SyncAdapter, *fakeImportStore, *fakeVoucherStore, *fakeSync, *models.ImportSession) {
	t.Helper()

	m, store, vouchers, session := materializerFixture(t, models.NoGST())
	_, err := m.Process(context.Background(), session.ID, nil)
	require.NoError(t, err)

	sync := newFakeSync()
	adapter := NewSyncAdapter(store, vouchers, sync, time.Second, testLogger())
	return adapter, store, vouchers, sync, session
}

func TestPushSyncsProcessedRows(t *testing.T) {
	adapter, store, vouchers, sync, session := syncFixture(t)

	result, err := adapter.Push(context.Background(), session.ID, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, result.SyncedCount)
	assert.Empty(t, result.Errors)
	assert.Len(t, sync.sent, 2)

	rows, err := store.GetRows(context.Background(), session.ID, models.RowStatusSynced)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, SyncStateSynced, rows[0].SyncState.String)

	voucher, err := vouchers.GetVoucher(context.Background(), rows[0].VoucherID.Int64)
	require.NoError(t, err)
	assert.Equal(t, models.VoucherStatusSynced, voucher.Status)
	assert.True(t, voucher.SyncedAt.Valid)

	reloaded, err := store.GetSession(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, reloaded.SyncedRows)
}

func TestPushIsIdempotent(t *testing.T) {
	adapter, _, _, sync, session := syncFixture(t)

	first, err := adapter.Push(context.Background(), session.ID, nil, nil)
	require.NoError(t, err)
	require.Equal(t, 2, first.SyncedCount)

	second, err := adapter.Push(context.Background(), session.ID, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, second.SyncedCount, "synced rows are no-ops")
	assert.Len(t, sync.sent, 2, "no voucher is sent twice")
}

func TestPushTransientFailureKeepsRowProcessed(t *testing.T) {
	adapter, store, vouchers, sync, session := syncFixture(t)

	rows, err := store.GetRows(context.Background(), session.ID, models.RowStatusProcessed)
	require.NoError(t, err)
	victim, err := vouchers.GetVoucher(context.Background(), rows[0].VoucherID.Int64)
	require.NoError(t, err)
	sync.failWith[victim.GUID] = errors.New("connector unreachable")

	result, err := adapter.Push(context.Background(), session.ID, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, result.SyncedCount)
	require.Len(t, result.Errors, 1)

	row, err := store.GetRow(context.Background(), session.ID, rows[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.RowStatusProcessed, row.Status, "transient failure keeps the row pushable")
	assert.Equal(t, SyncStateRetry, row.SyncState.String)

	voucher, err := vouchers.GetVoucher(context.Background(), rows[0].VoucherID.Int64)
	require.NoError(t, err)
	assert.Equal(t, models.VoucherStatusDraft, voucher.Status)
	assert.Equal(t, 1, voucher.SyncAttempts)

	// The failed voucher goes through on a later push.
	delete(sync.failWith, victim.GUID)
	retry, err := adapter.Push(context.Background(), session.ID, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, retry.SyncedCount)
}

func TestPushRejectionMarksVoucherFailed(t *testing.T) {
	adapter, store, vouchers, sync, session := syncFixture(t)

	rows, err := store.GetRows(context.Background(), session.ID, models.RowStatusProcessed)
	require.NoError(t, err)
	victim, err := vouchers.GetVoucher(context.Background(), rows[0].VoucherID.Int64)
	require.NoError(t, err)
	sync.failWith[victim.GUID] = &models.SyncRejectedError{Reason: "ledger does not exist in Tally"}

	result, err := adapter.Push(context.Background(), session.ID, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, result.SyncedCount)
	require.Len(t, result.Errors, 1)

	row, err := store.GetRow(context.Background(), session.ID, rows[0].ID)
	require.NoError(t, err)
	assert.Equal(t, SyncStateRejected, row.SyncState.String)

	voucher, err := vouchers.GetVoucher(context.Background(), rows[0].VoucherID.Int64)
	require.NoError(t, err)
	assert.Equal(t, models.VoucherStatusFailed, voucher.Status)
	assert.Contains(t, voucher.SyncError, "ledger does not exist in Tally")
}

func TestPushReportsProgress(t *testing.T) {
	adapter, _, _, _, session := syncFixture(t)

	var calls [][2]int
	_, err := adapter.Push(context.Background(), session.ID, nil, func(done, total int) {
		calls = append(calls, [2]int{done, total})
	})
	require.NoError(t, err)
	require.Len(t, calls, 2)
	assert.Equal(t, [2]int{1, 2}, calls[0])
	assert.Equal(t, [2]int{2, 2}, calls[1])
}

func TestPushProgressIsScopedPerCall(t *testing.T) {
	dir := newFakeLedgerDirectory()
	dir.add(1, "Acme Traders")
	dir.add(1, "Bharat Supplies")
	svc, store := newTestImportService(dir)
	vouchers := newFakeVoucherStore()
	m := NewMaterializer(store, vouchers, testLogger())

	newProcessedSession := func() *models.ImportSession {
		session, err := svc.CreateSession(context.Background(), testUpload())
		require.NoError(t, err)
		_, err = svc.SaveMapping(context.Background(), session.ID, fullMapping())
		require.NoError(t, err)
		_, err = svc.SaveGSTConfig(context.Background(), session.ID, models.NoGST())
		require.NoError(t, err)
		_, err = m.Process(context.Background(), session.ID, nil)
		require.NoError(t, err)
		return session
	}
	first := newProcessedSession()
	second := newProcessedSession()

	adapter := NewSyncAdapter(store, vouchers, newFakeSync(), time.Second, testLogger())

	// One adapter, two concurrent pushes: each callback must only ever
	// see its own session's rows.
	var mu sync.Mutex
	seen := make(map[int][]int)
	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i, session := range []*models.ImportSession{first, second} {
		wg.Add(1)
		go func(i int, session *models.ImportSession) {
			defer wg.Done()
			_, errs[i] = adapter.Push(context.Background(), session.ID, nil, func(done, total int) {
				mu.Lock()
				seen[session.ID] = append(seen[session.ID], done)
				mu.Unlock()
			})
		}(i, session)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, []int{1, 2}, seen[first.ID])
	assert.Equal(t, []int{1, 2}, seen[second.ID])
}

func TestPushSelectionRejectsUnprocessedRow(t *testing.T) {
	// Do not process; push a valid-but-unprocessed row.
	_, store, vouchers, session := materializerFixture(t, models.NoGST())

	rows, err := store.GetRows(context.Background(), session.ID, models.RowStatusValid)
	require.NoError(t, err)
	require.NotEmpty(t, rows)

	adapter := NewSyncAdapter(store, vouchers, newFakeSync(), time.Second, testLogger())
	result, err := adapter.Push(context.Background(), session.ID, []int64{rows[0].ID}, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, result.SyncedCount)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0].Reason, "no processed voucher")
}
