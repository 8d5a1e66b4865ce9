package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tallyflow/internal/models"
	"tallyflow/internal/schema"
)

// materializerFixture drives a session up to tax_configured and returns
// the pieces the process tests need.
func materializerFixture(t *testing.T, cfg models.GSTConfig) (*Materializer, *fakeImportStore, *fakeVoucherStore, *models.ImportSession) {
	t.Helper()

	dir := newFakeLedgerDirectory()
	dir.add(1, "Acme Traders")
	dir.add(1, "Bharat Supplies")
	svc, store := newTestImportService(dir)

	session, err := svc.CreateSession(context.Background(), testUpload())
	require.NoError(t, err)
	_, err = svc.SaveMapping(context.Background(), session.ID, fullMapping())
	require.NoError(t, err)
	session, err = svc.SaveGSTConfig(context.Background(), session.ID, cfg)
	require.NoError(t, err)

	vouchers := newFakeVoucherStore()
	return NewMaterializer(store, vouchers, testLogger()), store, vouchers, session
}

func TestProcessStageGate(t *testing.T) {
	svc, store := newTestImportService(newFakeLedgerDirectory())
	session, err := svc.CreateSession(context.Background(), testUpload())
	require.NoError(t, err)

	m := NewMaterializer(store, newFakeVoucherStore(), testLogger())
	_, err = m.Process(context.Background(), session.ID, nil)
	var stageErr *models.StageError
	assert.ErrorAs(t, err, &stageErr)
}

func TestProcessCreatesVouchers(t *testing.T) {
	cfg, err := models.AutoCalculateGST(18, false, 0, 0, 0)
	require.NoError(t, err)
	m, store, vouchers, session := materializerFixture(t, cfg)

	result, err := m.Process(context.Background(), session.ID, nil)
	require.NoError(t, err)

	assert.Equal(t, 2, result.CreatedCount, "the bad-date row stays behind")
	assert.Len(t, result.VoucherIDs, 2)
	assert.Empty(t, result.Errors, "skipped rows are silent unless explicitly selected")

	rows, err := store.GetRows(context.Background(), session.ID, models.RowStatusProcessed)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.True(t, rows[0].VoucherID.Valid)
	assert.True(t, rows[0].ProcessedAt.Valid)

	voucher, err := vouchers.GetVoucher(context.Background(), rows[0].VoucherID.Int64)
	require.NoError(t, err)
	assert.NotEmpty(t, voucher.GUID)
	assert.Equal(t, models.VoucherStatusDraft, voucher.Status)
	assert.Equal(t, "1000", voucher.Amount.String())
	assert.Equal(t, "90", voucher.CGST.String())
	assert.Equal(t, "90", voucher.SGST.String())
	assert.True(t, voucher.IGST.IsZero())
	assert.Equal(t, "Acme Traders", voucher.PartyName)
	assert.True(t, voucher.PartyLedgerID.Valid)

	reloaded, err := store.GetSession(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StageProcessing, reloaded.Stage)
	assert.Equal(t, 2, reloaded.ProcessedRows)
}

func TestProcessIsIdempotent(t *testing.T) {
	m, store, _, session := materializerFixture(t, models.NoGST())

	first, err := m.Process(context.Background(), session.ID, nil)
	require.NoError(t, err)
	require.Equal(t, 2, first.CreatedCount)

	rows, err := store.GetRows(context.Background(), session.ID, models.RowStatusProcessed)
	require.NoError(t, err)
	firstVoucherID := rows[0].VoucherID.Int64

	second, err := m.Process(context.Background(), session.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, second.CreatedCount, "processed rows are not re-materialized")

	rows, err = store.GetRows(context.Background(), session.ID, models.RowStatusProcessed)
	require.NoError(t, err)
	assert.Equal(t, firstVoucherID, rows[0].VoucherID.Int64, "voucher reference unchanged")
}

func TestProcessExplicitSelectionReportsUnprocessable(t *testing.T) {
	m, store, _, session := materializerFixture(t, models.NoGST())

	rows, err := store.GetRows(context.Background(), session.ID, models.RowStatusError)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	result, err := m.Process(context.Background(), session.ID, []int64{rows[0].ID})
	require.NoError(t, err)
	assert.Equal(t, 0, result.CreatedCount)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, rows[0].RowNumber, result.Errors[0].RowNumber)
}

// configRacingStore lets a test commit a config save between the
// session snapshot a batch takes and its stats write-back.
type configRacingStore struct {
	*fakeImportStore
	raced      bool
	onSnapshot func()
}

func (s *configRacingStore) GetSession(ctx context.Context, id int) (*models.ImportSession, error) {
	session, err := s.fakeImportStore.GetSession(ctx, id)
	if err == nil && !s.raced {
		s.raced = true
		s.onSnapshot()
	}
	return session, err
}

func TestProcessKeepsConfigSavedMidBatch(t *testing.T) {
	dir := newFakeLedgerDirectory()
	dir.add(1, "Acme Traders")
	dir.add(1, "Bharat Supplies")
	svc, store := newTestImportService(dir)

	session, err := svc.CreateSession(context.Background(), testUpload())
	require.NoError(t, err)
	_, err = svc.SaveMapping(context.Background(), session.ID, fullMapping())
	require.NoError(t, err)
	_, err = svc.SaveGSTConfig(context.Background(), session.ID, models.NoGST())
	require.NoError(t, err)

	// A mapping save lands after Process loads its session snapshot.
	racing := &configRacingStore{fakeImportStore: store}
	racing.onSnapshot = func() {
		wider := fullMapping()
		wider["Narration"] = schema.FieldNarration
		_, err := svc.SaveMapping(context.Background(), session.ID, wider)
		require.NoError(t, err)
	}

	m := NewMaterializer(racing, newFakeVoucherStore(), testLogger())
	result, err := m.Process(context.Background(), session.ID, nil)
	require.NoError(t, err)
	require.Equal(t, 2, result.CreatedCount)

	reloaded, err := store.GetSession(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, schema.FieldNarration, reloaded.ColumnMapping["Narration"],
		"a config save committed mid-batch survives the stats write-back")
	assert.Equal(t, models.StageProcessing, reloaded.Stage)
	assert.Equal(t, 2, reloaded.ProcessedRows)
}

func TestProcessWithItemBuildsStockLine(t *testing.T) {
	dir := newFakeLedgerDirectory()
	dir.add(1, "Acme Traders")
	svc, store := newTestImportService(dir)

	in := CreateSessionInput{
		CompanyID:   1,
		VoucherType: models.VoucherTypeSales,
		ImportType:  models.ImportWithItem,
		Filename:    "items.xlsx",
		Columns:     []string{"Date", "Party", "Amount", "Item", "Qty", "Rate"},
		Records: []map[string]string{
			{"Date": "15-03-2025", "Party": "Acme Traders", "Amount": "500", "Item": "Widget", "Qty": "", "Rate": "500"},
		},
	}
	session, err := svc.CreateSession(context.Background(), in)
	require.NoError(t, err)

	mapping := models.StringMap{
		"Date":   schema.FieldDate,
		"Party":  schema.FieldPartyName,
		"Amount": schema.FieldAmount,
		"Item":   schema.FieldItemName,
		"Qty":    schema.FieldQuantity,
		"Rate":   schema.FieldRate,
	}
	_, err = svc.SaveMapping(context.Background(), session.ID, mapping)
	require.NoError(t, err)
	_, err = svc.SaveGSTConfig(context.Background(), session.ID, models.NoGST())
	require.NoError(t, err)

	vouchers := newFakeVoucherStore()
	m := NewMaterializer(store, vouchers, testLogger())

	rows, err := store.GetRows(context.Background(), session.ID, "")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, models.RowStatusError, rows[0].Status, "empty quantity fails the required check")

	// Fill the quantity in, then process.
	rows[0].MappedData[schema.FieldQuantity] = "1"
	rows[0].Status = models.RowStatusValid
	require.NoError(t, store.UpdateRow(context.Background(), &rows[0]))

	result, err := m.Process(context.Background(), session.ID, nil)
	require.NoError(t, err)
	require.Equal(t, 1, result.CreatedCount)

	voucher, err := vouchers.GetVoucher(context.Background(), result.VoucherIDs[0])
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceTypeItem, voucher.InvoiceType)
	require.Len(t, voucher.Items, 1)
	assert.Equal(t, "Widget", voucher.Items[0].ItemName)
	assert.Equal(t, "1", voucher.Items[0].Quantity.String())
	assert.Equal(t, "500", voucher.Items[0].Rate.String())
}
