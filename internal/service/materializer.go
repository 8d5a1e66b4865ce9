package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"tallyflow/internal/models"
	"tallyflow/internal/schema"
)

// Materializer turns validated rows into voucher records. Row failures are
// collected, never fatal; re-processing a processed row is a no-op.
type Materializer struct {
	store    ImportStore
	vouchers VoucherStore
	tax      *TaxEngine
	log      *logrus.Logger
}

func NewMaterializer(store ImportStore, vouchers VoucherStore, log *logrus.Logger) *Materializer {
	return &Materializer{
		store:    store,
		vouchers: vouchers,
		tax:      NewTaxEngine(),
		log:      log,
	}
}

type ProcessResult struct {
	CreatedCount int               `json:"created_count"`
	VoucherIDs   []int64           `json:"voucher_ids"`
	Errors       []models.RowError `json:"errors"`
}

// Process materializes vouchers for the selected rows, or for every
// valid/warning row when rowIDs is empty.
func (m *Materializer) Process(ctx context.Context, sessionID int, rowIDs []int64) (ProcessResult, error) {
	result := ProcessResult{VoucherIDs: []int64{}, Errors: []models.RowError{}}

	session, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return result, err
	}
	if stageRank[session.Stage] < stageRank[models.StageTaxConfigured] {
		return result, &models.StageError{Stage: session.Stage, Op: "process rows"}
	}

	var rows []models.ImportRow
	if len(rowIDs) > 0 {
		rows, err = m.store.GetRowsByIDs(ctx, sessionID, rowIDs)
	} else {
		rows, err = m.store.GetRows(ctx, sessionID, "")
	}
	if err != nil {
		return result, err
	}

	explicit := len(rowIDs) > 0
	for i := range rows {
		row := &rows[i]
		switch {
		case row.Terminal():
			// Already materialized; repeating process is a no-op.
			continue
		case !row.Actionable():
			if explicit {
				result.Errors = append(result.Errors, models.RowError{
					RowNumber: row.RowNumber,
					Reason:    fmt.Sprintf("row is %s, not processable", row.Status),
				})
			}
			continue
		}

		voucher, err := m.buildVoucher(session, row)
		if err != nil {
			result.Errors = append(result.Errors, models.RowError{RowNumber: row.RowNumber, Reason: err.Error()})
			continue
		}
		if err := m.vouchers.CreateVoucher(ctx, voucher); err != nil {
			result.Errors = append(result.Errors, models.RowError{RowNumber: row.RowNumber, Reason: err.Error()})
			continue
		}

		row.VoucherID = sql.NullInt64{Int64: voucher.ID, Valid: true}
		row.Status = models.RowStatusProcessed
		row.ProcessedAt = sql.NullTime{Time: time.Now(), Valid: true}
		if err := m.store.UpdateRow(ctx, row); err != nil {
			result.Errors = append(result.Errors, models.RowError{RowNumber: row.RowNumber, Reason: err.Error()})
			continue
		}
		result.CreatedCount++
		result.VoucherIDs = append(result.VoucherIDs, voucher.ID)
	}

	if stageRank[session.Stage] < stageRank[models.StageProcessing] {
		session.Stage = models.StageProcessing
	}
	if err := m.refreshStats(ctx, session); err != nil {
		return result, err
	}

	m.log.WithFields(logrus.Fields{
		"session_code": session.SessionCode,
		"created":      result.CreatedCount,
		"failed":       len(result.Errors),
	}).Info("vouchers materialized")

	return result, nil
}

func (m *Materializer) buildVoucher(session *models.ImportSession, row *models.ImportRow) (*models.Voucher, error) {
	mapped := row.MappedData

	date, err := parseDate(mapped[schema.FieldDate])
	if err != nil {
		return nil, fmt.Errorf("invalid date: %w", err)
	}
	amount, err := parseNumber(mapped[schema.FieldAmount])
	if err != nil {
		return nil, fmt.Errorf("invalid amount: %w", err)
	}

	cfg := models.NoGST()
	if session.GSTConfig != nil {
		cfg = *session.GSTConfig
	}
	breakup, err := m.tax.Compute(mapped, cfg)
	if err != nil {
		return nil, fmt.Errorf("compute tax: %w", err)
	}

	voucherNumber := mapped[schema.FieldVoucherNumber]
	if voucherNumber == "" {
		voucherNumber = mapped[schema.FieldReferenceNo]
	}

	voucher := &models.Voucher{
		GUID:          uuid.New().String(),
		CompanyID:     session.CompanyID,
		VoucherType:   session.VoucherType,
		InvoiceType:   models.InvoiceTypeAccounting,
		VoucherNumber: voucherNumber,
		Date:          date,
		Reference:     mapped[schema.FieldReferenceNo],
		PartyName:     mapped[schema.FieldPartyName],
		PartyLedgerID: row.PartyLedgerID,
		Amount:        amount,
		CGST:          breakup.CGST,
		SGST:          breakup.SGST,
		IGST:          breakup.IGST,
		Narration:     mapped[schema.FieldNarration],
		Status:        models.VoucherStatusDraft,
	}

	if session.ImportType == models.ImportWithItem {
		voucher.InvoiceType = models.InvoiceTypeItem
		quantity := parseNumberOrZero(mapped[schema.FieldQuantity])
		if quantity.IsZero() {
			quantity = decimal.NewFromInt(1)
		}
		voucher.Items = models.VoucherItems{{
			ItemName: mapped[schema.FieldItemName],
			Quantity: quantity,
			Rate:     parseNumberOrZero(mapped[schema.FieldRate]),
			Amount:   amount,
			Unit:     mapped[schema.FieldUnit],
			HSNCode:  mapped[schema.FieldHSNCode],
		}}
	}

	return voucher, nil
}

// refreshStats writes stage and counters only: the session snapshot here
// predates any config save committed while the batch ran, so the full
// session row must not be written back.
func (m *Materializer) refreshStats(ctx context.Context, session *models.ImportSession) error {
	stats, err := m.store.CountRowsByStatus(ctx, session.ID)
	if err != nil {
		return err
	}
	session.ValidRows = stats.Valid
	session.WarningRows = stats.Warning
	session.ErrorRows = stats.Error
	session.ProcessedRows = stats.Processed
	session.SyncedRows = stats.Synced
	return m.store.UpdateSessionStats(ctx, session)
}
