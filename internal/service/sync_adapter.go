package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"tallyflow/internal/models"
)

// LedgerSync is the external sync target. SendVoucher must be idempotent
// by voucher GUID; a *models.SyncRejectedError return means the system
// refused the voucher and retrying without a data change is pointless.
// Any other error is treated as transient.
type LedgerSync interface {
	SendVoucher(ctx context.Context, voucher *models.Voucher) error
}

// Row sync states reported alongside the processed status.
const (
	SyncStateSynced   = "synced"
	SyncStateRetry    = "retry"
	SyncStateRejected = "rejected"
)

// SyncAdapter pushes materialized vouchers to the external ledger system.
// Each send carries a bounded timeout; a transiently failed row keeps its
// processed status and is eligible for a later push.
type SyncAdapter struct {
	store    ImportStore
	vouchers VoucherStore
	target   LedgerSync
	timeout  time.Duration
	log      *logrus.Logger
}

func NewSyncAdapter(store ImportStore, vouchers VoucherStore, target LedgerSync, timeout time.Duration, log *logrus.Logger) *SyncAdapter {
	return &SyncAdapter{
		store:    store,
		vouchers: vouchers,
		target:   target,
		timeout:  timeout,
		log:      log,
	}
}

type PushResult struct {
	SyncedCount int               `json:"synced_count"`
	Errors      []models.RowError `json:"errors"`
}

// Push sends the vouchers of the selected processed rows, or of all
// processed rows when rowIDs is empty. Already-synced rows are no-ops.
// Per-row failures never abort the batch. progress, when non-nil, is
// called after each row with (done, total); it is scoped to this call,
// so one adapter can serve concurrent pushes.
func (a *SyncAdapter) Push(ctx context.Context, sessionID int, rowIDs []int64, progress func(done, total int)) (PushResult, error) {
	result := PushResult{Errors: []models.RowError{}}

	session, err := a.store.GetSession(ctx, sessionID)
	if err != nil {
		return result, err
	}

	var rows []models.ImportRow
	if len(rowIDs) > 0 {
		rows, err = a.store.GetRowsByIDs(ctx, sessionID, rowIDs)
	} else {
		rows, err = a.store.GetRows(ctx, sessionID, models.RowStatusProcessed)
	}
	if err != nil {
		return result, err
	}

	total := len(rows)
	report := func(done int) {
		if progress != nil {
			progress(done, total)
		}
	}
	for i := range rows {
		row := &rows[i]
		if row.Status == models.RowStatusSynced {
			report(i + 1)
			continue
		}
		if row.Status != models.RowStatusProcessed || !row.VoucherID.Valid {
			result.Errors = append(result.Errors, models.RowError{
				RowNumber: row.RowNumber,
				Reason:    "row has no processed voucher to push",
			})
			report(i + 1)
			continue
		}

		voucher, err := a.vouchers.GetVoucher(ctx, row.VoucherID.Int64)
		if err != nil {
			result.Errors = append(result.Errors, models.RowError{RowNumber: row.RowNumber, Reason: err.Error()})
			report(i + 1)
			continue
		}

		if err := a.sendOne(ctx, voucher); err != nil {
			voucher.SyncAttempts++
			voucher.SyncError = err.Error()
			if models.IsSyncRejected(err) {
				voucher.Status = models.VoucherStatusFailed
				row.SyncState = sql.NullString{String: SyncStateRejected, Valid: true}
			} else {
				// Transient: the row stays processed and a later push
				// retries it.
				row.SyncState = sql.NullString{String: SyncStateRetry, Valid: true}
			}
			_ = a.vouchers.UpdateVoucher(ctx, voucher)
			_ = a.store.UpdateRow(ctx, row)
			result.Errors = append(result.Errors, models.RowError{RowNumber: row.RowNumber, Reason: err.Error()})
			report(i + 1)
			continue
		}

		voucher.Status = models.VoucherStatusSynced
		voucher.SyncError = ""
		voucher.SyncedAt = sql.NullTime{Time: time.Now(), Valid: true}
		if err := a.vouchers.UpdateVoucher(ctx, voucher); err != nil {
			result.Errors = append(result.Errors, models.RowError{RowNumber: row.RowNumber, Reason: err.Error()})
			report(i + 1)
			continue
		}
		row.Status = models.RowStatusSynced
		row.SyncState = sql.NullString{String: SyncStateSynced, Valid: true}
		if err := a.store.UpdateRow(ctx, row); err != nil {
			result.Errors = append(result.Errors, models.RowError{RowNumber: row.RowNumber, Reason: err.Error()})
			report(i + 1)
			continue
		}
		result.SyncedCount++
		report(i + 1)
	}

	if err := a.refreshStats(ctx, session); err != nil {
		return result, err
	}

	a.log.WithFields(logrus.Fields{
		"session_code": session.SessionCode,
		"synced":       result.SyncedCount,
		"failed":       len(result.Errors),
	}).Info("voucher push finished")

	return result, nil
}

func (a *SyncAdapter) sendOne(ctx context.Context, voucher *models.Voucher) error {
	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	if err := a.target.SendVoucher(callCtx, voucher); err != nil {
		if callCtx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("sync timed out after %s: %w", a.timeout, err)
		}
		return err
	}
	return nil
}

// refreshStats writes stage and counters only; the session snapshot may
// be stale by the time the push finishes.
func (a *SyncAdapter) refreshStats(ctx context.Context, session *models.ImportSession) error {
	stats, err := a.store.CountRowsByStatus(ctx, session.ID)
	if err != nil {
		return err
	}
	session.ValidRows = stats.Valid
	session.WarningRows = stats.Warning
	session.ErrorRows = stats.Error
	session.ProcessedRows = stats.Processed
	session.SyncedRows = stats.Synced
	return a.store.UpdateSessionStats(ctx, session)
}
