package models

import (
	"database/sql"
	"time"
)

// Row validation statuses. Forward-only, except error rows which go back
// through validation after a mapping/config change or a ledger assignment.
// processed and synced are terminal with respect to validation.
const (
	RowStatusPending   = "pending"
	RowStatusValid     = "valid"
	RowStatusWarning   = "warning"
	RowStatusError     = "error"
	RowStatusProcessed = "processed"
	RowStatusSynced    = "synced"
)

type ImportRow struct {
	ID            int64          `db:"id" json:"id"`
	SessionID     int            `db:"session_id" json:"session_id"`
	RowNumber     int            `db:"row_number" json:"row_number"`
	RawData       StringMap      `db:"raw_data" json:"raw_data"`
	MappedData    StringMap      `db:"mapped_data" json:"mapped_data"`
	Status        string         `db:"status" json:"status"`
	Errors        StringList     `db:"errors" json:"errors"`
	Warnings      StringList     `db:"warnings" json:"warnings"`
	PartyLedgerID sql.NullInt64  `db:"party_ledger_id" json:"party_ledger_id"`
	VoucherID     sql.NullInt64  `db:"voucher_id" json:"voucher_id"`
	SyncState     sql.NullString `db:"sync_state" json:"sync_state"`
	ValidatedAt   sql.NullTime   `db:"validated_at" json:"validated_at"`
	ProcessedAt   sql.NullTime   `db:"processed_at" json:"processed_at"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at" json:"updated_at"`
}

// Terminal reports whether the row is past validation: processed and
// synced rows are never re-validated.
func (r *ImportRow) Terminal() bool {
	return r.Status == RowStatusProcessed || r.Status == RowStatusSynced
}

// Actionable reports whether the row can be materialized into a voucher.
func (r *ImportRow) Actionable() bool {
	return r.Status == RowStatusValid || r.Status == RowStatusWarning
}
