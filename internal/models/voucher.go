package models

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Voucher sync lifecycle.
const (
	VoucherStatusDraft  = "draft"
	VoucherStatusQueued = "queued"
	VoucherStatusSynced = "synced"
	VoucherStatusFailed = "failed"
)

// Invoice shape of the voucher.
const (
	InvoiceTypeAccounting = "accounting"
	InvoiceTypeItem       = "item"
)

// Voucher is an accounting transaction built from a validated import row,
// targeted at the external ledger system. GUID is the idempotency key for
// sync: pushing the same voucher twice must not create a duplicate.
type Voucher struct {
	ID            int64           `db:"id" json:"id"`
	GUID          string          `db:"guid" json:"guid"`
	CompanyID     int64           `db:"company_id" json:"company_id"`
	VoucherType   string          `db:"voucher_type" json:"voucher_type"`
	InvoiceType   string          `db:"invoice_type" json:"invoice_type"`
	VoucherNumber string          `db:"voucher_number" json:"voucher_number"`
	Date          time.Time       `db:"date" json:"date"`
	Reference     string          `db:"reference" json:"reference"`
	PartyName     string          `db:"party_name" json:"party_name"`
	PartyLedgerID sql.NullInt64   `db:"party_ledger_id" json:"party_ledger_id"`
	Amount        decimal.Decimal `db:"amount" json:"amount"`
	CGST          decimal.Decimal `db:"cgst" json:"cgst"`
	SGST          decimal.Decimal `db:"sgst" json:"sgst"`
	IGST          decimal.Decimal `db:"igst" json:"igst"`
	Narration     string          `db:"narration" json:"narration"`
	Items         VoucherItems    `db:"items" json:"items"`
	Status        string          `db:"status" json:"status"`
	SyncError     string          `db:"sync_error" json:"sync_error"`
	SyncAttempts  int             `db:"sync_attempts" json:"sync_attempts"`
	SyncedAt      sql.NullTime    `db:"synced_at" json:"synced_at"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updated_at"`
}

// VoucherItem is a stock line on an item invoice.
type VoucherItem struct {
	ItemName string          `json:"item_name"`
	Quantity decimal.Decimal `json:"quantity"`
	Rate     decimal.Decimal `json:"rate"`
	Amount   decimal.Decimal `json:"amount"`
	Unit     string          `json:"unit,omitempty"`
	HSNCode  string          `json:"hsn_code,omitempty"`
}

type VoucherItems []VoucherItem

func (i VoucherItems) Value() (driver.Value, error) {
	if i == nil {
		return "[]", nil
	}
	b, err := json.Marshal(i)
	return string(b), err
}

func (i *VoucherItems) Scan(src interface{}) error {
	return scanJSON(src, i)
}
