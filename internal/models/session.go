package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// Import session stages. Transitions are client-initiated and strictly
// ordered; backward edits are allowed but never skip forward.
const (
	StageUploaded      = "uploaded"
	StageMapped        = "mapped"
	StageTaxConfigured = "tax_configured"
	StageLedgerMapped  = "ledger_mapped"
	StageProcessing    = "processing"
)

// Voucher categories an import can target.
const (
	VoucherTypeSales    = "sales"
	VoucherTypePurchase = "purchase"
	VoucherTypeJournal  = "journal"
)

// Import types.
const (
	ImportWithItem    = "with_item"
	ImportWithoutItem = "without_item"
)

// DetectedColumn is a raw source column captured at upload time, with up
// to 3 sample values. Immutable once the session exists.
type DetectedColumn struct {
	Name    string   `json:"name"`
	Samples []string `json:"samples"`
}

type ColumnList []DetectedColumn

func (l ColumnList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal(l)
	return string(b), err
}

func (l *ColumnList) Scan(src interface{}) error {
	return scanJSON(src, l)
}

// Names returns the raw column names in detection order.
func (l ColumnList) Names() []string {
	names := make([]string, len(l))
	for i, c := range l {
		names[i] = c.Name
	}
	return names
}

type ImportSession struct {
	ID               int         `db:"id" json:"id"`
	SessionCode      string      `db:"session_code" json:"session_code"`
	CompanyID        int64       `db:"company_id" json:"company_id"`
	VoucherType      string      `db:"voucher_type" json:"voucher_type"`
	ImportType       string      `db:"import_type" json:"import_type"`
	Stage            string      `db:"stage" json:"stage"`
	OriginalFilename string      `db:"original_filename" json:"original_filename"`
	DetectedColumns  ColumnList  `db:"detected_columns" json:"detected_columns"`
	TotalRows        int         `db:"total_rows" json:"total_rows"`
	ColumnMapping    StringMap   `db:"column_mapping" json:"column_mapping"`
	GSTConfig        *GSTConfig  `db:"gst_config" json:"gst_config"`
	LedgerMapping    LedgerMap   `db:"ledger_mapping" json:"ledger_mapping"`
	ValidRows        int         `db:"valid_rows" json:"valid_rows"`
	WarningRows      int         `db:"warning_rows" json:"warning_rows"`
	ErrorRows        int         `db:"error_rows" json:"error_rows"`
	ProcessedRows    int         `db:"processed_rows" json:"processed_rows"`
	SyncedRows       int         `db:"synced_rows" json:"synced_rows"`
	ErrorMessage     string      `db:"error_message" json:"error_message"`
	CreatedAt        time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time   `db:"updated_at" json:"updated_at"`
}

// RowStats is the per-status row count aggregate kept on the session and
// returned by the rows listing.
type RowStats struct {
	Pending   int `db:"pending" json:"pending"`
	Valid     int `db:"valid" json:"valid"`
	Warning   int `db:"warning" json:"warning"`
	Error     int `db:"error" json:"error"`
	Processed int `db:"processed" json:"processed"`
	Synced    int `db:"synced" json:"synced"`
}
