package models

import "time"

// Ledger groups for parties created during import.
const (
	LedgerGroupSundryDebtors   = "sundry_debtors"
	LedgerGroupSundryCreditors = "sundry_creditors"
)

// Ledger mirrors a named account in the external accounting system.
// (company_id, name) is unique; SyncedFromTally marks masters pulled from
// the desktop connector as opposed to ledgers created during imports.
type Ledger struct {
	ID              int64     `db:"id" json:"id"`
	CompanyID       int64     `db:"company_id" json:"company_id"`
	Name            string    `db:"name" json:"name"`
	LedgerGroup     string    `db:"ledger_group" json:"ledger_group"`
	ParentGroup     string    `db:"parent_group" json:"parent_group"`
	GSTIN           string    `db:"gstin" json:"gstin"`
	SyncedFromTally bool      `db:"synced_from_tally" json:"synced_from_tally"`
	IsActive        bool      `db:"is_active" json:"is_active"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// PartyGroupFor picks the ledger group for a party created from an import
// of the given voucher type. Sales parties are debtors, everything else a
// creditor.
func PartyGroupFor(voucherType string) (group, parent string) {
	if voucherType == VoucherTypeSales {
		return LedgerGroupSundryDebtors, "Sundry Debtors"
	}
	return LedgerGroupSundryCreditors, "Sundry Creditors"
}
