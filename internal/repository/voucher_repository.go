package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"tallyflow/internal/models"
)

// VoucherRepository persists materialized vouchers in MySQL. Implements
// service.VoucherStore.
type VoucherRepository struct {
	db *sqlx.DB
}

func NewVoucherRepository(db *sqlx.DB) *VoucherRepository {
	return &VoucherRepository{db: db}
}

func (r *VoucherRepository) CreateVoucher(ctx context.Context, voucher *models.Voucher) error {
	query := `INSERT INTO vouchers (guid, company_id, voucher_type, invoice_type, voucher_number,
	          date, reference, party_name, party_ledger_id, amount, cgst, sgst, igst,
	          narration, items, status, sync_error, sync_attempts)
	          VALUES (:guid, :company_id, :voucher_type, :invoice_type, :voucher_number,
	          :date, :reference, :party_name, :party_ledger_id, :amount, :cgst, :sgst, :igst,
	          :narration, :items, :status, :sync_error, :sync_attempts)`
	result, err := r.db.NamedExecContext(ctx, query, voucher)
	if err != nil {
		return err
	}
	id, _ := result.LastInsertId()
	voucher.ID = id
	return nil
}

func (r *VoucherRepository) GetVoucher(ctx context.Context, id int64) (*models.Voucher, error) {
	var voucher models.Voucher
	query := "SELECT * FROM vouchers WHERE id = ? LIMIT 1"
	if err := r.db.GetContext(ctx, &voucher, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("voucher %d not found", id)
		}
		return nil, err
	}
	return &voucher, nil
}

func (r *VoucherRepository) UpdateVoucher(ctx context.Context, voucher *models.Voucher) error {
	query := `UPDATE vouchers SET status = :status, sync_error = :sync_error,
	          sync_attempts = :sync_attempts, synced_at = :synced_at, updated_at = NOW()
	          WHERE id = :id`
	_, err := r.db.NamedExecContext(ctx, query, voucher)
	return err
}

// ListVouchers returns a session's vouchers by joining through its rows.
func (r *VoucherRepository) ListVouchers(ctx context.Context, sessionID int) ([]models.Voucher, error) {
	vouchers := []models.Voucher{}
	query := `SELECT v.* FROM vouchers v
	          JOIN import_rows r ON r.voucher_id = v.id
	          WHERE r.session_id = ?
	          ORDER BY r.row_number ASC`
	if err := r.db.SelectContext(ctx, &vouchers, query, sessionID); err != nil {
		return nil, err
	}
	return vouchers, nil
}
