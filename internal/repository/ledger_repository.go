package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"

	"tallyflow/internal/models"
	"tallyflow/internal/service"
)

// LedgerRepository is the local mirror of the external ledger-of-record
// (masters pulled from the desktop connector plus ledgers created during
// imports). Implements service.LedgerDirectory.
type LedgerRepository struct {
	db *sqlx.DB
}

func NewLedgerRepository(db *sqlx.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// FindByName is an exact, case-sensitive lookup. The name column uses a
// binary collation so MySQL compares byte-for-byte.
func (r *LedgerRepository) FindByName(ctx context.Context, companyID int64, name string) (*models.Ledger, error) {
	var ledger models.Ledger
	query := "SELECT * FROM ledgers WHERE company_id = ? AND name = BINARY ? LIMIT 1"
	if err := r.db.GetContext(ctx, &ledger, query, companyID, name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrLedgerNotFound
		}
		return nil, err
	}
	return &ledger, nil
}

func (r *LedgerRepository) GetByID(ctx context.Context, id int64) (*models.Ledger, error) {
	var ledger models.Ledger
	query := "SELECT * FROM ledgers WHERE id = ? LIMIT 1"
	if err := r.db.GetContext(ctx, &ledger, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrLedgerNotFound
		}
		return nil, err
	}
	return &ledger, nil
}

// Create inserts a ledger. The (company_id, name) unique key turns a
// duplicate insert into service.ErrLedgerExists so the resolver can fall
// back to the existing row.
func (r *LedgerRepository) Create(ctx context.Context, ledger *models.Ledger) error {
	query := `INSERT INTO ledgers (company_id, name, ledger_group, parent_group, gstin,
	          synced_from_tally, is_active)
	          VALUES (:company_id, :name, :ledger_group, :parent_group, :gstin,
	          :synced_from_tally, :is_active)`
	result, err := r.db.NamedExecContext(ctx, query, ledger)
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return service.ErrLedgerExists
		}
		return err
	}
	id, _ := result.LastInsertId()
	ledger.ID = id
	return nil
}

// List returns the company's active ledgers, synced masters first.
func (r *LedgerRepository) List(ctx context.Context, companyID int64) ([]models.Ledger, error) {
	ledgers := []models.Ledger{}
	query := `SELECT * FROM ledgers WHERE company_id = ? AND is_active = 1
	          ORDER BY synced_from_tally DESC, name ASC`
	if err := r.db.SelectContext(ctx, &ledgers, query, companyID); err != nil {
		return nil, err
	}
	return ledgers, nil
}

// ListTaxLedgers returns active ledgers that look like tax heads, for the
// GST configuration step.
func (r *LedgerRepository) ListTaxLedgers(ctx context.Context, companyID int64) ([]models.Ledger, error) {
	ledgers := []models.Ledger{}
	query := `SELECT * FROM ledgers WHERE company_id = ? AND is_active = 1
	          AND (parent_group LIKE '%duties%' OR parent_group LIKE '%tax%'
	               OR name LIKE '%gst%' OR name LIKE '%tax%' OR name LIKE '%cess%')
	          ORDER BY synced_from_tally DESC, name ASC`
	if err := r.db.SelectContext(ctx, &ledgers, query, companyID); err != nil {
		return nil, err
	}
	return ledgers, nil
}
