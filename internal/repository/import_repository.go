package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"tallyflow/internal/models"
)

// ImportRepository persists import sessions and rows in MySQL. Implements
// service.ImportStore.
type ImportRepository struct {
	db *sqlx.DB
}

func NewImportRepository(db *sqlx.DB) *ImportRepository {
	return &ImportRepository{db: db}
}

// Sessions

func (r *ImportRepository) CreateSession(ctx context.Context, session *models.ImportSession) error {
	query := `INSERT INTO import_sessions (session_code, company_id, voucher_type, import_type,
	          stage, original_filename, detected_columns, total_rows, column_mapping,
	          ledger_mapping, error_message)
	          VALUES (:session_code, :company_id, :voucher_type, :import_type, :stage,
	          :original_filename, :detected_columns, :total_rows, :column_mapping,
	          :ledger_mapping, :error_message)`
	result, err := r.db.NamedExecContext(ctx, query, session)
	if err != nil {
		return err
	}
	id, _ := result.LastInsertId()
	session.ID = int(id)
	return nil
}

func (r *ImportRepository) GetSession(ctx context.Context, id int) (*models.ImportSession, error) {
	var session models.ImportSession
	query := "SELECT * FROM import_sessions WHERE id = ? LIMIT 1"
	if err := r.db.GetContext(ctx, &session, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrSessionNotFound
		}
		return nil, err
	}
	return &session, nil
}

func (r *ImportRepository) GetSessionByCode(ctx context.Context, code string) (*models.ImportSession, error) {
	var session models.ImportSession
	query := "SELECT * FROM import_sessions WHERE session_code = ? LIMIT 1"
	if err := r.db.GetContext(ctx, &session, query, code); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrSessionNotFound
		}
		return nil, err
	}
	return &session, nil
}

func (r *ImportRepository) UpdateSession(ctx context.Context, session *models.ImportSession) error {
	query := `UPDATE import_sessions SET stage = :stage, column_mapping = :column_mapping,
	          gst_config = :gst_config, ledger_mapping = :ledger_mapping,
	          valid_rows = :valid_rows, warning_rows = :warning_rows, error_rows = :error_rows,
	          processed_rows = :processed_rows, synced_rows = :synced_rows,
	          error_message = :error_message, updated_at = NOW()
	          WHERE id = :id`
	_, err := r.db.NamedExecContext(ctx, query, session)
	return err
}

// UpdateSessionStats writes only the stage and the denormalized row
// counters. Process and push report through this so a config save
// committed while a batch is in flight is never overwritten.
func (r *ImportRepository) UpdateSessionStats(ctx context.Context, session *models.ImportSession) error {
	query := `UPDATE import_sessions SET stage = :stage,
	          valid_rows = :valid_rows, warning_rows = :warning_rows, error_rows = :error_rows,
	          processed_rows = :processed_rows, synced_rows = :synced_rows, updated_at = NOW()
	          WHERE id = :id`
	_, err := r.db.NamedExecContext(ctx, query, session)
	return err
}

func (r *ImportRepository) ListSessions(ctx context.Context, companyID int64, limit, offset int) ([]models.ImportSession, int, error) {
	var total int
	countQuery := "SELECT COUNT(*) FROM import_sessions WHERE company_id = ?"
	if err := r.db.GetContext(ctx, &total, countQuery, companyID); err != nil {
		return nil, 0, err
	}

	sessions := []models.ImportSession{}
	query := `SELECT * FROM import_sessions WHERE company_id = ?
	          ORDER BY created_at DESC LIMIT ? OFFSET ?`
	if err := r.db.SelectContext(ctx, &sessions, query, companyID, limit, offset); err != nil {
		return nil, 0, err
	}
	return sessions, total, nil
}

// Rows

func (r *ImportRepository) BulkInsertRows(ctx context.Context, rows []models.ImportRow) error {
	if len(rows) == 0 {
		return nil
	}
	query := `INSERT INTO import_rows (session_id, row_number, raw_data, mapped_data,
	          status, errors, warnings)
	          VALUES (:session_id, :row_number, :raw_data, :mapped_data, :status,
	          :errors, :warnings)`
	_, err := r.db.NamedExecContext(ctx, query, rows)
	return err
}

func (r *ImportRepository) GetRows(ctx context.Context, sessionID int, statusFilter string) ([]models.ImportRow, error) {
	rows := []models.ImportRow{}
	query := "SELECT * FROM import_rows WHERE session_id = ?"
	args := []interface{}{sessionID}
	if statusFilter != "" {
		query += " AND status = ?"
		args = append(args, statusFilter)
	}
	query += " ORDER BY row_number ASC"
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *ImportRepository) GetRowsByIDs(ctx context.Context, sessionID int, ids []int64) ([]models.ImportRow, error) {
	rows := []models.ImportRow{}
	if len(ids) == 0 {
		return rows, nil
	}
	query, args, err := sqlx.In(
		"SELECT * FROM import_rows WHERE session_id = ? AND id IN (?) ORDER BY row_number ASC",
		sessionID, ids)
	if err != nil {
		return nil, err
	}
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *ImportRepository) GetRow(ctx context.Context, sessionID int, rowID int64) (*models.ImportRow, error) {
	var row models.ImportRow
	query := "SELECT * FROM import_rows WHERE session_id = ? AND id = ? LIMIT 1"
	if err := r.db.GetContext(ctx, &row, query, sessionID, rowID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrRowNotFound
		}
		return nil, err
	}
	return &row, nil
}

func (r *ImportRepository) UpdateRow(ctx context.Context, row *models.ImportRow) error {
	query := `UPDATE import_rows SET mapped_data = :mapped_data, status = :status,
	          errors = :errors, warnings = :warnings, party_ledger_id = :party_ledger_id,
	          voucher_id = :voucher_id, sync_state = :sync_state,
	          validated_at = :validated_at, processed_at = :processed_at, updated_at = NOW()
	          WHERE id = :id AND session_id = :session_id`
	_, err := r.db.NamedExecContext(ctx, query, row)
	return err
}

func (r *ImportRepository) BulkUpdateRows(ctx context.Context, rows []models.ImportRow) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `UPDATE import_rows SET mapped_data = :mapped_data, status = :status,
	          errors = :errors, warnings = :warnings, party_ledger_id = :party_ledger_id,
	          voucher_id = :voucher_id, sync_state = :sync_state,
	          validated_at = :validated_at, processed_at = :processed_at, updated_at = NOW()
	          WHERE id = :id AND session_id = :session_id`
	for i := range rows {
		if _, err := tx.NamedExecContext(ctx, query, &rows[i]); err != nil {
			return fmt.Errorf("update row %d: %w", rows[i].RowNumber, err)
		}
	}
	return tx.Commit()
}

func (r *ImportRepository) CountRowsByStatus(ctx context.Context, sessionID int) (models.RowStats, error) {
	var stats models.RowStats
	query := `SELECT
	            COALESCE(SUM(status = 'pending'), 0) AS pending,
	            COALESCE(SUM(status = 'valid'), 0) AS valid,
	            COALESCE(SUM(status = 'warning'), 0) AS warning,
	            COALESCE(SUM(status = 'error'), 0) AS error,
	            COALESCE(SUM(status = 'processed'), 0) AS processed,
	            COALESCE(SUM(status = 'synced'), 0) AS synced
	          FROM import_rows WHERE session_id = ?`
	if err := r.db.GetContext(ctx, &stats, query, sessionID); err != nil {
		return models.RowStats{}, err
	}
	return stats, nil
}
