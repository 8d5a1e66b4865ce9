package service

import (
	"context"

	"tallyflow/internal/models"
)

// ImportStore persists import sessions and their rows. Implemented by
// repository.ImportRepository; tests use an in-memory fake.
type ImportStore interface {
	CreateSession(ctx context.Context, session *models.ImportSession) error
	GetSession(ctx context.Context, id int) (*models.ImportSession, error)
	GetSessionByCode(ctx context.Context, code string) (*models.ImportSession, error)
	UpdateSession(ctx context.Context, session *models.ImportSession) error
	UpdateSessionStats(ctx context.Context, session *models.ImportSession) error
	ListSessions(ctx context.Context, companyID int64, limit, offset int) ([]models.ImportSession, int, error)

	BulkInsertRows(ctx context.Context, rows []models.ImportRow) error
	GetRows(ctx context.Context, sessionID int, statusFilter string) ([]models.ImportRow, error)
	GetRowsByIDs(ctx context.Context, sessionID int, ids []int64) ([]models.ImportRow, error)
	GetRow(ctx context.Context, sessionID int, rowID int64) (*models.ImportRow, error)
	UpdateRow(ctx context.Context, row *models.ImportRow) error
	BulkUpdateRows(ctx context.Context, rows []models.ImportRow) error
	CountRowsByStatus(ctx context.Context, sessionID int) (models.RowStats, error)
}

// VoucherStore persists materialized vouchers.
type VoucherStore interface {
	CreateVoucher(ctx context.Context, voucher *models.Voucher) error
	GetVoucher(ctx context.Context, id int64) (*models.Voucher, error)
	UpdateVoucher(ctx context.Context, voucher *models.Voucher) error
}
