package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"tallyflow/internal/models"
)

// LedgerDirectory is the external ledger-of-record. Lookups are exact,
// case-sensitive name matches; Create must enforce (company_id, name)
// uniqueness and return ErrLedgerExists on a duplicate.
type LedgerDirectory interface {
	FindByName(ctx context.Context, companyID int64, name string) (*models.Ledger, error)
	GetByID(ctx context.Context, id int64) (*models.Ledger, error)
	Create(ctx context.Context, ledger *models.Ledger) error
}

// ErrLedgerExists is returned by a directory when a ledger with the same
// name already exists for the company.
var ErrLedgerExists = errors.New("ledger already exists")

// LedgerResolver resolves or creates ledgers by name. Creation is
// serialized per company so a check-then-create race cannot mint two
// ledgers with the same name.
type LedgerResolver struct {
	directory LedgerDirectory

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func NewLedgerResolver(directory LedgerDirectory) *LedgerResolver {
	return &LedgerResolver{
		directory: directory,
		locks:     make(map[int64]*sync.Mutex),
	}
}

// Resolve looks a ledger up by exact name. Returns models.ErrLedgerNotFound
// when the directory has no such ledger.
func (r *LedgerResolver) Resolve(ctx context.Context, companyID int64, name string) (*models.Ledger, error) {
	return r.directory.FindByName(ctx, companyID, name)
}

// GetByID fetches a ledger by identity, for validating stored references.
func (r *LedgerResolver) GetByID(ctx context.Context, id int64) (*models.Ledger, error) {
	return r.directory.GetByID(ctx, id)
}

// LedgerAttrs carries the optional attributes for a ledger created during
// an import.
type LedgerAttrs struct {
	LedgerGroup string
	ParentGroup string
	GSTIN       string
}

// CreateLedger creates a ledger, idempotent by (company, name): if the
// name already exists the existing ledger is returned as a success.
func (r *LedgerResolver) CreateLedger(ctx context.Context, companyID int64, name string, attrs LedgerAttrs) (*models.Ledger, error) {
	lock := r.companyLock(companyID)
	lock.Lock()
	defer lock.Unlock()

	existing, err := r.directory.FindByName(ctx, companyID, name)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, models.ErrLedgerNotFound) {
		return nil, fmt.Errorf("lookup ledger %q: %w", name, err)
	}

	ledger := &models.Ledger{
		CompanyID:   companyID,
		Name:        name,
		LedgerGroup: attrs.LedgerGroup,
		ParentGroup: attrs.ParentGroup,
		GSTIN:       attrs.GSTIN,
		IsActive:    true,
	}
	if err := r.directory.Create(ctx, ledger); err != nil {
		if errors.Is(err, ErrLedgerExists) {
			// Lost a race outside our lock (another node); the existing
			// ledger is the answer.
			return r.directory.FindByName(ctx, companyID, name)
		}
		return nil, fmt.Errorf("create ledger %q: %w", name, err)
	}
	return ledger, nil
}

func (r *LedgerResolver) companyLock(companyID int64) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	lock, ok := r.locks[companyID]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[companyID] = lock
	}
	return lock
}
