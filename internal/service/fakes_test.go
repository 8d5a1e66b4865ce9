package service

import (
	"context"
	"errors"
	"sort"
	"sync"

	"tallyflow/internal/models"
)

// In-memory stores backing the service tests.

type fakeImportStore struct {
	mu            sync.Mutex
	sessions      map[int]models.ImportSession
	rows          map[int64]models.ImportRow
	nextSessionID int
	nextRowID     int64
}

func newFakeImportStore() *fakeImportStore {
	return &fakeImportStore{
		sessions: make(map[int]models.ImportSession),
		rows:     make(map[int64]models.ImportRow),
	}
}

func (s *fakeImportStore) CreateSession(_ context.Context, session *models.ImportSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSessionID++
	session.ID = s.nextSessionID
	s.sessions[session.ID] = *session
	return nil
}

func (s *fakeImportStore) GetSession(_ context.Context, id int) (*models.ImportSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil, models.ErrSessionNotFound
	}
	copy := session
	return &copy, nil
}

func (s *fakeImportStore) GetSessionByCode(_ context.Context, code string) (*models.ImportSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, session := range s.sessions {
		if session.SessionCode == code {
			copy := session
			return &copy, nil
		}
	}
	return nil, models.ErrSessionNotFound
}

func (s *fakeImportStore) UpdateSession(_ context.Context, session *models.ImportSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[session.ID]; !ok {
		return models.ErrSessionNotFound
	}
	s.sessions[session.ID] = *session
	return nil
}

func (s *fakeImportStore) UpdateSessionStats(_ context.Context, session *models.ImportSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.sessions[session.ID]
	if !ok {
		return models.ErrSessionNotFound
	}
	stored.Stage = session.Stage
	stored.ValidRows = session.ValidRows
	stored.WarningRows = session.WarningRows
	stored.ErrorRows = session.ErrorRows
	stored.ProcessedRows = session.ProcessedRows
	stored.SyncedRows = session.SyncedRows
	s.sessions[session.ID] = stored
	return nil
}

func (s *fakeImportStore) ListSessions(_ context.Context, companyID int64, limit, offset int) ([]models.ImportSession, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ImportSession
	for _, session := range s.sessions {
		if session.CompanyID == companyID {
			out = append(out, session)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	total := len(out)
	if offset > len(out) {
		offset = len(out)
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, total, nil
}

func (s *fakeImportStore) BulkInsertRows(_ context.Context, rows []models.ImportRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range rows {
		s.nextRowID++
		rows[i].ID = s.nextRowID
		s.rows[rows[i].ID] = rows[i]
	}
	return nil
}

func (s *fakeImportStore) GetRows(_ context.Context, sessionID int, statusFilter string) ([]models.ImportRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ImportRow
	for _, row := range s.rows {
		if row.SessionID != sessionID {
			continue
		}
		if statusFilter != "" && row.Status != statusFilter {
			continue
		}
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RowNumber < out[j].RowNumber })
	return out, nil
}

func (s *fakeImportStore) GetRowsByIDs(_ context.Context, sessionID int, ids []int64) ([]models.ImportRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ImportRow
	for _, id := range ids {
		if row, ok := s.rows[id]; ok && row.SessionID == sessionID {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RowNumber < out[j].RowNumber })
	return out, nil
}

func (s *fakeImportStore) GetRow(_ context.Context, sessionID int, rowID int64) (*models.ImportRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[rowID]
	if !ok || row.SessionID != sessionID {
		return nil, models.ErrRowNotFound
	}
	copy := row
	return &copy, nil
}

func (s *fakeImportStore) UpdateRow(_ context.Context, row *models.ImportRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[row.ID]; !ok {
		return models.ErrRowNotFound
	}
	s.rows[row.ID] = *row
	return nil
}

func (s *fakeImportStore) BulkUpdateRows(_ context.Context, rows []models.ImportRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range rows {
		s.rows[row.ID] = row
	}
	return nil
}

func (s *fakeImportStore) CountRowsByStatus(_ context.Context, sessionID int) (models.RowStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var stats models.RowStats
	for _, row := range s.rows {
		if row.SessionID != sessionID {
			continue
		}
		switch row.Status {
		case models.RowStatusPending:
			stats.Pending++
		case models.RowStatusValid:
			stats.Valid++
		case models.RowStatusWarning:
			stats.Warning++
		case models.RowStatusError:
			stats.Error++
		case models.RowStatusProcessed:
			stats.Processed++
		case models.RowStatusSynced:
			stats.Synced++
		}
	}
	return stats, nil
}

type fakeVoucherStore struct {
	mu       sync.Mutex
	vouchers map[int64]models.Voucher
	nextID   int64
}

func newFakeVoucherStore() *fakeVoucherStore {
	return &fakeVoucherStore{vouchers: make(map[int64]models.Voucher)}
}

func (s *fakeVoucherStore) CreateVoucher(_ context.Context, voucher *models.Voucher) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	voucher.ID = s.nextID
	s.vouchers[voucher.ID] = *voucher
	return nil
}

func (s *fakeVoucherStore) GetVoucher(_ context.Context, id int64) (*models.Voucher, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	voucher, ok := s.vouchers[id]
	if !ok {
		return nil, errors.New("voucher not found")
	}
	copy := voucher
	return &copy, nil
}

func (s *fakeVoucherStore) UpdateVoucher(_ context.Context, voucher *models.Voucher) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vouchers[voucher.ID] = *voucher
	return nil
}

type fakeLedgerDirectory struct {
	mu      sync.Mutex
	ledgers map[int64]models.Ledger
	nextID  int64
	// creates counts Create calls, for idempotency assertions.
	creates int
}

func newFakeLedgerDirectory() *fakeLedgerDirectory {
	return &fakeLedgerDirectory{ledgers: make(map[int64]models.Ledger)}
}

func (d *fakeLedgerDirectory) add(companyID int64, name string) *models.Ledger {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	ledger := models.Ledger{ID: d.nextID, CompanyID: companyID, Name: name, IsActive: true}
	d.ledgers[ledger.ID] = ledger
	return &ledger
}

func (d *fakeLedgerDirectory) FindByName(_ context.Context, companyID int64, name string) (*models.Ledger, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, ledger := range d.ledgers {
		if ledger.CompanyID == companyID && ledger.Name == name {
			copy := ledger
			return &copy, nil
		}
	}
	return nil, models.ErrLedgerNotFound
}

func (d *fakeLedgerDirectory) GetByID(_ context.Context, id int64) (*models.Ledger, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	ledger, ok := d.ledgers[id]
	if !ok {
		return nil, models.ErrLedgerNotFound
	}
	copy := ledger
	return &copy, nil
}

func (d *fakeLedgerDirectory) Create(_ context.Context, ledger *models.Ledger) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.creates++
	for _, existing := range d.ledgers {
		if existing.CompanyID == ledger.CompanyID && existing.Name == ledger.Name {
			return ErrLedgerExists
		}
	}
	d.nextID++
	ledger.ID = d.nextID
	d.ledgers[ledger.ID] = *ledger
	return nil
}

// fakeSync records pushed vouchers and fails on demand.
type fakeSync struct {
	mu       sync.Mutex
	sent     []string
	failWith map[string]error
}

func newFakeSync() *fakeSync {
	return &fakeSync{failWith: make(map[string]error)}
}

func (f *fakeSync) SendVoucher(_ context.Context, voucher *models.Voucher) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failWith[voucher.GUID]; ok {
		return err
	}
	f.sent = append(f.sent, voucher.GUID)
	return nil
}
