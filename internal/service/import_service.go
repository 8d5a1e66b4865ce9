package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"tallyflow/internal/models"
	"tallyflow/internal/schema"
)

// stageRank orders the session stages for transition checks.
var stageRank = map[string]int{
	models.StageUploaded:      0,
	models.StageMapped:        1,
	models.StageTaxConfigured: 2,
	models.StageLedgerMapped:  3,
	models.StageProcessing:    4,
}

// ImportService owns the session state machine. Every configuration save
// goes through a per-session mutex, so concurrent saves serialize
// (last-committed-wins) and validation always sees a complete config.
type ImportService struct {
	store     ImportStore
	resolver  *LedgerResolver
	mapper    *ColumnMapper
	validator *RowValidator
	log       *logrus.Logger

	mu    sync.Mutex
	locks map[int]*sync.Mutex
}

func NewImportService(store ImportStore, resolver *LedgerResolver, log *logrus.Logger) *ImportService {
	return &ImportService{
		store:     store,
		resolver:  resolver,
		mapper:    NewColumnMapper(),
		validator: NewRowValidator(),
		log:       log,
		locks:     make(map[int]*sync.Mutex),
	}
}

func (s *ImportService) Mapper() *ColumnMapper { return s.mapper }

type CreateSessionInput struct {
	CompanyID   int64
	VoucherType string
	ImportType  string
	Filename    string
	Columns     []string
	Records     []map[string]string
}

// CreateSession registers an upload whose rows are already decoded into
// ordered records. Raw row data is immutable from here on.
func (s *ImportService) CreateSession(ctx context.Context, in CreateSessionInput) (*models.ImportSession, error) {
	if in.VoucherType == "" {
		in.VoucherType = models.VoucherTypeSales
	}
	if in.ImportType == "" {
		in.ImportType = models.ImportWithoutItem
	}
	switch in.VoucherType {
	case models.VoucherTypeSales, models.VoucherTypePurchase, models.VoucherTypeJournal:
	default:
		return nil, fmt.Errorf("unknown voucher type %q", in.VoucherType)
	}
	switch in.ImportType {
	case models.ImportWithItem, models.ImportWithoutItem:
	default:
		return nil, fmt.Errorf("unknown import type %q", in.ImportType)
	}
	if len(in.Columns) == 0 {
		return nil, fmt.Errorf("no columns detected")
	}
	if len(in.Records) == 0 {
		return nil, fmt.Errorf("file has no data rows")
	}

	detected := make(models.ColumnList, len(in.Columns))
	for i, col := range in.Columns {
		samples := []string{}
		for _, rec := range in.Records {
			if len(samples) == 3 {
				break
			}
			samples = append(samples, rec[col])
		}
		detected[i] = models.DetectedColumn{Name: col, Samples: samples}
	}

	session := &models.ImportSession{
		SessionCode:      fmt.Sprintf("IMP-%s", strings.ToUpper(uuid.New().String()[:8])),
		CompanyID:        in.CompanyID,
		VoucherType:      in.VoucherType,
		ImportType:       in.ImportType,
		Stage:            models.StageUploaded,
		OriginalFilename: in.Filename,
		DetectedColumns:  detected,
		TotalRows:        len(in.Records),
		ColumnMapping:    models.StringMap{},
		LedgerMapping:    models.LedgerMap{},
	}
	if err := s.store.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	rows := make([]models.ImportRow, len(in.Records))
	for i, rec := range in.Records {
		raw := make(models.StringMap, len(rec))
		for k, v := range rec {
			raw[k] = v
		}
		rows[i] = models.ImportRow{
			SessionID: session.ID,
			RowNumber: i + 1,
			RawData:   raw,
			Status:    models.RowStatusPending,
		}
	}
	if err := s.store.BulkInsertRows(ctx, rows); err != nil {
		return nil, fmt.Errorf("insert rows: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"session_code": session.SessionCode,
		"company_id":   session.CompanyID,
		"total_rows":   session.TotalRows,
	}).Info("import session created")

	return session, nil
}

func (s *ImportService) GetSession(ctx context.Context, id int) (*models.ImportSession, error) {
	return s.store.GetSession(ctx, id)
}

func (s *ImportService) GetSessionByCode(ctx context.Context, code string) (*models.ImportSession, error) {
	return s.store.GetSessionByCode(ctx, code)
}

func (s *ImportService) ListSessions(ctx context.Context, companyID int64, limit, offset int) ([]models.ImportSession, int, error) {
	return s.store.ListSessions(ctx, companyID, limit, offset)
}

// SampleRows returns up to limit raw records for mapping previews.
func (s *ImportService) SampleRows(ctx context.Context, sessionID, limit int) ([]models.ImportRow, error) {
	rows, err := s.store.GetRows(ctx, sessionID, "")
	if err != nil {
		return nil, err
	}
	if len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

// ProposeMapping suggests a mapping for the session's detected columns.
// Deliberately stateless: it never writes, and calling it repeatedly gives
// the same answer regardless of what the client has saved.
func (s *ImportService) ProposeMapping(ctx context.Context, sessionID int) (models.StringMap, error) {
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return s.mapper.ProposeMapping(session.DetectedColumns.Names()), nil
}

// SaveMapping persists the column-to-field mapping and re-validates every
// non-terminal row. Fails with MissingFieldsError when a required field
// is left uncovered, in which case the stage does not advance.
func (s *ImportService) SaveMapping(ctx context.Context, sessionID int, mapping models.StringMap) (*models.ImportSession, error) {
	unlock := s.lockSession(sessionID)
	defer unlock()

	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := s.mapper.ValidateMapping(session.ImportType, mapping); err != nil {
		return nil, err
	}

	session.ColumnMapping = mapping
	if stageRank[session.Stage] < stageRank[models.StageMapped] {
		session.Stage = models.StageMapped
	}
	if err := s.store.UpdateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("save mapping: %w", err)
	}
	if err := s.revalidateAll(ctx, session, true); err != nil {
		return nil, err
	}
	return session, nil
}

// SaveGSTConfig persists the tax configuration and re-validates.
func (s *ImportService) SaveGSTConfig(ctx context.Context, sessionID int, cfg models.GSTConfig) (*models.ImportSession, error) {
	unlock := s.lockSession(sessionID)
	defer unlock()

	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if stageRank[session.Stage] < stageRank[models.StageMapped] {
		return nil, &models.StageError{Stage: session.Stage, Op: "configure gst"}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	session.GSTConfig = &cfg
	if stageRank[session.Stage] < stageRank[models.StageTaxConfigured] {
		session.Stage = models.StageTaxConfigured
	}
	if err := s.store.UpdateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("save gst config: %w", err)
	}
	if err := s.revalidateAll(ctx, session, true); err != nil {
		return nil, err
	}
	return session, nil
}

// SaveLedgerMapping persists the extra-charge column to ledger mapping.
// Columns left out stay unbooked.
func (s *ImportService) SaveLedgerMapping(ctx context.Context, sessionID int, mapping models.LedgerMap) (*models.ImportSession, error) {
	unlock := s.lockSession(sessionID)
	defer unlock()

	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if stageRank[session.Stage] < stageRank[models.StageTaxConfigured] {
		return nil, &models.StageError{Stage: session.Stage, Op: "map ledgers"}
	}
	for col, ledgerID := range mapping {
		if _, err := s.resolver.GetByID(ctx, ledgerID); err != nil {
			return nil, fmt.Errorf("column %q: ledger %d: %w", col, ledgerID, err)
		}
	}

	session.LedgerMapping = mapping
	if stageRank[session.Stage] < stageRank[models.StageLedgerMapped] {
		session.Stage = models.StageLedgerMapped
	}
	if err := s.store.UpdateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("save ledger mapping: %w", err)
	}
	if err := s.revalidateAll(ctx, session, true); err != nil {
		return nil, err
	}
	return session, nil
}

// UnmappedColumns lists detected columns not covered by the field mapping.
func (s *ImportService) UnmappedColumns(session *models.ImportSession) []string {
	return s.mapper.UnmappedColumns(session.DetectedColumns.Names(), session.ColumnMapping)
}

// ListRows returns the session's rows, optionally filtered by status,
// with the aggregate per-status counts.
func (s *ImportService) ListRows(ctx context.Context, sessionID int, statusFilter string) ([]models.ImportRow, models.RowStats, error) {
	rows, err := s.store.GetRows(ctx, sessionID, statusFilter)
	if err != nil {
		return nil, models.RowStats{}, err
	}
	stats, err := s.store.CountRowsByStatus(ctx, sessionID)
	if err != nil {
		return nil, models.RowStats{}, err
	}
	return rows, stats, nil
}

type UpdateRowInput struct {
	PartyLedgerID *int64
	MappedData    map[string]string
}

// UpdateRow applies a partial update to one row (typically a party ledger
// assignment) and re-validates just that row. Terminal rows reject edits.
func (s *ImportService) UpdateRow(ctx context.Context, sessionID int, rowID int64, in UpdateRowInput) (*models.ImportRow, error) {
	unlock := s.lockSession(sessionID)
	defer unlock()

	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	row, err := s.store.GetRow(ctx, sessionID, rowID)
	if err != nil {
		return nil, err
	}
	if row.Terminal() {
		return nil, &models.StageError{Stage: row.Status, Op: "update row"}
	}

	if in.PartyLedgerID != nil {
		if _, err := s.resolver.GetByID(ctx, *in.PartyLedgerID); err != nil {
			return nil, fmt.Errorf("party ledger %d: %w", *in.PartyLedgerID, err)
		}
		row.PartyLedgerID = sql.NullInt64{Int64: *in.PartyLedgerID, Valid: true}
	}
	if len(in.MappedData) > 0 {
		if row.MappedData == nil {
			row.MappedData = models.StringMap{}
		}
		for k, v := range in.MappedData {
			row.MappedData[k] = v
		}
	}

	rows := []models.ImportRow{*row}
	if err := s.revalidateRows(ctx, session, rows, false); err != nil {
		return nil, err
	}
	return &rows[0], nil
}

// BulkAssignParty assigns an existing party ledger to many rows at once
// and re-validates the touched rows. Terminal rows are skipped.
func (s *ImportService) BulkAssignParty(ctx context.Context, sessionID int, ledgerID int64, rowIDs []int64) (int, error) {
	if len(rowIDs) == 0 {
		return 0, fmt.Errorf("no rows selected")
	}

	unlock := s.lockSession(sessionID)
	defer unlock()

	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	ledger, err := s.resolver.GetByID(ctx, ledgerID)
	if err != nil {
		return 0, fmt.Errorf("party ledger %d: %w", ledgerID, err)
	}
	if ledger.CompanyID != session.CompanyID {
		return 0, models.ErrLedgerNotFound
	}

	rows, err := s.store.GetRowsByIDs(ctx, sessionID, rowIDs)
	if err != nil {
		return 0, err
	}
	var touched []models.ImportRow
	for _, row := range rows {
		if row.Terminal() {
			continue
		}
		row.PartyLedgerID = sql.NullInt64{Int64: ledger.ID, Valid: true}
		touched = append(touched, row)
	}
	if err := s.revalidateRows(ctx, session, touched, false); err != nil {
		return 0, err
	}
	return len(touched), nil
}

type CreatePartyInput struct {
	Name   string
	GSTIN  string
	RowIDs []int64
}

// CreateParty resolves or creates a party ledger and attaches it to the
// named rows in one step, so there is never a visible state where rows
// reference a party name without a ledger. Idempotent by ledger name.
func (s *ImportService) CreateParty(ctx context.Context, sessionID int, in CreatePartyInput) (*models.Ledger, int, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, 0, fmt.Errorf("party name is required")
	}

	unlock := s.lockSession(sessionID)
	defer unlock()

	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, 0, err
	}

	group, parent := models.PartyGroupFor(session.VoucherType)
	ledger, err := s.resolver.CreateLedger(ctx, session.CompanyID, in.Name, LedgerAttrs{
		LedgerGroup: group,
		ParentGroup: parent,
		GSTIN:       in.GSTIN,
	})
	if err != nil {
		return nil, 0, err
	}

	if len(in.RowIDs) == 0 {
		return ledger, 0, nil
	}
	rows, err := s.store.GetRowsByIDs(ctx, sessionID, in.RowIDs)
	if err != nil {
		return nil, 0, err
	}
	var touched []models.ImportRow
	for _, row := range rows {
		if row.Terminal() {
			continue
		}
		row.PartyLedgerID = sql.NullInt64{Int64: ledger.ID, Valid: true}
		touched = append(touched, row)
	}
	if err := s.revalidateRows(ctx, session, touched, false); err != nil {
		return nil, 0, err
	}

	s.log.WithFields(logrus.Fields{
		"session_code": session.SessionCode,
		"ledger":       ledger.Name,
		"rows":         len(touched),
	}).Info("party ledger attached to import rows")

	return ledger, len(touched), nil
}

// revalidateAll runs a full validation pass over every non-terminal row.
// Always a full pass: partial re-validation after a config change is where
// inconsistency bugs live.
func (s *ImportService) revalidateAll(ctx context.Context, session *models.ImportSession, applyMapping bool) error {
	rows, err := s.store.GetRows(ctx, session.ID, "")
	if err != nil {
		return err
	}
	return s.revalidateRows(ctx, session, rows, applyMapping)
}

// revalidateRows validates the given rows against the session's current
// configuration and persists the outcomes. When applyMapping is set the
// mapped record is re-derived from the raw record first (mapping changed);
// row-level edits keep their mapped data as-is.
func (s *ImportService) revalidateRows(ctx context.Context, session *models.ImportSession, rows []models.ImportRow, applyMapping bool) error {
	cfg := session.GSTConfig

	taxOK := true
	if cfg != nil && cfg.Method != models.GSTNoGST {
		for _, id := range cfg.TaxLedgerIDs() {
			if _, err := s.resolver.GetByID(ctx, id); err != nil {
				taxOK = false
				break
			}
		}
	}

	// Ledger lookups are cached per pass; misses are cached too.
	found := make(map[string]*models.Ledger)
	missed := make(map[string]bool)

	now := time.Now()
	var dirty []models.ImportRow
	for i := range rows {
		row := &rows[i]
		if row.Terminal() {
			continue
		}
		if applyMapping {
			row.MappedData = s.mapper.ApplyMapping(row.RawData, session.ColumnMapping)
		}

		partyResolved := row.PartyLedgerID.Valid
		if !partyResolved {
			if name := row.MappedData[schema.FieldPartyName]; name != "" && !missed[name] {
				ledger, ok := found[name]
				if !ok {
					resolved, err := s.resolver.Resolve(ctx, session.CompanyID, name)
					switch {
					case err == nil:
						found[name] = resolved
						ledger = resolved
						ok = true
					case errors.Is(err, models.ErrLedgerNotFound):
						// Only a genuine miss is cached; anything else is
						// a directory failure, not a data problem.
						missed[name] = true
					default:
						return fmt.Errorf("resolve party %q: %w", name, err)
					}
				}
				if ok {
					row.PartyLedgerID = sql.NullInt64{Int64: ledger.ID, Valid: true}
					partyResolved = true
				}
			}
		}

		result := s.validator.Validate(session.ImportType, row.MappedData, cfg, RowLedgers{
			PartyResolved:      partyResolved,
			TaxLedgersResolved: taxOK,
		})
		row.Status = result.Status
		row.Errors = result.Errors
		row.Warnings = result.Warnings
		row.ValidatedAt = sql.NullTime{Time: now, Valid: true}
		dirty = append(dirty, *row)
	}

	if len(dirty) > 0 {
		if err := s.store.BulkUpdateRows(ctx, dirty); err != nil {
			return fmt.Errorf("persist validation results: %w", err)
		}
	}
	return s.refreshStats(ctx, session)
}

// refreshStats recomputes the denormalized per-status counts.
func (s *ImportService) refreshStats(ctx context.Context, session *models.ImportSession) error {
	stats, err := s.store.CountRowsByStatus(ctx, session.ID)
	if err != nil {
		return err
	}
	session.ValidRows = stats.Valid
	session.WarningRows = stats.Warning
	session.ErrorRows = stats.Error
	session.ProcessedRows = stats.Processed
	session.SyncedRows = stats.Synced
	return s.store.UpdateSessionStats(ctx, session)
}

func (s *ImportService) lockSession(sessionID int) func() {
	s.mu.Lock()
	lock, ok := s.locks[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[sessionID] = lock
	}
	s.mu.Unlock()
	lock.Lock()
	return lock.Unlock
}
