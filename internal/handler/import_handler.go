package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"tallyflow/internal/config"
	"tallyflow/internal/models"
	"tallyflow/internal/schema"
	"tallyflow/internal/service"
	"tallyflow/internal/utils"
	"tallyflow/internal/worker"
)

type ImportHandler struct {
	imports      *service.ImportService
	spreadsheet  *service.SpreadsheetService
	materializer *service.Materializer
	asynqClient  *asynq.Client
	redis        *redis.Client
	cfg          *config.Config
	validate     *validator.Validate
}

func NewImportHandler(
	imports *service.ImportService,
	spreadsheet *service.SpreadsheetService,
	materializer *service.Materializer,
	asynqClient *asynq.Client,
	redisClient *redis.Client,
	cfg *config.Config,
) *ImportHandler {
	return &ImportHandler{
		imports:      imports,
		spreadsheet:  spreadsheet,
		materializer: materializer,
		asynqClient:  asynqClient,
		redis:        redisClient,
		cfg:          cfg,
		validate:     validator.New(),
	}
}

type createSessionJSONRequest struct {
	VoucherType string              `json:"voucher_type"`
	ImportType  string              `json:"import_type"`
	Filename    string              `json:"filename"`
	Columns     []string            `json:"columns" validate:"required,min=1"`
	Records     []map[string]string `json:"records" validate:"required,min=1"`
}

// CreateSession accepts a multipart upload with voucher_type and
// import_type form fields, decodes the file and opens an import session.
// Pre-decoded rows can be posted as JSON instead of a file.
func (h *ImportHandler) CreateSession(c *fiber.Ctx) error {
	companyID := c.Locals("company_id").(int64)

	if c.Is("json") {
		return h.createSessionFromJSON(c, companyID)
	}

	file, err := c.FormFile("file")
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "File is required", err)
	}

	ext := strings.ToLower(filepath.Ext(file.Filename))
	if ext != ".xlsx" && ext != ".xls" && ext != ".csv" {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Only .xlsx, .xls and .csv files are allowed", nil)
	}
	if file.Size > int64(h.cfg.UploadMaxSize) {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "File size exceeds maximum limit", nil)
	}

	filePath := filepath.Join(h.cfg.UploadPath, fmt.Sprintf("%d_%s%s", companyID, time.Now().Format("20060102150405"), ext))
	if err := c.SaveFile(file, filePath); err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to save file", err)
	}

	parsed, err := h.spreadsheet.ParseImportFile(filePath)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Failed to parse file", err)
	}

	session, err := h.imports.CreateSession(c.Context(), service.CreateSessionInput{
		CompanyID:   companyID,
		VoucherType: c.FormValue("voucher_type"),
		ImportType:  c.FormValue("import_type"),
		Filename:    file.Filename,
		Columns:     parsed.Columns,
		Records:     parsed.Records,
	})
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Failed to create import session", err)
	}

	return utils.SuccessResponse(c, "Import session created", fiber.Map{
		"session":          session,
		"proposed_mapping": h.imports.Mapper().ProposeMapping(session.DetectedColumns.Names()),
	})
}

func (h *ImportHandler) createSessionFromJSON(c *fiber.Ctx, companyID int64) error {
	var req createSessionJSONRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := h.validate.Struct(req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	session, err := h.imports.CreateSession(c.Context(), service.CreateSessionInput{
		CompanyID:   companyID,
		VoucherType: req.VoucherType,
		ImportType:  req.ImportType,
		Filename:    req.Filename,
		Columns:     req.Columns,
		Records:     req.Records,
	})
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Failed to create import session", err)
	}

	return utils.SuccessResponse(c, "Import session created", fiber.Map{
		"session":          session,
		"proposed_mapping": h.imports.Mapper().ProposeMapping(session.DetectedColumns.Names()),
	})
}

func (h *ImportHandler) ListSessions(c *fiber.Ctx) error {
	companyID := c.Locals("company_id").(int64)

	params := utils.GetPaginationParams(c)
	offset := utils.GetOffset(params.Page, params.Limit)

	sessions, total, err := h.imports.ListSessions(c.Context(), companyID, params.Limit, offset)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to retrieve sessions", err)
	}

	pagination := utils.CalculatePagination(params.Page, params.Limit, int64(total))
	return utils.PaginatedResponseBuilder(c, "Sessions retrieved successfully", fiber.Map{
		"sessions": sessions,
	}, pagination)
}

func (h *ImportHandler) GetSession(c *fiber.Ctx) error {
	session, err := h.sessionFromParams(c)
	if err != nil {
		return h.notFoundOrError(c, err)
	}
	return utils.SuccessResponse(c, "Session retrieved successfully", session)
}

// GetSessionByCode looks a session up by its public code.
func (h *ImportHandler) GetSessionByCode(c *fiber.Ctx) error {
	session, err := h.imports.GetSessionByCode(c.Context(), c.Params("code"))
	if err != nil {
		return h.notFoundOrError(c, err)
	}
	if companyID, ok := c.Locals("company_id").(int64); ok && session.CompanyID != companyID {
		return h.notFoundOrError(c, models.ErrSessionNotFound)
	}
	return utils.SuccessResponse(c, "Session retrieved successfully", session)
}

// GetMappingState returns everything the mapping step needs: detected
// columns with samples, the saved mapping, the field catalog and a few
// sample rows.
func (h *ImportHandler) GetMappingState(c *fiber.Ctx) error {
	session, err := h.sessionFromParams(c)
	if err != nil {
		return h.notFoundOrError(c, err)
	}

	samples, err := h.imports.SampleRows(c.Context(), session.ID, 10)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to load sample rows", err)
	}

	return utils.SuccessResponse(c, "Mapping state retrieved", fiber.Map{
		"session":          session,
		"detected_columns": session.DetectedColumns,
		"column_mapping":   session.ColumnMapping,
		"fields":           schema.Fields(session.ImportType),
		"sample_rows":      samples,
	})
}

func (h *ImportHandler) ProposeMapping(c *fiber.Ctx) error {
	session, err := h.sessionFromParams(c)
	if err != nil {
		return h.notFoundOrError(c, err)
	}

	mapping, err := h.imports.ProposeMapping(c.Context(), session.ID)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to propose mapping", err)
	}
	return utils.SuccessResponse(c, "Mapping proposed", fiber.Map{
		"proposed_mapping": mapping,
	})
}

type saveMappingRequest struct {
	Mapping map[string]string `json:"mapping" validate:"required,min=1"`
}

func (h *ImportHandler) SaveMapping(c *fiber.Ctx) error {
	session, err := h.sessionFromParams(c)
	if err != nil {
		return h.notFoundOrError(c, err)
	}

	var req saveMappingRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := h.validate.Struct(req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	updated, err := h.imports.SaveMapping(c.Context(), session.ID, models.StringMap(req.Mapping))
	if err != nil {
		var missing *models.MissingFieldsError
		if errors.As(err, &missing) {
			return utils.ErrorResponse(c, fiber.StatusUnprocessableEntity, "Required fields are not mapped", err)
		}
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Failed to save mapping", err)
	}
	return utils.SuccessResponse(c, "Mapping saved", updated)
}

type gstConfigRequest struct {
	Method       string `json:"method" validate:"required,oneof=from_excel auto_calculate no_gst"`
	Rate         int    `json:"rate" validate:"omitempty,oneof=5 12 18 28"`
	IsIGST       bool   `json:"is_igst"`
	CGSTLedgerID int64  `json:"cgst_ledger_id"`
	SGSTLedgerID int64  `json:"sgst_ledger_id"`
	IGSTLedgerID int64  `json:"igst_ledger_id"`
}

func (h *ImportHandler) SaveGSTConfig(c *fiber.Ctx) error {
	session, err := h.sessionFromParams(c)
	if err != nil {
		return h.notFoundOrError(c, err)
	}

	var req gstConfigRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := h.validate.Struct(req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	cfg := models.GSTConfig{
		Method:       req.Method,
		Rate:         req.Rate,
		IsIGST:       req.IsIGST,
		CGSTLedgerID: req.CGSTLedgerID,
		SGSTLedgerID: req.SGSTLedgerID,
		IGSTLedgerID: req.IGSTLedgerID,
	}
	updated, err := h.imports.SaveGSTConfig(c.Context(), session.ID, cfg)
	if err != nil {
		var stageErr *models.StageError
		if errors.As(err, &stageErr) {
			return utils.ErrorResponse(c, fiber.StatusConflict, "Session is not ready for tax configuration", err)
		}
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Failed to save GST configuration", err)
	}
	return utils.SuccessResponse(c, "GST configuration saved", updated)
}

// GetLedgerMappingState lists the columns not covered by the field
// mapping, ready to be booked against extra-charge ledgers.
func (h *ImportHandler) GetLedgerMappingState(c *fiber.Ctx) error {
	session, err := h.sessionFromParams(c)
	if err != nil {
		return h.notFoundOrError(c, err)
	}

	return utils.SuccessResponse(c, "Ledger mapping state retrieved", fiber.Map{
		"session":          session,
		"unmapped_columns": h.imports.UnmappedColumns(session),
		"ledger_mapping":   session.LedgerMapping,
	})
}

type ledgerMappingRequest struct {
	Mapping map[string]int64 `json:"mapping" validate:"required"`
}

func (h *ImportHandler) SaveLedgerMapping(c *fiber.Ctx) error {
	session, err := h.sessionFromParams(c)
	if err != nil {
		return h.notFoundOrError(c, err)
	}

	var req ledgerMappingRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := h.validate.Struct(req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	updated, err := h.imports.SaveLedgerMapping(c.Context(), session.ID, models.LedgerMap(req.Mapping))
	if err != nil {
		var stageErr *models.StageError
		if errors.As(err, &stageErr) {
			return utils.ErrorResponse(c, fiber.StatusConflict, "Session is not ready for ledger mapping", err)
		}
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Failed to save ledger mapping", err)
	}
	return utils.SuccessResponse(c, "Ledger mapping saved", updated)
}

func (h *ImportHandler) ListRows(c *fiber.Ctx) error {
	session, err := h.sessionFromParams(c)
	if err != nil {
		return h.notFoundOrError(c, err)
	}

	rows, stats, err := h.imports.ListRows(c.Context(), session.ID, c.Query("status"))
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to retrieve rows", err)
	}
	return utils.SuccessResponse(c, "Rows retrieved successfully", fiber.Map{
		"rows":  rows,
		"stats": stats,
	})
}

type updateRowRequest struct {
	PartyLedgerID *int64            `json:"party_ledger_id"`
	MappedData    map[string]string `json:"mapped_data"`
}

func (h *ImportHandler) UpdateRow(c *fiber.Ctx) error {
	session, err := h.sessionFromParams(c)
	if err != nil {
		return h.notFoundOrError(c, err)
	}
	rowID, err := strconv.ParseInt(c.Params("rowId"), 10, 64)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid row ID", err)
	}

	var req updateRowRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}

	row, err := h.imports.UpdateRow(c.Context(), session.ID, rowID, service.UpdateRowInput{
		PartyLedgerID: req.PartyLedgerID,
		MappedData:    req.MappedData,
	})
	if err != nil {
		if errors.Is(err, models.ErrRowNotFound) {
			return utils.ErrorResponse(c, fiber.StatusNotFound, "Row not found", err)
		}
		var stageErr *models.StageError
		if errors.As(err, &stageErr) {
			return utils.ErrorResponse(c, fiber.StatusConflict, "Row can no longer be edited", err)
		}
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Failed to update row", err)
	}
	return utils.SuccessResponse(c, "Row updated", row)
}

type bulkAssignPartyRequest struct {
	PartyLedgerID int64   `json:"party_ledger_id" validate:"required"`
	RowIDs        []int64 `json:"row_ids" validate:"required,min=1"`
}

// BulkUpdateRows assigns a party ledger to many rows in one call.
func (h *ImportHandler) BulkUpdateRows(c *fiber.Ctx) error {
	session, err := h.sessionFromParams(c)
	if err != nil {
		return h.notFoundOrError(c, err)
	}

	var req bulkAssignPartyRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := h.validate.Struct(req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	updated, err := h.imports.BulkAssignParty(c.Context(), session.ID, req.PartyLedgerID, req.RowIDs)
	if err != nil {
		if errors.Is(err, models.ErrLedgerNotFound) {
			return utils.ErrorResponse(c, fiber.StatusNotFound, "Party ledger not found", err)
		}
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Failed to update rows", err)
	}
	return utils.SuccessResponse(c, "Rows updated", fiber.Map{
		"updated_rows": updated,
	})
}

type createPartyRequest struct {
	Name   string  `json:"name" validate:"required"`
	GSTIN  string  `json:"gstin"`
	RowIDs []int64 `json:"row_ids"`
}

// CreateParty creates (or reuses) a party ledger and attaches it to the
// named rows in one call.
func (h *ImportHandler) CreateParty(c *fiber.Ctx) error {
	session, err := h.sessionFromParams(c)
	if err != nil {
		return h.notFoundOrError(c, err)
	}

	var req createPartyRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := h.validate.Struct(req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	ledger, attached, err := h.imports.CreateParty(c.Context(), session.ID, service.CreatePartyInput{
		Name:   req.Name,
		GSTIN:  req.GSTIN,
		RowIDs: req.RowIDs,
	})
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Failed to create party ledger", err)
	}
	return utils.SuccessResponse(c, "Party ledger created", fiber.Map{
		"ledger":        ledger,
		"attached_rows": attached,
	})
}

type rowSelectionRequest struct {
	RowIDs []int64 `json:"row_ids"`
}

// ProcessRows materializes vouchers for the selected rows synchronously.
func (h *ImportHandler) ProcessRows(c *fiber.Ctx) error {
	session, err := h.sessionFromParams(c)
	if err != nil {
		return h.notFoundOrError(c, err)
	}

	var req rowSelectionRequest
	if err := c.BodyParser(&req); err != nil && len(c.Body()) > 0 {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}

	result, err := h.materializer.Process(c.Context(), session.ID, req.RowIDs)
	if err != nil {
		var stageErr *models.StageError
		if errors.As(err, &stageErr) {
			return utils.ErrorResponse(c, fiber.StatusConflict, "Session is not ready for processing", err)
		}
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to process rows", err)
	}
	return utils.SuccessResponse(c, "Rows processed", result)
}

// PushRows queues a background push of the session's processed vouchers.
func (h *ImportHandler) PushRows(c *fiber.Ctx) error {
	session, err := h.sessionFromParams(c)
	if err != nil {
		return h.notFoundOrError(c, err)
	}

	var req rowSelectionRequest
	if err := c.BodyParser(&req); err != nil && len(c.Body()) > 0 {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}

	if h.asynqClient == nil {
		return utils.ErrorResponse(c, fiber.StatusServiceUnavailable, "Background job processing is not available (Redis not connected)", nil)
	}

	payload, _ := json.Marshal(worker.PushTaskPayload{
		SessionID: session.ID,
		RowIDs:    req.RowIDs,
	})
	task := asynq.NewTask(worker.TaskVoucherPush, payload)
	info, err := h.asynqClient.Enqueue(task)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to queue push task", err)
	}

	return utils.SuccessResponse(c, "Push started", fiber.Map{
		"job_id":  info.ID,
		"session": session,
	})
}

// PushStatus reads the background push progress from Redis.
func (h *ImportHandler) PushStatus(c *fiber.Ctx) error {
	session, err := h.sessionFromParams(c)
	if err != nil {
		return h.notFoundOrError(c, err)
	}

	progress, err := h.redis.Get(c.Context(), worker.ProgressKey(session.ID)).Result()
	if err == redis.Nil {
		progress = "0.00"
	} else if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to read push progress", err)
	}

	response := fiber.Map{"progress": progress}
	if summary, err := h.redis.Get(c.Context(), fmt.Sprintf("push:result:%d", session.ID)).Result(); err == nil {
		var result service.PushResult
		if json.Unmarshal([]byte(summary), &result) == nil {
			response["result"] = result
		}
	}
	return utils.SuccessResponse(c, "Push status retrieved", response)
}

// ExportSession downloads the session's rows and diagnostics as Excel.
func (h *ImportHandler) ExportSession(c *fiber.Ctx) error {
	session, err := h.sessionFromParams(c)
	if err != nil {
		return h.notFoundOrError(c, err)
	}

	rows, _, err := h.imports.ListRows(c.Context(), session.ID, "")
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to retrieve rows", err)
	}

	exportFileName := fmt.Sprintf("export_%s_%s.xlsx", session.SessionCode, time.Now().Format("20060102_150405"))
	exportPath := filepath.Join(h.cfg.ExportPath, exportFileName)
	if err := h.spreadsheet.ExportSession(session, rows, exportPath); err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to export session", err)
	}
	return c.Download(exportPath, exportFileName)
}

func (h *ImportHandler) sessionFromParams(c *fiber.Ctx) (*models.ImportSession, error) {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return nil, fmt.Errorf("invalid session ID: %w", err)
	}
	session, err := h.imports.GetSession(c.Context(), id)
	if err != nil {
		return nil, err
	}
	// Sessions are company scoped.
	if companyID, ok := c.Locals("company_id").(int64); ok && session.CompanyID != companyID {
		return nil, models.ErrSessionNotFound
	}
	return session, nil
}

func (h *ImportHandler) notFoundOrError(c *fiber.Ctx, err error) error {
	if errors.Is(err, models.ErrSessionNotFound) {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Session not found", err)
	}
	return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request", err)
}
