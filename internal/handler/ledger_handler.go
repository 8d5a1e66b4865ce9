package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"tallyflow/internal/models"
	"tallyflow/internal/repository"
	"tallyflow/internal/service"
	"tallyflow/internal/utils"
)

type LedgerHandler struct {
	ledgerRepo *repository.LedgerRepository
	resolver   *service.LedgerResolver
	validate   *validator.Validate
}

func NewLedgerHandler(ledgerRepo *repository.LedgerRepository, resolver *service.LedgerResolver) *LedgerHandler {
	return &LedgerHandler{
		ledgerRepo: ledgerRepo,
		resolver:   resolver,
		validate:   validator.New(),
	}
}

func (h *LedgerHandler) ListLedgers(c *fiber.Ctx) error {
	companyID := c.Locals("company_id").(int64)

	ledgers, err := h.ledgerRepo.List(c.Context(), companyID)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to retrieve ledgers", err)
	}
	return utils.SuccessResponse(c, "Ledgers retrieved successfully", ledgers)
}

// ListTaxLedgers returns the ledgers usable as GST heads, synced masters
// first.
func (h *LedgerHandler) ListTaxLedgers(c *fiber.Ctx) error {
	companyID := c.Locals("company_id").(int64)

	ledgers, err := h.ledgerRepo.ListTaxLedgers(c.Context(), companyID)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to retrieve tax ledgers", err)
	}
	return utils.SuccessResponse(c, "Tax ledgers retrieved successfully", ledgers)
}

type createLedgerRequest struct {
	Name        string `json:"name" validate:"required"`
	LedgerGroup string `json:"ledger_group"`
	ParentGroup string `json:"parent_group"`
	GSTIN       string `json:"gstin"`
}

// CreateLedger creates a ledger directly, outside any import session.
// Reusing an existing name returns the existing ledger.
func (h *LedgerHandler) CreateLedger(c *fiber.Ctx) error {
	companyID := c.Locals("company_id").(int64)

	var req createLedgerRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := h.validate.Struct(req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	group, parent := req.LedgerGroup, req.ParentGroup
	if group == "" {
		group, parent = models.PartyGroupFor(models.VoucherTypeSales)
	}
	ledger, err := h.resolver.CreateLedger(c.Context(), companyID, req.Name, service.LedgerAttrs{
		LedgerGroup: group,
		ParentGroup: parent,
		GSTIN:       req.GSTIN,
	})
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Failed to create ledger", err)
	}
	return utils.SuccessResponse(c, "Ledger created", ledger)
}
