package service

import (
	"fmt"

	"tallyflow/internal/models"
	"tallyflow/internal/schema"
)

// RowLedgers carries the ledger-resolution results a validation run needs.
// Lookups happen outside the validator (and are cached per run) so the
// validator itself stays a pure function of its inputs.
type RowLedgers struct {
	// PartyResolved is true when the row has a party ledger assigned or
	// one resolves by exact name.
	PartyResolved bool
	// TaxLedgersResolved is true when every tax ledger referenced by the
	// GST config exists.
	TaxLedgersResolved bool
}

// ValidationResult is the outcome for a single row.
type ValidationResult struct {
	Status   string
	Errors   []string
	Warnings []string
}

// RowValidator applies the per-row rules in a fixed order. The first
// failing error rule decides the status and stops further error rules;
// warning rules always run.
type RowValidator struct{}

func NewRowValidator() *RowValidator {
	return &RowValidator{}
}

func (v *RowValidator) Validate(importType string, mapped models.StringMap, cfg *models.GSTConfig, ledgers RowLedgers) ValidationResult {
	var errs, warnings []string

	// Rule 1: every required field has a non-empty mapped value.
	for _, key := range schema.RequiredKeys(importType) {
		if mapped[key] == "" {
			field, _ := schema.FieldByKey(importType, key)
			errs = append(errs, fmt.Sprintf("%s is required", field.Label))
		}
	}

	// Rule 2: amount parses as a positive number.
	if len(errs) == 0 {
		if amount, err := parseNumber(mapped[schema.FieldAmount]); err != nil {
			errs = append(errs, fmt.Sprintf("invalid amount %q", mapped[schema.FieldAmount]))
		} else if !amount.IsPositive() {
			errs = append(errs, fmt.Sprintf("amount must be positive, got %s", amount))
		}
	}

	// Rule 3: date parses under an accepted format.
	if len(errs) == 0 {
		if _, err := parseDate(mapped[schema.FieldDate]); err != nil {
			errs = append(errs, fmt.Sprintf("invalid date %q", mapped[schema.FieldDate]))
		}
	}

	// Rule 4: party present but no resolvable ledger. The row stays
	// actionable; the client can map or create the party later.
	if party := mapped[schema.FieldPartyName]; party != "" && !ledgers.PartyResolved {
		warnings = append(warnings, fmt.Sprintf("party ledger not mapped for %q", party))
	}

	// Rule 5: GST configured but its tax ledgers do not all resolve.
	if cfg != nil && cfg.Method != models.GSTNoGST && !ledgers.TaxLedgersResolved {
		warnings = append(warnings, "one or more tax ledgers are not mapped")
	}

	result := ValidationResult{Errors: errs, Warnings: warnings}
	switch {
	case len(errs) > 0:
		result.Status = models.RowStatusError
	case len(warnings) > 0:
		result.Status = models.RowStatusWarning
	default:
		result.Status = models.RowStatusValid
	}
	return result
}
