package service

import (
	"fmt"
	"strings"

	"tallyflow/internal/models"
	"tallyflow/internal/schema"
)

// mappingRule matches a lower-cased source column name against substring
// hints. Rules are ordered: more specific hints (the tax heads) must win
// over the generic "amount" rule, so the amount rule excludes them.
type mappingRule struct {
	field    string
	anyOf    []string
	allOf    []string
	noneOf   []string
}

var mappingRules = []mappingRule{
	{field: schema.FieldDate, anyOf: []string{"date"}},
	{field: schema.FieldPartyName, anyOf: []string{"party", "customer", "vendor"}},
	{field: schema.FieldReferenceNo, allOf: []string{"invoice", "no"}},
	{field: schema.FieldAmount, anyOf: []string{"amount"}, noneOf: []string{"cgst", "sgst", "igst"}},
	{field: schema.FieldCGST, anyOf: []string{"cgst"}},
	{field: schema.FieldSGST, anyOf: []string{"sgst"}},
	{field: schema.FieldIGST, anyOf: []string{"igst"}},
	{field: schema.FieldItemName, anyOf: []string{"item", "product"}},
	{field: schema.FieldQuantity, anyOf: []string{"qty", "quantity"}},
	{field: schema.FieldRate, anyOf: []string{"rate", "price"}},
	{field: schema.FieldNarration, anyOf: []string{"narration", "remark"}},
}

func (r mappingRule) matches(name string) bool {
	for _, hint := range r.noneOf {
		if strings.Contains(name, hint) {
			return false
		}
	}
	for _, hint := range r.allOf {
		if !strings.Contains(name, hint) {
			return false
		}
	}
	if len(r.anyOf) == 0 {
		return len(r.allOf) > 0
	}
	for _, hint := range r.anyOf {
		if strings.Contains(name, hint) {
			return true
		}
	}
	return false
}

// ColumnMapper infers and validates column-to-field mappings.
type ColumnMapper struct{}

func NewColumnMapper() *ColumnMapper {
	return &ColumnMapper{}
}

// ProposeMapping suggests a mapping for the detected columns. Best effort
// and stateless: it never persists anything and never looks at what the
// client may have mapped before. First matching rule wins per column;
// columns matching no rule are left out of the proposal.
func (m *ColumnMapper) ProposeMapping(columns []string) models.StringMap {
	proposal := make(models.StringMap)
	for _, col := range columns {
		name := strings.ToLower(col)
		for _, rule := range mappingRules {
			if rule.matches(name) {
				proposal[col] = rule.field
				break
			}
		}
	}
	return proposal
}

// ValidateMapping checks a mapping the client wants to save: every target
// field must exist in the catalog for the import type, and every required
// field must be covered by at least one source column. Missing required
// fields are reported in catalog declaration order.
func (m *ColumnMapper) ValidateMapping(importType string, mapping models.StringMap) error {
	for col, field := range mapping {
		if field == "" {
			continue
		}
		if _, ok := schema.FieldByKey(importType, field); !ok {
			return fmt.Errorf("column %q mapped to unknown field %q", col, field)
		}
	}

	covered := make(map[string]bool)
	for _, field := range mapping {
		covered[field] = true
	}

	var missing []string
	for _, key := range schema.RequiredKeys(importType) {
		if !covered[key] {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return &models.MissingFieldsError{Fields: missing}
	}
	return nil
}

// ApplyMapping derives a row's canonical record from its raw record.
// Columns mapped to an empty field key are ignored.
func (m *ColumnMapper) ApplyMapping(raw models.StringMap, mapping models.StringMap) models.StringMap {
	mapped := make(models.StringMap)
	for col, field := range mapping {
		if field == "" {
			continue
		}
		if value, ok := raw[col]; ok {
			mapped[field] = value
		}
	}
	return mapped
}

// UnmappedColumns returns the detected columns not covered by the field
// mapping, candidates for the ledger-mapping step.
func (m *ColumnMapper) UnmappedColumns(columns []string, mapping models.StringMap) []string {
	var unmapped []string
	for _, col := range columns {
		if field, ok := mapping[col]; !ok || field == "" {
			unmapped = append(unmapped, col)
		}
	}
	return unmapped
}
