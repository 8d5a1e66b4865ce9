package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// GST calculation methods.
const (
	GSTFromExcel     = "from_excel"
	GSTAutoCalculate = "auto_calculate"
	GSTNoGST         = "no_gst"
)

// GSTRates are the slabs accepted for auto calculation.
var GSTRates = []int{5, 12, 18, 28}

// GSTConfig is a tagged variant keyed by Method. Rate and IsIGST are only
// meaningful for auto_calculate; the constructors below reject invalid
// combinations so a stored config is always coherent.
type GSTConfig struct {
	Method       string `json:"method"`
	Rate         int    `json:"rate,omitempty"`
	IsIGST       bool   `json:"is_igst,omitempty"`
	CGSTLedgerID int64  `json:"cgst_ledger_id,omitempty"`
	SGSTLedgerID int64  `json:"sgst_ledger_id,omitempty"`
	IGSTLedgerID int64  `json:"igst_ledger_id,omitempty"`
}

func FromExcelGST(cgstLedgerID, sgstLedgerID, igstLedgerID int64) GSTConfig {
	return GSTConfig{
		Method:       GSTFromExcel,
		CGSTLedgerID: cgstLedgerID,
		SGSTLedgerID: sgstLedgerID,
		IGSTLedgerID: igstLedgerID,
	}
}

func AutoCalculateGST(rate int, isIGST bool, cgstLedgerID, sgstLedgerID, igstLedgerID int64) (GSTConfig, error) {
	if !validGSTRate(rate) {
		return GSTConfig{}, fmt.Errorf("gst rate must be one of %v, got %d", GSTRates, rate)
	}
	return GSTConfig{
		Method:       GSTAutoCalculate,
		Rate:         rate,
		IsIGST:       isIGST,
		CGSTLedgerID: cgstLedgerID,
		SGSTLedgerID: sgstLedgerID,
		IGSTLedgerID: igstLedgerID,
	}, nil
}

func NoGST() GSTConfig {
	return GSTConfig{Method: GSTNoGST}
}

// Validate checks method/field coherence for configs arriving over the API.
func (c GSTConfig) Validate() error {
	switch c.Method {
	case GSTFromExcel:
		return nil
	case GSTAutoCalculate:
		if !validGSTRate(c.Rate) {
			return fmt.Errorf("gst rate must be one of %v, got %d", GSTRates, c.Rate)
		}
		return nil
	case GSTNoGST:
		if c.Rate != 0 {
			return fmt.Errorf("rate is not applicable when method is %s", GSTNoGST)
		}
		return nil
	default:
		return fmt.Errorf("unknown gst method %q", c.Method)
	}
}

// TaxLedgerIDs returns the referenced tax ledger IDs, zeros omitted.
func (c GSTConfig) TaxLedgerIDs() []int64 {
	var ids []int64
	for _, id := range []int64{c.CGSTLedgerID, c.SGSTLedgerID, c.IGSTLedgerID} {
		if id != 0 {
			ids = append(ids, id)
		}
	}
	return ids
}

func validGSTRate(rate int) bool {
	for _, r := range GSTRates {
		if rate == r {
			return true
		}
	}
	return false
}

func (c GSTConfig) Value() (driver.Value, error) {
	b, err := json.Marshal(c)
	return string(b), err
}

func (c *GSTConfig) Scan(src interface{}) error {
	return scanJSON(src, c)
}
