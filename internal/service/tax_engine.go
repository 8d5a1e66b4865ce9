package service

import (
	"fmt"

	"github.com/shopspring/decimal"

	"tallyflow/internal/models"
	"tallyflow/internal/schema"
)

// taxScale is the rounding applied to every computed tax amount: two
// decimal places, halves rounded away from zero.
const taxScale = 2

// TaxBreakup is the tax engine output for one row.
type TaxBreakup struct {
	CGST         decimal.Decimal `json:"cgst"`
	SGST         decimal.Decimal `json:"sgst"`
	IGST         decimal.Decimal `json:"igst"`
	TaxableValue decimal.Decimal `json:"taxable_value"`
	// Skipped is set when the config method is no_gst: the amounts are
	// forced to zero regardless of anything in the row.
	Skipped bool `json:"skipped"`
}

// TaxEngine computes GST line amounts from a mapped record and a GST
// config. It is pure: no I/O, no stored state.
type TaxEngine struct{}

func NewTaxEngine() *TaxEngine {
	return &TaxEngine{}
}

// Compute derives the tax breakup for a mapped row.
//
//   - from_excel: cgst/sgst/igst are passed through verbatim from the
//     mapped columns; empty or missing cells count as zero.
//   - auto_calculate: igst = amount*rate/100 when inter-state, otherwise
//     cgst = sgst = amount*rate/200.
//   - no_gst: all components forced to zero.
func (e *TaxEngine) Compute(mapped models.StringMap, cfg models.GSTConfig) (TaxBreakup, error) {
	if cfg.Method == models.GSTNoGST {
		taxable := parseNumberOrZero(mapped[schema.FieldAmount])
		return TaxBreakup{
			CGST:         decimal.Zero,
			SGST:         decimal.Zero,
			IGST:         decimal.Zero,
			TaxableValue: taxable,
			Skipped:      true,
		}, nil
	}

	amount, err := parseNumber(mapped[schema.FieldAmount])
	if err != nil {
		return TaxBreakup{}, fmt.Errorf("taxable amount: %w", err)
	}

	switch cfg.Method {
	case models.GSTFromExcel:
		return TaxBreakup{
			CGST:         parseNumberOrZero(mapped[schema.FieldCGST]).Round(taxScale),
			SGST:         parseNumberOrZero(mapped[schema.FieldSGST]).Round(taxScale),
			IGST:         parseNumberOrZero(mapped[schema.FieldIGST]).Round(taxScale),
			TaxableValue: amount,
		}, nil

	case models.GSTAutoCalculate:
		rate := decimal.NewFromInt(int64(cfg.Rate))
		breakup := TaxBreakup{
			CGST:         decimal.Zero,
			SGST:         decimal.Zero,
			IGST:         decimal.Zero,
			TaxableValue: amount,
		}
		if cfg.IsIGST {
			breakup.IGST = amount.Mul(rate).Div(decimal.NewFromInt(100)).Round(taxScale)
		} else {
			half := amount.Mul(rate).Div(decimal.NewFromInt(200)).Round(taxScale)
			breakup.CGST = half
			breakup.SGST = half
		}
		return breakup, nil

	default:
		return TaxBreakup{}, fmt.Errorf("unknown gst method %q", cfg.Method)
	}
}
