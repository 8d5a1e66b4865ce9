package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// acceptedDateFormats are the formats a mapped date value may arrive in,
// tried in order. DD-MM-YYYY first because that is what Indian exports
// overwhelmingly use.
var acceptedDateFormats = []string{
	"02-01-2006",
	"2006-01-02",
	"02/01/2006",
	"2006/01/02",
	"02-Jan-2006",
}

// parseNumber parses a mapped numeric cell. Thousands separators and
// surrounding whitespace are tolerated; empty input is an error so callers
// decide whether empty means zero.
func parseNumber(raw string) (decimal.Decimal, error) {
	cleaned := strings.TrimSpace(strings.ReplaceAll(raw, ",", ""))
	if cleaned == "" {
		return decimal.Zero, fmt.Errorf("empty number")
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid number %q", raw)
	}
	return d, nil
}

// parseNumberOrZero reads an optional numeric cell, treating empty or
// missing values as zero (from_excel tax columns behave this way).
func parseNumberOrZero(raw string) decimal.Decimal {
	d, err := parseNumber(raw)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// parseDate parses a mapped date cell against the accepted formats.
func parseDate(raw string) (time.Time, error) {
	cleaned := strings.TrimSpace(raw)
	if cleaned == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	for _, layout := range acceptedDateFormats {
		if t, err := time.Parse(layout, cleaned); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", raw)
}
