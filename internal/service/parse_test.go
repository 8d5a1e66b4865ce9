package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNumber(t *testing.T) {
	d, err := parseNumber("1,23,456.78")
	require.NoError(t, err)
	assert.Equal(t, "123456.78", d.String())

	d, err = parseNumber("  42 ")
	require.NoError(t, err)
	assert.Equal(t, "42", d.String())

	_, err = parseNumber("")
	assert.Error(t, err)

	_, err = parseNumber("abc")
	assert.Error(t, err)
}

func TestParseNumberOrZero(t *testing.T) {
	assert.True(t, parseNumberOrZero("").IsZero())
	assert.True(t, parseNumberOrZero("n/a").IsZero())
	assert.Equal(t, "18.5", parseNumberOrZero("18.5").String())
}

func TestParseDateFormats(t *testing.T) {
	expected := time.Date(2025, time.March, 15, 0, 0, 0, 0, time.UTC)
	for _, raw := range []string{"15-03-2025", "2025-03-15", "15/03/2025", "2025/03/15", "15-Mar-2025"} {
		got, err := parseDate(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, expected, got, raw)
	}
}

func TestParseDateDayFirst(t *testing.T) {
	// 01-02-2025 must read as 1 February, not 2 January.
	got, err := parseDate("01-02-2025")
	require.NoError(t, err)
	assert.Equal(t, time.February, got.Month())
}

func TestParseDateRejectsUnknown(t *testing.T) {
	_, err := parseDate("March 15, 2025")
	assert.Error(t, err)
	_, err = parseDate("")
	assert.Error(t, err)
}
