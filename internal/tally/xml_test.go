package tally

import (
	"database/sql"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tallyflow/internal/models"
)

func testVoucher() *models.Voucher {
	return &models.Voucher{
		GUID:          "4f5a9c2e-0000-0000-0000-000000000000",
		CompanyID:     1,
		VoucherType:   models.VoucherTypeSales,
		InvoiceType:   models.InvoiceTypeAccounting,
		VoucherNumber: "INV-042",
		Date:          time.Date(2025, time.March, 15, 0, 0, 0, 0, time.UTC),
		Reference:     "INV-042",
		PartyName:     "Acme Traders",
		PartyLedgerID: sql.NullInt64{Int64: 7, Valid: true},
		Amount:        decimal.NewFromInt(1180),
		CGST:          decimal.NewFromInt(90),
		SGST:          decimal.NewFromInt(90),
		IGST:          decimal.Zero,
		Narration:     "March supply",
		Status:        models.VoucherStatusDraft,
	}
}

func TestBuildVoucherXML(t *testing.T) {
	names := EntryNames{
		Party:   "Acme Traders",
		Account: "Sales Account",
		CGST:    "Output CGST",
		SGST:    "Output SGST",
		IGST:    "Output IGST",
	}
	out, err := BuildVoucherXML(testVoucher(), names)
	require.NoError(t, err)
	xml := string(out)

	assert.Contains(t, xml, `VCHTYPE="Sales"`)
	assert.Contains(t, xml, "<DATE>20250315</DATE>")
	assert.Contains(t, xml, "<GUID>4f5a9c2e-0000-0000-0000-000000000000</GUID>")
	assert.Contains(t, xml, "<VOUCHERNUMBER>INV-042</VOUCHERNUMBER>")
	assert.Contains(t, xml, "<PARTYLEDGERNAME>Acme Traders</PARTYLEDGERNAME>")

	// Sales: party on the debit side carries the full amount as a negative.
	assert.Contains(t, xml, "<AMOUNT>-1180.00</AMOUNT>")
	// Account entry is the base amount (1180 - 180 tax) on the credit side.
	assert.Contains(t, xml, "<AMOUNT>1000.00</AMOUNT>")
	assert.Contains(t, xml, "<LEDGERNAME>Output CGST</LEDGERNAME>")
	assert.Contains(t, xml, "<LEDGERNAME>Output SGST</LEDGERNAME>")
	// Zero IGST produces no entry.
	assert.NotContains(t, xml, "Output IGST")
}

func TestBuildVoucherXMLEscapesContent(t *testing.T) {
	voucher := testVoucher()
	voucher.Narration = `Supply of "nuts & bolts" <urgent>`
	out, err := BuildVoucherXML(voucher, EntryNames{Party: "A & B Traders", Account: "Sales Account"})
	require.NoError(t, err)
	xml := string(out)

	assert.Contains(t, xml, "A &amp; B Traders")
	assert.NotContains(t, xml, "<urgent>")
}

func TestBuildVoucherXMLPurchaseFlipsSides(t *testing.T) {
	voucher := testVoucher()
	voucher.VoucherType = models.VoucherTypePurchase
	out, err := BuildVoucherXML(voucher, EntryNames{Party: "Acme Traders", Account: "Purchase Account"})
	require.NoError(t, err)
	xml := string(out)

	assert.Contains(t, xml, `VCHTYPE="Purchase"`)
	// Purchase: party is the credit side, full amount positive.
	assert.Contains(t, xml, "<AMOUNT>1180.00</AMOUNT>")
	assert.Contains(t, xml, "<AMOUNT>-1000.00</AMOUNT>")
}

func TestClassifyResponse(t *testing.T) {
	created := []byte(`<ENVELOPE><BODY><DATA><IMPORTRESULT><CREATED>1</CREATED><ERRORS>0</ERRORS></IMPORTRESULT></DATA></BODY></ENVELOPE>`)
	assert.NoError(t, classifyResponse(created))

	altered := []byte(`<ENVELOPE><BODY><DATA><IMPORTRESULT><ALTERED>1</ALTERED></IMPORTRESULT></DATA></BODY></ENVELOPE>`)
	assert.NoError(t, classifyResponse(altered))
}

func TestClassifyResponseLineError(t *testing.T) {
	body := []byte(`<ENVELOPE><BODY><DATA><LINEERROR>Ledger 'Acme Traders' does not exist!</LINEERROR></DATA></BODY></ENVELOPE>`)
	err := classifyResponse(body)
	require.Error(t, err)
	assert.True(t, models.IsSyncRejected(err))
	assert.Contains(t, err.Error(), "does not exist")
}

func TestClassifyResponseErrorCount(t *testing.T) {
	body := []byte(`<ENVELOPE><BODY><DATA><IMPORTRESULT><CREATED>0</CREATED><ERRORS>1</ERRORS></IMPORTRESULT></DATA></BODY></ENVELOPE>`)
	err := classifyResponse(body)
	require.Error(t, err)
	assert.True(t, models.IsSyncRejected(err))
}

func TestClassifyResponseNoResultIsTransient(t *testing.T) {
	err := classifyResponse([]byte(`<ENVELOPE></ENVELOPE>`))
	require.Error(t, err)
	assert.False(t, models.IsSyncRejected(err), "an unreadable report is retryable")
}
