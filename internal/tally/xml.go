package tally

import (
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"tallyflow/internal/models"
)

// EntryNames are the ledger names each voucher line is booked against.
// The account and tax heads default to conventional names when the
// company has no explicit configuration.
type EntryNames struct {
	Party   string
	Account string
	CGST    string
	SGST    string
	IGST    string
}

// Tally import envelope. Debit amounts are negative, credit amounts
// positive, with ISDEEMEDPOSITIVE marking the debit side.
type envelope struct {
	XMLName xml.Name `xml:"ENVELOPE"`
	Header  header   `xml:"HEADER"`
	Body    body     `xml:"BODY"`
}

type header struct {
	TallyRequest string `xml:"TALLYREQUEST"`
}

type body struct {
	ImportData importData `xml:"IMPORTDATA"`
}

type importData struct {
	RequestDesc requestDesc `xml:"REQUESTDESC"`
	RequestData requestData `xml:"REQUESTDATA"`
}

type requestDesc struct {
	ReportName string `xml:"REPORTNAME"`
}

type requestData struct {
	TallyMessage tallyMessage `xml:"TALLYMESSAGE"`
}

type tallyMessage struct {
	UDF     string     `xml:"xmlns:UDF,attr"`
	Voucher voucherXML `xml:"VOUCHER"`
}

type voucherXML struct {
	VchType       string        `xml:"VCHTYPE,attr"`
	Action        string        `xml:"ACTION,attr"`
	ObjView       string        `xml:"OBJVIEW,attr"`
	Date          string        `xml:"DATE"`
	GUID          string        `xml:"GUID"`
	VoucherType   string        `xml:"VOUCHERTYPENAME"`
	VoucherNumber string        `xml:"VOUCHERNUMBER"`
	Reference     string        `xml:"REFERENCE"`
	Narration     string        `xml:"NARRATION"`
	PartyLedger   string        `xml:"PARTYLEDGERNAME"`
	EffectiveDate string        `xml:"EFFECTIVEDATE"`
	IsInvoice     string        `xml:"ISINVOICE"`
	Entries       []ledgerEntry `xml:"ALLLEDGERENTRIES.LIST"`
}

type ledgerEntry struct {
	LedgerName       string `xml:"LEDGERNAME"`
	IsDeemedPositive string `xml:"ISDEEMEDPOSITIVE"`
	IsPartyLedger    string `xml:"ISPARTYLEDGER"`
	Amount           string `xml:"AMOUNT"`
}

var vchTypeNames = map[string]string{
	models.VoucherTypeSales:    "Sales",
	models.VoucherTypePurchase: "Purchase",
	models.VoucherTypeJournal:  "Journal",
}

// BuildVoucherXML renders the Tally import envelope for one voucher.
func BuildVoucherXML(v *models.Voucher, names EntryNames) ([]byte, error) {
	tallyType, ok := vchTypeNames[strings.ToLower(v.VoucherType)]
	if !ok {
		tallyType = "Journal"
	}
	date := v.Date.Format("20060102")

	// Sales books the party on the debit side; purchase the reverse.
	partyDebit := strings.ToLower(v.VoucherType) == models.VoucherTypeSales

	totalTax := v.CGST.Add(v.SGST).Add(v.IGST)
	baseAmount := v.Amount.Sub(totalTax)

	entries := []ledgerEntry{
		newEntry(names.Party, v.Amount, partyDebit, true),
		newEntry(names.Account, baseAmount, !partyDebit, false),
	}
	for _, tax := range []struct {
		name   string
		amount decimal.Decimal
	}{
		{names.CGST, v.CGST},
		{names.SGST, v.SGST},
		{names.IGST, v.IGST},
	} {
		if tax.amount.IsPositive() {
			entries = append(entries, newEntry(tax.name, tax.amount, !partyDebit, false))
		}
	}

	env := envelope{
		Header: header{TallyRequest: "Import Data"},
		Body: body{ImportData: importData{
			RequestDesc: requestDesc{ReportName: "Vouchers"},
			RequestData: requestData{TallyMessage: tallyMessage{
				UDF: "TallyUDF",
				Voucher: voucherXML{
					VchType:       tallyType,
					Action:        "Create",
					ObjView:       "Accounting Voucher View",
					Date:          date,
					GUID:          v.GUID,
					VoucherType:   tallyType,
					VoucherNumber: v.VoucherNumber,
					Reference:     v.Reference,
					Narration:     v.Narration,
					PartyLedger:   names.Party,
					EffectiveDate: date,
					IsInvoice:     "No",
					Entries:       entries,
				},
			}},
		}},
	}

	out, err := xml.MarshalIndent(env, "", "    ")
	if err != nil {
		return nil, fmt.Errorf("marshal voucher xml: %w", err)
	}
	return out, nil
}

func newEntry(name string, amount decimal.Decimal, debit, party bool) ledgerEntry {
	value := amount.Abs()
	if debit {
		value = value.Neg()
	}
	return ledgerEntry{
		LedgerName:       name,
		IsDeemedPositive: yesNo(debit),
		IsPartyLedger:    yesNo(party),
		Amount:           value.StringFixed(2),
	}
}

func yesNo(v bool) string {
	if v {
		return "Yes"
	}
	return "No"
}
