// Package schema is the static catalog of canonical voucher fields an
// import can map onto. The catalog is versioned with the code; declaration
// order is authoritative wherever field lists are reported.
package schema

import "tallyflow/internal/models"

// Field data types, used by clients to render inputs and by the validator
// to pick parse rules.
const (
	TypeString = "string"
	TypeNumber = "number"
	TypeDate   = "date"
)

type Field struct {
	Key      string `json:"key"`
	Label    string `json:"label"`
	Type     string `json:"type"`
	Required bool   `json:"required"`
}

// Canonical field keys.
const (
	FieldReferenceNo   = "reference_no"
	FieldDate          = "date"
	FieldPartyName     = "party_name"
	FieldAmount        = "amount"
	FieldTotalAmount   = "total_amount"
	FieldGSTNo         = "gst_no"
	FieldPlaceOfSupply = "place_of_supply"
	FieldCGST          = "cgst"
	FieldSGST          = "sgst"
	FieldIGST          = "igst"
	FieldItemName      = "item_name"
	FieldQuantity      = "quantity"
	FieldRate          = "rate"
	FieldUnit          = "unit"
	FieldHSNCode       = "hsn_code"
	FieldNarration     = "narration"
	FieldVoucherNumber = "voucher_number"
)

var withoutItemFields = []Field{
	{Key: FieldDate, Label: "Invoice Date", Type: TypeDate, Required: true},
	{Key: FieldPartyName, Label: "Party Name / Customer", Type: TypeString, Required: true},
	{Key: FieldAmount, Label: "Taxable Amount", Type: TypeNumber, Required: true},
	{Key: FieldReferenceNo, Label: "Reference No / Invoice No", Type: TypeString},
	{Key: FieldTotalAmount, Label: "Total Amount (incl. tax)", Type: TypeNumber},
	{Key: FieldGSTNo, Label: "GST Number", Type: TypeString},
	{Key: FieldPlaceOfSupply, Label: "Place of Supply", Type: TypeString},
	{Key: FieldCGST, Label: "CGST Amount", Type: TypeNumber},
	{Key: FieldSGST, Label: "SGST Amount", Type: TypeNumber},
	{Key: FieldIGST, Label: "IGST Amount", Type: TypeNumber},
	{Key: FieldNarration, Label: "Narration / Remarks", Type: TypeString},
	{Key: FieldVoucherNumber, Label: "Voucher Number", Type: TypeString},
}

var withItemFields = []Field{
	{Key: FieldDate, Label: "Invoice Date", Type: TypeDate, Required: true},
	{Key: FieldPartyName, Label: "Party Name / Customer", Type: TypeString, Required: true},
	{Key: FieldAmount, Label: "Amount", Type: TypeNumber, Required: true},
	{Key: FieldItemName, Label: "Item Name / Product", Type: TypeString, Required: true},
	{Key: FieldQuantity, Label: "Quantity", Type: TypeNumber, Required: true},
	{Key: FieldRate, Label: "Rate / Unit Price", Type: TypeNumber, Required: true},
	{Key: FieldReferenceNo, Label: "Reference No / Invoice No", Type: TypeString},
	{Key: FieldUnit, Label: "Unit (UOM)", Type: TypeString},
	{Key: FieldHSNCode, Label: "HSN Code", Type: TypeString},
	{Key: FieldGSTNo, Label: "GST Number", Type: TypeString},
	{Key: FieldPlaceOfSupply, Label: "Place of Supply", Type: TypeString},
	{Key: FieldCGST, Label: "CGST Amount", Type: TypeNumber},
	{Key: FieldSGST, Label: "SGST Amount", Type: TypeNumber},
	{Key: FieldIGST, Label: "IGST Amount", Type: TypeNumber},
	{Key: FieldNarration, Label: "Narration / Remarks", Type: TypeString},
	{Key: FieldVoucherNumber, Label: "Voucher Number", Type: TypeString},
}

// Fields returns the canonical fields for an import type, in declaration
// order. Unknown import types fall back to the accounting-invoice catalog.
func Fields(importType string) []Field {
	if importType == models.ImportWithItem {
		return withItemFields
	}
	return withoutItemFields
}

// RequiredKeys returns the required field keys for an import type, in
// declaration order.
func RequiredKeys(importType string) []string {
	var keys []string
	for _, f := range Fields(importType) {
		if f.Required {
			keys = append(keys, f.Key)
		}
	}
	return keys
}

// FieldByKey looks a field up in the catalog for the given import type.
func FieldByKey(importType, key string) (Field, bool) {
	for _, f := range Fields(importType) {
		if f.Key == key {
			return f, true
		}
	}
	return Field{}, false
}
