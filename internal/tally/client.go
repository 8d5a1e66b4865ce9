package tally

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"tallyflow/internal/models"
)

// LedgerNamer resolves ledger IDs to their canonical names for voucher
// line rendering.
type LedgerNamer interface {
	GetByID(ctx context.Context, id int64) (*models.Ledger, error)
}

// Ledger names used when the company has no explicit head configuration.
// Matches the masters the desktop connector seeds on first sync.
var defaultNames = map[string]EntryNames{
	models.VoucherTypeSales:    {Account: "Sales Account", CGST: "CGST", SGST: "SGST", IGST: "IGST"},
	models.VoucherTypePurchase: {Account: "Purchase Account", CGST: "CGST", SGST: "SGST", IGST: "IGST"},
	models.VoucherTypeJournal:  {Account: "Suspense Account", CGST: "CGST", SGST: "SGST", IGST: "IGST"},
}

// Client pushes vouchers to the desktop connector in front of Tally.
// Implements service.LedgerSync: a rejection from Tally's import report
// comes back as *models.SyncRejectedError, anything else is transient.
type Client struct {
	baseURL string
	http    *http.Client
	ledgers LedgerNamer
	log     *logrus.Logger
}

func NewClient(baseURL string, ledgers LedgerNamer, timeout time.Duration, log *logrus.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		ledgers: ledgers,
		log:     log,
	}
}

func (c *Client) SendVoucher(ctx context.Context, voucher *models.Voucher) error {
	names := defaultNames[strings.ToLower(voucher.VoucherType)]
	names.Party = voucher.PartyName
	if voucher.PartyLedgerID.Valid {
		ledger, err := c.ledgers.GetByID(ctx, voucher.PartyLedgerID.Int64)
		if err != nil {
			return &models.SyncRejectedError{Reason: fmt.Sprintf("party ledger %d not found", voucher.PartyLedgerID.Int64)}
		}
		names.Party = ledger.Name
	}
	if names.Party == "" {
		return &models.SyncRejectedError{Reason: "voucher has no party ledger"}
	}

	payload, err := BuildVoucherXML(voucher, names)
	if err != nil {
		return &models.SyncRejectedError{Reason: err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/import", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/xml")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("tally connector unreachable: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read connector response: %w", err)
	}

	c.log.WithFields(logrus.Fields{
		"guid":        voucher.GUID,
		"status_code": resp.StatusCode,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Debug("voucher sent to tally connector")

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("tally connector returned HTTP %d", resp.StatusCode)
	}
	return classifyResponse(respBody)
}

// classifyResponse walks the import report. A LINEERROR or a nonzero
// ERRORS count is a hard rejection; CREATED or ALTERED counts mean the
// voucher landed.
func classifyResponse(body []byte) error {
	var (
		lineError string
		created   int
		altered   int
		errCount  int
	)

	decoder := xml.NewDecoder(bytes.NewReader(body))
	var current string
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("parse connector response: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			current = t.Name.Local
		case xml.CharData:
			text := strings.TrimSpace(string(t))
			if text == "" {
				continue
			}
			switch current {
			case "LINEERROR":
				lineError = text
			case "CREATED":
				created, _ = strconv.Atoi(text)
			case "ALTERED":
				altered, _ = strconv.Atoi(text)
			case "ERRORS":
				errCount, _ = strconv.Atoi(text)
			}
		case xml.EndElement:
			current = ""
		}
	}

	if lineError != "" {
		return &models.SyncRejectedError{Reason: lineError}
	}
	if errCount > 0 {
		return &models.SyncRejectedError{Reason: fmt.Sprintf("tally reported %d import errors", errCount)}
	}
	if created > 0 || altered > 0 {
		return nil
	}
	return fmt.Errorf("tally connector gave no import result")
}
