package tally

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tallyflow/internal/models"
)

type staticNamer struct {
	ledger *models.Ledger
}

func (n staticNamer) GetByID(_ context.Context, id int64) (*models.Ledger, error) {
	if n.ledger != nil && n.ledger.ID == id {
		return n.ledger, nil
	}
	return nil, models.ErrLedgerNotFound
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestSendVoucherSuccess(t *testing.T) {
	var received []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received, _ = io.ReadAll(r.Body)
		w.Write([]byte(`<ENVELOPE><BODY><DATA><IMPORTRESULT><CREATED>1</CREATED></IMPORTRESULT></DATA></BODY></ENVELOPE>`))
	}))
	defer server.Close()

	namer := staticNamer{ledger: &models.Ledger{ID: 7, Name: "Acme Traders (Canonical)"}}
	client := NewClient(server.URL, namer, time.Second, quietLogger())

	err := client.SendVoucher(context.Background(), testVoucher())
	require.NoError(t, err)
	assert.Contains(t, string(received), "Acme Traders (Canonical)", "party name comes from the directory, not the row")
	assert.Contains(t, string(received), "<TALLYREQUEST>Import Data</TALLYREQUEST>")
}

func TestSendVoucherRejection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<ENVELOPE><BODY><DATA><LINEERROR>Duplicate voucher number</LINEERROR></DATA></BODY></ENVELOPE>`))
	}))
	defer server.Close()

	namer := staticNamer{ledger: &models.Ledger{ID: 7, Name: "Acme Traders"}}
	client := NewClient(server.URL, namer, time.Second, quietLogger())

	err := client.SendVoucher(context.Background(), testVoucher())
	require.Error(t, err)
	assert.True(t, models.IsSyncRejected(err))
}

func TestSendVoucherServerErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	namer := staticNamer{ledger: &models.Ledger{ID: 7, Name: "Acme Traders"}}
	client := NewClient(server.URL, namer, time.Second, quietLogger())

	err := client.SendVoucher(context.Background(), testVoucher())
	require.Error(t, err)
	assert.False(t, models.IsSyncRejected(err))
}

func TestSendVoucherUnreachableIsTransient(t *testing.T) {
	namer := staticNamer{ledger: &models.Ledger{ID: 7, Name: "Acme Traders"}}
	client := NewClient("http://127.0.0.1:1", namer, 200*time.Millisecond, quietLogger())

	err := client.SendVoucher(context.Background(), testVoucher())
	require.Error(t, err)
	assert.False(t, models.IsSyncRejected(err))
}

func TestSendVoucherMissingPartyRejected(t *testing.T) {
	namer := staticNamer{}
	client := NewClient("http://127.0.0.1:1", namer, time.Second, quietLogger())

	voucher := testVoucher()
	err := client.SendVoucher(context.Background(), voucher)
	require.Error(t, err)
	assert.True(t, models.IsSyncRejected(err), "unknown party ledger cannot succeed on retry")
}
