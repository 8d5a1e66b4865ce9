package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tallyflow/internal/models"
)

func TestResolveExactMatchOnly(t *testing.T) {
	dir := newFakeLedgerDirectory()
	dir.add(1, "Acme Traders")
	resolver := NewLedgerResolver(dir)

	ledger, err := resolver.Resolve(context.Background(), 1, "Acme Traders")
	require.NoError(t, err)
	assert.Equal(t, "Acme Traders", ledger.Name)

	_, err = resolver.Resolve(context.Background(), 1, "acme traders")
	assert.ErrorIs(t, err, models.ErrLedgerNotFound)

	_, err = resolver.Resolve(context.Background(), 2, "Acme Traders")
	assert.ErrorIs(t, err, models.ErrLedgerNotFound, "lookups are company scoped")
}

func TestCreateLedgerIdempotent(t *testing.T) {
	dir := newFakeLedgerDirectory()
	resolver := NewLedgerResolver(dir)

	first, err := resolver.CreateLedger(context.Background(), 1, "Acme Traders", LedgerAttrs{
		LedgerGroup: models.LedgerGroupSundryDebtors,
		ParentGroup: "Sundry Debtors",
	})
	require.NoError(t, err)

	second, err := resolver.CreateLedger(context.Background(), 1, "Acme Traders", LedgerAttrs{})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, dir.creates, "second call reuses the existing ledger")
}

func TestCreateLedgerConcurrent(t *testing.T) {
	dir := newFakeLedgerDirectory()
	resolver := NewLedgerResolver(dir)

	const goroutines = 16
	ids := make([]int64, goroutines)
	errs := make([]error, goroutines)
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ledger, err := resolver.CreateLedger(context.Background(), 1, "Acme Traders", LedgerAttrs{})
			if err != nil {
				errs[i] = err
				return
			}
			ids[i] = ledger.ID
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	for _, id := range ids {
		assert.Equal(t, ids[0], id, "every caller must see the same ledger")
	}
}

func TestCreateLedgerRecoversFromDuplicateRace(t *testing.T) {
	dir := newFakeLedgerDirectory()

	// Another node creates the ledger between our lookup and create.
	raced := &racingDirectory{fakeLedgerDirectory: dir, name: "Acme Traders", companyID: 1}
	resolver := NewLedgerResolver(raced)

	ledger, err := resolver.CreateLedger(context.Background(), 1, "Acme Traders", LedgerAttrs{})
	require.NoError(t, err)
	assert.Equal(t, "Acme Traders", ledger.Name)
}

// racingDirectory inserts the ledger behind the resolver's back on the
// first Create, simulating a concurrent writer on another node.
type racingDirectory struct {
	*fakeLedgerDirectory
	name      string
	companyID int64
	raced     bool
}

func (d *racingDirectory) Create(ctx context.Context, ledger *models.Ledger) error {
	if !d.raced {
		d.raced = true
		d.add(d.companyID, d.name)
		return ErrLedgerExists
	}
	return d.fakeLedgerDirectory.Create(ctx, ledger)
}
