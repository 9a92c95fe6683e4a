package database

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/revaspay/mpesa-relay/internal/mpesa"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
)

func newTestStore(t *testing.T) *TransactionStore {
	t.Helper()
	db, err := Open(sqlite.Open("file::memory:"))
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// A single connection keeps every query on the same in-memory database.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	return NewTransactionStore(db)
}

func sampleTransaction(id string) mpesa.Transaction {
	return mpesa.Transaction{
		TransactionID: id,
		Amount:        decimal.RequireFromString("100.00"),
		Phone:         "254700000000",
		AccountNumber: "INV-1",
		Name:          "JOHN DOE",
		ReceivedAt:    time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		RawPayload:    `{"TransID":"` + id + `"}`,
	}
}

func TestTransactionStoreRecord(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	exists, err := store.Exists(ctx, "ABC123")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, store.Record(ctx, sampleTransaction("ABC123")))

	exists, err = store.Exists(ctx, "ABC123")
	require.NoError(t, err)
	assert.True(t, exists)

	var row MpesaTransaction
	require.NoError(t, store.db.Where("trans_id = ?", "ABC123").First(&row).Error)
	assert.NotEqual(t, uuid.Nil, row.ID)
	assert.True(t, decimal.RequireFromString("100").Equal(row.Amount))
	assert.Equal(t, "254700000000", row.PhoneNumber)
	assert.Equal(t, "INV-1", row.AccountNumber)
	assert.Equal(t, "JOHN DOE", row.Name)
	assert.Equal(t, `{"TransID":"ABC123"}`, row.RawPayload)
}

func TestTransactionStoreDuplicate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Record(ctx, sampleTransaction("ABC123")))
	err := store.Record(ctx, sampleTransaction("ABC123"))
	assert.ErrorIs(t, err, mpesa.ErrDuplicateTransaction)

	var count int64
	require.NoError(t, store.db.Model(&MpesaTransaction{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestTransactionStoreConcurrentDeliveries(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	const deliveries = 5
	errs := make([]error, deliveries)
	var wg sync.WaitGroup
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = store.Record(ctx, sampleTransaction("RACE1"))
		}(i)
	}
	wg.Wait()

	recorded := 0
	for _, err := range errs {
		if err == nil {
			recorded++
			continue
		}
		assert.ErrorIs(t, err, mpesa.ErrDuplicateTransaction)
	}
	assert.Equal(t, 1, recorded)
}

func TestProcessorWithTransactionStore(t *testing.T) {
	store := newTestStore(t)
	processor := mpesa.NewWebhookProcessor(store, nil)
	body := []byte(`{"TransID":"XYZ9","TransAmount":"250.50","MSISDN":"254711111111","BillRefNumber":"ACC"}`)

	for i := 0; i < 2; i++ {
		outcome := processor.Confirm(context.Background(), body)
		assert.Equal(t, 200, outcome.Status)
		assert.Equal(t, mpesa.ResultAccepted, outcome.ResultCode)
	}

	var count int64
	require.NoError(t, store.db.Model(&MpesaTransaction{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}
