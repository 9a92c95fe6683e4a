package cache

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/revaspay/mpesa-relay/internal/mpesa"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type fakeRedis struct {
	mu   sync.Mutex
	keys map[string]time.Duration
	err  error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{keys: make(map[string]time.Duration)}
}

func (f *fakeRedis) Exists(_ context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewIntResult(0, f.err)
	}
	n := int64(0)
	for _, k := range keys {
		if _, ok := f.keys[k]; ok {
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func (f *fakeRedis) Set(_ context.Context, key string, _ interface{}, expiration time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewStatusResult("", f.err)
	}
	f.keys[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

// MockSink is a mock implementation of mpesa.TransactionSink
type MockSink struct {
	mock.Mock
}

func (m *MockSink) Exists(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockSink) Record(ctx context.Context, txn mpesa.Transaction) error {
	args := m.Called(ctx, txn)
	return args.Error(0)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func txn(id string) mpesa.Transaction {
	return mpesa.Transaction{TransactionID: id, Amount: decimal.NewFromInt(10), Phone: "254700000000"}
}

func TestIdempotentSinkCacheHitSkipsStore(t *testing.T) {
	redisFake := newFakeRedis()
	redisFake.keys["mpesa:txn:ABC123"] = time.Hour
	store := new(MockSink)
	sink := NewIdempotentSink(store, redisFake, 0, quietLogger())

	exists, err := sink.Exists(context.Background(), "ABC123")
	require.NoError(t, err)
	assert.True(t, exists)
	store.AssertNotCalled(t, "Exists", mock.Anything, mock.Anything)
}

func TestIdempotentSinkMissFallsBackAndWarms(t *testing.T) {
	redisFake := newFakeRedis()
	store := new(MockSink)
	store.On("Exists", mock.Anything, "ABC123").Return(true, nil).Once()
	sink := NewIdempotentSink(store, redisFake, time.Hour, quietLogger())

	exists, err := sink.Exists(context.Background(), "ABC123")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, time.Hour, redisFake.keys["mpesa:txn:ABC123"])

	// Second lookup is served by the cache
	exists, err = sink.Exists(context.Background(), "ABC123")
	require.NoError(t, err)
	assert.True(t, exists)
	store.AssertExpectations(t)
}

func TestIdempotentSinkRecordRemembers(t *testing.T) {
	redisFake := newFakeRedis()
	store := new(MockSink)
	store.On("Record", mock.Anything, mock.Anything).Return(nil).Once()
	sink := NewIdempotentSink(store, redisFake, 0, quietLogger())

	require.NoError(t, sink.Record(context.Background(), txn("ABC123")))
	assert.Equal(t, DefaultTransactionTTL, redisFake.keys["mpesa:txn:ABC123"])
}

func TestIdempotentSinkDuplicateStillRemembered(t *testing.T) {
	redisFake := newFakeRedis()
	store := new(MockSink)
	store.On("Record", mock.Anything, mock.Anything).Return(mpesa.ErrDuplicateTransaction)
	sink := NewIdempotentSink(store, redisFake, 0, quietLogger())

	err := sink.Record(context.Background(), txn("ABC123"))
	assert.ErrorIs(t, err, mpesa.ErrDuplicateTransaction)
	assert.Contains(t, redisFake.keys, "mpesa:txn:ABC123")
}

func TestIdempotentSinkStoreFailureNotRemembered(t *testing.T) {
	redisFake := newFakeRedis()
	store := new(MockSink)
	store.On("Record", mock.Anything, mock.Anything).Return(errors.New("db down"))
	sink := NewIdempotentSink(store, redisFake, 0, quietLogger())

	assert.Error(t, sink.Record(context.Background(), txn("ABC123")))
	assert.Empty(t, redisFake.keys)
}

func TestIdempotentSinkRedisDownFallsBack(t *testing.T) {
	redisFake := newFakeRedis()
	redisFake.err = errors.New("connection refused")
	store := new(MockSink)
	store.On("Exists", mock.Anything, "ABC123").Return(false, nil)
	store.On("Record", mock.Anything, mock.Anything).Return(nil)
	sink := NewIdempotentSink(store, redisFake, 0, quietLogger())

	exists, err := sink.Exists(context.Background(), "ABC123")
	require.NoError(t, err)
	assert.False(t, exists)
	assert.NoError(t, sink.Record(context.Background(), txn("ABC123")))
	store.AssertExpectations(t)
}

func TestIdempotentSinkWithProcessor(t *testing.T) {
	redisFake := newFakeRedis()
	memory := mpesa.NewMemorySink()
	processor := mpesa.NewWebhookProcessor(NewIdempotentSink(memory, redisFake, 0, quietLogger()), quietLogger())
	body := []byte(`{"TransID":"ABC123","TransAmount":"100","MSISDN":"254700000000"}`)

	first := processor.Confirm(context.Background(), body)
	second := processor.Confirm(context.Background(), body)
	assert.True(t, first.Recorded)
	assert.False(t, second.Recorded)
	assert.Equal(t, mpesa.ResultAccepted, second.ResultCode)
	assert.Equal(t, 1, memory.Len())
}
