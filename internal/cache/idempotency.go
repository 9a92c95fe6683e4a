package cache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/revaspay/mpesa-relay/internal/mpesa"
)

const (
	transactionKeyPrefix = "mpesa:txn:"

	// DefaultTransactionTTL outlasts the gateway's redelivery window
	DefaultTransactionTTL = 72 * time.Hour
)

// RedisClient is the subset of *redis.Client the cache uses
type RedisClient interface {
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// IdempotentSink remembers processed transaction IDs in Redis so gateway retries
// are answered without touching the wrapped sink. Redis is an accelerator only:
// when it fails, the wrapped sink decides.
type IdempotentSink struct {
	next   mpesa.TransactionSink
	client RedisClient
	ttl    time.Duration
	logger *slog.Logger
}

// NewIdempotentSink wraps next
func NewIdempotentSink(next mpesa.TransactionSink, client RedisClient, ttl time.Duration, logger *slog.Logger) *IdempotentSink {
	if ttl <= 0 {
		ttl = DefaultTransactionTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &IdempotentSink{next: next, client: client, ttl: ttl, logger: logger}
}

// Exists checks Redis first and falls back to the wrapped sink
func (s *IdempotentSink) Exists(ctx context.Context, transactionID string) (bool, error) {
	n, err := s.client.Exists(ctx, transactionKeyPrefix+transactionID).Result()
	if err != nil {
		s.logger.Warn("idempotency cache lookup failed", "trans_id", transactionID, "error", err)
	} else if n > 0 {
		return true, nil
	}

	exists, err := s.next.Exists(ctx, transactionID)
	if err != nil {
		return false, err
	}
	if exists {
		s.remember(ctx, transactionID)
	}
	return exists, nil
}

// Record stores txn in the wrapped sink and remembers the ID, also when the
// wrapped sink reports a duplicate
func (s *IdempotentSink) Record(ctx context.Context, txn mpesa.Transaction) error {
	err := s.next.Record(ctx, txn)
	if err != nil && !errors.Is(err, mpesa.ErrDuplicateTransaction) {
		return err
	}
	s.remember(ctx, txn.TransactionID)
	return err
}

func (s *IdempotentSink) remember(ctx context.Context, transactionID string) {
	if err := s.client.Set(ctx, transactionKeyPrefix+transactionID, "1", s.ttl).Err(); err != nil {
		s.logger.Warn("idempotency cache write failed", "trans_id", transactionID, "error", err)
	}
}
