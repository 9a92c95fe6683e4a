package jobs

import (
	"context"
	"log/slog"

	"github.com/revaspay/mpesa-relay/internal/mpesa"
	"github.com/revaspay/mpesa-relay/internal/queue"
)

// Enqueuer adds jobs to a queue
type Enqueuer interface {
	Enqueue(ctx context.Context, jobType queue.JobType, payload interface{}, opts ...queue.EnqueueOption) (string, error)
}

// ForwardingSink queues a merchant delivery for every transaction the wrapped
// sink records. Duplicates and failed records are not forwarded.
type ForwardingSink struct {
	next   mpesa.TransactionSink
	queue  Enqueuer
	logger *slog.Logger
}

// NewForwardingSink wraps next
func NewForwardingSink(next mpesa.TransactionSink, q Enqueuer, logger *slog.Logger) *ForwardingSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &ForwardingSink{next: next, queue: q, logger: logger}
}

// Exists delegates to the wrapped sink
func (s *ForwardingSink) Exists(ctx context.Context, transactionID string) (bool, error) {
	return s.next.Exists(ctx, transactionID)
}

// Record stores txn and then enqueues it. The transaction is already durable
// when enqueueing fails, so that failure is logged rather than returned.
func (s *ForwardingSink) Record(ctx context.Context, txn mpesa.Transaction) error {
	if err := s.next.Record(ctx, txn); err != nil {
		return err
	}

	// The job ID reaches the merchant as X-Relay-Job-ID, so it stays stable per transaction
	jobID, err := s.queue.Enqueue(ctx, queue.JobTypeMerchantForward, txn, queue.WithJobID(ForwardJobID(txn.TransactionID)))
	if err != nil {
		s.logger.Error("failed to enqueue merchant forward",
			"trans_id", txn.TransactionID,
			"error", err,
		)
		return nil
	}
	s.logger.Debug("merchant forward enqueued", "trans_id", txn.TransactionID, "job_id", jobID)
	return nil
}

// ForwardJobID is the queue job ID used for a transaction's merchant delivery
func ForwardJobID(transactionID string) string {
	return "merchant-forward-" + transactionID
}
