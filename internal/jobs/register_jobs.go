package jobs

import (
	"log/slog"
	"time"

	"github.com/revaspay/mpesa-relay/internal/queue"
)

// StartMerchantForwarding starts the worker pool that drains the merchant
// forward queue
func StartMerchantForwarding(q *queue.RedisQueue, url, secret string, workers int, timeout time.Duration, logger *slog.Logger) (*queue.Worker, error) {
	handler := NewMerchantForwardJob(url, secret, timeout, logger)
	worker := queue.NewWorker(q, queue.JobTypeMerchantForward, handler.Handle, workers, logger)
	if err := worker.Start(); err != nil {
		return nil, err
	}
	return worker, nil
}
