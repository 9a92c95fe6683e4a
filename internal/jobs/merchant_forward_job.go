package jobs

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/revaspay/mpesa-relay/internal/mpesa"
	"github.com/revaspay/mpesa-relay/internal/queue"
	"github.com/revaspay/mpesa-relay/internal/utils"
)

// SignatureHeader carries the HMAC of the forwarded body
const SignatureHeader = "X-Relay-Signature"

// MerchantForwardJob delivers recorded transactions to the merchant backend
type MerchantForwardJob struct {
	url        string
	secret     string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewMerchantForwardJob creates a new merchant forward job handler
func NewMerchantForwardJob(url, secret string, timeout time.Duration, logger *slog.Logger) *MerchantForwardJob {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MerchantForwardJob{
		url:        url,
		secret:     secret,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Handle POSTs the job payload, a JSON encoded mpesa.Transaction, to the
// merchant. Any non-2xx answer is an error so the queue retries.
func (j *MerchantForwardJob) Handle(ctx context.Context, job queue.Job) error {
	var txn mpesa.Transaction
	if err := job.Decode(&txn); err != nil {
		return fmt.Errorf("failed to decode forward payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, j.url, bytes.NewReader(job.Payload))
	if err != nil {
		return fmt.Errorf("failed to create forward request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Relay-Job-ID", job.ID)
	if j.secret != "" {
		req.Header.Set(SignatureHeader, utils.SignHMAC(job.Payload, j.secret))
	}

	resp, err := j.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("forward request failed: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &mpesa.APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	j.logger.Info("transaction forwarded to merchant",
		"trans_id", txn.TransactionID,
		"job_id", job.ID,
		"status", resp.StatusCode,
	)
	return nil
}
