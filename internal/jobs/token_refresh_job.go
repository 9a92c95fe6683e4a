package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/revaspay/mpesa-relay/internal/mpesa"
)

// DefaultTokenRefreshInterval keeps the cached token fresh well inside the
// gateway's one hour lifetime
const DefaultTokenRefreshInterval = 50 * time.Minute

// TokenAcquirer forces a new access token exchange
type TokenAcquirer interface {
	Acquire(ctx context.Context) (mpesa.AccessToken, error)
}

// TokenRefreshJob refreshes the access token on a fixed interval, starting
// immediately. Failures are logged and the next run tries again.
type TokenRefreshJob struct {
	tokens    TokenAcquirer
	interval  time.Duration
	timeout   time.Duration
	scheduler *gocron.Scheduler
	logger    *slog.Logger
}

// NewTokenRefreshJob creates a new token refresh job
func NewTokenRefreshJob(tokens TokenAcquirer, interval time.Duration, logger *slog.Logger) *TokenRefreshJob {
	if interval <= 0 {
		interval = DefaultTokenRefreshInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TokenRefreshJob{
		tokens:    tokens,
		interval:  interval,
		timeout:   30 * time.Second,
		scheduler: gocron.NewScheduler(time.UTC),
		logger:    logger,
	}
}

// Start schedules the refresh and runs the first one right away
func (j *TokenRefreshJob) Start() error {
	if _, err := j.scheduler.Every(j.interval).StartImmediately().Do(j.Run); err != nil {
		return err
	}
	j.scheduler.StartAsync()
	j.logger.Info("token refresh scheduled", "interval", j.interval.String())
	return nil
}

// Stop stops the scheduler
func (j *TokenRefreshJob) Stop() {
	j.scheduler.Stop()
}

// Run performs one refresh
func (j *TokenRefreshJob) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	token, err := j.tokens.Acquire(ctx)
	if err != nil {
		j.logger.Error("scheduled token refresh failed", "error", err)
		return
	}
	j.logger.Info("scheduled token refresh succeeded", "expires_at", token.ExpiresAt)
}
