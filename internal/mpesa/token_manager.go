package mpesa

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"
)

// TokenSafetyMargin is subtracted from the gateway-reported lifetime so a token is
// never sent close to its real expiry.
const TokenSafetyMargin = 5 * time.Minute

const acquireKey = "access_token"

// TokenGenerator performs the raw client-credentials exchange
type TokenGenerator interface {
	GenerateToken(ctx context.Context) (*TokenResponse, error)
}

// TokenManager owns the token lifecycle. Scheduled refreshes and on-demand
// acquisitions share one single-flight group, so at most one exchange with the
// gateway is in flight at a time.
type TokenManager struct {
	gateway TokenGenerator
	store   *TokenStore
	logger  *slog.Logger
	timeout time.Duration
	now     func() time.Time
	group   singleflight.Group
}

// TokenManagerOption configures a TokenManager
type TokenManagerOption func(*TokenManager)

// WithClock overrides the time source
func WithClock(now func() time.Time) TokenManagerOption {
	return func(m *TokenManager) {
		m.now = now
	}
}

// WithExchangeTimeout bounds each exchange with the gateway
func WithExchangeTimeout(timeout time.Duration) TokenManagerOption {
	return func(m *TokenManager) {
		if timeout > 0 {
			m.timeout = timeout
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) TokenManagerOption {
	return func(m *TokenManager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewTokenManager creates a token manager backed by the given store
func NewTokenManager(gateway TokenGenerator, store *TokenStore, opts ...TokenManagerOption) *TokenManager {
	m := &TokenManager{
		gateway: gateway,
		store:   store,
		logger:  slog.Default(),
		timeout: defaultRequestTimeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Acquire exchanges the client credentials for a fresh token and caches it. On
// failure the cached token is left untouched and an *AuthError is returned.
func (m *TokenManager) Acquire(ctx context.Context) (AccessToken, error) {
	return m.shared(ctx, m.exchange)
}

// EnsureValid returns the cached token while it is usable and acquires a new one
// otherwise. Outbound callers always obtain tokens through here.
func (m *TokenManager) EnsureValid(ctx context.Context) (AccessToken, error) {
	if token, ok := m.cached(); ok {
		return token, nil
	}
	return m.shared(ctx, func(ctx context.Context) (AccessToken, error) {
		// A concurrent exchange may have finished between the check above and
		// joining the group.
		if token, ok := m.cached(); ok {
			return token, nil
		}
		return m.exchange(ctx)
	})
}

func (m *TokenManager) cached() (AccessToken, bool) {
	token, ok := m.store.Get()
	if !ok || !token.Usable(m.now()) {
		return AccessToken{}, false
	}
	return token, true
}

// shared runs fn once for all concurrent callers. fn gets its own bounded context
// so a waiter giving up does not fail the exchange for everybody else.
func (m *TokenManager) shared(ctx context.Context, fn func(context.Context) (AccessToken, error)) (AccessToken, error) {
	ch := m.group.DoChan(acquireKey, func() (interface{}, error) {
		exchangeCtx, cancel := context.WithTimeout(context.Background(), m.timeout)
		defer cancel()
		return fn(exchangeCtx)
	})

	select {
	case <-ctx.Done():
		return AccessToken{}, &AuthError{Err: ctx.Err()}
	case res := <-ch:
		if res.Err != nil {
			return AccessToken{}, res.Err
		}
		return res.Val.(AccessToken), nil
	}
}

func (m *TokenManager) exchange(ctx context.Context) (AccessToken, error) {
	issuedAt := m.now()
	resp, err := m.gateway.GenerateToken(ctx)
	if err != nil {
		m.logger.Error("access token exchange failed", "error", err)
		return AccessToken{}, &AuthError{Err: err}
	}
	if resp.AccessToken == "" {
		err := errors.New("response has no access_token")
		m.logger.Error("access token exchange failed", "error", err)
		return AccessToken{}, &AuthError{Err: err}
	}

	lifetime := resp.Lifetime()
	margin := TokenSafetyMargin
	if lifetime <= margin {
		margin = lifetime / 2
	}
	token := AccessToken{
		Value:     resp.AccessToken,
		ExpiresAt: issuedAt.Add(lifetime - margin),
	}
	m.store.Set(token)
	m.logger.Info("access token refreshed", "expires_at", token.ExpiresAt)
	return token, nil
}
