package mpesa

import (
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// AccessToken is a bearer token issued by the gateway. ExpiresAt already has the
// safety margin subtracted.
type AccessToken struct {
	Value     string
	ExpiresAt time.Time
}

// Usable reports whether the token can still be sent to the gateway at now.
func (t AccessToken) Usable(now time.Time) bool {
	return t.Value != "" && now.Before(t.ExpiresAt)
}

// OAuth2 converts the token for use with golang.org/x/oauth2 helpers.
func (t AccessToken) OAuth2() *oauth2.Token {
	return &oauth2.Token{
		AccessToken: t.Value,
		TokenType:   "Bearer",
		Expiry:      t.ExpiresAt,
	}
}

// TokenStore caches the current access token. It holds a single slot and the last
// write wins.
type TokenStore struct {
	mu    sync.RWMutex
	token AccessToken
	set   bool
}

// NewTokenStore creates an empty token store
func NewTokenStore() *TokenStore {
	return &TokenStore{}
}

// Get returns the cached token, if any
func (s *TokenStore) Get() (AccessToken, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, s.set
}

// Set replaces the cached token
func (s *TokenStore) Set(token AccessToken) {
	s.mu.Lock()
	s.token = token
	s.set = true
	s.mu.Unlock()
}
