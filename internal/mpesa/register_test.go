package mpesa

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockTokenProvider is a mock implementation of TokenProvider
type MockTokenProvider struct {
	mock.Mock
}

func (m *MockTokenProvider) EnsureValid(ctx context.Context) (AccessToken, error) {
	args := m.Called(ctx)
	return args.Get(0).(AccessToken), args.Error(1)
}

func TestRegisterSendsCallbackURLs(t *testing.T) {
	var received RegisterURLRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/mpesa/c2b/v1/registerurl", r.URL.Path)
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))

		_, _ = io.WriteString(w, `{"OriginatorCoversationID":"6e86-45dd","ResponseCode":"0","ResponseDescription":"Success"}`)
	}))
	defer server.Close()

	tokens := new(MockTokenProvider)
	tokens.On("EnsureValid", mock.Anything).Return(AccessToken{Value: "tok-1", ExpiresAt: time.Now().Add(time.Hour)}, nil)

	registrar := NewRegistrar(tokens, NewClient(server.URL, "key", "secret", time.Second), quietLogger())
	result, err := registrar.Register(context.Background(), "600000", "https://relay.example.com/mpesa/")
	require.NoError(t, err)

	assert.Equal(t, RegisterURLRequest{
		ShortCode:       "600000",
		ResponseType:    "Completed",
		ConfirmationURL: "https://relay.example.com/mpesa/confirmation",
		ValidationURL:   "https://relay.example.com/mpesa/validation",
	}, received)
	assert.Equal(t, "0", result.ResponseCode)
	assert.Equal(t, "6e86-45dd", result.OriginatorConversationID)
	assert.Equal(t, "Success", result.Raw["ResponseDescription"])
	tokens.AssertExpectations(t)
}

func TestRegisterTokenFailure(t *testing.T) {
	tokens := new(MockTokenProvider)
	authErr := &AuthError{Err: errors.New("bad credentials")}
	tokens.On("EnsureValid", mock.Anything).Return(AccessToken{}, authErr)

	gatewayCalled := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gatewayCalled = true
	}))
	defer server.Close()

	registrar := NewRegistrar(tokens, NewClient(server.URL, "key", "secret", time.Second), quietLogger())
	_, err := registrar.Register(context.Background(), "600000", "https://relay.example.com/mpesa")
	require.Error(t, err)

	var regErr *RegistrationError
	require.ErrorAs(t, err, &regErr)
	assert.Equal(t, "600000", regErr.ShortCode)

	var gotAuth *AuthError
	assert.ErrorAs(t, err, &gotAuth)
	assert.False(t, gatewayCalled)
}

func TestRegisterGatewayRejection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"errorCode":"400.003.02","errorMessage":"Bad Request - Invalid ValidationURL"}`)
	}))
	defer server.Close()

	tokens := new(MockTokenProvider)
	tokens.On("EnsureValid", mock.Anything).Return(AccessToken{Value: "tok-1", ExpiresAt: time.Now().Add(time.Hour)}, nil)

	registrar := NewRegistrar(tokens, NewClient(server.URL, "key", "secret", time.Second), quietLogger())
	_, err := registrar.Register(context.Background(), "600000", "http://localhost")
	require.Error(t, err)

	var regErr *RegistrationError
	require.ErrorAs(t, err, &regErr)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Contains(t, apiErr.Body, "Invalid ValidationURL")
}
