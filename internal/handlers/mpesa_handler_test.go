package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/revaspay/mpesa-relay/internal/mpesa"
	"github.com/revaspay/mpesa-relay/internal/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// MockRegistrar is a mock implementation of CallbackRegistrar
type MockRegistrar struct {
	mock.Mock
}

func (m *MockRegistrar) Register(ctx context.Context, shortCode, callbackBaseURL string) (*mpesa.RegistrationResult, error) {
	args := m.Called(ctx, shortCode, callbackBaseURL)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*mpesa.RegistrationResult), args.Error(1)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupRouter(h *MpesaHandler) *gin.Engine {
	router := gin.New()
	router.POST("/mpesa/validation", h.Validation)
	router.POST("/mpesa/confirmation", h.Confirmation)
	router.POST("/register-url", h.RegisterURL)
	return router
}

func post(router http.Handler, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestValidationEndpoint(t *testing.T) {
	processor := mpesa.NewWebhookProcessor(mpesa.NewMemorySink(), quietLogger())
	router := setupRouter(NewMpesaHandler(processor, new(MockRegistrar), "600000", "https://relay.example.com/mpesa", quietLogger()))

	w := post(router, "/mpesa/validation", `{"TransID":"ABC123","BillRefNumber":"INV-1","MSISDN":"254700000000"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ResultCode":0,"ResultDesc":"Accepted","ThirdPartyTransID":"ABC123"}`, w.Body.String())

	w = post(router, "/mpesa/validation", `{"TransID":"ABC123"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), `"ResultCode":1`)
}

func TestConfirmationEndpointIdempotent(t *testing.T) {
	sink := mpesa.NewMemorySink()
	processor := mpesa.NewWebhookProcessor(sink, quietLogger())
	router := setupRouter(NewMpesaHandler(processor, new(MockRegistrar), "600000", "", quietLogger()))
	body := `{"TransID":"ABC123","TransAmount":"100","MSISDN":"254700000000","BillRefNumber":"INV-1"}`

	for i := 0; i < 2; i++ {
		w := post(router, "/mpesa/confirmation", body)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"ResultCode":0,"ResultDesc":"Accepted"}`, w.Body.String())
	}
	assert.Equal(t, 1, sink.Len())

	w := post(router, "/mpesa/confirmation", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"ResultCode":1,"ResultDesc":"Invalid payload"}`, w.Body.String())
}

func TestRegisterURLEndpoint(t *testing.T) {
	tests := []struct {
		name       string
		result     *mpesa.RegistrationResult
		err        error
		wantStatus int
		wantBody   string
	}{
		{
			name: "success returns gateway body",
			result: &mpesa.RegistrationResult{
				ResponseCode: "0",
				Raw: map[string]interface{}{
					"OriginatorCoversationID": "abc",
					"ResponseCode":            "0",
					"ResponseDescription":     "success",
				},
			},
			wantStatus: http.StatusOK,
			wantBody:   `{"OriginatorCoversationID":"abc","ResponseCode":"0","ResponseDescription":"success"}`,
		},
		{
			name:       "token failure",
			err:        &mpesa.RegistrationError{ShortCode: "600000", Err: &mpesa.AuthError{Err: errors.New("bad credentials")}},
			wantStatus: http.StatusInternalServerError,
			wantBody:   `{"error":"Access token failed"}`,
		},
		{
			name:       "gateway rejection",
			err:        &mpesa.RegistrationError{ShortCode: "600000", Err: &mpesa.APIError{StatusCode: 400, Body: "bad"}},
			wantStatus: http.StatusInternalServerError,
			wantBody:   `{"error":"Register URL failed"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			registrar := new(MockRegistrar)
			registrar.On("Register", mock.Anything, "600000", "https://relay.example.com/mpesa").Return(tt.result, tt.err)
			router := setupRouter(NewMpesaHandler(nil, registrar, "600000", "https://relay.example.com/mpesa", quietLogger()))

			w := post(router, "/register-url", "")
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.JSONEq(t, tt.wantBody, w.Body.String())
			registrar.AssertExpectations(t)
		})
	}
}

type stubStats struct {
	stats *queue.Stats
	err   error
}

func (s stubStats) Stats(context.Context, queue.JobType) (*queue.Stats, error) {
	return s.stats, s.err
}

func TestHealthEndpoint(t *testing.T) {
	tests := []struct {
		name     string
		queue    QueueStats
		wantBody string
	}{
		{"no queue", nil, `{"status":"ok","environment":"development"}`},
		{
			"with queue",
			stubStats{stats: &queue.Stats{Queue: "merchant_forward", Waiting: 2}},
			`{"status":"ok","environment":"development","forward_queue":{"queue":"merchant_forward","waiting":2,"delayed":0,"failed":0}}`,
		},
		{
			"queue down",
			stubStats{err: errors.New("redis down")},
			`{"status":"ok","environment":"development","forward_queue":{"error":"unavailable"}}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := gin.New()
			router.GET("/health", NewHealthHandler("development", tt.queue).Health)

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
			assert.Equal(t, http.StatusOK, w.Code)
			assert.JSONEq(t, tt.wantBody, w.Body.String())
		})
	}
}
