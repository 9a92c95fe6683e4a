package mpesa

import (
	"context"
	"log/slog"
	"strings"

	"github.com/goccy/go-json"
)

// ResponseTypeCompleted tells the gateway to complete the payment when the
// validation URL cannot be reached.
const ResponseTypeCompleted = "Completed"

// TokenProvider hands out usable access tokens
type TokenProvider interface {
	EnsureValid(ctx context.Context) (AccessToken, error)
}

// URLRegistrar submits callback URLs to the gateway
type URLRegistrar interface {
	RegisterURLs(ctx context.Context, token AccessToken, request RegisterURLRequest) ([]byte, error)
}

// RegistrationResult is the gateway's answer to a URL registration
type RegistrationResult struct {
	OriginatorConversationID string `json:"OriginatorCoversationID"`
	ResponseCode             string `json:"ResponseCode"`
	ResponseDescription      string `json:"ResponseDescription"`

	// Raw is the body exactly as the gateway sent it
	Raw map[string]interface{} `json:"-"`
}

// Registrar registers the confirmation and validation URLs for a short code
type Registrar struct {
	tokens  TokenProvider
	gateway URLRegistrar
	logger  *slog.Logger
}

// NewRegistrar creates a new callback registrar
func NewRegistrar(tokens TokenProvider, gateway URLRegistrar, logger *slog.Logger) *Registrar {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registrar{tokens: tokens, gateway: gateway, logger: logger}
}

// Register tells the gateway to deliver callbacks for shortCode under
// callbackBaseURL. Failures are returned as *RegistrationError without retrying.
func (r *Registrar) Register(ctx context.Context, shortCode, callbackBaseURL string) (*RegistrationResult, error) {
	token, err := r.tokens.EnsureValid(ctx)
	if err != nil {
		return nil, &RegistrationError{ShortCode: shortCode, Err: err}
	}

	base := strings.TrimSuffix(callbackBaseURL, "/")
	request := RegisterURLRequest{
		ShortCode:       shortCode,
		ResponseType:    ResponseTypeCompleted,
		ConfirmationURL: base + "/confirmation",
		ValidationURL:   base + "/validation",
	}

	body, err := r.gateway.RegisterURLs(ctx, token, request)
	if err != nil {
		r.logger.Error("callback url registration failed", "short_code", shortCode, "error", err)
		return nil, &RegistrationError{ShortCode: shortCode, Err: err}
	}

	result := &RegistrationResult{}
	if err := json.Unmarshal(body, result); err != nil {
		return nil, &RegistrationError{ShortCode: shortCode, Err: err}
	}
	if err := json.Unmarshal(body, &result.Raw); err != nil {
		return nil, &RegistrationError{ShortCode: shortCode, Err: err}
	}

	r.logger.Info("callback urls registered",
		"short_code", shortCode,
		"confirmation_url", request.ConfirmationURL,
		"validation_url", request.ValidationURL,
		"response_code", result.ResponseCode,
	)
	return result, nil
}
