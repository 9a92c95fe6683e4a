package mpesa

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

const (
	// API endpoints
	sandboxBaseURL = "https://sandbox.safaricom.co.ke"
	prodBaseURL    = "https://api.safaricom.co.ke"

	tokenEndpoint       = "/oauth/v1/generate?grant_type=client_credentials"
	registerURLEndpoint = "/mpesa/c2b/v1/registerurl"

	defaultRequestTimeout = 10 * time.Second
)

// BaseURLFor returns the Daraja base URL for the given environment
func BaseURLFor(environment string) string {
	if strings.EqualFold(environment, "production") {
		return prodBaseURL
	}
	return sandboxBaseURL
}

// Client is a thin Daraja API client. It only knows how to talk to the gateway;
// token caching lives in TokenManager.
type Client struct {
	BaseURL        string
	ConsumerKey    string
	ConsumerSecret string
	HTTPClient     *http.Client
}

// NewClient creates a new Daraja API client
func NewClient(baseURL, consumerKey, consumerSecret string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &Client{
		BaseURL:        strings.TrimSuffix(baseURL, "/"),
		ConsumerKey:    consumerKey,
		ConsumerSecret: consumerSecret,
		HTTPClient:     &http.Client{Timeout: timeout},
	}
}

// TokenResponse represents the OAuth token response. Daraja sends expires_in as a
// string, other deployments send a number.
type TokenResponse struct {
	AccessToken string  `json:"access_token"`
	ExpiresIn   seconds `json:"expires_in"`
}

// Lifetime returns the token lifetime, falling back to an hour when the gateway
// omits or garbles it.
func (r TokenResponse) Lifetime() time.Duration {
	if r.ExpiresIn <= 0 {
		return time.Hour
	}
	return time.Duration(r.ExpiresIn) * time.Second
}

// seconds accepts both 3599 and "3599". Anything else decodes as zero.
type seconds int64

func (s *seconds) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(strings.TrimSpace(string(data)), `"`)
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		*s = 0
		return nil
	}
	*s = seconds(n)
	return nil
}

func (c *Client) basicAuth() string {
	return base64.StdEncoding.EncodeToString([]byte(c.ConsumerKey + ":" + c.ConsumerSecret))
}

// GenerateToken performs the client-credentials exchange
func (c *Client) GenerateToken(ctx context.Context) (*TokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+tokenEndpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Basic "+c.basicAuth())
	req.Header.Set("Accept", "application/json")

	body, err := c.do(req)
	if err != nil {
		return nil, err
	}

	var tokenResp TokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}
	return &tokenResp, nil
}

// RegisterURLRequest is the C2B URL registration payload
type RegisterURLRequest struct {
	ShortCode       string `json:"ShortCode"`
	ResponseType    string `json:"ResponseType"`
	ConfirmationURL string `json:"ConfirmationURL"`
	ValidationURL   string `json:"ValidationURL"`
}

// RegisterURLs posts the callback URLs using the given bearer token. It returns the
// raw gateway body.
func (c *Client) RegisterURLs(ctx context.Context, token AccessToken, request RegisterURLRequest) ([]byte, error) {
	reqBody, err := json.Marshal(request)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+registerURLEndpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, err
	}
	token.OAuth2().SetAuthHeader(req)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(data)}
	}
	return data, nil
}
