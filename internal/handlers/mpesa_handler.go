package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/revaspay/mpesa-relay/internal/mpesa"
)

// maxCallbackBody bounds the size of a gateway callback
const maxCallbackBody = 1 << 20

// CallbackProcessor answers gateway callbacks
type CallbackProcessor interface {
	Validate(ctx context.Context, raw []byte) mpesa.ValidationOutcome
	Confirm(ctx context.Context, raw []byte) mpesa.ConfirmationOutcome
}

// CallbackRegistrar registers callback URLs with the gateway
type CallbackRegistrar interface {
	Register(ctx context.Context, shortCode, callbackBaseURL string) (*mpesa.RegistrationResult, error)
}

// MpesaHandler handles the gateway callbacks and the operator registration call
type MpesaHandler struct {
	processor       CallbackProcessor
	registrar       CallbackRegistrar
	shortCode       string
	callbackBaseURL string
	logger          *slog.Logger
}

// NewMpesaHandler creates a new M-Pesa handler
func NewMpesaHandler(processor CallbackProcessor, registrar CallbackRegistrar, shortCode, callbackBaseURL string, logger *slog.Logger) *MpesaHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &MpesaHandler{
		processor:       processor,
		registrar:       registrar,
		shortCode:       shortCode,
		callbackBaseURL: callbackBaseURL,
		logger:          logger,
	}
}

// Validation handles the gateway's pre-payment validation callback
func (h *MpesaHandler) Validation(c *gin.Context) {
	body, err := readBody(c)
	if err != nil {
		h.logger.Warn("failed to read validation body", "error", err)
		c.JSON(http.StatusBadRequest, mpesa.ValidationOutcome{
			ResultCode: mpesa.ResultRejected,
			ResultDesc: mpesa.DescInvalidPayload,
		})
		return
	}

	outcome := h.processor.Validate(c.Request.Context(), body)
	c.JSON(outcome.Status, outcome)
}

// Confirmation handles the gateway's payment confirmation callback
func (h *MpesaHandler) Confirmation(c *gin.Context) {
	body, err := readBody(c)
	if err != nil {
		h.logger.Warn("failed to read confirmation body", "error", err)
		c.JSON(http.StatusBadRequest, mpesa.ConfirmationOutcome{
			ResultCode: mpesa.ResultRejected,
			ResultDesc: mpesa.DescInvalidPayload,
		})
		return
	}

	outcome := h.processor.Confirm(c.Request.Context(), body)
	c.JSON(outcome.Status, outcome)
}

// RegisterURL registers the relay's callback URLs and returns the gateway's
// answer unchanged
func (h *MpesaHandler) RegisterURL(c *gin.Context) {
	result, err := h.registrar.Register(c.Request.Context(), h.shortCode, h.callbackBaseURL)
	if err != nil {
		h.logger.Error("register url failed", "short_code", h.shortCode, "error", err)

		var authErr *mpesa.AuthError
		if errors.As(err, &authErr) {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Access token failed"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Register URL failed"})
		return
	}

	c.JSON(http.StatusOK, result.Raw)
}

func readBody(c *gin.Context) ([]byte, error) {
	return io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxCallbackBody))
}
