package mpesa

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Result codes understood by the gateway
const (
	ResultAccepted = 0
	ResultRejected = 1
)

// Result descriptions
const (
	DescAccepted       = "Accepted"
	DescInvalidPayload = "Invalid payload"
	DescInternalError  = "Internal error"
)

// Transaction is the canonical record built from a confirmation callback
type Transaction struct {
	TransactionID string          `json:"transaction_id"`
	Amount        decimal.Decimal `json:"amount"`
	Phone         string          `json:"phone"`
	AccountNumber string          `json:"account_number"`
	Name          string          `json:"name"`
	ReceivedAt    time.Time       `json:"received_at"`
	RawPayload    string          `json:"raw_payload"`
}

// TransactionSink persists confirmed transactions and answers whether a
// transaction ID has been seen. Record returns ErrDuplicateTransaction when the ID
// is already stored.
type TransactionSink interface {
	Exists(ctx context.Context, transactionID string) (bool, error)
	Record(ctx context.Context, txn Transaction) error
}

// ValidationOutcome is the response to a validation callback
type ValidationOutcome struct {
	Status            int    `json:"-"`
	ResultCode        int    `json:"ResultCode"`
	ResultDesc        string `json:"ResultDesc"`
	ThirdPartyTransID string `json:"ThirdPartyTransID"`
}

// ConfirmationOutcome is the response to a confirmation callback
type ConfirmationOutcome struct {
	Status     int    `json:"-"`
	ResultCode int    `json:"ResultCode"`
	ResultDesc string `json:"ResultDesc"`

	// Recorded is false when the transaction had already been processed
	Recorded bool `json:"-"`
}

// WebhookProcessor validates and processes gateway callbacks
type WebhookProcessor struct {
	sink   TransactionSink
	logger *slog.Logger
	now    func() time.Time
}

// NewWebhookProcessor creates a processor that hands confirmations to sink
func NewWebhookProcessor(sink TransactionSink, logger *slog.Logger) *WebhookProcessor {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookProcessor{
		sink:   sink,
		logger: logger,
		now:    time.Now,
	}
}

// Validate answers the gateway's pre-payment check. It performs structural checks
// only and never calls out.
func (p *WebhookProcessor) Validate(ctx context.Context, raw []byte) ValidationOutcome {
	payload, err := ParsePayload(raw)
	if err == nil {
		err = payload.Require("BillRefNumber", "MSISDN")
	}
	if err != nil {
		p.logger.WarnContext(ctx, "rejected validation callback", "error", err)
		return ValidationOutcome{
			Status:     http.StatusBadRequest,
			ResultCode: ResultRejected,
			ResultDesc: DescInvalidPayload,
		}
	}

	p.logger.InfoContext(ctx, "validation callback accepted",
		"trans_id", payload.Get("TransID"),
		"bill_ref_number", payload.Get("BillRefNumber"),
	)
	return ValidationOutcome{
		Status:            http.StatusOK,
		ResultCode:        ResultAccepted,
		ResultDesc:        DescAccepted,
		ThirdPartyTransID: payload.Get("TransID"),
	}
}

// Confirm processes a payment confirmation. A transaction ID already known to
// the sink is acknowledged without recording it again. Failures are always turned
// into a bounded outcome.
func (p *WebhookProcessor) Confirm(ctx context.Context, raw []byte) (outcome ConfirmationOutcome) {
	payload, err := ParsePayload(raw)
	if err == nil {
		err = payload.Require("TransID", "MSISDN")
	}
	if err != nil {
		p.logger.WarnContext(ctx, "rejected confirmation callback", "error", err)
		return ConfirmationOutcome{
			Status:     http.StatusBadRequest,
			ResultCode: ResultRejected,
			ResultDesc: DescInvalidPayload,
		}
	}

	transID := payload.Get("TransID")
	defer func() {
		if r := recover(); r != nil {
			p.fail(ctx, &ProcessingError{TransactionID: transID, Err: fmt.Errorf("panic: %v", r)}, raw)
			outcome = internalError()
		}
	}()

	recorded, err := p.confirm(ctx, transID, payload, raw)
	if err != nil {
		p.fail(ctx, err, raw)
		return internalError()
	}

	return ConfirmationOutcome{
		Status:     http.StatusOK,
		ResultCode: ResultAccepted,
		ResultDesc: DescAccepted,
		Recorded:   recorded,
	}
}

func (p *WebhookProcessor) confirm(ctx context.Context, transID string, payload Payload, raw []byte) (bool, error) {
	seen, err := p.sink.Exists(ctx, transID)
	if err != nil {
		return false, &ProcessingError{TransactionID: transID, Err: err}
	}
	if seen {
		p.logger.InfoContext(ctx, "duplicate confirmation ignored", "trans_id", transID)
		return false, nil
	}

	txn, err := p.buildTransaction(transID, payload, raw)
	if err != nil {
		return false, err
	}

	if err := p.sink.Record(ctx, txn); err != nil {
		if errors.Is(err, ErrDuplicateTransaction) {
			p.logger.InfoContext(ctx, "duplicate confirmation ignored", "trans_id", transID)
			return false, nil
		}
		return false, &ProcessingError{TransactionID: transID, Err: err}
	}

	p.logger.InfoContext(ctx, "confirmation recorded",
		"trans_id", txn.TransactionID,
		"amount", txn.Amount.String(),
		"account_number", txn.AccountNumber,
	)
	return true, nil
}

func (p *WebhookProcessor) buildTransaction(transID string, payload Payload, raw []byte) (Transaction, error) {
	amount := decimal.Zero
	if value, ok := payload.String("TransAmount"); ok {
		parsed, err := decimal.NewFromString(value)
		if err != nil {
			return Transaction{}, &ProcessingError{TransactionID: transID, Err: fmt.Errorf("malformed TransAmount %q: %w", value, err)}
		}
		amount = parsed
	}

	return Transaction{
		TransactionID: transID,
		Amount:        amount,
		Phone:         payload.Get("MSISDN"),
		AccountNumber: payload.Get("BillRefNumber"),
		Name:          payerName(payload),
		ReceivedAt:    p.now().UTC(),
		RawPayload:    string(raw),
	}, nil
}

func (p *WebhookProcessor) fail(ctx context.Context, err error, raw []byte) {
	p.logger.ErrorContext(ctx, "confirmation processing failed", "error", err, "payload", string(raw))
}

func internalError() ConfirmationOutcome {
	return ConfirmationOutcome{
		Status:     http.StatusInternalServerError,
		ResultCode: ResultRejected,
		ResultDesc: DescInternalError,
	}
}

func payerName(payload Payload) string {
	var parts []string
	for _, field := range []string{"FirstName", "MiddleName", "LastName"} {
		if value, ok := payload.String(field); ok {
			parts = append(parts, value)
		}
	}
	return strings.Join(parts, " ")
}
