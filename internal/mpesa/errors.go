package mpesa

import (
	"errors"
	"fmt"
)

// ErrDuplicateTransaction is returned by a TransactionSink when the transaction ID
// has already been recorded.
var ErrDuplicateTransaction = errors.New("mpesa: transaction already recorded")

// APIError surfaces non-successful HTTP responses from the Daraja gateway.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("daraja api error: status=%d body=%s", e.StatusCode, e.Body)
}

// AuthError means the client-credentials exchange failed. It is never fatal to the
// process; callers surface a 5xx and may try again on the next invocation.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string {
	return "mpesa: token exchange failed: " + e.Err.Error()
}

func (e *AuthError) Unwrap() error { return e.Err }

// RegistrationError wraps a failed callback URL registration.
type RegistrationError struct {
	ShortCode string
	Err       error
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("mpesa: register urls for short code %s: %v", e.ShortCode, e.Err)
}

func (e *RegistrationError) Unwrap() error { return e.Err }

// ValidationError is a structurally invalid inbound payload.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return "mpesa: invalid payload: missing " + e.Field
	}
	return "mpesa: invalid payload: " + e.Err.Error()
}

func (e *ValidationError) Unwrap() error { return e.Err }

// ProcessingError is an unexpected failure while materializing a Transaction.
type ProcessingError struct {
	TransactionID string
	Err           error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("mpesa: process confirmation %s: %v", e.TransactionID, e.Err)
}

func (e *ProcessingError) Unwrap() error { return e.Err }
