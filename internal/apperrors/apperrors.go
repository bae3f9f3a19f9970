// Package apperrors defines the relayer's user-visible error taxonomy.
// Storage, key custody, and the chain gateway surface these typed errors;
// the admission API maps them straight onto an HTTP status, mirroring
// server/error.rs's ApiError in the original implementation.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the machine-readable error classification returned to API
// callers.
type Kind string

const (
	KeyEncoding         Kind = "keyEncoding"
	KeyLength           Kind = "keyLength"
	Unauthorized        Kind = "unauthorized"
	InvalidFormat       Kind = "invalidFormat"
	MissingTx           Kind = "missingTx"
	RelayerDisabled     Kind = "relayerDisabled"
	TooManyTransactions Kind = "tooManyTransactions"
	DuplicateTxID       Kind = "duplicateTxId"
	InsufficientFunds   Kind = "insufficientFunds"
	Other               Kind = "other"
)

// RelayerError is the single error type that crosses the storage/keys/chain
// boundary into the HTTP layer. It is never wrapped further; callers that
// need additional context should construct a new RelayerError with Wrap.
type RelayerError struct {
	Kind    Kind
	Message string

	// Set only for TooManyTransactions.
	Max     int
	Current int

	cause error
}

func (e *RelayerError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return string(e.Kind)
}

func (e *RelayerError) Unwrap() error { return e.cause }

// StatusCode maps a Kind onto the HTTP status spec.md §7 assigns it.
func (e *RelayerError) StatusCode() int {
	switch e.Kind {
	case KeyEncoding, KeyLength, InvalidFormat:
		return http.StatusBadRequest
	case Unauthorized:
		return http.StatusUnauthorized
	case MissingTx:
		return http.StatusNotFound
	case RelayerDisabled:
		return http.StatusForbidden
	case TooManyTransactions:
		return http.StatusTooManyRequests
	case DuplicateTxID:
		return http.StatusConflict
	case InsufficientFunds:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func New(kind Kind, message string) *RelayerError {
	return &RelayerError{Kind: kind, Message: message}
}

func Wrap(kind Kind, cause error) *RelayerError {
	return &RelayerError{Kind: kind, Message: cause.Error(), cause: cause}
}

func TooMany(max, current int) *RelayerError {
	return &RelayerError{
		Kind:    TooManyTransactions,
		Message: fmt.Sprintf("Too many queued transactions, max: %d, current: %d", max, current),
		Max:     max,
		Current: current,
	}
}

func DuplicateID() *RelayerError {
	return &RelayerError{
		Kind:    DuplicateTxID,
		Message: "Transaction with same id already exists.",
	}
}

// As extracts a *RelayerError from err, or wraps err as Other.
func As(err error) *RelayerError {
	if err == nil {
		return nil
	}
	var re *RelayerError
	if errors.As(err, &re) {
		return re
	}
	return &RelayerError{Kind: Other, Message: err.Error(), cause: err}
}
