package tollgate

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across packages.

var (
	// ErrPaymentRequired indicates that payment is required to access the resource.
	ErrPaymentRequired = errors.New("payment required")

	// ErrInvalidPayment indicates that the provided payment proof is invalid.
	ErrInvalidPayment = errors.New("invalid payment")

	// ErrMalformedHeader indicates that the X-Payment header is malformed.
	ErrMalformedHeader = errors.New("malformed payment header")

	// ErrUnsupportedVersion indicates an unsupported x402 protocol version.
	ErrUnsupportedVersion = errors.New("unsupported x402 version")

	// ErrUnsupportedScheme indicates the payment scheme or network does not
	// match what the requirement demands.
	ErrUnsupportedScheme = errors.New("unsupported payment scheme")

	// ErrUnsupportedNetwork indicates an unrecognized blockchain network.
	ErrUnsupportedNetwork = errors.New("unsupported network")

	// ErrReplayedPayment indicates a payment proof was presented more than once.
	ErrReplayedPayment = errors.New("replayed payment")

	// ErrFacilitatorUnavailable indicates the facilitator service is unreachable.
	ErrFacilitatorUnavailable = errors.New("facilitator unavailable")

	// ErrVerificationFailed indicates the facilitator rejected the verify call.
	ErrVerificationFailed = errors.New("verification failed")

	// ErrSettlementFailed indicates on-chain settlement failed.
	ErrSettlementFailed = errors.New("settlement failed")

	// ErrInvalidPrice indicates a Price violates its invariants.
	ErrInvalidPrice = errors.New("invalid price")

	// ErrInvalidAmount indicates a malformed amount string.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrDuplicateTool indicates a tool name is already registered.
	ErrDuplicateTool = errors.New("duplicate tool")

	// ErrToolNotFound indicates no tool is registered under the given name.
	ErrToolNotFound = errors.New("tool not found")

	// ErrPriceCalculation indicates a dynamic price could not be resolved.
	ErrPriceCalculation = errors.New("price calculation failed")
)

// Error codes carried in structured error responses.
const (
	CodeToolNotFound       = "TOOL_NOT_FOUND"
	CodeValidationError    = "VALIDATION_ERROR"
	CodeInvalidRequest     = "INVALID_REQUEST"
	CodePriceCalculation   = "PRICE_CALCULATION_ERROR"
	CodeInvalidPayment     = "INVALID_PAYMENT"
	CodeExecutionError     = "EXECUTION_ERROR"
	CodeOutputValidation   = "OUTPUT_VALIDATION_ERROR"
	CodeSettlementError    = "SETTLEMENT_ERROR"
	CodeChatError          = "CHAT_ERROR"
	CodeDuplicateTool      = "DUPLICATE_TOOL"
	CodeFacilitatorFailure = "FACILITATOR_UNAVAILABLE"
)

// Error is the structured error surfaced to callers. Every error response
// carries a machine-readable code, a human message, and a retriable flag.
// Payment and input failures are never retriable; execution failures after
// an accepted payment are, since the caller already paid.
type Error struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retriable bool   `json:"retriable"`
	Details   string `json:"details,omitempty"`

	cause error
}

func (e *Error) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.cause
}

// NewError creates a structured error with an optional underlying cause.
func NewError(code, message string, retriable bool, cause error) *Error {
	e := &Error{Code: code, Message: message, Retriable: retriable, cause: cause}
	if cause != nil {
		e.Details = cause.Error()
	}
	return e
}

// HTTPStatus maps an error code to its response status.
func HTTPStatus(code string) int {
	switch code {
	case CodeToolNotFound:
		return 404
	case CodeValidationError, CodeInvalidRequest, CodePriceCalculation, CodeInvalidPayment:
		return 400
	case CodeChatError:
		return 502
	default:
		return 500
	}
}
