// Package facilitator defines the external payment verifier/settler
// contract and provides an HTTP client for facilitator services. The
// facilitator is trusted to do the cryptographic work: this module only
// orchestrates calls and reacts to verdicts.
package facilitator

import (
	"context"

	"github.com/x402tools/tollgate"
)

// Interface is the facilitator contract consumed by the payment gate.
type Interface interface {
	// Verify checks a payment proof against a requirement without
	// executing the transaction.
	Verify(ctx context.Context, payment tollgate.PaymentPayload, requirement tollgate.PaymentRequirement) (*VerifyResponse, error)

	// Settle finalizes a verified payment on chain.
	Settle(ctx context.Context, payment tollgate.PaymentPayload, requirement tollgate.PaymentRequirement) (*tollgate.SettlementResponse, error)

	// Supported queries the payment kinds the facilitator accepts.
	Supported(ctx context.Context) (*SupportedResponse, error)
}

// VerifyResponse is the facilitator's verdict on a payment proof.
type VerifyResponse struct {
	IsValid       bool   `json:"isValid"`
	InvalidReason string `json:"invalidReason,omitempty"`
	Payer         string `json:"payer"`
}

// SupportedKind describes one payment type the facilitator accepts.
type SupportedKind struct {
	X402Version int                    `json:"x402Version"`
	Scheme      string                 `json:"scheme"`
	Network     string                 `json:"network"`
	Extra       map[string]interface{} `json:"extra,omitempty"`
}

// SupportedResponse lists all payment types supported by the facilitator.
type SupportedResponse struct {
	Kinds []SupportedKind `json:"kinds"`
}

// AuthorizationProvider returns an Authorization header value for
// facilitator requests. Useful for tokens that need periodic refresh.
type AuthorizationProvider func(ctx context.Context) (string, error)
