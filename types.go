// Package tollgate implements a payment-gated tool invocation service built
// on the x402 protocol. Servers register typed, independently priced tools;
// every invocation is gated behind a per-call charge that an external
// facilitator verifies before the tool runs and settles after the response
// is produced.
package tollgate

import (
	"fmt"
	"math/big"
)

// Price is the concrete charge for a single invocation.
type Price struct {
	// Asset is the asset symbol (e.g. "USDC", "ETH").
	Asset string `json:"asset"`

	// Amount is the charge in the asset's smallest unit, as a base-10
	// string (e.g. "10000" for 0.01 USDC). Kept as a string to avoid
	// floating-point error.
	Amount string `json:"amount"`

	// Token is the contract address (EVM) or mint address (SVM) of the
	// asset. Required for all non-native assets.
	Token string `json:"token,omitempty"`
}

// nativeAssets are asset symbols that need no token address.
var nativeAssets = map[string]bool{
	"ETH":  true,
	"SOL":  true,
	"POL":  true,
	"AVAX": true,
}

// Validate checks the Price invariants: the amount must be a non-negative
// integer in atomic units, and non-native assets must carry a token address.
func (p Price) Validate() error {
	if p.Asset == "" {
		return fmt.Errorf("%w: asset symbol is empty", ErrInvalidPrice)
	}
	amt, ok := new(big.Int).SetString(p.Amount, 10)
	if !ok {
		return fmt.Errorf("%w: amount %q is not a base-10 integer", ErrInvalidPrice, p.Amount)
	}
	if amt.Sign() < 0 {
		return fmt.Errorf("%w: amount %q is negative", ErrInvalidPrice, p.Amount)
	}
	if p.Token == "" && !nativeAssets[p.Asset] {
		return fmt.Errorf("%w: non-native asset %q has no token address", ErrInvalidPrice, p.Asset)
	}
	return nil
}

// PaymentRequirement is the challenge returned to an unpaid caller. It is a
// pure function of (price, resource, static gate configuration), so the
// requirement derived when issuing a 402 and the one re-derived to verify a
// proof match byte-for-byte.
type PaymentRequirement struct {
	// Scheme is the payment scheme identifier (e.g. "exact").
	Scheme string `json:"scheme"`

	// Network is the blockchain network identifier (e.g. "base-sepolia").
	Network string `json:"network"`

	// MaxAmountRequired is the payment amount in atomic units.
	MaxAmountRequired string `json:"maxAmountRequired"`

	// Asset is the token contract address (EVM) or mint address (SVM).
	Asset string `json:"asset"`

	// PayTo is the recipient address for the payment.
	PayTo string `json:"payTo"`

	// Resource is the absolute URL of the protected resource, including
	// the original path and query.
	Resource string `json:"resource"`

	// Description is a human-readable payment description.
	Description string `json:"description"`

	// MimeType is the content type of the protected resource.
	MimeType string `json:"mimeType"`

	// MaxTimeoutSeconds is the validity period for the payment
	// authorization. The facilitator is the source of truth for expiry;
	// this value is forwarded, not enforced locally.
	MaxTimeoutSeconds int `json:"maxTimeoutSeconds"`

	// Extra carries scheme-specific additional data, including the
	// facilitator reference under the "facilitator" key.
	Extra map[string]interface{} `json:"extra,omitempty"`
}

// PaymentRequirementsResponse is the body of a 402 response. Accepts always
// holds exactly one requirement today; the list shape leaves room for
// multi-offer responses.
type PaymentRequirementsResponse struct {
	// X402Version is the protocol version (currently 1).
	X402Version int `json:"x402Version"`

	// Error is a human-readable explanation of why payment is required.
	Error string `json:"error"`

	// Accepts is the list of payment options the server will accept.
	Accepts []PaymentRequirement `json:"accepts"`
}

// PaymentPayload is the caller-supplied proof that a challenge has been
// satisfied. The inner payload is opaque to this package; only the
// facilitator interprets it.
type PaymentPayload struct {
	// X402Version is the protocol version (currently 1).
	X402Version int `json:"x402Version"`

	// Scheme is the payment scheme identifier.
	Scheme string `json:"scheme"`

	// Network is the blockchain network identifier.
	Network string `json:"network"`

	// Payload contains the scheme-specific signed payment data.
	Payload interface{} `json:"payload"`
}

// SettlementResponse is the facilitator's verdict after settling a payment.
type SettlementResponse struct {
	// Success indicates whether the payment was settled.
	Success bool `json:"success"`

	// ErrorReason provides details if settlement failed.
	ErrorReason string `json:"errorReason,omitempty"`

	// Transaction is the blockchain transaction hash.
	Transaction string `json:"transaction,omitempty"`

	// Network is the network where the payment was settled.
	Network string `json:"network"`

	// Payer is the address that made the payment.
	Payer string `json:"payer,omitempty"`
}

// AmountToAtomic converts a human-readable decimal amount string to atomic
// units. For example, "1.5" with 6 decimals becomes 1500000.
func AmountToAtomic(amount string, decimals int) (*big.Int, error) {
	value := new(big.Float)
	if _, ok := value.SetString(amount); !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, amount)
	}

	multiplier := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
	value.Mul(value, multiplier)

	result, accuracy := value.Int(nil)
	if accuracy != big.Exact {
		return nil, fmt.Errorf("%w: %q has more than %d decimal places", ErrInvalidAmount, amount, decimals)
	}
	return result, nil
}

// AtomicToAmount converts atomic units to a human-readable decimal string.
// For example, 1500000 with 6 decimals becomes "1.500000".
func AtomicToAmount(value *big.Int, decimals int) string {
	if value == nil {
		return "0"
	}

	f := new(big.Float).SetInt(value)
	divisor := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
	f.Quo(f, divisor)

	return f.Text('f', decimals)
}
