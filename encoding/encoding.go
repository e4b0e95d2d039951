// Package encoding converts payment data to and from the base64-encoded
// JSON used by the X-Payment and X-Payment-Response headers.
package encoding

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/x402tools/tollgate"
)

// EncodePayment converts a PaymentPayload to a base64-encoded JSON string
// suitable for an X-Payment header.
func EncodePayment(payment tollgate.PaymentPayload) (string, error) {
	data, err := json.Marshal(payment)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payment: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DecodePayment parses a base64-encoded JSON X-Payment header value.
func DecodePayment(encoded string) (tollgate.PaymentPayload, error) {
	var payment tollgate.PaymentPayload

	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return payment, fmt.Errorf("failed to decode base64: %w", err)
	}

	if err := json.Unmarshal(decoded, &payment); err != nil {
		return payment, fmt.Errorf("failed to unmarshal payment: %w", err)
	}

	return payment, nil
}

// EncodeSettlement converts a SettlementResponse to a base64-encoded JSON
// string suitable for an X-Payment-Response header.
func EncodeSettlement(settlement tollgate.SettlementResponse) (string, error) {
	data, err := json.Marshal(settlement)
	if err != nil {
		return "", fmt.Errorf("failed to marshal settlement: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DecodeSettlement parses a base64-encoded JSON X-Payment-Response header value.
func DecodeSettlement(encoded string) (tollgate.SettlementResponse, error) {
	var settlement tollgate.SettlementResponse

	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return settlement, fmt.Errorf("failed to decode base64: %w", err)
	}

	if err := json.Unmarshal(decoded, &settlement); err != nil {
		return settlement, fmt.Errorf("failed to unmarshal settlement: %w", err)
	}

	return settlement, nil
}
