package encoding

import (
	"testing"

	"github.com/x402tools/tollgate"
)

func TestPaymentRoundTrip(t *testing.T) {
	payment := tollgate.PaymentPayload{
		X402Version: 1,
		Scheme:      "exact",
		Network:     "base-sepolia",
		Payload: map[string]interface{}{
			"signature": "0xdeadbeef",
			"authorization": map[string]interface{}{
				"from":  "0x857b06519E91e3A54538791bDbb0E22373e36b66",
				"value": "10000",
			},
		},
	}

	encoded, err := EncodePayment(payment)
	if err != nil {
		t.Fatalf("EncodePayment failed: %v", err)
	}

	decoded, err := DecodePayment(encoded)
	if err != nil {
		t.Fatalf("DecodePayment failed: %v", err)
	}
	if decoded.X402Version != 1 || decoded.Scheme != "exact" || decoded.Network != "base-sepolia" {
		t.Errorf("decoded envelope mismatch: %+v", decoded)
	}
	inner, ok := decoded.Payload.(map[string]interface{})
	if !ok {
		t.Fatalf("decoded payload is %T, want map", decoded.Payload)
	}
	if inner["signature"] != "0xdeadbeef" {
		t.Errorf("inner payload mismatch: %v", inner)
	}
}

func TestDecodePaymentErrors(t *testing.T) {
	tests := []struct {
		name    string
		encoded string
	}{
		{"not base64", "!!not-base64!!"},
		{"base64 of non-json", "bm90IGpzb24="},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodePayment(tt.encoded); err == nil {
				t.Error("expected decode error")
			}
		})
	}
}

func TestSettlementRoundTrip(t *testing.T) {
	settlement := tollgate.SettlementResponse{
		Success:     true,
		Transaction: "0xabc123",
		Network:     "base",
		Payer:       "0x857b06519E91e3A54538791bDbb0E22373e36b66",
	}

	encoded, err := EncodeSettlement(settlement)
	if err != nil {
		t.Fatalf("EncodeSettlement failed: %v", err)
	}

	decoded, err := DecodeSettlement(encoded)
	if err != nil {
		t.Fatalf("DecodeSettlement failed: %v", err)
	}
	if decoded != settlement {
		t.Errorf("round trip mismatch: got %+v, want %+v", decoded, settlement)
	}
}
