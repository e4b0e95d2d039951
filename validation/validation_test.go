package validation

import (
	"testing"

	"github.com/x402tools/tollgate"
)

func TestValidateAmount(t *testing.T) {
	tests := []struct {
		name    string
		amount  string
		wantErr bool
	}{
		{"positive", "10000", false},
		{"zero", "0", false},
		{"large", "115792089237316195423570985008687907853269984665640564039457", false},
		{"empty", "", true},
		{"negative", "-1", true},
		{"fractional", "1.5", true},
		{"hex", "0x10", true},
		{"garbage", "ten dollars", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAmount(tt.amount)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateAmount(%q) error = %v, wantErr %v", tt.amount, err, tt.wantErr)
			}
		})
	}
}

func TestValidateAddress(t *testing.T) {
	tests := []struct {
		name    string
		address string
		network string
		wantErr bool
	}{
		{"valid evm", "0x857b06519E91e3A54538791bDbb0E22373e36b66", "base", false},
		{"valid evm on sepolia", "0x857b06519E91e3A54538791bDbb0E22373e36b66", "base-sepolia", false},
		{"valid solana", "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", "solana", false},
		{"empty address", "", "base", true},
		{"evm address on solana", "0x857b06519E91e3A54538791bDbb0E22373e36b66", "solana", true},
		{"solana address on evm", "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", "base", true},
		{"too short", "0x857b", "base", true},
		{"unknown network", "0x857b06519E91e3A54538791bDbb0E22373e36b66", "monopoly-money", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAddress(tt.address, tt.network)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateAddress(%q, %q) error = %v, wantErr %v", tt.address, tt.network, err, tt.wantErr)
			}
		})
	}
}

func TestValidateRequirement(t *testing.T) {
	valid := tollgate.PaymentRequirement{
		Scheme:            "exact",
		Network:           "base-sepolia",
		MaxAmountRequired: "10000",
		Asset:             "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
		PayTo:             "0x857b06519E91e3A54538791bDbb0E22373e36b66",
		Resource:          "https://example.com/tools/echo/invoke",
		MaxTimeoutSeconds: 120,
	}

	if err := ValidateRequirement(valid); err != nil {
		t.Fatalf("valid requirement rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*tollgate.PaymentRequirement)
	}{
		{"bad amount", func(r *tollgate.PaymentRequirement) { r.MaxAmountRequired = "-1" }},
		{"empty network", func(r *tollgate.PaymentRequirement) { r.Network = "" }},
		{"unknown network", func(r *tollgate.PaymentRequirement) { r.Network = "monopoly-money" }},
		{"bad payTo", func(r *tollgate.PaymentRequirement) { r.PayTo = "not-an-address" }},
		{"empty asset", func(r *tollgate.PaymentRequirement) { r.Asset = "" }},
		{"bad asset", func(r *tollgate.PaymentRequirement) { r.Asset = "not-an-address" }},
		{"empty scheme", func(r *tollgate.PaymentRequirement) { r.Scheme = "" }},
		{"zero timeout", func(r *tollgate.PaymentRequirement) { r.MaxTimeoutSeconds = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			tt.mutate(&req)
			if err := ValidateRequirement(req); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
