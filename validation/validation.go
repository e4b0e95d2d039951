// Package validation checks amounts, addresses, and payment requirements
// before they reach the facilitator.
package validation

import (
	"fmt"
	"math/big"
	"regexp"

	"github.com/ethereum/go-ethereum/common"

	"github.com/x402tools/tollgate"
)

// solanaAddressRegex matches Solana base58 addresses (32-44 chars, base58 charset).
var solanaAddressRegex = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]{32,44}$`)

// ValidateAmount validates that an amount string is a non-negative base-10
// integer in atomic units. Zero is allowed: free-with-signature flows use it.
func ValidateAmount(amount string) error {
	if amount == "" {
		return fmt.Errorf("amount cannot be empty")
	}

	amt, ok := new(big.Int).SetString(amount, 10)
	if !ok {
		return fmt.Errorf("invalid amount format: %s", amount)
	}

	if amt.Sign() < 0 {
		return fmt.Errorf("amount cannot be negative, got: %s", amount)
	}

	return nil
}

// ValidateAddress validates an address against the rules of the given
// network's virtual machine type.
func ValidateAddress(address string, network string) error {
	if address == "" {
		return fmt.Errorf("address cannot be empty")
	}

	networkType, err := tollgate.ValidateNetwork(network)
	if err != nil {
		return fmt.Errorf("cannot validate address: %w", err)
	}

	switch networkType {
	case tollgate.NetworkTypeEVM:
		if !common.IsHexAddress(address) {
			return fmt.Errorf("invalid EVM address: %s", address)
		}
		return nil

	case tollgate.NetworkTypeSVM:
		if !solanaAddressRegex.MatchString(address) {
			return fmt.Errorf("invalid Solana address: %s (expected base58 string of 32-44 chars)", address)
		}
		return nil

	default:
		return fmt.Errorf("unsupported network type for address validation: %d", networkType)
	}
}

// ValidateRequirement performs full validation of a payment requirement
// before it is sent to a facilitator or returned in a 402 response.
func ValidateRequirement(req tollgate.PaymentRequirement) error {
	if err := ValidateAmount(req.MaxAmountRequired); err != nil {
		return fmt.Errorf("invalid requirement: %w", err)
	}

	if req.Network == "" {
		return fmt.Errorf("invalid requirement: network cannot be empty")
	}
	if _, err := tollgate.ValidateNetwork(req.Network); err != nil {
		return fmt.Errorf("invalid requirement: %w", err)
	}

	if err := ValidateAddress(req.PayTo, req.Network); err != nil {
		return fmt.Errorf("invalid requirement: payTo %w", err)
	}

	if req.Asset == "" {
		return fmt.Errorf("invalid requirement: asset address cannot be empty")
	}
	if err := ValidateAddress(req.Asset, req.Network); err != nil {
		return fmt.Errorf("invalid requirement: asset %w", err)
	}

	if req.Scheme == "" {
		return fmt.Errorf("invalid requirement: scheme cannot be empty")
	}

	if req.MaxTimeoutSeconds <= 0 {
		return fmt.Errorf("invalid requirement: timeout must be positive: %d", req.MaxTimeoutSeconds)
	}

	return nil
}
