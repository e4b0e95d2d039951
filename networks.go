package tollgate

import (
	"fmt"
	"strings"
)

// NetworkType represents the blockchain virtual machine type.
type NetworkType int

const (
	// NetworkTypeUnknown represents an unrecognized network.
	NetworkTypeUnknown NetworkType = iota
	// NetworkTypeEVM represents Ethereum Virtual Machine chains.
	NetworkTypeEVM
	// NetworkTypeSVM represents Solana Virtual Machine chains.
	NetworkTypeSVM
)

// NetworkConfig describes a supported settlement network and its default
// USDC token, used for config defaulting and address validation dispatch.
type NetworkConfig struct {
	// ID is the x402 network identifier (e.g. "base", "solana").
	ID string

	// Type is the virtual machine type of the network.
	Type NetworkType

	// USDCAddress is the official Circle USDC contract or mint address.
	USDCAddress string

	// Decimals is the number of decimal places for USDC (always 6).
	Decimals int
}

// Supported networks. USDC addresses carried over from upstream x402
// deployments.
var (
	BaseMainnet = NetworkConfig{
		ID:          "base",
		Type:        NetworkTypeEVM,
		USDCAddress: "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
		Decimals:    6,
	}

	BaseSepolia = NetworkConfig{
		ID:          "base-sepolia",
		Type:        NetworkTypeEVM,
		USDCAddress: "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
		Decimals:    6,
	}

	PolygonMainnet = NetworkConfig{
		ID:          "polygon",
		Type:        NetworkTypeEVM,
		USDCAddress: "0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359",
		Decimals:    6,
	}

	SolanaMainnet = NetworkConfig{
		ID:          "solana",
		Type:        NetworkTypeSVM,
		USDCAddress: "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
		Decimals:    6,
	}

	SolanaDevnet = NetworkConfig{
		ID:          "solana-devnet",
		Type:        NetworkTypeSVM,
		USDCAddress: "4zMMC9srt5Ri5X14GAgXhaHii3GnPAEERYPJgZJDncDU",
		Decimals:    6,
	}
)

var networks = map[string]NetworkConfig{
	BaseMainnet.ID:    BaseMainnet,
	BaseSepolia.ID:    BaseSepolia,
	PolygonMainnet.ID: PolygonMainnet,
	SolanaMainnet.ID:  SolanaMainnet,
	SolanaDevnet.ID:   SolanaDevnet,
}

// NetworkByID returns the configuration for a supported network identifier.
func NetworkByID(id string) (NetworkConfig, bool) {
	cfg, ok := networks[strings.ToLower(id)]
	return cfg, ok
}

// ValidateNetwork resolves a network identifier to its virtual machine type.
// Unknown identifiers return ErrUnsupportedNetwork.
func ValidateNetwork(id string) (NetworkType, error) {
	cfg, ok := NetworkByID(id)
	if !ok {
		return NetworkTypeUnknown, fmt.Errorf("%w: %s", ErrUnsupportedNetwork, id)
	}
	return cfg.Type, nil
}

// USDCPrice builds a USDC Price on the given network from a human-readable
// amount (e.g. "0.01" for one cent).
func USDCPrice(network NetworkConfig, amount string) (Price, error) {
	atomic, err := AmountToAtomic(amount, network.Decimals)
	if err != nil {
		return Price{}, err
	}
	if atomic.Sign() < 0 {
		return Price{}, fmt.Errorf("%w: %q is negative", ErrInvalidAmount, amount)
	}
	return Price{
		Asset:  "USDC",
		Amount: atomic.String(),
		Token:  network.USDCAddress,
	}, nil
}
