package server

import (
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"

	"github.com/x402tools/tollgate"
	"github.com/x402tools/tollgate/chat"
	"github.com/x402tools/tollgate/facilitator"
	"github.com/x402tools/tollgate/metrics"
	"github.com/x402tools/tollgate/validation"
)

// Config holds the server configuration. Validate catches misconfiguration
// at startup; nothing here is re-checked per request.
type Config struct {
	// PayTo is the payment recipient address. Required unless DevBypass.
	PayTo string

	// Network is the settlement network identifier. Required unless
	// DevBypass.
	Network string

	// FacilitatorURL is the facilitator endpoint. Required unless
	// DevBypass or an explicit Facilitator is injected.
	FacilitatorURL string `validate:"omitempty,url"`

	// Facilitator overrides the HTTP client built from FacilitatorURL.
	// Tests inject fakes here.
	Facilitator facilitator.Interface

	// DevBypass disables payment gating entirely. Explicit opt-in for
	// local deployments; never a default.
	DevBypass bool

	// VerifyOnly verifies payments but skips settlement.
	VerifyOnly bool

	// ChatPricing prices chat completions. Leaving it nil is only valid
	// together with ChatFree: free chat must be an explicit choice.
	ChatPricing tollgate.Pricing

	// ChatFree serves chat completions without payment gating.
	ChatFree bool

	// Backend is the completion backend. Required when the chat route is
	// used.
	Backend chat.Backend

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Metrics defaults to the no-op recorder.
	Metrics metrics.Recorder
}

var validate = validator.New()

// Validate fails fast on misconfiguration: malformed URLs, bad recipient
// addresses, usage-pricing clamps with min greater than max, and chat
// pricing that is neither configured nor explicitly free.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	if !c.DevBypass {
		if c.FacilitatorURL == "" && c.Facilitator == nil {
			return fmt.Errorf("config: facilitator URL is required")
		}
		if c.Network == "" {
			return fmt.Errorf("config: network is required")
		}
		if _, err := tollgate.ValidateNetwork(c.Network); err != nil {
			return fmt.Errorf("config: %w", err)
		}
		if err := validation.ValidateAddress(c.PayTo, c.Network); err != nil {
			return fmt.Errorf("config: payTo %w", err)
		}

		if c.ChatPricing == nil && !c.ChatFree {
			return fmt.Errorf("config: chat pricing is not set; configure ChatPricing or set ChatFree explicitly")
		}
	}

	if usage, ok := c.ChatPricing.(tollgate.UsagePricing); ok {
		if err := usage.Validate(); err != nil {
			return fmt.Errorf("config: %w", err)
		}
	}

	return nil
}
