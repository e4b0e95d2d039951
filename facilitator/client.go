package facilitator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/x402tools/tollgate"
	"github.com/x402tools/tollgate/retry"
)

// Default timeouts for facilitator operations. Settlement gets a longer
// budget because it waits on a blockchain transaction.
const (
	DefaultVerifyTimeout = 5 * time.Second
	DefaultSettleTimeout = 60 * time.Second
)

// Client talks to an x402 facilitator service over HTTP.
type Client struct {
	// BaseURL is the facilitator endpoint, without a trailing slash.
	BaseURL string

	// HTTPClient is the underlying client. Nil means http.DefaultClient.
	HTTPClient *http.Client

	// VerifyTimeout bounds verify and supported calls.
	VerifyTimeout time.Duration

	// SettleTimeout bounds settle calls.
	SettleTimeout time.Duration

	// Authorization is a static Authorization header value, e.g.
	// "Bearer api-key". Ignored when AuthorizationProvider is set.
	Authorization string

	// AuthorizationProvider supplies a fresh Authorization header value
	// per request. Takes precedence over Authorization.
	AuthorizationProvider AuthorizationProvider

	// Retry configures retries for settle transport failures. Zero value
	// means retry.DefaultConfig.
	Retry retry.Config
}

// NewClient creates a facilitator client with default timeouts.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL:       baseURL,
		HTTPClient:    &http.Client{},
		VerifyTimeout: DefaultVerifyTimeout,
		SettleTimeout: DefaultSettleTimeout,
		Retry:         retry.DefaultConfig,
	}
}

// request is the body sent to /verify and /settle.
type request struct {
	X402Version         int                         `json:"x402Version"`
	PaymentPayload      tollgate.PaymentPayload     `json:"paymentPayload"`
	PaymentRequirements tollgate.PaymentRequirement `json:"paymentRequirements"`
}

// Verify implements Interface.
func (c *Client) Verify(ctx context.Context, payment tollgate.PaymentPayload, requirement tollgate.PaymentRequirement) (*VerifyResponse, error) {
	ctx, cancel := c.withTimeout(ctx, c.VerifyTimeout)
	defer cancel()

	var verdict VerifyResponse
	if err := c.post(ctx, "/verify", payment, requirement, &verdict); err != nil {
		return nil, fmt.Errorf("%w: %v", tollgate.ErrVerificationFailed, err)
	}
	return &verdict, nil
}

// Settle implements Interface. Transport failures are retried with
// exponential backoff; a facilitator verdict, success or not, is final.
func (c *Client) Settle(ctx context.Context, payment tollgate.PaymentPayload, requirement tollgate.PaymentRequirement) (*tollgate.SettlementResponse, error) {
	ctx, cancel := c.withTimeout(ctx, c.SettleTimeout)
	defer cancel()

	cfg := c.Retry
	if cfg.MaxAttempts == 0 {
		cfg = retry.DefaultConfig
	}

	settlement, err := retry.WithRetry(ctx, cfg, isTransportError, func() (*tollgate.SettlementResponse, error) {
		var resp tollgate.SettlementResponse
		if err := c.post(ctx, "/settle", payment, requirement, &resp); err != nil {
			return nil, err
		}
		return &resp, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", tollgate.ErrSettlementFailed, err)
	}
	return settlement, nil
}

// Supported implements Interface.
func (c *Client) Supported(ctx context.Context) (*SupportedResponse, error) {
	ctx, cancel := c.withTimeout(ctx, c.VerifyTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/supported", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if err := c.authorize(ctx, httpReq); err != nil {
		return nil, err
	}

	resp, err := c.httpClient().Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", tollgate.ErrFacilitatorUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("supported endpoint failed: status %d", resp.StatusCode)
	}

	var supported SupportedResponse
	if err := json.NewDecoder(resp.Body).Decode(&supported); err != nil {
		return nil, fmt.Errorf("failed to decode supported response: %w", err)
	}
	return &supported, nil
}

// EnrichRequirements merges network-specific extras (like feePayer for SVM
// chains) from the facilitator's /supported endpoint into the given
// requirements. User-specified extras take precedence.
func EnrichRequirements(ctx context.Context, f Interface, requirements []tollgate.PaymentRequirement) ([]tollgate.PaymentRequirement, error) {
	supported, err := f.Supported(ctx)
	if err != nil {
		return requirements, fmt.Errorf("failed to fetch supported payment types: %w", err)
	}

	supportedMap := make(map[string]SupportedKind)
	for _, kind := range supported.Kinds {
		supportedMap[kind.Network+"-"+kind.Scheme] = kind
	}

	enriched := make([]tollgate.PaymentRequirement, len(requirements))
	for i, req := range requirements {
		enriched[i] = req
		kind, ok := supportedMap[req.Network+"-"+req.Scheme]
		if !ok || kind.Extra == nil {
			continue
		}
		if enriched[i].Extra == nil {
			enriched[i].Extra = make(map[string]interface{})
		}
		for k, v := range kind.Extra {
			if _, exists := enriched[i].Extra[k]; !exists {
				enriched[i].Extra[k] = v
			}
		}
	}

	return enriched, nil
}

func (c *Client) post(ctx context.Context, path string, payment tollgate.PaymentPayload, requirement tollgate.PaymentRequirement, out any) error {
	body, err := json.Marshal(request{
		X402Version:         1,
		PaymentPayload:      payment,
		PaymentRequirements: requirement,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if err := c.authorize(ctx, httpReq); err != nil {
		return err
	}

	resp, err := c.httpClient().Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %v", tollgate.ErrFacilitatorUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s failed: status %d", path, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}

func (c *Client) authorize(ctx context.Context, req *http.Request) error {
	switch {
	case c.AuthorizationProvider != nil:
		value, err := c.AuthorizationProvider(ctx)
		if err != nil {
			return fmt.Errorf("authorization provider failed: %w", err)
		}
		req.Header.Set("Authorization", value)
	case c.Authorization != "":
		req.Header.Set("Authorization", c.Authorization)
	}
	return nil
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout > 0 {
		return context.WithTimeout(ctx, timeout)
	}
	return ctx, func() {}
}

// isTransportError reports whether a settle failure is worth retrying.
// Facilitator verdicts are final; only unreachable-facilitator errors are
// transient.
func isTransportError(err error) bool {
	return errors.Is(err, tollgate.ErrFacilitatorUnavailable)
}
