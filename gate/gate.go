// Package gate implements the payment gate: the state machine that decides,
// for any protected request, whether it may proceed, what it must present
// to proceed, and how settlement is finalized around the wrapped handler.
//
// Verification always precedes handler execution (no free execution on an
// invalid payment) and settlement always follows it (no charging for an
// operation that was never attempted). This ordering is the core
// correctness property of the package.
package gate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/x402tools/tollgate"
	"github.com/x402tools/tollgate/encoding"
	"github.com/x402tools/tollgate/facilitator"
	"github.com/x402tools/tollgate/metrics"
	"github.com/x402tools/tollgate/validation"
)

// Payment header names.
const (
	HeaderPayment         = "X-Payment"
	HeaderPaymentResponse = "X-Payment-Response"
)

// DefaultChallengeTimeout is the validity window advertised in challenges.
const DefaultChallengeTimeout = 120

// contextKey is a private type for context keys to avoid collisions.
type contextKey string

// PaymentContextKey stores the facilitator's verify verdict for handlers
// that want payer information.
const PaymentContextKey = contextKey("tollgate_payment")

// Config holds the static gate configuration. Every challenge the gate
// derives is a pure function of the request's resolved price plus these
// values.
type Config struct {
	// PayTo is the payment recipient address.
	PayTo string

	// Network is the settlement network identifier (e.g. "base-sepolia").
	Network string

	// FacilitatorURL identifies the facilitator in issued challenges.
	FacilitatorURL string

	// Facilitator verifies and settles payments. Required unless
	// DevBypass is set.
	Facilitator facilitator.Interface

	// Scheme is the payment scheme. Defaults to "exact".
	Scheme string

	// ChallengeTimeout is the challenge validity in seconds. Defaults to
	// DefaultChallengeTimeout. The facilitator enforces expiry; the gate
	// only forwards the value.
	ChallengeTimeout int

	// DevBypass lets every request through with no price resolution,
	// challenge, verification, or settlement. It must be set explicitly;
	// it is never inferred from the environment. Local testing only.
	DevBypass bool

	// VerifyOnly skips settlement after successful verification. Unlike
	// DevBypass, payments are still demanded and verified.
	VerifyOnly bool

	// ReplayCacheSize bounds the process-local proof replay cache.
	// Defaults to 4096 entries.
	ReplayCacheSize int

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Metrics defaults to the no-op recorder.
	Metrics metrics.Recorder
}

// Gate is the payment gate. One instance serves all routes; per-request
// state lives on the request itself.
type Gate struct {
	cfg    Config
	log    *slog.Logger
	rec    metrics.Recorder
	replay *replayCache

	// extras holds network-specific challenge extras advertised by the
	// facilitator's /supported endpoint, fetched once at construction so
	// challenge derivation stays deterministic.
	extras map[string]interface{}
}

// New validates the configuration and creates a gate.
func New(cfg Config) (*Gate, error) {
	if cfg.Scheme == "" {
		cfg.Scheme = "exact"
	}
	if cfg.ChallengeTimeout <= 0 {
		cfg.ChallengeTimeout = DefaultChallengeTimeout
	}
	if cfg.ReplayCacheSize <= 0 {
		cfg.ReplayCacheSize = 4096
	}

	if !cfg.DevBypass {
		if cfg.Facilitator == nil {
			return nil, fmt.Errorf("gate: facilitator is required")
		}
		if _, err := tollgate.ValidateNetwork(cfg.Network); err != nil {
			return nil, fmt.Errorf("gate: %w", err)
		}
		if err := validation.ValidateAddress(cfg.PayTo, cfg.Network); err != nil {
			return nil, fmt.Errorf("gate: payTo %w", err)
		}
	}

	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	rec := cfg.Metrics
	if rec == nil {
		rec = metrics.NewNoopRecorder()
	}

	g := &Gate{
		cfg:    cfg,
		log:    log,
		rec:    rec,
		replay: newReplayCache(cfg.ReplayCacheSize),
	}
	if !cfg.DevBypass {
		g.extras = supportedExtras(cfg, log)
	}
	return g, nil
}

// supportedExtras asks the facilitator which extras (like feePayer) its
// supported scheme/network combination carries. Fetched once so every
// challenge the gate derives stays identical for identical inputs. A
// facilitator that cannot answer just yields plain challenges.
func supportedExtras(cfg Config, log *slog.Logger) map[string]interface{} {
	ctx, cancel := context.WithTimeout(context.Background(), facilitator.DefaultVerifyTimeout)
	defer cancel()

	seed := []tollgate.PaymentRequirement{{Scheme: cfg.Scheme, Network: cfg.Network}}
	enriched, err := facilitator.EnrichRequirements(ctx, cfg.Facilitator, seed)
	if err != nil {
		log.Warn("could not fetch supported payment kinds", "error", err)
		return nil
	}
	return enriched[0].Extra
}

// Requirement derives the payment challenge for a resolved price and
// resource URL. Deterministic: calling it twice with the same inputs yields
// identical requirements, so a proof obtained against the 402 challenge
// verifies against the re-derived one.
func (g *Gate) Requirement(price tollgate.Price, resource string) tollgate.PaymentRequirement {
	extra := map[string]interface{}{
		"facilitator": g.cfg.FacilitatorURL,
		"asset":       price.Asset,
	}
	// Facilitator-advertised extras never override the gate's own keys.
	for k, v := range g.extras {
		if _, exists := extra[k]; !exists {
			extra[k] = v
		}
	}

	return tollgate.PaymentRequirement{
		Scheme:            g.cfg.Scheme,
		Network:           g.cfg.Network,
		MaxAmountRequired: price.Amount,
		Asset:             price.Token,
		PayTo:             g.cfg.PayTo,
		Resource:          resource,
		Description:       "Payment required for " + resource,
		MimeType:          "application/json",
		MaxTimeoutSeconds: g.cfg.ChallengeTimeout,
		Extra:             extra,
	}
}

// Bypassed reports whether the gate is in dev-bypass mode. Callers use it
// to skip price resolution entirely, which bypass mode requires.
func (g *Gate) Bypassed() bool {
	return g.cfg.DevBypass
}

// Serve runs the payment state machine for a request whose price has
// already been resolved, invoking next only after a payment proof has been
// verified (or in bypass mode). Settlement runs exactly once when next's
// response first commits, regardless of the response status: a verified
// payment slot has been consumed either way.
func (g *Gate) Serve(w http.ResponseWriter, r *http.Request, price tollgate.Price, next http.Handler) {
	if g.cfg.DevBypass {
		next.ServeHTTP(w, r)
		return
	}

	// CORS preflight is never payment-gated.
	if r.Method == http.MethodOptions {
		next.ServeHTTP(w, r)
		return
	}

	requirement := g.Requirement(price, resourceURL(r))

	header := r.Header.Get(HeaderPayment)
	if header == "" {
		g.log.Info("no payment presented, issuing challenge", "resource", requirement.Resource)
		g.rec.IncCounter("challenge", g.labels())
		sendPaymentRequired(w, requirement)
		return
	}

	payment, err := encoding.DecodePayment(header)
	if err != nil {
		g.log.Warn("malformed payment header", "error", err)
		writeError(w, tollgate.NewError(tollgate.CodeInvalidPayment, "malformed payment header", false, err))
		return
	}
	if payment.X402Version != 1 {
		writeError(w, tollgate.NewError(tollgate.CodeInvalidPayment,
			fmt.Sprintf("unsupported x402 version %d", payment.X402Version), false, tollgate.ErrUnsupportedVersion))
		return
	}
	if payment.Scheme != requirement.Scheme || payment.Network != requirement.Network {
		writeError(w, tollgate.NewError(tollgate.CodeInvalidPayment,
			fmt.Sprintf("payment scheme %s on %s does not match required %s on %s",
				payment.Scheme, payment.Network, requirement.Scheme, requirement.Network),
			false, tollgate.ErrUnsupportedScheme))
		return
	}

	// Best-effort, single-instance replay guard. The facilitator's nonce
	// tracking is the source of truth. Proofs are only recorded once
	// settlement succeeds, so a retry after a transient failure is not
	// mistaken for a replay.
	if g.replay.seen(header) {
		g.log.Warn("replayed payment proof rejected", "resource", requirement.Resource)
		g.rec.IncCounter("replay_rejected", g.labels())
		writeError(w, tollgate.NewError(tollgate.CodeInvalidPayment, "payment proof already used", false, tollgate.ErrReplayedPayment))
		return
	}

	start := time.Now()
	verdict, err := g.cfg.Facilitator.Verify(r.Context(), payment, requirement)
	g.rec.ObserveLatency("verify", time.Since(start), g.labels())
	if err != nil {
		g.log.Error("facilitator verification failed", "error", err)
		g.rec.IncCounter("verify_error", g.labels())
		writeError(w, tollgate.NewError(tollgate.CodeFacilitatorFailure, "payment verification unavailable", true, err))
		return
	}
	if !verdict.IsValid {
		g.log.Warn("payment rejected", "reason", verdict.InvalidReason)
		g.rec.IncCounter("verify_invalid", g.labels())
		msg := "payment verification failed"
		if verdict.InvalidReason != "" {
			msg = verdict.InvalidReason
		}
		writeError(w, tollgate.NewError(tollgate.CodeInvalidPayment, msg, false, tollgate.ErrInvalidPayment))
		return
	}

	g.log.Info("payment verified", "payer", verdict.Payer, "amount", requirement.MaxAmountRequired)
	g.rec.IncCounter("verify_ok", g.labels())

	ctx := context.WithValue(r.Context(), PaymentContextKey, verdict)
	r = r.WithContext(ctx)

	// The settle closure writes through the underlying writer: on failure
	// it replaces the in-flight response with a settlement error before
	// any body bytes have been sent.
	interceptor := newSettlementInterceptor(w, func() bool {
		settlement, ok := g.settle(r.Context(), payment, requirement)
		if !ok {
			writeError(w, tollgate.NewError(tollgate.CodeSettlementError, "payment settlement failed", true, tollgate.ErrSettlementFailed))
			return false
		}
		g.replay.remember(header)
		if settlement != nil {
			if err := setSettlementHeader(w, settlement); err != nil {
				// The payment went through; a missing receipt header is
				// not worth failing the response over.
				g.log.Warn("failed to attach settlement header", "error", err)
			}
		}
		return true
	})
	next.ServeHTTP(interceptor, r)
	interceptor.finalize()
}

// Middleware wraps an entire route behind the gate with a request-
// independent pricing, the classic paywalled-endpoint shape.
func (g *Gate) Middleware(pricing tollgate.Pricing) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if g.cfg.DevBypass {
				next.ServeHTTP(w, r)
				return
			}
			price, err := pricing.ResolvePrice(r.Context(), nil)
			if err != nil {
				writeError(w, tollgate.NewError(tollgate.CodePriceCalculation, "could not price request", false, err))
				return
			}
			g.Serve(w, r, price, next)
		})
	}
}

// settle finalizes the payment. It runs inside the settlement interceptor
// when the wrapped handler's response commits. A nil settlement with ok
// means verify-only mode: nothing to attach, nothing to fail.
func (g *Gate) settle(ctx context.Context, payment tollgate.PaymentPayload, requirement tollgate.PaymentRequirement) (*tollgate.SettlementResponse, bool) {
	if g.cfg.VerifyOnly {
		return nil, true
	}

	start := time.Now()
	settlement, err := g.cfg.Facilitator.Settle(ctx, payment, requirement)
	g.rec.ObserveLatency("settle", time.Since(start), g.labels())
	if err != nil {
		g.log.Error("settlement failed", "error", err)
		g.rec.IncCounter("settle_error", g.labels())
		return nil, false
	}
	if !settlement.Success {
		g.log.Warn("settlement unsuccessful", "reason", settlement.ErrorReason)
		g.rec.IncCounter("settle_rejected", g.labels())
		return nil, false
	}

	g.log.Info("payment settled", "transaction", settlement.Transaction, "network", settlement.Network)
	g.rec.IncCounter("settle_ok", g.labels())
	return settlement, true
}

// setSettlementHeader attaches the settlement receipt to the response as a
// header, never the JSON body, so it cannot disturb tool or chat payloads.
func setSettlementHeader(w http.ResponseWriter, settlement *tollgate.SettlementResponse) error {
	encoded, err := encoding.EncodeSettlement(*settlement)
	if err != nil {
		return err
	}
	w.Header().Set(HeaderPaymentResponse, encoded)
	return nil
}

func (g *Gate) labels() map[string]string {
	return map[string]string{"network": g.cfg.Network}
}

// resourceURL reconstructs the absolute URL of the protected resource,
// original path and query included.
func resourceURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host + r.RequestURI
}

// sendPaymentRequired writes the 402 response carrying exactly one
// challenge. A list shape is used to allow multi-offer extension.
func sendPaymentRequired(w http.ResponseWriter, requirement tollgate.PaymentRequirement) {
	response := tollgate.PaymentRequirementsResponse{
		X402Version: 1,
		Error:       "Payment required for this resource",
		Accepts:     []tollgate.PaymentRequirement{requirement},
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusPaymentRequired)
	_ = json.NewEncoder(w).Encode(response)
}

// writeError writes a structured error body with the status mapped from
// the error code.
func writeError(w http.ResponseWriter, err *tollgate.Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(tollgate.HTTPStatus(err.Code))
	_ = json.NewEncoder(w).Encode(err)
}
