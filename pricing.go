package tollgate

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
	"github.com/shopspring/decimal"
)

// Pricing resolves the concrete charge for a request. Implementations are a
// closed set of variants rather than a callable-or-not runtime check:
// FixedPricing, FuncPricing, and UsagePricing.
//
// Resolution is deterministic for a given payload, so the challenge built
// when issuing a 402 and the one re-derived to verify a proof carry the
// same amount.
type Pricing interface {
	// ResolvePrice computes the charge for the given payload. For
	// FuncPricing the payload must be schema-validated input; pricing
	// never runs against malformed input.
	ResolvePrice(ctx context.Context, payload any) (Price, error)
}

// FixedPricing charges the same price for every invocation.
type FixedPricing struct {
	Value Price
}

// ResolvePrice implements Pricing.
func (p FixedPricing) ResolvePrice(_ context.Context, _ any) (Price, error) {
	if err := p.Value.Validate(); err != nil {
		return Price{}, fmt.Errorf("%w: %v", ErrPriceCalculation, err)
	}
	return p.Value, nil
}

// FuncPricing computes the price from the validated request input. Any
// failure is a client error: the caller must fix the request, retrying
// cannot help.
type FuncPricing struct {
	Fn func(input map[string]any) (Price, error)
}

// ResolvePrice implements Pricing.
func (p FuncPricing) ResolvePrice(_ context.Context, payload any) (Price, error) {
	if p.Fn == nil {
		return Price{}, fmt.Errorf("%w: nil price function", ErrPriceCalculation)
	}
	input, ok := payload.(map[string]any)
	if !ok {
		return Price{}, fmt.Errorf("%w: payload is %T, want validated input", ErrPriceCalculation, payload)
	}
	price, err := p.Fn(input)
	if err != nil {
		return Price{}, fmt.Errorf("%w: %v", ErrPriceCalculation, err)
	}
	if err := price.Validate(); err != nil {
		return Price{}, fmt.Errorf("%w: %v", ErrPriceCalculation, err)
	}
	return price, nil
}

// UnitCounter counts billable units of text. Counters are scoped resources:
// callers must Close them after each resolution.
type UnitCounter interface {
	Count(text string) (int, error)
	Close() error
}

// CounterFactory opens a UnitCounter for the given model vocabulary.
type CounterFactory func(model string) (UnitCounter, error)

// Countable is implemented by payloads that expose billable text, such as a
// chat request exposing message contents and embedded tool-call arguments.
type Countable interface {
	CountableText() []string
}

// UsagePricing derives the charge from a counted unit measure of the
// payload: amount = clamp(Base + units*PerUnit, Min, Max). If counting
// fails the request must still be priceable, so resolution degrades to
// max(Base, Min) instead of erroring.
type UsagePricing struct {
	// Asset is the asset symbol (e.g. "USDC").
	Asset string

	// Token is the asset's contract or mint address.
	Token string

	// PerUnit is the cost per counted unit, in atomic units.
	PerUnit decimal.Decimal

	// Base is a flat amount added to every charge, in atomic units.
	Base decimal.Decimal

	// Min is the lower clamp for the resolved amount.
	Min decimal.Decimal

	// Max is the upper clamp. Zero means no upper clamp.
	Max decimal.Decimal

	// Model names the unit-counting vocabulary to use.
	Model string

	// NewCounter opens the unit counter. Nil means the tiktoken-backed
	// counter with a heuristic fallback.
	NewCounter CounterFactory
}

// Validate fails fast on misconfiguration. Min > Max is rejected here, at
// configuration time, so it can never produce a per-request surprise.
func (p UsagePricing) Validate() error {
	if p.Asset == "" {
		return fmt.Errorf("usage pricing: asset symbol is empty")
	}
	if p.Token == "" && !nativeAssets[p.Asset] {
		return fmt.Errorf("usage pricing: non-native asset %q has no token address", p.Asset)
	}
	if p.PerUnit.IsNegative() || p.Base.IsNegative() || p.Min.IsNegative() || p.Max.IsNegative() {
		return fmt.Errorf("usage pricing: negative amounts are not allowed")
	}
	if !p.Max.IsZero() && p.Min.GreaterThan(p.Max) {
		return fmt.Errorf("usage pricing: min %s exceeds max %s", p.Min, p.Max)
	}
	return nil
}

// ResolvePrice implements Pricing.
func (p UsagePricing) ResolvePrice(_ context.Context, payload any) (Price, error) {
	if err := p.Validate(); err != nil {
		return Price{}, fmt.Errorf("%w: %v", ErrPriceCalculation, err)
	}

	amount := p.fallbackAmount()
	units, err := p.countUnits(payload)
	if err == nil {
		amount = p.Base.Add(decimal.NewFromInt(int64(units)).Mul(p.PerUnit))
		if amount.LessThan(p.Min) {
			amount = p.Min
		}
		if !p.Max.IsZero() && amount.GreaterThan(p.Max) {
			amount = p.Max
		}
	}

	return Price{
		Asset:  p.Asset,
		Amount: amount.Ceil().String(),
		Token:  p.Token,
	}, nil
}

// fallbackAmount is charged when unit counting fails: max(Base, Min).
func (p UsagePricing) fallbackAmount() decimal.Decimal {
	if p.Base.GreaterThan(p.Min) {
		return p.Base
	}
	return p.Min
}

func (p UsagePricing) countUnits(payload any) (int, error) {
	var texts []string
	switch v := payload.(type) {
	case Countable:
		texts = v.CountableText()
	case string:
		texts = []string{v}
	case []string:
		texts = v
	default:
		return 0, fmt.Errorf("payload %T exposes no countable text", payload)
	}

	factory := p.NewCounter
	if factory == nil {
		factory = NewTokenCounter
	}
	counter, err := factory(p.Model)
	if err != nil {
		return 0, err
	}
	defer counter.Close()

	total := 0
	for _, text := range texts {
		n, err := counter.Count(text)
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

// tokenCounter counts exact tokens with the tiktoken encoding for the
// configured model.
type tokenCounter struct {
	enc *tiktoken.Tiktoken
}

// NewTokenCounter opens a tiktoken-backed counter for the model's
// vocabulary. Unknown models fall back to cl100k_base; if no encoding can
// be loaded at all the heuristic estimator takes over, so pricing keeps
// working without the tokenizer data.
func NewTokenCounter(model string) (UnitCounter, error) {
	if model != "" {
		if enc, err := tiktoken.EncodingForModel(model); err == nil {
			return tokenCounter{enc: enc}, nil
		}
	}
	if enc, err := tiktoken.GetEncoding(tiktoken.MODEL_CL100K_BASE); err == nil {
		return tokenCounter{enc: enc}, nil
	}
	return NewHeuristicCounter(model)
}

func (c tokenCounter) Count(text string) (int, error) {
	return len(c.enc.Encode(text, nil, nil)), nil
}

func (c tokenCounter) Close() error { return nil }

// heuristicCounter estimates units at roughly four characters per unit,
// which tracks common LLM tokenizers closely enough for pricing. It backs
// up the exact tokenizer when its encoding data is unavailable.
type heuristicCounter struct{}

// NewHeuristicCounter returns the built-in estimator. The model vocabulary
// is ignored; the estimate is model-independent.
func NewHeuristicCounter(_ string) (UnitCounter, error) {
	return heuristicCounter{}, nil
}

func (heuristicCounter) Count(text string) (int, error) {
	if text == "" {
		return 0, nil
	}
	runes := utf8.RuneCountInString(text)
	units := (runes + 3) / 4
	if units < 1 {
		units = 1
	}
	return units, nil
}

func (heuristicCounter) Close() error { return nil }
