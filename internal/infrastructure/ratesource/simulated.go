// Package ratesource provides the rate Provider implementation used by the
// server binary. The upstream feeds (RBZ rate service, interbank desk,
// parallel market tracker) are simulated; a production deployment swaps this
// provider for real gateway clients without touching the cache.
package ratesource

import (
	"context"
	"math/rand"
	"time"

	"github.com/fredtinotenda3/vp-multicurrency-sub001/internal/domain/fx"
	"github.com/fredtinotenda3/vp-multicurrency-sub001/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// confidence levels per source trust tier
var sourceConfidence = map[fx.RateSource]int{
	fx.SourceReserveBank: 95,
	fx.SourceInterbank:   85,
	fx.SourceParallel:    60,
}

// SimulatedProvider serves jittered quotations around configured base rates.
type SimulatedProvider struct {
	base    map[fx.RateSource]decimal.Decimal
	ttl     time.Duration
	latency time.Duration
	rng     *rand.Rand
}

// Option configures the simulated provider.
type Option func(*SimulatedProvider)

// WithLatency adds a fixed delay to every fetch, for exercising timeouts.
func WithLatency(d time.Duration) Option {
	return func(p *SimulatedProvider) { p.latency = d }
}

// WithRand sets the random source, so tests get reproducible quotes.
func WithRand(rng *rand.Rand) Option {
	return func(p *SimulatedProvider) { p.rng = rng }
}

// NewSimulatedProvider creates a provider quoting around the given base rates
// (ZWG per USD) with per-source spreads.
func NewSimulatedProvider(base map[fx.RateSource]decimal.Decimal, ttl time.Duration, opts ...Option) *SimulatedProvider {
	p := &SimulatedProvider{
		base: base,
		ttl:  ttl,
		rng:  rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// DefaultBaseRates returns plausible ZWG-per-USD base rates per source.
// The parallel market trades at a premium over the official feed.
func DefaultBaseRates() map[fx.RateSource]decimal.Decimal {
	return map[fx.RateSource]decimal.Decimal{
		fx.SourceReserveBank: decimal.NewFromFloat(32.5),
		fx.SourceInterbank:   decimal.NewFromFloat(33.1),
		fx.SourceParallel:    decimal.NewFromFloat(38.0),
	}
}

// Fetch returns a jittered quotation for the source, honoring the caller's
// context deadline. Manual and clinic rates are operator inputs, not feeds.
func (p *SimulatedProvider) Fetch(ctx context.Context, source fx.RateSource, currency fx.Currency) (*fx.ExchangeRate, error) {
	base, ok := p.base[source]
	if !ok {
		return nil, shared.NewDomainError("SOURCE_NOT_FETCHABLE", "rate source has no upstream feed")
	}

	if p.latency > 0 {
		select {
		case <-time.After(p.latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	} else if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Jitter within +-1% of the base rate.
	jitter := decimal.NewFromFloat((p.rng.Float64() - 0.5) * 0.02)
	quote := base.Mul(decimal.NewFromInt(1).Add(jitter))

	rate, err := fx.NewExchangeRate(quote, currency, source, p.ttl, sourceConfidence[source])
	if err != nil {
		return nil, err
	}

	// Cross-source snapshot for audit metadata.
	snapshot := make(map[fx.RateSource]decimal.Decimal, len(p.base))
	for s, b := range p.base {
		snapshot[s] = b
	}
	rate.Metadata = &fx.RateMetadata{Snapshot: snapshot}
	return rate, nil
}
