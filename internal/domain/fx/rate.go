package fx

import (
	"time"

	"github.com/fredtinotenda3/vp-multicurrency-sub001/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// RateSource identifies where an exchange rate came from. Sources carry
// different trust levels: the reserve bank feed is authoritative, the parallel
// market is indicative, and manual/clinic rates are operator overrides.
type RateSource string

const (
	SourceReserveBank RateSource = "reserve_bank"
	SourceInterbank   RateSource = "interbank"
	SourceParallel    RateSource = "parallel"
	SourceManual      RateSource = "manual"
	SourceClinicRate  RateSource = "clinic_rate"
)

// IsValid reports whether the source is a known rate source.
func (s RateSource) IsValid() bool {
	switch s {
	case SourceReserveBank, SourceInterbank, SourceParallel, SourceManual, SourceClinicRate:
		return true
	}
	return false
}

// RateMetadata carries optional provenance for a rate: the cross-source
// snapshot taken at fetch time, or the authorizer and reason of an override.
type RateMetadata struct {
	Snapshot       map[RateSource]decimal.Decimal `json:"snapshot,omitempty"`
	AuthorizedBy   string                         `json:"authorized_by,omitempty"`
	OverrideReason string                         `json:"override_reason,omitempty"`
}

// ExchangeRate is the value object for one USD->ZWG quotation.
// Rate is always expressed as ZWG per 1 USD.
type ExchangeRate struct {
	Rate       decimal.Decimal `json:"rate"`
	Currency   Currency        `json:"currency"`
	Source     RateSource      `json:"source"`
	Timestamp  time.Time       `json:"timestamp"`
	ValidUntil time.Time       `json:"valid_until"`
	Confidence int             `json:"confidence"`
	Metadata   *RateMetadata   `json:"metadata,omitempty"`
}

// NewExchangeRate creates a validated exchange rate.
func NewExchangeRate(rate decimal.Decimal, currency Currency, source RateSource, ttl time.Duration, confidence int) (*ExchangeRate, error) {
	if !rate.IsPositive() {
		return nil, shared.NewDomainError("INVALID_RATE", "exchange rate must be positive")
	}
	if !currency.IsValid() {
		return nil, shared.NewDomainError("INVALID_CURRENCY", "unsupported currency")
	}
	if !source.IsValid() {
		return nil, shared.NewDomainError("INVALID_SOURCE", "unknown rate source")
	}
	if ttl <= 0 {
		return nil, shared.NewDomainError("INVALID_TTL", "rate validity window must be positive")
	}
	if confidence < 0 || confidence > 100 {
		return nil, shared.NewDomainError("INVALID_CONFIDENCE", "confidence must be between 0 and 100")
	}
	now := time.Now()
	return &ExchangeRate{
		Rate:       rate,
		Currency:   currency,
		Source:     source,
		Timestamp:  now,
		ValidUntil: now.Add(ttl),
		Confidence: confidence,
	}, nil
}

// IsStale reports whether the rate's validity window has passed at the given
// instant. A stale rate is not deleted; serving it is a policy decision.
func (r *ExchangeRate) IsStale(now time.Time) bool {
	return now.After(r.ValidUntil)
}

// CacheKey derives the cache identity for a (source, currency) pair.
func CacheKey(source RateSource, currency Currency) string {
	return string(source) + ":" + string(currency)
}

// CachedRate wraps an ExchangeRate with cache bookkeeping.
type CachedRate struct {
	ID           string
	Rate         *ExchangeRate
	AccessCount  int64
	LastAccessed time.Time
	TTL          time.Duration
	Stale        bool
}

// NewCachedRate creates the cache entry for a freshly fetched or overridden rate.
func NewCachedRate(rate *ExchangeRate) *CachedRate {
	return &CachedRate{
		ID:           CacheKey(rate.Source, rate.Currency),
		Rate:         rate,
		AccessCount:  0,
		LastAccessed: time.Now(),
		TTL:          rate.ValidUntil.Sub(rate.Timestamp),
	}
}

// Touch records a cache hit.
func (c *CachedRate) Touch(now time.Time) {
	c.AccessCount++
	c.LastAccessed = now
	c.Stale = c.Rate.IsStale(now)
}

// HistoryEntry is one append-only audit record of a rate that was in force.
type HistoryEntry struct {
	ID             string          `json:"id"`
	Source         RateSource      `json:"source"`
	Currency       Currency        `json:"currency"`
	Rate           decimal.Decimal `json:"rate"`
	Confidence     int             `json:"confidence"`
	RecordedAt     time.Time       `json:"recorded_at"`
	ValidUntil     time.Time       `json:"valid_until"`
	ManualOverride bool            `json:"manual_override"`
	AuthorizedBy   string          `json:"authorized_by,omitempty"`
	Reason         string          `json:"reason,omitempty"`
}

// HistoryQuery bounds a historical rate lookup. Zero From/To mean unbounded;
// Limit caps the result set, newest first.
type HistoryQuery struct {
	Source   RateSource
	Currency Currency
	From     time.Time
	To       time.Time
	Limit    int
}
