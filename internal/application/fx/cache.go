// Package fx implements the exchange rate cache: the single source of truth
// for what 1 USD is worth in ZWG at the register, reconciling multiple rate
// sources with different trust levels and refresh cadences.
package fx

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fredtinotenda3/vp-multicurrency-sub001/internal/domain/fx"
	"github.com/fredtinotenda3/vp-multicurrency-sub001/internal/domain/shared"
	"github.com/fredtinotenda3/vp-multicurrency-sub001/internal/infrastructure/config"
	"github.com/fredtinotenda3/vp-multicurrency-sub001/internal/infrastructure/event"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// RateStore is the durable half of the cache. Persistence failures degrade to
// memory-only operation; they never fail a read.
type RateStore interface {
	Save(ctx context.Context, rate *fx.CachedRate) error
	Get(ctx context.Context, id string) (*fx.CachedRate, error)
	All(ctx context.Context) ([]*fx.CachedRate, error)
	Delete(ctx context.Context, id string) error
	AppendHistory(ctx context.Context, entry *fx.HistoryEntry) error
	History(ctx context.Context, q fx.HistoryQuery) ([]fx.HistoryEntry, error)
}

// GetRateOptions selects which quotation to return and how hard to try.
type GetRateOptions struct {
	Source       fx.RateSource
	Currency     fx.Currency
	ForceRefresh bool
	Timeout      time.Duration
}

// ManualRateOptions describes an authoritative operator override.
type ManualRateOptions struct {
	Source       fx.RateSource
	Currency     fx.Currency
	AuthorizedBy string
	ValidFor     time.Duration
	Reason       string
}

// Stats exposes cache counters for the status screen.
type Stats struct {
	Hits        int64 `json:"hits"`
	StaleHits   int64 `json:"stale_hits"`
	Misses      int64 `json:"misses"`
	FetchErrors int64 `json:"fetch_errors"`
	Entries     int   `json:"entries"`
}

// inflight is one deduplicated fetch shared by concurrent callers.
type inflight struct {
	done chan struct{}
	rate *fx.ExchangeRate
	err  error
}

// Cache is the exchange rate cache. Memory is consulted first, the durable
// store second; stale entries are served under the stale-while-revalidate
// policy with exactly one background revalidation per cache key.
type Cache struct {
	cfg      config.RatesConfig
	provider fx.Provider
	store    RateStore
	bus      *event.Bus
	logger   *zap.Logger

	mu           sync.Mutex
	entries      map[string]*fx.CachedRate
	calls        map[string]*inflight
	revalidating map[string]struct{}

	hits        atomic.Int64
	staleHits   atomic.Int64
	misses      atomic.Int64
	fetchErrors atomic.Int64

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewCache creates the cache and rehydrates it from the durable store.
func NewCache(cfg config.RatesConfig, provider fx.Provider, store RateStore, bus *event.Bus, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Cache{
		cfg:          cfg,
		provider:     provider,
		store:        store,
		bus:          bus,
		logger:       logger,
		entries:      make(map[string]*fx.CachedRate),
		calls:        make(map[string]*inflight),
		revalidating: make(map[string]struct{}),
		stopCh:       make(chan struct{}),
	}
	c.hydrate()
	return c
}

// hydrate loads persisted cache entries into memory. A store failure leaves
// the cache empty but operational.
func (c *Cache) hydrate() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rates, err := c.store.All(ctx)
	if err != nil {
		c.logger.Warn("failed to hydrate rate cache, starting empty", zap.Error(err))
		return
	}
	for _, r := range rates {
		c.entries[r.ID] = r
	}
	if len(rates) > 0 {
		c.logger.Info("rate cache hydrated", zap.Int("entries", len(rates)))
	}
}

// Start launches the periodic eviction sweep.
func (c *Cache) Start() {
	c.wg.Add(1)
	go c.sweepLoop()
}

// Stop halts the sweep and waits for background revalidations to settle.
func (c *Cache) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
	c.wg.Wait()
}

// GetRate returns the current rate for (source, currency), consulting memory,
// then the durable store, then the upstream provider. Concurrent calls for
// the same key share one underlying fetch unless a refresh is forced.
func (c *Cache) GetRate(ctx context.Context, opts GetRateOptions) (*fx.ExchangeRate, error) {
	opts = c.withDefaults(opts)
	key := fx.CacheKey(opts.Source, opts.Currency)

	if !opts.ForceRefresh {
		if rate, err, joined := c.joinInflight(ctx, key); joined {
			return rate, err
		}
		if rate := c.lookup(ctx, key); rate != nil {
			return rate, nil
		}
	}

	return c.fetch(ctx, key, opts)
}

// joinInflight attaches the caller to an in-progress fetch for the same key.
func (c *Cache) joinInflight(ctx context.Context, key string) (*fx.ExchangeRate, error, bool) {
	c.mu.Lock()
	call, ok := c.calls[key]
	c.mu.Unlock()
	if !ok {
		return nil, nil, false
	}
	select {
	case <-call.done:
		return call.rate, call.err, true
	case <-ctx.Done():
		return nil, ctx.Err(), true
	}
}

// lookup serves from memory first, the durable store second. A fresh entry is
// a hit; a stale one is served under stale-while-revalidate with a single
// deduplicated background refresh. Returns nil when a fetch is required.
func (c *Cache) lookup(ctx context.Context, key string) *fx.ExchangeRate {
	now := time.Now()

	c.mu.Lock()
	entry, ok := c.entries[key]
	c.mu.Unlock()

	if !ok {
		stored, err := c.store.Get(ctx, key)
		if err != nil {
			c.logger.Warn("rate store read failed", zap.String("key", key), zap.Error(err))
		}
		if stored == nil {
			c.misses.Add(1)
			return nil
		}
		c.mu.Lock()
		// Another goroutine may have populated the key meanwhile.
		if existing, ok := c.entries[key]; ok {
			entry = existing
		} else {
			c.entries[key] = stored
			entry = stored
		}
		c.mu.Unlock()
	}

	c.mu.Lock()
	stale := entry.Rate.IsStale(now)
	if stale && !c.cfg.ServeStale {
		c.mu.Unlock()
		c.misses.Add(1)
		return nil
	}
	entry.Touch(now)
	rate := entry.Rate
	if stale {
		c.scheduleRevalidationLocked(key, rate.Source, rate.Currency)
	}
	dup := *entry
	c.mu.Unlock()

	c.persist(ctx, &dup)
	if stale {
		c.staleHits.Add(1)
		c.bus.Publish(event.New(event.TypeRateStaleServed, map[string]any{
			"source":   string(rate.Source),
			"currency": string(rate.Currency),
			"rate":     rate.Rate.String(),
		}))
	} else {
		c.hits.Add(1)
	}
	return rate
}

// scheduleRevalidationLocked triggers at most one background revalidation per
// cache key. Caller holds c.mu.
func (c *Cache) scheduleRevalidationLocked(key string, source fx.RateSource, currency fx.Currency) {
	if _, busy := c.revalidating[key]; busy {
		return
	}
	c.revalidating[key] = struct{}{}
	c.wg.Add(1)
	go c.revalidate(key, source, currency)
}

func (c *Cache) revalidate(key string, source fx.RateSource, currency fx.Currency) {
	defer c.wg.Done()
	defer func() {
		c.mu.Lock()
		delete(c.revalidating, key)
		c.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.FetchTimeout)
	defer cancel()

	rate, err := c.provider.Fetch(ctx, source, currency)
	if err != nil {
		c.fetchErrors.Add(1)
		c.logger.Warn("background rate revalidation failed",
			zap.String("source", string(source)),
			zap.Error(err),
		)
		c.bus.Publish(event.New(event.TypeRateFetchFailed, map[string]any{
			"source":   string(source),
			"currency": string(currency),
			"error":    err.Error(),
		}))
		return
	}
	c.adopt(ctx, rate, false, "", "")
}

// fetch performs a deduplicated upstream fetch bounded by the configured
// timeout, falling back to any stale cached value when the strategy allows.
func (c *Cache) fetch(ctx context.Context, key string, opts GetRateOptions) (*fx.ExchangeRate, error) {
	call := &inflight{done: make(chan struct{})}

	c.mu.Lock()
	if existing, ok := c.calls[key]; ok && !opts.ForceRefresh {
		c.mu.Unlock()
		select {
		case <-existing.done:
			return existing.rate, existing.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	c.calls[key] = call
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		if c.calls[key] == call {
			delete(c.calls, key)
		}
		c.mu.Unlock()
		close(call.done)
	}()

	fetchCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	rate, err := c.provider.Fetch(fetchCtx, opts.Source, opts.Currency)
	if err != nil {
		c.fetchErrors.Add(1)
		c.bus.Publish(event.New(event.TypeRateFetchFailed, map[string]any{
			"source":   string(opts.Source),
			"currency": string(opts.Currency),
			"error":    err.Error(),
		}))

		if c.cfg.ServeStale {
			c.mu.Lock()
			entry, ok := c.entries[key]
			if ok {
				entry.Touch(time.Now())
			}
			c.mu.Unlock()
			if ok {
				c.staleHits.Add(1)
				call.rate = entry.Rate
				return entry.Rate, nil
			}
		}
		call.err = err
		return nil, err
	}

	c.adopt(ctx, rate, false, "", "")
	call.rate = rate
	return rate, nil
}

// adopt installs a new rate in memory, the durable store and the append-only
// history, then announces it.
func (c *Cache) adopt(ctx context.Context, rate *fx.ExchangeRate, manual bool, authorizedBy, reason string) {
	entry := fx.NewCachedRate(rate)

	c.mu.Lock()
	c.entries[entry.ID] = entry
	dup := *entry
	c.mu.Unlock()

	c.persist(ctx, &dup)

	historyEntry := &fx.HistoryEntry{
		ID:             uuid.NewString(),
		Source:         rate.Source,
		Currency:       rate.Currency,
		Rate:           rate.Rate,
		Confidence:     rate.Confidence,
		RecordedAt:     rate.Timestamp,
		ValidUntil:     rate.ValidUntil,
		ManualOverride: manual,
		AuthorizedBy:   authorizedBy,
		Reason:         reason,
	}
	if err := c.store.AppendHistory(ctx, historyEntry); err != nil {
		c.logger.Warn("failed to append rate history", zap.String("key", entry.ID), zap.Error(err))
	}

	c.bus.Publish(event.New(event.TypeRateRefreshed, map[string]any{
		"source":   string(rate.Source),
		"currency": string(rate.Currency),
		"rate":     rate.Rate.String(),
		"manual":   manual,
	}))
}

// persist writes a cache entry through to the durable store, best effort.
// The store reads the entry outside c.mu; callers hand it a copy made under
// the lock, never the live entry.
func (c *Cache) persist(ctx context.Context, entry *fx.CachedRate) {
	if err := c.store.Save(ctx, entry); err != nil {
		c.logger.Warn("failed to persist cached rate, continuing in memory",
			zap.String("key", entry.ID),
			zap.Error(err),
		)
	}
}

// SetManualRate records an authoritative operator override. It bypasses the
// provider entirely but flows through the same persist-and-history path,
// tagged as a manual override.
func (c *Cache) SetManualRate(ctx context.Context, value decimal.Decimal, opts ManualRateOptions) (*fx.ExchangeRate, error) {
	if opts.AuthorizedBy == "" {
		return nil, shared.NewDomainError("INVALID_INPUT", "manual rates require an authorizer")
	}
	source := opts.Source
	if source == "" {
		source = fx.SourceManual
	}
	if source != fx.SourceManual && source != fx.SourceClinicRate {
		return nil, shared.NewDomainError("INVALID_SOURCE", "manual overrides may only target manual or clinic_rate sources")
	}
	currency := opts.Currency
	if currency == "" {
		currency = fx.Currency(c.cfg.DefaultCurrency)
	}
	validFor := opts.ValidFor
	if validFor <= 0 {
		validFor = c.cfg.ManualTTL
	}

	rate, err := fx.NewExchangeRate(value, currency, source, validFor, 100)
	if err != nil {
		return nil, err
	}
	rate.Metadata = &fx.RateMetadata{
		AuthorizedBy:   opts.AuthorizedBy,
		OverrideReason: opts.Reason,
	}

	c.adopt(ctx, rate, true, opts.AuthorizedBy, opts.Reason)
	return rate, nil
}

// HistoricalRates returns past rates for audit and reporting, newest first.
func (c *Cache) HistoricalRates(ctx context.Context, q fx.HistoryQuery) ([]fx.HistoryEntry, error) {
	return c.store.History(ctx, q)
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	entries := len(c.entries)
	c.mu.Unlock()
	return Stats{
		Hits:        c.hits.Load(),
		StaleHits:   c.staleHits.Load(),
		Misses:      c.misses.Load(),
		FetchErrors: c.fetchErrors.Load(),
		Entries:     entries,
	}
}

func (c *Cache) withDefaults(opts GetRateOptions) GetRateOptions {
	if opts.Source == "" {
		opts.Source = fx.RateSource(c.cfg.DefaultSource)
	}
	if opts.Currency == "" {
		opts.Currency = fx.Currency(c.cfg.DefaultCurrency)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = c.cfg.FetchTimeout
	}
	return opts
}

func (c *Cache) sweepLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.Sweep(context.Background())
		}
	}
}

// Sweep removes entries past their validity window and, if the cache is still
// over capacity, evicts the least recently accessed entries until it fits.
func (c *Cache) Sweep(ctx context.Context) {
	var evicted []string

	c.mu.Lock()
	now := time.Now()
	for key, entry := range c.entries {
		if entry.Rate.IsStale(now) {
			delete(c.entries, key)
			evicted = append(evicted, key)
		}
	}
	if over := len(c.entries) - c.cfg.Capacity; over > 0 {
		type ranked struct {
			key  string
			last time.Time
		}
		byAccess := make([]ranked, 0, len(c.entries))
		for key, entry := range c.entries {
			byAccess = append(byAccess, ranked{key, entry.LastAccessed})
		}
		sort.Slice(byAccess, func(i, j int) bool { return byAccess[i].last.Before(byAccess[j].last) })
		for i := 0; i < over; i++ {
			delete(c.entries, byAccess[i].key)
			evicted = append(evicted, byAccess[i].key)
		}
	}
	c.mu.Unlock()

	for _, key := range evicted {
		if err := c.store.Delete(ctx, key); err != nil {
			c.logger.Warn("failed to evict cached rate from store", zap.String("key", key), zap.Error(err))
		}
	}
	if len(evicted) > 0 {
		c.logger.Debug("rate cache sweep evicted entries", zap.Int("count", len(evicted)))
	}
}
