package ratesource

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/fredtinotenda3/vp-multicurrency-sub001/internal/domain/fx"
	"github.com/fredtinotenda3/vp-multicurrency-sub001/internal/domain/shared"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimulatedProvider(t *testing.T) {
	ctx := context.Background()

	t.Run("quotes stay within one percent of the base rate", func(t *testing.T) {
		provider := NewSimulatedProvider(DefaultBaseRates(), 15*time.Minute,
			WithRand(rand.New(rand.NewSource(1))))

		base := decimal.NewFromFloat(32.5)
		for i := 0; i < 50; i++ {
			rate, err := provider.Fetch(ctx, fx.SourceReserveBank, fx.ZWG)
			require.NoError(t, err)

			deviation := rate.Rate.Sub(base).Div(base).Abs()
			assert.True(t, deviation.LessThanOrEqual(decimal.NewFromFloat(0.01)),
				"quote %s strays more than 1%% from base", rate.Rate)
		}
	})

	t.Run("each source carries its trust tier", func(t *testing.T) {
		provider := NewSimulatedProvider(DefaultBaseRates(), 15*time.Minute)

		for source, want := range map[fx.RateSource]int{
			fx.SourceReserveBank: 95,
			fx.SourceInterbank:   85,
			fx.SourceParallel:    60,
		} {
			rate, err := provider.Fetch(ctx, source, fx.ZWG)
			require.NoError(t, err)
			assert.Equal(t, want, rate.Confidence, "source %s", source)
			assert.Equal(t, source, rate.Source)
		}
	})

	t.Run("quotes include the cross-source snapshot", func(t *testing.T) {
		provider := NewSimulatedProvider(DefaultBaseRates(), 15*time.Minute)

		rate, err := provider.Fetch(ctx, fx.SourceInterbank, fx.ZWG)
		require.NoError(t, err)
		require.NotNil(t, rate.Metadata)
		assert.Len(t, rate.Metadata.Snapshot, 3)
		assert.True(t, rate.Metadata.Snapshot[fx.SourceParallel].Equal(decimal.NewFromFloat(38.0)))
	})

	t.Run("operator sources have no upstream feed", func(t *testing.T) {
		provider := NewSimulatedProvider(DefaultBaseRates(), 15*time.Minute)

		for _, source := range []fx.RateSource{fx.SourceManual, fx.SourceClinicRate} {
			_, err := provider.Fetch(ctx, source, fx.ZWG)
			require.Error(t, err)

			var domainErr *shared.DomainError
			require.ErrorAs(t, err, &domainErr)
			assert.Equal(t, "SOURCE_NOT_FETCHABLE", domainErr.Code)
		}
	})

	t.Run("a cancelled context aborts a slow fetch", func(t *testing.T) {
		provider := NewSimulatedProvider(DefaultBaseRates(), 15*time.Minute,
			WithLatency(time.Second))

		fetchCtx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
		defer cancel()

		start := time.Now()
		_, err := provider.Fetch(fetchCtx, fx.SourceReserveBank, fx.ZWG)
		require.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Less(t, time.Since(start), time.Second, "fetch must not wait out the full latency")
	})

	t.Run("quote validity matches the configured ttl", func(t *testing.T) {
		provider := NewSimulatedProvider(DefaultBaseRates(), 5*time.Minute)

		rate, err := provider.Fetch(ctx, fx.SourceReserveBank, fx.ZWG)
		require.NoError(t, err)
		assert.InDelta(t, 5*time.Minute, rate.ValidUntil.Sub(rate.Timestamp), float64(time.Second))
	})
}
