package fx

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewExchangeRate(t *testing.T) {
	t.Run("creates a validated rate with a validity window", func(t *testing.T) {
		rate, err := NewExchangeRate(decimal.NewFromFloat(32.5), ZWG, SourceReserveBank, 15*time.Minute, 95)
		require.NoError(t, err)

		assert.True(t, rate.Rate.Equal(decimal.NewFromFloat(32.5)))
		assert.Equal(t, SourceReserveBank, rate.Source)
		assert.False(t, rate.IsStale(time.Now()))
		assert.True(t, rate.IsStale(time.Now().Add(16*time.Minute)))
	})

	t.Run("rejects invalid input", func(t *testing.T) {
		_, err := NewExchangeRate(decimal.Zero, ZWG, SourceReserveBank, time.Minute, 95)
		assert.Error(t, err)

		_, err = NewExchangeRate(decimal.NewFromInt(32), "EUR", SourceReserveBank, time.Minute, 95)
		assert.Error(t, err)

		_, err = NewExchangeRate(decimal.NewFromInt(32), ZWG, "street_corner", time.Minute, 95)
		assert.Error(t, err)

		_, err = NewExchangeRate(decimal.NewFromInt(32), ZWG, SourceReserveBank, 0, 95)
		assert.Error(t, err)

		_, err = NewExchangeRate(decimal.NewFromInt(32), ZWG, SourceReserveBank, time.Minute, 101)
		assert.Error(t, err)
	})
}

func TestCacheKey(t *testing.T) {
	assert.Equal(t, "reserve_bank:ZWG", CacheKey(SourceReserveBank, ZWG))
	assert.Equal(t, "manual:USD", CacheKey(SourceManual, USD))
}

func TestCachedRate_Touch(t *testing.T) {
	rate, err := NewExchangeRate(decimal.NewFromFloat(32.5), ZWG, SourceInterbank, time.Minute, 85)
	require.NoError(t, err)

	entry := NewCachedRate(rate)
	assert.Zero(t, entry.AccessCount)
	assert.Equal(t, time.Minute, entry.TTL)

	entry.Touch(time.Now())
	entry.Touch(time.Now())
	assert.EqualValues(t, 2, entry.AccessCount)
	assert.False(t, entry.Stale)

	entry.Touch(time.Now().Add(2 * time.Minute))
	assert.True(t, entry.Stale)
}

func TestCurrencyConversion(t *testing.T) {
	rate := decimal.NewFromFloat(32.5)

	zwg := USDToZWG(decimal.NewFromFloat(287.5), rate)
	assert.True(t, zwg.Equal(decimal.NewFromFloat(9343.75)), "got %s", zwg)

	usd := ZWGToUSD(decimal.NewFromFloat(9343.75), rate)
	assert.True(t, usd.Equal(decimal.NewFromFloat(287.5)), "got %s", usd)
}

func TestWithinCent(t *testing.T) {
	a := decimal.NewFromFloat(10.004)
	b := decimal.NewFromFloat(10.01)
	assert.True(t, WithinCent(a, b))
	assert.False(t, WithinCent(decimal.NewFromInt(10), decimal.NewFromFloat(10.02)))
}

func TestCurrency_IsValid(t *testing.T) {
	assert.True(t, USD.IsValid())
	assert.True(t, ZWG.IsValid())
	assert.False(t, Currency("ZWL").IsValid())
	assert.Equal(t, ZWG, DefaultCurrency)
}
