package persistence

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/fredtinotenda3/vp-multicurrency-sub001/internal/domain/claims"
	"github.com/fredtinotenda3/vp-multicurrency-sub001/internal/domain/fx"
	"github.com/fredtinotenda3/vp-multicurrency-sub001/internal/domain/sync"
	"github.com/fredtinotenda3/vp-multicurrency-sub001/internal/infrastructure/config"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *Database {
	t.Helper()
	db, err := NewDatabase(&config.DatabaseConfig{Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func freshRate(t *testing.T, source fx.RateSource, value float64) *fx.CachedRate {
	t.Helper()
	rate, err := fx.NewExchangeRate(decimal.NewFromFloat(value), fx.ZWG, source, 15*time.Minute, 95)
	require.NoError(t, err)
	return fx.NewCachedRate(rate)
}

func TestMigrate(t *testing.T) {
	t.Run("fresh database lands on the current schema version", func(t *testing.T) {
		db := openTestDB(t)

		var rows []schemaVersionModel
		require.NoError(t, db.DB.Order("version asc").Find(&rows).Error)
		require.Len(t, rows, SchemaVersion)
		assert.Equal(t, SchemaVersion, rows[len(rows)-1].Version)

		for _, table := range []string{"rates", "rate_history", "queue", "claims", "payments"} {
			assert.True(t, db.DB.Migrator().HasTable(table), "missing table %s", table)
		}
	})

	t.Run("reopening preserves data across migrations", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "register.db")
		cfg := &config.DatabaseConfig{Path: path, BusyTimeout: time.Second}

		db, err := NewDatabase(cfg)
		require.NoError(t, err)
		repo := NewGormRateRepository(db.DB)
		require.NoError(t, repo.Save(context.Background(), freshRate(t, fx.SourceReserveBank, 32.5)))
		require.NoError(t, db.Close())

		reopened, err := NewDatabase(cfg)
		require.NoError(t, err)
		defer reopened.Close()

		got, err := NewGormRateRepository(reopened.DB).Get(context.Background(), "reserve_bank:ZWG")
		require.NoError(t, err)
		require.NotNil(t, got, "data survives a reopen and migration check")
		assert.True(t, got.Rate.Rate.Equal(decimal.NewFromFloat(32.5)))
	})
}

func TestGormRateRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("save and get round-trips decimals and metadata exactly", func(t *testing.T) {
		db := openTestDB(t)
		repo := NewGormRateRepository(db.DB)

		entry := freshRate(t, fx.SourceReserveBank, 32.5)
		entry.Rate.Metadata = &fx.RateMetadata{
			Snapshot: map[fx.RateSource]decimal.Decimal{
				fx.SourceParallel: decimal.NewFromFloat(38.0),
			},
			AuthorizedBy: "pm",
		}
		entry.AccessCount = 7
		require.NoError(t, repo.Save(ctx, entry))

		got, err := repo.Get(ctx, entry.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.True(t, got.Rate.Rate.Equal(decimal.NewFromFloat(32.5)))
		assert.EqualValues(t, 7, got.AccessCount)
		assert.Equal(t, 15*time.Minute, got.TTL)
		require.NotNil(t, got.Rate.Metadata)
		assert.True(t, got.Rate.Metadata.Snapshot[fx.SourceParallel].Equal(decimal.NewFromFloat(38.0)))
	})

	t.Run("save upserts by id", func(t *testing.T) {
		db := openTestDB(t)
		repo := NewGormRateRepository(db.DB)

		first := freshRate(t, fx.SourceInterbank, 33.1)
		require.NoError(t, repo.Save(ctx, first))

		second := freshRate(t, fx.SourceInterbank, 33.9)
		require.NoError(t, repo.Save(ctx, second))

		all, err := repo.All(ctx)
		require.NoError(t, err)
		require.Len(t, all, 1, "same key overwrites, never duplicates")
		assert.True(t, all[0].Rate.Rate.Equal(decimal.NewFromFloat(33.9)))
	})

	t.Run("get absent returns nil nil", func(t *testing.T) {
		db := openTestDB(t)
		repo := NewGormRateRepository(db.DB)

		got, err := repo.Get(ctx, "parallel:ZWG")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("delete removes the entry", func(t *testing.T) {
		db := openTestDB(t)
		repo := NewGormRateRepository(db.DB)

		entry := freshRate(t, fx.SourceParallel, 38.0)
		require.NoError(t, repo.Save(ctx, entry))
		require.NoError(t, repo.Delete(ctx, entry.ID))

		got, err := repo.Get(ctx, entry.ID)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("history filters and newest-first ordering", func(t *testing.T) {
		db := openTestDB(t)
		repo := NewGormRateRepository(db.DB)

		base := time.Now().Add(-time.Hour)
		for i, value := range []float64{32.1, 32.4, 32.9} {
			require.NoError(t, repo.AppendHistory(ctx, &fx.HistoryEntry{
				ID:         string(rune('a' + i)),
				Source:     fx.SourceReserveBank,
				Currency:   fx.ZWG,
				Rate:       decimal.NewFromFloat(value),
				Confidence: 95,
				RecordedAt: base.Add(time.Duration(i) * time.Minute),
				ValidUntil: base.Add(time.Hour),
			}))
		}
		require.NoError(t, repo.AppendHistory(ctx, &fx.HistoryEntry{
			ID:             "manual-1",
			Source:         fx.SourceManual,
			Currency:       fx.ZWG,
			Rate:           decimal.NewFromInt(35),
			Confidence:     100,
			RecordedAt:     base.Add(10 * time.Minute),
			ValidUntil:     base.Add(4 * time.Hour),
			ManualOverride: true,
			AuthorizedBy:   "pm",
		}))

		entries, err := repo.History(ctx, fx.HistoryQuery{Source: fx.SourceReserveBank})
		require.NoError(t, err)
		require.Len(t, entries, 3)
		assert.True(t, entries[0].Rate.Equal(decimal.NewFromFloat(32.9)), "newest first")

		limited, err := repo.History(ctx, fx.HistoryQuery{Source: fx.SourceReserveBank, Limit: 2})
		require.NoError(t, err)
		assert.Len(t, limited, 2)

		manual, err := repo.History(ctx, fx.HistoryQuery{Source: fx.SourceManual})
		require.NoError(t, err)
		require.Len(t, manual, 1)
		assert.True(t, manual[0].ManualOverride)

		windowed, err := repo.History(ctx, fx.HistoryQuery{
			Source: fx.SourceReserveBank,
			From:   base.Add(30 * time.Second),
			To:     base.Add(90 * time.Second),
		})
		require.NoError(t, err)
		require.Len(t, windowed, 1)
		assert.True(t, windowed[0].Rate.Equal(decimal.NewFromFloat(32.4)))
	})
}

func TestGormActionRepository(t *testing.T) {
	ctx := context.Background()

	payload := func(id string) *sync.PaymentCapture {
		return &sync.PaymentCapture{
			PaymentID:     id,
			OrderID:       "ORD-" + id,
			Currency:      "USD",
			Amount:        decimal.NewFromInt(10),
			AmountUSD:     decimal.NewFromInt(10),
			AmountZWG:     decimal.NewFromInt(325),
			PaymentMethod: "cash",
			CapturedBy:    "cashier-1",
			PaidAt:        time.Now(),
		}
	}

	t.Run("snapshot prunes terminal actions and load restores the rest", func(t *testing.T) {
		db := openTestDB(t)
		repo := NewGormActionRepository(db.DB, nil)

		pending, err := sync.NewAction(payload("p"), sync.PriorityHigh, 3)
		require.NoError(t, err)
		completed, err := sync.NewAction(payload("c"), sync.PriorityNormal, 3)
		require.NoError(t, err)
		require.NoError(t, completed.MarkProcessing())
		completed.MarkCompleted()

		require.NoError(t, repo.SaveSnapshot(ctx, []*sync.Action{pending, completed}))

		loaded, err := repo.Load(ctx)
		require.NoError(t, err)
		require.Len(t, loaded, 1)
		assert.Equal(t, pending.ID, loaded[0].ID)
		got, ok := loaded[0].Payload.(*sync.PaymentCapture)
		require.True(t, ok)
		assert.Equal(t, "p", got.PaymentID)
		assert.True(t, got.Amount.Equal(decimal.NewFromInt(10)))
	})

	t.Run("processing actions return to pending on load", func(t *testing.T) {
		db := openTestDB(t)
		repo := NewGormActionRepository(db.DB, nil)

		action, err := sync.NewAction(payload("crash"), sync.PriorityNormal, 3)
		require.NoError(t, err)
		require.NoError(t, action.MarkProcessing())
		require.NoError(t, repo.SaveSnapshot(ctx, []*sync.Action{action}))

		loaded, err := repo.Load(ctx)
		require.NoError(t, err)
		require.Len(t, loaded, 1)
		assert.Equal(t, sync.StatusPending, loaded[0].Status,
			"an action claimed before a crash must be retried")
	})

	t.Run("snapshot replaces the previous snapshot wholesale", func(t *testing.T) {
		db := openTestDB(t)
		repo := NewGormActionRepository(db.DB, nil)

		first, err := sync.NewAction(payload("one"), sync.PriorityNormal, 3)
		require.NoError(t, err)
		require.NoError(t, repo.SaveSnapshot(ctx, []*sync.Action{first}))

		second, err := sync.NewAction(payload("two"), sync.PriorityNormal, 3)
		require.NoError(t, err)
		require.NoError(t, repo.SaveSnapshot(ctx, []*sync.Action{second}))

		loaded, err := repo.Load(ctx)
		require.NoError(t, err)
		require.Len(t, loaded, 1)
		assert.Equal(t, second.ID, loaded[0].ID)
	})

	t.Run("failed actions keep retry bookkeeping across restarts", func(t *testing.T) {
		db := openTestDB(t)
		repo := NewGormActionRepository(db.DB, nil)

		action, err := sync.NewAction(payload("f"), sync.PriorityLow, 2)
		require.NoError(t, err)
		require.NoError(t, action.MarkProcessing())
		action.MarkFailed("gateway timeout", time.Second)
		require.NoError(t, repo.SaveSnapshot(ctx, []*sync.Action{action}))

		loaded, err := repo.Load(ctx)
		require.NoError(t, err)
		require.Len(t, loaded, 1)
		assert.Equal(t, 1, loaded[0].RetryCount)
		assert.Equal(t, "gateway timeout", loaded[0].LastError)
		require.NotNil(t, loaded[0].NextAttemptAt)
	})
}

func TestGormClaimRepository(t *testing.T) {
	ctx := context.Background()

	newClaim := func(t *testing.T, orderID string) *claims.Claim {
		t.Helper()
		claim, err := claims.NewClaimFromOrder(claims.OrderSnapshot{
			ID:           orderID,
			TotalUSD:     decimal.NewFromFloat(287.5),
			ExchangeRate: decimal.NewFromFloat(32.5),
			RateLockedAt: time.Now(),
			RateSource:   fx.SourceReserveBank,
			CreatedBy:    "cashier-1",
		}, claims.PatientInfo{
			PatientID:    "PAT-7",
			PatientName:  "T. Moyo",
			ProviderID:   "CIMAS",
			MemberNumber: "M-44821",
		})
		require.NoError(t, err)
		return claim
	}

	t.Run("save and get round-trips the aggregate with payments", func(t *testing.T) {
		db := openTestDB(t)
		repo := NewGormClaimRepository(db.DB)

		claim := newClaim(t, "ORD-1")
		require.NoError(t, claim.RecordAwardUSD(decimal.NewFromInt(210), decimal.NewFromFloat(32.5), "officer"))
		_, err := claim.AddPayment(claims.PaymentDetails{
			Currency:      fx.USD,
			Amount:        decimal.NewFromFloat(77.5),
			ExchangeRate:  decimal.NewFromFloat(32.5),
			PaymentMethod: claims.MethodCash,
			ReceiptNumber: "RCT-001",
			CapturedBy:    "cashier-1",
		})
		require.NoError(t, err)
		require.NoError(t, repo.Save(ctx, claim))

		got, err := repo.Get(ctx, claim.ID.String())
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, claim.ClaimNumber, got.ClaimNumber)
		assert.Equal(t, claims.StatusPartiallyPaid, got.Status)
		assert.True(t, got.OrderTotalZWG.Equal(decimal.NewFromFloat(9343.75)))
		assert.True(t, got.Award.AmountUSD.Equal(decimal.NewFromInt(210)))
		assert.True(t, got.Shortfall.AmountUSD.Abs().LessThanOrEqual(fx.CentTolerance))
		require.Len(t, got.DirectPayments, 1)
		assert.Equal(t, "RCT-001", got.DirectPayments[0].ReceiptNumber)
	})

	t.Run("saving twice upserts claim and payment rows", func(t *testing.T) {
		db := openTestDB(t)
		repo := NewGormClaimRepository(db.DB)

		claim := newClaim(t, "ORD-2")
		require.NoError(t, repo.Save(ctx, claim))

		_, err := claim.AddPayment(claims.PaymentDetails{
			Currency:      fx.ZWG,
			Amount:        decimal.NewFromInt(500),
			ExchangeRate:  decimal.NewFromFloat(32.5),
			PaymentMethod: claims.MethodMobile,
			CapturedBy:    "cashier-2",
		})
		require.NoError(t, err)
		require.NoError(t, repo.Save(ctx, claim))
		require.NoError(t, repo.Save(ctx, claim)) // idempotent

		got, err := repo.Get(ctx, claim.ID.String())
		require.NoError(t, err)
		require.NotNil(t, got)
		require.Len(t, got.DirectPayments, 1, "payment rows upsert by id")
	})

	t.Run("get absent returns nil nil", func(t *testing.T) {
		db := openTestDB(t)
		repo := NewGormClaimRepository(db.DB)

		got, err := repo.Get(ctx, "00000000-0000-0000-0000-000000000000")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("all returns claims with their payments batch-loaded", func(t *testing.T) {
		db := openTestDB(t)
		repo := NewGormClaimRepository(db.DB)

		first := newClaim(t, "ORD-3")
		_, err := first.AddPayment(claims.PaymentDetails{
			Currency:      fx.USD,
			Amount:        decimal.NewFromInt(10),
			ExchangeRate:  decimal.NewFromFloat(32.5),
			PaymentMethod: claims.MethodCash,
		})
		require.NoError(t, err)
		second := newClaim(t, "ORD-4")

		require.NoError(t, repo.Save(ctx, first))
		require.NoError(t, repo.Save(ctx, second))

		all, err := repo.All(ctx)
		require.NoError(t, err)
		require.Len(t, all, 2)

		byOrder := make(map[string]*claims.Claim, len(all))
		for _, c := range all {
			byOrder[c.OrderID] = c
		}
		require.Len(t, byOrder["ORD-3"].DirectPayments, 1)
		assert.Empty(t, byOrder["ORD-4"].DirectPayments)
	})
}
