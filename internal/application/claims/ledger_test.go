package claims

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	claimsdomain "github.com/fredtinotenda3/vp-multicurrency-sub001/internal/domain/claims"
	"github.com/fredtinotenda3/vp-multicurrency-sub001/internal/domain/fx"
	"github.com/fredtinotenda3/vp-multicurrency-sub001/internal/domain/shared"
	"github.com/fredtinotenda3/vp-multicurrency-sub001/internal/infrastructure/event"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClaimStore is an in-memory ClaimStore.
type fakeClaimStore struct {
	mu      sync.Mutex
	claims  map[string]*claimsdomain.Claim
	failAll bool
}

func newFakeClaimStore() *fakeClaimStore {
	return &fakeClaimStore{claims: make(map[string]*claimsdomain.Claim)}
}

func (s *fakeClaimStore) Save(ctx context.Context, claim *claimsdomain.Claim) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll {
		return errors.New("disk full")
	}
	s.claims[claim.ID.String()] = claim.Clone()
	return nil
}

func (s *fakeClaimStore) Get(ctx context.Context, id string) (*claimsdomain.Claim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll {
		return nil, errors.New("disk full")
	}
	claim, ok := s.claims[id]
	if !ok {
		return nil, nil
	}
	return claim.Clone(), nil
}

func (s *fakeClaimStore) All(ctx context.Context) ([]*claimsdomain.Claim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll {
		return nil, errors.New("disk full")
	}
	out := make([]*claimsdomain.Claim, 0, len(s.claims))
	for _, c := range s.claims {
		out = append(out, c.Clone())
	}
	return out, nil
}

func testOrder() claimsdomain.OrderSnapshot {
	return claimsdomain.OrderSnapshot{
		ID:           "ORD-1001",
		TotalUSD:     decimal.NewFromFloat(287.5),
		ExchangeRate: decimal.NewFromFloat(32.5),
		RateLockedAt: time.Now(),
		RateSource:   fx.SourceReserveBank,
		CreatedBy:    "cashier-1",
	}
}

func testPatient() claimsdomain.PatientInfo {
	return claimsdomain.PatientInfo{
		PatientID:    "PAT-7",
		PatientName:  "T. Moyo",
		ProviderID:   "CIMAS",
		ProviderName: "Cimas Medical Aid",
		MemberNumber: "M-44821",
	}
}

func cashPayment(amount float64) claimsdomain.PaymentDetails {
	return claimsdomain.PaymentDetails{
		Currency:      fx.USD,
		Amount:        decimal.NewFromFloat(amount),
		ExchangeRate:  decimal.NewFromFloat(32.5),
		PaymentMethod: claimsdomain.MethodCash,
		CapturedBy:    "cashier-1",
		PaidAt:        time.Now(),
	}
}

func newTestLedger(store ClaimStore) *Ledger {
	return NewLedger(store, event.NewBus(nil), nil)
}

func TestLedger_FullSettlementFlow(t *testing.T) {
	store := newFakeClaimStore()
	ledger := newTestLedger(store)
	ctx := context.Background()

	claim, err := ledger.CreateClaimFromOrder(ctx, testOrder(), testPatient())
	require.NoError(t, err)
	assert.True(t, claim.OrderTotalZWG.Equal(decimal.NewFromFloat(9343.75)))

	claim, err = ledger.RecordAward(ctx, claim.ID, decimal.NewFromInt(210), decimal.NewFromFloat(32.5), "officer")
	require.NoError(t, err)
	assert.True(t, claim.Shortfall.AmountUSD.Equal(decimal.NewFromFloat(77.5)))
	assert.Equal(t, claimsdomain.StatusAwarded, claim.Status)

	claim, err = ledger.RecordShortfallPayment(ctx, claim.ID, cashPayment(77.5))
	require.NoError(t, err)
	assert.Equal(t, claimsdomain.StatusPartiallyPaid, claim.Status)
	assert.True(t, claim.ShortfallSettled())

	// Write-through happened on every mutation.
	stored, err := store.Get(ctx, claim.ID.String())
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, claimsdomain.StatusPartiallyPaid, stored.Status)
	require.Len(t, stored.DirectPayments, 1)
}

func TestLedger_RecordMedicalAidPayment(t *testing.T) {
	ctx := context.Background()

	t.Run("resolves by exact order id first", func(t *testing.T) {
		ledger := newTestLedger(newFakeClaimStore())
		created, err := ledger.CreateClaimFromOrder(ctx, testOrder(), testPatient())
		require.NoError(t, err)

		settled, err := ledger.RecordMedicalAidPayment(ctx, "ORD-1001", testPatient(), cashPayment(100))
		require.NoError(t, err)
		assert.Equal(t, created.ID, settled.ID)
		assert.False(t, settled.Synthesized)
		require.Len(t, settled.DirectPayments, 1)
	})

	t.Run("falls back to open claim for same membership", func(t *testing.T) {
		ledger := newTestLedger(newFakeClaimStore())
		created, err := ledger.CreateClaimFromOrder(ctx, testOrder(), testPatient())
		require.NoError(t, err)

		settled, err := ledger.RecordMedicalAidPayment(ctx, "ORD-9999", testPatient(), cashPayment(50))
		require.NoError(t, err)
		assert.Equal(t, created.ID, settled.ID, "membership match wins over synthesis")
	})

	t.Run("membership match skips terminal claims", func(t *testing.T) {
		ledger := newTestLedger(newFakeClaimStore())
		created, err := ledger.CreateClaimFromOrder(ctx, testOrder(), testPatient())
		require.NoError(t, err)
		_, err = ledger.MarkClaimCleared(ctx, created.ID, "manager")
		require.NoError(t, err)

		settled, err := ledger.RecordMedicalAidPayment(ctx, "ORD-9999", testPatient(), cashPayment(50))
		require.NoError(t, err)
		assert.NotEqual(t, created.ID, settled.ID)
		assert.True(t, settled.Synthesized)
	})

	t.Run("synthesizes a fallback claim when nothing matches", func(t *testing.T) {
		ledger := newTestLedger(newFakeClaimStore())

		settled, err := ledger.RecordMedicalAidPayment(ctx, "ORD-404", testPatient(), cashPayment(120))
		require.NoError(t, err)

		assert.True(t, settled.Synthesized)
		assert.Equal(t, "ORD-404", settled.OrderID)
		assert.True(t, settled.OrderTotalUSD.Equal(decimal.NewFromInt(120)),
			"payment amount stands in for the order total")
		assert.True(t, settled.ShortfallSettled(), "stand-in total is fully covered by the payment")
		assert.Equal(t, claimsdomain.StatusPartiallyPaid, settled.Status)
	})

	t.Run("rejects invalid payment input before any resolution", func(t *testing.T) {
		ledger := newTestLedger(newFakeClaimStore())
		bad := cashPayment(10)
		bad.Amount = decimal.Zero

		_, err := ledger.RecordMedicalAidPayment(ctx, "", testPatient(), bad)
		assert.Error(t, err)
		assert.Empty(t, ledger.AllClaims(), "no claim synthesized for invalid input")
	})
}

func TestLedger_TerminalClaimsBlockMutation(t *testing.T) {
	ctx := context.Background()
	ledger := newTestLedger(newFakeClaimStore())

	claim, err := ledger.CreateClaimFromOrder(ctx, testOrder(), testPatient())
	require.NoError(t, err)
	_, err = ledger.MarkClaimRejected(ctx, claim.ID)
	require.NoError(t, err)

	_, err = ledger.RecordAward(ctx, claim.ID, decimal.NewFromInt(10), decimal.NewFromFloat(32.5), "x")
	assert.ErrorIs(t, err, shared.ErrClaimTerminal)

	_, err = ledger.RecordShortfallPayment(ctx, claim.ID, cashPayment(10))
	assert.ErrorIs(t, err, shared.ErrClaimTerminal)

	_, err = ledger.MarkClaimCleared(ctx, claim.ID, "m")
	assert.Error(t, err)
}

func TestLedger_Filters(t *testing.T) {
	ctx := context.Background()
	ledger := newTestLedger(newFakeClaimStore())

	first, err := ledger.CreateClaimFromOrder(ctx, testOrder(), testPatient())
	require.NoError(t, err)

	otherOrder := testOrder()
	otherOrder.ID = "ORD-2002"
	otherPatient := testPatient()
	otherPatient.PatientID = "PAT-8"
	otherPatient.ProviderID = "PSMAS"
	otherPatient.MemberNumber = "M-1"
	second, err := ledger.CreateClaimFromOrder(ctx, otherOrder, otherPatient)
	require.NoError(t, err)

	assert.Len(t, ledger.AllClaims(), 2)
	all := ledger.AllClaims()
	assert.True(t, !all[0].CreatedAt.Before(all[1].CreatedAt), "newest first")

	byPatient := ledger.ClaimsByPatient("PAT-7")
	require.Len(t, byPatient, 1)
	assert.Equal(t, first.ID, byPatient[0].ID)

	byProvider := ledger.ClaimsByProvider("PSMAS")
	require.Len(t, byProvider, 1)
	assert.Equal(t, second.ID, byProvider[0].ID)

	byOrder := ledger.ClaimsByOrder("ORD-2002")
	require.Len(t, byOrder, 1)

	assert.Len(t, ledger.ClaimsByStatus(claimsdomain.StatusPending), 2)
	assert.Empty(t, ledger.ClaimsByStatus(claimsdomain.StatusCleared))

	// Filter results are copies; mutating them never leaks into the ledger.
	byPatient[0].PatientName = "mutated"
	reread, err := ledger.GetClaim(first.ID)
	require.NoError(t, err)
	assert.Equal(t, "T. Moyo", reread.PatientName)
}

func TestLedger_Subscribe(t *testing.T) {
	ctx := context.Background()
	ledger := newTestLedger(newFakeClaimStore())

	_, err := ledger.CreateClaimFromOrder(ctx, testOrder(), testPatient())
	require.NoError(t, err)

	var mu sync.Mutex
	var snapshots [][]*claimsdomain.Claim
	unsubscribe := ledger.Subscribe(func(claims []*claimsdomain.Claim) {
		mu.Lock()
		snapshots = append(snapshots, claims)
		mu.Unlock()
	})

	mu.Lock()
	require.Len(t, snapshots, 1, "immediate snapshot on subscribe")
	assert.Len(t, snapshots[0], 1)
	mu.Unlock()

	otherOrder := testOrder()
	otherOrder.ID = "ORD-3003"
	_, err = ledger.CreateClaimFromOrder(ctx, otherOrder, testPatient())
	require.NoError(t, err)

	mu.Lock()
	require.Len(t, snapshots, 2, "notified after mutation")
	assert.Len(t, snapshots[1], 2)
	mu.Unlock()

	unsubscribe()
	thirdOrder := testOrder()
	thirdOrder.ID = "ORD-4004"
	_, err = ledger.CreateClaimFromOrder(ctx, thirdOrder, testPatient())
	require.NoError(t, err)

	mu.Lock()
	assert.Len(t, snapshots, 2, "no notifications after unsubscribe")
	mu.Unlock()
}

func TestLedger_MarkPaymentSynced(t *testing.T) {
	ctx := context.Background()
	ledger := newTestLedger(newFakeClaimStore())

	claim, err := ledger.CreateClaimFromOrder(ctx, testOrder(), testPatient())
	require.NoError(t, err)
	claim, err = ledger.RecordShortfallPayment(ctx, claim.ID, cashPayment(20))
	require.NoError(t, err)
	paymentID := claim.DirectPayments[0].ID

	require.NoError(t, ledger.MarkPaymentSynced(ctx, claim.ID, paymentID))

	reread, err := ledger.GetClaim(claim.ID)
	require.NoError(t, err)
	assert.True(t, reread.DirectPayments[0].Synced)

	assert.ErrorIs(t, ledger.MarkPaymentSynced(ctx, claim.ID, uuid.New()), shared.ErrNotFound)
	assert.ErrorIs(t, ledger.MarkPaymentSynced(ctx, uuid.New(), paymentID), shared.ErrNotFound)
}

func TestLedger_Hydration(t *testing.T) {
	ctx := context.Background()
	store := newFakeClaimStore()

	first := newTestLedger(store)
	created, err := first.CreateClaimFromOrder(ctx, testOrder(), testPatient())
	require.NoError(t, err)
	_, err = first.RecordShortfallPayment(ctx, created.ID, cashPayment(30))
	require.NoError(t, err)

	// A fresh ledger over the same store sees the same claims.
	second := newTestLedger(store)
	reread, err := second.GetClaim(created.ID)
	require.NoError(t, err)
	require.Len(t, reread.DirectPayments, 1)

	// Re-hydrating replaces rather than doubles.
	second.Hydrate(ctx)
	assert.Len(t, second.AllClaims(), 1)

	// A store failure leaves the in-memory working set intact.
	store.failAll = true
	second.Hydrate(ctx)
	assert.Len(t, second.AllClaims(), 1)
}

func TestLedger_PersistenceFailureIsBenign(t *testing.T) {
	ctx := context.Background()
	store := newFakeClaimStore()
	store.failAll = true
	ledger := NewLedger(store, event.NewBus(nil), nil)

	claim, err := ledger.CreateClaimFromOrder(ctx, testOrder(), testPatient())
	require.NoError(t, err, "store failure never fails the user operation")

	_, err = ledger.RecordShortfallPayment(ctx, claim.ID, cashPayment(10))
	require.NoError(t, err)

	reread, err := ledger.GetClaim(claim.ID)
	require.NoError(t, err)
	require.Len(t, reread.DirectPayments, 1)
}
