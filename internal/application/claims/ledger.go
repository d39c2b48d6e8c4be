// Package claims implements the medical aid ledger: the authoritative record
// of what each medical aid provider owes versus what the patient has paid,
// tracked in USD and ZWG simultaneously.
package claims

import (
	"context"
	"sort"
	"sync"
	"time"

	claimsdomain "github.com/fredtinotenda3/vp-multicurrency-sub001/internal/domain/claims"
	"github.com/fredtinotenda3/vp-multicurrency-sub001/internal/domain/fx"
	"github.com/fredtinotenda3/vp-multicurrency-sub001/internal/domain/shared"
	"github.com/fredtinotenda3/vp-multicurrency-sub001/internal/infrastructure/event"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ClaimStore is the durable half of the ledger.
type ClaimStore interface {
	Save(ctx context.Context, claim *claimsdomain.Claim) error
	Get(ctx context.Context, id string) (*claimsdomain.Claim, error)
	All(ctx context.Context) ([]*claimsdomain.Claim, error)
}

// Subscriber receives a full snapshot of the ledger: once on registration and
// again after every mutation.
type Subscriber func(claims []*claimsdomain.Claim)

// Ledger is the in-memory working set of claims backed by the durable store.
// All mutation goes through the service so the shortfall invariant is
// reconciled and persisted on every change.
type Ledger struct {
	store  ClaimStore
	bus    *event.Bus
	logger *zap.Logger

	mu          sync.RWMutex
	claims      map[uuid.UUID]*claimsdomain.Claim
	subscribers map[int]Subscriber
	nextSubID   int
}

// NewLedger creates the ledger and hydrates it from the durable store.
// Hydration is idempotent: claims already in memory are replaced, not doubled.
func NewLedger(store ClaimStore, bus *event.Bus, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Ledger{
		store:       store,
		bus:         bus,
		logger:      logger,
		claims:      make(map[uuid.UUID]*claimsdomain.Claim),
		subscribers: make(map[int]Subscriber),
	}
	l.Hydrate(context.Background())
	return l
}

// Hydrate reloads the working set from the durable store. A store failure is
// benign; the ledger keeps whatever it already holds in memory.
func (l *Ledger) Hydrate(ctx context.Context) {
	stored, err := l.store.All(ctx)
	if err != nil {
		l.logger.Warn("failed to hydrate claims ledger, continuing in memory", zap.Error(err))
		return
	}

	l.mu.Lock()
	for _, c := range stored {
		l.claims[c.ID] = c
	}
	count := len(l.claims)
	l.mu.Unlock()

	if count > 0 {
		l.logger.Info("claims ledger hydrated", zap.Int("claims", count))
	}
}

// CreateClaimFromOrder opens a claim for an order with medical aid coverage.
// The shortfall starts at the full order total in both currencies.
func (l *Ledger) CreateClaimFromOrder(ctx context.Context, order claimsdomain.OrderSnapshot, patient claimsdomain.PatientInfo) (*claimsdomain.Claim, error) {
	claim, err := claimsdomain.NewClaimFromOrder(order, patient)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.claims[claim.ID] = claim
	l.mu.Unlock()

	l.finish(ctx, claim)
	return claim.Clone(), nil
}

// RecordAward records a USD-denominated provider award against a claim.
func (l *Ledger) RecordAward(ctx context.Context, claimID uuid.UUID, awardUSD, rate decimal.Decimal, awardedBy string) (*claimsdomain.Claim, error) {
	return l.RecordAwardInCurrency(ctx, claimID, awardUSD, fx.USD, rate, awardedBy)
}

// RecordAwardInCurrency records an award in either currency, deriving the
// other side from the supplied event-time rate.
func (l *Ledger) RecordAwardInCurrency(ctx context.Context, claimID uuid.UUID, amount decimal.Decimal, currency fx.Currency, rate decimal.Decimal, awardedBy string) (*claimsdomain.Claim, error) {
	l.mu.Lock()
	claim, ok := l.claims[claimID]
	if !ok {
		l.mu.Unlock()
		return nil, shared.ErrNotFound
	}
	if err := claim.RecordAward(amount, currency, rate, awardedBy); err != nil {
		l.mu.Unlock()
		return nil, err
	}
	l.mu.Unlock()

	l.finish(ctx, claim)
	return claim.Clone(), nil
}

// RecordMedicalAidPayment settles a medical aid remittance against the right
// claim. Resolution order: exact order match first; then an open claim for the
// same patient, provider and member number; finally a synthesized fallback
// claim using the payment amount as a stand-in order total, so the remittance
// is never dropped.
func (l *Ledger) RecordMedicalAidPayment(ctx context.Context, orderID string, patient claimsdomain.PatientInfo, details claimsdomain.PaymentDetails) (*claimsdomain.Claim, error) {
	if err := details.Validate(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	claim := l.resolveClaimLocked(orderID, patient)
	if claim == nil {
		synthesized, err := l.synthesizeClaimLocked(orderID, patient, details)
		if err != nil {
			l.mu.Unlock()
			return nil, err
		}
		claim = synthesized
	}
	if _, err := claim.AddPayment(details); err != nil {
		l.mu.Unlock()
		return nil, err
	}
	l.mu.Unlock()

	l.finish(ctx, claim)
	return claim.Clone(), nil
}

// resolveClaimLocked implements the two lookup rungs before fallback
// synthesis. Caller holds l.mu.
func (l *Ledger) resolveClaimLocked(orderID string, patient claimsdomain.PatientInfo) *claimsdomain.Claim {
	if orderID != "" {
		for _, c := range l.claims {
			// A terminal claim never absorbs a remittance, even on an exact
			// order match; a late payment for a cleared order falls through
			// to synthesis.
			if c.OrderID == orderID && !c.Status.IsTerminal() {
				return c
			}
		}
	}
	if patient.PatientID == "" {
		return nil
	}
	var match *claimsdomain.Claim
	for _, c := range l.claims {
		if c.PatientID != patient.PatientID || !c.MatchesMembership(patient.ProviderID, patient.MemberNumber) {
			continue
		}
		// Several open claims can share a membership; the newest takes the
		// remittance, matching provider statements that settle latest-first.
		if match == nil || c.CreatedAt.After(match.CreatedAt) {
			match = c
		}
	}
	return match
}

// synthesizeClaimLocked opens a fallback claim for a remittance with no
// matching claim. The payment amount stands in for the order total. Caller
// holds l.mu.
func (l *Ledger) synthesizeClaimLocked(orderID string, patient claimsdomain.PatientInfo, details claimsdomain.PaymentDetails) (*claimsdomain.Claim, error) {
	totalUSD := details.Amount
	if details.Currency == fx.ZWG {
		totalUSD = fx.ZWGToUSD(details.Amount, details.ExchangeRate)
	}
	if orderID == "" {
		orderID = "remittance-" + uuid.NewString()[:8]
	}

	order := claimsdomain.OrderSnapshot{
		ID:           orderID,
		TotalUSD:     totalUSD,
		ExchangeRate: details.ExchangeRate,
		RateLockedAt: time.Now(),
		CreatedBy:    details.CapturedBy,
	}
	claim, err := claimsdomain.NewClaimFromOrder(order, patient)
	if err != nil {
		return nil, err
	}
	claim.Synthesized = true

	l.logger.Warn("no matching claim for medical aid payment, synthesized fallback",
		zap.String("order_id", orderID),
		zap.String("patient_id", patient.PatientID),
		zap.String("claim_id", claim.ID.String()),
	)
	l.claims[claim.ID] = claim
	return claim, nil
}

// RecordShortfallPayment settles part of the remaining patient liability on a
// claim in cash, mobile money or card.
func (l *Ledger) RecordShortfallPayment(ctx context.Context, claimID uuid.UUID, details claimsdomain.PaymentDetails) (*claimsdomain.Claim, error) {
	l.mu.Lock()
	claim, ok := l.claims[claimID]
	if !ok {
		l.mu.Unlock()
		return nil, shared.ErrNotFound
	}
	if _, err := claim.AddPayment(details); err != nil {
		l.mu.Unlock()
		return nil, err
	}
	l.mu.Unlock()

	l.finish(ctx, claim)
	return claim.Clone(), nil
}

// SubmitClaim transitions a pending claim to submitted.
func (l *Ledger) SubmitClaim(ctx context.Context, claimID uuid.UUID) (*claimsdomain.Claim, error) {
	return l.transition(ctx, claimID, func(c *claimsdomain.Claim) error { return c.Submit() })
}

// MarkClaimUnderReview transitions a submitted claim to under_review.
func (l *Ledger) MarkClaimUnderReview(ctx context.Context, claimID uuid.UUID) (*claimsdomain.Claim, error) {
	return l.transition(ctx, claimID, func(c *claimsdomain.Claim) error { return c.MarkUnderReview() })
}

// MarkClaimCleared closes a claim terminally; no financial mutation after.
func (l *Ledger) MarkClaimCleared(ctx context.Context, claimID uuid.UUID, clearedBy string) (*claimsdomain.Claim, error) {
	return l.transition(ctx, claimID, func(c *claimsdomain.Claim) error { return c.MarkCleared(clearedBy) })
}

// MarkClaimRejected closes a claim terminally as rejected by the provider.
func (l *Ledger) MarkClaimRejected(ctx context.Context, claimID uuid.UUID) (*claimsdomain.Claim, error) {
	return l.transition(ctx, claimID, func(c *claimsdomain.Claim) error { return c.MarkRejected() })
}

func (l *Ledger) transition(ctx context.Context, claimID uuid.UUID, mutate func(*claimsdomain.Claim) error) (*claimsdomain.Claim, error) {
	l.mu.Lock()
	claim, ok := l.claims[claimID]
	if !ok {
		l.mu.Unlock()
		return nil, shared.ErrNotFound
	}
	if err := mutate(claim); err != nil {
		l.mu.Unlock()
		return nil, err
	}
	l.mu.Unlock()

	l.finish(ctx, claim)
	return claim.Clone(), nil
}

// MarkPaymentSynced flips the synced flag on one payment. Called by the
// offline queue's payment executor once the capture has been persisted
// remotely; emits no claims.updated event since no financial state changed.
func (l *Ledger) MarkPaymentSynced(ctx context.Context, claimID, paymentID uuid.UUID) error {
	l.mu.Lock()
	claim, ok := l.claims[claimID]
	if !ok {
		l.mu.Unlock()
		return shared.ErrNotFound
	}
	if !claim.MarkPaymentSynced(paymentID) {
		l.mu.Unlock()
		return shared.ErrNotFound
	}
	l.mu.Unlock()

	l.persist(ctx, claim)
	return nil
}

// GetClaim returns a copy of one claim.
func (l *Ledger) GetClaim(claimID uuid.UUID) (*claimsdomain.Claim, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	claim, ok := l.claims[claimID]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return claim.Clone(), nil
}

// AllClaims returns copies of every claim, newest created first.
func (l *Ledger) AllClaims() []*claimsdomain.Claim {
	return l.filter(func(*claimsdomain.Claim) bool { return true })
}

// ClaimsByPatient filters by patient id.
func (l *Ledger) ClaimsByPatient(patientID string) []*claimsdomain.Claim {
	return l.filter(func(c *claimsdomain.Claim) bool { return c.PatientID == patientID })
}

// ClaimsByProvider filters by medical aid provider id.
func (l *Ledger) ClaimsByProvider(providerID string) []*claimsdomain.Claim {
	return l.filter(func(c *claimsdomain.Claim) bool { return c.ProviderID == providerID })
}

// ClaimsByStatus filters by lifecycle status.
func (l *Ledger) ClaimsByStatus(status claimsdomain.ClaimStatus) []*claimsdomain.Claim {
	return l.filter(func(c *claimsdomain.Claim) bool { return c.Status == status })
}

// ClaimsByOrder filters by originating order id.
func (l *Ledger) ClaimsByOrder(orderID string) []*claimsdomain.Claim {
	return l.filter(func(c *claimsdomain.Claim) bool { return c.OrderID == orderID })
}

// ClaimsByAwardCurrency filters by the currency the provider awarded in.
func (l *Ledger) ClaimsByAwardCurrency(currency fx.Currency) []*claimsdomain.Claim {
	return l.filter(func(c *claimsdomain.Claim) bool { return c.Award.Currency == currency })
}

func (l *Ledger) filter(keep func(*claimsdomain.Claim) bool) []*claimsdomain.Claim {
	l.mu.RLock()
	out := make([]*claimsdomain.Claim, 0, len(l.claims))
	for _, c := range l.claims {
		if keep(c) {
			out = append(out, c.Clone())
		}
	}
	l.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// Subscribe registers a snapshot callback: invoked immediately with the
// current ledger and again after every mutation. Returns an unsubscribe func.
func (l *Ledger) Subscribe(fn Subscriber) func() {
	l.mu.Lock()
	id := l.nextSubID
	l.nextSubID++
	l.subscribers[id] = fn
	l.mu.Unlock()

	fn(l.AllClaims())

	return func() {
		l.mu.Lock()
		delete(l.subscribers, id)
		l.mu.Unlock()
	}
}

// finish persists a mutated claim and notifies subscribers and the bus.
func (l *Ledger) finish(ctx context.Context, claim *claimsdomain.Claim) {
	l.persist(ctx, claim)
	l.notify()
	l.bus.Publish(event.New(event.TypeClaimsUpdated, map[string]any{
		"claim_id": claim.ID.String(),
		"status":   string(claim.Status),
	}))
}

// persist writes one claim through to the durable store. A store failure is
// benign: logged, the claim stays authoritative in memory.
func (l *Ledger) persist(ctx context.Context, claim *claimsdomain.Claim) {
	l.mu.RLock()
	dup := claim.Clone()
	l.mu.RUnlock()

	if err := l.store.Save(ctx, dup); err != nil {
		l.logger.Warn("failed to persist claim, continuing in memory",
			zap.String("claim_id", claim.ID.String()),
			zap.Error(err),
		)
	}
}

func (l *Ledger) notify() {
	l.mu.RLock()
	subs := make([]Subscriber, 0, len(l.subscribers))
	for _, fn := range l.subscribers {
		subs = append(subs, fn)
	}
	l.mu.RUnlock()

	if len(subs) == 0 {
		return
	}
	snapshot := l.AllClaims()
	for _, fn := range subs {
		fn(snapshot)
	}
}
