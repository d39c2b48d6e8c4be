package claims

import (
	"fmt"
	"time"

	"github.com/fredtinotenda3/vp-multicurrency-sub001/internal/domain/fx"
	"github.com/fredtinotenda3/vp-multicurrency-sub001/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ClaimStatus represents the lifecycle state of a medical aid claim
type ClaimStatus string

const (
	StatusPending       ClaimStatus = "pending"
	StatusSubmitted     ClaimStatus = "submitted"
	StatusUnderReview   ClaimStatus = "under_review"
	StatusAwarded       ClaimStatus = "awarded"
	StatusPartiallyPaid ClaimStatus = "partially_paid"
	StatusCleared       ClaimStatus = "cleared"
	StatusRejected      ClaimStatus = "rejected"
)

// IsTerminal reports whether the status permits no further financial mutation.
func (s ClaimStatus) IsTerminal() bool {
	return s == StatusCleared || s == StatusRejected
}

// Award is the amount granted by the medical aid provider, tracked in the
// currency the provider awarded in plus its USD/ZWG equivalents.
type Award struct {
	Currency  fx.Currency     `json:"currency"`
	Amount    decimal.Decimal `json:"amount"`
	AmountUSD decimal.Decimal `json:"amount_usd"`
	AmountZWG decimal.Decimal `json:"amount_zwg"`
	AwardedBy string          `json:"awarded_by,omitempty"`
	AwardedAt *time.Time      `json:"awarded_at,omitempty"`
}

// Shortfall is what the patient still owes after award and direct payments.
type Shortfall struct {
	Currency  fx.Currency     `json:"currency"`
	AmountUSD decimal.Decimal `json:"amount_usd"`
	AmountZWG decimal.Decimal `json:"amount_zwg"`
}

// OrderSnapshot is the monetary snapshot of the originating order, supplied by
// the order-creation UI. Totals are fixed at the locked exchange rate.
type OrderSnapshot struct {
	ID           string
	TotalUSD     decimal.Decimal
	TotalZWG     decimal.Decimal
	ExchangeRate decimal.Decimal // ZWG per USD locked for this order
	RateLockedAt time.Time
	RateSource   fx.RateSource
	CreatedBy    string
}

// PatientInfo identifies the patient and their medical aid membership.
type PatientInfo struct {
	PatientID    string
	PatientName  string
	ProviderID   string
	ProviderName string
	MemberNumber string
}

// Claim is the aggregate root of the medical aid ledger: the authoritative
// dual-currency record of what the provider owes versus what the patient pays.
// Cross-references (claim->order, payment->claim) are by identifier only.
type Claim struct {
	ID           uuid.UUID   `json:"id"`
	ClaimNumber  string      `json:"claim_number"`
	PatientID    string      `json:"patient_id"`
	PatientName  string      `json:"patient_name,omitempty"`
	ProviderID   string      `json:"provider_id"`
	ProviderName string      `json:"provider_name,omitempty"`
	MemberNumber string      `json:"member_number"`
	OrderID      string      `json:"order_id"`
	Status       ClaimStatus `json:"status"`

	OrderTotalUSD decimal.Decimal `json:"order_total_usd"`
	OrderTotalZWG decimal.Decimal `json:"order_total_zwg"`
	ExchangeRate  decimal.Decimal `json:"exchange_rate"`
	RateLockedAt  time.Time       `json:"rate_locked_at"`
	RateSource    fx.RateSource   `json:"rate_source,omitempty"`

	Award          Award           `json:"award"`
	Shortfall      Shortfall       `json:"shortfall"`
	DirectPayments []DirectPayment `json:"direct_payments"`

	// Synthesized marks fallback claims created on the fly when a medical aid
	// payment arrived with no matching claim; the payment amount stands in
	// for the order total.
	Synthesized bool `json:"synthesized,omitempty"`

	CreatedBy string    `json:"created_by,omitempty"`
	ClearedBy string    `json:"cleared_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewClaimNumber builds a human-readable claim number for receipts.
func NewClaimNumber(now time.Time, id uuid.UUID) string {
	return fmt.Sprintf("MA-%s-%s", now.Format("20060102"), id.String()[:8])
}

// NewClaimFromOrder creates a claim with the shortfall initialized to the full
// order total in both currencies and the award at zero.
func NewClaimFromOrder(order OrderSnapshot, patient PatientInfo) (*Claim, error) {
	if order.ID == "" {
		return nil, shared.NewDomainError("INVALID_INPUT", "order id is required")
	}
	if !order.TotalUSD.IsPositive() {
		return nil, shared.NewDomainError("INVALID_AMOUNT", "order total must be positive")
	}
	if !order.ExchangeRate.IsPositive() {
		return nil, shared.NewDomainError("INVALID_RATE", "order exchange rate must be positive")
	}
	if patient.PatientID == "" {
		return nil, shared.NewDomainError("INVALID_INPUT", "patient id is required")
	}

	totalZWG := order.TotalZWG
	if totalZWG.IsZero() {
		totalZWG = fx.USDToZWG(order.TotalUSD, order.ExchangeRate)
	}
	lockedAt := order.RateLockedAt
	if lockedAt.IsZero() {
		lockedAt = time.Now()
	}

	now := time.Now()
	id := uuid.New()
	return &Claim{
		ID:            id,
		ClaimNumber:   NewClaimNumber(now, id),
		PatientID:     patient.PatientID,
		PatientName:   patient.PatientName,
		ProviderID:    patient.ProviderID,
		ProviderName:  patient.ProviderName,
		MemberNumber:  patient.MemberNumber,
		OrderID:       order.ID,
		Status:        StatusPending,
		OrderTotalUSD: order.TotalUSD,
		OrderTotalZWG: totalZWG,
		ExchangeRate:  order.ExchangeRate,
		RateLockedAt:  lockedAt,
		RateSource:    order.RateSource,
		Award: Award{
			Currency:  fx.USD,
			Amount:    decimal.Zero,
			AmountUSD: decimal.Zero,
			AmountZWG: decimal.Zero,
		},
		Shortfall: Shortfall{
			Currency:  fx.USD,
			AmountUSD: order.TotalUSD,
			AmountZWG: totalZWG,
		},
		DirectPayments: []DirectPayment{},
		CreatedBy:      order.CreatedBy,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// RecordAward sets an award expressed in either currency, deriving the other
// via the supplied event-time rate, and recomputes the shortfall. A mismatch
// between award and stored order totals flows into the shortfall; it is never
// silently corrected.
func (c *Claim) RecordAward(amount decimal.Decimal, currency fx.Currency, rate decimal.Decimal, awardedBy string) error {
	if c.Status.IsTerminal() {
		return shared.ErrClaimTerminal
	}
	if amount.IsNegative() {
		return shared.NewDomainError("INVALID_AMOUNT", "award amount cannot be negative")
	}
	if !currency.IsValid() {
		return shared.NewDomainError("INVALID_CURRENCY", "award currency must be USD or ZWG")
	}
	if !rate.IsPositive() {
		return shared.NewDomainError("INVALID_RATE", "award requires a positive exchange rate")
	}

	var usd, zwg decimal.Decimal
	if currency == fx.USD {
		usd = amount
		zwg = fx.USDToZWG(amount, rate)
	} else {
		zwg = amount
		usd = fx.ZWGToUSD(amount, rate)
	}

	now := time.Now()
	c.Award = Award{
		Currency:  currency,
		Amount:    amount,
		AmountUSD: usd,
		AmountZWG: zwg,
		AwardedBy: awardedBy,
		AwardedAt: &now,
	}
	c.reconcileShortfall(currency)
	if usd.IsPositive() {
		c.Status = StatusAwarded
	}
	c.UpdatedAt = now
	return nil
}

// RecordAwardUSD is the USD-denominated award shortcut.
func (c *Claim) RecordAwardUSD(awardUSD, rate decimal.Decimal, awardedBy string) error {
	return c.RecordAward(awardUSD, fx.USD, rate, awardedBy)
}

// AddPayment appends an immutable direct payment, decrements the shortfall in
// both currencies and flips the claim to partially_paid once the remaining USD
// shortfall is within the one-cent tolerance.
func (c *Claim) AddPayment(details PaymentDetails) (*DirectPayment, error) {
	if c.Status.IsTerminal() {
		return nil, shared.ErrClaimTerminal
	}
	if err := details.Validate(); err != nil {
		return nil, err
	}

	p := newDirectPayment(details)
	c.DirectPayments = append(c.DirectPayments, p)
	c.reconcileShortfall(details.Currency)

	// The flip happens only at the one-cent tolerance; a payment that leaves
	// shortfall above it keeps the prior status, and the open shortfall stays
	// visible through ShortfallSettled.
	if c.Shortfall.AmountUSD.LessThanOrEqual(fx.CentTolerance) {
		c.Status = StatusPartiallyPaid
	}
	c.UpdatedAt = time.Now()
	return &c.DirectPayments[len(c.DirectPayments)-1], nil
}

// reconcileShortfall recomputes the shortfall from its components rather than
// adjusting it incrementally, so the invariant
// shortfallUSD == orderTotalUSD - awardUSD - sum(payments.amountUSD)
// holds after every mutation regardless of event ordering.
func (c *Claim) reconcileShortfall(settledIn fx.Currency) {
	usd := c.OrderTotalUSD.Sub(c.Award.AmountUSD)
	zwg := c.OrderTotalZWG.Sub(c.Award.AmountZWG)
	for _, p := range c.DirectPayments {
		usd = usd.Sub(p.AmountUSD)
		zwg = zwg.Sub(p.AmountZWG)
	}
	c.Shortfall = Shortfall{
		Currency:  settledIn,
		AmountUSD: usd,
		AmountZWG: zwg,
	}
}

// MarkPaymentSynced flips the synced flag on one payment; set only by the
// offline queue once the payment has been persisted remotely.
func (c *Claim) MarkPaymentSynced(paymentID uuid.UUID) bool {
	for i := range c.DirectPayments {
		if c.DirectPayments[i].ID == paymentID {
			c.DirectPayments[i].Synced = true
			c.UpdatedAt = time.Now()
			return true
		}
	}
	return false
}

// Submit transitions a pending claim to submitted.
func (c *Claim) Submit() error {
	if c.Status != StatusPending {
		return shared.ErrInvalidState
	}
	c.Status = StatusSubmitted
	c.UpdatedAt = time.Now()
	return nil
}

// MarkUnderReview transitions a submitted claim to under_review.
func (c *Claim) MarkUnderReview() error {
	if c.Status != StatusSubmitted {
		return shared.ErrInvalidState
	}
	c.Status = StatusUnderReview
	c.UpdatedAt = time.Now()
	return nil
}

// MarkCleared is a terminal transition; no financial mutation is allowed after.
func (c *Claim) MarkCleared(clearedBy string) error {
	if c.Status.IsTerminal() {
		return shared.ErrInvalidState
	}
	c.Status = StatusCleared
	c.ClearedBy = clearedBy
	c.UpdatedAt = time.Now()
	return nil
}

// MarkRejected is a terminal transition recording provider rejection.
func (c *Claim) MarkRejected() error {
	if c.Status.IsTerminal() {
		return shared.ErrInvalidState
	}
	c.Status = StatusRejected
	c.UpdatedAt = time.Now()
	return nil
}

// ShortfallSettled reports whether the remaining USD shortfall is within the
// one-cent tolerance.
func (c *Claim) ShortfallSettled() bool {
	return c.Shortfall.AmountUSD.LessThanOrEqual(fx.CentTolerance)
}

// MatchesMembership reports whether a payment for the given provider and
// member number can settle against this claim.
func (c *Claim) MatchesMembership(providerID, memberNumber string) bool {
	if c.Status.IsTerminal() {
		return false
	}
	return c.ProviderID == providerID && c.MemberNumber == memberNumber
}

// Clone returns a deep copy so external callers never receive mutable
// references into the ledger's in-memory state.
func (c *Claim) Clone() *Claim {
	dup := *c
	dup.DirectPayments = make([]DirectPayment, len(c.DirectPayments))
	copy(dup.DirectPayments, c.DirectPayments)
	if c.Award.AwardedAt != nil {
		t := *c.Award.AwardedAt
		dup.Award.AwardedAt = &t
	}
	return &dup
}
