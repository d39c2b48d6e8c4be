package claims

import (
	"time"

	"github.com/fredtinotenda3/vp-multicurrency-sub001/internal/domain/fx"
	"github.com/fredtinotenda3/vp-multicurrency-sub001/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentMethod identifies how a direct payment was tendered at the register.
type PaymentMethod string

const (
	MethodCash       PaymentMethod = "cash"
	MethodMobile     PaymentMethod = "mobile_money"
	MethodCard       PaymentMethod = "card"
	MethodMedicalAid PaymentMethod = "medical_aid"
)

// DirectPayment is an immutable line item attached to exactly one claim.
// After creation only the Synced flag changes, set by the offline queue once
// the payment has been persisted remotely.
type DirectPayment struct {
	ID            uuid.UUID       `json:"id"`
	Currency      fx.Currency     `json:"currency"`
	Amount        decimal.Decimal `json:"amount"`
	AmountUSD     decimal.Decimal `json:"amount_usd"`
	AmountZWG     decimal.Decimal `json:"amount_zwg"`
	PaymentMethod PaymentMethod   `json:"payment_method"`
	Reference     string          `json:"reference,omitempty"`
	ReceiptNumber string          `json:"receipt_number,omitempty"`
	PaidAt        time.Time       `json:"paid_at"`
	CapturedBy    string          `json:"captured_by"`
	Synced        bool            `json:"synced"`
}

// PaymentDetails is the boundary input for recording a payment. Amount is in
// the tendered currency; the USD/ZWG mirror is derived from the event-time rate.
type PaymentDetails struct {
	Currency      fx.Currency
	Amount        decimal.Decimal
	ExchangeRate  decimal.Decimal // ZWG per USD in force at the event
	PaymentMethod PaymentMethod
	Reference     string
	ReceiptNumber string
	CapturedBy    string
	PaidAt        time.Time
}

// Validate rejects malformed payment input at the API boundary.
func (d *PaymentDetails) Validate() error {
	if !d.Currency.IsValid() {
		return shared.NewDomainError("INVALID_CURRENCY", "payment currency must be USD or ZWG")
	}
	if !d.Amount.IsPositive() {
		return shared.NewDomainError("INVALID_AMOUNT", "payment amount must be positive")
	}
	if !d.ExchangeRate.IsPositive() {
		return shared.NewDomainError("INVALID_RATE", "payment requires a positive exchange rate")
	}
	if d.PaymentMethod == "" {
		return shared.NewDomainError("INVALID_INPUT", "payment method is required")
	}
	return nil
}

// newDirectPayment mirrors the tendered amount into both currencies using the
// exchange rate in force at the event, never the claim's order-time rate.
func newDirectPayment(d PaymentDetails) DirectPayment {
	var usd, zwg decimal.Decimal
	if d.Currency == fx.USD {
		usd = d.Amount
		zwg = fx.USDToZWG(d.Amount, d.ExchangeRate)
	} else {
		zwg = d.Amount
		usd = fx.ZWGToUSD(d.Amount, d.ExchangeRate)
	}
	paidAt := d.PaidAt
	if paidAt.IsZero() {
		paidAt = time.Now()
	}
	return DirectPayment{
		ID:            uuid.New(),
		Currency:      d.Currency,
		Amount:        d.Amount,
		AmountUSD:     usd,
		AmountZWG:     zwg,
		PaymentMethod: d.PaymentMethod,
		Reference:     d.Reference,
		ReceiptNumber: d.ReceiptNumber,
		PaidAt:        paidAt,
		CapturedBy:    d.CapturedBy,
	}
}
