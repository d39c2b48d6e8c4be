package sync

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/fredtinotenda3/vp-multicurrency-sub001/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// ActionType discriminates queued operations. Each type has its own payload
// schema, decoded and validated once at the boundary.
type ActionType string

const (
	ActionPaymentCapture  ActionType = "payment_capture"
	ActionClaimSubmission ActionType = "claim_submission"
	ActionAwardSync       ActionType = "award_sync"
)

// Payload is the tagged variant carried by an action. The queue treats it as
// opaque beyond type and validity; executors switch on the concrete type.
type Payload interface {
	ActionType() ActionType
	Validate() error
}

// PaymentCapture defers forwarding a captured payment to the payment processor.
type PaymentCapture struct {
	PaymentID     string          `json:"payment_id"`
	OrderID       string          `json:"order_id"`
	ClaimID       string          `json:"claim_id,omitempty"`
	Currency      string          `json:"currency"`
	Amount        decimal.Decimal `json:"amount"`
	AmountUSD     decimal.Decimal `json:"amount_usd"`
	AmountZWG     decimal.Decimal `json:"amount_zwg"`
	PaymentMethod string          `json:"payment_method"`
	Reference     string          `json:"reference,omitempty"`
	ReceiptNumber string          `json:"receipt_number,omitempty"`
	CapturedBy    string          `json:"captured_by"`
	PaidAt        time.Time       `json:"paid_at"`
}

func (p *PaymentCapture) ActionType() ActionType { return ActionPaymentCapture }

func (p *PaymentCapture) Validate() error {
	if p.PaymentID == "" || p.OrderID == "" {
		return shared.NewDomainError("INVALID_PAYLOAD", "payment capture requires payment and order ids")
	}
	if !p.Amount.IsPositive() {
		return shared.NewDomainError("INVALID_PAYLOAD", "payment amount must be positive")
	}
	if p.PaymentMethod == "" {
		return shared.NewDomainError("INVALID_PAYLOAD", "payment method is required")
	}
	return nil
}

// ClaimSubmission defers submitting a claim to the medical aid provider gateway.
type ClaimSubmission struct {
	ClaimID      string `json:"claim_id"`
	ClaimNumber  string `json:"claim_number"`
	ProviderID   string `json:"provider_id"`
	MemberNumber string `json:"member_number"`
	SubmittedBy  string `json:"submitted_by,omitempty"`
}

func (p *ClaimSubmission) ActionType() ActionType { return ActionClaimSubmission }

func (p *ClaimSubmission) Validate() error {
	if p.ClaimID == "" || p.ProviderID == "" {
		return shared.NewDomainError("INVALID_PAYLOAD", "claim submission requires claim and provider ids")
	}
	return nil
}

// AwardSync defers acknowledging an award back to the provider gateway.
type AwardSync struct {
	ClaimID   string          `json:"claim_id"`
	AwardUSD  decimal.Decimal `json:"award_usd"`
	AwardZWG  decimal.Decimal `json:"award_zwg"`
	AwardedBy string          `json:"awarded_by"`
}

func (p *AwardSync) ActionType() ActionType { return ActionAwardSync }

func (p *AwardSync) Validate() error {
	if p.ClaimID == "" {
		return shared.NewDomainError("INVALID_PAYLOAD", "award sync requires a claim id")
	}
	if p.AwardUSD.IsNegative() {
		return shared.NewDomainError("INVALID_PAYLOAD", "award amount cannot be negative")
	}
	return nil
}

// EncodePayload serializes a payload for durable storage.
func EncodePayload(p Payload) ([]byte, error) {
	return json.Marshal(p)
}

// DecodePayload rebuilds the concrete payload variant from its stored form.
func DecodePayload(t ActionType, raw []byte) (Payload, error) {
	var p Payload
	switch t {
	case ActionPaymentCapture:
		p = &PaymentCapture{}
	case ActionClaimSubmission:
		p = &ClaimSubmission{}
	case ActionAwardSync:
		p = &AwardSync{}
	default:
		return nil, fmt.Errorf("unknown action type %q", t)
	}
	if err := json.Unmarshal(raw, p); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", t, err)
	}
	return p, nil
}
