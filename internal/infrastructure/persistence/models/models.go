// Package models contains the GORM persistence models for the register
// database and their converters to and from domain types. Monetary amounts
// and rates are stored as decimal strings; they are never persisted as floats.
package models

import (
	"encoding/json"
	"time"

	"github.com/fredtinotenda3/vp-multicurrency-sub001/internal/domain/claims"
	"github.com/fredtinotenda3/vp-multicurrency-sub001/internal/domain/fx"
	"github.com/fredtinotenda3/vp-multicurrency-sub001/internal/domain/sync"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CachedRateModel persists one cache entry per (source, currency) pair.
type CachedRateModel struct {
	ID           string          `gorm:"primaryKey"`
	Source       string          `gorm:"index;not null"`
	Currency     string          `gorm:"index;not null"`
	Rate         decimal.Decimal `gorm:"type:TEXT;not null"`
	Confidence   int             `gorm:"not null"`
	Timestamp    time.Time       `gorm:"index;not null"`
	ValidUntil   time.Time       `gorm:"index;not null"`
	Metadata     []byte          `gorm:"type:BLOB"`
	AccessCount  int64           `gorm:"not null;default:0"`
	LastAccessed time.Time       `gorm:"index"`
	TTLSeconds   int64           `gorm:"not null"`
}

// TableName sets the table name for cached rates
func (CachedRateModel) TableName() string { return "rates" }

// CachedRateModelFromDomain converts a domain cached rate to its model.
func CachedRateModelFromDomain(c *fx.CachedRate) *CachedRateModel {
	var meta []byte
	if c.Rate.Metadata != nil {
		meta, _ = json.Marshal(c.Rate.Metadata)
	}
	return &CachedRateModel{
		ID:           c.ID,
		Source:       string(c.Rate.Source),
		Currency:     string(c.Rate.Currency),
		Rate:         c.Rate.Rate,
		Confidence:   c.Rate.Confidence,
		Timestamp:    c.Rate.Timestamp,
		ValidUntil:   c.Rate.ValidUntil,
		Metadata:     meta,
		AccessCount:  c.AccessCount,
		LastAccessed: c.LastAccessed,
		TTLSeconds:   int64(c.TTL.Seconds()),
	}
}

// ToDomain converts the model back to a domain cached rate.
func (m *CachedRateModel) ToDomain() *fx.CachedRate {
	rate := &fx.ExchangeRate{
		Rate:       m.Rate,
		Currency:   fx.Currency(m.Currency),
		Source:     fx.RateSource(m.Source),
		Timestamp:  m.Timestamp,
		ValidUntil: m.ValidUntil,
		Confidence: m.Confidence,
	}
	if len(m.Metadata) > 0 {
		var meta fx.RateMetadata
		if err := json.Unmarshal(m.Metadata, &meta); err == nil {
			rate.Metadata = &meta
		}
	}
	return &fx.CachedRate{
		ID:           m.ID,
		Rate:         rate,
		AccessCount:  m.AccessCount,
		LastAccessed: m.LastAccessed,
		TTL:          time.Duration(m.TTLSeconds) * time.Second,
		Stale:        rate.IsStale(time.Now()),
	}
}

// RateHistoryModel is the append-only audit trail of rates that were in force.
type RateHistoryModel struct {
	ID             string          `gorm:"primaryKey"`
	Source         string          `gorm:"index;not null"`
	Currency       string          `gorm:"index;not null"`
	Rate           decimal.Decimal `gorm:"type:TEXT;not null"`
	Confidence     int             `gorm:"not null"`
	RecordedAt     time.Time       `gorm:"index;not null"`
	ValidUntil     time.Time       `gorm:"not null"`
	ManualOverride bool            `gorm:"not null;default:false"`
	AuthorizedBy   string
	Reason         string
}

// TableName sets the table name for rate history
func (RateHistoryModel) TableName() string { return "rate_history" }

// RateHistoryModelFromDomain converts a history entry to its model.
func RateHistoryModelFromDomain(h *fx.HistoryEntry) *RateHistoryModel {
	return &RateHistoryModel{
		ID:             h.ID,
		Source:         string(h.Source),
		Currency:       string(h.Currency),
		Rate:           h.Rate,
		Confidence:     h.Confidence,
		RecordedAt:     h.RecordedAt,
		ValidUntil:     h.ValidUntil,
		ManualOverride: h.ManualOverride,
		AuthorizedBy:   h.AuthorizedBy,
		Reason:         h.Reason,
	}
}

// ToDomain converts the model back to a history entry.
func (m *RateHistoryModel) ToDomain() fx.HistoryEntry {
	return fx.HistoryEntry{
		ID:             m.ID,
		Source:         fx.RateSource(m.Source),
		Currency:       fx.Currency(m.Currency),
		Rate:           m.Rate,
		Confidence:     m.Confidence,
		RecordedAt:     m.RecordedAt,
		ValidUntil:     m.ValidUntil,
		ManualOverride: m.ManualOverride,
		AuthorizedBy:   m.AuthorizedBy,
		Reason:         m.Reason,
	}
}

// ActionModel persists one queued offline action.
type ActionModel struct {
	ID            string    `gorm:"primaryKey"`
	Type          string    `gorm:"index;not null"`
	Payload       []byte    `gorm:"type:BLOB;not null"`
	Status        string    `gorm:"index;not null"`
	Priority      string    `gorm:"index;not null"`
	Timestamp     time.Time `gorm:"index;not null"`
	RetryCount    int       `gorm:"not null;default:0"`
	MaxRetries    int       `gorm:"not null"`
	NextAttemptAt *time.Time
	LastError     string
	UpdatedAt     time.Time
}

// TableName sets the table name for queued actions
func (ActionModel) TableName() string { return "queue" }

// ActionModelFromDomain converts a queued action to its model.
func ActionModelFromDomain(a *sync.Action) (*ActionModel, error) {
	payload, err := sync.EncodePayload(a.Payload)
	if err != nil {
		return nil, err
	}
	return &ActionModel{
		ID:            a.ID.String(),
		Type:          string(a.Type),
		Payload:       payload,
		Status:        string(a.Status),
		Priority:      string(a.Priority),
		Timestamp:     a.Timestamp,
		RetryCount:    a.RetryCount,
		MaxRetries:    a.MaxRetries,
		NextAttemptAt: a.NextAttemptAt,
		LastError:     a.LastError,
		UpdatedAt:     a.UpdatedAt,
	}, nil
}

// ToDomain converts the model back to a queued action.
func (m *ActionModel) ToDomain() (*sync.Action, error) {
	id, err := uuid.Parse(m.ID)
	if err != nil {
		return nil, err
	}
	payload, err := sync.DecodePayload(sync.ActionType(m.Type), m.Payload)
	if err != nil {
		return nil, err
	}
	return &sync.Action{
		ID:            id,
		Type:          sync.ActionType(m.Type),
		Payload:       payload,
		Status:        sync.ActionStatus(m.Status),
		Priority:      sync.ActionPriority(m.Priority),
		Timestamp:     m.Timestamp,
		RetryCount:    m.RetryCount,
		MaxRetries:    m.MaxRetries,
		NextAttemptAt: m.NextAttemptAt,
		LastError:     m.LastError,
		UpdatedAt:     m.UpdatedAt,
	}, nil
}

// ClaimModel persists one medical aid claim.
type ClaimModel struct {
	ID           string `gorm:"primaryKey"`
	ClaimNumber  string `gorm:"uniqueIndex;not null"`
	PatientID    string `gorm:"index;not null"`
	PatientName  string
	ProviderID   string `gorm:"index;not null"`
	ProviderName string
	MemberNumber string `gorm:"index"`
	OrderID      string `gorm:"index;not null"`
	Status       string `gorm:"index;not null"`

	OrderTotalUSD decimal.Decimal `gorm:"type:TEXT;not null"`
	OrderTotalZWG decimal.Decimal `gorm:"type:TEXT;not null"`
	ExchangeRate  decimal.Decimal `gorm:"type:TEXT;not null"`
	RateLockedAt  time.Time
	RateSource    string

	AwardCurrency string          `gorm:"index"`
	AwardAmount   decimal.Decimal `gorm:"type:TEXT"`
	AwardUSD      decimal.Decimal `gorm:"type:TEXT"`
	AwardZWG      decimal.Decimal `gorm:"type:TEXT"`
	AwardedBy     string
	AwardedAt     *time.Time

	ShortfallCurrency string
	ShortfallUSD      decimal.Decimal `gorm:"type:TEXT"`
	ShortfallZWG      decimal.Decimal `gorm:"type:TEXT"`

	Synthesized bool `gorm:"not null;default:false"`
	CreatedBy   string
	ClearedBy   string
	CreatedAt   time.Time `gorm:"index"`
	UpdatedAt   time.Time
}

// TableName sets the table name for claims
func (ClaimModel) TableName() string { return "claims" }

// PaymentModel persists one direct payment line, keyed to its owning claim.
type PaymentModel struct {
	ID            string          `gorm:"primaryKey"`
	ClaimID       string          `gorm:"index;not null"`
	Currency      string          `gorm:"index;not null"`
	Amount        decimal.Decimal `gorm:"type:TEXT;not null"`
	AmountUSD     decimal.Decimal `gorm:"type:TEXT;not null"`
	AmountZWG     decimal.Decimal `gorm:"type:TEXT;not null"`
	PaymentMethod string          `gorm:"not null"`
	Reference     string
	ReceiptNumber string
	PaidAt        time.Time `gorm:"index;not null"`
	CapturedBy    string
	Synced        bool `gorm:"not null;default:false"`
}

// TableName sets the table name for payments
func (PaymentModel) TableName() string { return "payments" }

// ClaimModelFromDomain converts a claim aggregate to its models. Payments are
// returned separately since they live in their own table.
func ClaimModelFromDomain(c *claims.Claim) (*ClaimModel, []*PaymentModel) {
	model := &ClaimModel{
		ID:                c.ID.String(),
		ClaimNumber:       c.ClaimNumber,
		PatientID:         c.PatientID,
		PatientName:       c.PatientName,
		ProviderID:        c.ProviderID,
		ProviderName:      c.ProviderName,
		MemberNumber:      c.MemberNumber,
		OrderID:           c.OrderID,
		Status:            string(c.Status),
		OrderTotalUSD:     c.OrderTotalUSD,
		OrderTotalZWG:     c.OrderTotalZWG,
		ExchangeRate:      c.ExchangeRate,
		RateLockedAt:      c.RateLockedAt,
		RateSource:        string(c.RateSource),
		AwardCurrency:     string(c.Award.Currency),
		AwardAmount:       c.Award.Amount,
		AwardUSD:          c.Award.AmountUSD,
		AwardZWG:          c.Award.AmountZWG,
		AwardedBy:         c.Award.AwardedBy,
		AwardedAt:         c.Award.AwardedAt,
		ShortfallCurrency: string(c.Shortfall.Currency),
		ShortfallUSD:      c.Shortfall.AmountUSD,
		ShortfallZWG:      c.Shortfall.AmountZWG,
		Synthesized:       c.Synthesized,
		CreatedBy:         c.CreatedBy,
		ClearedBy:         c.ClearedBy,
		CreatedAt:         c.CreatedAt,
		UpdatedAt:         c.UpdatedAt,
	}

	payments := make([]*PaymentModel, 0, len(c.DirectPayments))
	for _, p := range c.DirectPayments {
		payments = append(payments, &PaymentModel{
			ID:            p.ID.String(),
			ClaimID:       c.ID.String(),
			Currency:      string(p.Currency),
			Amount:        p.Amount,
			AmountUSD:     p.AmountUSD,
			AmountZWG:     p.AmountZWG,
			PaymentMethod: string(p.PaymentMethod),
			Reference:     p.Reference,
			ReceiptNumber: p.ReceiptNumber,
			PaidAt:        p.PaidAt,
			CapturedBy:    p.CapturedBy,
			Synced:        p.Synced,
		})
	}
	return model, payments
}

// ToDomain converts the model and its payment lines back to a claim aggregate.
func (m *ClaimModel) ToDomain(payments []*PaymentModel) (*claims.Claim, error) {
	id, err := uuid.Parse(m.ID)
	if err != nil {
		return nil, err
	}

	claim := &claims.Claim{
		ID:            id,
		ClaimNumber:   m.ClaimNumber,
		PatientID:     m.PatientID,
		PatientName:   m.PatientName,
		ProviderID:    m.ProviderID,
		ProviderName:  m.ProviderName,
		MemberNumber:  m.MemberNumber,
		OrderID:       m.OrderID,
		Status:        claims.ClaimStatus(m.Status),
		OrderTotalUSD: m.OrderTotalUSD,
		OrderTotalZWG: m.OrderTotalZWG,
		ExchangeRate:  m.ExchangeRate,
		RateLockedAt:  m.RateLockedAt,
		RateSource:    fx.RateSource(m.RateSource),
		Award: claims.Award{
			Currency:  fx.Currency(m.AwardCurrency),
			Amount:    m.AwardAmount,
			AmountUSD: m.AwardUSD,
			AmountZWG: m.AwardZWG,
			AwardedBy: m.AwardedBy,
			AwardedAt: m.AwardedAt,
		},
		Shortfall: claims.Shortfall{
			Currency:  fx.Currency(m.ShortfallCurrency),
			AmountUSD: m.ShortfallUSD,
			AmountZWG: m.ShortfallZWG,
		},
		Synthesized: m.Synthesized,
		CreatedBy:   m.CreatedBy,
		ClearedBy:   m.ClearedBy,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}

	claim.DirectPayments = make([]claims.DirectPayment, 0, len(payments))
	for _, p := range payments {
		pid, err := uuid.Parse(p.ID)
		if err != nil {
			return nil, err
		}
		claim.DirectPayments = append(claim.DirectPayments, claims.DirectPayment{
			ID:            pid,
			Currency:      fx.Currency(p.Currency),
			Amount:        p.Amount,
			AmountUSD:     p.AmountUSD,
			AmountZWG:     p.AmountZWG,
			PaymentMethod: claims.PaymentMethod(p.PaymentMethod),
			Reference:     p.Reference,
			ReceiptNumber: p.ReceiptNumber,
			PaidAt:        p.PaidAt,
			CapturedBy:    p.CapturedBy,
			Synced:        p.Synced,
		})
	}
	return claim, nil
}
