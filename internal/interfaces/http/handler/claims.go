package handler

import (
	"time"

	claimsapp "github.com/fredtinotenda3/vp-multicurrency-sub001/internal/application/claims"
	syncapp "github.com/fredtinotenda3/vp-multicurrency-sub001/internal/application/sync"
	claimsdomain "github.com/fredtinotenda3/vp-multicurrency-sub001/internal/domain/claims"
	"github.com/fredtinotenda3/vp-multicurrency-sub001/internal/domain/fx"
	syncdomain "github.com/fredtinotenda3/vp-multicurrency-sub001/internal/domain/sync"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ClaimsHandler exposes the medical aid ledger. Financial mutations also
// enqueue their remote-sync action on the offline queue so the register keeps
// working when the gateway is unreachable.
type ClaimsHandler struct {
	BaseHandler
	ledger *claimsapp.Ledger
	queue  *syncapp.Queue
	logger *zap.Logger
}

// NewClaimsHandler creates a new ClaimsHandler
func NewClaimsHandler(ledger *claimsapp.Ledger, queue *syncapp.Queue, logger *zap.Logger) *ClaimsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClaimsHandler{ledger: ledger, queue: queue, logger: logger}
}

// RegisterRoutes registers claim and payment routes.
func (h *ClaimsHandler) RegisterRoutes(rg *gin.RouterGroup) {
	claims := rg.Group("/claims")
	{
		claims.POST("", h.Create)
		claims.GET("", h.List)
		claims.GET("/:id", h.Get)
		claims.POST("/:id/award", h.RecordAward)
		claims.POST("/:id/payments", h.RecordShortfallPayment)
		claims.POST("/:id/submit", h.Submit)
		claims.POST("/:id/review", h.MarkUnderReview)
		claims.POST("/:id/clear", h.MarkCleared)
		claims.POST("/:id/reject", h.MarkRejected)
	}
	rg.POST("/payments/medical-aid", h.RecordMedicalAidPayment)
}

// CreateClaimRequest opens a claim for an order with medical aid coverage.
// Money fields travel as decimal strings; floats never touch amounts.
type CreateClaimRequest struct {
	OrderID      string `json:"order_id" binding:"required"`
	TotalUSD     string `json:"total_usd" binding:"required"`
	TotalZWG     string `json:"total_zwg"`
	ExchangeRate string `json:"exchange_rate" binding:"required"`
	RateSource   string `json:"rate_source" binding:"omitempty,oneof=reserve_bank interbank parallel manual clinic_rate"`
	PatientID    string `json:"patient_id" binding:"required"`
	PatientName  string `json:"patient_name"`
	ProviderID   string `json:"provider_id" binding:"required"`
	ProviderName string `json:"provider_name"`
	MemberNumber string `json:"member_number" binding:"required"`
	CreatedBy    string `json:"created_by"`
}

// RecordAwardRequest records the provider's award against a claim.
type RecordAwardRequest struct {
	Amount       string `json:"amount" binding:"required"`
	Currency     string `json:"currency" binding:"omitempty,oneof=USD ZWG"`
	ExchangeRate string `json:"exchange_rate" binding:"required"`
	AwardedBy    string `json:"awarded_by"`
}

// PaymentRequest records a payment in the tendered currency.
type PaymentRequest struct {
	Currency      string `json:"currency" binding:"required,oneof=USD ZWG"`
	Amount        string `json:"amount" binding:"required"`
	ExchangeRate  string `json:"exchange_rate" binding:"required"`
	PaymentMethod string `json:"payment_method" binding:"required,oneof=cash mobile_money card medical_aid"`
	Reference     string `json:"reference"`
	ReceiptNumber string `json:"receipt_number"`
	CapturedBy    string `json:"captured_by"`
}

// MedicalAidPaymentRequest settles a provider remittance against a claim
// resolved by order id or membership.
type MedicalAidPaymentRequest struct {
	OrderID      string         `json:"order_id"`
	PatientID    string         `json:"patient_id"`
	PatientName  string         `json:"patient_name"`
	ProviderID   string         `json:"provider_id"`
	ProviderName string         `json:"provider_name"`
	MemberNumber string         `json:"member_number"`
	Payment      PaymentRequest `json:"payment" binding:"required"`
}

// ClearClaimRequest closes a claim terminally.
type ClearClaimRequest struct {
	ClearedBy string `json:"cleared_by"`
}

// Create opens a claim from an order snapshot.
func (h *ClaimsHandler) Create(c *gin.Context) {
	var req CreateClaimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err)
		return
	}

	totalUSD, err := parseAmount(req.TotalUSD)
	if err != nil {
		h.DomainError(c, err)
		return
	}
	rate, err := parseAmount(req.ExchangeRate)
	if err != nil {
		h.DomainError(c, err)
		return
	}
	totalZWG := decimal.Zero
	if req.TotalZWG != "" {
		if totalZWG, err = parseAmount(req.TotalZWG); err != nil {
			h.DomainError(c, err)
			return
		}
	}

	order := claimsdomain.OrderSnapshot{
		ID:           req.OrderID,
		TotalUSD:     totalUSD,
		TotalZWG:     totalZWG,
		ExchangeRate: rate,
		RateLockedAt: time.Now(),
		RateSource:   fx.RateSource(req.RateSource),
		CreatedBy:    req.CreatedBy,
	}
	patient := claimsdomain.PatientInfo{
		PatientID:    req.PatientID,
		PatientName:  req.PatientName,
		ProviderID:   req.ProviderID,
		ProviderName: req.ProviderName,
		MemberNumber: req.MemberNumber,
	}

	claim, err := h.ledger.CreateClaimFromOrder(c.Request.Context(), order, patient)
	if err != nil {
		h.DomainError(c, err)
		return
	}
	h.Created(c, claim)
}

// List returns claims filtered by query parameters, newest first.
func (h *ClaimsHandler) List(c *gin.Context) {
	switch {
	case c.Query("patient_id") != "":
		h.Success(c, h.ledger.ClaimsByPatient(c.Query("patient_id")))
	case c.Query("provider_id") != "":
		h.Success(c, h.ledger.ClaimsByProvider(c.Query("provider_id")))
	case c.Query("order_id") != "":
		h.Success(c, h.ledger.ClaimsByOrder(c.Query("order_id")))
	case c.Query("status") != "":
		h.Success(c, h.ledger.ClaimsByStatus(claimsdomain.ClaimStatus(c.Query("status"))))
	case c.Query("award_currency") != "":
		h.Success(c, h.ledger.ClaimsByAwardCurrency(fx.Currency(c.Query("award_currency"))))
	default:
		h.Success(c, h.ledger.AllClaims())
	}
}

// Get returns one claim by id.
func (h *ClaimsHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, err)
		return
	}
	claim, err := h.ledger.GetClaim(id)
	if err != nil {
		h.DomainError(c, err)
		return
	}
	h.Success(c, claim)
}

// RecordAward records an award and queues its acknowledgement for the
// provider gateway.
func (h *ClaimsHandler) RecordAward(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, err)
		return
	}
	var req RecordAwardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err)
		return
	}

	amount, err := parseAmount(req.Amount)
	if err != nil {
		h.DomainError(c, err)
		return
	}
	rate, err := parseAmount(req.ExchangeRate)
	if err != nil {
		h.DomainError(c, err)
		return
	}
	currency := fx.Currency(req.Currency)
	if currency == "" {
		currency = fx.USD
	}

	claim, err := h.ledger.RecordAwardInCurrency(c.Request.Context(), id, amount, currency, rate, req.AwardedBy)
	if err != nil {
		h.DomainError(c, err)
		return
	}

	h.enqueue(c, &syncdomain.AwardSync{
		ClaimID:   claim.ID.String(),
		AwardUSD:  claim.Award.AmountUSD,
		AwardZWG:  claim.Award.AmountZWG,
		AwardedBy: req.AwardedBy,
	}, syncdomain.PriorityNormal)
	h.Success(c, claim)
}

// RecordShortfallPayment settles part of the patient's remaining liability.
func (h *ClaimsHandler) RecordShortfallPayment(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, err)
		return
	}
	var req PaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err)
		return
	}

	details, err := req.toDetails()
	if err != nil {
		h.DomainError(c, err)
		return
	}

	claim, err := h.ledger.RecordShortfallPayment(c.Request.Context(), id, details)
	if err != nil {
		h.DomainError(c, err)
		return
	}

	h.enqueuePaymentCapture(c, claim)
	h.Success(c, claim)
}

// RecordMedicalAidPayment settles a provider remittance, synthesizing a
// fallback claim when no match exists.
func (h *ClaimsHandler) RecordMedicalAidPayment(c *gin.Context) {
	var req MedicalAidPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err)
		return
	}

	details, err := req.Payment.toDetails()
	if err != nil {
		h.DomainError(c, err)
		return
	}
	details.PaymentMethod = claimsdomain.MethodMedicalAid

	patient := claimsdomain.PatientInfo{
		PatientID:    req.PatientID,
		PatientName:  req.PatientName,
		ProviderID:   req.ProviderID,
		ProviderName: req.ProviderName,
		MemberNumber: req.MemberNumber,
	}

	claim, err := h.ledger.RecordMedicalAidPayment(c.Request.Context(), req.OrderID, patient, details)
	if err != nil {
		h.DomainError(c, err)
		return
	}

	h.enqueuePaymentCapture(c, claim)
	h.Success(c, claim)
}

// Submit transitions a claim to submitted and queues the gateway submission.
func (h *ClaimsHandler) Submit(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, err)
		return
	}
	claim, err := h.ledger.SubmitClaim(c.Request.Context(), id)
	if err != nil {
		h.DomainError(c, err)
		return
	}

	h.enqueue(c, &syncdomain.ClaimSubmission{
		ClaimID:      claim.ID.String(),
		ClaimNumber:  claim.ClaimNumber,
		ProviderID:   claim.ProviderID,
		MemberNumber: claim.MemberNumber,
		SubmittedBy:  claim.CreatedBy,
	}, syncdomain.PriorityNormal)
	h.Success(c, claim)
}

// MarkUnderReview transitions a submitted claim to under_review.
func (h *ClaimsHandler) MarkUnderReview(c *gin.Context) {
	h.transition(c, func(id uuid.UUID) (*claimsdomain.Claim, error) {
		return h.ledger.MarkClaimUnderReview(c.Request.Context(), id)
	})
}

// MarkCleared closes a claim terminally.
func (h *ClaimsHandler) MarkCleared(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, err)
		return
	}
	var req ClearClaimRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		h.BadRequest(c, err)
		return
	}
	claim, err := h.ledger.MarkClaimCleared(c.Request.Context(), id, req.ClearedBy)
	if err != nil {
		h.DomainError(c, err)
		return
	}
	h.Success(c, claim)
}

// MarkRejected closes a claim terminally as provider-rejected.
func (h *ClaimsHandler) MarkRejected(c *gin.Context) {
	h.transition(c, func(id uuid.UUID) (*claimsdomain.Claim, error) {
		return h.ledger.MarkClaimRejected(c.Request.Context(), id)
	})
}

func (h *ClaimsHandler) transition(c *gin.Context, op func(uuid.UUID) (*claimsdomain.Claim, error)) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, err)
		return
	}
	claim, err := op(id)
	if err != nil {
		h.DomainError(c, err)
		return
	}
	h.Success(c, claim)
}

// enqueuePaymentCapture queues remote sync for the latest payment on a claim.
// Payment captures ride at high priority so money movements replay first.
func (h *ClaimsHandler) enqueuePaymentCapture(c *gin.Context, claim *claimsdomain.Claim) {
	if len(claim.DirectPayments) == 0 {
		return
	}
	p := claim.DirectPayments[len(claim.DirectPayments)-1]
	h.enqueue(c, &syncdomain.PaymentCapture{
		PaymentID:     p.ID.String(),
		OrderID:       claim.OrderID,
		ClaimID:       claim.ID.String(),
		Currency:      string(p.Currency),
		Amount:        p.Amount,
		AmountUSD:     p.AmountUSD,
		AmountZWG:     p.AmountZWG,
		PaymentMethod: string(p.PaymentMethod),
		Reference:     p.Reference,
		ReceiptNumber: p.ReceiptNumber,
		CapturedBy:    p.CapturedBy,
		PaidAt:        p.PaidAt,
	}, syncdomain.PriorityHigh)
}

// enqueue defers a sync action. A full queue never fails the financial
// operation that already took effect locally; it is logged and surfaced via
// queue status instead.
func (h *ClaimsHandler) enqueue(c *gin.Context, payload syncdomain.Payload, priority syncdomain.ActionPriority) {
	if _, err := h.queue.Enqueue(c.Request.Context(), payload, priority); err != nil {
		h.logger.Warn("failed to enqueue sync action",
			zap.String("action_type", string(payload.ActionType())),
			zap.Error(err),
		)
	}
}

func (r *PaymentRequest) toDetails() (claimsdomain.PaymentDetails, error) {
	amount, err := parseAmount(r.Amount)
	if err != nil {
		return claimsdomain.PaymentDetails{}, err
	}
	rate, err := parseAmount(r.ExchangeRate)
	if err != nil {
		return claimsdomain.PaymentDetails{}, err
	}
	return claimsdomain.PaymentDetails{
		Currency:      fx.Currency(r.Currency),
		Amount:        amount,
		ExchangeRate:  rate,
		PaymentMethod: claimsdomain.PaymentMethod(r.PaymentMethod),
		Reference:     r.Reference,
		ReceiptNumber: r.ReceiptNumber,
		CapturedBy:    r.CapturedBy,
		PaidAt:        time.Now(),
	}, nil
}
