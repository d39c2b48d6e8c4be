package handler

import (
	"strconv"
	"time"

	fxapp "github.com/fredtinotenda3/vp-multicurrency-sub001/internal/application/fx"
	"github.com/fredtinotenda3/vp-multicurrency-sub001/internal/domain/fx"
	"github.com/fredtinotenda3/vp-multicurrency-sub001/internal/domain/shared"
	"github.com/gin-gonic/gin"
)

// RatesHandler exposes the exchange rate cache.
type RatesHandler struct {
	BaseHandler
	cache *fxapp.Cache
}

// NewRatesHandler creates a new RatesHandler
func NewRatesHandler(cache *fxapp.Cache) *RatesHandler {
	return &RatesHandler{cache: cache}
}

// RegisterRoutes registers rate routes.
func (h *RatesHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rates := rg.Group("/rates")
	{
		rates.GET("/current", h.Current)
		rates.POST("/manual", h.SetManual)
		rates.GET("/history", h.History)
		rates.GET("/stats", h.Stats)
	}
}

// SetManualRateRequest records an operator override rate.
type SetManualRateRequest struct {
	Rate         string `json:"rate" binding:"required"`
	Source       string `json:"source" binding:"omitempty,oneof=manual clinic_rate"`
	Currency     string `json:"currency" binding:"omitempty,oneof=USD ZWG"`
	AuthorizedBy string `json:"authorized_by" binding:"required"`
	ValidHours   int    `json:"valid_hours" binding:"omitempty,min=1,max=168"`
	Reason       string `json:"reason"`
}

// Current returns the working rate for a source and currency. force=true
// bypasses the cache and fetches fresh.
func (h *RatesHandler) Current(c *gin.Context) {
	force, _ := strconv.ParseBool(c.Query("force"))

	rate, err := h.cache.GetRate(c.Request.Context(), fxapp.GetRateOptions{
		Source:       fx.RateSource(c.Query("source")),
		Currency:     fx.Currency(c.Query("currency")),
		ForceRefresh: force,
	})
	if err != nil {
		h.DomainError(c, err)
		return
	}
	h.Success(c, rate)
}

// SetManual records an authoritative operator-entered rate.
func (h *RatesHandler) SetManual(c *gin.Context) {
	var req SetManualRateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err)
		return
	}

	value, err := parseAmount(req.Rate)
	if err != nil {
		h.DomainError(c, err)
		return
	}

	opts := fxapp.ManualRateOptions{
		Source:       fx.RateSource(req.Source),
		Currency:     fx.Currency(req.Currency),
		AuthorizedBy: req.AuthorizedBy,
		Reason:       req.Reason,
	}
	if req.ValidHours > 0 {
		opts.ValidFor = time.Duration(req.ValidHours) * time.Hour
	}

	rate, err := h.cache.SetManualRate(c.Request.Context(), value, opts)
	if err != nil {
		h.DomainError(c, err)
		return
	}
	h.Created(c, rate)
}

// History returns recorded rate history for trend views, newest first.
func (h *RatesHandler) History(c *gin.Context) {
	q := fx.HistoryQuery{
		Source:   fx.RateSource(c.Query("source")),
		Currency: fx.Currency(c.Query("currency")),
	}
	if raw := c.Query("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			h.BadRequest(c, err)
			return
		}
		q.From = t
	}
	if raw := c.Query("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			h.BadRequest(c, err)
			return
		}
		q.To = t
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			h.DomainError(c, shared.NewDomainError("INVALID_INPUT", "limit must be a positive integer"))
			return
		}
		q.Limit = limit
	}

	entries, err := h.cache.HistoricalRates(c.Request.Context(), q)
	if err != nil {
		h.DomainError(c, err)
		return
	}
	h.Success(c, entries)
}

// Stats returns cache hit/miss counters for the status screen.
func (h *RatesHandler) Stats(c *gin.Context) {
	h.Success(c, h.cache.Stats())
}
