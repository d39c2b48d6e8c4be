// Package handler exposes the POS core over HTTP for the register UI.
package handler

import (
	"errors"
	"net/http"

	"github.com/fredtinotenda3/vp-multicurrency-sub001/internal/domain/shared"
	"github.com/fredtinotenda3/vp-multicurrency-sub001/internal/interfaces/http/dto"
	"github.com/fredtinotenda3/vp-multicurrency-sub001/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// BaseHandler provides common handler utilities
type BaseHandler struct{}

// Success sends a success response
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// Created sends a 201 created response
func (h *BaseHandler) Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, dto.NewSuccessResponse(data))
}

// NoContent sends a 204 no content response
func (h *BaseHandler) NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// BadRequest sends a 400 response, formatting binding errors field-by-field.
func (h *BaseHandler) BadRequest(c *gin.Context, err error) {
	middleware.HandleValidationError(c, err)
}

// DomainError maps a service error to its HTTP status. Non-domain errors
// surface as opaque 500s.
func (h *BaseHandler) DomainError(c *gin.Context, err error) {
	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		c.JSON(dto.GetHTTPStatus(domainErr.Code), dto.NewErrorResponse(domainErr.Code, domainErr.Message))
		return
	}
	c.JSON(http.StatusInternalServerError, dto.NewErrorResponse(dto.ErrCodeInternal, "internal server error"))
}

// parseAmount parses a positive decimal money amount from its string form.
func parseAmount(raw string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, shared.NewDomainError("INVALID_AMOUNT", "amount must be a decimal number")
	}
	if !amount.IsPositive() {
		return decimal.Zero, shared.NewDomainError("INVALID_AMOUNT", "amount must be positive")
	}
	return amount, nil
}
