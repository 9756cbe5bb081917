package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"session-escrow-backend/internal/escrow"
	"session-escrow-backend/internal/store"
	"session-escrow-backend/internal/token"
)

// Error codes returned in the "code" field of error responses.
const (
	CodeBadRequest          = "BAD_REQUEST"
	CodeNotFound            = "NOT_FOUND"
	CodeBookingNotFound     = "BOOKING_NOT_FOUND"
	CodeBookingNotPending   = "BOOKING_NOT_PENDING"
	CodeReclaimTooEarly     = "RECLAIM_TOO_EARLY"
	CodeAlreadyInitialized  = "ALREADY_INITIALIZED"
	CodeNotInitialized      = "NOT_INITIALIZED"
	CodeNotAuthorized       = "NOT_AUTHORIZED"
	CodeInvalidAmount       = "INVALID_AMOUNT"
	CodeInsufficientBalance = "INSUFFICIENT_BALANCE"
	CodeInternal            = "INTERNAL"
)

// classify maps an error to its HTTP status and code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, escrow.ErrBookingNotFound):
		return http.StatusNotFound, CodeBookingNotFound
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, escrow.ErrBookingNotPending):
		return http.StatusConflict, CodeBookingNotPending
	case errors.Is(err, escrow.ErrReclaimTooEarly):
		return http.StatusConflict, CodeReclaimTooEarly
	case errors.Is(err, escrow.ErrAlreadyInitialized):
		return http.StatusConflict, CodeAlreadyInitialized
	case errors.Is(err, escrow.ErrNotAuthorized):
		return http.StatusForbidden, CodeNotAuthorized
	case errors.Is(err, escrow.ErrInvalidAmount), errors.Is(err, token.ErrInvalidAmount):
		return http.StatusUnprocessableEntity, CodeInvalidAmount
	case errors.Is(err, token.ErrInsufficientBalance):
		return http.StatusPaymentRequired, CodeInsufficientBalance
	case errors.Is(err, escrow.ErrNotInitialized):
		return http.StatusServiceUnavailable, CodeNotInitialized
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

// respondError writes err as a JSON error. Internal errors are attached to the
// context for the request log and hidden from the client.
func respondError(c *gin.Context, err error) {
	status, code := classify(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
		msg = "internal error"
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg, "code": code})
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": msg, "code": CodeBadRequest})
}
