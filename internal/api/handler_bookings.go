package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"session-escrow-backend/internal/mw"
	"session-escrow-backend/internal/parse"
)

type bookSessionRequest struct {
	// User defaults to the caller.
	User          string `json:"user"`
	Expert        string `json:"expert" binding:"required"`
	RatePerSecond int64  `json:"rate_per_second"`
	MaxDuration   uint64 `json:"max_duration"`
}

type finalizeRequest struct {
	ActualDuration *uint64 `json:"actual_duration" binding:"required"`
}

type bookingListResponse struct {
	Party      string   `json:"party"`
	BookingIDs []uint64 `json:"booking_ids"`
}

// BookSession handles POST /api/bookings.
func (h *Handler) BookSession(c *gin.Context) {
	var req bookSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	caller := mw.Caller(c)
	user := caller
	if req.User != "" {
		var err error
		if user, err = parse.Identity(req.User); err != nil {
			badRequest(c, err.Error())
			return
		}
	}
	expert, err := parse.Identity(req.Expert)
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	id, err := h.vault.BookSession(c.Request.Context(), caller, user, expert, req.RatePerSecond, req.MaxDuration)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"booking_id": id})
}

// GetBooking handles GET /api/bookings/:id.
func (h *Handler) GetBooking(c *gin.Context) {
	id, err := parse.BookingID(c.Param("id"))
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	b, err := h.vault.GetBooking(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

// FinalizeSession handles POST /api/bookings/:id/finalize. The caller must be
// the oracle.
func (h *Handler) FinalizeSession(c *gin.Context) {
	id, err := parse.BookingID(c.Param("id"))
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	var req finalizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	if err := h.vault.FinalizeSession(ctx, mw.Caller(c), id, *req.ActualDuration); err != nil {
		respondError(c, err)
		return
	}
	h.respondBooking(c, id)
}

// ReclaimSession handles POST /api/bookings/:id/reclaim. The caller reclaims
// as the booking's user.
func (h *Handler) ReclaimSession(c *gin.Context) {
	id, err := parse.BookingID(c.Param("id"))
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	caller := mw.Caller(c)
	if err := h.vault.ReclaimStaleSession(c.Request.Context(), caller, caller, id); err != nil {
		respondError(c, err)
		return
	}
	h.respondBooking(c, id)
}

// GetUserBookings handles GET /api/users/:party/bookings.
func (h *Handler) GetUserBookings(c *gin.Context) {
	party, err := parse.Identity(c.Param("party"))
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	ids, err := h.vault.GetUserBookings(c.Request.Context(), party)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, bookingListResponse{Party: party, BookingIDs: ids})
}

// GetExpertBookings handles GET /api/experts/:party/bookings.
func (h *Handler) GetExpertBookings(c *gin.Context) {
	party, err := parse.Identity(c.Param("party"))
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	ids, err := h.vault.GetExpertBookings(c.Request.Context(), party)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, bookingListResponse{Party: party, BookingIDs: ids})
}

func (h *Handler) respondBooking(c *gin.Context, id uint64) {
	b, err := h.vault.GetBooking(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}
