package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"session-escrow-backend/internal/mw"
	"session-escrow-backend/internal/parse"
)

const maxEventPage = 500

type mintRequest struct {
	Account string `json:"account" binding:"required"`
	Amount  int64  `json:"amount"`
}

// ListEvents handles GET /api/events?after=&limit=.
func (h *Handler) ListEvents(c *gin.Context) {
	after, err := strconv.ParseUint(c.DefaultQuery("after", "0"), 10, 64)
	if err != nil {
		badRequest(c, "after must be a sequence number")
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil || limit <= 0 {
		badRequest(c, "limit must be a positive integer")
		return
	}
	if limit > maxEventPage {
		limit = maxEventPage
	}

	evs, err := h.vault.ListEvents(c.Request.Context(), after, limit)
	if err != nil {
		respondError(c, err)
		return
	}

	next := after
	if len(evs) > 0 {
		next = evs[len(evs)-1].Seq
	}
	c.JSON(http.StatusOK, gin.H{"events": evs, "next": next})
}

// GetBalance handles GET /api/balances/:account.
func (h *Handler) GetBalance(c *gin.Context) {
	account, err := parse.Identity(c.Param("account"))
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	cfg, err := h.vault.GetConfig(ctx)
	if err != nil {
		respondError(c, err)
		return
	}
	amount, err := h.vault.Balance(ctx, account)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"account": account, "token": cfg.Token, "amount": amount})
}

// Mint handles POST /api/admin/mint. The caller must be the vault admin.
func (h *Handler) Mint(c *gin.Context) {
	var req mintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	account, err := parse.Identity(req.Account)
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	if err := h.vault.Mint(ctx, mw.Caller(c), account, req.Amount); err != nil {
		respondError(c, err)
		return
	}
	amount, err := h.vault.Balance(ctx, account)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"account": account, "amount": amount})
}
