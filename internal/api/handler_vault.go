package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"session-escrow-backend/internal/parse"
)

type initVaultRequest struct {
	Admin  string `json:"admin" binding:"required"`
	Token  string `json:"token" binding:"required"`
	Oracle string `json:"oracle" binding:"required"`
}

type vaultResponse struct {
	Admin   string `json:"admin"`
	Token   string `json:"token"`
	Oracle  string `json:"oracle"`
	Custody string `json:"custody"`
}

// Health reports liveness and database reachability.
func (h *Handler) Health(c *gin.Context) {
	if err := h.store.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// InitVault handles POST /api/vault/init. First caller wins, so the route is
// only mounted when remote initialization is enabled.
func (h *Handler) InitVault(c *gin.Context) {
	var req initVaultRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	ids := make([]string, 0, 3)
	for _, raw := range []string{req.Admin, req.Token, req.Oracle} {
		id, err := parse.Identity(raw)
		if err != nil {
			badRequest(c, err.Error())
			return
		}
		ids = append(ids, id)
	}

	if err := h.vault.Initialize(c.Request.Context(), ids[0], ids[1], ids[2]); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, vaultResponse{Admin: ids[0], Token: ids[1], Oracle: ids[2], Custody: h.vault.Custody()})
}

// GetVault handles GET /api/vault.
func (h *Handler) GetVault(c *gin.Context) {
	cfg, err := h.vault.GetConfig(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, vaultResponse{Admin: cfg.Admin, Token: cfg.Token, Oracle: cfg.Oracle, Custody: h.vault.Custody()})
}
