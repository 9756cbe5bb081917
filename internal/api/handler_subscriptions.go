package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"session-escrow-backend/internal/model"
	"session-escrow-backend/internal/mw"
)

type putSubscriptionRequest struct {
	Endpoint string `json:"endpoint" binding:"required,url"`
	P256DH   string `json:"p256dh" binding:"required"`
	Auth     string `json:"auth" binding:"required"`
}

type deleteSubscriptionRequest struct {
	Endpoint string `json:"endpoint" binding:"required"`
}

type subscriptionResponse struct {
	Endpoint  string    `json:"endpoint"`
	CreatedAt time.Time `json:"created_at"`
}

// PutSubscription registers a push endpoint for the caller. Re-registering an
// endpoint moves it to the new caller.
func (h *Handler) PutSubscription(c *gin.Context) {
	var req putSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	sub := model.PushSubscription{
		Endpoint: req.Endpoint,
		Party:    mw.Caller(c),
		P256DH:   req.P256DH,
		Auth:     req.Auth,
	}
	if err := h.store.SaveSubscription(c.Request.Context(), &sub); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusCreated)
}

// DeleteSubscription removes one of the caller's push endpoints.
func (h *Handler) DeleteSubscription(c *gin.Context) {
	var req deleteSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	if err := h.store.DeleteSubscription(c.Request.Context(), mw.Caller(c), req.Endpoint); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// rawQueryParam reads a query value without URL decoding. Push endpoints are
// stored exactly as the browser reported them.
func rawQueryParam(rawQuery, key string) (string, bool) {
	for _, kv := range strings.Split(rawQuery, "&") {
		if strings.HasPrefix(kv, key+"=") {
			return kv[len(key)+1:], true
		}
	}
	return "", false
}

// GetSubscriptions lists the caller's push endpoints, or looks up one when
// ?endpoint= is given.
func (h *Handler) GetSubscriptions(c *gin.Context) {
	ctx := c.Request.Context()
	caller := mw.Caller(c)

	if raw, ok := rawQueryParam(c.Request.URL.RawQuery, "endpoint"); ok {
		if raw == "" {
			badRequest(c, "endpoint must not be empty")
			return
		}
		sub, err := h.store.GetSubscription(ctx, caller, raw)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, subscriptionResponse{Endpoint: sub.Endpoint, CreatedAt: sub.CreatedAt})
		return
	}

	subs, err := h.store.ListSubscriptions(ctx, caller)
	if err != nil {
		respondError(c, err)
		return
	}
	out := make([]subscriptionResponse, 0, len(subs))
	for _, s := range subs {
		out = append(out, subscriptionResponse{Endpoint: s.Endpoint, CreatedAt: s.CreatedAt})
	}
	c.JSON(http.StatusOK, gin.H{"subscriptions": out})
}

// GetVAPIDPublicKey returns the key browsers subscribe with. Parties register
// the resulting endpoint with PUT /api/subscriptions to hear about their
// bookings.
func (h *Handler) GetVAPIDPublicKey(c *gin.Context) {
	if h.webpush == nil || h.webpush.VAPIDPublicKey == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "push notifications are disabled", "code": "PUSH_DISABLED"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"public_key": h.webpush.VAPIDPublicKey})
}
