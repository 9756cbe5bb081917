package api

import (
	"github.com/SherClockHolmes/webpush-go"

	"session-escrow-backend/internal/escrow"
	"session-escrow-backend/internal/store"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	vault           *escrow.Vault
	store           store.Store
	webpush         *webpush.Options
	allowRemoteInit bool
}

// NewHandler creates a new API handler.
func NewHandler(v *escrow.Vault, s store.Store, webpushOptions *webpush.Options, allowRemoteInit bool) *Handler {
	return &Handler{
		vault:           v,
		store:           s,
		webpush:         webpushOptions,
		allowRemoteInit: allowRemoteInit,
	}
}
