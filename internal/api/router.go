package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"session-escrow-backend/internal/logger"
	"session-escrow-backend/internal/mw"
)

// RouterOptions configures the middleware stack.
type RouterOptions struct {
	JWTSecret      string
	RateLimit      rate.Limit
	RateBurst      int
	CacheTTL       time.Duration
	ResponseCache  *cache.Cache
	IdempotencyTTL time.Duration
	Idempotency    mw.IdempotencyStore
	Log            *logger.Logger
}

// NewRouter creates and configures a new Gin router.
func NewRouter(h *Handler, opts RouterOptions) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), mw.RequestLogging(opts.Log))

	r.GET("/healthz", h.Health)

	responseCache := opts.ResponseCache
	if responseCache == nil {
		responseCache = cache.New(opts.CacheTTL, 2*opts.CacheTTL+time.Minute)
	}
	idem := opts.Idempotency
	if idem == nil {
		idem = mw.NewMemoryIdempotencyStore(opts.IdempotencyTTL)
	}

	auth := mw.Authenticate(opts.JWTSecret)
	idempotent := mw.Idempotency(idem, opts.Log)

	// Reads of public state are cached; anonymous only.
	read := []gin.HandlerFunc{}
	if opts.CacheTTL > 0 {
		read = append(read, mw.Cache(responseCache, opts.CacheTTL))
	}
	cached := func(handler gin.HandlerFunc) []gin.HandlerFunc {
		return append(append([]gin.HandlerFunc{}, read...), handler)
	}

	// One limiter for both groups: anonymous requests share per-IP buckets,
	// authenticated ones are budgeted per caller.
	limit := mw.RateLimiter(opts.RateLimit, opts.RateBurst)

	api := r.Group("/api", mw.InvalidateOnWrite(responseCache))
	public := api.Group("", limit)
	{
		public.GET("/vault", cached(h.GetVault)...)
		if h.allowRemoteInit {
			public.POST("/vault/init", h.InitVault)
		}

		public.GET("/bookings/:id", cached(h.GetBooking)...)
		public.GET("/users/:party/bookings", cached(h.GetUserBookings)...)
		public.GET("/experts/:party/bookings", cached(h.GetExpertBookings)...)
		public.GET("/balances/:account", cached(h.GetBalance)...)
		public.GET("/events", cached(h.ListEvents)...)
		public.GET("/vapid_public_key", h.GetVAPIDPublicKey)
	}

	authed := api.Group("", auth, limit)
	{
		authed.POST("/bookings", idempotent, h.BookSession)
		authed.POST("/bookings/:id/finalize", idempotent, h.FinalizeSession)
		authed.POST("/bookings/:id/reclaim", idempotent, h.ReclaimSession)
		authed.POST("/admin/mint", idempotent, h.Mint)

		authed.GET("/subscriptions", h.GetSubscriptions)
		authed.PUT("/subscriptions", h.PutSubscription)
		authed.DELETE("/subscriptions", h.DeleteSubscription)
	}

	return r
}
