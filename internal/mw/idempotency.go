package mw

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"

	"session-escrow-backend/internal/logger"
)

const (
	HeaderIdempotencyKey = "Idempotency-Key"
	HeaderReplayed       = "Idempotent-Replayed"
)

// CachedResponse is a stored response replayed for a repeated key.
type CachedResponse struct {
	StatusCode int         `json:"status_code"`
	Headers    http.Header `json:"headers"`
	Body       []byte      `json:"body"`
}

// IdempotencyStore keeps responses by idempotency key.
type IdempotencyStore interface {
	Get(ctx context.Context, key string) (*CachedResponse, bool, error)
	Set(ctx context.Context, key string, resp *CachedResponse) error
}

// MemoryIdempotencyStore keeps responses in process memory.
type MemoryIdempotencyStore struct {
	cache *cache.Cache
}

func NewMemoryIdempotencyStore(ttl time.Duration) *MemoryIdempotencyStore {
	return &MemoryIdempotencyStore{cache: cache.New(ttl, time.Hour)}
}

func (s *MemoryIdempotencyStore) Get(_ context.Context, key string) (*CachedResponse, bool, error) {
	v, found := s.cache.Get(key)
	if !found {
		return nil, false, nil
	}
	return v.(*CachedResponse), true, nil
}

func (s *MemoryIdempotencyStore) Set(_ context.Context, key string, resp *CachedResponse) error {
	s.cache.SetDefault(key, resp)
	return nil
}

// RedisIdempotencyStore shares responses between replicas through Redis.
type RedisIdempotencyStore struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

func NewRedisIdempotencyStore(client *redis.Client, ttl time.Duration) *RedisIdempotencyStore {
	return &RedisIdempotencyStore{client: client, ttl: ttl, prefix: "idempotency:"}
}

func (s *RedisIdempotencyStore) Get(ctx context.Context, key string) (*CachedResponse, bool, error) {
	raw, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}

	var resp CachedResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, false, fmt.Errorf("decode cached response: %w", err)
	}
	return &resp, true, nil
}

func (s *RedisIdempotencyStore) Set(ctx context.Context, key string, resp *CachedResponse) error {
	raw, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("encode cached response: %w", err)
	}
	if err := s.client.Set(ctx, s.prefix+key, raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Idempotency replays the stored response when a caller repeats a request
// with the same Idempotency-Key. Keys are scoped by caller and path. Only 2xx
// responses are stored; a failing store lets the request through.
func Idempotency(store IdempotencyStore, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" {
			c.Next()
			return
		}
		scoped := Caller(c) + "|" + c.Request.Method + "|" + c.Request.URL.Path + "|" + key
		ctx := c.Request.Context()

		cached, found, err := store.Get(ctx, scoped)
		if err != nil {
			log.Warn("idempotency lookup failed", "error", err)
		}
		if found {
			for k, v := range cached.Headers {
				c.Writer.Header()[k] = v
			}
			c.Writer.Header().Set(HeaderReplayed, "true")
			c.Writer.WriteHeader(cached.StatusCode)
			c.Writer.Write(cached.Body)
			c.Abort()
			return
		}

		capture := &bodyCacheWriter{body: bytes.NewBuffer(nil), ResponseWriter: c.Writer}
		c.Writer = capture

		c.Next()

		if status := capture.Status(); status >= 200 && status < 300 {
			resp := &CachedResponse{
				StatusCode: status,
				Headers:    capture.Header().Clone(),
				Body:       capture.body.Bytes(),
			}
			if err := store.Set(ctx, scoped, resp); err != nil {
				log.Warn("idempotency store failed", "error", err)
			}
		}
	}
}
