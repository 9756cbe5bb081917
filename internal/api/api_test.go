package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"session-escrow-backend/config"
	"session-escrow-backend/internal/db"
	"session-escrow-backend/internal/escrow"
	"session-escrow-backend/internal/logger"
	"session-escrow-backend/internal/mw"
	"session-escrow-backend/internal/store"
	"session-escrow-backend/internal/token"
)

const testSecret = "test-secret-0123456789"

var t0 = time.Unix(1_700_000_000, 0).UTC()

func init() {
	gin.SetMode(gin.TestMode)
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testServer struct {
	router *gin.Engine
	vault  *escrow.Vault
	ledger *token.Ledger
	clock  *testClock
}

func newTestServer(t *testing.T, allowRemoteInit bool, cacheTTL time.Duration) *testServer {
	t.Helper()
	gormDB, err := db.Init(&config.DatabaseConfig{
		Driver:   "sqlite",
		DSN:      "file:" + uuid.NewString() + "?mode=memory&cache=shared",
		LogLevel: "silent",
	}, logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() {
		sqlDB, _ := gormDB.DB()
		sqlDB.Close()
	})

	s := store.NewGormStore(gormDB)
	ledger := token.NewLedger(gormDB)
	clock := &testClock{now: t0}
	vault := escrow.NewVault(s, ledger, nil, clock, logger.Discard(), escrow.Options{})

	h := NewHandler(vault, s, nil, allowRemoteInit)
	router := NewRouter(h, RouterOptions{
		JWTSecret: testSecret,
		RateLimit: rate.Inf,
		RateBurst: 1,
		CacheTTL:  cacheTTL,
		Log:       logger.Discard(),
	})
	return &testServer{router: router, vault: vault, ledger: ledger, clock: clock}
}

// newInitializedServer returns a server whose vault is set up with admin,
// usdc and oracle, and where alice holds 10000 usdc.
func newInitializedServer(t *testing.T) *testServer {
	t.Helper()
	ts := newTestServer(t, false, 0)
	ctx := context.Background()
	require.NoError(t, ts.vault.Initialize(ctx, "admin", "usdc", "oracle"))
	require.NoError(t, ts.ledger.Mint(ctx, "usdc", "alice", 10_000))
	return ts
}

func bearer(t *testing.T, subject string) string {
	t.Helper()
	tok, err := mw.IssueToken(testSecret, subject, time.Hour)
	require.NoError(t, err)
	return tok
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func assertError(t *testing.T, w *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	assert.Equal(t, status, w.Code)
	assert.Equal(t, code, decode(t, w)["code"])
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, false, 0)
	w := ts.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestVault_RemoteInit(t *testing.T) {
	ts := newTestServer(t, true, 0)

	w := ts.do(t, http.MethodGet, "/api/vault", "", nil)
	assertError(t, w, http.StatusServiceUnavailable, CodeNotInitialized)

	w = ts.do(t, http.MethodPost, "/api/vault/init", "", gin.H{"admin": "admin", "token": "usdc"})
	assertError(t, w, http.StatusBadRequest, CodeBadRequest)

	w = ts.do(t, http.MethodPost, "/api/vault/init", "", gin.H{"admin": "admin", "token": "usdc", "oracle": "bad identity"})
	assertError(t, w, http.StatusBadRequest, CodeBadRequest)

	w = ts.do(t, http.MethodPost, "/api/vault/init", "", gin.H{"admin": "admin", "token": "usdc", "oracle": "oracle"})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.JSONEq(t, `{"admin":"admin","token":"usdc","oracle":"oracle","custody":"vault"}`, w.Body.String())

	w = ts.do(t, http.MethodPost, "/api/vault/init", "", gin.H{"admin": "mallory", "token": "fake", "oracle": "mallory"})
	assertError(t, w, http.StatusConflict, CodeAlreadyInitialized)

	w = ts.do(t, http.MethodGet, "/api/vault", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "admin", decode(t, w)["admin"])
}

func TestVault_RemoteInitDisabled(t *testing.T) {
	ts := newTestServer(t, false, 0)
	w := ts.do(t, http.MethodPost, "/api/vault/init", "", gin.H{"admin": "admin", "token": "usdc", "oracle": "oracle"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestBookSession(t *testing.T) {
	ts := newInitializedServer(t)
	alice := bearer(t, "alice")

	w := ts.do(t, http.MethodPost, "/api/bookings", "", gin.H{"expert": "bob", "rate_per_second": 2, "max_duration": 100})
	assertError(t, w, http.StatusUnauthorized, "UNAUTHENTICATED")

	w = ts.do(t, http.MethodPost, "/api/bookings", alice, gin.H{"expert": "bob", "rate_per_second": 2, "max_duration": 100})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.JSONEq(t, `{"booking_id":1}`, w.Body.String())

	w = ts.do(t, http.MethodGet, "/api/bookings/1", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "alice", body["user"])
	assert.Equal(t, "bob", body["expert"])
	assert.EqualValues(t, 200, body["total_deposit"])
	assert.Equal(t, "pending", body["status"])

	w = ts.do(t, http.MethodGet, "/api/balances/vault", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"account":"vault","token":"usdc","amount":200}`, w.Body.String())

	w = ts.do(t, http.MethodGet, "/api/users/alice/bookings", "", nil)
	assert.JSONEq(t, `{"party":"alice","booking_ids":[1]}`, w.Body.String())
	w = ts.do(t, http.MethodGet, "/api/experts/bob/bookings", "", nil)
	assert.JSONEq(t, `{"party":"bob","booking_ids":[1]}`, w.Body.String())
	w = ts.do(t, http.MethodGet, "/api/experts/carol/bookings", "", nil)
	assert.JSONEq(t, `{"party":"carol","booking_ids":[]}`, w.Body.String())
}

func TestBookSession_Rejections(t *testing.T) {
	ts := newInitializedServer(t)
	alice := bearer(t, "alice")

	tests := []struct {
		name   string
		token  string
		body   gin.H
		status int
		code   string
	}{
		{"missing expert", alice, gin.H{"rate_per_second": 1, "max_duration": 1}, http.StatusBadRequest, CodeBadRequest},
		{"bad expert", alice, gin.H{"expert": "b o b", "rate_per_second": 1, "max_duration": 1}, http.StatusBadRequest, CodeBadRequest},
		{"zero rate", alice, gin.H{"expert": "bob", "rate_per_second": 0, "max_duration": 10}, http.StatusUnprocessableEntity, CodeInvalidAmount},
		{"zero duration", alice, gin.H{"expert": "bob", "rate_per_second": 5, "max_duration": 0}, http.StatusUnprocessableEntity, CodeInvalidAmount},
		{"paying for someone else", alice, gin.H{"user": "carol", "expert": "bob", "rate_per_second": 1, "max_duration": 1}, http.StatusForbidden, CodeNotAuthorized},
		{"custody as expert", alice, gin.H{"expert": "vault", "rate_per_second": 1, "max_duration": 1}, http.StatusForbidden, CodeNotAuthorized},
		{"custody as user", bearer(t, "vault"), gin.H{"expert": "mallory", "rate_per_second": 1, "max_duration": 1}, http.StatusForbidden, CodeNotAuthorized},
		{"insufficient balance", alice, gin.H{"expert": "bob", "rate_per_second": 10_001, "max_duration": 1}, http.StatusPaymentRequired, CodeInsufficientBalance},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(t, http.MethodPost, "/api/bookings", tt.token, tt.body)
			assertError(t, w, tt.status, tt.code)
		})
	}

	w := ts.do(t, http.MethodGet, "/api/users/alice/bookings", "", nil)
	assert.JSONEq(t, `{"party":"alice","booking_ids":[]}`, w.Body.String())
}

func TestFinalizeSession(t *testing.T) {
	ts := newInitializedServer(t)
	alice := bearer(t, "alice")
	oracle := bearer(t, "oracle")

	w := ts.do(t, http.MethodPost, "/api/bookings", alice, gin.H{"expert": "bob", "rate_per_second": 10, "max_duration": 100})
	require.Equal(t, http.StatusCreated, w.Code)

	w = ts.do(t, http.MethodPost, "/api/bookings/1/finalize", alice, gin.H{"actual_duration": 40})
	assertError(t, w, http.StatusForbidden, CodeNotAuthorized)

	w = ts.do(t, http.MethodPost, "/api/bookings/1/finalize", oracle, gin.H{})
	assertError(t, w, http.StatusBadRequest, CodeBadRequest)

	w = ts.do(t, http.MethodPost, "/api/bookings/0/finalize", oracle, gin.H{"actual_duration": 40})
	assertError(t, w, http.StatusBadRequest, CodeBadRequest)

	w = ts.do(t, http.MethodPost, "/api/bookings/9/finalize", oracle, gin.H{"actual_duration": 40})
	assertError(t, w, http.StatusNotFound, CodeBookingNotFound)

	w = ts.do(t, http.MethodPost, "/api/bookings/1/finalize", oracle, gin.H{"actual_duration": 101})
	assertError(t, w, http.StatusUnprocessableEntity, CodeInvalidAmount)

	w = ts.do(t, http.MethodPost, "/api/bookings/1/finalize", oracle, gin.H{"actual_duration": 40})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "complete", decode(t, w)["status"])

	w = ts.do(t, http.MethodPost, "/api/bookings/1/finalize", oracle, gin.H{"actual_duration": 40})
	assertError(t, w, http.StatusConflict, CodeBookingNotPending)

	for account, want := range map[string]float64{"bob": 400, "alice": 9_600, "vault": 0} {
		w = ts.do(t, http.MethodGet, "/api/balances/"+account, "", nil)
		assert.Equal(t, want, decode(t, w)["amount"], account)
	}
}

func TestFinalizeSession_ZeroDurationRefundsAll(t *testing.T) {
	ts := newInitializedServer(t)
	w := ts.do(t, http.MethodPost, "/api/bookings", bearer(t, "alice"), gin.H{"expert": "bob", "rate_per_second": 3, "max_duration": 10})
	require.Equal(t, http.StatusCreated, w.Code)

	w = ts.do(t, http.MethodPost, "/api/bookings/1/finalize", bearer(t, "oracle"), gin.H{"actual_duration": 0})
	require.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, http.MethodGet, "/api/balances/alice", "", nil)
	assert.EqualValues(t, 10_000, decode(t, w)["amount"])
}

func TestReclaimSession(t *testing.T) {
	ts := newInitializedServer(t)
	alice := bearer(t, "alice")

	w := ts.do(t, http.MethodPost, "/api/bookings", alice, gin.H{"expert": "bob", "rate_per_second": 5, "max_duration": 100})
	require.Equal(t, http.StatusCreated, w.Code)

	ts.clock.Advance(24 * time.Hour)
	w = ts.do(t, http.MethodPost, "/api/bookings/1/reclaim", alice, nil)
	assertError(t, w, http.StatusConflict, CodeReclaimTooEarly)

	ts.clock.Advance(time.Second)
	w = ts.do(t, http.MethodPost, "/api/bookings/1/reclaim", bearer(t, "bob"), nil)
	assertError(t, w, http.StatusForbidden, CodeNotAuthorized)

	w = ts.do(t, http.MethodPost, "/api/bookings/1/reclaim", alice, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "reclaimed", decode(t, w)["status"])

	w = ts.do(t, http.MethodPost, "/api/bookings/1/finalize", bearer(t, "oracle"), gin.H{"actual_duration": 1})
	assertError(t, w, http.StatusConflict, CodeBookingNotPending)

	w = ts.do(t, http.MethodGet, "/api/balances/alice", "", nil)
	assert.EqualValues(t, 10_000, decode(t, w)["amount"])
}

func TestBookSession_IdempotentReplay(t *testing.T) {
	ts := newInitializedServer(t)
	alice := bearer(t, "alice")
	body := gin.H{"expert": "bob", "rate_per_second": 1, "max_duration": 10}

	first := ts.do(t, http.MethodPost, "/api/bookings", alice, body, mw.HeaderIdempotencyKey, "k-1")
	require.Equal(t, http.StatusCreated, first.Code)

	second := ts.do(t, http.MethodPost, "/api/bookings", alice, body, mw.HeaderIdempotencyKey, "k-1")
	require.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, "true", second.Header().Get(mw.HeaderReplayed))
	assert.JSONEq(t, first.Body.String(), second.Body.String())

	w := ts.do(t, http.MethodGet, "/api/users/alice/bookings", "", nil)
	assert.JSONEq(t, `{"party":"alice","booking_ids":[1]}`, w.Body.String())
}

func TestMintAndEvents(t *testing.T) {
	ts := newInitializedServer(t)

	w := ts.do(t, http.MethodPost, "/api/admin/mint", bearer(t, "alice"), gin.H{"account": "alice", "amount": 5})
	assertError(t, w, http.StatusForbidden, CodeNotAuthorized)

	w = ts.do(t, http.MethodPost, "/api/admin/mint", bearer(t, "admin"), gin.H{"account": "vault", "amount": 5})
	assertError(t, w, http.StatusForbidden, CodeNotAuthorized)

	w = ts.do(t, http.MethodPost, "/api/admin/mint", bearer(t, "admin"), gin.H{"account": "carol", "amount": 0})
	assertError(t, w, http.StatusUnprocessableEntity, CodeInvalidAmount)

	w = ts.do(t, http.MethodPost, "/api/admin/mint", bearer(t, "admin"), gin.H{"account": "carol", "amount": 50})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"account":"carol","amount":50}`, w.Body.String())

	w = ts.do(t, http.MethodPost, "/api/bookings", bearer(t, "carol"), gin.H{"expert": "bob", "rate_per_second": 5, "max_duration": 10})
	require.Equal(t, http.StatusCreated, w.Code)
	w = ts.do(t, http.MethodPost, "/api/bookings/1/finalize", bearer(t, "oracle"), gin.H{"actual_duration": 4})
	require.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, http.MethodGet, "/api/events", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var page struct {
		Events []struct {
			Seq    uint64 `json:"seq"`
			Type   string `json:"type"`
			Amount int64  `json:"amount"`
		} `json:"events"`
		Next uint64 `json:"next"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	require.Len(t, page.Events, 2)
	assert.Equal(t, "booking_created", page.Events[0].Type)
	assert.EqualValues(t, 50, page.Events[0].Amount)
	assert.Equal(t, "session_finalized", page.Events[1].Type)
	assert.EqualValues(t, 20, page.Events[1].Amount)
	assert.Equal(t, page.Events[1].Seq, page.Next)

	w = ts.do(t, http.MethodGet, "/api/events?after=abc", "", nil)
	assertError(t, w, http.StatusBadRequest, CodeBadRequest)
	w = ts.do(t, http.MethodGet, "/api/events?limit=0", "", nil)
	assertError(t, w, http.StatusBadRequest, CodeBadRequest)
}

func TestCachedReadsFlushOnWrite(t *testing.T) {
	ts := newTestServer(t, false, time.Minute)
	ctx := context.Background()
	require.NoError(t, ts.vault.Initialize(ctx, "admin", "usdc", "oracle"))
	require.NoError(t, ts.ledger.Mint(ctx, "usdc", "alice", 100))

	w := ts.do(t, http.MethodGet, "/api/users/alice/bookings", "", nil)
	assert.Empty(t, w.Header().Get(mw.HeaderCache))
	w = ts.do(t, http.MethodGet, "/api/users/alice/bookings", "", nil)
	assert.Equal(t, "HIT", w.Header().Get(mw.HeaderCache))
	assert.JSONEq(t, `{"party":"alice","booking_ids":[]}`, w.Body.String())

	w = ts.do(t, http.MethodPost, "/api/bookings", bearer(t, "alice"), gin.H{"expert": "bob", "rate_per_second": 1, "max_duration": 10})
	require.Equal(t, http.StatusCreated, w.Code)

	w = ts.do(t, http.MethodGet, "/api/users/alice/bookings", "", nil)
	assert.Empty(t, w.Header().Get(mw.HeaderCache))
	assert.JSONEq(t, `{"party":"alice","booking_ids":[1]}`, w.Body.String())
}

func TestSubscriptions(t *testing.T) {
	ts := newInitializedServer(t)
	bob := bearer(t, "bob")
	endpoint := "https://push.example.com/send/abc"

	w := ts.do(t, http.MethodGet, "/api/subscriptions", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = ts.do(t, http.MethodPut, "/api/subscriptions", bob, gin.H{"endpoint": endpoint})
	assertError(t, w, http.StatusBadRequest, CodeBadRequest)

	w = ts.do(t, http.MethodPut, "/api/subscriptions", bob, gin.H{"endpoint": endpoint, "p256dh": "key", "auth": "secret"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = ts.do(t, http.MethodGet, "/api/subscriptions", bob, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Subscriptions []subscriptionResponse `json:"subscriptions"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Subscriptions, 1)
	assert.Equal(t, endpoint, list.Subscriptions[0].Endpoint)

	w = ts.do(t, http.MethodGet, "/api/subscriptions?endpoint="+endpoint, bob, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, endpoint, decode(t, w)["endpoint"])

	w = ts.do(t, http.MethodGet, "/api/subscriptions?endpoint="+endpoint, bearer(t, "alice"), nil)
	assertError(t, w, http.StatusNotFound, CodeNotFound)

	w = ts.do(t, http.MethodDelete, "/api/subscriptions", bob, gin.H{"endpoint": endpoint})
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = ts.do(t, http.MethodDelete, "/api/subscriptions", bob, gin.H{"endpoint": endpoint})
	assertError(t, w, http.StatusNotFound, CodeNotFound)
}

func TestGetVAPIDPublicKey_Disabled(t *testing.T) {
	ts := newTestServer(t, false, 0)
	w := ts.do(t, http.MethodGet, "/api/vapid_public_key", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
