package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/saadjs/nibbles/internal/auth"
	"github.com/saadjs/nibbles/internal/service"
	"github.com/saadjs/nibbles/internal/store"
)

const testBotToken = "123:bot"

func init() {
	gin.SetMode(gin.TestMode)
}

type fixture struct {
	router *gin.Engine
	svc    *service.Service
	tokens *auth.TokenManager
}

func newFixture(t *testing.T, limiter *RateLimiter) *fixture {
	t.Helper()
	st, err := store.Open(context.Background(), store.OpenOptions{
		Driver:     store.DriverSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "api.db"),
	})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	fixed := time.Date(2024, 11, 13, 12, 0, 0, 0, time.UTC)
	svc, err := service.New(service.Options{Store: st, Location: time.UTC, Now: func() time.Time { return fixed }})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	tokens, err := auth.NewTokenManager("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("token manager: %v", err)
	}
	r, err := NewRouter(Options{Service: svc, Tokens: tokens, BotToken: testBotToken, Limiter: limiter})
	if err != nil {
		t.Fatalf("new router: %v", err)
	}
	return &fixture{router: r, svc: svc, tokens: tokens}
}

func (f *fixture) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) login(t *testing.T, id int64) string {
	t.Helper()
	if _, err := f.svc.EnsureUser(context.Background(), id, "ada", "Ada"); err != nil {
		t.Fatalf("ensure user: %v", err)
	}
	tok, _, err := f.tokens.Generate(id)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	return tok
}

func TestHealthAndRequestID(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodGet, "/api/health", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Header().Get(requestIDHeader) == "" {
		t.Fatalf("expected a request id header")
	}
}

func TestAuthRequired(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	if rec := f.do(t, http.MethodGet, "/api/dashboard/today", "", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/api/dashboard/today", "garbage", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d", rec.Code)
	}
}

func TestTelegramLogin(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	fields := map[string]string{"auth_date": "1731500000", "user": `{"id":77,"first_name":"Grace","username":"grace"}`}
	q := url.Values{}
	for k, v := range fields {
		q.Set(k, v)
	}
	q.Set("hash", auth.SignInitData(fields, testBotToken))
	body, _ := json.Marshal(map[string]string{"init_data": q.Encode()})

	rec := f.do(t, http.MethodPost, "/api/auth/telegram", "", string(body))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil || resp.Token == "" {
		t.Fatalf("decode login: %v %s", err, rec.Body.String())
	}

	rec = f.do(t, http.MethodGet, "/api/auth/me", resp.Token, "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"id":77`) {
		t.Fatalf("unexpected me response %d: %s", rec.Code, rec.Body.String())
	}

	q.Set("hash", "00")
	bad, _ := json.Marshal(map[string]string{"init_data": q.Encode()})
	if rec := f.do(t, http.MethodPost, "/api/auth/telegram", "", string(bad)); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for forged init data, got %d", rec.Code)
	}
}

func TestErrorMapping(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	tok := f.login(t, 1)

	if rec := f.do(t, http.MethodGet, "/api/calendar?month=13", tok, ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for month 13, got %d", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/api/calendar/2024-13-40", tok, ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad day, got %d", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/api/summary?days=0", tok, ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for zero days, got %d", rec.Code)
	}
	if rec := f.do(t, http.MethodPut, "/api/user/profile", tok, `{"goal":"bulk"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown goal, got %d", rec.Code)
	}
	if rec := f.do(t, http.MethodDelete, "/api/logs/999", tok, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing log, got %d", rec.Code)
	}
	if rec := f.do(t, http.MethodPost, "/api/logs/barcode", tok, `{"servings":2}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without a barcode, got %d", rec.Code)
	}
	if rec := f.do(t, http.MethodPost, "/api/logs/barcode", tok, `{"barcode":"5000112637922"}`); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without a barcode lookup, got %d", rec.Code)
	}

	stranger, _, _ := f.tokens.Generate(555)
	if rec := f.do(t, http.MethodGet, "/api/user/profile", stranger, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown user, got %d", rec.Code)
	}
}

func TestDashboardRoutes(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	tok := f.login(t, 1)

	rec := f.do(t, http.MethodPut, "/api/user/profile", tok, `{"weight_kg":80,"daily_calorie_target":2500}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("update profile: %d %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"effective_calorie_target":2500`) || !strings.Contains(rec.Body.String(), `"calorie_override":true`) {
		t.Fatalf("unexpected profile body %s", rec.Body.String())
	}

	for _, path := range []string{
		"/api/dashboard/today",
		"/api/calendar",
		"/api/calendar/2024-11-13",
		"/api/charts/calories?days=14",
		"/api/charts/macros",
		"/api/charts/trend",
		"/api/pet",
		"/api/achievements",
		"/api/summary?range=last%20week",
		"/api/logs/export?range=this%20month",
	} {
		if rec := f.do(t, http.MethodGet, path, tok, ""); rec.Code != http.StatusOK {
			t.Fatalf("GET %s: %d %s", path, rec.Code, rec.Body.String())
		}
	}

	rec = f.do(t, http.MethodPost, "/api/pet/rename", tok, `{"name":"Mochi"}`)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "Mochi") {
		t.Fatalf("rename: %d %s", rec.Code, rec.Body.String())
	}
}

func TestRateLimit(t *testing.T) {
	addr := os.Getenv("NIBBLES_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("NIBBLES_TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	ctx := context.Background()
	_ = client.Del(ctx, "nibbles:rate_limit:auth:192.0.2.1").Err()

	f := newFixture(t, NewRateLimiter(client))
	var last int
	for i := 0; i < 11; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/telegram", nil)
		req.RemoteAddr = "192.0.2.1:1234"
		rec := httptest.NewRecorder()
		f.router.ServeHTTP(rec, req)
		last = rec.Code
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after the limit, got %d", last)
	}
}
