package httpadapter

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"
)

func newClockedLimiter(limits demoLimits, start time.Time) (*demoLimiter, *time.Time) {
	now := start
	limiter := newDemoLimiter(limits)
	limiter.now = func() time.Time { return now }
	return limiter, &now
}

func TestDemoLimiterDisabledAdmitsEverything(t *testing.T) {
	limiter := newDemoLimiter(demoLimits{MaxChars: 1, PerIPPerDay: 1})
	for i := 0; i < 5; i++ {
		if rejection := limiter.admit("10.0.0.1", "mensagem longa"); rejection != nil {
			t.Fatalf("disabled limiter rejected attempt %d: %+v", i, rejection.body)
		}
	}
}

func TestDemoLimiterRejectsLongMessagesByRuneCount(t *testing.T) {
	limiter := newDemoLimiter(demoLimits{Enabled: true, MaxChars: 5})

	if rejection := limiter.admit("ip", "ééééé"); rejection != nil {
		t.Fatalf("five runes must be admitted, got %+v", rejection.body)
	}
	rejection := limiter.admit("ip2", "éééééé")
	if rejection == nil || rejection.status != http.StatusBadRequest || rejection.body["error"] != "message_too_long" {
		t.Fatalf("expected message_too_long, got %+v", rejection)
	}
}

func TestDemoLimiterCooldownRefreshesOnRejectedAttempts(t *testing.T) {
	start := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	limiter, now := newClockedLimiter(demoLimits{Enabled: true, Cooldown: 3 * time.Second}, start)

	if rejection := limiter.admit("ip", "a"); rejection != nil {
		t.Fatalf("first attempt rejected: %+v", rejection.body)
	}

	*now = start.Add(2 * time.Second)
	rejection := limiter.admit("ip", "b")
	if rejection == nil || rejection.status != http.StatusTooManyRequests || rejection.body["error"] != "cooldown" {
		t.Fatalf("expected cooldown, got %+v", rejection)
	}
	if rejection.retryAfter != 1 {
		t.Fatalf("expected retry after 1s, got %d", rejection.retryAfter)
	}

	// 4s after the first attempt but only 2s after the rejected one.
	*now = start.Add(4 * time.Second)
	if rejection := limiter.admit("ip", "c"); rejection == nil || rejection.body["error"] != "cooldown" {
		t.Fatalf("expected cooldown to be refreshed by the rejected attempt")
	}

	*now = start.Add(8 * time.Second)
	if rejection := limiter.admit("ip", "d"); rejection != nil {
		t.Fatalf("expected admission after cooldown, got %+v", rejection.body)
	}
}

func TestDemoLimiterPerIPAndTotalQuotas(t *testing.T) {
	start := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)
	limiter, now := newClockedLimiter(demoLimits{Enabled: true, PerIPPerDay: 2, TotalPerDay: 3}, start)

	for i := 0; i < 2; i++ {
		*now = start.Add(time.Duration(i) * time.Minute)
		if rejection := limiter.admit("a", "q"); rejection != nil {
			t.Fatalf("attempt %d rejected: %+v", i, rejection.body)
		}
	}
	*now = start.Add(3 * time.Minute)
	if rejection := limiter.admit("a", "q"); rejection == nil || rejection.body["error"] != "rate_limited_ip" {
		t.Fatalf("expected rate_limited_ip, got %+v", rejection)
	}

	if rejection := limiter.admit("b", "q"); rejection != nil {
		t.Fatalf("other ip should be admitted, got %+v", rejection.body)
	}
	if rejection := limiter.admit("c", "q"); rejection == nil || rejection.body["error"] != "rate_limited_total" {
		t.Fatalf("expected rate_limited_total, got %+v", rejection)
	}

	*now = start.Add(25 * time.Hour)
	if rejection := limiter.admit("a", "q"); rejection != nil {
		t.Fatalf("quota must reset after the window, got %+v", rejection.body)
	}
}

func TestDemoLimiterAuthorization(t *testing.T) {
	limiter := newDemoLimiter(demoLimits{Enabled: true, Token: "s3cret"})

	req := httptest.NewRequest(http.MethodPost, "/api/answer", nil)
	if limiter.authorized(req) {
		t.Fatalf("missing token must not be authorized")
	}
	req.Header.Set("X-Demo-Token", "s3cret")
	if !limiter.authorized(req) {
		t.Fatalf("X-Demo-Token must be accepted")
	}

	req = httptest.NewRequest(http.MethodPost, "/api/answer", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	if !limiter.authorized(req) {
		t.Fatalf("bearer token must be accepted")
	}

	if !newDemoLimiter(demoLimits{Token: "s3cret"}).authorized(httptest.NewRequest(http.MethodGet, "/", nil)) {
		t.Fatalf("token is ignored when demo mode is off")
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/answer", nil)
	req.RemoteAddr = "192.0.2.10:5555"
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")

	if got := clientIP(req, false); got != "192.0.2.10" {
		t.Fatalf("expected remote address, got %q", got)
	}
	if got := clientIP(req, true); got != "203.0.113.7" {
		t.Fatalf("expected first forwarded address, got %q", got)
	}
}

func TestAnswerEndpointAppliesDemoChecksInOrder(t *testing.T) {
	cfg := baseConfig()
	cfg.DemoMode = true
	cfg.DemoToken = "tok"
	cfg.DemoMaxChars = 10
	cfg.DemoCooldown = time.Minute
	answerer := &answererFake{}
	handler := newTestRouter(cfg, answerer, nil).Handler()
	auth := map[string]string{"X-Demo-Token": "tok"}

	if res := postJSON(handler, "/api/answer", map[string]string{"message": "fé"}, nil); res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 before anything else, got %d", res.Code)
	}
	if res := postJSON(handler, "/api/answer", "{", auth); res.Code != http.StatusBadRequest {
		t.Fatalf("expected invalid json, got %d", res.Code)
	}
	res := postJSON(handler, "/api/answer", map[string]string{"message": strings.Repeat("a", 11)}, auth)
	if res.Code != http.StatusBadRequest || decodeBody(t, res)["error"] != "message_too_long" {
		t.Fatalf("expected message_too_long, got %d", res.Code)
	}
	if res := postJSON(handler, "/api/answer", map[string]string{"message": "fé"}, auth); res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	res = postJSON(handler, "/api/answer", map[string]string{"message": "graça"}, auth)
	if res.Code != http.StatusTooManyRequests || res.Header().Get("Retry-After") == "" {
		t.Fatalf("expected cooldown 429 with Retry-After, got %d", res.Code)
	}
	if answerer.calls != 1 {
		t.Fatalf("expected a single answerer call, got %d", answerer.calls)
	}
}

func TestDemoLimiterDropsIdleClientState(t *testing.T) {
	start := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	limiter, now := newClockedLimiter(demoLimits{
		Enabled:     true,
		Cooldown:    3 * time.Second,
		PerIPPerDay: 5,
	}, start)

	for i := 0; i < 100; i++ {
		ip := "10.0." + strconv.Itoa(i/256) + "." + strconv.Itoa(i%256)
		if rejection := limiter.admit(ip, "oi"); rejection != nil {
			t.Fatalf("attempt from %s rejected: %+v", ip, rejection.body)
		}
	}
	if len(limiter.perIP) != 100 || len(limiter.lastReq) != 100 {
		t.Fatalf("expected 100 tracked clients, got perIP=%d lastReq=%d", len(limiter.perIP), len(limiter.lastReq))
	}

	*now = start.Add(48 * time.Hour)
	if rejection := limiter.admit("192.168.0.1", "oi"); rejection != nil {
		t.Fatalf("fresh client rejected: %+v", rejection.body)
	}
	if len(limiter.perIP) != 1 || len(limiter.lastReq) != 1 {
		t.Fatalf("expected only the fresh client to remain, got perIP=%d lastReq=%d", len(limiter.perIP), len(limiter.lastReq))
	}
	if len(limiter.total) != 0 {
		t.Fatalf("total stamps must not be kept without a total quota, got %d", len(limiter.total))
	}
}
