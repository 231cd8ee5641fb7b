package httpadapter

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/kirillkom/scripture-rag/internal/config"
)

const demoWindow = 24 * time.Hour

// demoSweepBatch caps how many per-IP entries one admit call inspects for
// eviction.
const demoSweepBatch = 256

type demoLimits struct {
	Enabled     bool
	Token       string
	MaxChars    int
	PerIPPerDay int
	TotalPerDay int
	Cooldown    time.Duration
}

func demoLimitsFromConfig(cfg config.Config) demoLimits {
	return demoLimits{
		Enabled:     cfg.DemoMode,
		Token:       strings.TrimSpace(cfg.DemoToken),
		MaxChars:    cfg.DemoMaxChars,
		PerIPPerDay: cfg.DemoMaxReqPerIPPerDay,
		TotalPerDay: cfg.DemoMaxReqTotalPerDay,
		Cooldown:    cfg.DemoCooldown,
	}
}

// demoRejection is a ready-to-send refusal.
type demoRejection struct {
	status     int
	body       map[string]any
	retryAfter int
}

func (r *demoRejection) write(w http.ResponseWriter) {
	if r.retryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(r.retryAfter))
	}
	writeJSON(w, r.status, r.body)
}

// demoLimiter enforces the public demo quotas: a per-IP cooldown and rolling
// 24h windows per IP and in total. Every attempt refreshes the cooldown,
// including rejected ones.
type demoLimiter struct {
	limits demoLimits

	mu      sync.Mutex
	perIP   map[string][]time.Time
	total   []time.Time
	lastReq map[string]time.Time
	now     func() time.Time
}

func newDemoLimiter(limits demoLimits) *demoLimiter {
	return &demoLimiter{
		limits:  limits,
		perIP:   make(map[string][]time.Time),
		lastReq: make(map[string]time.Time),
		now:     time.Now,
	}
}

// authorized accepts X-Demo-Token or Authorization: Bearer.
func (d *demoLimiter) authorized(r *http.Request) bool {
	if !d.limits.Enabled || d.limits.Token == "" {
		return true
	}
	token := strings.TrimSpace(r.Header.Get("X-Demo-Token"))
	if token == "" {
		auth := strings.TrimSpace(r.Header.Get("Authorization"))
		if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
			token = strings.TrimSpace(auth[7:])
		}
	}
	return token == d.limits.Token
}

func (d *demoLimiter) admit(ip, message string) *demoRejection {
	if !d.limits.Enabled {
		return nil
	}
	if d.limits.MaxChars > 0 && utf8.RuneCountInString(message) > d.limits.MaxChars {
		return &demoRejection{
			status: http.StatusBadRequest,
			body:   map[string]any{"error": "message_too_long", "max_chars": d.limits.MaxChars},
		}
	}

	now := d.now()
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sweepLocked(now)

	retryAfter := 0
	if d.limits.Cooldown > 0 {
		if last, ok := d.lastReq[ip]; ok {
			if elapsed := now.Sub(last); elapsed < d.limits.Cooldown {
				retryAfter = max(int((d.limits.Cooldown - elapsed).Seconds()), 1)
			}
		}
		d.lastReq[ip] = now
	}

	var perIP []time.Time
	if d.limits.PerIPPerDay > 0 {
		perIP = prune(d.perIP[ip], now)
		if len(perIP) == 0 {
			delete(d.perIP, ip)
		} else {
			d.perIP[ip] = perIP
		}
	}
	if d.limits.TotalPerDay > 0 {
		d.total = prune(d.total, now)
	}

	switch {
	case retryAfter > 0:
		return &demoRejection{
			status:     http.StatusTooManyRequests,
			body:       map[string]any{"error": "cooldown", "retry_after_s": retryAfter},
			retryAfter: retryAfter,
		}
	case d.limits.PerIPPerDay > 0 && len(perIP) >= d.limits.PerIPPerDay:
		return &demoRejection{
			status: http.StatusTooManyRequests,
			body:   map[string]any{"error": "rate_limited_ip", "limit": d.limits.PerIPPerDay},
		}
	case d.limits.TotalPerDay > 0 && len(d.total) >= d.limits.TotalPerDay:
		return &demoRejection{
			status: http.StatusTooManyRequests,
			body:   map[string]any{"error": "rate_limited_total", "limit": d.limits.TotalPerDay},
		}
	}

	if d.limits.PerIPPerDay > 0 {
		d.perIP[ip] = append(perIP, now)
	}
	if d.limits.TotalPerDay > 0 {
		d.total = append(d.total, now)
	}
	return nil
}

// sweepLocked drops per-IP state that no longer affects a decision: cooldown
// stamps older than the cooldown and quota windows with no stamp left.
func (d *demoLimiter) sweepLocked(now time.Time) {
	budget := demoSweepBatch
	for ip, last := range d.lastReq {
		if budget == 0 {
			return
		}
		budget--
		if now.Sub(last) >= d.limits.Cooldown {
			delete(d.lastReq, ip)
		}
	}
	for ip, stamps := range d.perIP {
		if budget == 0 {
			return
		}
		budget--
		if kept := prune(stamps, now); len(kept) == 0 {
			delete(d.perIP, ip)
		} else {
			d.perIP[ip] = kept
		}
	}
}

func prune(stamps []time.Time, now time.Time) []time.Time {
	kept := stamps[:0]
	for _, t := range stamps {
		if now.Sub(t) <= demoWindow {
			kept = append(kept, t)
		}
	}
	return kept
}

// clientIP trusts X-Forwarded-For only when the deployment sits behind a
// known proxy.
func clientIP(r *http.Request, trustForwarded bool) string {
	if trustForwarded {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			if ip := strings.TrimSpace(strings.Split(xff, ",")[0]); ip != "" {
				return ip
			}
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	if r.RemoteAddr == "" {
		return "unknown"
	}
	return r.RemoteAddr
}
