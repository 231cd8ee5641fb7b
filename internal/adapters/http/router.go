package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/scripture-rag/internal/config"
	"github.com/kirillkom/scripture-rag/internal/core/domain"
	"github.com/kirillkom/scripture-rag/internal/core/ports"
	"github.com/kirillkom/scripture-rag/internal/core/retrieval"
	"github.com/kirillkom/scripture-rag/internal/observability/metrics"
)

const (
	maxUploadBytes   = 64 << 20
	maxMessageBytes  = 64 << 10
	backpressureWait = 250 * time.Millisecond
)

// AnswerCache short-circuits repeated questions.
type AnswerCache interface {
	Get(message string) (domain.Answer, bool)
	Put(message string, answer domain.Answer)
}

// HealthCheck names a dependency probed by /api/health.
type HealthCheck struct {
	Name    string
	Checker ports.HealthChecker
}

type Router struct {
	cfg       config.Config
	ingest    ports.CorpusIngestor
	answerer  ports.QuestionAnswerer
	retriever ports.Retriever
	imports   ports.CorpusReader

	cache   AnswerCache
	metrics *metrics.HTTPServerMetrics
	checks  []HealthCheck
	demo    *demoLimiter
}

func NewRouter(
	cfg config.Config,
	ingest ports.CorpusIngestor,
	answerer ports.QuestionAnswerer,
	retriever ports.Retriever,
	imports ports.CorpusReader,
) *Router {
	return &Router{
		cfg:       cfg,
		ingest:    ingest,
		answerer:  answerer,
		retriever: retriever,
		imports:   imports,
		demo:      newDemoLimiter(demoLimitsFromConfig(cfg)),
	}
}

func (rt *Router) WithAnswerCache(cache AnswerCache) *Router {
	rt.cache = cache
	return rt
}

func (rt *Router) WithMetrics(m *metrics.HTTPServerMetrics) *Router {
	rt.metrics = m
	return rt
}

func (rt *Router) WithHealthChecks(checks ...HealthCheck) *Router {
	rt.checks = append(rt.checks, checks...)
	return rt
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/api/health", rt.health)
	mux.HandleFunc("/api/answer", rt.answer)
	mux.HandleFunc("/api/chat", rt.answer)
	mux.HandleFunc("/v1/retrieve", rt.retrieve)
	mux.HandleFunc("/v1/corpus", rt.uploadCorpus)
	mux.HandleFunc("/v1/corpus/", rt.getCorpusImport)
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
	}

	guarded := backpressureMiddleware(
		rateLimitMiddleware(mux, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst, rt.recordRejection),
		rt.cfg.APIMaxInFlight,
		backpressureWait,
		rt.recordRejection,
	)
	var handler http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isTrafficControlled(r.URL.Path) {
			guarded.ServeHTTP(w, r)
			return
		}
		mux.ServeHTTP(w, r)
	})
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(handler)
	}
	return requestIDMiddleware(accessLogMiddleware(handler, rt.cfg.TrustXForwardedFor))
}

// Probes and metrics bypass rate limiting and backpressure.
func isTrafficControlled(path string) bool {
	return strings.HasPrefix(path, "/api/answer") ||
		strings.HasPrefix(path, "/api/chat") ||
		strings.HasPrefix(path, "/v1/")
}

func (rt *Router) recordRejection(reason string) {
	if rt.metrics != nil {
		rt.metrics.RecordRejection(reason)
	}
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	reasons := []string{}
	for _, check := range rt.checks {
		if err := check.Checker.Ping(ctx); err != nil {
			slog.Warn("health_check_failed", "dependency", check.Name, "error", err)
			reasons = append(reasons, check.Name+"_unavailable")
		}
	}
	if strings.TrimSpace(rt.cfg.OpenAIAPIKey) == "" &&
		(rt.cfg.EmbedProvider == "openai" || rt.cfg.GenProvider == "openai") {
		reasons = append(reasons, "missing_openai_api_key")
	}

	limits := rt.demo.limits
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":      true,
		"ready":   len(reasons) == 0,
		"reasons": reasons,
		"demo": map[string]any{
			"enabled":        limits.Enabled,
			"requires_token": limits.Enabled && limits.Token != "",
			"max_chars":      limits.MaxChars,
			"per_ip_per_day": limits.PerIPPerDay,
			"total_per_day":  limits.TotalPerDay,
			"cooldown_s":     int(limits.Cooldown.Seconds()),
		},
	})
}

type answerResponse struct {
	Answer  string             `json:"answer"`
	Cached  bool               `json:"cached"`
	Blocked bool               `json:"blocked"`
	Reason  domain.BlockReason `json:"reason,omitempty"`
	Sources []domain.Passage   `json:"sources"`
}

func newAnswerResponse(answer domain.Answer, cached bool) answerResponse {
	sources := answer.Sources
	if sources == nil {
		sources = []domain.Passage{}
	}
	return answerResponse{
		Answer:  answer.Text,
		Cached:  cached,
		Blocked: answer.Blocked,
		Reason:  answer.Reason,
		Sources: sources,
	}
}

func (rt *Router) answer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	if !rt.demo.authorized(r) {
		rt.recordRejection("unauthorized")
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	var req struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxMessageBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_json"})
		return
	}
	message := strings.TrimSpace(req.Message)
	if message == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "empty_message"})
		return
	}

	if rejection := rt.demo.admit(clientIP(r, rt.cfg.TrustXForwardedFor), message); rejection != nil {
		if code, ok := rejection.body["error"].(string); ok {
			rt.recordRejection(code)
		}
		rejection.write(w)
		return
	}

	if rt.cache != nil {
		cached, hit := rt.cache.Get(message)
		if rt.metrics != nil {
			rt.metrics.RecordCacheLookup(hit)
		}
		if hit {
			writeJSON(w, http.StatusOK, newAnswerResponse(cached, true))
			return
		}
	}

	answer, err := rt.answerer.Answer(r.Context(), message)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	if rt.cache != nil {
		rt.cache.Put(message, *answer)
	}
	writeJSON(w, http.StatusOK, newAnswerResponse(*answer, false))
}

func (rt *Router) retrieve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req struct {
		Question string `json:"question"`
		Mode     string `json:"mode"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxMessageBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "question is required"})
		return
	}

	mode := retrieval.ModeFor(rt.retriever.Analyze(req.Question))
	if raw := strings.ToUpper(strings.TrimSpace(req.Mode)); raw != "" {
		parsed, ok := domain.ParseRetrievalMode(raw)
		if !ok {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "mode must be AUTO or LITERAL_ONLY"})
			return
		}
		mode = parsed
	}

	result, err := rt.retriever.Retrieve(r.Context(), req.Question, mode)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"retrieval": result,
		"guard":     retrieval.Guard(result.Query, result.Candidates),
	})
}

func (rt *Router) uploadCorpus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	if rt.ingest == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "corpus ingestion is disabled"})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	imp, err := rt.ingest.Upload(r.Context(), fileHeader.Filename, file)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, imp)
}

func (rt *Router) getCorpusImport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	if rt.imports == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "corpus ingestion is disabled"})
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/v1/corpus/")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "import id is required"})
		return
	}

	imp, err := rt.imports.GetByID(r.Context(), id)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, imp)
}

func (rt *Router) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	if errors.Is(err, context.Canceled) {
		return
	}
	if status >= http.StatusInternalServerError {
		slog.Error("request_failed",
			"request_id", requestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"status", status,
			"error", err,
		)
	}
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "5")
	}
	writeJSON(w, status, map[string]string{"error": errorCode(status), "detail": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
