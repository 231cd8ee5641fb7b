package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/scripture-rag/internal/core/domain"
	"github.com/kirillkom/scripture-rag/internal/infrastructure/resilience"
)

// keywordFields get payload indexes so book and testament filters stay cheap.
var keywordFields = []string{"book", "testament"}

// Client stores passages in a Qdrant collection through its REST API.
// Literal search relies on the unindexed "text" payload field, which Qdrant
// matches as a case-sensitive substring.
type Client struct {
	baseURL    string
	collection string
	httpClient *http.Client
	executor   *resilience.Executor

	ensureMu          sync.Mutex
	ensuredCollection bool
	ensuredVectorSize int
}

func New(baseURL, collection string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

func (c *Client) WithExecutor(executor *resilience.Executor) *Client {
	c.executor = executor
	return c
}

// PointID derives a stable point id from the passage key so re-ingesting a
// corpus overwrites instead of duplicating.
func PointID(p domain.Passage) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(p.Key())).String()
}

func (c *Client) UpsertPassages(ctx context.Context, passages []domain.IndexedPassage) error {
	if len(passages) == 0 {
		return nil
	}
	if err := c.ensureCollection(ctx, len(passages[0].Vector)); err != nil {
		return err
	}

	type point struct {
		ID      string         `json:"id"`
		Vector  []float32      `json:"vector"`
		Payload map[string]any `json:"payload"`
	}

	points := make([]point, 0, len(passages))
	for _, ip := range passages {
		points = append(points, point{
			ID:      PointID(ip.Passage),
			Vector:  ip.Vector,
			Payload: payloadOf(ip.Passage),
		})
	}

	path := fmt.Sprintf("/collections/%s/points?wait=true", c.collection)
	return c.call(ctx, "upsert", http.MethodPut, path, map[string]any{"points": points}, nil)
}

func (c *Client) NearestNeighbors(
	ctx context.Context,
	vector []float32,
	filter domain.PassageFilter,
	k int,
) ([]domain.ScoredPassage, error) {
	if k <= 0 {
		return nil, nil
	}
	reqBody := map[string]any{
		"vector":       vector,
		"limit":        k,
		"with_payload": true,
	}
	if must := filterConditions(filter); len(must) > 0 {
		reqBody["filter"] = map[string]any{"must": must}
	}

	var searchResp struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	path := fmt.Sprintf("/collections/%s/points/search", c.collection)
	if err := c.call(ctx, "search", http.MethodPost, path, reqBody, &searchResp); err != nil {
		return nil, err
	}

	out := make([]domain.ScoredPassage, 0, len(searchResp.Result))
	for _, r := range searchResp.Result {
		out = append(out, domain.ScoredPassage{
			Passage:  passageOf(r.Payload),
			Distance: 1 - r.Score,
		})
	}
	return out, nil
}

func (c *Client) ContainsSearch(
	ctx context.Context,
	substring string,
	filter domain.PassageFilter,
	limit int,
) ([]domain.Passage, error) {
	if substring == "" || limit <= 0 {
		return nil, nil
	}
	must := append([]map[string]any{{
		"key":   "text",
		"match": map[string]any{"text": substring},
	}}, filterConditions(filter)...)

	reqBody := map[string]any{
		"filter":       map[string]any{"must": must},
		"limit":        limit,
		"with_payload": true,
		"with_vector":  false,
	}

	var scrollResp struct {
		Result struct {
			Points []struct {
				Payload map[string]any `json:"payload"`
			} `json:"points"`
		} `json:"result"`
	}
	path := fmt.Sprintf("/collections/%s/points/scroll", c.collection)
	if err := c.call(ctx, "scroll", http.MethodPost, path, reqBody, &scrollResp); err != nil {
		return nil, err
	}

	out := make([]domain.Passage, 0, len(scrollResp.Result.Points))
	for _, p := range scrollResp.Result.Points {
		out = append(out, passageOf(p.Payload))
	}
	return out, nil
}

func (c *Client) Ping(ctx context.Context) error {
	return c.call(ctx, "ping", http.MethodGet, "/collections", nil, nil)
}

func (c *Client) ensureCollection(ctx context.Context, vectorSize int) error {
	c.ensureMu.Lock()
	if c.ensuredCollection && c.ensuredVectorSize == vectorSize {
		c.ensureMu.Unlock()
		return nil
	}
	c.ensureMu.Unlock()

	reqBody := map[string]any{
		"vectors": map[string]any{
			"size":     vectorSize,
			"distance": "Cosine",
		},
	}
	err := c.call(ctx, "ensure collection", http.MethodPut, "/collections/"+c.collection, reqBody, nil)
	var statusErr *resilience.HTTPStatusError
	switch {
	case err == nil:
		for _, field := range keywordFields {
			index := map[string]any{"field_name": field, "field_schema": "keyword"}
			path := fmt.Sprintf("/collections/%s/index?wait=true", c.collection)
			if err := c.call(ctx, "create index", http.MethodPut, path, index, nil); err != nil {
				return err
			}
		}
	case errors.As(err, &statusErr) && alreadyExists(statusErr):
	default:
		return err
	}

	c.ensureMu.Lock()
	defer c.ensureMu.Unlock()
	c.ensuredCollection = true
	c.ensuredVectorSize = vectorSize
	return nil
}

// 409 on recent versions, 400 "already exists" on older ones.
func alreadyExists(err *resilience.HTTPStatusError) bool {
	return err.StatusCode == http.StatusConflict ||
		(err.StatusCode == http.StatusBadRequest && strings.Contains(err.Body, "already exists"))
}

func (c *Client) call(ctx context.Context, operation, method, path string, payload, out any) error {
	_, err := resilience.Call(ctx, c.executor, "qdrant."+operation, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.do(ctx, operation, method, path, payload, out)
	}, resilience.ClassifyHTTPError)
	if err == nil {
		return nil
	}
	var statusErr *resilience.HTTPStatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusBadRequest &&
		strings.Contains(strings.ToLower(statusErr.Body), "dimension") {
		return domain.WrapError(domain.ErrMisconfigured, "qdrant "+operation, err)
	}
	return resilience.WrapTemporary("qdrant "+operation, err, resilience.ClassifyHTTPError)
}

func (c *Client) do(ctx context.Context, operation, method, path string, payload, out any) error {
	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal %s body: %w", operation, err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return resilience.NewHTTPStatusError("qdrant", operation, resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}

func filterConditions(filter domain.PassageFilter) []map[string]any {
	var must []map[string]any
	if filter.Book != "" {
		must = append(must, map[string]any{"key": "book", "match": map[string]any{"value": filter.Book}})
	}
	if filter.Testament != "" {
		must = append(must, map[string]any{"key": "testament", "match": map[string]any{"value": string(filter.Testament)}})
	}
	return must
}

func payloadOf(p domain.Passage) map[string]any {
	return map[string]any{
		"text":        p.Text,
		"book":        p.Book,
		"chapter":     p.Chapter,
		"verse":       p.Verse,
		"testament":   string(p.Testament),
		"source":      p.Source,
		"translation": p.Translation,
	}
}

func passageOf(payload map[string]any) domain.Passage {
	return domain.Passage{
		Text:        getStringPayload(payload, "text"),
		Book:        getStringPayload(payload, "book"),
		Chapter:     getIntPayload(payload, "chapter"),
		Verse:       getIntPayload(payload, "verse"),
		Testament:   domain.Testament(getStringPayload(payload, "testament")),
		Source:      getStringPayload(payload, "source"),
		Translation: getStringPayload(payload, "translation"),
	}
}

func getStringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok || v == nil {
		return ""
	}
	s, ok := v.(string)
	if ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

// JSON numbers decode as float64.
func getIntPayload(payload map[string]any, key string) int {
	switch v := payload[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case json.Number:
		n, _ := v.Int64()
		return int(n)
	default:
		return 0
	}
}
