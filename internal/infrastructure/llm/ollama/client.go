package ollama

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/scripture-rag/internal/core/domain"
	"github.com/kirillkom/scripture-rag/internal/infrastructure/llm/prompt"
	"github.com/kirillkom/scripture-rag/internal/infrastructure/resilience"
)

type Client struct {
	baseURL     string
	genModel    string
	embedModel  string
	temperature float64
	httpClient  *http.Client
	executor    *resilience.Executor
}

func New(baseURL, genModel, embedModel string) *Client {
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		genModel:    genModel,
		embedModel:  embedModel,
		temperature: 0.2,
		httpClient:  &http.Client{Timeout: 120 * time.Second},
	}
}

// WithExecutor routes every call through the resilience executor.
func (c *Client) WithExecutor(executor *resilience.Executor) *Client {
	c.executor = executor
	return c
}

func (c *Client) WithTemperature(temperature float64) *Client {
	c.temperature = temperature
	return c
}

// Ping checks that the Ollama server answers.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/api/tags", nil, nil, "ping")
}

type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	request := map[string]any{
		"model": e.client.embedModel,
		"input": texts,
	}

	type embedResponse struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	response, err := resilience.Call(ctx, e.client.executor, "ollama.embed", func(ctx context.Context) (embedResponse, error) {
		var out embedResponse
		err := e.client.do(ctx, http.MethodPost, "/api/embed", request, &out, "embed")
		return out, err
	}, resilience.ClassifyHTTPError)
	if err != nil {
		return nil, resilience.WrapTemporary("ollama embed", err, resilience.ClassifyHTTPError)
	}
	if len(response.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama embed: got %d vectors for %d inputs", len(response.Embeddings), len(texts))
	}
	return response.Embeddings, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

type Generator struct {
	client *Client
}

func NewGenerator(client *Client) *Generator {
	return &Generator{client: client}
}

func (g *Generator) GenerateAnswer(ctx context.Context, question string, passages []domain.Passage) (string, error) {
	return g.client.chat(ctx, prompt.System, prompt.User(question, passages))
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (c *Client) chat(ctx context.Context, system, user string) (string, error) {
	request := map[string]any{
		"model": c.genModel,
		"messages": []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		"stream":  false,
		"options": map[string]any{"temperature": c.temperature},
	}

	type chatResponse struct {
		Message chatMessage `json:"message"`
	}
	response, err := resilience.Call(ctx, c.executor, "ollama.chat", func(ctx context.Context) (chatResponse, error) {
		var out chatResponse
		err := c.do(ctx, http.MethodPost, "/api/chat", request, &out, "chat")
		return out, err
	}, resilience.ClassifyHTTPError)
	if err != nil {
		return "", resilience.WrapTemporary("ollama chat", err, resilience.ClassifyHTTPError)
	}
	return strings.TrimSpace(response.Message.Content), nil
}
