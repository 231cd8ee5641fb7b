package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/kirillkom/scripture-rag/internal/core/domain"
	"github.com/kirillkom/scripture-rag/internal/infrastructure/llm/prompt"
	"github.com/kirillkom/scripture-rag/internal/infrastructure/resilience"
)

// Client talks to any OpenAI-compatible endpoint for embeddings and chat
// completions.
type Client struct {
	api         *openai.Client
	embedModel  string
	chatModel   string
	temperature float32
	executor    *resilience.Executor
}

func New(baseURL, apiKey, embedModel, chatModel string) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, domain.WrapError(domain.ErrMisconfigured, "openai client", errors.New("OPENAI_API_KEY is not set"))
	}
	cfg := openai.DefaultConfig(apiKey)
	if strings.TrimSpace(baseURL) != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	return &Client{
		api:         openai.NewClientWithConfig(cfg),
		embedModel:  embedModel,
		chatModel:   chatModel,
		temperature: 0.2,
	}, nil
}

func (c *Client) WithExecutor(executor *resilience.Executor) *Client {
	c.executor = executor
	return c
}

func (c *Client) WithTemperature(temperature float64) *Client {
	c.temperature = float32(temperature)
	return c
}

// Ping lists models, which every compatible endpoint serves.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.api.ListModels(ctx); err != nil {
		return resilience.WrapTemporary("openai ping", err, ClassifyError)
	}
	return nil
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
	resp, err := resilience.Call(ctx, e.client.executor, "openai.embed", func(ctx context.Context) (openai.EmbeddingResponse, error) {
		return e.client.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Model: openai.EmbeddingModel(e.client.embedModel),
			Input: texts,
		})
	}, ClassifyError)
	if err != nil {
		return nil, resilience.WrapTemporary("openai embed", fmt.Errorf("openai embed: %w", err), ClassifyError)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai embed: expected %d embeddings, got %d", len(texts), len(resp.Data))
	}

	out := make([][]float32, len(resp.Data))
	for _, item := range resp.Data {
		if item.Index < 0 || item.Index >= len(out) {
			return nil, fmt.Errorf("openai embed: index %d out of range", item.Index)
		}
		v := make([]float32, len(item.Embedding))
		for i := range item.Embedding {
			v[i] = float32(item.Embedding[i])
		}
		out[item.Index] = v
	}
	return out, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, errors.New("empty embedding result")
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
	c := g.client
	resp, err := resilience.Call(ctx, c.executor, "openai.chat", func(ctx context.Context) (openai.ChatCompletionResponse, error) {
		return c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: c.chatModel,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: prompt.System},
				{Role: openai.ChatMessageRoleUser, Content: prompt.User(question, passages)},
			},
			Temperature: c.temperature,
		})
	}, ClassifyError)
	if err != nil {
		return "", resilience.WrapTemporary("openai chat", fmt.Errorf("openai chat: %w", err), ClassifyError)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai chat: no choices returned")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// ClassifyError maps go-openai errors onto the shared HTTP retry policy.
func ClassifyError(err error) resilience.ErrorClassification {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return classifyStatus(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return classifyStatus(reqErr.HTTPStatusCode)
	}
	return resilience.ClassifyHTTPError(err)
}

func classifyStatus(code int) resilience.ErrorClassification {
	if resilience.IsRetryableHTTPStatus(code) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	return resilience.ErrorClassification{}
}
