// Package cohere adapts Cohere's v2 embed, rerank and chat endpoints to the
// domain Embedder, Reranker and Generator ports. Calls are retried on
// throttling and server errors and guarded by a circuit breaker.
package cohere

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	cohere "github.com/cohere-ai/cohere-go/v2"
	"github.com/cohere-ai/cohere-go/v2/core"
	"github.com/cohere-ai/cohere-go/v2/option"
	coherev2 "github.com/cohere-ai/cohere-go/v2/v2"

	"github.com/WessleyAI/docqa/engine/domain"
	"github.com/WessleyAI/docqa/pkg/fn"
	"github.com/WessleyAI/docqa/pkg/resilience"
)

const DefaultBaseURL = "https://api.cohere.com"

// Default models, matching what the service was built against.
const (
	DefaultEmbedModel  = "embed-english-v3.0"
	DefaultRerankModel = "rerank-v3.5"
	DefaultChatModel   = "command-r-plus"
)

// Retryable reports whether err is worth retrying: throttling, timeouts,
// server errors and transport failures.
func Retryable(err error) bool {
	var apiErr *core.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.StatusCode
		return code == http.StatusTooManyRequests || code == http.StatusRequestTimeout || code >= 500
	}
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return false
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// Config configures a Client.
type Config struct {
	BaseURL     string
	APIKey      string
	EmbedModel  string
	RerankModel string
	ChatModel   string
	Timeout     time.Duration
}

// Client talks to the Cohere API.
type Client struct {
	cfg     Config
	api     *coherev2.Client
	retry   fn.RetryOpts
	breaker *resilience.Breaker
}

// New creates a Client, filling unset config with defaults. An empty APIKey
// falls back to the SDK's CO_API_KEY variable.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.EmbedModel == "" {
		cfg.EmbedModel = DefaultEmbedModel
	}
	if cfg.RerankModel == "" {
		cfg.RerankModel = DefaultRerankModel
	}
	if cfg.ChatModel == "" {
		cfg.ChatModel = DefaultChatModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}

	opts := []option.RequestOption{
		option.WithBaseURL(cfg.BaseURL),
		option.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
		// fn.Retry owns retries.
		option.WithMaxAttempts(1),
	}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithToken(cfg.APIKey))
	}

	retry := fn.DefaultRetry
	retry.Retryable = Retryable
	return &Client{
		cfg:   cfg,
		api:   coherev2.NewClient(opts...),
		retry: retry,
		breaker: resilience.NewBreaker(resilience.BreakerOpts{
			FailThreshold: 5,
			Timeout:       30 * time.Second,
			IsFailure:     Retryable,
		}),
	}
}

var (
	_ domain.Embedder  = (*Client)(nil)
	_ domain.Reranker  = (*Client)(nil)
	_ domain.Generator = (*Client)(nil)
)

// Embed implements domain.Embedder.
func (c *Client) Embed(ctx context.Context, in domain.EmbedInput) ([]float32, error) {
	req := &cohere.V2EmbedRequest{
		Model:          c.cfg.EmbedModel,
		InputType:      cohere.EmbedInputType(in.Type),
		EmbeddingTypes: []cohere.EmbeddingType{cohere.EmbeddingTypeFloat},
	}
	if in.Image != "" {
		req.InputType = cohere.EmbedInputTypeImage
		req.Images = []string{in.Image}
	} else {
		req.Texts = []string{in.Text}
	}

	resp, err := call(ctx, c, func(ctx context.Context) (*cohere.EmbedByTypeResponse, error) {
		return c.api.Embed(ctx, req)
	})
	if err != nil {
		return nil, fmt.Errorf("cohere embed: %w", err)
	}
	if resp.Embeddings == nil || len(resp.Embeddings.Float) == 0 {
		return nil, errors.New("cohere embed: no embeddings returned")
	}
	src := resp.Embeddings.Float[0]
	vec := make([]float32, len(src))
	for i, v := range src {
		vec[i] = float32(v)
	}
	return vec, nil
}

// Rerank implements domain.Reranker.
func (c *Client) Rerank(ctx context.Context, query string, documents []string, limit int) ([]domain.RerankHit, error) {
	req := &cohere.V2RerankRequest{Model: c.cfg.RerankModel, Query: query, Documents: documents}
	if limit > 0 {
		req.TopN = &limit
	}
	resp, err := call(ctx, c, func(ctx context.Context) (*cohere.V2RerankResponse, error) {
		return c.api.Rerank(ctx, req)
	})
	if err != nil {
		return nil, fmt.Errorf("cohere rerank: %w", err)
	}
	hits := make([]domain.RerankHit, 0, len(resp.Results))
	for _, r := range resp.Results {
		if r == nil {
			continue
		}
		hits = append(hits, domain.RerankHit{Index: r.Index, Score: r.RelevanceScore})
	}
	return hits, nil
}

// Generate implements domain.Generator. Text parts of the reply are joined
// with spaces.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	req := &cohere.V2ChatRequest{
		Model: c.cfg.ChatModel,
		Messages: cohere.ChatMessages{{
			Role: "user",
			User: &cohere.UserMessage{Content: &cohere.UserMessageContent{String: prompt}},
		}},
	}
	resp, err := call(ctx, c, func(ctx context.Context) (*cohere.ChatResponse, error) {
		return c.api.Chat(ctx, req)
	})
	if err != nil {
		return "", fmt.Errorf("cohere chat: %w", err)
	}
	if resp.Message == nil {
		return "", nil
	}
	var parts []string
	for _, item := range resp.Message.Content {
		if item != nil && item.Text != nil {
			parts = append(parts, item.Text.Text)
		}
	}
	return strings.Join(parts, " "), nil
}

// call runs f under the client's retry policy and circuit breaker.
func call[T any](ctx context.Context, c *Client, f func(context.Context) (T, error)) (T, error) {
	return fn.Retry(ctx, c.retry, func(ctx context.Context) fn.Result[T] {
		return fn.FromPair(resilience.Do(ctx, c.breaker, f))
	}).Unwrap()
}
