// Package ollama provides Ollama-backed implementations of the domain
// Embedder and Generator for running without a hosted model API.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/WessleyAI/docqa/engine/domain"
)

// ErrImagesUnsupported is returned for image inputs; Ollama's embedding
// endpoint only accepts text.
var ErrImagesUnsupported = errors.New("ollama: image embeddings not supported")

// Task prefixes understood by nomic-embed-text.
var taskPrefix = map[domain.InputType]string{
	domain.InputDocument: "search_document: ",
	domain.InputQuery:    "search_query: ",
}

// EmbedClient implements domain.Embedder using Ollama's HTTP API.
type EmbedClient struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewEmbedClient creates an Ollama embedding client.
func NewEmbedClient(baseURL, model string) *EmbedClient {
	return &EmbedClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client:  &http.Client{},
	}
}

type ollamaEmbedReq struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbedResp struct {
	Embedding []float64 `json:"embedding"`
}

// Embed implements domain.Embedder.
func (c *EmbedClient) Embed(ctx context.Context, in domain.EmbedInput) ([]float32, error) {
	if in.Image != "" {
		return nil, ErrImagesUnsupported
	}

	var result ollamaEmbedResp
	if err := post(ctx, c.client, c.baseURL+"/api/embeddings", ollamaEmbedReq{Model: c.model, Prompt: taskPrefix[in.Type] + in.Text}, &result); err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}

	out := make([]float32, len(result.Embedding))
	for i, v := range result.Embedding {
		out[i] = float32(v)
	}
	return out, nil
}

func post(ctx context.Context, client *http.Client, url string, in, out any) error {
	body, _ := json.Marshal(in)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}
