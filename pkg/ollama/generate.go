package ollama

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// GenerateClient implements domain.Generator using /api/generate.
type GenerateClient struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewGenerateClient creates an Ollama generation client.
func NewGenerateClient(baseURL, model string) *GenerateClient {
	return &GenerateClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client:  &http.Client{},
	}
}

type generateReq struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResp struct {
	Response string `json:"response"`
}

// Generate implements domain.Generator.
func (c *GenerateClient) Generate(ctx context.Context, prompt string) (string, error) {
	var result generateResp
	if err := post(ctx, c.client, c.baseURL+"/api/generate", generateReq{Model: c.model, Prompt: prompt}, &result); err != nil {
		return "", fmt.Errorf("ollama generate: %w", err)
	}
	return result.Response, nil
}
