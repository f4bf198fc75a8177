// Package provider builds the remote model clients selected by config.
package provider

import (
	"time"

	"github.com/WessleyAI/docqa/engine/domain"
	"github.com/WessleyAI/docqa/pkg/cohere"
	"github.com/WessleyAI/docqa/pkg/config"
	"github.com/WessleyAI/docqa/pkg/ollama"
)

// Models holds the clients for one provider. Reranker is nil when the
// provider has no rerank endpoint.
type Models struct {
	Embedder  domain.Embedder
	Reranker  domain.Reranker
	Generator domain.Generator
}

// New returns the clients for cfg.Provider.
func New(cfg *config.Config) Models {
	if cfg.Provider == config.ProviderOllama {
		return Models{
			Embedder:  ollama.NewEmbedClient(cfg.Ollama.URL, cfg.Ollama.EmbedModel),
			Generator: ollama.NewGenerateClient(cfg.Ollama.URL, cfg.Ollama.ChatModel),
		}
	}
	c := cohere.New(cohere.Config{
		BaseURL:     cfg.Cohere.BaseURL,
		APIKey:      cfg.Cohere.APIKey(),
		EmbedModel:  cfg.Cohere.EmbedModel,
		RerankModel: cfg.Cohere.RerankModel,
		ChatModel:   cfg.Cohere.ChatModel,
		Timeout:     time.Duration(cfg.Cohere.TimeoutSecs) * time.Second,
	})
	return Models{Embedder: c, Reranker: c, Generator: c}
}
