package provider

import (
	"testing"

	"github.com/WessleyAI/docqa/pkg/cohere"
	"github.com/WessleyAI/docqa/pkg/config"
	"github.com/WessleyAI/docqa/pkg/ollama"
)

func TestNewCohere(t *testing.T) {
	m := New(config.Default())
	if _, ok := m.Embedder.(*cohere.Client); !ok {
		t.Errorf("embedder = %T", m.Embedder)
	}
	if m.Reranker == nil || m.Generator == nil {
		t.Errorf("models = %+v", m)
	}
}

func TestNewOllama(t *testing.T) {
	cfg := config.Default()
	cfg.Provider = config.ProviderOllama
	m := New(cfg)
	if _, ok := m.Embedder.(*ollama.EmbedClient); !ok {
		t.Errorf("embedder = %T", m.Embedder)
	}
	if _, ok := m.Generator.(*ollama.GenerateClient); !ok {
		t.Errorf("generator = %T", m.Generator)
	}
	if m.Reranker != nil {
		t.Error("ollama has no reranker")
	}
}
