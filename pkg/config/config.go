// Package config loads service configuration from an optional YAML file and
// environment variables. Environment variables win over the file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Providers of remote models.
const (
	ProviderCohere = "cohere"
	ProviderOllama = "ollama"
)

// CohereConfig configures the hosted Cohere API.
type CohereConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	EmbedModel  string `yaml:"embed_model"`
	RerankModel string `yaml:"rerank_model"`
	ChatModel   string `yaml:"chat_model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// APIKey reads the key from the configured environment variable.
func (c CohereConfig) APIKey() string { return os.Getenv(c.APIKeyEnv) }

// OllamaConfig configures a local Ollama server.
type OllamaConfig struct {
	URL        string `yaml:"url"`
	EmbedModel string `yaml:"embed_model"`
	ChatModel  string `yaml:"chat_model"`
}

// ProcessingConfig controls extraction and embedding.
type ProcessingConfig struct {
	ChunkSize        int `yaml:"chunk_size"`
	TopK             int `yaml:"top_k"`
	EmbedWorkers     int `yaml:"embed_workers"`
	ImageRateLimit   int `yaml:"image_rate_limit"`
	ImageRateWindowS int `yaml:"image_rate_window_secs"`
	TimeoutSecs      int `yaml:"timeout_secs"`
}

// ImageWindow returns the image rate-limit window.
func (p ProcessingConfig) ImageWindow() time.Duration {
	return time.Duration(p.ImageRateWindowS) * time.Second
}

// Timeout returns the per-document processing timeout.
func (p ProcessingConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutSecs) * time.Second
}

// QdrantConfig enables the Qdrant mirror when URL is set.
type QdrantConfig struct {
	URL        string `yaml:"url"`
	Collection string `yaml:"collection"`
}

// NATSConfig enables lifecycle events when URL is set.
type NATSConfig struct {
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// HTTPConfig configures the API server.
type HTTPConfig struct {
	Port       string  `yaml:"port"`
	CORSOrigin string  `yaml:"cors_origin"`
	RateLimit  float64 `yaml:"rate_limit"` // requests per second per client, 0 disables
	RateBurst  int     `yaml:"rate_burst"`
}

// Config is the root configuration.
type Config struct {
	Provider   string           `yaml:"provider"`
	Cohere     CohereConfig     `yaml:"cohere"`
	Ollama     OllamaConfig     `yaml:"ollama"`
	Processing ProcessingConfig `yaml:"processing"`
	Qdrant     QdrantConfig     `yaml:"qdrant"`
	NATS       NATSConfig       `yaml:"nats"`
	HTTP       HTTPConfig       `yaml:"http"`
	OutputDir  string           `yaml:"output_dir"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Provider: ProviderCohere,
		Cohere: CohereConfig{
			BaseURL:     "https://api.cohere.com",
			APIKeyEnv:   "COHERE_API_KEY",
			EmbedModel:  "embed-english-v3.0",
			RerankModel: "rerank-v3.5",
			ChatModel:   "command-r-plus",
			TimeoutSecs: 60,
		},
		Ollama: OllamaConfig{
			URL:        "http://localhost:11434",
			EmbedModel: "nomic-embed-text",
			ChatModel:  "llama3",
		},
		Processing: ProcessingConfig{
			ChunkSize:        1000,
			TopK:             5,
			EmbedWorkers:     4,
			ImageRateLimit:   40,
			ImageRateWindowS: 60,
			TimeoutSecs:      600,
		},
		Qdrant:    QdrantConfig{Collection: "docqa"},
		NATS:      NATSConfig{SubjectPrefix: "docqa.document"},
		HTTP:      HTTPConfig{Port: "8080", CORSOrigin: "*", RateLimit: 5, RateBurst: 10},
		OutputDir: "output",
	}
}

// Load reads path over the defaults, then applies environment overrides.
// A missing file is not an error; an empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("config: parse %s: %w", path, err)
			}
		}
	}
	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(c *Config) {
	c.Provider = envOr("DOCQA_PROVIDER", c.Provider)
	c.Cohere.BaseURL = envOr("COHERE_BASE_URL", c.Cohere.BaseURL)
	c.Ollama.URL = envOr("OLLAMA_URL", c.Ollama.URL)
	c.Processing.ChunkSize = envInt("DOCQA_CHUNK_SIZE", c.Processing.ChunkSize)
	c.Processing.TopK = envInt("DOCQA_TOP_K", c.Processing.TopK)
	c.Processing.EmbedWorkers = envInt("DOCQA_EMBED_WORKERS", c.Processing.EmbedWorkers)
	c.Processing.ImageRateLimit = envInt("DOCQA_IMAGE_RATE_LIMIT", c.Processing.ImageRateLimit)
	c.Qdrant.URL = envOr("QDRANT_URL", c.Qdrant.URL)
	c.Qdrant.Collection = envOr("QDRANT_COLLECTION", c.Qdrant.Collection)
	c.NATS.URL = envOr("NATS_URL", c.NATS.URL)
	c.HTTP.Port = envOr("PORT", c.HTTP.Port)
	c.HTTP.CORSOrigin = envOr("CORS_ORIGIN", c.HTTP.CORSOrigin)
	c.OutputDir = envOr("DOCQA_OUTPUT_DIR", c.OutputDir)
}

// Validate rejects configurations the service cannot run with.
func (c *Config) Validate() error {
	switch c.Provider {
	case ProviderCohere, ProviderOllama:
	default:
		return fmt.Errorf("config: unknown provider %q", c.Provider)
	}
	if c.Processing.ImageRateLimit <= 0 || c.Processing.ImageRateWindowS <= 0 {
		return fmt.Errorf("config: image rate limit and window must be positive")
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
