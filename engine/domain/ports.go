package domain

import "context"

// InputType tells the embedding model how a text will be used.
type InputType string

const (
	InputDocument InputType = "search_document"
	InputQuery    InputType = "search_query"
	InputImage    InputType = "image"
)

// EmbedInput is a single text or image to embed. Image is a data URI
// (data:image/<format>;base64,<payload>).
type EmbedInput struct {
	Text  string
	Image string
	Type  InputType
}

// Embedder is the remote embedding capability.
type Embedder interface {
	Embed(ctx context.Context, in EmbedInput) ([]float32, error)
}

// RerankHit is one reranked document, addressed by its index in the request.
type RerankHit struct {
	Index int
	Score float64
}

// Reranker is the remote relevance-reranking capability. Hits come back in
// descending relevance.
type Reranker interface {
	Rerank(ctx context.Context, query string, documents []string, limit int) ([]RerankHit, error)
}

// Generator is the remote text generation capability.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}
