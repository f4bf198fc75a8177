package semantic

import "github.com/WessleyAI/docqa/engine/domain"

// SearchResult is a fragment found in the collection. Image data is not
// stored, so image hits carry only their format and position.
type SearchResult struct {
	ID      string      `json:"id"`
	Score   float32     `json:"score"`
	DocID   string      `json:"doc_id"`
	Source  string      `json:"source"`
	ChunkID int         `json:"chunk_id"`
	Page    int         `json:"page"`
	Kind    domain.Kind `json:"type"`
	Content string      `json:"content,omitempty"`
	Format  string      `json:"format,omitempty"`
}

// VectorRecord represents a single vector to store in Qdrant.
type VectorRecord struct {
	ID        string
	Embedding []float32
	Payload   map[string]any // doc_id, source, chunk_id, page, type, content|format
}
