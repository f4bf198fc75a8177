package docqa

import (
	"context"
	"time"

	"github.com/WessleyAI/docqa/engine/retrieve"
	"github.com/WessleyAI/docqa/engine/store"
)

// Lifecycle event names.
const (
	EventProcessed = "processed"
	EventCleared   = "cleared"
)

// EventProcessRequested is the subject suffix on which ProcessRequests are
// accepted.
const EventProcessRequested = "process"

// ProcessRequest asks for the document at Path to be processed.
type ProcessRequest struct {
	Path string `json:"path"`
}

// Publisher announces lifecycle events. natsutil.Publisher satisfies it.
type Publisher interface {
	Publish(ctx context.Context, event string, v any) error
}

// Index mirrors loaded documents into an external vector index that
// similarity search then reads from. semantic.VectorStore satisfies it.
type Index interface {
	retrieve.Index
	Index(ctx context.Context, doc *store.Document) error
	DeleteByDocID(ctx context.Context, docID string) error
}

// ProcessedEvent is published after a document is loaded.
type ProcessedEvent struct {
	DocumentID string    `json:"document_id"`
	Source     string    `json:"source"`
	Pages      int       `json:"pages"`
	Fragments  int       `json:"fragments"`
	Embedded   int       `json:"embedded"`
	Failed     int       `json:"failed"`
	LoadedAt   time.Time `json:"loaded_at"`
}

// ClearedEvent is published after the document is dropped.
type ClearedEvent struct {
	DocumentID string    `json:"document_id"`
	ClearedAt  time.Time `json:"cleared_at"`
}

func (s *Service) publish(ctx context.Context, event string, v any) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, event, v); err != nil {
		s.logger.Warn("docqa: publish event", "event", event, "err", err)
	}
}
