// Package store holds the single processed document that queries run
// against.
//
// Writers move the store through Idle -> Loading -> Ready. Only one load may
// be in progress; a second one is rejected with domain.ErrBusy. Readers never
// block and always observe either the previous or the new complete document.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/WessleyAI/docqa/engine/domain"
)

// SequenceFile is the file name Save writes.
const SequenceFile = "content_sequence.json"

// State is the lifecycle state of the store.
type State int32

const (
	Idle State = iota
	Loading
	Ready
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	default:
		return "unknown"
	}
}

// Document is a processed PDF. Fragments are read-only once committed.
type Document struct {
	ID        string
	Source    string
	Fragments []domain.Fragment
	LoadedAt  time.Time
}

// NewDocument wraps a fragment sequence with a fresh id.
func NewDocument(source string, frags []domain.Fragment) *Document {
	return &Document{
		ID:        uuid.NewString(),
		Source:    source,
		Fragments: frags,
		LoadedAt:  time.Now(),
	}
}

// Store is safe for concurrent use.
type Store struct {
	mu    sync.Mutex // serializes transitions
	state atomic.Int32
	doc   atomic.Pointer[Document]
}

// New returns an empty store.
func New() *Store { return &Store{} }

// State returns the current state.
func (s *Store) State() State { return State(s.state.Load()) }

// Begin starts a load. It fails with domain.ErrBusy if one is in progress.
func (s *Store) Begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.State() == Loading {
		return domain.ErrBusy
	}
	s.state.Store(int32(Loading))
	return nil
}

// Commit publishes doc and ends the load started by Begin.
func (s *Store) Commit(doc *Document) error {
	if doc == nil {
		return fmt.Errorf("store: commit: nil document")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.State() != Loading {
		return fmt.Errorf("store: commit: not loading (state=%s)", s.State())
	}
	s.doc.Store(doc)
	s.state.Store(int32(Ready))
	return nil
}

// Abort ends the load started by Begin and keeps the previous document.
func (s *Store) Abort() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.State() != Loading {
		return
	}
	s.state.Store(int32(s.settled()))
}

// Load replaces the document in one step.
func (s *Store) Load(doc *Document) error {
	if err := s.Begin(); err != nil {
		return err
	}
	if err := s.Commit(doc); err != nil {
		s.Abort()
		return err
	}
	return nil
}

// Get returns the current document, or domain.ErrNoDocument.
func (s *Store) Get() (*Document, error) {
	doc := s.doc.Load()
	if doc == nil {
		return nil, domain.ErrNoDocument
	}
	return doc, nil
}

// Clear drops the document and returns it, or nil if none was loaded. It
// fails with domain.ErrBusy during a load.
func (s *Store) Clear() (*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.State() == Loading {
		return nil, domain.ErrBusy
	}
	prev := s.doc.Swap(nil)
	s.state.Store(int32(Idle))
	return prev, nil
}

func (s *Store) settled() State {
	if s.doc.Load() != nil {
		return Ready
	}
	return Idle
}

// Save writes the current fragment sequence, without embeddings, to
// dir/content_sequence.json and returns the file path.
func (s *Store) Save(dir string) (string, error) {
	doc, err := s.Get()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("store: save: %w", err)
	}
	data, err := json.MarshalIndent(domain.Strip(doc.Fragments), "", "  ")
	if err != nil {
		return "", fmt.Errorf("store: save: %w", err)
	}
	path := filepath.Join(dir, SequenceFile)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("store: save: %w", err)
	}
	return path, nil
}
