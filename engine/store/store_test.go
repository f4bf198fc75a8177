package store

import (
	"encoding/json"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/WessleyAI/docqa/engine/domain"
)

func doc(n int) *Document {
	frags := make([]domain.Fragment, n)
	for i := range frags {
		frags[i] = domain.Fragment{ChunkID: i, Page: 1, Kind: domain.KindText, Content: "c", Embedding: []float32{1}}
	}
	return NewDocument("test.pdf", frags)
}

func TestEmptyStore(t *testing.T) {
	s := New()
	if s.State() != Idle {
		t.Errorf("expected idle, got %s", s.State())
	}
	if _, err := s.Get(); !errors.Is(err, domain.ErrNoDocument) {
		t.Errorf("expected ErrNoDocument, got %v", err)
	}
}

func TestLoadAndGet(t *testing.T) {
	s := New()
	d := doc(3)
	if err := s.Load(d); err != nil {
		t.Fatal(err)
	}
	got, err := s.Get()
	if err != nil || got != d {
		t.Fatalf("Get = %v, %v", got, err)
	}
	if s.State() != Ready {
		t.Errorf("expected ready, got %s", s.State())
	}
	if d.ID == "" || d.LoadedAt.IsZero() {
		t.Error("document id and load time should be set")
	}
}

func TestBeginWhileLoadingIsBusy(t *testing.T) {
	s := New()
	if err := s.Begin(); err != nil {
		t.Fatal(err)
	}
	if err := s.Begin(); !errors.Is(err, domain.ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	if _, err := s.Clear(); !errors.Is(err, domain.ErrBusy) {
		t.Fatalf("expected ErrBusy from Clear, got %v", err)
	}
	if err := s.Load(doc(1)); !errors.Is(err, domain.ErrBusy) {
		t.Fatalf("expected ErrBusy from Load, got %v", err)
	}
}

func TestReadersSeePreviousDocumentDuringLoad(t *testing.T) {
	s := New()
	old := doc(1)
	s.Load(old)

	s.Begin()
	if got, _ := s.Get(); got != old {
		t.Error("readers should keep seeing the previous document")
	}
	next := doc(2)
	s.Commit(next)
	if got, _ := s.Get(); got != next {
		t.Error("readers should see the new document after commit")
	}
}

func TestAbortRestoresState(t *testing.T) {
	s := New()
	s.Begin()
	s.Abort()
	if s.State() != Idle {
		t.Errorf("expected idle after abort, got %s", s.State())
	}

	s.Load(doc(1))
	s.Begin()
	s.Abort()
	if s.State() != Ready {
		t.Errorf("expected ready after abort, got %s", s.State())
	}
}

func TestCommitWithoutBegin(t *testing.T) {
	if err := New().Commit(doc(1)); err == nil {
		t.Fatal("expected error")
	}
}

func TestClear(t *testing.T) {
	s := New()
	d := doc(1)
	s.Load(d)
	prev, err := s.Clear()
	if err != nil || prev != d {
		t.Fatalf("Clear = %v, %v", prev, err)
	}
	if prev, _ := s.Clear(); prev != nil {
		t.Error("second clear should return nil")
	}
	if _, err := s.Get(); !errors.Is(err, domain.ErrNoDocument) {
		t.Errorf("expected ErrNoDocument after clear, got %v", err)
	}
}

func TestConcurrentBeginOnlyOneWins(t *testing.T) {
	s := New()
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.Begin() == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins)
	}
}

func TestSaveStripsEmbeddings(t *testing.T) {
	s := New()
	d := doc(2)
	d.Fragments = append(d.Fragments, domain.Fragment{
		ChunkID: 2, Page: 1, Kind: domain.KindImage, Format: "png", Data: "AA==", SourceIndex: domain.ImageIndex(0),
	})
	s.Load(d)

	path, err := s.Save(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(raw), "embedding") {
		t.Error("saved sequence must not contain embeddings")
	}
	var items []map[string]any
	if err := json.Unmarshal(raw, &items); err != nil {
		t.Fatal(err)
	}
	if len(items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(items))
	}
	if items[2]["type"] != "image" || items[2]["index"] != float64(0) {
		t.Errorf("unexpected image item %v", items[2])
	}
	if _, ok := items[0]["index"]; ok {
		t.Errorf("text item should not carry an image index: %v", items[0])
	}
	if !d.Fragments[0].Embedded() {
		t.Error("save must not strip the stored document")
	}
}

func TestSaveWithoutDocument(t *testing.T) {
	if _, err := New().Save(t.TempDir()); !errors.Is(err, domain.ErrNoDocument) {
		t.Fatalf("expected ErrNoDocument, got %v", err)
	}
}
