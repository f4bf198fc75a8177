package embed

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/WessleyAI/docqa/engine/domain"
	"github.com/WessleyAI/docqa/pkg/resilience"
)

type mockEmbedder struct {
	mu    sync.Mutex
	calls []domain.EmbedInput
	fn    func(domain.EmbedInput) ([]float32, error)
}

func (m *mockEmbedder) Embed(_ context.Context, in domain.EmbedInput) ([]float32, error) {
	m.mu.Lock()
	m.calls = append(m.calls, in)
	m.mu.Unlock()
	if m.fn != nil {
		return m.fn(in)
	}
	return []float32{3, 4}, nil
}

func TestEmbedTextNormalizesAndPassesMode(t *testing.T) {
	m := &mockEmbedder{}
	c := New(m, nil)

	v, ok := c.EmbedText(context.Background(), "hello", ModeQuery)
	if !ok {
		t.Fatal("expected success")
	}
	if math.Abs(float64(v[0])-0.6) > 1e-6 || math.Abs(float64(v[1])-0.8) > 1e-6 {
		t.Errorf("expected unit vector, got %v", v)
	}
	if m.calls[0].Type != domain.InputQuery || m.calls[0].Text != "hello" {
		t.Errorf("unexpected call %+v", m.calls[0])
	}

	c.EmbedText(context.Background(), "doc", ModeDocument)
	if m.calls[1].Type != domain.InputDocument {
		t.Errorf("expected document mode, got %s", m.calls[1].Type)
	}
}

func TestEmbedTextFailure(t *testing.T) {
	var hooked []domain.Kind
	m := &mockEmbedder{fn: func(domain.EmbedInput) ([]float32, error) { return nil, errors.New("503") }}
	c := New(m, nil, WithFailureHook(func(k domain.Kind, _ error) { hooked = append(hooked, k) }))

	if v, ok := c.EmbedText(context.Background(), "x", ModeDocument); ok || v != nil {
		t.Fatalf("expected failure, got %v %v", v, ok)
	}
	if len(hooked) != 1 || hooked[0] != domain.KindText {
		t.Errorf("failure hook not called: %v", hooked)
	}
}

func TestEmbedEmptyVectorIsFailure(t *testing.T) {
	m := &mockEmbedder{fn: func(domain.EmbedInput) ([]float32, error) { return nil, nil }}
	if _, ok := New(m, nil).EmbedText(context.Background(), "x", ModeDocument); ok {
		t.Fatal("empty vector should be a failure")
	}
}

func TestEmbedImageDataURI(t *testing.T) {
	m := &mockEmbedder{}
	w := resilience.NewWindow(resilience.WindowOpts{MaxRequests: 10, Window: time.Minute})
	c := New(m, w)

	if _, ok := c.EmbedImage(context.Background(), "jpeg", "QUJD"); !ok {
		t.Fatal("expected success")
	}
	in := m.calls[0]
	if in.Type != domain.InputImage || in.Image != "data:image/jpeg;base64,QUJD" {
		t.Errorf("unexpected input %+v", in)
	}
}

func TestEmbedImageTakesWindowSlot(t *testing.T) {
	m := &mockEmbedder{}
	w := resilience.NewWindow(resilience.WindowOpts{MaxRequests: 2, Window: time.Hour})
	c := New(m, w)

	c.EmbedImage(context.Background(), "png", "AA==")
	for i := 0; i < 3; i++ {
		if _, ok := c.EmbedText(context.Background(), "text", ModeDocument); !ok {
			t.Fatal("text calls must not be rate limited")
		}
	}

	// The image call used one of two slots.
	if err := w.Acquire(context.Background()); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := w.Acquire(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("window should be full after one image and one acquire, got %v", err)
	}
}

func TestEmbedImageCancelledWhileWaiting(t *testing.T) {
	m := &mockEmbedder{}
	w := resilience.NewWindow(resilience.WindowOpts{MaxRequests: 1, Window: time.Hour})
	c := New(m, w)
	c.EmbedImage(context.Background(), "png", "AA==")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, ok := c.EmbedImage(ctx, "png", "AA=="); ok {
		t.Fatal("expected failure when the wait is cancelled")
	}
	if len(m.calls) != 1 {
		t.Errorf("remote should not be called after a cancelled wait, calls = %d", len(m.calls))
	}
}

func TestEmbedFragments(t *testing.T) {
	m := &mockEmbedder{fn: func(in domain.EmbedInput) ([]float32, error) {
		if strings.Contains(in.Image, "BAD") {
			return nil, errors.New("unsupported image")
		}
		return []float32{1, 0}, nil
	}}
	frags := []domain.Fragment{
		{ChunkID: 0, Kind: domain.KindText, Content: "a"},
		{ChunkID: 1, Kind: domain.KindImage, Format: "png", Data: "BAD"},
		{ChunkID: 2, Kind: domain.KindText, Content: "b"},
		{ChunkID: 3, Kind: domain.KindImage, Format: "png", Data: "OK"},
	}
	out, st := New(m, nil).EmbedFragments(context.Background(), frags, 2)

	if st.Embedded != 3 || st.Failed != 1 {
		t.Errorf("unexpected stats %+v", st)
	}
	for i, f := range out {
		if f.ChunkID != i {
			t.Errorf("order not preserved at %d: %d", i, f.ChunkID)
		}
	}
	if out[1].Embedded() {
		t.Error("failed image should carry no embedding")
	}
	if !out[0].Embedded() || !out[3].Embedded() {
		t.Error("successful fragments should carry embeddings")
	}
	if frags[0].Embedded() {
		t.Error("input slice must not be mutated")
	}
}

func TestEmbedFragmentsCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	frags := []domain.Fragment{{ChunkID: 0, Kind: domain.KindText, Content: "a"}, {ChunkID: 1, Kind: domain.KindText, Content: "b"}}
	out, st := New(&mockEmbedder{}, nil).EmbedFragments(ctx, frags, 1)
	if len(out) != 2 || out[0].ChunkID != 0 || out[1].ChunkID != 1 {
		t.Fatalf("fragments should be kept in order, got %+v", out)
	}
	if st.Embedded+st.Failed != 2 {
		t.Errorf("every fragment should be counted, got %+v", st)
	}
}

func TestNormalizeZero(t *testing.T) {
	v := Normalize([]float32{0, 0})
	if v[0] != 0 || v[1] != 0 {
		t.Errorf("zero vector changed: %v", v)
	}
}

func TestDot(t *testing.T) {
	if got := Dot([]float32{1, 2, 3}, []float32{4, 5}); got != 14 {
		t.Errorf("Dot = %v, want 14", got)
	}
}
