// Package embed computes unit-length embeddings for text and images, rate
// limiting image calls and absorbing remote failures.
package embed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/WessleyAI/docqa/engine/domain"
	"github.com/WessleyAI/docqa/pkg/fn"
	"github.com/WessleyAI/docqa/pkg/resilience"
)

// Mode selects how a text embedding will be used.
type Mode int

const (
	ModeDocument Mode = iota
	ModeQuery
)

func (m Mode) inputType() domain.InputType {
	if m == ModeQuery {
		return domain.InputQuery
	}
	return domain.InputDocument
}

// DefaultWorkers bounds concurrent embedding calls for a document.
const DefaultWorkers = 4

var errEmptyVector = errors.New("empty embedding returned")

// Client wraps a remote Embedder.
type Client struct {
	embedder  domain.Embedder
	images    *resilience.Window
	onFailure func(kind domain.Kind, err error)
	logger    *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(c *Client) { c.logger = l } }

// WithFailureHook is called for every embedding that failed.
func WithFailureHook(f func(kind domain.Kind, err error)) Option {
	return func(c *Client) { c.onFailure = f }
}

// New creates a Client. Image embeddings acquire a slot from images before
// every remote call; a nil window disables limiting.
func New(embedder domain.Embedder, images *resilience.Window, opts ...Option) *Client {
	c := &Client{embedder: embedder, images: images}
	for _, o := range opts {
		o(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// EmbedText embeds text. ok is false when the call failed.
func (c *Client) EmbedText(ctx context.Context, text string, mode Mode) ([]float32, bool) {
	v, err := c.embed(ctx, domain.EmbedInput{Text: text, Type: mode.inputType()})
	if err != nil {
		c.failed(domain.KindText, err)
		return nil, false
	}
	return v, true
}

// EmbedImage embeds a base64 image of the given format.
func (c *Client) EmbedImage(ctx context.Context, format, data string) ([]float32, bool) {
	if c.images != nil {
		if err := c.images.Acquire(ctx); err != nil {
			c.failed(domain.KindImage, fmt.Errorf("rate limit: %w", err))
			return nil, false
		}
	}
	uri := fmt.Sprintf("data:image/%s;base64,%s", format, data)
	v, err := c.embed(ctx, domain.EmbedInput{Image: uri, Type: domain.InputImage})
	if err != nil {
		c.failed(domain.KindImage, err)
		return nil, false
	}
	return v, true
}

func (c *Client) embed(ctx context.Context, in domain.EmbedInput) ([]float32, error) {
	v, err := c.embedder.Embed(ctx, in)
	if err != nil {
		return nil, err
	}
	if len(v) == 0 {
		return nil, errEmptyVector
	}
	return Normalize(v), nil
}

func (c *Client) failed(kind domain.Kind, err error) {
	c.logger.Warn("embed: failed", "kind", kind, "err", err)
	if c.onFailure != nil {
		c.onFailure(kind, err)
	}
}

// Stats counts the outcome of EmbedFragments.
type Stats struct {
	Embedded int
	Failed   int
}

// EmbedFragments embeds every fragment in document mode using up to workers
// concurrent calls. The result has the same order and chunk ids as frags;
// fragments whose embedding failed are returned without one.
func (c *Client) EmbedFragments(ctx context.Context, frags []domain.Fragment, workers int) ([]domain.Fragment, Stats) {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	out := fn.ParMap(ctx, frags, workers, func(ctx context.Context, _ int, f domain.Fragment) domain.Fragment {
		var (
			v  []float32
			ok bool
		)
		switch f.Kind {
		case domain.KindText:
			v, ok = c.EmbedText(ctx, f.Content, ModeDocument)
		case domain.KindImage:
			v, ok = c.EmbedImage(ctx, f.Format, f.Data)
		}
		if ok {
			f.Embedding = v
		}
		return f
	})

	var st Stats
	for i := range out {
		if out[i].Kind == "" {
			// never started because ctx was cancelled
			out[i] = frags[i].Stripped()
		}
		if out[i].Embedded() {
			st.Embedded++
		} else {
			st.Failed++
		}
	}
	return out, st
}

// Normalize scales v to unit length in place and returns it. A zero vector
// is returned unchanged.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	inv := 1 / math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) * inv)
	}
	return v
}

// Dot returns the dot product of a and b over their common length.
func Dot(a, b []float32) float64 {
	n := min(len(a), len(b))
	var s float64
	for i := 0; i < n; i++ {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}
