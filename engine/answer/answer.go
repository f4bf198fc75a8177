// Package answer composes a generated answer from the fragments retrieved
// for a question. It runs both retrieval paths, grounds the prompt on the
// reranked text, and returns the answer with its images and sources.
package answer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/WessleyAI/docqa/engine/domain"
	"github.com/WessleyAI/docqa/engine/retrieve"
)

// NoResponse is the answer text used when the generator returns nothing.
const NoResponse = "No response generated"

// Searcher runs similarity search and rerank. retrieve.Retriever satisfies it.
type Searcher interface {
	SearchBoth(ctx context.Context, query string, useRerank bool, topK int) (retrieve.Results, error)
}

// Options configures answer composition.
type Options struct {
	TopK   int
	Prompt string // fmt template taking the query then the context
}

// DefaultOptions returns the default composition options.
func DefaultOptions() Options {
	return Options{
		TopK:   retrieve.DefaultTopK,
		Prompt: defaultPrompt,
	}
}

const defaultPrompt = "Based on the following context, please answer this question: %s\n\nContext:\n%s"

// Composer answers questions about the loaded document.
type Composer struct {
	search    Searcher
	generator domain.Generator
	opts      Options
	logger    *slog.Logger
}

// New creates a Composer.
func New(search Searcher, generator domain.Generator, opts Options, logger *slog.Logger) *Composer {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Prompt == "" {
		opts.Prompt = defaultPrompt
	}
	return &Composer{search: search, generator: generator, opts: opts, logger: logger}
}

// Answer is the response to a question.
type Answer struct {
	Text    string   `json:"answer"`
	Images  []Image  `json:"images"`
	Sources []Source `json:"sources"`
}

// Image is a retrieved image shown alongside the answer.
type Image struct {
	Page            int     `json:"page"`
	Format          string  `json:"format"`
	Data            string  `json:"base64_data"`
	SimilarityScore float64 `json:"similarity_score"`
}

// Source is a fragment the answer was grounded on.
type Source struct {
	Page            int         `json:"page"`
	Kind            domain.Kind `json:"type"`
	Content         string      `json:"content"`
	SimilarityScore float64     `json:"similarity_score"`
	RelevanceScore  *float64    `json:"relevance_score,omitempty"`
}

// Answer retrieves context for query and asks the generator. Generation
// failures are reported in the answer text, not returned; the error is only
// non-nil when retrieval could not run at all.
func (c *Composer) Answer(ctx context.Context, query string) (Answer, error) {
	c.logger.Info("answer: start", "query_len", len(query))

	res, err := c.search.SearchBoth(ctx, query, true, c.opts.TopK)
	if err != nil {
		return Answer{}, fmt.Errorf("answer: %w", err)
	}

	grounding := res.RerankResults
	if len(grounding) == 0 {
		grounding = res.EmbedResults
	}

	prompt := fmt.Sprintf(c.opts.Prompt, query, buildContext(grounding))
	reply, err := c.generator.Generate(ctx, prompt)
	if err != nil {
		c.logger.Error("answer: generate", "err", err)
		return Answer{
			Text:    fmt.Sprintf("Error processing query: %v", err),
			Images:  []Image{},
			Sources: []Source{},
		}, nil
	}
	if strings.TrimSpace(reply) == "" {
		reply = NoResponse
	}

	ans := Answer{
		Text:    reply,
		Images:  collectImages(res.EmbedResults),
		Sources: collectSources(grounding),
	}
	c.logger.Info("answer: done", "sources", len(ans.Sources), "images", len(ans.Images))
	return ans, nil
}

// buildContext formats the text fragments as prompt context.
func buildContext(results []domain.SearchResult) string {
	parts := make([]string, 0, len(results))
	for _, r := range results {
		if r.Kind == domain.KindText {
			parts = append(parts, fmt.Sprintf("Content from page %d: %s", r.Page, r.Content))
		}
	}
	return strings.Join(parts, "\n\n")
}

func collectImages(results []domain.SearchResult) []Image {
	out := []Image{}
	for _, r := range results {
		if r.Kind != domain.KindImage {
			continue
		}
		out = append(out, Image{
			Page:            r.Page,
			Format:          r.Format,
			Data:            r.Data,
			SimilarityScore: deref(r.SimilarityScore),
		})
	}
	return out
}

func collectSources(results []domain.SearchResult) []Source {
	out := make([]Source, 0, len(results))
	for _, r := range results {
		content := "[Image]"
		if r.Kind == domain.KindText {
			content = r.Content
		}
		out = append(out, Source{
			Page:            r.Page,
			Kind:            r.Kind,
			Content:         content,
			SimilarityScore: deref(r.SimilarityScore),
			RelevanceScore:  r.RelevanceScore,
		})
	}
	return out
}

func deref(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}
