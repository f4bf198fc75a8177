// Package docqa is the document question-answering service. It processes a
// PDF into embedded fragments, holds the result, and answers searches and
// questions against it.
package docqa

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/WessleyAI/docqa/engine/answer"
	"github.com/WessleyAI/docqa/engine/domain"
	"github.com/WessleyAI/docqa/engine/embed"
	"github.com/WessleyAI/docqa/engine/extract"
	"github.com/WessleyAI/docqa/engine/retrieve"
	"github.com/WessleyAI/docqa/engine/store"
	"github.com/WessleyAI/docqa/pkg/fn"
	"github.com/WessleyAI/docqa/pkg/metrics"
	"github.com/WessleyAI/docqa/pkg/resilience"
)

// Deps are the collaborators the service is built from. Open, Embedder and
// Generator are required.
type Deps struct {
	Open      extract.Opener
	Embedder  domain.Embedder
	Reranker  domain.Reranker
	Generator domain.Generator

	Index   Index     // optional
	Events  Publisher // optional
	Metrics *metrics.Registry
}

// Options tunes processing and retrieval.
type Options struct {
	ChunkSize      int
	TopK           int
	EmbedWorkers   int
	ImageLimit     resilience.WindowOpts
	ProcessTimeout time.Duration
	OutputDir      string
}

// DefaultOptions returns the default options.
func DefaultOptions() Options {
	return Options{
		TopK:         retrieve.DefaultTopK,
		EmbedWorkers: embed.DefaultWorkers,
		ImageLimit:   resilience.DefaultImageWindow,
		OutputDir:    "output",
	}
}

// Service is safe for concurrent use. Only one document is processed at a
// time; searches keep running against the previous document meanwhile.
type Service struct {
	extractor *extract.Extractor
	embedder  *embed.Client
	store     *store.Store
	retriever *retrieve.Retriever
	composer  *answer.Composer
	index     Index
	events    Publisher
	metrics   *serviceMetrics
	opts      Options
	logger    *slog.Logger
}

// New creates a Service.
func New(deps Deps, opts Options, logger *slog.Logger) (*Service, error) {
	if deps.Open == nil || deps.Embedder == nil || deps.Generator == nil {
		return nil, errors.New("docqa: opener, embedder and generator are required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if opts.TopK <= 0 {
		opts.TopK = retrieve.DefaultTopK
	}
	m := newServiceMetrics(deps.Metrics)

	s := &Service{
		store:   store.New(),
		index:   deps.Index,
		events:  deps.Events,
		metrics: m,
		opts:    opts,
		logger:  logger,
	}
	s.extractor = extract.New(deps.Open,
		extract.WithChunkSize(opts.ChunkSize),
		extract.WithLogger(logger),
		extract.WithFailureHook(func(_ int, stage string, _ error) { m.extractFailure(stage) }),
	)
	s.embedder = embed.New(deps.Embedder, resilience.NewWindow(opts.ImageLimit),
		embed.WithLogger(logger),
		embed.WithFailureHook(func(kind domain.Kind, _ error) { m.embedFailure(kind) }),
	)
	var ropts []retrieve.Option
	if deps.Index != nil {
		ropts = append(ropts, retrieve.WithIndex(deps.Index))
	}
	s.retriever = retrieve.New(s.store, s.embedder, deps.Reranker, logger, ropts...)
	s.composer = answer.New(s.retriever, deps.Generator, answer.Options{TopK: opts.TopK}, logger)
	return s, nil
}

// Summary describes a processed document. Fragments carry no embeddings.
type Summary struct {
	DocumentID string            `json:"document_id"`
	Source     string            `json:"source"`
	Pages      int               `json:"pages"`
	TextCount  int               `json:"text_count"`
	ImageCount int               `json:"image_count"`
	Embedded   int               `json:"embedded"`
	Failed     int               `json:"failed"`
	Duration   time.Duration     `json:"duration_ns"`
	Fragments  []domain.Fragment `json:"content_sequence"`
}

type embedded struct {
	frags []domain.Fragment
	stats embed.Stats
}

// ProcessDocument extracts, embeds and loads the PDF at path, replacing the
// current document. It fails with domain.ErrBusy while another document is
// being processed, and only fails otherwise when the file cannot be opened.
func (s *Service) ProcessDocument(ctx context.Context, path string) (Summary, error) {
	if strings.TrimSpace(path) == "" {
		return Summary{}, domain.NewValidationError("path", path, domain.ErrNoPath)
	}
	if err := s.store.Begin(); err != nil {
		s.metrics.busyRejections.Inc()
		return Summary{}, err
	}
	committed := false
	defer func() {
		if !committed {
			s.store.Abort()
		}
	}()

	if s.opts.ProcessTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.ProcessTimeout)
		defer cancel()
	}

	start := time.Now()
	s.logger.Info("docqa: processing document", "path", path)

	pipeline := fn.Then(
		fn.TracedStage("docqa.extract", s.extractStage),
		fn.TracedStage("docqa.embed", s.embedStage),
	)
	out, err := pipeline(ctx, path).Unwrap()
	if err != nil {
		s.metrics.processFailures.Inc()
		return Summary{}, fmt.Errorf("docqa: process %s: %w", path, err)
	}

	prev, _ := s.store.Get()
	doc := store.NewDocument(path, out.frags)
	if err := s.store.Commit(doc); err != nil {
		s.metrics.processFailures.Inc()
		return Summary{}, fmt.Errorf("docqa: %w", err)
	}
	committed = true

	s.mirror(ctx, prev, doc)

	sum := summarize(doc, out.stats, time.Since(start))
	s.metrics.processed.Inc()
	s.metrics.processSeconds.Since(start)
	s.metrics.documentSize.Set(int64(len(doc.Fragments)))
	s.publish(ctx, EventProcessed, ProcessedEvent{
		DocumentID: doc.ID,
		Source:     doc.Source,
		Pages:      sum.Pages,
		Fragments:  len(doc.Fragments),
		Embedded:   sum.Embedded,
		Failed:     sum.Failed,
		LoadedAt:   doc.LoadedAt,
	})
	s.logger.Info("docqa: document loaded",
		"document_id", doc.ID, "fragments", len(doc.Fragments),
		"embedded", sum.Embedded, "failed", sum.Failed, "duration", sum.Duration)
	return sum, nil
}

func (s *Service) extractStage(ctx context.Context, path string) fn.Result[[]domain.Fragment] {
	frags, err := s.extractor.Extract(ctx, path)
	if err != nil {
		return fn.Err[[]domain.Fragment](err)
	}
	for _, f := range frags {
		s.metrics.fragment(f.Kind)
	}
	return fn.Ok(frags)
}

func (s *Service) embedStage(ctx context.Context, frags []domain.Fragment) fn.Result[embedded] {
	out, stats := s.embedder.EmbedFragments(ctx, frags, s.opts.EmbedWorkers)
	if err := ctx.Err(); err != nil {
		return fn.Err[embedded](err)
	}
	return fn.Ok(embedded{frags: out, stats: stats})
}

// mirror replaces prev with doc in the external index. Failures only log.
func (s *Service) mirror(ctx context.Context, prev, doc *store.Document) {
	if s.index == nil {
		return
	}
	if prev != nil {
		if err := s.index.DeleteByDocID(ctx, prev.ID); err != nil {
			s.logger.Warn("docqa: index delete", "document_id", prev.ID, "err", err)
		}
	}
	if err := s.index.Index(ctx, doc); err != nil {
		s.logger.Warn("docqa: index document", "document_id", doc.ID, "err", err)
	}
}

func summarize(doc *store.Document, stats embed.Stats, d time.Duration) Summary {
	sum := Summary{
		DocumentID: doc.ID,
		Source:     doc.Source,
		Embedded:   stats.Embedded,
		Failed:     stats.Failed,
		Duration:   d,
		Fragments:  domain.Strip(doc.Fragments),
	}
	for _, f := range doc.Fragments {
		sum.Pages = max(sum.Pages, f.Page)
		if f.Kind == domain.KindText {
			sum.TextCount++
		} else {
			sum.ImageCount++
		}
	}
	return sum
}

// Query searches the loaded document by similarity and, optionally, rerank.
func (s *Service) Query(ctx context.Context, text string, useRerank bool) (retrieve.Results, error) {
	if err := s.checkQuery(text); err != nil {
		return retrieve.Results{}, err
	}
	start := time.Now()
	defer s.metrics.searchSeconds.Since(start)

	res, err := s.retriever.SearchBoth(ctx, text, useRerank, s.opts.TopK)
	if err != nil {
		return retrieve.Results{}, s.mapErr(err)
	}
	if res.Err != nil {
		s.metrics.remoteFailures.Inc()
	}
	return res, nil
}

// Ask answers a natural-language question about the loaded document.
func (s *Service) Ask(ctx context.Context, text string) (answer.Answer, error) {
	if err := s.checkQuery(text); err != nil {
		return answer.Answer{}, err
	}
	start := time.Now()
	defer s.metrics.askSeconds.Since(start)

	ans, err := s.composer.Answer(ctx, text)
	if err != nil {
		return answer.Answer{}, s.mapErr(err)
	}
	return ans, nil
}

func (s *Service) checkQuery(text string) error {
	if strings.TrimSpace(text) == "" {
		return domain.NewValidationError("query", "", domain.ErrEmptyQuery)
	}
	if _, err := s.store.Get(); err != nil {
		return domain.NewValidationError("document", "", domain.ErrNoDocument)
	}
	return nil
}

func (s *Service) mapErr(err error) error {
	if errors.Is(err, domain.ErrNoDocument) {
		return domain.NewValidationError("document", "", domain.ErrNoDocument)
	}
	return fmt.Errorf("docqa: %w", err)
}

// Save writes the loaded fragment sequence to dir, or to the configured
// output directory when dir is empty.
func (s *Service) Save(dir string) (string, error) {
	if dir == "" {
		dir = s.opts.OutputDir
	}
	path, err := s.store.Save(dir)
	if errors.Is(err, domain.ErrNoDocument) {
		return "", domain.NewValidationError("document", "", domain.ErrNoDocument)
	}
	if err != nil {
		return "", err
	}
	s.logger.Info("docqa: results saved", "path", path)
	return path, nil
}

// Clear drops the loaded document. It fails with domain.ErrBusy while a
// document is being processed.
func (s *Service) Clear(ctx context.Context) error {
	prev, err := s.store.Clear()
	if err != nil {
		s.metrics.busyRejections.Inc()
		return err
	}
	s.metrics.documentSize.Set(0)
	if prev == nil {
		return nil
	}
	if s.index != nil {
		if err := s.index.DeleteByDocID(ctx, prev.ID); err != nil {
			s.logger.Warn("docqa: index delete", "document_id", prev.ID, "err", err)
		}
	}
	s.publish(ctx, EventCleared, ClearedEvent{DocumentID: prev.ID, ClearedAt: time.Now()})
	s.logger.Info("docqa: document cleared", "document_id", prev.ID)
	return nil
}

// Status reports the store state and the loaded document, if any.
type Status struct {
	State      string    `json:"state"`
	DocumentID string    `json:"document_id,omitempty"`
	Source     string    `json:"source,omitempty"`
	Fragments  int       `json:"fragments"`
	LoadedAt   time.Time `json:"loaded_at,omitzero"`
}

// Status returns the current status.
func (s *Service) Status() Status {
	st := Status{State: s.store.State().String()}
	if doc, err := s.store.Get(); err == nil {
		st.DocumentID = doc.ID
		st.Source = doc.Source
		st.Fragments = len(doc.Fragments)
		st.LoadedAt = doc.LoadedAt
	}
	return st
}
