package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/WessleyAI/docqa/engine/docqa"
	"github.com/WessleyAI/docqa/engine/semantic"
	"github.com/WessleyAI/docqa/pkg/config"
	"github.com/WessleyAI/docqa/pkg/metrics"
	"github.com/WessleyAI/docqa/pkg/natsutil"
	"github.com/WessleyAI/docqa/pkg/pdf"
	"github.com/WessleyAI/docqa/pkg/provider"
	"github.com/WessleyAI/docqa/pkg/resilience"
)

func serviceOptions(cfg *config.Config) docqa.Options {
	return docqa.Options{
		ChunkSize:    cfg.Processing.ChunkSize,
		TopK:         cfg.Processing.TopK,
		EmbedWorkers: cfg.Processing.EmbedWorkers,
		ImageLimit: resilience.WindowOpts{
			MaxRequests: cfg.Processing.ImageRateLimit,
			Window:      cfg.Processing.ImageWindow(),
		},
		ProcessTimeout: cfg.Processing.Timeout(),
		OutputDir:      cfg.OutputDir,
	}
}

// documentProcessor is the part of the service driven by NATS requests.
type documentProcessor interface {
	ProcessDocument(ctx context.Context, path string) (docqa.Summary, error)
}

// subscribeProcessRequests processes documents named by ProcessRequests on
// subject. Requests are handled one at a time in arrival order.
func subscribeProcessRequests(nc *nats.Conn, subject string, p documentProcessor, logger *slog.Logger) (*nats.Subscription, error) {
	return natsutil.Subscribe(nc, subject, func(ctx context.Context, req docqa.ProcessRequest) {
		if req.Path == "" {
			logger.Warn("nats: process request without path", "subject", subject)
			return
		}
		sum, err := p.ProcessDocument(ctx, req.Path)
		if err != nil {
			logger.Warn("nats: process request failed", "path", req.Path, "err", err)
			return
		}
		logger.Info("nats: processed document", "path", req.Path, "document_id", sum.DocumentID)
	})
}

// buildService wires the service and its optional Qdrant mirror and NATS
// publisher and request subscription. The returned cleanup closes whatever
// was opened.
func buildService(cfg *config.Config, reg *metrics.Registry, logger *slog.Logger) (*docqa.Service, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	m := provider.New(cfg)
	deps := docqa.Deps{
		Open:      pdf.Open,
		Embedder:  m.Embedder,
		Reranker:  m.Reranker,
		Generator: m.Generator,
		Metrics:   reg,
	}

	if cfg.Qdrant.URL != "" {
		vs, err := semantic.New(cfg.Qdrant.URL, cfg.Qdrant.Collection)
		if err != nil {
			return nil, cleanup, fmt.Errorf("qdrant connect: %w", err)
		}
		closers = append(closers, func() { vs.Close() })
		deps.Index = vs
		logger.Info("qdrant mirror enabled", "url", cfg.Qdrant.URL, "collection", cfg.Qdrant.Collection)
	}

	var (
		nc  *nats.Conn
		pub *natsutil.Publisher
	)
	if cfg.NATS.URL != "" {
		var err error
		nc, err = natsutil.Connect(cfg.NATS.URL, "docqa", logger)
		if err != nil {
			cleanup()
			return nil, func() {}, fmt.Errorf("nats connect: %w", err)
		}
		closers = append(closers, func() { nc.Drain() })
		pub = natsutil.NewPublisher(nc, cfg.NATS.SubjectPrefix)
		deps.Events = pub
		logger.Info("nats events enabled", "url", cfg.NATS.URL, "prefix", cfg.NATS.SubjectPrefix)
	}

	svc, err := docqa.New(deps, serviceOptions(cfg), logger)
	if err != nil {
		cleanup()
		return nil, func() {}, err
	}

	if nc != nil {
		subject := pub.Subject(docqa.EventProcessRequested)
		if _, err := subscribeProcessRequests(nc, subject, svc, logger); err != nil {
			cleanup()
			return nil, func() {}, fmt.Errorf("nats subscribe %s: %w", subject, err)
		}
		logger.Info("nats process requests enabled", "subject", subject)
	}
	return svc, cleanup, nil
}
