// Package main processes one PDF from the command line, prints a summary,
// saves the content sequence and optionally answers questions about it.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/WessleyAI/docqa/engine/docqa"
	"github.com/WessleyAI/docqa/engine/domain"
	"github.com/WessleyAI/docqa/pkg/config"
	"github.com/WessleyAI/docqa/pkg/metrics"
	"github.com/WessleyAI/docqa/pkg/pdf"
	"github.com/WessleyAI/docqa/pkg/provider"
	"github.com/WessleyAI/docqa/pkg/resilience"
)

type questions []string

func (q *questions) String() string     { return strings.Join(*q, "; ") }
func (q *questions) Set(v string) error { *q = append(*q, v); return nil }

func main() {
	var (
		configPath = flag.String("config", "docqa.yaml", "path to the YAML config file")
		outDir     = flag.String("out", "", "output directory (default from config)")
		noSave     = flag.Bool("no-save", false, "skip writing content_sequence.json")
		verbose    = flag.Bool("v", false, "debug logging")
		asks       questions
	)
	flag.Var(&asks, "q", "question to ask after processing (repeatable)")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] file.pdf\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	_ = godotenv.Load()
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("load config", "err", err)
		os.Exit(1)
	}
	if *outDir != "" {
		cfg.OutputDir = *outDir
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, flag.Arg(0), !*noSave, asks, os.Stdout, logger); err != nil {
		logger.Error("docqa-process failed", "err", err)
		os.Exit(1)
	}
}

func newService(cfg *config.Config, logger *slog.Logger) (*docqa.Service, error) {
	m := provider.New(cfg)
	return docqa.New(docqa.Deps{
		Open:      pdf.Open,
		Embedder:  m.Embedder,
		Reranker:  m.Reranker,
		Generator: m.Generator,
		Metrics:   metrics.New(),
	}, docqa.Options{
		ChunkSize:    cfg.Processing.ChunkSize,
		TopK:         cfg.Processing.TopK,
		EmbedWorkers: cfg.Processing.EmbedWorkers,
		ImageLimit: resilience.WindowOpts{
			MaxRequests: cfg.Processing.ImageRateLimit,
			Window:      cfg.Processing.ImageWindow(),
		},
		ProcessTimeout: cfg.Processing.Timeout(),
		OutputDir:      cfg.OutputDir,
	}, logger)
}

func run(ctx context.Context, cfg *config.Config, path string, save bool, asks []string, out io.Writer, logger *slog.Logger) error {
	svc, err := newService(cfg, logger)
	if err != nil {
		return err
	}
	return process(ctx, serviceProcessor{svc}, path, save, asks, out)
}

// Processor is the part of docqa.Service the CLI uses.
type Processor interface {
	ProcessDocument(ctx context.Context, path string) (docqa.Summary, error)
	Save(dir string) (string, error)
	Ask(ctx context.Context, text string) (answerText string, pages []int, err error)
}

func process(ctx context.Context, p Processor, path string, save bool, asks []string, out io.Writer) error {
	sum, err := p.ProcessDocument(ctx, path)
	if err != nil {
		return fmt.Errorf("process %s: %w", path, err)
	}
	printSummary(out, sum)

	if save {
		saved, err := p.Save("")
		if err != nil {
			return fmt.Errorf("save: %w", err)
		}
		fmt.Fprintf(out, "saved:      %s\n", saved)
	}

	for _, q := range asks {
		text, pages, err := p.Ask(ctx, q)
		var ve *domain.ValidationError
		if errors.As(err, &ve) {
			fmt.Fprintf(out, "\nQ: %s\nskipped: %v\n", q, ve.Wrapped)
			continue
		}
		if err != nil {
			return fmt.Errorf("ask: %w", err)
		}
		fmt.Fprintf(out, "\nQ: %s\nA: %s\n", q, text)
		if len(pages) > 0 {
			fmt.Fprintf(out, "pages: %v\n", pages)
		}
	}
	return nil
}

func printSummary(out io.Writer, s docqa.Summary) {
	fmt.Fprintf(out, "document:   %s\n", s.DocumentID)
	fmt.Fprintf(out, "source:     %s\n", s.Source)
	fmt.Fprintf(out, "pages:      %d\n", s.Pages)
	fmt.Fprintf(out, "fragments:  %d text, %d image\n", s.TextCount, s.ImageCount)
	fmt.Fprintf(out, "embedded:   %d (%d failed)\n", s.Embedded, s.Failed)
	fmt.Fprintf(out, "took:       %s\n", s.Duration.Round(1e6))
}

type serviceProcessor struct{ svc *docqa.Service }

func (s serviceProcessor) ProcessDocument(ctx context.Context, path string) (docqa.Summary, error) {
	return s.svc.ProcessDocument(ctx, path)
}

func (s serviceProcessor) Save(dir string) (string, error) { return s.svc.Save(dir) }

// Ask returns the answer text and the distinct pages of its sources in order.
func (s serviceProcessor) Ask(ctx context.Context, text string) (string, []int, error) {
	ans, err := s.svc.Ask(ctx, text)
	if err != nil {
		return "", nil, err
	}
	var pages []int
	seen := map[int]bool{}
	for _, src := range ans.Sources {
		if !seen[src.Page] {
			seen[src.Page] = true
			pages = append(pages, src.Page)
		}
	}
	return ans.Text, pages, nil
}
