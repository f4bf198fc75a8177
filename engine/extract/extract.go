// Package extract turns a PDF into an ordered sequence of text and image
// fragments.
package extract

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"

	"github.com/WessleyAI/docqa/engine/chunker"
	"github.com/WessleyAI/docqa/engine/domain"
)

// RawImage is an image embedded in a page, as stored in the file.
type RawImage struct {
	Format string
	Data   []byte
}

// Document is an open PDF. Pages are numbered from 1.
type Document interface {
	NumPages() int
	PageText(page int) (string, error)
	PageBounds(page int) (domain.Rect, error)
	// PageImages may return the readable images of a page together with
	// an error for the rest. Unreadable images keep their slot with no Data.
	PageImages(page int) ([]RawImage, error)
	// RenderPage rasterizes the whole page to PNG.
	RenderPage(page int) ([]byte, error)
	Close() error
}

// Opener opens the PDF at path.
type Opener func(path string) (Document, error)

// FailureFunc is notified of every page-level failure that was skipped.
type FailureFunc func(page int, stage string, err error)

// Extractor walks a document page by page.
type Extractor struct {
	open      Opener
	chunkSize int
	onFailure FailureFunc
	logger    *slog.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithChunkSize sets the maximum text chunk size in characters.
func WithChunkSize(n int) Option { return func(e *Extractor) { e.chunkSize = n } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(e *Extractor) { e.logger = l } }

// WithFailureHook registers a callback for skipped page stages.
func WithFailureHook(f FailureFunc) Option { return func(e *Extractor) { e.onFailure = f } }

// New creates an Extractor that opens files with open.
func New(open Opener, opts ...Option) *Extractor {
	e := &Extractor{open: open, chunkSize: chunker.DefaultChunkSize}
	for _, o := range opts {
		o(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e
}

// Extract produces the fragment sequence for the PDF at path. Only failing
// to open the file is an error; failures inside a page are logged and the
// affected stage of that page is skipped.
func (e *Extractor) Extract(ctx context.Context, path string) (frags []domain.Fragment, err error) {
	doc, err := e.open(path)
	if err != nil {
		return nil, fmt.Errorf("extract: open %s: %w", path, err)
	}
	defer func() {
		if cerr := doc.Close(); cerr != nil {
			e.logger.Warn("extract: close document", "path", path, "err", cerr)
		}
	}()

	p := &pageWalker{doc: doc, e: e}
	for page := 1; page <= doc.NumPages(); page++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("extract: %w", err)
		}
		p.text(page)
		p.images(page)
		p.raster(page)
	}
	e.logger.Info("extract: document done", "path", path, "pages", doc.NumPages(), "fragments", len(p.out))
	return p.out, nil
}

// pageWalker carries the running chunk id shared by every fragment kind.
type pageWalker struct {
	doc    Document
	e      *Extractor
	nextID int
	out    []domain.Fragment
}

func (p *pageWalker) emit(f domain.Fragment) {
	f.ChunkID = p.nextID
	p.nextID++
	p.out = append(p.out, f)
}

func (p *pageWalker) fail(page int, stage string, err error) {
	p.e.logger.Warn("extract: page stage skipped", "page", page, "stage", stage, "err", err)
	if p.e.onFailure != nil {
		p.e.onFailure(page, stage, err)
	}
}

func (p *pageWalker) text(page int) {
	text, err := p.doc.PageText(page)
	if err != nil {
		p.fail(page, "text", err)
		return
	}
	var bbox *domain.Rect
	if r, err := p.doc.PageBounds(page); err != nil {
		p.fail(page, "bounds", err)
	} else {
		bbox = &r
	}
	idx := 0
	for _, c := range chunker.Chunk(text, p.e.chunkSize) {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		idx++
		p.emit(domain.Fragment{
			Page:       page,
			Kind:       domain.KindText,
			Content:    c,
			ChunkIndex: idx,
			BBox:       bbox,
		})
	}
}

func (p *pageWalker) images(page int) {
	imgs, err := p.doc.PageImages(page)
	if err != nil {
		p.fail(page, "images", err)
	}
	for i, img := range imgs {
		if len(img.Data) == 0 {
			continue
		}
		p.emit(imageFragment(page, i, img.Format, img.Data))
	}
}

func (p *pageWalker) raster(page int) {
	png, err := p.doc.RenderPage(page)
	if err != nil {
		p.fail(page, "raster", err)
		return
	}
	p.emit(imageFragment(page, domain.PageRasterIndex, "png", png))
}

func imageFragment(page, index int, format string, data []byte) domain.Fragment {
	return domain.Fragment{
		Page:        page,
		Kind:        domain.KindImage,
		Format:      normalizeFormat(format),
		Data:        base64.StdEncoding.EncodeToString(data),
		SourceIndex: domain.ImageIndex(index),
	}
}

func normalizeFormat(f string) string {
	f = strings.ToLower(strings.TrimPrefix(f, "."))
	switch f {
	case "jpg", "jpe":
		return "jpeg"
	case "":
		return "png"
	}
	return f
}
