// Package pdf opens PDF files for extraction. Text, page bounds and page
// rasters come from MuPDF (go-fitz); embedded images are read raw with
// pdfcpu so they keep their original encoding.
package pdf

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	"github.com/gen2brain/go-fitz"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/WessleyAI/docqa/engine/domain"
	"github.com/WessleyAI/docqa/engine/extract"
)

// RasterDPI is the resolution whole pages are rendered at.
const RasterDPI = 72.0

// Reading images needs neither pdfcpu's config files nor user fonts.
func init() { api.DisableConfigDir() }

// Open implements extract.Opener.
func Open(path string) (extract.Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("pdf: read: %w", err)
	}
	doc, err := fitz.NewFromMemory(raw)
	if err != nil {
		return nil, fmt.Errorf("pdf: open: %w", err)
	}
	return &Document{doc: doc, raw: raw}, nil
}

// Document is an open PDF. Page numbers are 1-based.
type Document struct {
	doc *fitz.Document
	raw []byte

	parseOnce sync.Once
	parsed    *model.Context
	parseErr  error

	mu     sync.Mutex
	images map[int]pageImages
}

type pageImages struct {
	imgs []extract.RawImage
	err  error
}

func (d *Document) NumPages() int { return d.doc.NumPage() }

func (d *Document) PageText(page int) (string, error) {
	return d.doc.Text(page - 1)
}

func (d *Document) PageBounds(page int) (domain.Rect, error) {
	b, err := d.doc.Bound(page - 1)
	if err != nil {
		return domain.Rect{}, err
	}
	return domain.Rect{
		X0: float64(b.Min.X), Y0: float64(b.Min.Y),
		X1: float64(b.Max.X), Y1: float64(b.Max.Y),
	}, nil
}

func (d *Document) RenderPage(page int) ([]byte, error) {
	return d.doc.ImagePNG(page-1, RasterDPI)
}

// PageImages returns the embedded images of page in object order. An image
// that cannot be decoded keeps its position with nil Data and is reported in
// the returned error alongside the readable ones. Results are cached per
// page; the file itself is parsed once.
func (d *Document) PageImages(page int) ([]extract.RawImage, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cached, ok := d.images[page]; ok {
		return cached.imgs, cached.err
	}
	imgs, err := d.readPageImages(page)
	if d.images == nil {
		d.images = make(map[int]pageImages)
	}
	d.images[page] = pageImages{imgs: imgs, err: err}
	return imgs, err
}

func (d *Document) parse() (*model.Context, error) {
	d.parseOnce.Do(func() {
		conf := model.NewDefaultConfiguration()
		conf.Cmd = model.EXTRACTIMAGES
		d.parsed, d.parseErr = api.ReadValidateAndOptimize(bytes.NewReader(d.raw), conf)
		if d.parseErr != nil {
			d.parseErr = fmt.Errorf("pdf: images: %w", d.parseErr)
		}
	})
	return d.parsed, d.parseErr
}

// readPageImages decodes the images of page. Must hold mu.
func (d *Document) readPageImages(page int) ([]extract.RawImage, error) {
	ctx, err := d.parse()
	if err != nil {
		return nil, err
	}
	objs := pdfcpu.ImageObjNrs(ctx, page)
	sort.Ints(objs)

	var (
		out  []extract.RawImage
		errs []error
	)
	for _, nr := range objs {
		obj := ctx.Optimize.ImageObjects[nr]
		if obj == nil {
			continue
		}
		img, err := pdfcpu.ExtractImage(ctx, obj.ImageDict, false, obj.ResourceNames[page-1], nr, false)
		if err == nil && (img == nil || img.Reader == nil) {
			// Unsupported encodings are skipped without an error.
			continue
		}
		var data []byte
		if err == nil {
			data, err = io.ReadAll(img)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("pdf: page %d image %d: %w", page, nr, err))
			out = append(out, extract.RawImage{})
			continue
		}
		out = append(out, extract.RawImage{Format: img.FileType, Data: data})
	}
	return out, errors.Join(errs...)
}

func (d *Document) Close() error { return d.doc.Close() }
