package pdf

import (
	"bytes"
	"context"
	"encoding/base64"
	"path/filepath"
	"strings"
	"testing"

	"github.com/WessleyAI/docqa/engine/domain"
	"github.com/WessleyAI/docqa/engine/extract"
)

var pngMagic = []byte("\x89PNG")

type failure struct {
	page  int
	stage string
}

func extractFile(t *testing.T, name string) ([]domain.Fragment, []failure) {
	t.Helper()
	var failures []failure
	ex := extract.New(Open, extract.WithFailureHook(func(page int, stage string, _ error) {
		failures = append(failures, failure{page, stage})
	}))
	frags, err := ex.Extract(context.Background(), filepath.Join("testdata", name))
	if err != nil {
		t.Fatal(err)
	}
	for i, f := range frags {
		if f.ChunkID != i {
			t.Fatalf("fragment %d has chunk id %d", i, f.ChunkID)
		}
	}
	return frags, failures
}

func onPage(frags []domain.Fragment, page int) []domain.Fragment {
	var out []domain.Fragment
	for _, f := range frags {
		if f.Page == page {
			out = append(out, f)
		}
	}
	return out
}

func decoded(t *testing.T, f domain.Fragment) []byte {
	t.Helper()
	data, err := base64.StdEncoding.DecodeString(f.Data)
	if err != nil {
		t.Fatalf("fragment %d data is not base64: %v", f.ChunkID, err)
	}
	return data
}

func TestOpenMissingFile(t *testing.T) {
	if _, err := Open(filepath.Join(t.TempDir(), "missing.pdf")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestExtractTextOnlyPage(t *testing.T) {
	frags, failures := extractFile(t, "text.pdf")
	if len(failures) != 0 {
		t.Errorf("unexpected failures %v", failures)
	}
	if len(frags) != 2 {
		t.Fatalf("expected text + raster, got %+v", frags)
	}

	txt := frags[0]
	if txt.Kind != domain.KindText || txt.Page != 1 || !strings.Contains(txt.Content, "Revenue grew 10%") {
		t.Errorf("unexpected text fragment %+v", txt)
	}
	if txt.BBox == nil || *txt.BBox != (domain.Rect{X1: 612, Y1: 792}) {
		t.Errorf("expected a letter-size bbox, got %+v", txt.BBox)
	}
	if txt.SourceIndex != nil {
		t.Errorf("text should carry no image index, got %d", *txt.SourceIndex)
	}

	raster := frags[1]
	if raster.Kind != domain.KindImage || raster.Format != "png" || raster.SourceIndex == nil || *raster.SourceIndex != domain.PageRasterIndex {
		t.Errorf("unexpected raster fragment %+v", raster)
	}
	if !bytes.HasPrefix(decoded(t, raster), pngMagic) {
		t.Error("page raster is not a PNG")
	}
}

func TestExtractEmbeddedImagesPerPage(t *testing.T) {
	frags, failures := extractFile(t, "images.pdf")

	first := onPage(frags, 1)
	if len(first) != 3 || first[0].Kind != domain.KindText || first[1].Kind != domain.KindImage || first[2].Kind != domain.KindImage {
		t.Fatalf("page 1 should be text, image, raster; got %+v", first)
	}
	if !strings.Contains(first[0].Content, "Quarterly revenue chart") {
		t.Errorf("page 1 text = %q", first[0].Content)
	}
	img := first[1]
	if img.SourceIndex == nil || *img.SourceIndex != 0 || img.Format != "png" {
		t.Errorf("unexpected embedded image %+v", img)
	}
	if !bytes.HasPrefix(decoded(t, img), pngMagic) {
		t.Error("embedded image is not a PNG")
	}
	if first[2].SourceIndex == nil || *first[2].SourceIndex != domain.PageRasterIndex {
		t.Errorf("page 1 should end with its raster, got %+v", first[2])
	}

	second := onPage(frags, 2)
	if len(second) == 0 || !strings.Contains(second[0].Content, "Regional breakdown") {
		t.Fatalf("page 2 text missing: %+v", second)
	}
	var embedded []int
	for _, f := range second {
		if f.Kind == domain.KindImage && f.SourceIndex != nil && *f.SourceIndex != domain.PageRasterIndex {
			embedded = append(embedded, *f.SourceIndex)
		}
	}
	if len(embedded) != 1 || embedded[0] != 1 {
		t.Errorf("page 2 should keep only its readable second image, got indexes %v", embedded)
	}

	var imageFailures []int
	for _, f := range failures {
		if f.stage == "images" {
			imageFailures = append(imageFailures, f.page)
		}
	}
	if len(imageFailures) != 1 || imageFailures[0] != 2 {
		t.Errorf("expected an image failure on page 2 only, got %v", failures)
	}
}

func TestPageImagesIsolatesPages(t *testing.T) {
	doc, err := Open(filepath.Join("testdata", "images.pdf"))
	if err != nil {
		t.Fatal(err)
	}
	defer doc.Close()

	// The broken page is read first; it must not affect page 1.
	bad, err := doc.PageImages(2)
	if err == nil {
		t.Fatal("expected an error for the corrupt image")
	}
	if len(bad) != 2 || bad[0].Data != nil || !bytes.HasPrefix(bad[1].Data, pngMagic) {
		t.Fatalf("unexpected page 2 images %+v", bad)
	}

	good, err := doc.PageImages(1)
	if err != nil {
		t.Fatalf("page 1 should read cleanly: %v", err)
	}
	if len(good) != 1 || good[0].Format != "png" {
		t.Fatalf("unexpected page 1 images %+v", good)
	}

	if again, err := doc.PageImages(2); err == nil || len(again) != 2 {
		t.Error("page results should be cached with their error")
	}
}

func TestPageImagesUnparseableFile(t *testing.T) {
	doc, err := Open(filepath.Join("testdata", "text.pdf"))
	if err != nil {
		t.Fatal(err)
	}
	defer doc.Close()
	d := doc.(*Document)
	d.raw = []byte("not a pdf")

	if _, err := d.PageImages(1); err == nil {
		t.Fatal("expected a parse error")
	}
	if _, err := d.PageImages(1); err == nil {
		t.Fatal("parse error should stick")
	}
}

var _ extract.Document = (*Document)(nil)
