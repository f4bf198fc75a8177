package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestFragmentJSONOmitsEmbedding(t *testing.T) {
	f := Fragment{ChunkID: 3, Page: 2, Kind: KindText, Content: "hello", ChunkIndex: 1, Embedding: []float32{1, 2}}
	data, err := json.Marshal(f)
	if err != nil {
		t.Fatal(err)
	}
	s := string(data)
	if strings.Contains(s, "embedding") || strings.Contains(s, "1,2") {
		t.Fatalf("embedding leaked into JSON: %s", s)
	}
	if !strings.Contains(s, `"type":"text"`) || !strings.Contains(s, `"chunk_id":3`) {
		t.Fatalf("unexpected JSON: %s", s)
	}
}

func TestFragmentJSONIndexOnlyOnImages(t *testing.T) {
	text, _ := json.Marshal(Fragment{ChunkID: 0, Kind: KindText, Content: "hello"})
	if strings.Contains(string(text), `"index"`) {
		t.Fatalf("text fragment should not carry an image index: %s", text)
	}
	first, _ := json.Marshal(Fragment{ChunkID: 1, Kind: KindImage, Format: "png", SourceIndex: ImageIndex(0)})
	if !strings.Contains(string(first), `"index":0`) {
		t.Fatalf("first embedded image should keep index 0: %s", first)
	}
	raster, _ := json.Marshal(Fragment{ChunkID: 2, Kind: KindImage, Format: "png", SourceIndex: ImageIndex(PageRasterIndex)})
	if !strings.Contains(string(raster), `"index":-1`) {
		t.Fatalf("page raster should carry index -1: %s", raster)
	}

	var back Fragment
	if err := json.Unmarshal(first, &back); err != nil || back.SourceIndex == nil || *back.SourceIndex != 0 {
		t.Fatalf("index lost on decode: %+v %v", back.SourceIndex, err)
	}
}

func TestStripDoesNotMutateSource(t *testing.T) {
	src := []Fragment{{ChunkID: 0, Embedding: []float32{1}}}
	out := Strip(src)
	if out[0].Embedded() {
		t.Fatal("stripped copy still embedded")
	}
	if !src[0].Embedded() {
		t.Fatal("source sequence was mutated")
	}
}

func TestSearchResultScore(t *testing.T) {
	sim, rel := 0.4, 0.9
	if (SearchResult{SimilarityScore: &sim}).Score() != 0.4 {
		t.Fatal("similarity score")
	}
	if (SearchResult{SimilarityScore: &sim, RelevanceScore: &rel}).Score() != 0.9 {
		t.Fatal("relevance should win")
	}
	if (SearchResult{}).Score() != 0 {
		t.Fatal("missing scores should be zero")
	}
}

func TestValidationError(t *testing.T) {
	err := fmt.Errorf("docqa: query: %w", NewValidationError("query", "", ErrEmptyQuery))
	if !errors.Is(err, ErrEmptyQuery) {
		t.Fatal("expected errors.Is to find the sentinel")
	}
	if !IsValidation(err) {
		t.Fatal("expected IsValidation")
	}
	if IsValidation(errors.New("remote down")) {
		t.Fatal("plain errors are not validation errors")
	}
	if got := NewValidationError("path", "x.pdf", ErrNoPath).Error(); !strings.Contains(got, `value="x.pdf"`) {
		t.Fatalf("unexpected message %q", got)
	}
}
