// Package domain defines the document fragments, search results and remote
// model ports shared by the extraction, retrieval and answering engines.
package domain

// Kind distinguishes text chunks from images.
type Kind string

const (
	KindText  Kind = "text"
	KindImage Kind = "image"
)

// PageRasterIndex is the SourceIndex of the image rendered from a whole page.
const PageRasterIndex = -1

// ImageIndex returns i as a SourceIndex.
func ImageIndex(i int) *int { return &i }

// Rect is a page-space rectangle in PDF points.
type Rect struct {
	X0 float64 `json:"x0"`
	Y0 float64 `json:"y0"`
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
}

// Fragment is one unit of extracted content: a text chunk or an image.
// Text fields are set for KindText, image fields for KindImage.
type Fragment struct {
	ChunkID int  `json:"chunk_id"`
	Page    int  `json:"page"`
	Kind    Kind `json:"type"`

	Content    string `json:"content,omitempty"`
	ChunkIndex int    `json:"chunk,omitempty"`
	BBox       *Rect  `json:"bbox,omitempty"`

	Format string `json:"format,omitempty"`
	Data   string `json:"base64_data,omitempty"`
	// SourceIndex is the position of an image among its page's embedded
	// images, or PageRasterIndex. Nil for text.
	SourceIndex *int `json:"index,omitempty"`

	Embedding []float32 `json:"-"`
}

// Embedded reports whether the fragment is eligible for retrieval.
func (f Fragment) Embedded() bool { return len(f.Embedding) > 0 }

// Stripped returns a copy without the embedding.
func (f Fragment) Stripped() Fragment {
	f.Embedding = nil
	return f
}

// Strip copies a sequence with every embedding removed.
func Strip(frags []Fragment) []Fragment {
	out := make([]Fragment, len(frags))
	for i, f := range frags {
		out[i] = f.Stripped()
	}
	return out
}

// SearchResult is a stripped fragment with the score of the path that found it.
type SearchResult struct {
	Fragment
	SimilarityScore *float64 `json:"similarity_score,omitempty"`
	RelevanceScore  *float64 `json:"relevance_score,omitempty"`
}

// Score returns whichever score is present, preferring relevance.
func (r SearchResult) Score() float64 {
	switch {
	case r.RelevanceScore != nil:
		return *r.RelevanceScore
	case r.SimilarityScore != nil:
		return *r.SimilarityScore
	default:
		return 0
	}
}
