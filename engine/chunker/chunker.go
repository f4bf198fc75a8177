// Package chunker splits page text into sentence-respecting chunks of
// bounded size.
package chunker

import (
	"strings"
	"unicode/utf8"
)

// DefaultChunkSize is the chunk size in characters used when none is given.
const DefaultChunkSize = 1000

// sentenceSep approximates a sentence boundary. It is also re-appended to
// every sentence placed in a chunk.
const sentenceSep = ". "

// Sentences normalizes newlines to spaces and splits text on sentence
// boundaries, dropping empty sentences.
func Sentences(text string) []string {
	text = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(text)
	var out []string
	for _, s := range strings.Split(text, sentenceSep) {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Chunk greedily packs sentences into chunks of at most maxChunkSize
// characters. A sentence longer than maxChunkSize becomes a chunk on its own.
// Empty input yields no chunks.
func Chunk(text string, maxChunkSize int) []string {
	if maxChunkSize <= 0 {
		maxChunkSize = DefaultChunkSize
	}

	var (
		chunks []string
		cur    strings.Builder
		curLen int
	)
	for _, s := range Sentences(text) {
		s += sentenceSep
		n := utf8.RuneCountInString(s)
		if curLen > 0 && curLen+n > maxChunkSize {
			chunks = append(chunks, cur.String())
			cur.Reset()
			curLen = 0
		}
		cur.WriteString(s)
		curLen += n
	}
	if curLen > 0 {
		chunks = append(chunks, cur.String())
	}
	return chunks
}
