package models

import (
	"fmt"
	"time"
)

const (
	DefaultChunkSize    = 500
	DefaultChunkOverlap = 50
)

// Document is a knowledge-base entry or one chunk of it.
type Document struct {
	DocID     string         `json:"doc_id" yaml:"id"`
	Content   string         `json:"content" yaml:"text"`
	Metadata  map[string]any `json:"metadata" yaml:"metadata"`
	Embedding []float32      `json:"-" yaml:"-"`
	Source    string         `json:"source" yaml:"source"`
	CreatedAt time.Time      `json:"created_at" yaml:"-"`
}

// Chunk splits the content into windows of size characters, each starting
// size-overlap characters after the previous one. The last window ends at the
// end of the text, so no chunk lies wholly inside its predecessor.
func (d Document) Chunk(size, overlap int) []Document {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	text := []rune(d.Content)
	var chunks []Document

	for start, n := 0, 0; start < len(text); n++ {
		end := start + size
		if end > len(text) {
			end = len(text)
		}

		meta := make(map[string]any, len(d.Metadata)+2)
		for k, v := range d.Metadata {
			meta[k] = v
		}
		meta["chunk_num"] = n
		meta["parent_id"] = d.DocID

		chunks = append(chunks, Document{
			DocID:     fmt.Sprintf("%s_chunk_%d", d.DocID, n),
			Content:   string(text[start:end]),
			Metadata:  meta,
			Source:    d.Source,
			CreatedAt: d.CreatedAt,
		})

		if end == len(text) {
			break
		}
		start = end - overlap
	}

	return chunks
}
