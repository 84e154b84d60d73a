// Package chunk splits parsed article records into overlapping token-window
// chunks and filters them by length for downstream retrieval use.
package chunk

import (
	"fmt"
	"strings"
)

// Chunk is one retrieval unit cut from an article.
type Chunk struct {
	ChunkID    string `json:"chunk_id"`
	PageID     string `json:"page_id"`
	PageTitle  string `json:"page_title"`
	Text       string `json:"text"`
	ChunkIndex int    `json:"chunk_index"`
}

// Split cuts text into windows of at most maxTokens whitespace-separated
// tokens, with overlap tokens shared between consecutive windows. Empty
// text yields no chunks.
func Split(pageID, pageTitle, text string, maxTokens, overlap int) []Chunk {
	if maxTokens <= 0 {
		return nil
	}

	if overlap < 0 || overlap >= maxTokens {
		overlap = 0
	}

	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return nil
	}

	step := maxTokens - overlap
	chunks := make([]Chunk, 0, (len(tokens)+step-1)/step)

	for start := 0; start < len(tokens); start += step {
		end := start + maxTokens
		if end > len(tokens) {
			end = len(tokens)
		}

		chunks = append(chunks, Chunk{
			ChunkID:    fmt.Sprintf("%s-%d", pageID, len(chunks)),
			PageID:     pageID,
			PageTitle:  pageTitle,
			Text:       strings.Join(tokens[start:end], " "),
			ChunkIndex: len(chunks),
		})

		if end == len(tokens) {
			break
		}
	}

	return chunks
}
