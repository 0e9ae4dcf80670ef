package chunker

import (
	"fmt"
	"strings"

	"mhassist/internal/domain"
)

// DefaultSeparators are tried in order when looking for a natural split point.
var DefaultSeparators = []string{"\n\n", "\n", " "}

// RecursiveChunker splits text into windows of at most size runes. Each window
// ends at the last paragraph break, line break or space it contains, falling
// back to a hard cut, and the next window starts overlap runes before that end.
type RecursiveChunker struct {
	size       int
	overlap    int
	separators [][]rune
}

// NewRecursiveChunker validates the window parameters and builds a chunker.
func NewRecursiveChunker(size, overlap int) (*RecursiveChunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", domain.ErrInvalidConfig, size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: chunk overlap must be in [0, %d), got %d", domain.ErrInvalidConfig, size, overlap)
	}
	seps := make([][]rune, len(DefaultSeparators))
	for i, s := range DefaultSeparators {
		seps[i] = []rune(s)
	}
	return &RecursiveChunker{size: size, overlap: overlap, separators: seps}, nil
}

func (c *RecursiveChunker) Size() int    { return c.size }
func (c *RecursiveChunker) Overlap() int { return c.overlap }

// Chunk splits the document content.
func (c *RecursiveChunker) Chunk(document domain.Document) []domain.Chunk {
	return c.Split(document.Content)
}

// Split cuts text into overlapping chunks. Blank text yields no chunks.
func (c *RecursiveChunker) Split(text string) []domain.Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	runes := []rune(text)
	n := len(runes)
	var chunks []domain.Chunk
	start := 0
	for seq := 0; ; seq++ {
		end := start + c.size
		if end >= n {
			end = n
		} else {
			end = c.boundary(runes, start, end)
		}
		chunks = append(chunks, domain.Chunk{
			Text:     string(runes[start:end]),
			Sequence: seq,
			Start:    start,
			Length:   end - start,
		})
		if end == n {
			return chunks
		}
		start = end - c.overlap
	}
}

// boundary returns the split position for the window [start, limit). The
// position always lies past start+overlap so every window makes progress.
func (c *RecursiveChunker) boundary(runes []rune, start, limit int) int {
	floor := start + c.overlap
	for _, sep := range c.separators {
		for p := limit; p > floor; p-- {
			if p-len(sep) < start {
				break
			}
			if hasSuffixAt(runes, p, sep) {
				return p
			}
		}
	}
	return limit
}

// hasSuffixAt reports whether runes[:p] ends with sep.
func hasSuffixAt(runes []rune, p int, sep []rune) bool {
	if p < len(sep) {
		return false
	}
	for i := range sep {
		if runes[p-len(sep)+i] != sep[i] {
			return false
		}
	}
	return true
}
