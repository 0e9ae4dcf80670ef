package domain

// Document represents a single reference file loaded from the documents directory.
// Documents are re-read on every rebuild and are never persisted.
type Document struct {
	Content    string
	Source     string
	SourceFile string
	FileType   string
}

// Chunk is a contiguous slice of a document's text used for indexing.
// Start and Length are measured in runes.
type Chunk struct {
	Text     string
	Sequence int
	Start    int
	Length   int
}

// ChunkMetadata describes where an indexed chunk came from.
// Extra carries any caller-supplied fields without a dedicated slot.
type ChunkMetadata struct {
	Source     string            `json:"source"`
	SourceFile string            `json:"source_file"`
	FileType   string            `json:"file_type"`
	ChunkID    int               `json:"chunk_id"`
	Sequence   int               `json:"sequence"`
	ChunkSize  int               `json:"chunk_size"`
	DocumentID string            `json:"document_id,omitempty"`
	Title      string            `json:"title,omitempty"`
	Category   string            `json:"category,omitempty"`
	Extra      map[string]string `json:"extra,omitempty"`
}

// QueryResult is a retrieved chunk together with its raw index distance.
// Lower distance means more relevant.
type QueryResult struct {
	Content  string
	Metadata ChunkMetadata
	Distance float32
}

// Source returns the most descriptive origin label available for the result.
func (r QueryResult) Source() string {
	switch {
	case r.Metadata.Title != "":
		return r.Metadata.Title
	case r.Metadata.SourceFile != "":
		return r.Metadata.SourceFile
	case r.Metadata.Source != "":
		return r.Metadata.Source
	}
	return "unknown"
}

// Embedder converts batches of text into fixed-dimension vectors.
// Vectors are returned in input order.
type Embedder interface {
	Encode(texts []string) ([][]float32, error)
	Dimension() int
	ModelName() string
}

// Chunker splits documents into overlapping chunks suitable for retrieval indexing.
type Chunker interface {
	Chunk(document Document) []Chunk
}

// Summarizer produces a brief summary of the provided text.
type Summarizer interface {
	Summarize(text string, maxSentences int) (string, error)
}
