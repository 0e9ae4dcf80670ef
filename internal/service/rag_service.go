package service

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"mhassist/internal/chunker"
	"mhassist/internal/config"
	"mhassist/internal/documents"
	"mhassist/internal/domain"
	"mhassist/internal/embedding"
	"mhassist/internal/indexstore"
	"mhassist/internal/vectorstore/flat"
)

const (
	// DefaultCategory never prefixes queries.
	DefaultCategory = "General"
	ManualSource    = "manual_input"
	ContextDelim    = "\n\n---\n\n"
	TruncMarker     = "..."
)

// State describes whether the manager can answer queries.
type State int

const (
	StateUninitialized State = iota
	StateEmpty
	StatePopulated
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StatePopulated:
		return "populated"
	default:
		return "uninitialized"
	}
}

// DocumentMeta is the caller-supplied description of a text added directly.
type DocumentMeta struct {
	Title    string
	Category string
	Extra    map[string]string
}

// Stats summarises the current index for status output.
type Stats struct {
	State              string `json:"state"`
	DocumentsIndexed   int    `json:"documents_indexed"`
	Sources            int    `json:"sources"`
	DocumentsDir       string `json:"documents_dir"`
	IndexDir           string `json:"index_dir"`
	ChunkSize          int    `json:"chunk_size"`
	ChunkOverlap       int    `json:"chunk_overlap"`
	EmbeddingsModel    string `json:"embeddings_model"`
	IndexType          string `json:"index_type"`
	IndexSize          int    `json:"index_size"`
	EmbeddingDimension int    `json:"embedding_dimension"`
	Generation         string `json:"generation,omitempty"`
}

// Option customises a RAGManager.
type Option func(*RAGManager)

// WithEmbedder replaces the embedder built from configuration.
func WithEmbedder(e domain.Embedder) Option {
	return func(m *RAGManager) {
		m.embedder = e
	}
}

// RAGManager owns the vector index, the chunk texts and metadata aligned with
// it, and the embedder. It is not safe for concurrent use; callers sharing one
// instance must serialise access.
type RAGManager struct {
	cfg      config.RAGConfig
	chunker  *chunker.RecursiveChunker
	embedder domain.Embedder
	loader   *documents.Loader
	store    *indexstore.FileStore

	// nil index means no artifact has been loaded or built.
	index      *flat.Index
	texts      []string
	metadata   []domain.ChunkMetadata
	generation string
}

// New builds a manager and tries to load a previously saved index. A missing
// or unreadable index leaves the manager uninitialized. The embedding model is
// not loaded until an operation needs it.
func New(cfg config.RAGConfig, opts ...Option) (*RAGManager, error) {
	ch, err := chunker.NewRecursiveChunker(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return nil, err
	}
	m := &RAGManager{
		cfg:     cfg,
		chunker: ch,
		loader:  documents.NewLoader(cfg.SupportedFormats),
		store:   indexstore.NewFileStore(cfg.IndexDir),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.embedder == nil {
		m.embedder = embedding.New(cfg)
	}
	m.loadExisting()
	return m, nil
}

func (m *RAGManager) loadExisting() {
	art, err := m.store.Load()
	if err != nil {
		entry := log.WithField("index_dir", m.cfg.IndexDir)
		if m.store.Exists() {
			entry.WithError(err).Warn("existing index is unreadable, starting without one")
		} else {
			entry.Debug("no saved index found")
		}
		return
	}
	m.swap(art)
	log.WithFields(log.Fields{"chunks": len(m.texts), "index_dir": m.cfg.IndexDir}).Info("loaded saved index")
}

func (m *RAGManager) swap(art *indexstore.Artifact) {
	m.index = art.Index
	m.texts = art.Texts
	m.metadata = art.Metadata
	m.generation = art.Generation
}

// State reports whether an index is loaded and whether it has content.
func (m *RAGManager) State() State {
	switch {
	case m.index == nil:
		return StateUninitialized
	case m.index.Len() == 0:
		return StateEmpty
	default:
		return StatePopulated
	}
}

func (m *RAGManager) Config() config.RAGConfig { return m.cfg }

// IndexDocuments rebuilds the index from every supported file in the documents
// directory and persists it. If no content is found, or anything fails, both
// the in-memory index and the saved artifact are left as they were.
func (m *RAGManager) IndexDocuments() (Stats, error) {
	docs, err := m.loader.Load(m.cfg.DocumentsDir)
	if err != nil {
		return m.Stats(), fmt.Errorf("%w: %v", domain.ErrCorpus, err)
	}
	if len(docs) == 0 {
		return m.Stats(), fmt.Errorf("%w: no supported documents in %s", domain.ErrCorpus, m.cfg.DocumentsDir)
	}

	var texts []string
	var metas []domain.ChunkMetadata
	for _, doc := range docs {
		docID := uuid.NewString()
		for _, ch := range m.chunker.Chunk(doc) {
			metas = append(metas, domain.ChunkMetadata{
				Source:     doc.Source,
				SourceFile: doc.SourceFile,
				FileType:   doc.FileType,
				ChunkID:    len(texts),
				Sequence:   ch.Sequence,
				ChunkSize:  ch.Length,
				DocumentID: docID,
			})
			texts = append(texts, ch.Text)
		}
	}
	if len(texts) == 0 {
		return m.Stats(), fmt.Errorf("%w: documents in %s produced no chunks", domain.ErrCorpus, m.cfg.DocumentsDir)
	}

	vecs, err := m.encode(texts)
	if err != nil {
		return m.Stats(), err
	}
	idx := &flat.Index{}
	if err := idx.Add(vecs); err != nil {
		return m.Stats(), err
	}
	if err := m.persist(&indexstore.Artifact{Index: idx, Texts: texts, Metadata: metas}); err != nil {
		return m.Stats(), err
	}
	log.WithFields(log.Fields{"documents": len(docs), "chunks": len(texts)}).Info("index rebuilt")
	return m.Stats(), nil
}

// AddDocumentFromText chunks and embeds text and appends it to the index,
// creating the index if there is none. Existing entries keep their positions.
func (m *RAGManager) AddDocumentFromText(text string, meta DocumentMeta) (Stats, error) {
	chunks := m.chunker.Split(text)
	if len(chunks) == 0 {
		return m.Stats(), fmt.Errorf("%w: text is empty", domain.ErrCorpus)
	}
	if meta.Title == "" {
		meta.Title = "Manual document"
	}
	if meta.Category == "" {
		meta.Category = DefaultCategory
	}

	newTexts := make([]string, len(chunks))
	for i, ch := range chunks {
		newTexts[i] = ch.Text
	}
	vecs, err := m.encode(newTexts)
	if err != nil {
		return m.Stats(), err
	}

	idx := &flat.Index{}
	if m.index != nil {
		idx = m.index.Clone()
	}
	if err := idx.Add(vecs); err != nil {
		return m.Stats(), err
	}

	docID := uuid.NewString()
	texts := append(slices.Clone(m.texts), newTexts...)
	metas := slices.Clone(m.metadata)
	for i, ch := range chunks {
		metas = append(metas, domain.ChunkMetadata{
			Source:     ManualSource,
			SourceFile: ManualSource,
			FileType:   "text",
			ChunkID:    len(m.texts) + i,
			Sequence:   ch.Sequence,
			ChunkSize:  ch.Length,
			DocumentID: docID,
			Title:      meta.Title,
			Category:   meta.Category,
			Extra:      maps.Clone(meta.Extra),
		})
	}
	if err := m.persist(&indexstore.Artifact{Index: idx, Texts: texts, Metadata: metas}); err != nil {
		return m.Stats(), err
	}
	log.WithFields(log.Fields{"title": meta.Title, "chunks": len(chunks), "total": len(texts)}).Info("document added")
	return m.Stats(), nil
}

// persist saves the artifact and only then makes it current.
func (m *RAGManager) persist(art *indexstore.Artifact) error {
	if _, err := m.store.Save(art); err != nil {
		log.WithError(err).WithField("index_dir", m.cfg.IndexDir).Error("saving index failed")
		return err
	}
	m.swap(art)
	return nil
}

func (m *RAGManager) encode(texts []string) ([][]float32, error) {
	vecs, err := m.embedder.Encode(texts)
	if err != nil {
		if errors.Is(err, domain.ErrConfiguration) {
			return nil, err
		}
		return nil, fmt.Errorf("embed %d texts: %w", len(texts), err)
	}
	return vecs, nil
}

// SearchRelevantContent returns up to k chunks whose distance to the query is
// strictly below threshold, nearest first. A non-default category is prefixed
// to the query before embedding. k <= 0 falls back to the configured search_k;
// a threshold <= 0 matches nothing. Without a populated index the result is
// empty and the error nil; use State to tell the cases apart.
func (m *RAGManager) SearchRelevantContent(query string, k int, category string, threshold float32) ([]domain.QueryResult, error) {
	if m.State() != StatePopulated || threshold <= 0 {
		return nil, nil
	}
	if k <= 0 {
		k = m.cfg.SearchK
	}
	vecs, err := m.encode([]string{CategoryQuery(query, category)})
	if err != nil {
		return nil, err
	}
	// a query with no content words embeds to the origin, which sits at the
	// same distance from every normalised chunk
	if isZero(vecs[0]) {
		log.WithField("category", category).Debug("query has no content to search for")
		return nil, nil
	}
	neighbors, err := m.index.Search(vecs[0], k)
	if err != nil {
		return nil, err
	}
	var out []domain.QueryResult
	for _, n := range neighbors {
		if n.Distance >= threshold {
			continue
		}
		out = append(out, domain.QueryResult{
			Content:  m.texts[n.Position],
			Metadata: m.metadata[n.Position],
			Distance: n.Distance,
		})
	}
	log.WithFields(log.Fields{"category": category, "hits": len(out), "candidates": len(neighbors)}).Debug("searched index")
	return out, nil
}

// GetContextForQuery joins the most relevant chunk texts into one string of at
// most maxLen runes of content, plus delimiters and a truncation marker. The
// last text that does not fit is truncated if more than min_truncation runes of
// budget remain, and dropped otherwise. maxLen <= 0 uses max_context_length.
// An empty string means there is nothing worth adding to the prompt.
func (m *RAGManager) GetContextForQuery(query, category string, maxLen int) (string, error) {
	if maxLen <= 0 {
		maxLen = m.cfg.MaxContextLength
	}
	results, err := m.SearchRelevantContent(query, m.cfg.ContextK, category, m.cfg.ContextThreshold)
	if err != nil {
		return "", err
	}
	var parts []string
	used := 0
	for _, r := range results {
		content := strings.TrimSpace(r.Content)
		n := utf8.RuneCountInString(content)
		if used+n > maxLen {
			if remaining := maxLen - used; remaining > m.cfg.MinTruncation {
				parts = append(parts, string([]rune(content)[:remaining])+TruncMarker)
			}
			break
		}
		parts = append(parts, content)
		used += n
	}
	return strings.Join(parts, ContextDelim), nil
}

// Clear deletes the saved index and returns the manager to the uninitialized state.
func (m *RAGManager) Clear() error {
	if err := m.store.Remove(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	m.index, m.texts, m.metadata, m.generation = nil, nil, nil, ""
	return nil
}

// Stats reports the current index without loading the embedding model.
func (m *RAGManager) Stats() Stats {
	s := Stats{
		State:            m.State().String(),
		DocumentsIndexed: len(m.texts),
		DocumentsDir:     m.cfg.DocumentsDir,
		IndexDir:         m.cfg.IndexDir,
		ChunkSize:        m.cfg.ChunkSize,
		ChunkOverlap:     m.cfg.ChunkOverlap,
		EmbeddingsModel:  m.embedder.ModelName(),
		IndexType:        flat.TypeName,
		Generation:       m.generation,
	}
	if m.index != nil {
		s.IndexSize = m.index.Len()
		s.EmbeddingDimension = m.index.Dimension()
	}
	sources := make(map[string]struct{})
	for _, md := range m.metadata {
		key := md.Source
		if md.DocumentID != "" {
			key = md.DocumentID
		}
		sources[key] = struct{}{}
	}
	s.Sources = len(sources)
	return s
}

// Texts returns the indexed chunk texts in position order.
func (m *RAGManager) Texts() []string { return slices.Clone(m.texts) }

// CategoryQuery prefixes the category label to the query unless the category
// is empty or the default.
func CategoryQuery(query, category string) string {
	category = strings.TrimSpace(category)
	if category == "" || strings.EqualFold(category, DefaultCategory) {
		return query
	}
	return category + ": " + query
}

func isZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
