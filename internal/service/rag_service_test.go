package service

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mhassist/internal/config"
	"mhassist/internal/domain"
	"mhassist/internal/indexstore"
)

// fakeEmbedder maps known texts to fixed vectors; anything else lands far away.
type fakeEmbedder struct {
	dim     int
	vectors map[string][]float32
	calls   [][]string
	err     error
}

func (f *fakeEmbedder) Encode(texts []string) ([][]float32, error) {
	f.calls = append(f.calls, texts)
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if v, ok := f.vectors[t]; ok {
			out[i] = v
			continue
		}
		v := make([]float32, f.dim)
		v[f.dim-1] = 100
		out[i] = v
	}
	return out, nil
}

func (f *fakeEmbedder) Dimension() int    { return f.dim }
func (f *fakeEmbedder) ModelName() string { return "fake" }

func testConfig(t *testing.T) config.RAGConfig {
	t.Helper()
	cfg := config.Default().RAG
	root := t.TempDir()
	cfg.DocumentsDir = filepath.Join(root, "documents")
	cfg.IndexDir = filepath.Join(root, "index")
	cfg.EmbeddingsModel = "hashing-256"
	return cfg
}

func writeDoc(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func seedCorpus(t *testing.T, cfg config.RAGConfig) {
	t.Helper()
	writeDoc(t, cfg.DocumentsDir, "breathing.md", "Box breathing: inhale four counts, hold four counts, exhale four counts, hold four counts.")
	writeDoc(t, cfg.DocumentsDir, "sleep.txt", "Keep a regular sleep schedule and avoid screens an hour before bed.")
	writeDoc(t, cfg.DocumentsDir, "journal.md", "Write three things you are grateful for every evening in a journal.")
}

func TestNewWithoutIndexIsUninitialized(t *testing.T) {
	m, err := New(testConfig(t))
	require.NoError(t, err)
	assert.Equal(t, StateUninitialized, m.State())

	res, err := m.SearchRelevantContent("anxiety", 3, "", 1.0)
	require.NoError(t, err)
	assert.Empty(t, res)

	ctx, err := m.GetContextForQuery("anxiety", "Anxiety", 0)
	require.NoError(t, err)
	assert.Equal(t, "", ctx)
}

func TestNewRejectsInvalidChunking(t *testing.T) {
	cfg := testConfig(t)
	cfg.ChunkOverlap = cfg.ChunkSize
	_, err := New(cfg)
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
}

func TestIndexDocumentsBuildsAlignedIndex(t *testing.T) {
	cfg := testConfig(t)
	seedCorpus(t, cfg)
	m, err := New(cfg)
	require.NoError(t, err)

	stats, err := m.IndexDocuments()
	require.NoError(t, err)
	assert.Equal(t, StatePopulated, m.State())
	assert.Equal(t, 3, stats.IndexSize)
	assert.Equal(t, stats.IndexSize, stats.DocumentsIndexed)
	assert.Equal(t, stats.IndexSize, len(m.metadata))
	assert.Equal(t, 256, stats.EmbeddingDimension)
	assert.Equal(t, 3, stats.Sources)
	assert.Equal(t, "flat-l2", stats.IndexType)

	for i, md := range m.metadata {
		assert.Equal(t, i, md.ChunkID)
		assert.NotEmpty(t, md.DocumentID)
	}
	assert.Equal(t, "breathing.md", m.metadata[0].SourceFile)
	assert.Equal(t, ".txt", m.metadata[2].FileType)
}

func TestSearchSelfMatchIsTopResult(t *testing.T) {
	cfg := testConfig(t)
	seedCorpus(t, cfg)
	m, err := New(cfg)
	require.NoError(t, err)
	_, err = m.IndexDocuments()
	require.NoError(t, err)

	query := m.Texts()[1]
	res, err := m.SearchRelevantContent(query, 3, "", 1.0)
	require.NoError(t, err)
	require.NotEmpty(t, res)
	assert.Equal(t, query, res[0].Content)
	assert.Less(t, res[0].Distance, float32(1e-5))
	assert.Equal(t, "journal.md", res[0].Metadata.SourceFile)
}

func TestSearchNeverReturnsDistancesAtOrAboveThreshold(t *testing.T) {
	cfg := testConfig(t)
	seedCorpus(t, cfg)
	m, err := New(cfg)
	require.NoError(t, err)
	_, err = m.IndexDocuments()
	require.NoError(t, err)

	for _, threshold := range []float32{0.01, 0.5, 1.0, 1.2, 2.5} {
		for _, k := range []int{1, 3, 10} {
			res, err := m.SearchRelevantContent("breathing exercises for panic and sleep", k, "", threshold)
			require.NoError(t, err)
			assert.LessOrEqual(t, len(res), k)
			for _, r := range res {
				assert.Less(t, r.Distance, threshold)
			}
		}
	}
}

func TestSearchThresholdIsStrict(t *testing.T) {
	cfg := testConfig(t)
	emb := &fakeEmbedder{dim: 2, vectors: map[string][]float32{
		"q":    {0, 1},
		"near": {0.5, 1},
		"edge": {1, 1},
	}}
	m, err := New(cfg, WithEmbedder(emb))
	require.NoError(t, err)
	_, err = m.AddDocumentFromText("near", DocumentMeta{})
	require.NoError(t, err)
	_, err = m.AddDocumentFromText("edge", DocumentMeta{})
	require.NoError(t, err)

	res, err := m.SearchRelevantContent("q", 5, "", 1.0)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "near", res[0].Content)
	assert.InDelta(t, 0.25, res[0].Distance, 1e-6)
}

func TestSearchPrefixesNonDefaultCategory(t *testing.T) {
	cfg := testConfig(t)
	emb := &fakeEmbedder{dim: 2, vectors: map[string][]float32{"doc": {0, 0}}}
	m, err := New(cfg, WithEmbedder(emb))
	require.NoError(t, err)
	_, err = m.AddDocumentFromText("doc", DocumentMeta{})
	require.NoError(t, err)

	for category, want := range map[string]string{
		"":        "how to relax",
		"General": "how to relax",
		"Anxiety": "Anxiety: how to relax",
	} {
		_, err := m.SearchRelevantContent("how to relax", 3, category, 1.0)
		require.NoError(t, err)
		assert.Equal(t, []string{want}, emb.calls[len(emb.calls)-1])
	}
}

func TestIndexPersistsAndReloads(t *testing.T) {
	cfg := testConfig(t)
	seedCorpus(t, cfg)
	m, err := New(cfg)
	require.NoError(t, err)
	_, err = m.IndexDocuments()
	require.NoError(t, err)
	before, err := m.SearchRelevantContent("sleep schedule", 3, "", 2.0)
	require.NoError(t, err)

	reloaded, err := New(cfg)
	require.NoError(t, err)
	assert.Equal(t, StatePopulated, reloaded.State())
	assert.Equal(t, m.Texts(), reloaded.Texts())
	assert.Equal(t, m.metadata, reloaded.metadata)

	after, err := reloaded.SearchRelevantContent("sleep schedule", 3, "", 2.0)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestCorruptIndexStartsUninitialized(t *testing.T) {
	cfg := testConfig(t)
	seedCorpus(t, cfg)
	m, err := New(cfg)
	require.NoError(t, err)
	_, err = m.IndexDocuments()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(cfg.IndexDir, indexstore.MetadataFile), []byte("junk"), 0o644))

	reloaded, err := New(cfg)
	require.NoError(t, err)
	assert.Equal(t, StateUninitialized, reloaded.State())
}

func TestIndexDocumentsWithEmptyDirectoryKeepsPriorIndex(t *testing.T) {
	cfg := testConfig(t)
	seedCorpus(t, cfg)
	m, err := New(cfg)
	require.NoError(t, err)
	_, err = m.IndexDocuments()
	require.NoError(t, err)

	snapshot := map[string][]byte{}
	for _, name := range []string{indexstore.IndexFile, indexstore.ChunksFile, indexstore.MetadataFile} {
		data, err := os.ReadFile(filepath.Join(cfg.IndexDir, name))
		require.NoError(t, err)
		snapshot[name] = data
	}

	require.NoError(t, os.RemoveAll(cfg.DocumentsDir))
	require.NoError(t, os.MkdirAll(cfg.DocumentsDir, 0o755))

	_, err = m.IndexDocuments()
	assert.ErrorIs(t, err, domain.ErrCorpus)
	assert.Equal(t, StatePopulated, m.State())
	assert.Len(t, m.Texts(), 3)
	for name, data := range snapshot {
		current, err := os.ReadFile(filepath.Join(cfg.IndexDir, name))
		require.NoError(t, err)
		assert.Equal(t, data, current, name)
	}
}

func TestAddDocumentCreatesIndexWhenAbsent(t *testing.T) {
	cfg := testConfig(t)
	m, err := New(cfg)
	require.NoError(t, err)

	stats, err := m.AddDocumentFromText("Progressive muscle relaxation tenses and releases each muscle group.",
		DocumentMeta{Title: "PMR", Category: "Stress", Extra: map[string]string{"author": "clinic"}})
	require.NoError(t, err)
	assert.Equal(t, StatePopulated, m.State())
	assert.Equal(t, 1, stats.IndexSize)

	md := m.metadata[0]
	assert.Equal(t, ManualSource, md.Source)
	assert.Equal(t, "PMR", md.Title)
	assert.Equal(t, "Stress", md.Category)
	assert.Equal(t, "clinic", md.Extra["author"])

	res, err := m.SearchRelevantContent("muscle relaxation", 1, "", 2.0)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "PMR", res[0].Source())
}

func TestAddDocumentIsAppendOnly(t *testing.T) {
	cfg := testConfig(t)
	cfg.ChunkSize = 60
	cfg.ChunkOverlap = 10
	seedCorpus(t, cfg)
	m, err := New(cfg)
	require.NoError(t, err)
	_, err = m.IndexDocuments()
	require.NoError(t, err)
	priorCount := len(m.Texts())

	query := "regular sleep and gratitude journal"
	before, err := m.SearchRelevantContent(query, priorCount, "", 4.1)
	require.NoError(t, err)

	stats, err := m.AddDocumentFromText("Gratitude practice and regular sleep support mood. "+strings.Repeat("Rest well. ", 10), DocumentMeta{Title: "Extra"})
	require.NoError(t, err)
	assert.Greater(t, stats.IndexSize, priorCount)
	assert.Equal(t, stats.IndexSize, len(m.Texts()))
	assert.Equal(t, stats.IndexSize, len(m.metadata))
	assert.Equal(t, priorCount, m.metadata[priorCount].ChunkID)

	after, err := m.SearchRelevantContent(query, stats.IndexSize, "", 4.1)
	require.NoError(t, err)
	distances := map[int]float32{}
	for _, r := range after {
		distances[r.Metadata.ChunkID] = r.Distance
	}
	for _, r := range before {
		assert.Equal(t, r.Distance, distances[r.Metadata.ChunkID])
	}
}

func TestAddDocumentRejectsBlankText(t *testing.T) {
	m, err := New(testConfig(t))
	require.NoError(t, err)
	_, err = m.AddDocumentFromText("   ", DocumentMeta{})
	assert.ErrorIs(t, err, domain.ErrCorpus)
	assert.Equal(t, StateUninitialized, m.State())
}

func TestAddDocumentDimensionMismatchLeavesIndexUnchanged(t *testing.T) {
	cfg := testConfig(t)
	m, err := New(cfg, WithEmbedder(&fakeEmbedder{dim: 2}))
	require.NoError(t, err)
	_, err = m.AddDocumentFromText("first", DocumentMeta{})
	require.NoError(t, err)

	other, err := New(cfg, WithEmbedder(&fakeEmbedder{dim: 3}))
	require.NoError(t, err)
	require.Equal(t, StatePopulated, other.State())

	_, err = other.AddDocumentFromText("second", DocumentMeta{})
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
	assert.Equal(t, []string{"first"}, other.Texts())

	_, err = other.SearchRelevantContent("q", 1, "", 1.0)
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
}

func TestPersistenceFailureLeavesMemoryUnchanged(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.WriteFile(cfg.IndexDir, []byte("not a directory"), 0o644))
	m, err := New(cfg)
	require.NoError(t, err)

	_, err = m.AddDocumentFromText("Some text worth keeping.", DocumentMeta{})
	assert.ErrorIs(t, err, domain.ErrPersistence)
	assert.Equal(t, StateUninitialized, m.State())
	assert.Empty(t, m.Texts())
}

func TestModelLoadFailureIsConfigurationError(t *testing.T) {
	cfg := testConfig(t)
	cfg.EmbeddingsModel = "all-MiniLM-L6-v2"
	seedCorpus(t, cfg)
	m, err := New(cfg)
	require.NoError(t, err)

	_, err = m.IndexDocuments()
	assert.ErrorIs(t, err, domain.ErrConfiguration)
	assert.Equal(t, StateUninitialized, m.State())
}

func TestEncodeErrorsAreWrapped(t *testing.T) {
	cfg := testConfig(t)
	m, err := New(cfg, WithEmbedder(&fakeEmbedder{dim: 2, err: errors.New("rate limited")}))
	require.NoError(t, err)
	_, err = m.AddDocumentFromText("text", DocumentMeta{})
	assert.ErrorContains(t, err, "rate limited")
	assert.False(t, errors.Is(err, domain.ErrConfiguration))
}

func contextManager(t *testing.T) *RAGManager {
	t.Helper()
	a := strings.Repeat("a", 300)
	b := strings.Repeat("b", 300)
	c := strings.Repeat("c", 300)
	d := strings.Repeat("d", 300)
	emb := &fakeEmbedder{dim: 2, vectors: map[string][]float32{
		"q": {0, 1},
		a:   {0.1, 1},
		b:   {0.5, 1},
		c:   {1, 1},
		d:   {2, 1},
	}}
	m, err := New(testConfig(t), WithEmbedder(emb))
	require.NoError(t, err)
	for _, text := range []string{d, c, b, a} {
		_, err := m.AddDocumentFromText(text, DocumentMeta{})
		require.NoError(t, err)
	}
	return m
}

func TestGetContextJoinsMostRelevantFirst(t *testing.T) {
	m := contextManager(t)

	ctx, err := m.GetContextForQuery("q", "", 2000)
	require.NoError(t, err)
	want := strings.Join([]string{strings.Repeat("a", 300), strings.Repeat("b", 300), strings.Repeat("c", 300)}, ContextDelim)
	assert.Equal(t, want, ctx)
}

func TestGetContextTruncatesOrDrops(t *testing.T) {
	m := contextManager(t)
	a := strings.Repeat("a", 300)

	ctx, err := m.GetContextForQuery("q", "", 500)
	require.NoError(t, err)
	assert.Equal(t, a+ContextDelim+strings.Repeat("b", 200)+TruncMarker, ctx)

	ctx, err = m.GetContextForQuery("q", "", 350)
	require.NoError(t, err)
	assert.Equal(t, a, ctx)

	ctx, err = m.GetContextForQuery("q", "", 250)
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("a", 250)+TruncMarker, ctx)

	ctx, err = m.GetContextForQuery("q", "", 90)
	require.NoError(t, err)
	assert.Equal(t, "", ctx)
}

func TestGetContextStaysWithinBudget(t *testing.T) {
	m := contextManager(t)
	overhead := utf8.RuneCountInString(TruncMarker) + 2*utf8.RuneCountInString(ContextDelim)
	for maxLen := 1; maxLen <= 1000; maxLen += 37 {
		ctx, err := m.GetContextForQuery("q", "", maxLen)
		require.NoError(t, err)
		assert.LessOrEqual(t, utf8.RuneCountInString(ctx), maxLen+overhead)
	}
}

func TestGetContextEmptyWhenNothingQualifies(t *testing.T) {
	m := contextManager(t)
	ctx, err := m.GetContextForQuery("unrelated", "", 2000)
	require.NoError(t, err)
	assert.Equal(t, "", ctx)
}

func TestClearRemovesIndex(t *testing.T) {
	cfg := testConfig(t)
	seedCorpus(t, cfg)
	m, err := New(cfg)
	require.NoError(t, err)
	_, err = m.IndexDocuments()
	require.NoError(t, err)

	require.NoError(t, m.Clear())
	assert.Equal(t, StateUninitialized, m.State())
	_, err = os.Stat(filepath.Join(cfg.IndexDir, indexstore.IndexFile))
	assert.True(t, os.IsNotExist(err))
}

func TestCategoryQuery(t *testing.T) {
	assert.Equal(t, "hi", CategoryQuery("hi", " "))
	assert.Equal(t, "hi", CategoryQuery("hi", "general"))
	assert.Equal(t, "Depression: hi", CategoryQuery("hi", "Depression"))
}

func TestStopwordOnlyQueryFindsNothing(t *testing.T) {
	cfg := testConfig(t)
	seedCorpus(t, cfg)
	m, err := New(cfg)
	require.NoError(t, err)
	_, err = m.IndexDocuments()
	require.NoError(t, err)

	ctx, err := m.GetContextForQuery("How are you?", "General", 0)
	require.NoError(t, err)
	assert.Equal(t, "", ctx)

	res, err := m.SearchRelevantContent("What should I do?", 3, "", 1.2)
	require.NoError(t, err)
	assert.Empty(t, res)

	res, err = m.SearchRelevantContent("How do I keep a regular sleep schedule?", 3, "", 1.2)
	require.NoError(t, err)
	assert.NotEmpty(t, res)
}

func TestNonPositiveThresholdMatchesNothing(t *testing.T) {
	cfg := testConfig(t)
	emb := &fakeEmbedder{dim: 2, vectors: map[string][]float32{"q": {0, 1}, "doc": {0, 1}}}
	m, err := New(cfg, WithEmbedder(emb))
	require.NoError(t, err)
	_, err = m.AddDocumentFromText("doc", DocumentMeta{})
	require.NoError(t, err)

	for _, threshold := range []float32{0, -1} {
		res, err := m.SearchRelevantContent("q", 3, "", threshold)
		require.NoError(t, err)
		assert.Empty(t, res)
	}
	res, err := m.SearchRelevantContent("q", 3, "", 0.5)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Zero(t, res[0].Distance)
}
