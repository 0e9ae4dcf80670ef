package embedding

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mhassist/internal/config"
	"mhassist/internal/domain"
	"mhassist/internal/embedding/hashing"
)

func TestLazyLoadsExactlyOnce(t *testing.T) {
	loads := 0
	l := NewLazy("hashing-32", func() (domain.Embedder, error) {
		loads++
		return hashing.New("hashing-32")
	})
	assert.False(t, l.Loaded())
	assert.Equal(t, 0, loads)

	_, err := l.Encode([]string{"one"})
	require.NoError(t, err)
	_, err = l.Encode([]string{"two", "three"})
	require.NoError(t, err)
	assert.Equal(t, 32, l.Dimension())

	assert.Equal(t, 1, loads)
	assert.True(t, l.Loaded())
	assert.Equal(t, "hashing-32", l.ModelName())
}

func TestLazyRemembersLoadFailure(t *testing.T) {
	loads := 0
	l := NewLazy("missing-model", func() (domain.Embedder, error) {
		loads++
		return nil, errors.New("weights not found")
	})

	_, err := l.Encode([]string{"x"})
	assert.ErrorIs(t, err, domain.ErrConfiguration)
	assert.ErrorIs(t, l.Load(), domain.ErrConfiguration)
	assert.Equal(t, 0, l.Dimension())
	assert.Equal(t, 1, loads)
}

func TestLazyEmptyBatch(t *testing.T) {
	l := NewLazy("hashing-8", func() (domain.Embedder, error) { return hashing.New("hashing-8") })
	vecs, err := l.Encode(nil)
	require.NoError(t, err)
	assert.Empty(t, vecs)
}

func TestNewFromConfig(t *testing.T) {
	cfg := config.Default().RAG
	emb := New(cfg)
	require.NoError(t, emb.Load())
	assert.Equal(t, hashing.DefaultDim, emb.Dimension())

	cfg.EmbeddingsModel = "all-MiniLM-L6-v2"
	assert.ErrorIs(t, New(cfg).Load(), domain.ErrConfiguration)

	cfg.Embedder.Type = "openai"
	cfg.Embedder.OpenAI = &config.OpenAIEmbedderConfig{APIKeyEnv: "MHASSIST_TEST_UNSET_KEY"}
	t.Setenv("MHASSIST_TEST_UNSET_KEY", "")
	assert.ErrorIs(t, New(cfg).Load(), domain.ErrConfiguration)
}
