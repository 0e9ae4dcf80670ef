// Package embedding provides the text embedders used for indexing and
// retrieval, and the lazy wrapper that loads a model on first use.
package embedding

import (
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"mhassist/internal/domain"
)

// Loader builds a ready-to-use embedder. It is called at most once.
type Loader func() (domain.Embedder, error)

// Lazy defers model loading until the first call that needs it. A failed
// load is remembered and reported on every later call.
type Lazy struct {
	model string
	load  Loader

	once sync.Once
	emb  domain.Embedder
	err  error
}

var _ domain.Embedder = (*Lazy)(nil)

func NewLazy(model string, load Loader) *Lazy {
	return &Lazy{model: model, load: load}
}

// Load forces the model to load and returns the load error, if any.
func (l *Lazy) Load() error {
	_, err := l.get()
	return err
}

// Loaded reports whether a load was attempted and succeeded.
func (l *Lazy) Loaded() bool {
	return l.emb != nil
}

func (l *Lazy) get() (domain.Embedder, error) {
	l.once.Do(func() {
		log.WithField("model", l.model).Info("loading embedding model")
		emb, err := l.load()
		if err != nil {
			l.err = fmt.Errorf("%w: load embedding model %q: %v", domain.ErrConfiguration, l.model, err)
			log.WithError(err).WithField("model", l.model).Error("embedding model failed to load")
			return
		}
		l.emb = emb
	})
	return l.emb, l.err
}

// Encode embeds texts, loading the model first if needed.
func (l *Lazy) Encode(texts []string) ([][]float32, error) {
	emb, err := l.get()
	if err != nil {
		return nil, err
	}
	if len(texts) == 0 {
		return nil, nil
	}
	vecs, err := emb.Encode(texts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vecs), len(texts))
	}
	return vecs, nil
}

// Dimension returns the model dimension, or 0 when the model cannot be loaded.
func (l *Lazy) Dimension() int {
	emb, err := l.get()
	if err != nil {
		return 0
	}
	return emb.Dimension()
}

func (l *Lazy) ModelName() string { return l.model }
