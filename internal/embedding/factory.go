package embedding

import (
	"fmt"
	"time"

	"mhassist/internal/config"
	"mhassist/internal/domain"
	"mhassist/internal/embedding/hashing"
	"mhassist/internal/embedding/openai"
)

// New returns a lazily loaded embedder for the configured backend.
func New(cfg config.RAGConfig) *Lazy {
	model := cfg.EmbeddingsModel
	switch cfg.Embedder.Type {
	case "hashing", "":
		return NewLazy(model, func() (domain.Embedder, error) {
			return hashing.New(model)
		})
	case "openai":
		return NewLazy(model, func() (domain.Embedder, error) {
			oc := cfg.Embedder.OpenAI
			if oc == nil {
				return nil, fmt.Errorf("openai embedder config missing")
			}
			return openai.NewClient(openai.Config{
				BaseURL:   oc.BaseURL,
				APIKeyEnv: oc.APIKeyEnv,
				Model:     model,
				Timeout:   time.Duration(oc.TimeoutSecs) * time.Second,
				BatchSize: oc.BatchSize,
			})
		})
	default:
		return NewLazy(model, func() (domain.Embedder, error) {
			return nil, fmt.Errorf("unknown embedder: %s", cfg.Embedder.Type)
		})
	}
}
