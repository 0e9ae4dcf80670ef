package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"mhassist/internal/domain"
)

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
// The model name comes from RAGConfig.EmbeddingsModel.
type OpenAIEmbedderConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	TimeoutSecs int    `yaml:"timeout_secs"`
	BatchSize   int    `yaml:"batch_size"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type   string                `yaml:"type"`
	OpenAI *OpenAIEmbedderConfig `yaml:"openai,omitempty"`
}

// RAGConfig configures retrieval: corpus location, chunking, index location
// and the relevance thresholds. Thresholds are raw squared L2 distances and
// are only meaningful for the embedding model they were tuned against.
type RAGConfig struct {
	Enabled          bool           `yaml:"enabled"`
	DocumentsDir     string         `yaml:"documents_dir"`
	IndexDir         string         `yaml:"index_dir"`
	EmbeddingsModel  string         `yaml:"embeddings_model"`
	ChunkSize        int            `yaml:"chunk_size"`
	ChunkOverlap     int            `yaml:"chunk_overlap"`
	SearchK          int            `yaml:"search_k"`
	MaxContextLength int            `yaml:"max_context_length"`
	SearchThreshold  float32        `yaml:"search_threshold"`
	ContextK         int            `yaml:"context_k"`
	ContextThreshold float32        `yaml:"context_threshold"`
	MinTruncation    int            `yaml:"min_truncation"`
	SupportedFormats []string       `yaml:"supported_formats"`
	Embedder         EmbedderConfig `yaml:"embedder"`
}

// LLMConfig configures the OpenAI-compatible chat completion endpoint.
type LLMConfig struct {
	BaseURL           string  `yaml:"base_url"`
	APIKeyEnv         string  `yaml:"api_key_env"`
	Model             string  `yaml:"model"`
	Temperature       float32 `yaml:"temperature"`
	MaxTokens         int     `yaml:"max_tokens"`
	RetryAttempts     int     `yaml:"retry_attempts"`
	RetryDelayMs      int     `yaml:"retry_delay_ms"`
	TimeoutSecs       int     `yaml:"timeout_secs"`
	RequestsPerMinute int     `yaml:"requests_per_minute"`
}

// HistoryConfig selects where conversation turns are kept.
type HistoryConfig struct {
	Type        string `yaml:"type"`
	SQLitePath  string `yaml:"sqlite_path"`
	MaxMessages int    `yaml:"max_messages"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Address     string        `yaml:"address"`
	CORSOrigins []string      `yaml:"cors_origins"`
	History     HistoryConfig `yaml:"history"`
}

// SummarizerConfig selects and configures the summarizer.
type SummarizerConfig struct {
	Type         string `yaml:"type"`
	MaxSentences int    `yaml:"max_sentences"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	RAG        RAGConfig        `yaml:"rag"`
	LLM        LLMConfig        `yaml:"llm"`
	Server     ServerConfig     `yaml:"server"`
	Summarizer SummarizerConfig `yaml:"summarizer"`
	Log        LogConfig        `yaml:"log"`
}

// Load reads a config from a specified path. If the file does not exist, returns
// defaults. Environment overrides are applied last, then the result is validated.
func Load(path string) (*AppConfig, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		dec := yaml.NewDecoder(strings.NewReader(os.ExpandEnv(string(data))))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	if err := applyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	applyConfigDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/mhassist/config.yaml.
// If neither exists, it writes defaults to ~/.config/mhassist/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	if err := Save(userPath, Default()); err != nil {
		return nil, "", err
	}
	cfg, err := Load(userPath)
	return cfg, userPath, err
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate checks the invariants other packages rely on.
func (c *AppConfig) Validate() error {
	r := c.RAG
	var problems []string
	if r.ChunkSize <= 0 {
		problems = append(problems, "rag.chunk_size must be positive")
	}
	if r.ChunkOverlap < 0 || r.ChunkOverlap >= r.ChunkSize {
		problems = append(problems, "rag.chunk_overlap must be >= 0 and smaller than rag.chunk_size")
	}
	if r.SearchK <= 0 || r.ContextK <= 0 {
		problems = append(problems, "rag.search_k and rag.context_k must be positive")
	}
	if r.MaxContextLength <= 0 {
		problems = append(problems, "rag.max_context_length must be positive")
	}
	if r.SearchThreshold <= 0 || r.ContextThreshold <= 0 {
		problems = append(problems, "rag thresholds must be positive")
	}
	if r.DocumentsDir == "" || r.IndexDir == "" {
		problems = append(problems, "rag.documents_dir and rag.index_dir are required")
	}
	switch r.Embedder.Type {
	case "hashing", "openai":
	default:
		problems = append(problems, fmt.Sprintf("unknown rag.embedder.type %q", r.Embedder.Type))
	}
	switch c.Server.History.Type {
	case "memory", "sqlite":
	default:
		problems = append(problems, fmt.Sprintf("unknown server.history.type %q", c.Server.History.Type))
	}
	if c.Summarizer.Type != "frequency" {
		problems = append(problems, fmt.Sprintf("unknown summarizer.type %q", c.Summarizer.Type))
	}
	if c.LLM.RequestsPerMinute < 0 {
		problems = append(problems, "llm.requests_per_minute must not be negative")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", domain.ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// Default returns the built-in configuration.
func Default() *AppConfig {
	return &AppConfig{
		RAG: RAGConfig{
			Enabled:          true,
			DocumentsDir:     "data/documents",
			IndexDir:         "data/faiss_index",
			EmbeddingsModel:  "hashing-384",
			ChunkSize:        1000,
			ChunkOverlap:     200,
			SearchK:          3,
			MaxContextLength: 2000,
			SearchThreshold:  1.0,
			ContextK:         3,
			ContextThreshold: 1.2,
			MinTruncation:    100,
			SupportedFormats: []string{".md", ".txt"},
			Embedder:         EmbedderConfig{Type: "hashing"},
		},
		LLM: LLMConfig{
			BaseURL:       "https://api.groq.com/openai/v1",
			APIKeyEnv:     "GROQ_API_KEY",
			Model:         "gemma2-9b-it",
			Temperature:   0.7,
			MaxTokens:     500,
			RetryAttempts: 3,
			RetryDelayMs:  1000,
			TimeoutSecs:   30,
		},
		Server: ServerConfig{
			Address:     ":7860",
			CORSOrigins: []string{"*"},
			History:     HistoryConfig{Type: "memory", SQLitePath: "data/history.db", MaxMessages: 20},
		},
		Summarizer: SummarizerConfig{Type: "frequency", MaxSentences: 3},
		Log:        LogConfig{Level: "info", Format: "text"},
	}
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "mhassist", "config.yaml"), nil
}

// applyEnv overlays the RAG_* variables on top of file values.
func applyEnv(cfg *AppConfig, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not an integer", domain.ErrInvalidConfig, key, v)
		}
		*dst = n
		return nil
	}
	if v, ok := lookup("RAG_ENABLED"); ok && v != "" {
		cfg.RAG.Enabled = strings.EqualFold(v, "true") || v == "1" || strings.EqualFold(v, "yes")
	}
	str("RAG_DOCUMENTS_DIR", &cfg.RAG.DocumentsDir)
	str("RAG_INDEX_DIR", &cfg.RAG.IndexDir)
	str("RAG_EMBEDDINGS_MODEL", &cfg.RAG.EmbeddingsModel)
	for key, dst := range map[string]*int{
		"RAG_CHUNK_SIZE":         &cfg.RAG.ChunkSize,
		"RAG_CHUNK_OVERLAP":      &cfg.RAG.ChunkOverlap,
		"RAG_MAX_CONTEXT_LENGTH": &cfg.RAG.MaxContextLength,
		"RAG_SEARCH_K":           &cfg.RAG.SearchK,
	} {
		if err := num(key, dst); err != nil {
			return err
		}
	}
	str("LLM_MODEL", &cfg.LLM.Model)
	return nil
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.RAG.Embedder.Type == "" {
		cfg.RAG.Embedder.Type = "hashing"
	}
	if cfg.RAG.MinTruncation <= 0 {
		cfg.RAG.MinTruncation = 100
	}
	if len(cfg.RAG.SupportedFormats) == 0 {
		cfg.RAG.SupportedFormats = []string{".md", ".txt"}
	}
	for i, f := range cfg.RAG.SupportedFormats {
		f = strings.ToLower(f)
		if !strings.HasPrefix(f, ".") {
			f = "." + f
		}
		cfg.RAG.SupportedFormats[i] = f
	}
	if cfg.RAG.Embedder.Type == "openai" {
		if cfg.RAG.Embedder.OpenAI == nil {
			cfg.RAG.Embedder.OpenAI = &OpenAIEmbedderConfig{}
		}
		o := cfg.RAG.Embedder.OpenAI
		if o.BaseURL == "" {
			o.BaseURL = "https://api.openai.com/v1"
		}
		if o.APIKeyEnv == "" {
			o.APIKeyEnv = "OPENAI_API_KEY"
		}
		if o.TimeoutSecs == 0 {
			o.TimeoutSecs = 30
		}
		if o.BatchSize == 0 {
			o.BatchSize = 32
		}
		if strings.HasPrefix(cfg.RAG.EmbeddingsModel, "hashing") {
			cfg.RAG.EmbeddingsModel = "text-embedding-3-small"
		}
	}
	if cfg.LLM.RetryAttempts <= 0 {
		cfg.LLM.RetryAttempts = 1
	}
	if cfg.LLM.TimeoutSecs == 0 {
		cfg.LLM.TimeoutSecs = 30
	}
	if cfg.Server.History.Type == "" {
		cfg.Server.History.Type = "memory"
	}
	if cfg.Server.History.MaxMessages <= 0 {
		cfg.Server.History.MaxMessages = 20
	}
	if cfg.Summarizer.Type == "" {
		cfg.Summarizer.Type = "frequency"
	}
	if cfg.Summarizer.MaxSentences <= 0 {
		cfg.Summarizer.MaxSentences = 3
	}
}
