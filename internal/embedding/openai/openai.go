package openai

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"os"
	"sort"
	"time"

	goopenai "github.com/sashabaranov/go-openai"
	log "github.com/sirupsen/logrus"

	"mhassist/internal/backoff"
)

// Client is an OpenAI-compatible embeddings client implementing domain.Embedder.
type Client struct {
	client     *goopenai.Client
	model      string
	timeout    time.Duration
	batchSize  int
	dimension  int
	maxRetries int
	retryBase  time.Duration
}

// Config configures the OpenAI-compatible embeddings client.
type Config struct {
	BaseURL   string
	APIKeyEnv string
	Model     string
	Timeout   time.Duration
	BatchSize int

	// MaxRetries and RetryBase default to 5 and 200ms.
	MaxRetries int
	RetryBase  time.Duration
}

// NewClient creates a client and calls the endpoint once to learn the
// embedding dimension, so an unreachable or misconfigured model fails here.
func NewClient(cfg Config) (*Client, error) {
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 200 * time.Millisecond
	}
	oc := goopenai.DefaultConfig(key)
	oc.BaseURL = cfg.BaseURL
	oc.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	c := &Client{
		client:     goopenai.NewClientWithConfig(oc),
		model:      cfg.Model,
		timeout:    cfg.Timeout,
		batchSize:  cfg.BatchSize,
		maxRetries: cfg.MaxRetries,
		retryBase:  cfg.RetryBase,
	}
	sample, err := c.embedBatch([]string{"dimension check"})
	if err != nil {
		return nil, fmt.Errorf("query embeddings endpoint: %w", err)
	}
	c.dimension = len(sample[0])
	return c, nil
}

func (c *Client) ModelName() string { return c.model }

// Dimension returns the dimensionality learned from the first request.
func (c *Client) Dimension() int { return c.dimension }

// Encode embeds texts in batches of the configured size.
func (c *Client) Encode(texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += c.batchSize {
		end := min(start+c.batchSize, len(texts))
		vecs, err := c.embedBatch(texts[start:end])
		if err != nil {
			return nil, err
		}
		for _, v := range vecs {
			if c.dimension != 0 && len(v) != c.dimension {
				return nil, fmt.Errorf("openai embeddings: got %d dimensions, expected %d", len(v), c.dimension)
			}
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (c *Client) embedBatch(batch []string) ([][]float32, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(backoff.Delay(c.retryBase, attempt-1, 5*time.Second))
		}
		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		resp, err := c.client.CreateEmbeddings(ctx, goopenai.EmbeddingRequest{
			Input: batch,
			Model: goopenai.EmbeddingModel(c.model),
		})
		cancel()
		if err != nil {
			lastErr = err
			if !backoff.Retryable(err) {
				return nil, fmt.Errorf("openai embeddings failed: %w", err)
			}
			log.WithError(err).WithField("attempt", attempt+1).Warn("embeddings request failed, retrying")
			continue
		}
		if len(resp.Data) != len(batch) {
			return nil, fmt.Errorf("openai embeddings: got %d vectors for %d inputs", len(resp.Data), len(batch))
		}
		sort.Slice(resp.Data, func(i, j int) bool { return resp.Data[i].Index < resp.Data[j].Index })
		out := make([][]float32, len(resp.Data))
		for i, d := range resp.Data {
			if len(d.Embedding) == 0 {
				return nil, errors.New("no embedding returned")
			}
			v := append([]float32(nil), d.Embedding...)
			l2normalize(v)
			out[i] = v
		}
		return out, nil
	}
	return nil, fmt.Errorf("openai embeddings failed after %d attempts: %w", c.maxRetries+1, lastErr)
}

func l2normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
}
