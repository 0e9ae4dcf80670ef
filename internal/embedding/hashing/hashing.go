// Package hashing implements an offline embedder that maps word unigrams and
// bigrams into a fixed number of signed buckets.
package hashing

import (
	"fmt"
	"hash/fnv"
	"math"
	"strconv"
	"strings"

	"mhassist/internal/textutil"
)

const (
	Prefix     = "hashing"
	DefaultDim = 384
)

// Embedder is deterministic and needs no corpus preparation, so vectors built
// at index time stay comparable with vectors built for later queries.
type Embedder struct {
	name string
	dim  int
}

// New parses model names of the form "hashing" or "hashing-<dim>".
func New(model string) (*Embedder, error) {
	dim, err := ParseModel(model)
	if err != nil {
		return nil, err
	}
	return &Embedder{name: model, dim: dim}, nil
}

func ParseModel(model string) (int, error) {
	if model == Prefix {
		return DefaultDim, nil
	}
	rest, ok := strings.CutPrefix(model, Prefix+"-")
	if !ok {
		return 0, fmt.Errorf("hashing: unsupported model name %q", model)
	}
	dim, err := strconv.Atoi(rest)
	if err != nil || dim < 8 || dim > 1<<16 {
		return 0, fmt.Errorf("hashing: invalid dimension in model name %q", model)
	}
	return dim, nil
}

func (e *Embedder) ModelName() string { return e.name }

func (e *Embedder) Dimension() int { return e.dim }

// Encode embeds each text independently. Texts without any content token map
// to the zero vector.
func (e *Embedder) Encode(texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = e.embed(text)
	}
	return out, nil
}

func (e *Embedder) embed(text string) []float32 {
	tokens := textutil.ContentTokens(text)
	tf := make(map[string]int, 2*len(tokens))
	for i, tok := range tokens {
		tf[tok]++
		if i > 0 {
			tf[tokens[i-1]+" "+tok]++
		}
	}
	acc := make([]float64, e.dim)
	for feature, count := range tf {
		bucket, sign := e.slot(feature)
		acc[bucket] += sign * (1 + math.Log(float64(count)))
	}
	// L2 normalize
	norm := 0.0
	for _, v := range acc {
		norm += v * v
	}
	norm = math.Sqrt(norm)
	vec := make([]float32, e.dim)
	if norm == 0 {
		return vec
	}
	for i, v := range acc {
		vec[i] = float32(v / norm)
	}
	return vec
}

func (e *Embedder) slot(feature string) (int, float64) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()
	sign := 1.0
	if sum>>63 == 1 {
		sign = -1.0
	}
	return int(sum % uint64(e.dim)), sign
}
