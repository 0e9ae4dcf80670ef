// Package flat implements an exact brute-force vector index scored by squared
// Euclidean distance.
package flat

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sort"

	"mhassist/internal/domain"
	"mhassist/internal/vectorstore"
)

const (
	magic   = "MHFL"
	version = uint32(1)
	// TypeName identifies the index kind in stats output.
	TypeName = "flat-l2"
)

var _ vectorstore.Index = (*Index)(nil)

// Index keeps vectors in insertion order. The zero value is an empty index
// whose dimension is fixed by the first non-empty Add.
type Index struct {
	dim  int
	vecs [][]float32
}

// New returns an empty index with the dimension fixed up front.
func New(dim int) *Index { return &Index{dim: dim} }

// Len returns the number of stored vectors.
func (i *Index) Len() int { return len(i.vecs) }

// Dimension returns the vector dimension, or 0 when not yet known.
func (i *Index) Dimension() int { return i.dim }

// Add appends vectors. The whole batch is rejected if any vector does not
// match the index dimension.
func (i *Index) Add(vectors [][]float32) error {
	if len(vectors) == 0 {
		return nil
	}
	dim := i.dim
	if dim == 0 {
		dim = len(vectors[0])
	}
	if dim == 0 {
		return fmt.Errorf("%w: empty vector", domain.ErrDimensionMismatch)
	}
	for j, v := range vectors {
		if len(v) != dim {
			return fmt.Errorf("%w: vector %d has %d values, index expects %d", domain.ErrDimensionMismatch, j, len(v), dim)
		}
	}
	i.dim = dim
	for _, v := range vectors {
		i.vecs = append(i.vecs, append([]float32(nil), v...))
	}
	return nil
}

// Search returns up to k stored vectors in ascending distance order. Ties keep
// insertion order. An empty index or k <= 0 yields no neighbours.
func (i *Index) Search(query []float32, k int) ([]vectorstore.Neighbor, error) {
	if len(i.vecs) == 0 || k <= 0 {
		return nil, nil
	}
	if len(query) != i.dim {
		return nil, fmt.Errorf("%w: query has %d values, index expects %d", domain.ErrDimensionMismatch, len(query), i.dim)
	}
	all := make([]vectorstore.Neighbor, len(i.vecs))
	for j, v := range i.vecs {
		all[j] = vectorstore.Neighbor{Position: j, Distance: SquaredL2(query, v)}
	}
	sort.SliceStable(all, func(a, b int) bool { return all[a].Distance < all[b].Distance })
	if k > len(all) {
		k = len(all)
	}
	return all[:k], nil
}

// Clone returns a deep copy that can be mutated independently.
func (i *Index) Clone() *Index {
	out := &Index{dim: i.dim, vecs: make([][]float32, len(i.vecs))}
	for j, v := range i.vecs {
		out.vecs[j] = append([]float32(nil), v...)
	}
	return out
}

// Vector returns a copy of the vector stored at position.
func (i *Index) Vector(position int) ([]float32, bool) {
	if position < 0 || position >= len(i.vecs) {
		return nil, false
	}
	return append([]float32(nil), i.vecs[position]...), true
}

// SquaredL2 returns the squared Euclidean distance between a and b, which
// must have equal length.
func SquaredL2(a, b []float32) float32 {
	var s float64
	for j := range a {
		d := float64(a[j]) - float64(b[j])
		s += d * d
	}
	return float32(s)
}

// MarshalBinary stores: magic(4 bytes), version(uint32), dim(uint32),
// n(uint32), then n*dim little-endian float32 values.
func (i *Index) MarshalBinary() ([]byte, error) {
	out := make([]byte, 0, 16+4*i.dim*len(i.vecs))
	out = append(out, magic...)
	out = binary.LittleEndian.AppendUint32(out, version)
	out = binary.LittleEndian.AppendUint32(out, uint32(i.dim))
	out = binary.LittleEndian.AppendUint32(out, uint32(len(i.vecs)))
	for _, v := range i.vecs {
		for _, f := range v {
			out = binary.LittleEndian.AppendUint32(out, math.Float32bits(f))
		}
	}
	return out, nil
}

// UnmarshalBinary restores the index from bytes produced by MarshalBinary.
func (i *Index) UnmarshalBinary(data []byte) error {
	if len(data) < 16 || string(data[:4]) != magic {
		return errors.New("flat: invalid header")
	}
	if v := binary.LittleEndian.Uint32(data[4:8]); v != version {
		return fmt.Errorf("flat: unsupported version %d", v)
	}
	dim32 := binary.LittleEndian.Uint32(data[8:12])
	n32 := binary.LittleEndian.Uint32(data[12:16])
	if n32 > 0 && dim32 == 0 {
		return errors.New("flat: vectors without dimension")
	}
	// compared in float32 units: dim*n fits in uint64 for any header, 4*dim*n does not
	payload := uint64(len(data) - 16)
	if payload%4 != 0 || payload/4 != uint64(dim32)*uint64(n32) {
		return fmt.Errorf("flat: payload is %d bytes for %d vectors of dimension %d", payload, n32, dim32)
	}
	dim, n := int(dim32), int(n32)
	vecs := make([][]float32, n)
	off := 16
	for j := range vecs {
		vec := make([]float32, dim)
		for d := range vec {
			vec[d] = math.Float32frombits(binary.LittleEndian.Uint32(data[off : off+4]))
			off += 4
		}
		vecs[j] = vec
	}
	i.dim = dim
	i.vecs = vecs
	return nil
}
