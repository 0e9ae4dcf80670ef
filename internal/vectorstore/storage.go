package vectorstore

// Neighbor is one search hit: the position of the stored vector and its
// distance to the query.
type Neighbor struct {
	Position int
	Distance float32
}

// Index stores vectors by insertion position and answers exact nearest
// neighbour queries. Positions are stable: vectors are only ever appended.
type Index interface {
	Add(vectors [][]float32) error
	Search(query []float32, k int) ([]Neighbor, error)
	Len() int
	Dimension() int
	MarshalBinary() ([]byte, error)
	UnmarshalBinary(data []byte) error
}
