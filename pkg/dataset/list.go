package dataset

import (
	"github.com/prepkit/prepkit/pkg/errors"
)

// Collection is an ordered, index-addressable set of samples.
type Collection interface {
	Len() int
	At(i int) (*Sample, error)
}

// List is the in-memory collection returned by bulk runs.
type List struct {
	samples []*Sample
}

// NewList creates a list over the given samples.
func NewList(samples ...*Sample) *List {
	return &List{samples: samples}
}

// Len returns the number of samples.
func (l *List) Len() int {
	return len(l.samples)
}

// At returns the i-th sample.
func (l *List) At(i int) (*Sample, error) {
	if i < 0 || i >= len(l.samples) {
		return nil, errors.Internalf("dataset", "index %d out of range [0,%d)", i, len(l.samples))
	}
	return l.samples[i], nil
}

// Append adds samples to the end of the list.
func (l *List) Append(samples ...*Sample) {
	l.samples = append(l.samples, samples...)
}

// Concat appends every sample of other, preserving order.
func (l *List) Concat(other *List) {
	l.samples = append(l.samples, other.samples...)
}

// Samples returns the backing slice.
func (l *List) Samples() []*Sample {
	return l.samples
}

// Subset is an index view over another collection. Chunk workers operate
// on subsets of the source so the source itself is never partitioned.
type Subset struct {
	source  Collection
	indices []int
}

// NewSubset creates a view over source at the given indices.
func NewSubset(source Collection, indices []int) *Subset {
	return &Subset{source: source, indices: indices}
}

// NewRangeSubset creates a view over source spanning [lo, hi).
func NewRangeSubset(source Collection, lo, hi int) *Subset {
	indices := make([]int, 0, hi-lo)
	for i := lo; i < hi; i++ {
		indices = append(indices, i)
	}
	return &Subset{source: source, indices: indices}
}

// Len returns the view's size.
func (s *Subset) Len() int {
	return len(s.indices)
}

// At resolves the i-th view index against the source.
func (s *Subset) At(i int) (*Sample, error) {
	if i < 0 || i >= len(s.indices) {
		return nil, errors.Internalf("dataset", "index %d out of range [0,%d)", i, len(s.indices))
	}
	return s.source.At(s.indices[i])
}

// Indices returns the view's source indices.
func (s *Subset) Indices() []int {
	return s.indices
}
