package dataset

import "github.com/prepkit/prepkit/pkg/errors"

// Chain presents several collections as one contiguous collection
// without copying. Lookups walk the parts in order, so part [0,a)
// covers indexes [0,a) and the next part continues from a.
type Chain struct {
	parts []Collection
}

// NewChain concatenates collections. Parts are referenced, not copied;
// later mutations of a part show through.
func NewChain(parts ...Collection) *Chain {
	return &Chain{parts: parts}
}

// Len sums the part lengths.
func (c *Chain) Len() int {
	total := 0
	for _, part := range c.parts {
		total += part.Len()
	}
	return total
}

// At resolves i against the part covering it.
func (c *Chain) At(i int) (*Sample, error) {
	if i < 0 {
		return nil, errors.Internalf("dataset", "index %d out of range [0,%d)", i, c.Len())
	}

	offset := i
	for _, part := range c.parts {
		if offset < part.Len() {
			return part.At(offset)
		}
		offset -= part.Len()
	}
	return nil, errors.Internalf("dataset", "index %d out of range [0,%d)", i, c.Len())
}
