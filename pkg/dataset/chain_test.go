package dataset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChain_WalksPartsInOrder(t *testing.T) {
	first := NewList(sampleFixture(0), sampleFixture(1))
	second := NewList(sampleFixture(2))
	third := NewList(sampleFixture(3), sampleFixture(4))

	chain := NewChain(first, second, third)
	require.Equal(t, 5, chain.Len())

	for i := int64(0); i < 5; i++ {
		s, err := chain.At(int(i))
		require.NoError(t, err)
		assert.Equal(t, i, s.ID)
	}
}

func TestChain_SkipsEmptyParts(t *testing.T) {
	chain := NewChain(NewList(), NewList(sampleFixture(7)), NewList())
	require.Equal(t, 1, chain.Len())

	s, err := chain.At(0)
	require.NoError(t, err)
	assert.Equal(t, int64(7), s.ID)
}

func TestChain_OutOfRange(t *testing.T) {
	chain := NewChain(NewList(sampleFixture(0)))

	_, err := chain.At(1)
	assert.Error(t, err)
	_, err = chain.At(-1)
	assert.Error(t, err)
}

func TestChain_SeesPartMutations(t *testing.T) {
	tail := NewList()
	chain := NewChain(NewList(sampleFixture(0)), tail)
	require.Equal(t, 1, chain.Len())

	tail.Append(sampleFixture(1))
	require.Equal(t, 2, chain.Len())

	s, err := chain.At(1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), s.ID)
}
