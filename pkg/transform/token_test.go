package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prepkit/prepkit/pkg/dataset"
	"github.com/prepkit/prepkit/pkg/errors"
	"github.com/prepkit/prepkit/pkg/factory"
	"github.com/prepkit/prepkit/pkg/loader"
)

func textSample(id int64, text string) *dataset.Sample {
	return &dataset.Sample{
		ID:      id,
		Inputs:  map[string]any{"text": text},
		Outputs: []float64{0},
	}
}

func TestTokenFeaturizer_BuildsVocabularyAcrossSamples(t *testing.T) {
	f, err := NewTokenFeaturizer(factory.Params{"inputs": []string{"text"}})
	require.NoError(t, err)

	first := textSample(0, "hello world")
	require.NoError(t, f.Run(first))
	assert.Equal(t, []int64{1, 2}, first.Inputs["text"])

	second := textSample(1, "world again")
	require.NoError(t, f.Run(second))
	assert.Equal(t, []int64{2, 3}, second.Inputs["text"])

	assert.Equal(t, 3, f.VocabSize())
}

func TestTokenFeaturizer_EmptyTextFailsSample(t *testing.T) {
	f, err := NewTokenFeaturizer(factory.Params{"inputs": []string{"text"}})
	require.NoError(t, err)

	err = f.Run(textSample(5, "   "))
	require.Error(t, err)
	assert.True(t, errors.IsRecoverable(err))
	assert.True(t, errors.IsCategory(err, errors.CategoryFeaturization))
}

func TestTokenFeaturizer_WarmFreezesVocabulary(t *testing.T) {
	f, err := NewTokenFeaturizer(factory.Params{"inputs": []string{"text"}, "should_cache": true})
	require.NoError(t, err)
	assert.True(t, f.ShouldCache())

	require.NoError(t, f.Warm([]string{"alpha beta", "gamma"}))

	sample := textSample(0, "beta delta")
	require.NoError(t, f.Run(sample))

	assert.Equal(t, []int64{2, 0}, sample.Inputs["text"])
	assert.Equal(t, 3, f.VocabSize())
}

func TestTokenFeaturizer_StateRoundtrip(t *testing.T) {
	warmed, err := NewTokenFeaturizer(factory.Params{"inputs": []string{"text"}})
	require.NoError(t, err)
	require.NoError(t, warmed.Warm([]string{"alpha beta gamma"}))

	state, err := warmed.ExportState()
	require.NoError(t, err)

	fresh, err := NewTokenFeaturizer(factory.Params{"inputs": []string{"text"}})
	require.NoError(t, err)
	require.NoError(t, fresh.ImportState(state))

	sample := textSample(0, "gamma unseen")
	require.NoError(t, fresh.Run(sample))
	assert.Equal(t, []int64{3, 0}, sample.Inputs["text"])
}

func TestTokenFeaturizer_UniqueInputs(t *testing.T) {
	list := dataset.NewList(
		textSample(0, "zebra"),
		textSample(1, "alpha"),
		textSample(2, "zebra"),
	)

	f, err := NewTokenFeaturizer(factory.Params{"inputs": []string{"text"}})
	require.NoError(t, err)

	values, err := f.UniqueInputs(loader.NewListLoader(list, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "zebra"}, values)
}

func TestTokenFeaturizer_FactoryConstructionWithNormalizer(t *testing.T) {
	built, err := factory.Create("Featurizer", factory.Spec{
		"type":       "token",
		"inputs":     []any{"text"},
		"normalizer": map[string]any{"type": "lowercase"},
	}, nil)
	require.NoError(t, err)

	f, ok := built.(*TokenFeaturizer)
	require.True(t, ok)

	upper := textSample(0, "Hello WORLD")
	require.NoError(t, f.Run(upper))
	lower := textSample(1, "hello world")
	require.NoError(t, f.Run(lower))

	assert.Equal(t, upper.Inputs["text"], lower.Inputs["text"])
}
