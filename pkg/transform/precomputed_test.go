package transform

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prepkit/prepkit/pkg/dataset"
	"github.com/prepkit/prepkit/pkg/errors"
	"github.com/prepkit/prepkit/pkg/factory"
)

func writeFeatureFile(t *testing.T, folder, field, name string, value any) {
	t.Helper()

	data, err := dataset.EncodeValue(value)
	require.NoError(t, err)
	dir := filepath.Join(folder, field)
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name+".gob"), data, 0644))
}

func TestPrecomputedFeaturizer_LoadsByID(t *testing.T) {
	folder := t.TempDir()
	writeFeatureFile(t, folder, "embedding", "7", []float64{0.25, 0.75})

	f, err := NewPrecomputedFeaturizer(factory.Params{
		"folder": folder,
		"fields": []string{"embedding"},
	})
	require.NoError(t, err)

	sample := &dataset.Sample{ID: 7, Inputs: map[string]any{}}
	require.NoError(t, f.Run(sample))
	assert.Equal(t, []float64{0.25, 0.75}, sample.Inputs["embedding"])
}

func TestPrecomputedFeaturizer_LoadsByNamedField(t *testing.T) {
	folder := t.TempDir()
	writeFeatureFile(t, folder, "embedding", "mol-42", []float64{1})

	f, err := NewPrecomputedFeaturizer(factory.Params{
		"folder":  folder,
		"fields":  []string{"embedding"},
		"name_by": "key",
	})
	require.NoError(t, err)

	sample := &dataset.Sample{ID: 0, Inputs: map[string]any{"key": "mol-42"}}
	require.NoError(t, f.Run(sample))
	assert.Equal(t, []float64{1}, sample.Inputs["embedding"])
}

func TestPrecomputedFeaturizer_MissingFileFailsSample(t *testing.T) {
	f, err := NewPrecomputedFeaturizer(factory.Params{
		"folder": t.TempDir(),
		"fields": []string{"embedding"},
	})
	require.NoError(t, err)

	err = f.Run(&dataset.Sample{ID: 9, Inputs: map[string]any{}})
	require.Error(t, err)
	assert.True(t, errors.IsRecoverable(err))
	assert.True(t, errors.IsCategory(err, errors.CategoryFeaturization))
}

func TestPrecomputedFeaturizer_CorruptFileIsNotRecoverable(t *testing.T) {
	folder := t.TempDir()
	dir := filepath.Join(folder, "embedding")
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "3.gob"), []byte("garbage"), 0644))

	f, err := NewPrecomputedFeaturizer(factory.Params{
		"folder": folder,
		"fields": []string{"embedding"},
	})
	require.NoError(t, err)

	err = f.Run(&dataset.Sample{ID: 3, Inputs: map[string]any{}})
	require.Error(t, err)
	assert.False(t, errors.IsRecoverable(err))
	assert.True(t, errors.IsCategory(err, errors.CategorySerialization))
}
