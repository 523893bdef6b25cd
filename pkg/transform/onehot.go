package transform

import (
	"github.com/prepkit/prepkit/pkg/dataset"
	"github.com/prepkit/prepkit/pkg/errors"
	"github.com/prepkit/prepkit/pkg/factory"
)

func init() {
	factory.Register(factory.Descriptor{
		Name:   "OneHotFeaturizer",
		Family: "Featurizer",
		Params: []factory.ParamSpec{
			{Name: "inputs", Kind: factory.KindScalar},
			{Name: "outputs", Kind: factory.KindScalar},
			{Name: "alphabet", Kind: factory.KindScalar},
		},
		New: func(params map[string]any) (any, error) {
			return NewOneHotFeaturizer(factory.Params(params))
		},
	})
}

// OneHotFeaturizer encodes a string field character by character
// against a fixed alphabet, producing one row per character. A
// character outside the alphabet fails the sample.
type OneHotFeaturizer struct {
	inputs   []string
	outputs  []string
	alphabet []rune
	index    map[rune]int
	device   Device
}

// NewOneHotFeaturizer builds the featurizer from factory parameters.
func NewOneHotFeaturizer(params factory.Params) (*OneHotFeaturizer, error) {
	inputs, err := params.Strings("inputs")
	if err != nil {
		return nil, err
	}
	if len(inputs) == 0 {
		return nil, errors.Validationf("transform", "inputs must name at least one field")
	}
	outputs, err := params.Strings("outputs")
	if err != nil {
		return nil, err
	}
	if len(outputs) == 0 {
		outputs = inputs
	}
	if len(outputs) != len(inputs) {
		return nil, errors.Validationf("transform", "outputs must match inputs, got %d for %d", len(outputs), len(inputs))
	}
	alphabet, err := params.RequireString("alphabet")
	if err != nil {
		return nil, err
	}
	if alphabet == "" {
		return nil, errors.Validationf("transform", "alphabet must not be empty")
	}

	f := &OneHotFeaturizer{
		inputs:   inputs,
		outputs:  outputs,
		alphabet: []rune(alphabet),
		index:    make(map[rune]int),
		device:   DeviceCPU,
	}
	for i, r := range f.alphabet {
		f.index[r] = i
	}
	return f, nil
}

// Run replaces each input field with its one-hot matrix.
func (f *OneHotFeaturizer) Run(sample *dataset.Sample) error {
	for i, field := range f.inputs {
		raw, ok := sample.Inputs[field]
		if !ok {
			return errors.Featurizationf("transform", "sample %d has no input %q", sample.ID, field)
		}
		text, ok := raw.(string)
		if !ok {
			return errors.Featurizationf("transform", "sample %d: input %q is %T, want string", sample.ID, field, raw)
		}

		runes := []rune(text)
		matrix := make([][]float64, len(runes))
		for j, r := range runes {
			col, ok := f.index[r]
			if !ok {
				return errors.Featurizationf("transform", "sample %d: character %q not in alphabet", sample.ID, r)
			}
			row := make([]float64, len(f.alphabet))
			row[col] = 1
			matrix[j] = row
		}

		sample.Inputs[f.outputs[i]] = matrix
	}
	return nil
}

func (f *OneHotFeaturizer) SetDevice(device Device) {
	f.device = device
}
