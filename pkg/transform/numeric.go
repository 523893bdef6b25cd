package transform

import (
	"strconv"

	"github.com/prepkit/prepkit/pkg/dataset"
	"github.com/prepkit/prepkit/pkg/errors"
	"github.com/prepkit/prepkit/pkg/factory"
)

func init() {
	factory.Register(factory.Descriptor{
		Name:   "NumericFeaturizer",
		Family: "Featurizer",
		Params: []factory.ParamSpec{
			{Name: "inputs", Kind: factory.KindScalar},
			{Name: "outputs", Kind: factory.KindScalar},
		},
		New: func(params map[string]any) (any, error) {
			return NewNumericFeaturizer(factory.Params(params))
		},
	})
}

// NumericFeaturizer parses string fields into floats. Values that are
// already numeric pass through unchanged.
type NumericFeaturizer struct {
	inputs  []string
	outputs []string
	device  Device
}

// NewNumericFeaturizer builds the featurizer from factory parameters.
func NewNumericFeaturizer(params factory.Params) (*NumericFeaturizer, error) {
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

	return &NumericFeaturizer{inputs: inputs, outputs: outputs, device: DeviceCPU}, nil
}

// Run replaces each input field with its float value.
func (f *NumericFeaturizer) Run(sample *dataset.Sample) error {
	for i, field := range f.inputs {
		raw, ok := sample.Inputs[field]
		if !ok {
			return errors.Featurizationf("transform", "sample %d has no input %q", sample.ID, field)
		}

		switch v := raw.(type) {
		case float64:
			sample.Inputs[f.outputs[i]] = v
		case int:
			sample.Inputs[f.outputs[i]] = float64(v)
		case int64:
			sample.Inputs[f.outputs[i]] = float64(v)
		case string:
			value, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return errors.Featurizationf("transform", "sample %d: input %q is not numeric: %v", sample.ID, field, err)
			}
			sample.Inputs[f.outputs[i]] = value
		default:
			return errors.Featurizationf("transform", "sample %d: input %q is %T, want string or number", sample.ID, field, raw)
		}
	}
	return nil
}

func (f *NumericFeaturizer) SetDevice(device Device) {
	f.device = device
}
