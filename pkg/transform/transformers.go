package transform

import (
	"math"

	"github.com/prepkit/prepkit/pkg/dataset"
	"github.com/prepkit/prepkit/pkg/errors"
	"github.com/prepkit/prepkit/pkg/factory"
)

func init() {
	factory.Register(factory.Descriptor{
		Name:   "LogTransformer",
		Family: "Transformer",
		New: func(params map[string]any) (any, error) {
			return &LogTransformer{}, nil
		},
	})
	factory.Register(factory.Descriptor{
		Name:   "ScaleTransformer",
		Family: "Transformer",
		Params: []factory.ParamSpec{
			{Name: "mean", Kind: factory.KindScalar},
			{Name: "std", Kind: factory.KindScalar},
		},
		New: func(params map[string]any) (any, error) {
			return NewScaleTransformer(factory.Params(params))
		},
	})
}

// LogTransformer maps outputs through log1p. Reverse maps them back
// through expm1.
type LogTransformer struct{}

func (*LogTransformer) Apply(sample *dataset.Sample) error {
	outputs := make([]float64, len(sample.Outputs))
	for i, v := range sample.Outputs {
		outputs[i] = math.Log1p(v)
	}
	sample.Outputs = outputs
	return nil
}

func (*LogTransformer) Reverse(sample *dataset.Sample) error {
	outputs := make([]float64, len(sample.Outputs))
	for i, v := range sample.Outputs {
		outputs[i] = math.Expm1(v)
	}
	sample.Outputs = outputs
	return nil
}

// ScaleTransformer standardizes outputs with a fixed mean and standard
// deviation. Reverse applies the inverse affine map.
type ScaleTransformer struct {
	mean float64
	std  float64
}

// NewScaleTransformer builds the transformer from factory parameters.
func NewScaleTransformer(params factory.Params) (*ScaleTransformer, error) {
	std := params.Float("std", 1)
	if std == 0 {
		return nil, errors.Validationf("transform", "std must not be zero")
	}
	return &ScaleTransformer{mean: params.Float("mean", 0), std: std}, nil
}

func (t *ScaleTransformer) Apply(sample *dataset.Sample) error {
	outputs := make([]float64, len(sample.Outputs))
	for i, v := range sample.Outputs {
		outputs[i] = (v - t.mean) / t.std
	}
	sample.Outputs = outputs
	return nil
}

func (t *ScaleTransformer) Reverse(sample *dataset.Sample) error {
	outputs := make([]float64, len(sample.Outputs))
	for i, v := range sample.Outputs {
		outputs[i] = v*t.std + t.mean
	}
	sample.Outputs = outputs
	return nil
}
