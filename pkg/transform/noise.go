package transform

import (
	"math"
	"math/rand"

	"github.com/prepkit/prepkit/pkg/dataset"
	"github.com/prepkit/prepkit/pkg/errors"
	"github.com/prepkit/prepkit/pkg/factory"
	"github.com/prepkit/prepkit/pkg/loader"
)

func init() {
	factory.Register(factory.Descriptor{
		Name:   "NoiseAugmentation",
		Family: "Augmentation",
		Params: []factory.ParamSpec{
			{Name: "fraction", Kind: factory.KindScalar},
			{Name: "scale", Kind: factory.KindScalar},
			{Name: "seed", Kind: factory.KindScalar},
		},
		New: func(params map[string]any) (any, error) {
			return NewNoiseAugmentation(factory.Params(params))
		},
	})
}

// NoiseAugmentation clones a fraction of the source samples and
// jitters their outputs with seeded gaussian noise. Generation is
// deterministic for a given seed, so cached augmented sets replay
// exactly.
type NoiseAugmentation struct {
	fraction float64
	scale    float64
	seed     int64
}

// NewNoiseAugmentation builds the augmentation from factory parameters.
func NewNoiseAugmentation(params factory.Params) (*NoiseAugmentation, error) {
	fraction := params.Float("fraction", 0.1)
	if fraction <= 0 || fraction > 1 {
		return nil, errors.Validationf("transform", "fraction must be in (0, 1], got %v", fraction)
	}
	return &NoiseAugmentation{
		fraction: fraction,
		scale:    params.Float("scale", 0.01),
		seed:     int64(params.Int("seed", 42)),
	}, nil
}

// Generate returns the jittered clones. Identifiers are left for the
// caller to assign.
func (a *NoiseAugmentation) Generate(source loader.Loader) ([]*dataset.Sample, error) {
	count := int(math.Round(a.fraction * float64(source.Len())))
	rng := rand.New(rand.NewSource(a.seed))

	generated := make([]*dataset.Sample, 0, count)
	for i := 0; i < count; i++ {
		sample, err := source.Sample(rng.Intn(source.Len()))
		if err != nil {
			return nil, err
		}

		clone := sample.Clone()
		for j := range clone.Outputs {
			clone.Outputs[j] += rng.NormFloat64() * a.scale
		}
		generated = append(generated, clone)
	}
	return generated, nil
}
