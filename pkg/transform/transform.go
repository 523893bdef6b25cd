// Package transform provides the featurizer, transformer and
// augmentation stages applied by the preparation pipeline. Concrete
// stages register themselves with the factory under their family name,
// so run configurations select them by variant tag.
package transform

import (
	"github.com/prepkit/prepkit/pkg/dataset"
	"github.com/prepkit/prepkit/pkg/factory"
	"github.com/prepkit/prepkit/pkg/loader"
)

// Device names the compute device a featurizer should bind to.
type Device string

const (
	DeviceCPU  Device = "cpu"
	DeviceCUDA Device = "cuda"
)

// Featurizer turns raw sample inputs into model-ready features. Run
// replaces input values rather than mutating them in place, so clones
// sharing payloads stay isolated.
type Featurizer interface {
	Run(sample *dataset.Sample) error
	SetDevice(device Device)
}

// Warmable is an optional featurizer capability: state built from the
// distinct values of the featurizer's primary input, warmed once per
// dataset and carried across runs through the cache.
type Warmable interface {
	// ShouldCache reports whether warm-up state should go through the
	// cache at all.
	ShouldCache() bool

	// UniqueInputs reduces the source to the sorted distinct values of
	// the primary input field.
	UniqueInputs(source loader.Loader) ([]string, error)

	// Warm builds the internal state from the reduced inputs and
	// freezes it.
	Warm(inputs []string) error

	// ExportState and ImportState move the warmed state in and out of
	// the cache.
	ExportState() ([]byte, error)
	ImportState(data []byte) error
}

// Transformer rewrites sample outputs. Reverse undoes Apply, so
// predictions can be mapped back to the original target space.
type Transformer interface {
	Apply(sample *dataset.Sample) error
	Reverse(sample *dataset.Sample) error
}

// Augmentation generates synthetic samples from a source dataset.
// Identifier assignment is the caller's concern.
type Augmentation interface {
	Generate(source loader.Loader) ([]*dataset.Sample, error)
}

func init() {
	factory.RegisterSubFamily("Stage", "Featurizer")
	factory.RegisterSubFamily("Stage", "Transformer")
	factory.RegisterSubFamily("Stage", "Augmentation")
}
