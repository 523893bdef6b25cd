package transform

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/prepkit/prepkit/pkg/dataset"
	"github.com/prepkit/prepkit/pkg/errors"
	"github.com/prepkit/prepkit/pkg/factory"
)

func init() {
	factory.Register(factory.Descriptor{
		Name:   "PrecomputedFeaturizer",
		Family: "Featurizer",
		Params: []factory.ParamSpec{
			{Name: "folder", Kind: factory.KindScalar},
			{Name: "fields", Kind: factory.KindScalar},
			{Name: "name_by", Kind: factory.KindScalar},
		},
		New: func(params map[string]any) (any, error) {
			return NewPrecomputedFeaturizer(factory.Params(params))
		},
	})
}

// PrecomputedFeaturizer loads per-sample feature files written by a
// file preparation run, closing the loop between the file strategy and
// online consumption. Files live under {folder}/{field}/{name}.gob
// where name is the sample identifier, or the value of the name_by
// input field when configured.
type PrecomputedFeaturizer struct {
	folder string
	fields []string
	nameBy string
	device Device
}

// NewPrecomputedFeaturizer builds the featurizer from factory
// parameters.
func NewPrecomputedFeaturizer(params factory.Params) (*PrecomputedFeaturizer, error) {
	folder, err := params.RequireString("folder")
	if err != nil {
		return nil, err
	}
	fields, err := params.Strings("fields")
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, errors.Validationf("transform", "fields must name at least one field")
	}

	return &PrecomputedFeaturizer{
		folder: folder,
		fields: fields,
		nameBy: params.String("name_by", ""),
		device: DeviceCPU,
	}, nil
}

// Run loads each configured field from its file into the sample. A
// missing file fails only the sample; unreadable files fail the run.
func (f *PrecomputedFeaturizer) Run(sample *dataset.Sample) error {
	name := strconv.FormatInt(sample.ID, 10)
	if f.nameBy != "" {
		raw, ok := sample.Inputs[f.nameBy]
		if !ok {
			return errors.Featurizationf("transform", "sample %d has no input %q", sample.ID, f.nameBy)
		}
		name = fmt.Sprintf("%v", raw)
	}

	for _, field := range f.fields {
		path := filepath.Join(f.folder, field, name+".gob")
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return errors.Featurizationf("transform", "sample %d: no precomputed %q at %s", sample.ID, field, path)
			}
			return errors.WrapAs(err, errors.CategoryStorage, "transform", "cannot read %s", path)
		}
		value, err := dataset.DecodeValue(data)
		if err != nil {
			return err
		}
		sample.Inputs[field] = value
	}
	return nil
}

func (f *PrecomputedFeaturizer) SetDevice(device Device) {
	f.device = device
}
