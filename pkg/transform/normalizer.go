package transform

import (
	"strings"

	"github.com/prepkit/prepkit/pkg/factory"
)

func init() {
	factory.Register(factory.Descriptor{
		Name:   "LowercaseNormalizer",
		Family: "Normalizer",
		New: func(params map[string]any) (any, error) {
			return &LowercaseNormalizer{}, nil
		},
	})
	factory.Register(factory.Descriptor{
		Name:   "StripNormalizer",
		Family: "Normalizer",
		Params: []factory.ParamSpec{
			{Name: "cutset", Kind: factory.KindScalar},
		},
		New: func(params map[string]any) (any, error) {
			return &StripNormalizer{Cutset: factory.Params(params).String("cutset", " \t\n")}, nil
		},
	})
}

// Normalizer rewrites raw text before tokenization.
type Normalizer interface {
	Normalize(text string) string
}

// LowercaseNormalizer lowercases the whole input.
type LowercaseNormalizer struct{}

func (*LowercaseNormalizer) Normalize(text string) string {
	return strings.ToLower(text)
}

// StripNormalizer trims the configured cutset from both ends.
type StripNormalizer struct {
	Cutset string
}

func (n *StripNormalizer) Normalize(text string) string {
	return strings.Trim(text, n.Cutset)
}
