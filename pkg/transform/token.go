package transform

import (
	"bytes"
	"encoding/gob"
	"sort"
	"strings"
	"sync"

	"github.com/prepkit/prepkit/pkg/dataset"
	"github.com/prepkit/prepkit/pkg/errors"
	"github.com/prepkit/prepkit/pkg/factory"
	"github.com/prepkit/prepkit/pkg/loader"
)

func init() {
	factory.Register(factory.Descriptor{
		Name:   "TokenFeaturizer",
		Family: "Featurizer",
		Params: []factory.ParamSpec{
			{Name: "inputs", Kind: factory.KindScalar},
			{Name: "outputs", Kind: factory.KindScalar},
			{Name: "should_cache", Kind: factory.KindScalar},
			{Name: "normalizer", Kind: factory.KindNested, Family: "Normalizer"},
		},
		New: func(params map[string]any) (any, error) {
			return NewTokenFeaturizer(factory.Params(params))
		},
	})
}

// TokenFeaturizer splits text inputs on whitespace and maps each token
// to a vocabulary identifier. The vocabulary grows as samples arrive
// until the featurizer is warmed, after which unknown tokens map to the
// reserved identifier 0.
type TokenFeaturizer struct {
	inputs      []string
	outputs     []string
	normalizer  Normalizer
	shouldCache bool
	device      Device

	mu     sync.Mutex
	vocab  map[string]int64
	next   int64
	frozen bool
}

// tokenState is the warmed vocabulary as it travels through the cache.
type tokenState struct {
	Vocab map[string]int64
	Next  int64
}

// NewTokenFeaturizer builds the featurizer from factory parameters.
// The optional normalizer parameter arrives already materialized.
func NewTokenFeaturizer(params factory.Params) (*TokenFeaturizer, error) {
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

	f := &TokenFeaturizer{
		inputs:      inputs,
		outputs:     outputs,
		shouldCache: params.Bool("should_cache", false),
		device:      DeviceCPU,
		vocab:       make(map[string]int64),
	}
	if raw, ok := params.Any("normalizer"); ok && raw != nil {
		normalizer, ok := raw.(Normalizer)
		if !ok {
			return nil, errors.Validationf("transform", "normalizer must be a Normalizer, got %T", raw)
		}
		f.normalizer = normalizer
	}
	return f, nil
}

// Run replaces each input field with the token identifier sequence of
// its text.
func (f *TokenFeaturizer) Run(sample *dataset.Sample) error {
	for i, field := range f.inputs {
		raw, ok := sample.Inputs[field]
		if !ok {
			return errors.Featurizationf("transform", "sample %d has no input %q", sample.ID, field)
		}
		text, ok := raw.(string)
		if !ok {
			return errors.Featurizationf("transform", "sample %d: input %q is %T, want string", sample.ID, field, raw)
		}
		if f.normalizer != nil {
			text = f.normalizer.Normalize(text)
		}

		tokens := strings.Fields(text)
		if len(tokens) == 0 {
			return errors.Featurizationf("transform", "sample %d: input %q has no tokens", sample.ID, field)
		}

		ids := make([]int64, len(tokens))
		f.mu.Lock()
		for j, token := range tokens {
			ids[j] = f.lookup(token)
		}
		f.mu.Unlock()

		sample.Inputs[f.outputs[i]] = ids
	}
	return nil
}

// lookup requires f.mu held.
func (f *TokenFeaturizer) lookup(token string) int64 {
	if id, ok := f.vocab[token]; ok {
		return id
	}
	if f.frozen {
		return 0
	}
	f.next++
	f.vocab[token] = f.next
	return f.next
}

func (f *TokenFeaturizer) SetDevice(device Device) {
	f.device = device
}

func (f *TokenFeaturizer) ShouldCache() bool {
	return f.shouldCache
}

// UniqueInputs reduces the source to the sorted distinct values of the
// primary input field. Non-string values are skipped.
func (f *TokenFeaturizer) UniqueInputs(source loader.Loader) ([]string, error) {
	seen := make(map[string]struct{})
	values := make([]string, 0, source.Len())

	for i := 0; i < source.Len(); i++ {
		sample, err := source.Sample(i)
		if err != nil {
			return nil, err
		}
		text, ok := sample.Inputs[f.inputs[0]].(string)
		if !ok {
			continue
		}
		if _, dup := seen[text]; dup {
			continue
		}
		seen[text] = struct{}{}
		values = append(values, text)
	}

	sort.Strings(values)
	return values, nil
}

// Warm builds the vocabulary from the reduced inputs and freezes it.
func (f *TokenFeaturizer) Warm(inputs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, text := range inputs {
		if f.normalizer != nil {
			text = f.normalizer.Normalize(text)
		}
		for _, token := range strings.Fields(text) {
			if _, ok := f.vocab[token]; !ok {
				f.next++
				f.vocab[token] = f.next
			}
		}
	}
	f.frozen = true
	return nil
}

func (f *TokenFeaturizer) ExportState() ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var buf bytes.Buffer
	state := tokenState{Vocab: f.vocab, Next: f.next}
	if err := gob.NewEncoder(&buf).Encode(&state); err != nil {
		return nil, errors.Serializationf("transform", "cannot export vocabulary: %v", err)
	}
	return buf.Bytes(), nil
}

func (f *TokenFeaturizer) ImportState(data []byte) error {
	var state tokenState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&state); err != nil {
		return errors.Serializationf("transform", "cannot import vocabulary: %v", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.vocab = state.Vocab
	f.next = state.Next
	f.frozen = true
	return nil
}

// VocabSize reports the number of known tokens.
func (f *TokenFeaturizer) VocabSize() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.vocab)
}
