// Package factory provides a runtime plugin registry that materializes
// declarative specs into constructed object graphs. Concrete types
// self-register under an abstract family; a spec's "type" discriminator
// selects the variant and remaining keys become constructor parameters,
// recursing into nested specs where a parameter is declared to hold one.
package factory

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/prepkit/prepkit/pkg/errors"
)

// TypeKey is the discriminator field of a Spec.
const TypeKey = "type"

// Spec is a declarative description of an object: a "type" discriminator
// plus named construction parameters.
type Spec map[string]any

// Constructor builds a concrete instance from materialized parameters.
type Constructor func(params map[string]any) (any, error)

// ParamKind tags how the factory treats a declared parameter value.
type ParamKind int

const (
	// KindScalar values pass through untouched.
	KindScalar ParamKind = iota
	// KindNested map values are materialized recursively via Create on
	// the parameter's declared family.
	KindNested
	// KindRawMap map values pass through untouched.
	KindRawMap
)

// ParamSpec declares one constructor parameter of a concrete type.
type ParamSpec struct {
	Name   string
	Kind   ParamKind
	Family string // abstract family for KindNested parameters
}

// Descriptor describes a registered concrete type.
type Descriptor struct {
	Name   string // concrete type name, e.g. "TokenFeaturizer"
	Family string // abstract family name, e.g. "Featurizer"
	Params []ParamSpec
	New    Constructor
}

func (d *Descriptor) param(name string) *ParamSpec {
	for i := range d.Params {
		if d.Params[i].Name == name {
			return &d.Params[i]
		}
	}
	return nil
}

var (
	mu        sync.RWMutex
	concretes = make(map[string]*Descriptor)
	members   = make(map[string][]string) // family -> direct concrete names
	children  = make(map[string][]string) // family -> sub-family names
)

// Register makes a concrete type discoverable by its family and name.
//
// Usage (in the type's own file):
//
//	func init() { factory.Register(tokenFeaturizerDescriptor()) }
func Register(d Descriptor) {
	mu.Lock()
	defer mu.Unlock()

	if d.Name == "" || d.Family == "" || d.New == nil {
		panic(fmt.Sprintf("incomplete descriptor registration: %+v", d))
	}
	for _, p := range d.Params {
		if p.Kind == KindNested && p.Family == "" {
			panic(fmt.Sprintf("nested parameter %s of %s has no family", p.Name, d.Name))
		}
	}
	if _, dup := concretes[d.Name]; dup {
		panic(fmt.Sprintf("duplicate type registration: %s", d.Name))
	}
	concretes[d.Name] = &d
	members[d.Family] = append(members[d.Family], d.Name)
}

// RegisterSubFamily links child as a sub-family of parent, so parent's
// descendant enumeration includes child's members transitively.
func RegisterSubFamily(parent, child string) {
	mu.Lock()
	defer mu.Unlock()

	children[parent] = append(children[parent], child)
}

// Lookup returns a concrete type's descriptor by exact name.
func Lookup(name string) (*Descriptor, bool) {
	mu.RLock()
	defer mu.RUnlock()

	d, ok := concretes[name]
	return d, ok
}

// Descendants returns every (possibly indirect) concrete name of a family
// mapped to its constructor.
func Descendants(family string) map[string]Constructor {
	mu.RLock()
	defer mu.RUnlock()

	out := make(map[string]Constructor)
	for name, d := range descendants(family) {
		out[name] = d.New
	}
	return out
}

// Names returns the sorted concrete names of a family, descendants
// included (useful for debugging/config errors).
func Names(family string) []string {
	mu.RLock()
	defer mu.RUnlock()

	var out []string
	for name := range descendants(family) {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Resolve returns the descriptor a spec's discriminator selects,
// without constructing anything. Configuration validation uses it to
// reject unknown variants before a run starts.
func Resolve(family string, spec Spec) (*Descriptor, error) {
	return resolve(family, spec)
}

// descendants walks a family and its sub-families. Callers hold mu.
func descendants(family string) map[string]*Descriptor {
	out := make(map[string]*Descriptor)
	var walk func(f string)
	walk = func(f string) {
		for _, name := range members[f] {
			out[name] = concretes[name]
		}
		for _, sub := range children[f] {
			walk(sub)
		}
	}
	walk(family)
	return out
}

// Create materializes a spec into an instance of the requested family.
//
// The spec's "type" value selects the concrete variant: a dotted name
// ("transform.TokenFeaturizer") resolves its final segment against all
// registered concretes, a short name ("token") is pascalized together
// with the family name ("token" + "Featurizer" -> "TokenFeaturizer") and
// matched against the family's descendants. Without a "type" key the
// family itself must name a concrete type.
//
// Remaining spec keys must be declared parameters of the resolved type;
// map values of KindNested parameters are built recursively. Extra
// parameters are merged in last, already materialized, and are never
// validated or recursed.
func Create(family string, spec Spec, extra map[string]any) (any, error) {
	desc, err := resolve(family, spec)
	if err != nil {
		return nil, err
	}

	params := make(map[string]any, len(spec)+len(extra))
	for key, value := range spec {
		if key == TypeKey {
			continue
		}

		p := desc.param(key)
		if p == nil {
			return nil, errors.Resolutionf("factory", "unknown option for [%s] ---> [%s]", desc.Name, key)
		}

		switch p.Kind {
		case KindNested:
			if nested, ok := asSpec(value); ok {
				built, err := Create(p.Family, nested, nil)
				if err != nil {
					return nil, err
				}
				params[key] = built
				continue
			}
			// Already-materialized instances pass through.
			params[key] = value
		default:
			params[key] = value
		}
	}

	for key, value := range extra {
		params[key] = value
	}

	instance, err := desc.New(params)
	if err != nil {
		return nil, errors.Wrapf(err, "factory", "constructing %s", desc.Name)
	}
	return instance, nil
}

func resolve(family string, spec Spec) (*Descriptor, error) {
	raw, hasType := spec[TypeKey]
	if !hasType {
		if d, ok := Lookup(family); ok {
			return d, nil
		}
		return nil, errors.Resolutionf("factory", "spec has no %q key and %q is not a concrete type", TypeKey, family)
	}

	name, ok := raw.(string)
	if !ok {
		return nil, errors.Resolutionf("factory", "%q must be a string, got %T", TypeKey, raw)
	}

	// Dotted names resolve their final segment directly.
	if strings.Contains(name, ".") {
		parts := strings.Split(name, ".")
		concrete := parts[len(parts)-1]
		if d, ok := Lookup(concrete); ok {
			return d, nil
		}
		return nil, errors.Resolutionf("factory", "dependency not found: %s", name)
	}

	target := pascalize(name + "_" + family)
	mu.RLock()
	candidates := descendants(family)
	mu.RUnlock()

	if d, ok := candidates[target]; ok {
		return d, nil
	}

	available := make([]string, 0, len(candidates))
	for candidate := range candidates {
		available = append(available, candidate)
	}
	sort.Strings(available)
	return nil, errors.Resolutionf("factory", "dependency not found: %s. Available options are: %v", target, available)
}

func asSpec(value any) (Spec, bool) {
	switch m := value.(type) {
	case Spec:
		return m, true
	case Params:
		return Spec(m), true
	case map[string]any:
		return Spec(m), true
	default:
		return nil, false
	}
}

// pascalize converts snake_case ("one_hot_Featurizer") to PascalCase
// ("OneHotFeaturizer").
func pascalize(s string) string {
	parts := strings.FieldsFunc(s, func(r rune) bool {
		return r == '_' || r == '-'
	})
	var b strings.Builder
	for _, part := range parts {
		b.WriteString(strings.ToUpper(part[:1]))
		b.WriteString(part[1:])
	}
	return b.String()
}
