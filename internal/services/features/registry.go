package features

import (
	"fmt"
	"sort"

	domsvc "FinFeat/internal/domain/service"
)

// Registry resolves feature schemes by name.
type Registry struct {
	extractors map[string]*Extractor
}

// NewRegistry validates every scheme and indexes it by name.
func NewRegistry(schemes ...domsvc.FeatureScheme) (*Registry, error) {
	r := &Registry{extractors: make(map[string]*Extractor, len(schemes))}
	for _, s := range schemes {
		if _, dup := r.extractors[s.Name()]; dup {
			return nil, fmt.Errorf("%w: scheme %q registered twice", ErrSchemaInvalid, s.Name())
		}
		ex, err := NewExtractor(s)
		if err != nil {
			return nil, err
		}
		r.extractors[s.Name()] = ex
	}
	return r, nil
}

// DefaultRegistry holds the built-in schemes.
func DefaultRegistry() (*Registry, error) {
	return NewRegistry(ShortHorizon{}, General{}, Daily{}, Pattern{})
}

// Extractor returns the extractor for a scheme name.
func (r *Registry) Extractor(name string) (*Extractor, error) {
	ex, ok := r.extractors[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownScheme, name)
	}
	return ex, nil
}

// Names lists registered schemes in lexical order.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.extractors))
	for n := range r.extractors {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
