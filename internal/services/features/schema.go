package features

import (
	"errors"
	"fmt"
)

const (
	// NumFeatures is the fixed row width shared with the scaler and the inference consumer.
	NumFeatures = 76
	// Epsilon guards denominators.
	Epsilon = 1e-10
)

var (
	ErrSchemaInvalid = errors.New("features: invalid schema")
	ErrWidthMismatch = errors.New("features: width mismatch")
	ErrUnknownScheme = errors.New("features: unknown scheme")
)

// Schema is an ordered list of exactly NumFeatures column names. Declared
// names beyond NumFeatures are dropped; missing positions are padded with
// constant-zero columns named pad_NN.
type Schema struct {
	names    []string
	computed int
	index    map[string]int
}

// NewSchema validates and normalises a declared name list.
func NewSchema(declared []string) (Schema, error) {
	if len(declared) == 0 {
		return Schema{}, fmt.Errorf("%w: no columns", ErrSchemaInvalid)
	}
	seen := make(map[string]struct{}, len(declared))
	for i, n := range declared {
		if n == "" {
			return Schema{}, fmt.Errorf("%w: empty name at %d", ErrSchemaInvalid, i)
		}
		if _, dup := seen[n]; dup {
			return Schema{}, fmt.Errorf("%w: duplicate name %q", ErrSchemaInvalid, n)
		}
		seen[n] = struct{}{}
	}

	kept := declared
	if len(kept) > NumFeatures {
		kept = kept[:NumFeatures]
	}
	names := make([]string, 0, NumFeatures)
	names = append(names, kept...)
	for i := len(names); i < NumFeatures; i++ {
		pad := fmt.Sprintf("pad_%02d", i)
		if _, dup := seen[pad]; dup {
			return Schema{}, fmt.Errorf("%w: padding name %q already declared", ErrSchemaInvalid, pad)
		}
		names = append(names, pad)
	}

	index := make(map[string]int, NumFeatures)
	for i, n := range names {
		index[n] = i
	}
	return Schema{names: names, computed: len(kept), index: index}, nil
}

// Names returns a copy of the ordered column names.
func (s Schema) Names() []string { return append([]string(nil), s.names...) }

// Computed is the number of leading columns produced by the scheme.
func (s Schema) Computed() int { return s.computed }

// Index returns the position of name.
func (s Schema) Index(name string) (int, bool) {
	i, ok := s.index[name]
	return i, ok
}
