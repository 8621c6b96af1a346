// Package schema describes the static shape of a store: the record
// types it holds and the indexes maintained over them (spec Β§3.1,
// Β§4.2). A Schema is immutable once built; changing it (adding a record
// type, adding or altering an index) is done by constructing a new one
// and running it through the index lifecycle in package index.
package schema

import (
	"fmt"

	"github.com/jpl-au/recordlayer/keyexpr"
)

// IndexKind names the behavior an Index's maintainer implements (spec
// Β§4.4-Β§4.12).
type IndexKind string

const (
	KindValue    IndexKind = "value"
	KindCount    IndexKind = "count"
	KindSum      IndexKind = "sum"
	KindMin      IndexKind = "min"
	KindMax      IndexKind = "max"
	KindRank     IndexKind = "rank"
	KindVersion  IndexKind = "version"
	KindPermuted IndexKind = "permuted"
	KindCovering IndexKind = "covering"
	KindVector   IndexKind = "vector"
)

// RetentionPolicy controls how many historical versions a version index
// keeps per grouping key (spec Β§4.10).
type RetentionPolicy struct {
	// KeepAll, when true, never prunes a version entry.
	KeepAll bool
	// KeepLast, when positive, retains only the KeepLast most recent
	// versions per group.
	KeepLast int
	// KeepForDuration, when positive, retains versions newer than this
	// many nanoseconds relative to the newest version in the group.
	KeepForDuration int64
}

// IndexOptions carries the per-kind parameters an index needs beyond its
// root expression.
type IndexOptions struct {
	// CoveringFields lists additional field names a covering index
	// stores alongside its key, in the order they appear in the index
	// value (spec Β§4.9).
	CoveringFields []string
	// Retention configures a version index (spec Β§4.10); zero value
	// means KeepAll.
	Retention RetentionPolicy
	// BaseIndex names the index a permuted index re-derives its
	// ordering from (spec Β§4.11).
	BaseIndex string
	// Permutation reorders BaseIndex's key columns; Permutation[i] is
	// the source column feeding output column i.
	Permutation []int
	// VectorDimensions is the fixed dimensionality a vector index
	// accepts (spec Β§4.12).
	VectorDimensions int
}

// Index is one maintained index over a record type.
type Index struct {
	Name       string
	Kind       IndexKind
	RecordType string
	Root       keyexpr.Expression
	Options    IndexOptions
}

// ColumnCount is the static arity of every key Root.Evaluate produces.
func (idx Index) ColumnCount() int { return idx.Root.ColumnCount() }

// RecordType is one kind of record stored in a store, identified by
// name, with a primary-key expression that must evaluate to exactly one
// tuple per record (spec Β§4.2 invariant: primary keys are single-valued).
type RecordType struct {
	Name          string
	PrimaryKey    keyexpr.Expression
}

// Schema is the full, named set of record types and indexes a store
// enforces.
type Schema struct {
	recordTypes map[string]RecordType
	indexes     map[string]Index
	// indexesByType groups index names by the record type they apply to,
	// preserving insertion order for deterministic iteration during
	// save/delete maintenance (spec Β§4.13).
	indexesByType map[string][]string
}

// New builds an empty Schema.
func New() *Schema {
	return &Schema{
		recordTypes:   make(map[string]RecordType),
		indexes:       make(map[string]Index),
		indexesByType: make(map[string][]string),
	}
}

// AddRecordType registers rt. Returns an error if rt's name is empty or
// already registered, or its PrimaryKey is nil. A PrimaryKey built from
// a multi-valued Field is not rejected here; Store.Save rejects it when
// it evaluates to other than exactly one tuple.
func (s *Schema) AddRecordType(rt RecordType) error {
	if rt.Name == "" {
		return fmt.Errorf("schema: record type name must not be empty")
	}
	if _, exists := s.recordTypes[rt.Name]; exists {
		return fmt.Errorf("schema: record type %q already registered", rt.Name)
	}
	if rt.PrimaryKey == nil {
		return fmt.Errorf("schema: record type %q: PrimaryKey must not be nil", rt.Name)
	}
	s.recordTypes[rt.Name] = rt
	return nil
}

// RecordType looks up a registered record type by name.
func (s *Schema) RecordType(name string) (RecordType, bool) {
	rt, ok := s.recordTypes[name]
	return rt, ok
}

// RecordTypeNames returns every registered record type name, in no
// particular order.
func (s *Schema) RecordTypeNames() []string {
	out := make([]string, 0, len(s.recordTypes))
	for name := range s.recordTypes {
		out = append(out, name)
	}
	return out
}

// AddIndex registers idx after validating it against its owning record
// type and, for derived kinds, its base index (spec Β§4.11 permutation
// validation, Β§4.12 vector dimension requirement).
func (s *Schema) AddIndex(idx Index) error {
	if idx.Name == "" {
		return fmt.Errorf("schema: index name must not be empty")
	}
	if _, exists := s.indexes[idx.Name]; exists {
		return fmt.Errorf("schema: index %q already registered", idx.Name)
	}
	if _, ok := s.recordTypes[idx.RecordType]; !ok {
		return fmt.Errorf("schema: index %q: unknown record type %q", idx.Name, idx.RecordType)
	}
	if idx.Root == nil {
		return fmt.Errorf("schema: index %q: Root must not be nil", idx.Name)
	}

	switch idx.Kind {
	case KindPermuted:
		base, ok := s.indexes[idx.Options.BaseIndex]
		if !ok {
			return fmt.Errorf("schema: permuted index %q: unknown base index %q", idx.Name, idx.Options.BaseIndex)
		}
		if err := validatePermutation(base.ColumnCount(), idx.Options.Permutation); err != nil {
			return fmt.Errorf("schema: permuted index %q: %w", idx.Name, err)
		}
	case KindVector:
		if idx.Options.VectorDimensions <= 0 {
			return fmt.Errorf("schema: vector index %q: VectorDimensions must be positive", idx.Name)
		}
	}

	s.indexes[idx.Name] = idx
	s.indexesByType[idx.RecordType] = append(s.indexesByType[idx.RecordType], idx.Name)
	return nil
}

// validatePermutation checks that perm is a permutation of
// [0, columnCount): every index 0..columnCount-1 appears exactly once
// (spec Β§4.11, "strict permutation validation" per the resolved Open
// Question).
func validatePermutation(columnCount int, perm []int) error {
	if len(perm) != columnCount {
		return fmt.Errorf("permutation length %d does not match base column count %d", len(perm), columnCount)
	}
	seen := make([]bool, columnCount)
	for _, p := range perm {
		if p < 0 || p >= columnCount || seen[p] {
			return fmt.Errorf("permutation %v is not a valid permutation of [0,%d)", perm, columnCount)
		}
		seen[p] = true
	}
	return nil
}

// Index looks up a registered index by name.
func (s *Schema) Index(name string) (Index, bool) {
	idx, ok := s.indexes[name]
	return idx, ok
}

// IndexNames returns every registered index name, in no particular
// order.
func (s *Schema) IndexNames() []string {
	out := make([]string, 0, len(s.indexes))
	for name := range s.indexes {
		out = append(out, name)
	}
	return out
}

// IndexesForType returns the indexes applicable to recordType, in
// registration order.
func (s *Schema) IndexesForType(recordType string) []Index {
	names := s.indexesByType[recordType]
	out := make([]Index, 0, len(names))
	for _, name := range names {
		out = append(out, s.indexes[name])
	}
	return out
}
