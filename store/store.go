package store

import (
	"context"
	"fmt"

	"github.com/jpl-au/recordlayer/index"
	"github.com/jpl-au/recordlayer/keyexpr"
	"github.com/jpl-au/recordlayer/kv"
	"github.com/jpl-au/recordlayer/recordaccess"
	"github.com/jpl-au/recordlayer/schema"
	"github.com/jpl-au/recordlayer/subspace"
	"github.com/jpl-au/recordlayer/tuple"
)

// Store drives the record write path (save/delete/fetch/scan) and the
// index-maintainer pipeline for one schema, rooted at a single
// subspace (spec §4.10). A partitioned deployment constructs one Store
// per (tenant, collection) via package partition; a non-partitioned
// deployment constructs one directly with Open.
type Store struct {
	root     subspace.Subspace
	schema   *schema.Schema
	access   map[string]recordaccess.Access
	indexMgr *index.Manager
}

// recordSub is `<root>/R/<typeName>`.
func (s *Store) recordSub(typeName string) subspace.Subspace {
	return s.root.Sub("R").Sub(typeName)
}

// indexRootSub is `<root>/I`.
func (s *Store) indexRootSub() subspace.Subspace {
	return s.root.Sub("I")
}

// stateSub is `<root>/S`.
func (s *Store) stateSub() subspace.Subspace {
	return s.root.Sub("S")
}

// Open builds a Store over root for the given schema, with access
// supplying one recordaccess.Access per record type name registered in
// s. It constructs every index maintainer and the index lifecycle
// state manager but performs no I/O, so it writes no index state: every
// index starts disabled, and Save maintains an index only after its
// state has been moved to write-only or readable. An index enabled
// before any record exists is correct from the first Save; one added
// afterward needs package build's Online Index Builder (spec §3.3).
func Open(root subspace.Subspace, s *schema.Schema, access map[string]recordaccess.Access) (*Store, error) {
	for _, name := range s.RecordTypeNames() {
		if _, ok := access[name]; !ok {
			return nil, &index.InvalidArgumentError{Message: fmt.Sprintf("store: no recordaccess.Access supplied for record type %q", name)}
		}
	}
	maintainers, err := index.BuildMaintainers(s, root.Sub("I"))
	if err != nil {
		return nil, err
	}
	state := index.NewStateManager(root.Sub("S"))
	mgr := index.NewManager(s, state, maintainers)
	return &Store{root: root, schema: s, access: access, indexMgr: mgr}, nil
}

// pkExtractor adapts a recordaccess.Access + value into the
// keyexpr.FieldExtractor callback Evaluate needs, identical in shape to
// package index's own private extractorFor.
func pkExtractor(access recordaccess.Access, value any) keyexpr.FieldExtractor {
	return func(fieldName string) ([]tuple.Element, error) {
		return access.ExtractField(value, fieldName)
	}
}

// primaryKey evaluates typeName's PrimaryKey expression against value,
// rejecting anything but exactly one output tuple (spec §4.10 step 1:
// "reject multi-valued PKs").
func (s *Store) primaryKey(rt schema.RecordType, access recordaccess.Access, value any) (tuple.Tuple, error) {
	pks, err := rt.PrimaryKey.Evaluate(pkExtractor(access, value))
	if err != nil {
		return nil, err
	}
	if len(pks) != 1 {
		return nil, &index.InvalidArgumentError{Message: fmt.Sprintf("store: primary key expression for %q produced %d tuples, want exactly 1", rt.Name, len(pks))}
	}
	return pks[0], nil
}

// Save serializes record and writes it under recordType's subspace,
// then dispatches the save/update diff to every applicable index
// maintainer, all within tx (spec §4.10).
func (s *Store) Save(ctx context.Context, tx kv.Transaction, recordType string, record any) error {
	rt, ok := s.schema.RecordType(recordType)
	if !ok {
		return &index.InvalidArgumentError{Message: fmt.Sprintf("store: unknown record type %q", recordType)}
	}
	access := s.access[recordType]

	newPK, err := s.primaryKey(rt, access, record)
	if err != nil {
		return err
	}

	key := s.recordSub(recordType).Pack(newPK)
	oldBody, err := tx.Get(ctx, key)
	if err != nil {
		return err
	}

	var old any
	oldPK := newPK
	if len(oldBody) > 0 {
		old, err = access.Deserialize(oldBody)
		if err != nil {
			return err
		}
		oldPK, err = s.primaryKey(rt, access, old)
		if err != nil {
			return err
		}
	}

	newBody, err := access.Serialize(record)
	if err != nil {
		return err
	}
	tx.Set(key, newBody)

	diff := index.RecordDiff{Access: access, Old: old, New: record, OldPK: oldPK, NewPK: newPK}
	return s.indexMgr.ApplyDiff(ctx, tx, recordType, diff)
}

// Delete removes recordType's record at pk, if present, and updates
// every applicable index via a (old, nil) diff. A delete of an absent
// key is a no-op (spec §4.10: "idempotent").
func (s *Store) Delete(ctx context.Context, tx kv.Transaction, recordType string, pk tuple.Tuple) error {
	access := s.access[recordType]
	key := s.recordSub(recordType).Pack(pk)

	oldBody, err := tx.Get(ctx, key)
	if err != nil {
		return err
	}
	if len(oldBody) == 0 {
		return nil
	}
	old, err := access.Deserialize(oldBody)
	if err != nil {
		return err
	}

	tx.Clear(key)
	diff := index.RecordDiff{Access: access, Old: old, New: nil, OldPK: pk, NewPK: nil}
	return s.indexMgr.ApplyDiff(ctx, tx, recordType, diff)
}

// Fetch reads and deserializes recordType's record at pk, or returns
// (nil, nil) if absent.
func (s *Store) Fetch(ctx context.Context, r kv.Reader, recordType string, pk tuple.Tuple) (any, error) {
	access := s.access[recordType]
	body, err := r.Get(ctx, s.recordSub(recordType).Pack(pk))
	if err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return nil, nil
	}
	return access.Deserialize(body)
}

// Scan streams every recordType record whose primary key lies in
// [beginPK, endPK); a nil endPK scans to the end of the type's
// subspace.
func (s *Store) Scan(ctx context.Context, r kv.Reader, recordType string, beginPK, endPK tuple.Tuple) ([]any, error) {
	access := s.access[recordType]
	sub := s.recordSub(recordType)
	begin, end := sub.Range()
	if beginPK != nil {
		begin = sub.Pack(beginPK)
	}
	if endPK != nil {
		end = sub.Pack(endPK)
	}

	var out []any
	for kvPair, err := range r.GetRange(ctx, begin, end, kv.RangeOptions{}) {
		if err != nil {
			return nil, err
		}
		v, err := access.Deserialize(kvPair.Value)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Rename moves recordType's record from oldPK to newPK, modeled as a
// delete-old/save-new diff driven through the same index pipeline (no
// special-casing per maintainer) — a same-type primary-key rename.
func (s *Store) Rename(ctx context.Context, tx kv.Transaction, recordType string, oldPK, newPK tuple.Tuple) error {
	access := s.access[recordType]
	oldKey := s.recordSub(recordType).Pack(oldPK)

	oldBody, err := tx.Get(ctx, oldKey)
	if err != nil {
		return err
	}
	if len(oldBody) == 0 {
		return &index.InvalidArgumentError{Message: fmt.Sprintf("store: rename: no %q record at source primary key", recordType)}
	}
	old, err := access.Deserialize(oldBody)
	if err != nil {
		return err
	}

	newKey := s.recordSub(recordType).Pack(newPK)
	tx.Clear(oldKey)
	tx.Set(newKey, oldBody)

	diff := index.RecordDiff{Access: access, Old: old, New: old, OldPK: oldPK, NewPK: newPK}
	return s.indexMgr.ApplyDiff(ctx, tx, recordType, diff)
}

// IndexManager exposes the underlying index.Manager for callers that
// need direct lifecycle control (package build/scrub) without
// duplicating Store's maintainer construction.
func (s *Store) IndexManager() *index.Manager { return s.indexMgr }

// Schema returns the schema this Store was opened with.
func (s *Store) Schema() *schema.Schema { return s.schema }

// RecordSubspace exposes recordType's record subspace for callers
// (the builder, the scrubber's Phase 2 sweep) that need to range-scan
// record bodies directly.
func (s *Store) RecordSubspace(recordType string) subspace.Subspace {
	return s.recordSub(recordType)
}

// IndexSubspace returns the subspace an index's maintainer was built
// against, `<root>/I/<indexName>`.
func (s *Store) IndexSubspace(indexName string) subspace.Subspace {
	return s.indexRootSub().Sub(indexName)
}

// StatsSubspace is `<root>/stats`, opaque to the core itself (spec
// §6.2) but used by package build and package scrub to persist their
// RangeSet progress checkpoints.
func (s *Store) StatsSubspace() subspace.Subspace {
	return s.root.Sub("stats")
}

// Access returns the recordaccess.Access registered for recordType.
func (s *Store) Access(recordType string) recordaccess.Access {
	return s.access[recordType]
}
