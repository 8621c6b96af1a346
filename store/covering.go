package store

import (
	"context"

	"github.com/jpl-au/recordlayer/index"
	"github.com/jpl-au/recordlayer/kv"
	"github.com/jpl-au/recordlayer/schema"
	"github.com/jpl-au/recordlayer/subspace"
	"github.com/jpl-au/recordlayer/tuple"
)

// CoveringScanPlan executes a range scan directly over a covering
// index's entries and reconstructs records from the key/value alone —
// no record-body read is ever issued (spec §4.11, §8.1 invariant 7).
type CoveringScanPlan struct {
	Store      *Store
	IndexName  string
	BeginGroup tuple.Tuple
	EndGroup   tuple.Tuple
	// Filter, if non-nil, is evaluated against each reconstructed
	// record; records for which it returns false are dropped.
	Filter func(record any) bool
}

// Execute runs the plan against r (pass a Transaction's Snapshot() for
// a conflict-free read). It validates the index is readable, of kind
// covering, and that its record type's Access supports reconstruction
// before issuing a single range scan.
func (p *CoveringScanPlan) Execute(ctx context.Context, r kv.Reader) ([]any, error) {
	idx, err := p.Store.indexMgr.RequireReadable(ctx, r, p.IndexName)
	if err != nil {
		return nil, err
	}
	if idx.Kind != schema.KindCovering {
		return nil, &index.InvalidArgumentError{Message: "store: covering scan requested on non-covering index " + p.IndexName}
	}
	rt, ok := p.Store.schema.RecordType(idx.RecordType)
	if !ok {
		return nil, &index.InvalidArgumentError{Message: "store: covering index " + p.IndexName + " names unknown record type " + idx.RecordType}
	}
	access := p.Store.access[idx.RecordType]
	if !access.SupportsReconstruction() {
		return nil, &index.InvalidArgumentError{Message: "store: record type " + idx.RecordType + " does not support covering-index reconstruction"}
	}

	indexedColumns := idx.ColumnCount()
	pkColumns := rt.PrimaryKey.ColumnCount()
	indexedFieldNames := idx.Root.FieldNames()
	pkFieldNames := rt.PrimaryKey.FieldNames()
	coveringFieldNames := idx.Options.CoveringFields

	sub := p.Store.IndexSubspace(p.IndexName)
	begin := sub.Pack(p.BeginGroup)
	_, fullEnd := sub.Range()
	end := fullEnd
	if p.EndGroup != nil {
		end = subEnd(sub, p.EndGroup)
	}

	var out []any
	for kvPair, err := range r.GetRange(ctx, begin, end, kv.RangeOptions{}) {
		if err != nil {
			return nil, err
		}
		entry, err := sub.Unpack(kvPair.Key)
		if err != nil {
			return nil, err
		}
		if len(entry) < indexedColumns+pkColumns {
			return nil, &index.DeserializationFailedError{Kind: "covering entry", Reason: "key shorter than indexed+pk column count"}
		}
		indexed := entry[:indexedColumns]
		pk := entry[indexedColumns : indexedColumns+pkColumns]

		var covering tuple.Tuple
		if len(kvPair.Value) > 0 {
			covering, err = tuple.Unpack(kvPair.Value)
			if err != nil {
				return nil, err
			}
		}

		record, err := access.Reconstruct(indexedFieldNames, pkFieldNames, coveringFieldNames, indexed, pk, covering)
		if err != nil {
			return nil, err
		}
		if p.Filter != nil && !p.Filter(record) {
			continue
		}
		out = append(out, record)
	}
	return out, nil
}

// subEnd packs group then extends it to the exclusive end of every key
// sharing that group prefix, i.e. `pack(group) + 0xFF`.
func subEnd(sub subspace.Subspace, group tuple.Tuple) []byte {
	packed := sub.Pack(group)
	return append(append([]byte{}, packed...), 0xFF)
}
