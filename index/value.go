package index

import (
	"context"

	"github.com/jpl-au/recordlayer/keyexpr"
	"github.com/jpl-au/recordlayer/kv"
	"github.com/jpl-au/recordlayer/subspace"
	"github.com/jpl-au/recordlayer/tuple"
)

// valueMaintainer implements the Value index (spec §4.4): one entry
// `<idx>/<indexedKey…>/<pk…> → empty` per (indexed value, record).
type valueMaintainer struct {
	name string
	sub  subspace.Subspace
	root keyexpr.Expression
}

func (m *valueMaintainer) ColumnCountExpected() int { return m.root.ColumnCount() }

func (m *valueMaintainer) Update(ctx context.Context, tx kv.Transaction, diff RecordDiff) error {
	oldTuples, err := evaluate(m.root, diff.Access, diff.Old)
	if err != nil {
		return err
	}
	newTuples, err := evaluate(m.root, diff.Access, diff.New)
	if err != nil {
		return err
	}

	oldEntries := withPK(oldTuples, diff.OldPK)
	newEntries := withPK(newTuples, diff.NewPK)
	removed, added := diffTuples(oldEntries, newEntries)

	for _, e := range removed {
		tx.Clear(m.sub.Pack(e))
	}
	for _, e := range added {
		tx.Set(m.sub.Pack(e), []byte{})
	}
	return nil
}

// unpackEntry splits a raw key already stripped of an index's subspace
// prefix into its indexed columns and trailing primary-key columns,
// given the static column counts of each (used by the covering-scan
// planner and the scrubber, spec §4.9, §4.13).
func unpackEntry(sub subspace.Subspace, key []byte, indexedColumns int) (indexed, pk tuple.Tuple, err error) {
	full, err := sub.Unpack(key)
	if err != nil {
		return nil, nil, err
	}
	if len(full) < indexedColumns {
		return nil, nil, &InvalidArgumentError{Message: "index entry key shorter than its indexed column count"}
	}
	return full[:indexedColumns], full[indexedColumns:], nil
}
