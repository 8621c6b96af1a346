package index

import (
	"context"
	"sync/atomic"

	"github.com/jpl-au/recordlayer/keyexpr"
	"github.com/jpl-au/recordlayer/kv"
	"github.com/jpl-au/recordlayer/subspace"
)

// vectorInlineThreshold bounds how many vectors vectorMaintainer.Update
// accepts before refusing further inline writes (spec §4.12 item 7:
// "inline HNSW maintenance above a configured graph-size threshold MUST
// error rather than silently skip"). The online index builder is the
// only path meant to carry a vector index past this size.
const vectorInlineThreshold = 1000

// vectorMaintainer is an opaque stand-in for an HNSW vector index (spec
// §1: "the HNSW vector-search graph algorithm itself ... only its
// contract as a special maintainer is specified"). It obeys the full
// Maintainer contract and the index lifecycle identically to every
// other kind — in particular it never short-circuits state transitions
// (spec §4.12 item 6) — but stores only placeholder entries rather than
// a real approximate-nearest-neighbor graph.
type vectorMaintainer struct {
	name       string
	sub        subspace.Subspace
	root       keyexpr.Expression
	dimensions int
	size       atomic.Int64
}

func newVectorMaintainer(name string, sub subspace.Subspace, root keyexpr.Expression, dimensions int) *vectorMaintainer {
	return &vectorMaintainer{name: name, sub: sub, root: root, dimensions: dimensions}
}

func (m *vectorMaintainer) ColumnCountExpected() int { return m.root.ColumnCount() }

func (m *vectorMaintainer) Update(ctx context.Context, tx kv.Transaction, diff RecordDiff) error {
	oldTuples, err := evaluate(m.root, diff.Access, diff.Old)
	if err != nil {
		return err
	}
	newTuples, err := evaluate(m.root, diff.Access, diff.New)
	if err != nil {
		return err
	}

	if len(newTuples) > 0 {
		if size := m.size.Load(); size >= vectorInlineThreshold {
			return &HnswInlineIndexingNotSupportedError{IndexName: m.name, Size: int(size), Threshold: vectorInlineThreshold}
		}
	}

	oldEntries := withPK(oldTuples, diff.OldPK)
	newEntries := withPK(newTuples, diff.NewPK)
	removed, added := diffTuples(oldEntries, newEntries)

	for _, e := range removed {
		tx.Clear(m.sub.Pack(e))
		m.size.Add(-1)
	}
	for _, e := range added {
		tx.Set(m.sub.Pack(e), []byte{})
		m.size.Add(1)
	}
	return nil
}

// Dimensions is the fixed vector width this index accepts.
func (m *vectorMaintainer) Dimensions() int { return m.dimensions }
