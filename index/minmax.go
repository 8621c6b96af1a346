package index

import (
	"context"
	"fmt"

	"github.com/jpl-au/recordlayer/keyexpr"
	"github.com/jpl-au/recordlayer/kv"
	"github.com/jpl-au/recordlayer/subspace"
	"github.com/jpl-au/recordlayer/tuple"
)

// minMaxMaintainer implements both Min and Max (spec §4.5): layout
// `<idx>/<group…>/<value>/<pk…> → empty`, maintained like Value but
// queried from either end of the group's value range.
type minMaxMaintainer struct {
	name    string
	sub     subspace.Subspace
	root    keyexpr.Expression
	takeMax bool
}

func (m *minMaxMaintainer) ColumnCountExpected() int { return m.root.ColumnCount() }

func (m *minMaxMaintainer) Update(ctx context.Context, tx kv.Transaction, diff RecordDiff) error {
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

// Extreme returns the min (or max, if m.takeMax) value for group,
// reporting EmptyGroupError if the group has no live entries (spec
// §4.5).
func (m *minMaxMaintainer) Extreme(ctx context.Context, r kv.Reader, group tuple.Tuple) (tuple.Element, error) {
	groupColumns := m.root.ColumnCount() - 1
	if err := validateGroupArity(m.name, groupColumns, group); err != nil {
		return nil, err
	}

	groupSub := m.sub.SubTuple(group)
	begin, end := groupSub.Range()
	opts := kv.RangeOptions{Limit: 1, Reverse: m.takeMax}
	for kvPair, err := range r.GetRange(ctx, begin, end, opts) {
		if err != nil {
			return nil, err
		}
		full, err := groupSub.Unpack(kvPair.Key)
		if err != nil {
			return nil, err
		}
		if len(full) == 0 {
			continue
		}
		return full[0], nil
	}
	return nil, &EmptyGroupError{IndexName: m.name, Group: formatGroup(group)}
}

func formatGroup(group tuple.Tuple) string {
	return fmt.Sprintf("%v", []tuple.Element(group))
}
