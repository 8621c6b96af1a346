package index

import (
	"context"
	"fmt"

	"github.com/jpl-au/recordlayer/keyexpr"
	"github.com/jpl-au/recordlayer/kv"
	"github.com/jpl-au/recordlayer/subspace"
	"github.com/jpl-au/recordlayer/tuple"
)

// countMaintainer implements the Count index (spec §4.4): an atomic
// counter per grouping key, incremented/decremented as records enter or
// leave the group.
type countMaintainer struct {
	name string
	sub  subspace.Subspace
	root keyexpr.Expression
}

func (m *countMaintainer) ColumnCountExpected() int { return m.root.ColumnCount() }

func (m *countMaintainer) Update(ctx context.Context, tx kv.Transaction, diff RecordDiff) error {
	oldGroups, err := evaluate(m.root, diff.Access, diff.Old)
	if err != nil {
		return err
	}
	newGroups, err := evaluate(m.root, diff.Access, diff.New)
	if err != nil {
		return err
	}
	removed, added := diffTuples(oldGroups, newGroups)
	for _, g := range removed {
		tx.AtomicAdd(m.sub.Pack(g), -1)
	}
	for _, g := range added {
		tx.AtomicAdd(m.sub.Pack(g), 1)
	}
	return nil
}

// Count reads the counter for group, defaulting to zero (spec §4.4
// query contract). group must have exactly root.ColumnCount() elements.
func (m *countMaintainer) Count(ctx context.Context, r kv.Reader, group tuple.Tuple) (int64, error) {
	if err := validateGroupArity(m.name, m.root.ColumnCount(), group); err != nil {
		return 0, err
	}
	return readCounter(ctx, r, m.sub.Pack(group))
}

// sumMaintainer implements the Sum index (spec §4.4): root's trailing
// column is the summed integer value; every other column is grouping.
type sumMaintainer struct {
	name string
	sub  subspace.Subspace
	root keyexpr.Expression
}

func (m *sumMaintainer) ColumnCountExpected() int { return m.root.ColumnCount() }

func (m *sumMaintainer) Update(ctx context.Context, tx kv.Transaction, diff RecordDiff) error {
	oldTuples, err := evaluate(m.root, diff.Access, diff.Old)
	if err != nil {
		return err
	}
	newTuples, err := evaluate(m.root, diff.Access, diff.New)
	if err != nil {
		return err
	}
	for _, t := range oldTuples {
		v, err := asInt64(lastOf(t))
		if err != nil {
			return fmt.Errorf("index: sum %q: %w", m.name, err)
		}
		tx.AtomicAdd(m.sub.Pack(groupOf(t)), -v)
	}
	for _, t := range newTuples {
		v, err := asInt64(lastOf(t))
		if err != nil {
			return fmt.Errorf("index: sum %q: %w", m.name, err)
		}
		tx.AtomicAdd(m.sub.Pack(groupOf(t)), v)
	}
	return nil
}

// Sum reads the running total for group.
func (m *sumMaintainer) Sum(ctx context.Context, r kv.Reader, group tuple.Tuple) (int64, error) {
	if err := validateGroupArity(m.name, m.root.ColumnCount()-1, group); err != nil {
		return 0, err
	}
	return readCounter(ctx, r, m.sub.Pack(group))
}

func asInt64(e tuple.Element) (int64, error) {
	switch v := e.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	default:
		return 0, fmt.Errorf("value field is not an integer: %T", e)
	}
}

func validateGroupArity(indexName string, want int, group tuple.Tuple) error {
	if len(group) != want {
		return &InvalidArgumentError{Message: fmt.Sprintf(
			"index %q: expected %d grouping field(s), got %d", indexName, want, len(group))}
	}
	return nil
}

func readCounter(ctx context.Context, r kv.Reader, key []byte) (int64, error) {
	v, err := r.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	if v == nil {
		return 0, nil
	}
	return decodeCounter(v), nil
}
