package index

import (
	"context"

	"github.com/jpl-au/recordlayer/keyexpr"
	"github.com/jpl-au/recordlayer/kv"
	"github.com/jpl-au/recordlayer/recordaccess"
	"github.com/jpl-au/recordlayer/subspace"
	"github.com/jpl-au/recordlayer/tuple"
)

// coveringMaintainer implements the Covering index (spec §4.9): layout
// identical to Value, but the value payload carries a tuple-pack of the
// covering fields evaluated against the record at write time, letting a
// scan answer a query without ever reading the record body.
type coveringMaintainer struct {
	name           string
	sub            subspace.Subspace
	root           keyexpr.Expression
	coveringFields []string
}

func (m *coveringMaintainer) ColumnCountExpected() int { return m.root.ColumnCount() }

func (m *coveringMaintainer) Update(ctx context.Context, tx kv.Transaction, diff RecordDiff) error {
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
	if len(added) == 0 {
		return nil
	}

	covering, err := m.coveringValue(diff.Access, diff.New)
	if err != nil {
		return err
	}
	for _, e := range added {
		tx.Set(m.sub.Pack(e), covering)
	}
	return nil
}

func (m *coveringMaintainer) coveringValue(access recordaccess.Access, value any) ([]byte, error) {
	fields := make(tuple.Tuple, 0, len(m.coveringFields))
	for _, name := range m.coveringFields {
		values, err := access.ExtractField(value, name)
		if err != nil {
			return nil, err
		}
		if len(values) != 1 {
			return nil, &InvalidArgumentError{Message: "covering field " + name + " must be single-valued"}
		}
		fields = append(fields, values[0])
	}
	return tuple.Pack(fields), nil
}

// Covers reports whether fields is a subset of the union of this
// index's indexed fields, its covering fields, and pkFields (spec §4.9
// "Index.covers").
func (m *coveringMaintainer) Covers(fields []string, pkFields []string) bool {
	available := make(map[string]bool)
	for _, f := range m.root.FieldNames() {
		available[f] = true
	}
	for _, f := range m.coveringFields {
		available[f] = true
	}
	for _, f := range pkFields {
		available[f] = true
	}
	for _, f := range fields {
		if !available[f] {
			return false
		}
	}
	return true
}
