package index

import (
	"context"
	"fmt"

	"github.com/jpl-au/recordlayer/kv"
)

// permutedMaintainer wraps a named base maintainer. It owns no storage
// of its own: a permuted index reuses its base index's physical entries
// unchanged (spec §4.8: "without rebuilding on top of shared storage"),
// and the permutation only matters for how callers address that shared
// storage — a query phrased in permuted column order is translated back
// to the base's natural order via Inverse before it ever touches a key
// (spec §4.8: "the permutation is applied to the extracted field
// sequence; inverse is used on read-back").
type permutedMaintainer struct {
	name        string
	base        Maintainer
	baseName    string
	permutation []int
	inverse     []int
	columnCount int
}

// newPermutedMaintainer validates permutation strictly: it must be a
// genuine permutation of [0, base.ColumnCountExpected()) with no
// duplicates or gaps (spec §4.8, §9 resolved Open Question: "no silent
// filtering").
func newPermutedMaintainer(name string, base Maintainer, permutation []int) (*permutedMaintainer, error) {
	n := base.ColumnCountExpected()
	if len(permutation) != n {
		return nil, &InvalidArgumentError{Message: fmt.Sprintf(
			"permuted index %q: permutation length %d does not match base column count %d", name, len(permutation), n)}
	}
	inverse := make([]int, n)
	seen := make([]bool, n)
	for outPos, srcPos := range permutation {
		if srcPos < 0 || srcPos >= n || seen[srcPos] {
			return nil, &InvalidArgumentError{Message: fmt.Sprintf(
				"permuted index %q: %v is not a valid permutation of [0,%d)", name, permutation, n)}
		}
		seen[srcPos] = true
		inverse[srcPos] = outPos
	}
	return &permutedMaintainer{name: name, base: base, permutation: permutation, inverse: inverse, columnCount: n}, nil
}

func (m *permutedMaintainer) ColumnCountExpected() int { return m.columnCount }

// Update delegates unchanged: the permuted index's entries ARE the base
// index's entries.
func (m *permutedMaintainer) Update(ctx context.Context, tx kv.Transaction, diff RecordDiff) error {
	return m.base.Update(ctx, tx, diff)
}

// Permutation returns output-column -> base-column source positions.
func (m *permutedMaintainer) Permutation() []int { return append([]int(nil), m.permutation...) }

// Inverse returns base-column -> output-column positions, used to
// translate a query phrased in base order back into permuted order.
func (m *permutedMaintainer) Inverse() []int { return append([]int(nil), m.inverse...) }
