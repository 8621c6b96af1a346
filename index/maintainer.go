// Package index implements the index-maintainer family (spec §4.4-§4.9),
// the per-index lifecycle state machine (spec §3.1, §4.12 item 1), and
// the index manager that dispatches maintenance work across a record's
// applicable indexes (spec §2 item 7).
//
// Ownership is a flat tagged-variant style per the design notes: one
// small struct per index kind implementing a shared Maintainer
// interface, with diff/extract helpers as free functions rather than a
// class hierarchy.
package index

import (
	"context"
	"fmt"

	"github.com/jpl-au/recordlayer/keyexpr"
	"github.com/jpl-au/recordlayer/kv"
	"github.com/jpl-au/recordlayer/recordaccess"
	"github.com/jpl-au/recordlayer/schema"
	"github.com/jpl-au/recordlayer/subspace"
	"github.com/jpl-au/recordlayer/tuple"
)

// RecordDiff describes one save or delete as seen by a maintainer: the
// record's state before and after the write (nil on the absent side),
// its primary key before and after (equal unless the write is a
// rename), and the Access used to extract fields from whichever of Old
// or New is non-nil.
type RecordDiff struct {
	Access     recordaccess.Access
	Old, New   any
	OldPK, NewPK tuple.Tuple
}

// Maintainer computes and applies the index mutations implied by one
// RecordDiff (spec §4.4's shared "diff-based protocol"), and reports its
// static expectations about the index's root expression.
type Maintainer interface {
	// Update applies diff's mutations to tx.
	Update(ctx context.Context, tx kv.Transaction, diff RecordDiff) error
	// ColumnCountExpected is the arity this maintainer's root expression
	// must report.
	ColumnCountExpected() int
}

// extractorFor adapts an Access + application value into the
// keyexpr.FieldExtractor callback Evaluate needs.
func extractorFor(access recordaccess.Access, value any) keyexpr.FieldExtractor {
	return func(fieldName string) ([]tuple.Element, error) {
		return access.ExtractField(value, fieldName)
	}
}

// evaluate runs root against value via access, returning nil (not an
// error) when value is nil — the "absent side of a diff" case every
// maintainer must handle identically.
func evaluate(root keyexpr.Expression, access recordaccess.Access, value any) ([]tuple.Tuple, error) {
	if value == nil {
		return nil, nil
	}
	out, err := root.Evaluate(extractorFor(access, value))
	if err != nil {
		return nil, fmt.Errorf("index: evaluating root expression: %w", err)
	}
	return out, nil
}

// tupleIn reports whether t appears in list under tuple.Compare
// equality.
func tupleIn(t tuple.Tuple, list []tuple.Tuple) bool {
	for _, o := range list {
		if tuple.Compare(t, o) == 0 {
			return true
		}
	}
	return false
}

// diffTuples splits (oldTuples, newTuples) into entries present only in
// the old set (to remove) and entries present only in the new set (to
// add); entries in both are left untouched, making repeated identical
// saves a no-op (spec §8.1 invariant 6).
func diffTuples(oldTuples, newTuples []tuple.Tuple) (removed, added []tuple.Tuple) {
	for _, t := range oldTuples {
		if !tupleIn(t, newTuples) {
			removed = append(removed, t)
		}
	}
	for _, t := range newTuples {
		if !tupleIn(t, oldTuples) {
			added = append(added, t)
		}
	}
	return removed, added
}

// withPK appends pk to each tuple in ts, producing the full entry key
// (indexed fields + primary key) every Value/Min/Max-family layout uses
// as its distinct-entry tiebreak (spec §4.4: "PK is included as a
// tiebreak so multiple records sharing an indexed value each get
// distinct keys").
func withPK(ts []tuple.Tuple, pk tuple.Tuple) []tuple.Tuple {
	out := make([]tuple.Tuple, len(ts))
	for i, t := range ts {
		combined := make(tuple.Tuple, 0, len(t)+len(pk))
		combined = append(combined, t...)
		combined = append(combined, pk...)
		out[i] = combined
	}
	return out
}

// groupOf returns a root-expression output tuple with its trailing
// column dropped, used by Sum and Rank to separate the grouping
// prefix from the ranked or summed value (spec §3.2 invariant 2).
func groupOf(t tuple.Tuple) tuple.Tuple {
	if len(t) == 0 {
		return t
	}
	return t[:len(t)-1]
}

// lastOf returns a root-expression output tuple's trailing column.
func lastOf(t tuple.Tuple) tuple.Element {
	return t[len(t)-1]
}

// State is an index's lifecycle phase (spec §3.1).
type State byte

const (
	StateDisabled State = iota
	StateWriteOnly
	StateReadable
)

func (s State) String() string {
	switch s {
	case StateDisabled:
		return "disabled"
	case StateWriteOnly:
		return "write-only"
	case StateReadable:
		return "readable"
	default:
		return "unknown"
	}
}

// New builds the concrete Maintainer for idx, rooted at indexSub (the
// subspace already scoped to this index's name). base is consulted for
// permuted indexes, which delegate to a previously built maintainer by
// name (spec §4.8).
func New(idx schema.Index, indexSub subspace.Subspace, base map[string]Maintainer) (Maintainer, error) {
	switch idx.Kind {
	case schema.KindValue:
		return &valueMaintainer{name: idx.Name, sub: indexSub, root: idx.Root}, nil
	case schema.KindCount:
		return &countMaintainer{name: idx.Name, sub: indexSub, root: idx.Root}, nil
	case schema.KindSum:
		return &sumMaintainer{name: idx.Name, sub: indexSub, root: idx.Root}, nil
	case schema.KindMin:
		return &minMaxMaintainer{name: idx.Name, sub: indexSub, root: idx.Root, takeMax: false}, nil
	case schema.KindMax:
		return &minMaxMaintainer{name: idx.Name, sub: indexSub, root: idx.Root, takeMax: true}, nil
	case schema.KindRank:
		return newRankMaintainer(idx.Name, indexSub, idx.Root), nil
	case schema.KindVersion:
		return newVersionMaintainer(idx.Name, indexSub, idx.Root, idx.Options.Retention), nil
	case schema.KindCovering:
		return &coveringMaintainer{name: idx.Name, sub: indexSub, root: idx.Root, coveringFields: idx.Options.CoveringFields}, nil
	case schema.KindPermuted:
		baseM, ok := base[idx.Options.BaseIndex]
		if !ok {
			return nil, &InvalidArgumentError{Message: fmt.Sprintf("permuted index %q: base index %q not built", idx.Name, idx.Options.BaseIndex)}
		}
		return newPermutedMaintainer(idx.Name, baseM, idx.Options.Permutation)
	case schema.KindVector:
		return newVectorMaintainer(idx.Name, indexSub, idx.Root, idx.Options.VectorDimensions), nil
	default:
		return nil, &InvalidArgumentError{Message: fmt.Sprintf("unknown index kind %q", idx.Kind)}
	}
}
