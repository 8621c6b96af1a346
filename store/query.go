package store

import (
	"context"
	"fmt"

	"github.com/jpl-au/recordlayer/index"
	"github.com/jpl-au/recordlayer/kv"
	"github.com/jpl-au/recordlayer/schema"
	"github.com/jpl-au/recordlayer/tuple"
)

// AggregateOp names which read method evaluateAggregate routes to
// (spec §4.15).
type AggregateOp string

const (
	AggregateMin   AggregateOp = "min"
	AggregateMax   AggregateOp = "max"
	AggregateCount AggregateOp = "count"
	AggregateSum   AggregateOp = "sum"
)

// EvaluateAggregate reads a min/max/count/sum index's current value for
// group, validating the index is readable and the index kind matches
// op before dispatching to the backing maintainer's query method (spec
// §4.15). group's arity must equal the index's grouping-field count
// (root_expr.columnCount − 1 for min/max/sum, columnCount for count).
func (s *Store) EvaluateAggregate(ctx context.Context, r kv.Reader, op AggregateOp, indexName string, group tuple.Tuple) (tuple.Element, error) {
	idx, err := s.indexMgr.RequireReadable(ctx, r, indexName)
	if err != nil {
		return nil, err
	}
	maintainer, ok := s.indexMgr.Maintainers[indexName]
	if !ok {
		return nil, &index.IndexNotFoundError{Name: indexName}
	}

	switch op {
	case AggregateCount:
		if idx.Kind != schema.KindCount {
			return nil, wrongKindError(indexName, op, idx.Kind)
		}
		q, ok := maintainer.(index.CountQueryable)
		if !ok {
			return nil, wrongKindError(indexName, op, idx.Kind)
		}
		v, err := q.Count(ctx, r, group)
		return tuple.Element(v), err
	case AggregateSum:
		if idx.Kind != schema.KindSum {
			return nil, wrongKindError(indexName, op, idx.Kind)
		}
		q, ok := maintainer.(index.SumQueryable)
		if !ok {
			return nil, wrongKindError(indexName, op, idx.Kind)
		}
		v, err := q.Sum(ctx, r, group)
		return tuple.Element(v), err
	case AggregateMin, AggregateMax:
		wantKind := schema.KindMin
		if op == AggregateMax {
			wantKind = schema.KindMax
		}
		if idx.Kind != wantKind {
			return nil, wrongKindError(indexName, op, idx.Kind)
		}
		q, ok := maintainer.(index.ExtremeQueryable)
		if !ok {
			return nil, wrongKindError(indexName, op, idx.Kind)
		}
		return q.Extreme(ctx, r, group)
	default:
		return nil, &index.InvalidArgumentError{Message: fmt.Sprintf("store: unknown aggregate op %q", op)}
	}
}

func wrongKindError(indexName string, op AggregateOp, kind schema.IndexKind) error {
	return &index.InvalidArgumentError{Message: fmt.Sprintf("store: index %q is kind %q, not usable for aggregate op %q", indexName, kind, op)}
}

// RankQuery finds indexName's rank maintainer for direct use of the
// full rank-query surface (top/byRank/range/getRank/scoreAtRank/
// byScoreRange/count), validating the index is readable and of kind
// rank (spec §4.15, §6.3).
func (s *Store) RankQuery(ctx context.Context, r kv.Reader, indexName string) (index.RankQueryable, error) {
	idx, err := s.indexMgr.RequireReadable(ctx, r, indexName)
	if err != nil {
		return nil, err
	}
	if idx.Kind != schema.KindRank {
		return nil, &index.InvalidArgumentError{Message: "store: index " + indexName + " is not a rank index"}
	}
	maintainer, ok := s.indexMgr.Maintainers[indexName]
	if !ok {
		return nil, &index.IndexNotFoundError{Name: indexName}
	}
	q, ok := maintainer.(index.RankQueryable)
	if !ok {
		return nil, &index.InvalidArgumentError{Message: "store: index " + indexName + " maintainer does not implement rank queries"}
	}
	return q, nil
}

// RankQueryByLastField auto-detects the rank index whose root
// expression's last field is field, among every index applicable to
// recordType, per spec §4.15: "auto-detect index by the last field of
// its root expression (not the first — grouping fields precede the
// ranked field)". It rejects ambiguity (more than one match) and
// absence with a typed InvalidArgument naming the field.
func (s *Store) RankQueryByLastField(ctx context.Context, r kv.Reader, recordType, field string) (index.RankQueryable, string, error) {
	var match string
	for _, idx := range s.schema.IndexesForType(recordType) {
		if idx.Kind != schema.KindRank {
			continue
		}
		names := idx.Root.FieldNames()
		if len(names) == 0 || names[len(names)-1] != field {
			continue
		}
		if match != "" {
			return nil, "", &index.InvalidArgumentError{Message: fmt.Sprintf("store: ambiguous rank index for field %q on %q: both %q and %q match", field, recordType, match, idx.Name)}
		}
		match = idx.Name
	}
	if match == "" {
		return nil, "", &index.InvalidArgumentError{Message: fmt.Sprintf("store: no rank index on %q ranks by field %q", recordType, field)}
	}
	q, err := s.RankQuery(ctx, r, match)
	return q, match, err
}

// VersionHistory finds indexName's version maintainer for direct use of
// its history surface (live log plus whatever retention has archived),
// validating the index is readable and of kind version.
func (s *Store) VersionHistory(ctx context.Context, r kv.Reader, indexName string) (index.VersionQueryable, error) {
	idx, err := s.indexMgr.RequireReadable(ctx, r, indexName)
	if err != nil {
		return nil, err
	}
	if idx.Kind != schema.KindVersion {
		return nil, &index.InvalidArgumentError{Message: "store: index " + indexName + " is not a version index"}
	}
	maintainer, ok := s.indexMgr.Maintainers[indexName]
	if !ok {
		return nil, &index.IndexNotFoundError{Name: indexName}
	}
	q, ok := maintainer.(index.VersionQueryable)
	if !ok {
		return nil, &index.InvalidArgumentError{Message: "store: index " + indexName + " maintainer does not implement version history queries"}
	}
	return q, nil
}
