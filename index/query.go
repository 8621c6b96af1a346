package index

import (
	"context"

	"github.com/jpl-au/recordlayer/kv"
	"github.com/jpl-au/recordlayer/tuple"
)

// The query-side interfaces below let package store route an aggregate
// or rank query to whichever concrete maintainer backs a readable
// index, without store needing to know the unexported maintainer
// types — it type-asserts the Maintainer value it gets back from
// Manager.Maintainers against these instead (spec §4.15).

// CountQueryable is satisfied by both the Count and Rank maintainers,
// each reporting a per-group count a different way.
type CountQueryable interface {
	Count(ctx context.Context, r kv.Reader, group tuple.Tuple) (int64, error)
}

// SumQueryable is satisfied by the Sum maintainer.
type SumQueryable interface {
	Sum(ctx context.Context, r kv.Reader, group tuple.Tuple) (int64, error)
}

// ExtremeQueryable is satisfied by the Min and Max maintainers (the
// takeMax field at construction, not the type, distinguishes them).
type ExtremeQueryable interface {
	Extreme(ctx context.Context, r kv.Reader, group tuple.Tuple) (tuple.Element, error)
}

// VersionQueryable is satisfied by the Version maintainer: History
// returns the live log, newest first; Archived returns whatever the
// index's retention policy has since evicted from that log, oldest
// first.
type VersionQueryable interface {
	History(ctx context.Context, r kv.Reader, pk tuple.Tuple) ([]tuple.Versionstamp, error)
	Archived(ctx context.Context, r kv.Reader, pk tuple.Tuple) ([]tuple.Versionstamp, error)
}

// RankQueryable is satisfied by the Rank maintainer, exposing the full
// rank-query surface (spec §4.6, §6.3 `rankQuery(name).{...}`).
type RankQueryable interface {
	CountQueryable
	Rank(ctx context.Context, r kv.Reader, group tuple.Tuple, score int64, pk tuple.Tuple) (uint64, error)
	ByRank(ctx context.Context, r kv.Reader, group tuple.Tuple, rank uint64) (int64, tuple.Tuple, error)
	Top(ctx context.Context, r kv.Reader, group tuple.Tuple, n int) ([]tuple.Tuple, error)
	ScoreAtRank(ctx context.Context, r kv.Reader, group tuple.Tuple, rank uint64) (int64, error)
	Range(ctx context.Context, r kv.Reader, group tuple.Tuple, startRank, endRank uint64) ([]tuple.Tuple, error)
	ByScoreRange(ctx context.Context, r kv.Reader, group tuple.Tuple, min, max int64) ([]tuple.Tuple, error)
}
