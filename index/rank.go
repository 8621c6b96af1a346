package index

import (
	"context"
	"fmt"

	"github.com/jpl-au/recordlayer/keyexpr"
	"github.com/jpl-au/recordlayer/kv"
	"github.com/jpl-au/recordlayer/subspace"
	"github.com/jpl-au/recordlayer/tuple"
)

// rankFanout is the bucket-width multiplier between adjacent Range-Tree
// levels (spec §4.6: "bucket width at level β„“ = B^β„“ for a fixed fan-out
// B (e.g. 16)").
const rankFanout = 16

// rankLevels bounds how many count-node levels are maintained above the
// leaf level. With fanout 16, levels 0-7 have bucket widths 1 through
// 16^7 (about 2.7×10^8); scores spread wider than that occupy several
// top-level buckets, which Count and countAboveScore sum.
const rankLevels = 8

// rankMaintainer implements the Rank (Range-Tree) index (spec §4.6):
// per-group leaves keyed by score, with atomic-add count nodes at
// exponentially widening bucket sizes supporting O(log n) rank queries.
type rankMaintainer struct {
	name string
	sub  subspace.Subspace
	root keyexpr.Expression
}

func newRankMaintainer(name string, sub subspace.Subspace, root keyexpr.Expression) *rankMaintainer {
	return &rankMaintainer{name: name, sub: sub, root: root}
}

func (m *rankMaintainer) ColumnCountExpected() int { return m.root.ColumnCount() }

// groupSub, leafSub, and countSub locate the per-group subtrees:
// `<idx>/<group…>/L/…` for leaves, `<idx>/<group…>/C/<level>/…` for
// count nodes (spec §4.6 layout).
func (m *rankMaintainer) groupSub(group tuple.Tuple) subspace.Subspace { return m.sub.SubTuple(group) }
func (m *rankMaintainer) leafSub(group tuple.Tuple) subspace.Subspace {
	return m.groupSub(group).Sub("L")
}
func (m *rankMaintainer) countSub(group tuple.Tuple, level int) subspace.Subspace {
	return m.groupSub(group).Sub("C").Sub(int64(level))
}

// bucketFloor returns the bucket lower bound containing score at level.
func bucketFloor(score int64, level int) int64 {
	width := int64(1)
	for i := 0; i < level; i++ {
		width *= rankFanout
	}
	if score >= 0 {
		return (score / width) * width
	}
	// Floor toward negative infinity for negative scores.
	q := score / width
	if score%width != 0 {
		q--
	}
	return q * width
}

func (m *rankMaintainer) Update(ctx context.Context, tx kv.Transaction, diff RecordDiff) error {
	oldTuples, err := evaluate(m.root, diff.Access, diff.Old)
	if err != nil {
		return err
	}
	newTuples, err := evaluate(m.root, diff.Access, diff.New)
	if err != nil {
		return err
	}

	if len(oldTuples) > 1 || len(newTuples) > 1 {
		return &InvalidArgumentError{Message: fmt.Sprintf("rank index %q: root expression must be single-valued", m.name)}
	}

	if len(oldTuples) == 1 {
		t := oldTuples[0]
		group, score := groupOf(t), lastOf(t)
		scoreInt, err := asInt64(score)
		if err != nil {
			return fmt.Errorf("index: rank %q: %w", m.name, err)
		}
		if err := m.removeLeaf(tx, group, scoreInt, diff.OldPK); err != nil {
			return err
		}
	}
	if len(newTuples) == 1 {
		t := newTuples[0]
		group, score := groupOf(t), lastOf(t)
		scoreInt, err := asInt64(score)
		if err != nil {
			return fmt.Errorf("index: rank %q: %w", m.name, err)
		}
		if err := m.insertLeaf(tx, group, scoreInt, diff.NewPK); err != nil {
			return err
		}
	}
	return nil
}

func (m *rankMaintainer) insertLeaf(tx kv.Transaction, group tuple.Tuple, score int64, pk tuple.Tuple) error {
	key := m.leafSub(group).Pack(append(tuple.Tuple{score}, pk...))
	tx.Set(key, []byte{})
	for level := 0; level < rankLevels; level++ {
		tx.AtomicAdd(m.countSub(group, level).Pack(tuple.Tuple{bucketFloor(score, level)}), 1)
	}
	return nil
}

func (m *rankMaintainer) removeLeaf(tx kv.Transaction, group tuple.Tuple, score int64, pk tuple.Tuple) error {
	key := m.leafSub(group).Pack(append(tuple.Tuple{score}, pk...))
	tx.Clear(key)
	for level := 0; level < rankLevels; level++ {
		tx.AtomicAdd(m.countSub(group, level).Pack(tuple.Tuple{bucketFloor(score, level)}), -1)
	}
	return nil
}

// Count returns the total live leaf count for group (spec §4.6 "count()
// reads the root-level count for the group" β€” implemented here as a
// full scan of the top level's buckets, summed, since the "root" is the
// sum across all top-level buckets rather than a single key).
func (m *rankMaintainer) Count(ctx context.Context, r kv.Reader, group tuple.Tuple) (int64, error) {
	begin, end := m.countSub(group, rankLevels-1).Range()
	var total int64
	for kvPair, err := range r.GetRange(ctx, begin, end, kv.RangeOptions{}) {
		if err != nil {
			return 0, err
		}
		total += decodeCounter(kvPair.Value)
	}
	return total, nil
}

// Rank returns one plus the number of live (score, pk) pairs that sort
// strictly before (score, pk) under descending-score order (spec §4.6,
// glossary "Rank"). It sums higher-scoring buckets via the count nodes,
// then resolves ties within the exact score via a direct leaf range
// scan.
func (m *rankMaintainer) Rank(ctx context.Context, r kv.Reader, group tuple.Tuple, score int64, pk tuple.Tuple) (uint64, error) {
	higher, err := m.countAboveScore(ctx, r, group, score)
	if err != nil {
		return 0, err
	}

	tied, err := m.countTiedAndGreaterPK(ctx, r, group, score, pk)
	if err != nil {
		return 0, err
	}
	return higher + tied + 1, nil
}

// countAboveScore sums every leaf with a strictly greater score than
// score, via the top-level count nodes minus the buckets overlapping or
// below score: simplest correct approach given our level count is
// small is a direct scan of the top-level bucket range above score,
// descending through levels only where a bucket is split by the
// boundary.
func (m *rankMaintainer) countAboveScore(ctx context.Context, r kv.Reader, group tuple.Tuple, score int64) (uint64, error) {
	return m.sumLevel(ctx, r, group, rankLevels-1, score+1, nil)
}

// sumLevel sums count-node buckets at level whose floor is >= minScore
// (and, when maxScore is non-nil, <= maxScore), recursing one level down whenever a
// boundary bucket must be split more precisely. At level 0 it falls
// back to an exact leaf scan.
func (m *rankMaintainer) sumLevel(ctx context.Context, r kv.Reader, group tuple.Tuple, level int, minScore int64, maxScore *int64) (uint64, error) {
	if level < 0 {
		return m.sumLeaves(ctx, r, group, minScore, maxScore)
	}

	boundaryFloor := bucketFloor(minScore, level)

	// Sum every bucket at this level whose floor is >= boundaryFloor and
	// (if capped) whose floor is <= bucketFloor(maxScore, level); the
	// boundary bucket itself (containing minScore and, if present,
	// maxScore) is re-resolved one level down for precision.
	width := int64(1)
	for i := 0; i < level; i++ {
		width *= rankFanout
	}

	begin := m.countSub(group, level).Pack(tuple.Tuple{boundaryFloor + width})
	_, end := m.countSub(group, level).Range()
	if maxScore != nil {
		capFloor := bucketFloor(*maxScore, level)
		end = m.countSub(group, level).Pack(tuple.Tuple{capFloor + width})
	}

	var total uint64
	for kvPair, err := range r.GetRange(ctx, begin, end, kv.RangeOptions{}) {
		if err != nil {
			return 0, err
		}
		total += uint64(decodeCounter(kvPair.Value))
	}

	boundaryCount, err := m.sumLevel(ctx, r, group, level-1, minScore, orBoundaryMax(maxScore, boundaryFloor, width))
	if err != nil {
		return 0, err
	}
	return total + boundaryCount, nil
}

// orBoundaryMax caps the recursive descent to the current boundary
// bucket's span, unless a tighter caller-supplied maxScore already
// applies.
func orBoundaryMax(callerMax *int64, boundaryFloor, width int64) *int64 {
	top := boundaryFloor + width - 1
	if callerMax != nil && *callerMax < top {
		return callerMax
	}
	return &top
}

func (m *rankMaintainer) sumLeaves(ctx context.Context, r kv.Reader, group tuple.Tuple, minScore int64, maxScore *int64) (uint64, error) {
	leafSub := m.leafSub(group)
	begin := leafSub.Pack(tuple.Tuple{minScore})
	var end []byte
	if maxScore != nil {
		end = leafSub.Pack(tuple.Tuple{*maxScore + 1})
	} else {
		_, end = leafSub.Range()
	}
	var total uint64
	for range r.GetRange(ctx, begin, end, kv.RangeOptions{}) {
		total++
	}
	return total, nil
}

// countTiedAndGreaterPK counts live leaves with the exact score and a
// pk strictly greater than pk (tie-break order, spec §4.6 "ties broken
// by pk ordering").
func (m *rankMaintainer) countTiedAndGreaterPK(ctx context.Context, r kv.Reader, group tuple.Tuple, score int64, pk tuple.Tuple) (uint64, error) {
	scoreSub := m.leafSub(group).SubTuple(tuple.Tuple{score})
	begin := scoreSub.Pack(pk)
	_, end := scoreSub.Range()
	var total uint64
	for kvPair, err := range r.GetRange(ctx, begin, end, kv.RangeOptions{}) {
		if err != nil {
			return 0, err
		}
		rest, err := scoreSub.Unpack(kvPair.Key)
		if err != nil {
			return 0, err
		}
		if tuple.Compare(rest, pk) > 0 {
			total++
		}
	}
	return total, nil
}

// ByRank resolves the (score, pk) pair at 1-based rank r by scanning the
// group's leaves in descending order and stopping at the r-th one; it
// does not consult the count nodes, so its cost grows with r. rank <= 0
// is rejected.
func (m *rankMaintainer) ByRank(ctx context.Context, r kv.Reader, group tuple.Tuple, rank uint64) (int64, tuple.Tuple, error) {
	if rank == 0 {
		return 0, nil, &InvalidArgumentError{Message: "rank must be >= 1"}
	}

	leafSub := m.leafSub(group)
	begin, end := leafSub.Range()
	var remaining = rank
	for kvPair, err := range r.GetRange(ctx, begin, end, kv.RangeOptions{Reverse: true}) {
		if err != nil {
			return 0, nil, err
		}
		remaining--
		if remaining == 0 {
			rest, err := leafSub.Unpack(kvPair.Key)
			if err != nil {
				return 0, nil, err
			}
			score, ok := rest[0].(int64)
			if !ok {
				return 0, nil, fmt.Errorf("index: rank %q: corrupt leaf key", m.name)
			}
			return score, rest[1:], nil
		}
	}
	return 0, nil, &InvalidArgumentError{Message: fmt.Sprintf("rank %d exceeds group size", rank)}
}

// Top returns the n highest-ranked (score, pk) pairs, descending.
func (m *rankMaintainer) Top(ctx context.Context, r kv.Reader, group tuple.Tuple, n int) ([]tuple.Tuple, error) {
	leafSub := m.leafSub(group)
	begin, end := leafSub.Range()
	var out []tuple.Tuple
	for kvPair, err := range r.GetRange(ctx, begin, end, kv.RangeOptions{Reverse: true, Limit: n}) {
		if err != nil {
			return nil, err
		}
		rest, err := leafSub.Unpack(kvPair.Key)
		if err != nil {
			return nil, err
		}
		out = append(out, rest)
	}
	return out, nil
}

// ByScoreRange returns every live (score, pk) pair with min <= score <=
// max, ascending (spec §4.6).
func (m *rankMaintainer) ByScoreRange(ctx context.Context, r kv.Reader, group tuple.Tuple, min, max int64) ([]tuple.Tuple, error) {
	if min > max {
		return nil, &InvalidArgumentError{Message: "minScore must not exceed maxScore"}
	}
	leafSub := m.leafSub(group)
	begin := leafSub.Pack(tuple.Tuple{min})
	end := leafSub.Pack(tuple.Tuple{max + 1})
	var out []tuple.Tuple
	for kvPair, err := range r.GetRange(ctx, begin, end, kv.RangeOptions{}) {
		if err != nil {
			return nil, err
		}
		rest, err := leafSub.Unpack(kvPair.Key)
		if err != nil {
			return nil, err
		}
		out = append(out, rest)
	}
	return out, nil
}

// ScoreAtRank returns only the score element at rank r (spec §4.6).
func (m *rankMaintainer) ScoreAtRank(ctx context.Context, r kv.Reader, group tuple.Tuple, rank uint64) (int64, error) {
	score, _, err := m.ByRank(ctx, r, group, rank)
	return score, err
}

// Range returns the (score, pk) pairs for every rank in
// [startRank, endRank], by scanning leaves descending from rank 1 and
// collecting once the scan reaches startRank (spec §4.6: "repeated
// byRank with a bounded forward scan").
func (m *rankMaintainer) Range(ctx context.Context, r kv.Reader, group tuple.Tuple, startRank, endRank uint64) ([]tuple.Tuple, error) {
	if startRank == 0 || startRank > endRank {
		return nil, &InvalidArgumentError{Message: "startRank must be >= 1 and <= endRank"}
	}
	limit := int(endRank-startRank) + 1

	leafSub := m.leafSub(group)
	begin, end := leafSub.Range()
	var out []tuple.Tuple
	var seen uint64
	for kvPair, err := range r.GetRange(ctx, begin, end, kv.RangeOptions{Reverse: true}) {
		if err != nil {
			return nil, err
		}
		seen++
		if seen < startRank {
			continue
		}
		rest, uerr := leafSub.Unpack(kvPair.Key)
		if uerr != nil {
			return nil, uerr
		}
		out = append(out, rest)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}
