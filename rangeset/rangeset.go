// Package rangeset tracks which sub-ranges of primary-key space an
// online index builder or scrubber run has already finished, so a
// crashed or cancelled run resumes from its last gap instead of
// restarting from scratch.
//
// A RangeSet owns one subspace key holding a JSON-encoded, sorted list
// of disjoint completed [begin,end) byte ranges. ClaimNextGap and
// MarkDone run inside the caller's own KV transaction, so a claim and
// the batch of work it authorizes commit or roll back together.
package rangeset

import (
	"bytes"
	"context"
	"sort"

	json "github.com/goccy/go-json"

	"github.com/jpl-au/recordlayer/kv"
)

// Range is a half-open [Begin,End) byte range. End == nil means
// unbounded (the natural "to the end of the keyspace" sentinel).
type Range struct {
	Begin []byte `json:"begin"`
	End   []byte `json:"end"`
}

// checkpoint is the persisted form: the full keyspace bounds this
// RangeSet covers, plus the completed sub-ranges within it.
type checkpoint struct {
	FullBegin []byte  `json:"full_begin"`
	FullEnd   []byte  `json:"full_end"`
	Done      []Range `json:"done"`
}

// envelope wraps a checkpoint with a checksum of its own encoded
// bytes, so TruncatedCheckpointError can name "truncated resume
// state" specifically instead of a generic JSON parse error.
type envelope struct {
	Checkpoint []byte `json:"checkpoint"`
	Checksum   string `json:"checksum"`
}

// RangeSet tracks completion of [fullBegin,fullEnd) at key.
type RangeSet struct {
	sub key
}

// key is the single KV key this RangeSet's checkpoint is stored at.
type key []byte

// New roots a RangeSet's persisted checkpoint at storageKey.
func New(storageKey []byte) *RangeSet {
	return &RangeSet{sub: key(storageKey)}
}

// Init writes an empty checkpoint covering [fullBegin,fullEnd), only if
// none already exists — so resuming a prior run's RangeSet (same key)
// never discards its recorded progress.
func Init(ctx context.Context, tx kv.Transaction, storageKey, fullBegin, fullEnd []byte) (*RangeSet, error) {
	rs := New(storageKey)
	existing, err := tx.Get(ctx, rs.sub)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return rs, nil
	}
	cp := checkpoint{FullBegin: fullBegin, FullEnd: fullEnd}
	if err := rs.save(tx, cp); err != nil {
		return nil, err
	}
	return rs, nil
}

func (rs *RangeSet) load(ctx context.Context, r kv.Reader) (checkpoint, error) {
	var cp checkpoint
	raw, err := r.Get(ctx, rs.sub)
	if err != nil {
		return cp, err
	}
	if len(raw) == 0 {
		return cp, nil
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return cp, &TruncatedCheckpointError{Reason: err.Error()}
	}
	if checksum(env.Checkpoint) != env.Checksum {
		return cp, &TruncatedCheckpointError{Reason: "checksum mismatch"}
	}
	body, err := decompress(env.Checkpoint)
	if err != nil {
		return cp, &TruncatedCheckpointError{Reason: err.Error()}
	}
	if err := json.Unmarshal(body, &cp); err != nil {
		return cp, &TruncatedCheckpointError{Reason: err.Error()}
	}
	return cp, nil
}

func (rs *RangeSet) save(tx kv.Transaction, cp checkpoint) error {
	body, err := json.Marshal(cp)
	if err != nil {
		return err
	}
	compressed := compress(body)
	raw, err := json.Marshal(envelope{Checkpoint: compressed, Checksum: checksum(compressed)})
	if err != nil {
		return err
	}
	tx.Set(rs.sub, raw)
	return nil
}

// Clear removes the checkpoint entirely (builder's clear_first path).
func (rs *RangeSet) Clear(tx kv.Transaction) {
	tx.Clear(rs.sub)
}

// ClaimNextGap finds the first uncompleted sub-range within the full
// range and returns it without marking it done. The keyspace is an
// opaque ordered byte string, not a numeric range, so there is no
// general way to cut a gap at an exact byte width; the caller bounds
// each batch by record count instead — scan at most batchSize records
// from the returned gap's Begin, then MarkDone only the prefix actually
// consumed (its own pk range), leaving the rest of the gap for the next
// claim. A nil Range (ok=false) means the full range is already fully
// covered.
func (rs *RangeSet) ClaimNextGap(ctx context.Context, tx kv.Transaction) (Range, bool, error) {
	cp, err := rs.load(ctx, tx)
	if err != nil {
		return Range{}, false, err
	}
	sortRanges(cp.Done)

	cursor := cp.FullBegin
	for _, d := range cp.Done {
		if bytes.Compare(cursor, d.Begin) < 0 {
			return Range{Begin: cursor, End: d.Begin}, true, nil
		}
		if bytes.Compare(d.End, cursor) > 0 {
			cursor = d.End
		}
	}
	if cp.FullEnd != nil && bytes.Compare(cursor, cp.FullEnd) >= 0 {
		return Range{}, false, nil
	}
	return Range{Begin: cursor, End: cp.FullEnd}, true, nil
}

// MarkDone records [r.Begin,r.End) as complete, merging it with any
// adjacent or overlapping completed ranges so the stored list stays
// minimal.
func (rs *RangeSet) MarkDone(ctx context.Context, tx kv.Transaction, r Range) error {
	cp, err := rs.load(ctx, tx)
	if err != nil {
		return err
	}
	cp.Done = mergeIn(cp.Done, r)
	return rs.save(tx, cp)
}

// IsComplete reports whether the full range has no remaining gaps.
func (rs *RangeSet) IsComplete(ctx context.Context, r kv.Reader) (bool, error) {
	cp, err := rs.load(ctx, r)
	if err != nil {
		return false, err
	}
	sortRanges(cp.Done)
	cursor := cp.FullBegin
	for _, d := range cp.Done {
		if bytes.Compare(cursor, d.Begin) < 0 {
			return false, nil
		}
		if bytes.Compare(d.End, cursor) > 0 {
			cursor = d.End
		}
	}
	return cp.FullEnd == nil || bytes.Compare(cursor, cp.FullEnd) >= 0, nil
}

func sortRanges(rs []Range) {
	sort.Slice(rs, func(i, j int) bool { return bytes.Compare(rs[i].Begin, rs[j].Begin) < 0 })
}

// mergeIn inserts r into done, coalescing with any range it touches or
// overlaps.
func mergeIn(done []Range, r Range) []Range {
	done = append(done, r)
	sortRanges(done)

	merged := done[:0]
	for _, cur := range done {
		if len(merged) > 0 {
			last := &merged[len(merged)-1]
			if bytes.Compare(cur.Begin, last.End) <= 0 {
				if bytes.Compare(cur.End, last.End) > 0 {
					last.End = cur.End
				}
				continue
			}
		}
		merged = append(merged, cur)
	}
	return merged
}
