package rangeset

import (
	"bytes"
	"context"
	"testing"

	"github.com/jpl-au/recordlayer/kv"
)

// TestClaimNextGapCoversFullRangeThenCompletes simulates a builder that
// only ever processes one key per batch: each claim returns the whole
// remaining gap, but the builder marks done only the single key it
// actually scanned, so the next claim picks up right after it.
func TestClaimNextGapCoversFullRangeThenCompletes(t *testing.T) {
	db := kv.NewMemoryStore()
	ctx := context.Background()
	storageKey := []byte("rs/test")
	fullEnd := []byte{0x10}

	var rs *RangeSet
	db.Transact(ctx, func(tx kv.Transaction) error {
		var err error
		rs, err = Init(ctx, tx, storageKey, []byte{0x00}, fullEnd)
		return err
	})

	var claimed []Range
	for i := 0; i < 20; i++ {
		var gap Range
		var ok bool
		db.Transact(ctx, func(tx kv.Transaction) error {
			var err error
			gap, ok, err = rs.ClaimNextGap(ctx, tx)
			return err
		})
		if !ok {
			break
		}
		claimed = append(claimed, gap)
		consumedEnd := []byte{gap.Begin[0] + 1}
		db.Transact(ctx, func(tx kv.Transaction) error {
			return rs.MarkDone(ctx, tx, Range{Begin: gap.Begin, End: consumedEnd})
		})
	}

	var complete bool
	db.Transact(ctx, func(tx kv.Transaction) error {
		var err error
		complete, err = rs.IsComplete(ctx, tx)
		return err
	})
	if !complete {
		t.Fatalf("expected full range complete after claiming all gaps, claimed=%v", claimed)
	}
	if len(claimed) != 16 {
		t.Errorf("expected 16 single-key batches for [0x00,0x10), got %d", len(claimed))
	}

	// Claiming again after completion must report no gap.
	var ok bool
	db.Transact(ctx, func(tx kv.Transaction) error {
		_, ok2, err := rs.ClaimNextGap(ctx, tx)
		ok = ok2
		return err
	})
	if ok {
		t.Error("expected no further gap once range is complete")
	}
}

// TestMarkDoneMergesAdjacentRanges verifies the stored Done list stays
// minimal when two claimed gaps abut.
func TestMarkDoneMergesAdjacentRanges(t *testing.T) {
	db := kv.NewMemoryStore()
	ctx := context.Background()
	storageKey := []byte("rs/merge")

	var rs *RangeSet
	db.Transact(ctx, func(tx kv.Transaction) error {
		var err error
		rs, err = Init(ctx, tx, storageKey, []byte{0x00}, []byte{0x05})
		return err
	})

	db.Transact(ctx, func(tx kv.Transaction) error {
		if err := rs.MarkDone(ctx, tx, Range{Begin: []byte{0x00}, End: []byte{0x02}}); err != nil {
			return err
		}
		return rs.MarkDone(ctx, tx, Range{Begin: []byte{0x02}, End: []byte{0x05}})
	})

	var cp checkpoint
	db.Transact(ctx, func(tx kv.Transaction) error {
		var err error
		cp, err = rs.load(ctx, tx)
		return err
	})
	if len(cp.Done) != 1 {
		t.Fatalf("expected merged ranges to coalesce into 1 entry, got %d: %v", len(cp.Done), cp.Done)
	}
	if !bytes.Equal(cp.Done[0].Begin, []byte{0x00}) || !bytes.Equal(cp.Done[0].End, []byte{0x05}) {
		t.Errorf("merged range = [%v,%v), want [0x00,0x05)", cp.Done[0].Begin, cp.Done[0].End)
	}
}

// TestInitIsIdempotentAcrossResume verifies a second Init call with the
// same storage key never discards progress already recorded (a resumed
// builder run reusing its RangeSet key after a crash).
func TestInitIsIdempotentAcrossResume(t *testing.T) {
	db := kv.NewMemoryStore()
	ctx := context.Background()
	storageKey := []byte("rs/resume")

	db.Transact(ctx, func(tx kv.Transaction) error {
		rs, err := Init(ctx, tx, storageKey, []byte{0x00}, []byte{0x10})
		if err != nil {
			return err
		}
		return rs.MarkDone(ctx, tx, Range{Begin: []byte{0x00}, End: []byte{0x08}})
	})

	db.Transact(ctx, func(tx kv.Transaction) error {
		rs2, err := Init(ctx, tx, storageKey, []byte{0x00}, []byte{0x10})
		if err != nil {
			return err
		}
		cp, err := rs2.load(ctx, tx)
		if err != nil {
			return err
		}
		if len(cp.Done) != 1 {
			t.Errorf("resumed RangeSet lost prior progress: Done=%v", cp.Done)
		}
		return nil
	})
}

func TestTruncatedCheckpointDetected(t *testing.T) {
	db := kv.NewMemoryStore()
	ctx := context.Background()
	storageKey := []byte("rs/corrupt")

	db.Transact(ctx, func(tx kv.Transaction) error {
		tx.Set(storageKey, []byte(`{"checkpoint":"bm90IHJlYWwgY2hlY2twb2ludA==","checksum":"deadbeef"}`))
		return nil
	})

	rs := New(storageKey)
	db.Transact(ctx, func(tx kv.Transaction) error {
		_, err := rs.load(ctx, tx)
		if err == nil {
			t.Error("expected TruncatedCheckpointError for checksum mismatch")
		}
		var truncErr *TruncatedCheckpointError
		if err != nil {
			if _, ok := err.(*TruncatedCheckpointError); !ok {
				t.Errorf("error = %T, want *TruncatedCheckpointError", err)
			}
			_ = truncErr
		}
		return nil
	})
}
