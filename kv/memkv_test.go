// memkv reference-store tests: read-your-writes, atomic counters,
// versionstamp substitution, and range scan ordering (spec Β§6.1).
package kv

import (
	"bytes"
	"context"
	"testing"
)

// TestReadYourWrites verifies a Get inside a transaction observes a Set
// issued earlier in the same transaction, before commit.
func TestReadYourWrites(t *testing.T) {
	db := NewMemoryStore()
	ctx := context.Background()

	err := db.Transact(ctx, func(tx Transaction) error {
		tx.Set([]byte("k"), []byte("v1"))
		got, err := tx.Get(ctx, []byte("k"))
		if err != nil {
			return err
		}
		if !bytes.Equal(got, []byte("v1")) {
			t.Fatalf("read-your-writes failed: got %q", got)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

// TestCommittedWritesAreVisibleAfterCommit verifies a later transaction
// observes an earlier one's committed writes (commit order, spec Β§5).
func TestCommittedWritesAreVisibleAfterCommit(t *testing.T) {
	db := NewMemoryStore()
	ctx := context.Background()

	db.Transact(ctx, func(tx Transaction) error {
		tx.Set([]byte("k"), []byte("v1"))
		return nil
	})

	var got []byte
	db.Transact(ctx, func(tx Transaction) error {
		v, err := tx.Get(ctx, []byte("k"))
		got = v
		return err
	})
	if !bytes.Equal(got, []byte("v1")) {
		t.Errorf("got %q, want v1", got)
	}
}

// TestAtomicAddAccumulates verifies AtomicAdd calls issued from ten
// separate, sequential transactions all land on the same counter.
func TestAtomicAddAccumulates(t *testing.T) {
	db := NewMemoryStore()
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		db.Transact(ctx, func(tx Transaction) error {
			tx.AtomicAdd([]byte("counter"), 1)
			return nil
		})
	}

	var got []byte
	db.Transact(ctx, func(tx Transaction) error {
		v, err := tx.Get(ctx, []byte("counter"))
		got = v
		return err
	})
	if decodeInt64(got) != 10 {
		t.Errorf("counter = %d, want 10", decodeInt64(got))
	}
}

// TestVersionstampSubstitution verifies SetVersionstampedKey replaces the
// placeholder bytes with a real, monotonically increasing stamp at
// commit, and that stamps across commits strictly increase (spec Β§3.1
// invariant 4).
func TestVersionstampSubstitution(t *testing.T) {
	db := NewMemoryStore()
	ctx := context.Background()

	placeholder := bytes.Repeat([]byte{0xFF}, 10)
	key1 := append([]byte("idx/"), placeholder...)
	key2 := append([]byte("idx/"), placeholder...)

	db.Transact(ctx, func(tx Transaction) error {
		tx.SetVersionstampedKey(key1, []byte("v1"))
		return nil
	})
	db.Transact(ctx, func(tx Transaction) error {
		tx.SetVersionstampedKey(key2, []byte("v2"))
		return nil
	})

	var entries []KeyValue
	db.Transact(ctx, func(tx Transaction) error {
		for kv, err := range tx.GetRange(ctx, []byte("idx/"), []byte("idx0"), RangeOptions{}) {
			if err != nil {
				return err
			}
			entries = append(entries, kv)
		}
		return nil
	})

	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if bytes.Equal(entries[0].Key[4:], placeholder) {
		t.Errorf("placeholder was not substituted")
	}
	if bytes.Compare(entries[0].Key, entries[1].Key) >= 0 {
		t.Errorf("versionstamped keys did not increase across commits")
	}
}

// TestGetRangeOrderingAndReverse verifies range scans return entries in
// key order, and in reverse order when requested (used by min/max and
// rank-index byScoreRange, spec Β§4.5, Β§4.6).
func TestGetRangeOrderingAndReverse(t *testing.T) {
	db := NewMemoryStore()
	ctx := context.Background()

	db.Transact(ctx, func(tx Transaction) error {
		tx.Set([]byte("a"), []byte("1"))
		tx.Set([]byte("c"), []byte("3"))
		tx.Set([]byte("b"), []byte("2"))
		return nil
	})

	var forward []string
	db.Transact(ctx, func(tx Transaction) error {
		for kv, _ := range tx.GetRange(ctx, []byte("a"), []byte("z"), RangeOptions{}) {
			forward = append(forward, string(kv.Key))
		}
		return nil
	})
	if len(forward) != 3 || forward[0] != "a" || forward[2] != "c" {
		t.Errorf("forward order wrong: %v", forward)
	}

	var reverse []string
	db.Transact(ctx, func(tx Transaction) error {
		for kv, _ := range tx.GetRange(ctx, []byte("a"), []byte("z"), RangeOptions{Reverse: true, Limit: 1}) {
			reverse = append(reverse, string(kv.Key))
		}
		return nil
	})
	if len(reverse) != 1 || reverse[0] != "c" {
		t.Errorf("reverse+limit order wrong: %v", reverse)
	}
}

// TestEmptyRangeScanReturnsNothing mirrors spec Β§8.1 invariant 3 / Β§8.3:
// getRange over an empty subspace returns an empty stream.
func TestEmptyRangeScanReturnsNothing(t *testing.T) {
	db := NewMemoryStore()
	ctx := context.Background()

	count := 0
	db.Transact(ctx, func(tx Transaction) error {
		for range tx.GetRange(ctx, []byte("nothing/"), []byte("nothing0"), RangeOptions{}) {
			count++
		}
		return nil
	})
	if count != 0 {
		t.Errorf("got %d entries from an empty range, want 0", count)
	}
}

// TestClearRemovesKey verifies Clear removes a key within a transaction
// and that absence is visible to later reads.
func TestClearRemovesKey(t *testing.T) {
	db := NewMemoryStore()
	ctx := context.Background()

	db.Transact(ctx, func(tx Transaction) error {
		tx.Set([]byte("k"), []byte("v"))
		return nil
	})
	db.Transact(ctx, func(tx Transaction) error {
		tx.Clear([]byte("k"))
		return nil
	})

	var got []byte
	db.Transact(ctx, func(tx Transaction) error {
		v, err := tx.Get(ctx, []byte("k"))
		got = v
		return err
	})
	if got != nil {
		t.Errorf("expected nil after Clear, got %q", got)
	}
}
