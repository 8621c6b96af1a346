// Index maintainer tests covering the end-to-end scenarios spec.md
// seeds for the indexing subsystem: a basic value index (S1), grouped
// min/max (S2), and a rank index with ties (S3), plus state-machine and
// manager dispatch behavior.
package index

import (
	"context"
	"testing"

	"github.com/jpl-au/recordlayer/keyexpr"
	"github.com/jpl-au/recordlayer/kv"
	"github.com/jpl-au/recordlayer/recordaccess"
	"github.com/jpl-au/recordlayer/subspace"
	"github.com/jpl-au/recordlayer/tuple"
)

type testUser struct {
	ID    int64
	Email string
	City  string
}

func userAccess() recordaccess.Access {
	return &recordaccess.BasicAccess{
		Name: "User",
		ExtractFn: func(value any, field string) ([]tuple.Element, error) {
			u := value.(*testUser)
			switch field {
			case "id":
				return []tuple.Element{u.ID}, nil
			case "email":
				return []tuple.Element{u.Email}, nil
			case "city":
				return []tuple.Element{u.City}, nil
			}
			return nil, nil
		},
	}
}

func pkOf(id int64) tuple.Tuple { return tuple.Tuple{id} }

// TestValueIndexBasicScenario mirrors spec.md scenario S1: saving three
// users populates three distinct value-index entries in sorted-email
// order, and deleting one removes exactly its entry.
func TestValueIndexBasicScenario(t *testing.T) {
	db := kv.NewMemoryStore()
	ctx := context.Background()
	sub := subspace.FromBytes([]byte("idx"))
	m := &valueMaintainer{name: "user_by_email", sub: sub, root: keyexpr.Field{Name: "email"}}
	access := userAccess()

	users := []*testUser{
		{ID: 1, Email: "a@x", City: "NYC"},
		{ID: 2, Email: "b@x", City: "SF"},
		{ID: 3, Email: "c@x", City: "NYC"},
	}

	db.Transact(ctx, func(tx kv.Transaction) error {
		for _, u := range users {
			if err := m.Update(ctx, tx, RecordDiff{Access: access, New: u, NewPK: pkOf(u.ID)}); err != nil {
				return err
			}
		}
		return nil
	})

	begin, end := sub.Range()
	var keys []tuple.Tuple
	db.Transact(ctx, func(tx kv.Transaction) error {
		for kvPair, err := range tx.GetRange(ctx, begin, end, kv.RangeOptions{}) {
			if err != nil {
				return err
			}
			unpacked, err := sub.Unpack(kvPair.Key)
			if err != nil {
				return err
			}
			keys = append(keys, unpacked)
		}
		return nil
	})

	if len(keys) != 3 {
		t.Fatalf("got %d entries, want 3", len(keys))
	}
	wantEmails := []string{"a@x", "b@x", "c@x"}
	for i, want := range wantEmails {
		if keys[i][0] != tuple.Element(want) {
			t.Errorf("keys[%d] email = %v, want %v", i, keys[i][0], want)
		}
	}

	// Delete id=2.
	db.Transact(ctx, func(tx kv.Transaction) error {
		return m.Update(ctx, tx, RecordDiff{Access: access, Old: users[1], OldPK: pkOf(2)})
	})

	keys = nil
	db.Transact(ctx, func(tx kv.Transaction) error {
		for kvPair, err := range tx.GetRange(ctx, begin, end, kv.RangeOptions{}) {
			if err != nil {
				return err
			}
			unpacked, err := sub.Unpack(kvPair.Key)
			if err != nil {
				return err
			}
			keys = append(keys, unpacked)
		}
		return nil
	})
	if len(keys) != 2 {
		t.Fatalf("after delete: got %d entries, want 2", len(keys))
	}
	for _, k := range keys {
		if k[0] == tuple.Element("b@x") {
			t.Errorf("deleted entry (b@x,2) still present")
		}
	}
}

type testSale struct {
	ID     int64
	Region string
	Amount int64
}

func saleAccess() recordaccess.Access {
	return &recordaccess.BasicAccess{
		Name: "Sale",
		ExtractFn: func(value any, field string) ([]tuple.Element, error) {
			s := value.(*testSale)
			switch field {
			case "region":
				return []tuple.Element{s.Region}, nil
			case "amount":
				return []tuple.Element{s.Amount}, nil
			}
			return nil, nil
		},
	}
}

// TestGroupedMinMaxScenario mirrors spec.md scenario S2.
func TestGroupedMinMaxScenario(t *testing.T) {
	db := kv.NewMemoryStore()
	ctx := context.Background()
	root := keyexpr.Concat{Children: []keyexpr.Expression{
		keyexpr.Field{Name: "region"}, keyexpr.Field{Name: "amount"},
	}}
	minSub := subspace.FromBytes([]byte("min"))
	maxSub := subspace.FromBytes([]byte("max"))
	minM := &minMaxMaintainer{name: "min_by_region", sub: minSub, root: root, takeMax: false}
	maxM := &minMaxMaintainer{name: "max_by_region", sub: maxSub, root: root, takeMax: true}
	access := saleAccess()

	sales := []*testSale{
		{ID: 1, Region: "East", Amount: 1000},
		{ID: 2, Region: "East", Amount: 500},
		{ID: 3, Region: "East", Amount: 1500},
		{ID: 4, Region: "West", Amount: 800},
	}

	db.Transact(ctx, func(tx kv.Transaction) error {
		for _, s := range sales {
			diff := RecordDiff{Access: access, New: s, NewPK: pkOf(s.ID)}
			if err := minM.Update(ctx, tx, diff); err != nil {
				return err
			}
			if err := maxM.Update(ctx, tx, diff); err != nil {
				return err
			}
		}
		return nil
	})

	var minEast, maxEast, minWest, maxWest tuple.Element
	db.Transact(ctx, func(tx kv.Transaction) error {
		var err error
		minEast, err = minM.Extreme(ctx, tx, tuple.Tuple{"East"})
		if err != nil {
			return err
		}
		maxEast, err = maxM.Extreme(ctx, tx, tuple.Tuple{"East"})
		if err != nil {
			return err
		}
		minWest, err = minM.Extreme(ctx, tx, tuple.Tuple{"West"})
		if err != nil {
			return err
		}
		maxWest, err = maxM.Extreme(ctx, tx, tuple.Tuple{"West"})
		return err
	})

	if minEast != int64(500) {
		t.Errorf("min(East) = %v, want 500", minEast)
	}
	if maxEast != int64(1500) {
		t.Errorf("max(East) = %v, want 1500", maxEast)
	}
	if minWest != int64(800) || maxWest != int64(800) {
		t.Errorf("min/max(West) = %v/%v, want 800/800", minWest, maxWest)
	}

	// Delete saleID=2 (the 500 entry); min(East) should become 1000.
	db.Transact(ctx, func(tx kv.Transaction) error {
		diff := RecordDiff{Access: access, Old: sales[1], OldPK: pkOf(2)}
		return minM.Update(ctx, tx, diff)
	})
	db.Transact(ctx, func(tx kv.Transaction) error {
		v, err := minM.Extreme(ctx, tx, tuple.Tuple{"East"})
		minEast = v
		return err
	})
	if minEast != int64(1000) {
		t.Errorf("after delete, min(East) = %v, want 1000", minEast)
	}
}

type testPlayer struct {
	ID    int64
	Score int64
}

func playerAccess() recordaccess.Access {
	return &recordaccess.BasicAccess{
		Name: "Player",
		ExtractFn: func(value any, field string) ([]tuple.Element, error) {
			p := value.(*testPlayer)
			if field == "score" {
				return []tuple.Element{p.Score}, nil
			}
			return nil, nil
		},
	}
}

// TestRankIndexTiesScenario mirrors spec.md scenario S3: three tied
// top scores, descending rank order, and exact counts.
func TestRankIndexTiesScenario(t *testing.T) {
	db := kv.NewMemoryStore()
	ctx := context.Background()
	sub := subspace.FromBytes([]byte("rank"))
	m := newRankMaintainer("top_scores", sub, keyexpr.Field{Name: "score"})
	access := playerAccess()

	scores := []int64{1000, 1000, 1000, 900, 900, 800}
	db.Transact(ctx, func(tx kv.Transaction) error {
		for i, s := range scores {
			pk := pkOf(int64(i + 1))
			p := &testPlayer{ID: int64(i + 1), Score: s}
			if err := m.Update(ctx, tx, RecordDiff{Access: access, New: p, NewPK: pk}); err != nil {
				return err
			}
		}
		return nil
	})

	var top []tuple.Tuple
	var count int64
	db.Transact(ctx, func(tx kv.Transaction) error {
		var err error
		top, err = m.Top(ctx, tx, tuple.Tuple{}, 3)
		if err != nil {
			return err
		}
		count, err = m.Count(ctx, tx, tuple.Tuple{})
		return err
	})

	if len(top) != 3 {
		t.Fatalf("top(3) returned %d entries, want 3", len(top))
	}
	for _, e := range top {
		if e[0] != int64(1000) {
			t.Errorf("top(3) entry score = %v, want 1000", e[0])
		}
	}
	if count != 6 {
		t.Errorf("count() = %d, want 6", count)
	}

	var rank1 uint64
	db.Transact(ctx, func(tx kv.Transaction) error {
		var err error
		rank1, err = m.Rank(ctx, tx, tuple.Tuple{}, 1000, pkOf(1))
		return err
	})
	if rank1 < 1 || rank1 > 3 {
		t.Errorf("getRank(1000, pk=1) = %d, want in {1,2,3}", rank1)
	}

	var scoreAt4 int64
	db.Transact(ctx, func(tx kv.Transaction) error {
		var err error
		scoreAt4, err = m.ScoreAtRank(ctx, tx, tuple.Tuple{}, 4)
		return err
	})
	if scoreAt4 != 900 {
		t.Errorf("scoreAtRank(4) = %d, want 900", scoreAt4)
	}

	var byRange []tuple.Tuple
	db.Transact(ctx, func(tx kv.Transaction) error {
		var err error
		byRange, err = m.ByScoreRange(ctx, tx, tuple.Tuple{}, 1000, 1000)
		return err
	})
	if len(byRange) != 3 {
		t.Errorf("byScoreRange(1000,1000) returned %d, want 3", len(byRange))
	}
}

// TestStateManagerTransitions verifies the disabled -> write-only ->
// readable path is enforced and any -> disabled is always allowed
// (spec §3.1).
func TestStateManagerTransitions(t *testing.T) {
	db := kv.NewMemoryStore()
	ctx := context.Background()
	sm := NewStateManager(subspace.FromBytes([]byte("S")))

	db.Transact(ctx, func(tx kv.Transaction) error {
		if err := sm.Set(ctx, tx, "idx1", StateWriteOnly); err != nil {
			t.Fatal(err)
		}
		return nil
	})
	db.Transact(ctx, func(tx kv.Transaction) error {
		if err := sm.Set(ctx, tx, "idx1", StateReadable); err != nil {
			t.Fatal(err)
		}
		return nil
	})
	db.Transact(ctx, func(tx kv.Transaction) error {
		// disabled -> readable directly must fail.
		if err := sm.Set(ctx, tx, "idx2", StateReadable); err == nil {
			t.Error("expected rejection of disabled -> readable")
		}
		// any -> disabled always allowed.
		if err := sm.Set(ctx, tx, "idx1", StateDisabled); err != nil {
			t.Errorf("readable -> disabled should be allowed: %v", err)
		}
		return nil
	})
}

// TestIndexNotReadyErrorIncludesState verifies IndexNotReadyError's
// message names the current state (spec §7: "message MUST include both
// states").
func TestIndexNotReadyErrorIncludesState(t *testing.T) {
	err := &IndexNotReadyError{Name: "by_email", State: StateWriteOnly}
	msg := err.Error()
	if msg == "" {
		t.Fatal("empty error message")
	}
	if !contains(msg, "write-only") || !contains(msg, "readable") {
		t.Errorf("message %q does not mention both states", msg)
	}
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
