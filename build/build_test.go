package build

import (
	"context"
	"testing"

	"github.com/jpl-au/recordlayer/index"
	"github.com/jpl-au/recordlayer/keyexpr"
	"github.com/jpl-au/recordlayer/kv"
	"github.com/jpl-au/recordlayer/recordaccess"
	"github.com/jpl-au/recordlayer/schema"
	"github.com/jpl-au/recordlayer/store"
	"github.com/jpl-au/recordlayer/subspace"
	"github.com/jpl-au/recordlayer/tuple"
)

type sale struct {
	ID     int64
	Region string
	Amount int64
}

func saleAccess() recordaccess.Access {
	return &recordaccess.BasicAccess{
		Name: "Sale",
		SerializeFn: func(value any) ([]byte, error) {
			v := value.(*sale)
			return tuple.Pack(tuple.Tuple{v.ID, v.Region, v.Amount}), nil
		},
		DeserializeFn: func(body []byte) (any, error) {
			t, err := tuple.Unpack(body)
			if err != nil {
				return nil, err
			}
			return &sale{ID: t[0].(int64), Region: t[1].(string), Amount: t[2].(int64)}, nil
		},
		ExtractFn: func(value any, field string) ([]tuple.Element, error) {
			v := value.(*sale)
			switch field {
			case "id":
				return []tuple.Element{v.ID}, nil
			case "region":
				return []tuple.Element{v.Region}, nil
			}
			return nil, nil
		},
	}
}

func newSaleSchema() *schema.Schema {
	s := schema.New()
	s.AddRecordType(schema.RecordType{Name: "Sale", PrimaryKey: keyexpr.Field{Name: "id"}})
	s.AddIndex(schema.Index{
		Name: "sale_by_region", Kind: schema.KindValue, RecordType: "Sale",
		Root: keyexpr.Field{Name: "region"},
	})
	return s
}

func saveSales(t *testing.T, db kv.Database, st *store.Store, sales []*sale) {
	t.Helper()
	ctx := context.Background()
	err := db.Transact(ctx, func(tx kv.Transaction) error {
		for _, sl := range sales {
			if err := st.Save(ctx, tx, "Sale", sl); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

// TestBuildIndexFromScratch saves records while sale_by_region stays
// disabled (so Save skips it, per the index lifecycle), then verifies
// BuildIndex materializes every entry and leaves the index readable.
func TestBuildIndexFromScratch(t *testing.T) {
	ctx := context.Background()
	db := kv.NewMemoryStore()
	s := newSaleSchema()
	root := subspace.FromBytes([]byte("build1"))
	st, err := store.Open(root, s, map[string]recordaccess.Access{"Sale": saleAccess()})
	if err != nil {
		t.Fatal(err)
	}

	sales := []*sale{
		{ID: 1, Region: "East", Amount: 10},
		{ID: 2, Region: "West", Amount: 20},
		{ID: 3, Region: "East", Amount: 30},
		{ID: 4, Region: "North", Amount: 40},
		{ID: 5, Region: "West", Amount: 50},
	}
	saveSales(t, db, st, sales)

	b := New(db, st, "sale_by_region", Config{BatchSize: 2})
	if err := b.BuildIndex(ctx); err != nil {
		t.Fatal(err)
	}

	db.Transact(ctx, func(tx kv.Transaction) error {
		state, err := st.IndexManager().State.Get(ctx, tx, "sale_by_region")
		if err != nil {
			return err
		}
		if state != index.StateReadable {
			t.Errorf("state after build = %v, want readable", state)
		}

		sub := st.IndexSubspace("sale_by_region")
		begin, end := sub.Range()
		var count int
		for kvPair, err := range tx.GetRange(ctx, begin, end, kv.RangeOptions{}) {
			if err != nil {
				return err
			}
			_ = kvPair
			count++
		}
		if count != len(sales) {
			t.Errorf("got %d index entries, want %d", count, len(sales))
		}
		return nil
	})

	// Calling BuildIndex again is a safe no-op once readable.
	if err := b.BuildIndex(ctx); err != nil {
		t.Errorf("second BuildIndex call on an already-readable index returned %v, want nil", err)
	}
}

// TestBuildIndexResumesAfterPartialProgress drives prepare/runBatch
// directly for a couple of batches, then lets BuildIndex finish the
// rest from the persisted RangeSet checkpoint (spec S5's "resumable
// after partial progress" requirement).
func TestBuildIndexResumesAfterPartialProgress(t *testing.T) {
	ctx := context.Background()
	db := kv.NewMemoryStore()
	s := newSaleSchema()
	root := subspace.FromBytes([]byte("build2"))
	st, err := store.Open(root, s, map[string]recordaccess.Access{"Sale": saleAccess()})
	if err != nil {
		t.Fatal(err)
	}

	var sales []*sale
	for i := int64(0); i < 6; i++ {
		sales = append(sales, &sale{ID: i, Region: "East", Amount: i * 10})
	}
	saveSales(t, db, st, sales)

	b := New(db, st, "sale_by_region", Config{BatchSize: 1})

	indexName, recordType, err := b.prepare(ctx)
	if err != nil {
		t.Fatal(err)
	}

	// Run exactly two batches by hand, simulating a crash after partial
	// progress: only 2 of 6 records get their index entry before the
	// worker restarts.
	for i := 0; i < 2; i++ {
		err := db.Transact(ctx, func(tx kv.Transaction) error {
			_, err := b.runBatch(ctx, tx, indexName, recordType)
			return err
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	var partial int
	db.Transact(ctx, func(tx kv.Transaction) error {
		sub := st.IndexSubspace("sale_by_region")
		begin, end := sub.Range()
		for kvPair, err := range tx.GetRange(ctx, begin, end, kv.RangeOptions{}) {
			if err != nil {
				return err
			}
			_ = kvPair
			partial++
		}
		return nil
	})
	if partial != 2 {
		t.Fatalf("got %d index entries after 2 manual batches, want 2", partial)
	}

	// BuildIndex resumes from the same RangeSet checkpoint and finishes.
	if err := b.BuildIndex(ctx); err != nil {
		t.Fatal(err)
	}

	db.Transact(ctx, func(tx kv.Transaction) error {
		state, err := st.IndexManager().State.Get(ctx, tx, "sale_by_region")
		if err != nil {
			return err
		}
		if state != index.StateReadable {
			t.Errorf("state after resume = %v, want readable", state)
		}
		sub := st.IndexSubspace("sale_by_region")
		begin, end := sub.Range()
		var count int
		for kvPair, err := range tx.GetRange(ctx, begin, end, kv.RangeOptions{}) {
			if err != nil {
				return err
			}
			_ = kvPair
			count++
		}
		if count != len(sales) {
			t.Errorf("got %d index entries after resume, want %d", count, len(sales))
		}
		return nil
	})
}

type doc struct {
	ID     int64
	Vector int64
}

func docAccess() recordaccess.Access {
	return &recordaccess.BasicAccess{
		Name: "Doc",
		SerializeFn: func(value any) ([]byte, error) {
			v := value.(*doc)
			return tuple.Pack(tuple.Tuple{v.ID, v.Vector}), nil
		},
		DeserializeFn: func(body []byte) (any, error) {
			t, err := tuple.Unpack(body)
			if err != nil {
				return nil, err
			}
			return &doc{ID: t[0].(int64), Vector: t[1].(int64)}, nil
		},
		ExtractFn: func(value any, field string) ([]tuple.Element, error) {
			v := value.(*doc)
			switch field {
			case "id":
				return []tuple.Element{v.ID}, nil
			case "vector":
				return []tuple.Element{v.Vector}, nil
			}
			return nil, nil
		},
	}
}

// TestVectorIndexBuildLifecycle mirrors spec.md scenario S5: create a
// vector index disabled, build it with clearFirst, expect a readable
// state and a callable, no-op second build.
func TestVectorIndexBuildLifecycle(t *testing.T) {
	ctx := context.Background()
	db := kv.NewMemoryStore()
	s := schema.New()
	s.AddRecordType(schema.RecordType{Name: "Doc", PrimaryKey: keyexpr.Field{Name: "id"}})
	s.AddIndex(schema.Index{
		Name: "doc_by_vector", Kind: schema.KindVector, RecordType: "Doc",
		Root:    keyexpr.Field{Name: "vector"},
		Options: schema.IndexOptions{VectorDimensions: 128},
	})
	root := subspace.FromBytes([]byte("build3"))
	st, err := store.Open(root, s, map[string]recordaccess.Access{"Doc": docAccess()})
	if err != nil {
		t.Fatal(err)
	}

	saveSales2 := func(docs []*doc) {
		err := db.Transact(ctx, func(tx kv.Transaction) error {
			for _, d := range docs {
				if err := st.Save(ctx, tx, "Doc", d); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			t.Fatal(err)
		}
	}
	saveSales2([]*doc{{ID: 1, Vector: 11}, {ID: 2, Vector: 22}, {ID: 3, Vector: 33}})

	b := New(db, st, "doc_by_vector", Config{BatchSize: 2, ClearFirst: true})
	if err := b.BuildIndex(ctx); err != nil {
		t.Fatal(err)
	}

	db.Transact(ctx, func(tx kv.Transaction) error {
		state, err := st.IndexManager().State.Get(ctx, tx, "doc_by_vector")
		if err != nil {
			return err
		}
		if state != index.StateReadable {
			t.Errorf("state = %v, want readable", state)
		}
		return nil
	})

	if err := b.BuildIndex(ctx); err != nil {
		t.Errorf("second BuildIndex call returned %v, want nil (already readable)", err)
	}
}
