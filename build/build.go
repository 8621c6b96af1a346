// Package build implements the Online Index Builder (spec §4.12):
// materializing a new index's entries for every record already in the
// store, batch by batch, without blocking concurrent writers (who keep
// the index current via the ordinary write-only maintenance path while
// the build runs).
package build

import (
	"context"
	"time"

	"github.com/jpl-au/recordlayer/index"
	"github.com/jpl-au/recordlayer/kv"
	"github.com/jpl-au/recordlayer/rangeset"
	"github.com/jpl-au/recordlayer/store"
)

// Config controls one builder run.
type Config struct {
	// BatchSize bounds how many records one transaction scans and
	// maintains before committing and claiming the next gap.
	BatchSize int
	// ThrottleDelay pauses between batches, easing load on a live store.
	ThrottleDelay time.Duration
	// ClearFirst wipes the index's existing entries and RangeSet before
	// building, for a from-scratch rebuild.
	ClearFirst bool
}

// Builder drives one index's build-from-scratch materialization.
type Builder struct {
	db        kv.Database
	st        *store.Store
	indexName string
	cfg       Config
}

// New builds a Builder for indexName against st, using db for every
// transaction the build issues.
func New(db kv.Database, st *store.Store, indexName string, cfg Config) *Builder {
	return &Builder{db: db, st: st, indexName: indexName, cfg: cfg}
}

func (b *Builder) rangeSetKey() []byte {
	return b.st.StatsSubspace().Sub("build").Sub(b.indexName).Bytes()
}

// BuildIndex runs the full build protocol (spec §4.12 steps 1-5): it
// is safe to call again after a prior run completed (a no-op, since the
// index is already readable) or after a crash left the RangeSet
// partially complete (resumes from the same gap).
func (b *Builder) BuildIndex(ctx context.Context) error {
	var readable bool
	if err := b.db.Transact(ctx, func(tx kv.Transaction) error {
		state, err := b.st.IndexManager().State.Get(ctx, tx, b.indexName)
		readable = state == index.StateReadable
		return err
	}); err != nil {
		return err
	}
	if readable {
		return nil
	}

	indexName, recordType, err := b.prepare(ctx)
	if err != nil {
		return err
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		var done bool
		err := b.db.Transact(ctx, func(tx kv.Transaction) error {
			var txErr error
			done, txErr = b.runBatch(ctx, tx, indexName, recordType)
			return txErr
		})
		if err != nil {
			return err
		}
		if done {
			break
		}
		if b.cfg.ThrottleDelay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(b.cfg.ThrottleDelay):
			}
		}
	}

	return b.db.Transact(ctx, func(tx kv.Transaction) error {
		return b.st.IndexManager().State.Set(ctx, tx, b.indexName, index.StateReadable)
	})
}

// prepare validates the index state and transitions disabled ->
// write-only (spec §4.12 steps 1 and 3), clearing existing state first
// if configured (step 2). It returns the index definition and its
// record type for the batch loop.
func (b *Builder) prepare(ctx context.Context) (indexName, recordType string, err error) {
	var idx struct{ RecordType string }
	err = b.db.Transact(ctx, func(tx kv.Transaction) error {
		state, err := b.st.IndexManager().State.Get(ctx, tx, b.indexName)
		if err != nil {
			return err
		}
		if state == index.StateReadable {
			return &index.InvalidArgumentError{Message: "build: index " + b.indexName + " is already readable"}
		}

		if b.cfg.ClearFirst {
			sub := b.st.IndexSubspace(b.indexName)
			begin, end := sub.Range()
			tx.ClearRange(begin, end)
			rangeset.New(b.rangeSetKey()).Clear(tx)
		}

		if state == index.StateDisabled {
			if err := b.st.IndexManager().State.Set(ctx, tx, b.indexName, index.StateWriteOnly); err != nil {
				return err
			}
		}

		schemaIdx, ok := b.st.Schema().Index(b.indexName)
		if !ok {
			return &index.IndexNotFoundError{Name: b.indexName}
		}
		idx.RecordType = schemaIdx.RecordType

		begin, end := b.st.RecordSubspace(idx.RecordType).Range()
		_, err = rangeset.Init(ctx, tx, b.rangeSetKey(), begin, end)
		return err
	})
	if err != nil {
		return "", "", err
	}
	return b.indexName, idx.RecordType, nil
}

// runBatch claims the next gap, scans up to BatchSize records from its
// start, invokes the target index's maintainer on each, and marks the
// consumed prefix done (spec §4.12 step 4). done reports whether the
// RangeSet has no remaining gap after this batch.
func (b *Builder) runBatch(ctx context.Context, tx kv.Transaction, indexName, recordType string) (bool, error) {
	rs := rangeset.New(b.rangeSetKey())
	gap, ok, err := rs.ClaimNextGap(ctx, tx)
	if err != nil {
		return false, err
	}
	if !ok {
		return true, nil
	}

	maintainer, ok := b.st.IndexManager().Maintainers[indexName]
	if !ok {
		return false, &index.IndexNotFoundError{Name: indexName}
	}
	access := b.st.Access(recordType)
	sub := b.st.RecordSubspace(recordType)

	batchSize := b.cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 1000
	}

	lastKey := gap.Begin
	scanned := 0
	for kvPair, err := range tx.GetRange(ctx, gap.Begin, gap.End, kv.RangeOptions{Limit: batchSize}) {
		if err != nil {
			return false, err
		}
		record, err := access.Deserialize(kvPair.Value)
		if err != nil {
			return false, err
		}
		pk, err := sub.Unpack(kvPair.Key)
		if err != nil {
			return false, err
		}
		diff := index.RecordDiff{Access: access, New: record, NewPK: pk}
		if err := maintainer.Update(ctx, tx, diff); err != nil {
			return false, err
		}
		lastKey = append(append([]byte{}, kvPair.Key...), 0x00)
		scanned++
	}

	consumedEnd := gap.End
	if scanned == batchSize {
		consumedEnd = lastKey
	}
	if err := rs.MarkDone(ctx, tx, rangeset.Range{Begin: gap.Begin, End: consumedEnd}); err != nil {
		return false, err
	}

	return rs.IsComplete(ctx, tx)
}
