package scrub

import (
	"context"
	"fmt"

	"github.com/jpl-au/recordlayer/index"
	"github.com/jpl-au/recordlayer/kv"
	"github.com/jpl-au/recordlayer/rangeset"
	"github.com/jpl-au/recordlayer/schema"
	"github.com/jpl-au/recordlayer/store"
	"github.com/jpl-au/recordlayer/tuple"
)

// Report summarizes one Run: every entry and record examined, and how
// many dangling or missing entries were found and, if Config.AllowRepair
// was set, repaired.
type Report struct {
	EntriesScanned   int
	RecordsScanned   int
	DanglingDetected int
	DanglingRepaired int
	MissingDetected  int
	MissingRepaired  int
	Warnings         []string
}

func (r *Report) warn(msg string, limit int) {
	if len(r.Warnings) < limit {
		r.Warnings = append(r.Warnings, msg)
	}
}

// Scrubber drives Phase 1 (index -> record) and Phase 2 (record ->
// index) consistency sweeps for one readable index.
type Scrubber struct {
	db  kv.Database
	st  *store.Store
	idx schema.Index
	cfg Config
}

// New validates indexName is one of cfg.SupportedTypes and currently
// readable, then returns a Scrubber ready to Run (spec §4.13 step 1).
func New(ctx context.Context, db kv.Database, st *store.Store, indexName string, cfg Config) (*Scrubber, error) {
	idx, ok := st.Schema().Index(indexName)
	if !ok {
		return nil, &index.IndexNotFoundError{Name: indexName}
	}
	if !cfg.supports(idx.Kind) {
		return nil, &index.InvalidArgumentError{Message: fmt.Sprintf("scrub: index %q is kind %q, not in the scrubber's supported types", indexName, idx.Kind)}
	}

	var verifyErr error
	err := db.Transact(ctx, func(tx kv.Transaction) error {
		_, verifyErr = st.IndexManager().RequireReadable(ctx, tx, indexName)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if verifyErr != nil {
		return nil, verifyErr
	}

	return &Scrubber{db: db, st: st, idx: idx, cfg: cfg}, nil
}

func (s *Scrubber) phase1Key() []byte {
	return s.st.StatsSubspace().Sub("scrub").Sub(s.idx.Name).Sub("phase1").Bytes()
}

func (s *Scrubber) phase2Key() []byte {
	return s.st.StatsSubspace().Sub("scrub").Sub(s.idx.Name).Sub("phase2").Bytes()
}

func (s *Scrubber) reportKey() []byte {
	return s.st.StatsSubspace().Sub("scrub").Sub(s.idx.Name).Sub("report").Bytes()
}

// LastReport reads back the most recently persisted Report for
// indexName, or (nil, nil) if no Run has completed yet.
func LastReport(ctx context.Context, r kv.Reader, st *store.Store, indexName string) (*Report, error) {
	key := st.StatsSubspace().Sub("scrub").Sub(indexName).Sub("report").Bytes()
	blob, err := r.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	return decodeReport(blob)
}

// Run executes Phase 1 to completion, then Phase 2 to completion,
// returning the accumulated Report. Both phases resume from their own
// RangeSet checkpoint if a prior Run was interrupted.
func (s *Scrubber) Run(ctx context.Context) (*Report, error) {
	report := &Report{}

	indexSub := s.st.IndexSubspace(s.idx.Name)
	ibegin, iend := indexSub.Range()
	err := s.db.Transact(ctx, func(tx kv.Transaction) error {
		_, err := rangeset.Init(ctx, tx, s.phase1Key(), ibegin, iend)
		return err
	})
	if err != nil {
		return nil, err
	}
	for {
		var done bool
		err := s.db.Transact(ctx, func(tx kv.Transaction) error {
			var txErr error
			done, txErr = s.runPhase1Batch(ctx, tx, report)
			return txErr
		})
		if err != nil {
			return nil, err
		}
		if done {
			break
		}
	}

	recordSub := s.st.RecordSubspace(s.idx.RecordType)
	rbegin, rend := recordSub.Range()
	err = s.db.Transact(ctx, func(tx kv.Transaction) error {
		_, err := rangeset.Init(ctx, tx, s.phase2Key(), rbegin, rend)
		return err
	})
	if err != nil {
		return nil, err
	}
	for {
		var done bool
		err := s.db.Transact(ctx, func(tx kv.Transaction) error {
			var txErr error
			done, txErr = s.runPhase2Batch(ctx, tx, report)
			return txErr
		})
		if err != nil {
			return nil, err
		}
		if done {
			break
		}
	}

	if err := s.db.Transact(ctx, func(tx kv.Transaction) error {
		tx.Set(s.reportKey(), encodeReport(report))
		return nil
	}); err != nil {
		return nil, err
	}

	return report, nil
}

// runPhase1Batch scans up to cfg.EntriesScanLimit index entries from
// the next unclaimed gap, probing each entry's primary key against the
// record subspace (via a bloom filter deduplicating repeat probes
// against the same live pk within the batch) and clearing it if
// AllowRepair and the record is gone (spec §4.13 Phase 1).
func (s *Scrubber) runPhase1Batch(ctx context.Context, tx kv.Transaction, report *Report) (bool, error) {
	rs := rangeset.New(s.phase1Key())
	gap, ok, err := rs.ClaimNextGap(ctx, tx)
	if err != nil {
		return false, err
	}
	if !ok {
		return true, nil
	}

	indexSub := s.st.IndexSubspace(s.idx.Name)
	recordSub := s.st.RecordSubspace(s.idx.RecordType)
	indexedColumns := s.idx.Root.ColumnCount()

	limit := s.cfg.entriesLimit()
	live := index.NewDanglingProbeFilter(limit)

	var lastKey []byte
	scanned := 0
	for kvPair, err := range tx.GetRange(ctx, gap.Begin, gap.End, kv.RangeOptions{Limit: limit}) {
		if err != nil {
			return false, err
		}
		full, err := indexSub.Unpack(kvPair.Key)
		if err != nil {
			return false, err
		}
		if len(full) < indexedColumns {
			return false, &index.InvalidArgumentError{Message: "scrub: index entry key shorter than its indexed column count"}
		}
		pk := full[indexedColumns:]
		pkKey := recordSub.Pack(pk)

		report.EntriesScanned++
		if !live.MaybeLive(pkKey) {
			body, err := tx.Get(ctx, pkKey)
			if err != nil {
				return false, err
			}
			if len(body) == 0 {
				report.DanglingDetected++
				if s.cfg.AllowRepair {
					tx.Clear(kvPair.Key)
					report.DanglingRepaired++
				} else {
					report.warn(fmt.Sprintf("scrub: dangling entry for pk %v", []tuple.Element(pk)), s.cfg.LogWarningsLimit)
				}
			} else {
				live.Add(pkKey)
			}
		}

		lastKey = append(append([]byte{}, kvPair.Key...), 0x00)
		scanned++
	}

	consumedEnd := gap.End
	if scanned == limit {
		consumedEnd = lastKey
	}
	if err := rs.MarkDone(ctx, tx, rangeset.Range{Begin: gap.Begin, End: consumedEnd}); err != nil {
		return false, err
	}
	return rs.IsComplete(ctx, tx)
}

// runPhase2Batch scans up to cfg.RecordsScanLimit records from the next
// unclaimed gap, re-evaluates each record's expected index entries, and
// writes any missing entry directly if AllowRepair (spec §4.13 Phase 2).
// A record whose root expression is multi-valued (e.g. a repeated tags
// field) is checked entry by entry — every tuple the expression
// produces gets its own probe, so a partially-indexed record is fully
// repaired rather than skipped once any one entry is found.
func (s *Scrubber) runPhase2Batch(ctx context.Context, tx kv.Transaction, report *Report) (bool, error) {
	rs := rangeset.New(s.phase2Key())
	gap, ok, err := rs.ClaimNextGap(ctx, tx)
	if err != nil {
		return false, err
	}
	if !ok {
		return true, nil
	}

	recordSub := s.st.RecordSubspace(s.idx.RecordType)
	indexSub := s.st.IndexSubspace(s.idx.Name)
	access := s.st.Access(s.idx.RecordType)

	limit := s.cfg.recordsLimit()

	var lastKey []byte
	scanned := 0
	for kvPair, err := range tx.GetRange(ctx, gap.Begin, gap.End, kv.RangeOptions{Limit: limit}) {
		if err != nil {
			return false, err
		}
		record, err := access.Deserialize(kvPair.Value)
		if err != nil {
			return false, err
		}
		pk, err := recordSub.Unpack(kvPair.Key)
		if err != nil {
			return false, err
		}

		expected, err := s.idx.Root.Evaluate(func(field string) ([]tuple.Element, error) {
			return access.ExtractField(record, field)
		})
		if err != nil {
			return false, err
		}

		report.RecordsScanned++
		for _, indexed := range expected {
			entry := append(append(tuple.Tuple{}, indexed...), pk...)
			entryKey := indexSub.Pack(entry)
			body, err := tx.Get(ctx, entryKey)
			if err != nil {
				return false, err
			}
			if len(body) == 0 {
				report.MissingDetected++
				if s.cfg.AllowRepair {
					tx.Set(entryKey, []byte{})
					report.MissingRepaired++
				} else {
					report.warn(fmt.Sprintf("scrub: missing entry for pk %v", []tuple.Element(pk)), s.cfg.LogWarningsLimit)
				}
			}
		}

		lastKey = append(append([]byte{}, kvPair.Key...), 0x00)
		scanned++
	}

	consumedEnd := gap.End
	if scanned == limit {
		consumedEnd = lastKey
	}
	if err := rs.MarkDone(ctx, tx, rangeset.Range{Begin: gap.Begin, End: consumedEnd}); err != nil {
		return false, err
	}
	return rs.IsComplete(ctx, tx)
}
