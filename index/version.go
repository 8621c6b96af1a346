package index

import (
	"context"
	"encoding/binary"
	"time"

	"github.com/jpl-au/recordlayer/keyexpr"
	"github.com/jpl-au/recordlayer/kv"
	"github.com/jpl-au/recordlayer/schema"
	"github.com/jpl-au/recordlayer/subspace"
	"github.com/jpl-au/recordlayer/tuple"
)

// versionMaintainer implements the Version index (spec §4.7): an
// append-only history log, one entry per write, keyed by the store's
// monotonic versionstamp so entries naturally sort in write order
// (`<idx>/V/<versionstamp>/<pk…> → 8-byte big-endian write time in Unix
// nanoseconds`).
//
// Unlike Value/Count/Sum/Min/Max, a version index is a log rather than
// a mirror of current state: deleting the record it was built from does
// not erase its history (spec §4.7 describes retention as "trimming
// older versions at each write", which presupposes history survives the
// record that produced it). There is deliberately no secondary
// pk→versionstamp index: retention and history lookups filter the
// per-group log directly, trading an O(log size) lookup for simplicity
// in this reference maintainer (logs are expected to be short-lived
// relative to a whole store's record count).
type versionMaintainer struct {
	name      string
	sub       subspace.Subspace
	root      keyexpr.Expression
	retention schema.RetentionPolicy
}

func newVersionMaintainer(name string, sub subspace.Subspace, root keyexpr.Expression, retention schema.RetentionPolicy) *versionMaintainer {
	return &versionMaintainer{name: name, sub: sub, root: root, retention: retention}
}

func (m *versionMaintainer) ColumnCountExpected() int { return m.root.ColumnCount() }

func (m *versionMaintainer) logSub() subspace.Subspace { return m.sub.Sub("V") }

// archiveSub holds a compressed, append-only archive of entries this
// index's retention policy has evicted from the live log, keyed by the
// primary key they belong to.
func (m *versionMaintainer) archiveSub() subspace.Subspace { return m.sub.Sub("A") }

func (m *versionMaintainer) Update(ctx context.Context, tx kv.Transaction, diff RecordDiff) error {
	if diff.New == nil {
		return nil
	}

	placeholder := tuple.Tuple{tuple.IncompleteVersionstamp}
	entrySuffix := make(tuple.Tuple, 0, 1+len(diff.NewPK))
	entrySuffix = append(entrySuffix, placeholder...)
	entrySuffix = append(entrySuffix, diff.NewPK...)
	tx.SetVersionstampedKey(m.logSub().Pack(entrySuffix), encodeTimestamp(time.Now()))

	return m.enforceRetention(ctx, tx, diff.NewPK)
}

func encodeTimestamp(t time.Time) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(t.UnixNano()))
	return b
}

func decodeTimestamp(v []byte) int64 {
	if len(v) < 8 {
		return 0
	}
	return int64(binary.BigEndian.Uint64(v))
}

// logEntriesForPK scans the full history log and returns the entries
// belonging to pk, newest (highest versionstamp) first.
func (m *versionMaintainer) logEntriesForPK(ctx context.Context, r kv.Reader, pk tuple.Tuple) ([]kv.KeyValue, error) {
	logSub := m.logSub()
	begin, end := logSub.Range()
	var out []kv.KeyValue
	for kvPair, err := range r.GetRange(ctx, begin, end, kv.RangeOptions{Reverse: true}) {
		if err != nil {
			return nil, err
		}
		rest, err := logSub.Unpack(kvPair.Key)
		if err != nil {
			return nil, err
		}
		if len(rest) < 1+len(pk) {
			continue
		}
		suffix := rest[len(rest)-len(pk):]
		if tuple.Compare(suffix, pk) == 0 {
			out = append(out, kvPair)
		}
	}
	return out, nil
}

// enforceRetention trims pk's older history entries beyond the
// configured policy, keeping whichever bound (KeepLast, KeepForDuration)
// is the stricter of the two when both are set. Trimmed entries are not
// destroyed: they are appended to a compressed per-pk archive blob
// (archiveSub) before being cleared from the live log, so History stays
// reconstructible from cold storage even after the live log has moved on.
func (m *versionMaintainer) enforceRetention(ctx context.Context, tx kv.Transaction, pk tuple.Tuple) error {
	if m.retention.KeepAll {
		return nil
	}
	if m.retention.KeepLast <= 0 && m.retention.KeepForDuration <= 0 {
		return nil
	}
	entries, err := m.logEntriesForPK(ctx, tx, pk)
	if err != nil {
		return err
	}

	// The entry just written by SetVersionstampedKey is not visible until
	// commit, so it takes one of KeepLast's slots here.
	trimIdx := len(entries)
	if keep := m.retention.KeepLast - 1; m.retention.KeepLast > 0 && keep < trimIdx {
		trimIdx = keep
	}
	if m.retention.KeepForDuration > 0 && len(entries) > 0 {
		cutoff := decodeTimestamp(entries[0].Value) - m.retention.KeepForDuration
		for i, e := range entries {
			if decodeTimestamp(e.Value) < cutoff {
				if i < trimIdx {
					trimIdx = i
				}
				break
			}
		}
	}

	trimmed := entries[trimIdx:]
	if len(trimmed) == 0 {
		return nil
	}
	return m.archiveAndClear(ctx, tx, pk, trimmed)
}

// archiveAndClear appends trimmed's versionstamps (and their original
// write timestamps) to pk's archive blob, then removes them from the
// live log in the same transaction.
func (m *versionMaintainer) archiveAndClear(ctx context.Context, tx kv.Transaction, pk tuple.Tuple, trimmed []kv.KeyValue) error {
	key := m.archiveSub().Pack(pk)
	existingBlob, err := tx.Get(ctx, key)
	if err != nil {
		return err
	}
	archived, err := decodeArchive(existingBlob)
	if err != nil {
		return err
	}

	logSub := m.logSub()
	// trimmed is newest first; append oldest first.
	for i := len(trimmed) - 1; i >= 0; i-- {
		e := trimmed[i]
		rest, err := logSub.Unpack(e.Key)
		if err != nil {
			return err
		}
		stamp, ok := rest[0].(tuple.Versionstamp)
		if !ok {
			continue
		}
		archived = append(archived, archivedEntry{
			Versionstamp: append([]byte{}, stamp.Bytes()...),
			Timestamp:    decodeTimestamp(e.Value),
		})
		tx.Clear(e.Key)
	}

	blob, err := encodeArchive(archived)
	if err != nil {
		return err
	}
	tx.Set(key, blob)
	return nil
}

// Archived returns pk's evicted history entries, oldest first, as
// recorded at the time each was trimmed from the live log.
func (m *versionMaintainer) Archived(ctx context.Context, r kv.Reader, pk tuple.Tuple) ([]tuple.Versionstamp, error) {
	raw, err := r.Get(ctx, m.archiveSub().Pack(pk))
	if err != nil {
		return nil, err
	}
	entries, err := decodeArchive(raw)
	if err != nil {
		return nil, err
	}
	out := make([]tuple.Versionstamp, 0, len(entries))
	for _, e := range entries {
		var stamp tuple.Versionstamp
		copy(stamp[:], e.Versionstamp)
		out = append(out, stamp)
	}
	return out, nil
}

// History returns every live history versionstamp for pk, newest first.
func (m *versionMaintainer) History(ctx context.Context, r kv.Reader, pk tuple.Tuple) ([]tuple.Versionstamp, error) {
	entries, err := m.logEntriesForPK(ctx, r, pk)
	if err != nil {
		return nil, err
	}
	logSub := m.logSub()
	out := make([]tuple.Versionstamp, 0, len(entries))
	for _, e := range entries {
		rest, err := logSub.Unpack(e.Key)
		if err != nil {
			return nil, err
		}
		stamp, ok := rest[0].(tuple.Versionstamp)
		if !ok {
			continue
		}
		out = append(out, stamp)
	}
	return out, nil
}
