// In-memory reference Database implementation.
//
// memkv is the store the entire test suite runs against. It is a real,
// fully transactional implementation of the contract in kv.go — not a
// mock — exercising a real (if ephemeral) backing store rather than
// stubbing the interface. Ordering is maintained as a sorted slice of
// keys searched with `sort.SearchStrings` and compared with
// `bytes.Compare`, rather than reaching for a third-party ordered-map or
// B-tree package.
//
// Concurrency is simplified relative to a real distributed store: there
// is no optimistic conflict detection between overlapping transactions.
// A single RWMutex serialises commits (held only for the duration of
// applying one transaction's buffered writes), which is sufficient for
// the "single-threaded cooperative per operation" model spec Β§5
// describes and for every testable property in spec Β§8 β€” the store
// engine itself is an explicit external collaborator (spec Β§1), so this
// package provides only as much of it as the record layer needs to be
// exercised correctly.
package kv

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"iter"
	"sort"
	"sync"
	"sync/atomic"
)

// MemoryStore is an in-memory Database.
type MemoryStore struct {
	mu      sync.RWMutex
	keys    []string // sorted
	values  map[string][]byte
	version uint64 // monotonic db-version counter for versionstamps
}

// NewMemoryStore returns an empty, ready-to-use in-memory Database.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string][]byte)}
}

// Transact runs fn against a fresh transaction and commits its buffered
// writes atomically. memkv never aborts a commit for conflict reasons
// (see package doc), so fn's own returned error is the only source of
// rollback; Transact does not need an internal retry loop, but keeps the
// same signature as a real client so call sites are portable to one.
func (s *MemoryStore) Transact(ctx context.Context, fn func(tx Transaction) error) error {
	tx := &memTx{store: s, overlay: make(map[string]*overlayEntry)}
	if err := fn(tx); err != nil {
		return err
	}
	return tx.commit()
}

// overlayEntry records a pending mutation for read-your-writes.
type overlayEntry struct {
	cleared bool
	value   []byte
}

// opKind tags a buffered mutation replayed onto the live store at commit.
type opKind int

const (
	opSet opKind = iota
	opClear
	opClearRange
	opAtomicAdd
	opAtomicMin
	opAtomicMax
	opVersionstamped
)

type op struct {
	kind  opKind
	key   []byte
	end   []byte // opClearRange only
	value []byte
	delta int64 // opAtomicAdd/Min/Max
}

type memTx struct {
	store   *MemoryStore
	mu      sync.Mutex
	overlay map[string]*overlayEntry
	ops     []op
}

func (tx *memTx) Get(ctx context.Context, key []byte) ([]byte, error) {
	tx.mu.Lock()
	if e, ok := tx.overlay[string(key)]; ok {
		tx.mu.Unlock()
		if e.cleared {
			return nil, nil
		}
		return cloneBytes(e.value), nil
	}
	tx.mu.Unlock()
	return tx.store.rawGet(key), nil
}

func (tx *memTx) GetRange(ctx context.Context, begin, end []byte, opts RangeOptions) iter.Seq2[KeyValue, error] {
	return func(yield func(KeyValue, error) bool) {
		merged := tx.mergedRange(begin, end)
		if opts.Reverse {
			for i := len(merged) - 1; i >= 0; i-- {
				if opts.Limit > 0 && (len(merged)-1-i) >= opts.Limit {
					return
				}
				if !yield(merged[i], nil) {
					return
				}
			}
			return
		}
		for i, kv := range merged {
			if opts.Limit > 0 && i >= opts.Limit {
				return
			}
			if !yield(kv, nil) {
				return
			}
		}
	}
}

// mergedRange computes the [begin,end) view combining the live store
// with this transaction's pending overlay, giving read-your-writes.
func (tx *memTx) mergedRange(begin, end []byte) []KeyValue {
	base := tx.store.rawRange(begin, end)
	tx.mu.Lock()
	defer tx.mu.Unlock()

	byKey := make(map[string][]byte, len(base))
	order := make([]string, 0, len(base))
	for _, kv := range base {
		byKey[string(kv.Key)] = kv.Value
		order = append(order, string(kv.Key))
	}
	for k, e := range tx.overlay {
		if bytes.Compare([]byte(k), begin) < 0 || bytes.Compare([]byte(k), end) >= 0 {
			continue
		}
		if _, existed := byKey[k]; !existed && !e.cleared {
			order = append(order, k)
		}
		if e.cleared {
			delete(byKey, k)
		} else {
			byKey[k] = e.value
		}
	}
	sort.Strings(order)
	out := make([]KeyValue, 0, len(order))
	seen := make(map[string]bool, len(order))
	for _, k := range order {
		if seen[k] {
			continue
		}
		seen[k] = true
		v, ok := byKey[k]
		if !ok {
			continue
		}
		out = append(out, KeyValue{Key: []byte(k), Value: v})
	}
	return out
}

func (tx *memTx) Snapshot() Reader {
	return snapshotReader{store: tx.store}
}

func (tx *memTx) Set(key, value []byte) {
	tx.mu.Lock()
	tx.overlay[string(key)] = &overlayEntry{value: cloneBytes(value)}
	tx.mu.Unlock()
	tx.ops = append(tx.ops, op{kind: opSet, key: cloneBytes(key), value: cloneBytes(value)})
}

func (tx *memTx) Clear(key []byte) {
	tx.mu.Lock()
	tx.overlay[string(key)] = &overlayEntry{cleared: true}
	tx.mu.Unlock()
	tx.ops = append(tx.ops, op{kind: opClear, key: cloneBytes(key)})
}

func (tx *memTx) ClearRange(begin, end []byte) {
	affected := tx.mergedRange(begin, end)
	tx.mu.Lock()
	for _, kv := range affected {
		tx.overlay[string(kv.Key)] = &overlayEntry{cleared: true}
	}
	tx.mu.Unlock()
	tx.ops = append(tx.ops, op{kind: opClearRange, key: cloneBytes(begin), end: cloneBytes(end)})
}

func (tx *memTx) AtomicAdd(key []byte, delta int64) {
	tx.mu.Lock()
	cur := tx.currentIntLocked(key)
	tx.overlay[string(key)] = &overlayEntry{value: encodeInt64(cur + delta)}
	tx.mu.Unlock()
	tx.ops = append(tx.ops, op{kind: opAtomicAdd, key: cloneBytes(key), delta: delta})
}

func (tx *memTx) AtomicMin(key []byte, v int64) {
	tx.mu.Lock()
	cur := tx.currentIntLocked(key)
	next := v
	if cur < v {
		next = cur
	}
	tx.overlay[string(key)] = &overlayEntry{value: encodeInt64(next)}
	tx.mu.Unlock()
	tx.ops = append(tx.ops, op{kind: opAtomicMin, key: cloneBytes(key), delta: v})
}

func (tx *memTx) AtomicMax(key []byte, v int64) {
	tx.mu.Lock()
	cur := tx.currentIntLocked(key)
	next := v
	if cur > v {
		next = cur
	}
	tx.overlay[string(key)] = &overlayEntry{value: encodeInt64(next)}
	tx.mu.Unlock()
	tx.ops = append(tx.ops, op{kind: opAtomicMax, key: cloneBytes(key), delta: v})
}

// currentIntLocked resolves a key's current int64 value from the
// overlay if present, else the live store. Caller must hold tx.mu.
func (tx *memTx) currentIntLocked(key []byte) int64 {
	if e, ok := tx.overlay[string(key)]; ok {
		if e.cleared {
			return 0
		}
		return decodeInt64(e.value)
	}
	return decodeInt64(tx.store.rawGet(key))
}

func (tx *memTx) SetVersionstampedKey(keyWithPlaceholder, value []byte) {
	tx.ops = append(tx.ops, op{kind: opVersionstamped, key: cloneBytes(keyWithPlaceholder), value: cloneBytes(value)})
}

// commit replays the buffered ops onto the live store under the store's
// write lock, substituting any versionstamp placeholders with this
// commit's monotonically increasing stamp.
func (tx *memTx) commit() error {
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()

	dbVersion := atomic.AddUint64(&tx.store.version, 1)
	batchOrder := uint16(0)

	for _, o := range tx.ops {
		switch o.kind {
		case opSet:
			tx.store.rawSetLocked(o.key, o.value)
		case opClear:
			tx.store.rawClearLocked(o.key)
		case opClearRange:
			tx.store.rawClearRangeLocked(o.key, o.end)
		case opAtomicAdd:
			cur := decodeInt64(tx.store.values[string(o.key)])
			tx.store.rawSetLocked(o.key, encodeInt64(cur+o.delta))
		case opAtomicMin:
			cur := decodeInt64(tx.store.values[string(o.key)])
			next := o.delta
			if cur < o.delta {
				next = cur
			}
			tx.store.rawSetLocked(o.key, encodeInt64(next))
		case opAtomicMax:
			cur := decodeInt64(tx.store.values[string(o.key)])
			next := o.delta
			if cur > o.delta {
				next = cur
			}
			tx.store.rawSetLocked(o.key, encodeInt64(next))
		case opVersionstamped:
			stamp := makeVersionstamp(dbVersion, batchOrder)
			batchOrder++
			key := fillPlaceholder(o.key, stamp)
			tx.store.rawSetLocked(key, o.value)
		default:
			return fmt.Errorf("kv: unknown op kind %d", o.kind)
		}
	}
	return nil
}

// snapshotReader is a Reader over the live store with no transaction
// overlay and no conflict tracking (spec Β§6.1 "snapshot reads").
type snapshotReader struct {
	store *MemoryStore
}

func (r snapshotReader) Get(ctx context.Context, key []byte) ([]byte, error) {
	return r.store.rawGet(key), nil
}

func (r snapshotReader) GetRange(ctx context.Context, begin, end []byte, opts RangeOptions) iter.Seq2[KeyValue, error] {
	return func(yield func(KeyValue, error) bool) {
		entries := r.store.rawRange(begin, end)
		if opts.Reverse {
			for i := len(entries) - 1; i >= 0; i-- {
				if opts.Limit > 0 && (len(entries)-1-i) >= opts.Limit {
					return
				}
				if !yield(entries[i], nil) {
					return
				}
			}
			return
		}
		for i, kv := range entries {
			if opts.Limit > 0 && i >= opts.Limit {
				return
			}
			if !yield(kv, nil) {
				return
			}
		}
	}
}

func (s *MemoryStore) rawGet(key []byte) []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneBytes(s.values[string(key)])
}

func (s *MemoryStore) rawRange(begin, end []byte) []KeyValue {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lo := sort.SearchStrings(s.keys, string(begin))
	out := make([]KeyValue, 0)
	for i := lo; i < len(s.keys); i++ {
		k := s.keys[i]
		if bytes.Compare([]byte(k), end) >= 0 {
			break
		}
		out = append(out, KeyValue{Key: []byte(k), Value: cloneBytes(s.values[k])})
	}
	return out
}

func (s *MemoryStore) rawSetLocked(key, value []byte) {
	k := string(key)
	if _, exists := s.values[k]; !exists {
		i := sort.SearchStrings(s.keys, k)
		s.keys = append(s.keys, "")
		copy(s.keys[i+1:], s.keys[i:])
		s.keys[i] = k
	}
	s.values[k] = cloneBytes(value)
}

func (s *MemoryStore) rawClearLocked(key []byte) {
	k := string(key)
	if _, exists := s.values[k]; !exists {
		return
	}
	delete(s.values, k)
	i := sort.SearchStrings(s.keys, k)
	if i < len(s.keys) && s.keys[i] == k {
		s.keys = append(s.keys[:i], s.keys[i+1:]...)
	}
}

func (s *MemoryStore) rawClearRangeLocked(begin, end []byte) {
	lo := sort.SearchStrings(s.keys, string(begin))
	hi := lo
	for hi < len(s.keys) && bytes.Compare([]byte(s.keys[hi]), end) < 0 {
		delete(s.values, s.keys[hi])
		hi++
	}
	s.keys = append(s.keys[:lo], s.keys[hi:]...)
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	cp := make([]byte, len(b))
	copy(cp, b)
	return cp
}

func encodeInt64(v int64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, uint64(v))
	return b
}

func decodeInt64(b []byte) int64 {
	if len(b) != 8 {
		return 0
	}
	return int64(binary.LittleEndian.Uint64(b))
}

// makeVersionstamp packs an 8-byte big-endian db version and a 2-byte
// big-endian batch order into the 10-byte wire format (spec Β§3.1, Β§6.2).
func makeVersionstamp(dbVersion uint64, batchOrder uint16) [10]byte {
	var v [10]byte
	binary.BigEndian.PutUint64(v[0:8], dbVersion)
	binary.BigEndian.PutUint16(v[8:10], batchOrder)
	return v
}

// fillPlaceholder substitutes the 10 bytes of an IncompleteVersionstamp
// placeholder (all 0xFF) found in key with stamp.
func fillPlaceholder(key []byte, stamp [10]byte) []byte {
	placeholder := bytes.Repeat([]byte{0xFF}, 10)
	idx := bytes.Index(key, placeholder)
	if idx < 0 {
		return key
	}
	out := cloneBytes(key)
	copy(out[idx:idx+10], stamp[:])
	return out
}
