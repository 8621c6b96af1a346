// Package kv defines the abstract ordered key-value store contract the
// record layer is built on (spec Β§6.1): transactional get/set/clear,
// range scans, atomic add/min/max, and a versionstamped-key mutation for
// monotonic index keys. The engine itself — a distributed transactional
// store such as FoundationDB — is explicitly an external collaborator
// (spec Β§1); this package only fixes the contract every other package
// programs against, plus (in memkv.go) a real in-memory implementation
// used by every test in this module.
package kv

import (
	"context"
	"errors"
	"iter"
)

// KeyValue is one entry returned from a range scan.
type KeyValue struct {
	Key   []byte
	Value []byte
}

// RangeOptions controls a GetRange scan.
type RangeOptions struct {
	// Reverse scans from end towards begin when true.
	Reverse bool
	// Limit caps the number of entries returned; zero means unbounded.
	Limit int
	// There is no snapshot flag here: snapshot reads, which skip conflict
	// tracking, go through the Reader returned by Transaction.Snapshot().
}

// Reader is the read-only surface shared by a Transaction and its
// snapshot view.
type Reader interface {
	// Get returns the value stored at key, or (nil, nil) if absent.
	Get(ctx context.Context, key []byte) ([]byte, error)
	// GetRange streams entries in [begin, end) in key order (or reverse
	// key order if opts.Reverse), honoring opts.Limit.
	GetRange(ctx context.Context, begin, end []byte, opts RangeOptions) iter.Seq2[KeyValue, error]
}

// Transaction is a single unit-of-work against the store. All mutations
// issued on a Transaction become visible atomically at commit; a
// Transaction provides read-your-writes for its own Get/GetRange calls.
type Transaction interface {
	Reader

	// Snapshot returns a Reader whose Get/GetRange calls skip conflict
	// tracking (spec Β§6.1); a caller can pass it to read-only plans
	// such as store.CoveringScanPlan.Execute.
	Snapshot() Reader

	// Set stores value at key, visible to later reads in this
	// transaction and to every transaction that starts after this one
	// commits.
	Set(key, value []byte)
	// Clear removes key, if present.
	Clear(key []byte)
	// ClearRange removes every key in [begin, end).
	ClearRange(begin, end []byte)

	// AtomicAdd adds delta to the 8-byte little-endian signed integer
	// stored at key (treating an absent key as zero), without a
	// read-modify-write round trip (spec Β§5: "never get-modify-set").
	AtomicAdd(key []byte, delta int64)
	// AtomicMin sets key to the lesser of its current value and v,
	// treating an absent key as if v were already stored.
	AtomicMin(key []byte, v int64)
	// AtomicMax is AtomicMin's counterpart for the greater value.
	AtomicMax(key []byte, v int64)

	// SetVersionstampedKey stores value at a key that contains exactly
	// one tuple.IncompleteVersionstamp placeholder (spec Β§4.1); the
	// store substitutes the real, monotonically increasing versionstamp
	// for the placeholder bytes at commit.
	SetVersionstampedKey(keyWithPlaceholder, value []byte)
}

// Database is a handle to an instance of the store. Transact runs fn
// against a fresh Transaction, committing on a nil return and retrying
// automatically on a transient conflict, mirroring the retry policy
// every FDB-style client exposes (spec Β§5, Β§7: "transient KV conflicts
// retried locally").
type Database interface {
	Transact(ctx context.Context, fn func(tx Transaction) error) error
}

// ErrConflict is returned internally by an implementation's commit path
// and retried by Transact; callers should never observe it directly
// unless MaxRetries (where applicable) is exceeded.
var ErrConflict = errors.New("kv: transaction conflict")
