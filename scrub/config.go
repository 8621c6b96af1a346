// Package scrub implements the Online Scrubber (spec §4.13): a two-
// phase background consistency check over one readable index, run
// transactionally in bounded batches so it never blocks concurrent
// traffic. Phase 1 sweeps the index for entries whose record no longer
// exists ("dangling"); Phase 2 sweeps the record type for records whose
// expected entries are missing. Both phases optionally repair what they
// find.
package scrub

import "github.com/jpl-au/recordlayer/schema"

// Config controls one scrub run, grounded on the disk store's own
// repair.go batch/throttle knobs generalized to the scrubber's two
// phases and its read-your-writes / retry behavior.
type Config struct {
	// EntriesScanLimit bounds how many index entries Phase 1 examines
	// per transaction.
	EntriesScanLimit int
	// RecordsScanLimit bounds how many records Phase 2 examines per
	// transaction. Zero means "use EntriesScanLimit".
	RecordsScanLimit int
	// MaxTxnBytes is an advisory cap the caller may use to shrink a
	// batch further when entries are unusually large; the scrubber
	// itself only enforces the count-based limits above.
	MaxTxnBytes int
	// TxnTimeoutMs bounds how long one batch transaction is allowed to
	// run before the caller should consider it stuck.
	TxnTimeoutMs int
	// ReadYourWrites is not consulted by Run: every batch reads through
	// its own transaction, which always sees that batch's earlier
	// repairs (spec §4.13: a record deleted earlier in the same batch
	// must not be re-flagged by a later entry in that batch).
	ReadYourWrites bool
	// AllowRepair clears dangling entries and writes missing ones; when
	// false the scrubber only counts and reports.
	AllowRepair bool
	// SupportedTypes lists the index kinds New will scrub; New rejects
	// any other kind. Defaults to {schema.KindValue}.
	SupportedTypes []schema.IndexKind
	// LogWarningsLimit caps how many individual repair warnings Run
	// appends to the report's Warnings slice.
	LogWarningsLimit int
	// EnableProgressLogging and ProgressLogIntervalS are advisory;
	// package scrub itself makes no logging calls (spec's ambient
	// logging concern belongs to the caller, per the disk store's own
	// "no package-level logger" convention) but a caller driving Run in
	// a loop can use these to decide when to log its own progress.
	EnableProgressLogging  bool
	ProgressLogIntervalS   int
	MaxRetries             int
	RetryDelayMs           int
}

// DefaultConfig scrubs moderate batches with repair enabled.
func DefaultConfig() Config {
	return Config{
		EntriesScanLimit: 500,
		RecordsScanLimit: 500,
		MaxTxnBytes:      1 << 20,
		TxnTimeoutMs:     5000,
		ReadYourWrites:   true,
		AllowRepair:      true,
		SupportedTypes:   []schema.IndexKind{schema.KindValue},
		LogWarningsLimit: 100,
		MaxRetries:       3,
		RetryDelayMs:     100,
	}
}

// ConservativeConfig scrubs small batches and never repairs, for a
// first pass over an index nobody has validated yet.
func ConservativeConfig() Config {
	c := DefaultConfig()
	c.EntriesScanLimit = 50
	c.RecordsScanLimit = 50
	c.AllowRepair = false
	return c
}

// AggressiveConfig scrubs large batches with repair enabled, for a
// maintenance window where throughput matters more than isolation.
func AggressiveConfig() Config {
	c := DefaultConfig()
	c.EntriesScanLimit = 5000
	c.RecordsScanLimit = 5000
	c.MaxRetries = 1
	return c
}

func (c Config) supports(kind schema.IndexKind) bool {
	types := c.SupportedTypes
	if len(types) == 0 {
		types = []schema.IndexKind{schema.KindValue}
	}
	for _, k := range types {
		if k == kind {
			return true
		}
	}
	return false
}

func (c Config) entriesLimit() int {
	if c.EntriesScanLimit > 0 {
		return c.EntriesScanLimit
	}
	return 500
}

func (c Config) recordsLimit() int {
	if c.RecordsScanLimit > 0 {
		return c.RecordsScanLimit
	}
	return c.entriesLimit()
}
