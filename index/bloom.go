// Dangling-probe bloom filter for the online scrubber's Phase 1 sweep
// (spec §4.13): before issuing a KV get to check whether an index
// entry's primary key still has a live record, the scrubber consults
// this filter so a batch of entries pointing at the same handful of
// live records never pays for more than one probe each. Adapted from
// the disk-store's sparse-region bloom filter: same double-hash
// construction, generalized from fixed document IDs to arbitrary
// primary-key bytes and re-sized per batch rather than per whole store.
package index

import (
	"hash/fnv"
)

// DanglingBloomBitsPerEntry and DanglingBloomHashes follow the same 1%
// false-positive sizing the filter was built with (10 bits per entry,
// so 100k bits per 10k entries, 7 hash functions).
const (
	DanglingBloomBitsPerEntry = 10
	DanglingBloomHashes       = 7
)

// DanglingProbeFilter is a scratch bloom filter built fresh per scrub
// batch from the primary keys already confirmed live earlier in that
// batch, so repeated dangling-candidates referencing the same record
// skip a redundant KV get. Exported for package scrub's Phase 1 sweep.
type DanglingProbeFilter struct {
	bits []byte
}

// NewDanglingProbeFilter sizes the filter for expectedEntries.
func NewDanglingProbeFilter(expectedEntries int) *DanglingProbeFilter {
	if expectedEntries < 1 {
		expectedEntries = 1
	}
	nbits := expectedEntries * DanglingBloomBitsPerEntry
	return &DanglingProbeFilter{bits: make([]byte, (nbits+7)/8)}
}

// Add records pk as confirmed live.
func (f *DanglingProbeFilter) Add(pk []byte) {
	for _, pos := range danglingProbePositions(pk, len(f.bits)*8) {
		f.bits[pos/8] |= 1 << (pos % 8)
	}
}

// MaybeLive reports whether pk might be live (true) or is definitely
// not yet confirmed live in this filter (false) — a false result still
// requires the real KV get before declaring an entry dangling.
func (f *DanglingProbeFilter) MaybeLive(pk []byte) bool {
	for _, pos := range danglingProbePositions(pk, len(f.bits)*8) {
		if f.bits[pos/8]&(1<<(pos%8)) == 0 {
			return false
		}
	}
	return true
}

// danglingProbePositions returns DanglingBloomHashes bit positions via
// double hashing (FNV-64a + FNV-32a), mirroring the disk store's own
// positions() helper.
func danglingProbePositions(pk []byte, nbits int) [DanglingBloomHashes]uint {
	h64 := fnv.New64a()
	h64.Write(pk)
	a := h64.Sum64()

	h32 := fnv.New32a()
	h32.Write(pk)
	b := uint(h32.Sum32())

	var pos [DanglingBloomHashes]uint
	for i := range DanglingBloomHashes {
		pos[i] = (uint(a) + uint(i)*b) % uint(nbits)
	}
	return pos
}
