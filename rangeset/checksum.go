package rangeset

import (
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// checksum returns a 16-byte-hex blake2b digest of a checkpoint's
// encoded form, stored alongside it so a truncated or torn write (a
// process killed mid-Set on a store without atomic multi-key commits)
// is detected on the next load rather than silently treated as an
// empty or partial RangeSet.
func checksum(encoded []byte) string {
	h, _ := blake2b.New(16, nil)
	h.Write(encoded)
	return fmt.Sprintf("%x", h.Sum(nil))
}
