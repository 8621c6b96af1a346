// Package subspace implements the keyspace-prefix abstraction (spec
// Β§4.2) every other component builds keys through: a Subspace wraps an
// arbitrary byte prefix, produces child subspaces by appending
// tuple-encoded elements, and derives [begin, end) scan bounds covering
// everything nested under it.
package subspace

import (
	"github.com/jpl-au/recordlayer/tuple"
)

// Subspace is an isolated region of the keyspace identified by a byte
// prefix. The prefix need not itself be tuple-encoded (it may be an
// externally assigned prefix such as a directory-layer UUID), but every
// Sub/Pack call appends tuple-encoded elements after it.
type Subspace struct {
	prefix []byte
}

// FromBytes wraps an arbitrary, possibly non-tuple-encoded, byte prefix.
func FromBytes(prefix []byte) Subspace {
	cp := make([]byte, len(prefix))
	copy(cp, prefix)
	return Subspace{prefix: cp}
}

// Sub returns a child subspace with one tuple element appended to the
// prefix.
func (s Subspace) Sub(element tuple.Element) Subspace {
	return Subspace{prefix: append(s.Bytes(), tuple.Pack(tuple.Tuple{element})...)}
}

// SubTuple returns a child subspace with every element of t appended.
func (s Subspace) SubTuple(t tuple.Tuple) Subspace {
	if len(t) == 0 {
		return s
	}
	return Subspace{prefix: append(s.Bytes(), tuple.Pack(t)...)}
}

// Bytes returns a copy of the subspace's raw prefix.
func (s Subspace) Bytes() []byte {
	cp := make([]byte, len(s.prefix))
	copy(cp, s.prefix)
	return cp
}

// Pack appends the tuple-encoded elements of t to the prefix, producing a
// fully qualified key.
func (s Subspace) Pack(t tuple.Tuple) []byte {
	return append(s.Bytes(), tuple.Pack(t)...)
}

// Unpack strips the subspace's prefix from key and decodes the remainder
// as a Tuple. It returns an error if key does not start with the prefix.
func (s Subspace) Unpack(key []byte) (tuple.Tuple, error) {
	rest, ok := s.stripPrefix(key)
	if !ok {
		return nil, errNotInSubspace
	}
	return tuple.Unpack(rest)
}

// Contains reports whether key falls within this subspace's range.
func (s Subspace) Contains(key []byte) bool {
	_, ok := s.stripPrefix(key)
	return ok
}

func (s Subspace) stripPrefix(key []byte) ([]byte, bool) {
	if len(key) < len(s.prefix) {
		return nil, false
	}
	for i, b := range s.prefix {
		if key[i] != b {
			return nil, false
		}
	}
	return key[len(s.prefix):], true
}

// Range returns the [begin, end) bounds that cover every key in this
// subspace: begin is the bare prefix, end is the prefix with a trailing
// 0xFF byte, which sorts after any key with that prefix because 0xFF
// never legally terminates a tuple-encoded element at the top level
// (every element either ends on a type-tag boundary below 0xFF or is
// escaped).
func (s Subspace) Range() (begin, end []byte) {
	begin = s.Bytes()
	end = append(s.Bytes(), 0xFF)
	return begin, end
}

var errNotInSubspace = subspaceError("subspace: key is not contained in this subspace")

type subspaceError string

func (e subspaceError) Error() string { return string(e) }
