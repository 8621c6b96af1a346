// Package recordaccess defines the Record Access trait (spec Β§3.1 item
// 5, Β§4.9): the seam through which the record layer serializes/
// deserializes opaque record bytes, extracts named fields as tuple
// elements (supporting multi-valued fields), and — optionally —
// reconstructs a record from a covering index's key and value without
// ever reading the record body.
package recordaccess

import (
	"errors"
	"fmt"

	"github.com/jpl-au/recordlayer/tuple"
)

// ErrReconstructionNotImplemented is the base error wrapped by a typed
// ReconstructionNotImplementedError (spec Β§7).
var ErrReconstructionNotImplemented = errors.New("recordaccess: reconstruction not implemented")

// ReconstructionNotImplementedError is returned by the default
// Reconstruct implementation: record types opt into covering-index
// reconstruction by overriding it (spec Β§4.9).
type ReconstructionNotImplementedError struct {
	RecordType string
	Suggestion string
}

func (e *ReconstructionNotImplementedError) Error() string {
	return fmt.Sprintf("recordaccess: %s does not support reconstruction from a covering index (%s)", e.RecordType, e.Suggestion)
}

func (e *ReconstructionNotImplementedError) Unwrap() error { return ErrReconstructionNotImplemented }

// ReconstructionFailedError wraps a concrete reconstruction failure once
// a record type has opted in (spec Β§7).
type ReconstructionFailedError struct {
	RecordType string
	Reason     string
}

func (e *ReconstructionFailedError) Error() string {
	return fmt.Sprintf("recordaccess: %s: reconstruction failed: %s", e.RecordType, e.Reason)
}

// DeserializationFailedError wraps a record-body decode failure (spec
// Β§7). JSONAccess.Serialize also returns it for an encode failure.
type DeserializationFailedError struct {
	Kind   string
	Reason string
}

func (e *DeserializationFailedError) Error() string {
	return fmt.Sprintf("recordaccess: deserialization of %s failed: %s", e.Kind, e.Reason)
}

// Record is the minimal shape the core needs from an application record:
// a stable type name and the raw bytes the pluggable codec (out of
// scope, spec Β§1) produced. Concrete record types embed or wrap this as
// they see fit; the core never inspects Body itself.
type Record struct {
	Type string
	Body []byte
	// Value is the decoded, application-typed record. It is opaque to
	// this package; RecordAccess implementations type-assert it back.
	Value any
}

// Access is implemented once per record type. It is the trait named in
// spec Β§3.1 item 5 / Β§4.9.
type Access interface {
	// TypeName is this record type's stable name, used as part of every
	// key under the record and index subspaces.
	TypeName() string

	// Serialize encodes an application record into opaque bytes.
	Serialize(value any) ([]byte, error)
	// Deserialize decodes opaque bytes back into an application record.
	Deserialize(body []byte) (any, error)

	// ExtractField returns the tuple elements a named field evaluates
	// to for the given application record. A multi-valued field returns
	// one element per value, in stable, deterministic order (spec Β§4.3).
	ExtractField(value any, fieldName string) ([]tuple.Element, error)

	// SupportsReconstruction reports whether Reconstruct is implemented
	// for this type. Defaults to false in every Access built from
	// NewBasicAccess; record types that opt in override it alongside
	// Reconstruct.
	SupportsReconstruction() bool

	// Reconstruct rebuilds an application record from an index key and
	// value alone (spec Β§4.9), given the static column layout of the
	// index's root expression and the primary-key expression. The
	// default implementation returns ReconstructionNotImplementedError.
	Reconstruct(indexedFields, pkFields, coveringFields []string, indexed, pk, covering tuple.Tuple) (any, error)
}

// FieldExtractorFunc adapts a plain function to ExtractField's shape,
// letting simple record types avoid a full struct-based Access.
type FieldExtractorFunc func(value any, fieldName string) ([]tuple.Element, error)

// BasicAccess is a minimal Access built from three callbacks, covering
// the common case of a record type with no covering-index
// reconstruction support (SupportsReconstruction returns false, and
// Reconstruct returns ReconstructionNotImplementedError, matching the
// spec's stated default).
type BasicAccess struct {
	Name        string
	SerializeFn func(value any) ([]byte, error)
	DeserializeFn func(body []byte) (any, error)
	ExtractFn   FieldExtractorFunc
	Suggestion  string
}

func (a *BasicAccess) TypeName() string { return a.Name }

func (a *BasicAccess) Serialize(value any) ([]byte, error) { return a.SerializeFn(value) }

func (a *BasicAccess) Deserialize(body []byte) (any, error) { return a.DeserializeFn(body) }

func (a *BasicAccess) ExtractField(value any, fieldName string) ([]tuple.Element, error) {
	return a.ExtractFn(value, fieldName)
}

func (a *BasicAccess) SupportsReconstruction() bool { return false }

func (a *BasicAccess) Reconstruct(indexedFields, pkFields, coveringFields []string, indexed, pk, covering tuple.Tuple) (any, error) {
	suggestion := a.Suggestion
	if suggestion == "" {
		suggestion = "override Reconstruct to support covering-index scans"
	}
	return nil, &ReconstructionNotImplementedError{RecordType: a.Name, Suggestion: suggestion}
}
