package index

import (
	"errors"
	"fmt"
)

// Sentinel bases, wrapped by the typed errors below so callers can use
// errors.Is against either the sentinel or errors.As against the typed
// value (spec §7).
var (
	ErrInvalidArgument            = errors.New("index: invalid argument")
	ErrIndexNotFound              = errors.New("index: not found")
	ErrIndexNotReady              = errors.New("index: not ready")
	ErrVersionMismatch            = errors.New("index: version mismatch")
	ErrVersionNotFound            = errors.New("index: version not found")
	ErrHnswInlineNotSupported     = errors.New("index: inline HNSW indexing not supported at this size")
	ErrEmptyGroup                 = errors.New("index: empty group")
)

// InvalidArgumentError reports a schema/permutation validation failure,
// a grouping-arity mismatch, a wrong index type for an API, or an
// incompatible field.
type InvalidArgumentError struct {
	Message string
}

func (e *InvalidArgumentError) Error() string { return "index: invalid argument: " + e.Message }
func (e *InvalidArgumentError) Unwrap() error  { return ErrInvalidArgument }

// IndexNotFoundError reports a reference to an index name the schema
// does not contain.
type IndexNotFoundError struct {
	Name string
}

func (e *IndexNotFoundError) Error() string { return fmt.Sprintf("index: %q not found", e.Name) }
func (e *IndexNotFoundError) Unwrap() error  { return ErrIndexNotFound }

// IndexNotReadyError reports a query issued against a non-readable
// index; the message includes both the index name and its current
// state (spec §7: "message MUST include both states").
type IndexNotReadyError struct {
	Name  string
	State State
}

func (e *IndexNotReadyError) Error() string {
	return fmt.Sprintf("index: %q is not ready: state is %s, want readable", e.Name, e.State)
}
func (e *IndexNotReadyError) Unwrap() error { return ErrIndexNotReady }

// DeserializationFailedError reports a record-body decode failure
// surfaced through the index layer (e.g. while scrubbing).
type DeserializationFailedError struct {
	Kind   string
	Reason string
}

func (e *DeserializationFailedError) Error() string {
	return fmt.Sprintf("index: deserialization of %s failed: %s", e.Kind, e.Reason)
}

// VersionMismatchError reports a version-index read that found a
// different version than expected.
type VersionMismatchError struct {
	Expected, Actual string
}

func (e *VersionMismatchError) Error() string {
	return fmt.Sprintf("index: version mismatch: expected %s, got %s", e.Expected, e.Actual)
}
func (e *VersionMismatchError) Unwrap() error { return ErrVersionMismatch }

// VersionNotFoundError reports a lookup for a version that the
// retention policy has already trimmed or that never existed.
type VersionNotFoundError struct {
	Version string
}

func (e *VersionNotFoundError) Error() string {
	return fmt.Sprintf("index: version %s not found", e.Version)
}
func (e *VersionNotFoundError) Unwrap() error { return ErrVersionNotFound }

// HnswInlineIndexingNotSupportedError reports that inline maintenance of
// a vector index crossed its configured size threshold; the message
// recommends the batch-build strategy instead (spec §7).
type HnswInlineIndexingNotSupportedError struct {
	IndexName string
	Size      int
	Threshold int
}

func (e *HnswInlineIndexingNotSupportedError) Error() string {
	return fmt.Sprintf("index: %q: inline HNSW indexing not supported above %d entries (have %d); use the online index builder instead",
		e.IndexName, e.Threshold, e.Size)
}
func (e *HnswInlineIndexingNotSupportedError) Unwrap() error { return ErrHnswInlineNotSupported }

// EmptyGroupError reports a min/max query against a group with no
// records.
type EmptyGroupError struct {
	IndexName string
	Group     string
}

func (e *EmptyGroupError) Error() string {
	return fmt.Sprintf("index: %q: group %s is empty", e.IndexName, e.Group)
}
func (e *EmptyGroupError) Unwrap() error { return ErrEmptyGroup }
