package rangeset

import "fmt"

// TruncatedCheckpointError means a RangeSet's persisted checkpoint
// failed its checksum or JSON decode — a torn write from a process
// killed mid-commit, distinct from an ordinary "no checkpoint yet".
type TruncatedCheckpointError struct {
	Reason string
}

func (e *TruncatedCheckpointError) Error() string {
	return fmt.Sprintf("rangeset: truncated or corrupt checkpoint: %s", e.Reason)
}
