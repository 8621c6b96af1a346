package index

import (
	"context"

	"github.com/jpl-au/recordlayer/kv"
	"github.com/jpl-au/recordlayer/subspace"
)

// StateManager persists and transitions each index's lifecycle state
// under `<store_root>/S/<index_name>` (spec §3.1, §6.2), reading it
// fresh on every maintenance call and only within the caller's own
// transaction — so a state read and the mutations it gates are always
// atomic together (spec §5: "Index state reads are per-save (once) and
// cached only within one transaction; transitions are themselves
// transactional").
type StateManager struct {
	sub subspace.Subspace
}

// NewStateManager roots a StateManager at sub (typically
// `<store_root>/S`).
func NewStateManager(sub subspace.Subspace) *StateManager {
	return &StateManager{sub: sub}
}

func (sm *StateManager) key(indexName string) []byte {
	return sm.sub.Sub(indexName).Bytes()
}

// Get reads indexName's current state, defaulting to StateDisabled if
// no state has ever been written (a newly added index).
func (sm *StateManager) Get(ctx context.Context, r kv.Reader, indexName string) (State, error) {
	v, err := r.Get(ctx, sm.key(indexName))
	if err != nil {
		return StateDisabled, err
	}
	if len(v) == 0 {
		return StateDisabled, nil
	}
	return State(v[0]), nil
}

// Set transitions indexName to state within tx. Any state may move to
// StateDisabled; otherwise only disabled -> write-only -> readable is
// valid (spec §3.1 "Transitions").
func (sm *StateManager) Set(ctx context.Context, tx kv.Transaction, indexName string, state State) error {
	current, err := sm.Get(ctx, tx, indexName)
	if err != nil {
		return err
	}
	if !validTransition(current, state) {
		return &InvalidArgumentError{Message: "invalid index state transition " + current.String() + " -> " + state.String()}
	}
	tx.Set(sm.key(indexName), []byte{byte(state)})
	return nil
}

func validTransition(from, to State) bool {
	if to == StateDisabled {
		return true
	}
	switch from {
	case StateDisabled:
		return to == StateWriteOnly
	case StateWriteOnly:
		return to == StateReadable
	case StateReadable:
		return false
	default:
		return false
	}
}
