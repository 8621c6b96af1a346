package index

import (
	"context"
	"fmt"

	"github.com/jpl-au/recordlayer/kv"
	"github.com/jpl-au/recordlayer/schema"
	"github.com/jpl-au/recordlayer/subspace"
)

// BuildMaintainers constructs one Maintainer per index in s, rooted
// under indexRootSub (typically `<store_root>/I`). Permuted indexes are
// built after their base, regardless of schema registration order, so
// New never fails to find a base by name.
func BuildMaintainers(s *schema.Schema, indexRootSub subspace.Subspace) (map[string]Maintainer, error) {
	maintainers := make(map[string]Maintainer)
	names := s.IndexNames()

	pending := make(map[string]schema.Index, len(names))
	for _, name := range names {
		idx, _ := s.Index(name)
		pending[name] = idx
	}

	for len(pending) > 0 {
		progressed := false
		for name, idx := range pending {
			if idx.Kind == schema.KindPermuted {
				if _, ok := maintainers[idx.Options.BaseIndex]; !ok {
					continue
				}
			}
			m, err := New(idx, indexRootSub.Sub(name), maintainers)
			if err != nil {
				return nil, err
			}
			maintainers[name] = m
			delete(pending, name)
			progressed = true
		}
		if !progressed {
			var stuck []string
			for name := range pending {
				stuck = append(stuck, name)
			}
			return nil, &InvalidArgumentError{Message: fmt.Sprintf("unresolvable permuted-index base dependency among: %v", stuck)}
		}
	}
	return maintainers, nil
}

// Manager dispatches each save/delete diff to every index applicable to
// the record's type, in readable or write-only state (spec §2 item 7,
// §4.10 step 5).
type Manager struct {
	Schema       *schema.Schema
	State        *StateManager
	Maintainers  map[string]Maintainer
}

// NewManager wires a Manager over an already-built maintainer set.
func NewManager(s *schema.Schema, state *StateManager, maintainers map[string]Maintainer) *Manager {
	return &Manager{Schema: s, State: state, Maintainers: maintainers}
}

// ApplyDiff invokes every applicable maintainer for recordType with
// diff, skipping disabled indexes. Any maintainer error aborts the
// whole call — callers run this inside a single KV transaction, so the
// caller's transaction rollback gives all-or-nothing semantics (spec
// §7: "within a save, any maintainer error aborts the transaction").
func (m *Manager) ApplyDiff(ctx context.Context, tx kv.Transaction, recordType string, diff RecordDiff) error {
	for _, idx := range m.Schema.IndexesForType(recordType) {
		state, err := m.State.Get(ctx, tx, idx.Name)
		if err != nil {
			return err
		}
		if state == StateDisabled {
			continue
		}
		maintainer, ok := m.Maintainers[idx.Name]
		if !ok {
			return &IndexNotFoundError{Name: idx.Name}
		}
		if err := maintainer.Update(ctx, tx, diff); err != nil {
			return fmt.Errorf("index: maintaining %q: %w", idx.Name, err)
		}
	}
	return nil
}

// RequireReadable validates indexName exists and is in StateReadable,
// returning a typed IndexNotFound/IndexNotReady error otherwise (spec
// §4.15, §7).
func (m *Manager) RequireReadable(ctx context.Context, r kv.Reader, indexName string) (schema.Index, error) {
	idx, ok := m.Schema.Index(indexName)
	if !ok {
		return schema.Index{}, &IndexNotFoundError{Name: indexName}
	}
	state, err := m.State.Get(ctx, r, indexName)
	if err != nil {
		return schema.Index{}, err
	}
	if state != StateReadable {
		return schema.Index{}, &IndexNotReadyError{Name: indexName, State: state}
	}
	return idx, nil
}
