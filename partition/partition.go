// Package partition implements the PartitionManager (spec §4.14): one
// Store per (tenant, collection) pair, rooted under
// `<root>/accounts/<tenant>/<collection>`, cached so repeated lookups
// for the same pair don't repay the cost of opening maintainers and
// state for every call.
package partition

import (
	"context"
	"strings"
	"sync"

	"github.com/jpl-au/recordlayer/kv"
	"github.com/jpl-au/recordlayer/recordaccess"
	"github.com/jpl-au/recordlayer/schema"
	"github.com/jpl-au/recordlayer/store"
	"github.com/jpl-au/recordlayer/subspace"
	"github.com/zeebo/xxh3"
)

// shardCount partitions the cache across independent locks so
// concurrent Store calls for distinct tenants don't serialize on one
// another (spec §5); only calls whose (tenant, collection) key hashes
// into the same shard ever contend.
const shardCount = 32

type shard struct {
	mu     sync.RWMutex
	stores map[string]*store.Store
}

// Manager opens and caches one *store.Store per (tenant, collection),
// all sharing a single schema and record-access set.
type Manager struct {
	root   subspace.Subspace
	schema *schema.Schema
	access map[string]recordaccess.Access
	shards [shardCount]shard
}

// New builds a Manager rooted at root.
func New(root subspace.Subspace, s *schema.Schema, access map[string]recordaccess.Access) *Manager {
	m := &Manager{root: root, schema: s, access: access}
	for i := range m.shards {
		m.shards[i].stores = make(map[string]*store.Store)
	}
	return m
}

func cacheKey(tenant, collection string) string {
	return tenant + "/" + collection
}

func (m *Manager) shardFor(key string) *shard {
	h := xxh3.HashString(key)
	return &m.shards[h%uint64(shardCount)]
}

func (m *Manager) tenantSub(tenant string) subspace.Subspace {
	return m.root.Sub("accounts").Sub(tenant)
}

// Store returns the cached *store.Store for (tenant, collection),
// opening and caching one on first use. Construction happens outside
// any lock, so two goroutines racing to open the same pair is benign:
// both build a Store, but only the first to re-acquire the shard lock
// gets cached — the loser discards its own and returns the winner's.
func (m *Manager) Store(tenant, collection string) (*store.Store, error) {
	key := cacheKey(tenant, collection)
	sh := m.shardFor(key)

	sh.mu.RLock()
	if st, ok := sh.stores[key]; ok {
		sh.mu.RUnlock()
		return st, nil
	}
	sh.mu.RUnlock()

	root := m.tenantSub(tenant).Sub(collection)
	st, err := store.Open(root, m.schema, m.access)
	if err != nil {
		return nil, err
	}

	sh.mu.Lock()
	defer sh.mu.Unlock()
	if existing, ok := sh.stores[key]; ok {
		return existing, nil
	}
	sh.stores[key] = st
	return st, nil
}

// DeleteAccount clears every key under tenant's subspace (every
// collection, every record and index) and evicts every cached Store for
// that tenant, regardless of which shard its collection hashed into.
func (m *Manager) DeleteAccount(ctx context.Context, db kv.Database, tenant string) error {
	begin, end := m.tenantSub(tenant).Range()
	if err := db.Transact(ctx, func(tx kv.Transaction) error {
		tx.ClearRange(begin, end)
		return nil
	}); err != nil {
		return err
	}

	prefix := tenant + "/"
	for i := range m.shards {
		sh := &m.shards[i]
		sh.mu.Lock()
		for key := range sh.stores {
			if strings.HasPrefix(key, prefix) {
				delete(sh.stores, key)
			}
		}
		sh.mu.Unlock()
	}
	return nil
}

// ClearCache evicts every cached Store without touching stored data.
func (m *Manager) ClearCache() {
	for i := range m.shards {
		sh := &m.shards[i]
		sh.mu.Lock()
		sh.stores = make(map[string]*store.Store)
		sh.mu.Unlock()
	}
}

// CacheSize reports how many (tenant, collection) Stores are currently
// cached.
func (m *Manager) CacheSize() int {
	total := 0
	for i := range m.shards {
		sh := &m.shards[i]
		sh.mu.RLock()
		total += len(sh.stores)
		sh.mu.RUnlock()
	}
	return total
}
