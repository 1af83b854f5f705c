package sharded

import "sync"

type mapShard[V any] struct {
	mu    sync.RWMutex
	items map[string]V
}

// Map is a concurrent map from string keys to values of type V.
type Map[V any] struct {
	shards []*mapShard[V]
}

// NewMap creates a map with numShards shards. numShards must be a power of 2.
func NewMap[V any](numShards int) *Map[V] {
	if !isPowerOfTwo(numShards) {
		panic("num shards must be a power of 2")
	}
	m := &Map[V]{shards: make([]*mapShard[V], numShards)}
	for i := range numShards {
		m.shards[i] = &mapShard[V]{items: make(map[string]V)}
	}
	return m
}

func (m *Map[V]) shard(key string) *mapShard[V] {
	return m.shards[getShardIndex(key, len(m.shards))]
}

// Store sets the value for key.
func (m *Map[V]) Store(key string, value V) {
	sh := m.shard(key)
	sh.mu.Lock()
	sh.items[key] = value
	sh.mu.Unlock()
}

// Load returns the value stored for key, if any.
func (m *Map[V]) Load(key string) (value V, ok bool) {
	sh := m.shard(key)
	sh.mu.RLock()
	value, ok = sh.items[key]
	sh.mu.RUnlock()
	return value, ok
}

// Items returns a snapshot copy of all entries.
func (m *Map[V]) Items() map[string]V {
	out := make(map[string]V)
	for _, sh := range m.shards {
		sh.mu.RLock()
		for k, v := range sh.items {
			out[k] = v
		}
		sh.mu.RUnlock()
	}
	return out
}
