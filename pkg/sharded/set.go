package sharded

import "sync"

type setShard struct {
	mu    sync.RWMutex
	items map[string]struct{}
}

// Set is a concurrent set of strings.
type Set struct {
	shards []*setShard
}

// NewSet creates a set with numShards shards. numShards must be a power of 2.
func NewSet(numShards int) *Set {
	if !isPowerOfTwo(numShards) {
		panic("num shards must be a power of 2")
	}
	s := &Set{shards: make([]*setShard, numShards)}
	for i := range numShards {
		s.shards[i] = &setShard{items: make(map[string]struct{})}
	}
	return s
}

func (s *Set) shard(key string) *setShard {
	return s.shards[getShardIndex(key, len(s.shards))]
}

// Store adds key to the set.
func (s *Set) Store(key string) {
	sh := s.shard(key)
	sh.mu.Lock()
	sh.items[key] = struct{}{}
	sh.mu.Unlock()
}

// Has reports whether key is in the set.
func (s *Set) Has(key string) bool {
	sh := s.shard(key)
	sh.mu.RLock()
	_, ok := sh.items[key]
	sh.mu.RUnlock()
	return ok
}

// LoadOrStore ensures key is present in the set, returning true if it was already present.
// This is an atomic operation.
func (s *Set) LoadOrStore(key string) (loaded bool) {
	sh := s.shard(key)
	sh.mu.Lock()
	_, loaded = sh.items[key]
	if !loaded {
		sh.items[key] = struct{}{}
	}
	sh.mu.Unlock()
	return loaded
}

// Count returns the total number of elements in the set.
func (s *Set) Count() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		n += len(sh.items)
		sh.mu.RUnlock()
	}
	return n
}
