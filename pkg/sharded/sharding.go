// Package sharded provides lock-striped concurrent containers keyed by path.
// Workers of a sync mostly touch distinct paths, so striping the locks keeps
// contention low without the allocation profile of sync.Map.
package sharded

import "hash/fnv"

// DefaultShards is a shard count that works well for tree sized workloads.
const DefaultShards = 64

// getShardIndex calculates the shard index for a given key.
// It uses the FNV-1a hash algorithm.
// numShards must be a power of 2 for the bitwise AND optimization to work correctly.
func getShardIndex(key string, numShards int) int {
	h := fnv.New32a()
	// Write never returns an error for FNV-1a, so we ignore the return value.
	h.Write([]byte(key))
	return int(h.Sum32() & uint32(numShards-1))
}

func isPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}
