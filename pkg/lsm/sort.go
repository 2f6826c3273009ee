package lsm

import "sort"

// sortStableByKey sorts storage[:n] in place by ascending key order. It
// must be stable: when two records share a key, the "last writer wins"
// read semantics depend on insertion order among equals surviving the
// sort, so the later-inserted update remains after the earlier one.
func sortStableByKey[V any](storage []V, n int, less func(a, b V) bool) {
	sort.SliceStable(storage[:n], func(i, j int) bool {
		return less(storage[i], storage[j])
	})
}
