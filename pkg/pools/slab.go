package pools

import (
	"errors"
	"sync"
)

// ErrOutOfMemory is the error an Allocator reports when it cannot satisfy
// a request. Neither SlabAllocator nor PooledSlabAllocator returns it:
// both allocate with make(), as the teacher's BytePool does, and their
// Alloc always returns a nil error.
var ErrOutOfMemory = errors.New("pools: out of memory")

// SlabAllocator hands out a single contiguous []V region per Alloc call
// and enforces that each region is freed at most once, by exactly the
// allocator that produced it. Unlike BytePool, which pools many
// interchangeable buffers behind a size class, a SlabAllocator's regions
// are never recycled within the allocator itself — it exists to make the
// "allocate once, free once, never resize" discipline a fixed-capacity
// buffer depends on mechanically checkable.
type SlabAllocator[V any] struct {
	mu   sync.Mutex
	live map[*V]int // first-element pointer -> capacity, for live regions
}

// NewSlabAllocator creates an allocator with no live regions.
func NewSlabAllocator[V any]() *SlabAllocator[V] {
	return &SlabAllocator[V]{live: make(map[*V]int)}
}

// Alloc returns a freshly allocated slice of length n. A negative n is a
// caller error and panics; a zero n returns an empty, untracked slice.
func (a *SlabAllocator[V]) Alloc(n int) ([]V, error) {
	if n < 0 {
		panic("pools: negative slab length")
	}

	region := make([]V, n)

	a.mu.Lock()
	defer a.mu.Unlock()
	if n > 0 {
		a.live[&region[0]] = n
	}
	return region, nil
}

// Free releases a region previously returned by Alloc. Freeing a region
// not currently live (never allocated, or already freed) is a contract
// violation and panics.
func (a *SlabAllocator[V]) Free(region []V) {
	if len(region) == 0 {
		return
	}

	key := &region[0]

	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.live[key]; !ok {
		panic("pools: double free or free of unknown slab region")
	}
	delete(a.live, key)
}

// LiveCount reports how many regions are currently outstanding. Exposed
// for tests that verify the allocator is called exactly twice per
// TableMemory lifetime (once at create, once at destroy).
func (a *SlabAllocator[V]) LiveCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.live)
}

// PooledSlabAllocator recycles same-capacity regions across Alloc/Free
// cycles instead of discarding them, in the spirit of BytePool's
// size-class reuse. It is meant for benchmark/engine code that repeatedly
// destroys and recreates same-sized TableMemory buffers and would
// otherwise churn the GC on every cycle; the default, non-pooled
// SlabAllocator remains the right choice when that churn doesn't matter,
// since it keeps the stronger single-owner guarantee untouched by reuse.
type PooledSlabAllocator[V any] struct {
	mu    sync.Mutex
	byCap map[int][][]V
}

// NewPooledSlabAllocator creates an empty pooled slab allocator.
func NewPooledSlabAllocator[V any]() *PooledSlabAllocator[V] {
	return &PooledSlabAllocator[V]{byCap: make(map[int][][]V)}
}

// Alloc returns a region of length n, reused from the pool when one of
// that exact capacity is available.
func (a *PooledSlabAllocator[V]) Alloc(n int) ([]V, error) {
	if n < 0 {
		panic("pools: negative slab length")
	}

	a.mu.Lock()
	bucket := a.byCap[n]
	if len(bucket) > 0 {
		region := bucket[len(bucket)-1]
		a.byCap[n] = bucket[:len(bucket)-1]
		a.mu.Unlock()
		var zero V
		for i := range region {
			region[i] = zero
		}
		return region, nil
	}
	a.mu.Unlock()

	return make([]V, n), nil
}

// Free returns a region to the pool for reuse by a future Alloc of the
// same length.
func (a *PooledSlabAllocator[V]) Free(region []V) {
	n := len(region)
	if n == 0 {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.byCap[n] = append(a.byCap[n], region)
}
