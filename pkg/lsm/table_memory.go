package lsm

import "fmt"

// Allocator provides and reclaims the single backing region a TableMemory
// owns. It is called exactly twice per TableMemory lifetime: once by
// Create, once by Destroy. pools.SlabAllocator and
// pools.PooledSlabAllocator both satisfy this interface.
type Allocator[V any] interface {
	Alloc(n int) ([]V, error)
	Free(region []V)
}

// InitialState selects the lifecycle phase a freshly created TableMemory
// starts in.
type InitialState int

const (
	// InitialMutable starts the buffer empty and writable.
	InitialMutable InitialState = iota
	// InitialImmutableFlushed starts the buffer already in the
	// Immutable{flushed:true} shape, useful when an engine holds a pair
	// of buffers and one of them must begin in the "nothing to flush"
	// state.
	InitialImmutableFlushed
)

// tableState is the dual-state tagged union from the design notes: a
// Mutable arm with no extra fields, and an Immutable arm carrying the
// fields that only make sense once frozen. Implemented as an interface
// with two concrete types rather than one struct with nullable fields,
// so a Mutable buffer has no way to carry stale immutable-only data.
type tableState interface {
	immutable() bool
}

type mutableState struct{}

func (mutableState) immutable() bool { return false }

// immutableState is stored behind a pointer: MarkFlushed mutates the flag
// in place, which is how an external flusher signals completion without
// TableMemory handing out a fresh state value.
type immutableState struct {
	flushed     bool
	snapshotMin uint64
}

func (*immutableState) immutable() bool { return true }

// StateKind distinguishes the two lifecycle phases for inspection, e.g.
// in tests and in the Engine's bookkeeping.
type StateKind int

const (
	StateMutable StateKind = iota
	StateImmutable
)

// TableMemory is a fixed-capacity, statically allocated, dual-state
// sorted buffer of records. It buffers recently written records, keeps
// them searchable for tests and fuzzing, freezes atomically for
// flushing, and recycles its storage once the flush completes. See
// RecordPolicy for how it is parameterized over a key and record type.
type TableMemory[K any, V any] struct {
	storage   []V
	len       int
	isSorted  bool
	state     tableState
	label     string
	policy    RecordPolicy[K, V]
	allocator Allocator[V]
}

// Create allocates the buffer's backing storage exactly once, with
// capacity given by policy.Capacity(), and returns it in initial's
// lifecycle shape. The only error this subsystem ever returns escapes
// here.
func Create[K any, V any](allocator Allocator[V], policy RecordPolicy[K, V], initial InitialState, label string) (*TableMemory[K, V], error) {
	storage, err := allocator.Alloc(policy.Capacity())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOutOfMemory, err)
	}

	t := &TableMemory[K, V]{
		storage:   storage,
		len:       0,
		isSorted:  true,
		label:     label,
		policy:    policy,
		allocator: allocator,
	}

	switch initial {
	case InitialMutable:
		t.state = mutableState{}
	case InitialImmutableFlushed:
		t.state = &immutableState{flushed: true, snapshotMin: 0}
	default:
		violate("Create", label, "unknown initial state")
	}

	return t, nil
}

// Destroy returns storage to the allocator. No other cleanup is
// performed; calling any other method on t after Destroy is a contract
// violation left to the caller to avoid (the guarantee the distilled
// spec draws the line at).
func (t *TableMemory[K, V]) Destroy() {
	t.allocator.Free(t.storage)
	t.storage = nil
}

// Reset clears the buffer to empty while preserving storage, label and
// the state's tag: a Mutable buffer resets to Mutable; an Immutable
// buffer resets to Immutable{flushed:true, snapshotMin:0}.
func (t *TableMemory[K, V]) Reset() {
	t.len = 0
	t.isSorted = true

	switch t.state.(type) {
	case mutableState:
		t.state = mutableState{}
	case *immutableState:
		t.state = &immutableState{flushed: true, snapshotMin: 0}
	}
}

// Label returns the buffer's diagnostic name.
func (t *TableMemory[K, V]) Label() string {
	return t.label
}

// StateKind reports which lifecycle phase the buffer is currently in.
func (t *TableMemory[K, V]) StateKind() StateKind {
	if t.state.immutable() {
		return StateImmutable
	}
	return StateMutable
}

// IsSorted reports the buffer's current sort-order guarantee. False is
// always a safe (if conservative) answer; true is a guarantee.
func (t *TableMemory[K, V]) IsSorted() bool {
	return t.isSorted
}

// Len returns the number of live records.
func (t *TableMemory[K, V]) Len() int {
	return t.len
}

// Capacity returns the fixed maximum record count.
func (t *TableMemory[K, V]) Capacity() int {
	return len(t.storage)
}

// ValuesUsed returns a borrowed slice over storage[0:Len()]. It is valid
// only until the next mutating call (Put, Freeze, Thaw, Reset, or a Get
// that triggers a lazy sort); re-borrowing past that point is undefined.
func (t *TableMemory[K, V]) ValuesUsed() []V {
	return t.storage[:t.len]
}

// Put appends value to the buffer. Precondition: the buffer is Mutable
// and not already at capacity; violating either is fatal. Sorting is
// deferred: Put only ever compares the new value against the previous
// tail, using <= so that duplicate keys (legitimate updates within the
// same buffer) never break the sorted-so-far guarantee.
func (t *TableMemory[K, V]) Put(value V) {
	if _, ok := t.state.(mutableState); !ok {
		violate("Put", t.label, "buffer is not Mutable")
	}
	if t.len >= len(t.storage) {
		violate("Put", t.label, "capacity exceeded")
	}

	if t.isSorted && t.len > 0 {
		prev := t.policy.KeyOf(t.storage[t.len-1])
		next := t.policy.KeyOf(value)
		if t.policy.Compare(prev, next) > 0 {
			t.isSorted = false
		}
	}

	t.storage[t.len] = value
	t.len++
}

// Get is a test/fuzz-only lookup; production reads are served by an
// external cache. If the buffer isn't known-sorted, Get sorts it in
// place first (an idempotent canonicalization, legal even when
// Immutable), then resolves the key with an upper-bound binary search so
// that, among duplicate keys, the most recently inserted record is the
// one returned.
func (t *TableMemory[K, V]) Get(key K) (V, bool) {
	t.ensureSorted()

	idx := upperBound(t.len, func(i int) int {
		return t.policy.Compare(t.policy.KeyOf(t.storage[i]), key)
	})

	if idx > 0 {
		candidate := t.storage[idx-1]
		if t.policy.Compare(t.policy.KeyOf(candidate), key) == 0 {
			return candidate, true
		}
	}

	var zero V
	return zero, false
}

func (t *TableMemory[K, V]) ensureSorted() {
	if t.isSorted {
		return
	}
	sortStableByKey(t.storage, t.len, func(a, b V) bool {
		return t.policy.Compare(t.policy.KeyOf(a), t.policy.KeyOf(b)) < 0
	})
	t.isSorted = true
}

// Freeze transitions the buffer from Mutable to Immutable, canonicalizing
// sort order (stably, so duplicate-key ties resolve to the last insert)
// and tagging the new epoch with snapshotMin. A buffer with no live
// records is born already flushed, since there is nothing to write.
func (t *TableMemory[K, V]) Freeze(snapshotMin uint64) {
	if _, ok := t.state.(mutableState); !ok {
		violate("Freeze", t.label, "buffer is not Mutable")
	}

	t.ensureSorted()
	t.state = &immutableState{flushed: t.len == 0, snapshotMin: snapshotMin}
}

// MarkFlushed is called by the external flusher once it has finished
// reading ValuesUsed/KeyMin/KeyMax for this epoch. It is the single
// permission token that makes Thaw callable; only the flusher may set it
// and only Thaw may consume it.
func (t *TableMemory[K, V]) MarkFlushed() {
	imm, ok := t.state.(*immutableState)
	if !ok {
		violate("MarkFlushed", t.label, "buffer is not Immutable")
	}
	imm.flushed = true
}

// Flushed reports the immutable state's flush flag. Precondition: the
// buffer is Immutable.
func (t *TableMemory[K, V]) Flushed() bool {
	imm, ok := t.state.(*immutableState)
	if !ok {
		violate("Flushed", t.label, "buffer is not Immutable")
	}
	return imm.flushed
}

// SnapshotMin returns the snapshot number this epoch was frozen with.
// Precondition: the buffer is Immutable. TableMemory does not interpret
// this value, only stores it for the flusher.
func (t *TableMemory[K, V]) SnapshotMin() uint64 {
	imm, ok := t.state.(*immutableState)
	if !ok {
		violate("SnapshotMin", t.label, "buffer is not Immutable")
	}
	return imm.snapshotMin
}

// Thaw transitions the buffer back to Mutable and empty. Precondition:
// the buffer is Immutable and already flushed. storage and label are
// retained; no reallocation occurs.
func (t *TableMemory[K, V]) Thaw() {
	imm, ok := t.state.(*immutableState)
	if !ok {
		violate("Thaw", t.label, "buffer is not Immutable")
	}
	if !imm.flushed {
		violate("Thaw", t.label, "immutable buffer has not been flushed yet")
	}

	t.len = 0
	t.isSorted = true
	t.state = mutableState{}
}

// KeyMin returns the key of the first record in key order. Precondition:
// the buffer is Immutable and non-empty.
func (t *TableMemory[K, V]) KeyMin() K {
	t.requireImmutableNonEmpty("KeyMin")
	return t.policy.KeyOf(t.storage[0])
}

// KeyMax returns the key of the last record in key order. Precondition:
// the buffer is Immutable and non-empty.
func (t *TableMemory[K, V]) KeyMax() K {
	t.requireImmutableNonEmpty("KeyMax")
	return t.policy.KeyOf(t.storage[t.len-1])
}

func (t *TableMemory[K, V]) requireImmutableNonEmpty(op string) {
	if _, ok := t.state.(*immutableState); !ok {
		violate(op, t.label, "buffer is not Immutable")
	}
	if t.len == 0 {
		violate(op, t.label, "buffer is empty")
	}
}
