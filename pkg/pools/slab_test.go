package pools

import "testing"

func TestSlabAllocator_AllocFree(t *testing.T) {
	a := NewSlabAllocator[int]()

	region, err := a.Alloc(16)
	if err != nil {
		t.Fatalf("Alloc failed: %v", err)
	}
	if len(region) != 16 {
		t.Fatalf("Alloc(16) length = %d, want 16", len(region))
	}
	if got := a.LiveCount(); got != 1 {
		t.Fatalf("LiveCount = %d, want 1", got)
	}

	a.Free(region)
	if got := a.LiveCount(); got != 0 {
		t.Fatalf("LiveCount after Free = %d, want 0", got)
	}
}

func TestSlabAllocator_DoubleFreePanics(t *testing.T) {
	a := NewSlabAllocator[int]()
	region, _ := a.Alloc(4)
	a.Free(region)

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on double free")
		}
	}()
	a.Free(region)
}

func TestSlabAllocator_FreeUnknownRegionPanics(t *testing.T) {
	a := NewSlabAllocator[int]()
	foreign := make([]int, 4)

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on free of unknown region")
		}
	}()
	a.Free(foreign)
}

func TestSlabAllocator_MultipleRegionsIndependent(t *testing.T) {
	a := NewSlabAllocator[int]()

	r1, _ := a.Alloc(8)
	r2, _ := a.Alloc(8)
	if got := a.LiveCount(); got != 2 {
		t.Fatalf("LiveCount = %d, want 2", got)
	}

	a.Free(r1)
	if got := a.LiveCount(); got != 1 {
		t.Fatalf("LiveCount after one free = %d, want 1", got)
	}
	a.Free(r2)
	if got := a.LiveCount(); got != 0 {
		t.Fatalf("LiveCount after both free = %d, want 0", got)
	}
}

func TestPooledSlabAllocator_ReusesSameCapacity(t *testing.T) {
	a := NewPooledSlabAllocator[int]()

	r1, _ := a.Alloc(32)
	r1[0] = 42
	a.Free(r1)

	r2, _ := a.Alloc(32)
	if r2[0] != 0 {
		t.Fatalf("reused region not zeroed: got %d", r2[0])
	}
	if len(r2) != 32 {
		t.Fatalf("Alloc(32) length = %d, want 32", len(r2))
	}
}
