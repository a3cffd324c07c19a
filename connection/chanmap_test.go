package connection

import "testing"

func TestChannelMapLowestFreeID(t *testing.T) {
	m := newChannelMap(8)

	ids := []uint32{}
	for i := 0; i < 4; i++ {
		id, ok := m.allocate(&channel{})
		if !ok {
			t.Fatal("allocation failed")
		}
		ids = append(ids, id)
	}
	for i, id := range ids {
		if id != uint32(i) {
			t.Fatalf("ids %v", ids)
		}
	}

	// Freeing a middle slot makes its id the next allocation.
	m.free(1)
	id, ok := m.allocate(&channel{})
	if !ok || id != 1 {
		t.Fatalf("reallocated id %d", id)
	}

	// The smallest free id wins even with several holes.
	m.free(2)
	m.free(0)
	id, ok = m.allocate(&channel{})
	if !ok || id != 0 {
		t.Fatalf("allocated id %d, want 0", id)
	}
}

func TestChannelMapLimit(t *testing.T) {
	m := newChannelMap(2)
	if _, ok := m.allocate(&channel{}); !ok {
		t.Fatal("first allocation failed")
	}
	if _, ok := m.allocate(&channel{}); !ok {
		t.Fatal("second allocation failed")
	}
	if _, ok := m.allocate(&channel{}); ok {
		t.Fatal("allocation beyond the limit succeeded")
	}
	m.free(0)
	if _, ok := m.allocate(&channel{}); !ok {
		t.Fatal("allocation after free failed")
	}
}

func TestChannelMapTrimsTrailingSlots(t *testing.T) {
	m := newChannelMap(8)
	for i := 0; i < 3; i++ {
		m.allocate(&channel{})
	}
	m.free(2)
	m.free(1)
	if len(m.slots) != 1 {
		t.Fatalf("slots not trimmed: %d", len(m.slots))
	}
	if m.count() != 1 {
		t.Fatalf("count %d", m.count())
	}
}

func TestChannelMapByRemoteID(t *testing.T) {
	m := newChannelMap(8)
	ch := &channel{remoteID: 42, remoteKnown: true}
	m.allocate(ch)
	if got := m.byRemoteID(42); got != ch {
		t.Fatal("lookup by remote id failed")
	}
	if got := m.byRemoteID(7); got != nil {
		t.Fatal("phantom remote id")
	}
}
