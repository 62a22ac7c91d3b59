package bldms

import "testing"

func Test_ValidIndex_InsertInOrder_MaintainsAscendingNsec(t *testing.T) {
	t.Parallel()

	idx := newValidIndex()

	// Out-of-order inserts, as bind-time scanning produces.
	idx.insertInOrder(validNode{blockIndex: 5, nsec: 100})
	idx.insertInOrder(validNode{blockIndex: 9, nsec: 50})
	idx.insertInOrder(validNode{blockIndex: 17, nsec: 200})
	idx.insertInOrder(validNode{blockIndex: 22, nsec: 150})
	idx.insertInOrder(validNode{blockIndex: 0, nsec: 300})

	snap := idx.Snapshot()

	want := []uint64{9, 5, 22, 17, 0}
	if len(snap) != len(want) {
		t.Fatalf("expected %d nodes, got %d", len(want), len(snap))
	}

	for i, blockIdx := range want {
		if snap[i].blockIndex != blockIdx {
			t.Fatalf("position %d: expected block %d, got %d", i, blockIdx, snap[i].blockIndex)
		}
	}
}

func Test_ValidIndex_TiesBreakByBlockIndex(t *testing.T) {
	t.Parallel()

	idx := newValidIndex()

	idx.insertInOrder(validNode{blockIndex: 3, nsec: 10})
	idx.insertInOrder(validNode{blockIndex: 1, nsec: 10})
	idx.insertInOrder(validNode{blockIndex: 2, nsec: 10})

	snap := idx.Snapshot()

	want := []uint64{1, 2, 3}
	for i, blockIdx := range want {
		if snap[i].blockIndex != blockIdx {
			t.Fatalf("position %d: expected block %d, got %d", i, blockIdx, snap[i].blockIndex)
		}
	}
}

func Test_ValidIndex_Unlink_RemovesNodeAndReportsFound(t *testing.T) {
	t.Parallel()

	idx := newValidIndex()
	idx.insertInOrder(validNode{blockIndex: 1, nsec: 10})
	idx.insertInOrder(validNode{blockIndex: 2, nsec: 20})

	if !idx.unlink(1) {
		t.Fatal("expected unlink(1) to report found")
	}

	if idx.unlink(1) {
		t.Fatal("expected second unlink(1) to report not found")
	}

	snap := idx.Snapshot()
	if len(snap) != 1 || snap[0].blockIndex != 2 {
		t.Fatalf("expected only block 2 remaining, got %+v", snap)
	}
}

// Readers holding an older snapshot must keep observing it unaffected by
// later mutations. This is the copy-on-write contract that stands in for a
// grace period.
func Test_ValidIndex_OldSnapshotUnaffectedByLaterMutation(t *testing.T) {
	t.Parallel()

	idx := newValidIndex()
	idx.insertInOrder(validNode{blockIndex: 1, nsec: 10})

	old := idx.Snapshot()

	idx.insertInOrder(validNode{blockIndex: 2, nsec: 20})
	idx.unlink(1)

	if len(old) != 1 || old[0].blockIndex != 1 {
		t.Fatalf("old snapshot must be unaffected by later mutation, got %+v", old)
	}

	fresh := idx.Snapshot()
	if len(fresh) != 1 || fresh[0].blockIndex != 2 {
		t.Fatalf("expected only block 2 in fresh snapshot, got %+v", fresh)
	}
}

func Test_MetaTable_FindFree_WrapsAndSkipsValid(t *testing.T) {
	t.Parallel()

	meta := newMetaTable(4)
	meta.set(0, metaEntry{valid: true})
	meta.set(1, metaEntry{valid: true})
	meta.set(2, metaEntry{valid: true})

	i, ok := meta.findFree(2)
	if !ok || i != 3 {
		t.Fatalf("expected free block 3, got (%d, %v)", i, ok)
	}

	meta.set(3, metaEntry{valid: true})

	_, ok = meta.findFree(3)
	if ok {
		t.Fatal("expected no free block when table is full")
	}
}
