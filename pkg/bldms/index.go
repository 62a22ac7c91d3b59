package bldms

import "sync/atomic"

// validNode describes one currently-valid block.
type validNode struct {
	blockIndex uint64
	validBytes uint16
	nsec       uint64
}

// less implements the index's total order: ascending nsec, ties broken by
// ascending blockIndex.
func (n validNode) less(o validNode) bool {
	if n.nsec != o.nsec {
		return n.nsec < o.nsec
	}

	return n.blockIndex < o.blockIndex
}

// validIndex is the timestamp-ordered sequence of currently-valid blocks.
//
// A single writer lock (owned by the engine, not this type) serializes all
// mutations. Readers never lock: Snapshot loads the current []validNode
// atomically and iterates it without any further synchronization. Because
// every mutation publishes a freshly built slice rather than mutating one in
// place, a reader that loaded an older snapshot keeps observing a
// self-consistent, already-complete view of the index exactly as it stood
// at that moment. Deferred reclamation falls out of the Go garbage
// collector, which cannot reclaim the old slice's backing array until every
// reader holding a reference to it returns.
type validIndex struct {
	snapshot atomic.Pointer[[]validNode]
}

func newValidIndex() *validIndex {
	idx := &validIndex{}

	empty := []validNode{}
	idx.snapshot.Store(&empty)

	return idx
}

// Snapshot returns the current immutable slice of valid nodes, ordered
// ascending by (nsec, blockIndex). Safe for concurrent use, lock-free.
func (idx *validIndex) Snapshot() []validNode {
	return *idx.snapshot.Load()
}

// insertInOrder publishes a new snapshot with node inserted so ascending
// order is preserved. Must be called under the writer lock.
func (idx *validIndex) insertInOrder(node validNode) {
	cur := idx.Snapshot()

	pos := len(cur)
	for pos > 0 && node.less(cur[pos-1]) {
		pos--
	}

	next := make([]validNode, 0, len(cur)+1)
	next = append(next, cur[:pos]...)
	next = append(next, node)
	next = append(next, cur[pos:]...)

	idx.snapshot.Store(&next)
}

// unlink removes the node for blockIndex, if present, and publishes the new
// snapshot. Must be called under the writer lock. Reports whether a node
// was found.
func (idx *validIndex) unlink(blockIndex uint64) bool {
	cur := idx.Snapshot()

	pos := -1

	for i, n := range cur {
		if n.blockIndex == blockIndex {
			pos = i
			break
		}
	}

	if pos < 0 {
		return false
	}

	next := make([]validNode, 0, len(cur)-1)
	next = append(next, cur[:pos]...)
	next = append(next, cur[pos+1:]...)

	idx.snapshot.Store(&next)

	return true
}

// findByIndex performs a linear scan of a snapshot for blockIndex.
func findByIndex(snap []validNode, blockIndex uint64) (validNode, bool) {
	for _, n := range snap {
		if n.blockIndex == blockIndex {
			return n, true
		}
	}

	return validNode{}, false
}

// findNextAfter returns the first node in snap (ascending nsec order) whose
// nsec is strictly greater than expectedNsec.
func findNextAfter(snap []validNode, expectedNsec uint64) (validNode, bool) {
	for _, n := range snap {
		if n.nsec > expectedNsec {
			return n, true
		}
	}

	return validNode{}, false
}
