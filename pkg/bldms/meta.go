package bldms

// metaEntry is one data block's in-memory metadata, mirroring its on-disk
// header.
type metaEntry struct {
	valid      bool
	validBytes uint16
	nsec       uint64
}

// metaTable is a fixed-length array, one entry per data block. It is
// populated at bind time and thereafter mutated only by the writer path
// under the engine's writer lock. Readers never consult it; it exists so
// the writer can find a free block in O(N) and rewrite a persistent header
// deterministically on invalidate.
type metaTable struct {
	entries []metaEntry
}

func newMetaTable(n uint64) *metaTable {
	return &metaTable{entries: make([]metaEntry, n)}
}

func (t *metaTable) len() uint64 {
	return uint64(len(t.entries))
}

func (t *metaTable) set(i uint64, e metaEntry) {
	t.entries[i] = e
}

// findFree scans starting at (start+1) mod N, wrapping, for the first
// invalid entry. Returns the index and true, or false if the table is full.
func (t *metaTable) findFree(start uint64) (uint64, bool) {
	n := t.len()
	if n == 0 {
		return 0, false
	}

	for step := uint64(1); step <= n; step++ {
		i := (start + step) % n
		if !t.entries[i].valid {
			return i, true
		}
	}

	return 0, false
}
