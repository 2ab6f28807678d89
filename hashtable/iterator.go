package hashtable

// Iterator walks the backing array in index order. Mutating the table
// while iterating gives no guarantees.
type Iterator[V any] struct {
	table *Table[V]
	index int
	entry *Entry[V]
}

func (t *Table[V]) Iterator() Iterator[V] {
	return Iterator[V]{table: t}
}

// Next advances to the next live entry and reports whether there was one.
func (it *Iterator[V]) Next() bool {
	for it.index < len(it.table.entries) {
		entry := &it.table.entries[it.index]
		it.index++
		if entry.Key != nil {
			it.entry = entry
			return true
		}
	}
	it.entry = nil
	return false
}

func (it *Iterator[V]) Entry() *Entry[V] {
	return it.entry
}
