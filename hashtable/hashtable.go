// Package hashtable is an open-addressing hash table keyed by strbuf
// buffers. Collisions are resolved with linear probing. There is no
// deletion, and therefore no tombstones: a lookup may stop as soon as it
// has scanned as many slots as there are live entries.
package hashtable

import (
	"errors"
	"iter"

	"github.com/freekieb7/cobble/strbuf"
)

const (
	DefaultCapacity   = 10
	DefaultLoadFactor = 0.75
)

var (
	ErrInvalidCapacity   = errors.New("hashtable: capacity must be positive")
	ErrInvalidLoadFactor = errors.New("hashtable: load factor must be in (0, 1]")
	ErrCapacityOverflow  = errors.New("hashtable: capacity overflow")
)

const notFound = -1

// Entry is a live slot. The table owns Key; ownership of Value is decided
// by the cleanup function passed to Release.
type Entry[V any] struct {
	Key   *strbuf.Buffer
	Value V
}

type Table[V any] struct {
	capacity   int
	length     int
	loadFactor float32
	entries    []Entry[V]
}

func New[V any](capacity int, loadFactor float32) (*Table[V], error) {
	if capacity <= 0 {
		return nil, ErrInvalidCapacity
	}
	if !(loadFactor > 0 && loadFactor <= 1) {
		return nil, ErrInvalidLoadFactor
	}

	return &Table[V]{
		capacity:   capacity,
		loadFactor: loadFactor,
		entries:    make([]Entry[V], capacity),
	}, nil
}

func (t *Table[V]) Len() int {
	return t.length
}

func (t *Table[V]) Cap() int {
	return t.capacity
}

func (t *Table[V]) LoadFactor() float32 {
	return t.loadFactor
}

// Set inserts or updates key. The table stores its own copy of key; the
// caller keeps ownership of the buffer it passed in. Updating an existing
// key replaces the value in place.
func (t *Table[V]) Set(key *strbuf.Buffer, value V) error {
	if index := t.find(key); index != notFound {
		t.entries[index].Value = value
		return nil
	}

	owned, err := key.Copy()
	if err != nil {
		return err
	}

	if t.exceedsLoad(t.length + 1) {
		if err := t.grow(t.length + 1); err != nil {
			owned.Release()
			return err
		}
	}

	insert(t.entries, Entry[V]{Key: owned, Value: value})
	t.length++
	return nil
}

func (t *Table[V]) Has(key *strbuf.Buffer) bool {
	return t.find(key) != notFound
}

// Get returns the live entry for key, or nil. The pointer stays valid
// until the table grows.
func (t *Table[V]) Get(key *strbuf.Buffer) *Entry[V] {
	index := t.find(key)
	if index == notFound {
		return nil
	}
	return &t.entries[index]
}

// Release frees every key, passes every value to cleanup when it is not
// nil, and drops the backing array. The table is empty afterwards.
func (t *Table[V]) Release(cleanup func(V)) {
	for i := range t.entries {
		entry := &t.entries[i]
		if entry.Key == nil {
			continue
		}
		entry.Key.Release()
		if cleanup != nil {
			cleanup(entry.Value)
		}
	}
	t.entries = nil
	t.capacity = 0
	t.length = 0
}

// All yields every live entry in slot order.
func (t *Table[V]) All() iter.Seq2[*strbuf.Buffer, V] {
	return func(yield func(*strbuf.Buffer, V) bool) {
		it := t.Iterator()
		for it.Next() {
			entry := it.Entry()
			if !yield(entry.Key, entry.Value) {
				return
			}
		}
	}
}

func (t *Table[V]) exceedsLoad(length int) bool {
	return float64(length) > float64(t.capacity)*float64(t.loadFactor)
}

func (t *Table[V]) find(key *strbuf.Buffer) int {
	if t.capacity == 0 {
		return notFound
	}

	index := int(key.Hash() % uint64(t.capacity))
	for i := 0; i < t.length && t.entries[index].Key != nil; i++ {
		if t.entries[index].Key.Equal(key) {
			return index
		}
		if index++; index >= t.capacity {
			index = 0
		}
	}
	return notFound
}

// grow rehashes into the smallest capacity on the 1.5x growth ladder that
// holds length entries under the load factor. On error the table is left
// untouched.
func (t *Table[V]) grow(length int) error {
	capacity := t.capacity
	for {
		next, ok := nextCapacity(capacity)
		if !ok {
			return ErrCapacityOverflow
		}
		capacity = next
		if float64(length) <= float64(capacity)*float64(t.loadFactor) {
			break
		}
	}

	entries := make([]Entry[V], capacity)
	for _, entry := range t.entries {
		if entry.Key != nil {
			insert(entries, entry)
		}
	}

	t.entries = entries
	t.capacity = capacity
	return nil
}

func nextCapacity(capacity int) (int, bool) {
	next := capacity + capacity>>1
	if next == capacity {
		next = 2 * capacity
	}
	if next <= capacity {
		return capacity, false
	}
	return next, true
}

// insert places entry in the first free slot of its probe sequence. The
// caller guarantees a free slot exists.
func insert[V any](entries []Entry[V], entry Entry[V]) {
	capacity := len(entries)
	index := int(entry.Key.Hash() % uint64(capacity))
	for i := 0; i < capacity && entries[index].Key != nil; i++ {
		if index++; index >= capacity {
			index = 0
		}
	}
	entries[index] = entry
}
