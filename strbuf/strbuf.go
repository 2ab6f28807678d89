// Package strbuf implements an owning, growable byte string with a lazily
// computed FNV-1a hash. Buffers are the keys of the header table and the
// accumulators for url and header fragments.
//
// A Buffer has exactly one owner. Copy before sharing.
package strbuf

import (
	"bytes"
	"errors"
	"fmt"
	"hash/fnv"
	"unsafe"

	"github.com/freekieb7/cobble/alloc"
)

var ErrEmpty = errors.New("strbuf: empty string")

// Buffer keeps one extra NUL byte after the data; it is never part of
// Bytes.
type Buffer struct {
	length int
	hash   uint64 // 0 means not computed
	data   []byte
	alloc  alloc.Allocator
}

// New copies b into a fresh buffer. It fails with ErrEmpty when b is empty.
func New(a alloc.Allocator, b []byte) (*Buffer, error) {
	if len(b) == 0 {
		return nil, ErrEmpty
	}
	buf := &Buffer{alloc: a}
	if err := buf.Append(b); err != nil {
		return nil, err
	}
	return buf, nil
}

// Newf builds a buffer from a format string.
func Newf(a alloc.Allocator, format string, args ...any) (*Buffer, error) {
	s := fmt.Sprintf(format, args...)
	if len(s) == 0 {
		return nil, ErrEmpty
	}
	buf := &Buffer{alloc: a}
	if err := buf.AppendString(s); err != nil {
		return nil, err
	}
	return buf, nil
}

// Copy returns a deep copy sharing the source allocator. The cached hash
// is carried over.
func (b *Buffer) Copy() (*Buffer, error) {
	if b.length == 0 {
		return nil, ErrEmpty
	}
	dst, err := New(b.alloc, b.Bytes())
	if err != nil {
		return nil, err
	}
	dst.hash = b.hash
	return dst, nil
}

func (b *Buffer) Len() int {
	return b.length
}

// Bytes returns the buffer contents. The slice is invalidated by the next
// mutation or Release.
func (b *Buffer) Bytes() []byte {
	if b.length == 0 {
		return nil
	}
	return b.data[:b.length]
}

func (b *Buffer) String() string {
	return string(b.Bytes())
}

// Append concatenates p onto the buffer. On failure the buffer is left
// unchanged.
func (b *Buffer) Append(p []byte) error {
	if len(p) == 0 {
		return nil
	}

	size := b.length + len(p) + 1
	if b.overlaps(p) {
		// p points into our own storage; growing in place could hand the
		// old block back to the allocator before p is read.
		grown, err := b.allocator().Alloc(size)
		if err != nil {
			return err
		}
		copy(grown, b.data[:b.length])
		copy(grown[b.length:], p)
		b.allocator().Free(b.data)
		b.data = grown
	} else {
		grown, err := b.allocator().Realloc(b.data, size)
		if err != nil {
			return err
		}
		b.data = grown
		copy(b.data[b.length:], p)
	}

	b.length += len(p)
	b.data[b.length] = 0
	b.hash = 0
	return nil
}

func (b *Buffer) AppendString(s string) error {
	return b.Append(unsafe.Slice(unsafe.StringData(s), len(s)))
}

// Concat appends the contents of src. Concat(b, b) doubles b.
func (b *Buffer) Concat(src *Buffer) error {
	return b.Append(src.Bytes())
}

// Hash returns the FNV-1a hash of the contents, computing it at most once
// per mutation.
func (b *Buffer) Hash() uint64 {
	if b.hash == 0 {
		h := fnv.New64a()
		h.Write(b.Bytes())
		b.hash = h.Sum64()
	}
	return b.hash
}

// Equal reports whether both buffers hold the same bytes.
func (b *Buffer) Equal(o *Buffer) bool {
	if b == o {
		return true
	}
	if b.length != o.length || b.Hash() != o.Hash() {
		return false
	}
	return bytes.Equal(b.Bytes(), o.Bytes())
}

// Release hands the storage back to the allocator. The buffer is empty
// afterwards.
func (b *Buffer) Release() {
	if b == nil {
		return
	}
	b.allocator().Free(b.data)
	b.data = nil
	b.length = 0
	b.hash = 0
}

func (b *Buffer) allocator() alloc.Allocator {
	if b.alloc == nil {
		b.alloc = alloc.Default()
	}
	return b.alloc
}

func (b *Buffer) overlaps(p []byte) bool {
	if cap(b.data) == 0 || len(p) == 0 {
		return false
	}
	start := uintptr(unsafe.Pointer(unsafe.SliceData(b.data)))
	end := start + uintptr(cap(b.data))
	at := uintptr(unsafe.Pointer(unsafe.SliceData(p)))
	return at >= start && at < end
}
