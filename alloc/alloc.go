// Package alloc provides the allocator contract used for every growable
// byte buffer in cobble: read buffers, string buffers and request bodies.
//
// An Allocator behaves like malloc/realloc/free, except that failure is an
// error value instead of a nil pointer. Wrapping allocators (Counter, Limit)
// make resource accounting and allocation failure observable.
package alloc

import (
	"errors"
	"math/bits"
	"sync/atomic"
)

var (
	ErrOutOfMemory = errors.New("alloc: out of memory")
	ErrInvalidSize = errors.New("alloc: invalid size")
)

const (
	minClassShift = 4  // 16 B
	maxClassShift = 16 // 64 KiB
	MinClassSize  = 1 << minClassShift
	MaxClassSize  = 1 << maxClassShift
	numClasses    = maxClassShift - minClassShift + 1
)

type Allocator interface {
	// Alloc returns a slice with len == size. The contents are unspecified.
	Alloc(size int) ([]byte, error)
	// Realloc resizes buf to size, preserving the first min(len(buf), size)
	// bytes. On error buf is left untouched and still owned by the caller.
	Realloc(buf []byte, size int) ([]byte, error)
	// Free returns buf to the allocator. Free(nil) is a no-op.
	Free(buf []byte)
}

// GoodSize rounds size up to the size class the pooled allocator would
// serve it from. Sizes above MaxClassSize are returned unchanged.
func GoodSize(size int) int {
	if size <= 0 {
		return 0
	}
	if size > MaxClassSize {
		return size
	}
	return 1 << classShift(size)
}

func classShift(size int) int {
	shift := bits.Len(uint(size - 1))
	if shift < minClassShift {
		shift = minClassShift
	}
	return shift
}

func classIndex(size int) int {
	return classShift(size) - minClassShift
}

// Heap allocates straight from the Go heap and leaves reclamation to the GC.
type Heap struct{}

func (Heap) Alloc(size int) ([]byte, error) {
	if size < 0 {
		return nil, ErrInvalidSize
	}
	if size == 0 {
		return nil, nil
	}
	return make([]byte, size), nil
}

func (h Heap) Realloc(buf []byte, size int) ([]byte, error) {
	return realloc(h, buf, size)
}

func (Heap) Free([]byte) {}

// realloc implements Realloc in terms of Alloc and Free.
func realloc(a Allocator, buf []byte, size int) ([]byte, error) {
	switch {
	case size < 0:
		return nil, ErrInvalidSize
	case buf == nil:
		return a.Alloc(size)
	case size == 0:
		a.Free(buf)
		return nil, nil
	case size <= cap(buf):
		return buf[:size], nil
	}

	grown, err := a.Alloc(size)
	if err != nil {
		return nil, err
	}
	copy(grown, buf)
	a.Free(buf)
	return grown, nil
}

type holder struct {
	a Allocator
}

var defaultAllocator atomic.Pointer[holder]

func init() {
	defaultAllocator.Store(&holder{a: NewPool()})
}

// Default returns the process-wide allocator.
func Default() Allocator {
	return defaultAllocator.Load().a
}

// SetDefault replaces the process-wide allocator. It is meant to be called
// once during process start, before any buffer has been allocated.
func SetDefault(a Allocator) {
	if a == nil {
		a = NewPool()
	}
	defaultAllocator.Store(&holder{a: a})
}
