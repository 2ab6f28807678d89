package alloc

import (
	"sync/atomic"
	"unsafe"
)

// Counter tracks the blocks and bytes currently handed out by the wrapped
// allocator. Bytes are counted by capacity.
type Counter struct {
	next   Allocator
	blocks atomic.Int64
	bytes  atomic.Int64
	allocs atomic.Int64
}

func NewCounter(next Allocator) *Counter {
	if next == nil {
		next = Heap{}
	}
	return &Counter{next: next}
}

func (c *Counter) Alloc(size int) ([]byte, error) {
	buf, err := c.next.Alloc(size)
	if err != nil {
		return nil, err
	}
	c.track(buf)
	return buf, nil
}

func (c *Counter) Realloc(buf []byte, size int) ([]byte, error) {
	grown, err := c.next.Realloc(buf, size)
	if err != nil {
		return nil, err
	}
	// Resized in place: same block, nothing to account.
	if cap(grown) == cap(buf) && unsafe.SliceData(grown) == unsafe.SliceData(buf) {
		return grown, nil
	}
	c.untrack(buf)
	c.track(grown)
	return grown, nil
}

func (c *Counter) Free(buf []byte) {
	c.untrack(buf)
	c.next.Free(buf)
}

// Live reports the blocks and bytes allocated but not yet freed.
func (c *Counter) Live() (blocks, bytes int64) {
	return c.blocks.Load(), c.bytes.Load()
}

// Allocations reports how many blocks were handed out in total.
func (c *Counter) Allocations() int64 {
	return c.allocs.Load()
}

func (c *Counter) track(buf []byte) {
	if cap(buf) == 0 {
		return
	}
	c.blocks.Add(1)
	c.bytes.Add(int64(cap(buf)))
	c.allocs.Add(1)
}

func (c *Counter) untrack(buf []byte) {
	if cap(buf) == 0 {
		return
	}
	c.blocks.Add(-1)
	c.bytes.Add(-int64(cap(buf)))
}
