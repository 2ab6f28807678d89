package alloc

import "sync/atomic"

// Limit fails allocations that would push the live byte count over max.
// A failed allocation never changes the caller's buffers.
type Limit struct {
	next Allocator
	max  int64
	used atomic.Int64
}

func NewLimit(next Allocator, max int64) *Limit {
	if next == nil {
		next = Heap{}
	}
	return &Limit{next: next, max: max}
}

func (l *Limit) Alloc(size int) ([]byte, error) {
	if size < 0 {
		return nil, ErrInvalidSize
	}
	if !l.fits(int64(GoodSize(size))) {
		return nil, ErrOutOfMemory
	}

	buf, err := l.next.Alloc(size)
	if err != nil {
		return nil, err
	}
	l.used.Add(int64(cap(buf)))
	return buf, nil
}

func (l *Limit) Realloc(buf []byte, size int) ([]byte, error) {
	if size < 0 {
		return nil, ErrInvalidSize
	}
	if size > cap(buf) && !l.fits(int64(GoodSize(size)-cap(buf))) {
		return nil, ErrOutOfMemory
	}

	grown, err := l.next.Realloc(buf, size)
	if err != nil {
		return nil, err
	}
	l.used.Add(int64(cap(grown) - cap(buf)))
	return grown, nil
}

func (l *Limit) Free(buf []byte) {
	l.used.Add(-int64(cap(buf)))
	l.next.Free(buf)
}

// Used reports the bytes currently charged against the budget.
func (l *Limit) Used() int64 {
	return l.used.Load()
}

func (l *Limit) fits(n int64) bool {
	return l.used.Load()+n <= l.max
}
