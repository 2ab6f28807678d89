package alloc

// Pool serves allocations up to MaxClassSize from power-of-two size
// classes. Freed blocks go back to their class's free list; when the list
// is full the block is left to the GC.
type Pool struct {
	classes [numClasses]freeList
}

func NewPool() *Pool {
	return &Pool{}
}

func (p *Pool) Alloc(size int) ([]byte, error) {
	if size < 0 {
		return nil, ErrInvalidSize
	}
	if size == 0 {
		return nil, nil
	}
	if size > MaxClassSize {
		return make([]byte, size), nil
	}

	idx := classIndex(size)
	if buf, ok := p.classes[idx].pop(); ok {
		return buf[:size], nil
	}
	return make([]byte, size, 1<<(idx+minClassShift)), nil
}

func (p *Pool) Realloc(buf []byte, size int) ([]byte, error) {
	return realloc(p, buf, size)
}

func (p *Pool) Free(buf []byte) {
	c := cap(buf)
	if c < MinClassSize || c > MaxClassSize || c&(c-1) != 0 {
		return
	}
	p.classes[classIndex(c)].push(buf[:c])
}

// Idle reports how many freed blocks of the class serving size are kept
// for reuse.
func (p *Pool) Idle(size int) int {
	if size <= 0 || size > MaxClassSize {
		return 0
	}
	return p.classes[classIndex(size)].len()
}
