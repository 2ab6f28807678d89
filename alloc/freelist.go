package alloc

import "sync"

// maxFreeBlocks bounds how many blocks one size class keeps.
const maxFreeBlocks = 64

// freeList is a bounded LIFO stack of same-class blocks. The most
// recently freed block is handed out first while it is still warm.
type freeList struct {
	mu     sync.Mutex
	blocks [][]byte
}

// push keeps buf for reuse and reports false when the list is full.
func (l *freeList) push(buf []byte) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.blocks) == maxFreeBlocks {
		return false
	}
	l.blocks = append(l.blocks, buf)
	return true
}

func (l *freeList) pop() ([]byte, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := len(l.blocks)
	if n == 0 {
		return nil, false
	}
	buf := l.blocks[n-1]
	l.blocks[n-1] = nil
	l.blocks = l.blocks[:n-1]
	return buf, true
}

func (l *freeList) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.blocks)
}
