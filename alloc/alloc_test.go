package alloc_test

import (
	"testing"

	"github.com/freekieb7/cobble/alloc"
	"github.com/freekieb7/cobble/test"
)

func TestGoodSize(t *testing.T) {
	cases := []struct {
		size, want int
	}{
		{0, 0},
		{1, 16},
		{16, 16},
		{17, 32},
		{1000, 1024},
		{65536, 65536},
		{65537, 65537},
	}

	for _, c := range cases {
		got := alloc.GoodSize(c.size)
		test.AssertEqual(t, c.want, got)
		test.AssertTrue(t, got >= c.size, "good size smaller than requested")
	}
}

func TestPoolReusesFreedBlocks(t *testing.T) {
	p := alloc.NewPool()

	buf, err := p.Alloc(100)
	test.AssertNoError(t, err)
	test.AssertEqual(t, 100, len(buf))
	test.AssertEqual(t, 128, cap(buf))

	buf[0] = 'x'
	p.Free(buf)

	again, err := p.Alloc(120)
	test.AssertNoError(t, err)
	test.AssertEqual(t, 120, len(again))
	test.AssertTrue(t, &again[0] == &buf[0], "expected freed block to be reused")
}

func TestReallocPreservesPrefix(t *testing.T) {
	for name, a := range map[string]alloc.Allocator{"heap": alloc.Heap{}, "pool": alloc.NewPool()} {
		t.Run(name, func(t *testing.T) {
			buf, err := a.Alloc(4)
			test.AssertNoError(t, err)
			copy(buf, "abcd")

			buf, err = a.Realloc(buf, 300)
			test.AssertNoError(t, err)
			test.AssertEqual(t, 300, len(buf))
			test.AssertBytes(t, []byte("abcd"), buf[:4])

			buf, err = a.Realloc(buf, 2)
			test.AssertNoError(t, err)
			test.AssertBytes(t, []byte("ab"), buf)

			_, err = a.Realloc(buf, -1)
			test.AssertErrorIs(t, err, alloc.ErrInvalidSize)
		})
	}
}

func TestCounterTracksLiveBlocks(t *testing.T) {
	c := alloc.NewCounter(alloc.NewPool())

	a, _ := c.Alloc(10)
	b, _ := c.Alloc(40)
	blocks, bytes := c.Live()
	test.AssertEqual(t, int64(2), blocks)
	test.AssertEqual(t, int64(16+64), bytes)

	b, _ = c.Realloc(b, 100)
	_, bytes = c.Live()
	test.AssertEqual(t, int64(16+128), bytes)

	c.Free(a)
	c.Free(b)
	c.Free(nil)
	blocks, bytes = c.Live()
	test.AssertEqual(t, int64(0), blocks)
	test.AssertEqual(t, int64(0), bytes)
	test.AssertEqual(t, int64(3), c.Allocations())
}

func TestCounterInPlaceReallocIsNotAnAllocation(t *testing.T) {
	c := alloc.NewCounter(alloc.NewPool())

	buf, err := c.Alloc(10)
	test.AssertNoError(t, err)

	buf, err = c.Realloc(buf, 16) // fits the 16 byte class
	test.AssertNoError(t, err)
	buf, err = c.Realloc(buf, 4)
	test.AssertNoError(t, err)

	test.AssertEqual(t, int64(1), c.Allocations())
	blocks, bytes := c.Live()
	test.AssertEqual(t, int64(1), blocks)
	test.AssertEqual(t, int64(16), bytes)

	c.Free(buf)
	blocks, _ = c.Live()
	test.AssertEqual(t, int64(0), blocks)
}

func TestLimitFailsWithoutSideEffects(t *testing.T) {
	l := alloc.NewLimit(alloc.NewPool(), 64)

	buf, err := l.Alloc(32)
	test.AssertNoError(t, err)
	copy(buf, "payload")

	_, err = l.Alloc(64)
	test.AssertErrorIs(t, err, alloc.ErrOutOfMemory)

	same, err := l.Realloc(buf, 200)
	test.AssertErrorIs(t, err, alloc.ErrOutOfMemory)
	test.AssertTrue(t, same == nil, "failed realloc must not return a buffer")
	test.AssertBytes(t, []byte("payload"), buf[:7])
	test.AssertEqual(t, int64(32), l.Used())

	l.Free(buf)
	test.AssertEqual(t, int64(0), l.Used())
}

func TestPoolKeepsBoundedFreeList(t *testing.T) {
	p := alloc.NewPool()
	test.AssertEqual(t, 0, p.Idle(100))

	blocks := make([][]byte, 100)
	for i := range blocks {
		blocks[i], _ = p.Alloc(100)
	}
	for _, b := range blocks {
		p.Free(b)
	}
	test.AssertEqual(t, 64, p.Idle(100))

	// Blocks past the bound were dropped; the last one kept comes back first.
	reused, err := p.Alloc(120)
	test.AssertNoError(t, err)
	test.AssertEqual(t, 128, cap(reused))
	test.AssertTrue(t, &reused[0] == &blocks[63][0], "expected the most recently kept block")
	test.AssertEqual(t, 63, p.Idle(100))

	p.Free(make([]byte, 100)) // not a class size
	test.AssertEqual(t, 63, p.Idle(100))
}
