//go:build unix

package track

import "golang.org/x/sys/unix"

// MmapHeap backs every allocation with its own anonymous private mapping, outside the Go heap.
type MmapHeap struct{}

func newMmapHeap() Heap { return MmapHeap{} }

func (MmapHeap) Allocate(size int) ([]byte, error) {
	if size <= 0 {
		return nil, ErrInvalidSize
	}
	return unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
}

func (MmapHeap) Release(b []byte) error {
	return unix.Munmap(b)
}

func (MmapHeap) Name() string { return "mmap" }
