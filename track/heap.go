package track

import "errors"

// Heap is the backing memory of an [Allocator].
type Heap interface {
	Allocate(size int) ([]byte, error)
	Release(b []byte) error
	Name() string
}

// ErrInvalidSize occurs when allocating zero or negative bytes.
var ErrInvalidSize = errors.New("invalid allocation size")

// GoHeap allocates byte slices from the Go heap. Records of the allocator keep them reachable.
type GoHeap struct{}

func (GoHeap) Allocate(size int) ([]byte, error) {
	if size <= 0 {
		return nil, ErrInvalidSize
	}
	return make([]byte, size), nil
}

func (GoHeap) Release([]byte) error { return nil }

func (GoHeap) Name() string { return "go" }

// NewHeap select a Heap by name: go or mmap. mmap falls back to go where mappings are unsupported.
func NewHeap(name string) (Heap, error) {
	switch name {
	case "", "go":
		return GoHeap{}, nil
	case "mmap":
		return newMmapHeap(), nil
	default:
		return nil, errors.New("unknown heap: " + name)
	}
}
