//go:build !unix

package track

func newMmapHeap() Heap { return GoHeap{} }
