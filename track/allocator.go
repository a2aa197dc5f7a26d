// Package track provides a leak tracking allocator for host owned memory.
//
// Every live allocation is recorded with its size and call site. At shutdown or at a full reset
// the remaining records are reported as leaks and cleared, reporting never fails the caller.
package track

import (
	"fmt"
	"path/filepath"
	"runtime"
	"sync"
	"unsafe"

	"github.com/docker/go-units"
	"github.com/google/btree"
	"go.uber.org/zap"
)

type (
	// Site is the source location of an allocation.
	Site struct {
		File string
		Line int
		Func string
	}
	// Leak is an allocation still recorded at a check point.
	Leak struct {
		Addr uintptr
		Size int
		Site Site
	}
	record struct {
		addr uintptr
		size int
		site Site
		buf  []byte // nil for records made by Record
	}
	// Allocator routes allocations to a Heap and keeps a record of each one until it is freed.
	Allocator struct {
		mu   sync.Mutex
		heap Heap
		live *btree.BTreeG[record]
	}
)

func byAddr(a, b record) bool { return a.addr < b.addr }

// New create an Allocator over heap, GoHeap when nil.
func New(heap Heap) *Allocator {
	if heap == nil {
		heap = GoHeap{}
	}
	return &Allocator{heap: heap, live: btree.NewG[record](16, byAddr)}
}

// Heap in use.
func (a *Allocator) Heap() Heap {
	return a.heap
}

// Alloc size zeroed bytes and record the caller as the allocation site.
// It panics when the heap can not serve the request.
func (a *Allocator) Alloc(size int) unsafe.Pointer {
	buf, err := a.heap.Allocate(size)
	if err != nil {
		panic(fmt.Sprintf("allocate %d bytes from %s heap: %v", size, a.heap.Name(), err))
	}
	p := unsafe.Pointer(&buf[0])
	a.mu.Lock()
	a.live.ReplaceOrInsert(record{addr: uintptr(p), size: size, site: Caller(1), buf: buf})
	a.mu.Unlock()
	return p
}

// Free release memory returned by Alloc. Freeing an untracked pointer panics.
func (a *Allocator) Free(p unsafe.Pointer) {
	a.mu.Lock()
	r, ok := a.live.Delete(record{addr: uintptr(p)})
	a.mu.Unlock()
	if !ok {
		panic(fmt.Sprintf("free of untracked pointer %#x", uintptr(p)))
	}
	if r.buf != nil {
		if err := a.heap.Release(r.buf); err != nil {
			panic(fmt.Sprintf("release %#x to %s heap: %v", r.addr, a.heap.Name(), err))
		}
	}
}

// Record an allocation made elsewhere. An existing record at addr is replaced.
func (a *Allocator) Record(addr uintptr, size int, site Site) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.live.ReplaceOrInsert(record{addr: addr, size: size, site: site})
}

// Forget the record at addr, report whether there was one.
func (a *Allocator) Forget(addr uintptr) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.live.Delete(record{addr: addr})
	return ok
}

// Leaks enumerate the records still alive, in address order.
func (a *Allocator) Leaks() []Leak {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Leak, 0, a.live.Len())
	a.live.Ascend(func(r record) bool {
		out = append(out, Leak{Addr: r.addr, Size: r.size, Site: r.site})
		return true
	})
	return out
}

// Len is the count of live records.
func (a *Allocator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.live.Len()
}

// Bytes is the sum of live record sizes.
func (a *Allocator) Bytes() (n int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.live.Ascend(func(r record) bool {
		n += r.size
		return true
	})
	return
}

// Clear drop every record. Leaked memory is not released, something may still point into it.
func (a *Allocator) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.live.Clear(false)
}

// Report log every leak under the label when, clear the records and return the leak count.
func (a *Allocator) Report(log *zap.SugaredLogger, when string) int {
	leaks := a.Leaks()
	if log != nil && len(leaks) > 0 {
		total := 0
		for _, l := range leaks {
			total += l.Size
			log.Warnw("memory leak", "at", when, "site", l.Site.String(), "size", units.BytesSize(float64(l.Size)), "addr", fmt.Sprintf("%#x", l.Addr))
		}
		log.Warnw("leaks detected", "at", when, "count", len(leaks), "total", units.BytesSize(float64(total)))
	}
	a.Clear()
	return len(leaks)
}

// Caller resolve the site skip frames above the function calling Caller.
func Caller(skip int) Site {
	pc, file, line, ok := runtime.Caller(skip + 1)
	if !ok {
		return Site{File: "?"}
	}
	s := Site{File: file, Line: line}
	if f := runtime.FuncForPC(pc); f != nil {
		s.Func = f.Name()
	}
	return s
}

func (s Site) String() string {
	if s.Func == "" {
		return fmt.Sprintf("%s:%d", filepath.Base(s.File), s.Line)
	}
	return fmt.Sprintf("%s:%d %s", filepath.Base(s.File), s.Line, s.Func)
}
