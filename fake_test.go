package hotreload

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
	"unsafe"

	"github.com/ZenLiuCN/fn"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

const testPrefix = "game."

type (
	// build is what the fake compiler produces for the next Open.
	build struct {
		size     int
		missing  []string // entry points left out
		openErr  error
		closeErr error
		leak     bool // Cleanup keeps the state allocated
	}
	// fakeImage behaves like a linked module: its own copy of the package globals.
	fakeImage struct {
		build
		w       *world
		syms    map[string]Sym
		keep    []any
		g       unsafe.Pointer
		closes  int
		frames  int
		events  []*Event
		restart bool
		calls   []string
	}
	// world is what survives inside the opaque state across images.
	world struct {
		mem Allocator
	}
	fakeOpener struct {
		next   build
		w      *world
		images []*fakeImage
	}
)

func (o *fakeOpener) Open(string) (Image, error) {
	if o.next.openErr != nil {
		return nil, o.next.openErr
	}
	im := newFakeImage(o.next, o.w)
	o.images = append(o.images, im)
	return im, nil
}

func (o *fakeOpener) last() *fakeImage {
	return o.images[len(o.images)-1]
}

func newFakeImage(b build, w *world) *fakeImage {
	im := &fakeImage{build: b, w: w, syms: make(map[string]Sym)}
	add := func(name string, s Sym, f any) {
		for _, m := range b.missing {
			if m == name {
				return
			}
		}
		im.keep = append(im.keep, f)
		im.syms[testPrefix+name] = s
	}
	initFn := func(mem Allocator) {
		im.calls = append(im.calls, "init")
		w.mem = mem
		im.g = mem.Alloc(b.size)
	}
	frameFn := func() {
		im.frames++
		*(*int64)(im.g) += 1
	}
	eventFn := func(e *Event) { im.events = append(im.events, e) }
	cleanupFn := func() {
		im.calls = append(im.calls, "cleanup")
		if !b.leak {
			w.mem.Free(im.g)
		}
		im.g = nil
	}
	pointerFn := func() unsafe.Pointer { return im.g }
	sizeFn := func() int { return b.size }
	reloadedFn := func(old unsafe.Pointer) {
		im.calls = append(im.calls, "hot-reloaded")
		im.g = old
	}
	restartFn := func() bool { return im.restart }
	add(SymInit, SymOf(initFn), initFn)
	add(SymFrame, SymOf(frameFn), frameFn)
	add(SymEvent, SymOf(eventFn), eventFn)
	add(SymCleanup, SymOf(cleanupFn), cleanupFn)
	add(SymMemoryPointer, SymOf(pointerFn), pointerFn)
	add(SymMemorySize, SymOf(sizeFn), sizeFn)
	add(SymHotReloaded, SymOf(reloadedFn), reloadedFn)
	add(SymForceRestart, SymOf(restartFn), restartFn)
	return im
}

func (im *fakeImage) Fetch(sym string) (Sym, bool) {
	s, ok := im.syms[sym]
	return s, ok
}

func (im *fakeImage) Close() error {
	im.closes++
	return im.closeErr
}

func (im *fakeImage) counter() int64 {
	return *(*int64)(im.g)
}

var errBroken = errors.New("broken object")

// fixture is a runtime over a fake opener and a real artifact file whose mtime drives reloads.
type fixture struct {
	t        *testing.T
	artifact string
	stamp    time.Time
	opener   *fakeOpener
	rc       *RuntimeContext
	logs     *observer.ObservedLogs
}

func newFixture(t *testing.T) *fixture {
	dir := t.TempDir()
	f := &fixture{
		t:        t,
		artifact: filepath.Join(dir, "game.o"),
		stamp:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		opener:   &fakeOpener{next: build{size: 64}, w: new(world)},
	}
	fn.Panic(os.WriteFile(f.artifact, []byte("object"), 0o644))
	fn.Panic(os.Chtimes(f.artifact, f.stamp, f.stamp))
	core, logs := observer.New(zap.DebugLevel)
	f.logs = logs
	cfg := DefaultConfig()
	cfg.Artifact = f.artifact
	cfg.TempDir = dir
	f.rc = fn.Panic1(NewRuntimeContext(cfg, f.opener, zap.New(core).Sugar()))
	return f
}

// touch simulates a new build of the artifact.
func (f *fixture) touch() {
	f.stamp = f.stamp.Add(time.Second)
	fn.Panic(os.Chtimes(f.artifact, f.stamp, f.stamp))
}

func (f *fixture) start() {
	if err := f.rc.Orchestrator.Start(); err != nil {
		f.t.Fatalf("start: %v", err)
	}
}
