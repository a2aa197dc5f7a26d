// Package game is a sample reloadable module.
//
//	compile -p game -o build/game.o testdata/game/game.go
//	host -a build/game.o -p game
//
// Edit greeting or the step and compile again, the running host picks it up and frames keeps counting.
// Adding a field to memory changes its size, the host then resets and starts from Init.
package game

import (
	"fmt"
	"unsafe"

	"github.com/ZenLiuCN/hotreload"
)

type memory struct {
	mem     hotreload.Allocator
	frames  int64
	x, y    float32
	restart bool
}

const greeting = "hello from game"

var g *memory

func Init(mem hotreload.Allocator) {
	g = (*memory)(mem.Alloc(MemorySize()))
	g.mem = mem
	fmt.Println(greeting, "init")
}

func Frame() {
	g.frames++
	if g.frames%60 == 0 {
		fmt.Println(greeting, g.frames, g.x, g.y)
	}
}

func Event(e *hotreload.Event) {
	switch e.Kind {
	case hotreload.EventMouseMove:
		g.x, g.y = e.X, e.Y
	case hotreload.EventKeyDown:
		if e.Code == 'R' {
			g.restart = true
		}
	}
}

func Cleanup() {
	mem := g.mem
	mem.Free(unsafe.Pointer(g))
	g = nil
}

func MemoryPointer() unsafe.Pointer {
	return unsafe.Pointer(g)
}

func MemorySize() int {
	return int(unsafe.Sizeof(memory{}))
}

func HotReloaded(old unsafe.Pointer) {
	g = (*memory)(old)
}

func ForceRestart() bool {
	return g != nil && g.restart
}
