package hotreload

import "unsafe"

// Names of the entry points every module version must export, without the package prefix.
const (
	SymInit          = "Init"
	SymFrame         = "Frame"
	SymEvent         = "Event"
	SymCleanup       = "Cleanup"
	SymMemoryPointer = "MemoryPointer"
	SymMemorySize    = "MemorySize"
	SymHotReloaded   = "HotReloaded"
	SymForceRestart  = "ForceRestart"
)

type (
	// EventKind classifies an [Event].
	EventKind uint32
	// Event is handed by the frame driver to the module's Event entry point.
	Event struct {
		Kind EventKind
		Code int32
		X, Y float32
		Text string
	}
	// Allocator is the host memory a module allocates its opaque state from.
	//
	// Memory returned by Alloc is raw, the garbage collector does not scan it.
	Allocator interface {
		Alloc(size int) unsafe.Pointer
		Free(p unsafe.Pointer)
	}
	// EntryPoints of one module image. Every module built from the same source has the same signatures.
	EntryPoints struct {
		Init          func(mem Allocator)
		Frame         func()
		Event         func(e *Event)
		Cleanup       func()
		MemoryPointer func() unsafe.Pointer
		MemorySize    func() int
		HotReloaded   func(old unsafe.Pointer)
		ForceRestart  func() bool
	}
)

const (
	EventNone EventKind = iota
	EventKeyDown
	EventKeyUp
	EventMouseMove
	EventMouseDown
	EventMouseUp
	EventResized
	EventText
	EventQuit
	EventRestart // handled by the host, asks for a full reset
)

var entryTable = []struct {
	name string
	bind func(e *EntryPoints, s Sym)
}{
	{SymInit, func(e *EntryPoints, s Sym) { e.Init = As[func(Allocator)](s) }},
	{SymFrame, func(e *EntryPoints, s Sym) { e.Frame = As[func()](s) }},
	{SymEvent, func(e *EntryPoints, s Sym) { e.Event = As[func(*Event)](s) }},
	{SymCleanup, func(e *EntryPoints, s Sym) { e.Cleanup = As[func()](s) }},
	{SymMemoryPointer, func(e *EntryPoints, s Sym) { e.MemoryPointer = As[func() unsafe.Pointer](s) }},
	{SymMemorySize, func(e *EntryPoints, s Sym) { e.MemorySize = As[func() int](s) }},
	{SymHotReloaded, func(e *EntryPoints, s Sym) { e.HotReloaded = As[func(unsafe.Pointer)](s) }},
	{SymForceRestart, func(e *EntryPoints, s Sym) { e.ForceRestart = As[func() bool](s) }},
}

// EntryNames list the full symbol names of all entry points under prefix.
func EntryNames(prefix string) []string {
	out := make([]string, len(entryTable))
	for i, ent := range entryTable {
		out[i] = prefix + ent.name
	}
	return out
}

// BindEntryPoints resolve every entry point of img under prefix.
// All absent names are collected into one [SymbolResolutionError].
func BindEntryPoints(img Image, prefix, path string) (e EntryPoints, err error) {
	var missing []string
	for _, ent := range entryTable {
		s, ok := img.Fetch(prefix + ent.name)
		if !ok {
			missing = append(missing, prefix+ent.name)
			continue
		}
		ent.bind(&e, s)
	}
	if len(missing) > 0 {
		return EntryPoints{}, &SymbolResolutionError{Path: path, Missing: missing}
	}
	return
}

func (k EventKind) String() string {
	switch k {
	case EventKeyDown:
		return "key-down"
	case EventKeyUp:
		return "key-up"
	case EventMouseMove:
		return "mouse-move"
	case EventMouseDown:
		return "mouse-down"
	case EventMouseUp:
		return "mouse-up"
	case EventResized:
		return "resized"
	case EventText:
		return "text"
	case EventQuit:
		return "quit"
	case EventRestart:
		return "restart"
	default:
		return "none"
	}
}
