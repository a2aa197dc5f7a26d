package hotreload

import (
	"errors"
	"maps"

	"github.com/ZenLiuCN/fn"
	"github.com/pkujhd/goloader"
)

// Symbols contains the host symbols a module image links against.
//
// Each reload links a new image against a clone, so symbols of one generation never leak into the next.
type Symbols interface {
	Symbols() []string //resolved symbols
	Clone() Symbols    //copy of the table, used to link one image
	internal()
}

type symbols map[string]uintptr

// NewSymbols create a Symbols with the runtime symbols of the host executable and the host types
// shared with modules ([Event] and [Allocator]). Extra types can be registered with [RegisterTypes].
func NewSymbols() (Symbols, error) {
	s := make(symbols)
	if err := goloader.RegSymbol(s); err != nil {
		return nil, err
	}
	var ev *Event
	var mem Allocator
	goloader.RegTypes(s, ev, &mem)
	return s, nil
}

// RegisterTypes make host types visible to module images linked with sym.
func RegisterTypes(sym Symbols, types ...any) {
	goloader.RegTypes(sym.(symbols), types...)
}

// RegisterSo add symbols of a shared library to sym.
func RegisterSo(sym Symbols, path string) error {
	return goloader.RegSymbolWithSo(sym.(symbols), path)
}

// Symbols dump symbol names inside Symbol
func (s symbols) Symbols() []string {
	return fn.MapKeys(s)
}

func (s symbols) Clone() Symbols {
	return maps.Clone(s)
}

func (s symbols) internal() {}

var (
	// ErrMissingSymbol occurs when can't found a symbol.
	ErrMissingSymbol = errors.New("missing symbol")
	// ErrAlreadyInitialized occurs when a Dynamic reinitializing.
	ErrAlreadyInitialized = errors.New("already initialized dynamic")
	// ErrLinked occurs when a Dynamic relinking.
	ErrLinked = errors.New("already linked")
	// ErrUninitialized occurs use or link a Dynamic before initialized.
	ErrUninitialized = errors.New("module not initialized")
	// ErrNoActiveModule occurs when the runtime is used before the first load succeeded.
	ErrNoActiveModule = errors.New("no active module")
)
