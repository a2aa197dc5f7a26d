package hotreload

import (
	"fmt"
	"os"
	"strings"
	"unsafe"

	"github.com/pkujhd/goloader"
	"go.uber.org/zap"
)

type (
	//Sym is a simple alias of uintptr.
	Sym uintptr
	// Image is one loaded code image.
	//
	// Fetched symbols stay valid until [Image.Close].
	Image interface {
		Fetch(sym string) (u Sym, ok bool) //fetch a symbol, which can cast to the desired type by [As]
		Close() error                      //release the image, the code must not be used after
	}
	// Opener opens a code image from an artifact on disk.
	Opener interface {
		Open(path string) (Image, error)
	}
	// ObjectOpener links go object files (.o) or archives (.a) into the running process by goloader.
	ObjectOpener struct {
		Symbols Symbols // host symbols, cloned for each image
		Package string  // package path of the module, default main
		Log     *zap.SugaredLogger
	}
	dynamic struct {
		file    string
		pkg     string
		symbols symbols
		linker  *goloader.Linker
		module  *goloader.CodeModule
		cells   map[string]*uintptr
		log     *zap.SugaredLogger
	}
)

// Open read, link and return the object file as an Image.
func (o ObjectOpener) Open(path string) (Image, error) {
	if o.Symbols == nil {
		return nil, ErrUninitialized
	}
	d := &dynamic{symbols: o.Symbols.Clone().(symbols), log: orNop(o.Log)}
	if err := d.Initialize(path, o.Package); err != nil {
		return nil, err
	}
	if err := d.Link(); err != nil {
		d.linker = nil
		return nil, err
	}
	return d, nil
}

func (s *dynamic) Initialize(file, pkg string) (err error) {
	if s.linker != nil {
		return ErrAlreadyInitialized
	}
	if pkg == "" {
		pkg = "main"
	}
	s.file = file
	s.pkg = pkg
	if s.linker, err = goloader.ReadObj(file, pkg); err != nil {
		return
	}
	s.log.Debugw("create linker", "file", file, "pkg", pkg)
	return
}

func (s *dynamic) Link() (err error) {
	if s.linker == nil {
		return ErrUninitialized
	}
	if s.module != nil {
		return ErrLinked
	}
	if s.module, err = goloader.Load(s.linker, s.symbols); err != nil {
		return
	}
	s.cells = make(map[string]*uintptr)
	s.log.Debugw("create module", "file", s.file, "symbols", len(s.module.Syms))
	return
}

// MissingSymbols dump the host symbols the image requires but the host does not provide.
func (s *dynamic) MissingSymbols() []string {
	if s.linker == nil {
		panic(ErrUninitialized)
	}
	return goloader.UnresolvedSymbols(s.linker, s.symbols)
}

func (s *dynamic) Fetch(sym string) (u Sym, ok bool) {
	if s.module == nil {
		return
	}
	sym = checkPackage(sym)
	if c, found := s.cells[sym]; found {
		return Sym(unsafe.Pointer(c)), true
	}
	var p uintptr
	p, ok = s.module.Syms[sym]
	if !ok {
		return
	}
	s.log.Debugw("found symbol", "sym", sym, "addr", fmt.Sprintf("%x", p))
	c := new(uintptr)
	*c = p
	s.cells[sym] = c
	return Sym(unsafe.Pointer(c)), true
}

func checkPackage(sym string) string {
	if strings.IndexByte(sym, '.') < 0 {
		return "main." + sym
	}
	return sym
}

func (s *dynamic) Close() (err error) {
	if s.module == nil {
		return ErrUninitialized
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("unload %s: %v", s.file, r)
		}
	}()
	s.log.Debugw("free module", "file", s.file)
	_ = os.Stdout.Sync()
	m := s.module
	s.module = nil
	s.cells = nil
	s.linker = nil
	m.Unload()
	return
}

// As convert fetched Sym to contract type
func As[T any](ptr Sym) (x T) {
	px := (*T)(unsafe.Pointer(&ptr))
	x = *px
	return
}

// SymOf is the reverse of [As] for function values, it makes a Sym from a func value.
//
// The func value must stay reachable while the Sym is in use.
func SymOf[T any](f T) Sym {
	return *(*Sym)(unsafe.Pointer(&f))
}
