package hotreload

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unsafe"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type (
	// Handle is one loaded instance of the module artifact. It never changes after [Loader.Load].
	Handle struct {
		Path       string    // canonical artifact
		TempPath   string    // private copy the image was opened from
		ModTime    time.Time // modification time of Path when loaded
		Generation int
		Entry      EntryPoints
		image      Image
		unloaded   bool
	}
	// Unloader releases handles, implemented by [Loader].
	Unloader interface {
		Unload(h *Handle) error
	}
	// Loader loads module artifacts through an Opener.
	//
	// Every load works on a private copy of the artifact inside a session directory, the build
	// pipeline can rewrite the canonical path meanwhile.
	Loader struct {
		opener  Opener
		prefix  string
		session string
		log     *zap.SugaredLogger
	}
)

// NewLoader create a Loader, prefix is prepended to every entry point name and tempDir holds the
// session directory (os.TempDir when empty).
func NewLoader(opener Opener, prefix, tempDir string, log *zap.SugaredLogger) (*Loader, error) {
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	session := filepath.Join(tempDir, "hotreload-"+uuid.NewString())
	if err := os.MkdirAll(session, 0o755); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}
	return &Loader{opener: opener, prefix: prefix, session: session, log: orNop(log)}, nil
}

// Session is the directory private copies are written to.
func (l *Loader) Session() string {
	return l.session
}

// ModTime of the artifact on disk.
func (l *Loader) ModTime(path string) (time.Time, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return time.Time{}, &ArtifactNotFoundError{Path: path, Err: err}
	}
	return fi.ModTime(), nil
}

// Load copy the artifact at path to a private file, open it and bind all entry points.
func (l *Loader) Load(path string, generation int) (h *Handle, err error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, &ArtifactNotFoundError{Path: path, Err: err}
	}
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(filepath.Base(path), ext)
	stamp := time.Now().UnixNano()
	tmp := filepath.Join(l.session, fmt.Sprintf("%s_%d%s", base, stamp, ext))
	for _, serr := os.Stat(tmp); serr == nil; _, serr = os.Stat(tmp) {
		stamp++
		tmp = filepath.Join(l.session, fmt.Sprintf("%s_%d%s", base, stamp, ext))
	}
	if err = CopyFile(path, tmp, fi); err != nil {
		_ = os.Remove(tmp)
		return nil, &LoadIOError{Path: path, Op: "copy", Err: err}
	}
	img, err := l.opener.Open(tmp)
	if err != nil {
		_ = os.Remove(tmp)
		return nil, &LoadIOError{Path: path, Op: "open", Err: err}
	}
	entry, err := BindEntryPoints(img, l.prefix, path)
	if err != nil {
		if cerr := img.Close(); cerr != nil {
			l.log.Warnw("release rejected image", "path", path, "error", cerr)
		}
		_ = os.Remove(tmp)
		return nil, err
	}
	h = &Handle{
		Path:       path,
		TempPath:   tmp,
		ModTime:    fi.ModTime(),
		Generation: generation,
		Entry:      entry,
		image:      img,
	}
	l.log.Debugw("loaded module", "path", path, "copy", tmp, "generation", generation, "modtime", h.ModTime)
	return
}

// Unload release the image of h and remove its private copy.
// The returned *UnloadWarning is already logged, callers may ignore it.
func (l *Loader) Unload(h *Handle) error {
	if h == nil || h.unloaded {
		return nil
	}
	h.unloaded = true
	var err error
	if h.image != nil {
		if cerr := h.image.Close(); cerr != nil {
			err = &UnloadWarning{Path: h.Path, Generation: h.Generation, Err: cerr}
			l.log.Warnw("unload module", "path", h.Path, "generation", h.Generation, "error", cerr)
		}
	}
	if h.TempPath != "" {
		if rerr := os.Remove(h.TempPath); rerr != nil && !errors.Is(rerr, os.ErrNotExist) {
			l.log.Debugw("remove module copy", "path", h.TempPath, "error", rerr)
		}
	}
	l.log.Debugw("unloaded module", "path", h.Path, "generation", h.Generation)
	return err
}

// Close remove the session directory with any copies left behind.
func (l *Loader) Close() error {
	return os.RemoveAll(l.session)
}

// Loaded report whether the image of h is still mapped.
func (h *Handle) Loaded() bool {
	return h != nil && !h.unloaded
}

func (h *Handle) String() string {
	return fmt.Sprintf("generation %d of %s (%s)", h.Generation, h.Path, h.ModTime.Format(time.RFC3339Nano))
}

// State is the address of the opaque state owned by h's module.
func (h *Handle) State() unsafe.Pointer {
	return h.Entry.MemoryPointer()
}

// StateSize is the byte size of the opaque state reported by h's module.
func (h *Handle) StateSize() int {
	return h.Entry.MemorySize()
}
