package hotreload

import (
	"fmt"
	"strings"
)

// ArtifactNotFoundError means the module artifact does not exist or can not be stat.
type ArtifactNotFoundError struct {
	Path string
	Err  error
}

func (e *ArtifactNotFoundError) Error() string {
	return fmt.Sprintf("artifact not found: %s: %v", e.Path, e.Err)
}

func (e *ArtifactNotFoundError) Unwrap() error { return e.Err }

// SymbolResolutionError means the module lacks one or more required entry points.
type SymbolResolutionError struct {
	Path    string
	Missing []string
}

func (e *SymbolResolutionError) Error() string {
	return fmt.Sprintf("resolve entry points of %s: missing %s", e.Path, strings.Join(e.Missing, ", "))
}

func (e *SymbolResolutionError) Unwrap() error { return ErrMissingSymbol }

// LoadIOError means copying or opening the artifact failed.
type LoadIOError struct {
	Path string
	Op   string // copy or open
	Err  error
}

func (e *LoadIOError) Error() string {
	return fmt.Sprintf("load %s: %s: %v", e.Path, e.Op, e.Err)
}

func (e *LoadIOError) Unwrap() error { return e.Err }

// UnloadWarning means releasing an image failed. It is logged, never fatal.
type UnloadWarning struct {
	Path       string
	Generation int
	Err        error
}

func (e *UnloadWarning) Error() string {
	return fmt.Sprintf("unload generation %d of %s: %v", e.Generation, e.Path, e.Err)
}

func (e *UnloadWarning) Unwrap() error { return e.Err }
