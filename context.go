package hotreload

import (
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/ZenLiuCN/hotreload/track"
)

// RuntimeContext holds all mutable runtime state. It is owned by the process entry point and
// handed by reference to the shim; there is no package level state.
type RuntimeContext struct {
	Config       Config
	Log          *zap.SugaredLogger
	Memory       *track.Allocator
	Loader       *Loader
	Registry     *Registry
	Orchestrator *Orchestrator
}

// NewRuntimeContext wire the runtime for cfg over opener. Nothing is loaded yet.
func NewRuntimeContext(cfg Config, opener Opener, log *zap.SugaredLogger) (*RuntimeContext, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log = orNop(log)
	heap, err := track.NewHeap(cfg.Heap)
	if err != nil {
		return nil, err
	}
	loader, err := NewLoader(opener, cfg.Prefix(), cfg.TempDir, log)
	if err != nil {
		return nil, err
	}
	rc := &RuntimeContext{
		Config:   cfg,
		Log:      log,
		Memory:   track.New(heap),
		Loader:   loader,
		Registry: NewRegistry(),
	}
	rc.Orchestrator = NewOrchestrator(cfg.Artifact, rc.Loader, rc.Registry, rc.Memory, log)
	return rc, nil
}

// Close the runtime: shutdown the module when one is active and remove the session directory.
func (rc *RuntimeContext) Close() (err error) {
	if rc.Orchestrator.Active() != nil {
		err = rc.Orchestrator.Shutdown()
	}
	return multierr.Append(err, rc.Loader.Close())
}
