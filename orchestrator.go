package hotreload

import (
	"fmt"
	"time"
	"unsafe"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/ZenLiuCN/hotreload/track"
)

type (
	// Phase of the orchestrator state machine.
	Phase int
	// Outcome of one [Orchestrator.Tick].
	Outcome int
	// Stats counts orchestrator transitions since Start.
	Stats struct {
		Reloads    int
		FullResets int
		Failures   int
	}
	// Orchestrator owns the active module. Between ticks nothing else may keep its handle.
	Orchestrator struct {
		loader     *Loader
		registry   *Registry
		mem        *track.Allocator
		log        *zap.SugaredLogger
		path       string
		active     *Handle
		generation int
		phase      Phase
		reset      bool
		failedAt   time.Time
		stats      Stats
	}
)

const (
	Running Phase = iota
	Reloading
	FullResetting
)

const (
	OutcomeIdle      Outcome = iota // artifact unchanged
	OutcomeReloaded                 // swapped in place, state preserved
	OutcomeFullReset                // state discarded, new module initialized
	OutcomeFailed                   // candidate rejected, old module kept
)

// NewOrchestrator create an orchestrator of the artifact at path. [Orchestrator.Start] must succeed
// before ticking.
func NewOrchestrator(path string, loader *Loader, registry *Registry, mem *track.Allocator, log *zap.SugaredLogger) *Orchestrator {
	return &Orchestrator{
		loader:   loader,
		registry: registry,
		mem:      mem,
		log:      orNop(log),
		path:     path,
	}
}

// Start load generation 0 and initialize it. An error here is fatal to the host.
func (o *Orchestrator) Start() error {
	if o.active != nil {
		return ErrAlreadyInitialized
	}
	h, err := o.loader.Load(o.path, 0)
	if err != nil {
		return err
	}
	o.active = h
	o.generation = 0
	o.phase = Running
	h.Entry.Init(o.mem)
	o.log.Infow("module started", "path", o.path, "generation", 0, "state", h.StateSize())
	return nil
}

// Active handle, nil before Start or after Shutdown.
func (o *Orchestrator) Active() *Handle {
	return o.active
}

// Generation of the active module.
func (o *Orchestrator) Generation() int {
	return o.generation
}

func (o *Orchestrator) Phase() Phase {
	return o.phase
}

func (o *Orchestrator) Registry() *Registry {
	return o.registry
}

func (o *Orchestrator) Stats() Stats {
	return o.stats
}

// RequestReset make the next tick discard the state and restart the module, as the force restart
// entry point does. It is the fresh start input of an external process manager.
func (o *Orchestrator) RequestReset() {
	o.reset = true
}

// Tick detect a newer artifact or a restart request and swap the active module.
// No failure in here is fatal, the last good module keeps running.
func (o *Orchestrator) Tick() Outcome {
	if o.active == nil {
		return OutcomeIdle
	}
	force := o.reset || o.active.Entry.ForceRestart()
	mod, err := o.loader.ModTime(o.path)
	if err != nil {
		if !force {
			o.log.Debugw("stat artifact", "error", err)
			return OutcomeIdle
		}
		mod = o.active.ModTime
	}
	if !force && (mod.Equal(o.active.ModTime) || mod.Equal(o.failedAt)) {
		return OutcomeIdle
	}

	o.phase = Reloading
	next, err := o.loader.Load(o.path, o.generation+1)
	if err != nil {
		o.phase = Running
		o.failedAt = mod
		o.stats.Failures++
		o.log.Errorw("reload failed, keep running", "path", o.path, "generation", o.generation, "error", err)
		return OutcomeFailed
	}
	o.failedAt = time.Time{}

	oldSize, newSize := o.active.StateSize(), next.StateSize()
	if force || oldSize != newSize {
		o.phase = FullResetting
		o.log.Infow("full reset", "forced", force, "old_size", oldSize, "new_size", newSize)
		o.fullReset(next)
		o.reset = false
		o.stats.FullResets++
		o.phase = Running
		return OutcomeFullReset
	}

	old := o.active
	if err = o.registry.Retire(old); err != nil {
		o.log.Errorw("retire module", "error", err)
	}
	prev := old.State()
	if got := transfer(old, next); got != prev {
		o.log.Warnw("module reallocated state on reload", "passed", fmt.Sprintf("%p", prev), "got", fmt.Sprintf("%p", got))
	}
	o.active = next
	o.generation++
	o.stats.Reloads++
	o.phase = Running
	o.log.Infow("module reloaded", "generation", o.generation, "retained", o.registry.Len())
	return OutcomeReloaded
}

// transfer is the only place the opaque state crosses images: the new module adopts the old
// module's state and reports the address it now uses. Both images agree on the layout because
// they are built from the same source.
func transfer(old, next *Handle) unsafe.Pointer {
	next.Entry.HotReloaded(old.Entry.MemoryPointer())
	return next.Entry.MemoryPointer()
}

func (o *Orchestrator) fullReset(next *Handle) {
	o.active.Entry.Cleanup()
	if n := o.mem.Report(o.log, "full reset"); n > 0 {
		o.log.Warnw("module leaked memory across full reset", "generation", o.generation, "leaks", n)
	}
	_ = o.registry.DrainAndUnload(o.loader)
	_ = o.loader.Unload(o.active)
	o.active = next
	o.generation++
	next.Entry.Init(o.mem)
}

// Shutdown cleanup the active module, unload every image and report leaks.
func (o *Orchestrator) Shutdown() (err error) {
	if o.active == nil {
		return ErrNoActiveModule
	}
	o.active.Entry.Cleanup()
	err = multierr.Append(err, o.registry.DrainAndUnload(o.loader))
	err = multierr.Append(err, o.loader.Unload(o.active))
	o.active = nil
	o.mem.Report(o.log, "shutdown")
	o.log.Infow("module shut down", "generation", o.generation, "reloads", o.stats.Reloads, "resets", o.stats.FullResets)
	return
}

func (p Phase) String() string {
	switch p {
	case Running:
		return "running"
	case Reloading:
		return "reloading"
	case FullResetting:
		return "full-resetting"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

func (o Outcome) String() string {
	switch o {
	case OutcomeIdle:
		return "idle"
	case OutcomeReloaded:
		return "reloaded"
	case OutcomeFullReset:
		return "full-reset"
	case OutcomeFailed:
		return "failed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}
