package hotreload

import "context"

type (
	// Callbacks the frame driver invokes.
	Callbacks struct {
		Init    func()
		Frame   func()
		Event   func(e *Event)
		Cleanup func()
	}
	// Driver runs the frame loop until ctx is done or the application quits.
	Driver interface {
		Run(ctx context.Context, cb Callbacks) error
	}
)

// Shim bind the four driver callbacks to rc. The module must already be started:
// Init of the callbacks only reports readiness, the state was created by [Orchestrator.Start].
//
// The callbacks look up the active module on every call and never keep it.
func Shim(rc *RuntimeContext) Callbacks {
	return Callbacks{
		Init: func() {
			if h := rc.Orchestrator.Active(); h != nil {
				rc.Log.Debugw("driver ready", "module", h.String())
			}
		},
		Frame: func() {
			if h := rc.Orchestrator.Active(); h != nil {
				h.Entry.Frame()
			}
			rc.Orchestrator.Tick()
		},
		Event: func(e *Event) {
			if e.Kind == EventRestart {
				rc.Orchestrator.RequestReset()
				return
			}
			if h := rc.Orchestrator.Active(); h != nil {
				h.Entry.Event(e)
			}
		},
		Cleanup: func() {
			if err := rc.Close(); err != nil {
				rc.Log.Warnw("shutdown", "error", err)
			}
		},
	}
}

// Run start the module and hand the shim to d. A failing first load is returned before d runs.
func Run(ctx context.Context, rc *RuntimeContext, d Driver) error {
	if err := rc.Orchestrator.Start(); err != nil {
		_ = rc.Loader.Close()
		return err
	}
	return d.Run(ctx, Shim(rc))
}
