package hotreload

import (
	"errors"

	"github.com/eapache/queue"
	"go.uber.org/multierr"
)

// Registry keeps retired module handles loaded, in retirement order.
//
// Constant data baked into an old image may still be referenced from the opaque state,
// so retired handles are only unloaded all together by DrainAndUnload during a full reset.
type Registry struct {
	retired *queue.Queue
}

var errNilHandle = errors.New("retire nil handle")

func NewRegistry() *Registry {
	return &Registry{retired: queue.New()}
}

// Retire append h. It neither deduplicates nor unloads.
func (r *Registry) Retire(h *Handle) error {
	if h == nil {
		return errNilHandle
	}
	r.retired.Add(h)
	return nil
}

func (r *Registry) Len() int {
	return r.retired.Length()
}

// Handles snapshot the retained handles, oldest first.
func (r *Registry) Handles() []*Handle {
	out := make([]*Handle, r.retired.Length())
	for i := range out {
		out[i] = r.retired.Get(i).(*Handle)
	}
	return out
}

// Contains report whether h is retained.
func (r *Registry) Contains(h *Handle) bool {
	for i := 0; i < r.retired.Length(); i++ {
		if r.retired.Get(i).(*Handle) == h {
			return true
		}
	}
	return false
}

// DrainAndUnload unload every retained handle exactly once, oldest first, and empty the registry.
// Unload failures are combined into the result; the registry is emptied regardless.
func (r *Registry) DrainAndUnload(u Unloader) (err error) {
	for r.retired.Length() > 0 {
		h := r.retired.Remove().(*Handle)
		err = multierr.Append(err, u.Unload(h))
	}
	return
}
