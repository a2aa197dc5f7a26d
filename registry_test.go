package hotreload

import (
	"errors"
	"testing"

	"go.uber.org/multierr"
)

type recordingUnloader struct {
	order []int
	fail  map[int]bool
}

func (r *recordingUnloader) Unload(h *Handle) error {
	r.order = append(r.order, h.Generation)
	if r.fail[h.Generation] {
		return &UnloadWarning{Generation: h.Generation, Err: errBroken}
	}
	return nil
}

func TestRegistryRetirementOrder(t *testing.T) {
	r := NewRegistry()
	hs := []*Handle{{Generation: 0}, {Generation: 1}, {Generation: 2}}
	for _, h := range hs {
		if err := r.Retire(h); err != nil {
			t.Fatal(err)
		}
	}
	if err := r.Retire(nil); err == nil {
		t.Error("nil retire must fail")
	}
	if r.Len() != 3 || !r.Contains(hs[1]) || r.Contains(&Handle{}) {
		t.Fatalf("len %d", r.Len())
	}
	for i, h := range r.Handles() {
		if h != hs[i] {
			t.Fatalf("handle %d out of order", i)
		}
	}

	u := &recordingUnloader{fail: map[int]bool{0: true, 2: true}}
	err := r.DrainAndUnload(u)
	if len(u.order) != 3 || u.order[0] != 0 || u.order[1] != 1 || u.order[2] != 2 {
		t.Errorf("unload order %v", u.order)
	}
	if len(multierr.Errors(err)) != 2 || !errors.Is(err, errBroken) {
		t.Errorf("warnings %v", err)
	}
	if r.Len() != 0 {
		t.Error("registry must be empty after drain")
	}
	if err = r.DrainAndUnload(u); err != nil || len(u.order) != 3 {
		t.Error("second drain must do nothing")
	}
}
