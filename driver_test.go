package hotreload

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ZenLiuCN/fn"
)

type countingCallbacks struct {
	init, frame, cleanup int
	events               []*Event
}

func (c *countingCallbacks) callbacks() Callbacks {
	return Callbacks{
		Init:    func() { c.init++ },
		Frame:   func() { c.frame++ },
		Event:   func(e *Event) { c.events = append(c.events, e) },
		Cleanup: func() { c.cleanup++ },
	}
}

func TestTickDriverFrames(t *testing.T) {
	c := new(countingCallbacks)
	d := &TickDriver{Interval: time.Millisecond, Frames: 3}
	fn.Panic(d.Run(context.Background(), c.callbacks()))
	if c.init != 1 || c.frame != 3 || c.cleanup != 1 {
		t.Errorf("%+v", c)
	}
}

func TestTickDriverEvents(t *testing.T) {
	c := new(countingCallbacks)
	events := make(chan *Event, 2)
	events <- &Event{Kind: EventKeyDown, Code: 'R'}
	events <- &Event{Kind: EventQuit}
	d := &TickDriver{Interval: time.Hour, Events: events}
	fn.Panic(d.Run(context.Background(), c.callbacks()))
	if len(c.events) != 2 || c.events[0].Code != 'R' || c.cleanup != 1 {
		t.Errorf("%+v", c)
	}
}

func TestTickDriverCancel(t *testing.T) {
	c := new(countingCallbacks)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d := &TickDriver{Interval: time.Hour}
	fn.Panic(d.Run(ctx, c.callbacks()))
	if c.cleanup != 1 || c.frame != 0 {
		t.Errorf("%+v", c)
	}
}

func TestTickDriverWakesOnWrite(t *testing.T) {
	artifact := filepath.Join(t.TempDir(), "game.o")
	fn.Panic(os.WriteFile(artifact, []byte("v0"), 0o644))
	c := new(countingCallbacks)
	d := &TickDriver{Interval: time.Hour, Watch: artifact, Frames: 1}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx, c.callbacks()) }()
	tick := time.NewTicker(20 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case err := <-done:
			fn.Panic(err)
			if c.frame != 1 {
				t.Fatalf("driver stopped without a frame: %+v", c)
			}
			return
		case <-tick.C:
			_ = os.WriteFile(artifact, []byte("v1"), 0o644)
		}
	}
}

func TestRunFailsBeforeDriver(t *testing.T) {
	f := newFixture(t)
	fn.Panic(os.Remove(f.artifact))
	c := new(countingCallbacks)
	err := Run(context.Background(), f.rc, &TickDriver{Frames: 1})
	if _, ok := err.(*ArtifactNotFoundError); !ok {
		t.Fatalf("want not found, got %v", err)
	}
	if c.init != 0 {
		t.Error("driver must not run")
	}
	if _, err = os.Stat(f.rc.Loader.Session()); !os.IsNotExist(err) {
		t.Error("session dir left")
	}
}

// scriptedDriver replays events and frames in a fixed order.
type scriptedDriver []*Event

func (s scriptedDriver) Run(_ context.Context, cb Callbacks) error {
	cb.Init()
	defer cb.Cleanup()
	for _, e := range s {
		if e == nil {
			cb.Frame()
			continue
		}
		cb.Event(e)
	}
	return nil
}

func TestRunShim(t *testing.T) {
	f := newFixture(t)
	d := scriptedDriver{
		{Kind: EventMouseMove, X: 1, Y: 2},
		nil,
		{Kind: EventRestart},
		nil,
		nil,
	}
	fn.Panic(Run(context.Background(), f.rc, d))
	gen0, gen1 := f.opener.images[0], f.opener.images[1]
	if len(gen0.events) != 1 || gen0.events[0].X != 1 || gen0.frames != 2 {
		t.Fatalf("gen0 events %v frames %d", gen0.events, gen0.frames)
	}
	if len(f.opener.images) != 2 || gen1.calls[0] != "init" || gen1.frames != 1 {
		t.Fatalf("restart event must reset, images %d", len(f.opener.images))
	}
	for i, im := range f.opener.images {
		if im.closes != 1 {
			t.Errorf("image %d closed %d times", i, im.closes)
		}
	}
	if f.rc.Orchestrator.Generation() != 1 {
		t.Errorf("generation %d", f.rc.Orchestrator.Generation())
	}
	if _, err := os.Stat(f.rc.Loader.Session()); !os.IsNotExist(err) {
		t.Error("session dir left")
	}
}
