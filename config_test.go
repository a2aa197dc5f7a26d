package hotreload

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ZenLiuCN/fn"
)

func TestLoadConfig(t *testing.T) {
	p := filepath.Join(t.TempDir(), ConfigFileName)
	fn.Panic(os.WriteFile(p, []byte(`
artifact = "out/app.o"
package = "app"
tick = "5ms"
heap = "mmap"
`), 0o644))
	cfg := fn.Panic1(LoadConfig(p))
	if cfg.Artifact != "out/app.o" || cfg.Prefix() != "app." || time.Duration(cfg.Tick) != 5*time.Millisecond || cfg.Heap != "mmap" {
		t.Errorf("%+v", cfg)
	}
	if !cfg.Watch {
		t.Error("missing keys must keep defaults")
	}
}

func TestConfigSaveLoad(t *testing.T) {
	p := filepath.Join(t.TempDir(), ConfigFileName)
	want := DefaultConfig()
	want.Debug = true
	fn.Panic(want.Save(p))
	if got := fn.Panic1(LoadConfig(p)); got != want {
		t.Errorf("got %+v want %+v", got, want)
	}
}

func TestConfigInvalid(t *testing.T) {
	p := filepath.Join(t.TempDir(), ConfigFileName)
	for _, body := range []string{`heap = "arena"`, `tick = "0s"`, `artifact = ""`, `tick = "soon"`} {
		fn.Panic(os.WriteFile(p, []byte(body), 0o644))
		if _, err := LoadConfig(p); err == nil {
			t.Errorf("%s: want error", body)
		}
	}
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "none.toml")); err == nil {
		t.Error("missing file: want error")
	}
}

func TestNewRuntimeContextRejectsConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Heap = "arena"
	if _, err := NewRuntimeContext(cfg, &fakeOpener{w: new(world)}, nil); err == nil {
		t.Error("want error")
	}
}
