package hotreload

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// ConfigFileName is looked up in the working directory by the host.
const ConfigFileName = "hotreload.toml"

// Config of the reload runtime.
type Config struct {
	Artifact string   `toml:"artifact"` // canonical module artifact
	Package  string   `toml:"package"`  // package path of the module, entry points are <package>.<Name>
	TempDir  string   `toml:"temp_dir"` // parent of the session directory
	Tick     Duration `toml:"tick"`     // frame interval of the headless driver
	Heap     string   `toml:"heap"`     // go or mmap
	Watch    bool     `toml:"watch"`    // wake up on artifact writes
	Debug    bool     `toml:"debug"`
}

func DefaultConfig() Config {
	return Config{
		Artifact: filepath.Join("build", "game"+ArtifactExt()),
		Package:  "game",
		Tick:     Duration(time.Second / 60),
		Heap:     "go",
		Watch:    true,
	}
}

// ArtifactExt is the object extension the build pipeline emits.
func ArtifactExt() string {
	if runtime.GOOS == "windows" {
		return ".obj"
	}
	return ".o"
}

// LoadConfig read path over DefaultConfig. Missing keys keep defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config file: %w", err)
	}
	if err = toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Save write c as TOML to path.
func (c Config) Save(path string) error {
	data, err := toml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func (c Config) Validate() error {
	switch {
	case c.Artifact == "":
		return errors.New("config: artifact is empty")
	case c.Tick <= 0:
		return fmt.Errorf("config: tick must be positive, got %s", time.Duration(c.Tick))
	case c.Heap != "go" && c.Heap != "mmap":
		return fmt.Errorf("config: heap must be go or mmap, got %q", c.Heap)
	}
	return nil
}

// Prefix of the entry point symbols.
func (c Config) Prefix() string {
	pkg := c.Package
	if pkg == "" {
		pkg = "main"
	}
	return pkg + "."
}

// Duration is a time.Duration written as text, like "16ms", in TOML.
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}
