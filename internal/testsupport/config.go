package testsupport

import (
	"math/rand/v2"
	"path/filepath"
	"testing"

	"dronetrack/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a valid config rooted in a per-test temp directory. Bus
// keys are randomized so tests touching real SysV objects do not collide
// with each other or with a running station.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Metrics.StationBind = "127.0.0.1:0"
	cfgVal.Metrics.TrackerBind = "localhost:0"
	cfgVal.Bus.PollIntervalMS = 5
	applyKeys(&cfgVal, randomKeyBase())

	builder := &configBuilder{t: t, baseDir: base, cfg: &cfgVal}
	for _, opt := range opts {
		opt(builder)
	}
	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	if err := builder.cfg.Validate(); err != nil {
		t.Fatalf("test config invalid: %v", err)
	}
	return builder.cfg
}

// randomKeyBase lands in a range unlikely to be used by anything else on a
// developer machine.
func randomKeyBase() int {
	return 0x44540000 + rand.IntN(0xffff)<<4
}

func applyKeys(cfg *config.Config, base int) {
	cfg.Bus.FrameInfoKey = base + 1
	cfg.Bus.FrameDataKey = base + 2
	cfg.Bus.ErrorKey = base + 3
	cfg.Bus.ControlKey = base + 4
	cfg.Bus.FrameLockKey = base + 5
	cfg.Bus.ErrorLockKey = base + 6
	cfg.Bus.FrameSignalKey = base + 7
}

// WithController applies fn to the controller section.
func WithController(fn func(*config.Controller)) ConfigOption {
	return func(b *configBuilder) {
		fn(&b.cfg.Controller)
	}
}

// WithProducer applies fn to the producer section.
func WithProducer(fn func(*config.Producer)) ConfigOption {
	return func(b *configBuilder) {
		fn(&b.cfg.Producer)
	}
}

// WithFrameCapacity overrides the bus payload capacity.
func WithFrameCapacity(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Bus.FrameCapacity = n
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}
