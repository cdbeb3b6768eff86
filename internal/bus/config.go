package bus

import (
	"log/slog"

	"dronetrack/internal/config"
)

// KeysFromConfig maps the bus config section onto Keys.
func KeysFromConfig(c config.Bus) Keys {
	return Keys{
		FrameInfo:   c.FrameInfoKey,
		FrameData:   c.FrameDataKey,
		Error:       c.ErrorKey,
		Control:     c.ControlKey,
		FrameLock:   c.FrameLockKey,
		ErrorLock:   c.ErrorLockKey,
		FrameSignal: c.FrameSignalKey,
	}
}

// OptionsFromConfig returns the Open options both processes derive from
// the shared config file.
func OptionsFromConfig(cfg *config.Config, logger *slog.Logger) Options {
	return Options{
		Keys:          KeysFromConfig(cfg.Bus),
		FrameCapacity: cfg.Bus.FrameCapacity,
		LockPath:      cfg.BusLockPath(),
		Logger:        logger,
	}
}

// BackendFromConfig returns the System V backend configured by cfg.
func BackendFromConfig(cfg *config.Config) *SysvBackend {
	return NewSysvBackend(cfg.Bus.Perm(), cfg.Bus.PollInterval())
}
