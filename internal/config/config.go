package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains state and log directories.
type Paths struct {
	StateDir string `toml:"state_dir"`
	LogDir   string `toml:"log_dir"`

	// JournalRetentionDays prunes older journal rows at station start; 0 keeps everything.
	JournalRetentionDays int `toml:"journal_retention_days"`
}

// Bus describes the shared-memory telemetry bus. Both processes must agree
// on every field.
type Bus struct {
	FrameInfoKey   int    `toml:"frame_info_key"`
	FrameDataKey   int    `toml:"frame_data_key"`
	ErrorKey       int    `toml:"error_key"`
	ControlKey     int    `toml:"control_key"`
	FrameLockKey   int    `toml:"frame_lock_key"`
	ErrorLockKey   int    `toml:"error_lock_key"`
	FrameSignalKey int    `toml:"frame_signal_key"`
	FrameCapacity  int    `toml:"frame_capacity"`
	PollIntervalMS int    `toml:"poll_interval_ms"`
	Permissions    string `toml:"permissions"`
}

// Producer configures the station's frame source.
type Producer struct {
	// Source is "synthetic" or "file".
	Source    string  `toml:"source"`
	FramePath string  `toml:"frame_path"`
	Width     int     `toml:"width"`
	Height    int     `toml:"height"`
	FPS       float64 `toml:"fps"`
	Loop      bool    `toml:"loop"`
}

// Tracker configures the analyzer and the box-to-error conversion.
type Tracker struct {
	Analyzer      string  `toml:"analyzer"`
	TargetColor   string  `toml:"target_color"`
	Tolerance     int     `toml:"tolerance"`
	MinPixels     int     `toml:"min_pixels"`
	XScale        float64 `toml:"x_scale"`
	YScale        float64 `toml:"y_scale"`
	YGain         float64 `toml:"y_gain"`
	ReferenceArea float64 `toml:"reference_area"`
	AreaNorm      float64 `toml:"area_norm"`
}

// Controller holds the servo tuning. Thresholds and timings reload live.
type Controller struct {
	XThreshold        float64 `toml:"x_threshold"`
	ZThreshold        float64 `toml:"z_threshold"`
	PulseDurationMS   int     `toml:"pulse_duration_ms"`
	RepeatIntervalMS  int     `toml:"repeat_interval_ms"`
	ReissueIntervalMS int     `toml:"reissue_interval_ms"`
	ManualGain        float64 `toml:"manual_gain"`
	TrackOnStart      bool    `toml:"track_on_start"`
	// Flight selects the flight command backend; only "log" ships.
	Flight        string `toml:"flight"`
	LinkInterface string `toml:"link_interface"`
}

// Metrics controls the Prometheus endpoints.
type Metrics struct {
	Enabled     bool   `toml:"enabled"`
	StationBind string `toml:"station_bind"`
	TrackerBind string `toml:"tracker_bind"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format     string `toml:"format"`
	Level      string `toml:"level"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
	Compress   bool   `toml:"compress"`
}

// Config encapsulates all configuration values for dronetrack.
type Config struct {
	Paths      Paths      `toml:"paths"`
	Bus        Bus        `toml:"bus"`
	Producer   Producer   `toml:"producer"`
	Tracker    Tracker    `toml:"tracker"`
	Controller Controller `toml:"controller"`
	Metrics    Metrics    `toml:"metrics"`
	Logging    Logging    `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/dronetrack/config.toml")
}

// Load locates, parses, and validates a configuration file. It returns the
// config, the path it resolved, and whether that file existed.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		if err := decodeFile(resolvedPath, &cfg); err != nil {
			return nil, "", false, err
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}
	return &cfg, resolvedPath, exists, nil
}

func decodeFile(path string, cfg *Config) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	decoder := toml.NewDecoder(file)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(cfg); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return fmt.Errorf("parse config: %s", strict.String())
		}
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("dronetrack.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	return defaultPath, false, nil
}

// EnsureDirectories creates the state and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// BusLockPath is the advisory lock serializing bus setup and teardown.
func (c *Config) BusLockPath() string { return filepath.Join(c.Paths.StateDir, "bus.lock") }

// StationLockPath guards against a second station process.
func (c *Config) StationLockPath() string { return filepath.Join(c.Paths.StateDir, "station.lock") }

// TrackerLockPath guards against a second tracker process.
func (c *Config) TrackerLockPath() string { return filepath.Join(c.Paths.StateDir, "tracker.lock") }

// SocketPath is the station's JSON-RPC control socket.
func (c *Config) SocketPath() string { return filepath.Join(c.Paths.StateDir, "station.sock") }

// JournalPath is the SQLite pulse journal.
func (c *Config) JournalPath() string { return filepath.Join(c.Paths.StateDir, "journal.db") }

// Perm parses Bus.Permissions as an octal mode.
func (b Bus) Perm() os.FileMode {
	mode, err := strconv.ParseUint(strings.TrimSpace(b.Permissions), 8, 32)
	if err != nil {
		return 0o666
	}
	return os.FileMode(mode) & os.ModePerm
}

// PollInterval is the slice length for blocking semaphore waits.
func (b Bus) PollInterval() time.Duration {
	return time.Duration(b.PollIntervalMS) * time.Millisecond
}

// PulseDuration is how long one correction is re-issued.
func (c Controller) PulseDuration() time.Duration {
	return time.Duration(c.PulseDurationMS) * time.Millisecond
}

// RepeatInterval is the pause between pulses; zero means back to back.
func (c Controller) RepeatInterval() time.Duration {
	return time.Duration(c.RepeatIntervalMS) * time.Millisecond
}

// ReissueInterval is the spacing of repeated commands inside one pulse.
func (c Controller) ReissueInterval() time.Duration {
	return time.Duration(c.ReissueIntervalMS) * time.Millisecond
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && pathValue[1] == '/' {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// SampleConfig returns the embedded annotated sample.
func SampleConfig() string {
	return sampleConfig
}

// CreateSample writes the sample configuration file to path.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
