package config

import (
	"errors"
	"fmt"
	"image/color"
	"strconv"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if c.Paths.JournalRetentionDays < 0 {
		return errors.New("paths.journal_retention_days must not be negative")
	}
	if err := c.validateBus(); err != nil {
		return err
	}
	if err := c.validateProducer(); err != nil {
		return err
	}
	if err := c.validateTracker(); err != nil {
		return err
	}
	if err := c.ValidateController(); err != nil {
		return err
	}
	if err := c.validateMetrics(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateBus() error {
	segments := map[string]int{
		"bus.frame_info_key": c.Bus.FrameInfoKey,
		"bus.frame_data_key": c.Bus.FrameDataKey,
		"bus.error_key":      c.Bus.ErrorKey,
		"bus.control_key":    c.Bus.ControlKey,
	}
	if err := distinctPositiveKeys(segments); err != nil {
		return err
	}
	semaphores := map[string]int{
		"bus.frame_lock_key":   c.Bus.FrameLockKey,
		"bus.error_lock_key":   c.Bus.ErrorLockKey,
		"bus.frame_signal_key": c.Bus.FrameSignalKey,
	}
	if err := distinctPositiveKeys(semaphores); err != nil {
		return err
	}
	if c.Bus.FrameCapacity <= 0 || c.Bus.FrameCapacity > maxFrameCapacity {
		return fmt.Errorf("bus.frame_capacity must be between 1 and %d", maxFrameCapacity)
	}
	if c.Bus.PollIntervalMS <= 0 {
		return errors.New("bus.poll_interval_ms must be positive")
	}
	if _, err := strconv.ParseUint(c.Bus.Permissions, 8, 32); err != nil {
		return fmt.Errorf("bus.permissions must be an octal mode such as \"0660\", got %q", c.Bus.Permissions)
	}
	return nil
}

// distinctPositiveKeys rejects zero, negative and duplicated IPC keys within
// one namespace. Segment and semaphore keys live in separate namespaces.
func distinctPositiveKeys(keys map[string]int) error {
	seen := make(map[int]string, len(keys))
	for name, key := range keys {
		if key <= 0 {
			return fmt.Errorf("%s must be a positive IPC key", name)
		}
		if other, ok := seen[key]; ok {
			first, second := name, other
			if second < first {
				first, second = second, first
			}
			return fmt.Errorf("%s and %s share key %d", first, second, key)
		}
		seen[key] = name
	}
	return nil
}

func (c *Config) validateProducer() error {
	switch c.Producer.Source {
	case "synthetic":
	case "file":
		if c.Producer.FramePath == "" {
			return errors.New("producer.frame_path is required when producer.source is \"file\"")
		}
	default:
		return fmt.Errorf("producer.source must be \"synthetic\" or \"file\", got %q", c.Producer.Source)
	}
	if c.Producer.Width <= 0 || c.Producer.Height <= 0 {
		return errors.New("producer.width and producer.height must be positive")
	}
	if c.Producer.FPS <= 0 || c.Producer.FPS > 120 {
		return errors.New("producer.fps must be in (0, 120]")
	}
	if frame := c.Producer.Width * c.Producer.Height * 2; frame > c.Bus.FrameCapacity {
		return fmt.Errorf("producer frame of %dx%d RGB565 (%d bytes) exceeds bus.frame_capacity %d",
			c.Producer.Width, c.Producer.Height, frame, c.Bus.FrameCapacity)
	}
	return nil
}

func (c *Config) validateTracker() error {
	if c.Tracker.Analyzer != "color" {
		return fmt.Errorf("tracker.analyzer must be \"color\", got %q", c.Tracker.Analyzer)
	}
	if _, err := ParseColor(c.Tracker.TargetColor); err != nil {
		return fmt.Errorf("tracker.target_color: %w", err)
	}
	if c.Tracker.Tolerance < 0 || c.Tracker.Tolerance > 255 {
		return errors.New("tracker.tolerance must be between 0 and 255")
	}
	if c.Tracker.MinPixels < 1 {
		return errors.New("tracker.min_pixels must be at least 1")
	}
	if c.Tracker.XScale <= 0 || c.Tracker.YScale <= 0 || c.Tracker.AreaNorm <= 0 {
		return errors.New("tracker.x_scale, tracker.y_scale and tracker.area_norm must be positive")
	}
	if c.Tracker.ReferenceArea < 0 {
		return errors.New("tracker.reference_area must not be negative")
	}
	return nil
}

// ValidateController checks only the live-reloadable controller section.
func (c *Config) ValidateController() error {
	ctl := c.Controller
	if ctl.XThreshold <= 0 || ctl.ZThreshold <= 0 {
		return errors.New("controller.x_threshold and controller.z_threshold must be positive")
	}
	if ctl.PulseDurationMS < 1 || ctl.PulseDurationMS > 1000 {
		return errors.New("controller.pulse_duration_ms must be between 1 and 1000")
	}
	if ctl.RepeatIntervalMS < 0 {
		return errors.New("controller.repeat_interval_ms must not be negative")
	}
	if ctl.ReissueIntervalMS < 1 {
		return errors.New("controller.reissue_interval_ms must be at least 1")
	}
	if ctl.ManualGain <= 0 || ctl.ManualGain > 1 {
		return errors.New("controller.manual_gain must be in (0, 1]")
	}
	if ctl.Flight != "log" {
		return fmt.Errorf("controller.flight must be \"log\", got %q", ctl.Flight)
	}
	return nil
}

func (c *Config) validateMetrics() error {
	if !c.Metrics.Enabled {
		return nil
	}
	if c.Metrics.StationBind == c.Metrics.TrackerBind {
		return errors.New("metrics.station_bind and metrics.tracker_bind must differ")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be \"console\" or \"json\", got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	if c.Logging.MaxSizeMB < 0 || c.Logging.MaxBackups < 0 || c.Logging.MaxAgeDays < 0 {
		return errors.New("logging rotation limits must not be negative")
	}
	return nil
}

// ParseColor parses "#rrggbb".
func ParseColor(value string) (color.RGBA, error) {
	hex := strings.TrimPrefix(strings.TrimSpace(value), "#")
	if len(hex) != 6 {
		return color.RGBA{}, fmt.Errorf("expected #rrggbb, got %q", value)
	}
	n, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("expected #rrggbb, got %q", value)
	}
	return color.RGBA{R: uint8(n >> 16), G: uint8(n >> 8), B: uint8(n), A: 0xff}, nil
}
