package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.Bus.Permissions = strings.TrimSpace(c.Bus.Permissions)
	if c.Bus.Permissions == "" {
		c.Bus.Permissions = defaultPermissions
	}
	if err := c.normalizeProducer(); err != nil {
		return err
	}
	c.normalizeTracker()
	c.normalizeController()
	c.normalizeMetrics()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	var err error
	if c.Paths.StateDir, err = expandPath(strings.TrimSpace(c.Paths.StateDir)); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(strings.TrimSpace(c.Paths.LogDir)); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeProducer() error {
	c.Producer.Source = strings.ToLower(strings.TrimSpace(c.Producer.Source))
	if c.Producer.Source == "" {
		c.Producer.Source = defaultSource
	}
	if path := strings.TrimSpace(c.Producer.FramePath); path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return fmt.Errorf("producer.frame_path: %w", err)
		}
		c.Producer.FramePath = expanded
	}
	return nil
}

func (c *Config) normalizeTracker() {
	c.Tracker.Analyzer = strings.ToLower(strings.TrimSpace(c.Tracker.Analyzer))
	if c.Tracker.Analyzer == "" {
		c.Tracker.Analyzer = defaultAnalyzer
	}
	c.Tracker.TargetColor = strings.ToLower(strings.TrimSpace(c.Tracker.TargetColor))
	if c.Tracker.TargetColor == "" {
		c.Tracker.TargetColor = defaultTargetColor
	}
	if !strings.HasPrefix(c.Tracker.TargetColor, "#") {
		c.Tracker.TargetColor = "#" + c.Tracker.TargetColor
	}
}

func (c *Config) normalizeController() {
	c.Controller.Flight = strings.ToLower(strings.TrimSpace(c.Controller.Flight))
	if c.Controller.Flight == "" {
		c.Controller.Flight = defaultFlight
	}
	c.Controller.LinkInterface = strings.TrimSpace(c.Controller.LinkInterface)
	if c.Controller.ReissueIntervalMS > c.Controller.PulseDurationMS && c.Controller.PulseDurationMS > 0 {
		c.Controller.ReissueIntervalMS = c.Controller.PulseDurationMS
	}
}

func (c *Config) normalizeMetrics() {
	c.Metrics.StationBind = strings.TrimSpace(c.Metrics.StationBind)
	if c.Metrics.StationBind == "" {
		c.Metrics.StationBind = defaultStationMetricsBind
	}
	c.Metrics.TrackerBind = strings.TrimSpace(c.Metrics.TrackerBind)
	if c.Metrics.TrackerBind == "" {
		c.Metrics.TrackerBind = defaultTrackerMetricsBind
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
