package config

const (
	defaultStateDir = "~/.local/state/dronetrack"
	defaultLogDir   = "~/.local/state/dronetrack/logs"

	defaultJournalRetentionDays = 30

	defaultFrameInfoKey   = 1333
	defaultFrameDataKey   = 1313
	defaultErrorKey       = 1995
	defaultControlKey     = 1334
	defaultFrameLockKey   = 9999
	defaultErrorLockKey   = 6666
	defaultFrameSignalKey = 9998
	defaultFrameCapacity  = 1 << 20
	defaultPollInterval   = 50
	defaultPermissions    = "0666"

	defaultSource = "synthetic"
	defaultWidth  = 640
	defaultHeight = 360
	defaultFPS    = 15

	defaultAnalyzer      = "color"
	defaultTargetColor   = "#ff2020"
	defaultTolerance     = 60
	defaultMinPixels     = 16
	defaultXScale        = 320
	defaultYScale        = 240
	defaultYGain         = 0.7
	defaultReferenceArea = 150 * 150
	defaultAreaNorm      = 640 * 480 / 2

	defaultXThreshold      = 0.18
	defaultZThreshold      = 0.25
	defaultPulseDuration   = 10
	defaultReissueInterval = 1
	defaultManualGain      = 0.3
	defaultFlight          = "log"

	defaultStationMetricsBind = "127.0.0.1:9464"
	defaultTrackerMetricsBind = "127.0.0.1:9465"

	defaultLogFormat     = "console"
	defaultLogLevel      = "info"
	defaultLogMaxSizeMB  = 20
	defaultLogMaxBackups = 5
	defaultLogMaxAgeDays = 30

	// maxFrameCapacity bounds a single shared segment; 1280x720 RGB888 fits.
	maxFrameCapacity = 64 << 20
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir: defaultStateDir,
			LogDir:   defaultLogDir,

			JournalRetentionDays: defaultJournalRetentionDays,
		},
		Bus: Bus{
			FrameInfoKey:   defaultFrameInfoKey,
			FrameDataKey:   defaultFrameDataKey,
			ErrorKey:       defaultErrorKey,
			ControlKey:     defaultControlKey,
			FrameLockKey:   defaultFrameLockKey,
			ErrorLockKey:   defaultErrorLockKey,
			FrameSignalKey: defaultFrameSignalKey,
			FrameCapacity:  defaultFrameCapacity,
			PollIntervalMS: defaultPollInterval,
			Permissions:    defaultPermissions,
		},
		Producer: Producer{
			Source: defaultSource,
			Width:  defaultWidth,
			Height: defaultHeight,
			FPS:    defaultFPS,
			Loop:   true,
		},
		Tracker: Tracker{
			Analyzer:      defaultAnalyzer,
			TargetColor:   defaultTargetColor,
			Tolerance:     defaultTolerance,
			MinPixels:     defaultMinPixels,
			XScale:        defaultXScale,
			YScale:        defaultYScale,
			YGain:         defaultYGain,
			ReferenceArea: defaultReferenceArea,
			AreaNorm:      defaultAreaNorm,
		},
		Controller: Controller{
			XThreshold:        defaultXThreshold,
			ZThreshold:        defaultZThreshold,
			PulseDurationMS:   defaultPulseDuration,
			ReissueIntervalMS: defaultReissueInterval,
			ManualGain:        defaultManualGain,
			Flight:            defaultFlight,
		},
		Metrics: Metrics{
			StationBind: defaultStationMetricsBind,
			TrackerBind: defaultTrackerMetricsBind,
		},
		Logging: Logging{
			Format:     defaultLogFormat,
			Level:      defaultLogLevel,
			MaxSizeMB:  defaultLogMaxSizeMB,
			MaxBackups: defaultLogMaxBackups,
			MaxAgeDays: defaultLogMaxAgeDays,
		},
	}
}
