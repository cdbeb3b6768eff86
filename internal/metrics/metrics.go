// Package metrics defines the Prometheus collectors of the station and the
// tracker and serves them over HTTP.
//
// Collectors are registered on a registry owned by the process rather than
// the global default, so tests can build as many sets as they like. Every
// recording method is safe on a nil receiver; components built without
// metrics simply pass nil.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "dronetrack"

// Station holds the producer and controller collectors.
type Station struct {
	framesPublished prometheus.Counter
	publishErrors   prometheus.Counter
	pulses          *prometheus.CounterVec
	commands        prometheus.Counter
	errorVector     *prometheus.GaugeVec
	tracking        prometheus.Gauge
	linkEvents      *prometheus.CounterVec
}

// NewStation registers the station collectors on reg.
func NewStation(reg prometheus.Registerer) *Station {
	f := promauto.With(reg)
	return &Station{
		framesPublished: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "producer", Name: "frames_published_total",
			Help: "Frames published to the shared frame channel.",
		}),
		publishErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "producer", Name: "publish_errors_total",
			Help: "Frames the producer failed to publish.",
		}),
		pulses: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "controller", Name: "pulses_total",
			Help: "Timed movement pulses issued.",
		}, []string{"axis", "source"}),
		commands: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "controller", Name: "progress_commands_total",
			Help: "Progress commands sent to the flight API, counting re-issues within a pulse.",
		}),
		errorVector: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "controller", Name: "tracking_error",
			Help: "Last tracking error read from the error channel.",
		}, []string{"axis"}),
		tracking: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "controller", Name: "tracking_enabled",
			Help: "1 while closed-loop tracking is enabled.",
		}),
		linkEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "link", Name: "events_total",
			Help: "Flight-link network interface events seen on the udev netlink socket.",
		}, []string{"action"}),
	}
}

func (s *Station) FramePublished() {
	if s == nil {
		return
	}
	s.framesPublished.Inc()
}

func (s *Station) PublishFailed() {
	if s == nil {
		return
	}
	s.publishErrors.Inc()
}

// PulseIssued counts one pulse on axis; source is "track" or "manual".
func (s *Station) PulseIssued(axis, source string) {
	if s == nil {
		return
	}
	s.pulses.WithLabelValues(axis, source).Inc()
}

func (s *Station) CommandSent() {
	if s == nil {
		return
	}
	s.commands.Inc()
}

func (s *Station) ErrorObserved(x, y, z float32) {
	if s == nil {
		return
	}
	s.errorVector.WithLabelValues("x").Set(float64(x))
	s.errorVector.WithLabelValues("y").Set(float64(y))
	s.errorVector.WithLabelValues("z").Set(float64(z))
}

func (s *Station) TrackingChanged(enabled bool) {
	if s == nil {
		return
	}
	if enabled {
		s.tracking.Set(1)
		return
	}
	s.tracking.Set(0)
}

func (s *Station) LinkEvent(action string) {
	if s == nil {
		return
	}
	s.linkEvents.WithLabelValues(action).Inc()
}

// Tracker holds the copier and analyzer collectors.
type Tracker struct {
	framesDrained prometheus.Counter
	framesSkipped *prometheus.CounterVec
	analyses      prometheus.Counter
	analysisTime  prometheus.Histogram
	targetFound   prometheus.Gauge
	errorWrites   prometheus.Counter
}

// NewTracker registers the tracker collectors on reg.
func NewTracker(reg prometheus.Registerer) *Tracker {
	f := promauto.With(reg)
	return &Tracker{
		framesDrained: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "tracker", Name: "frames_drained_total",
			Help: "Frames copied from the frame channel.",
		}),
		framesSkipped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "tracker", Name: "frames_skipped_total",
			Help: "Frames not handed to the analyzer.",
		}, []string{"reason"}),
		analyses: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "tracker", Name: "analyses_total",
			Help: "Analysis passes completed.",
		}),
		analysisTime: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "tracker", Name: "analysis_seconds",
			Help:    "Duration of one analysis pass, including the cache hold.",
			Buckets: []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),
		targetFound: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "tracker", Name: "target_found",
			Help: "1 when the last analysis found the target.",
		}),
		errorWrites: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "tracker", Name: "error_writes_total",
			Help: "Error vectors written to the error channel.",
		}),
	}
}

func (t *Tracker) FrameDrained() {
	if t == nil {
		return
	}
	t.framesDrained.Inc()
}

// FrameSkipped counts a frame dropped before analysis for reason.
func (t *Tracker) FrameSkipped(reason string) {
	if t == nil {
		return
	}
	t.framesSkipped.WithLabelValues(reason).Inc()
}

func (t *Tracker) AnalysisDone(elapsed time.Duration, found bool) {
	if t == nil {
		return
	}
	t.analyses.Inc()
	t.analysisTime.Observe(elapsed.Seconds())
	if found {
		t.targetFound.Set(1)
	} else {
		t.targetFound.Set(0)
	}
}

func (t *Tracker) ErrorWritten() {
	if t == nil {
		return
	}
	t.errorWrites.Inc()
}
