package metrics

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestStationCollectors(t *testing.T) {
	s := NewStation(prometheus.NewRegistry())
	s.PulseIssued("x", "track")
	s.PulseIssued("x", "track")
	s.PulseIssued("z", "manual")
	s.ErrorObserved(0.3, 0, -0.1)
	s.TrackingChanged(true)

	if got := testutil.ToFloat64(s.pulses.WithLabelValues("x", "track")); got != 2 {
		t.Fatalf("x pulses = %v, want 2", got)
	}
	if got := testutil.ToFloat64(s.errorVector.WithLabelValues("x")); got < 0.299 || got > 0.301 {
		t.Fatalf("x error gauge = %v", got)
	}
	if got := testutil.ToFloat64(s.tracking); got != 1 {
		t.Fatalf("tracking gauge = %v", got)
	}
}

func TestNilReceiversAreNoops(t *testing.T) {
	var s *Station
	s.PulseIssued("x", "track")
	s.FramePublished()
	s.LinkEvent("remove")
	var tr *Tracker
	tr.AnalysisDone(time.Millisecond, true)
	tr.FrameSkipped("empty")
}

func TestTrackerCollectors(t *testing.T) {
	tr := NewTracker(prometheus.NewRegistry())
	tr.FrameSkipped("no_dimensions")
	tr.AnalysisDone(2*time.Millisecond, true)
	if got := testutil.ToFloat64(tr.framesSkipped.WithLabelValues("no_dimensions")); got != 1 {
		t.Fatalf("skipped = %v", got)
	}
	if got := testutil.ToFloat64(tr.targetFound); got != 1 {
		t.Fatalf("target found = %v", got)
	}
}

func TestServerExposesRegistry(t *testing.T) {
	reg := NewRegistry()
	NewStation(reg).FramePublished()

	srv, err := Listen("127.0.0.1:0", reg, nil)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	resp, err := http.Get("http://" + srv.Addr() + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), "dronetrack_producer_frames_published_total 1") {
		t.Fatalf("metric missing from scrape:\n%s", body)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Serve: %v", err)
	}
}
