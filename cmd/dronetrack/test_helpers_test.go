package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"dronetrack/internal/bus"
	"dronetrack/internal/config"
	"dronetrack/internal/control"
	"dronetrack/internal/station"
	"dronetrack/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	flight     *control.LogFlight
	socketPath string
	configPath string
}

// setupCLITestEnv runs a station on an in-memory bus and writes its config
// to disk so CLI invocations resolve the same paths.
func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t, testsupport.WithProducer(func(p *config.Producer) {
		p.FPS = 100
	}))
	t.Setenv("HOME", filepath.Join(testsupport.BaseDir(cfg), "home"))
	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)

	flight := control.NewLogFlight(nil)
	ctx, cancel := context.WithCancel(context.Background())
	ready := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- station.Run(ctx, cfg, station.Options{
			Backend: bus.NewMemoryBackend(),
			Flight:  flight,
			Ready:   func(*station.Station) { close(ready) },
		})
	}()
	select {
	case <-ready:
	case err := <-done:
		cancel()
		t.Fatalf("station exited early: %v", err)
	case <-time.After(5 * time.Second):
		cancel()
		t.Fatal("station never became ready")
	}
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("station.Run: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("station did not stop")
		}
	})

	return &cliTestEnv{
		cfg:        cfg,
		flight:     flight,
		socketPath: cfg.SocketPath(),
		configPath: configPath,
	}
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	body, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, body, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func runCLI(t *testing.T, args []string, socket, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	flags := []string{"--socket", socket}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
