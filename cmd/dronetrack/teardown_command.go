package main

import (
	"context"
	"fmt"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"dronetrack/internal/bus"
	"dronetrack/internal/config"
)

const teardownTimeout = 5 * time.Second

func newTeardownCommand(ctx *commandContext) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "teardown",
		Short: "Remove the shared-memory bus left behind by a crashed process",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			out := cmd.OutOrStdout()
			if !force {
				running, err := runningRoles(cfg)
				if err != nil {
					return err
				}
				if len(running) > 0 {
					return fmt.Errorf("%v still running; stop it first or pass --force", running)
				}
			}

			tctx, cancel := context.WithTimeout(cmd.Context(), teardownTimeout)
			defer cancel()
			keys := bus.KeysFromConfig(cfg.Bus)
			if err := bus.Teardown(tctx, bus.BackendFromConfig(cfg), keys, cfg.BusLockPath()); err != nil {
				return fmt.Errorf("teardown: %w", err)
			}
			fmt.Fprintf(out, "Removed bus objects (control key %d, frame keys %d/%d, error key %d)\n",
				keys.Control, keys.FrameInfo, keys.FrameData, keys.Error)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Tear down even while a station or tracker holds its lock")
	return cmd
}

// runningRoles probes the single-instance locks; a lock that cannot be
// taken belongs to a live process.
func runningRoles(cfg *config.Config) ([]string, error) {
	var running []string
	for _, probe := range []struct {
		role string
		path string
	}{
		{"station", cfg.StationLockPath()},
		{"tracker", cfg.TrackerLockPath()},
	} {
		lock := flock.New(probe.path)
		ok, err := lock.TryLock()
		if err != nil {
			return nil, fmt.Errorf("probe %s lock: %w", probe.role, err)
		}
		if !ok {
			running = append(running, probe.role)
			continue
		}
		if err := lock.Unlock(); err != nil {
			return nil, fmt.Errorf("release %s lock: %w", probe.role, err)
		}
	}
	return running, nil
}
