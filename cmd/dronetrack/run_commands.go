package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"dronetrack/internal/config"
	"dronetrack/internal/logging"
	"dronetrack/internal/station"
	"dronetrack/internal/tracker"
)

func newProducerCommand(ctx *commandContext) *cobra.Command {
	var source string
	var framePath string
	var track bool
	var logLevel string

	cmd := &cobra.Command{
		Use:     "producer",
		Aliases: []string{"station"},
		Short:   "Run the station: publish frames and fly from the tracking error",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if source = strings.TrimSpace(source); source != "" {
				cfg.Producer.Source = strings.ToLower(source)
			}
			if framePath = strings.TrimSpace(framePath); framePath != "" {
				expanded, err := config.ExpandPath(framePath)
				if err != nil {
					return err
				}
				cfg.Producer.FramePath = expanded
				if source == "" {
					cfg.Producer.Source = "file"
				}
			}
			if cmd.Flags().Changed("track") {
				cfg.Controller.TrackOnStart = track
			}
			if err := applyLogLevel(cfg, logLevel); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger, err := logging.NewFromConfig(cfg, "station")
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			return station.Run(cmd.Context(), cfg, station.Options{
				Logger:     logger,
				ConfigPath: ctx.watchPath(),
			})
		},
	}
	cmd.Flags().StringVar(&source, "source", "", "Frame source: synthetic or file")
	cmd.Flags().StringVar(&framePath, "frames", "", "Raw RGB565 frame file to replay (implies --source file)")
	cmd.Flags().BoolVar(&track, "track", false, "Start with autonomous tracking enabled")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override logging.level")
	return cmd
}

func newTrackerCommand(ctx *commandContext) *cobra.Command {
	var logLevel string

	cmd := &cobra.Command{
		Use:   "tracker",
		Short: "Run the tracker: analyze frames and publish the tracking error",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := applyLogLevel(cfg, logLevel); err != nil {
				return err
			}
			logger, err := logging.NewFromConfig(cfg, "tracker")
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			return tracker.Run(cmd.Context(), cfg, tracker.Options{Logger: logger})
		},
	}
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override logging.level")
	return cmd
}

func applyLogLevel(cfg *config.Config, level string) error {
	level = strings.TrimSpace(level)
	if level == "" {
		return nil
	}
	if _, err := logging.ParseLevel(level); err != nil {
		return err
	}
	cfg.Logging.Level = strings.ToLower(level)
	return nil
}
