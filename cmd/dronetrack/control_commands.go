package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"dronetrack/internal/control"
	"dronetrack/internal/ipc"
)

func newTrackCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:       "track on|off",
		Short:     "Enable or disable autonomous tracking",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"on", "off"},
		RunE: func(cmd *cobra.Command, args []string) error {
			var enabled bool
			switch strings.ToLower(strings.TrimSpace(args[0])) {
			case "on", "true", "1":
				enabled = true
			case "off", "false", "0":
				enabled = false
			default:
				return fmt.Errorf("track expects on or off, got %q", args[0])
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Track(enabled)
				if err != nil {
					return err
				}
				state := "disabled"
				if resp.Enabled {
					state = "enabled"
				}
				out := cmd.OutOrStdout()
				if resp.Changed {
					fmt.Fprintf(out, "Tracking %s\n", state)
				} else {
					fmt.Fprintf(out, "Tracking already %s\n", state)
				}
				return nil
			})
		},
	}
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show station, producer and controller status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Status()
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp)
				}
				out := cmd.OutOrStdout()
				for _, line := range stationStatusLines(resp, shouldColorize(out)) {
					fmt.Fprintln(out, line)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newFlightCommands(ctx *commandContext) []*cobra.Command {
	manualCmd := &cobra.Command{
		Use:       "manual <action>",
		Short:     "Issue one manual pulse (" + strings.Join(control.ActionNames(), ", ") + ")",
		Args:      cobra.ExactArgs(1),
		ValidArgs: control.ActionNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := control.ParseAction(args[0]); err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Manual(args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), capitalize(resp.Message))
				return nil
			})
		},
	}

	takeoffCmd := &cobra.Command{
		Use:   "takeoff",
		Short: "Take off",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Takeoff()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s (airborne: %s)\n", capitalize(resp.Message), yesNo(resp.Airborne))
				return nil
			})
		},
	}

	landCmd := &cobra.Command{
		Use:   "land",
		Short: "Disable tracking and land",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Land()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s (airborne: %s)\n", capitalize(resp.Message), yesNo(resp.Airborne))
				return nil
			})
		},
	}

	return []*cobra.Command{manualCmd, takeoffCmd, landCmd}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
