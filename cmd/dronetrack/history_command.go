package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"dronetrack/internal/ipc"
	"dronetrack/internal/journal"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var source string
	var session string
	var all bool
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recently issued flight commands",
		RunE: func(cmd *cobra.Command, args []string) error {
			source = strings.ToLower(strings.TrimSpace(source))
			if source != "" && source != journal.SourceTrack && source != journal.SourceManual {
				return fmt.Errorf("--source must be %s or %s", journal.SourceTrack, journal.SourceManual)
			}
			if limit < 0 {
				return fmt.Errorf("--limit must not be negative")
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.History(ipc.HistoryRequest{
					SessionID:   strings.TrimSpace(session),
					AllSessions: all,
					Source:      source,
					Limit:       limit,
				})
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp)
				}
				out := cmd.OutOrStdout()
				if len(resp.Entries) == 0 {
					fmt.Fprintln(out, "No commands recorded")
					return nil
				}
				fmt.Fprintln(out, renderHistory(resp, all))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&source, "source", "", "Filter by source (track or manual)")
	cmd.Flags().StringVar(&session, "session", "", "Session id (default: the running session)")
	cmd.Flags().BoolVar(&all, "all", false, "Include every session")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum rows")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func renderHistory(resp *ipc.HistoryResponse, withSession bool) string {
	title := cases.Title(language.Und)
	headers := []string{"ID", "Time", "Source", "Action", "Command", "Error", "Pulse"}
	aligns := []columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight}
	if withSession {
		headers = append(headers, "Session")
		aligns = append(aligns, alignLeft)
	}

	rows := make([][]string, 0, len(resp.Entries))
	for _, e := range resp.Entries {
		row := []string{
			strconv.FormatInt(e.ID, 10),
			formatIssuedAt(e.IssuedAt),
			title.String(e.Source),
			e.Action,
			formatCommand(e),
			formatError(e),
			formatPulse(e),
		}
		if withSession {
			row = append(row, shortSession(e.SessionID))
		}
		rows = append(rows, row)
	}

	var footer []string
	if len(resp.Counts) > 0 {
		parts := make([]string, 0, len(resp.Counts))
		for _, c := range resp.Counts {
			parts = append(parts, fmt.Sprintf("%s %d", title.String(c.Source), c.Count))
		}
		footer = []string{"", "Session total", strings.Join(parts, ", ")}
	}
	return renderTable(headers, rows, aligns, footer)
}

func formatIssuedAt(value string) string {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return value
	}
	return t.Local().Format("15:04:05.000")
}

func formatCommand(e ipc.PulseEntry) string {
	if e.Flags == 0 && e.Roll == 0 && e.Pitch == 0 && e.Gaz == 0 && e.Yaw == 0 {
		return "-"
	}
	var parts []string
	for _, axis := range []struct {
		name  string
		value float32
	}{{"roll", e.Roll}, {"pitch", e.Pitch}, {"gaz", e.Gaz}, {"yaw", e.Yaw}} {
		if axis.value != 0 {
			parts = append(parts, fmt.Sprintf("%s=%+.2f", axis.name, axis.value))
		}
	}
	if len(parts) == 0 {
		return "hover"
	}
	return strings.Join(parts, " ")
}

func formatError(e ipc.PulseEntry) string {
	if e.Source != journal.SourceTrack {
		return "-"
	}
	return fmt.Sprintf("%+.2f/%+.2f/%+.2f", e.ErrorX, e.ErrorY, e.ErrorZ)
}

func formatPulse(e ipc.PulseEntry) string {
	if e.DurationMS == 0 && e.Repeats == 0 {
		return "-"
	}
	return fmt.Sprintf("%dms x%d", e.DurationMS, e.Repeats)
}

func shortSession(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
