package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"dronetrack/internal/ipc"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

const (
	statusLabelWidth = 18
	statusIndent     = "  "
)

func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	statusText := statusKindLabel(kind)
	if message != "" {
		statusText = fmt.Sprintf("[%s] %s", statusText, message)
	} else {
		statusText = fmt.Sprintf("[%s]", statusText)
	}
	base := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, label+":", statusText)
	if colorize {
		if color := statusKindColor(kind); color != "" {
			return color + base + ansiReset
		}
	}
	return base
}

func statusKindLabel(kind statusKind) string {
	switch kind {
	case statusOK:
		return "OK"
	case statusWarn:
		return "WARN"
	case statusError:
		return "ERROR"
	default:
		return "INFO"
	}
}

func statusKindColor(kind statusKind) string {
	switch kind {
	case statusOK:
		return ansiGreen
	case statusWarn:
		return ansiYellow
	case statusError:
		return ansiRed
	case statusInfo:
		return ansiBlue
	default:
		return ""
	}
}

func renderSectionHeader(title string, colorize bool) []string {
	line := fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	rule := strings.Repeat("-", len(line))
	if colorize {
		line = ansiBlue + line + ansiReset
		rule = ansiBlue + rule + ansiReset
	}
	return []string{line, rule}
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func stationStatusLines(s *ipc.StatusResponse, colorize bool) []string {
	lines := renderSectionHeader("Station", colorize)
	uptime := (time.Duration(s.UptimeSeconds) * time.Second).String()
	lines = append(lines,
		renderStatusLine("Station", statusOK, fmt.Sprintf("running (pid %d, up %s)", s.PID, uptime), colorize),
		renderStatusLine("Session", statusInfo, s.SessionID, colorize),
	)

	frameKind := statusOK
	frameMsg := fmt.Sprintf("%d published from %s (last id %d)", s.FramesPublished, s.Source, s.LastFrameID)
	if s.FramesPublished == 0 {
		frameKind = statusWarn
		frameMsg = "no frames published yet from " + s.Source
	}
	lines = append(lines, renderStatusLine("Frames", frameKind, frameMsg, colorize))
	if s.BusFrameID >= 0 {
		lines = append(lines, renderStatusLine("Bus frame", statusInfo,
			fmt.Sprintf("id %d, %dx%d, %d bytes", s.BusFrameID, s.FrameWidth, s.FrameHeight, s.FrameBytes), colorize))
	} else {
		lines = append(lines, renderStatusLine("Bus frame", statusInfo, "none yet", colorize))
	}

	busMsg := "attached to an existing bus"
	if s.BusInitialized {
		busMsg = "created and initialized the bus"
	}
	lines = append(lines, renderStatusLine("Bus", statusInfo, busMsg, colorize))

	if s.LinkInterface != "" {
		lines = append(lines, renderStatusLine("Link monitor", statusInfo, "watching "+s.LinkInterface, colorize))
	} else {
		lines = append(lines, renderStatusLine("Link monitor", statusWarn, "disabled (controller.link_interface unset)", colorize))
	}

	lines = append(lines, "")
	lines = append(lines, renderSectionHeader("Controller", colorize)...)
	trackKind, trackMsg := statusWarn, "disabled"
	if s.Tracking {
		trackKind, trackMsg = statusOK, "enabled"
	}
	lines = append(lines,
		renderStatusLine("Tracking", trackKind, trackMsg, colorize),
		renderStatusLine("Airborne", statusInfo, yesNo(s.Airborne), colorize),
		renderStatusLine("Error vector", statusInfo, fmt.Sprintf("x=%+.3f y=%+.3f z=%+.3f", s.ErrorX, s.ErrorY, s.ErrorZ), colorize),
		renderStatusLine("Pulses", statusInfo, fmt.Sprintf("%d tracking, %d manual", s.TrackPulses, s.ManualPulses), colorize),
	)
	if s.LastAction != "" {
		msg := s.LastAction
		if s.LastPulseAt != "" {
			msg += " at " + s.LastPulseAt
		}
		lines = append(lines, renderStatusLine("Last pulse", statusInfo, msg, colorize))
	}
	lines = append(lines, renderStatusLine("Tuning", statusInfo,
		fmt.Sprintf("x>%.2f z>%.2f pulse %dms repeat %dms gain %.2f",
			s.XThreshold, s.ZThreshold, s.PulseMillis, s.RepeatMillis, s.ManualGain), colorize))
	if s.JournalPath != "" {
		lines = append(lines, renderStatusLine("Journal", statusInfo, s.JournalPath, colorize))
	}
	return lines
}
