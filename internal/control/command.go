package control

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"dronetrack/internal/logging"
)

// FlagProgressive marks a command that moves the drone; zero means hover.
const FlagProgressive int32 = 3

// Command is one progressive flight command. Values are normalized to
// [-1, 1].
type Command struct {
	Flags int32
	Roll  float32
	Pitch float32
	Gaz   float32
	Yaw   float32
}

// Hover is the neutral command.
var Hover = Command{}

// FlightAPI is the flight command transport.
type FlightAPI interface {
	Progress(ctx context.Context, cmd Command) error
	Takeoff(ctx context.Context) error
	Land(ctx context.Context) error
}

// Axis commands. Each maps one error component onto one control surface.
const (
	AxisX = "x"
	AxisY = "y"
	AxisZ = "z"
)

// AxisCommand builds the correction for a single error component: yaw
// follows x, throttle opposes y and pitch opposes z.
func AxisCommand(axis string, value float32) Command {
	switch axis {
	case AxisX:
		return Command{Flags: FlagProgressive, Yaw: value}
	case AxisY:
		return Command{Flags: FlagProgressive, Gaz: -value}
	case AxisZ:
		return Command{Flags: FlagProgressive, Pitch: -value}
	default:
		return Hover
	}
}

// Action is a manual flight action.
type Action string

const (
	ActionForward   Action = "forward"
	ActionBack      Action = "back"
	ActionLeft      Action = "left"
	ActionRight     Action = "right"
	ActionUp        Action = "up"
	ActionDown      Action = "down"
	ActionTurnLeft  Action = "turn-left"
	ActionTurnRight Action = "turn-right"
	ActionHover     Action = "hover"
)

var manualActions = map[Action]func(gain float32) Command{
	ActionForward:   func(g float32) Command { return Command{Flags: FlagProgressive, Pitch: -g} },
	ActionBack:      func(g float32) Command { return Command{Flags: FlagProgressive, Pitch: g} },
	ActionLeft:      func(g float32) Command { return Command{Flags: FlagProgressive, Roll: -g} },
	ActionRight:     func(g float32) Command { return Command{Flags: FlagProgressive, Roll: g} },
	ActionUp:        func(g float32) Command { return Command{Flags: FlagProgressive, Gaz: g} },
	ActionDown:      func(g float32) Command { return Command{Flags: FlagProgressive, Gaz: -g} },
	ActionTurnLeft:  func(g float32) Command { return Command{Flags: FlagProgressive, Yaw: -g} },
	ActionTurnRight: func(g float32) Command { return Command{Flags: FlagProgressive, Yaw: g} },
	ActionHover:     func(float32) Command { return Hover },
}

// ParseAction accepts an action name, case-insensitively.
func ParseAction(name string) (Action, error) {
	a := Action(strings.ToLower(strings.TrimSpace(name)))
	if _, ok := manualActions[a]; !ok {
		return "", fmt.Errorf("unknown action %q (valid: %s)", name, strings.Join(ActionNames(), ", "))
	}
	return a, nil
}

// ActionNames lists the manual actions in sorted order.
func ActionNames() []string {
	names := make([]string, 0, len(manualActions))
	for a := range manualActions {
		names = append(names, string(a))
	}
	sort.Strings(names)
	return names
}

// ManualCommand is the command for a at the given gain.
func ManualCommand(a Action, gain float32) (Command, error) {
	build, ok := manualActions[a]
	if !ok {
		return Hover, fmt.Errorf("unknown action %q", a)
	}
	return build(gain), nil
}

// LogFlight is a dry-run FlightAPI that logs each call. It stands in for a
// real transport on the bench.
type LogFlight struct {
	logger *slog.Logger

	mu       sync.Mutex
	progress int
	airborne bool
}

// NewLogFlight returns a dry-run flight API.
func NewLogFlight(logger *slog.Logger) *LogFlight {
	return &LogFlight{logger: logging.NewComponentLogger(logger, "flight")}
}

func (f *LogFlight) Progress(ctx context.Context, cmd Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	f.progress++
	f.mu.Unlock()
	f.logger.Debug("progress command",
		logging.Int("flags", int(cmd.Flags)),
		logging.Float64("roll", float64(cmd.Roll)),
		logging.Float64("pitch", float64(cmd.Pitch)),
		logging.Float64("gaz", float64(cmd.Gaz)),
		logging.Float64("yaw", float64(cmd.Yaw)),
	)
	return nil
}

func (f *LogFlight) Takeoff(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	f.airborne = true
	f.mu.Unlock()
	f.logger.Info("takeoff")
	return nil
}

func (f *LogFlight) Land(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	f.airborne = false
	f.mu.Unlock()
	f.logger.Info("land")
	return nil
}

// Airborne reports whether takeoff was the last of takeoff and land.
func (f *LogFlight) Airborne() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.airborne
}

// ProgressCount is the number of progress commands received.
func (f *LogFlight) ProgressCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.progress
}

// NewFlight builds the flight API named by kind.
func NewFlight(kind string, logger *slog.Logger) (FlightAPI, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", "log":
		return NewLogFlight(logger), nil
	default:
		return nil, fmt.Errorf("unsupported flight backend %q", kind)
	}
}
