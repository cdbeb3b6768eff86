// Package linkmon watches udev netlink events for the network interface
// carrying the flight link. Losing that interface is a failsafe trigger: the
// station disables tracking so no stale corrections are queued for a drone
// it can no longer reach.
package linkmon

import (
	"context"
	"log/slog"
	"strings"

	"github.com/pilebones/go-udev/netlink"

	"dronetrack/internal/logging"
	"dronetrack/internal/metrics"
)

// Event is a state change of the watched interface.
type Event struct {
	Interface string
	// Action is "add", "remove" or "move". A rename away from the watched
	// name is reported as "remove".
	Action string
}

// Lost reports whether the interface went away.
func (e Event) Lost() bool { return e.Action == string(netlink.REMOVE) }

// Handler receives events for the watched interface.
type Handler func(ctx context.Context, ev Event)

// Monitor listens for net subsystem uevents. A nil Monitor is valid and
// does nothing.
type Monitor struct {
	iface   string
	handler Handler
	metrics *metrics.Station
	logger  *slog.Logger
}

// New returns a monitor for iface, or nil when iface is empty.
func New(iface string, handler Handler, m *metrics.Station, logger *slog.Logger) *Monitor {
	iface = strings.TrimSpace(iface)
	if iface == "" {
		return nil
	}
	return &Monitor{
		iface:   iface,
		handler: handler,
		metrics: m,
		logger:  logging.NewComponentLogger(logger, "link-monitor"),
	}
}

// Interface is the watched interface name.
func (m *Monitor) Interface() string {
	if m == nil {
		return ""
	}
	return m.iface
}

// Run listens until ctx is done. Failing to open the netlink socket is not
// fatal: the station keeps running without the failsafe.
func (m *Monitor) Run(ctx context.Context) error {
	if m == nil {
		return nil
	}
	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		logging.WarnWithContext(m.logger, "failed to connect to netlink socket", "netlink_connect_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "ensure the station may open netlink sockets"),
			logging.String(logging.FieldImpact, "tracking will not stop automatically when the flight link drops"),
		)
		<-ctx.Done()
		return nil
	}
	defer conn.Close()

	queue := make(chan netlink.UEvent)
	errs := make(chan error)
	quit := conn.Monitor(queue, errs, m.buildMatcher())
	defer close(quit)

	m.logger.Info("link monitor started",
		logging.String(logging.FieldEventType, "link_monitor_started"),
		logging.String("interface", m.iface),
	)
	for {
		select {
		case <-ctx.Done():
			return nil
		case uevent := <-queue:
			m.handleEvent(ctx, uevent)
		case err := <-errs:
			logging.WarnWithContext(m.logger, "netlink monitor error", "netlink_monitor_error",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check kernel netlink subsystem"),
				logging.String(logging.FieldImpact, "link loss may go unnoticed"),
			)
		}
	}
}

// buildMatcher accepts net subsystem add, remove and move events.
func (m *Monitor) buildMatcher() netlink.Matcher {
	action := "add|remove|move"
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Action: &action,
		Env: map[string]string{
			"SUBSYSTEM": "net",
		},
	})
	return rules
}

func (m *Monitor) handleEvent(ctx context.Context, uevent netlink.UEvent) {
	ev, ok := m.classify(uevent)
	if !ok {
		m.logger.Debug("ignoring net event",
			logging.String("action", string(uevent.Action)),
			logging.String("kobj", uevent.KObj),
		)
		return
	}
	m.metrics.LinkEvent(ev.Action)
	if ev.Lost() {
		logging.WarnWithContext(m.logger, "flight link interface removed", "link_lost",
			logging.String("interface", ev.Interface),
			logging.String(logging.FieldImpact, "tracking disabled"),
			logging.String(logging.FieldErrorHint, "re-enable tracking once the link is back"),
		)
	} else {
		m.logger.Info("flight link interface event",
			logging.String(logging.FieldEventType, "link_event"),
			logging.String("interface", ev.Interface),
			logging.String("action", ev.Action),
		)
	}
	if m.handler != nil {
		m.handler(ctx, ev)
	}
}

// classify maps a uevent onto the watched interface. A move carries the new
// name in INTERFACE and the old device path in DEVPATH_OLD.
func (m *Monitor) classify(uevent netlink.UEvent) (Event, bool) {
	name := interfaceName(uevent.Env["INTERFACE"], uevent.Env["DEVPATH"])
	switch uevent.Action {
	case netlink.ADD, netlink.REMOVE:
		if name == m.iface {
			return Event{Interface: name, Action: string(uevent.Action)}, true
		}
	case netlink.MOVE:
		old := interfaceName("", uevent.Env["DEVPATH_OLD"])
		switch {
		case old == m.iface && name != m.iface:
			return Event{Interface: old, Action: string(netlink.REMOVE)}, true
		case name == m.iface && old != m.iface:
			return Event{Interface: name, Action: string(netlink.ADD)}, true
		}
	}
	return Event{}, false
}

func interfaceName(iface, devpath string) string {
	if iface = strings.TrimSpace(iface); iface != "" {
		return iface
	}
	if devpath == "" {
		return ""
	}
	parts := strings.Split(devpath, "/")
	return parts[len(parts)-1]
}
