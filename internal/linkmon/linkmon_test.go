package linkmon

import (
	"context"
	"testing"
	"time"

	"github.com/pilebones/go-udev/netlink"
)

func TestNewRequiresInterface(t *testing.T) {
	if m := New("  ", nil, nil, nil); m != nil {
		t.Fatal("expected nil monitor for empty interface")
	}
	var m *Monitor
	if err := m.Run(context.Background()); err != nil {
		t.Fatalf("nil monitor Run returned %v", err)
	}
	if m.Interface() != "" {
		t.Fatal("nil monitor has no interface")
	}
}

func TestBuildMatcher(t *testing.T) {
	m := New("wlan0", nil, nil, nil)
	matcher := m.buildMatcher()

	cases := []struct {
		name   string
		action netlink.KObjAction
		env    map[string]string
		want   bool
	}{
		{"net remove", netlink.REMOVE, map[string]string{"SUBSYSTEM": "net"}, true},
		{"net add", netlink.ADD, map[string]string{"SUBSYSTEM": "net"}, true},
		{"net move", netlink.MOVE, map[string]string{"SUBSYSTEM": "net"}, true},
		{"net change", netlink.CHANGE, map[string]string{"SUBSYSTEM": "net"}, false},
		{"block remove", netlink.REMOVE, map[string]string{"SUBSYSTEM": "block"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := matcher.Evaluate(netlink.UEvent{Action: tc.action, Env: tc.env})
			if got != tc.want {
				t.Fatalf("Evaluate = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestHandleEvent(t *testing.T) {
	cases := []struct {
		name   string
		action netlink.KObjAction
		env    map[string]string
		want   *Event
	}{
		{"removal of watched interface", netlink.REMOVE, map[string]string{"INTERFACE": "wlan0"}, &Event{Interface: "wlan0", Action: "remove"}},
		{"name from devpath", netlink.ADD, map[string]string{"DEVPATH": "/devices/pci0000:00/net/wlan0"}, &Event{Interface: "wlan0", Action: "add"}},
		{"other interface", netlink.REMOVE, map[string]string{"INTERFACE": "eth0"}, nil},
		{"renamed away", netlink.MOVE, map[string]string{"INTERFACE": "wlp2s0", "DEVPATH_OLD": "/devices/virtual/net/wlan0"}, &Event{Interface: "wlan0", Action: "remove"}},
		{"renamed to watched", netlink.MOVE, map[string]string{"INTERFACE": "wlan0", "DEVPATH_OLD": "/devices/virtual/net/wlp2s0"}, &Event{Interface: "wlan0", Action: "add"}},
		{"no name", netlink.REMOVE, map[string]string{}, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var got *Event
			m := New("wlan0", func(_ context.Context, ev Event) { got = &ev }, nil, nil)
			m.handleEvent(context.Background(), netlink.UEvent{Action: tc.action, Env: tc.env})
			switch {
			case tc.want == nil && got != nil:
				t.Fatalf("unexpected event %+v", *got)
			case tc.want != nil && got == nil:
				t.Fatalf("expected event %+v, handler not called", *tc.want)
			case tc.want != nil && *got != *tc.want:
				t.Fatalf("event = %+v, want %+v", *got, *tc.want)
			}
		})
	}
}

func TestRunReturnsOnCancel(t *testing.T) {
	m := New("wlan0", nil, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
