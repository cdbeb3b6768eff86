package ipc

import (
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
)

const (
	dialTimeout = 2 * time.Second
	// DefaultCallTimeout bounds each RPC. Manual pulses block for the pulse
	// duration, which stays well below it.
	DefaultCallTimeout = 10 * time.Second
)

// Client provides RPC access to the station.
type Client struct {
	conn    net.Conn
	client  *rpc.Client
	timeout time.Duration
}

// Dial connects to the IPC server at the given socket path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, dialTimeout)
	if err != nil {
		return nil, err
	}
	rpcClient := rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return &Client{conn: conn, client: rpcClient, timeout: DefaultCallTimeout}, nil
}

// SetTimeout overrides the per-call timeout; zero waits indefinitely.
func (c *Client) SetTimeout(d time.Duration) { c.timeout = d }

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		_ = c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func (c *Client) call(method string, req, resp any) error {
	call := c.client.Go(ServiceName+"."+method, req, resp, make(chan *rpc.Call, 1))
	if c.timeout <= 0 {
		<-call.Done
		return call.Error
	}
	timer := time.NewTimer(c.timeout)
	defer timer.Stop()
	select {
	case <-call.Done:
		return call.Error
	case <-timer.C:
		return fmt.Errorf("%s: no reply from station after %s", method, c.timeout)
	}
}

// Track enables or disables autonomous tracking.
func (c *Client) Track(enabled bool) (*TrackResponse, error) {
	var resp TrackResponse
	if err := c.call("Track", TrackRequest{Enabled: enabled}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status retrieves the station status.
func (c *Client) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.call("Status", StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Manual issues one manual pulse.
func (c *Client) Manual(action string) (*ManualResponse, error) {
	var resp ManualResponse
	if err := c.call("Manual", ManualRequest{Action: action}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Takeoff asks the aircraft to take off.
func (c *Client) Takeoff() (*TakeoffResponse, error) {
	var resp TakeoffResponse
	if err := c.call("Takeoff", TakeoffRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Land disables tracking and lands the aircraft.
func (c *Client) Land() (*LandResponse, error) {
	var resp LandResponse
	if err := c.call("Land", LandRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// History reads the pulse journal.
func (c *Client) History(req HistoryRequest) (*HistoryResponse, error) {
	var resp HistoryResponse
	if err := c.call("History", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
