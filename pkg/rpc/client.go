package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"
)

// RemoteError is an error reported by the server for one call.
type RemoteError struct {
	Method  string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("rpc %s: %s", e.Method, e.Message)
}

// Client calls methods on one server over a single lazily dialled
// connection. A transport failure drops the connection and the next call
// dials again. Calls are serialised.
type Client struct {
	addr        string
	dialTimeout time.Duration

	mu     sync.Mutex
	conn   net.Conn
	enc    *json.Encoder
	dec    *json.Decoder
	nextID int64
}

// NewClient creates a Client for addr. No connection is made until the
// first call.
func NewClient(addr string, dialTimeout time.Duration) *Client {
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}
	return &Client{addr: addr, dialTimeout: dialTimeout}
}

// Call invokes method with params and decodes the result into result, which
// may be nil. The deadline and cancellation of ctx apply to the network
// round trip.
func (c *Client) Call(ctx context.Context, method string, params, result any) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("marshaling params: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.connect(ctx); err != nil {
		return err
	}
	c.nextID++
	id := strconv.FormatInt(c.nextID, 10)

	deadline, _ := ctx.Deadline()
	if err := c.conn.SetDeadline(deadline); err != nil {
		c.reset()
		return fmt.Errorf("setting deadline: %w", err)
	}
	conn := c.conn
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })
	defer stop()

	resp, err := c.roundTrip(Request{Method: method, ID: id, Params: raw})
	if err != nil {
		c.reset()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("rpc %s: %w", method, ctxErr)
		}
		return fmt.Errorf("rpc %s: %w", method, err)
	}
	if resp.ID != id {
		c.reset()
		return fmt.Errorf("rpc %s: response id %q does not match request %q", method, resp.ID, id)
	}
	if resp.Error != "" {
		return &RemoteError{Method: method, Message: resp.Error}
	}
	if result == nil || len(resp.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Data, result); err != nil {
		return fmt.Errorf("rpc %s: decoding result: %w", method, err)
	}
	return nil
}

func (c *Client) connect(ctx context.Context) error {
	if c.conn != nil {
		return nil
	}
	d := net.Dialer{Timeout: c.dialTimeout}
	conn, err := d.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", c.addr, err)
	}
	c.conn = conn
	c.enc = json.NewEncoder(conn)
	c.dec = json.NewDecoder(conn)
	return nil
}

func (c *Client) roundTrip(req Request) (Response, error) {
	var resp Response
	if err := c.enc.Encode(req); err != nil {
		return resp, fmt.Errorf("sending request: %w", err)
	}
	if err := c.dec.Decode(&resp); err != nil {
		return resp, fmt.Errorf("reading response: %w", err)
	}
	return resp, nil
}

func (c *Client) reset() {
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.conn, c.enc, c.dec = nil, nil, nil
}

// Close closes the connection, if any.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn, c.enc, c.dec = nil, nil, nil
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}
