package miio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const defaultTimeout = 5 * time.Second

// Device is a client for a single miIO device.
// It handshakes lazily on the first command and is safe for sequential use
// from multiple goroutines.
type Device struct {
	address string
	cipher  *tokenCipher
	timeout time.Duration

	mu         sync.Mutex
	conn       net.Conn
	handshaken bool
	deviceID   uint32
	stamp      uint32
	stampAt    time.Time
	requestID  int
}

// Option configures a Device.
type Option func(*Device)

// WithTimeout sets the per-exchange timeout (default 5s).
func WithTimeout(timeout time.Duration) Option {
	return func(d *Device) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

// New creates a client for the device at address (host or host:port) using the
// hex encoded token. No network traffic happens until the first command.
func New(address, token string, opts ...Option) (*Device, error) {
	tok, err := ParseToken(token)
	if err != nil {
		return nil, err
	}

	c, err := newTokenCipher(tok)
	if err != nil {
		return nil, err
	}

	if _, _, err := net.SplitHostPort(address); err != nil {
		address = net.JoinHostPort(address, strconv.Itoa(DefaultPort))
	}

	d := &Device{
		address: address,
		cipher:  c,
		timeout: defaultTimeout,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Address returns the host:port the client talks to.
func (d *Device) Address() string {
	return d.address
}

// Close releases the UDP socket.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.conn == nil {
		return nil
	}
	err := d.conn.Close()
	d.conn = nil
	d.handshaken = false
	return err
}

type request struct {
	ID     int    `json:"id"`
	Method string `json:"method"`
	Params any    `json:"params"`
}

type response struct {
	ID     int             `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *DeviceError    `json:"error"`
}

// Send issues method with params and returns the result list.
// Non-list results are wrapped into a single element list.
func (d *Device) Send(ctx context.Context, method string, params any) ([]any, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.handshaken {
		if err := d.handshake(ctx); err != nil {
			return nil, err
		}
	}

	if params == nil {
		params = []any{}
	}

	d.requestID++
	req := request{ID: d.requestID, Method: method, Params: params}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s request: %w", method, err)
	}

	// The device rejects stamps older than its own clock.
	elapsed := uint32(time.Since(d.stampAt) / time.Second)
	pkt := d.cipher.encode(d.deviceID, d.stamp+elapsed+1, payload)

	log.Debug().
		Str("address", d.address).
		Str("method", method).
		Int("id", req.ID).
		Msg("Sending miio command")

	raw, err := d.exchange(ctx, pkt)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}

	_, body, err := d.cipher.decode(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}

	var resp response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%s: %w: %v", method, ErrMalformedPacket, err)
	}
	if resp.Error != nil {
		return nil, resp.Error
	}
	if resp.ID != req.ID {
		return nil, fmt.Errorf("%s: %w: sent %d, got %d", method, ErrIDMismatch, req.ID, resp.ID)
	}

	var result []any
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		var single any
		if err := json.Unmarshal(resp.Result, &single); err != nil {
			return nil, fmt.Errorf("%s: %w: %v", method, ErrMalformedPacket, err)
		}
		result = []any{single}
	}
	return result, nil
}

// GetProperties queries the named properties, returned in request order.
func (d *Device) GetProperties(ctx context.Context, props ...string) ([]any, error) {
	return d.Send(ctx, "get_prop", props)
}

// SetPower switches the device on or off.
func (d *Device) SetPower(ctx context.Context, on bool) ([]any, error) {
	state := "off"
	if on {
		state = "on"
	}
	return d.Send(ctx, "set_power", []string{state})
}

// SetBright sets brightness in percent.
func (d *Device) SetBright(ctx context.Context, level int) ([]any, error) {
	return d.Send(ctx, "set_bright", []int{level})
}

func (d *Device) handshake(ctx context.Context) error {
	if d.conn == nil {
		var dialer net.Dialer
		conn, err := dialer.DialContext(ctx, "udp", d.address)
		if err != nil {
			return fmt.Errorf("failed to dial %s: %w", d.address, err)
		}
		d.conn = conn
	}

	raw, err := d.exchange(ctx, helloPacket())
	if err != nil {
		return fmt.Errorf("handshake: %w", err)
	}

	h, err := parseHeader(raw)
	if err != nil {
		return fmt.Errorf("handshake: %w", err)
	}

	d.deviceID = h.DeviceID
	d.stamp = h.Stamp
	d.stampAt = time.Now()
	d.handshaken = true

	log.Debug().
		Str("address", d.address).
		Uint32("device_id", h.DeviceID).
		Uint32("stamp", h.Stamp).
		Msg("miio handshake complete")
	return nil
}

// exchange writes one packet and waits for one reply, bounded by the client
// timeout and the context.
func (d *Device) exchange(ctx context.Context, pkt []byte) ([]byte, error) {
	deadline := time.Now().Add(d.timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	if err := d.conn.SetDeadline(deadline); err != nil {
		return nil, err
	}

	// Unblock the read as soon as the context is cancelled.
	stop := context.AfterFunc(ctx, func() {
		d.conn.SetDeadline(time.Now())
	})
	defer stop()

	if _, err := d.conn.Write(pkt); err != nil {
		return nil, err
	}

	buf := make([]byte, 4096)
	n, err := d.conn.Read(buf)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return nil, ErrTimeout
		}
		return nil, err
	}
	return buf[:n], nil
}
