// Package bulb provides the two best-effort device primitives the wake-up
// schedule is built from: ensure a bulb is on, and set its brightness.
package bulb

import (
	"context"
	"time"

	"github.com/dokzlo13/sunrise/internal/miio"
)

// Device identifies a bulb on the network.
type Device struct {
	Name    string
	Address string
	Token   string
}

// Client is a single connection to a bulb. Each primitive call dials its own
// Client and closes it before returning.
type Client interface {
	GetProperties(ctx context.Context, props ...string) ([]any, error)
	SetPower(ctx context.Context, on bool) ([]any, error)
	SetBright(ctx context.Context, level int) ([]any, error)
	Close() error
}

// Dialer creates clients for devices.
type Dialer interface {
	Dial(device Device) (Client, error)
}

// DialFunc adapts a function to the Dialer interface.
type DialFunc func(device Device) (Client, error)

// Dial implements Dialer.
func (f DialFunc) Dial(device Device) (Client, error) {
	return f(device)
}

// MiioDialer dials bulbs over the miIO LAN protocol.
type MiioDialer struct {
	Timeout time.Duration
}

// Dial implements Dialer.
func (d MiioDialer) Dial(device Device) (Client, error) {
	dev, err := miio.New(device.Address, device.Token, miio.WithTimeout(d.Timeout))
	if err != nil {
		return nil, err
	}
	return dev, nil
}
