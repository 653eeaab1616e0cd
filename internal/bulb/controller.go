package bulb

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Controller runs primitives against bulbs. Every call dials a fresh client,
// so a Controller holds no per-device state.
type Controller struct {
	dialer  Dialer
	limiter *rate.Limiter
}

// NewController creates a controller. rateLimitRPS bounds device commands per
// second across all bulbs; 0 disables limiting.
func NewController(dialer Dialer, rateLimitRPS float64) *Controller {
	c := &Controller{dialer: dialer}
	if rateLimitRPS > 0 {
		burst := int(rateLimitRPS)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rateLimitRPS), burst)
	}
	return c
}

// EnsureOn queries power and brightness and powers the bulb on when it reports
// "off". A bulb that is already on gets no command.
func (c *Controller) EnsureOn(ctx context.Context, device Device) Result {
	res := Result{Device: device, Action: ActionEnsureOn}

	client, err := c.dial(ctx, device)
	if err != nil {
		return failed(res, err)
	}
	defer client.Close()

	props, err := client.GetProperties(ctx, "power", "bright")
	if err != nil {
		return failed(res, fmt.Errorf("get_prop: %w", err))
	}
	if len(props) < 1 {
		return failed(res, fmt.Errorf("get_prop: empty response"))
	}

	log.Debug().
		Str("device", device.Address).
		Interface("power", props[0]).
		Interface("bright", propAt(props, 1)).
		Msg("Bulb state")

	if power, _ := props[0].(string); power != "off" {
		res.Outcome = OutcomeNoop
		return res
	}

	if err := c.wait(ctx); err != nil {
		return failed(res, err)
	}
	ack, err := client.SetPower(ctx, true)
	if err != nil {
		return failed(res, fmt.Errorf("set_power: %w", err))
	}
	return acknowledged(res, ack)
}

// SetBrightness sets the bulb brightness to level percent.
func (c *Controller) SetBrightness(ctx context.Context, device Device, level int) Result {
	res := Result{Device: device, Action: ActionSetBrightness, Level: level}

	client, err := c.dial(ctx, device)
	if err != nil {
		return failed(res, err)
	}
	defer client.Close()

	ack, err := client.SetBright(ctx, level)
	if err != nil {
		return failed(res, fmt.Errorf("set_bright: %w", err))
	}
	return acknowledged(res, ack)
}

func (c *Controller) dial(ctx context.Context, device Device) (Client, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	client, err := c.dialer.Dial(device)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	return client, nil
}

func (c *Controller) wait(ctx context.Context) error {
	if c.limiter == nil {
		return ctx.Err()
	}
	return c.limiter.Wait(ctx)
}

func failed(res Result, err error) Result {
	res.Outcome = OutcomeFailed
	res.Err = err
	return res
}

func acknowledged(res Result, ack []any) Result {
	res.Ack = ack
	if isOK(ack) {
		res.Outcome = OutcomeOK
	} else {
		res.Outcome = OutcomeRejected
	}
	return res
}

func propAt(props []any, i int) any {
	if i < len(props) {
		return props[i]
	}
	return nil
}
