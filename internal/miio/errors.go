package miio

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidToken    = errors.New("miio: invalid token")
	ErrMalformedPacket = errors.New("miio: malformed packet")
	ErrChecksum        = errors.New("miio: checksum mismatch")
	ErrTimeout         = errors.New("miio: request timed out")
	ErrIDMismatch      = errors.New("miio: response id mismatch")
)

// DeviceError is an error object returned by the device in place of a result.
type DeviceError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("miio: device error %d: %s", e.Code, e.Message)
}
