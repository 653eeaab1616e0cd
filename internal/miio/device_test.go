package miio

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testToken = "00112233445566778899aabbccddeeff"

// fakeBulb is a minimal miIO responder on a local UDP socket.
// A nil handler makes it drop every packet.
type fakeBulb struct {
	conn     net.PacketConn
	cipher   *tokenCipher
	handle   func(req request) (any, *DeviceError)
	requests chan request
}

func newFakeBulb(t *testing.T, handle func(req request) (any, *DeviceError)) *fakeBulb {
	t.Helper()

	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	token, err := ParseToken(testToken)
	require.NoError(t, err)
	c, err := newTokenCipher(token)
	require.NoError(t, err)

	b := &fakeBulb{
		conn:     conn,
		cipher:   c,
		handle:   handle,
		requests: make(chan request, 16),
	}
	t.Cleanup(func() { conn.Close() })
	go b.serve()
	return b
}

func (b *fakeBulb) addr() string {
	return b.conn.LocalAddr().String()
}

func (b *fakeBulb) serve() {
	buf := make([]byte, 4096)
	for {
		n, from, err := b.conn.ReadFrom(buf)
		if err != nil {
			return
		}
		if b.handle == nil {
			continue
		}
		pkt := buf[:n]

		if n == headerSize {
			reply := make([]byte, headerSize)
			binary.BigEndian.PutUint16(reply[0:], magic)
			binary.BigEndian.PutUint16(reply[2:], headerSize)
			binary.BigEndian.PutUint32(reply[8:], 0x0badcafe)
			binary.BigEndian.PutUint32(reply[12:], 1000)
			b.conn.WriteTo(reply, from)
			continue
		}

		h, body, err := b.cipher.decode(pkt)
		if err != nil {
			continue
		}
		if h.DeviceID != 0x0badcafe || h.Stamp <= 1000 {
			continue
		}

		var req request
		if err := json.Unmarshal(body, &req); err != nil {
			continue
		}
		b.requests <- req

		result, devErr := b.handle(req)
		resp := map[string]any{"id": req.ID}
		if devErr != nil {
			resp["error"] = devErr
		} else {
			resp["result"] = result
		}
		payload, _ := json.Marshal(resp)
		b.conn.WriteTo(b.cipher.encode(h.DeviceID, h.Stamp, append(payload, 0)), from)
	}
}

func TestDevice_GetProperties(t *testing.T) {
	bulb := newFakeBulb(t, func(req request) (any, *DeviceError) {
		return []any{"off", "42"}, nil
	})

	dev, err := New(bulb.addr(), testToken, WithTimeout(time.Second))
	require.NoError(t, err)
	defer dev.Close()

	result, err := dev.GetProperties(context.Background(), "power", "bright")
	require.NoError(t, err)
	assert.Equal(t, []any{"off", "42"}, result)
	req := <-bulb.requests
	assert.Equal(t, "get_prop", req.Method)
	assert.Equal(t, []any{"power", "bright"}, req.Params)
}

func TestDevice_SetCommandsReturnAck(t *testing.T) {
	bulb := newFakeBulb(t, func(req request) (any, *DeviceError) {
		return []string{"ok"}, nil
	})

	dev, err := New(bulb.addr(), testToken, WithTimeout(time.Second))
	require.NoError(t, err)
	defer dev.Close()

	ack, err := dev.SetPower(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, []any{"ok"}, ack)

	ack, err = dev.SetBright(context.Background(), 37)
	require.NoError(t, err)
	assert.Equal(t, []any{"ok"}, ack)

	req := <-bulb.requests
	assert.Equal(t, "set_power", req.Method)
	assert.Equal(t, []any{"on"}, req.Params)

	req = <-bulb.requests
	assert.Equal(t, "set_bright", req.Method)
	assert.Equal(t, []any{float64(37)}, req.Params)
}

func TestDevice_ScalarResultIsWrapped(t *testing.T) {
	bulb := newFakeBulb(t, func(req request) (any, *DeviceError) {
		return "ok", nil
	})

	dev, err := New(bulb.addr(), testToken, WithTimeout(time.Second))
	require.NoError(t, err)
	defer dev.Close()

	ack, err := dev.SetBright(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, []any{"ok"}, ack)
}

func TestDevice_DeviceError(t *testing.T) {
	bulb := newFakeBulb(t, func(req request) (any, *DeviceError) {
		return nil, &DeviceError{Code: -5001, Message: "invalid params"}
	})

	dev, err := New(bulb.addr(), testToken, WithTimeout(time.Second))
	require.NoError(t, err)
	defer dev.Close()

	_, err = dev.SetBright(context.Background(), 500)
	var devErr *DeviceError
	require.True(t, errors.As(err, &devErr))
	assert.Equal(t, -5001, devErr.Code)
}

func TestDevice_Timeout(t *testing.T) {
	bulb := newFakeBulb(t, nil)

	dev, err := New(bulb.addr(), testToken, WithTimeout(50*time.Millisecond))
	require.NoError(t, err)
	defer dev.Close()

	_, err = dev.GetProperties(context.Background(), "power")
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestDevice_ContextCancelled(t *testing.T) {
	bulb := newFakeBulb(t, nil)

	dev, err := New(bulb.addr(), testToken, WithTimeout(5*time.Second))
	require.NoError(t, err)
	defer dev.Close()

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	start := time.Now()
	_, err = dev.GetProperties(ctx, "power")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestNew_DefaultPort(t *testing.T) {
	dev, err := New("192.168.1.20", testToken)
	require.NoError(t, err)
	assert.Equal(t, "192.168.1.20:54321", dev.Address())

	dev, err = New("192.168.1.20:1234", testToken)
	require.NoError(t, err)
	assert.Equal(t, "192.168.1.20:1234", dev.Address())
}

func TestNew_InvalidToken(t *testing.T) {
	for _, token := range []string{"", "xyz", "0011", testToken + "00"} {
		_, err := New("10.0.0.5", token)
		assert.ErrorIs(t, err, ErrInvalidToken, "token %q", token)
	}
}
