package miio

import (
	"bytes"
	"errors"
	"testing"
)

func TestCipher_EncodeDecode(t *testing.T) {
	token, err := ParseToken(testToken)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	c, err := newTokenCipher(token)
	if err != nil {
		t.Fatalf("newTokenCipher: %v", err)
	}

	payload := []byte(`{"id":1,"method":"get_prop","params":["power","bright"]}`)
	pkt := c.encode(0x01020304, 77, payload)

	if len(pkt)%16 != 0 {
		t.Errorf("packet length %d is not block aligned", len(pkt))
	}

	h, body, err := c.decode(pkt)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if h.DeviceID != 0x01020304 || h.Stamp != 77 || int(h.Length) != len(pkt) {
		t.Errorf("unexpected header %+v", h)
	}
	if !bytes.Equal(body, payload) {
		t.Errorf("body = %q, want %q", body, payload)
	}
}

func TestCipher_DetectsTampering(t *testing.T) {
	token, _ := ParseToken(testToken)
	c, _ := newTokenCipher(token)

	pkt := c.encode(1, 2, []byte(`{"id":1}`))
	pkt[len(pkt)-1] ^= 0xff

	if _, _, err := c.decode(pkt); !errors.Is(err, ErrChecksum) {
		t.Errorf("decode tampered packet: err = %v, want ErrChecksum", err)
	}
}

func TestCipher_WrongToken(t *testing.T) {
	token, _ := ParseToken(testToken)
	other, _ := ParseToken("ffeeddccbbaa99887766554433221100")
	sender, _ := newTokenCipher(token)
	receiver, _ := newTokenCipher(other)

	pkt := sender.encode(1, 2, []byte(`{"id":1}`))
	if _, _, err := receiver.decode(pkt); !errors.Is(err, ErrChecksum) {
		t.Errorf("decode with wrong token: err = %v, want ErrChecksum", err)
	}
}

func TestParseHeader_Rejects(t *testing.T) {
	hello := helloPacket()

	tests := []struct {
		name string
		pkt  []byte
	}{
		{"short", hello[:10]},
		{"bad_magic", append([]byte{0x00, 0x00}, hello[2:]...)},
		{"length_beyond_packet", append([]byte{0x21, 0x31, 0x01, 0x00}, hello[4:]...)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parseHeader(tt.pkt); !errors.Is(err, ErrMalformedPacket) {
				t.Errorf("parseHeader: err = %v, want ErrMalformedPacket", err)
			}
		})
	}
}

func TestHelloPacket(t *testing.T) {
	h, err := parseHeader(helloPacket())
	if err != nil {
		t.Fatalf("parseHeader(hello): %v", err)
	}
	if h.Length != headerSize || h.Unknown != 0xffffffff || h.DeviceID != 0xffffffff {
		t.Errorf("unexpected hello header %+v", h)
	}
}

func TestPKCS7Unpad_BadPadding(t *testing.T) {
	data := bytes.Repeat([]byte{0x03}, 16)
	data[15] = 0x11
	if _, err := pkcs7Unpad(data, 16); err == nil {
		t.Error("expected error for padding larger than block")
	}
}
