// Package miio implements the miIO LAN protocol spoken by Xiaomi and Yeelight
// bulbs: JSON commands carried in AES-encrypted UDP packets that are
// authenticated with a per-device 16 byte token.
package miio

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	// DefaultPort is the UDP port miIO devices listen on.
	DefaultPort = 54321

	headerSize        = 32
	magic      uint16 = 0x2131
	tokenSize         = 16
)

// header is the fixed 32 byte packet prefix.
type header struct {
	Length   uint16
	Unknown  uint32
	DeviceID uint32
	Stamp    uint32
	Checksum [16]byte
}

// ParseToken decodes a 32 character hex token.
func ParseToken(s string) ([]byte, error) {
	token, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if len(token) != tokenSize {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidToken, tokenSize, len(token))
	}
	return token, nil
}

// tokenCipher encrypts payloads and signs packets for one device token.
type tokenCipher struct {
	token []byte
	block cipher.Block
	iv    []byte
}

func newTokenCipher(token []byte) (*tokenCipher, error) {
	key := md5.Sum(token)
	iv := md5.Sum(append(key[:], token...))

	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}

	return &tokenCipher{
		token: token,
		block: block,
		iv:    iv[:],
	}, nil
}

func (c *tokenCipher) encrypt(plain []byte) []byte {
	padded := pkcs7Pad(plain, aes.BlockSize)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(c.block, c.iv).CryptBlocks(out, padded)
	return out
}

func (c *tokenCipher) decrypt(data []byte) ([]byte, error) {
	if len(data) == 0 || len(data)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: ciphertext length %d", ErrMalformedPacket, len(data))
	}
	out := make([]byte, len(data))
	cipher.NewCBCDecrypter(c.block, c.iv).CryptBlocks(out, data)
	return pkcs7Unpad(out, aes.BlockSize)
}

// encode builds a signed command packet around payload.
func (c *tokenCipher) encode(deviceID, stamp uint32, payload []byte) []byte {
	enc := c.encrypt(payload)

	pkt := make([]byte, headerSize+len(enc))
	binary.BigEndian.PutUint16(pkt[0:], magic)
	binary.BigEndian.PutUint16(pkt[2:], uint16(len(pkt)))
	binary.BigEndian.PutUint32(pkt[4:], 0)
	binary.BigEndian.PutUint32(pkt[8:], deviceID)
	binary.BigEndian.PutUint32(pkt[12:], stamp)
	copy(pkt[headerSize:], enc)

	sum := c.checksum(pkt)
	copy(pkt[16:headerSize], sum[:])
	return pkt
}

// decode verifies and decrypts a packet. Header-only packets (hello replies)
// carry no payload and are returned without checksum verification.
func (c *tokenCipher) decode(pkt []byte) (header, []byte, error) {
	h, err := parseHeader(pkt)
	if err != nil {
		return h, nil, err
	}
	pkt = pkt[:h.Length]

	if len(pkt) == headerSize {
		return h, nil, nil
	}

	sum := c.checksum(pkt)
	if !bytes.Equal(sum[:], h.Checksum[:]) {
		return h, nil, ErrChecksum
	}

	plain, err := c.decrypt(pkt[headerSize:])
	if err != nil {
		return h, nil, err
	}

	// Some firmwares terminate the JSON body with NUL bytes.
	return h, bytes.TrimRight(plain, "\x00"), nil
}

// checksum is MD5 over the packet with the token in place of the checksum field.
func (c *tokenCipher) checksum(pkt []byte) [16]byte {
	signed := make([]byte, len(pkt))
	copy(signed, pkt)
	copy(signed[16:headerSize], c.token)
	return md5.Sum(signed)
}

func parseHeader(pkt []byte) (header, error) {
	var h header
	if len(pkt) < headerSize {
		return h, fmt.Errorf("%w: %d bytes", ErrMalformedPacket, len(pkt))
	}
	if m := binary.BigEndian.Uint16(pkt[0:]); m != magic {
		return h, fmt.Errorf("%w: bad magic %#04x", ErrMalformedPacket, m)
	}

	h.Length = binary.BigEndian.Uint16(pkt[2:])
	if int(h.Length) < headerSize || int(h.Length) > len(pkt) {
		return h, fmt.Errorf("%w: length field %d, packet %d", ErrMalformedPacket, h.Length, len(pkt))
	}
	h.Unknown = binary.BigEndian.Uint32(pkt[4:])
	h.DeviceID = binary.BigEndian.Uint32(pkt[8:])
	h.Stamp = binary.BigEndian.Uint32(pkt[12:])
	copy(h.Checksum[:], pkt[16:headerSize])
	return h, nil
}

// helloPacket is the discovery/handshake request: a bare header filled with 0xff.
func helloPacket() []byte {
	pkt := bytes.Repeat([]byte{0xff}, headerSize)
	binary.BigEndian.PutUint16(pkt[0:], magic)
	binary.BigEndian.PutUint16(pkt[2:], headerSize)
	return pkt
}

func pkcs7Pad(data []byte, size int) []byte {
	n := size - len(data)%size
	return append(append([]byte{}, data...), bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(data []byte, size int) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrMalformedPacket)
	}
	n := int(data[len(data)-1])
	if n == 0 || n > size || n > len(data) {
		return nil, fmt.Errorf("%w: bad padding", ErrMalformedPacket)
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, fmt.Errorf("%w: bad padding", ErrMalformedPacket)
		}
	}
	return data[:len(data)-n], nil
}
