package discovery

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestDecodeHexAddr checks the word-wise byte reversal /proc/net/tcp[6]
// encodes its addresses with: "0100007F" is 127.0.0.1 in host
// (little-endian) byte order, reversed back to network order.
func TestDecodeHexAddr(t *testing.T) {
	testcases := []struct {
		name string
		hex  string
		want string
	}{
		{name: "loopback v4", hex: "0100007F", want: "127.0.0.1"},
		{name: "any v4", hex: "00000000", want: "0.0.0.0"},
		{name: "example v4", hex: "0101A8C0", want: "192.168.1.1"},
	}
	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			ip, err := decodeHexAddr(tc.hex)
			assert.NoError(t, err)
			assert.Equal(t, tc.want, ip.To4().String())
		})
	}
}

func TestDecodeHexAddrInvalidLength(t *testing.T) {
	_, err := decodeHexAddr("ABC")
	assert.Error(t, err)
}

func TestDecodeHexAddrV6Loopback(t *testing.T) {
	// ::1 is stored as four 32-bit words, each byte-reversed; the all-zero
	// words stay all zero regardless of byte order, only the final word
	// (00000001) reverses to 01000000.
	ip, err := decodeHexAddr("00000000000000000000000001000000")
	assert.NoError(t, err)
	assert.Equal(t, "::1", ip.String())
}
