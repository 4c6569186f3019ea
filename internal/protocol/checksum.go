package protocol

import (
	"fmt"
	"strconv"
)

// checksum sums the payload bytes modulo 256, matching the firmware's
// rolling uint8 addition.
func checksum(s string) uint8 {
	var sum uint8
	for i := 0; i < len(s); i++ {
		sum += s[i]
	}
	return sum
}

// appendChecksum formats sum as two hex digits, zero-padded below 0x10.
func appendChecksum(b []byte, sum uint8) []byte {
	return append(b, fmt.Sprintf("%02x", sum)...)
}

// parseChecksum reads a two-hex-digit checksum suffix. Case-insensitive;
// the firmware writes lowercase.
func parseChecksum(s string) (uint8, error) {
	v, err := strconv.ParseUint(s, 16, 8)
	if err != nil {
		return 0, err
	}
	return uint8(v), nil
}
