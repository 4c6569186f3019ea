package protocol

import (
	"log"
	"time"
)

// ByteSource is the read side of the serial link. Available reports how
// many bytes can be read without waiting; ReadByte returns the next byte
// and may wait briefly for it.
type ByteSource interface {
	Available() int
	ReadByte() (byte, error)
}

// pollInterval is how long the receiver naps while waiting for bytes.
const pollInterval = time.Millisecond

// waitForPacketStart scans for the two consecutive start marker bytes.
// Whatever precedes them is treated as an out-of-band device message
// (startup banners, debug prints): accumulated and logged when a stop
// byte goes past. Returns false if no start pair shows up within the
// search window.
func waitForPacketStart(src ByteSource) bool {
	var msg []byte
	deadline := time.Now().Add(startSearchWindow)
	for time.Now().Before(deadline) {
		if src.Available() < 2 {
			time.Sleep(pollInterval)
			continue
		}
		c1, err := src.ReadByte()
		if err != nil {
			return false
		}
		switch c1 {
		case PacketStart0:
			c2, err := src.ReadByte()
			if err != nil {
				return false
			}
			if c2 == PacketStart1 {
				return true
			}
			msg = append(msg, c1, c2)
		case PacketStop:
			if len(msg) > 0 {
				log.Printf("[protocol] device message: %s", msg)
			}
			return false
		default:
			msg = append(msg, c1)
		}
	}
	return false
}

// ReadFrame extracts at most one frame payload from src: it waits for a
// start pair, then accumulates bytes until the stop byte, which is not
// included. ok is false when no complete frame arrived within the
// bounded wait; the caller simply re-invokes on its next loop iteration
// and the scan resumes at the next valid frame boundary.
func ReadFrame(src ByteSource) (payload string, ok bool) {
	if !waitForPacketStart(src) {
		return "", false
	}
	var buf []byte
	deadline := time.Now().Add(frameReadTimeout)
	for {
		if src.Available() < 1 {
			if time.Now().After(deadline) {
				log.Printf("[protocol] frame read timed out after %d bytes, discarding", len(buf))
				return "", false
			}
			time.Sleep(pollInterval)
			continue
		}
		c, err := src.ReadByte()
		if err != nil {
			return "", false
		}
		if c == PacketStop {
			return string(buf), true
		}
		buf = append(buf, c)
	}
}
