package protocol

import "time"

// Wire framing constants shared with the dodobot firmware. These must
// match the microcontroller exactly: the firmware echoes error codes 1
// and 2 on a txrx packet when the start bytes it receives are wrong.
const (
	PacketStart0 byte = 0x12
	PacketStart1 byte = 0x34
	PacketStop   byte = '\n'

	// Separator between payload segments.
	Separator byte = '\t'
)

const (
	// Minimum accepted payload: at least one sequence digit, a separator,
	// one category character and the two checksum hex digits.
	minPayloadLen = 5

	// How long ReadFrame scans for a start pair before yielding "no frame".
	startSearchWindow = 50 * time.Millisecond

	// Safety bound on accumulating a started frame. The firmware streams
	// frames back to back, so hitting this means the link dropped mid-frame.
	frameReadTimeout = time.Second
)
