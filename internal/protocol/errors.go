package protocol

import "errors"

// Decode failure taxonomy. All of these are recoverable per frame: the
// caller logs the failure and moves on to the next frame. A sequence
// desync is not in this list; it re-anchors the read counter and is
// only logged.
var (
	ErrMalformed       = errors.New("packet too short")
	ErrChecksum        = errors.New("checksum mismatch")
	ErrSequenceMissing = errors.New("sequence segment missing")
	ErrCategoryMissing = errors.New("category segment missing")
	ErrSegmentMissing  = errors.New("field segment missing")
)

// deviceErrorReasons maps the error codes the firmware echoes on a txrx
// packet to human-readable reasons. Codes outside the table are reported
// as unknown.
var deviceErrorReasons = map[int64]string{
	1: `c1 != \x12`,
	2: `c2 != \x34`,
	3: "packet is too short",
	4: "checksums don't match",
	5: "packet count segment not found",
	6: "packet counts not synchronized",
	7: "failed to find category segment",
	8: "invalid format",
}
