package protocol

import (
	"fmt"
	"log"
	"strconv"
)

// argKind tags one outbound argument. The zero value is invalid so an
// uninitialized Arg surfaces as a format error instead of encoding as 0.
type argKind int

const (
	argInvalid argKind = iota
	argInt
	argUint
	argStr
	argFloat
)

// Arg is one typed outbound argument, formatted positionally into the
// frame. The tagged form replaces a printf-style format string, which
// could silently mismatch its argument list.
type Arg struct {
	kind argKind
	i    int64
	u    uint64
	s    string
	f    float64
}

// Int tags a signed integer argument.
func Int(v int32) Arg { return Arg{kind: argInt, i: int64(v)} }

// Uint tags an unsigned integer argument.
func Uint(v uint32) Arg { return Arg{kind: argUint, u: uint64(v)} }

// Str tags a string argument.
func Str(v string) Arg { return Arg{kind: argStr, s: v} }

// Float tags a float argument, written fixed-point with four decimal
// places to match the firmware's parser.
func Float(v float64) Arg { return Arg{kind: argFloat, f: v} }

func (a Arg) format() (string, error) {
	switch a.kind {
	case argInt:
		return strconv.FormatInt(a.i, 10), nil
	case argUint:
		return strconv.FormatUint(a.u, 10), nil
	case argStr:
		return a.s, nil
	case argFloat:
		return strconv.FormatFloat(a.f, 'f', 4, 64), nil
	default:
		return "", fmt.Errorf("invalid argument tag %d", a.kind)
	}
}

// Encoder builds outbound frames. It owns the write sequence counter,
// which advances once per Encode call whether or not the frame is ever
// transmitted.
type Encoder struct {
	writeNum uint64
}

// WriteCount returns the sequence number the next frame will carry.
func (e *Encoder) WriteCount() uint64 { return e.writeNum }

// Encode produces a complete outbound frame for the named command:
// start markers, sequence number, name, the formatted arguments, the
// checksum over everything after the markers, and the stop byte.
//
// An argument with an unrecognized tag is logged and skipped; encoding
// continues with the remaining arguments. The device will reject the
// resulting short frame, which is the same failure mode the original
// bridge had for a format mismatch.
func (e *Encoder) Encode(name string, args ...Arg) []byte {
	body := strconv.FormatUint(e.writeNum, 10) + string(Separator) + name
	for _, a := range args {
		text, err := a.format()
		if err != nil {
			log.Printf("[protocol] command %q: %v", name, err)
			continue
		}
		body += string(Separator) + text
	}

	frame := make([]byte, 0, len(body)+5)
	frame = append(frame, PacketStart0, PacketStart1)
	frame = append(frame, body...)
	frame = appendChecksum(frame, checksum(body))
	frame = append(frame, PacketStop)

	e.writeNum++
	return frame
}
