package protocol

import (
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"
)

// Decoder validates inbound frame payloads and dispatches them to
// category-specific decode routines. It owns all inbound protocol state:
// the read sequence counter, the readiness state and the device
// operational state.
type Decoder struct {
	readNum uint64
	clock   *Clock

	mu    sync.Mutex
	ready ReadyState
	robot RobotState

	// publish receives each decoded sensor record. May be nil.
	publish func(Record)
}

// NewDecoder creates a Decoder that stamps records through clock and
// hands them to publish.
func NewDecoder(clock *Clock, publish func(Record)) *Decoder {
	return &Decoder{clock: clock, publish: publish}
}

// ReadCount returns the next expected inbound sequence number.
func (d *Decoder) ReadCount() uint64 { return d.readNum }

// Ready returns the readiness handshake state.
func (d *Decoder) Ready() ReadyState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ready
}

// Robot returns the device operational state from the last state frame.
func (d *Decoder) Robot() RobotState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.robot
}

// categoryTable maps an inbound category token to its decode routine.
// Field order inside each routine is part of the wire contract and must
// not be reordered.
var categoryTable = map[string]func(*Decoder, *segments) error{
	"txrx":   (*Decoder).decodeTxRx,
	"state":  (*Decoder).decodeState,
	"enc":    (*Decoder).decodeDrive,
	"bump":   (*Decoder).decodeBumper,
	"fsr":    (*Decoder).decodeFSR,
	"grip":   (*Decoder).decodeGripper,
	"linear": (*Decoder).decodeLinear,
	"batt":   (*Decoder).decodeBattery,
	"tilt":   (*Decoder).decodeTilter,
	"ready":  (*Decoder).decodeReady,
}

// Decode validates one frame payload and dispatches it. Every call
// consumes exactly one read-sequence slot, except that a sequence desync
// re-anchors the counter on the received value first. Unknown categories
// are ignored without error.
func (d *Decoder) Decode(payload string) error {
	if len(payload) < minPayloadLen {
		d.readNum++
		return fmt.Errorf("%w: %d chars in %q", ErrMalformed, len(payload), payload)
	}

	body := payload[:len(payload)-2]
	recv, err := parseChecksum(payload[len(payload)-2:])
	if err != nil {
		d.readNum++
		return fmt.Errorf("%w: bad suffix in %q: %v", ErrChecksum, payload, err)
	}
	if calc := checksum(body); calc != recv {
		d.readNum++
		return fmt.Errorf("%w: recv %02x != calc %02x in %q", ErrChecksum, recv, calc, payload)
	}

	seg := newSegments(payload)
	field, ok := seg.next()
	if !ok {
		d.readNum++
		return fmt.Errorf("%w: %q", ErrSequenceMissing, payload)
	}
	recvNum, err := strconv.ParseUint(field, 10, 64)
	if err != nil {
		d.readNum++
		return fmt.Errorf("%w: %q is not a number in %q", ErrSequenceMissing, field, payload)
	}
	if recvNum != d.readNum {
		// Trust the device's count over our own. Re-anchoring means one
		// dropped frame costs a single warning instead of one per packet
		// for the rest of the session.
		log.Printf("[protocol] sequence desync: recv %d != local %d, buffer %q", recvNum, d.readNum, payload)
		d.readNum = recvNum
	}

	category, ok := seg.next()
	if !ok || category == "" {
		d.readNum++
		return fmt.Errorf("%w: %q", ErrCategoryMissing, payload)
	}

	// Checksum verified; keep its two digits out of the last field.
	seg.truncate(len(body))

	var decodeErr error
	if decode, known := categoryTable[category]; known {
		decodeErr = decode(d, seg)
	}
	d.readNum++
	if decodeErr != nil {
		return fmt.Errorf("category %q: %w", category, decodeErr)
	}
	return nil
}

func (d *Decoder) emit(rec Record) {
	if d.publish != nil {
		d.publish(rec)
	}
}

// stamp reads a device-ms field and resolves it to host time.
func (d *Decoder) stamp(seg *segments) (time.Time, error) {
	ms, err := seg.nextUint32()
	if err != nil {
		return time.Time{}, err
	}
	return d.clock.ToHostTime(ms), nil
}

func (d *Decoder) decodeTxRx(seg *segments) error {
	packetNum, err := seg.nextInt()
	if err != nil {
		return err
	}
	code, err := seg.nextInt()
	if err != nil {
		return err
	}
	if code != 0 {
		reason, known := deviceErrorReasons[code]
		if !known {
			reason = fmt.Sprintf("unknown code %d", code)
		}
		log.Printf("[protocol] device reported an error for packet %d: %s", packetNum, reason)
	}
	return nil
}

func (d *Decoder) decodeState(seg *segments) error {
	var st RobotState
	var err error
	if st.TimeMs, err = seg.nextUint32(); err != nil {
		return err
	}
	if st.IsActive, err = seg.nextBool(); err != nil {
		return err
	}
	if st.BatteryOK, err = seg.nextBool(); err != nil {
		return err
	}
	if st.MotorsActive, err = seg.nextBool(); err != nil {
		return err
	}
	if st.LoopRate, err = seg.nextFloat(); err != nil {
		return err
	}
	d.mu.Lock()
	d.robot = st
	d.mu.Unlock()
	return nil
}

func (d *Decoder) decodeDrive(seg *segments) error {
	var rec DriveRecord
	var err error
	if rec.Stamp, err = d.stamp(seg); err != nil {
		return err
	}
	if rec.LeftTicks, err = seg.nextInt(); err != nil {
		return err
	}
	if rec.RightTicks, err = seg.nextInt(); err != nil {
		return err
	}
	if rec.LeftSpeed, err = seg.nextFloat(); err != nil {
		return err
	}
	if rec.RightSpeed, err = seg.nextFloat(); err != nil {
		return err
	}
	d.emit(rec)
	return nil
}

func (d *Decoder) decodeBumper(seg *segments) error {
	var rec BumperRecord
	var err error
	if rec.Stamp, err = d.stamp(seg); err != nil {
		return err
	}
	if rec.Bump1, err = seg.nextBool(); err != nil {
		return err
	}
	if rec.Bump2, err = seg.nextBool(); err != nil {
		return err
	}
	d.emit(rec)
	return nil
}

func (d *Decoder) decodeFSR(seg *segments) error {
	var rec FSRRecord
	var err error
	if rec.Stamp, err = d.stamp(seg); err != nil {
		return err
	}
	left, err := seg.nextInt()
	if err != nil {
		return err
	}
	right, err := seg.nextInt()
	if err != nil {
		return err
	}
	rec.Left = uint16(left)
	rec.Right = uint16(right)
	d.emit(rec)
	return nil
}

func (d *Decoder) decodeGripper(seg *segments) error {
	var rec GripperRecord
	var err error
	if rec.Stamp, err = d.stamp(seg); err != nil {
		return err
	}
	pos, err := seg.nextInt()
	if err != nil {
		return err
	}
	rec.Position = int(pos)
	d.emit(rec)
	return nil
}

func (d *Decoder) decodeLinear(seg *segments) error {
	var rec LinearRecord
	var err error
	if rec.Stamp, err = d.stamp(seg); err != nil {
		return err
	}
	pos, err := seg.nextInt()
	if err != nil {
		return err
	}
	rec.Position = int(pos)
	if rec.HasError, err = seg.nextBool(); err != nil {
		return err
	}
	if rec.IsHomed, err = seg.nextBool(); err != nil {
		return err
	}
	if rec.IsActive, err = seg.nextBool(); err != nil {
		return err
	}
	d.emit(rec)
	return nil
}

func (d *Decoder) decodeBattery(seg *segments) error {
	var rec BatteryRecord
	var err error
	if rec.Stamp, err = d.stamp(seg); err != nil {
		return err
	}
	if rec.Current, err = seg.nextFloat(); err != nil {
		return err
	}
	// Power slot; reported by the firmware but unused here.
	if _, err = seg.nextField(); err != nil {
		return err
	}
	if rec.Voltage, err = seg.nextFloat(); err != nil {
		return err
	}
	d.emit(rec)
	return nil
}

func (d *Decoder) decodeTilter(seg *segments) error {
	var rec TilterRecord
	var err error
	if rec.Stamp, err = d.stamp(seg); err != nil {
		return err
	}
	pos, err := seg.nextInt()
	if err != nil {
		return err
	}
	rec.Position = int(pos)
	d.emit(rec)
	return nil
}

func (d *Decoder) decodeReady(seg *segments) error {
	ms, err := seg.nextUint32()
	if err != nil {
		return err
	}
	name, err := seg.nextField()
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.ready = ReadyState{IsReady: true, RobotName: name, TimeMs: ms}
	d.mu.Unlock()
	log.Printf("[protocol] received ready signal! robot name: %s", name)
	return nil
}
