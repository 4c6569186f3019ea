package protocol

import (
	"errors"
	"testing"
	"time"
)

// collector gathers published records for inspection.
type collector struct {
	records []Record
}

func (c *collector) publish(rec Record) { c.records = append(c.records, rec) }

func newTestDecoder(ref time.Time, refMs uint32) (*Decoder, *collector) {
	clock := &Clock{}
	clock.SetReference(ref, refMs)
	sink := &collector{}
	return NewDecoder(clock, sink.publish), sink
}

func TestDecodeMalformedTooShort(t *testing.T) {
	dec, _ := newTestDecoder(time.Now(), 0)
	err := dec.Decode("abcd")
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("err = %v, want ErrMalformed", err)
	}
	if dec.ReadCount() != 1 {
		t.Errorf("ReadCount = %d, want 1", dec.ReadCount())
	}
}

func TestDecodeChecksumMismatch(t *testing.T) {
	dec, sink := newTestDecoder(time.Now(), 0)
	err := dec.Decode("0\tgrip\t1500\t42" + "00")
	if !errors.Is(err, ErrChecksum) {
		t.Fatalf("err = %v, want ErrChecksum", err)
	}
	if len(sink.records) != 0 {
		t.Error("corrupt frame produced a record")
	}
	if dec.ReadCount() != 1 {
		t.Errorf("ReadCount = %d, want 1", dec.ReadCount())
	}
}

func TestDecodeChecksumNotHex(t *testing.T) {
	dec, _ := newTestDecoder(time.Now(), 0)
	err := dec.Decode("0\tgrip\t1500\tzz")
	if !errors.Is(err, ErrChecksum) {
		t.Fatalf("err = %v, want ErrChecksum", err)
	}
	if dec.ReadCount() != 1 {
		t.Errorf("ReadCount = %d, want 1", dec.ReadCount())
	}
}

func TestDecodeSequenceNotNumeric(t *testing.T) {
	dec, _ := newTestDecoder(time.Now(), 0)
	err := dec.Decode("abc\tgrip\t1\t2" + "56")
	if !errors.Is(err, ErrSequenceMissing) {
		t.Fatalf("err = %v, want ErrSequenceMissing", err)
	}
	if dec.ReadCount() != 1 {
		t.Errorf("ReadCount = %d, want 1", dec.ReadCount())
	}
}

func TestDecodeSequenceDesyncReanchors(t *testing.T) {
	dec, sink := newTestDecoder(time.Now(), 0)
	// Local counter is 0 but the device says 5: adopt 5, decode the
	// frame anyway, then advance past it.
	if err := dec.Decode("5\tgrip\t1500\t42" + "2e"); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if dec.ReadCount() != 6 {
		t.Errorf("ReadCount = %d, want 6", dec.ReadCount())
	}
	if len(sink.records) != 1 {
		t.Fatalf("records = %d, want 1", len(sink.records))
	}
}

func TestDecodeCategoryMissing(t *testing.T) {
	dec, _ := newTestDecoder(time.Now(), 0)
	// Sequence 10 re-anchors first, then the empty category field fails.
	err := dec.Decode("10\t\tx" + "eb")
	if !errors.Is(err, ErrCategoryMissing) {
		t.Fatalf("err = %v, want ErrCategoryMissing", err)
	}
	if dec.ReadCount() != 11 {
		t.Errorf("ReadCount = %d, want 11", dec.ReadCount())
	}
}

func TestDecodeUnknownCategoryIgnored(t *testing.T) {
	dec, sink := newTestDecoder(time.Now(), 0)
	if err := dec.Decode("0\tnosuchcat\t1\t2" + "76"); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(sink.records) != 0 {
		t.Error("unknown category produced a record")
	}
	if dec.ReadCount() != 1 {
		t.Errorf("ReadCount = %d, want 1", dec.ReadCount())
	}
}

func TestDecodeSegmentMissingStillAdvances(t *testing.T) {
	dec, sink := newTestDecoder(time.Now(), 0)
	// A grip frame with no position field.
	err := dec.Decode("0\tgrip\t1500" + "ba")
	if !errors.Is(err, ErrSegmentMissing) {
		t.Fatalf("err = %v, want ErrSegmentMissing", err)
	}
	if len(sink.records) != 0 {
		t.Error("truncated frame produced a record")
	}
	if dec.ReadCount() != 1 {
		t.Errorf("ReadCount = %d, want 1", dec.ReadCount())
	}

	// The next in-order frame decodes cleanly.
	if err := dec.Decode("1\tgrip\t1500\t42" + "2a"); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(sink.records) != 1 {
		t.Fatalf("records = %d, want 1", len(sink.records))
	}
}

func TestDecodeReady(t *testing.T) {
	dec, _ := newTestDecoder(time.Now(), 0)
	if err := dec.Decode("0\tready\t1500\tdodo" + "cc"); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	ready := dec.Ready()
	if !ready.IsReady {
		t.Error("IsReady = false")
	}
	if ready.RobotName != "dodo" {
		t.Errorf("RobotName = %q, want dodo", ready.RobotName)
	}
	if ready.TimeMs != 1500 {
		t.Errorf("TimeMs = %d, want 1500", ready.TimeMs)
	}
}

func TestDecodeStateOverwritesWholesale(t *testing.T) {
	dec, _ := newTestDecoder(time.Now(), 0)
	if err := dec.Decode("0\tstate\t2500\t1\t1\t1\t120.0000" + "62"); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	st := dec.Robot()
	if !st.IsActive || !st.BatteryOK || !st.MotorsActive {
		t.Errorf("first state = %+v, want all flags set", st)
	}
	if st.LoopRate != 120 {
		t.Errorf("LoopRate = %v, want 120", st.LoopRate)
	}

	// Skip ahead to sequence 3; the desync re-anchor absorbs it.
	if err := dec.Decode("3\tstate\t9000\t0\t1\t0\t55.5000" + "41"); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	st = dec.Robot()
	if st.IsActive || st.MotorsActive {
		t.Errorf("second state = %+v, want active flags cleared", st)
	}
	if st.TimeMs != 9000 || st.LoopRate != 55.5 {
		t.Errorf("second state = %+v", st)
	}
}

func TestDecodeBatterySkipsPowerField(t *testing.T) {
	dec, sink := newTestDecoder(time.Now(), 0)
	if err := dec.Decode("0\tbatt\t2500\t-210.5000\t3.1000\t11.2100" + "f7"); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(sink.records) != 1 {
		t.Fatalf("records = %d, want 1", len(sink.records))
	}
	rec, ok := sink.records[0].(BatteryRecord)
	if !ok {
		t.Fatalf("record type %T", sink.records[0])
	}
	if rec.Current != -210.5 {
		t.Errorf("Current = %v, want -210.5", rec.Current)
	}
	if rec.Voltage != 11.21 {
		t.Errorf("Voltage = %v, want 11.21", rec.Voltage)
	}
}

func TestDecodeBumper(t *testing.T) {
	ref := time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC)
	dec, sink := newTestDecoder(ref, 1500)
	if err := dec.Decode("2\tbump\t2500\t1\t0" + "32"); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	rec, ok := sink.records[0].(BumperRecord)
	if !ok {
		t.Fatalf("record type %T", sink.records[0])
	}
	if !rec.Bump1 || rec.Bump2 {
		t.Errorf("bumpers = %v %v, want true false", rec.Bump1, rec.Bump2)
	}
	want := ref.Add(time.Second)
	if !rec.Stamp.Equal(want) {
		t.Errorf("Stamp = %v, want %v", rec.Stamp, want)
	}
}

func TestDecodeTxRxUnknownCode(t *testing.T) {
	dec, _ := newTestDecoder(time.Now(), 0)
	// Unknown error codes are logged but never fail the decode.
	if err := dec.Decode("0\ttxrx\t7\t42" + "be"); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if dec.ReadCount() != 1 {
		t.Errorf("ReadCount = %d, want 1", dec.ReadCount())
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	ref := time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC)
	dec, sink := newTestDecoder(ref, 1500)

	var enc Encoder
	frame := enc.Encode("enc", Uint(2500), Int(-12), Int(34), Float(1.5), Float(-2.25))

	src := &byteStream{data: frame}
	payload, ok := ReadFrame(src)
	if !ok {
		t.Fatal("no frame from encoded bytes")
	}
	if err := dec.Decode(payload); err != nil {
		t.Fatalf("Decode: %v", err)
	}

	rec, ok := sink.records[0].(DriveRecord)
	if !ok {
		t.Fatalf("record type %T", sink.records[0])
	}
	if rec.LeftTicks != -12 || rec.RightTicks != 34 {
		t.Errorf("ticks = %d %d", rec.LeftTicks, rec.RightTicks)
	}
	if rec.LeftSpeed != 1.5 || rec.RightSpeed != -2.25 {
		t.Errorf("speeds = %v %v", rec.LeftSpeed, rec.RightSpeed)
	}
	want := ref.Add(time.Second)
	if !rec.Stamp.Equal(want) {
		t.Errorf("Stamp = %v, want %v", rec.Stamp, want)
	}
}
