package bridge

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/dodobot/serial-bridge/internal/protocol"
)

// Device is the transport under the bridge: the protocol's byte source
// plus the write side.
type Device interface {
	protocol.ByteSource
	Write(p []byte) (int, error)
	Close() error
}

// Config holds the serial link settings.
type Config struct {
	PortPath string `yaml:"port_path" json:"portPath"`
	BaudRate int    `yaml:"baud_rate" json:"baudRate"`
	PollHz   int    `yaml:"poll_hz" json:"pollHz"`
}

// ErrReadyTimeout is returned when the device never announces readiness
// within the handshake budget. Fatal to session startup.
var ErrReadyTimeout = errors.New("bridge: timed out waiting for ready signal")

// Bridge drives the serial packet protocol against one device: it runs
// the readiness handshake, then the fixed-rate receive loop, and carries
// host-issued commands onto the wire.
type Bridge struct {
	dev Device

	clock *protocol.Clock
	enc   *protocol.Encoder
	dec   *protocol.Decoder

	writeMu sync.Mutex

	pollHz       int
	readyBudget  time.Duration
	probeEvery   time.Duration
	probePayload string
}

const (
	defaultReadyBudget = 5 * time.Second
	defaultProbeEvery  = time.Second

	// Pause after each transmission so the device's loop has budget to
	// consume the frame before the next one lands.
	interWriteGap = 500 * time.Microsecond
)

// New creates a Bridge over an already-open device. publish receives
// every decoded sensor record; it may be nil.
func New(dev Device, pollHz int, publish func(protocol.Record)) *Bridge {
	if pollHz <= 0 {
		pollHz = 120
	}
	clock := &protocol.Clock{}
	return &Bridge{
		dev:          dev,
		clock:        clock,
		enc:          &protocol.Encoder{},
		dec:          protocol.NewDecoder(clock, publish),
		pollHz:       pollHz,
		readyBudget:  defaultReadyBudget,
		probeEvery:   defaultProbeEvery,
		probePayload: "dodobot",
	}
}

// Open opens the configured serial port and wraps it in a Bridge.
func Open(cfg Config, publish func(protocol.Record)) (*Bridge, error) {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = 115200
	}
	src, err := openSerialSource(cfg.PortPath, cfg.BaudRate)
	if err != nil {
		return nil, err
	}
	return New(src, cfg.PollHz, publish), nil
}

// Ready returns the readiness handshake state.
func (b *Bridge) Ready() protocol.ReadyState { return b.dec.Ready() }

// Robot returns the device operational state from the last state frame.
func (b *Bridge) Robot() protocol.RobotState { return b.dec.Robot() }

// Setup runs the readiness handshake and switches the device into active
// reporting mode. A handshake timeout is fatal to session startup.
func (b *Bridge) Setup(ctx context.Context) error {
	if err := b.CheckReady(ctx); err != nil {
		return err
	}
	b.SetActive(true)
	b.SetReporting(true)
	return nil
}

// CheckReady probes the device until it announces readiness or the
// budget elapses. The probe is retransmitted on an interval in case the
// probe or its reply was dropped. On success the clock reference is
// seeded from the device's reported milliseconds.
func (b *Bridge) CheckReady(ctx context.Context) error {
	log.Printf("[bridge] checking if the serial device is ready")

	begin := time.Now()
	lastWrite := time.Now()
	b.writeProbe()

	for !b.dec.Ready().IsReady {
		if err := ctx.Err(); err != nil {
			return err
		}
		if time.Since(begin) > b.readyBudget {
			return ErrReadyTimeout
		}
		if time.Since(lastWrite) > b.probeEvery {
			log.Printf("[bridge] writing ready probe again")
			b.writeProbe()
			lastWrite = time.Now()
		}
		if b.dev.Available() > 2 {
			b.readOnce()
		} else {
			time.Sleep(time.Millisecond)
		}
	}

	ready := b.dec.Ready()
	b.clock.SetReference(time.Now(), ready.TimeMs)
	log.Printf("[bridge] serial device is ready. robot name is %s", ready.RobotName)
	return nil
}

func (b *Bridge) writeProbe() {
	b.write("s", protocol.Str(b.probePayload))
}

// Run drives the receive pipeline at the configured rate until the
// context is cancelled. Each tick drains the input whenever more than a
// couple of bytes are waiting, so a burst of frames is consumed at once.
func (b *Bridge) Run(ctx context.Context) error {
	ticker := time.NewTicker(time.Second / time.Duration(b.pollHz))
	defer ticker.Stop()
	progress := time.NewTicker(15 * time.Second)
	defer progress.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-progress.C:
			log.Printf("[bridge] read packet num: %d", b.dec.ReadCount())
		case <-ticker.C:
			if b.dev.Available() > 2 {
				for b.dev.Available() > 0 {
					b.readOnce()
				}
			}
		}
	}
}

// Close releases the underlying device.
func (b *Bridge) Close() error { return b.dev.Close() }

// readOnce pulls at most one frame off the wire and decodes it. Decode
// failures are logged and absorbed; the pipeline moves on to the next
// frame.
func (b *Bridge) readOnce() {
	payload, ok := protocol.ReadFrame(b.dev)
	if !ok {
		return
	}
	if err := b.dec.Decode(payload); err != nil {
		log.Printf("[bridge] decode failed: %v", err)
	}
}

// write encodes and transmits one command frame. The write counter
// advances inside Encode even if the transmission fails.
func (b *Bridge) write(name string, args ...protocol.Arg) {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	frame := b.enc.Encode(name, args...)
	if _, err := b.dev.Write(frame); err != nil {
		log.Printf("[bridge] write %q failed: %v", name, err)
	}
	time.Sleep(interWriteGap)
}
