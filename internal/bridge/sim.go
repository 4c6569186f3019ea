package bridge

import (
	"errors"
	"math"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dodobot/serial-bridge/internal/protocol"
)

// SimDevice is an in-memory device speaking the dodobot wire protocol.
// It stands in for the microcontroller in demo mode and in tests:
// command frames written to it are parsed and acknowledged with txrx
// frames the way the firmware does, and Tick queues a round of framed
// sensor reports for the host to read back.
type SimDevice struct {
	mu   sync.Mutex
	out  []byte
	head int

	enc   protocol.Encoder
	name  string
	start time.Time

	active    bool
	reporting bool

	leftSetpoint  float64
	rightSetpoint float64
	leftTicks     float64
	rightTicks    float64
	lastTick      time.Time

	gripPos int64
	tiltPos int64
	gains   [8]float64

	probesSeen int
	t          float64
}

var errSimEmpty = errors.New("sim: no data")

// NewSimDevice creates a simulated robot that introduces itself with the
// given name during the readiness handshake.
func NewSimDevice(name string) *SimDevice {
	return &SimDevice{
		name:     name,
		start:    time.Now(),
		lastTick: time.Now(),
	}
}

func (s *SimDevice) deviceMs() uint32 {
	return uint32(time.Since(s.start).Milliseconds())
}

func (s *SimDevice) Available() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.out) - s.head
}

func (s *SimDevice) ReadByte() (byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.head >= len(s.out) {
		return 0, errSimEmpty
	}
	b := s.out[s.head]
	s.head++
	if s.head == len(s.out) {
		s.out = s.out[:0]
		s.head = 0
	}
	return b, nil
}

func (s *SimDevice) Close() error { return nil }

// Write receives one host command frame, acknowledges it and applies its
// effect. Bytes that don't form a framed packet are dropped, as the
// firmware drops garbage between frames.
func (s *SimDevice) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(p) < 4 || p[0] != protocol.PacketStart0 || p[1] != protocol.PacketStart1 || p[len(p)-1] != protocol.PacketStop {
		return len(p), nil
	}
	body := string(p[2 : len(p)-1])
	if len(body) < 5 {
		return len(p), nil
	}

	fields := strings.Split(body[:len(body)-2], "\t")
	if len(fields) < 2 {
		return len(p), nil
	}
	seq, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return len(p), nil
	}
	name := fields[1]
	args := fields[2:]

	// txrx acknowledgement, checksum verified first.
	sum := uint8(0)
	for i := 0; i < len(body)-2; i++ {
		sum += body[i]
	}
	recv, err := strconv.ParseUint(body[len(body)-2:], 16, 8)
	if err != nil || uint8(recv) != sum {
		s.queue("txrx", protocol.Int(int32(seq)), protocol.Int(4))
		return len(p), nil
	}
	s.queue("txrx", protocol.Int(int32(seq)), protocol.Int(0))

	switch name {
	case "s":
		if len(args) > 0 && args[0] == "dodobot" {
			s.probesSeen++
			s.queue("ready", protocol.Uint(s.deviceMs()), protocol.Str(s.name))
		}
	case "<>":
		if len(args) > 0 {
			switch args[0] {
			case "0":
				s.active = false
			case "1":
				s.active = true
			case "2":
				s.active = false
				s.leftTicks, s.rightTicks = 0, 0
			}
		}
	case "[]":
		if len(args) > 0 {
			s.reporting = args[0] == "1"
		}
	case "drive":
		if len(args) >= 2 {
			s.leftSetpoint, _ = strconv.ParseFloat(args[0], 64)
			s.rightSetpoint, _ = strconv.ParseFloat(args[1], 64)
		}
	case "grip":
		if len(args) >= 1 {
			cmd, _ := strconv.ParseInt(args[0], 10, 64)
			if cmd == 0 {
				s.gripPos = 0
			} else {
				s.gripPos = 100
			}
		}
	case "tilter":
		if len(args) >= 2 {
			s.tiltPos, _ = strconv.ParseInt(args[1], 10, 64)
		}
	case "ks":
		if len(args) >= 2 {
			idx, _ := strconv.ParseInt(args[0], 10, 64)
			if idx >= 0 && idx < 8 {
				s.gains[idx], _ = strconv.ParseFloat(args[1], 64)
			}
		}
	}
	return len(p), nil
}

// Tick queues one round of sensor reports, if the host has enabled
// active reporting.
func (s *SimDevice) Tick() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	dt := now.Sub(s.lastTick).Seconds()
	s.lastTick = now
	s.t += dt

	if !s.active || !s.reporting {
		return
	}

	s.leftTicks += s.leftSetpoint * dt
	s.rightTicks += s.rightSetpoint * dt

	ms := s.deviceMs()
	s.queue("state",
		protocol.Uint(ms),
		protocol.Int(1),
		protocol.Int(1),
		protocol.Int(1),
		protocol.Float(120+rand.Float64()*2))
	s.queue("enc",
		protocol.Uint(ms),
		protocol.Int(int32(s.leftTicks)),
		protocol.Int(int32(s.rightTicks)),
		protocol.Float(s.leftSetpoint),
		protocol.Float(s.rightSetpoint))
	s.queue("batt",
		protocol.Uint(ms),
		protocol.Float(450+50*math.Sin(s.t*0.1)),
		protocol.Float(5.0),
		protocol.Float(11.1+0.3*math.Sin(s.t*0.05)))
	s.queue("bump", protocol.Uint(ms), protocol.Int(0), protocol.Int(0))
	s.queue("fsr",
		protocol.Uint(ms),
		protocol.Int(int32(320+rand.Float64()*20)),
		protocol.Int(int32(330+rand.Float64()*20)))
	s.queue("grip", protocol.Uint(ms), protocol.Int(int32(s.gripPos)))
	s.queue("tilt", protocol.Uint(ms), protocol.Int(int32(s.tiltPos)))
	s.queue("linear", protocol.Uint(ms),
		protocol.Int(0), protocol.Int(0), protocol.Int(1), protocol.Int(1))
}

// Run ticks the simulated sensors until the context is cancelled.
// Used by demo mode; tests call Tick directly.
func (s *SimDevice) Run(done <-chan struct{}) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			s.Tick()
		}
	}
}

// queue frames a device report for the host. Callers hold s.mu.
func (s *SimDevice) queue(name string, args ...protocol.Arg) {
	s.out = append(s.out, s.enc.Encode(name, args...)...)
}

// InjectRaw appends arbitrary bytes to the host-facing stream. Tests use
// it for noise and malformed frames.
func (s *SimDevice) InjectRaw(p []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.out = append(s.out, p...)
}

// ProbesSeen returns how many readiness probes the device has answered.
func (s *SimDevice) ProbesSeen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.probesSeen
}

// DriveSetpoints returns the last commanded drive setpoints.
func (s *SimDevice) DriveSetpoints() (left, right float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.leftSetpoint, s.rightSetpoint
}

// Gains returns the uploaded controller coefficients.
func (s *SimDevice) Gains() [8]float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gains
}
