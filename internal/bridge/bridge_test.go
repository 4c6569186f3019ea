package bridge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dodobot/serial-bridge/internal/protocol"
)

// nullDevice is a device that never produces bytes. Writes are counted
// and discarded.
type nullDevice struct {
	writes int
}

func (n *nullDevice) Available() int          { return 0 }
func (n *nullDevice) ReadByte() (byte, error) { return 0, errSimEmpty }
func (n *nullDevice) Close() error            { return nil }

func (n *nullDevice) Write(p []byte) (int, error) {
	n.writes++
	return len(p), nil
}

// drain reads frames off the device until it has nothing queued.
func drain(b *Bridge) {
	for b.dev.Available() > 0 {
		b.readOnce()
	}
}

func TestCheckReadyAgainstSim(t *testing.T) {
	sim := NewSimDevice("dodo")
	br := New(sim, 120, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := br.CheckReady(ctx); err != nil {
		t.Fatalf("CheckReady: %v", err)
	}

	ready := br.Ready()
	if !ready.IsReady {
		t.Fatal("bridge not ready after handshake")
	}
	if ready.RobotName != "dodo" {
		t.Errorf("RobotName = %q, want dodo", ready.RobotName)
	}
	if sim.ProbesSeen() == 0 {
		t.Error("device never saw a probe")
	}
}

func TestCheckReadyTimesOut(t *testing.T) {
	dev := &nullDevice{}
	br := New(dev, 120, nil)
	br.readyBudget = 60 * time.Millisecond
	br.probeEvery = 10 * time.Millisecond

	err := br.CheckReady(context.Background())
	if !errors.Is(err, ErrReadyTimeout) {
		t.Fatalf("err = %v, want ErrReadyTimeout", err)
	}
	// One initial probe plus periodic retransmits inside the budget.
	if dev.writes < 3 || dev.writes > 10 {
		t.Errorf("probe writes = %d, want a handful", dev.writes)
	}
	if br.Ready().IsReady {
		t.Error("silent device reported ready")
	}
}

func TestCheckReadyHonorsContext(t *testing.T) {
	dev := &nullDevice{}
	br := New(dev, 120, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := br.CheckReady(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestMotorCommandsGatedUntilReady(t *testing.T) {
	sim := NewSimDevice("dodo")
	br := New(sim, 120, nil)

	br.Drive(1.0, 1.0)
	br.Gripper(1, 700)
	br.Tilter(3, 120)
	if got := br.enc.WriteCount(); got != 0 {
		t.Errorf("WriteCount = %d, want 0 before readiness", got)
	}
	if left, right := sim.DriveSetpoints(); left != 0 || right != 0 {
		t.Errorf("setpoints = %v %v, want untouched", left, right)
	}
}

func TestLinearNotGated(t *testing.T) {
	sim := NewSimDevice("dodo")
	br := New(sim, 120, nil)

	br.Linear(1, 500)
	if got := br.enc.WriteCount(); got != 1 {
		t.Errorf("WriteCount = %d, want 1", got)
	}
}

func TestDriveReachesDevice(t *testing.T) {
	sim := NewSimDevice("dodo")
	br := New(sim, 120, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := br.Setup(ctx); err != nil {
		t.Fatalf("Setup: %v", err)
	}

	// The motors gate also needs a state report.
	sim.Tick()
	drain(br)
	if !br.Robot().MotorsActive {
		t.Fatal("state frame did not arrive")
	}

	br.Drive(1.5, -2.0)
	left, right := sim.DriveSetpoints()
	if left != 1.5 || right != -2.0 {
		t.Errorf("setpoints = %v %v, want 1.5 -2.0", left, right)
	}
}

func TestSetPID(t *testing.T) {
	sim := NewSimDevice("dodo")
	br := New(sim, 120, nil)

	gains := PIDGains{KpA: 0.01, KiA: 0.002, KdA: 0.0003, KpB: 0.04, KiB: 0.005, KdB: 0.0006, SpeedKA: 0.9, SpeedKB: 0.8}
	if br.SetPID(gains) {
		t.Fatal("SetPID succeeded before readiness")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := br.CheckReady(ctx); err != nil {
		t.Fatalf("CheckReady: %v", err)
	}
	if !br.SetPID(gains) {
		t.Fatal("SetPID failed after readiness")
	}

	got := sim.Gains()
	want := [8]float64{0.01, 0.002, 0.0003, 0.04, 0.005, 0.0006, 0.9, 0.8}
	if got != want {
		t.Errorf("gains = %v, want %v", got, want)
	}
}

func TestSensorStream(t *testing.T) {
	categories := map[string]int{}
	sim := NewSimDevice("dodo")
	br := New(sim, 120, func(rec protocol.Record) {
		categories[rec.Category()]++
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := br.Setup(ctx); err != nil {
		t.Fatalf("Setup: %v", err)
	}

	sim.Tick()
	drain(br)

	for _, want := range []string{"enc", "batt", "bump", "fsr", "grip", "tilt", "linear"} {
		if categories[want] == 0 {
			t.Errorf("no %s record published", want)
		}
	}
}

func TestNoiseBetweenFramesAbsorbed(t *testing.T) {
	sim := NewSimDevice("dodo")
	br := New(sim, 120, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := br.Setup(ctx); err != nil {
		t.Fatalf("Setup: %v", err)
	}

	sim.InjectRaw([]byte("spurious debug output\n"))
	sim.Tick()
	drain(br)

	if !br.Robot().IsActive {
		t.Error("state frame lost after noise")
	}
}
