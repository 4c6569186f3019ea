package bridge

import (
	"log"

	"github.com/dodobot/serial-bridge/internal/protocol"
)

// motorsReady reports whether motor commands may be sent: the device has
// announced readiness, is active, and reports its motors enabled.
func (b *Bridge) motorsReady() bool {
	robot := b.dec.Robot()
	return b.dec.Ready().IsReady && robot.IsActive && robot.MotorsActive
}

// robotReady reports whether the readiness handshake has completed.
func (b *Bridge) robotReady() bool {
	return b.dec.Ready().IsReady
}

// SetActive starts (true) or stops (false) the device's main loop.
func (b *Bridge) SetActive(state bool) {
	if state {
		b.write("<>", protocol.Int(1))
	} else {
		b.write("<>", protocol.Int(0))
	}
}

// SoftRestart asks the device to restart its firmware loop.
func (b *Bridge) SoftRestart() {
	b.write("<>", protocol.Int(2))
}

// SetReporting toggles the device's sensor report streaming.
func (b *Bridge) SetReporting(state bool) {
	if state {
		b.write("[]", protocol.Int(1))
	} else {
		b.write("[]", protocol.Int(0))
	}
}

// Drive commands the drive base setpoints in encoder ticks per second.
// Dropped with a log line until the device reports its motors ready.
func (b *Bridge) Drive(left, right float64) {
	if !b.motorsReady() {
		log.Printf("[bridge] motors aren't ready! skipping drive command")
		return
	}
	b.write("drive", protocol.Float(left), protocol.Float(right))
}

// Gripper commands the gripper. Command 0 opens; close and toggle carry
// a force threshold.
func (b *Bridge) Gripper(command, forceThreshold int32) {
	if !b.motorsReady() {
		log.Printf("[bridge] motors aren't ready! skipping gripper command")
		return
	}
	if command == 0 {
		b.write("grip", protocol.Int(command))
	} else {
		b.write("grip", protocol.Int(command), protocol.Int(forceThreshold))
	}
}

// Tilter commands the camera tilter. Commands 0-2 are up, down and
// toggle; anything higher sets an explicit position.
func (b *Bridge) Tilter(command, position int32) {
	if !b.motorsReady() {
		log.Printf("[bridge] motors aren't ready! skipping tilter command")
		return
	}
	if command <= 2 {
		b.write("tilter", protocol.Int(command))
	} else {
		b.write("tilter", protocol.Int(command), protocol.Int(position))
	}
}

// Linear drives the linear stage with a command type and value.
func (b *Bridge) Linear(commandType, commandValue int32) {
	b.write("linear", protocol.Int(commandType), protocol.Int(commandValue))
}

// PIDGains carries the eight drive controller coefficients.
type PIDGains struct {
	KpA     float64 `json:"kpA"`
	KiA     float64 `json:"kiA"`
	KdA     float64 `json:"kdA"`
	KpB     float64 `json:"kpB"`
	KiB     float64 `json:"kiB"`
	KdB     float64 `json:"kdB"`
	SpeedKA float64 `json:"speedKA"`
	SpeedKB float64 `json:"speedKB"`
}

// SetPID uploads the eight gain coefficients, one ks frame per slot.
// Returns false without transmitting anything if the device has not
// announced readiness.
func (b *Bridge) SetPID(g PIDGains) bool {
	if !b.robotReady() {
		log.Printf("[bridge] robot isn't ready! skipping pid command")
		return false
	}
	gains := [...]float64{g.KpA, g.KiA, g.KdA, g.KpB, g.KiB, g.KdB, g.SpeedKA, g.SpeedKB}
	for i, v := range gains {
		b.write("ks", protocol.Int(int32(i)), protocol.Float(v))
	}
	log.Printf("[bridge] set pid: %+v", g)
	return true
}
