package protocol

import "time"

// Record is one decoded sensor reading handed to the publish callback.
// The engine keeps no reference to a record after handing it over.
type Record interface {
	// Category returns the wire category token the record was decoded from.
	Category() string
}

// DriveRecord carries drive base encoder readings.
type DriveRecord struct {
	Stamp      time.Time `json:"stamp"`
	LeftTicks  int64     `json:"leftTicks"`
	RightTicks int64     `json:"rightTicks"`
	LeftSpeed  float64   `json:"leftSpeed"`  // ticks per second
	RightSpeed float64   `json:"rightSpeed"` // ticks per second
}

func (DriveRecord) Category() string { return "enc" }

// BumperRecord carries the two rear bumper switch states.
type BumperRecord struct {
	Stamp time.Time `json:"stamp"`
	Bump1 bool      `json:"bump1"`
	Bump2 bool      `json:"bump2"`
}

func (BumperRecord) Category() string { return "bump" }

// FSRRecord carries the gripper force sensor readings.
type FSRRecord struct {
	Stamp time.Time `json:"stamp"`
	Left  uint16    `json:"left"`
	Right uint16    `json:"right"`
}

func (FSRRecord) Category() string { return "fsr" }

// GripperRecord carries the gripper position.
type GripperRecord struct {
	Stamp    time.Time `json:"stamp"`
	Position int       `json:"position"`
}

func (GripperRecord) Category() string { return "grip" }

// LinearRecord carries the linear stage position and status flags.
type LinearRecord struct {
	Stamp    time.Time `json:"stamp"`
	Position int       `json:"position"`
	HasError bool      `json:"hasError"`
	IsHomed  bool      `json:"isHomed"`
	IsActive bool      `json:"isActive"`
}

func (LinearRecord) Category() string { return "linear" }

// BatteryRecord carries the battery monitor readings. The firmware also
// reports instantaneous power in this frame; it has no consumer here and
// is skipped during decode.
type BatteryRecord struct {
	Stamp   time.Time `json:"stamp"`
	Current float64   `json:"current"` // mA
	Voltage float64   `json:"voltage"` // V
}

func (BatteryRecord) Category() string { return "batt" }

// TilterRecord carries the camera tilter position.
type TilterRecord struct {
	Stamp    time.Time `json:"stamp"`
	Position int       `json:"position"`
}

func (TilterRecord) Category() string { return "tilt" }

// ReadyState is the readiness handshake outcome. It transitions once,
// irreversibly, when the device's ready frame is decoded.
type ReadyState struct {
	IsReady   bool   `json:"isReady"`
	RobotName string `json:"robotName"`
	TimeMs    uint32 `json:"timeMs"`
}

// RobotState is the device's operational state, overwritten wholesale on
// every state frame.
type RobotState struct {
	TimeMs       uint32  `json:"timeMs"`
	IsActive     bool    `json:"isActive"`
	BatteryOK    bool    `json:"batteryOk"`
	MotorsActive bool    `json:"motorsActive"`
	LoopRate     float64 `json:"loopRate"`
}
