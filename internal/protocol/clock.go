package protocol

import "time"

// Clock maps the device's millisecond counter onto host wall-clock time.
// The reference pair is captured once, when the readiness handshake
// completes, and never changes for the rest of the session.
type Clock struct {
	set     bool
	hostRef time.Time
	msRef   uint32
}

// SetReference anchors the device clock: hostNow is the host time at
// which the device reported deviceMs on its own counter.
func (c *Clock) SetReference(hostNow time.Time, deviceMs uint32) {
	c.hostRef = hostNow
	c.msRef = deviceMs
	c.set = true
}

// Set reports whether a reference has been captured.
func (c *Clock) Set() bool { return c.set }

// ToHostTime converts a device-reported millisecond stamp to host time.
// The uint32 subtraction stays correct across a device counter wrap
// (~49.7 days of uptime).
func (c *Clock) ToHostTime(deviceMs uint32) time.Time {
	return c.hostRef.Add(time.Duration(deviceMs-c.msRef) * time.Millisecond)
}
