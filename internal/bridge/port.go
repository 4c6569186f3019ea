package bridge

import (
	"errors"
	"fmt"
	"log"
	"time"

	"go.bug.st/serial"
)

// serialSource adapts a serial.Port to the bridge's Device interface.
// A pump goroutine reads the port into a buffered channel so the driving
// loop can poll availability without blocking on the port itself.
type serialSource struct {
	port serial.Port
	ch   chan byte
	done chan struct{}
}

const sourceBufferSize = 4096

var errReadTimeout = errors.New("bridge: serial read timed out")

func openSerialSource(portPath string, baudRate int) (*serialSource, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(portPath, mode)
	if err != nil {
		return nil, fmt.Errorf("bridge: failed to open %s: %w", portPath, err)
	}
	if err := port.SetReadTimeout(100 * time.Millisecond); err != nil {
		port.Close()
		return nil, fmt.Errorf("bridge: failed to set timeout: %w", err)
	}

	s := &serialSource{
		port: port,
		ch:   make(chan byte, sourceBufferSize),
		done: make(chan struct{}),
	}
	go s.pump()
	log.Printf("[bridge] opened %s at %d baud", portPath, baudRate)
	return s, nil
}

func (s *serialSource) pump() {
	buf := make([]byte, 256)
	for {
		select {
		case <-s.done:
			return
		default:
		}
		n, err := s.port.Read(buf)
		if err != nil {
			select {
			case <-s.done:
			default:
				log.Printf("[bridge] serial read error: %v", err)
			}
			return
		}
		for _, b := range buf[:n] {
			select {
			case s.ch <- b:
			case <-s.done:
				return
			}
		}
	}
}

func (s *serialSource) Available() int { return len(s.ch) }

// ReadByte returns the next buffered byte, waiting briefly if the pump
// has not delivered one yet.
func (s *serialSource) ReadByte() (byte, error) {
	select {
	case b := <-s.ch:
		return b, nil
	case <-time.After(50 * time.Millisecond):
		return 0, errReadTimeout
	}
}

func (s *serialSource) Write(p []byte) (int, error) { return s.port.Write(p) }

func (s *serialSource) Close() error {
	close(s.done)
	return s.port.Close()
}
