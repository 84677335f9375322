// Package transport delivers encoded protocol packets to a display
// device and owns the connection lifecycle.
package transport

import (
	"context"
	"fmt"
	"sync"
)

// State is the connection lifecycle position of a transport.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateDegraded
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDegraded:
		return "degraded"
	default:
		return "disconnected"
	}
}

// ConnectionError reports that the device could not be reached after the
// bounded retry schedule.
type ConnectionError struct {
	Addr     string
	Attempts int
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("transport: connect %s failed after %d attempts: %v", e.Addr, e.Attempts, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// TransportError reports that a send failed even after a reconnect
// retry. The affected packet is dropped; the pipeline continues.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return "transport: send failed: " + e.Err.Error() }
func (e *TransportError) Unwrap() error { return e.Err }

// Transport is a connected link to one display device. Send blocks until
// the device has acknowledged the write of every chunk.
type Transport interface {
	Connect(ctx context.Context) error
	Send(ctx context.Context, pkt []byte) error
	State() State
	Close() error
}

// stateTracker is embedded by the concrete transports for locked state
// transitions.
type stateTracker struct {
	mu     sync.RWMutex
	state  State
	reason string
}

func (s *stateTracker) setState(st State, reason string) {
	s.mu.Lock()
	s.state = st
	s.reason = reason
	s.mu.Unlock()
}

func (s *stateTracker) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Reason returns the degradation cause, if any.
func (s *stateTracker) Reason() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reason
}
