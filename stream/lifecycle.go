// Package stream implements per-connection event mediators and the
// orchestrator that drives them through historical replay and live
// forwarding.
package stream

import (
	"fmt"
	"sync/atomic"
)

// State is a mediator lifecycle state.
type State uint32

const (
	// StateActive: events are delivered to attached listeners.
	StateActive State = iota
	// StateDisconnecting: the clientDisconnected event is being
	// delivered. No other event is published.
	StateDisconnecting
	// StateClosed: terminal. Publishing is a no-op.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "Active"
	case StateDisconnecting:
		return "Disconnecting"
	case StateClosed:
		return "Closed"
	default:
		return fmt.Sprintf("unknown(%d)", uint32(s))
	}
}

// lifecycle enforces the one-way active -> disconnecting -> closed
// progression.
type lifecycle struct {
	state atomic.Uint32
}

func (l *lifecycle) load() State { return State(l.state.Load()) }

// beginDisconnect transitions Active -> Disconnecting. It reports
// false if a disconnect already started, which makes Disconnect
// idempotent.
func (l *lifecycle) beginDisconnect() bool {
	return l.state.CompareAndSwap(uint32(StateActive), uint32(StateDisconnecting))
}

// close transitions Disconnecting -> Closed.
func (l *lifecycle) close() {
	if !l.state.CompareAndSwap(uint32(StateDisconnecting), uint32(StateClosed)) {
		panic(fmt.Sprintf("BUG: mediator closed in state %s (expected Disconnecting)", l.load()))
	}
}
