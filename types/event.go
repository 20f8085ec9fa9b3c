package types

import (
	"fmt"
	"strings"
)

// EventKind names one kind of stream event. Kinds are single bits so
// that a set of them fits in an EventKinds mask.
type EventKind uint8

const (
	// EventHistoricalDataSent marks the end of historical replay.
	EventHistoricalDataSent EventKind = 1 << iota
	// EventTransaction carries one matching transaction.
	EventTransaction
	// EventMerkleBlock carries one filtered block.
	EventMerkleBlock
	// EventClientDisconnected reports that the connection is gone.
	// It is delivered in-process only, never on the wire.
	EventClientDisconnected
	// EventHistoricalBlockSent marks one historical block as delivered.
	EventHistoricalBlockSent
)

// AllEventKinds lists every kind in declaration order.
var AllEventKinds = []EventKind{
	EventHistoricalDataSent,
	EventTransaction,
	EventMerkleBlock,
	EventClientDisconnected,
	EventHistoricalBlockSent,
}

func (k EventKind) String() string {
	switch k {
	case EventHistoricalDataSent:
		return "historicalDataSent"
	case EventTransaction:
		return "transaction"
	case EventMerkleBlock:
		return "merkleBlock"
	case EventClientDisconnected:
		return "clientDisconnected"
	case EventHistoricalBlockSent:
		return "historicalBlockSent"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// EventKinds is a bitfield of event kinds.
type EventKinds uint8

// ClientEventKinds is every kind delivered to a remote subscriber.
const ClientEventKinds = EventKinds(EventHistoricalDataSent | EventTransaction |
	EventMerkleBlock | EventHistoricalBlockSent)

// Has returns true if kind is in the set.
func (ks EventKinds) Has(kind EventKind) bool {
	return ks&EventKinds(kind) != 0
}

// OrDefault returns ks, or ClientEventKinds when ks is empty.
func (ks EventKinds) OrDefault() EventKinds {
	if ks == 0 {
		return ClientEventKinds
	}
	return ks
}

// String returns a human-readable representation.
func (ks EventKinds) String() string {
	var names []string
	for _, k := range AllEventKinds {
		if ks.Has(k) {
			names = append(names, k.String())
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "|")
}

// StreamEvent is one event published by a stream mediator and, for
// client-facing kinds, sent over the wire. Only the fields relevant
// to Kind are set.
type StreamEvent struct {
	Kind        EventKind    `cramberry:"1"`
	Height      uint64       `cramberry:"2"`
	Transaction *Transaction `cramberry:"3"`
	MerkleBlock *MerkleBlock `cramberry:"4"`
	Reason      string       `cramberry:"5"`
}
