// Package dapi defines the submission and streaming surface that sits
// between clients and a ledger node.
//
// Two flows run through it. A state transition (an on-chain header
// transaction plus an off-chain data packet) is validated, its packet
// committed to a [PacketStore] and its header broadcast through a
// [LedgerNode], in that order. Independently, a subscriber opens a
// filtered stream that replays matching history from a
// [HistorySource] and then follows a [LiveFeed].
//
// The interfaces here are the collaborator boundaries. The packages
// under this module provide goleveldb, JSON-RPC, gRPC and in-process
// implementations of them.
package dapi

import (
	"context"

	"github.com/blockberries/dapi/types"
	"github.com/ethereum/go-ethereum/event"
)

// PacketStore durably stores raw data packets.
type PacketStore interface {
	// AddPacket stores the raw, undecoded packet bytes. A nil error is
	// the store's acknowledgment that the packet is durable.
	AddPacket(ctx context.Context, raw []byte) error
}

// LedgerNode broadcasts transactions to the ledger network.
type LedgerNode interface {
	// BroadcastTransaction submits serialized transaction bytes and
	// returns the identifier the node assigned.
	BroadcastTransaction(ctx context.Context, serialized []byte) (types.TxID, error)
}

// HeaderCodec converts between header transaction wire bytes and the
// decoded form.
type HeaderCodec interface {
	Parse(raw []byte) (types.HeaderTransaction, error)
	Serialize(tx types.HeaderTransaction) ([]byte, error)
}

// PacketCodec decodes raw packet bytes.
type PacketCodec interface {
	Decode(raw []byte) (types.Packet, error)
}

// BlockIterator walks stored blocks in ascending height order.
//
// It follows the goleveldb iterator convention: call Next until it
// returns false, then check Err, and always call Release.
type BlockIterator interface {
	Next() bool
	Block() types.Block
	Err() error
	Release()
}

// HistorySource yields historical blocks. The sequence is finite and
// restartable from any height.
type HistorySource interface {
	Blocks(ctx context.Context, from uint64) BlockIterator
}

// LiveFeed delivers blocks as the node produces them.
//
// The channel should have ample buffer space; slow subscribers hold
// up delivery to every other subscriber.
type LiveFeed interface {
	SubscribeBlocks(ch chan<- types.Block) event.Subscription
}

// Connection is a transport-agnostic client connection to a dapi
// service. Both the gRPC client and the in-process adapter implement
// it.
type Connection interface {
	// SendRawTransition submits a hex-encoded header transaction and
	// data packet and returns the broadcast transaction id.
	SendRawTransition(ctx context.Context, rawHeader, rawPacket string) (types.TxID, error)

	// SubscribeToTransactions opens a filtered stream. Events arrive on
	// the returned channel, which is closed when the stream ends; the
	// error function then reports why (nil for a clean end).
	// Cancelling ctx disconnects.
	SubscribeToTransactions(ctx context.Context, filter types.Filter, kinds types.EventKinds) (<-chan types.StreamEvent, func() error, error)

	// Close terminates the connection.
	Close() error
}
