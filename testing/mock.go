// Package dapitest provides test utilities for dapi: configurable
// backend mocks, transition and block fixtures, and a compliance
// suite every [dapi.Connection] implementation should pass.
package dapitest

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/blockberries/dapi"
	"github.com/blockberries/dapi/types"
)

// Compile-time interface checks.
var (
	_ dapi.PacketStore   = (*MockPacketStore)(nil)
	_ dapi.LedgerNode    = (*MockLedgerNode)(nil)
	_ dapi.HistorySource = (*MockHistory)(nil)
)

// MockPacketStore is a configurable packet store. If AddPacketFn is
// nil, packets are kept in memory.
type MockPacketStore struct {
	mu      sync.Mutex
	packets [][]byte

	AddPacketFn func(context.Context, []byte) error

	AddPacketCalls atomic.Int64
}

func (m *MockPacketStore) AddPacket(ctx context.Context, raw []byte) error {
	m.AddPacketCalls.Add(1)
	if m.AddPacketFn != nil {
		return m.AddPacketFn(ctx, raw)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.packets = append(m.packets, append([]byte(nil), raw...))
	return nil
}

// Packets returns the packets stored so far, in order.
func (m *MockPacketStore) Packets() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]byte(nil), m.packets...)
}

// MockLedgerNode is a configurable ledger node. If BroadcastFn is nil,
// broadcasts succeed with a txid derived from the call count.
type MockLedgerNode struct {
	mu        sync.Mutex
	broadcast [][]byte

	BroadcastFn func(context.Context, []byte) (types.TxID, error)

	BroadcastCalls atomic.Int64
}

func (m *MockLedgerNode) BroadcastTransaction(ctx context.Context, serialized []byte) (types.TxID, error) {
	n := m.BroadcastCalls.Add(1)
	if m.BroadcastFn != nil {
		return m.BroadcastFn(ctx, serialized)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.broadcast = append(m.broadcast, append([]byte(nil), serialized...))
	return TxIDFor(n), nil
}

// Broadcasts returns the serialized transactions broadcast so far.
func (m *MockLedgerNode) Broadcasts() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]byte(nil), m.broadcast...)
}

// MockHistory is a slice-backed history source. Blocks must be in
// ascending height order.
type MockHistory struct {
	Chain []types.Block

	// Optional. Called before each block is yielded; returning an
	// error ends the iteration with that error.
	BeforeBlockFn func(types.Block) error

	BlocksCalls atomic.Int64
	Yielded     atomic.Int64
}

func (m *MockHistory) Blocks(ctx context.Context, from uint64) dapi.BlockIterator {
	m.BlocksCalls.Add(1)
	var blocks []types.Block
	for _, b := range m.Chain {
		if b.Height >= from {
			blocks = append(blocks, b)
		}
	}
	return &sliceIterator{m: m, ctx: ctx, blocks: blocks, pos: -1}
}

type sliceIterator struct {
	m      *MockHistory
	ctx    context.Context
	blocks []types.Block
	pos    int
	err    error
}

func (it *sliceIterator) Next() bool {
	if it.err != nil || it.pos+1 >= len(it.blocks) {
		return false
	}
	if err := it.ctx.Err(); err != nil {
		it.err = err
		return false
	}
	it.pos++
	if it.m.BeforeBlockFn != nil {
		if err := it.m.BeforeBlockFn(it.blocks[it.pos]); err != nil {
			it.err = err
			return false
		}
	}
	it.m.Yielded.Add(1)
	return true
}

func (it *sliceIterator) Block() types.Block { return it.blocks[it.pos] }
func (it *sliceIterator) Err() error         { return it.err }
func (it *sliceIterator) Release()           {}
