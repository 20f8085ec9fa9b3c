package dapitest

import (
	"testing"

	"github.com/blockberries/dapi/ledger"
	"github.com/blockberries/dapi/server"
	"github.com/blockberries/dapi/stream"
	"github.com/blockberries/dapi/transition"
	"github.com/neilotoole/slogt"
)

// Backend is a complete set of mock collaborators for a dapi service.
type Backend struct {
	Store   *MockPacketStore
	Node    *MockLedgerNode
	History *MockHistory
	Feed    *ledger.Feed
}

// NewBackend returns a backend with empty mocks.
func NewBackend() *Backend {
	return &Backend{
		Store:   &MockPacketStore{},
		Node:    &MockLedgerNode{},
		History: &MockHistory{},
		Feed:    ledger.NewFeed(),
	}
}

// Server builds a service over the backend.
func (b *Backend) Server(t testing.TB) *server.Server {
	t.Helper()
	log := slogt.New(t)
	sub := transition.NewSubmitter(log, transition.SubmitterConfig{
		Store: b.Store,
		Node:  b.Node,
	})
	streams := stream.NewOrchestrator(log, stream.Config{
		History: b.History,
		Live:    b.Feed,
	})
	return server.New(log, sub, streams)
}
