// Package local provides an in-process dapi connection.
//
// Callers compiled into the same binary as the service get the same
// argument checks and stream behavior as gRPC clients, with no
// serialization.
package local

import (
	"context"

	"github.com/blockberries/dapi"
	"github.com/blockberries/dapi/server"
	"github.com/blockberries/dapi/types"
)

// Compile-time interface check.
var _ dapi.Connection = (*Connection)(nil)

// Connection drives a server.Server directly.
type Connection struct {
	srv *server.Server
}

// NewConnection returns an in-process connection to srv.
func NewConnection(srv *server.Server) *Connection {
	return &Connection{srv: srv}
}

func (c *Connection) SendRawTransition(ctx context.Context, rawHeader, rawPacket string) (types.TxID, error) {
	return c.srv.SendRawTransition(ctx, rawHeader, rawPacket)
}

func (c *Connection) SubscribeToTransactions(ctx context.Context, filter types.Filter, kinds types.EventKinds) (<-chan types.StreamEvent, func() error, error) {
	ctx, cancel := context.WithCancel(ctx)

	ch := make(chan types.StreamEvent)
	done := make(chan struct{})
	var streamErr error

	go func() {
		defer close(done)
		defer close(ch)
		defer cancel()
		streamErr = c.srv.Subscribe(ctx, filter, kinds, func(ev types.StreamEvent) error {
			select {
			case ch <- ev:
				return nil
			case <-ctx.Done():
				return context.Cause(ctx)
			}
		})
		if ctx.Err() != nil {
			streamErr = nil
		}
	}()

	wait := func() error {
		<-done
		return streamErr
	}
	return ch, wait, nil
}

func (c *Connection) Close() error { return nil }

// Server returns the underlying server.
func (c *Connection) Server() *server.Server {
	return c.srv
}
