package dapigrpc

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/blockberries/dapi"
	"github.com/blockberries/dapi/types"
	"google.golang.org/grpc"
)

// Compile-time interface check.
var _ dapi.Connection = (*Client)(nil)

// Client implements dapi.Connection over gRPC using cramberry
// serialization. Typed dapi errors survive the round trip.
type Client struct {
	cc *grpc.ClientConn
}

// Dial connects to a remote dapi service.
func Dial(ctx context.Context, addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append(opts, grpc.WithDefaultCallOptions(
		grpc.ForceCodec(CramberryCodec{}),
	))
	cc, err := grpc.DialContext(ctx, addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("dapi client: dial %s: %w", addr, err)
	}
	return &Client{cc: cc}, nil
}

func (c *Client) Close() error {
	return c.cc.Close()
}

func (c *Client) SendRawTransition(ctx context.Context, rawHeader, rawPacket string) (types.TxID, error) {
	req := &SendRawTransitionRequest{
		RawTransitionHeader:     rawHeader,
		RawTransitionDataPacket: rawPacket,
	}
	resp := new(SendRawTransitionResponse)
	if err := c.cc.Invoke(ctx, fullMethod("SendRawTransition"), req, resp); err != nil {
		return "", fromStatus(err)
	}
	return types.TxID(resp.TransactionID), nil
}

func (c *Client) SubscribeToTransactions(ctx context.Context, filter types.Filter, kinds types.EventKinds) (<-chan types.StreamEvent, func() error, error) {
	ctx, cancel := context.WithCancel(ctx)

	stream, err := c.cc.NewStream(ctx, &subscribeStreamDesc, fullMethod("SubscribeToTransactions"))
	if err != nil {
		cancel()
		return nil, nil, fromStatus(err)
	}
	if err := stream.SendMsg(&SubscribeRequest{Filter: filter, Kinds: kinds}); err != nil {
		cancel()
		return nil, nil, fromStatus(err)
	}
	if err := stream.CloseSend(); err != nil {
		cancel()
		return nil, nil, fromStatus(err)
	}

	ch := make(chan types.StreamEvent)
	done := make(chan struct{})
	var streamErr error

	go func() {
		defer close(done)
		defer close(ch)
		defer cancel()
		for {
			ev := new(types.StreamEvent)
			if err := stream.RecvMsg(ev); err != nil {
				if !errors.Is(err, io.EOF) && ctx.Err() == nil {
					streamErr = fromStatus(err)
				}
				return
			}
			select {
			case ch <- *ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	wait := func() error {
		<-done
		return streamErr
	}
	return ch, wait, nil
}
