package dapigrpc

import (
	"context"
	"log/slog"
	"net"

	"github.com/blockberries/dapi/server"
	"github.com/blockberries/dapi/types"
	"google.golang.org/grpc"
)

// Compile-time interface check.
var _ DAPIServiceServer = (*GRPCServer)(nil)

// GRPCServer exposes a server.Server over gRPC. Domain types are
// serialized directly via cramberry.
type GRPCServer struct {
	log *slog.Logger
	srv *server.Server
}

// NewGRPCServer returns a gRPC front end for srv.
func NewGRPCServer(log *slog.Logger, srv *server.Server) *GRPCServer {
	return &GRPCServer{log: log, srv: srv}
}

// Register adds the dapi service to a gRPC server.
func (s *GRPCServer) Register(gs *grpc.Server) {
	RegisterDAPIServiceServer(gs, s)
}

// Serve starts a gRPC server on the given listener.
func (s *GRPCServer) Serve(lis net.Listener, opts ...grpc.ServerOption) error {
	gs := grpc.NewServer(opts...)
	s.Register(gs)
	return gs.Serve(lis)
}

// Server returns the underlying server.
func (s *GRPCServer) Server() *server.Server {
	return s.srv
}

func (s *GRPCServer) SendRawTransition(ctx context.Context, req *SendRawTransitionRequest) (*SendRawTransitionResponse, error) {
	txid, err := s.srv.SendRawTransition(ctx, req.RawTransitionHeader, req.RawTransitionDataPacket)
	if err != nil {
		return nil, toStatus(err)
	}
	return &SendRawTransitionResponse{TransactionID: string(txid)}, nil
}

func (s *GRPCServer) SubscribeToTransactions(req *SubscribeRequest, stream grpc.ServerStream) error {
	err := s.srv.Subscribe(stream.Context(), req.Filter, req.Kinds, func(ev types.StreamEvent) error {
		return stream.SendMsg(&ev)
	})
	if err != nil {
		s.log.Debug("Subscription ended with error", "err", err)
	}
	return toStatus(err)
}
