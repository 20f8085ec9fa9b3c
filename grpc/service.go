package dapigrpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
)

const serviceName = "github.com/blockberries/dapi.v1.DAPIService"

// DAPIServiceServer is the server-side interface for the dapi gRPC service.
type DAPIServiceServer interface {
	SendRawTransition(context.Context, *SendRawTransitionRequest) (*SendRawTransitionResponse, error)
	SubscribeToTransactions(*SubscribeRequest, grpc.ServerStream) error
}

// RegisterDAPIServiceServer registers srv on a gRPC server.
func RegisterDAPIServiceServer(s *grpc.Server, srv DAPIServiceServer) {
	s.RegisterService(&serviceDesc, srv)
}

func handlerSendRawTransition(srv any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
	req := new(SendRawTransitionRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	return srv.(DAPIServiceServer).SendRawTransition(ctx, req)
}

func handlerSubscribeToTransactions(srv any, stream grpc.ServerStream) error {
	req := new(SubscribeRequest)
	if err := stream.RecvMsg(req); err != nil {
		return err
	}
	return srv.(DAPIServiceServer).SubscribeToTransactions(req, stream)
}

// fullMethod builds the full gRPC method path.
func fullMethod(method string) string {
	return fmt.Sprintf("/%s/%s", serviceName, method)
}

var subscribeStreamDesc = grpc.StreamDesc{
	StreamName:    "SubscribeToTransactions",
	Handler:       handlerSubscribeToTransactions,
	ServerStreams: true,
}

// serviceDesc is the manual gRPC service descriptor for dapi.
var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*DAPIServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "SendRawTransition", Handler: handlerSendRawTransition},
	},
	Streams:  []grpc.StreamDesc{subscribeStreamDesc},
	Metadata: "github.com/blockberries/dapi/v1/service.cram",
}
