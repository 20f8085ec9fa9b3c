package dapigrpc

import (
	"testing"

	"github.com/blockberries/dapi/stream"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestStatus_StreamErrors(t *testing.T) {
	for _, tc := range []struct {
		err  error
		code codes.Code
	}{
		{stream.ErrShutdown, codes.Unavailable},
		{stream.ErrSlowConsumer, codes.ResourceExhausted},
	} {
		st := toStatus(tc.err)
		require.Equal(t, tc.code, status.Code(st), tc.err.Error())
		require.ErrorIs(t, fromStatus(st), tc.err)
	}
}
