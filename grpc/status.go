package dapigrpc

import (
	"context"
	"errors"
	"strconv"

	"github.com/blockberries/dapi"
	"github.com/blockberries/dapi/stream"
	"github.com/blockberries/dapi/types"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const errorDomain = "dapi"

// ErrorInfo reasons. Validation errors use the dapi reason string.
const (
	infoStoreFailed     = "STORE_FAILED"
	infoBroadcastFailed = "BROADCAST_FAILED"
	infoShutdown        = "SHUTDOWN"
	infoSlowConsumer    = "SLOW_CONSUMER"
)

// Metadata keys.
const (
	metaDetail       = "detail"
	metaPacketStored = "packet_stored"
	metaFingerprint  = "fingerprint"
)

// toStatus converts a service error into a gRPC status error.
//
//	ValidationError           -> InvalidArgument, message is the reason
//	BackendError (store)      -> Unavailable
//	BackendError (broadcast)  -> Internal
//	stream.ErrShutdown        -> Unavailable
//	stream.ErrSlowConsumer    -> ResourceExhausted
//
// The dapi fields ride along in an ErrorInfo detail so the client can
// rebuild the typed error.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	if verr, ok := dapi.IsValidation(err); ok {
		meta := map[string]string{}
		if verr.Err != nil {
			meta[metaDetail] = verr.Err.Error()
		}
		return withInfo(codes.InvalidArgument, verr.Reason, verr.Reason, meta)
	}
	if berr, ok := dapi.IsBackend(err); ok {
		meta := map[string]string{
			metaPacketStored: strconv.FormatBool(berr.PacketStored),
		}
		if berr.Err != nil {
			meta[metaDetail] = berr.Err.Error()
		}
		if berr.PacketStored {
			meta[metaFingerprint] = berr.Fingerprint.String()
		}
		if berr.Stage == dapi.StageStore {
			return withInfo(codes.Unavailable, berr.Error(), infoStoreFailed, meta)
		}
		return withInfo(codes.Internal, berr.Error(), infoBroadcastFailed, meta)
	}
	if errors.Is(err, stream.ErrShutdown) {
		return withInfo(codes.Unavailable, err.Error(), infoShutdown, nil)
	}
	if errors.Is(err, stream.ErrSlowConsumer) {
		return withInfo(codes.ResourceExhausted, err.Error(), infoSlowConsumer, nil)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return status.FromContextError(err).Err()
	}
	return status.Error(codes.Internal, err.Error())
}

func withInfo(code codes.Code, msg, reason string, meta map[string]string) error {
	st := status.New(code, msg)
	withDetails, err := st.WithDetails(&errdetails.ErrorInfo{
		Reason:   reason,
		Domain:   errorDomain,
		Metadata: meta,
	})
	if err != nil {
		return st.Err()
	}
	return withDetails.Err()
}

// fromStatus is the client-side inverse of toStatus. Errors without a
// dapi ErrorInfo are returned unchanged.
func fromStatus(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	var info *errdetails.ErrorInfo
	for _, d := range st.Details() {
		if ei, ok := d.(*errdetails.ErrorInfo); ok && ei.GetDomain() == errorDomain {
			info = ei
			break
		}
	}
	if info == nil {
		return err
	}
	meta := info.GetMetadata()

	switch {
	case st.Code() == codes.InvalidArgument:
		verr := &dapi.ValidationError{Reason: info.GetReason()}
		if d, ok := meta[metaDetail]; ok {
			verr.Err = errors.New(d)
		}
		return verr
	case info.GetReason() == infoStoreFailed || info.GetReason() == infoBroadcastFailed:
		berr := &dapi.BackendError{
			Stage:        dapi.StageStore,
			PacketStored: meta[metaPacketStored] == "true",
			Err:          errors.New(meta[metaDetail]),
		}
		if info.GetReason() == infoBroadcastFailed {
			berr.Stage = dapi.StageBroadcast
		}
		if fp, ok := meta[metaFingerprint]; ok {
			if h, herr := types.HashFromHex(fp); herr == nil {
				berr.Fingerprint = h
			}
		}
		return berr
	case info.GetReason() == infoShutdown:
		return stream.ErrShutdown
	case info.GetReason() == infoSlowConsumer:
		return stream.ErrSlowConsumer
	}
	return err
}
