// Package server is the dapi service core. The gRPC transport and the
// in-process connection both drive it, so argument checks, logging and
// stream wiring behave the same on either path.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/blockberries/dapi"
	"github.com/blockberries/dapi/codec"
	"github.com/blockberries/dapi/stream"
	"github.com/blockberries/dapi/transition"
	"github.com/blockberries/dapi/types"
)

// SendFunc delivers one event to the remote subscriber. An error ends
// the stream.
type SendFunc func(types.StreamEvent) error

// Server routes submissions to the submitter and subscriptions to the
// stream orchestrator.
type Server struct {
	log       *slog.Logger
	submitter *transition.Submitter
	streams   *stream.Orchestrator
}

// New returns a Server.
func New(log *slog.Logger, submitter *transition.Submitter, streams *stream.Orchestrator) *Server {
	return &Server{log: log, submitter: submitter, streams: streams}
}

// SendRawTransition checks the request arguments and submits the
// transition. The header must be a non-empty hex string. A missing
// packet is left to the assembler so it is reported as such.
func (s *Server) SendRawTransition(ctx context.Context, rawHeader, rawPacket string) (types.TxID, error) {
	if rawHeader == "" {
		return "", dapi.NewValidationError(dapi.ReasonInvalidArgument, errors.New("header is required"))
	}
	if !isHex(rawHeader) {
		return "", dapi.NewValidationError(dapi.ReasonInvalidArgument, errors.New("header is not a hex string"))
	}
	if rawPacket != "" && !isHex(rawPacket) {
		return "", dapi.NewValidationError(dapi.ReasonInvalidArgument, errors.New("packet is not a hex string"))
	}
	return s.submitter.Submit(ctx, rawHeader, rawPacket)
}

// Subscribe opens a stream for filter and calls send for every event
// whose kind is in kinds, until ctx is cancelled, send fails or the
// stream ends. An empty kinds set selects every client event kind.
// clientDisconnected is never sent; the end of the stream reports it.
func (s *Server) Subscribe(ctx context.Context, filter types.Filter, kinds types.EventKinds, send SendFunc) error {
	sess, err := s.streams.OpenStream(filter)
	if err != nil {
		return err
	}
	kinds = kinds.OrDefault() & types.ClientEventKinds

	var sendErr error
	for _, k := range types.AllEventKinds {
		if !kinds.Has(k) {
			continue
		}
		sess.Mediator().Subscribe(k, func(ev types.StreamEvent) {
			if sendErr != nil {
				return
			}
			if err := send(ev); err != nil {
				sendErr = err
				sess.Mediator().Disconnect("send failed")
			}
		})
	}

	s.log.Info("Client subscribed", "session", sess.ID(), "kinds", kinds.String(), "from_height", filter.FromHeight)
	err = sess.Run(ctx)
	s.log.Info("Client stream ended", "session", sess.ID(), "reason", sess.Mediator().Reason())

	if sendErr != nil {
		return fmt.Errorf("server: send: %w", sendErr)
	}
	return err
}

// Shutdown disconnects every open stream and refuses new ones.
func (s *Server) Shutdown(reason string) {
	s.streams.CloseAll(reason)
}

func isHex(s string) bool {
	_, err := codec.DecodeHex(s)
	return err == nil
}
