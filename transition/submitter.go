package transition

import (
	"context"
	"log/slog"
	"time"

	"github.com/blockberries/dapi"
	"github.com/blockberries/dapi/metrics"
	"github.com/blockberries/dapi/types"
)

// Submitter commits state transitions to the packet store and the
// ledger node.
//
// The two backends are not transactionally coupled. The packet is
// always stored before the header is broadcast, so the ledger never
// references a missing packet; a failed broadcast leaves an orphaned
// packet behind, reported through *dapi.BackendError.
type Submitter struct {
	log *slog.Logger

	assembler *Assembler
	headers   dapi.HeaderCodec
	store     dapi.PacketStore
	node      dapi.LedgerNode

	metrics *metrics.Metrics
}

// SubmitterConfig is the configuration type for [NewSubmitter].
type SubmitterConfig struct {
	Assembler *Assembler
	Headers   dapi.HeaderCodec

	Store dapi.PacketStore
	Node  dapi.LedgerNode

	// Optional.
	Metrics *metrics.Metrics
}

// NewSubmitter returns a Submitter. A nil Assembler or Headers falls
// back to the default codecs.
func NewSubmitter(log *slog.Logger, cfg SubmitterConfig) *Submitter {
	s := &Submitter{
		log: log,

		assembler: cfg.Assembler,
		headers:   cfg.Headers,
		store:     cfg.Store,
		node:      cfg.Node,

		metrics: cfg.Metrics,
	}
	if s.assembler == nil {
		s.assembler = DefaultAssembler()
	}
	if s.headers == nil {
		s.headers = s.assembler.headers
	}
	return s
}

// Submit validates the transition, stores the raw packet and then
// broadcasts the header, returning the ledger's transaction id.
//
// Validation failures return *dapi.ValidationError before any backend
// is called. Backend failures return *dapi.BackendError naming the
// stage that failed.
func (s *Submitter) Submit(ctx context.Context, rawHeader, rawPacket string) (txid types.TxID, err error) {
	start := time.Now()
	defer func() { s.metrics.ObserveTransition(err, time.Since(start)) }()

	st, err := s.assembler.Assemble(rawHeader, rawPacket)
	if err != nil {
		s.log.Debug("Rejected state transition", "err", err)
		return "", err
	}
	fp := st.Fingerprint()

	if err := s.store.AddPacket(ctx, st.RawPacket()); err != nil {
		s.log.Warn("Failed to store packet", "fingerprint", fp.String(), "err", err)
		return "", &dapi.BackendError{Stage: dapi.StageStore, Fingerprint: fp, Err: err}
	}

	serialized, err := s.headers.Serialize(st.Header())
	if err != nil {
		// The header was parsed from these same bytes moments ago, so
		// this only happens with a broken codec.
		return "", &dapi.BackendError{Stage: dapi.StageBroadcast, PacketStored: true, Fingerprint: fp, Err: err}
	}

	txid, err = s.node.BroadcastTransaction(ctx, serialized)
	if err != nil {
		s.log.Error(
			"Broadcast failed after packet was stored",
			"fingerprint", fp.String(), "err", err,
		)
		return "", &dapi.BackendError{Stage: dapi.StageBroadcast, PacketStored: true, Fingerprint: fp, Err: err}
	}

	s.log.Info("Submitted state transition", "fingerprint", fp.String(), "txid", txid)
	return txid, nil
}
