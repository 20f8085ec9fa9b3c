package ledger

import (
	"context"
	"log/slog"
	"time"

	"github.com/blockberries/dapi/types"
)

// DefaultPollInterval is used when PollerConfig.Interval is zero.
const DefaultPollInterval = 2 * time.Second

// BlockSource is the subset of the node the poller reads from.
type BlockSource interface {
	BlockCount(ctx context.Context) (uint64, error)
	BlockByHeight(ctx context.Context, height uint64) (types.Block, error)
}

// Poller follows the node's chain tip and records every new block.
type Poller struct {
	log      *slog.Logger
	src      BlockSource
	recorder *Recorder
	interval time.Duration

	next uint64
}

// PollerConfig is the configuration type for [NewPoller].
type PollerConfig struct {
	Source   BlockSource
	Recorder *Recorder

	// StartHeight is the first height to fetch.
	StartHeight uint64

	Interval time.Duration
}

// NewPoller returns a poller. Call Run to start it.
func NewPoller(log *slog.Logger, cfg PollerConfig) *Poller {
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{
		log:      log,
		src:      cfg.Source,
		recorder: cfg.Recorder,
		interval: interval,
		next:     cfg.StartHeight,
	}
}

// Run polls until ctx is done. Node errors are logged and retried on
// the next tick; Run only returns ctx's error.
func (p *Poller) Run(ctx context.Context) error {
	t := time.NewTicker(p.interval)
	defer t.Stop()

	for {
		if err := p.Poll(ctx); err != nil && ctx.Err() == nil {
			p.log.Warn("Failed to poll ledger node", "next_height", p.next, "err", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}

// Poll fetches and records every block from the next expected height
// up to the current tip.
func (p *Poller) Poll(ctx context.Context) error {
	tip, err := p.src.BlockCount(ctx)
	if err != nil {
		return err
	}
	for ; p.next <= tip; p.next++ {
		b, err := p.src.BlockByHeight(ctx, p.next)
		if err != nil {
			return err
		}
		if err := p.recorder.Record(ctx, b); err != nil {
			return err
		}
	}
	return nil
}

// NextHeight returns the next height the poller will fetch.
func (p *Poller) NextHeight() uint64 { return p.next }
