package ledger

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/blockberries/dapi/metrics"
	"github.com/blockberries/dapi/types"
)

// BlockWriter persists blocks.
type BlockWriter interface {
	PutBlock(ctx context.Context, b types.Block) error
}

// Recorder persists blocks to history and then publishes them to the
// live feed, so a session that sees a block live can also find it
// when replaying.
type Recorder struct {
	log     *slog.Logger
	blocks  BlockWriter
	feed    *Feed
	metrics *metrics.Metrics
}

// NewRecorder returns a Recorder writing to blocks and publishing to
// feed. m may be nil.
func NewRecorder(log *slog.Logger, blocks BlockWriter, feed *Feed, m *metrics.Metrics) *Recorder {
	return &Recorder{log: log, blocks: blocks, feed: feed, metrics: m}
}

// Record stores and publishes b.
func (r *Recorder) Record(ctx context.Context, b types.Block) error {
	if err := r.blocks.PutBlock(ctx, b); err != nil {
		return fmt.Errorf("ledger: record block %d: %w", b.Height, err)
	}
	n := r.feed.Publish(b)
	r.metrics.BlockRecorded()
	r.log.Debug("Recorded block", "height", b.Height, "hash", b.Hash.String(), "txs", len(b.Transactions), "subscribers", n)
	return nil
}
