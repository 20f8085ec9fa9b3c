package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/blockberries/dapi"
	"github.com/blockberries/dapi/types"
	"github.com/google/uuid"
)

// ErrSessionStarted is returned by Run on a session that already ran.
var ErrSessionStarted = errors.New("stream: session already started")

// ErrLiveFeedEnded is returned by Run when the live subscription ends
// while the client is still connected.
var ErrLiveFeedEnded = errors.New("stream: live feed subscription ended")

// ErrSlowConsumer is returned by Run when the session fell a full live
// buffer behind the feed and was disconnected.
var ErrSlowConsumer = errors.New("stream: slow consumer")

// ReasonSlowConsumer is the disconnect reason of a session whose live
// buffer overflowed.
const ReasonSlowConsumer = "slow consumer"

// Session is one client subscription: a filter, the mediator carrying
// its events, and the replay and forwarding state.
type Session struct {
	id  uuid.UUID
	log *slog.Logger

	filter   types.Filter
	mediator *Mediator

	history    dapi.HistorySource
	live       dapi.LiveFeed
	liveBuffer int

	started  atomic.Bool
	overflow atomic.Bool

	// Highest height delivered so far; valid when seen is true.
	// Only touched by the Run goroutine.
	last uint64
	seen bool

	releaseOnce sync.Once
	release     func()
}

// ID returns the session handle.
func (s *Session) ID() uuid.UUID { return s.id }

// Filter returns the session's filter.
func (s *Session) Filter() types.Filter { return s.filter }

// Mediator returns the session's event hub. Attach listeners before
// calling Run; nothing is replayed to late listeners.
func (s *Session) Mediator() *Mediator { return s.mediator }

// Disconnect ends the session with the given reason. It returns once
// the mediator is closed, even if another goroutine started the
// disconnect. It must not be called from a mediator handler; use
// Mediator().Disconnect there.
func (s *Session) Disconnect(reason string) {
	s.mediator.Disconnect(reason)
	<-s.mediator.Closed()
	s.releaseOnce.Do(s.release)
}

// Run drives the session until the client disconnects.
//
// It subscribes to the live feed, replays matching history from the
// filter's start height, publishes historicalDataSent once, and then
// forwards matching live blocks. Live blocks that arrive during the
// replay are held back until historicalDataSent has been published,
// and heights already replayed are not forwarded again.
//
// historicalBlockSent follows each replayed block that matched the
// filter, after its merkleBlock and transactions. Blocks without a
// match publish nothing, so a client counts historicalBlockSent once
// per matching block.
//
// The feed never waits on this session. Live blocks are queued up to
// the live buffer; a session that falls further behind is disconnected
// with ReasonSlowConsumer and Run returns ErrSlowConsumer.
//
// Cancelling ctx is a disconnect. Run returns nil after a disconnect
// and an error if the history source or live feed fails; in every case
// the mediator is closed when Run returns.
func (s *Session) Run(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrSessionStarted
	}
	defer s.Disconnect("stream ended")

	if ctx.Err() != nil {
		s.mediator.Disconnect(disconnectReason(ctx))
		return nil
	}
	stop := context.AfterFunc(ctx, func() {
		s.mediator.Disconnect(disconnectReason(ctx))
	})
	defer stop()

	mctx := s.mediator.ctx

	in := make(chan types.Block)
	live := make(chan types.Block, s.liveBuffer)
	sub := s.live.SubscribeBlocks(in)
	stopPump := make(chan struct{})
	go s.pump(in, live, stopPump)
	defer func() {
		sub.Unsubscribe()
		close(stopPump)
	}()

	pending, err := s.replay(mctx, live)
	if err != nil {
		s.log.Warn("Historical replay failed", "err", err)
		s.mediator.Disconnect("replay failed")
		return err
	}
	if mctx.Err() != nil {
		return s.stopErr()
	}

	if !s.mediator.publish(types.StreamEvent{Kind: types.EventHistoricalDataSent, Height: s.last}) {
		return s.stopErr()
	}
	s.log.Debug("Historical data sent", "height", s.last, "pending_live", len(pending))

	for _, b := range pending {
		if mctx.Err() != nil {
			return s.stopErr()
		}
		s.forward(b)
	}

	for {
		select {
		case <-mctx.Done():
			return s.stopErr()
		case err, ok := <-sub.Err():
			if mctx.Err() != nil {
				return s.stopErr()
			}
			if !ok || err == nil {
				err = ErrLiveFeedEnded
			}
			s.mediator.Disconnect("live feed ended")
			return err
		case b := <-live:
			s.forward(b)
		}
	}
}

// replay delivers stored blocks from the filter's start height,
// checking for cancellation before every block. Live blocks that
// arrive meanwhile are collected and returned.
func (s *Session) replay(ctx context.Context, live <-chan types.Block) ([]types.Block, error) {
	var pending []types.Block

	it := s.history.Blocks(ctx, s.filter.FromHeight)
	defer it.Release()

	for it.Next() {
		if ctx.Err() != nil {
			return nil, nil
		}
		pending = drain(live, pending)

		b := it.Block()
		if !s.fresh(b) {
			continue
		}
		s.deliver(b, true)
	}
	if err := it.Err(); err != nil {
		if ctx.Err() != nil {
			return nil, nil
		}
		return nil, fmt.Errorf("stream: replay from height %d: %w", s.filter.FromHeight, err)
	}
	return drain(live, pending), nil
}

// pump moves blocks from the feed onto the live queue without ever
// blocking the feed. When the queue is full the session is
// disconnected and further blocks are dropped until stop is closed.
func (s *Session) pump(in <-chan types.Block, out chan<- types.Block, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case b := <-in:
			if s.overflow.Load() {
				continue
			}
			select {
			case out <- b:
			default:
				s.overflow.Store(true)
				s.log.Warn("Live buffer full, disconnecting slow consumer", "height", b.Height, "buffer", cap(out))
				// Disconnect runs listeners; keep them off the feed path.
				go s.mediator.Disconnect(ReasonSlowConsumer)
			}
		}
	}
}

// stopErr is Run's result once the mediator has been disconnected.
func (s *Session) stopErr() error {
	if s.overflow.Load() {
		return ErrSlowConsumer
	}
	return nil
}

func (s *Session) forward(b types.Block) {
	if !s.fresh(b) {
		return
	}
	s.deliver(b, false)
}

// fresh reports whether b is past everything delivered so far and
// records it as delivered if so.
func (s *Session) fresh(b types.Block) bool {
	if b.Height < s.filter.FromHeight {
		return false
	}
	if s.seen && b.Height <= s.last {
		return false
	}
	s.last, s.seen = b.Height, true
	return true
}

// deliver publishes the filtered view of b: the merkle block, each
// matching transaction and, for replayed blocks, historicalBlockSent.
// Blocks without a match publish nothing.
func (s *Session) deliver(b types.Block, historical bool) {
	txs, mb, ok := s.filter.MatchBlock(b)
	if !ok {
		return
	}
	s.mediator.publish(types.StreamEvent{Kind: types.EventMerkleBlock, Height: b.Height, MerkleBlock: &mb})
	for i := range txs {
		s.mediator.publish(types.StreamEvent{Kind: types.EventTransaction, Height: b.Height, Transaction: &txs[i]})
	}
	if historical {
		s.mediator.publish(types.StreamEvent{Kind: types.EventHistoricalBlockSent, Height: b.Height})
	}
}

// drain moves every block currently buffered in ch onto pending.
func drain(ch <-chan types.Block, pending []types.Block) []types.Block {
	for {
		select {
		case b := <-ch:
			pending = append(pending, b)
		default:
			return pending
		}
	}
}

func disconnectReason(ctx context.Context) string {
	if cause := context.Cause(ctx); cause != nil {
		return cause.Error()
	}
	return "client disconnected"
}
