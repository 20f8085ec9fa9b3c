package stream_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/blockberries/dapi/ledger"
	"github.com/blockberries/dapi/metrics"
	"github.com/blockberries/dapi/stream"
	dapitest "github.com/blockberries/dapi/testing"
	"github.com/blockberries/dapi/types"
	"github.com/neilotoole/slogt"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

var elem = []byte("watched")

type fixture struct {
	history *dapitest.MockHistory
	feed    *ledger.Feed
	metrics *metrics.Metrics
	o       *stream.Orchestrator
}

func newFixture(t *testing.T, chain []types.Block) *fixture {
	t.Helper()
	f := &fixture{
		history: &dapitest.MockHistory{Chain: chain},
		feed:    ledger.NewFeed(),
		metrics: metrics.New(prometheus.NewRegistry()),
	}
	f.o = stream.NewOrchestrator(slogt.New(t), stream.Config{
		History: f.history,
		Live:    f.feed,
		Metrics: f.metrics,
	})
	return f
}

// recorder collects every event of every kind in publish order.
type recorder struct {
	events chan types.StreamEvent
}

func record(s *stream.Session) *recorder {
	r := &recorder{events: make(chan types.StreamEvent, 1024)}
	for _, k := range types.AllEventKinds {
		s.Mediator().Subscribe(k, func(ev types.StreamEvent) { r.events <- ev })
	}
	return r
}

func (r *recorder) next(t *testing.T) types.StreamEvent {
	t.Helper()
	select {
	case ev := <-r.events:
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for stream event")
		return types.StreamEvent{}
	}
}

func (r *recorder) expect(t *testing.T, kind types.EventKind, height uint64) types.StreamEvent {
	t.Helper()
	ev := r.next(t)
	require.Equal(t, kind, ev.Kind, "at height %d", height)
	if kind != types.EventClientDisconnected {
		require.Equal(t, height, ev.Height)
	}
	return ev
}

// expectBlock consumes the events of one block with a single matching
// transaction.
func (r *recorder) expectBlock(t *testing.T, height uint64, historical bool) {
	t.Helper()
	mb := r.expect(t, types.EventMerkleBlock, height)
	require.NotNil(t, mb.MerkleBlock)
	require.Equal(t, uint32(1), mb.MerkleBlock.TotalTransactions)
	require.True(t, mb.MerkleBlock.Matched(0))

	tx := r.expect(t, types.EventTransaction, height)
	require.NotNil(t, tx.Transaction)
	require.Equal(t, dapitest.MakeTx(height, elem).ID, tx.Transaction.ID)

	if historical {
		r.expect(t, types.EventHistoricalBlockSent, height)
	}
}

func (r *recorder) empty(t *testing.T) {
	t.Helper()
	select {
	case ev := <-r.events:
		t.Fatalf("unexpected event %s at height %d", ev.Kind, ev.Height)
	default:
	}
}

func run(ctx context.Context, s *stream.Session) <-chan error {
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	return done
}

func wait(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for Run to return")
		return nil
	}
}

func TestSession_ReplayThenLive(t *testing.T) {
	f := newFixture(t, dapitest.MakeChain(1, 5, elem))

	s, err := f.o.OpenStream(types.Filter{Elements: [][]byte{elem}, FromHeight: 1})
	require.NoError(t, err)
	r := record(s)

	done := run(context.Background(), s)

	for h := uint64(1); h <= 5; h++ {
		r.expectBlock(t, h, true)
	}
	r.expect(t, types.EventHistoricalDataSent, 5)

	for h := uint64(6); h <= 8; h++ {
		require.Equal(t, 1, f.feed.Publish(dapitest.MakeBlock(h, dapitest.MakeTx(h, elem))))
		r.expectBlock(t, h, false)
	}

	s.Disconnect("test done")
	require.NoError(t, wait(t, done))

	ev := r.expect(t, types.EventClientDisconnected, 0)
	require.Equal(t, "test done", ev.Reason)
	r.empty(t)
	require.Equal(t, stream.StateClosed, s.Mediator().State())
}

func TestSession_LiveDuringReplayIsHeldBack(t *testing.T) {
	f := newFixture(t, dapitest.MakeChain(1, 5, elem))
	f.history.BeforeBlockFn = func(b types.Block) error {
		if b.Height == 3 {
			// Height 5 is also in history and must not be sent twice.
			f.feed.Publish(dapitest.MakeBlock(5, dapitest.MakeTx(5, elem)))
			f.feed.Publish(dapitest.MakeBlock(6, dapitest.MakeTx(6, elem)))
		}
		return nil
	}

	s, err := f.o.OpenStream(types.Filter{Elements: [][]byte{elem}, FromHeight: 1})
	require.NoError(t, err)
	r := record(s)

	done := run(context.Background(), s)

	for h := uint64(1); h <= 5; h++ {
		r.expectBlock(t, h, true)
	}
	r.expect(t, types.EventHistoricalDataSent, 5)
	r.expectBlock(t, 6, false)

	s.Disconnect("test done")
	require.NoError(t, wait(t, done))
	r.expect(t, types.EventClientDisconnected, 0)
	r.empty(t)
}

func TestSession_FromHeight(t *testing.T) {
	f := newFixture(t, dapitest.MakeChain(1, 5, elem))

	s, err := f.o.OpenStream(types.Filter{Elements: [][]byte{elem}, FromHeight: 4})
	require.NoError(t, err)
	r := record(s)

	done := run(context.Background(), s)

	r.expectBlock(t, 4, true)
	r.expectBlock(t, 5, true)
	r.expect(t, types.EventHistoricalDataSent, 5)

	s.Disconnect("test done")
	require.NoError(t, wait(t, done))
}

func TestSession_EmptyHistory(t *testing.T) {
	f := newFixture(t, nil)

	s, err := f.o.OpenStream(types.Filter{FromHeight: 10})
	require.NoError(t, err)
	r := record(s)

	done := run(context.Background(), s)
	r.expect(t, types.EventHistoricalDataSent, 0)

	// Below the start height.
	f.feed.Publish(dapitest.MakeBlock(9, dapitest.MakeTx(9, elem)))
	f.feed.Publish(dapitest.MakeBlock(10, dapitest.MakeTx(10, elem)))
	r.expectBlock(t, 10, false)

	s.Disconnect("test done")
	require.NoError(t, wait(t, done))
	r.expect(t, types.EventClientDisconnected, 0)
	r.empty(t)
}

func TestSession_NonMatchingBlocksAreSkipped(t *testing.T) {
	other := []byte("other")
	chain := []types.Block{
		dapitest.MakeBlock(1, dapitest.MakeTx(1, elem)),
		dapitest.MakeBlock(2, dapitest.MakeTx(2, other)),
		dapitest.MakeBlock(3, dapitest.MakeTx(3, elem)),
	}
	f := newFixture(t, chain)

	s, err := f.o.OpenStream(types.Filter{Elements: [][]byte{elem}})
	require.NoError(t, err)
	r := record(s)

	done := run(context.Background(), s)

	r.expectBlock(t, 1, true)
	r.expectBlock(t, 3, true)
	r.expect(t, types.EventHistoricalDataSent, 3)

	s.Disconnect("test done")
	require.NoError(t, wait(t, done))
}

func TestSession_DisconnectDuringReplay(t *testing.T) {
	f := newFixture(t, dapitest.MakeChain(1, 10, elem))

	s, err := f.o.OpenStream(types.Filter{Elements: [][]byte{elem}, FromHeight: 1})
	require.NoError(t, err)

	var sent []uint64
	var kinds []types.EventKind
	s.Mediator().Subscribe(types.EventHistoricalBlockSent, func(ev types.StreamEvent) {
		sent = append(sent, ev.Height)
		if len(sent) == 3 {
			s.Mediator().Disconnect("client went away")
		}
	})
	for _, k := range []types.EventKind{types.EventMerkleBlock, types.EventHistoricalDataSent, types.EventClientDisconnected} {
		s.Mediator().Subscribe(k, func(ev types.StreamEvent) { kinds = append(kinds, ev.Kind) })
	}

	require.NoError(t, s.Run(context.Background()))

	require.Equal(t, []uint64{1, 2, 3}, sent)
	require.Equal(t, []types.EventKind{
		types.EventMerkleBlock,
		types.EventMerkleBlock,
		types.EventMerkleBlock,
		types.EventClientDisconnected,
	}, kinds)
	require.LessOrEqual(t, f.history.Yielded.Load(), int64(4))
	require.Equal(t, stream.StateClosed, s.Mediator().State())
	require.Equal(t, "client went away", s.Mediator().Reason())
	require.Zero(t, f.o.Len())
}

func TestSession_ContextCancel(t *testing.T) {
	f := newFixture(t, dapitest.MakeChain(1, 2, elem))

	s, err := f.o.OpenStream(types.Filter{})
	require.NoError(t, err)
	r := record(s)

	ctx, cancel := context.WithCancelCause(context.Background())
	done := run(ctx, s)

	r.expectBlock(t, 1, true)
	r.expectBlock(t, 2, true)
	r.expect(t, types.EventHistoricalDataSent, 2)

	cancel(errors.New("transport closed"))
	require.NoError(t, wait(t, done))

	ev := r.expect(t, types.EventClientDisconnected, 0)
	require.Equal(t, "transport closed", ev.Reason)
	require.Equal(t, stream.StateClosed, s.Mediator().State())
	require.Zero(t, f.o.Len())
}

func TestSession_CancelledBeforeRun(t *testing.T) {
	f := newFixture(t, dapitest.MakeChain(1, 3, elem))

	s, err := f.o.OpenStream(types.Filter{})
	require.NoError(t, err)
	r := record(s)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, s.Run(ctx))
	r.expect(t, types.EventClientDisconnected, 0)
	r.empty(t)
	require.Zero(t, f.history.Yielded.Load())
}

func TestSession_HistoryError(t *testing.T) {
	f := newFixture(t, dapitest.MakeChain(1, 5, elem))
	errDisk := errors.New("disk on fire")
	f.history.BeforeBlockFn = func(b types.Block) error {
		if b.Height == 2 {
			return errDisk
		}
		return nil
	}

	s, err := f.o.OpenStream(types.Filter{})
	require.NoError(t, err)
	r := record(s)

	err = s.Run(context.Background())
	require.ErrorIs(t, err, errDisk)

	r.expectBlock(t, 1, true)
	r.expect(t, types.EventClientDisconnected, 0)
	r.empty(t)
	require.Equal(t, stream.StateClosed, s.Mediator().State())
}

func TestSession_RunTwice(t *testing.T) {
	f := newFixture(t, nil)

	s, err := f.o.OpenStream(types.Filter{})
	require.NoError(t, err)
	s.Disconnect("closed")

	require.NoError(t, s.Run(context.Background()))
	require.ErrorIs(t, s.Run(context.Background()), stream.ErrSessionStarted)
}

func TestOrchestrator_CloseStream(t *testing.T) {
	f := newFixture(t, nil)

	s, err := f.o.OpenStream(types.Filter{})
	require.NoError(t, err)
	r := record(s)

	got, ok := f.o.Session(s.ID())
	require.True(t, ok)
	require.Same(t, s, got)
	require.Equal(t, 1, f.o.Len())
	require.Equal(t, 1.0, testutil.ToFloat64(f.metrics.StreamSessionsActive))

	require.True(t, f.o.CloseStream(s.ID(), "kicked"))
	require.False(t, f.o.CloseStream(s.ID(), "kicked"))

	ev := r.expect(t, types.EventClientDisconnected, 0)
	require.Equal(t, "kicked", ev.Reason)
	require.Zero(t, f.o.Len())
	require.Zero(t, testutil.ToFloat64(f.metrics.StreamSessionsActive))
}

func TestOrchestrator_FreshMediatorPerStream(t *testing.T) {
	f := newFixture(t, nil)

	a, err := f.o.OpenStream(types.Filter{})
	require.NoError(t, err)
	b, err := f.o.OpenStream(types.Filter{})
	require.NoError(t, err)

	require.NotEqual(t, a.ID(), b.ID())
	require.NotSame(t, a.Mediator(), b.Mediator())

	a.Disconnect("one")
	require.Equal(t, stream.StateClosed, a.Mediator().State())
	require.Equal(t, stream.StateActive, b.Mediator().State())
}

func TestOrchestrator_CloseAll(t *testing.T) {
	f := newFixture(t, dapitest.MakeChain(1, 3, elem))

	var sessions []*stream.Session
	var dones []<-chan error
	for range 3 {
		s, err := f.o.OpenStream(types.Filter{})
		require.NoError(t, err)
		dones = append(dones, run(context.Background(), s))
		sessions = append(sessions, s)
	}

	f.o.CloseAll("shutdown")
	for i, done := range dones {
		require.NoError(t, wait(t, done))
		require.Equal(t, stream.StateClosed, sessions[i].Mediator().State())
	}
	require.Zero(t, f.o.Len())

	_, err := f.o.OpenStream(types.Filter{})
	require.ErrorIs(t, err, stream.ErrShutdown)
}

func TestOrchestrator_EventMetrics(t *testing.T) {
	f := newFixture(t, dapitest.MakeChain(1, 2, elem))

	s, err := f.o.OpenStream(types.Filter{})
	require.NoError(t, err)
	r := record(s)

	done := run(context.Background(), s)
	r.expectBlock(t, 1, true)
	r.expectBlock(t, 2, true)
	r.expect(t, types.EventHistoricalDataSent, 2)
	s.Disconnect("done")
	require.NoError(t, wait(t, done))

	events := f.metrics.StreamEventsTotal
	require.Equal(t, 2.0, testutil.ToFloat64(events.WithLabelValues("merkleBlock")))
	require.Equal(t, 2.0, testutil.ToFloat64(events.WithLabelValues("transaction")))
	require.Equal(t, 2.0, testutil.ToFloat64(events.WithLabelValues("historicalBlockSent")))
	require.Equal(t, 1.0, testutil.ToFloat64(events.WithLabelValues("historicalDataSent")))
	require.Equal(t, 1.0, testutil.ToFloat64(events.WithLabelValues("clientDisconnected")))
}

func TestSession_SlowConsumerDoesNotStallOthers(t *testing.T) {
	feed := ledger.NewFeed()
	o := stream.NewOrchestrator(slogt.New(t), stream.Config{
		History:    &dapitest.MockHistory{},
		Live:       feed,
		LiveBuffer: 4,
		Metrics:    metrics.New(prometheus.NewRegistry()),
	})
	filter := types.Filter{Elements: [][]byte{elem}, FromHeight: 1}

	fast, err := o.OpenStream(filter)
	require.NoError(t, err)
	r := record(fast)

	slow, err := o.OpenStream(filter)
	require.NoError(t, err)
	ready := make(chan struct{})
	gate := make(chan struct{})
	slow.Mediator().Subscribe(types.EventHistoricalDataSent, func(types.StreamEvent) { close(ready) })
	slow.Mediator().Subscribe(types.EventMerkleBlock, func(types.StreamEvent) { <-gate })

	fastDone := run(context.Background(), fast)
	slowDone := run(context.Background(), slow)

	r.expect(t, types.EventHistoricalDataSent, 0)
	select {
	case <-ready:
	case <-time.After(5 * time.Second):
		t.Fatal("slow session never finished replay")
	}

	published := make(chan struct{})
	go func() {
		defer close(published)
		for h := uint64(1); h <= 20; h++ {
			feed.Publish(dapitest.MakeBlock(h, dapitest.MakeTx(h, elem)))
		}
	}()

	for h := uint64(1); h <= 20; h++ {
		r.expectBlock(t, h, false)
	}
	select {
	case <-published:
	case <-time.After(5 * time.Second):
		t.Fatal("feed blocked by the slow session")
	}

	select {
	case <-slow.Mediator().Done():
	case <-time.After(5 * time.Second):
		t.Fatal("slow session was not disconnected")
	}
	close(gate)

	require.ErrorIs(t, wait(t, slowDone), stream.ErrSlowConsumer)
	require.Equal(t, stream.ReasonSlowConsumer, slow.Mediator().Reason())
	require.Equal(t, stream.StateActive, fast.Mediator().State())

	fast.Disconnect("test done")
	require.NoError(t, wait(t, fastDone))
	require.Zero(t, o.Len())
}
