package dapitest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/blockberries/dapi"
	"github.com/blockberries/dapi/transition"
	"github.com/blockberries/dapi/types"
)

// RunConnectionSuite runs the standard behavior checks against a
// dapi.Connection implementation.
//
// The factory must return a connection to a service wired to the
// given backend; it is called once per subtest with a fresh backend.
func RunConnectionSuite(t *testing.T, factory func(t *testing.T, b *Backend) dapi.Connection) {
	t.Helper()

	open := func(t *testing.T) (*Backend, dapi.Connection) {
		b := NewBackend()
		conn := factory(t, b)
		t.Cleanup(func() { _ = conn.Close() })
		return b, conn
	}

	t.Run("submit", func(t *testing.T) {
		b, conn := open(t)
		tr := MakeTransition(t, DefaultPacket())

		txid, err := conn.SendRawTransition(context.Background(), tr.Header, tr.Packet)
		if err != nil {
			t.Fatalf("SendRawTransition: %v", err)
		}
		if txid != TxIDFor(1) {
			t.Errorf("txid = %s, want %s", txid, TxIDFor(1))
		}
		if got := b.Store.Packets(); len(got) != 1 || string(got[0]) != string(tr.PacketBytes) {
			t.Errorf("stored packets = %x, want one packet %x", got, tr.PacketBytes)
		}
	})

	validation := func(t *testing.T, err error, reason string) {
		t.Helper()
		verr, ok := dapi.IsValidation(err)
		if !ok {
			t.Fatalf("expected ValidationError(%s), got %v", reason, err)
		}
		if verr.Reason != reason {
			t.Errorf("reason = %q, want %q", verr.Reason, reason)
		}
	}

	t.Run("missing_packet", func(t *testing.T) {
		b, conn := open(t)
		tr := MakeTransition(t, DefaultPacket())

		_, err := conn.SendRawTransition(context.Background(), tr.Header, "")
		validation(t, err, dapi.ReasonMissingPacket)
		if n := b.Store.AddPacketCalls.Load() + b.Node.BroadcastCalls.Load(); n != 0 {
			t.Errorf("backend calls = %d, want 0", n)
		}
	})

	t.Run("invalid_header", func(t *testing.T) {
		_, conn := open(t)
		tr := MakeTransition(t, DefaultPacket())

		_, err := conn.SendRawTransition(context.Background(), "not hex", tr.Packet)
		validation(t, err, dapi.ReasonInvalidArgument)
	})

	t.Run("fingerprint_mismatch", func(t *testing.T) {
		b, conn := open(t)
		// The packet must decode for the fingerprint check to run.
		good := MakeTransition(t, DefaultPacket())
		tr := MakeTransitionFromBytes(t, good.PacketBytes, transition.Digest([]byte{0x12, 0x34}))

		_, err := conn.SendRawTransition(context.Background(), tr.Header, tr.Packet)
		validation(t, err, dapi.ReasonFingerprintMismatch)
		if n := b.Store.AddPacketCalls.Load(); n != 0 {
			t.Errorf("store calls = %d, want 0", n)
		}
	})

	t.Run("store_failure", func(t *testing.T) {
		b, conn := open(t)
		b.Store.AddPacketFn = func(context.Context, []byte) error { return errors.New("store down") }
		tr := MakeTransition(t, DefaultPacket())

		_, err := conn.SendRawTransition(context.Background(), tr.Header, tr.Packet)
		berr, ok := dapi.IsBackend(err)
		if !ok {
			t.Fatalf("expected BackendError, got %v", err)
		}
		if berr.Stage != dapi.StageStore || berr.PacketStored {
			t.Errorf("got stage %s stored %v, want store stage with nothing stored", berr.Stage, berr.PacketStored)
		}
		if n := b.Node.BroadcastCalls.Load(); n != 0 {
			t.Errorf("broadcast calls = %d, want 0", n)
		}
	})

	t.Run("broadcast_failure", func(t *testing.T) {
		b, conn := open(t)
		b.Node.BroadcastFn = func(context.Context, []byte) (types.TxID, error) { return "", errors.New("node down") }
		tr := MakeTransition(t, DefaultPacket())

		_, err := conn.SendRawTransition(context.Background(), tr.Header, tr.Packet)
		berr, ok := dapi.IsBackend(err)
		if !ok {
			t.Fatalf("expected BackendError, got %v", err)
		}
		if berr.Stage != dapi.StageBroadcast || !berr.PacketStored {
			t.Errorf("got stage %s stored %v, want broadcast stage with packet stored", berr.Stage, berr.PacketStored)
		}
		if berr.Fingerprint != transition.Digest(tr.PacketBytes) {
			t.Errorf("fingerprint = %s, want %s", berr.Fingerprint, transition.Digest(tr.PacketBytes))
		}
	})

	t.Run("stream_replay_then_live", func(t *testing.T) {
		b, conn := open(t)
		elem := []byte("watched")
		b.History.Chain = MakeChain(1, 3, elem)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		events, wait, err := conn.SubscribeToTransactions(ctx, types.Filter{Elements: [][]byte{elem}, FromHeight: 1}, 0)
		if err != nil {
			t.Fatalf("SubscribeToTransactions: %v", err)
		}

		for h := uint64(1); h <= 3; h++ {
			expectEvent(t, events, types.EventMerkleBlock, h)
			tx := expectEvent(t, events, types.EventTransaction, h)
			if tx.Transaction == nil || tx.Transaction.ID != MakeTx(h, elem).ID {
				t.Errorf("height %d: unexpected transaction %+v", h, tx.Transaction)
			}
			expectEvent(t, events, types.EventHistoricalBlockSent, h)
		}
		expectEvent(t, events, types.EventHistoricalDataSent, 3)

		b.Feed.Publish(MakeBlock(4, MakeTx(4, elem)))
		mb := expectEvent(t, events, types.EventMerkleBlock, 4)
		if mb.MerkleBlock == nil || !mb.MerkleBlock.Matched(0) {
			t.Errorf("unexpected merkle block %+v", mb.MerkleBlock)
		}
		expectEvent(t, events, types.EventTransaction, 4)

		cancel()
		drainEvents(t, events)
		if err := wait(); err != nil {
			t.Errorf("stream ended with %v, want nil after cancel", err)
		}
	})

	t.Run("stream_kinds", func(t *testing.T) {
		b, conn := open(t)
		b.History.Chain = MakeChain(1, 2, []byte("x"))

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		kinds := types.EventKinds(types.EventMerkleBlock) | types.EventKinds(types.EventHistoricalDataSent)
		events, wait, err := conn.SubscribeToTransactions(ctx, types.Filter{}, kinds)
		if err != nil {
			t.Fatalf("SubscribeToTransactions: %v", err)
		}

		expectEvent(t, events, types.EventMerkleBlock, 1)
		expectEvent(t, events, types.EventMerkleBlock, 2)
		expectEvent(t, events, types.EventHistoricalDataSent, 2)

		cancel()
		drainEvents(t, events)
		if err := wait(); err != nil {
			t.Errorf("stream ended with %v, want nil after cancel", err)
		}
	})
}

func expectEvent(t *testing.T, events <-chan types.StreamEvent, kind types.EventKind, height uint64) types.StreamEvent {
	t.Helper()
	select {
	case ev, ok := <-events:
		if !ok {
			t.Fatalf("stream closed waiting for %s at height %d", kind, height)
		}
		if ev.Kind != kind || ev.Height != height {
			t.Fatalf("got %s at height %d, want %s at height %d", ev.Kind, ev.Height, kind, height)
		}
		return ev
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %s at height %d", kind, height)
		return types.StreamEvent{}
	}
}

// drainEvents consumes events until the stream closes.
func drainEvents(t *testing.T, events <-chan types.StreamEvent) {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case _, ok := <-events:
			if !ok {
				return
			}
		case <-timeout:
			t.Fatal("timed out waiting for stream to close")
		}
	}
}
