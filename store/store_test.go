package store_test

import (
	"context"
	"testing"

	"github.com/blockberries/dapi/store"
	dapitest "github.com/blockberries/dapi/testing"
	"github.com/blockberries/dapi/transition"
	"github.com/blockberries/dapi/types"
	"github.com/stretchr/testify/require"
)

func openMemory(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, db.Close()) })
	return db
}

func TestPacketStore(t *testing.T) {
	ctx := context.Background()
	ps := openMemory(t).Packets()

	raw := []byte{0x12, 0x34}
	fp := transition.Digest(raw)

	ok, err := ps.HasPacket(fp)
	require.NoError(t, err)
	require.False(t, ok)

	_, err = ps.Packet(ctx, fp)
	require.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, ps.AddPacket(ctx, raw))
	require.NoError(t, ps.AddPacket(ctx, raw))

	got, err := ps.Packet(ctx, fp)
	require.NoError(t, err)
	require.Equal(t, raw, got)

	ok, err = ps.HasPacket(fp)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestPacketStore_CancelledContext(t *testing.T) {
	ps := openMemory(t).Packets()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, ps.AddPacket(ctx, []byte{1}), context.Canceled)
}

func TestPacketStore_OnDisk(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	db, err := store.Open(dir)
	require.NoError(t, err)
	require.NoError(t, db.Packets().AddPacket(ctx, []byte("persisted")))
	require.NoError(t, db.Close())

	db, err = store.Open(dir)
	require.NoError(t, err)
	defer db.Close()

	got, err := db.Packets().Packet(ctx, transition.Digest([]byte("persisted")))
	require.NoError(t, err)
	require.Equal(t, []byte("persisted"), got)
}

func TestBlockStore_PutAndGet(t *testing.T) {
	ctx := context.Background()
	bs := openMemory(t).Blocks()

	_, ok, err := bs.LastHeight()
	require.NoError(t, err)
	require.False(t, ok)

	b := dapitest.MakeBlock(7, dapitest.MakeTx(1, []byte("a")), dapitest.MakeTx(2, []byte("b")))
	require.NoError(t, bs.PutBlock(ctx, b))

	got, err := bs.Block(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, b.Height, got.Height)
	require.Equal(t, b.Hash, got.Hash)
	require.Equal(t, b.PrevHash, got.PrevHash)
	require.Len(t, got.Transactions, 2)
	require.Equal(t, b.Transactions[1].ID, got.Transactions[1].ID)
	require.Equal(t, b.Transactions[1].Raw, got.Transactions[1].Raw)

	_, err = bs.Block(ctx, 8)
	require.ErrorIs(t, err, store.ErrNotFound)

	h, ok, err := bs.LastHeight()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(7), h)
}

func TestBlockStore_IteratesInHeightOrder(t *testing.T) {
	ctx := context.Background()
	db := openMemory(t)
	bs := db.Blocks()

	// Heights that sort differently as decimal strings.
	for _, h := range []uint64{300, 2, 10, 1, 256} {
		require.NoError(t, bs.PutBlock(ctx, dapitest.MakeBlock(h)))
	}
	// Packets share the database and must not show up as blocks.
	require.NoError(t, db.Packets().AddPacket(ctx, []byte("noise")))

	heights := func(from uint64) []uint64 {
		it := bs.Blocks(ctx, from)
		defer it.Release()
		var hs []uint64
		for it.Next() {
			hs = append(hs, it.Block().Height)
		}
		require.NoError(t, it.Err())
		return hs
	}

	require.Equal(t, []uint64{1, 2, 10, 256, 300}, heights(0))
	require.Equal(t, []uint64{10, 256, 300}, heights(3))
	require.Empty(t, heights(301))

	h, _, err := bs.LastHeight()
	require.NoError(t, err)
	require.Equal(t, uint64(300), h)
}

func TestBlockStore_IteratorStopsOnCancel(t *testing.T) {
	bs := openMemory(t).Blocks()
	for _, b := range dapitest.MakeChain(1, 5, []byte("x")) {
		require.NoError(t, bs.PutBlock(context.Background(), b))
	}

	ctx, cancel := context.WithCancel(context.Background())
	it := bs.Blocks(ctx, 1)
	defer it.Release()

	require.True(t, it.Next())
	require.Equal(t, uint64(1), it.Block().Height)
	cancel()
	require.False(t, it.Next())
	require.ErrorIs(t, it.Err(), context.Canceled)
}

func TestBlockStore_ReplacesHeight(t *testing.T) {
	ctx := context.Background()
	bs := openMemory(t).Blocks()

	first := dapitest.MakeBlock(3)
	second := dapitest.MakeBlock(3, dapitest.MakeTx(9))
	second.Hash = types.Hash{0xff}

	require.NoError(t, bs.PutBlock(ctx, first))
	require.NoError(t, bs.PutBlock(ctx, second))

	got, err := bs.Block(ctx, 3)
	require.NoError(t, err)
	require.Equal(t, second.Hash, got.Hash)
}
