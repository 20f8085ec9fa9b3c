package store

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/blockberries/cramberry/pkg/cramberry"
	"github.com/blockberries/dapi"
	"github.com/blockberries/dapi/types"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/util"
)

var _ dapi.HistorySource = (*BlockStore)(nil)

// BlockStore keeps ledger blocks by height and serves them as history.
type BlockStore struct {
	db *leveldb.DB
}

// PutBlock stores b, replacing any block already stored at its height.
func (s *BlockStore) PutBlock(ctx context.Context, b types.Block) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	val, err := cramberry.Marshal(b)
	if err != nil {
		return fmt.Errorf("store: encode block %d: %w", b.Height, err)
	}
	if err := s.db.Put(blockKey(b.Height), val, nil); err != nil {
		return fmt.Errorf("store: put block %d: %w", b.Height, err)
	}
	return nil
}

// Block returns the block at height.
func (s *BlockStore) Block(ctx context.Context, height uint64) (types.Block, error) {
	if err := ctx.Err(); err != nil {
		return types.Block{}, err
	}
	val, err := s.db.Get(blockKey(height), nil)
	if err != nil {
		return types.Block{}, fmt.Errorf("store: get block %d: %w", height, notFound(err))
	}
	return decodeBlock(height, val)
}

// LastHeight returns the highest stored height. ok is false when no
// block is stored.
func (s *BlockStore) LastHeight() (height uint64, ok bool, err error) {
	it := s.db.NewIterator(util.BytesPrefix(blockPrefix), nil)
	defer it.Release()

	if it.Last() {
		height, ok = heightFromKey(it.Key()), true
	}
	return height, ok, it.Error()
}

// Blocks iterates stored blocks from height from upwards. The iterator
// stops with ctx's error once ctx is done.
func (s *BlockStore) Blocks(ctx context.Context, from uint64) dapi.BlockIterator {
	r := util.BytesPrefix(blockPrefix)
	r.Start = blockKey(from)
	return &blockIterator{ctx: ctx, it: s.db.NewIterator(r, nil)}
}

type blockIterator struct {
	ctx   context.Context
	it    iterator.Iterator
	block types.Block
	err   error
}

func (i *blockIterator) Next() bool {
	if i.err != nil {
		return false
	}
	if err := i.ctx.Err(); err != nil {
		i.err = err
		return false
	}
	if !i.it.Next() {
		return false
	}
	// The iterator reuses its value buffer.
	val := append([]byte(nil), i.it.Value()...)
	i.block, i.err = decodeBlock(heightFromKey(i.it.Key()), val)
	return i.err == nil
}

func (i *blockIterator) Block() types.Block { return i.block }

func (i *blockIterator) Err() error {
	if i.err != nil {
		return i.err
	}
	return i.it.Error()
}

func (i *blockIterator) Release() { i.it.Release() }

func decodeBlock(height uint64, val []byte) (types.Block, error) {
	var b types.Block
	if err := cramberry.Unmarshal(val, &b); err != nil {
		return types.Block{}, fmt.Errorf("store: decode block %d: %w", height, err)
	}
	return b, nil
}

func blockKey(height uint64) []byte {
	k := make([]byte, len(blockPrefix)+8)
	copy(k, blockPrefix)
	binary.BigEndian.PutUint64(k[len(blockPrefix):], height)
	return k
}

func heightFromKey(k []byte) uint64 {
	return binary.BigEndian.Uint64(k[len(blockPrefix):])
}
