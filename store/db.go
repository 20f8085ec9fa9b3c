// Package store persists data packets and ledger blocks in goleveldb.
//
// Packets are keyed by fingerprint and blocks by big-endian height,
// so iterating the block prefix yields blocks in ascending height
// order.
package store

import (
	"errors"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"
)

// ErrNotFound is returned when a key has no value.
var ErrNotFound = errors.New("store: not found")

var (
	packetPrefix = []byte("p:")
	blockPrefix  = []byte("b:")
)

// DB is a goleveldb database holding both packets and blocks.
type DB struct {
	db *leveldb.DB

	packets *PacketStore
	blocks  *BlockStore
}

// Open opens or creates the database at path.
func Open(path string) (*DB, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	return wrap(db), nil
}

// OpenMemory returns a database backed by memory only.
func OpenMemory() (*DB, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, fmt.Errorf("store: open memory: %w", err)
	}
	return wrap(db), nil
}

func wrap(db *leveldb.DB) *DB {
	return &DB{
		db:      db,
		packets: &PacketStore{db: db},
		blocks:  &BlockStore{db: db},
	}
}

// Packets returns the packet store.
func (d *DB) Packets() *PacketStore { return d.packets }

// Blocks returns the block store.
func (d *DB) Blocks() *BlockStore { return d.blocks }

// Close closes the database. Iterators must be released first.
func (d *DB) Close() error {
	return d.db.Close()
}

func notFound(err error) error {
	if errors.Is(err, leveldb.ErrNotFound) {
		return ErrNotFound
	}
	return err
}
