package store

import (
	"context"
	"fmt"

	"github.com/blockberries/dapi"
	"github.com/blockberries/dapi/transition"
	"github.com/blockberries/dapi/types"
	"github.com/syndtr/goleveldb/leveldb"
)

var _ dapi.PacketStore = (*PacketStore)(nil)

// PacketStore keeps raw data packets addressed by fingerprint.
type PacketStore struct {
	db *leveldb.DB
}

// AddPacket stores raw under its fingerprint. Storing the same packet
// twice is not an error.
func (s *PacketStore) AddPacket(ctx context.Context, raw []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	fp := transition.Digest(raw)
	if err := s.db.Put(packetKey(fp), raw, nil); err != nil {
		return fmt.Errorf("store: put packet %s: %w", fp, err)
	}
	return nil
}

// Packet returns the raw packet with the given fingerprint.
func (s *PacketStore) Packet(ctx context.Context, fp types.Hash) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := s.db.Get(packetKey(fp), nil)
	if err != nil {
		return nil, fmt.Errorf("store: get packet %s: %w", fp, notFound(err))
	}
	return raw, nil
}

// HasPacket reports whether a packet with the given fingerprint is stored.
func (s *PacketStore) HasPacket(fp types.Hash) (bool, error) {
	return s.db.Has(packetKey(fp), nil)
}

func packetKey(fp types.Hash) []byte {
	return append(append([]byte(nil), packetPrefix...), fp[:]...)
}
