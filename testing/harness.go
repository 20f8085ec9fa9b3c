package dapitest

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"testing"
	"time"

	"github.com/blockberries/dapi/codec"
	"github.com/blockberries/dapi/transition"
	"github.com/blockberries/dapi/types"
)

// Transition is a hex-encoded header and packet pair as a client
// would submit it.
type Transition struct {
	Header string
	Packet string

	HeaderTx    types.HeaderTransaction
	PacketBytes []byte
}

// DefaultPacket returns a small packet suitable for testing.
func DefaultPacket() types.Packet {
	return types.Packet{
		ContractID: types.Hash{0xc0, 0x17},
		Objects: []types.PacketObject{
			{Type: "profile", Data: []byte(`{"name":"alice"}`)},
		},
	}
}

// MakeTransition encodes p and builds a header whose extra payload
// carries the packet fingerprint.
func MakeTransition(t testing.TB, p types.Packet) Transition {
	t.Helper()
	raw, err := codec.EncodePacket(p)
	if err != nil {
		t.Fatalf("encode packet: %v", err)
	}
	return MakeTransitionFromBytes(t, raw, transition.Digest(raw))
}

// MakeTransitionFromBytes builds a transition from raw packet bytes
// and an arbitrary embedded fingerprint. HeaderTx is what parsing the
// encoded header yields, so it compares equal to a decoded header.
func MakeTransitionFromBytes(t testing.TB, rawPacket []byte, fingerprint types.Hash) Transition {
	t.Helper()
	header := types.HeaderTransaction{
		Version: 3,
		Type:    types.TransitionTxType,
		Inputs:  []types.Outpoint{{TxID: types.Hash{0xfe}, Index: 1}},
		Outputs: []types.Output{{Value: 0, Script: []byte{0x6a}}},
		ExtraPayload: types.ExtraPayload{
			Version:           1,
			RegTxID:           types.Hash{0x01},
			CreditFee:         1000,
			PacketFingerprint: fingerprint,
			Signature:         []byte{0x30, 0x44},
		},
	}
	rawHeader, err := codec.HeaderCodec{}.Serialize(header)
	if err != nil {
		t.Fatalf("serialize header: %v", err)
	}
	return Transition{
		Header:      codec.EncodeHex(rawHeader),
		Packet:      codec.EncodeHex(rawPacket),
		HeaderTx:    header,
		PacketBytes: rawPacket,
	}
}

// TxIDFor returns the txid MockLedgerNode reports for its nth call.
func TxIDFor(n int64) types.TxID {
	return types.TxID(fmt.Sprintf("%064x", n))
}

// MakeTx returns a transaction carrying the given filter elements.
func MakeTx(seed uint64, elements ...[]byte) types.Transaction {
	var raw [8]byte
	binary.BigEndian.PutUint64(raw[:], seed)
	return types.Transaction{
		ID:       sha256.Sum256(raw[:]),
		Raw:      raw[:],
		Elements: elements,
	}
}

// MakeBlock creates a block at the given height with the provided
// transactions.
func MakeBlock(height uint64, txs ...types.Transaction) types.Block {
	var h [8]byte
	binary.BigEndian.PutUint64(h[:], height)
	var prev [8]byte
	binary.BigEndian.PutUint64(prev[:], height-1)
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(height) * 150 * time.Second)
	return types.Block{
		Height:       height,
		Hash:         sha256.Sum256(h[:]),
		PrevHash:     sha256.Sum256(prev[:]),
		Time:         types.TimeToTimestamp(ts),
		Transactions: txs,
	}
}

// MakeChain returns blocks from..to inclusive, each carrying one
// transaction tagged with element.
func MakeChain(from, to uint64, element []byte) []types.Block {
	var blocks []types.Block
	for h := from; h <= to; h++ {
		blocks = append(blocks, MakeBlock(h, MakeTx(h, element)))
	}
	return blocks
}
