package types

import "time"

// Timestamp is a block time as seconds and nanoseconds since the Unix
// epoch, so its encoding does not depend on time.Time internals.
type Timestamp struct {
	Seconds int64 `cramberry:"1"`
	Nanos   int32 `cramberry:"2"`
}

// TimeToTimestamp converts t to a Timestamp.
func TimeToTimestamp(t time.Time) Timestamp {
	return Timestamp{Seconds: t.Unix(), Nanos: int32(t.Nanosecond())}
}

// ToTime returns ts as a UTC time.Time.
func (ts Timestamp) ToTime() time.Time {
	return time.Unix(ts.Seconds, int64(ts.Nanos)).UTC()
}

// Transaction is a ledger transaction as seen by subscribers.
// Elements are the filterable data elements (addresses, outpoints,
// pushed data) the node extracted from Raw.
type Transaction struct {
	ID       Hash     `cramberry:"1"`
	Raw      []byte   `cramberry:"2"`
	Elements [][]byte `cramberry:"3"`
}

// Block is a ledger block with its full transaction list.
type Block struct {
	Height       uint64        `cramberry:"1"`
	Hash         Hash          `cramberry:"2"`
	PrevHash     Hash          `cramberry:"3"`
	MerkleRoot   Hash          `cramberry:"4"`
	Time         Timestamp     `cramberry:"5"`
	Transactions []Transaction `cramberry:"6"`
}

// MerkleBlock is a filtered view of a block: the header fields plus
// the ids of the matching transactions. Flags is a bitmap, least
// significant bit first, with bit i set when transaction i matched.
type MerkleBlock struct {
	Height            uint64 `cramberry:"1"`
	BlockHash         Hash   `cramberry:"2"`
	MerkleRoot        Hash   `cramberry:"3"`
	TotalTransactions uint32 `cramberry:"4"`
	Hashes            []Hash `cramberry:"5"`
	Flags             []byte `cramberry:"6"`
}

// Matched reports whether the transaction at position i matched.
func (m MerkleBlock) Matched(i int) bool {
	if i < 0 || i/8 >= len(m.Flags) {
		return false
	}
	return m.Flags[i/8]&(1<<(i%8)) != 0
}
