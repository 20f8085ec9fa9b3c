package types

import "bytes"

// Filter selects the transactions a subscriber is interested in.
//
// A transaction matches when any of its Elements equals any filter
// element. An empty element set matches every transaction. FromHeight
// is the first block height replayed from history.
type Filter struct {
	Elements   [][]byte `cramberry:"1"`
	FromHeight uint64   `cramberry:"2"`
}

// MatchesTx reports whether tx matches the filter.
func (f Filter) MatchesTx(tx Transaction) bool {
	if len(f.Elements) == 0 {
		return true
	}
	for _, e := range tx.Elements {
		for _, want := range f.Elements {
			if bytes.Equal(e, want) {
				return true
			}
		}
	}
	return false
}

// MatchBlock returns the matching transactions of b in block order
// and the merkle block describing them. ok is false when nothing
// matched.
func (f Filter) MatchBlock(b Block) (txs []Transaction, mb MerkleBlock, ok bool) {
	mb = MerkleBlock{
		Height:            b.Height,
		BlockHash:         b.Hash,
		MerkleRoot:        b.MerkleRoot,
		TotalTransactions: uint32(len(b.Transactions)),
		Flags:             make([]byte, (len(b.Transactions)+7)/8),
	}
	for i, tx := range b.Transactions {
		if !f.MatchesTx(tx) {
			continue
		}
		txs = append(txs, tx)
		mb.Hashes = append(mb.Hashes, tx.ID)
		mb.Flags[i/8] |= 1 << (i % 8)
	}
	return txs, mb, len(txs) > 0
}
