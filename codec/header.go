package codec

import (
	"fmt"

	"github.com/blockberries/dapi"
	"github.com/blockberries/dapi/types"
	"github.com/ethereum/go-ethereum/rlp"
)

var _ dapi.HeaderCodec = HeaderCodec{}

// HeaderCodec encodes header transactions with RLP.
type HeaderCodec struct{}

// Parse decodes raw into a header transaction. Trailing bytes are an
// error.
func (HeaderCodec) Parse(raw []byte) (types.HeaderTransaction, error) {
	var tx types.HeaderTransaction
	if err := rlp.DecodeBytes(raw, &tx); err != nil {
		return types.HeaderTransaction{}, fmt.Errorf("codec: parse header: %w", err)
	}
	if tx.Type != types.TransitionTxType {
		return types.HeaderTransaction{}, fmt.Errorf("codec: parse header: type %d is not a transition", tx.Type)
	}
	return tx, nil
}

// Serialize encodes tx for broadcast.
func (HeaderCodec) Serialize(tx types.HeaderTransaction) ([]byte, error) {
	b, err := rlp.EncodeToBytes(&tx)
	if err != nil {
		return nil, fmt.Errorf("codec: serialize header: %w", err)
	}
	return b, nil
}
