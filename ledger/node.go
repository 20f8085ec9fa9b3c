// Package ledger talks to the ledger node and turns its blocks into
// the history and live feed that stream sessions consume.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/blockberries/cramberry/pkg/cramberry"
	"github.com/blockberries/dapi"
	"github.com/blockberries/dapi/codec"
	"github.com/blockberries/dapi/types"
	"github.com/ethereum/go-ethereum/rpc"
)

var _ dapi.LedgerNode = (*RPCNode)(nil)

// JSON-RPC methods served by the ledger node.
const (
	methodSendRawTransaction = "sendrawtransaction"
	methodGetBlockCount      = "getblockcount"
	methodGetRawBlock        = "getrawblock"
)

// RejectedError is a JSON-RPC error reported by the node, such as a
// rejected transaction.
type RejectedError struct {
	Method  string
	Code    int
	Message string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("ledger: %s rejected (code %d): %s", e.Method, e.Code, e.Message)
}

// RPCNode is a ledger node reached over JSON-RPC.
type RPCNode struct {
	log *slog.Logger
	c   *rpc.Client
}

// Dial connects to the node at url.
func Dial(ctx context.Context, log *slog.Logger, url string) (*RPCNode, error) {
	c, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("ledger: dial %s: %w", url, err)
	}
	return NewRPCNode(log, c), nil
}

// NewRPCNode returns a node using an existing client.
func NewRPCNode(log *slog.Logger, c *rpc.Client) *RPCNode {
	return &RPCNode{log: log, c: c}
}

// BroadcastTransaction submits a serialized transaction and returns
// its txid.
func (n *RPCNode) BroadcastTransaction(ctx context.Context, serialized []byte) (types.TxID, error) {
	var txid string
	if err := n.call(ctx, &txid, methodSendRawTransaction, codec.EncodeHex(serialized)); err != nil {
		return "", err
	}
	if txid == "" {
		return "", errors.New("ledger: sendrawtransaction returned an empty txid")
	}
	n.log.Debug("Broadcast transaction", "txid", txid, "size", len(serialized))
	return types.TxID(txid), nil
}

// BlockCount returns the height of the node's best block.
func (n *RPCNode) BlockCount(ctx context.Context) (uint64, error) {
	var count uint64
	if err := n.call(ctx, &count, methodGetBlockCount); err != nil {
		return 0, err
	}
	return count, nil
}

// BlockByHeight fetches the block at height.
func (n *RPCNode) BlockByHeight(ctx context.Context, height uint64) (types.Block, error) {
	var raw string
	if err := n.call(ctx, &raw, methodGetRawBlock, height); err != nil {
		return types.Block{}, err
	}
	b, err := codec.DecodeHex(raw)
	if err != nil {
		return types.Block{}, fmt.Errorf("ledger: block %d: %w", height, err)
	}
	var block types.Block
	if err := cramberry.Unmarshal(b, &block); err != nil {
		return types.Block{}, fmt.Errorf("ledger: decode block %d: %w", height, err)
	}
	if block.Height != height {
		return types.Block{}, fmt.Errorf("ledger: node returned block %d for height %d", block.Height, height)
	}
	return block, nil
}

// Close closes the underlying client.
func (n *RPCNode) Close() {
	n.c.Close()
}

func (n *RPCNode) call(ctx context.Context, result any, method string, args ...any) error {
	err := n.c.CallContext(ctx, result, method, args...)
	if err == nil {
		return nil
	}
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return &RejectedError{Method: method, Code: rpcErr.ErrorCode(), Message: rpcErr.Error()}
	}
	return fmt.Errorf("ledger: %s: %w", method, err)
}
