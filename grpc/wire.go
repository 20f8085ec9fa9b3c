package dapigrpc

import "github.com/blockberries/dapi/types"

// SendRawTransitionRequest carries both halves of a state transition,
// hex-encoded.
type SendRawTransitionRequest struct {
	RawTransitionHeader     string `cramberry:"1"`
	RawTransitionDataPacket string `cramberry:"2"`
}

// SendRawTransitionResponse carries the broadcast transaction id.
type SendRawTransitionResponse struct {
	TransactionID string `cramberry:"1"`
}

// SubscribeRequest opens a SubscribeToTransactions stream. Zero Kinds
// selects every client event kind. The server answers with a stream
// of types.StreamEvent.
type SubscribeRequest struct {
	Filter types.Filter     `cramberry:"1"`
	Kinds  types.EventKinds `cramberry:"2"`
}
