package types

// Outpoint references an output of an earlier transaction.
type Outpoint struct {
	TxID  Hash   `cramberry:"1"`
	Index uint32 `cramberry:"2"`
}

// Output is a single transaction output.
type Output struct {
	Value  uint64 `cramberry:"1"`
	Script []byte `cramberry:"2"`
}

// ExtraPayload is the special-transaction payload of a state
// transition header. PacketFingerprint binds the header to the
// off-chain data packet.
type ExtraPayload struct {
	Version           uint32 `cramberry:"1"`
	RegTxID           Hash   `cramberry:"2"`
	PrevSubTxHash     Hash   `cramberry:"3"`
	CreditFee         uint64 `cramberry:"4"`
	PacketFingerprint Hash   `cramberry:"5"`
	Signature         []byte `cramberry:"6"`
}

// HeaderTransaction is the on-chain half of a state transition.
type HeaderTransaction struct {
	Version      uint32       `cramberry:"1"`
	Type         uint32       `cramberry:"2"`
	Inputs       []Outpoint   `cramberry:"3"`
	Outputs      []Output     `cramberry:"4"`
	LockTime     uint32       `cramberry:"5"`
	ExtraPayload ExtraPayload `cramberry:"6"`
}

// TransitionTxType is the header Type value of a state transition.
const TransitionTxType uint32 = 12

// PacketObject is one application object carried by a packet.
type PacketObject struct {
	Type string `cramberry:"1"`
	Data []byte `cramberry:"2"`
}

// Packet is the off-chain half of a state transition. Its content
// is opaque to dapi beyond decoding; only the raw bytes are hashed.
type Packet struct {
	ContractID Hash           `cramberry:"1"`
	Objects    []PacketObject `cramberry:"2"`
	Contracts  [][]byte       `cramberry:"3"`
}
