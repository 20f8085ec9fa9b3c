package transition

import (
	"bytes"
	"errors"

	"github.com/blockberries/dapi"
	"github.com/blockberries/dapi/codec"
	"github.com/blockberries/dapi/types"
)

// StateTransition is a header transaction and data packet whose
// binding has been checked. The only way to obtain one is
// [Assembler.Assemble].
type StateTransition struct {
	header      types.HeaderTransaction
	packet      types.Packet
	rawPacket   []byte
	fingerprint types.Hash
}

// Header returns the decoded header transaction.
func (st *StateTransition) Header() types.HeaderTransaction { return st.header }

// Packet returns the decoded data packet.
func (st *StateTransition) Packet() types.Packet { return st.packet }

// RawPacket returns the packet bytes exactly as received.
func (st *StateTransition) RawPacket() []byte { return st.rawPacket }

// Fingerprint returns the packet fingerprint shared by both halves.
func (st *StateTransition) Fingerprint() types.Hash { return st.fingerprint }

// Assembler validates transition halves against each other.
type Assembler struct {
	headers dapi.HeaderCodec
	packets dapi.PacketCodec
}

// NewAssembler returns an Assembler using the given codecs.
func NewAssembler(headers dapi.HeaderCodec, packets dapi.PacketCodec) *Assembler {
	return &Assembler{headers: headers, packets: packets}
}

// DefaultAssembler uses the RLP header codec and cramberry packet codec.
func DefaultAssembler() *Assembler {
	return NewAssembler(codec.HeaderCodec{}, codec.PacketCodec{})
}

// Assemble decodes both hex-encoded halves and checks that the packet
// fingerprint equals the one embedded in the header's extra payload.
// Every failure is a *dapi.ValidationError. Assemble has no side
// effects.
func (a *Assembler) Assemble(rawHeader, rawPacket string) (*StateTransition, error) {
	if rawPacket == "" {
		return nil, dapi.NewValidationError(dapi.ReasonMissingPacket, nil)
	}

	packetBytes, err := codec.DecodeHex(rawPacket)
	if errors.Is(err, codec.ErrEmpty) {
		return nil, dapi.NewValidationError(dapi.ReasonMissingPacket, nil)
	}
	if err != nil {
		return nil, dapi.NewValidationError(dapi.ReasonDecode, err)
	}
	packet, err := a.packets.Decode(packetBytes)
	if err != nil {
		return nil, dapi.NewValidationError(dapi.ReasonDecode, err)
	}

	// Hash the bytes as received, not a re-encoding of the decoded
	// packet.
	fp := Digest(packetBytes)

	headerBytes, err := codec.DecodeHex(rawHeader)
	if err != nil {
		return nil, dapi.NewValidationError(dapi.ReasonHeaderDecode, err)
	}
	header, err := a.headers.Parse(headerBytes)
	if err != nil {
		return nil, dapi.NewValidationError(dapi.ReasonHeaderDecode, err)
	}

	embedded := header.ExtraPayload.PacketFingerprint
	if !bytes.Equal(fp[:], embedded[:]) {
		return nil, dapi.NewValidationError(dapi.ReasonFingerprintMismatch, nil)
	}

	return &StateTransition{
		header:      header,
		packet:      packet,
		rawPacket:   packetBytes,
		fingerprint: fp,
	}, nil
}
