package codec

import (
	"fmt"

	"github.com/blockberries/cramberry/pkg/cramberry"
	"github.com/blockberries/dapi"
	"github.com/blockberries/dapi/types"
)

var _ dapi.PacketCodec = PacketCodec{}

// PacketCodec decodes cramberry-encoded data packets.
type PacketCodec struct{}

func (PacketCodec) Decode(raw []byte) (types.Packet, error) {
	var p types.Packet
	if err := cramberry.Unmarshal(raw, &p); err != nil {
		return types.Packet{}, fmt.Errorf("codec: decode packet: %w", err)
	}
	return p, nil
}

// EncodePacket is the inverse of PacketCodec.Decode.
func EncodePacket(p types.Packet) ([]byte, error) {
	b, err := cramberry.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("codec: encode packet: %w", err)
	}
	return b, nil
}
