// Package dapigrpc is the gRPC transport for dapi, using cramberry
// instead of protobuf for message serialization.
//
// Requests, responses and stream events are the cramberry-tagged
// structs from dapi/types and this package's wire types. The service
// descriptor is written by hand; no code generation is involved.
package dapigrpc

import (
	"errors"
	"fmt"

	"github.com/blockberries/cramberry/pkg/cramberry"
	"google.golang.org/grpc/encoding"
)

// CodecName is the content subtype both ends negotiate.
const CodecName = "cramberry"

var errNilMessage = errors.New("dapigrpc: nil message")

// CramberryCodec is the grpc/encoding.Codec for every dapi message.
type CramberryCodec struct{}

// Marshal encodes a request, response or stream event.
func (CramberryCodec) Marshal(v any) ([]byte, error) {
	if v == nil {
		return nil, errNilMessage
	}
	data, err := cramberry.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("dapigrpc: encode %T: %w", v, err)
	}
	return data, nil
}

// Unmarshal decodes data into the message pointed to by v.
func (CramberryCodec) Unmarshal(data []byte, v any) error {
	if v == nil {
		return errNilMessage
	}
	if err := cramberry.Unmarshal(data, v); err != nil {
		return fmt.Errorf("dapigrpc: decode %T (%d bytes): %w", v, len(data), err)
	}
	return nil
}

func (CramberryCodec) Name() string { return CodecName }

func init() {
	encoding.RegisterCodec(CramberryCodec{})
}
