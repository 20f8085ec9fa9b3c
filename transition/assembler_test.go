package transition_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/blockberries/dapi"
	"github.com/blockberries/dapi/codec"
	dapitest "github.com/blockberries/dapi/testing"
	"github.com/blockberries/dapi/transition"
	"github.com/blockberries/dapi/types"
	"github.com/stretchr/testify/require"
)

func requireReason(t *testing.T, err error, reason string) {
	t.Helper()
	v, ok := dapi.IsValidation(err)
	require.Truef(t, ok, "expected ValidationError, got %v", err)
	require.Equal(t, reason, v.Reason)
}

func TestAssemble_RoundTrip(t *testing.T) {
	t.Parallel()

	p := dapitest.DefaultPacket()
	tr := dapitest.MakeTransition(t, p)

	st, err := transition.DefaultAssembler().Assemble(tr.Header, tr.Packet)
	require.NoError(t, err)
	require.Equal(t, tr.HeaderTx, st.Header())
	reencoded, err := codec.HeaderCodec{}.Serialize(st.Header())
	require.NoError(t, err)
	require.Equal(t, tr.Header, codec.EncodeHex(reencoded))
	require.Equal(t, p.Objects, st.Packet().Objects)
	require.Equal(t, tr.PacketBytes, st.RawPacket())
	require.Equal(t, transition.Digest(tr.PacketBytes), st.Fingerprint())
}

func TestAssemble_HexCaseAndPrefix(t *testing.T) {
	t.Parallel()

	tr := dapitest.MakeTransition(t, dapitest.DefaultPacket())
	a := transition.DefaultAssembler()

	_, err := a.Assemble(strings.ToUpper(tr.Header), strings.ToUpper(tr.Packet))
	require.NoError(t, err)

	_, err = a.Assemble("0x"+tr.Header, "0x"+tr.Packet)
	require.NoError(t, err)
}

func TestAssemble_TamperedPacket(t *testing.T) {
	t.Parallel()

	tr := dapitest.MakeTransition(t, dapitest.DefaultPacket())
	a := transition.DefaultAssembler()

	// Depending on the byte, the mutated packet either fails to decode
	// or decodes with a different fingerprint. Both are rejected.
	for i := range tr.PacketBytes {
		mutated := append([]byte(nil), tr.PacketBytes...)
		mutated[i] ^= 0x01
		tampered := dapitest.MakeTransitionFromBytes(t, mutated, transition.Digest(tr.PacketBytes))

		_, err := a.Assemble(tr.Header, tampered.Packet)
		_, ok := dapi.IsValidation(err)
		require.Truef(t, ok, "byte %d: expected ValidationError, got %v", i, err)
	}
}

func TestAssemble_FingerprintMismatch(t *testing.T) {
	t.Parallel()

	p := dapitest.DefaultPacket()
	good := dapitest.MakeTransition(t, p)

	// The packet still decodes, only the embedded fingerprint is wrong.
	other := dapitest.MakeTransitionFromBytes(t, good.PacketBytes, types.Hash{0xde, 0xad})
	_, err := transition.DefaultAssembler().Assemble(other.Header, other.Packet)
	requireReason(t, err, dapi.ReasonFingerprintMismatch)
}

type failingPacketCodec struct{}

func (failingPacketCodec) Decode([]byte) (types.Packet, error) {
	return types.Packet{}, errors.New("unknown packet version")
}

func TestAssemble_PacketCodecFailure(t *testing.T) {
	t.Parallel()

	tr := dapitest.MakeTransition(t, dapitest.DefaultPacket())
	a := transition.NewAssembler(codec.HeaderCodec{}, failingPacketCodec{})

	_, err := a.Assemble(tr.Header, tr.Packet)
	requireReason(t, err, dapi.ReasonDecode)
}

func TestAssemble_Errors(t *testing.T) {
	t.Parallel()

	tr := dapitest.MakeTransition(t, dapitest.DefaultPacket())
	a := transition.DefaultAssembler()

	for _, tc := range []struct {
		name   string
		header string
		packet string
		reason string
	}{
		{name: "missing packet", header: tr.Header, packet: "", reason: dapi.ReasonMissingPacket},
		{name: "prefix only packet", header: tr.Header, packet: "0x", reason: dapi.ReasonMissingPacket},
		{name: "packet not hex", header: tr.Header, packet: "zz", reason: dapi.ReasonDecode},
		{name: "header empty", header: "", packet: tr.Packet, reason: dapi.ReasonHeaderDecode},
		{name: "header not hex", header: "xyz", packet: tr.Packet, reason: dapi.ReasonHeaderDecode},
		{name: "header garbage", header: "ff01", packet: tr.Packet, reason: dapi.ReasonHeaderDecode},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := a.Assemble(tc.header, tc.packet)
			requireReason(t, err, tc.reason)
		})
	}
}
