package transition_test

import (
	"fmt"
	"testing"

	"github.com/blockberries/dapi/transition"
	"github.com/stretchr/testify/require"
)

func TestFingerprint_ReferenceVector(t *testing.T) {
	t.Parallel()

	require.Equal(t,
		"a23421f2ba909c885a3077bb6f8eb4312487797693bbcfe7e311f797e3c5b8fa",
		transition.Fingerprint([]byte{0x12, 0x34}),
	)
	require.Equal(t,
		"5df6e0e2761359d30a8275058e299fcc0381534545f55cf43e41983f5d4c9456",
		transition.Fingerprint(nil),
	)
}

func TestFingerprint_Deterministic(t *testing.T) {
	t.Parallel()

	data := []byte("state transition packet")
	require.Equal(t, transition.Fingerprint(data), transition.Fingerprint(data))
	require.Equal(t, transition.Digest(data).String(), transition.Fingerprint(data))
}

func TestFingerprint_NoCollisions(t *testing.T) {
	t.Parallel()

	seen := make(map[string][]byte)
	for i := range 256 {
		for _, in := range [][]byte{
			{byte(i)},
			{byte(i), 0x00},
			[]byte(fmt.Sprintf("packet-%d", i)),
		} {
			fp := transition.Fingerprint(in)
			if prev, ok := seen[fp]; ok {
				t.Fatalf("collision between %x and %x", prev, in)
			}
			seen[fp] = in
		}
	}
}
