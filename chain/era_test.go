package chain

import (
	"testing"

	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/stretchr/testify/require"
)

func TestMortalEraEncoding(t *testing.T) {
	t.Parallel()
	for _, tc := range []struct {
		name    string
		period  uint64
		current uint64
		first   byte
		second  byte
	}{
		{name: "period 256", period: 256, current: 10000, first: 0x07, second: 0x01},
		{name: "period 64", period: 64, current: 42, first: 0xa5, second: 0x02},
		{name: "non power of two rounds up", period: 3, current: 5, first: 0x11, second: 0x00},
		{name: "clamped to 65536 with quantized phase", period: 100000, current: 70000, first: 0x7f, second: 0x11},
		{name: "zero period clamps to 4", period: 0, current: 7, first: 0x31, second: 0x00},
	} {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			era := MortalEra(tc.period, tc.current)
			require.True(t, era.IsMortalEra)
			require.Equal(t, types.MortalEra{First: tc.first, Second: tc.second}, era.AsMortalEra)
		})
	}
}

func TestNextPowerOfTwo(t *testing.T) {
	t.Parallel()
	require.EqualValues(t, 1, nextPowerOfTwo(0))
	require.EqualValues(t, 1, nextPowerOfTwo(1))
	require.EqualValues(t, 4, nextPowerOfTwo(3))
	require.EqualValues(t, 256, nextPowerOfTwo(256))
	require.EqualValues(t, 512, nextPowerOfTwo(257))
}
