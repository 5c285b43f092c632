package chain

import (
	"math/bits"

	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
)

// MortalEra builds the era for an extrinsic anchored at the given block.
// The period is rounded up to a power of two and clamped to [4, 65536],
// matching the runtime's era decoding rules.
func MortalEra(period, current uint64) types.ExtrinsicEra {
	period = nextPowerOfTwo(period)
	if period < 4 {
		period = 4
	}
	if period > 1<<16 {
		period = 1 << 16
	}

	phase := current % period
	quantizeFactor := period >> 12
	if quantizeFactor < 1 {
		quantizeFactor = 1
	}

	low := uint64(bits.TrailingZeros64(period)) - 1
	if low < 1 {
		low = 1
	}
	if low > 15 {
		low = 15
	}

	encoded := uint16(low) | uint16(phase/quantizeFactor)<<4
	return types.ExtrinsicEra{
		IsMortalEra: true,
		AsMortalEra: types.MortalEra{
			First:  byte(encoded),
			Second: byte(encoded >> 8),
		},
	}
}

func nextPowerOfTwo(n uint64) uint64 {
	if n == 0 {
		return 1
	}
	if n&(n-1) == 0 {
		return n
	}
	return 1 << bits.Len64(n)
}
