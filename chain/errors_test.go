package chain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsRecoverable(t *testing.T) {
	t.Parallel()

	require.False(t, IsRecoverable(nil))
	require.False(t, IsRecoverable(errors.New("connection refused")))

	for _, msg := range []string{
		"Inability to pay some fees (e.g. account balance too low): TooManyConsumers",
		"Transaction pool error: InvalidTransaction",
		"Transaction is outdated",
		"Priority is too low: (1 vs 2)",
		"invalid nonce",
		"Stale extrinsic",
	} {
		require.True(t, IsRecoverable(errors.New(msg)), msg)
	}

	// terminal pool statuses are retryable on the next slot
	require.True(t, IsRecoverable(ErrDropped))
	require.True(t, IsRecoverable(ErrUsurped))
	require.True(t, IsRecoverable(fmt.Errorf("watching extrinsic: %w", ErrInvalid)))
}

func TestIsAlreadyRegistered(t *testing.T) {
	t.Parallel()

	require.False(t, IsAlreadyRegistered(nil))
	require.False(t, IsAlreadyRegistered(errors.New("Priority is too low")))

	require.True(t, IsAlreadyRegistered(errors.New("Module error: HotKeyAlreadyRegisteredInSubNet")))
	require.True(t, IsAlreadyRegistered(errors.New("hotkey is already registered")))
	require.True(t, IsAlreadyRegistered(errors.New("duplicate registration")))
}
