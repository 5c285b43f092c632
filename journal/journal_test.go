package journal

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, j.Close()) })
	return j
}

func TestAppendAndGet(t *testing.T) {
	t.Parallel()
	j := openTestJournal(t)

	rec := Record{
		Block:       12,
		Slot:        0,
		SubmittedAt: time.Now().Unix(),
		AttemptID:   "attempt-1",
		BurnCost:    5_000,
		Outcome:     OutcomeSubmitted,
	}
	require.NoError(t, j.Append(context.Background(), rec))

	got, err := j.Get(context.Background(), 12)
	require.NoError(t, err)
	require.Equal(t, rec, *got)
}

func TestGetMissingRecord(t *testing.T) {
	t.Parallel()
	j := openTestJournal(t)

	_, err := j.Get(context.Background(), 42)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestLastBlockWatermark(t *testing.T) {
	t.Parallel()
	j := openTestJournal(t)

	last, err := j.LastBlock(context.Background())
	require.NoError(t, err)
	require.Zero(t, last)

	require.NoError(t, j.Append(context.Background(), Record{Block: 7, Outcome: OutcomeSubmitted}))
	require.NoError(t, j.Append(context.Background(), Record{Block: 10, Outcome: OutcomeTooExpensive}))

	last, err = j.LastBlock(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 10, last)
}

func TestSetOutcome(t *testing.T) {
	t.Parallel()
	j := openTestJournal(t)

	require.NoError(t, j.Append(context.Background(), Record{Block: 3, Outcome: OutcomeSubmitted}))

	finalizedIn := [32]byte{0xde, 0xad, 0xbe, 0xef}
	require.NoError(t, j.SetOutcome(context.Background(), 3, OutcomeFinalized, finalizedIn))

	got, err := j.Get(context.Background(), 3)
	require.NoError(t, err)
	require.Equal(t, OutcomeFinalized, got.Outcome)
	require.Equal(t, finalizedIn, got.FinalizedIn)
}

func TestSetOutcomeMissingRecord(t *testing.T) {
	t.Parallel()
	j := openTestJournal(t)

	err := j.SetOutcome(context.Background(), 99, OutcomeFinalized, [32]byte{})
	require.ErrorIs(t, err, ErrNotFound)
}
