package registration_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/sync/errgroup"

	"github.com/tensorops/regbot/chain"
	"github.com/tensorops/regbot/journal"
	"github.com/tensorops/regbot/logging"
	"github.com/tensorops/regbot/registration"
)

type fakeWatcher struct {
	hash      types.Hash
	finalized types.Hash
	err       error
}

func (w *fakeWatcher) ExtrinsicHash() types.Hash { return w.hash }

func (w *fakeWatcher) WaitFinalized(ctx context.Context) (types.Hash, error) {
	if w.err != nil {
		return types.Hash{}, w.err
	}
	return w.finalized, nil
}

// fakeChain serves a fixed sequence of headers, repeating the last one once
// the sequence is exhausted (the way a real chain keeps reporting the same
// best block between imports).
type fakeChain struct {
	mu      sync.Mutex
	headers []chain.Header
	next    int

	cost    uint64
	costErr error

	submitErr   error
	submitCalls int
	submitted   []chain.RegistrationRequest
	watcher     chain.Watcher
}

func (f *fakeChain) LatestHeader(ctx context.Context) (chain.Header, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.headers) == 0 {
		return chain.Header{}, errors.New("no blocks")
	}
	header := f.headers[f.next]
	if f.next < len(f.headers)-1 {
		f.next++
	}
	return header, nil
}

func (f *fakeChain) BurnCost(ctx context.Context, netuid uint16) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cost, f.costErr
}

func (f *fakeChain) SubmitRegistration(ctx context.Context, req chain.RegistrationRequest) (chain.Watcher, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitCalls++
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	f.submitted = append(f.submitted, req)
	if f.watcher != nil {
		return f.watcher, nil
	}
	return &fakeWatcher{}, nil
}

func (f *fakeChain) submittedBlocks() []uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	blocks := make([]uint64, len(f.submitted))
	for i, req := range f.submitted {
		blocks[i] = req.Anchor.Number
	}
	return blocks
}

func (f *fakeChain) submissionAttempts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submitCalls
}

func headersSeq(numbers ...uint64) []chain.Header {
	headers := make([]chain.Header, len(numbers))
	for i, n := range numbers {
		headers[i] = chain.Header{Number: n}
	}
	return headers
}

func openTestJournal(t *testing.T) *journal.Journal {
	t.Helper()
	j, err := journal.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, j.Close()) })
	return j
}

func testConfig() registration.Config {
	cfg := registration.DefaultConfig()
	cfg.Netuid = 11
	cfg.Slot = 1
	cfg.PollInterval = time.Millisecond
	return cfg
}

func TestSubmitsOnDesignatedSlot(t *testing.T) {
	t.Parallel()
	ctx := logging.NewContext(context.Background(), zaptest.NewLogger(t))

	fake := &fakeChain{headers: headersSeq(1, 2, 3, 4, 5, 6), cost: 100}
	jrnl := openTestJournal(t)

	r, err := registration.New(ctx, fake, jrnl, registration.WithConfig(testConfig()))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	var eg errgroup.Group
	eg.Go(func() error { return r.Run(ctx) })

	require.Eventually(t, func() bool {
		return len(fake.submittedBlocks()) == 2
	}, time.Second, time.Millisecond)

	cancel()
	require.NoError(t, eg.Wait())

	// Only blocks 1 and 4 fall into slot 1 of the 3-block window.
	require.Equal(t, []uint64{1, 4}, fake.submittedBlocks())

	rec, err := jrnl.Get(context.Background(), 4)
	require.NoError(t, err)
	require.Equal(t, journal.OutcomeFinalized, rec.Outcome)
}

func TestRestoresWatermarkFromJournal(t *testing.T) {
	t.Parallel()
	ctx := logging.NewContext(context.Background(), zaptest.NewLogger(t))
	jrnl := openTestJournal(t)

	// A previous run already submitted for block 100.
	require.NoError(t, jrnl.Append(ctx, journal.Record{Block: 100, Outcome: journal.OutcomeSubmitted}))

	fake := &fakeChain{headers: headersSeq(99, 100, 103), cost: 100}
	r, err := registration.New(ctx, fake, jrnl, registration.WithConfig(testConfig()))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	var eg errgroup.Group
	eg.Go(func() error { return r.Run(ctx) })

	require.Eventually(t, func() bool {
		return len(fake.submittedBlocks()) == 1
	}, time.Second, time.Millisecond)

	cancel()
	require.NoError(t, eg.Wait())
	require.Equal(t, []uint64{103}, fake.submittedBlocks())
}

func TestSkipsWhenBurnCostAboveLimit(t *testing.T) {
	t.Parallel()
	ctx := logging.NewContext(context.Background(), zaptest.NewLogger(t))
	jrnl := openTestJournal(t)

	cfg := testConfig()
	cfg.MaxCost = 1_000
	fake := &fakeChain{headers: headersSeq(1, 2, 3), cost: 2_000}

	r, err := registration.New(ctx, fake, jrnl, registration.WithConfig(cfg))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	var eg errgroup.Group
	eg.Go(func() error { return r.Run(ctx) })

	require.Eventually(t, func() bool {
		rec, err := jrnl.Get(context.Background(), 1)
		return err == nil && rec.Outcome == journal.OutcomeTooExpensive
	}, time.Second, time.Millisecond)

	cancel()
	require.NoError(t, eg.Wait())
	require.Empty(t, fake.submittedBlocks())
}

func TestRecoverableSubmissionErrorKeepsLooping(t *testing.T) {
	t.Parallel()
	ctx := logging.NewContext(context.Background(), zaptest.NewLogger(t))
	jrnl := openTestJournal(t)

	fake := &fakeChain{
		headers:   headersSeq(1, 2, 3, 4, 5, 6),
		cost:      100,
		submitErr: errors.New("Transaction pool error: Priority is too low"),
	}
	r, err := registration.New(ctx, fake, jrnl, registration.WithConfig(testConfig()))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	var eg errgroup.Group
	eg.Go(func() error { return r.Run(ctx) })

	// The loop must survive the error and try again on the next matching slot.
	require.Eventually(t, func() bool {
		return fake.submissionAttempts() >= 2
	}, time.Second, time.Millisecond)

	cancel()
	require.NoError(t, eg.Wait())
	require.Empty(t, fake.submittedBlocks())
}

func TestAlreadyRegisteredOutcome(t *testing.T) {
	t.Parallel()
	ctx := logging.NewContext(context.Background(), zaptest.NewLogger(t))
	jrnl := openTestJournal(t)

	fake := &fakeChain{
		headers: headersSeq(1, 2, 3),
		cost:    100,
		watcher: &fakeWatcher{err: errors.New("Module error: HotKeyAlreadyRegisteredInSubNet")},
	}
	r, err := registration.New(ctx, fake, jrnl, registration.WithConfig(testConfig()))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	var eg errgroup.Group
	eg.Go(func() error { return r.Run(ctx) })

	require.Eventually(t, func() bool {
		rec, err := jrnl.Get(context.Background(), 1)
		return err == nil && rec.Outcome == journal.OutcomeAlreadyRegistered
	}, time.Second, time.Millisecond)

	cancel()
	require.NoError(t, eg.Wait())
}

func TestInvalidConfig(t *testing.T) {
	t.Parallel()
	ctx := logging.NewContext(context.Background(), zaptest.NewLogger(t))
	jrnl := openTestJournal(t)

	cfg := testConfig()
	cfg.Slot = 3
	_, err := registration.New(ctx, &fakeChain{}, jrnl, registration.WithConfig(cfg))
	require.ErrorContains(t, err, "outside the registration window")

	cfg = testConfig()
	cfg.SlotCycle = 0
	_, err = registration.New(ctx, &fakeChain{}, jrnl, registration.WithConfig(cfg))
	require.ErrorContains(t, err, "slot cycle")

	cfg = testConfig()
	cfg.PollInterval = 0
	_, err = registration.New(ctx, &fakeChain{}, jrnl, registration.WithConfig(cfg))
	require.ErrorContains(t, err, "poll interval")
}
