package registration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tensorops/regbot/chain"
	"github.com/tensorops/regbot/journal"
	"github.com/tensorops/regbot/logging"
)

// ChainService is the part of the chain client the loop depends on.
type ChainService interface {
	LatestHeader(ctx context.Context) (chain.Header, error)
	BurnCost(ctx context.Context, netuid uint16) (uint64, error)
	SubmitRegistration(ctx context.Context, req chain.RegistrationRequest) (chain.Watcher, error)
}

// Registration drives slot-gated submission of burned_register extrinsics.
// It is responsible for:
//   - polling the chain for new blocks,
//   - submitting a registration on every block in its designated slot,
//   - gating submissions on the subnet's current burn cost,
//   - watching finalization of submitted extrinsics in the background,
//   - journaling every attempt and its outcome.
type Registration struct {
	cfg     Config
	chain   ChainService
	journal *journal.Journal

	// highest block number already handled; only ever advances
	lastBlock uint64

	costValue     uint64
	costFetchedAt time.Time
}

type newRegistrationOptionFunc func(*newRegistrationOptions)

type newRegistrationOptions struct {
	cfg Config
}

func WithConfig(cfg Config) newRegistrationOptionFunc {
	return func(opts *newRegistrationOptions) {
		opts.cfg = cfg
	}
}

func New(
	ctx context.Context,
	chainSvc ChainService,
	jrnl *journal.Journal,
	opts ...newRegistrationOptionFunc,
) (*Registration, error) {
	options := newRegistrationOptions{
		cfg: DefaultConfig(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.cfg.SlotCycle == 0 {
		return nil, errors.New("slot cycle must be positive")
	}
	if options.cfg.Slot >= options.cfg.SlotCycle {
		return nil, fmt.Errorf("slot %d is outside the registration window of %d blocks", options.cfg.Slot, options.cfg.SlotCycle)
	}
	if options.cfg.PollInterval <= 0 {
		return nil, errors.New("poll interval must be positive")
	}

	lastBlock, err := jrnl.LastBlock(ctx)
	if err != nil {
		return nil, fmt.Errorf("restoring watermark: %w", err)
	}
	if lastBlock > 0 {
		logging.FromContext(ctx).Info("restored submission watermark", zap.Uint64("block", lastBlock))
	}

	return &Registration{
		cfg:       options.cfg,
		chain:     chainSvc,
		journal:   jrnl,
		lastBlock: lastBlock,
	}, nil
}

// Run polls for new blocks until the context is canceled. It never returns
// on chain errors, only on cancellation, after draining the in-flight
// finalization watchers.
func (r *Registration) Run(ctx context.Context) error {
	logger := logging.FromContext(ctx).Named("registration")
	ctx = logging.NewContext(ctx, logger)

	logger.Info("starting registration loop", zap.Object("config", r.cfg))

	var watchers errgroup.Group
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			watchers.Wait()
			return nil
		case <-ticker.C:
			r.tick(ctx, &watchers)
		}
	}
}

func (r *Registration) tick(ctx context.Context, watchers *errgroup.Group) {
	logger := logging.FromContext(ctx)

	header, err := r.chain.LatestHeader(ctx)
	if err != nil {
		logger.Warn("failed to fetch latest block", zap.Error(err))
		return
	}
	// Skip if we already handled this block
	if header.Number <= r.lastBlock {
		return
	}
	r.lastBlock = header.Number
	blocksSeenMetric.Inc()

	slot := header.Number % r.cfg.SlotCycle
	if slot != r.cfg.Slot {
		logger.Debug(
			"skipping block outside designated slot",
			zap.Uint64("block", header.Number),
			zap.Uint64("slot", slot),
			zap.Uint64("want", r.cfg.Slot),
		)
		return
	}

	attemptID := uuid.New()
	logger = logger.With(zap.Uint64("block", header.Number), zap.Stringer("attempt_id", attemptID))

	cost, err := r.burnCost(ctx)
	if err != nil {
		logger.Warn("failed to query burn cost", zap.Error(err))
	} else {
		burnCostMetric.Set(float64(cost))
		if cost > r.cfg.MaxCost {
			logger.Info(
				"skipping registration, burn cost above limit",
				zap.Uint64("cost", cost),
				zap.Uint64("max_cost", r.cfg.MaxCost),
			)
			tooExpensiveMetric.Inc()
			r.record(ctx, journal.Record{
				Block:       header.Number,
				Slot:        slot,
				SubmittedAt: time.Now().Unix(),
				AttemptID:   attemptID.String(),
				BurnCost:    cost,
				Outcome:     journal.OutcomeTooExpensive,
			})
			return
		}
	}

	start := time.Now()
	watcher, err := r.chain.SubmitRegistration(ctx, chain.RegistrationRequest{
		Netuid: r.cfg.Netuid,
		Anchor: header,
	})
	submitLatencyMetric.Observe(time.Since(start).Seconds())
	if err != nil {
		if chain.IsRecoverable(err) {
			logger.Warn("recoverable submission error, will retry on next matching slot", zap.Error(err))
			submissionsMetric.WithLabelValues(journal.OutcomeRecoverable).Inc()
		} else {
			logger.Error("submission failed", zap.Error(err))
			submissionsMetric.WithLabelValues(journal.OutcomeFailed).Inc()
		}
		return
	}
	submissionsMetric.WithLabelValues(journal.OutcomeSubmitted).Inc()
	logger.Info(
		"registration submitted",
		zap.String("extrinsic", watcher.ExtrinsicHash().Hex()),
		zap.Duration("took", time.Since(start)),
	)

	r.record(ctx, journal.Record{
		Block:         header.Number,
		Slot:          slot,
		SubmittedAt:   start.Unix(),
		AttemptID:     attemptID.String(),
		ExtrinsicHash: [32]byte(watcher.ExtrinsicHash()),
		BurnCost:      cost,
		Outcome:       journal.OutcomeSubmitted,
	})

	// Watch finalization in the background so the loop keeps polling for
	// the next block.
	block := header.Number
	watcherLogger := logger
	watchers.Go(func() error {
		r.watchFinalization(ctx, watcherLogger, block, watcher)
		return nil
	})
}

func (r *Registration) watchFinalization(ctx context.Context, logger *zap.Logger, block uint64, watcher chain.Watcher) {
	start := time.Now()
	finalizedIn, err := watcher.WaitFinalized(ctx)
	switch {
	case err == nil:
		finalizationLatencyMetric.Observe(time.Since(start).Seconds())
		finalizationsMetric.WithLabelValues(journal.OutcomeFinalized).Inc()
		logger.Info(
			"registration finalized",
			zap.String("finalized_in", finalizedIn.Hex()),
			zap.Duration("took", time.Since(start)),
		)
		r.setOutcome(ctx, block, journal.OutcomeFinalized, finalizedIn)
	case errors.Is(err, context.Canceled):
	case chain.IsAlreadyRegistered(err):
		logger.Warn("hotkey appears to be already registered", zap.Error(err))
		finalizationsMetric.WithLabelValues(journal.OutcomeAlreadyRegistered).Inc()
		r.setOutcome(ctx, block, journal.OutcomeAlreadyRegistered, [32]byte{})
	case chain.IsRecoverable(err):
		logger.Warn("recoverable error while awaiting finalization", zap.Error(err))
		finalizationsMetric.WithLabelValues(journal.OutcomeRecoverable).Inc()
		r.setOutcome(ctx, block, journal.OutcomeRecoverable, [32]byte{})
	default:
		logger.Error("registration failed", zap.Error(err))
		finalizationsMetric.WithLabelValues(journal.OutcomeFailed).Inc()
		r.setOutcome(ctx, block, journal.OutcomeFailed, [32]byte{})
	}
}

// burnCost returns the subnet's recycle cost, reusing a recently fetched
// value to keep the poll loop off the storage RPC.
func (r *Registration) burnCost(ctx context.Context) (uint64, error) {
	if r.cfg.CostCacheTTL > 0 && !r.costFetchedAt.IsZero() && time.Since(r.costFetchedAt) < r.cfg.CostCacheTTL {
		return r.costValue, nil
	}
	cost, err := r.chain.BurnCost(ctx, r.cfg.Netuid)
	if err != nil {
		return 0, err
	}
	r.costValue = cost
	r.costFetchedAt = time.Now()
	return cost, nil
}

func (r *Registration) record(ctx context.Context, rec journal.Record) {
	if err := r.journal.Append(ctx, rec); err != nil {
		logging.FromContext(ctx).Warn("failed to journal attempt", zap.Error(err), zap.Uint64("block", rec.Block))
	}
}

func (r *Registration) setOutcome(ctx context.Context, block uint64, outcome string, finalizedIn [32]byte) {
	if err := r.journal.SetOutcome(ctx, block, outcome, finalizedIn); err != nil {
		logging.FromContext(ctx).Warn("failed to journal outcome", zap.Error(err), zap.Uint64("block", block))
	}
}
