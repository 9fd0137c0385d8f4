package negotiation

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/accord-hub/accord/internal/domain/negotiation"
)

const systemActor = "system"

// SweeperConfig controls the expiration sweeper.
type SweeperConfig struct {
	BatchSize int
	Interval  time.Duration
	Now       func() time.Time
}

// Sweeper expires open negotiations whose deadline has passed.
type Sweeper struct {
	store     negotiation.Store
	batchSize int
	interval  time.Duration
	now       func() time.Time
	logger    zerolog.Logger
}

// NewSweeper creates a sweeper.
func NewSweeper(store negotiation.Store, cfg SweeperConfig, logger zerolog.Logger) *Sweeper {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Sweeper{
		store:     store,
		batchSize: cfg.BatchSize,
		interval:  cfg.Interval,
		now:       cfg.Now,
		logger:    logger.With().Str("service", "sweeper").Logger(),
	}
}

// Sweep runs one pass and returns how many negotiations it expired. Each
// negotiation is expired in its own transaction; a failure is logged and
// the rest of the batch continues.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	now := s.now().UTC()
	total := 0
	for {
		ids, err := s.store.Negotiations().ListExpirable(ctx, now, s.batchSize)
		if err != nil {
			return total, err
		}
		expired := 0
		for _, id := range ids {
			ok, err := s.expire(ctx, id, now)
			if err != nil {
				s.logger.Warn().Err(err).Str("negotiation_id", id.String()).Msg("failed to expire negotiation")
				continue
			}
			if ok {
				expired++
			}
		}
		total += expired
		// A short batch is the last one; a batch with failures is left for
		// the next pass so the same rows are not retried in a loop.
		if len(ids) < s.batchSize || expired < len(ids) {
			break
		}
		if err := ctx.Err(); err != nil {
			return total, err
		}
	}
	if total > 0 {
		s.logger.Info().Int("expired", total).Msg("sweep finished")
	}
	return total, nil
}

func (s *Sweeper) expire(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	expired := false
	err := s.store.WithTx(ctx, func(stores negotiation.StoreProvider) error {
		expired = false
		repo := stores.Negotiations()
		n, err := repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if n == nil || n.State.IsTerminal() || !n.IsExpired(now) {
			return nil
		}
		from := n.State
		if err := n.TransitionTo(negotiation.StateExpired, negotiation.TriggerExpire); err != nil {
			return err
		}
		n.UpdatedAt = now
		if err := repo.Update(ctx, n); err != nil {
			return err
		}
		if err := repo.RecordTransition(ctx, negotiation.NewTransition(n.ID, &from, n.State, systemActor, string(negotiation.TriggerExpire), n.Round, now)); err != nil {
			return err
		}
		expired = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return expired, nil
}

// Run sweeps on every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error().Err(err).Msg("sweep failed")
			}
		}
	}
}
