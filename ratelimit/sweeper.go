package ratelimit

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"

	"github.com/KOMKZ/go-accessctl-framework/logger"
)

// DefaultSweepInterval keeps storage growth in check without putting
// noticeable load on the backend
const DefaultSweepInterval = time.Minute

// Sweeper periodically drops expired tokens from a storage. Storages
// already skip expired tokens on read, so the sweep only reclaims
// space.
type Sweeper struct {
	storage   TokenStorage
	interval  time.Duration
	scheduler gocron.Scheduler
	log       *logger.CtxZapLogger
}

func NewSweeper(storage TokenStorage, interval time.Duration) (*Sweeper, error) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	return &Sweeper{
		storage:   storage,
		interval:  interval,
		scheduler: scheduler,
		log:       logger.GetLogger("ratelimit"),
	}, nil
}

// Start schedules the sweep and returns immediately
func (s *Sweeper) Start(ctx context.Context) error {
	_, err := s.scheduler.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(func() {
			if err := s.storage.DeleteOutdatedTokens(ctx, time.Now()); err != nil {
				s.log.WarnCtx(ctx, "token sweep failed", zap.Error(err))
			}
		}),
	)
	if err != nil {
		return err
	}
	s.scheduler.Start()
	return nil
}

// Stop shuts the scheduler down, waiting for a running sweep
func (s *Sweeper) Stop() error {
	return s.scheduler.Shutdown()
}
