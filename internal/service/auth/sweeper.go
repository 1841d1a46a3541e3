package auth

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/mkosyakov/authcore/internal/logger"
	"github.com/mkosyakov/authcore/internal/repository"
)

// Sweeper deletes refresh ledger rows long past expiry. Expired rows are
// already unusable; the sweep just keeps the table from growing forever.
type Sweeper struct {
	refreshRepo repository.RefreshTokenRepo

	// How long an expired row is kept before deletion. Keeping recently
	// expired rows preserves reuse-detection evidence for investigations.
	retention time.Duration

	logger logger.Logger
}

func NewSweeper(refreshRepo repository.RefreshTokenRepo, retention time.Duration, l logger.Logger) (*Sweeper, error) {
	if refreshRepo == nil {
		return nil, errors.New("refresh repo must not be nil")
	}
	if l == nil {
		l = logger.NewNoOpLogger()
	}
	return &Sweeper{refreshRepo: refreshRepo, retention: retention, logger: l}, nil
}

// Sweep runs one deletion pass
func (s *Sweeper) Sweep(ctx context.Context) error {
	cutoff := time.Now().Add(-s.retention)

	deleted, err := s.refreshRepo.DeleteExpiredBefore(ctx, cutoff)
	if err != nil {
		return err
	}

	if deleted > 0 {
		s.logger.Info("swept expired refresh tokens", "deleted", deleted, "cutoff", cutoff)
	}
	return nil
}

// Schedule registers an hourly sweep on the given cron runner
func (s *Sweeper) Schedule(c *cron.Cron) error {
	_, err := c.AddFunc("@hourly", func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		if err := s.Sweep(ctx); err != nil {
			s.logger.Error("refresh token sweep failed", "error", err.Error())
		}
	})
	return err
}
