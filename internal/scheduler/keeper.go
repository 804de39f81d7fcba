package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/quantbridge/tda/internal/tda"
	"github.com/quantbridge/tda/pkg/logger"
)

// refreshSpec renews the access token well inside its 30 minute lifespan so
// trading calls never block on a mid-call refresh.
const refreshSpec = "@every 20m"

// TokenKeeper refreshes the broker access token on a schedule.
type TokenKeeper struct {
	client *tda.Client
	logger *logger.Logger
	cron   *cron.Cron
}

// NewTokenKeeper creates a token keeper for the client.
func NewTokenKeeper(client *tda.Client, log *logger.Logger) *TokenKeeper {
	return &TokenKeeper{
		client: client,
		logger: log,
		cron:   cron.New(),
	}
}

// Start refreshes once immediately, then on the schedule.
func (k *TokenKeeper) Start(ctx context.Context) error {
	if err := k.refresh(ctx); err != nil {
		return err
	}

	_, err := k.cron.AddFunc(refreshSpec, func() {
		refreshCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := k.refresh(refreshCtx); err != nil {
			k.logger.WithError(err).Error("Scheduled token refresh failed")
		}
	})
	if err != nil {
		return err
	}

	k.cron.Start()
	k.logger.WithField("schedule", refreshSpec).Info("Token keeper started")
	return nil
}

// Stop halts the refresh schedule and waits for a running refresh.
func (k *TokenKeeper) Stop() {
	stopCtx := k.cron.Stop()
	<-stopCtx.Done()
	k.logger.Info("Token keeper stopped")
}

func (k *TokenKeeper) refresh(ctx context.Context) error {
	if err := k.client.RefreshAccessToken(ctx); err != nil {
		return err
	}
	k.logger.Debug("Access token refreshed by keeper")
	return nil
}
