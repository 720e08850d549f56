package payitemsync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/payroll_backend/config"
	"bitbucket.org/mmdatafocus/payroll_backend/models"
	"github.com/bsm/redislock"
	"github.com/sirupsen/logrus"
)

const defaultLockTTL = 2 * time.Minute

var ErrRunInProgress = errors.New("a pay item sync is already running for this business")

// Runner runs one reconciliation of a business.
type Runner interface {
	Run(ctx context.Context, business *models.Business, triggeredBy string) (*models.PayItemSyncRun, error)
}

// Dispatcher serializes runs per business with a Redis lock.
// With a nil locker runs go through unlocked.
type Dispatcher struct {
	runner  Runner
	locker  *redislock.Client
	lockTTL time.Duration
	logger  logrus.FieldLogger
}

func NewDispatcher(runner Runner, locker *redislock.Client, logger logrus.FieldLogger) *Dispatcher {
	if logger == nil {
		logger = config.GetLogger()
	}
	return &Dispatcher{runner: runner, locker: locker, lockTTL: defaultLockTTL, logger: logger}
}

func lockKey(businessExternalId string) string {
	return fmt.Sprintf("payitem-sync:%s", businessExternalId)
}

func (d *Dispatcher) Dispatch(ctx context.Context, business *models.Business, triggeredBy string) (*models.PayItemSyncRun, error) {
	log := d.logger.WithField("business_external_id", business.ExternalId)
	if d.locker == nil {
		log.Warn("redis lock not ready; running pay item sync without lock")
		return d.runner.Run(ctx, business, triggeredBy)
	}

	lock, err := d.locker.Obtain(ctx, lockKey(business.ExternalId), d.lockTTL, nil)
	if err == redislock.ErrNotObtained {
		return nil, ErrRunInProgress
	} else if err != nil {
		return nil, fmt.Errorf("obtain sync lock: %w", err)
	}

	refreshCtx, stopRefresh := context.WithCancel(ctx)
	go d.keepAlive(refreshCtx, lock, log)
	defer func() {
		stopRefresh()
		if releaseErr := lock.Release(context.Background()); releaseErr != nil && releaseErr != redislock.ErrLockNotHeld {
			log.WithError(releaseErr).Warn("failed to release sync lock")
		}
	}()

	return d.runner.Run(ctx, business, triggeredBy)
}

// keepAlive extends the lock until ctx is done so long runs stay exclusive.
func (d *Dispatcher) keepAlive(ctx context.Context, lock *redislock.Lock, log logrus.FieldLogger) {
	ticker := time.NewTicker(d.lockTTL / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := lock.Refresh(ctx, d.lockTTL, nil); err != nil {
				if ctx.Err() == nil {
					log.WithError(err).Warn("failed to refresh sync lock")
				}
				return
			}
		}
	}
}

// DispatchAll runs every enabled business in turn and returns the failures keyed by external id.
func (d *Dispatcher) DispatchAll(ctx context.Context, businesses []models.Business, triggeredBy string) map[string]error {
	failures := make(map[string]error)
	for i := range businesses {
		if err := ctx.Err(); err != nil {
			failures[businesses[i].ExternalId] = err
			continue
		}
		if _, err := d.Dispatch(ctx, &businesses[i], triggeredBy); err != nil {
			failures[businesses[i].ExternalId] = err
		}
	}
	return failures
}
