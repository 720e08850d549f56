package payitemsync

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/payroll_backend/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Scheduler queues a sync of every enabled business once per interval.
type Scheduler struct {
	db       *gorm.DB
	publish  Publisher
	interval time.Duration
	logger   logrus.FieldLogger
}

func NewScheduler(db *gorm.DB, publish Publisher, interval time.Duration, logger logrus.FieldLogger) *Scheduler {
	return &Scheduler{db: db, publish: publish, interval: interval, logger: logger}
}

// Start blocks until ctx is done. A non-positive interval disables scheduling.
func (s *Scheduler) Start(ctx context.Context) {
	if s.interval <= 0 {
		s.logger.Info("pay item sync scheduler disabled")
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Tick(ctx); err != nil {
				s.logger.WithError(err).Error("scheduled pay item sync failed")
			}
		}
	}
}

// Tick queues one run per enabled business and returns how many were queued.
func (s *Scheduler) Tick(ctx context.Context) (int, error) {
	businesses, err := models.ListEnabledBusinesses(ctx, s.db)
	if err != nil {
		return 0, err
	}
	queued := 0
	for _, b := range businesses {
		if _, err := PublishSyncRun(ctx, s.publish, b.ExternalId, models.SyncTriggeredSchedule); err != nil {
			s.logger.WithError(err).WithField("business_external_id", b.ExternalId).Warn("failed to queue scheduled pay item sync")
			continue
		}
		queued++
	}
	return queued, nil
}
