package main

import (
	"context"
	"errors"
	"os"
	"strings"

	"bitbucket.org/mmdatafocus/payroll_backend/config"
	"bitbucket.org/mmdatafocus/payroll_backend/payitemsync"
	"bitbucket.org/mmdatafocus/payroll_backend/utils"
	"github.com/bsm/redislock"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// deps are the collaborators the commands need, resolved lazily so that
// commands only connect to what they use.
type deps struct {
	logger    logrus.FieldLogger
	openDB    func() (*gorm.DB, error)
	collector func() payitemsync.Collector
	locker    func(ctx context.Context) *redislock.Client
	archiver  func(ctx context.Context) payitemsync.Archiver
	publish   payitemsync.Publisher
	wipeScope func() string
}

func productionDeps() deps {
	logger := config.GetLogger()
	return deps{
		logger: logger,
		openDB: func() (*gorm.DB, error) {
			config.ConnectDatabaseWithRetry()
			db := config.GetDB()
			if db == nil {
				return nil, errors.New("database not initialized; set DB_* env vars")
			}
			return db, nil
		},
		collector: func() payitemsync.Collector {
			return payitemsync.NewClient(config.PartnerConfigFromEnv(), logger)
		},
		locker: func(ctx context.Context) *redislock.Client {
			if strings.TrimSpace(os.Getenv("REDIS_ADDRESS")) == "" {
				return nil
			}
			if err := config.ConnectRedisWithRetry(ctx, 3); err != nil {
				logger.WithError(err).Warn("redis unavailable; running without per-business lock")
				return nil
			}
			return config.GetRedisLock()
		},
		archiver: func(ctx context.Context) payitemsync.Archiver {
			bucket := config.ArchiveBucket()
			if bucket == "" {
				return nil
			}
			client, err := utils.GetGCSClient(ctx)
			if err != nil {
				logger.WithError(err).Warn("gcs unavailable; feed archiving disabled")
				return nil
			}
			return payitemsync.NewGCSArchiver(client, bucket)
		},
		publish:   config.PublishJSON,
		wipeScope: config.PayItemWipeScope,
	}
}

func (d deps) dispatcher(ctx context.Context, db *gorm.DB) *payitemsync.Dispatcher {
	opts := []payitemsync.RoutineOption{payitemsync.WithWipeScope(d.wipeScope())}
	if d.archiver != nil {
		if a := d.archiver(ctx); a != nil {
			opts = append(opts, payitemsync.WithArchiver(a))
		}
	}
	routine := payitemsync.NewRoutine(db, d.collector(), d.logger, opts...)

	var locker *redislock.Client
	if d.locker != nil {
		locker = d.locker(ctx)
	}
	return payitemsync.NewDispatcher(routine, locker, d.logger)
}
