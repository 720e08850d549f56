package main

import (
	"context"
	"sync"

	"bitbucket.org/mmdatafocus/payroll_backend/config"
	"bitbucket.org/mmdatafocus/payroll_backend/payitemsync"
	"bitbucket.org/mmdatafocus/payroll_backend/utils"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// service holds the handlers once the database is reachable.
// The HTTP server starts before that so health checks pass during startup.
type service struct {
	logger *logrus.Logger

	mu          sync.RWMutex
	handlers    *payitemsync.Handlers
	pushHandler gin.HandlerFunc
}

func (s *service) wire(ctx context.Context, db *gorm.DB) {
	opts := []payitemsync.RoutineOption{payitemsync.WithWipeScope(config.PayItemWipeScope())}
	if bucket := config.ArchiveBucket(); bucket != "" {
		client, err := utils.GetGCSClient(ctx)
		if err != nil {
			s.logger.WithError(err).Warn("gcs unavailable; feed archiving disabled")
		} else {
			opts = append(opts, payitemsync.WithArchiver(payitemsync.NewGCSArchiver(client, bucket)))
		}
	}
	routine := payitemsync.NewRoutine(db, payitemsync.NewClient(config.PartnerConfigFromEnv(), s.logger), s.logger, opts...)
	dispatcher := payitemsync.NewDispatcher(routine, config.GetRedisLock(), s.logger)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = payitemsync.NewHandlers(db, dispatcher, config.PublishJSON, s.logger)
	s.pushHandler = payitemsync.PubSubPushHandler(db, dispatcher, s.logger)
}

func (s *service) ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.handlers != nil
}

func (s *service) handle(pick func(*payitemsync.Handlers) gin.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		s.mu.RLock()
		h := s.handlers
		s.mu.RUnlock()
		pick(h)(c)
	}
}

func (s *service) push(c *gin.Context) {
	s.mu.RLock()
	h := s.pushHandler
	s.mu.RUnlock()
	h(c)
}
