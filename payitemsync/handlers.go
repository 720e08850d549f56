package payitemsync

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/payroll_backend/config"
	"bitbucket.org/mmdatafocus/payroll_backend/models"
	"bitbucket.org/mmdatafocus/payroll_backend/utils"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const unknownBusinessMessage = "The business External ID that you provided does not exist"

// Handlers serves the operator API for pay item syncs.
type Handlers struct {
	db         *gorm.DB
	dispatcher *Dispatcher
	publish    Publisher
	logger     logrus.FieldLogger
}

func NewHandlers(db *gorm.DB, dispatcher *Dispatcher, publish Publisher, logger logrus.FieldLogger) *Handlers {
	if logger == nil {
		logger = config.GetLogger()
	}
	return &Handlers{db: db, dispatcher: dispatcher, publish: publish, logger: logger}
}

// TriggerSyncHandler queues a sync for :externalId, or runs it in the request with ?wait=true.
func (h *Handlers) TriggerSyncHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		business, ok := h.lookupBusiness(c, c.Param("externalId"))
		if !ok {
			return
		}
		if !business.IsEnabled() {
			c.JSON(http.StatusConflict, gin.H{"error": "business is disabled"})
			return
		}

		operator, _ := utils.GetOperatorFromContext(ctx)
		log := h.logger.WithFields(logrus.Fields{"business_external_id": business.ExternalId, "operator": operator})

		if wait, _ := strconv.ParseBool(c.Query("wait")); !wait {
			messageId, err := PublishSyncRun(ctx, h.publish, business.ExternalId, models.SyncTriggeredApi)
			if err != nil {
				config.LogError(log, "payitemsync", "TriggerSyncHandler", "Failed to queue sync", business.ExternalId, err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to queue sync"})
				return
			}
			c.JSON(http.StatusAccepted, gin.H{"messageId": messageId})
			return
		}

		run, err := h.dispatcher.Dispatch(ctx, business, models.SyncTriggeredApi)
		if err != nil {
			if errors.Is(err, ErrRunInProgress) {
				c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
				return
			}
			var failure *SyncFailure
			if errors.As(err, &failure) && run != nil {
				c.JSON(http.StatusBadGateway, mapRunToResponse(*run))
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, mapRunToResponse(*run))
	}
}

func (h *Handlers) SyncHistoryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		business, ok := h.lookupBusiness(c, c.Query("business"))
		if !ok {
			return
		}

		limit := 20
		if v := strings.TrimSpace(c.Query("limit")); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
				limit = n
			}
		}

		runs, err := models.ListSyncRuns(c.Request.Context(), h.db, business.ID, limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		items := make([]SyncRunResponse, 0, len(runs))
		for _, run := range runs {
			items = append(items, mapRunToResponse(run))
		}
		c.JSON(http.StatusOK, SyncHistoryResponse{Items: items})
	}
}

func (h *Handlers) SyncRunDetailHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseUint(c.Param("id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run id"})
			return
		}
		run, err := models.GetSyncRun(c.Request.Context(), h.db, uint(id))
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, mapRunToResponse(*run))
	}
}

func (h *Handlers) lookupBusiness(c *gin.Context, externalId string) (*models.Business, bool) {
	if strings.TrimSpace(externalId) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "business external id is required"})
		return nil, false
	}
	business, err := models.GetBusinessByExternalId(c.Request.Context(), h.db, externalId)
	if err != nil {
		if errors.Is(err, models.ErrBusinessNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": unknownBusinessMessage})
			return nil, false
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return nil, false
	}
	return business, true
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

func mapRunToResponse(run models.PayItemSyncRun) SyncRunResponse {
	return SyncRunResponse{
		ID:                 run.ID,
		BusinessExternalId: run.BusinessExternalId,
		Status:             run.Status,
		TriggeredBy:        run.TriggeredBy,
		StartedAt:          formatTime(run.StartedAt),
		FinishedAt:         formatTime(run.FinishedAt),
		DurationMs:         run.DurationMs,
		RecordsReceived:    run.RecordsReceived,
		RecordsSynced:      run.RecordsSynced,
		RecordsSkipped:     run.RecordsSkipped,
		UsersWiped:         run.UsersWiped,
		ItemsDeleted:       run.ItemsDeleted,
		Error:              run.ErrorMessage,
	}
}
