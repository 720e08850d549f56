package payitemsync

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"bitbucket.org/mmdatafocus/payroll_backend/config"
	"bitbucket.org/mmdatafocus/payroll_backend/models"
	"bitbucket.org/mmdatafocus/payroll_backend/utils"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Publisher queues a payload on a topic and returns the message id.
type Publisher func(ctx context.Context, topic string, payload interface{}) (string, error)

// PublishSyncRun queues a run for the business on the sync topic.
func PublishSyncRun(ctx context.Context, publish Publisher, businessExternalId string, triggeredBy string) (string, error) {
	if publish == nil {
		publish = config.PublishJSON
	}
	payload := SyncPubSubPayload{
		BusinessExternalId: businessExternalId,
		TriggeredBy:        triggeredBy,
	}
	if cid, ok := utils.GetCorrelationIdFromContext(ctx); ok {
		payload.CorrelationId = cid
	}
	return publish(ctx, config.SyncTopic(), payload)
}

// PubSubPushHandler runs the sync a push message names.
// Messages it cannot act on and runs that fail are acknowledged; failed runs are already recorded
// as rolled back. Only a failure to load the business is nacked for redelivery.
func PubSubPushHandler(db *gorm.DB, dispatcher *Dispatcher, logger logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.Status(http.StatusNoContent)
			return
		}

		var envelope PubSubPushEnvelope
		if err := json.Unmarshal(body, &envelope); err != nil {
			logger.WithError(err).Warn("invalid pubsub envelope")
			c.Status(http.StatusNoContent)
			return
		}
		var payload SyncPubSubPayload
		if err := json.Unmarshal(envelope.Message.Data, &payload); err != nil || strings.TrimSpace(payload.BusinessExternalId) == "" {
			logger.WithField("message_id", envelope.Message.ID).Warn("invalid pay item sync payload")
			c.Status(http.StatusNoContent)
			return
		}

		cid := payload.CorrelationId
		if cid == "" {
			cid = envelope.Message.ID
		}
		ctx := utils.SetCorrelationIdInContext(c.Request.Context(), cid)
		log := logger.WithFields(logrus.Fields{
			"business_external_id": payload.BusinessExternalId,
			"message_id":           envelope.Message.ID,
			"correlation_id":       cid,
		})

		business, err := models.GetBusinessByExternalId(ctx, db, payload.BusinessExternalId)
		if err != nil {
			if errors.Is(err, models.ErrBusinessNotFound) {
				log.Warn("pay item sync queued for unknown business")
				c.Status(http.StatusNoContent)
				return
			}
			config.LogError(log, "payitemsync", "PubSubPushHandler", "Failed to load business", payload.BusinessExternalId, err)
			c.Status(http.StatusInternalServerError)
			return
		}
		if !business.IsEnabled() {
			log.Info("business disabled; dropping queued pay item sync")
			c.Status(http.StatusNoContent)
			return
		}

		triggeredBy := payload.TriggeredBy
		if triggeredBy == "" {
			triggeredBy = models.SyncTriggeredPubSub
		}
		if _, err := dispatcher.Dispatch(ctx, business, triggeredBy); err != nil {
			if errors.Is(err, ErrRunInProgress) {
				log.Info("pay item sync already running; dropping duplicate")
				c.Status(http.StatusNoContent)
				return
			}
			log.WithError(err).Error("queued pay item sync failed")
		}
		c.Status(http.StatusNoContent)
	}
}
