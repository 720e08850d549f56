package payitemsync

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"bitbucket.org/mmdatafocus/payroll_backend/models"
	"bitbucket.org/mmdatafocus/payroll_backend/models/modelstest"
	"bitbucket.org/mmdatafocus/payroll_backend/utils"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type publishedMessage struct {
	topic   string
	payload interface{}
}

func recordingPublisher(out *[]publishedMessage) Publisher {
	return func(_ context.Context, topic string, payload interface{}) (string, error) {
		*out = append(*out, publishedMessage{topic: topic, payload: payload})
		return "msg-1", nil
	}
}

func TestPublishSyncRun(t *testing.T) {
	t.Setenv("PAYITEM_SYNC_TOPIC", "")
	var published []publishedMessage
	ctx := utils.SetCorrelationIdInContext(context.Background(), "cid-9")

	id, err := PublishSyncRun(ctx, recordingPublisher(&published), "abcd-efg-hijk", models.SyncTriggeredCli)
	require.NoError(t, err)
	assert.Equal(t, "msg-1", id)
	require.Len(t, published, 1)
	assert.Equal(t, "payitem-sync", published[0].topic)
	assert.Equal(t, SyncPubSubPayload{BusinessExternalId: "abcd-efg-hijk", TriggeredBy: "cli", CorrelationId: "cid-9"}, published[0].payload)
}

func pushBody(t *testing.T, payload interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	var envelope PubSubPushEnvelope
	envelope.Message.Data = data
	envelope.Message.ID = "pubsub-42"
	body, err := json.Marshal(envelope)
	require.NoError(t, err)
	return body
}

func TestPubSubPushHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := modelstest.NewDB(t)
	modelstest.CreateBusiness(t, db, "abcd-efg-hijk", nil)
	disabled := modelstest.CreateBusiness(t, db, "disabled", nil)
	require.NoError(t, db.Model(disabled).Update("enabled", false).Error)

	type call struct {
		business    string
		triggeredBy string
		correlation string
	}
	var calls []call
	logger, _ := test.NewNullLogger()
	dispatcher := NewDispatcher(runnerFunc(func(ctx context.Context, b *models.Business, triggeredBy string) (*models.PayItemSyncRun, error) {
		cid, _ := utils.GetCorrelationIdFromContext(ctx)
		calls = append(calls, call{b.ExternalId, triggeredBy, cid})
		return &models.PayItemSyncRun{}, nil
	}), nil, logger)

	r := gin.New()
	r.POST("/pubsub/payitem-sync", PubSubPushHandler(db, dispatcher, logger))

	cases := []struct {
		name  string
		body  []byte
		calls []call
	}{
		{"runs named business", pushBody(t, SyncPubSubPayload{BusinessExternalId: "abcd-efg-hijk", TriggeredBy: "api"}), []call{{"abcd-efg-hijk", "api", "pubsub-42"}}},
		{"defaults trigger", pushBody(t, SyncPubSubPayload{BusinessExternalId: "abcd-efg-hijk", CorrelationId: "cid"}), []call{{"abcd-efg-hijk", "pubsub", "cid"}}},
		{"unknown business is acked", pushBody(t, SyncPubSubPayload{BusinessExternalId: "missing"}), nil},
		{"disabled business is acked", pushBody(t, SyncPubSubPayload{BusinessExternalId: "disabled"}), nil},
		{"empty payload is acked", pushBody(t, SyncPubSubPayload{}), nil},
		{"garbage is acked", []byte("not json"), nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			calls = nil
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/pubsub/payitem-sync", bytes.NewReader(tc.body))
			r.ServeHTTP(w, req)

			assert.Equal(t, http.StatusNoContent, w.Code)
			assert.Equal(t, tc.calls, calls)
		})
	}
}
