package payitemsync

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/payroll_backend/models"
	"bitbucket.org/mmdatafocus/payroll_backend/utils"
	"cloud.google.com/go/storage"
)

// GCSArchiver writes each run's collected feed to a GCS bucket.
type GCSArchiver struct {
	client *storage.Client
	bucket string
	now    func() time.Time
}

func NewGCSArchiver(client *storage.Client, bucket string) *GCSArchiver {
	return &GCSArchiver{client: client, bucket: bucket, now: time.Now}
}

func (a *GCSArchiver) Archive(ctx context.Context, business *models.Business, runId uint, records []PayItemRecord) error {
	data, err := json.Marshal(struct {
		BusinessExternalId string          `json:"businessExternalId"`
		RunId              uint            `json:"runId"`
		CollectedAt        time.Time       `json:"collectedAt"`
		PayItems           []PayItemRecord `json:"payItems"`
	}{business.ExternalId, runId, a.now().UTC(), records})
	if err != nil {
		return err
	}
	return utils.SaveJSONToGCS(ctx, a.client, a.bucket, archiveObjectName(business.ExternalId, runId, a.now()), data)
}

func archiveObjectName(businessExternalId string, runId uint, at time.Time) string {
	return fmt.Sprintf("payitem-sync/%s/%s/run-%d.json", businessExternalId, at.UTC().Format("2006-01-02"), runId)
}
