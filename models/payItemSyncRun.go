package models

import (
	"context"
	"time"

	"gorm.io/gorm"
)

const (
	SyncRunStatusRunning    = "running"
	SyncRunStatusCommitted  = "committed"
	SyncRunStatusRolledBack = "rolled_back"
)

const (
	SyncTriggeredCli      = "cli"
	SyncTriggeredApi      = "api"
	SyncTriggeredPubSub   = "pubsub"
	SyncTriggeredSchedule = "schedule"
)

// PayItemSyncRun records one reconciliation run. It is written outside the run's
// transaction so rolled back runs remain visible.
type PayItemSyncRun struct {
	ID                 uint       `gorm:"primary_key" json:"id"`
	BusinessId         uint       `gorm:"index;not null" json:"business_id"`
	BusinessExternalId string     `gorm:"size:128;not null" json:"business_external_id"`
	Status             string     `gorm:"size:20;not null" json:"status"`
	TriggeredBy        string     `gorm:"size:20" json:"triggered_by"`
	RecordsReceived    int        `json:"records_received"`
	RecordsSynced      int        `json:"records_synced"`
	RecordsSkipped     int        `json:"records_skipped"`
	UsersWiped         int        `json:"users_wiped"`
	ItemsDeleted       int64      `json:"items_deleted"`
	ErrorMessage       string     `gorm:"type:text" json:"error_message"`
	StartedAt          *time.Time `json:"started_at"`
	FinishedAt         *time.Time `json:"finished_at"`
	DurationMs         int64      `json:"duration_ms"`
	CreatedAt          time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

type SyncRunCounts struct {
	Received     int
	Synced       int
	Skipped      int
	UsersWiped   int
	ItemsDeleted int64
}

func StartSyncRun(ctx context.Context, db *gorm.DB, business *Business, triggeredBy string) (*PayItemSyncRun, error) {
	now := time.Now()
	run := PayItemSyncRun{
		BusinessId:         business.ID,
		BusinessExternalId: business.ExternalId,
		Status:             SyncRunStatusRunning,
		TriggeredBy:        triggeredBy,
		StartedAt:          &now,
	}
	if err := db.WithContext(ctx).Create(&run).Error; err != nil {
		return nil, err
	}
	return &run, nil
}

// FinishSyncRun marks the run committed, or rolled back when runErr is non-nil.
func FinishSyncRun(ctx context.Context, db *gorm.DB, run *PayItemSyncRun, counts SyncRunCounts, runErr error) error {
	finishedAt := time.Now()
	var durationMs int64
	if run.StartedAt != nil {
		durationMs = finishedAt.Sub(*run.StartedAt).Milliseconds()
	}
	status := SyncRunStatusCommitted
	errorMessage := ""
	if runErr != nil {
		status = SyncRunStatusRolledBack
		errorMessage = runErr.Error()
	}
	run.Status = status
	run.RecordsReceived = counts.Received
	run.RecordsSynced = counts.Synced
	run.RecordsSkipped = counts.Skipped
	run.UsersWiped = counts.UsersWiped
	run.ItemsDeleted = counts.ItemsDeleted
	run.ErrorMessage = errorMessage
	run.FinishedAt = &finishedAt
	run.DurationMs = durationMs
	return db.WithContext(ctx).Model(run).Updates(map[string]interface{}{
		"status":           status,
		"records_received": counts.Received,
		"records_synced":   counts.Synced,
		"records_skipped":  counts.Skipped,
		"users_wiped":      counts.UsersWiped,
		"items_deleted":    counts.ItemsDeleted,
		"error_message":    errorMessage,
		"finished_at":      finishedAt,
		"duration_ms":      durationMs,
	}).Error
}

func ListSyncRuns(ctx context.Context, db *gorm.DB, businessId uint, limit int) ([]PayItemSyncRun, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var runs []PayItemSyncRun
	err := db.WithContext(ctx).
		Where("business_id = ?", businessId).
		Order("id DESC").
		Limit(limit).
		Find(&runs).Error
	return runs, err
}

func GetSyncRun(ctx context.Context, db *gorm.DB, id uint) (*PayItemSyncRun, error) {
	var run PayItemSyncRun
	if err := db.WithContext(ctx).Where("id = ?", id).Take(&run).Error; err != nil {
		return nil, err
	}
	return &run, nil
}
