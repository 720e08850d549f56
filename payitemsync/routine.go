package payitemsync

import (
	"context"
	"fmt"

	"bitbucket.org/mmdatafocus/payroll_backend/config"
	"bitbucket.org/mmdatafocus/payroll_backend/models"
	"bitbucket.org/mmdatafocus/payroll_backend/utils"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

// Collector fetches the full partner feed for a business.
type Collector interface {
	Collect(ctx context.Context, business *models.Business) ([]PayItemRecord, error)
}

// Archiver keeps a copy of a run's collected feed. Failures never fail the run.
type Archiver interface {
	Archive(ctx context.Context, business *models.Business, runId uint, records []PayItemRecord) error
}

// Routine replaces a business's pay items, per user, with what the partner reports.
type Routine struct {
	db        *gorm.DB
	collector Collector
	logger    logrus.FieldLogger
	wipeScope string
	archiver  Archiver
}

type RoutineOption func(*Routine)

// WithWipeScope selects config.WipeScopeUser (default) or config.WipeScopeBusiness.
func WithWipeScope(scope string) RoutineOption {
	return func(r *Routine) { r.wipeScope = scope }
}

func WithArchiver(a Archiver) RoutineOption {
	return func(r *Routine) { r.archiver = a }
}

func NewRoutine(db *gorm.DB, collector Collector, logger logrus.FieldLogger, opts ...RoutineOption) *Routine {
	if logger == nil {
		logger = config.GetLogger()
	}
	r := &Routine{
		db:        db,
		collector: collector,
		logger:    logger,
		wipeScope: config.WipeScopeUser,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run performs one reconciliation of business inside a single transaction.
// Any error rolls the whole run back and is returned as a *SyncFailure.
// The returned run history row is non-nil whenever it could be recorded.
func (r *Routine) Run(ctx context.Context, business *models.Business, triggeredBy string) (*models.PayItemSyncRun, error) {
	ctx, span := tracer.Start(ctx, "payitemsync.Run", trace.WithAttributes(
		attribute.String("business.external_id", business.ExternalId),
		attribute.String("sync.triggered_by", triggeredBy),
	))
	defer span.End()

	ctx = utils.SetBusinessIdInContext(ctx, business.ID)
	log := r.logger.WithFields(logrus.Fields{
		"business_external_id": business.ExternalId,
		"triggered_by":         triggeredBy,
	})
	if cid, ok := utils.GetCorrelationIdFromContext(ctx); ok {
		log = log.WithField("correlation_id", cid)
	}

	run, err := models.StartSyncRun(ctx, r.db, business, triggeredBy)
	if err != nil {
		failure := &SyncFailure{BusinessExternalId: business.ExternalId, Err: fmt.Errorf("record sync run: %w", err)}
		span.RecordError(failure)
		span.SetStatus(codes.Error, failure.Error())
		return nil, failure
	}
	log = log.WithField("run_id", run.ID)
	log.Info("pay item sync started")

	var counts models.SyncRunCounts
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		log.Debug("fetching partner feed")
		records, err := r.collector.Collect(ctx, business)
		if err != nil {
			return err
		}
		counts.Received = len(records)
		r.archive(ctx, log, business, run.ID, records)

		log.WithField("records", len(records)).Debug("reconciling pay items")
		return r.reconcile(tx, log, business, records, &counts)
	})

	if finishErr := models.FinishSyncRun(ctx, r.db, run, counts, err); finishErr != nil {
		config.LogError(log, "payitemsync", "Run", "Failed to finish sync run", run.ID, finishErr)
	}

	span.SetAttributes(
		attribute.Int("sync.records_received", counts.Received),
		attribute.Int("sync.records_synced", counts.Synced),
		attribute.Int("sync.records_skipped", counts.Skipped),
	)
	if err != nil {
		failure := &SyncFailure{BusinessExternalId: business.ExternalId, RunId: run.ID, Err: err}
		span.RecordError(failure)
		span.SetStatus(codes.Error, failure.Error())
		log.WithError(err).Error("pay item sync rolled back")
		return run, failure
	}

	log.WithFields(logrus.Fields{
		"records_received": counts.Received,
		"records_synced":   counts.Synced,
		"records_skipped":  counts.Skipped,
		"users_wiped":      counts.UsersWiped,
		"items_deleted":    counts.ItemsDeleted,
	}).Info("pay item sync committed")
	return run, nil
}

func (r *Routine) reconcile(tx *gorm.DB, log logrus.FieldLogger, business *models.Business, records []PayItemRecord, counts *models.SyncRunCounts) error {
	keep := reportedIdsByEmployee(records)
	allBusinesses := r.wipeScope != config.WipeScopeBusiness
	pct := business.EffectiveDeductionPercentage()

	users := make(map[string]*models.User)
	wiped := make(map[uint]struct{})

	for _, rec := range records {
		user, ok := users[rec.EmployeeId]
		if !ok {
			var err error
			user, err = models.FindBusinessUserByExternalId(tx, business.ID, rec.EmployeeId)
			if err != nil {
				return fmt.Errorf("resolve employee %s: %w", rec.EmployeeId, err)
			}
			users[rec.EmployeeId] = user
		}
		if user == nil {
			counts.Skipped++
			log.WithFields(logrus.Fields{"employee_id": rec.EmployeeId, "pay_item_id": rec.ID}).Debug("no local user for employee; skipping")
			continue
		}

		if _, done := wiped[user.ID]; !done {
			deleted, err := models.DeleteUserPayItems(tx, user.ID, business.ID, keep[rec.EmployeeId], allBusinesses)
			if err != nil {
				return fmt.Errorf("clear pay items of user %d: %w", user.ID, err)
			}
			wiped[user.ID] = struct{}{}
			counts.UsersWiped++
			counts.ItemsDeleted += deleted
		}

		payDate, err := rec.PayDate()
		if err != nil {
			return fmt.Errorf("pay item %s: %w", rec.ID, err)
		}
		key := models.PayItemKey{ExternalId: rec.ID, BusinessId: business.ID, UserId: user.ID}
		values := models.PayItemValues{
			Amount:  CalculateAmount(*rec.HoursWorked, *rec.PayRate, pct),
			PayRate: *rec.PayRate,
			Hours:   *rec.HoursWorked,
			PayDate: payDate,
		}
		if _, err := models.UpsertPayItem(tx, key, values); err != nil {
			return fmt.Errorf("upsert pay item %s: %w", rec.ID, err)
		}
		counts.Synced++
	}
	return nil
}

// reportedIdsByEmployee lists, per employee, the pay item ids present in this run's feed.
// Clearing a user spares these rows so the upsert that follows updates them in place.
func reportedIdsByEmployee(records []PayItemRecord) map[string][]string {
	out := make(map[string][]string)
	seen := make(map[string]map[string]struct{})
	for _, rec := range records {
		ids, ok := seen[rec.EmployeeId]
		if !ok {
			ids = make(map[string]struct{})
			seen[rec.EmployeeId] = ids
		}
		if _, dup := ids[rec.ID]; dup {
			continue
		}
		ids[rec.ID] = struct{}{}
		out[rec.EmployeeId] = append(out[rec.EmployeeId], rec.ID)
	}
	return out
}

func (r *Routine) archive(ctx context.Context, log logrus.FieldLogger, business *models.Business, runId uint, records []PayItemRecord) {
	if r.archiver == nil {
		return
	}
	if err := r.archiver.Archive(ctx, business, runId, records); err != nil {
		log.WithError(err).Warn("failed to archive partner feed")
	}
}
