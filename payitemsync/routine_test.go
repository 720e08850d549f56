package payitemsync

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"bitbucket.org/mmdatafocus/payroll_backend/config"
	"bitbucket.org/mmdatafocus/payroll_backend/models"
	"bitbucket.org/mmdatafocus/payroll_backend/models/modelstest"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type collectorFunc func(ctx context.Context, business *models.Business) ([]PayItemRecord, error)

func (f collectorFunc) Collect(ctx context.Context, business *models.Business) ([]PayItemRecord, error) {
	return f(ctx, business)
}

func staticFeed(records ...PayItemRecord) Collector {
	return collectorFunc(func(context.Context, *models.Business) ([]PayItemRecord, error) {
		return records, nil
	})
}

func record(id, employee, payRate, hours, date string) PayItemRecord {
	rate := decimal.RequireFromString(payRate)
	h := decimal.RequireFromString(hours)
	return PayItemRecord{ID: id, EmployeeId: employee, PayRate: &rate, HoursWorked: &h, Date: date}
}

type routineFixture struct {
	db       *gorm.DB
	business *models.Business
	user     *models.User
}

func newRoutineFixture(t *testing.T) routineFixture {
	db := modelstest.NewDB(t)
	business := modelstest.CreateBusiness(t, db, "abcd-efg-hijk", modelstest.Float(40))
	user := modelstest.CreateUser(t, db, "abcdedfg", business)
	return routineFixture{db: db, business: business, user: user}
}

func (f routineFixture) routine(c Collector, opts ...RoutineOption) *Routine {
	logger, _ := test.NewNullLogger()
	return NewRoutine(f.db, c, logger, opts...)
}

func itemsByExternalId(t *testing.T, db *gorm.DB, userId uint) map[string]models.PayItem {
	t.Helper()
	items, err := models.ListPayItemsForUser(db, userId)
	require.NoError(t, err)
	out := make(map[string]models.PayItem, len(items))
	for _, it := range items {
		out[it.ExternalId] = it
	}
	return out
}

func TestRun_CreatesPayItemsWithComputedAmount(t *testing.T) {
	f := newRoutineFixture(t)
	feed := staticFeed(
		record("anExternalIdForThisPayItem", "abcdedfg", "12.5", "8.5", "2021-10-19"),
		record("aDifferentExternalIdForThisPayItem", "abcdedfg", "10", "10", "2021-10-20"),
	)

	run, err := f.routine(feed).Run(context.Background(), f.business, models.SyncTriggeredCli)
	require.NoError(t, err)
	require.NotNil(t, run)

	items := itemsByExternalId(t, f.db, f.user.ID)
	require.Len(t, items, 2)
	first := items["anExternalIdForThisPayItem"]
	assert.Equal(t, f.business.ID, first.BusinessId)
	assert.True(t, first.Amount.Equal(decimal.RequireFromString("42.5")), "amount %s", first.Amount)
	assert.True(t, first.PayRate.Equal(decimal.RequireFromString("12.5")))
	assert.True(t, first.Hours.Equal(decimal.RequireFromString("8.5")))
	assert.Equal(t, "2021-10-19", first.PayDate.Format("2006-01-02"))
	assert.True(t, items["aDifferentExternalIdForThisPayItem"].Amount.Equal(decimal.NewFromInt(40)))
}

func TestRun_DefaultDeductionPercentage(t *testing.T) {
	db := modelstest.NewDB(t)
	business := modelstest.CreateBusiness(t, db, "no-deduction", nil)
	user := modelstest.CreateUser(t, db, "emp", business)
	logger, _ := test.NewNullLogger()

	_, err := NewRoutine(db, staticFeed(record("p1", "emp", "10", "10", "2021-10-19")), logger).
		Run(context.Background(), business, models.SyncTriggeredCli)
	require.NoError(t, err)

	items := itemsByExternalId(t, db, user.ID)
	require.Contains(t, items, "p1")
	assert.True(t, items["p1"].Amount.Equal(decimal.NewFromInt(30)), "amount %s", items["p1"].Amount)
}

func TestRun_UpdatesExistingPayItemInPlace(t *testing.T) {
	f := newRoutineFixture(t)
	existing := modelstest.CreatePayItem(t, f.db, "anExternalIdForThisPayItem", f.business, f.user, "2021-10-19")

	feed := staticFeed(
		record("anExternalIdForThisPayItem", "abcdedfg", "12.5", "8.5", "2021-10-20"),
		record("aDifferentExternalIdForThisPayItem", "abcdedfg", "12.5", "8.5", "2021-10-21"),
		record("anExternalIdForThisPayItem", "abcdedfg", "12.5", "8.5", "2021-10-22"),
	)
	_, err := f.routine(feed).Run(context.Background(), f.business, models.SyncTriggeredCli)
	require.NoError(t, err)

	items, err := models.ListPayItemsForUser(f.db, f.user.ID)
	require.NoError(t, err)
	var matches []models.PayItem
	for _, it := range items {
		if it.ExternalId == "anExternalIdForThisPayItem" {
			matches = append(matches, it)
		}
	}
	require.Len(t, matches, 1)
	assert.Equal(t, existing.ID, matches[0].ID)
	assert.Equal(t, "2021-10-22", matches[0].PayDate.Format("2006-01-02"))
	assert.True(t, matches[0].Amount.Equal(decimal.RequireFromString("42.5")), "amount %s", matches[0].Amount)
}

func TestRun_RemovesStalePayItems(t *testing.T) {
	f := newRoutineFixture(t)
	modelstest.CreatePayItem(t, f.db, "STALE", f.business, f.user, "2021-10-01")

	_, err := f.routine(staticFeed(
		record("fresh", "abcdedfg", "12.5", "8.5", "2021-10-19"),
	)).Run(context.Background(), f.business, models.SyncTriggeredCli)
	require.NoError(t, err)

	items := itemsByExternalId(t, f.db, f.user.ID)
	assert.NotContains(t, items, "STALE")
	assert.Contains(t, items, "fresh")
	assert.Len(t, items, 1)
}

func TestRun_LeavesUsersAbsentFromFeedAlone(t *testing.T) {
	f := newRoutineFixture(t)
	other := modelstest.CreateUser(t, f.db, "someone-else", f.business)
	modelstest.CreatePayItem(t, f.db, "theirs", f.business, other, "2021-10-01")

	_, err := f.routine(staticFeed(
		record("mine", "abcdedfg", "12.5", "8.5", "2021-10-19"),
	)).Run(context.Background(), f.business, models.SyncTriggeredCli)
	require.NoError(t, err)

	assert.Contains(t, itemsByExternalId(t, f.db, other.ID), "theirs")
}

func TestRun_SkipsUnknownEmployees(t *testing.T) {
	f := newRoutineFixture(t)
	outsider := modelstest.CreateBusiness(t, f.db, "other-business", nil)
	modelstest.CreateUser(t, f.db, "member-elsewhere", outsider)

	feed := staticFeed(
		record("anExternalIdForThisPayItem", "nobody", "12.5", "8.5", "2021-10-19"),
		record("aDifferentExternalIdForThisPayItem", "member-elsewhere", "12.5", "8.5", "2021-10-19"),
		record("kept", "abcdedfg", "12.5", "8.5", "2021-10-19"),
	)
	run, err := f.routine(feed).Run(context.Background(), f.business, models.SyncTriggeredCli)
	require.NoError(t, err)

	var count int64
	require.NoError(t, f.db.Model(&models.PayItem{}).
		Where("external_id IN ?", []string{"anExternalIdForThisPayItem", "aDifferentExternalIdForThisPayItem"}).
		Count(&count).Error)
	assert.Zero(t, count)
	assert.Contains(t, itemsByExternalId(t, f.db, f.user.ID), "kept")

	assert.Equal(t, 3, run.RecordsReceived)
	assert.Equal(t, 1, run.RecordsSynced)
	assert.Equal(t, 2, run.RecordsSkipped)
}

func TestRun_NotFoundOnLaterPageRollsBack(t *testing.T) {
	f := newRoutineFixture(t)
	existing := modelstest.CreatePayItem(t, f.db, "existing", f.business, f.user, "2021-10-19")

	_, srv := newFakePartner(t, f.business.ExternalId, map[int]partnerResponse{
		1: okPage(false, item("fresh", "abcdedfg")),
		2: {status: http.StatusNotFound},
	})
	logger, _ := test.NewNullLogger()
	client := newTestClient(srv, logger)

	run, err := NewRoutine(f.db, client, logger).Run(context.Background(), f.business, models.SyncTriggeredCli)
	require.Error(t, err)

	var failure *SyncFailure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, f.business.ExternalId, failure.BusinessExternalId)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "page 2")

	items := itemsByExternalId(t, f.db, f.user.ID)
	require.Len(t, items, 1)
	assert.Equal(t, existing.ID, items["existing"].ID)

	require.NotNil(t, run)
	stored, err := models.GetSyncRun(context.Background(), f.db, run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SyncRunStatusRolledBack, stored.Status)
	assert.Equal(t, failure.RunId, stored.ID)
	assert.Contains(t, stored.ErrorMessage, "page 2")
}

func TestRun_StoreErrorRollsBackDeletesAndUpserts(t *testing.T) {
	f := newRoutineFixture(t)
	modelstest.CreatePayItem(t, f.db, "STALE", f.business, f.user, "2021-10-01")
	kept := modelstest.CreatePayItem(t, f.db, "A", f.business, f.user, "2021-10-01")

	require.NoError(t, f.db.Callback().Create().Before("gorm:create").Register("test:fail_pay_item", func(tx *gorm.DB) {
		if item, ok := tx.Statement.Dest.(*models.PayItem); ok && item.ExternalId == "boom" {
			tx.AddError(errors.New("disk full"))
		}
	}))

	feed := staticFeed(
		record("A", "abcdedfg", "12.5", "8.5", "2021-10-22"),
		record("NEW", "abcdedfg", "12.5", "8.5", "2021-10-22"),
		record("boom", "abcdedfg", "12.5", "8.5", "2021-10-22"),
	)
	_, err := f.routine(feed).Run(context.Background(), f.business, models.SyncTriggeredCli)

	var failure *SyncFailure
	require.ErrorAs(t, err, &failure)
	assert.Contains(t, err.Error(), "disk full")

	items := itemsByExternalId(t, f.db, f.user.ID)
	assert.Len(t, items, 2)
	assert.Contains(t, items, "STALE")
	assert.NotContains(t, items, "NEW")
	assert.Equal(t, kept.ID, items["A"].ID)
	assert.Equal(t, "2021-10-01", items["A"].PayDate.Format("2006-01-02"))
}

func TestRun_CollectorErrorIsWrapped(t *testing.T) {
	f := newRoutineFixture(t)
	cause := &FeedError{Kind: ErrAuthentication, BusinessExternalId: f.business.ExternalId, Page: 1, StatusCode: 401}

	_, err := f.routine(collectorFunc(func(context.Context, *models.Business) ([]PayItemRecord, error) {
		return nil, cause
	})).Run(context.Background(), f.business, models.SyncTriggeredCli)

	var failure *SyncFailure
	require.ErrorAs(t, err, &failure)
	assert.ErrorIs(t, err, ErrAuthentication)
	assert.Contains(t, err.Error(), cause.Error())
}

func TestRun_IsIdempotent(t *testing.T) {
	f := newRoutineFixture(t)
	modelstest.CreatePayItem(t, f.db, "STALE", f.business, f.user, "2021-10-01")
	feed := staticFeed(
		record("a", "abcdedfg", "12.5", "8.5", "2021-10-19"),
		record("b", "abcdedfg", "3.35", "1", "2021-10-20"),
	)
	routine := f.routine(feed)

	_, err := routine.Run(context.Background(), f.business, models.SyncTriggeredCli)
	require.NoError(t, err)
	once, err := models.ListPayItemsForUser(f.db, f.user.ID)
	require.NoError(t, err)

	_, err = routine.Run(context.Background(), f.business, models.SyncTriggeredCli)
	require.NoError(t, err)
	twice, err := models.ListPayItemsForUser(f.db, f.user.ID)
	require.NoError(t, err)

	require.Len(t, twice, len(once))
	for i := range once {
		assert.Equal(t, once[i].ID, twice[i].ID)
		assert.Equal(t, once[i].ExternalId, twice[i].ExternalId)
		assert.True(t, once[i].Amount.Equal(twice[i].Amount))
		assert.True(t, once[i].PayDate.Equal(twice[i].PayDate))
	}
}

func TestRun_WipeScope(t *testing.T) {
	cases := []struct {
		name            string
		scope           string
		keepsOtherItems bool
	}{
		{"user scope clears other businesses", config.WipeScopeUser, false},
		{"business scope keeps other businesses", config.WipeScopeBusiness, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			db := modelstest.NewDB(t)
			a := modelstest.CreateBusiness(t, db, "biz-a", nil)
			b := modelstest.CreateBusiness(t, db, "biz-b", nil)
			user := modelstest.CreateUser(t, db, "shared", a, b)
			modelstest.CreatePayItem(t, db, "from-b", b, user, "2021-10-01")
			logger, _ := test.NewNullLogger()

			routine := NewRoutine(db, staticFeed(record("from-a", "shared", "10", "10", "2021-10-19")), logger, WithWipeScope(tc.scope))
			_, err := routine.Run(context.Background(), a, models.SyncTriggeredCli)
			require.NoError(t, err)

			items := itemsByExternalId(t, db, user.ID)
			assert.Contains(t, items, "from-a")
			if tc.keepsOtherItems {
				assert.Contains(t, items, "from-b")
			} else {
				assert.NotContains(t, items, "from-b")
			}
		})
	}
}

func TestRun_RecordsCommittedRun(t *testing.T) {
	f := newRoutineFixture(t)
	modelstest.CreatePayItem(t, f.db, "STALE", f.business, f.user, "2021-10-01")

	run, err := f.routine(staticFeed(
		record("a", "abcdedfg", "12.5", "8.5", "2021-10-19"),
		record("b", "abcdedfg", "12.5", "8.5", "2021-10-19"),
	)).Run(context.Background(), f.business, models.SyncTriggeredSchedule)
	require.NoError(t, err)

	stored, err := models.GetSyncRun(context.Background(), f.db, run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SyncRunStatusCommitted, stored.Status)
	assert.Equal(t, models.SyncTriggeredSchedule, stored.TriggeredBy)
	assert.Equal(t, 2, stored.RecordsReceived)
	assert.Equal(t, 2, stored.RecordsSynced)
	assert.Equal(t, 1, stored.UsersWiped)
	assert.EqualValues(t, 1, stored.ItemsDeleted)
	assert.Empty(t, stored.ErrorMessage)
	assert.NotNil(t, stored.FinishedAt)
}

type recordingArchiver struct {
	runs    []uint
	records int
	err     error
}

func (a *recordingArchiver) Archive(_ context.Context, _ *models.Business, runId uint, records []PayItemRecord) error {
	a.runs = append(a.runs, runId)
	a.records += len(records)
	return a.err
}

func TestRun_ArchiveFailureDoesNotFailRun(t *testing.T) {
	f := newRoutineFixture(t)
	archiver := &recordingArchiver{err: errors.New("bucket missing")}

	run, err := f.routine(staticFeed(
		record("a", "abcdedfg", "12.5", "8.5", "2021-10-19"),
	), WithArchiver(archiver)).Run(context.Background(), f.business, models.SyncTriggeredCli)
	require.NoError(t, err)

	assert.Equal(t, []uint{run.ID}, archiver.runs)
	assert.Equal(t, 1, archiver.records)
	assert.Contains(t, itemsByExternalId(t, f.db, f.user.ID), "a")
}

func TestReportedIdsByEmployee(t *testing.T) {
	got := reportedIdsByEmployee([]PayItemRecord{
		record("a", "e1", "1", "1", "2021-10-19"),
		record("b", "e2", "1", "1", "2021-10-19"),
		record("a", "e1", "1", "1", "2021-10-20"),
		record("c", "e1", "1", "1", "2021-10-19"),
	})
	assert.Equal(t, map[string][]string{"e1": {"a", "c"}, "e2": {"b"}}, got)
}
