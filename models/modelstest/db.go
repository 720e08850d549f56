// Package modelstest opens throwaway in-memory databases with the production gorm setup.
package modelstest

import (
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/payroll_backend/config"
	"bitbucket.org/mmdatafocus/payroll_backend/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// NewDB returns a migrated SQLite database private to the test.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := config.OpenDatabase(sqlite.Open(dsn))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	// A single connection keeps the in-memory database alive and serializes the transaction.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := models.MigrateTable(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func CreateBusiness(t testing.TB, db *gorm.DB, externalId string, deduction *float64) *models.Business {
	t.Helper()
	business := models.Business{Name: "Business " + externalId, ExternalId: externalId, DeductionPercentage: deduction}
	if err := db.Create(&business).Error; err != nil {
		t.Fatalf("create business: %v", err)
	}
	return &business
}

// CreateUser creates a user with externalId and attaches it to every given business.
func CreateUser(t testing.TB, db *gorm.DB, externalId string, businesses ...*models.Business) *models.User {
	t.Helper()
	user := models.User{Name: "User " + externalId, Email: externalId + "@testing.com", ExternalId: externalId}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	for _, b := range businesses {
		if err := models.AttachUserToBusiness(db, user.ID, b.ID); err != nil {
			t.Fatalf("attach user: %v", err)
		}
	}
	return &user
}

// CreatePayItem inserts a pay item directly, bypassing the sync routine.
func CreatePayItem(t testing.TB, db *gorm.DB, externalId string, business *models.Business, user *models.User, payDate string) *models.PayItem {
	t.Helper()
	item := models.PayItem{
		ExternalId: externalId,
		BusinessId: business.ID,
		UserId:     user.ID,
		Amount:     decimal.NewFromInt(10),
		PayRate:    decimal.RequireFromString("12.5"),
		Hours:      decimal.RequireFromString("8.5"),
		PayDate:    MustDate(t, payDate),
	}
	if err := db.Create(&item).Error; err != nil {
		t.Fatalf("create pay item: %v", err)
	}
	return &item
}

func Float(v float64) *float64 {
	return &v
}

func MustDate(t testing.TB, value string) time.Time {
	t.Helper()
	d, err := time.Parse("2006-01-02", value)
	if err != nil {
		t.Fatalf("parse date %q: %v", value, err)
	}
	return d
}
