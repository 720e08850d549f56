package models

import (
	"time"

	"bitbucket.org/mmdatafocus/payroll_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PayItem is one payroll line for one user in one business for one pay date.
// (external_id, business_id, user_id) is its natural key.
type PayItem struct {
	ID         uint            `gorm:"primary_key" json:"id"`
	ExternalId string          `gorm:"uniqueIndex:idx_pay_item_key,priority:1;size:128;not null" json:"external_id"`
	BusinessId uint            `gorm:"uniqueIndex:idx_pay_item_key,priority:2;not null" json:"business_id"`
	UserId     uint            `gorm:"uniqueIndex:idx_pay_item_key,priority:3;index;not null" json:"user_id"`
	Amount     decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"amount"`
	PayRate    decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"pay_rate"`
	Hours      decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"hours"`
	PayDate    time.Time       `gorm:"type:date;not null" json:"pay_date"`
	CreatedAt  time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type PayItemKey struct {
	ExternalId string
	BusinessId uint
	UserId     uint
}

type PayItemValues struct {
	Amount  decimal.Decimal
	PayRate decimal.Decimal
	Hours   decimal.Decimal
	PayDate time.Time
}

// UpsertPayItem overwrites the values of the row matching key in place, or inserts a new row.
// The surrogate id and created_at of an existing row are left untouched.
func UpsertPayItem(db *gorm.DB, key PayItemKey, values PayItemValues) (*PayItem, error) {
	var item PayItem
	err := db.
		Where(PayItem{ExternalId: key.ExternalId, BusinessId: key.BusinessId, UserId: key.UserId}).
		Assign(map[string]interface{}{
			"amount":   values.Amount,
			"pay_rate": values.PayRate,
			"hours":    values.Hours,
			"pay_date": values.PayDate,
		}).
		FirstOrCreate(&item).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// DeleteUserPayItems removes the user's pay items except those under businessId whose external id is in keep.
// With allBusinesses the user's pay items under every other business are removed too; otherwise
// only rows under businessId are considered.
func DeleteUserPayItems(db *gorm.DB, userId uint, businessId uint, keep []string, allBusinesses bool) (int64, error) {
	var q *gorm.DB
	if allBusinesses {
		q = db.WithContext(utils.SkipTenantScope(db.Statement.Context)).Where("user_id = ?", userId)
		if len(keep) > 0 {
			q = q.Where("NOT (business_id = ? AND external_id IN ?)", businessId, keep)
		}
	} else {
		q = db.Where("user_id = ? AND business_id = ?", userId, businessId)
		if len(keep) > 0 {
			q = q.Where("external_id NOT IN ?", keep)
		}
	}
	res := q.Delete(&PayItem{})
	return res.RowsAffected, res.Error
}

func ListPayItemsForBusiness(db *gorm.DB, businessId uint) ([]PayItem, error) {
	var items []PayItem
	err := db.Where("business_id = ?", businessId).Order("user_id, pay_date, external_id").Find(&items).Error
	return items, err
}

func ListPayItemsForUser(db *gorm.DB, userId uint) ([]PayItem, error) {
	var items []PayItem
	err := db.WithContext(utils.SkipTenantScope(db.Statement.Context)).
		Where("user_id = ?", userId).
		Order("business_id, pay_date, external_id").
		Find(&items).Error
	return items, err
}
