package models

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

type User struct {
	ID         uint      `gorm:"primary_key" json:"id"`
	Name       string    `gorm:"size:100" json:"name"`
	Email      string    `gorm:"size:255" json:"email"`
	ExternalId string    `gorm:"index;size:128" json:"external_id"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// UserBusiness is the membership pivot between users and businesses.
type UserBusiness struct {
	UserId     uint      `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	BusinessId uint      `gorm:"primaryKey;autoIncrement:false;index" json:"business_id"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (UserBusiness) TableName() string {
	return "user_businesses"
}

// FindBusinessUserByExternalId returns the member of businessId whose external id matches.
// A missing user is not an error: it returns nil, nil.
func FindBusinessUserByExternalId(db *gorm.DB, businessId uint, externalId string) (*User, error) {
	var user User
	err := db.
		Joins("JOIN user_businesses ON user_businesses.user_id = users.id").
		Where("user_businesses.business_id = ? AND users.external_id = ?", businessId, externalId).
		Take(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

func AttachUserToBusiness(db *gorm.DB, userId uint, businessId uint) error {
	link := UserBusiness{UserId: userId, BusinessId: businessId}
	return db.Where(&link).FirstOrCreate(&link).Error
}
