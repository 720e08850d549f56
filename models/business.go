package models

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
)

// DefaultDeductionPercentage applies when a business has no deduction percentage configured (NULL or 0).
const DefaultDeductionPercentage = 30

var ErrBusinessNotFound = errors.New("business not found")

type Business struct {
	ID                  uint      `gorm:"primary_key" json:"id"`
	Name                string    `gorm:"size:100;not null" json:"name"`
	ExternalId          string    `gorm:"uniqueIndex;size:128;not null" json:"external_id"`
	DeductionPercentage *float64  `gorm:"default:NULL" json:"deduction_percentage"`
	Enabled             *bool     `gorm:"not null;default:true" json:"enabled"`
	CreatedAt           time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (b *Business) IsEnabled() bool {
	return b.Enabled == nil || *b.Enabled
}

// EffectiveDeductionPercentage returns the configured percentage, or the default when unset or zero.
func (b *Business) EffectiveDeductionPercentage() float64 {
	if b.DeductionPercentage == nil || *b.DeductionPercentage == 0 {
		return DefaultDeductionPercentage
	}
	return *b.DeductionPercentage
}

func GetBusinessByExternalId(ctx context.Context, db *gorm.DB, externalId string) (*Business, error) {
	externalId = strings.TrimSpace(externalId)
	if externalId == "" {
		return nil, ErrBusinessNotFound
	}
	var business Business
	if err := db.WithContext(ctx).Where("external_id = ?", externalId).Take(&business).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBusinessNotFound
		}
		return nil, err
	}
	return &business, nil
}

func ListEnabledBusinesses(ctx context.Context, db *gorm.DB) ([]Business, error) {
	var businesses []Business
	err := db.WithContext(ctx).
		Where("enabled = ?", true).
		Order("id").
		Find(&businesses).Error
	return businesses, err
}
