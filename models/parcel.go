package models

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/terrafile/landregistry_backend/config"
	"gorm.io/gorm"
)

type ParcelStatus string

const (
	ParcelStatusRegistered ParcelStatus = "registered"
	ParcelStatusDisputed   ParcelStatus = "disputed"
	ParcelStatusArchived   ParcelStatus = "archived"
)

type Parcel struct {
	ID           int              `gorm:"primary_key" json:"id"`
	ParcelNumber string           `gorm:"size:100;uniqueIndex;not null" json:"parcel_number" binding:"required"`
	Locality     string           `gorm:"size:255;index" json:"locality"`
	Area         *decimal.Decimal `gorm:"type:decimal(16,4)" json:"area"`
	OwnerId      *int             `gorm:"index" json:"owner_id"`
	Owner        *User            `gorm:"foreignKey:OwnerId" json:"owner,omitempty"`
	Status       ParcelStatus     `gorm:"size:50;index;not null;default:registered" json:"status"`
	MinLat       *float64         `gorm:"type:decimal(10,7)" json:"min_lat"`
	MinLng       *float64         `gorm:"type:decimal(10,7)" json:"min_lng"`
	MaxLat       *float64         `gorm:"type:decimal(10,7)" json:"max_lat"`
	MaxLng       *float64         `gorm:"type:decimal(10,7)" json:"max_lng"`
	CreatedAt    time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Parcel) TableName() string { return "parcels" }

func (p *Parcel) GetId() int { return p.ID }

// HasBoundary reports whether the parcel carries a usable bounding box.
func (p *Parcel) HasBoundary() bool {
	return p.MinLat != nil && p.MinLng != nil && p.MaxLat != nil && p.MaxLng != nil
}

// BoundaryChecker detects geometry conflicts between a candidate parcel and
// the registered parcels. The default implementation compares bounding boxes;
// a GIS-backed checker can be swapped in without touching the registration flow.
type BoundaryChecker interface {
	Overlaps(ctx context.Context, tx *gorm.DB, candidate *Parcel) (conflictParcelNumber string, err error)
}

type BoundingBoxChecker struct{}

func (BoundingBoxChecker) Overlaps(ctx context.Context, tx *gorm.DB, candidate *Parcel) (string, error) {
	if !candidate.HasBoundary() {
		return "", nil
	}
	var conflict Parcel
	err := tx.WithContext(ctx).
		Where("status != ?", ParcelStatusArchived).
		Where("min_lat IS NOT NULL AND min_lng IS NOT NULL AND max_lat IS NOT NULL AND max_lng IS NOT NULL").
		Where("min_lat < ? AND max_lat > ?", *candidate.MaxLat, *candidate.MinLat).
		Where("min_lng < ? AND max_lng > ?", *candidate.MaxLng, *candidate.MinLng).
		Where("parcel_number != ?", candidate.ParcelNumber).
		First(&conflict).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return "", nil
		}
		return "", err
	}
	return conflict.ParcelNumber, nil
}

// FlagParcelDisputed marks a parcel as contested. Called when a dispute case
// is filed against it; idempotent so refiling does not stack audit noise.
func FlagParcelDisputed(tx *gorm.DB, parcelId int) error {
	var parcel Parcel
	if err := tx.Where("id = ?", parcelId).First(&parcel).Error; err != nil {
		return err
	}
	if parcel.Status == ParcelStatusDisputed {
		return nil
	}
	before := parcel
	parcel.Status = ParcelStatusDisputed
	return SaveWithAudit(tx, &before, &parcel, "Parcel flagged as disputed")
}

func GetParcelById(ctx context.Context, id int) (*Parcel, error) {
	db := config.GetDB()
	var parcel Parcel
	if err := db.WithContext(ctx).Preload("Owner").Where("id = ?", id).First(&parcel).Error; err != nil {
		return nil, err
	}
	return &parcel, nil
}

func GetParcelByNumber(ctx context.Context, parcelNumber string) (*Parcel, error) {
	db := config.GetDB()
	var parcel Parcel
	if err := db.WithContext(ctx).Preload("Owner").
		Where("parcel_number = ?", parcelNumber).First(&parcel).Error; err != nil {
		return nil, err
	}
	return &parcel, nil
}

func SearchParcels(ctx context.Context, parcelNumber, locality string, limit int) ([]*Parcel, error) {
	db := config.GetDB()
	var parcels []*Parcel
	q := db.WithContext(ctx).Preload("Owner").Where("status != ?", ParcelStatusArchived)
	if parcelNumber != "" {
		q = q.Where("parcel_number LIKE ?", "%"+parcelNumber+"%")
	}
	if locality != "" {
		q = q.Where("locality LIKE ?", "%"+locality+"%")
	}
	if limit <= 0 || limit > 100 {
		limit = 25
	}
	if err := q.Order("parcel_number ASC").Limit(limit).Find(&parcels).Error; err != nil {
		return nil, err
	}
	return parcels, nil
}
