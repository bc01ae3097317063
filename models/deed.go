package models

import (
	"context"
	"crypto/sha256"
	"fmt"
	"math/rand"
	"time"

	"github.com/terrafile/landregistry_backend/config"
)

// Deed is a land title record. At most one active deed exists per parcel at
// any time; ownership changes deactivate the old deed and issue a successor
// in the same transaction.
type Deed struct {
	ID              int       `gorm:"primary_key" json:"id"`
	DeedNumber      string    `gorm:"size:100;uniqueIndex;not null" json:"deed_number"`
	VolumeNumber    string    `gorm:"size:50" json:"volume_number"`
	FolioNumber     string    `gorm:"size:50" json:"folio_number"`
	Department      string    `gorm:"size:100" json:"department"`
	ParcelId        int       `gorm:"index;not null" json:"parcel_id"`
	Parcel          *Parcel   `gorm:"foreignKey:ParcelId" json:"parcel,omitempty"`
	HolderId        int       `gorm:"index;not null" json:"holder_id"`
	Holder          *User     `gorm:"foreignKey:HolderId" json:"holder,omitempty"`
	ConservatorId   int       `gorm:"index" json:"conservator_id"`
	CaseId          *int      `gorm:"index" json:"case_id"`
	IsActive        *bool     `gorm:"index;default:true" json:"is_active"`
	DigitalSealHash string    `gorm:"size:128;not null" json:"digital_seal_hash"`
	IssuedAt        time.Time `gorm:"not null" json:"issued_at"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Deed) TableName() string { return "deeds" }

func (d *Deed) GetId() int { return d.ID }

// GenerateDeedNumber mirrors the registry's book numbering: TF prefix plus a
// six digit serial. Uniqueness is enforced by the deeds.deed_number index;
// callers must treat a duplicate key error as a retryable conflict.
func GenerateDeedNumber() string {
	return fmt.Sprintf("TF-%06d", rand.Intn(1000000))
}

func GenerateVolumeNumber() string {
	return fmt.Sprintf("VOL-%03d", rand.Intn(1000))
}

func GenerateFolioNumber() string {
	return fmt.Sprintf("F-%04d", rand.Intn(10000))
}

// SupersededDeedNumber derives the successor number a transfer issues:
// the mutation suffix "/M" appended to the previous deed number.
func SupersededDeedNumber(previous string) string {
	return previous + "/M"
}

// ComputeDigitalSeal produces the integrity seal stored on every deed.
// Verification recomputes the hash from the same fields and compares.
func ComputeDigitalSeal(deedNumber string, parcelNumber string, holderId int, issuedAt time.Time) string {
	payload := fmt.Sprintf("%s|%s|%d|%d", deedNumber, parcelNumber, holderId, issuedAt.Unix())
	sum := sha256.Sum256([]byte(payload))
	return fmt.Sprintf("SHA256:%x", sum)
}

func GetDeedById(ctx context.Context, id int) (*Deed, error) {
	db := config.GetDB()
	var deed Deed
	if err := db.WithContext(ctx).Preload("Parcel").Preload("Holder").
		Where("id = ?", id).First(&deed).Error; err != nil {
		return nil, err
	}
	return &deed, nil
}

func GetDeedByNumber(ctx context.Context, deedNumber string) (*Deed, error) {
	db := config.GetDB()
	var deed Deed
	if err := db.WithContext(ctx).
		Where("deed_number = ?", deedNumber).First(&deed).Error; err != nil {
		return nil, err
	}
	return &deed, nil
}

func GetActiveDeedByParcelId(ctx context.Context, parcelId int) (*Deed, error) {
	db := config.GetDB()
	var deed Deed
	if err := db.WithContext(ctx).Preload("Holder").
		Where("parcel_id = ? AND is_active = ?", parcelId, true).First(&deed).Error; err != nil {
		return nil, err
	}
	return &deed, nil
}

func ListDeedsByHolder(ctx context.Context, holderId int) ([]*Deed, error) {
	db := config.GetDB()
	var deeds []*Deed
	if err := db.WithContext(ctx).Preload("Parcel").
		Where("holder_id = ?", holderId).
		Order("issued_at DESC").Find(&deeds).Error; err != nil {
		return nil, err
	}
	return deeds, nil
}
