package models

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/terrafile/landregistry_backend/config"
)

type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusSuccess PaymentStatus = "success"
	PaymentStatusFailed  PaymentStatus = "failed"
)

type PaymentPurpose string

const (
	PaymentPurposeSearchFee       PaymentPurpose = "search_fee"
	PaymentPurposeRegistrationFee PaymentPurpose = "registration_fee"
	PaymentPurposeTransferTax     PaymentPurpose = "transfer_tax"
)

// Transaction is a fee payment. The ID is a UUID because payment references
// leave the system (receipts, provider callbacks).
type Transaction struct {
	ID          string          `gorm:"primary_key;size:36" json:"id"`
	UserId      int             `gorm:"index;not null" json:"user_id"`
	User        *User           `gorm:"foreignKey:UserId" json:"user,omitempty"`
	CaseId      *int            `gorm:"index" json:"case_id"`
	ParcelId    *int            `gorm:"index" json:"parcel_id"`
	Purpose     PaymentPurpose  `gorm:"size:50;not null" json:"purpose"`
	Amount      decimal.Decimal `gorm:"type:decimal(16,2);not null" json:"amount"`
	Currency    string          `gorm:"size:10;not null;default:XAF" json:"currency"`
	Status      PaymentStatus   `gorm:"size:20;index;not null;default:pending" json:"status"`
	Reference   string          `gorm:"size:100;index" json:"reference"`
	CompletedAt *time.Time      `json:"completed_at"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Transaction) TableName() string { return "transactions" }

var (
	searchFeeAmount    = decimal.NewFromInt(500)
	registrationAmount = decimal.NewFromInt(50000)
	transferTaxRate    = decimal.NewFromFloat(0.05)
)

// FeeFor returns the amount due for a payment purpose. The transfer tax is a
// percentage of the declared parcel value; the others are flat amounts from
// the fee schedule.
func FeeFor(purpose PaymentPurpose, declaredValue *decimal.Decimal) decimal.Decimal {
	switch purpose {
	case PaymentPurposeSearchFee:
		return searchFeeAmount
	case PaymentPurposeRegistrationFee:
		return registrationAmount
	case PaymentPurposeTransferTax:
		if declaredValue == nil {
			return decimal.Zero
		}
		return declaredValue.Mul(transferTaxRate).Round(2)
	}
	return decimal.Zero
}

func NewTransaction(userId int, purpose PaymentPurpose, amount decimal.Decimal, caseId, parcelId *int) *Transaction {
	return &Transaction{
		ID:       uuid.NewString(),
		UserId:   userId,
		CaseId:   caseId,
		ParcelId: parcelId,
		Purpose:  purpose,
		Amount:   amount,
		Currency: "XAF",
		Status:   PaymentStatusPending,
	}
}

func GetTransactionById(ctx context.Context, id string) (*Transaction, error) {
	db := config.GetDB()
	var transaction Transaction
	if err := db.WithContext(ctx).Where("id = ?", id).First(&transaction).Error; err != nil {
		return nil, err
	}
	return &transaction, nil
}

func ListTransactionsByUser(ctx context.Context, userId int) ([]*Transaction, error) {
	db := config.GetDB()
	var transactions []*Transaction
	if err := db.WithContext(ctx).Where("user_id = ?", userId).
		Order("created_at DESC").Find(&transactions).Error; err != nil {
		return nil, err
	}
	return transactions, nil
}

// HasPaidSearchFee reports whether the user has a successful search fee
// payment within the access window. Registry detail access is gated on this.
func HasPaidSearchFee(ctx context.Context, userId int, parcelId int, window time.Duration) (bool, error) {
	db := config.GetDB()
	var count int64
	cutoff := time.Now().Add(-window)
	if err := db.WithContext(ctx).Model(&Transaction{}).
		Where("user_id = ? AND parcel_id = ? AND purpose = ? AND status = ? AND completed_at >= ?",
			userId, parcelId, PaymentPurposeSearchFee, PaymentStatusSuccess, cutoff).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}
