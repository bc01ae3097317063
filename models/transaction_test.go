package models_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/terrafile/landregistry_backend/models"
)

func TestFeeForFlatFees(t *testing.T) {
	if got := models.FeeFor(models.PaymentPurposeSearchFee, nil); !got.Equal(decimal.NewFromInt(500)) {
		t.Errorf("search fee = %s", got)
	}
	if got := models.FeeFor(models.PaymentPurposeRegistrationFee, nil); !got.Equal(decimal.NewFromInt(50000)) {
		t.Errorf("registration fee = %s", got)
	}
}

func TestFeeForTransferTax(t *testing.T) {
	declared := decimal.NewFromInt(2500000)
	if got := models.FeeFor(models.PaymentPurposeTransferTax, &declared); !got.Equal(decimal.NewFromInt(125000)) {
		t.Errorf("transfer tax on 2,500,000 = %s, want 125,000", got)
	}

	// Fractional declared values round to cents.
	odd := decimal.NewFromFloat(1000.33)
	if got := models.FeeFor(models.PaymentPurposeTransferTax, &odd); !got.Equal(decimal.NewFromFloat(50.02)) {
		t.Errorf("transfer tax on 1000.33 = %s, want 50.02", got)
	}

	// Missing declared value yields zero; the handler turns that into a 400.
	if got := models.FeeFor(models.PaymentPurposeTransferTax, nil); !got.IsZero() {
		t.Errorf("transfer tax without declared value = %s", got)
	}
}

func TestNewTransactionDefaults(t *testing.T) {
	caseId := 9
	tr := models.NewTransaction(7, models.PaymentPurposeRegistrationFee, decimal.NewFromInt(50000), &caseId, nil)
	if tr.ID == "" {
		t.Error("transaction id must be assigned at creation")
	}
	if tr.Status != models.PaymentStatusPending {
		t.Errorf("status = %s, want pending", tr.Status)
	}
	if tr.Currency != "XAF" {
		t.Errorf("currency = %s", tr.Currency)
	}
}
