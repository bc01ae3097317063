package models_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/terrafile/landregistry_backend/models"
)

func TestCaseDataMergeKeepsUnsetFields(t *testing.T) {
	visited := time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)
	area := decimal.NewFromInt(500)
	data := models.CaseData{
		ParcelNumber: "DK-2024-0042",
		Locality:     "Ngor",
		Area:         &area,
		VisitDate:    &visited,
		Checklist:    map[string]bool{"deed_copy": true, "id_card": false},
	}

	certified := time.Date(2026, 2, 20, 14, 0, 0, 0, time.UTC)
	data.Merge(models.CaseData{
		CadastreValidatedAt: &certified,
		CadastreOfficerId:   12,
		Checklist:           map[string]bool{"id_card": true, "survey_plan": true},
	})

	if data.ParcelNumber != "DK-2024-0042" || data.Locality != "Ngor" {
		t.Errorf("merge clobbered identity fields: %+v", data)
	}
	if data.VisitDate == nil || !data.VisitDate.Equal(visited) {
		t.Errorf("merge clobbered visit date: %v", data.VisitDate)
	}
	if data.CadastreValidatedAt == nil || !data.CadastreValidatedAt.Equal(certified) {
		t.Errorf("certification stamp not applied: %v", data.CadastreValidatedAt)
	}
	if data.CadastreOfficerId != 12 {
		t.Errorf("officer id = %d", data.CadastreOfficerId)
	}
}

func TestCaseDataMergeChecklistIsKeywise(t *testing.T) {
	data := models.CaseData{Checklist: map[string]bool{"deed_copy": true, "id_card": false}}
	data.Merge(models.CaseData{Checklist: map[string]bool{"id_card": true, "survey_plan": true}})

	want := map[string]bool{"deed_copy": true, "id_card": true, "survey_plan": true}
	if len(data.Checklist) != len(want) {
		t.Fatalf("checklist = %v", data.Checklist)
	}
	for k, v := range want {
		if data.Checklist[k] != v {
			t.Errorf("checklist[%s] = %v, want %v", k, data.Checklist[k], v)
		}
	}
}

func TestCaseDataMergeExtra(t *testing.T) {
	data := models.CaseData{Extra: map[string]interface{}{"declared_value": 1000000}}
	data.Merge(models.CaseData{Extra: map[string]interface{}{"payment_reference": "PAY-77"}})

	if data.Extra["declared_value"] == nil || data.Extra["payment_reference"] != "PAY-77" {
		t.Errorf("extra merge lost keys: %v", data.Extra)
	}
}

func TestCaseStatusIsTerminal(t *testing.T) {
	open := []models.CaseStatus{
		models.CaseStatusPendingPayment,
		models.CaseStatusSubmitted,
		models.CaseStatusOppositionPeriod,
		models.CaseStatusGovernorApproval,
	}
	for _, s := range open {
		if s.IsTerminal() {
			t.Errorf("%s should be open", s)
		}
	}
	if !models.CaseStatusApproved.IsTerminal() || !models.CaseStatusRejected.IsTerminal() {
		t.Error("approved and rejected are terminal")
	}
}

func TestValidCaseType(t *testing.T) {
	if !models.ValidCaseType(models.CaseTypeSubdivision) {
		t.Error("subdivision is a valid type")
	}
	if models.ValidCaseType(models.CaseType("expropriation")) {
		t.Error("unknown types must be rejected")
	}
}

func TestDisputesParcel(t *testing.T) {
	parcelId := 6
	dispute := models.Case{Type: models.CaseTypeDispute, RelatedParcelId: &parcelId}
	if !dispute.DisputesParcel() {
		t.Error("a dispute case against a parcel must flag it")
	}

	unanchored := models.Case{Type: models.CaseTypeDispute}
	if unanchored.DisputesParcel() {
		t.Error("a dispute without a related parcel has nothing to flag")
	}

	transfer := models.Case{Type: models.CaseTypeTransfer, RelatedParcelId: &parcelId}
	if transfer.DisputesParcel() {
		t.Error("only dispute cases contest a parcel")
	}
}
