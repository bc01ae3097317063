package workflow

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/terrafile/landregistry_backend/config"
	"github.com/terrafile/landregistry_backend/models"
	"github.com/terrafile/landregistry_backend/utils"
)

// The ledger plan is pure data, so the branch logic is tested without a
// database. ApplyLedgerPlan is covered by the integration tests.

func newRegistrationCase() *models.Case {
	area := decimal.NewFromInt(500)
	return &models.Case{
		ID:          10,
		Type:        models.CaseTypeNewRegistration,
		InitiatorId: 7,
		Data: models.CaseData{
			ParcelNumber: "DK-2024-0042",
			Locality:     "Ngor",
			Area:         &area,
		},
	}
}

func TestBuildLedgerPlanNewRegistration(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	plan, err := BuildLedgerPlan(newRegistrationCase(), nil, nil, 99, config.SubdivisionParentRetain, now)
	if err != nil {
		t.Fatalf("BuildLedgerPlan: %v", err)
	}
	if plan.NewParcel == nil || plan.NewDeed == nil {
		t.Fatalf("expected new parcel and deed, got %+v", plan)
	}
	if plan.NewParcel.ParcelNumber != "DK-2024-0042" {
		t.Errorf("parcel number = %q", plan.NewParcel.ParcelNumber)
	}
	if plan.NewParcel.OwnerId == nil || *plan.NewParcel.OwnerId != 7 {
		t.Errorf("parcel owner = %v, want initiator", plan.NewParcel.OwnerId)
	}
	if plan.NewDeed.HolderId != 7 || plan.NewDeed.ConservatorId != 99 {
		t.Errorf("deed holder=%d conservator=%d", plan.NewDeed.HolderId, plan.NewDeed.ConservatorId)
	}
	if plan.NewDeed.ParcelId != 0 {
		t.Errorf("deed parcel id should be unresolved until the parcel is created, got %d", plan.NewDeed.ParcelId)
	}
	if plan.DeactivateDeedId != 0 || plan.ArchiveParentParcelId != 0 {
		t.Errorf("unexpected side writes in plan: %+v", plan)
	}
	expectedSeal := models.ComputeDigitalSeal(plan.NewDeed.DeedNumber, "DK-2024-0042", 7, now)
	if plan.NewDeed.DigitalSealHash != expectedSeal {
		t.Errorf("seal mismatch: %s", plan.NewDeed.DigitalSealHash)
	}
	if plan.NewDeed.Department != "Ngor" {
		t.Errorf("department = %q, want the application locality", plan.NewDeed.Department)
	}
}

func TestBuildLedgerPlanNewRegistrationDefaultDepartment(t *testing.T) {
	caseItem := newRegistrationCase()
	caseItem.Data.Locality = ""
	plan, err := BuildLedgerPlan(caseItem, nil, nil, 99, config.SubdivisionParentRetain, time.Now())
	if err != nil {
		t.Fatalf("BuildLedgerPlan: %v", err)
	}
	if plan.NewDeed.Department != "CENTRE" {
		t.Errorf("department = %q, want the CENTRE default", plan.NewDeed.Department)
	}
}

func TestBuildLedgerPlanNewRegistrationRequiresParcelNumber(t *testing.T) {
	caseItem := newRegistrationCase()
	caseItem.Data.ParcelNumber = ""
	_, err := BuildLedgerPlan(caseItem, nil, nil, 99, config.SubdivisionParentRetain, time.Now())
	if utils.KindOf(err) != utils.ErrKindInvalidState {
		t.Fatalf("expected INVALID_STATE, got %v", err)
	}
}

func TestBuildLedgerPlanTransfer(t *testing.T) {
	caseItem := &models.Case{ID: 11, Type: models.CaseTypeTransfer, InitiatorId: 20}
	parcel := &models.Parcel{ID: 5, ParcelNumber: "DK-2020-0001"}
	activeDeed := &models.Deed{
		ID:           3,
		DeedNumber:   "TF-000123",
		VolumeNumber: "VOL-007",
		FolioNumber:  "F-0042",
		Department:   "WOURI",
		ParcelId:     5,
		HolderId:     8,
	}
	now := time.Now()

	plan, err := BuildLedgerPlan(caseItem, parcel, activeDeed, 99, config.SubdivisionParentRetain, now)
	if err != nil {
		t.Fatalf("BuildLedgerPlan: %v", err)
	}
	if plan.DeactivateDeedId != 3 {
		t.Errorf("DeactivateDeedId = %d, want 3", plan.DeactivateDeedId)
	}
	if plan.NewParcel != nil {
		t.Error("transfer must not create a parcel")
	}
	if plan.NewDeed.DeedNumber != "TF-000123/M" {
		t.Errorf("successor deed number = %q", plan.NewDeed.DeedNumber)
	}
	// The successor stays in the same registry book.
	if plan.NewDeed.VolumeNumber != "VOL-007" || plan.NewDeed.FolioNumber != "F-0042" {
		t.Errorf("volume/folio = %s/%s", plan.NewDeed.VolumeNumber, plan.NewDeed.FolioNumber)
	}
	if plan.NewDeed.Department != "WOURI" {
		t.Errorf("department = %q, want the superseded deed's", plan.NewDeed.Department)
	}
	if plan.NewDeed.HolderId != 20 {
		t.Errorf("new holder = %d, want the transferee", plan.NewDeed.HolderId)
	}
	if plan.NewDeed.ParcelId != 5 {
		t.Errorf("deed parcel id = %d", plan.NewDeed.ParcelId)
	}
}

func TestBuildLedgerPlanTransferMissingParcel(t *testing.T) {
	caseItem := &models.Case{ID: 11, Type: models.CaseTypeTransfer, InitiatorId: 20}
	_, err := BuildLedgerPlan(caseItem, nil, nil, 99, config.SubdivisionParentRetain, time.Now())
	if utils.KindOf(err) != utils.ErrKindNotFound {
		t.Fatalf("expected NOT_FOUND for missing parcel, got %v", err)
	}
}

func TestBuildLedgerPlanTransferMissingActiveDeed(t *testing.T) {
	caseItem := &models.Case{ID: 11, Type: models.CaseTypeTransfer, InitiatorId: 20}
	parcel := &models.Parcel{ID: 5, ParcelNumber: "DK-2020-0001"}
	_, err := BuildLedgerPlan(caseItem, parcel, nil, 99, config.SubdivisionParentRetain, time.Now())
	if utils.KindOf(err) != utils.ErrKindConflict {
		t.Fatalf("expected CONFLICT for missing active deed, got %v", err)
	}
}

func TestBuildLedgerPlanSubdivision(t *testing.T) {
	parentArea := decimal.NewFromInt(1000)
	caseItem := &models.Case{ID: 12, Type: models.CaseTypeSubdivision, InitiatorId: 30}
	parcel := &models.Parcel{ID: 6, ParcelNumber: "DK-2019-0100", Locality: "Yoff", Area: &parentArea}

	plan, err := BuildLedgerPlan(caseItem, parcel, nil, 99, config.SubdivisionParentRetain, time.Now())
	if err != nil {
		t.Fatalf("BuildLedgerPlan: %v", err)
	}
	if plan.NewParcel == nil {
		t.Fatal("subdivision must create a child parcel")
	}
	if plan.NewParcel.ParcelNumber != "DK-2019-0100-A" {
		t.Errorf("child parcel number = %q", plan.NewParcel.ParcelNumber)
	}
	// No declared area on the case: half the parent by default.
	if plan.NewParcel.Area == nil || !plan.NewParcel.Area.Equal(decimal.NewFromInt(500)) {
		t.Errorf("child area = %v, want 500", plan.NewParcel.Area)
	}
	if plan.NewParcel.Locality != "Yoff" {
		t.Errorf("child locality = %q", plan.NewParcel.Locality)
	}
	if plan.NewDeed.Department != "Yoff" {
		t.Errorf("child deed department = %q, want the parent locality", plan.NewDeed.Department)
	}
	if plan.ArchiveParentParcelId != 0 {
		t.Error("retain policy must not archive the parent")
	}
	if !strings.HasPrefix(plan.NewDeed.DeedNumber, "TF-") {
		t.Errorf("child deed number = %q", plan.NewDeed.DeedNumber)
	}
}

func TestBuildLedgerPlanSubdivisionArchivePolicy(t *testing.T) {
	caseItem := &models.Case{ID: 12, Type: models.CaseTypeSubdivision, InitiatorId: 30}
	parcel := &models.Parcel{ID: 6, ParcelNumber: "DK-2019-0100"}

	plan, err := BuildLedgerPlan(caseItem, parcel, nil, 99, config.SubdivisionParentArchive, time.Now())
	if err != nil {
		t.Fatalf("BuildLedgerPlan: %v", err)
	}
	if plan.ArchiveParentParcelId != 6 {
		t.Errorf("ArchiveParentParcelId = %d, want 6", plan.ArchiveParentParcelId)
	}
}

func TestBuildLedgerPlanSubdivisionDeclaredAreaWins(t *testing.T) {
	declared := decimal.NewFromInt(320)
	parentArea := decimal.NewFromInt(1000)
	caseItem := &models.Case{
		ID: 12, Type: models.CaseTypeSubdivision, InitiatorId: 30,
		Data: models.CaseData{Area: &declared},
	}
	parcel := &models.Parcel{ID: 6, ParcelNumber: "DK-2019-0100", Area: &parentArea}

	plan, err := BuildLedgerPlan(caseItem, parcel, nil, 99, config.SubdivisionParentRetain, time.Now())
	if err != nil {
		t.Fatalf("BuildLedgerPlan: %v", err)
	}
	if plan.NewParcel.Area == nil || !plan.NewParcel.Area.Equal(declared) {
		t.Errorf("child area = %v, want the declared 320", plan.NewParcel.Area)
	}
}

func TestBuildLedgerPlanDisputeIsEmpty(t *testing.T) {
	caseItem := &models.Case{ID: 13, Type: models.CaseTypeDispute, InitiatorId: 40}
	plan, err := BuildLedgerPlan(caseItem, nil, nil, 99, config.SubdivisionParentRetain, time.Now())
	if err != nil {
		t.Fatalf("BuildLedgerPlan: %v", err)
	}
	if !plan.IsEmpty() {
		t.Errorf("dispute approval must not touch the ledger: %+v", plan)
	}
}
