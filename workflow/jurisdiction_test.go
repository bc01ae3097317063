package workflow

import (
	"testing"

	"github.com/terrafile/landregistry_backend/models"
	"github.com/terrafile/landregistry_backend/utils"
)

func TestJurisdictionStatusesAdminSeesAll(t *testing.T) {
	admin := models.Actor{Id: 1, Role: models.UserRoleAdmin}
	statuses, err := JurisdictionStatuses(admin, false)
	if err != nil {
		t.Fatalf("JurisdictionStatuses: %v", err)
	}
	if statuses != nil {
		t.Errorf("admin jurisdiction should be unrestricted, got %v", statuses)
	}
}

func TestJurisdictionStatusesCadastre(t *testing.T) {
	cadastre := models.Actor{Id: 2, Role: models.UserRoleCadastre}
	statuses, err := JurisdictionStatuses(cadastre, false)
	if err != nil {
		t.Fatalf("JurisdictionStatuses: %v", err)
	}
	want := map[models.CaseStatus]bool{
		models.CaseStatusTechnicalValidation: true,
		models.CaseStatusCommissionVisit:     true,
	}
	if len(statuses) != len(want) {
		t.Fatalf("cadastre statuses = %v", statuses)
	}
	for _, s := range statuses {
		if !want[s] {
			t.Errorf("unexpected status %s in cadastre jurisdiction", s)
		}
	}
}

func TestJurisdictionStatusesCitizenForbidden(t *testing.T) {
	citizen := models.Actor{Id: 3, Role: models.UserRoleBuyer}
	_, err := JurisdictionStatuses(citizen, false)
	if utils.KindOf(err) != utils.ErrKindForbidden {
		t.Fatalf("expected FORBIDDEN, got %v", err)
	}
}

func TestJurisdictionStatusesHistoryIsShared(t *testing.T) {
	// History mode returns closed cases for every caller, even roles with no
	// live jurisdiction.
	citizen := models.Actor{Id: 3, Role: models.UserRoleBuyer}
	statuses, err := JurisdictionStatuses(citizen, true)
	if err != nil {
		t.Fatalf("JurisdictionStatuses: %v", err)
	}
	if len(statuses) != 2 {
		t.Fatalf("history statuses = %v", statuses)
	}
	for _, s := range statuses {
		if !s.IsTerminal() {
			t.Errorf("history must only contain terminal statuses, got %s", s)
		}
	}
}
