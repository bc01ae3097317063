package models_test

import (
	"testing"

	"github.com/terrafile/landregistry_backend/models"
)

func TestActorAdminBypass(t *testing.T) {
	admin := models.Actor{Id: 1, Role: models.UserRoleAdmin}
	if !admin.HasPermission("cases.seal") || !admin.HasRole(models.UserRoleSurveyor) {
		t.Error("admin role tag must bypass every gate")
	}

	superAdmin := models.Actor{Id: 2, Role: models.UserRoleClerk, RoleName: models.SuperAdminRoleName}
	if !superAdmin.HasPermission("registry.create_parcel") {
		t.Error("Super Admin role object must bypass permission gates")
	}
}

func TestActorPermissionGates(t *testing.T) {
	cadastre := models.Actor{
		Id:          3,
		Role:        models.UserRoleCadastre,
		Permissions: []string{"cases.validate_technical", "cases.review"},
	}
	if !cadastre.HasPermission("cases.validate_technical") {
		t.Error("granted permission denied")
	}
	if cadastre.HasPermission("cases.seal") {
		t.Error("the technical officer must not hold the conservator seal")
	}
	if cadastre.HasRole(models.UserRoleConservator) {
		t.Error("role gate leaked")
	}
	if !cadastre.HasRole(models.UserRoleCadastre, models.UserRoleSurveyor) {
		t.Error("role in allowed set denied")
	}
}

func TestEffectivePermissionsComeFromRoleObject(t *testing.T) {
	user := models.User{
		ID: 4,
		RoleObj: &models.Role{
			Name: "Conservator",
			Permissions: []*models.Permission{
				{Name: "cases.seal"},
				{Name: "cases.review"},
			},
		},
	}
	perms := user.EffectivePermissions()
	if len(perms) != 2 || perms[0] != "cases.seal" {
		t.Errorf("EffectivePermissions = %v", perms)
	}

	bare := models.User{ID: 5}
	if got := bare.EffectivePermissions(); got != nil {
		t.Errorf("user without role object should have no permissions, got %v", got)
	}
}
