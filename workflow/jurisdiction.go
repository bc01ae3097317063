package workflow

import (
	"github.com/terrafile/landregistry_backend/models"
	"github.com/terrafile/landregistry_backend/utils"
)

// historyStatuses is what every authority sees in history mode.
var historyStatuses = []models.CaseStatus{
	models.CaseStatusApproved,
	models.CaseStatusRejected,
}

// jurisdictionStatuses maps each authority role to the case phases it works.
var jurisdictionStatuses = map[models.UserRole][]models.CaseStatus{
	models.UserRoleConservator: {
		models.CaseStatusSubmitted,
		models.CaseStatusUnderReview,
		models.CaseStatusPendingCommission,
		models.CaseStatusCommissionVisit,
		models.CaseStatusTechnicalValidation,
		models.CaseStatusOppositionPeriod,
		models.CaseStatusGovernorApproval,
	},
	models.UserRoleCadastre: {
		models.CaseStatusTechnicalValidation,
		models.CaseStatusCommissionVisit,
	},
	models.UserRoleSurveyor: {
		models.CaseStatusPendingCommission,
		models.CaseStatusCommissionVisit,
	},
}

// JurisdictionStatuses returns the statuses the actor may list. An empty
// slice with a nil error means "all statuses" (admin). Roles with no official
// jurisdiction get a Forbidden error.
func JurisdictionStatuses(actor models.Actor, history bool) ([]models.CaseStatus, error) {
	if history {
		return historyStatuses, nil
	}
	if actor.IsAdmin() {
		return nil, nil
	}
	statuses, ok := jurisdictionStatuses[actor.Role]
	if !ok {
		return nil, utils.NewRegistryError(utils.ErrKindForbidden, "no official jurisdiction for this role")
	}
	return statuses, nil
}
