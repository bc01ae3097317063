package workflow

import (
	"time"

	"github.com/sirupsen/logrus"
	"github.com/terrafile/landregistry_backend/config"
	"github.com/terrafile/landregistry_backend/models"
	"github.com/terrafile/landregistry_backend/utils"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var approvalTracer = otel.Tracer("landregistry-approval")

// ApproveCase finalizes a case and issues the resulting titles in one
// transaction. Check order is fixed: existence, terminal status, technical
// certification, then the ledger writes. A failure at any point rolls back
// everything including the audit trail of the attempt's writes.
func ApproveCase(tx *gorm.DB, logger *logrus.Logger, actor models.Actor, caseId int, checklist map[string]bool) (*models.Case, error) {
	_, span := approvalTracer.Start(tx.Statement.Context, "workflow.ApproveCase")
	defer span.End()
	span.SetAttributes(attribute.Int("case.id", caseId), attribute.Int("actor.id", actor.Id))

	if !actor.HasPermission("cases.seal") {
		return nil, utils.NewRegistryError(utils.ErrKindForbidden, "conservator seal required for legal approval")
	}

	if err := AcquireApprovalLock(tx, caseId); err != nil {
		config.LogError(logger, "approvalWorkflow.go", "ApproveCase", "AcquireApprovalLock", caseId, err)
		return nil, utils.WrapPersistence(err)
	}
	defer ReleaseApprovalLock(tx, caseId)

	caseItem, err := loadCaseForUpdate(tx, caseId)
	if err != nil {
		return nil, err
	}
	if caseItem.Status == models.CaseStatusApproved {
		return nil, utils.NewRegistryError(utils.ErrKindAlreadyApproved, "case is already approved")
	}
	if caseItem.Status == models.CaseStatusRejected {
		return nil, utils.NewRegistryError(utils.ErrKindInvalidState, "rejected case cannot be approved")
	}

	// Separation of duties: the legal approver relies on an independent
	// technical certification. The stamp is checked, not the status history,
	// and the certifying officer cannot also sign the approval.
	technicalRequired := caseItem.Type == models.CaseTypeNewRegistration || caseItem.Type == models.CaseTypeSubdivision
	if technicalRequired {
		if caseItem.Data.CadastreValidatedAt == nil {
			return nil, utils.NewRegistryError(utils.ErrKindSodViolation, "legal approval blocked: technical certification (cadastre) missing")
		}
		if caseItem.Data.CadastreOfficerId != 0 && caseItem.Data.CadastreOfficerId == actor.Id {
			return nil, utils.NewRegistryError(utils.ErrKindSodViolation, "legal approval blocked: certifying officer cannot approve their own certification")
		}
	}

	parcel, activeDeed, err := loadLedgerInputs(tx, logger, caseItem)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	plan, err := BuildLedgerPlan(caseItem, parcel, activeDeed, actor.Id, config.SubdivisionParentPolicy(), now)
	if err != nil {
		return nil, err
	}

	linkedParcelId, err := ApplyLedgerPlan(tx, logger, plan, caseId)
	if err != nil {
		return nil, err
	}

	before := *caseItem
	if checklist != nil {
		caseItem.Data.Merge(models.CaseData{Checklist: checklist})
	}
	caseItem.Status = models.CaseStatusApproved
	caseItem.AssignedToId = &actor.Id
	if linkedParcelId != 0 {
		caseItem.RelatedParcelId = &linkedParcelId
	}

	if err := commitTransition(tx, logger, before, caseItem, "case.approved", actor.Id, "Case approved and deed issued"); err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.String("case.type", string(caseItem.Type)))
	return caseItem, nil
}

// loadLedgerInputs fetches the related parcel and its active deed under row
// locks for the transfer and subdivision branches. A missing linked parcel on
// those tracks is the plan builder's error to raise, so nil is returned here.
func loadLedgerInputs(tx *gorm.DB, logger *logrus.Logger, caseItem *models.Case) (*models.Parcel, *models.Deed, error) {
	if caseItem.Type != models.CaseTypeTransfer && caseItem.Type != models.CaseTypeSubdivision {
		return nil, nil, nil
	}
	if caseItem.RelatedParcelId == nil {
		return nil, nil, nil
	}

	var parcel models.Parcel
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", *caseItem.RelatedParcelId).First(&parcel).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil, nil
		}
		config.LogError(logger, "approvalWorkflow.go", "loadLedgerInputs", "LoadParcel", *caseItem.RelatedParcelId, err)
		return nil, nil, utils.WrapPersistence(err)
	}

	var deed models.Deed
	err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("parcel_id = ? AND is_active = ?", parcel.ID, true).First(&deed).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return &parcel, nil, nil
		}
		config.LogError(logger, "approvalWorkflow.go", "loadLedgerInputs", "LoadActiveDeed", parcel.ID, err)
		return nil, nil, utils.WrapPersistence(err)
	}
	return &parcel, &deed, nil
}
